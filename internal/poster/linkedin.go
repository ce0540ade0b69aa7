package poster

import (
	"context"
	"strings"

	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/platform"
)

var (
	liStart = []string{
		"button.share-box-feed-entry__trigger",
		".share-box-feed-entry__trigger",
		`button[aria-label="Start a post"]`,
		`[data-control-name="share.share_box_feed"]`,
		".share-box__open",
		".share-box-feed-entry__top-bar",
	}
	liPlaceholder = []string{
		`[data-placeholder="What do you want to talk about?"]`,
		".share-box-feed-entry__trigger--content",
	}
	liEditor = []string{
		`.ql-editor[contenteditable="true"]`,
		`[role="textbox"][contenteditable="true"]`,
		`[role="textbox"][aria-label*="post"]`,
		`div[data-placeholder="What do you want to talk about?"]`,
	}
	liMedia     = []string{`[aria-label="Add a photo"]`, `[aria-label="Add media"]`, "button.image-sharing-detour-button", ".share-creation-state__detour-btn--image"}
	liFileInput = []string{`input[type="file"][accept*="image"]`, `input[type="file"]`}
	liPost      = []string{
		"button.share-actions__primary-action:not([disabled])",
		`[data-control-name="share.post"]:not([disabled])`,
	}
	liPrimary = []string{".share-box_actions button.artdeco-button--primary:not([disabled])"}
)

// LinkedIn posts from the feed's share box. A failed image download posts
// the text alone.
type LinkedIn struct {
	base
}

// NewLinkedIn returns the linkedin_post poster.
func NewLinkedIn(opts Opts) *LinkedIn {
	return &LinkedIn{base: newBase("linkedin_post", opts)}
}

func (p *LinkedIn) ID() string        { return "linkedin_post" }
func (p *LinkedIn) HomeURL() string   { return "https://www.linkedin.com/feed/" }
func (p *LinkedIn) URLPrefix() string { return "https://www.linkedin.com/" }

func (p *LinkedIn) Post(ctx context.Context, page dom.Page, c Content) (string, error) {
	if c.Empty() {
		return "", ErrNothingToPost
	}
	editor, ok := p.openComposer(ctx, page)
	if !ok {
		return "", ErrComposer
	}

	if c.ImageURL != "" {
		file, err := p.images.Download(ctx, c.ImageURL, fileName("post_", p.now()))
		if err != nil {
			p.log.Warn("poster: image download failed, posting text only", "error", err)
		} else if err := p.attach(ctx, page, file); err != nil {
			p.log.Warn("poster: image upload failed", "error", err)
		}
	}

	if c.Caption != "" {
		if err := platform.TypeText(ctx, page, editor, c.Caption); err != nil {
			p.log.Warn("poster: type caption", "error", err)
		}
	}

	if err := sleep(ctx, p.timing.Settle); err != nil {
		return "", err
	}
	if page.Click(ctx, liPost...) != nil &&
		page.ClickText(ctx, "", "Post", "Publish") != nil &&
		page.Click(ctx, liPrimary...) != nil {
		return "", ErrPostButton
	}
	if err := sleep(ctx, p.timing.Confirm); err != nil {
		return "", err
	}
	p.log.Info("poster: posted")
	return "Posted to LinkedIn", nil
}

func (p *LinkedIn) openComposer(ctx context.Context, page dom.Page) (string, bool) {
	if ed, ok := p.open(ctx, page, liStart, liEditor); ok {
		return ed, true
	}
	if ed, ok := p.open(ctx, page, liPlaceholder, liEditor[:2]); ok {
		return ed, true
	}
	raw, err := page.URL(ctx)
	if err != nil || strings.Contains(raw, "linkedin.com/feed") {
		return "", false
	}
	if _, ok := p.navigateAndWait(ctx, page, p.HomeURL(), liStart[:3]); !ok {
		return "", false
	}
	return p.open(ctx, page, liStart[:3], liEditor[:2])
}

func (p *LinkedIn) attach(ctx context.Context, page dom.Page, file dom.File) error {
	if page.Click(ctx, liMedia...) == nil {
		if err := sleep(ctx, p.timing.Step); err != nil {
			return err
		}
	}
	if err := p.upload(ctx, page, liFileInput, nil, file); err != nil {
		return err
	}
	// The image editor may ask for confirmation.
	if page.ClickText(ctx, "", "Done", "Next") == nil {
		return sleep(ctx, p.timing.Settle)
	}
	return nil
}

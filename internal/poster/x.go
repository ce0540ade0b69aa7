package poster

import (
	"context"

	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/platform"
)

var (
	xCompose = []string{
		`a[href="/compose/post"]`,
		`a[href="/compose/tweet"]`,
		`[data-testid="SideNav_NewTweet_Button"]`,
		`[aria-label="Post"]`,
		`[aria-label="Compose post"]`,
		`[aria-label="Tweet"]`,
	}
	xEditor = []string{
		`[data-testid="tweetTextarea_0"]`,
		`div[contenteditable="true"][role="textbox"]`,
		`[data-testid="tweetTextarea_0"] [contenteditable="true"]`,
	}
	xFileInput = []string{
		`input[type="file"][accept*="image"]`,
		`input[type="file"][data-testid="fileInput"]`,
		`input[type="file"]`,
	}
	xMedia = []string{`[aria-label="Add photos or video"]`, `[data-testid="attachments"]`}
	xPost  = []string{
		`[data-testid="tweetButton"]:not([disabled]):not([aria-disabled="true"])`,
		`[data-testid="tweetButtonInline"]:not([disabled]):not([aria-disabled="true"])`,
	}
)

// X posts to x.com. A failed image download posts the text alone.
type X struct {
	base
}

// NewX returns the x_post poster.
func NewX(opts Opts) *X {
	return &X{base: newBase("x_post", opts)}
}

func (p *X) ID() string        { return "x_post" }
func (p *X) HomeURL() string   { return "https://x.com/home" }
func (p *X) URLPrefix() string { return "https://x.com/" }

func (p *X) Post(ctx context.Context, page dom.Page, c Content) (string, error) {
	if c.Empty() {
		return "", ErrNothingToPost
	}
	editor, ok := p.open(ctx, page, xCompose, xEditor)
	if !ok {
		editor, ok = p.navigateAndWait(ctx, page, "https://x.com/compose/post", xEditor)
	}
	if !ok {
		return "", ErrComposeModal
	}

	if c.ImageURL != "" {
		file, err := p.images.Download(ctx, c.ImageURL, fileName("post_", p.now()))
		if err != nil {
			p.log.Warn("poster: image download failed, posting text only", "error", err)
		} else if err := p.upload(ctx, page, xFileInput, func() bool {
			return page.Click(ctx, xMedia...) == nil
		}, file); err != nil {
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
	if page.Click(ctx, xPost...) != nil && page.ClickText(ctx, "", "Post", "Tweet") != nil {
		return "", ErrPostButton
	}
	if err := sleep(ctx, p.timing.Confirm); err != nil {
		return "", err
	}
	p.log.Info("poster: posted")
	return "Posted to X", nil
}

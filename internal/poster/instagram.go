package poster

import (
	"context"

	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/platform"
)

const igWizardSteps = 3

var (
	igCreate = []string{
		`svg[aria-label="New post"]`,
		`[aria-label="New post"]`,
		`a[href="/create/style/"]`,
		`a[href="/create/select/"]`,
		`span:has(svg[aria-label="New post"])`,
		`a[href*="create"]`,
	}
	igDialog    = []string{`[role="dialog"]`, `[class*="modal"]`, `[class*="creation"]`}
	igFileInput = []string{`input[type="file"][accept*="image"]`, `input[type="file"]`, `form input[type="file"]`}
	igSelect    = []string{"Select from computer", "Select From Computer", "Select from device"}
	igCaption   = []string{
		`textarea[aria-label*="caption"]`,
		`textarea[aria-label*="Write a caption"]`,
		`div[aria-label*="Write a caption"][contenteditable="true"]`,
		`[role="dialog"] textarea`,
		`[role="dialog"] [contenteditable="true"][role="textbox"]`,
		`[role="dialog"] div[contenteditable="true"]`,
	}
	igShared = []string{
		`[aria-label="Your post has been shared"]`,
		`[class*="success"]`,
		`[role="dialog"]:has(svg[aria-label*="checkmark"])`,
	}
)

// Instagram posts through the Create dialog. Posts need their image, so a
// failed download aborts.
type Instagram struct {
	base
}

// NewInstagram returns the instagram_post poster.
func NewInstagram(opts Opts) *Instagram {
	return &Instagram{base: newBase("instagram_post", opts)}
}

func (p *Instagram) ID() string        { return "instagram_post" }
func (p *Instagram) HomeURL() string   { return "https://www.instagram.com/" }
func (p *Instagram) URLPrefix() string { return "https://www.instagram.com/" }

func (p *Instagram) Post(ctx context.Context, page dom.Page, c Content) (string, error) {
	if c.Empty() {
		return "", ErrNothingToPost
	}

	var file dom.File
	if c.ImageURL != "" {
		f, err := p.images.Download(ctx, c.ImageURL, fileName("airminal_post_", p.now()))
		if err != nil {
			p.log.Warn("poster: image download", "error", err)
			return "", ErrImageDownload
		}
		file = f
	}

	_, ok := p.open(ctx, page, igCreate, igDialog)
	if !ok {
		_, ok = p.navigateAndWait(ctx, page, "https://www.instagram.com/create/select/", igDialog[:2])
	}
	if !ok {
		return "", ErrCreateModal
	}

	if c.ImageURL != "" {
		reveal := func() bool {
			return page.ClickText(ctx, "", igSelect...) == nil || page.Click(ctx, `[role="dialog"] button`) == nil
		}
		if err := p.upload(ctx, page, igFileInput, reveal, file); err != nil {
			p.log.Warn("poster: image upload", "error", err)
			return "", ErrImageUpload
		}
	}

	if err := p.advance(ctx, page); err != nil {
		return "", err
	}

	if c.Caption != "" {
		if err := p.caption(ctx, page, c.Caption); err != nil {
			// Posting without the caption beats not posting.
			p.log.Warn("poster: caption not added", "error", err)
		}
	}

	if page.ClickText(ctx, "", "Share", "Post", "Publish") != nil {
		return "", ErrShareButton
	}
	if err := sleep(ctx, p.timing.Open); err != nil {
		return "", err
	}
	if _, err := page.WaitFor(ctx, 2*p.timing.ElementWait, igShared...); err != nil {
		p.log.Info("poster: no share confirmation seen")
		if err := sleep(ctx, p.timing.Confirm); err != nil {
			return "", err
		}
	}
	p.log.Info("poster: posted")
	return "Post published", nil
}

// advance clicks Next until the caption screen shows.
func (p *Instagram) advance(ctx context.Context, page dom.Page) error {
	for i := 0; i < igWizardSteps; i++ {
		if err := sleep(ctx, p.timing.Step); err != nil {
			return err
		}
		if page.ClickText(ctx, `[role="dialog"]`, "Next") != nil {
			return nil
		}
		if err := sleep(ctx, p.timing.Step); err != nil {
			return err
		}
		if ok, _ := page.Exists(ctx, igCaption[:5]...); ok {
			return nil
		}
	}
	return nil
}

func (p *Instagram) caption(ctx context.Context, page dom.Page, text string) error {
	sel, err := page.WaitFor(ctx, p.timing.ElementWait, igCaption...)
	if err != nil {
		return err
	}
	return platform.TypeText(ctx, page, sel, text)
}

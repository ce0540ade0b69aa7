// Package poster publishes generated content on social sites by driving the
// site's own compose flow in a browser tab.
package poster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/logger"
)

var (
	ErrNothingToPost = errors.New("poster: no caption or image provided")
	ErrImageDownload = errors.New("poster: image download failed")
	ErrImageUpload   = errors.New("poster: image upload failed")
	ErrComposeModal  = errors.New("poster: compose modal did not open")
	ErrCreateModal   = errors.New("poster: create post modal did not open")
	ErrComposer      = errors.New("poster: post composer did not open")
	ErrPostButton    = errors.New("poster: post button not found")
	ErrShareButton   = errors.New("poster: share button not found")
	ErrUnknown       = errors.New("poster: unknown poster")
)

// reasons are the messages shown to the user for each failure.
var reasons = []struct {
	err error
	msg string
}{
	{ErrNothingToPost, "No caption or image provided"},
	{ErrImageDownload, "Failed to download image"},
	{ErrImageUpload, "Failed to upload image"},
	{ErrComposeModal, "Could not open compose modal"},
	{ErrCreateModal, "Could not open Create Post modal"},
	{ErrComposer, "Could not open post composer"},
	{ErrPostButton, "Could not find Post button"},
	{ErrShareButton, "Could not find Share button"},
}

// Reason returns the user-facing message for a Post failure. Errors that
// are not poster failures are returned as is.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.msg
		}
	}
	return err.Error()
}

// Content is what gets posted.
type Content struct {
	Caption  string `json:"caption"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Empty reports whether there is nothing to post.
func (c Content) Empty() bool {
	return c.Caption == "" && c.ImageURL == ""
}

// Poster publishes Content through one site's web UI.
type Poster interface {
	// ID is the automation id served, e.g. "x_post".
	ID() string
	// HomeURL is opened when no tab of the site exists.
	HomeURL() string
	// URLPrefix matches an existing tab of the site.
	URLPrefix() string
	// Post runs the compose flow and returns a success message.
	Post(ctx context.Context, page dom.Page, c Content) (string, error)
}

// Timing holds the pauses of the compose flows. Sites animate their dialogs,
// so each step waits before looking for the next control.
type Timing struct {
	Open        time.Duration // after clicking a compose trigger
	Navigate    time.Duration // after navigating to a compose URL
	Upload      time.Duration // after handing over the image
	Step        time.Duration // between wizard steps
	Settle      time.Duration // before the final click
	Confirm     time.Duration // after the final click
	ElementWait time.Duration // bound on each element wait
}

// DefaultTiming returns the pauses used against live sites.
func DefaultTiming() Timing {
	return Timing{
		Open:        2 * time.Second,
		Navigate:    3 * time.Second,
		Upload:      3 * time.Second,
		Step:        1500 * time.Millisecond,
		Settle:      time.Second,
		Confirm:     3 * time.Second,
		ElementWait: 5 * time.Second,
	}
}

// Opts configures the built-in posters.
type Opts struct {
	Images *Downloader
	Timing *Timing // nil means DefaultTiming
	Now    func() time.Time
	Logger *logger.Logger
}

type base struct {
	images *Downloader
	timing Timing
	now    func() time.Time
	log    *logger.Logger
}

func newBase(id string, opts Opts) base {
	b := base{
		images: opts.Images,
		timing: DefaultTiming(),
		now:    opts.Now,
		log:    logger.OrNop(opts.Logger).With("poster", id),
	}
	if opts.Timing != nil {
		b.timing = *opts.Timing
	}
	if b.images == nil {
		b.images = NewDownloader(nil)
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// open clicks each trigger in turn until one shows an editor.
func (b base) open(ctx context.Context, page dom.Page, triggers, editors []string) (string, bool) {
	for _, sel := range triggers {
		if page.Click(ctx, sel) != nil {
			continue
		}
		if sleep(ctx, b.timing.Open) != nil {
			return "", false
		}
		if ed, err := page.WaitFor(ctx, b.timing.ElementWait, editors...); err == nil {
			return ed, true
		}
	}
	return "", false
}

// navigateAndWait loads url and waits for one of want.
func (b base) navigateAndWait(ctx context.Context, page dom.Page, url string, want []string) (string, bool) {
	if err := page.Navigate(ctx, url); err != nil {
		b.log.Warn("poster: navigate", "url", url, "error", err)
		return "", false
	}
	if sleep(ctx, b.timing.Navigate) != nil {
		return "", false
	}
	found, err := page.WaitFor(ctx, b.timing.ElementWait, want...)
	return found, err == nil
}

// upload hands file to the first file input, clicking reveal first when
// no input is present yet.
func (b base) upload(ctx context.Context, page dom.Page, inputs []string, reveal func() bool, file dom.File) error {
	input, err := firstExisting(ctx, page, inputs)
	if err != nil && reveal != nil && reveal() {
		if sleep(ctx, b.timing.Step) != nil {
			return ctx.Err()
		}
		input, err = firstExisting(ctx, page, inputs)
	}
	if err != nil {
		return err
	}
	if err := page.SetFiles(ctx, input, file); err != nil {
		return fmt.Errorf("poster: set files: %w", err)
	}
	return sleep(ctx, b.timing.Upload)
}

func firstExisting(ctx context.Context, page dom.Page, selectors []string) (string, error) {
	for _, s := range selectors {
		if ok, err := page.Exists(ctx, s); err == nil && ok {
			return s, nil
		}
	}
	return "", dom.ErrNotFound
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Registry maps automation ids to posters.
type Registry struct {
	posters map[string]Poster
}

// NewRegistry returns a registry of the given posters.
func NewRegistry(posters ...Poster) (*Registry, error) {
	r := &Registry{posters: make(map[string]Poster, len(posters))}
	for _, p := range posters {
		if p.ID() == "" {
			return nil, fmt.Errorf("poster: registry: empty id")
		}
		if _, dup := r.posters[p.ID()]; dup {
			return nil, fmt.Errorf("poster: registry: duplicate id %q", p.ID())
		}
		r.posters[p.ID()] = p
	}
	return r, nil
}

// Default returns the Instagram, X and LinkedIn posters.
func Default(opts Opts) *Registry {
	r, _ := NewRegistry(NewInstagram(opts), NewX(opts), NewLinkedIn(opts))
	return r
}

// Get returns the poster for id.
func (r *Registry) Get(id string) (Poster, error) {
	p, ok := r.posters[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknown, id)
	}
	return p, nil
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.posters))
	for id := range r.posters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

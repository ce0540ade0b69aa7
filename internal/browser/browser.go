// Package browser hosts the messaging web apps in a Chrome instance driven
// over the DevTools protocol, and implements dom.Page for each tab.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/zulandar/airminal/internal/config"
	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/logger"
)

// DefaultSettle is how long a freshly opened tab is given to boot its app.
const DefaultSettle = 3 * time.Second

// Opts holds parameters for starting a Browser.
type Opts struct {
	Config config.BrowserConfig
	// Settle is the wait after opening a tab in Open. Defaults to
	// DefaultSettle.
	Settle time.Duration
	Logger *logger.Logger
}

// Browser owns the Chrome process and its tabs.
type Browser struct {
	ctx         context.Context // browser-level chromedp context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	poll        time.Duration
	settle      time.Duration
	log         *logger.Logger

	mu    sync.Mutex
	pages map[target.ID]*Page
}

// allocatorOptions maps the config onto Chrome flags.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	return opts
}

// Start launches Chrome. It stops when ctx is cancelled or Close is called.
func Start(ctx context.Context, opts Opts) (*Browser, error) {
	log := logger.OrNop(opts.Logger)
	poll := time.Duration(opts.Config.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	settle := opts.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(opts.Config)...)
	bctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf("chromedp: "+format, args...))
	}))
	if err := chromedp.Run(bctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("browser: start chrome: %w", err)
	}
	log.Info("browser: chrome started", "headless", opts.Config.Headless, "profile", opts.Config.UserDataDir)
	return &Browser{
		ctx:         bctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		poll:        poll,
		settle:      settle,
		log:         log,
		pages:       make(map[target.ID]*Page),
	}, nil
}

// Close closes every tab and stops Chrome.
func (b *Browser) Close() {
	b.mu.Lock()
	pages := b.pages
	b.pages = make(map[target.ID]*Page)
	b.mu.Unlock()
	for _, p := range pages {
		p.Close()
	}
	b.cancel()
	b.allocCancel()
}

// NewTab opens url in a new tab.
func (b *Browser) NewTab(ctx context.Context, url string) (*Page, error) {
	tctx, cancel := chromedp.NewContext(b.ctx)
	p := newPage(tctx, cancel, b.poll, b.log.With("url", url))
	if err := p.Navigate(ctx, url); err != nil {
		cancel()
		return nil, err
	}
	id := chromedp.FromContext(tctx).Target.TargetID
	b.mu.Lock()
	b.pages[id] = p
	b.mu.Unlock()
	b.log.Info("browser: tab opened", "url", url)
	return p, nil
}

// attach returns the Page for an existing target.
func (b *Browser) attach(id target.ID) *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pages[id]; ok {
		return p
	}
	tctx, cancel := chromedp.NewContext(b.ctx, chromedp.WithTargetID(id))
	p := newPage(tctx, cancel, b.poll, b.log.With("target", string(id)))
	b.pages[id] = p
	return p
}

// Open implements automation.Tabs: it returns a tab whose URL starts with
// prefix, opening home and letting it settle when there is none.
func (b *Browser) Open(ctx context.Context, prefix, home string) (dom.Page, error) {
	targets, err := chromedp.Targets(b.ctx)
	if err != nil {
		return nil, fmt.Errorf("browser: list tabs: %w", err)
	}
	if t := matchTarget(targets, prefix); t != nil {
		b.log.Debug("browser: reusing tab", "url", t.URL)
		p := b.attach(t.TargetID)
		if err := p.run(ctx, target.ActivateTarget(t.TargetID)); err != nil {
			b.log.Warn("browser: activate tab", "url", t.URL, "error", err)
		}
		return p, nil
	}
	p, err := b.NewTab(ctx, home)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(b.settle):
	}
	return p, nil
}

// matchTarget returns the first page target whose URL starts with prefix.
func matchTarget(targets []*target.Info, prefix string) *target.Info {
	for _, t := range targets {
		if t.Type == "page" && strings.HasPrefix(t.URL, prefix) {
			return t
		}
	}
	return nil
}

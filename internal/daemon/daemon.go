// Package daemon wires the engine together: settings database, sessions,
// agent client, dispatcher, hub, browser tabs with their observers, and the
// local API.
package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/airminal/internal/agent"
	"github.com/zulandar/airminal/internal/api"
	"github.com/zulandar/airminal/internal/automation"
	"github.com/zulandar/airminal/internal/bridge"
	"github.com/zulandar/airminal/internal/browser"
	"github.com/zulandar/airminal/internal/config"
	"github.com/zulandar/airminal/internal/db"
	"github.com/zulandar/airminal/internal/dispatch"
	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/logger"
	"github.com/zulandar/airminal/internal/metrics"
	"github.com/zulandar/airminal/internal/notify"
	"github.com/zulandar/airminal/internal/observer"
	"github.com/zulandar/airminal/internal/platform"
	"github.com/zulandar/airminal/internal/poster"
	"github.com/zulandar/airminal/internal/session"
	"github.com/zulandar/airminal/internal/settings"
)

// Browser is the tab host. *browser.Browser implements it.
type Browser interface {
	Open(ctx context.Context, prefix, home string) (dom.Page, error)
	Close()
}

// Opts holds parameters for building a Daemon.
type Opts struct {
	Config *config.Config
	// DB, when set, is used instead of connecting from Config.Storage.
	DB *gorm.DB
	// StartBrowser, when set, replaces launching Chrome.
	StartBrowser func(ctx context.Context) (Browser, error)
	// Platforms defaults to platform.Default().
	Platforms *platform.Registry
	// PosterTiming overrides the poster pauses.
	PosterTiming *poster.Timing
	HTTPClient   *http.Client
	Now          func() time.Time
	Out          io.Writer
	Logger       *logger.Logger
}

// Daemon is a built, not yet running, engine.
type Daemon struct {
	cfg       *config.Config
	db        *gorm.DB
	hub       *bridge.Hub
	metrics   *metrics.Metrics
	platforms *platform.Registry
	browser   Browser
	now       func() time.Time
	out       io.Writer
	log       *logger.Logger

	mu        sync.Mutex
	observers []*observer.Observer
}

// New connects to storage, builds every component and loads the stored
// settings. Chrome is started here too, so it must be closed with Close
// when Run is not called.
func New(ctx context.Context, opts Opts) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("daemon: config is required")
	}
	cfg := opts.Config
	log := logger.OrNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	platforms := opts.Platforms
	if platforms == nil {
		platforms = platform.Default()
	}
	for i, t := range cfg.Browser.Tabs {
		if _, ok := platforms.Get(t.Platform); !ok {
			return nil, fmt.Errorf("daemon: browser.tabs[%d]: unknown platform %q", i, t.Platform)
		}
	}

	gdb := opts.DB
	if gdb == nil {
		var err error
		gdb, err = db.Connect(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("daemon: %w", err)
		}
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	store, err := settings.NewGormStore(gdb)
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	history, err := automation.NewGormHistory(gdb)
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}

	sessions := session.NewStore(session.StoreOpts{Now: now, Logger: log})
	m := metrics.New(sessions.Count)

	ag := agent.New(agent.Opts{
		HTTPClient:        opts.HTTPClient,
		Timeout:           time.Duration(cfg.Agent.TimeoutSec) * time.Second,
		RequestsPerMinute: cfg.Agent.RequestsPerMinute,
		Now:               now,
		Logger:            log,
		Observe:           m.ObserveAgent,
	})
	disp, err := dispatch.New(dispatch.Opts{
		Agent:    ag,
		Sessions: sessions,
		Now:      now,
		Logger:   log,
		Observe: func(platform string, v dispatch.Verdict) {
			m.ObserveVerdict(platform, string(v.Action), v.Reason)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}

	notifier, err := notify.New(notify.Opts{Config: cfg.Notify, HTTPClient: opts.HTTPClient, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}

	start := opts.StartBrowser
	if start == nil {
		start = func(ctx context.Context) (Browser, error) {
			return browser.Start(ctx, browser.Opts{Config: cfg.Browser, Logger: log})
		}
	}
	br, err := start(ctx)
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}

	hubOpts := bridge.Opts{
		Store:      store,
		Sessions:   sessions,
		Dispatcher: disp,
		Agent:      ag,
		Posters: poster.Default(poster.Opts{
			Images: poster.NewDownloader(opts.HTTPClient),
			Timing: opts.PosterTiming,
			Now:    now,
			Logger: log,
		}),
		Tabs:         br,
		History:      history,
		SeedEndpoint: cfg.Seed.AgentEndpoint,
		Now:          now,
		Logger:       log,
		OnSave:       m.ConfigSaves.Inc,
		OnAutomation: func(id string, res automation.Result, d time.Duration) {
			m.ObserveAutomation(id, res.Success, d)
		},
	}
	// The runner announces whenever Notifier is non-nil.
	if notifier.Enabled() {
		hubOpts.Notifier = notifier
	}
	hub, err := bridge.New(hubOpts)
	if err != nil {
		br.Close()
		return nil, fmt.Errorf("daemon: %w", err)
	}
	if err := hub.Load(ctx); err != nil {
		br.Close()
		return nil, fmt.Errorf("daemon: %w", err)
	}

	return &Daemon{
		cfg:       cfg,
		db:        gdb,
		hub:       hub,
		metrics:   m,
		platforms: platforms,
		browser:   br,
		now:       now,
		out:       opts.Out,
		log:       log,
	}, nil
}

// Hub returns the background hub.
func (d *Daemon) Hub() *bridge.Hub { return d.hub }

// Metrics returns the daemon's collectors.
func (d *Daemon) Metrics() *metrics.Metrics { return d.metrics }

// OpenTabs opens every configured tab and builds its observer. A tab that
// cannot be opened is logged and left out.
func (d *Daemon) OpenTabs(ctx context.Context) []*observer.Observer {
	var built []*observer.Observer
	wait := time.Duration(d.cfg.Browser.WaitTimeoutMS) * time.Millisecond
	for _, t := range d.cfg.Browser.Tabs {
		adapter, _ := d.platforms.Get(t.Platform)
		url := t.URL
		if url == "" {
			url = adapter.HomeURL()
		}
		log := d.log.With("platform", t.Platform)
		page, err := d.browser.Open(ctx, url, url)
		if err != nil {
			log.Error("daemon: open tab", "url", url, "error", err)
			continue
		}
		obs, err := observer.New(observer.Opts{
			Adapter:     adapter,
			Page:        page,
			Hub:         d.hub,
			WaitTimeout: wait,
			Now:         d.now,
			Logger:      d.log,
			OnInjected:  d.metrics.ObserveInjection,
		})
		if err != nil {
			log.Error("daemon: observer", "error", err)
			continue
		}
		log.Info("daemon: tab opened", "url", url)
		built = append(built, obs)
	}
	d.mu.Lock()
	d.observers = append(d.observers, built...)
	d.mu.Unlock()
	return built
}

// Tabs returns the status of every observed tab, sorted by platform.
func (d *Daemon) Tabs() []observer.Status {
	d.mu.Lock()
	obs := append([]*observer.Observer(nil), d.observers...)
	d.mu.Unlock()
	out := make([]observer.Status, 0, len(obs))
	for _, o := range obs {
		out = append(out, o.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}

// Run starts the scheduler, the observers of the configured tabs and the
// API. It blocks until ctx is cancelled or the API fails, then stops
// everything and closes the browser.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer d.browser.Close()

	d.hub.Start(ctx)

	var wg sync.WaitGroup
	for _, obs := range d.OpenTabs(ctx) {
		wg.Add(1)
		go func(o *observer.Observer) {
			defer wg.Done()
			if err := o.Run(ctx); err != nil {
				d.log.Error("daemon: observer stopped", "platform", o.Platform(), "error", err)
			}
		}(obs)
	}

	err := api.Start(ctx, api.Opts{
		Hub:            d.hub,
		Tabs:           d.Tabs,
		Metrics:        d.metrics.Handler(),
		AllowedOrigins: d.cfg.API.AllowedOrigins,
		Port:           d.cfg.API.Port,
		Out:            d.out,
		Logger:         d.log,
	})
	cancel()
	wg.Wait()
	d.log.Info("daemon: stopped")
	return err
}

// Close releases the browser of a daemon that was never Run.
func (d *Daemon) Close() {
	d.browser.Close()
}

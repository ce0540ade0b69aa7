// Package bridge is the background side of the daemon: it owns the runtime
// configuration, answers tab messages through the dispatcher, and runs the
// automations.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/airminal/internal/agent"
	"github.com/zulandar/airminal/internal/automation"
	"github.com/zulandar/airminal/internal/dispatch"
	"github.com/zulandar/airminal/internal/logger"
	"github.com/zulandar/airminal/internal/poster"
	"github.com/zulandar/airminal/internal/settings"
)

// subscriberBuffer is how many config updates a slow subscriber may lag
// before the oldest is dropped.
const subscriberBuffer = 4

// Test connection constants.
const (
	TestMessage = "Hello, test from extension."
	EmptyReply  = "(empty)"
)

// Sessions is the part of the session store the hub exposes.
type Sessions interface {
	Count() int
	ClearAll()
}

// Dispatcher decides on incoming messages.
type Dispatcher interface {
	Handle(ctx context.Context, cfg settings.GlobalConfig, ev dispatch.Event) dispatch.Verdict
}

// Opts holds parameters for creating a Hub.
type Opts struct {
	Store      settings.Store
	Sessions   Sessions
	Dispatcher Dispatcher
	Agent      automation.AgentCaller
	Posters    *poster.Registry
	Tabs       automation.Tabs
	History    automation.History  // optional
	Notifier   automation.Notifier // optional
	// SeedEndpoint is written into a fresh database on first Load.
	SeedEndpoint string
	Now          func() time.Time
	Logger       *logger.Logger

	// OnSave, when set, is called after every persisted SAVE_CONFIG.
	OnSave func()
	// OnAutomation, when set, is told about every finished automation run.
	OnAutomation func(id string, res automation.Result, d time.Duration)
}

// Hub serializes every mutation of the configuration behind one mutex and
// fans saved configurations out to subscribers.
type Hub struct {
	store      settings.Store
	sessions   Sessions
	dispatcher Dispatcher
	agent      automation.AgentCaller
	posters    *poster.Registry
	tabs       automation.Tabs
	runner     *automation.Runner
	scheduler  *automation.Scheduler
	history    automation.History
	seed       string
	now        func() time.Time
	log        *logger.Logger
	onSave     func()

	mu  sync.Mutex
	cfg settings.GlobalConfig

	subMu   sync.Mutex
	subs    map[int]chan settings.GlobalConfig
	nextSub int
}

// New creates a Hub holding the default configuration. Call Load to read
// the stored one.
func New(opts Opts) (*Hub, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("bridge: store is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("bridge: sessions is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("bridge: dispatcher is required")
	}
	if opts.Agent == nil {
		return nil, fmt.Errorf("bridge: agent is required")
	}
	if opts.Posters == nil {
		return nil, fmt.Errorf("bridge: posters is required")
	}
	if opts.Tabs == nil {
		return nil, fmt.Errorf("bridge: tabs is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := logger.OrNop(opts.Logger)

	h := &Hub{
		store:      opts.Store,
		sessions:   opts.Sessions,
		dispatcher: opts.Dispatcher,
		agent:      opts.Agent,
		posters:    opts.Posters,
		tabs:       opts.Tabs,
		history:    opts.History,
		seed:       opts.SeedEndpoint,
		now:        now,
		log:        log,
		onSave:     opts.OnSave,
		cfg:        settings.Defaults(),
		subs:       make(map[int]chan settings.GlobalConfig),
	}

	runner, err := automation.NewRunner(automation.Opts{
		Settings: h,
		Agent:    opts.Agent,
		Posters:  opts.Posters,
		Tabs:     opts.Tabs,
		History:  opts.History,
		Notifier: opts.Notifier,
		Now:      now,
		Logger:   log,
		Observe:  opts.OnAutomation,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	scheduler, err := automation.NewScheduler(automation.SchedulerOpts{
		Runner: runner,
		Config: h.Config,
		Now:    now,
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	h.runner = runner
	h.scheduler = scheduler
	return h, nil
}

// Load reads the stored configuration, seeding a fresh database, and
// schedules the enabled automations.
func (h *Hub) Load(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cfg, found, err := h.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	if !found && h.seed != "" {
		cfg.AgentEndpoint = h.seed
		if err := h.store.Save(ctx, cfg); err != nil {
			return fmt.Errorf("bridge: seed: %w", err)
		}
		h.log.Info("bridge: seeded settings", "endpoint", h.seed)
	}
	h.cfg = cfg
	h.scheduler.Setup(cfg.Automations)
	h.log.Info("bridge: config loaded", "enabled", cfg.Enabled, "has_endpoint", cfg.HasEndpoint())
	return nil
}

// Start runs the automation scheduler until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	h.scheduler.Start(ctx)
}

// Config returns a copy of the configuration in effect.
func (h *Hub) Config() settings.GlobalConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg.Clone()
}

// NewMessage routes one incoming message through the dispatcher.
func (h *Hub) NewMessage(ctx context.Context, ev dispatch.Event) dispatch.Verdict {
	return h.dispatcher.Handle(ctx, h.Config(), ev)
}

// Subscribe delivers every saved configuration until cancel is called.
// A subscriber that falls behind loses its oldest updates.
func (h *Hub) Subscribe() (<-chan settings.GlobalConfig, func()) {
	ch := make(chan settings.GlobalConfig, subscriberBuffer)
	h.subMu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.subMu.Lock()
			delete(h.subs, id)
			h.subMu.Unlock()
		})
	}
}

func (h *Hub) broadcast(cfg settings.GlobalConfig) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for _, ch := range h.subs {
		c := cfg.Clone()
		select {
		case ch <- c:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
}

// SaveConfig applies a SAVE_CONFIG document: stamps enable times, merges it
// over the defaults, persists it, broadcasts CONFIG_UPDATED and reschedules
// the automations.
func (h *Hub) SaveConfig(ctx context.Context, raw []byte) error {
	h.mu.Lock()
	next, err := settings.ApplySave(h.cfg, raw, h.now())
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("bridge: %w", err)
	}
	if err := h.store.Save(ctx, next); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("bridge: %w", err)
	}
	h.cfg = next
	h.scheduler.Setup(next.Automations)
	h.mu.Unlock()

	h.log.Info("bridge: config saved", "enabled", next.Enabled)
	h.broadcast(next)
	if h.onSave != nil {
		h.onSave()
	}
	return nil
}

// MarkRun records a successful run of id: lastRun is at and nextRun is one
// interval later. The schedule of id restarts from the new nextRun.
func (h *Hub) MarkRun(ctx context.Context, id string, at time.Time) error {
	h.mu.Lock()
	next := h.cfg.Clone()
	a, ok := next.Automations[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("bridge: mark run: unknown automation %q", id)
	}
	ms := settings.Millis(at)
	a.LastRun = ms
	a.NextRun = ms + a.Interval().Milliseconds()
	next.Automations[id] = a
	if err := h.store.Save(ctx, next); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("bridge: mark run: %w", err)
	}
	h.cfg = next
	h.scheduler.Reschedule(id, a)
	h.mu.Unlock()

	h.broadcast(next)
	return nil
}

// Status is the GET_STATUS response.
type Status struct {
	Enabled        bool `json:"enabled"`
	ActiveSessions int  `json:"activeSessions"`
	HasEndpoint    bool `json:"hasEndpoint"`
}

func (h *Hub) Status() Status {
	cfg := h.Config()
	return Status{
		Enabled:        cfg.Enabled,
		ActiveSessions: h.sessions.Count(),
		HasEndpoint:    cfg.HasEndpoint(),
	}
}

// ClearSessions drops every conversation session.
func (h *Hub) ClearSessions() {
	h.sessions.ClearAll()
	h.log.Info("bridge: sessions cleared")
}

// TestResult is the TEST_CONNECTION response.
type TestResult struct {
	Success bool   `json:"success"`
	Reply   string `json:"reply,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TestConnection sends a greeting to the agent in a throwaway conversation.
func (h *Hub) TestConnection(ctx context.Context) TestResult {
	cfg := h.Config()
	if !cfg.HasEndpoint() {
		return TestResult{Error: dispatch.ReasonNoEndpoint}
	}
	reply, err := h.agent.Call(ctx, agent.Request{
		Endpoint:       cfg.AgentEndpoint,
		SystemPrompt:   cfg.SystemPrompt,
		Message:        TestMessage,
		ConversationID: fmt.Sprintf("test-%d", h.now().UnixMilli()),
		ChatName:       "Test",
		Platform:       "test",
	})
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	if reply == "" {
		reply = EmptyReply
	}
	return TestResult{Success: true, Reply: reply}
}

// TriggerAutomation runs id now.
func (h *Hub) TriggerAutomation(ctx context.Context, id string) automation.Result {
	return h.runner.Trigger(ctx, id, automation.SourceManual)
}

// AutomationStatus is one entry of GET_AUTOMATION_STATUS.
type AutomationStatus struct {
	settings.AutomationConfig
	Running   bool   `json:"running"`
	Scheduled bool   `json:"scheduled"`
	NextFire  *int64 `json:"nextFire,omitempty"`
}

// Automations returns every automation with its live schedule state.
func (h *Hub) Automations() map[string]AutomationStatus {
	cfg := h.Config()
	out := make(map[string]AutomationStatus, len(cfg.Automations))
	for id, a := range cfg.Automations {
		st := AutomationStatus{AutomationConfig: a, Running: h.runner.Running(id)}
		if at, ok := h.scheduler.NextFire(id); ok {
			st.Scheduled = true
			if !at.IsZero() {
				ms := at.UnixMilli()
				st.NextFire = &ms
			}
		}
		out[id] = st
	}
	return out
}

// Runs lists the recent runs of id, newest first.
func (h *Hub) Runs(ctx context.Context, id string, limit int) ([]RunView, error) {
	if h.history == nil {
		return []RunView{}, nil
	}
	runs, err := h.history.List(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	out := make([]RunView, 0, len(runs))
	for _, r := range runs {
		out = append(out, newRunView(r))
	}
	return out, nil
}

// ScheduledPost publishes content with the poster registered as id, in a
// tab for its site.
func (h *Hub) ScheduledPost(ctx context.Context, id string, c poster.Content) automation.Result {
	p, err := h.posters.Get(id)
	if err != nil {
		return automation.Result{Error: err.Error()}
	}
	if c.Empty() {
		return automation.Result{Error: poster.Reason(poster.ErrNothingToPost)}
	}
	page, err := h.tabs.Open(ctx, p.URLPrefix(), p.HomeURL())
	if err != nil {
		return automation.Result{Error: fmt.Sprintf("Could not open %s tab: %v", id, err)}
	}
	msg, err := p.Post(ctx, page, c)
	if err != nil {
		h.log.Warn("bridge: scheduled post failed", "poster", id, "error", err)
		return automation.Result{Error: poster.Reason(err)}
	}
	return automation.Result{Success: true, Message: msg}
}

// Package automation runs the scheduled posting jobs: ask the agent for
// content, parse it, and hand it to the site's poster.
package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/airminal/internal/agent"
	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/logger"
	"github.com/zulandar/airminal/internal/models"
	"github.com/zulandar/airminal/internal/poster"
	"github.com/zulandar/airminal/internal/settings"
)

// Failure reasons.
const (
	ReasonAgentOff       = "Agent not enabled or no endpoint"
	ReasonNotEnabled     = "Automation not enabled"
	ReasonNoPrompt       = "No prompt configured"
	ReasonEmptyResponse  = "Agent returned empty response"
	ReasonAlreadyRunning = "Automation already running"
)

// Trigger sources recorded with each run.
const (
	SourceSchedule = "schedule"
	SourceManual   = "manual"
)

// Result is the outcome of one run.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func failed(reason string) Result { return Result{Error: reason} }

// Settings is the runner's view of the runtime configuration.
type Settings interface {
	Config() settings.GlobalConfig
	// MarkRun records a successful run of id at the given time, advancing
	// nextRun by the automation's interval, and persists it.
	MarkRun(ctx context.Context, id string, at time.Time) error
}

// AgentCaller calls the conversational agent.
type AgentCaller interface {
	Call(ctx context.Context, req agent.Request) (string, error)
}

// Tabs finds a tab whose URL starts with prefix, opening home when there is
// none.
type Tabs interface {
	Open(ctx context.Context, prefix, home string) (dom.Page, error)
}

// Notifier announces run results.
type Notifier interface {
	Announce(ctx context.Context, automationID string, res Result) error
}

// Opts holds parameters for creating a Runner.
type Opts struct {
	Settings Settings
	Agent    AgentCaller
	Posters  *poster.Registry
	Tabs     Tabs
	History  History  // optional
	Notifier Notifier // optional
	Now      func() time.Time
	Logger   *logger.Logger
	// Observe, when set, is told about every finished run.
	Observe func(automationID string, res Result, d time.Duration)
}

// Runner executes automations. One run per automation is in flight at a
// time.
type Runner struct {
	settings Settings
	agent    AgentCaller
	posters  *poster.Registry
	tabs     Tabs
	history  History
	notifier Notifier
	now      func() time.Time
	log      *logger.Logger
	observe  func(string, Result, time.Duration)

	mu      sync.Mutex
	running map[string]bool
}

// NewRunner creates a Runner.
func NewRunner(opts Opts) (*Runner, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("automation: settings is required")
	}
	if opts.Agent == nil {
		return nil, fmt.Errorf("automation: agent is required")
	}
	if opts.Posters == nil {
		return nil, fmt.Errorf("automation: posters is required")
	}
	if opts.Tabs == nil {
		return nil, fmt.Errorf("automation: tabs is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		settings: opts.Settings,
		agent:    opts.Agent,
		posters:  opts.Posters,
		tabs:     opts.Tabs,
		history:  opts.History,
		notifier: opts.Notifier,
		now:      now,
		log:      logger.OrNop(opts.Logger),
		observe:  opts.Observe,
		running:  make(map[string]bool),
	}, nil
}

// Running reports whether id is currently running.
func (r *Runner) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[id]
}

func (r *Runner) acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[id] {
		return false
	}
	r.running[id] = true
	return true
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	delete(r.running, id)
	r.mu.Unlock()
}

// Trigger runs automation id now. Failures are reported in the Result.
func (r *Runner) Trigger(ctx context.Context, id, source string) Result {
	if !r.acquire(id) {
		r.log.Warn("automation: already running, skipped", "automation", id, "source", source)
		return failed(ReasonAlreadyRunning)
	}
	defer r.release(id)

	start := r.now()
	run := &models.AutomationRun{AutomationID: id, Trigger: source, StartedAt: start}
	res := r.run(ctx, id, run)
	run.Success = res.Success
	run.Error = res.Error
	run.Message = res.Message
	run.FinishedAt = r.now()

	if res.Success {
		r.log.Info("automation: run succeeded", "automation", id, "message", res.Message)
	} else {
		r.log.Warn("automation: run failed", "automation", id, "error", res.Error)
	}
	if r.history != nil {
		if err := r.history.Record(ctx, run); err != nil {
			r.log.Error("automation: record run", "automation", id, "error", err)
		}
	}
	if r.notifier != nil {
		if err := r.notifier.Announce(ctx, id, res); err != nil {
			r.log.Warn("automation: announce", "automation", id, "error", err)
		}
	}
	if r.observe != nil {
		r.observe(id, res, run.FinishedAt.Sub(start))
	}
	return res
}

func (r *Runner) run(ctx context.Context, id string, rec *models.AutomationRun) Result {
	cfg := r.settings.Config()
	if !cfg.Enabled || !cfg.HasEndpoint() {
		return failed(ReasonAgentOff)
	}
	auto, ok := cfg.Automations[id]
	if !ok || !auto.Enabled {
		return failed(ReasonNotEnabled)
	}
	if auto.Prompt == "" {
		return failed(ReasonNoPrompt)
	}

	reply, err := r.agent.Call(ctx, agent.Request{
		Endpoint:       cfg.AgentEndpoint,
		SystemPrompt:   cfg.SystemPrompt,
		Message:        auto.Prompt,
		ConversationID: fmt.Sprintf("auto_%s_%d", id, r.now().UnixMilli()),
		ChatName:       "Automation: " + id,
		Platform:       "automation",
	})
	if err != nil {
		return failed(err.Error())
	}
	if reply == "" {
		return failed(ReasonEmptyResponse)
	}

	content := ParseContent(reply)
	rec.Caption = content.Caption
	rec.ImageURL = content.ImageURL

	p, err := r.posters.Get(id)
	if err != nil {
		return failed("Unknown automation: " + id)
	}
	page, err := r.tabs.Open(ctx, p.URLPrefix(), p.HomeURL())
	if err != nil {
		return failed(fmt.Sprintf("Could not open %s tab: %v", id, err))
	}
	msg, err := p.Post(ctx, page, content)
	if err != nil {
		return failed(poster.Reason(err))
	}

	if err := r.settings.MarkRun(ctx, id, r.now()); err != nil {
		// The post is out; only the bookkeeping failed.
		r.log.Error("automation: save run time", "automation", id, "error", err)
	}
	return Result{Success: true, Message: msg}
}

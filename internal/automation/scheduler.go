package automation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zulandar/airminal/internal/logger"
	"github.com/zulandar/airminal/internal/settings"
)

// MinFirstDelay is the shortest wait before a rescheduled automation fires.
const MinFirstDelay = time.Minute

// RunTimeout bounds one scheduled run.
const RunTimeout = 10 * time.Minute

// intervalSchedule fires once at first and then every period.
type intervalSchedule struct {
	first  time.Time
	period time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return t.Add(s.period)
}

// FirstDelay returns how long to wait before an automation's first fire:
// the time left until nextRun when it lies in the future, rounded to whole
// minutes and at least MinFirstDelay, otherwise the full interval.
func FirstDelay(a settings.AutomationConfig, now time.Time) time.Duration {
	interval := a.Interval()
	left := time.Duration(a.NextRun-now.UnixMilli()) * time.Millisecond
	if a.NextRun == 0 || left <= 0 {
		return interval
	}
	minutes := time.Duration(math.Round(left.Minutes())) * time.Minute
	if minutes < MinFirstDelay {
		return MinFirstDelay
	}
	return minutes
}

// Trigger runs one automation.
type Trigger interface {
	Trigger(ctx context.Context, id, source string) Result
}

// SchedulerOpts holds parameters for creating a Scheduler.
type SchedulerOpts struct {
	Runner Trigger
	// Config returns the settings current at fire time.
	Config func() settings.GlobalConfig
	Now    func() time.Time
	Logger *logger.Logger
}

// Scheduler fires enabled automations on their interval.
type Scheduler struct {
	cron   *cron.Cron
	runner Trigger
	config func() settings.GlobalConfig
	now    func() time.Time
	log    *logger.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	first   map[string]time.Time
	ctx     context.Context
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(opts SchedulerOpts) (*Scheduler, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("automation: scheduler: runner is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("automation: scheduler: config is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := logger.OrNop(opts.Logger)
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  opts.Runner,
		config:  opts.Config,
		now:     now,
		log:     log,
		entries: make(map[string]cron.EntryID),
		first:   make(map[string]time.Time),
		ctx:     context.Background(),
	}, nil
}

// Start runs the scheduler until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
}

// Setup replaces every scheduled automation with the enabled ones in
// automations. It is safe to call repeatedly.
func (s *Scheduler) Setup(automations map[string]settings.AutomationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.entries {
		s.remove(id)
	}

	ids := make([]string, 0, len(automations))
	for id := range automations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := s.now()
	for _, id := range ids {
		s.add(id, automations[id], now)
	}
}

// Reschedule replaces the schedule of a single automation, restarting its
// countdown from a's nextRun. A disabled a is unscheduled.
func (s *Scheduler) Reschedule(id string, a settings.AutomationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(id)
	s.add(id, a, s.now())
}

func (s *Scheduler) remove(id string) {
	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
		delete(s.first, id)
	}
}

func (s *Scheduler) add(id string, a settings.AutomationConfig, now time.Time) {
	if !a.Enabled || a.IntervalHours <= 0 {
		return
	}
	delay := FirstDelay(a, now)
	s.first[id] = now.Add(delay)
	s.entries[id] = s.cron.Schedule(
		intervalSchedule{first: s.first[id], period: a.Interval()},
		cron.FuncJob(func() { s.fire(id) }),
	)
	s.log.Info("automation: scheduled", "automation", id, "first_in", delay.String(), "every", a.Interval().String())
}

// Scheduled returns the ids with a live schedule entry, sorted.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NextFire returns when id fires next. Before Start it reports the planned
// first fire.
func (s *Scheduler) NextFire(id string) (time.Time, bool) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	first := s.first[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	e := s.cron.Entry(entry)
	if !e.Valid() {
		return time.Time{}, false
	}
	if e.Next.IsZero() {
		return first, true
	}
	return e.Next, true
}

// fire runs id if it is still enabled.
func (s *Scheduler) fire(id string) {
	a, ok := s.config().Automations[id]
	if !ok || !a.Enabled {
		s.log.Info("automation: fired while disabled, skipped", "automation", id)
		return
	}
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(parent, RunTimeout)
	defer cancel()
	s.runner.Trigger(ctx, id, SourceSchedule)
}

// cronLogger routes robfig/cron's logging to zap.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

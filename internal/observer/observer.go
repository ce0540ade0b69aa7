// Package observer watches one tab for new incoming messages, forwards them
// to the hub and injects the replies it gets back.
package observer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zulandar/airminal/internal/dispatch"
	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/logger"
	"github.com/zulandar/airminal/internal/platform"
	"github.com/zulandar/airminal/internal/settings"
)

const (
	defaultReplyDelay = 1500 * time.Millisecond
	defaultInboxDelay = 2 * time.Second
	defaultWait       = 3 * time.Second
	defaultReady      = 30 * time.Second
	eventQueue        = 64
)

// Hub is the background side of the tab.
type Hub interface {
	NewMessage(ctx context.Context, ev dispatch.Event) dispatch.Verdict
	Config() settings.GlobalConfig
	// Subscribe delivers every saved config until cancel is called.
	Subscribe() (updates <-chan settings.GlobalConfig, cancel func())
}

// Opts holds parameters for creating an Observer.
type Opts struct {
	Adapter platform.Adapter
	Page    dom.Page
	Hub     Hub

	WaitTimeout  time.Duration // composer wait; default 3s
	ReadyTimeout time.Duration // app load wait; default 30s
	TrimInterval time.Duration // dedup trim; default 5m
	Now          func() time.Time
	Logger       *logger.Logger
	// OnInjected, when set, is told about every injection attempt.
	OnInjected func(platform string, err error)
}

// Observer runs the message loop of one tab.
type Observer struct {
	adapter  platform.Adapter
	page     dom.Page
	hub      Hub
	injector *Injector
	seen     *Dedup
	badge    *Badge

	readyTimeout time.Duration
	trimInterval time.Duration
	now          func() time.Time
	log          *logger.Logger
	onInjected   func(string, error)

	mu      sync.Mutex
	enabled bool

	pending    [][]dom.Node // batches held back while typing
	events     chan dispatch.Event
	resume     chan struct{}
	processing atomic.Bool // an inbox poll is in flight
	wg         sync.WaitGroup
}

// New creates an Observer.
func New(opts Opts) (*Observer, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("observer: adapter is required")
	}
	if opts.Page == nil {
		return nil, fmt.Errorf("observer: page is required")
	}
	if opts.Hub == nil {
		return nil, fmt.Errorf("observer: hub is required")
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = defaultWait
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReady
	}
	if opts.TrimInterval <= 0 {
		opts.TrimInterval = DedupTrimInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logger.OrNop(opts.Logger).With("platform", opts.Adapter.ID())
	return &Observer{
		adapter:      opts.Adapter,
		page:         opts.Page,
		hub:          opts.Hub,
		injector:     NewInjector(opts.Page, opts.Adapter, opts.WaitTimeout),
		seen:         NewDedup(DedupMax, DedupKeep),
		badge:        newBadge(opts.Now),
		readyTimeout: opts.ReadyTimeout,
		trimInterval: opts.TrimInterval,
		now:          opts.Now,
		log:          log,
		onInjected:   opts.OnInjected,
		events:       make(chan dispatch.Event, eventQueue),
		resume:       make(chan struct{}, 1),
	}, nil
}

// Platform returns the adapter id.
func (o *Observer) Platform() string { return o.adapter.ID() }

// Status is a snapshot of a tab for the status API.
type Status struct {
	Platform  string    `json:"platform"`
	Enabled   bool      `json:"enabled"`
	Badge     BadgeView `json:"badge"`
	Processed int       `json:"processed"`
	Typing    bool      `json:"typing"`
}

func (o *Observer) Status() Status {
	return Status{
		Platform:  o.adapter.ID(),
		Enabled:   o.isEnabled(),
		Badge:     o.badge.view(),
		Processed: o.seen.Len(),
		Typing:    o.injector.Typing(),
	}
}

func (o *Observer) isEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// applyConfig stores cfg and reports whether the tab just became enabled.
func (o *Observer) applyConfig(cfg settings.GlobalConfig) bool {
	on := cfg.PlatformActive(o.adapter.ID())
	o.mu.Lock()
	was := o.enabled
	o.enabled = on
	o.mu.Unlock()
	o.badge.set(BadgeFor(cfg, o.adapter.ID()))
	return on && !was
}

// Run observes the tab until ctx is cancelled. It returns nil on
// cancellation and an error when the watch cannot be installed or ends.
func (o *Observer) Run(ctx context.Context) error {
	defer o.wg.Wait()
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	o.spawn(func() { o.work(ctx) })

	updates, cancel := o.hub.Subscribe()
	defer cancel()
	o.applyConfig(o.hub.Config())

	if ready := o.adapter.Ready(); len(ready) > 0 {
		if _, err := o.page.WaitFor(ctx, o.readyTimeout, ready...); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.log.Warn("observer: app not ready, observing anyway", "error", err)
		}
	}

	poller, inbox := o.adapter.(platform.InboxPoller)

	// Mail adapters are driven by the poller alone.
	var batches <-chan []dom.Node
	if !inbox {
		ch, err := o.page.Watch(ctx, o.adapter.Roots(), o.adapter.Query())
		if err != nil {
			return fmt.Errorf("observer: %s: watch: %w", o.adapter.ID(), err)
		}
		batches = ch
	}
	o.markExisting(ctx, poller)

	var pollTimer *time.Timer
	var pollC <-chan time.Time
	if inbox {
		pollTimer = time.NewTimer(poller.FirstPollDelay())
		defer pollTimer.Stop()
		pollC = pollTimer.C
	}
	trim := time.NewTicker(o.trimInterval)
	defer trim.Stop()

	o.log.Info("observer: started", "processed", o.seen.Len(), "inbox", inbox)
	for {
		select {
		case <-ctx.Done():
			return nil

		case batch, ok := <-batches:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("observer: %s: watch closed", o.adapter.ID())
			}
			o.onBatch(ctx, batch)

		case <-o.resume:
			o.drain(ctx)

		case cfg := <-updates:
			if o.applyConfig(cfg) {
				o.log.Info("observer: enabled, only new messages from now")
				o.markExisting(ctx, poller)
				if inbox {
					resetTimer(pollTimer, poller.FirstPollDelay())
				}
			}

		case <-pollC:
			o.spawn(func() { o.poll(ctx, poller) })
			pollTimer.Reset(poller.PollInterval())

		case <-trim.C:
			o.seen.Trim()
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (o *Observer) spawn(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

// markExisting records everything already on the page so that only
// messages arriving later are answered.
func (o *Observer) markExisting(ctx context.Context, poller platform.InboxPoller) {
	if poller != nil {
		keys, err := poller.ExistingKeys(ctx, o.page)
		if err != nil {
			o.log.Warn("observer: list existing items", "error", err)
			return
		}
		for _, k := range keys {
			o.seen.Add(k)
		}
		return
	}
	rows, err := o.adapter.LocateMessages(ctx, o.page)
	if err != nil {
		o.log.Warn("observer: initial scan", "error", err)
		return
	}
	for _, n := range rows {
		if id := o.adapter.MessageID(n); id != "" {
			o.seen.Add(id)
		}
	}
}

func (o *Observer) onBatch(ctx context.Context, batch []dom.Node) {
	if !o.isEnabled() {
		return
	}
	if o.injector.Typing() || len(o.pending) > 0 {
		o.pending = append(o.pending, batch)
		return
	}
	o.evaluate(ctx, batch)
}

// drain evaluates the held-back batches in arrival order.
func (o *Observer) drain(ctx context.Context) {
	for len(o.pending) > 0 && !o.injector.Typing() {
		batch := o.pending[0]
		o.pending = o.pending[1:]
		if o.isEnabled() {
			o.evaluate(ctx, batch)
		}
	}
}

func (o *Observer) signalResume() {
	select {
	case o.resume <- struct{}{}:
	default:
	}
}

func (o *Observer) evaluate(ctx context.Context, batch []dom.Node) {
	if r, ok := o.adapter.(platform.Refresher); ok {
		r.Refresh(ctx, o.page)
	}
	var chatName, chatID string
	for _, n := range batch {
		id := o.adapter.MessageID(n)
		if id == "" || o.seen.Has(id) {
			continue
		}
		if !o.adapter.IsIncoming(n) {
			continue
		}
		text := o.adapter.ExtractText(n)
		if text == "" {
			continue
		}
		o.seen.Add(id)
		if chatName == "" {
			chatName = o.adapter.ActiveChatName(ctx, o.page)
			chatID = o.adapter.ActiveChatID(ctx, o.page)
		}
		ev := dispatch.Event{
			Platform:   o.adapter.ID(),
			ChatID:     chatID,
			ChatName:   chatName,
			Text:       text,
			SenderName: o.adapter.ExtractSender(n),
			Timestamp:  o.now().UnixMilli(),
		}
		o.log.Debug("observer: new message", "chat", chatName, "id", id)
		select {
		case o.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// work forwards queued events one at a time, in the order they were seen.
func (o *Observer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.events:
			o.forward(ctx, ev)
		}
	}
}

// ask sends ev to the hub and handles non-reply verdicts. It returns the
// reply text and delay when there is something to inject.
func (o *Observer) ask(ctx context.Context, ev dispatch.Event, fallback time.Duration) (string, time.Duration, bool) {
	o.badge.think(1)
	v := o.hub.NewMessage(ctx, ev)
	o.badge.think(-1)

	switch v.Action {
	case dispatch.ActionReply:
		if v.Reply == "" {
			return "", 0, false
		}
		delay := time.Duration(v.Delay) * time.Millisecond
		if delay <= 0 {
			delay = fallback
		}
		return v.Reply, delay, true
	case dispatch.ActionError:
		o.badge.flashError()
		o.log.Warn("observer: agent error", "chat", ev.ChatName, "reason", v.Reason)
	default:
		o.log.Debug("observer: skipped", "chat", ev.ChatName, "reason", v.Reason)
	}
	return "", 0, false
}

func (o *Observer) forward(ctx context.Context, ev dispatch.Event) {
	reply, delay, ok := o.ask(ctx, ev, defaultReplyDelay)
	if !ok {
		return
	}
	if !sleepCtx(ctx, delay) {
		return
	}
	// The user may have switched chats while the agent was thinking.
	if current := o.adapter.ActiveChatID(ctx, o.page); current != ev.ChatID {
		o.log.Info("observer: chat changed, dropping reply", "want", ev.ChatID, "got", current)
		return
	}
	err := o.injector.TypeAndSend(ctx, reply)
	o.injected(err)
}

func (o *Observer) injected(err error) {
	if err != nil {
		o.log.Error("observer: reply not sent", "error", err)
	} else {
		o.log.Info("observer: reply sent")
	}
	if o.onInjected != nil {
		o.onInjected(o.adapter.ID(), err)
	}
	o.signalResume()
}

// poll handles one inbox poll. Polls never overlap.
func (o *Observer) poll(ctx context.Context, poller platform.InboxPoller) {
	if !o.processing.CompareAndSwap(false, true) {
		return
	}
	defer o.processing.Store(false)
	if !o.isEnabled() {
		return
	}
	items, err := poller.PollInbox(ctx, o.page)
	if err != nil {
		o.log.Warn("observer: poll inbox", "error", err)
		return
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		if !o.seen.Add(item.Key) {
			continue
		}
		o.log.Debug("observer: new inbox item", "chat", item.ChatName)
		ev := dispatch.Event{
			Platform:   o.adapter.ID(),
			ChatID:     item.ChatID,
			ChatName:   item.ChatName,
			Text:       item.Text,
			SenderName: item.Sender,
			Timestamp:  o.now().UnixMilli(),
		}
		reply, delay, ok := o.ask(ctx, ev, defaultInboxDelay)
		if !ok {
			continue
		}
		if !sleepCtx(ctx, delay) {
			return
		}
		err := o.injector.Exclusive(ctx, func(ctx context.Context) error {
			return poller.ReplyTo(ctx, o.page, item, reply)
		})
		o.injected(err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

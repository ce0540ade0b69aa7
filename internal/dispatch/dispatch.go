// Package dispatch decides what to do with an incoming chat message: run it
// through the enable and chat gates, record it in the chat's session, ask
// the agent, and return a Verdict.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/airminal/internal/agent"
	"github.com/zulandar/airminal/internal/logger"
	"github.com/zulandar/airminal/internal/session"
	"github.com/zulandar/airminal/internal/settings"
)

// Event is a NEW_MESSAGE payload.
type Event struct {
	Platform   string `json:"platform"`
	ChatID     string `json:"chatId"`
	ChatName   string `json:"chatName"`
	Text       string `json:"text"`
	SenderName string `json:"senderName"`
	Timestamp  int64  `json:"timestamp"` // Unix ms; 0 means now
}

// AgentCaller calls the conversational agent.
type AgentCaller interface {
	Call(ctx context.Context, req agent.Request) (string, error)
}

// SessionStore hands out sessions under their per-key lock.
type SessionStore interface {
	Acquire(platform, chatID string) (*session.Session, func())
}

// Opts holds parameters for creating a Dispatcher.
type Opts struct {
	Agent    AgentCaller
	Sessions SessionStore
	Now      func() time.Time
	Logger   *logger.Logger
	// Observe, when set, is told about every verdict.
	Observe func(platform string, v Verdict)
}

// Dispatcher applies the gates and routes accepted messages to the agent.
// It holds no platform logic.
type Dispatcher struct {
	agent    AgentCaller
	sessions SessionStore
	now      func() time.Time
	log      *logger.Logger
	observe  func(string, Verdict)
}

// New creates a Dispatcher.
func New(opts Opts) (*Dispatcher, error) {
	if opts.Agent == nil {
		return nil, fmt.Errorf("dispatch: agent is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("dispatch: session store is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		agent:    opts.Agent,
		sessions: opts.Sessions,
		now:      now,
		log:      logger.OrNop(opts.Logger),
		observe:  opts.Observe,
	}, nil
}

// Handle evaluates ev against cfg. It never returns an error: failures are
// ERROR verdicts.
func (d *Dispatcher) Handle(ctx context.Context, cfg settings.GlobalConfig, ev Event) Verdict {
	v := d.handle(ctx, cfg, ev)
	if v.Action == ActionSkip {
		d.log.Debug("dispatch: skip", "platform", ev.Platform, "chat", ev.ChatName, "reason", v.Reason)
	}
	if d.observe != nil {
		d.observe(ev.Platform, v)
	}
	return v
}

func (d *Dispatcher) handle(ctx context.Context, cfg settings.GlobalConfig, ev Event) Verdict {
	if reason := Gate(cfg, ev, d.now()); reason != "" {
		return Skip(reason)
	}

	sess, release := d.sessions.Acquire(ev.Platform, ev.ChatID)
	defer release()

	sess.Append(session.Turn{
		Role:    session.RoleUser,
		Content: ev.Text,
		Name:    ev.SenderName,
		TS:      d.now().UnixMilli(),
	}, cfg.MaxHistoryLength)

	reply, err := d.agent.Call(ctx, agent.Request{
		Endpoint:       cfg.AgentEndpoint,
		SystemPrompt:   cfg.SystemPrompt,
		Message:        ev.Text,
		ConversationID: sess.ConversationID,
		History:        sess.Recent(agent.HistoryWindow),
		ChatName:       ev.ChatName,
		Platform:       ev.Platform,
	})
	if err != nil {
		d.log.Warn("dispatch: agent call failed", "platform", ev.Platform, "chat", ev.ChatName, "error", err)
		return Error(err.Error())
	}
	if reply == "" {
		return Skip(ReasonEmptyResponse)
	}
	sess.Append(session.Turn{
		Role:    session.RoleAssistant,
		Content: reply,
		TS:      d.now().UnixMilli(),
	}, cfg.MaxHistoryLength)
	return Reply(reply, cfg.ReplyDelay)
}

// Gate returns the skip reason for ev under cfg, or "" when the message
// should reach the agent.
func Gate(cfg settings.GlobalConfig, ev Event, now time.Time) string {
	switch {
	case !cfg.Enabled:
		return ReasonDisabled
	case !cfg.HasEndpoint():
		return ReasonNoEndpoint
	case strings.TrimSpace(ev.Text) == "":
		return ReasonEmpty
	}

	p, ok := cfg.Platform(ev.Platform)
	if !ok || !p.Enabled {
		return PlatformDisabled(ev.Platform)
	}
	if !p.AutoReply {
		return ReasonAutoReplyOff
	}

	ts := ev.Timestamp
	if ts == 0 {
		ts = now.UnixMilli()
	}
	gate := cfg.EnabledAt
	if p.EnabledAt > gate {
		gate = p.EnabledAt
	}
	if gate > 0 && ts < gate {
		return ReasonPredatesGate
	}

	if len(p.BlockedChats) > 0 && matchesAny(ev.ChatName, p.BlockedChats) {
		return ReasonChatBlocked
	}
	if len(p.AllowedChats) > 0 && !matchesAny(ev.ChatName, p.AllowedChats) {
		return ReasonNotAllowed
	}
	if p.TriggerPrefix != "" && !strings.HasPrefix(ev.Text, p.TriggerPrefix) {
		return ReasonMissingPrefix
	}
	return ""
}

// matchesAny reports whether name contains any pattern, ignoring case.
func matchesAny(name string, patterns []string) bool {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Package settings holds the runtime configuration record: the agent
// endpoint, global and per-platform toggles, and scheduled automations.
// Timestamps are Unix milliseconds so that a configuration exported from the
// browser extension can be imported unchanged.
package settings

import "time"

// PlatformIDs lists every supported messaging platform in display order.
var PlatformIDs = []string{
	"whatsapp", "messenger", "instagram", "telegram", "linkedin", "x_twitter",
	"slack", "discord", "teams", "gmail", "of", "outlook",
}

// AutomationIDs lists every scheduled posting automation.
var AutomationIDs = []string{"instagram_post", "x_post", "linkedin_post"}

// PlatformConfig is the per-platform part of the configuration.
type PlatformConfig struct {
	Enabled       bool     `json:"enabled"`
	EnabledAt     int64    `json:"enabledAt"`
	TriggerPrefix string   `json:"triggerPrefix"`
	AllowedChats  []string `json:"allowedChats"`
	BlockedChats  []string `json:"blockedChats"`
	AutoReply     bool     `json:"autoReply"`
}

// AutomationConfig is one scheduled posting job.
type AutomationConfig struct {
	Enabled       bool    `json:"enabled"`
	IntervalHours float64 `json:"intervalHours"`
	Prompt        string  `json:"prompt"`
	LastRun       int64   `json:"lastRun"`
	NextRun       int64   `json:"nextRun"`
}

// Interval returns the automation period.
func (a AutomationConfig) Interval() time.Duration {
	return time.Duration(a.IntervalHours * float64(time.Hour))
}

// GlobalConfig is the whole runtime configuration.
type GlobalConfig struct {
	AgentEndpoint    string                      `json:"agentEndpoint"`
	Enabled          bool                        `json:"enabled"`
	EnabledAt        int64                       `json:"enabledAt"`
	ReplyDelay       int64                       `json:"replyDelay"`
	MaxHistoryLength int                         `json:"maxHistoryLength"`
	SystemPrompt     string                      `json:"systemPrompt"`
	Platforms        map[string]PlatformConfig   `json:"platforms"`
	Automations      map[string]AutomationConfig `json:"automations"`
}

// Defaults returns a fresh copy of the default configuration.
func Defaults() GlobalConfig {
	cfg := GlobalConfig{
		ReplyDelay:       1500,
		MaxHistoryLength: 20,
		Platforms:        make(map[string]PlatformConfig, len(PlatformIDs)),
		Automations:      make(map[string]AutomationConfig, len(AutomationIDs)),
	}
	for _, id := range PlatformIDs {
		cfg.Platforms[id] = PlatformConfig{
			AllowedChats: []string{},
			BlockedChats: []string{},
			AutoReply:    id != "gmail" && id != "outlook",
		}
	}
	for _, id := range AutomationIDs {
		cfg.Automations[id] = AutomationConfig{IntervalHours: 24}
	}
	return cfg
}

// Clone returns a deep copy.
func (c GlobalConfig) Clone() GlobalConfig {
	out := c
	out.Platforms = make(map[string]PlatformConfig, len(c.Platforms))
	for id, p := range c.Platforms {
		p.AllowedChats = append([]string(nil), p.AllowedChats...)
		p.BlockedChats = append([]string(nil), p.BlockedChats...)
		out.Platforms[id] = p
	}
	out.Automations = make(map[string]AutomationConfig, len(c.Automations))
	for id, a := range c.Automations {
		out.Automations[id] = a
	}
	return out
}

// Platform returns the platform's settings.
func (c GlobalConfig) Platform(id string) (PlatformConfig, bool) {
	p, ok := c.Platforms[id]
	return p, ok
}

// PlatformActive reports whether both the master switch and the platform
// switch are on.
func (c GlobalConfig) PlatformActive(id string) bool {
	p, ok := c.Platforms[id]
	return c.Enabled && ok && p.Enabled
}

// HasEndpoint reports whether an agent endpoint is configured.
func (c GlobalConfig) HasEndpoint() bool {
	return c.AgentEndpoint != ""
}

// Millis converts t to Unix milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

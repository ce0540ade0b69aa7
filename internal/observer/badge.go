package observer

import (
	"sync"
	"time"

	"github.com/zulandar/airminal/internal/settings"
)

// BadgeState is the label shown for a tab.
type BadgeState string

const (
	BadgeActive      BadgeState = "Agent Active"
	BadgeNoEndpoint  BadgeState = "No Endpoint"
	BadgeMasterOff   BadgeState = "Master Off"
	BadgePlatformOff BadgeState = "Platform Off"
	BadgeOff         BadgeState = "Agent Off"
)

// ErrorFlash is how long a tab shows the error state after an ERROR verdict.
const ErrorFlash = 3 * time.Second

// BadgeFor derives the badge label of platform under cfg.
func BadgeFor(cfg settings.GlobalConfig, platform string) BadgeState {
	p, _ := cfg.Platform(platform)
	switch {
	case cfg.Enabled && p.Enabled && cfg.HasEndpoint():
		return BadgeActive
	case cfg.Enabled && p.Enabled:
		return BadgeNoEndpoint
	case p.Enabled:
		return BadgeMasterOff
	case cfg.Enabled:
		return BadgePlatformOff
	default:
		return BadgeOff
	}
}

// Badge tracks one tab's indicator: the config-derived label, a transient
// error flash and the number of messages waiting on the agent.
type Badge struct {
	mu         sync.Mutex
	now        func() time.Time
	state      BadgeState
	errorUntil time.Time
	thinking   int
}

func newBadge(now func() time.Time) *Badge {
	return &Badge{now: now, state: BadgeOff}
}

func (b *Badge) set(s BadgeState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *Badge) flashError() {
	b.mu.Lock()
	b.errorUntil = b.now().Add(ErrorFlash)
	b.mu.Unlock()
}

func (b *Badge) think(delta int) {
	b.mu.Lock()
	b.thinking += delta
	b.mu.Unlock()
}

// BadgeView is a point-in-time copy of a Badge.
type BadgeView struct {
	State    BadgeState `json:"state"`
	Error    bool       `json:"error"`
	Thinking bool       `json:"thinking"`
}

func (b *Badge) view() BadgeView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BadgeView{
		State:    b.state,
		Error:    b.now().Before(b.errorUntil),
		Thinking: b.thinking > 0,
	}
}

package observer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/platform"
	"github.com/zulandar/airminal/internal/settings"
)

func TestDedup_TrimKeepsMostRecent(t *testing.T) {
	d := NewDedup(DedupMax, DedupKeep)
	for i := 0; i < DedupMax; i++ {
		d.Add(fmt.Sprintf("m%d", i))
	}
	if d.Len() != DedupMax {
		t.Fatalf("Len = %d, want %d", d.Len(), DedupMax)
	}
	d.Add("m500")
	if d.Len() != DedupKeep {
		t.Fatalf("Len after overflow = %d, want %d", d.Len(), DedupKeep)
	}
	if d.Has("m0") || d.Has("m300") {
		t.Error("oldest ids survived trim")
	}
	if !d.Has("m301") || !d.Has("m500") {
		t.Error("recent ids trimmed")
	}
}

func TestDedup_AddReportsNew(t *testing.T) {
	d := NewDedup(0, 0)
	if !d.Add("a") {
		t.Error("first Add = false, want true")
	}
	if d.Add("a") {
		t.Error("second Add = true, want false")
	}
	d.Trim()
	if !d.Has("a") {
		t.Error("Trim under the bound removed an id")
	}
}

func TestBadgeFor(t *testing.T) {
	tests := []struct {
		name     string
		master   bool
		platform bool
		endpoint string
		want     BadgeState
	}{
		{"all on", true, true, "http://a", BadgeActive},
		{"no endpoint", true, true, "", BadgeNoEndpoint},
		{"master off", false, true, "http://a", BadgeMasterOff},
		{"platform off", true, false, "http://a", BadgePlatformOff},
		{"everything off", false, false, "", BadgeOff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := settings.Defaults()
			cfg.Enabled = tt.master
			cfg.AgentEndpoint = tt.endpoint
			p := cfg.Platforms["discord"]
			p.Enabled = tt.platform
			cfg.Platforms["discord"] = p
			if got := BadgeFor(cfg, "discord"); got != tt.want {
				t.Errorf("BadgeFor = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBadge_ErrorFlashExpires(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	b := newBadge(func() time.Time { return now })
	b.set(BadgeActive)
	b.flashError()
	if v := b.view(); !v.Error || v.State != BadgeActive {
		t.Errorf("view = %+v, want error flash over %q", v, BadgeActive)
	}
	now = now.Add(ErrorFlash)
	if b.view().Error {
		t.Error("error flash still shown after 3s")
	}
	b.think(1)
	if !b.view().Thinking {
		t.Error("Thinking = false with one pending call")
	}
	b.think(-1)
	if b.view().Thinking {
		t.Error("Thinking = true with no pending calls")
	}
}

// noSend has no adapter-level send so the injector falls back.
type noSend struct {
	*platform.Base
}

func (noSend) TriggerSend(ctx context.Context, page dom.Page, composer string) error {
	return dom.ErrNotFound
}

func TestInjector_SendFallback(t *testing.T) {
	adapterWith := func(buttons ...string) platform.Adapter {
		return noSend{platform.NewBase(platform.Profile{
			ID:          "test",
			Composer:    []string{"#box"},
			SendButtons: buttons,
		})}
	}
	ctx := context.Background()

	t.Run("button", func(t *testing.T) {
		page := dom.NewFakePage("")
		page.SetElement("#box", "", nil)
		page.SetElement("#send", "", nil)
		if err := NewInjector(page, adapterWith("#send"), 20*time.Millisecond).TypeAndSend(ctx, "hi"); err != nil {
			t.Fatalf("TypeAndSend: %v", err)
		}
		acts := page.Actions()
		if acts[len(acts)-1] != "click #send" {
			t.Errorf("last action = %q, want click #send", acts[len(acts)-1])
		}
	})

	t.Run("enter", func(t *testing.T) {
		page := dom.NewFakePage("")
		page.SetElement("#box", "", nil)
		if err := NewInjector(page, adapterWith("#gone"), 20*time.Millisecond).TypeAndSend(ctx, "hi"); err != nil {
			t.Fatalf("TypeAndSend: %v", err)
		}
		acts := page.Actions()
		if acts[len(acts)-1] != "key #box Enter" {
			t.Errorf("last action = %q, want Enter in the composer", acts[len(acts)-1])
		}
	})

	t.Run("no composer", func(t *testing.T) {
		page := dom.NewFakePage("")
		in := NewInjector(page, adapterWith(), 20*time.Millisecond)
		err := in.TypeAndSend(ctx, "hi")
		if !errors.Is(err, dom.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
		if page.Typed() != "" || in.Typing() {
			t.Error("typed or left typing flag set without a composer")
		}
	})
}

func TestInjector_ExclusiveHoldsTyping(t *testing.T) {
	in := NewInjector(dom.NewFakePage(""), platform.NewSlack(), time.Millisecond)
	var during bool
	err := in.Exclusive(context.Background(), func(ctx context.Context) error {
		during = in.Typing()
		return errors.New("boom")
	})
	if !during {
		t.Error("Typing = false inside Exclusive")
	}
	if in.Typing() {
		t.Error("Typing = true after Exclusive")
	}
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v, want fn error", err)
	}
}

package observer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/platform"
)

// Injector types replies into one tab. Injections are serialized, and the
// typing flag is held for the whole of each one.
type Injector struct {
	page    dom.Page
	adapter platform.Adapter
	wait    time.Duration

	mu     sync.Mutex
	typing atomic.Bool
}

// NewInjector returns an injector that waits up to wait for the composer.
func NewInjector(page dom.Page, adapter platform.Adapter, wait time.Duration) *Injector {
	return &Injector{page: page, adapter: adapter, wait: wait}
}

// Typing reports whether an injection is in progress.
func (in *Injector) Typing() bool {
	return in.typing.Load()
}

// Exclusive runs fn with the typing flag held.
func (in *Injector) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.typing.Store(true)
	defer in.typing.Store(false)
	return fn(ctx)
}

// TypeAndSend types text into the composer and sends it. A missing
// composer returns dom.ErrNotFound without retrying.
func (in *Injector) TypeAndSend(ctx context.Context, text string) error {
	return in.Exclusive(ctx, func(ctx context.Context) error {
		composer, err := in.adapter.LocateComposer(ctx, in.page, in.wait)
		if err != nil {
			return fmt.Errorf("observer: locate composer: %w", err)
		}
		if err := platform.TypeText(ctx, in.page, composer, text); err != nil {
			return err
		}
		if err := in.send(ctx, composer); err != nil {
			return fmt.Errorf("observer: send: %w", err)
		}
		return nil
	})
}

// send tries the adapter's own send, then the send buttons, then Enter.
func (in *Injector) send(ctx context.Context, composer string) error {
	err := in.adapter.TriggerSend(ctx, in.page, composer)
	if !errors.Is(err, dom.ErrNotFound) {
		return err
	}
	if btns := in.adapter.SendButtons(); len(btns) > 0 {
		err = in.page.Click(ctx, btns...)
		if !errors.Is(err, dom.ErrNotFound) {
			return err
		}
	}
	return in.page.PressKey(ctx, composer, dom.Enter)
}

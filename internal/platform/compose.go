package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/airminal/internal/dom"
)

// TypeText focuses and clears the composer, then types text line by line
// with a shift+Enter keystroke between lines, and fires an input
// notification so the app's framework notices the change.
func TypeText(ctx context.Context, page dom.Page, composer, text string) error {
	if err := page.Focus(ctx, composer); err != nil {
		return fmt.Errorf("platform: focus composer: %w", err)
	}
	if err := page.Clear(ctx, composer); err != nil {
		return fmt.Errorf("platform: clear composer: %w", err)
	}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			if err := page.PressKey(ctx, composer, dom.ShiftEnter); err != nil {
				return fmt.Errorf("platform: line break: %w", err)
			}
		}
		if line == "" {
			continue
		}
		if err := page.InsertText(ctx, line); err != nil {
			return fmt.Errorf("platform: insert text: %w", err)
		}
	}
	if err := page.NotifyInput(ctx, composer, text); err != nil {
		return fmt.Errorf("platform: input event: %w", err)
	}
	return nil
}

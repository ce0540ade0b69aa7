package platform

import (
	"context"
	"time"
)

// InboxTiming holds the settle delays of a mail-style adapter. The web
// clients animate between list and reading views, so each step waits
// before touching the next element.
type InboxTiming struct {
	FirstPoll time.Duration
	Poll      time.Duration

	Open        time.Duration // after clicking the list row
	ElementWait time.Duration // upper bound for reply button and composer
	ReplySettle time.Duration // after clicking reply
	SendSettle  time.Duration // after clicking send
}

// DefaultInboxTiming returns the delays used against the live clients.
func DefaultInboxTiming(firstPoll time.Duration) InboxTiming {
	return InboxTiming{
		FirstPoll:   firstPoll,
		Poll:        10 * time.Second,
		Open:        2 * time.Second,
		ElementWait: 5 * time.Second,
		ReplySettle: 1500 * time.Millisecond,
		SendSettle:  2 * time.Second,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func emailText(sender, subject, snippet string) string {
	return "[Email from: " + sender + "] [Subject: " + subject + "] " + snippet
}

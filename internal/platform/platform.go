// Package platform defines how Airminal reads and writes a messaging web
// app. Each supported app is an Adapter: selector tables plus small hooks
// that classify message rows, identify the active chat and locate the
// composer. Adapters hold no dispatch logic.
package platform

import (
	"context"
	"time"

	"github.com/zulandar/airminal/internal/dom"
)

// Probe names shared by adapters. Adapters may declare more.
const (
	ProbeText   = "text"
	ProbeIn     = "in"
	ProbeOut    = "out"
	ProbeSender = "sender"
)

// DefaultRoots are the watch roots tried when an adapter declares none.
var DefaultRoots = []string{"#app", `[role="application"]`, "body"}

// Adapter is the capability contract of one messaging platform.
type Adapter interface {
	ID() string
	HomeURL() string
	// Ready lists selectors whose presence means the app has loaded.
	Ready() []string
	// Roots lists candidate roots for the added-rows watch.
	Roots() []string
	Query() dom.Query

	LocateMessages(ctx context.Context, page dom.Page) ([]dom.Node, error)
	IsIncoming(n dom.Node) bool
	ExtractText(n dom.Node) string
	ExtractSender(n dom.Node) string
	// MessageID returns a stable id, distinct across messages, or "".
	MessageID(n dom.Node) string

	ActiveChatName(ctx context.Context, page dom.Page) string
	// ActiveChatID falls back to the chat name when no better id exists.
	ActiveChatID(ctx context.Context, page dom.Page) string

	// LocateComposer waits up to timeout for the reply composer.
	LocateComposer(ctx context.Context, page dom.Page, timeout time.Duration) (string, error)
	// TriggerSend submits the composer. dom.ErrNotFound means the caller
	// should fall back to generic sending.
	TriggerSend(ctx context.Context, page dom.Page, composer string) error
	SendButtons() []string
}

// Refresher is implemented by adapters that need page-level state, such as
// the signed-in user's name, to classify rows. Refresh runs before each
// batch is evaluated.
type Refresher interface {
	Refresh(ctx context.Context, page dom.Page)
}

// InboxItem is one unread item found by an inbox poller.
type InboxItem struct {
	Key      string // dedup key
	NodeKey  string // host handle of the list row
	ChatID   string
	ChatName string
	Text     string
	Sender   string
}

// InboxPoller is implemented by mail-style adapters. Instead of watching
// for added message rows, the observer polls the list view for unread items
// and answers each by opening it, replying and returning to the list.
type InboxPoller interface {
	FirstPollDelay() time.Duration
	PollInterval() time.Duration
	// PollInbox returns the unread items currently listed. It may navigate
	// back to the list view when the list is not shown.
	PollInbox(ctx context.Context, page dom.Page) ([]InboxItem, error)
	// ExistingKeys returns the keys of every item currently listed, read or
	// not, so that they are never answered.
	ExistingKeys(ctx context.Context, page dom.Page) ([]string, error)
	ReplyTo(ctx context.Context, page dom.Page, item InboxItem, text string) error
}

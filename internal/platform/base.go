package platform

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/airminal/internal/dom"
)

// ChatIDSource derives a chat id either from the page URL or from an
// element attribute. Exactly one of Pattern or Selector is set.
type ChatIDSource struct {
	URLPart string         // "path", "hash" or "href" (default "path")
	Pattern *regexp.Regexp // submatches are joined with "_"

	Selector string
	Attrs    []string // first non-empty attribute wins

	Prefix string
}

// Profile describes a selector-driven adapter. Nil hooks use the defaults:
// the message id is the row's data-id, a row is incoming unless the "out"
// probe matches, text comes from the "text" probe, and there is no sender.
type Profile struct {
	ID      string
	HomeURL string
	Ready   []string
	Roots   []string
	Row     string
	Probes  map[string]string

	ChatHeader     []string
	ChatFallback   string // chat name when no header matches; default "Unknown"
	ChatIDSources  []ChatIDSource
	ChatIDFallback string // used instead of the chat name when no source matches

	Composer    []string
	SendButtons []string
	SendKey     dom.Key // pressed in the composer when no send button is found

	// SelfName lists selectors for the signed-in user's display name.
	SelfName []string

	MessageID     func(n dom.Node) string
	IsIncoming    func(n dom.Node, self string) bool
	ExtractText   func(n dom.Node) string
	ExtractSender func(n dom.Node) string
}

// Base implements Adapter from a Profile.
type Base struct {
	profile Profile

	mu   sync.RWMutex
	self string
}

// NewBase builds an adapter from profile.
func NewBase(profile Profile) *Base {
	if profile.ChatFallback == "" {
		profile.ChatFallback = "Unknown"
	}
	if len(profile.Roots) == 0 {
		profile.Roots = DefaultRoots
	}
	if profile.Row == "" {
		profile.Row = "[data-id]"
	}
	return &Base{profile: profile}
}

func (b *Base) ID() string            { return b.profile.ID }
func (b *Base) HomeURL() string       { return b.profile.HomeURL }
func (b *Base) Ready() []string       { return b.profile.Ready }
func (b *Base) Roots() []string       { return b.profile.Roots }
func (b *Base) SendButtons() []string { return b.profile.SendButtons }

func (b *Base) Query() dom.Query {
	return dom.Query{Row: b.profile.Row, Probes: b.profile.Probes}
}

func (b *Base) LocateMessages(ctx context.Context, page dom.Page) ([]dom.Node, error) {
	return page.Snapshot(ctx, b.Query())
}

func (b *Base) MessageID(n dom.Node) string {
	if b.profile.MessageID != nil {
		return b.profile.MessageID(n)
	}
	return n.Attr("data-id")
}

func (b *Base) IsIncoming(n dom.Node) bool {
	if b.profile.IsIncoming != nil {
		return b.profile.IsIncoming(n, b.Self())
	}
	return !n.Matches(ProbeOut)
}

func (b *Base) ExtractText(n dom.Node) string {
	if b.profile.ExtractText != nil {
		return strings.TrimSpace(b.profile.ExtractText(n))
	}
	return n.ProbeText(ProbeText)
}

func (b *Base) ExtractSender(n dom.Node) string {
	if b.profile.ExtractSender != nil {
		return strings.TrimSpace(b.profile.ExtractSender(n))
	}
	return ""
}

func (b *Base) ActiveChatName(ctx context.Context, page dom.Page) string {
	if len(b.profile.ChatHeader) > 0 {
		if name, err := page.Text(ctx, b.profile.ChatHeader...); err == nil && name != "" {
			return name
		}
	}
	return b.profile.ChatFallback
}

func (b *Base) ActiveChatID(ctx context.Context, page dom.Page) string {
	for _, src := range b.profile.ChatIDSources {
		if id := resolveChatID(ctx, page, src); id != "" {
			return id
		}
	}
	if b.profile.ChatIDFallback != "" {
		return b.profile.ChatIDFallback
	}
	return b.ActiveChatName(ctx, page)
}

func resolveChatID(ctx context.Context, page dom.Page, src ChatIDSource) string {
	if src.Pattern != nil {
		raw, err := page.URL(ctx)
		if err != nil || raw == "" {
			return ""
		}
		m := src.Pattern.FindStringSubmatch(urlPart(raw, src.URLPart))
		if len(m) < 2 {
			return ""
		}
		return src.Prefix + strings.Join(m[1:], "_")
	}
	for _, attr := range src.Attrs {
		if v, err := page.Attr(ctx, attr, src.Selector); err == nil && v != "" {
			return src.Prefix + v
		}
	}
	return ""
}

func urlPart(raw, part string) string {
	if part == "href" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if part == "hash" {
		if u.Fragment == "" {
			return ""
		}
		return "#" + u.Fragment
	}
	return u.Path
}

func (b *Base) LocateComposer(ctx context.Context, page dom.Page, timeout time.Duration) (string, error) {
	return page.WaitFor(ctx, timeout, b.profile.Composer...)
}

func (b *Base) TriggerSend(ctx context.Context, page dom.Page, composer string) error {
	if len(b.profile.SendButtons) > 0 {
		err := page.Click(ctx, b.profile.SendButtons...)
		if !errors.Is(err, dom.ErrNotFound) {
			return err
		}
	}
	if b.profile.SendKey.Name != "" {
		return page.PressKey(ctx, composer, b.profile.SendKey)
	}
	return dom.ErrNotFound
}

var selfSuffix = regexp.MustCompile(`#\d+$`)

// Refresh re-reads the signed-in user's name.
func (b *Base) Refresh(ctx context.Context, page dom.Page) {
	if len(b.profile.SelfName) == 0 {
		return
	}
	name, err := page.Text(ctx, b.profile.SelfName...)
	if err != nil {
		return
	}
	name = strings.TrimSpace(selfSuffix.ReplaceAllString(name, ""))
	b.mu.Lock()
	b.self = name
	b.mu.Unlock()
}

// Self returns the last name read by Refresh.
func (b *Base) Self() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.self
}

// firstAttr returns the first non-empty row attribute among names.
func firstAttr(n dom.Node, names ...string) string {
	for _, name := range names {
		if v := n.Attr(name); v != "" {
			return v
		}
	}
	return ""
}

// firstText returns the first non-empty descendant text among probes.
func firstText(n dom.Node, probes ...string) string {
	for _, p := range probes {
		if v := n.ProbeText(p); v != "" {
			return v
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var (
	_ Adapter   = (*Base)(nil)
	_ Refresher = (*Base)(nil)
)

package platform

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/zulandar/airminal/internal/dom"
)

const gmailRow = "tr.zA"

var (
	gmailThread  = regexp.MustCompile(`#[^/]*/([a-zA-Z0-9]+)$`)
	snippetDash  = regexp.MustCompile(`^\s*[-–—]\s*`)
	gmailReply   = []string{`[data-tooltip="Reply"]`, `[aria-label="Reply"]`, `div[role="button"][data-tooltip="Reply"]`}
	gmailScan    = []string{`[data-tooltip*="reply" i]:not([data-tooltip*="all" i])`}
	gmailCompose = []string{`div[role="textbox"][aria-label*="Body"]`, ".Am.Al.editable", `div[g_editable="true"]`}
	gmailSend    = []string{
		`div[role="button"][aria-label*="Send"]:not([aria-disabled="true"])`,
		`div[data-tooltip*="Send"]:not([aria-disabled="true"])`,
		`.T-I.J-J5-Ji[aria-label*="Send"]`,
	}
	gmailBack = []string{
		`[data-tooltip="Back to Inbox"]`,
		`[aria-label="Back to Inbox"]`,
		"[data-tooltip=\"Back to “Inbox”\"]",
		".lS .ak",
	}
	gmailInboxLink = []string{`a[href*="#inbox"]`, `[data-tooltip="Inbox"]`, ".aHS-bnq"}
)

// Gmail answers unread inbox rows on mail.google.com.
type Gmail struct {
	*Base
	Timing InboxTiming
}

// NewGmail returns the Gmail adapter.
func NewGmail() *Gmail {
	g := &Gmail{Timing: DefaultInboxTiming(5 * time.Second)}
	g.Base = NewBase(Profile{
		ID:      "gmail",
		HomeURL: "https://mail.google.com/mail/u/0/#inbox",
		Ready:   []string{`div[role="main"]`},
		Row:     gmailRow,
		Probes: map[string]string{
			"bold":      "td .xT b, td .bog b, td b > span",
			"named":     "span[name]",
			"zf":        ".zF",
			"yp":        ".yP",
			"email":     "[email]",
			"from":      ".gD, [email]",
			"bog":       "span.bog",
			"bqe":       "span.bqe",
			"xt":        ".xT span",
			"y6":        ".y6 span",
			"snippet":   "span.y2",
			"legacy":    "[data-legacy-message-id]",
			"body":      ".a3s.aiL, .ii.gt div",
		},
		ChatHeader:   []string{"h2[data-thread-perm-id]", ".ha h2", ".hP"},
		ChatFallback: "Inbox",
		ChatIDSources: []ChatIDSource{
			{URLPart: "hash", Pattern: gmailThread, Prefix: "gmail_thread_"},
		},
		ChatIDFallback: "gmail_inbox",
		Composer:       []string{`div[role="textbox"][aria-label*="Body"]`, `div[aria-label="Message Body"][contenteditable="true"]`, ".Am.Al.editable", `div[g_editable="true"]`},
		SendButtons:    gmailSend,
		SendKey:        dom.CtrlEnter,
		MessageID: func(n dom.Node) string {
			id := n.Attr("data-legacy-message-id")
			if id == "" {
				id = n.ClosestAttr("legacy", "data-legacy-message-id")
			}
			if id != "" {
				return "gmail_" + id
			}
			return "gmail_" + Hash(gmailSubject(n)+gmailSender(n))
		},
		IsIncoming: func(n dom.Node, _ string) bool {
			if n.HasClass("zA") {
				return gmailUnread(n)
			}
			name := n.ProbeAttr("from", "name")
			if name == "" {
				name = n.ProbeText("from")
			}
			return !strings.EqualFold(name, "me")
		},
		ExtractText: func(n dom.Node) string {
			if n.HasClass("zA") {
				text := gmailSubject(n)
				if s := gmailSnippet(n); s != "" {
					text += " — " + s
				}
				return text
			}
			return n.ProbeText("body")
		},
		ExtractSender: func(n dom.Node) string {
			if n.HasClass("zA") {
				return gmailSender(n)
			}
			if name := n.ProbeAttr("from", "name"); name != "" {
				return name
			}
			return n.ProbeText("from")
		},
	})
	return g
}

func (g *Gmail) FirstPollDelay() time.Duration { return g.Timing.FirstPoll }
func (g *Gmail) PollInterval() time.Duration   { return g.Timing.Poll }

func gmailUnread(n dom.Node) bool {
	if n.HasClass("zE") || n.Probe("bold").Found {
		return true
	}
	return strings.Contains(strings.ToLower(n.Attr("aria-label")), "unread")
}

func gmailSender(n dom.Node) string {
	for _, p := range []string{"named", "zf", "yp", "email"} {
		if !n.Probe(p).Found {
			continue
		}
		if name := n.ProbeAttr(p, "name"); name != "" {
			return name
		}
		return n.ProbeText(p)
	}
	return "Unknown"
}

func gmailSubject(n dom.Node) string {
	for _, p := range []string{"bog", "bqe", "xt", "y6"} {
		if n.Probe(p).Found {
			return n.ProbeText(p)
		}
	}
	return "No Subject"
}

func gmailSnippet(n dom.Node) string {
	return snippetDash.ReplaceAllString(n.ProbeText("snippet"), "")
}

func gmailKey(n dom.Node) string {
	return Hash(gmailSender(n) + gmailSubject(n) + gmailSnippet(n))
}

// PollInbox lists unread rows. When the list is empty and the view is not
// the inbox it navigates back and reports nothing.
func (g *Gmail) PollInbox(ctx context.Context, page dom.Page) ([]InboxItem, error) {
	rows, err := g.LocateMessages(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("platform: gmail: list rows: %w", err)
	}
	if len(rows) == 0 {
		raw, err := page.URL(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform: gmail: read url: %w", err)
		}
		if !strings.Contains(urlPart(raw, "hash"), "inbox") {
			return nil, g.navigateInbox(ctx, page, raw)
		}
		return nil, nil
	}
	var items []InboxItem
	for _, n := range rows {
		if !gmailUnread(n) {
			continue
		}
		sender, subject, snippet := gmailSender(n), gmailSubject(n), gmailSnippet(n)
		name := subject
		if name == "" {
			name = sender
		}
		items = append(items, InboxItem{
			Key:      gmailKey(n),
			NodeKey:  n.Key,
			ChatID:   "gmail_thread_" + Hash(sender+subject),
			ChatName: name,
			Text:     emailText(sender, subject, snippet),
			Sender:   sender,
		})
	}
	return items, nil
}

// ExistingKeys returns the key of every listed row.
func (g *Gmail) ExistingKeys(ctx context.Context, page dom.Page) ([]string, error) {
	rows, err := g.LocateMessages(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("platform: gmail: list rows: %w", err)
	}
	keys := make([]string, 0, len(rows))
	for _, n := range rows {
		keys = append(keys, gmailKey(n))
	}
	return keys, nil
}

// ReplyTo opens the row, replies and returns to the inbox. A reply that
// cannot be sent is left as a draft.
func (g *Gmail) ReplyTo(ctx context.Context, page dom.Page, item InboxItem, text string) error {
	if err := page.ClickNode(ctx, item.NodeKey); err != nil {
		return fmt.Errorf("platform: gmail: open row: %w", err)
	}
	if err := sleep(ctx, g.Timing.Open); err != nil {
		return err
	}

	if _, err := page.WaitFor(ctx, g.Timing.ElementWait, gmailReply...); err == nil {
		err = page.Click(ctx, gmailReply...)
		if err != nil {
			return fmt.Errorf("platform: gmail: click reply: %w", err)
		}
	} else if err := page.Click(ctx, gmailScan...); err != nil {
		g.backToInbox(ctx, page)
		return fmt.Errorf("platform: gmail: reply button: %w", err)
	}
	if err := sleep(ctx, g.Timing.ReplySettle); err != nil {
		return err
	}

	composer, err := page.WaitFor(ctx, g.Timing.ElementWait, gmailCompose...)
	if err != nil {
		g.backToInbox(ctx, page)
		return fmt.Errorf("platform: gmail: composer: %w", err)
	}
	if err := TypeText(ctx, page, composer, text); err != nil {
		return err
	}

	err = page.Click(ctx, gmailSend...)
	switch {
	case err == nil:
		if err := sleep(ctx, g.Timing.SendSettle); err != nil {
			return err
		}
	case errors.Is(err, dom.ErrNotFound):
		// Unsent text stays in the composer as a draft.
	default:
		return fmt.Errorf("platform: gmail: send: %w", err)
	}
	g.backToInbox(ctx, page)
	return nil
}

func (g *Gmail) backToInbox(ctx context.Context, page dom.Page) {
	if page.Click(ctx, gmailBack...) == nil {
		return
	}
	if page.Click(ctx, gmailInboxLink...) == nil {
		return
	}
	raw, _ := page.URL(ctx)
	g.navigateInbox(ctx, page, raw)
}

func (g *Gmail) navigateInbox(ctx context.Context, page dom.Page, raw string) error {
	base := raw
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		base = strings.TrimSuffix(g.HomeURL(), "#inbox")
	}
	if err := page.Navigate(ctx, base+"#inbox"); err != nil {
		return fmt.Errorf("platform: gmail: navigate inbox: %w", err)
	}
	return nil
}

var _ InboxPoller = (*Gmail)(nil)

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

const outlookUnread = `div[data-convid][aria-label*="Unread"], tr[aria-label*="Unread"], [class*="listItem"][aria-label*="Unread"]`

var (
	outlookFrom    = regexp.MustCompile(`(?i)from\s+([^,]+)`)
	outlookReply   = []string{`button[aria-label="Reply"]`, `button[title="Reply"]`, `[data-icon-name="Reply"]`}
	outlookCompose = []string{
		`div[role="textbox"][aria-label*="Message body"]`,
		`div[aria-label="Message body"][contenteditable="true"]`,
		`div.dFCbN[contenteditable="true"]`,
	}
	outlookSend = []string{`button[aria-label="Send"]:not([disabled])`, `button[title="Send"]:not([disabled])`}
)

// Outlook answers unread conversations on outlook.office.com and
// outlook.live.com.
type Outlook struct {
	*Base
	Timing InboxTiming
}

// NewOutlook returns the Outlook adapter.
func NewOutlook() *Outlook {
	o := &Outlook{Timing: DefaultInboxTiming(3 * time.Second)}
	o.Base = NewBase(Profile{
		ID:      "outlook",
		HomeURL: "https://outlook.office.com/mail/",
		Ready:   []string{`[role="main"]`, `[data-app-section="ConversationContainer"]`},
		Row:     `div[data-convid], [aria-label*="Unread"], tr[aria-label]`,
		Probes: map[string]string{
			"convid":    "[data-convid]",
			"itemid":    "[data-item-id]",
			"persona":   `[data-testid="SenderPersona"], .lpc-hoverTarget, [aria-label*="From"]`,
			ProbeSender: `[data-testid="SenderPersona"], .lpc-hoverTarget, [class*="senderName"]`,
			"body":      `div[aria-label="Message body"], [role="document"] div, .wide-content-host`,
		},
		ChatHeader:   []string{`[role="heading"][aria-level="2"]`, ".allowTextSelection span", `[data-app-section="SubjectLine"]`},
		ChatFallback: "Inbox",
		ChatIDSources: []ChatIDSource{
			{Selector: "[data-convid]", Attrs: []string{"data-convid"}, Prefix: "ol_"},
			{URLPart: "href", Pattern: regexp.MustCompile(`id=([^&]+)`), Prefix: "ol_"},
		},
		ChatIDFallback: "ol_inbox",
		Composer:       outlookCompose,
		SendButtons:    []string{`button[aria-label="Send"]:not([disabled])`, `button[title="Send"]:not([disabled])`, `button:has([data-icon-name="Send"])`},
		SendKey:        dom.CtrlEnter,
		MessageID: func(n dom.Node) string {
			if id := n.Attr("data-convid"); id != "" {
				return "ol_" + id
			}
			if id := n.ClosestAttr("convid", "data-convid"); id != "" {
				return "ol_" + id
			}
			if id := n.Attr("data-item-id"); id != "" {
				return "ol_" + id
			}
			if id := n.ClosestAttr("itemid", "data-item-id"); id != "" {
				return "ol_" + id
			}
			return "ol_" + Hash(truncate(n.Attr("aria-label"), 120))
		},
		IsIncoming: func(n dom.Node, _ string) bool {
			if strings.Contains(strings.ToLower(n.Attr("aria-label")), "unread") {
				return true
			}
			sender := strings.ToLower(n.ProbeText("persona"))
			return sender != "me" && sender != "you"
		},
		ExtractText: func(n dom.Node) string {
			if aria := n.Attr("aria-label"); len(aria) > 10 {
				return aria
			}
			return n.ProbeText("body")
		},
		ExtractSender: func(n dom.Node) string {
			if s := n.ProbeText(ProbeSender); s != "" {
				return s
			}
			if m := outlookFrom.FindStringSubmatch(n.Attr("aria-label")); len(m) > 1 {
				return m[1]
			}
			return ""
		},
	})
	return o
}

func (o *Outlook) FirstPollDelay() time.Duration { return o.Timing.FirstPoll }
func (o *Outlook) PollInterval() time.Duration   { return o.Timing.Poll }

func (o *Outlook) unreadRows(ctx context.Context, page dom.Page) ([]dom.Node, error) {
	rows, err := page.Snapshot(ctx, dom.Query{Row: outlookUnread})
	if err != nil {
		return nil, fmt.Errorf("platform: outlook: list rows: %w", err)
	}
	return rows, nil
}

func outlookKey(n dom.Node) string {
	return Hash(truncate(n.Attr("aria-label"), 150))
}

// parseOutlookLabel splits a list row's aria-label. The label reads
// "sender, subject, preview..., date, time".
func parseOutlookLabel(aria string) (sender, subject, snippet string) {
	parts := strings.Split(aria, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	sender, subject = "Unknown", "No Subject"
	if len(parts) > 0 && parts[0] != "" {
		sender = parts[0]
	}
	if len(parts) > 1 && parts[1] != "" {
		subject = parts[1]
	}
	if len(parts) > 4 {
		snippet = strings.Join(parts[2:len(parts)-2], ", ")
	}
	return sender, subject, snippet
}

// PollInbox lists rows whose aria-label marks them unread.
func (o *Outlook) PollInbox(ctx context.Context, page dom.Page) ([]InboxItem, error) {
	rows, err := o.unreadRows(ctx, page)
	if err != nil {
		return nil, err
	}
	items := make([]InboxItem, 0, len(rows))
	for _, n := range rows {
		key := outlookKey(n)
		sender, subject, snippet := parseOutlookLabel(n.Attr("aria-label"))
		items = append(items, InboxItem{
			Key:      key,
			NodeKey:  n.Key,
			ChatID:   "ol_" + key,
			ChatName: subject,
			Text:     emailText(sender, subject, snippet),
			Sender:   sender,
		})
	}
	return items, nil
}

// ExistingKeys returns the keys of the rows unread at startup.
func (o *Outlook) ExistingKeys(ctx context.Context, page dom.Page) ([]string, error) {
	rows, err := o.unreadRows(ctx, page)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(rows))
	for _, n := range rows {
		keys = append(keys, outlookKey(n))
	}
	return keys, nil
}

// ReplyTo opens the conversation and replies in the reading pane. Outlook
// keeps the list visible beside the pane, so there is no navigation back.
func (o *Outlook) ReplyTo(ctx context.Context, page dom.Page, item InboxItem, text string) error {
	if err := page.ClickNode(ctx, item.NodeKey); err != nil {
		return fmt.Errorf("platform: outlook: open row: %w", err)
	}
	if err := sleep(ctx, o.Timing.Open); err != nil {
		return err
	}
	btn, err := page.WaitFor(ctx, o.Timing.ElementWait, outlookReply...)
	if err != nil {
		return fmt.Errorf("platform: outlook: reply button: %w", err)
	}
	if err := page.Click(ctx, btn); err != nil {
		return fmt.Errorf("platform: outlook: click reply: %w", err)
	}
	if err := sleep(ctx, o.Timing.ReplySettle); err != nil {
		return err
	}
	composer, err := page.WaitFor(ctx, o.Timing.ElementWait, outlookCompose...)
	if err != nil {
		return fmt.Errorf("platform: outlook: composer: %w", err)
	}
	if err := TypeText(ctx, page, composer, text); err != nil {
		return err
	}
	if err := page.Click(ctx, outlookSend...); err != nil && !errors.Is(err, dom.ErrNotFound) {
		return fmt.Errorf("platform: outlook: send: %w", err)
	}
	return nil
}

var _ InboxPoller = (*Outlook)(nil)

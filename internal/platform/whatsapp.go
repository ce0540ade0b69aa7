package platform

import (
	"regexp"
	"strings"

	"github.com/zulandar/airminal/internal/dom"
)

var waSender = regexp.MustCompile(`\]\s*(.+?):`)

// NewWhatsApp returns the adapter for web.whatsapp.com.
func NewWhatsApp() *Base {
	return NewBase(Profile{
		ID:      "whatsapp",
		HomeURL: "https://web.whatsapp.com/",
		Ready:   []string{"#main"},
		Row:     "[data-id]",
		Probes: map[string]string{
			ProbeIn:   ".message-in",
			ProbeOut:  ".message-out",
			ProbeText: `.copyable-text [class*="selectable-text"], .copyable-text span[dir], ._ao3e, .message-text`,
			"pre":     "[data-pre-plain-text]",
		},
		ChatHeader:     []string{"#main header span[title]"},
		ChatIDFallback: "unknown",
		Composer: []string{
			`#main footer [contenteditable="true"][data-tab="10"]`,
			`#main footer [contenteditable="true"]`,
		},
		SendButtons: []string{
			`#main footer [data-icon="send"]`,
			`#main footer [data-testid="send"]`,
			`#main footer button[aria-label="Send"]`,
		},
		IsIncoming: func(n dom.Node, _ string) bool {
			if n.Matches(ProbeOut) || n.HasClass("message-out") {
				return false
			}
			// Own messages carry ids like "true_<jid>_<id>".
			if strings.HasPrefix(n.Attr("data-id"), "true_") {
				return false
			}
			return n.Matches(ProbeIn) || n.HasClass("message-in")
		},
		ExtractSender: func(n dom.Node) string {
			m := waSender.FindStringSubmatch(n.ProbeAttr("pre", "data-pre-plain-text"))
			if len(m) < 2 {
				return ""
			}
			return m[1]
		},
	})
}

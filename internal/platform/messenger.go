package platform

import (
	"regexp"
	"strings"

	"github.com/zulandar/airminal/internal/dom"
)

// NewMessenger returns the adapter for www.messenger.com.
func NewMessenger() *Base {
	return NewBase(Profile{
		ID:      "messenger",
		HomeURL: "https://www.messenger.com/",
		Ready:   []string{`[role="main"]`},
		Row:     `[data-testid="incoming_group"], [data-testid="message-container"], div[class*="message"]`,
		Probes: map[string]string{
			ProbeText:   `div[dir="auto"], [data-testid="message-text"], span[dir="auto"]`,
			"auto":      `div[dir="auto"]`,
			"testid":    "[data-testid]",
			"aria":      "[aria-label]",
			ProbeSender: `[data-testid="message-sender"]`,
			"group":     "[data-testid]" + dom.ScopeSep + "h4, h5",
		},
		ChatHeader: []string{
			`[data-testid="conversation-title"]`,
			`[role="main"] header h2`,
			`[role="main"] header span`,
		},
		ChatIDSources: []ChatIDSource{
			{Pattern: regexp.MustCompile(`/t/(\d+)`), Prefix: "messenger_"},
		},
		Composer: []string{
			`[role="textbox"][contenteditable="true"]`,
			`[data-testid="message-input"] [contenteditable="true"]`,
			`div[contenteditable="true"][aria-label*="message"]`,
		},
		SendButtons: []string{
			`[data-testid="send-button"]`,
			`[aria-label="Send"]`,
			`[aria-label="Press enter to send"]`,
		},
		MessageID: func(n dom.Node) string {
			return "msg_" + Hash(n.ProbeText("auto")+n.ClosestAttr("testid", "data-testid")+n.ClassString())
		},
		IsIncoming: func(n dom.Node, _ string) bool {
			if n.AlignedEnd {
				return false
			}
			testID := n.ClosestAttr("testid", "data-testid")
			if strings.Contains(testID, "outgoing") {
				return false
			}
			if strings.Contains(testID, "incoming") {
				return true
			}
			aria := strings.ToLower(n.ClosestAttr("aria", "aria-label"))
			if strings.HasPrefix(aria, "you sent") || strings.HasPrefix(aria, "you ") {
				return false
			}
			return true
		},
		ExtractSender: func(n dom.Node) string {
			return firstText(n, ProbeSender, "group")
		},
	})
}

package platform

import (
	"regexp"

	"github.com/zulandar/airminal/internal/dom"
)

// NewXTwitter returns the adapter for X direct messages.
func NewXTwitter() *Base {
	return NewBase(Profile{
		ID:      "x_twitter",
		HomeURL: "https://x.com/messages",
		Ready:   []string{`[data-testid="DmActivityContainer"]`, `[data-testid="DMDrawer"]`, `section[role="region"]`},
		Row:     `[data-testid="messageEntry"], [data-testid="tweetText"], div[data-message-id]`,
		Probes: map[string]string{
			ProbeText:   `[data-testid="tweetText"], [data-testid="messageText"], div[lang] span`,
			"tweet":     `[data-testid="tweetText"]`,
			"mid":       "[data-message-id]",
			ProbeSender: `[data-testid="User-Name"]`,
			"entry":     `[data-testid="messageEntry"]` + dom.ScopeSep + `span[dir="ltr"]`,
		},
		ChatHeader: []string{
			`[data-testid="DMDrawerHeader"] span`,
			`[data-testid="conversation-header"] span`,
			`h2[role="heading"]`,
		},
		ChatIDSources: []ChatIDSource{
			{Pattern: regexp.MustCompile(`/messages/(\d+)`), Prefix: "x_"},
		},
		Composer: []string{
			`[data-testid="dmComposerTextInput"]`,
			`[data-testid="DMComposer_TextInput"] [contenteditable="true"]`,
		},
		SendButtons: []string{`[data-testid="dmComposerSendButton"]`, `[data-testid="DMComposer_SendButton"]`},
		SendKey:     dom.Enter,
		MessageID: func(n dom.Node) string {
			if mid := n.ClosestAttr("mid", "data-message-id"); mid != "" {
				return "x_" + mid
			}
			text := n.ProbeText("tweet")
			if text == "" {
				text = n.Text
			}
			return "x_" + Hash(n.Attr("data-testid")+truncate(text, 80))
		},
		IsIncoming: func(n dom.Node, _ string) bool {
			return !n.AlignedEnd
		},
		ExtractSender: func(n dom.Node) string {
			return firstText(n, ProbeSender, "entry")
		},
	})
}

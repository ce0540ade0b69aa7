package platform

import (
	"regexp"
	"strings"

	"github.com/zulandar/airminal/internal/dom"
)

// NewDiscord returns the adapter for discord.com/channels. Discord has no
// send button; replies go out with Enter.
func NewDiscord() *Base {
	return NewBase(Profile{
		ID:      "discord",
		HomeURL: "https://discord.com/channels/@me",
		Ready:   []string{`[data-list-id="chat-messages"]`, `[class*="chatContent"]`},
		Row:     `[id^="chat-messages-"], li[id^="chat-messages-"], [class*="messageListItem"]`,
		Probes: map[string]string{
			ProbeText:   `[id^="message-content-"], [class*="messageContent"], div[class*="markup"]`,
			"content":   `[id^="message-content-"]`,
			"item":      `[id^="chat-messages-"]`,
			ProbeSender: `[class*="username"], [id^="message-username-"]`,
			"itemuser":  `[id^="chat-messages-"]` + dom.ScopeSep + `[class*="username"]`,
			"groupuser": `[class*="groupStart"]` + dom.ScopeSep + `[class*="username"]`,
		},
		ChatHeader: []string{
			`h1[class*="title"]`,
			`[class*="channelName"]`,
			`[data-text-variant="heading-lg/semibold"]`,
		},
		ChatIDSources: []ChatIDSource{
			{Pattern: regexp.MustCompile(`/channels/(\d+|@me)/(\d+)`), Prefix: "dc_"},
		},
		Composer: []string{
			`[role="textbox"][data-slate-editor="true"]`,
			`div[class*="slateTextArea"] [contenteditable="true"]`,
			`[aria-label*="Message"][contenteditable="true"]`,
		},
		SendKey: dom.Enter,
		SelfName: []string{
			`[class*="nameTag"]`,
			`[class*="panelTitleContainer"] [class*="username"]`,
			`section[aria-label*="User area"] [class*="username"]`,
		},
		MessageID: func(n dom.Node) string {
			if id := n.Attr("id"); id != "" {
				return "dc_" + id
			}
			if id := n.ClosestAttr("item", "id"); id != "" {
				return "dc_" + id
			}
			if id := n.ProbeAttr("content", "id"); id != "" {
				return "dc_" + id
			}
			return "dc_" + Hash(truncate(n.Text, 100))
		},
		IsIncoming: func(n dom.Node, self string) bool {
			sender := firstText(n, ProbeSender, "itemuser", "groupuser")
			if sender == "" || self == "" {
				return true
			}
			return !strings.EqualFold(sender, self)
		},
		ExtractSender: func(n dom.Node) string {
			return firstText(n, ProbeSender, "itemuser")
		},
	})
}

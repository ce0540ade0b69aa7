package platform

import (
	"regexp"
	"strings"

	"github.com/zulandar/airminal/internal/dom"
)

// NewTeams returns the adapter for Microsoft Teams on the web.
func NewTeams() *Base {
	return NewBase(Profile{
		ID:      "teams",
		HomeURL: "https://teams.microsoft.com/",
		Ready:   []string{`[data-tid="message-pane-list"]`, ".ts-message-list-container", `[data-tid="chat-pane"]`},
		Row:     `[data-tid="chat-pane-message"], .ts-message, [data-tid^="message-"]`,
		Probes: map[string]string{
			"bodycontent": `.message-body-content, div[data-tid="messageBodyContent"]`,
			"document":    `div[role="document"]`,
			"para":        ".message-body div p",
			"time":        `time, [data-tid="messageTimeStamp"]`,
			"msgtid":      `[data-tid^="message-"]`,
			"pane":        `[data-tid="chat-pane-message"]`,
			ProbeSender:   `[data-tid="message-author-name"], .ts-message-list-item__header .name, .message-author`,
		},
		ChatHeader: []string{
			`[data-tid="chat-header-title"]`,
			".ts-channel-header-title",
			`[data-tid="conversation-title"]`,
		},
		ChatIDSources: []ChatIDSource{
			{URLPart: "href", Pattern: regexp.MustCompile(`conversations/([^?&/]+)`), Prefix: "teams_"},
			{Selector: `[data-tid="chat-pane"], [data-tid="message-pane-list"]`, Attrs: []string{"data-convid"}, Prefix: "teams_"},
		},
		Composer: []string{
			`[data-tid="ckeditor"] [contenteditable="true"]`,
			`div[role="textbox"][contenteditable="true"][data-tid="newMessageEditor"]`,
			`[data-tid="messageEditor"] [contenteditable="true"]`,
			`div[contenteditable="true"][aria-label*="message"]`,
		},
		SendButtons: []string{
			`[data-tid="newMessageCommands-send"]:not([disabled])`,
			`button[name="send"]:not([disabled])`,
			`[data-tid="sendMessageButton"]:not([disabled])`,
		},
		SendKey:  dom.Enter,
		SelfName: []string{`[data-tid="me-control"] span`, "#personDropdown span", `[data-tid="app-header-profile"] span`},
		MessageID: func(n dom.Node) string {
			tid := firstAttr(n, "data-tid", "data-mid")
			if tid == "" {
				tid = n.ClosestAttr("msgtid", "data-tid")
			}
			if tid != "" {
				return "teams_" + tid
			}
			ts := n.ProbeAttr("time", "datetime")
			if ts == "" {
				ts = n.ProbeText("time")
			}
			return "teams_" + Hash(ts+truncate(n.ProbeText("bodycontent"), 80))
		},
		IsIncoming: func(n dom.Node, self string) bool {
			for _, attr := range []string{"data-is-from-me", "data-from-me"} {
				if n.Attr(attr) == "true" || n.ClosestAttr("pane", attr) == "true" {
					return false
				}
			}
			cls := n.ClassString() + " " + n.ClosestAttr("pane", "class")
			if containsAny(cls, "from-me", "currentUser", "is-from-me") {
				return false
			}
			sender := n.ProbeText(ProbeSender)
			return self == "" || !strings.EqualFold(sender, self)
		},
		ExtractText: func(n dom.Node) string {
			return firstText(n, "bodycontent", "document", "para")
		},
		ExtractSender: func(n dom.Node) string {
			return n.ProbeText(ProbeSender)
		},
	})
}

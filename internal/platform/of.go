package platform

import (
	"regexp"

	"github.com/zulandar/airminal/internal/dom"
)

// NewOF returns the adapter for onlyfans.com chats.
func NewOF() *Base {
	return NewBase(Profile{
		ID:      "of",
		HomeURL: "https://onlyfans.com/my/chats",
		Ready:   []string{".b-chat__messages-wrapper", ".b-chats__conversations-content", `[class*="chat-messages"]`},
		Row:     `.b-chat__message, .m-chat-message, [class*="chat-message"]`,
		Probes: map[string]string{
			ProbeText:   `.b-chat__message__text, .m-chat-message__text, [class*="message__text"]`,
			"bubble":    `[class*="bubble"], [class*="content"]`,
			"media":     `img, video, [class*="media"], [class*="photo"]`,
			"time":      `.b-chat__message__time, [class*="message__time"], time`,
			"dataid":    "[data-id]",
			"msg":       ".b-chat__message",
			ProbeSender: `.b-chat__message__user-name, [class*="message__username"], .g-user-name`,
		},
		ChatHeader: []string{
			".b-chat__header__name",
			".b-chat__header .g-user-name",
			`[class*="chat-header"] .g-user-name`,
			`[class*="chat-header"] a[href*="/"]`,
		},
		ChatIDSources: []ChatIDSource{
			{Pattern: regexp.MustCompile(`/my/chats/chat/(\d+)`), Prefix: "of_"},
			{Pattern: regexp.MustCompile(`/messages/(\d+)`), Prefix: "of_"},
			{Selector: "[data-chat-id], [data-conversation-id]", Attrs: []string{"data-chat-id", "data-conversation-id"}, Prefix: "of_"},
		},
		Composer: []string{
			".b-chat__input textarea",
			`.b-chat__input [contenteditable="true"]`,
			`[class*="chat-input"] textarea`,
			`[class*="chat-input"] [contenteditable="true"]`,
		},
		SendButtons: []string{
			".b-chat__btn-submit:not([disabled])",
			".b-chat__send-btn:not([disabled])",
			`[class*="chat-input"] button[type="submit"]:not([disabled])`,
			`button.g-btn.m-rounded[type="submit"]:not([disabled])`,
		},
		SendKey: dom.Enter,
		MessageID: func(n dom.Node) string {
			id := firstAttr(n, "data-id", "data-message-id")
			if id == "" {
				id = n.ClosestAttr("dataid", "data-id")
			}
			if id != "" {
				return "of_" + id
			}
			return "of_" + Hash(truncate(n.ProbeText(ProbeText), 80)+n.ProbeText("time"))
		},
		IsIncoming: func(n dom.Node, _ string) bool {
			if n.AlignedEnd {
				return false
			}
			cls := n.ClassString() + " " + n.ClosestAttr("msg", "class")
			if containsAny(cls, "from-me", "fromMe", "outgoing", "is-mine") {
				return false
			}
			own := firstAttr(n, "data-is-own", "data-from-me")
			return own != "true" && own != "1"
		},
		ExtractText: func(n dom.Node) string {
			if t := n.ProbeText(ProbeText); t != "" {
				return t
			}
			// Media-only bubbles carry no text to reply to.
			return n.ProbeText("bubble")
		},
		ExtractSender: func(n dom.Node) string {
			return n.ProbeText(ProbeSender)
		},
	})
}

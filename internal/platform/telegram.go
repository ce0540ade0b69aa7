package platform

import (
	"regexp"
	"strings"

	"github.com/zulandar/airminal/internal/dom"
)

// NewTelegram returns the adapter for web.telegram.org (K and A clients).
func NewTelegram() *Base {
	return NewBase(Profile{
		ID:      "telegram",
		HomeURL: "https://web.telegram.org/k/",
		Ready:   []string{"#column-center .chat", ".chat-container", "#MiddleColumn"},
		Row:     ".message, .Message, [data-mid]",
		Probes: map[string]string{
			ProbeText:   ".text-content, .message-text, .text-entity, [data-entity-type]",
			ProbeOut:    ".is-out, .own",
			"span":      "span:not(.time):not(.message-time)",
			ProbeSender: ".name-content, .peer-title, .message-author",
		},
		ChatHeader: []string{
			".chat-info .user-title",
			".top-bar .peer-title",
			".ChatInfo .title",
			"#column-center .chat-header .content .title span",
		},
		ChatIDSources: []ChatIDSource{
			{URLPart: "hash", Pattern: regexp.MustCompile(`#(-?\d+)`), Prefix: "tg_"},
			{URLPart: "hash", Pattern: regexp.MustCompile(`@(\w+)`), Prefix: "tg_"},
		},
		Composer: []string{
			"#editable-message-text",
			`.input-message-input[contenteditable="true"]`,
			`div.input-field-input[contenteditable="true"]`,
			`[contenteditable="true"].composer-input`,
		},
		SendButtons: []string{".send-btn:not(.hide)", ".Button.send", "button.send-btn", ".main-button.send"},
		SendKey:     dom.Enter,
		MessageID: func(n dom.Node) string {
			if id := firstAttr(n, "data-mid", "data-message-id", "data-msg-id"); id != "" {
				return id
			}
			return "tg_" + Hash(truncate(n.Text, 100))
		},
		IsIncoming: func(n dom.Node, _ string) bool {
			if n.HasClass("is-out") || n.HasClass("own") || n.Probe(ProbeOut).Closest {
				return false
			}
			cls := n.ClassString()
			return !(strings.Contains(cls, "out") && strings.Contains(cls, "message"))
		},
		ExtractText: func(n dom.Node) string {
			if t := n.ProbeText(ProbeText); t != "" {
				return t
			}
			if t := n.ProbeText("span"); len([]rune(t)) > 1 {
				return t
			}
			return ""
		},
		ExtractSender: func(n dom.Node) string {
			return n.ProbeText(ProbeSender)
		},
	})
}

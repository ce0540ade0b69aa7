package platform

import (
	"regexp"
	"strings"

	"github.com/zulandar/airminal/internal/dom"
)

// NewSlack returns the adapter for app.slack.com.
func NewSlack() *Base {
	return NewBase(Profile{
		ID:      "slack",
		HomeURL: "https://app.slack.com/client",
		Ready:   []string{".p-workspace__primary_view", `[data-qa="message_pane"]`, ".c-virtual_list__scroll_container"},
		Row:     `[data-qa="virtual-list-item"], .c-message_kit__message, [data-qa="message_container"]`,
		Probes: map[string]string{
			"qatext":    `[data-qa="message-text"]`,
			"rich":      ".p-rich_text_section",
			"body":      ".c-message__body",
			"kit":       ".c-message_kit__text",
			"key":       "[data-item-key]",
			"ts":        "[data-ts]",
			ProbeSender: `[data-qa="message_sender_name"], .c-message__sender button, .c-message_kit__sender`,
		},
		ChatHeader: []string{
			`[data-qa="channel_header_title"]`,
			".p-channel_header__title button span",
			`[data-qa="channel-header-channel-name"]`,
		},
		ChatIDSources: []ChatIDSource{
			{Pattern: regexp.MustCompile(`/([CDG][A-Z0-9]+)(?:/|$)`), Prefix: "slack_"},
		},
		Composer: []string{
			`[data-qa="message_input"] [contenteditable="true"]`,
			`.ql-editor[contenteditable="true"]`,
			`[data-qa="texty_composer_input"]`,
			`div[contenteditable="true"][role="textbox"]`,
		},
		SendButtons: []string{
			`[data-qa="texty_send_button"]:not([disabled])`,
			`[aria-label="Send message"]:not([disabled])`,
			"button.c-texty_input__button--send:not([disabled])",
		},
		SendKey:  dom.Enter,
		SelfName: []string{`[data-qa="user-button"] span`, ".p-ia__sidebar_header__user__name"},
		MessageID: func(n dom.Node) string {
			ts := firstAttr(n, "data-item-key", "data-ts")
			if ts == "" {
				ts = n.ClosestAttr("key", "data-item-key")
			}
			if ts == "" {
				ts = n.ClosestAttr("ts", "data-ts")
			}
			if ts != "" {
				return "slack_" + ts
			}
			return "slack_" + Hash(truncate(firstText(n, "kit", "rich"), 100))
		},
		IsIncoming: func(n dom.Node, self string) bool {
			sender := n.ProbeText(ProbeSender)
			if sender == "" {
				return true
			}
			if self != "" && sender == self {
				return false
			}
			return !strings.EqualFold(sender, "you")
		},
		ExtractText: func(n dom.Node) string {
			return firstText(n, "qatext", "rich", "body", "kit")
		},
		ExtractSender: func(n dom.Node) string {
			return n.ProbeText(ProbeSender)
		},
	})
}

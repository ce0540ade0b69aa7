package platform

import (
	"regexp"
	"strings"

	"github.com/zulandar/airminal/internal/dom"
)

// NewLinkedIn returns the adapter for LinkedIn messaging.
func NewLinkedIn() *Base {
	return NewBase(Profile{
		ID:      "linkedin",
		HomeURL: "https://www.linkedin.com/messaging/",
		Ready:   []string{".msg-conversation-card__content", ".msg-thread", `[data-test-id="conversation-thread"]`},
		Row:     `.msg-s-event-listitem, .msg-s-message-list__event, [data-test-id="message-event"]`,
		Probes: map[string]string{
			ProbeText:   `.msg-s-event-listitem__body, .msg-s-event-body-content p, [data-test-id="message-body"]`,
			"p":         "p",
			"time":      "time",
			"group":     ".msg-s-message-group",
			ProbeSender: ".msg-s-message-group" + dom.ScopeSep + ".msg-s-message-group__name, .msg-s-message-group__profile-link",
			"self":      "[data-is-from-self]",
		},
		ChatHeader: []string{
			".msg-conversation-card__participant-names",
			".msg-thread__link-to-profile h2",
			`[data-test-id="conversation-header"] span`,
			".msg-overlay-bubble-header__title",
		},
		ChatIDSources: []ChatIDSource{
			{Pattern: regexp.MustCompile(`/messaging/thread/(\d+)`), Prefix: "li_"},
			{Selector: ".msg-conversation-card--active, .msg-thread", Attrs: []string{"data-thread-urn", "data-conversation-id"}, Prefix: "li_"},
		},
		Composer: []string{
			`.msg-form__contenteditable [contenteditable="true"]`,
			`.msg-form__msg-content-container [contenteditable="true"]`,
			`div[role="textbox"][contenteditable="true"]`,
		},
		SendButtons: []string{
			".msg-form__send-button:not([disabled])",
			`button[type="submit"].msg-form__send-btn:not([disabled])`,
			".msg-form__send-toggle button:not([disabled])",
		},
		SendKey: dom.Enter,
		MessageID: func(n dom.Node) string {
			if urn := firstAttr(n, "data-event-urn", "data-id", "id"); urn != "" {
				return "li_" + urn
			}
			return "li_" + Hash(n.ProbeText(ProbeText)+n.ProbeAttr("time", "datetime"))
		},
		IsIncoming: func(n dom.Node, _ string) bool {
			if strings.Contains(n.ClosestAttr("group", "class"), "msg-s-message-group--is-sender") {
				return false
			}
			if strings.EqualFold(n.ProbeText(ProbeSender), "you") {
				return false
			}
			return n.ClosestAttr("self", "data-is-from-self") != "true"
		},
		ExtractText: func(n dom.Node) string {
			return firstText(n, ProbeText, "p")
		},
		ExtractSender: func(n dom.Node) string {
			return n.ProbeText(ProbeSender)
		},
	})
}

package platform

import (
	"regexp"
	"strings"

	"github.com/zulandar/airminal/internal/dom"
)

// NewInstagram returns the adapter for Instagram direct messages.
func NewInstagram() *Base {
	return NewBase(Profile{
		ID:      "instagram",
		HomeURL: "https://www.instagram.com/direct/inbox/",
		Ready:   []string{"main", `[role="main"]`},
		Row:     `div[role="row"], div[class*="message"]`,
		Probes: map[string]string{
			ProbeText:   `div[dir="auto"] span, div[dir="auto"], span[dir="auto"]`,
			"auto":      `div[dir="auto"]`,
			"class":     "[class]",
			"aria":      "[aria-label]",
			ProbeSender: `span[dir="auto"]`,
		},
		ChatHeader: []string{
			`main header a[href*="/"] span`,
			`main header div[role="button"] span`,
			"main header span",
		},
		ChatIDSources: []ChatIDSource{
			{Pattern: regexp.MustCompile(`/direct/t/(\d+)`), Prefix: "ig_"},
		},
		Composer: []string{
			`div[role="textbox"][contenteditable="true"]`,
			`textarea[placeholder*="Message"]`,
			`div[aria-label*="Message"][contenteditable="true"]`,
		},
		SendButtons: []string{`button[type="submit"]:not([disabled])`},
		SendKey:     dom.Enter,
		MessageID: func(n dom.Node) string {
			return "ig_" + Hash(n.ProbeText("auto")+n.ClosestAttr("class", "class"))
		},
		IsIncoming: func(n dom.Node, _ string) bool {
			if n.AlignedEnd {
				return false
			}
			aria := strings.ToLower(n.ClosestAttr("aria", "aria-label"))
			return !containsAny(aria, "you sent", "your message")
		},
		ExtractSender: func(n dom.Node) string {
			return n.ProbeText(ProbeSender)
		},
	})
}

// Package dom describes the page host the engine drives. A Page is one open
// tab of a messaging web app; the engine only ever reads snapshots of rows
// and issues simple actions against selectors, so the same logic runs
// against Chrome (package browser) or an in-memory FakePage.
package dom

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when none of the given selectors match, or when a
// wait times out.
var ErrNotFound = errors.New("dom: element not found")

// Query selects message rows and, for each row, evaluates named probes.
//
// A probe selector is evaluated twice: as row.querySelector(sel) and as
// row.closest(sel). The form "A >> B" instead evaluates B inside the row's
// closest A ancestor, with only the descendant half filled in.
type Query struct {
	Row    string            // selector for message rows
	Probes map[string]string // probe name -> selector relative to the row
}

// ScopeSep separates the ancestor scope from the selector in a scoped probe.
const ScopeSep = " >> "

// Probe is the result of evaluating one probe selector against a row.
type Probe struct {
	Found bool              // a descendant of the row matches
	Text  string            // trimmed text of that descendant
	Attrs map[string]string // its attributes

	Closest      bool // the row itself or one of its ancestors matches
	ClosestText  string
	ClosestAttrs map[string]string
}

// Node is a snapshot of one message row.
type Node struct {
	Key        string // host-assigned handle, usable with Page.ClickNode
	Attrs      map[string]string
	Classes    []string
	Text       string // trimmed textContent of the whole row
	AlignedEnd bool   // computed layout places the row on the trailing side
	Probes     map[string]Probe
}

// Attr returns the row attribute, or "".
func (n Node) Attr(name string) string {
	return n.Attrs[name]
}

// HasClass reports whether the row carries the class.
func (n Node) HasClass(class string) bool {
	for _, c := range n.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// Probe returns the named probe (zero value if it was not evaluated).
func (n Node) Probe(name string) Probe {
	return n.Probes[name]
}

// Matches reports whether the named probe matched inside or around the row.
func (n Node) Matches(name string) bool {
	p := n.Probes[name]
	return p.Found || p.Closest
}

// ProbeText returns the trimmed text of the probe's descendant match.
func (n Node) ProbeText(name string) string {
	return strings.TrimSpace(n.Probes[name].Text)
}

// ProbeAttr returns an attribute of the probe's descendant match.
func (n Node) ProbeAttr(name, attr string) string {
	return n.Probes[name].Attrs[attr]
}

// ClosestAttr returns an attribute of the row's closest match for the probe,
// which may be the row itself.
func (n Node) ClosestAttr(name, attr string) string {
	return n.Probes[name].ClosestAttrs[attr]
}

// ClassString returns the row's classes joined by spaces, like className.
func (n Node) ClassString() string {
	return strings.Join(n.Classes, " ")
}

// Key describes a synthetic keystroke.
type Key struct {
	Name  string // DOM key name, e.g. "Enter"
	Shift bool
	Ctrl  bool
}

var (
	Enter      = Key{Name: "Enter"}
	ShiftEnter = Key{Name: "Enter", Shift: true}
	CtrlEnter  = Key{Name: "Enter", Ctrl: true}
)

// File is an in-memory file handed to a file input.
type File struct {
	Name string
	MIME string
	Data []byte
}

// Page is the capability set a host tab provides. Methods that take a
// selector list try each selector in order and act on the first match.
type Page interface {
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error

	// Snapshot returns every row currently matching q.Row.
	Snapshot(ctx context.Context, q Query) ([]Node, error)
	// Watch streams batches of rows added under the first root that exists.
	// The channel closes when ctx is cancelled.
	Watch(ctx context.Context, roots []string, q Query) (<-chan []Node, error)

	Text(ctx context.Context, selectors ...string) (string, error)
	Attr(ctx context.Context, name string, selectors ...string) (string, error)
	Exists(ctx context.Context, selectors ...string) (bool, error)
	WaitFor(ctx context.Context, timeout time.Duration, selectors ...string) (string, error)

	Click(ctx context.Context, selectors ...string) error
	ClickNode(ctx context.Context, key string) error
	// ClickText clicks the first button-like element whose trimmed text equals
	// one of texts, searching inside scope ("" for the whole document).
	ClickText(ctx context.Context, scope string, texts ...string) error
	Focus(ctx context.Context, selector string) error
	Clear(ctx context.Context, selector string) error
	InsertText(ctx context.Context, text string) error
	PressKey(ctx context.Context, selector string, key Key) error
	NotifyInput(ctx context.Context, selector, data string) error
	SetFiles(ctx context.Context, selector string, files ...File) error
}

// SplitSelectors splits a comma separated selector list into alternatives,
// keeping commas that sit inside parentheses or brackets.
func SplitSelectors(list string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range list {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				if s := strings.TrimSpace(list[start:i]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(list[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

package dom

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// FakeElement is an element of a FakePage addressed by selector.
type FakeElement struct {
	Text  string
	Attrs map[string]string
}

// FakePage is an in-memory Page for tests. Rows are returned verbatim from
// Snapshot (queries are not interpreted), elements are looked up by exact
// selector string, and every action is recorded.
type FakePage struct {
	mu       sync.Mutex
	url      string
	rows     []Node
	elements map[string]*FakeElement
	buttons  map[string]bool
	actions  []string
	typed    strings.Builder
	watchers []chan []Node

	// OnClick runs after a successful Click, ClickNode or ClickText with the
	// selector, node key or button text that was hit. It may mutate the page.
	OnClick func(target string)
	// WatchErr, when set, is returned by Watch.
	WatchErr error
}

// NewFakePage returns an empty page at url.
func NewFakePage(url string) *FakePage {
	return &FakePage{
		url:      url,
		elements: make(map[string]*FakeElement),
		buttons:  make(map[string]bool),
	}
}

// SetElement creates or replaces an element.
func (f *FakePage) SetElement(selector, text string, attrs map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elements[selector] = &FakeElement{Text: text, Attrs: attrs}
}

// RemoveElement deletes an element.
func (f *FakePage) RemoveElement(selector string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.elements, selector)
}

// SetButton registers a clickable element matched by its text.
func (f *FakePage) SetButton(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttons[text] = true
}

// SetRows replaces the current rows without notifying watchers.
func (f *FakePage) SetRows(rows ...Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append([]Node(nil), rows...)
}

// Add appends rows and delivers them as one batch to every watcher.
func (f *FakePage) Add(rows ...Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	batch := append([]Node(nil), rows...)
	for _, w := range f.watchers {
		w <- batch
	}
}

// Actions returns the recorded actions in order.
func (f *FakePage) Actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

// Typed returns all text passed to InsertText, concatenated.
func (f *FakePage) Typed() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.typed.String()
}

// Watchers reports how many watches are active.
func (f *FakePage) Watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}

func (f *FakePage) record(format string, args ...interface{}) {
	f.actions = append(f.actions, fmt.Sprintf(format, args...))
}

func (f *FakePage) first(selectors []string) (string, *FakeElement) {
	for _, s := range selectors {
		if el, ok := f.elements[s]; ok {
			return s, el
		}
	}
	return "", nil
}

func (f *FakePage) clicked(target string) {
	if f.OnClick != nil {
		f.OnClick(target)
	}
}

func (f *FakePage) URL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *FakePage) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	f.record("navigate %s", url)
	return nil
}

func (f *FakePage) Snapshot(ctx context.Context, q Query) ([]Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Node(nil), f.rows...), nil
}

func (f *FakePage) Watch(ctx context.Context, roots []string, q Query) (<-chan []Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WatchErr != nil {
		return nil, f.WatchErr
	}
	ch := make(chan []Node, 128)
	f.watchers = append(f.watchers, ch)
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, w := range f.watchers {
			if w == ch {
				f.watchers = append(f.watchers[:i], f.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (f *FakePage) Text(ctx context.Context, selectors ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, el := f.first(selectors)
	if el == nil {
		return "", ErrNotFound
	}
	return strings.TrimSpace(el.Text), nil
}

func (f *FakePage) Attr(ctx context.Context, name string, selectors ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, el := f.first(selectors)
	if el == nil {
		return "", ErrNotFound
	}
	return el.Attrs[name], nil
}

func (f *FakePage) Exists(ctx context.Context, selectors ...string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, _ := f.first(selectors)
	return s != "", nil
}

func (f *FakePage) WaitFor(ctx context.Context, timeout time.Duration, selectors ...string) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		f.mu.Lock()
		s, _ := f.first(selectors)
		f.mu.Unlock()
		if s != "" {
			return s, nil
		}
		if time.Now().After(deadline) {
			return "", ErrNotFound
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (f *FakePage) Click(ctx context.Context, selectors ...string) error {
	f.mu.Lock()
	s, _ := f.first(selectors)
	if s == "" {
		f.mu.Unlock()
		return ErrNotFound
	}
	f.record("click %s", s)
	f.mu.Unlock()
	f.clicked(s)
	return nil
}

func (f *FakePage) ClickNode(ctx context.Context, key string) error {
	f.mu.Lock()
	found := false
	for _, r := range f.rows {
		if r.Key == key {
			found = true
			break
		}
	}
	if !found {
		f.mu.Unlock()
		return ErrNotFound
	}
	f.record("clicknode %s", key)
	f.mu.Unlock()
	f.clicked(key)
	return nil
}

func (f *FakePage) ClickText(ctx context.Context, scope string, texts ...string) error {
	f.mu.Lock()
	for _, t := range texts {
		if f.buttons[t] {
			f.record("clicktext %s", t)
			f.mu.Unlock()
			f.clicked(t)
			return nil
		}
	}
	f.mu.Unlock()
	return ErrNotFound
}

func (f *FakePage) Focus(ctx context.Context, selector string) error {
	return f.simple("focus", selector)
}

func (f *FakePage) Clear(ctx context.Context, selector string) error {
	return f.simple("clear", selector)
}

func (f *FakePage) simple(action, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.elements[selector]; !ok {
		return ErrNotFound
	}
	f.record("%s %s", action, selector)
	return nil
}

func (f *FakePage) InsertText(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed.WriteString(text)
	f.record("insert %s", text)
	return nil
}

func (f *FakePage) PressKey(ctx context.Context, selector string, key Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.elements[selector]; !ok {
		return ErrNotFound
	}
	name := key.Name
	if key.Ctrl {
		name = "ctrl+" + name
	}
	if key.Shift {
		name = "shift+" + name
		f.typed.WriteString("\n")
	}
	f.record("key %s %s", selector, name)
	return nil
}

func (f *FakePage) NotifyInput(ctx context.Context, selector, data string) error {
	return f.simple("input", selector)
}

func (f *FakePage) SetFiles(ctx context.Context, selector string, files ...File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.elements[selector]; !ok {
		return ErrNotFound
	}
	names := make([]string, len(files))
	for i, fl := range files {
		names[i] = fl.Name
	}
	f.record("files %s %s", selector, strings.Join(names, ","))
	return nil
}

var _ Page = (*FakePage)(nil)

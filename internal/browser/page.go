package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/logger"
)

// keyAttr is the attribute Snapshot writes on every row so ClickNode can
// find it again.
const keyAttr = "data-airminal-key"

// Page is one Chrome tab. It implements dom.Page.
type Page struct {
	ctx    context.Context // chromedp tab context
	cancel context.CancelFunc
	poll   time.Duration
	log    *logger.Logger

	mu      sync.Mutex
	tempDir string
}

var _ dom.Page = (*Page)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc, poll time.Duration, log *logger.Logger) *Page {
	return &Page{ctx: ctx, cancel: cancel, poll: poll, log: log}
}

// Close closes the tab and removes files staged for uploads.
func (p *Page) Close() {
	p.cancel()
	p.mu.Lock()
	dir := p.tempDir
	p.tempDir = ""
	p.mu.Unlock()
	if dir != "" {
		os.RemoveAll(dir)
	}
}

// run executes actions in the tab, aborting when either ctx or the tab
// ends.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(tctx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// callJS renders a call of fn with JSON-encoded args.
func callJS(fn string, args ...any) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("browser: encode js arg: %w", err)
		}
		parts[i] = string(b)
	}
	return "(" + fn + ")(" + strings.Join(parts, ", ") + ")", nil
}

func (p *Page) eval(ctx context.Context, out any, fn string, args ...any) error {
	expr, err := callJS(fn, args...)
	if err != nil {
		return err
	}
	if err := p.run(ctx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("browser: evaluate: %w", err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.run(ctx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("browser: location: %w", err)
	}
	return u, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

// jsQuery is the argument of jsSnapshot.
type jsQuery struct {
	Root     string            `json:"root,omitempty"`
	Row      string            `json:"row"`
	Probes   map[string]string `json:"probes"`
	KeyAttr  string            `json:"keyAttr"`
	ScopeSep string            `json:"scopeSep"`
}

type jsProbe struct {
	Found        bool              `json:"found"`
	Text         string            `json:"text"`
	Attrs        map[string]string `json:"attrs"`
	Closest      bool              `json:"closest"`
	ClosestText  string            `json:"closestText"`
	ClosestAttrs map[string]string `json:"closestAttrs"`
}

type jsNode struct {
	Key        string             `json:"key"`
	Attrs      map[string]string  `json:"attrs"`
	Classes    []string           `json:"classes"`
	Text       string             `json:"text"`
	AlignedEnd bool               `json:"alignedEnd"`
	Probes     map[string]jsProbe `json:"probes"`
}

func (n jsNode) node() dom.Node {
	out := dom.Node{
		Key:        n.Key,
		Attrs:      n.Attrs,
		Classes:    n.Classes,
		Text:       n.Text,
		AlignedEnd: n.AlignedEnd,
		Probes:     make(map[string]dom.Probe, len(n.Probes)),
	}
	for name, p := range n.Probes {
		out.Probes[name] = dom.Probe(p)
	}
	return out
}

func newJSQuery(root string, q dom.Query) jsQuery {
	return jsQuery{Root: root, Row: q.Row, Probes: q.Probes, KeyAttr: keyAttr, ScopeSep: dom.ScopeSep}
}

// snapshot returns nil, false when root is set and missing.
func (p *Page) snapshot(ctx context.Context, root string, q dom.Query) ([]dom.Node, bool, error) {
	var raw *[]jsNode
	if err := p.eval(ctx, &raw, jsSnapshot, newJSQuery(root, q)); err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	nodes := make([]dom.Node, 0, len(*raw))
	for _, n := range *raw {
		nodes = append(nodes, n.node())
	}
	return nodes, true, nil
}

func (p *Page) Snapshot(ctx context.Context, q dom.Query) ([]dom.Node, error) {
	nodes, _, err := p.snapshot(ctx, "", q)
	return nodes, err
}

// Watch polls the first existing root and emits rows it has not seen
// before. Rows present when Watch starts are not emitted.
func (p *Page) Watch(ctx context.Context, roots []string, q dom.Query) (<-chan []dom.Node, error) {
	root, err := p.firstSelector(ctx, roots)
	if err != nil {
		return nil, err
	}
	initial, ok, err := p.snapshot(ctx, root, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dom.ErrNotFound
	}
	seen := make(map[string]bool, len(initial))
	for _, n := range initial {
		seen[n.Key] = true
	}

	ch := make(chan []dom.Node, 16)
	go func() {
		defer close(ch)
		t := time.NewTicker(p.poll)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			nodes, ok, err := p.snapshot(ctx, root, q)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.log.Debug("browser: watch poll", "error", err)
				continue
			}
			if !ok {
				continue
			}
			var added []dom.Node
			for _, n := range nodes {
				if !seen[n.Key] {
					seen[n.Key] = true
					added = append(added, n)
				}
			}
			if len(added) == 0 {
				continue
			}
			select {
			case ch <- added:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

type firstResult struct {
	OK       bool              `json:"ok"`
	Selector string            `json:"selector"`
	Text     string            `json:"text"`
	Attrs    map[string]string `json:"attrs"`
}

func (p *Page) first(ctx context.Context, selectors []string) (firstResult, error) {
	var r firstResult
	if err := p.eval(ctx, &r, jsFirst, selectors); err != nil {
		return r, err
	}
	return r, nil
}

func (p *Page) firstSelector(ctx context.Context, selectors []string) (string, error) {
	r, err := p.first(ctx, selectors)
	if err != nil {
		return "", err
	}
	if !r.OK {
		return "", dom.ErrNotFound
	}
	return r.Selector, nil
}

func (p *Page) Text(ctx context.Context, selectors ...string) (string, error) {
	r, err := p.first(ctx, selectors)
	if err != nil {
		return "", err
	}
	if !r.OK {
		return "", dom.ErrNotFound
	}
	return r.Text, nil
}

func (p *Page) Attr(ctx context.Context, name string, selectors ...string) (string, error) {
	r, err := p.first(ctx, selectors)
	if err != nil {
		return "", err
	}
	if !r.OK {
		return "", dom.ErrNotFound
	}
	return r.Attrs[name], nil
}

func (p *Page) Exists(ctx context.Context, selectors ...string) (bool, error) {
	r, err := p.first(ctx, selectors)
	return r.OK, err
}

// WaitFor polls until one of selectors exists and returns it.
func (p *Page) WaitFor(ctx context.Context, timeout time.Duration, selectors ...string) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		sel, err := p.firstSelector(ctx, selectors)
		if err == nil {
			return sel, nil
		}
		if !errors.Is(err, dom.ErrNotFound) {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", dom.ErrNotFound
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.poll):
		}
	}
}

func (p *Page) Click(ctx context.Context, selectors ...string) error {
	var hit string
	if err := p.eval(ctx, &hit, jsClick, selectors); err != nil {
		return err
	}
	if hit == "" {
		return dom.ErrNotFound
	}
	return nil
}

func (p *Page) ClickNode(ctx context.Context, key string) error {
	return p.Click(ctx, fmt.Sprintf(`[%s=%q]`, keyAttr, key))
}

func (p *Page) ClickText(ctx context.Context, scope string, texts ...string) error {
	var hit string
	if err := p.eval(ctx, &hit, jsClickText, scope, texts); err != nil {
		return err
	}
	if hit == "" {
		return dom.ErrNotFound
	}
	return nil
}

// simple runs a selector action that reports whether the element existed.
func (p *Page) simple(ctx context.Context, fn string, args ...any) error {
	var ok bool
	if err := p.eval(ctx, &ok, fn, args...); err != nil {
		return err
	}
	if !ok {
		return dom.ErrNotFound
	}
	return nil
}

func (p *Page) Focus(ctx context.Context, selector string) error {
	return p.simple(ctx, jsFocus, selector)
}

func (p *Page) Clear(ctx context.Context, selector string) error {
	return p.simple(ctx, jsClear, selector)
}

// InsertText types text into the focused element as an IME commit, which
// rich editors accept like user input.
func (p *Page) InsertText(ctx context.Context, text string) error {
	if err := p.run(ctx, input.InsertText(text)); err != nil {
		return fmt.Errorf("browser: insert text: %w", err)
	}
	return nil
}

func (p *Page) PressKey(ctx context.Context, selector string, key dom.Key) error {
	if err := p.Focus(ctx, selector); err != nil {
		return err
	}
	down, up := keyEvents(key)
	if err := p.run(ctx, down, up); err != nil {
		return fmt.Errorf("browser: press %s: %w", key.Name, err)
	}
	return nil
}

// keyEvents builds the keyDown/keyUp pair for key.
func keyEvents(key dom.Key) (*input.DispatchKeyEventParams, *input.DispatchKeyEventParams) {
	var mods input.Modifier
	if key.Shift {
		mods |= input.ModifierShift
	}
	if key.Ctrl {
		mods |= input.ModifierCtrl
	}
	code, vk := key.Name, int64(0)
	text := ""
	if key.Name == "Enter" {
		vk, text = 13, "\r"
	}
	down := input.DispatchKeyEvent(input.KeyDown).
		WithKey(key.Name).
		WithCode(code).
		WithWindowsVirtualKeyCode(vk).
		WithNativeVirtualKeyCode(vk).
		WithModifiers(mods)
	if text != "" {
		down = down.WithText(text).WithUnmodifiedText(text)
	}
	up := input.DispatchKeyEvent(input.KeyUp).
		WithKey(key.Name).
		WithCode(code).
		WithWindowsVirtualKeyCode(vk).
		WithNativeVirtualKeyCode(vk).
		WithModifiers(mods)
	return down, up
}

func (p *Page) NotifyInput(ctx context.Context, selector, data string) error {
	return p.simple(ctx, jsNotifyInput, selector, data)
}

// SetFiles stages files on disk and assigns them to the file input.
func (p *Page) SetFiles(ctx context.Context, selector string, files ...dom.File) error {
	ok, err := p.Exists(ctx, selector)
	if err != nil {
		return err
	}
	if !ok {
		return dom.ErrNotFound
	}
	dir, err := p.stagingDir()
	if err != nil {
		return err
	}
	paths, err := writeFiles(dir, files)
	if err != nil {
		return err
	}
	if err := p.run(ctx, chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("browser: set files: %w", err)
	}
	return nil
}

func (p *Page) stagingDir() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tempDir != "" {
		return p.tempDir, nil
	}
	dir, err := os.MkdirTemp("", "airminal-upload-")
	if err != nil {
		return "", fmt.Errorf("browser: staging dir: %w", err)
	}
	p.tempDir = dir
	return dir, nil
}

// writeFiles writes files into dir under their base names.
func writeFiles(dir string, files []dom.File) ([]string, error) {
	paths := make([]string, 0, len(files))
	for i, f := range files {
		name := filepath.Base(f.Name)
		if name == "." || name == string(filepath.Separator) || name == "" {
			name = fmt.Sprintf("upload-%d", i)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, f.Data, 0o600); err != nil {
			return nil, fmt.Errorf("browser: stage %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

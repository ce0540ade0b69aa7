package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/airminal/internal/automation"
	"github.com/zulandar/airminal/internal/bridge"
	"github.com/zulandar/airminal/internal/observer"
	"github.com/zulandar/airminal/internal/settings"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeHub struct {
	mu       sync.Mutex
	cfg      settings.GlobalConfig
	saved    []string
	saveErr  error
	cleared  int
	triggers []string
	runs     []bridge.RunView
	runLimit int
	handled  []string
	updates  chan settings.GlobalConfig
	subs     int
}

func newFakeHub() *fakeHub {
	return &fakeHub{cfg: settings.Defaults(), updates: make(chan settings.GlobalConfig, 4)}
}

func (f *fakeHub) Handle(ctx context.Context, raw []byte) (any, error) {
	f.mu.Lock()
	f.handled = append(f.handled, string(raw))
	f.mu.Unlock()
	if strings.Contains(string(raw), "NOPE") {
		return nil, fmt.Errorf("%w %q", bridge.ErrUnknownType, "NOPE")
	}
	return bridge.SuccessResponse{Success: true}, nil
}

func (f *fakeHub) Config() settings.GlobalConfig { return f.cfg }

func (f *fakeHub) SaveConfig(ctx context.Context, raw []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	f.saved = append(f.saved, string(raw))
	f.mu.Unlock()
	return nil
}

func (f *fakeHub) Status() bridge.Status {
	return bridge.Status{Enabled: true, ActiveSessions: 3, HasEndpoint: true}
}

func (f *fakeHub) ClearSessions() { f.cleared++ }

func (f *fakeHub) TestConnection(ctx context.Context) bridge.TestResult {
	return bridge.TestResult{Success: true, Reply: "hi"}
}

func (f *fakeHub) TriggerAutomation(ctx context.Context, id string) automation.Result {
	f.triggers = append(f.triggers, id)
	return automation.Result{Success: true, Message: "Posted to X"}
}

func (f *fakeHub) Automations() map[string]bridge.AutomationStatus {
	return map[string]bridge.AutomationStatus{
		"x_post": {AutomationConfig: settings.AutomationConfig{Enabled: true, IntervalHours: 24}, Scheduled: true},
	}
}

func (f *fakeHub) Runs(ctx context.Context, id string, limit int) ([]bridge.RunView, error) {
	f.runLimit = limit
	if id == "broken" {
		return nil, errors.New("db down")
	}
	return f.runs, nil
}

func (f *fakeHub) Subscribe() (<-chan settings.GlobalConfig, func()) {
	f.mu.Lock()
	f.subs++
	f.mu.Unlock()
	return f.updates, func() {
		f.mu.Lock()
		f.subs--
		f.mu.Unlock()
	}
}

func (f *fakeHub) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs
}

func newTestServer(t *testing.T, hub *fakeHub, opts Opts) (*httptest.Server, *Client) {
	t.Helper()
	opts.Hub = hub
	router, err := NewRouter(opts)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL+"/", srv.Client())
}

func TestNewRouter_HubRequired(t *testing.T) {
	_, err := NewRouter(Opts{})
	if err == nil || !strings.Contains(err.Error(), "hub is required") {
		t.Errorf("error = %v, want hub is required", err)
	}
}

func TestClient_Endpoints(t *testing.T) {
	hub := newFakeHub()
	hub.runs = []bridge.RunView{{ID: 2, Success: true}, {ID: 1}}
	_, c := newTestServer(t, hub, Opts{})
	ctx := context.Background()

	st, err := c.Status(ctx)
	if err != nil || st.ActiveSessions != 3 {
		t.Errorf("Status = %+v, %v", st, err)
	}
	cfg, err := c.Config(ctx)
	if err != nil || cfg.ReplyDelay != 1500 {
		t.Errorf("Config = %+v, %v", cfg, err)
	}
	if err := c.SaveConfig(ctx, []byte(`{"enabled":true}`)); err != nil {
		t.Errorf("SaveConfig: %v", err)
	}
	if len(hub.saved) != 1 || hub.saved[0] != `{"enabled":true}` {
		t.Errorf("saved = %v", hub.saved)
	}
	if err := c.ClearSessions(ctx); err != nil || hub.cleared != 1 {
		t.Errorf("ClearSessions: %v (cleared %d)", err, hub.cleared)
	}
	if res, err := c.TestConnection(ctx); err != nil || res.Reply != "hi" {
		t.Errorf("TestConnection = %+v, %v", res, err)
	}
	autos, err := c.Automations(ctx)
	if err != nil || !autos["x_post"].Scheduled || autos["x_post"].IntervalHours != 24 {
		t.Errorf("Automations = %+v, %v", autos, err)
	}
	if res, err := c.Trigger(ctx, "x_post"); err != nil || res.Message != "Posted to X" {
		t.Errorf("Trigger = %+v, %v", res, err)
	}
	if len(hub.triggers) != 1 || hub.triggers[0] != "x_post" {
		t.Errorf("triggers = %v", hub.triggers)
	}
	runs, err := c.Runs(ctx, "x_post", 5)
	if err != nil || len(runs) != 2 || hub.runLimit != 5 {
		t.Errorf("Runs = %+v, %v (limit %d)", runs, err, hub.runLimit)
	}
	var resp bridge.SuccessResponse
	if err := c.Send(ctx, map[string]string{"type": "GET_STATUS"}, &resp); err != nil || !resp.Success {
		t.Errorf("Send = %+v, %v", resp, err)
	}
}

func TestClient_Errors(t *testing.T) {
	hub := newFakeHub()
	hub.saveErr = errors.New("settings: save: config must be a JSON object")
	_, c := newTestServer(t, hub, Opts{})
	ctx := context.Background()

	err := c.SaveConfig(ctx, []byte(`[]`))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("SaveConfig error = %v, want 400 APIError", err)
	}
	if _, err := c.Runs(ctx, "broken", 0); !errors.As(err, &apiErr) || apiErr.Message != "db down" {
		t.Errorf("Runs error = %v", err)
	}
	if err := c.Send(ctx, map[string]string{"type": "NOPE"}, nil); !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Errorf("unknown type error = %v", err)
	}

	down := NewClient("http://127.0.0.1:1", nil)
	if _, err := down.Status(ctx); err == nil {
		t.Error("Status against closed port = nil error")
	}
}

func TestRoutes_RunsLimitValidation(t *testing.T) {
	hub := newFakeHub()
	router, _ := NewRouter(Opts{Hub: hub})
	for _, q := range []string{"abc", "-1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/automations/x_post/runs?limit="+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestRoutes_Tabs(t *testing.T) {
	hub := newFakeHub()
	tabs := func() []observer.Status {
		return []observer.Status{{Platform: "whatsapp", Enabled: true, Badge: observer.BadgeView{State: observer.BadgeActive}}}
	}
	_, c := newTestServer(t, hub, Opts{Tabs: tabs})
	resp, err := c.Tabs(context.Background())
	if err != nil {
		t.Fatalf("Tabs: %v", err)
	}
	if len(resp.Tabs) != 1 || resp.Tabs[0].Platform != "whatsapp" {
		t.Errorf("tabs = %+v", resp.Tabs)
	}

	_, bare := newTestServer(t, hub, Opts{})
	resp, err = bare.Tabs(context.Background())
	if err != nil || resp.Tabs == nil || len(resp.Tabs) != 0 {
		t.Errorf("tabs without observers = %+v, %v", resp, err)
	}
}

func TestRoutes_MetricsAndHealth(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "airminal_config_saves_total 0")
	})
	router, _ := NewRouter(Opts{Hub: newFakeHub(), Metrics: metrics})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "airminal_config_saves_total") {
		t.Errorf("/metrics body = %q", rec.Body.String())
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d", rec.Code)
	}

	bare, _ := NewRouter(Opts{Hub: newFakeHub()})
	rec = httptest.NewRecorder()
	bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without handler = %d, want 404", rec.Code)
	}
}

func TestRoutes_CORS(t *testing.T) {
	router, _ := NewRouter(Opts{Hub: newFakeHub(), AllowedOrigins: []string{"chrome-extension://abc"}})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://abc" {
		t.Errorf("allowed origin header = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign origin status = %d, want 403", rec.Code)
	}
}

func TestSSE_StreamsConfigUpdates(t *testing.T) {
	hub := newFakeHub()
	srv, _ := newTestServer(t, hub, Opts{Heartbeat: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := make(chan [2]string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		var event string
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				events <- [2]string{event, strings.TrimPrefix(line, "data: ")}
			}
		}
		close(events)
	}()

	next := func(want string) string {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					t.Fatalf("stream closed before %s", want)
				}
				if ev[0] == want {
					return ev[1]
				}
			case <-deadline:
				t.Fatalf("no %s event", want)
			}
		}
	}

	next("connected")
	cfg := settings.Defaults()
	cfg.SystemPrompt = "streamed"
	hub.updates <- cfg
	data := next(bridge.TypeConfigUpdated)
	var got bridge.ConfigResponse
	if err := json.Unmarshal([]byte(data), &got); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if got.Type != bridge.TypeConfigUpdated || got.Config.SystemPrompt != "streamed" {
		t.Errorf("event = %+v", got)
	}
	next("heartbeat")

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for hub.subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := hub.subscribers(); n != 0 {
		t.Errorf("subscribers after disconnect = %d, want 0", n)
	}
}

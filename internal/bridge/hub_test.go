package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zulandar/airminal/internal/agent"
	"github.com/zulandar/airminal/internal/automation"
	"github.com/zulandar/airminal/internal/config"
	"github.com/zulandar/airminal/internal/db"
	"github.com/zulandar/airminal/internal/dispatch"
	"github.com/zulandar/airminal/internal/dom"
	"github.com/zulandar/airminal/internal/poster"
	"github.com/zulandar/airminal/internal/session"
	"github.com/zulandar/airminal/internal/settings"
	"gorm.io/gorm"
)

type clock struct{ ms atomic.Int64 }

func (c *clock) now() time.Time { return time.UnixMilli(c.ms.Load()) }
func (c *clock) set(ms int64)   { c.ms.Store(ms) }

type fakeTabs struct {
	page   dom.Page
	err    error
	prefix string
}

func (f *fakeTabs) Open(ctx context.Context, prefix, home string) (dom.Page, error) {
	f.prefix = prefix
	return f.page, f.err
}

// agentServer answers with replies[message], or "hello" for anything else.
type agentServer struct {
	*httptest.Server
	mu      sync.Mutex
	replies map[string]string
	last    map[string]any
}

func newAgentServer(t *testing.T) *agentServer {
	a := &agentServer{replies: map[string]string{}}
	a.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		a.mu.Lock()
		a.last = body
		msg, _ := body["message"].(string)
		reply, ok := a.replies[msg]
		a.mu.Unlock()
		if !ok {
			reply = "hello"
		}
		json.NewEncoder(w).Encode(map[string]string{"response": reply})
	}))
	t.Cleanup(a.Close)
	return a
}

func (a *agentServer) lastField(key string) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last[key]
}

type rig struct {
	hub      *Hub
	clock    *clock
	db       *gorm.DB
	store    *settings.GormStore
	sessions *session.Store
	history  *automation.GormHistory
	tabs     *fakeTabs
	page     *dom.FakePage
	agent    *agentServer
	saves    atomic.Int32
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect(config.StorageConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func xPage() *dom.FakePage {
	page := dom.NewFakePage("https://x.com/home")
	page.SetElement(`[data-testid="SideNav_NewTweet_Button"]`, "", nil)
	page.SetElement(`[data-testid="tweetTextarea_0"]`, "", nil)
	page.SetElement(`input[type="file"]`, "", nil)
	page.SetElement(`[data-testid="tweetButton"]:not([disabled]):not([aria-disabled="true"])`, "", nil)
	return page
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{clock: &clock{}, db: testDB(t), page: xPage(), agent: newAgentServer(t)}
	r.clock.set(1_700_000_000_000)
	r.store, _ = settings.NewGormStore(r.db)
	r.history, _ = automation.NewGormHistory(r.db)
	r.sessions = session.NewStore(session.StoreOpts{Now: r.clock.now})
	r.tabs = &fakeTabs{page: r.page}

	ag := agent.New(agent.Opts{Now: r.clock.now})
	d, err := dispatch.New(dispatch.Opts{Agent: ag, Sessions: r.sessions, Now: r.clock.now})
	if err != nil {
		t.Fatal(err)
	}
	h, err := New(Opts{
		Store:      r.store,
		Sessions:   r.sessions,
		Dispatcher: d,
		Agent:      ag,
		Posters:    poster.Default(poster.Opts{Timing: &poster.Timing{ElementWait: 20 * time.Millisecond}}),
		Tabs:       r.tabs,
		History:    r.history,
		Now:        r.clock.now,
		OnSave:     func() { r.saves.Add(1) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := h.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	r.hub = h
	return r
}

// send marshals msg and runs it through Handle.
func (r *rig) send(t *testing.T, msg map[string]any) any {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := r.hub.Handle(context.Background(), raw)
	if err != nil {
		t.Fatalf("Handle(%s): %v", msg["type"], err)
	}
	return resp
}

// save edits the current config the way the settings UI does and sends it.
func (r *rig) save(t *testing.T, edit func(*settings.GlobalConfig)) {
	t.Helper()
	cfg := r.hub.Config()
	edit(&cfg)
	resp := r.send(t, map[string]any{"type": TypeSaveConfig, "config": cfg})
	if sr, ok := resp.(SuccessResponse); !ok || !sr.Success {
		t.Fatalf("SAVE_CONFIG = %+v", resp)
	}
}

func (r *rig) enable(t *testing.T, platforms ...string) {
	t.Helper()
	r.save(t, func(c *settings.GlobalConfig) {
		c.Enabled = true
		c.AgentEndpoint = r.agent.URL
		for _, id := range platforms {
			p := c.Platforms[id]
			p.Enabled = true
			c.Platforms[id] = p
		}
	})
}

func TestNew_Validation(t *testing.T) {
	gdb := testDB(t)
	store, _ := settings.NewGormStore(gdb)
	sessions := session.NewStore(session.StoreOpts{})
	ag := agent.New(agent.Opts{})
	d, _ := dispatch.New(dispatch.Opts{Agent: ag, Sessions: sessions})
	full := Opts{Store: store, Sessions: sessions, Dispatcher: d, Agent: ag, Posters: poster.Default(poster.Opts{}), Tabs: &fakeTabs{}}

	tests := []struct {
		name string
		edit func(*Opts)
		want string
	}{
		{"store", func(o *Opts) { o.Store = nil }, "bridge: store is required"},
		{"sessions", func(o *Opts) { o.Sessions = nil }, "bridge: sessions is required"},
		{"dispatcher", func(o *Opts) { o.Dispatcher = nil }, "bridge: dispatcher is required"},
		{"agent", func(o *Opts) { o.Agent = nil }, "bridge: agent is required"},
		{"posters", func(o *Opts) { o.Posters = nil }, "bridge: posters is required"},
		{"tabs", func(o *Opts) { o.Tabs = nil }, "bridge: tabs is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := full
			tt.edit(&opts)
			_, err := New(opts)
			if err == nil || err.Error() != tt.want {
				t.Errorf("New error = %v, want %q", err, tt.want)
			}
		})
	}
	if _, err := New(full); err != nil {
		t.Errorf("New(full) = %v", err)
	}
}

func TestLoad_SeedsFreshDatabaseOnce(t *testing.T) {
	gdb := testDB(t)
	store, _ := settings.NewGormStore(gdb)
	build := func(seed string) *Hub {
		sessions := session.NewStore(session.StoreOpts{})
		ag := agent.New(agent.Opts{})
		d, _ := dispatch.New(dispatch.Opts{Agent: ag, Sessions: sessions})
		h, err := New(Opts{Store: store, Sessions: sessions, Dispatcher: d, Agent: ag,
			Posters: poster.Default(poster.Opts{}), Tabs: &fakeTabs{}, SeedEndpoint: seed})
		if err != nil {
			t.Fatal(err)
		}
		if err := h.Load(context.Background()); err != nil {
			t.Fatalf("Load: %v", err)
		}
		return h
	}

	if got := build("http://agent.local/chat").Config().AgentEndpoint; got != "http://agent.local/chat" {
		t.Errorf("seeded endpoint = %q", got)
	}
	if got := build("http://other").Config().AgentEndpoint; got != "http://agent.local/chat" {
		t.Errorf("endpoint after restart = %q, want the stored one", got)
	}
}

func TestHandle_GateScenario(t *testing.T) {
	r := newRig(t)
	r.clock.set(100)
	r.enable(t)
	r.clock.set(150)
	r.enable(t, "telegram")

	cfg := r.hub.Config()
	if cfg.EnabledAt != 100 {
		t.Errorf("master enabledAt = %d, want 100", cfg.EnabledAt)
	}
	if got := cfg.Platforms["telegram"].EnabledAt; got != 150 {
		t.Errorf("telegram enabledAt = %d, want 150", got)
	}

	r.clock.set(200)
	msg := func(text string, ts int64) map[string]any {
		return map[string]any{"type": TypeNewMessage, "platform": "telegram", "chatId": "c1",
			"chatName": "Alice", "text": text, "senderName": "Alice", "timestamp": ts}
	}
	v, _ := r.send(t, msg("old", 120)).(dispatch.Verdict)
	if v.Action != dispatch.ActionSkip || v.Reason != dispatch.ReasonPredatesGate {
		t.Errorf("message at 120 = %+v, want SKIP predates", v)
	}
	v, _ = r.send(t, msg("hi", 160)).(dispatch.Verdict)
	if v.Action != dispatch.ActionReply || v.Reply != "hello" {
		t.Errorf("message at 160 = %+v, want REPLY hello", v)
	}
	if r.sessions.Count() != 1 {
		t.Errorf("sessions = %d, want 1", r.sessions.Count())
	}
}

func TestHandle_DisablingKeepsEnabledAt(t *testing.T) {
	r := newRig(t)
	r.clock.set(100)
	r.enable(t, "slack")
	r.clock.set(300)
	r.save(t, func(c *settings.GlobalConfig) {
		p := c.Platforms["slack"]
		p.Enabled = false
		c.Platforms["slack"] = p
	})
	if got := r.hub.Config().Platforms["slack"].EnabledAt; got != 100 {
		t.Errorf("enabledAt after disable = %d, want 100", got)
	}
	r.clock.set(400)
	r.enable(t, "slack")
	if got := r.hub.Config().Platforms["slack"].EnabledAt; got != 400 {
		t.Errorf("enabledAt after re-enable = %d, want 400", got)
	}
	if got := r.hub.Config().EnabledAt; got != 100 {
		t.Errorf("master enabledAt = %d, want 100 (it never went off)", got)
	}
}

func TestSaveConfig_PersistsAndBroadcasts(t *testing.T) {
	r := newRig(t)
	updates, cancel := r.hub.Subscribe()
	r.save(t, func(c *settings.GlobalConfig) { c.SystemPrompt = "be nice" })

	select {
	case cfg := <-updates:
		if cfg.SystemPrompt != "be nice" {
			t.Errorf("broadcast prompt = %q", cfg.SystemPrompt)
		}
	case <-time.After(time.Second):
		t.Fatal("no CONFIG_UPDATED broadcast")
	}
	stored, found, err := r.store.Load(context.Background())
	if err != nil || !found {
		t.Fatalf("store.Load = %v, %v", found, err)
	}
	if stored.SystemPrompt != "be nice" {
		t.Errorf("stored prompt = %q", stored.SystemPrompt)
	}
	if r.saves.Load() != 1 {
		t.Errorf("OnSave calls = %d, want 1", r.saves.Load())
	}

	cancel()
	cancel()
	r.save(t, func(c *settings.GlobalConfig) { c.SystemPrompt = "again" })
	select {
	case cfg := <-updates:
		t.Errorf("cancelled subscriber got %q", cfg.SystemPrompt)
	default:
	}
}

func TestSubscribe_SlowSubscriberKeepsNewest(t *testing.T) {
	r := newRig(t)
	updates, cancel := r.hub.Subscribe()
	defer cancel()
	for i := 1; i <= subscriberBuffer+2; i++ {
		r.save(t, func(c *settings.GlobalConfig) { c.ReplyDelay = int64(i) })
	}

	var got []int64
	for len(got) < subscriberBuffer {
		select {
		case cfg := <-updates:
			got = append(got, cfg.ReplyDelay)
		case <-time.After(time.Second):
			t.Fatalf("got %v, want %d updates", got, subscriberBuffer)
		}
	}
	if last := got[len(got)-1]; last != subscriberBuffer+2 {
		t.Errorf("newest update = %d, want %d", last, subscriberBuffer+2)
	}
	if got[0] != 3 {
		t.Errorf("oldest kept = %d, want 3", got[0])
	}
}

func TestSaveConfig_Rejected(t *testing.T) {
	r := newRig(t)
	for _, msg := range []string{
		`{"type":"SAVE_CONFIG"}`,
		`{"type":"SAVE_CONFIG","config":[1,2]}`,
	} {
		resp, err := r.hub.Handle(context.Background(), []byte(msg))
		if err != nil {
			t.Fatalf("Handle(%s): %v", msg, err)
		}
		sr, _ := resp.(SuccessResponse)
		if sr.Success || sr.Error == "" {
			t.Errorf("Handle(%s) = %+v, want failure", msg, sr)
		}
	}
	if r.saves.Load() != 0 {
		t.Errorf("OnSave called %d times for rejected saves", r.saves.Load())
	}
}

func TestTriggerAutomation_XPostRecordsRun(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png"))
	}))
	defer img.Close()

	r := newRig(t)
	r.agent.replies["Tweet something"] = "Big news today " + img.URL + "/shot.png"
	r.enable(t)
	r.save(t, func(c *settings.GlobalConfig) {
		a := c.Automations["x_post"]
		a.Enabled = true
		a.Prompt = "Tweet something"
		c.Automations["x_post"] = a
	})

	updates, cancel := r.hub.Subscribe()
	defer cancel()
	r.clock.set(1_700_000_500_000)
	res, _ := r.send(t, map[string]any{"type": TypeTriggerAutomation, "automationId": "x_post"}).(automation.Result)
	if !res.Success || res.Message != "Posted to X" {
		t.Fatalf("TRIGGER_AUTOMATION = %+v", res)
	}
	if r.page.Typed() != "Big news today" {
		t.Errorf("typed = %q", r.page.Typed())
	}

	a := r.hub.Config().Automations["x_post"]
	if a.LastRun != 1_700_000_500_000 {
		t.Errorf("lastRun = %d", a.LastRun)
	}
	if want := int64(1_700_000_500_000 + 24*3600*1000); a.NextRun != want {
		t.Errorf("nextRun = %d, want %d", a.NextRun, want)
	}
	if st := r.hub.Automations()["x_post"]; st.NextFire == nil || *st.NextFire != a.NextRun {
		t.Errorf("nextFire = %v, want the schedule to follow nextRun %d", st.NextFire, a.NextRun)
	}
	select {
	case cfg := <-updates:
		if cfg.Automations["x_post"].LastRun != a.LastRun {
			t.Error("broadcast missing lastRun")
		}
	case <-time.After(time.Second):
		t.Error("no broadcast after run")
	}

	runs, err := r.hub.Runs(context.Background(), "x_post", 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || !runs[0].Success || runs[0].Trigger != automation.SourceManual {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Caption != "Big news today" || runs[0].ImageURL != img.URL+"/shot.png" {
		t.Errorf("run content = %q / %q", runs[0].Caption, runs[0].ImageURL)
	}
	if got := r.agent.lastField("conversation_id"); !strings.HasPrefix(got.(string), "auto_x_post_") {
		t.Errorf("conversation_id = %v", got)
	}
}

func TestTriggerAutomation_NotEnabled(t *testing.T) {
	r := newRig(t)
	r.enable(t)
	res, _ := r.send(t, map[string]any{"type": TypeTriggerAutomation, "automationId": "linkedin_post"}).(automation.Result)
	if res.Success || res.Error != automation.ReasonNotEnabled {
		t.Errorf("Result = %+v, want %q", res, automation.ReasonNotEnabled)
	}
	runs, _ := r.hub.Runs(context.Background(), "linkedin_post", 0)
	if len(runs) != 1 || runs[0].Success {
		t.Errorf("failed run not recorded: %+v", runs)
	}
}

func TestAutomations_Status(t *testing.T) {
	r := newRig(t)
	r.save(t, func(c *settings.GlobalConfig) {
		a := c.Automations["instagram_post"]
		a.Enabled = true
		a.Prompt = "p"
		a.IntervalHours = 6
		c.Automations["instagram_post"] = a
	})
	resp, _ := r.send(t, map[string]any{"type": TypeGetAutomationStatus}).(AutomationsResponse)
	if len(resp.Automations) != len(settings.AutomationIDs) {
		t.Fatalf("automations = %d, want %d", len(resp.Automations), len(settings.AutomationIDs))
	}
	ig := resp.Automations["instagram_post"]
	if !ig.Enabled || !ig.Scheduled || ig.IntervalHours != 6 {
		t.Errorf("instagram_post = %+v", ig)
	}
	if want := int64(1_700_000_000_000 + 6*3600*1000); ig.NextRun != want {
		t.Errorf("nextRun = %d, want %d", ig.NextRun, want)
	}
	if resp.Automations["x_post"].Scheduled {
		t.Error("disabled x_post is scheduled")
	}
}

func TestStatusAndClearSessions(t *testing.T) {
	r := newRig(t)
	_, release := r.sessions.Acquire("slack", "c1")
	release()

	st, _ := r.send(t, map[string]any{"type": TypeGetStatus}).(Status)
	if st.ActiveSessions != 1 || st.Enabled || st.HasEndpoint {
		t.Errorf("status = %+v", st)
	}
	if sr, _ := r.send(t, map[string]any{"type": TypeClearSessions}).(SuccessResponse); !sr.Success {
		t.Errorf("CLEAR_SESSIONS = %+v", sr)
	}
	if r.sessions.Count() != 0 {
		t.Errorf("sessions after clear = %d", r.sessions.Count())
	}
}

func TestTestConnection(t *testing.T) {
	r := newRig(t)
	res, _ := r.send(t, map[string]any{"type": TypeTestConnection}).(TestResult)
	if res.Success || res.Error != dispatch.ReasonNoEndpoint {
		t.Errorf("without endpoint = %+v", res)
	}

	r.enable(t)
	r.agent.replies[TestMessage] = ""
	res = r.hub.TestConnection(context.Background())
	if !res.Success || res.Reply != EmptyReply {
		t.Errorf("empty reply = %+v, want %q", res, EmptyReply)
	}
	if got, _ := r.agent.lastField("conversation_id").(string); got != "test-1700000000000" {
		t.Errorf("conversation_id = %q", got)
	}
	if r.sessions.Count() != 0 {
		t.Error("test connection created a session")
	}

	r.agent.Close()
	res = r.hub.TestConnection(context.Background())
	if res.Success || res.Error == "" {
		t.Errorf("closed endpoint = %+v, want error", res)
	}
}

func TestScheduledPost(t *testing.T) {
	r := newRig(t)
	post := func(platform, caption string) automation.Result {
		res, _ := r.send(t, map[string]any{"type": TypeScheduledPost, "platform": platform, "caption": caption}).(automation.Result)
		return res
	}

	if res := post("myspace_post", "hi"); res.Success || !strings.Contains(res.Error, "unknown poster") {
		t.Errorf("unknown poster = %+v", res)
	}
	if res := post("x_post", ""); res.Error != "No caption or image provided" {
		t.Errorf("empty post = %+v", res)
	}
	if res := post("x_post", "Launch day"); !res.Success {
		t.Errorf("x_post = %+v", res)
	}
	if r.page.Typed() != "Launch day" || r.tabs.prefix != "https://x.com/" {
		t.Errorf("typed %q into %q", r.page.Typed(), r.tabs.prefix)
	}

	r.tabs.err = errors.New("browser gone")
	if res := post("x_post", "again"); !strings.HasPrefix(res.Error, "Could not open x_post tab") {
		t.Errorf("tab failure = %+v", res)
	}
}

func TestMarkRun_UnknownAutomation(t *testing.T) {
	r := newRig(t)
	if err := r.hub.MarkRun(context.Background(), "tiktok_post", time.Now()); err == nil {
		t.Error("MarkRun(unknown) = nil, want error")
	}
}

func TestHandle_BadInput(t *testing.T) {
	r := newRig(t)
	if _, err := r.hub.Handle(context.Background(), []byte(`{"type":"SHUTDOWN"}`)); !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown type error = %v", err)
	}
	if _, err := r.hub.Handle(context.Background(), []byte(`not json`)); err == nil {
		t.Error("malformed message accepted")
	}
	resp := r.send(t, map[string]any{"type": TypeGetConfig})
	if cr, ok := resp.(ConfigResponse); !ok || cr.Config.MaxHistoryLength != 20 {
		t.Errorf("GET_CONFIG = %+v", resp)
	}
	if got := ConfigUpdated(settings.Defaults()).Type; got != TypeConfigUpdated {
		t.Errorf("ConfigUpdated type = %q", got)
	}
}

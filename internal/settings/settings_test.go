package settings

import (
	"context"
	"testing"
	"time"

	"github.com/zulandar/airminal/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.SettingsRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Enabled || cfg.AgentEndpoint != "" {
		t.Error("defaults should be disabled with no endpoint")
	}
	if cfg.ReplyDelay != 1500 {
		t.Errorf("ReplyDelay = %d, want 1500", cfg.ReplyDelay)
	}
	if cfg.MaxHistoryLength != 20 {
		t.Errorf("MaxHistoryLength = %d, want 20", cfg.MaxHistoryLength)
	}
	if len(cfg.Platforms) != 12 {
		t.Fatalf("len(Platforms) = %d, want 12", len(cfg.Platforms))
	}
	for id, p := range cfg.Platforms {
		if p.Enabled {
			t.Errorf("%s enabled by default", id)
		}
		wantAuto := id != "gmail" && id != "outlook"
		if p.AutoReply != wantAuto {
			t.Errorf("%s AutoReply = %v, want %v", id, p.AutoReply, wantAuto)
		}
	}
	for _, id := range AutomationIDs {
		a, ok := cfg.Automations[id]
		if !ok {
			t.Fatalf("automation %s missing", id)
		}
		if a.Enabled || a.IntervalHours != 24 || a.Prompt != "" {
			t.Errorf("automation %s = %+v", id, a)
		}
	}
}

func TestDefaults_FreshCopy(t *testing.T) {
	a := Defaults()
	p := a.Platforms["slack"]
	p.Enabled = true
	a.Platforms["slack"] = p
	if Defaults().Platforms["slack"].Enabled {
		t.Error("Defaults shares state between calls")
	}
}

func TestMerge_Recursive(t *testing.T) {
	cfg, err := Merge(Defaults(), []byte(`{
		"agentEndpoint": "http://agent",
		"platforms": {"slack": {"enabled": true, "blockedChats": ["spam"]}},
		"automations": {"x_post": {"prompt": "write"}}
	}`))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if cfg.AgentEndpoint != "http://agent" {
		t.Errorf("AgentEndpoint = %q", cfg.AgentEndpoint)
	}
	if cfg.ReplyDelay != 1500 {
		t.Errorf("ReplyDelay = %d, want default 1500", cfg.ReplyDelay)
	}
	slack := cfg.Platforms["slack"]
	if !slack.Enabled || !slack.AutoReply {
		t.Errorf("slack = %+v, want enabled with default autoReply", slack)
	}
	if len(slack.BlockedChats) != 1 || slack.BlockedChats[0] != "spam" {
		t.Errorf("BlockedChats = %q", slack.BlockedChats)
	}
	if len(cfg.Platforms) != 12 {
		t.Errorf("len(Platforms) = %d, want 12", len(cfg.Platforms))
	}
	x := cfg.Automations["x_post"]
	if x.Prompt != "write" || x.IntervalHours != 24 {
		t.Errorf("x_post = %+v", x)
	}
}

func TestMerge_ArrayReplaces(t *testing.T) {
	base := Defaults()
	p := base.Platforms["discord"]
	p.AllowedChats = []string{"a", "b"}
	base.Platforms["discord"] = p
	cfg, err := Merge(base, []byte(`{"platforms":{"discord":{"allowedChats":["c"]}}}`))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	got := cfg.Platforms["discord"].AllowedChats
	if len(got) != 1 || got[0] != "c" {
		t.Errorf("AllowedChats = %q, want [c]", got)
	}
}

func TestMerge_InvalidJSON(t *testing.T) {
	if _, err := Merge(Defaults(), []byte("{")); err == nil {
		t.Error("expected error")
	}
}

func TestApplySave_StampsEnabledAt(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	cur := Defaults()

	next, err := ApplySave(cur, []byte(`{"enabled": true, "platforms": {"telegram": {"enabled": true}}}`), now)
	if err != nil {
		t.Fatalf("ApplySave: %v", err)
	}
	if next.EnabledAt != now.UnixMilli() {
		t.Errorf("EnabledAt = %d, want %d", next.EnabledAt, now.UnixMilli())
	}
	if next.Platforms["telegram"].EnabledAt != now.UnixMilli() {
		t.Errorf("telegram EnabledAt = %d, want %d", next.Platforms["telegram"].EnabledAt, now.UnixMilli())
	}
	if next.Platforms["slack"].EnabledAt != 0 {
		t.Error("slack EnabledAt stamped although it stayed off")
	}
}

func TestApplySave_NoRestampWhenAlreadyOn(t *testing.T) {
	cur := Defaults()
	cur.Enabled = true
	cur.EnabledAt = 100
	tg := cur.Platforms["telegram"]
	tg.Enabled, tg.EnabledAt = true, 150
	cur.Platforms["telegram"] = tg

	next, err := ApplySave(cur, []byte(`{"enabled": true, "enabledAt": 100, "platforms": {"telegram": {"enabled": true, "enabledAt": 150}}}`), time.UnixMilli(999))
	if err != nil {
		t.Fatalf("ApplySave: %v", err)
	}
	if next.EnabledAt != 100 {
		t.Errorf("EnabledAt = %d, want 100", next.EnabledAt)
	}
	if next.Platforms["telegram"].EnabledAt != 150 {
		t.Errorf("telegram EnabledAt = %d, want 150", next.Platforms["telegram"].EnabledAt)
	}
}

func TestApplySave_DisableKeepsEnabledAt(t *testing.T) {
	cur := Defaults()
	cur.Enabled, cur.EnabledAt = true, 100
	next, err := ApplySave(cur, []byte(`{"enabled": false, "enabledAt": 100}`), time.UnixMilli(500))
	if err != nil {
		t.Fatalf("ApplySave: %v", err)
	}
	if next.Enabled {
		t.Error("Enabled = true, want false")
	}
	if next.EnabledAt != 100 {
		t.Errorf("EnabledAt = %d, want 100 (never cleared)", next.EnabledAt)
	}
}

func TestApplySave_AutomationNextRun(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	hour := time.Hour.Milliseconds()
	cur := Defaults()

	next, err := ApplySave(cur, []byte(`{"automations": {"x_post": {"enabled": true, "prompt": "p"}}}`), now)
	if err != nil {
		t.Fatalf("ApplySave: %v", err)
	}
	if got := next.Automations["x_post"].NextRun; got != now.UnixMilli()+24*hour {
		t.Errorf("NextRun after enable = %d, want %d", got, now.UnixMilli()+24*hour)
	}

	// Interval change while enabled resets the schedule.
	later := now.Add(time.Hour)
	next2, err := ApplySave(next, []byte(`{"automations": {"x_post": {"enabled": true, "prompt": "p", "intervalHours": 6, "nextRun": 5}}}`), later)
	if err != nil {
		t.Fatalf("ApplySave: %v", err)
	}
	if got := next2.Automations["x_post"].NextRun; got != later.UnixMilli()+6*hour {
		t.Errorf("NextRun after interval change = %d, want %d", got, later.UnixMilli()+6*hour)
	}

	// Unchanged automation keeps whatever nextRun the document carries.
	next3, err := ApplySave(next2, []byte(`{"automations": {"x_post": {"enabled": true, "prompt": "p", "intervalHours": 6, "nextRun": 42}}}`), later)
	if err != nil {
		t.Fatalf("ApplySave: %v", err)
	}
	if got := next3.Automations["x_post"].NextRun; got != 42 {
		t.Errorf("NextRun unchanged = %d, want 42", got)
	}
}

func TestApplySave_FractionalInterval(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	next, err := ApplySave(Defaults(), []byte(`{"automations": {"x_post": {"enabled": true, "prompt": "p", "intervalHours": 0.5}}}`), now)
	if err != nil {
		t.Fatalf("ApplySave: %v", err)
	}
	x := next.Automations["x_post"]
	if x.IntervalHours != 0.5 {
		t.Errorf("IntervalHours = %v, want 0.5", x.IntervalHours)
	}
	if x.Interval() != 30*time.Minute {
		t.Errorf("Interval = %v, want 30m", x.Interval())
	}
	if want := now.Add(30 * time.Minute).UnixMilli(); x.NextRun != want {
		t.Errorf("NextRun = %d, want %d", x.NextRun, want)
	}
}

func TestApplySave_RejectsNonObject(t *testing.T) {
	for _, in := range []string{"null", "[1]", "oops"} {
		if _, err := ApplySave(Defaults(), []byte(in), time.Now()); err == nil {
			t.Errorf("ApplySave(%s): expected error", in)
		}
	}
}

func TestClone_Independent(t *testing.T) {
	a := Defaults()
	p := a.Platforms["slack"]
	p.BlockedChats = []string{"x"}
	a.Platforms["slack"] = p

	b := a.Clone()
	bp := b.Platforms["slack"]
	bp.BlockedChats[0] = "y"
	b.Automations["x_post"] = AutomationConfig{Prompt: "changed"}

	if a.Platforms["slack"].BlockedChats[0] != "x" {
		t.Error("Clone shares slices")
	}
	if a.Automations["x_post"].Prompt != "" {
		t.Error("Clone shares automation map")
	}
}

func TestPlatformActive(t *testing.T) {
	cfg := Defaults()
	p := cfg.Platforms["slack"]
	p.Enabled = true
	cfg.Platforms["slack"] = p
	if cfg.PlatformActive("slack") {
		t.Error("active with master off")
	}
	cfg.Enabled = true
	if !cfg.PlatformActive("slack") {
		t.Error("inactive with both switches on")
	}
	if cfg.PlatformActive("nope") {
		t.Error("unknown platform active")
	}
}

func TestGormStore_LoadSave(t *testing.T) {
	ctx := context.Background()
	store, err := NewGormStore(testDB(t))
	if err != nil {
		t.Fatalf("NewGormStore: %v", err)
	}

	cfg, found, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Error("found = true on empty db")
	}
	if cfg.ReplyDelay != 1500 {
		t.Errorf("ReplyDelay = %d, want defaults", cfg.ReplyDelay)
	}

	cfg.AgentEndpoint = "http://agent"
	cfg.Enabled = true
	if err := store.Save(ctx, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cfg.SystemPrompt = "be brief"
	if err := store.Save(ctx, cfg); err != nil {
		t.Fatalf("Save (update): %v", err)
	}

	got, found, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatal("found = false after save")
	}
	if got.AgentEndpoint != "http://agent" || !got.Enabled || got.SystemPrompt != "be brief" {
		t.Errorf("loaded = %+v", got)
	}
}

func TestGormStore_LoadMergesOverDefaults(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	if err := db.Create(&models.SettingsRecord{Name: RecordKey, Data: `{"enabled":true,"platforms":{"gmail":{"enabled":true}}}`}).Error; err != nil {
		t.Fatal(err)
	}
	store, _ := NewGormStore(db)
	cfg, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxHistoryLength != 20 {
		t.Errorf("MaxHistoryLength = %d, want 20", cfg.MaxHistoryLength)
	}
	gm := cfg.Platforms["gmail"]
	if !gm.Enabled || gm.AutoReply {
		t.Errorf("gmail = %+v", gm)
	}
}

func TestNewGormStore_RequiresDB(t *testing.T) {
	if _, err := NewGormStore(nil); err == nil {
		t.Error("expected error")
	}
}

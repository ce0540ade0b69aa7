package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/zulandar/airminal/internal/settings"
)

// fakeDaemon serves the subset of the API the CLI calls.
type fakeDaemon struct {
	*httptest.Server
	mu    sync.Mutex
	cfg   settings.GlobalConfig
	saved []settings.GlobalConfig
	raw   []string
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	f := &fakeDaemon{cfg: settings.Defaults()}
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"enabled": true, "activeSessions": 2, "hasEndpoint": false})
	})
	mux.HandleFunc("GET /api/tabs", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"tabs": []map[string]any{
			{"platform": "whatsapp", "enabled": true, "processed": 12, "badge": map[string]any{"state": "Agent Active"}},
		}})
	})
	mux.HandleFunc("GET /api/config", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		reply(w, map[string]any{"config": f.cfg})
	})
	mux.HandleFunc("PUT /api/config", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var cfg settings.GlobalConfig
		if err := json.Unmarshal(body, &cfg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			reply(w, map[string]any{"success": false, "error": "config must be a JSON object"})
			return
		}
		f.mu.Lock()
		f.saved = append(f.saved, cfg)
		f.raw = append(f.raw, string(body))
		f.mu.Unlock()
		reply(w, map[string]any{"success": true})
	})
	mux.HandleFunc("DELETE /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /api/test-connection", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"success": false, "error": "No endpoint configured"})
	})
	mux.HandleFunc("GET /api/automations", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"automations": map[string]any{
			"x_post":         map[string]any{"enabled": true, "intervalHours": 24, "lastRun": 1_700_000_000_000, "scheduled": true},
			"instagram_post": map[string]any{"enabled": false, "intervalHours": 12},
		}})
	})
	mux.HandleFunc("POST /api/automations/{id}/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "x_post" {
			reply(w, map[string]any{"success": true, "message": "Posted to X"})
			return
		}
		reply(w, map[string]any{"success": false, "error": "Automation is disabled"})
	})
	mux.HandleFunc("GET /api/automations/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "x_post" {
			reply(w, map[string]any{"runs": []any{}})
			return
		}
		reply(w, map[string]any{"runs": []map[string]any{
			{"id": 7, "trigger": "schedule", "success": true, "message": "Posted to X", "startedAt": 1_700_000_000_000},
			{"id": 6, "trigger": "manual", "success": false, "error": "Agent returned empty response"},
		}})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeDaemon) lastSaved(t *testing.T) settings.GlobalConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		t.Fatal("no config saved")
	}
	return f.saved[len(f.saved)-1]
}

func TestStatusCmd(t *testing.T) {
	d := newFakeDaemon(t)
	out, err := run(t, "status", "--api", d.URL)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Agent:     enabled", "Endpoint:  not set", "Sessions:  2", "whatsapp", "Agent Active", "12"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusCmd_DaemonDown(t *testing.T) {
	_, err := run(t, "status", "--api", "http://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected error when the daemon is not running")
	}
}

func TestConfigEnableDisable(t *testing.T) {
	d := newFakeDaemon(t)

	if _, err := run(t, "config", "enable", "--api", d.URL); err != nil {
		t.Fatalf("config enable: %v", err)
	}
	if !d.lastSaved(t).Enabled {
		t.Error("master toggle not enabled")
	}

	out, err := run(t, "config", "enable", "telegram", "--api", d.URL)
	if err != nil {
		t.Fatalf("config enable telegram: %v", err)
	}
	if !strings.Contains(out, "telegram enabled") {
		t.Errorf("output = %q", out)
	}
	saved := d.lastSaved(t)
	if !saved.Platforms["telegram"].Enabled {
		t.Error("telegram not enabled")
	}
	if !saved.Platforms["whatsapp"].AutoReply {
		t.Error("save dropped untouched platform fields")
	}

	if _, err := run(t, "config", "disable", "--api", d.URL); err != nil {
		t.Fatalf("config disable: %v", err)
	}
	if d.lastSaved(t).Enabled {
		t.Error("master toggle still enabled")
	}
}

func TestConfigEnable_UnknownPlatform(t *testing.T) {
	d := newFakeDaemon(t)
	_, err := run(t, "config", "enable", "myspace", "--api", d.URL)
	if err == nil || !strings.Contains(err.Error(), `unknown platform "myspace"`) {
		t.Errorf("error = %v, want unknown platform", err)
	}
	if len(d.saved) != 0 {
		t.Errorf("saved %d configs, want none", len(d.saved))
	}
}

func TestConfigSetEndpoint(t *testing.T) {
	d := newFakeDaemon(t)
	out, err := run(t, "config", "set-endpoint", " https://agent.example/chat ", "--api", d.URL)
	if err != nil {
		t.Fatalf("set-endpoint: %v", err)
	}
	if got := d.lastSaved(t).AgentEndpoint; got != "https://agent.example/chat" {
		t.Errorf("AgentEndpoint = %q", got)
	}
	if !strings.Contains(out, "https://agent.example/chat") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigShow(t *testing.T) {
	d := newFakeDaemon(t)
	out, err := run(t, "config", "show", "--api", d.URL)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var cfg settings.GlobalConfig
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if cfg.ReplyDelay != 1500 {
		t.Errorf("ReplyDelay = %d, want 1500", cfg.ReplyDelay)
	}
}

func TestConfigImport(t *testing.T) {
	d := newFakeDaemon(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	doc := `{"enabled":true,"systemPrompt":"Be brief."}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "config", "import", path, "--api", d.URL); err != nil {
		t.Fatalf("config import: %v", err)
	}
	if d.raw[0] != doc {
		t.Errorf("sent %q, want the file verbatim", d.raw[0])
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(bad, []byte(`[1,2]`), 0644)
	if _, err := run(t, "config", "import", bad, "--api", d.URL); err == nil {
		t.Error("expected error for a non-object document")
	}
	if _, err := run(t, "config", "import", "/nonexistent.json", "--api", d.URL); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestSessionsClearAndTestConnection(t *testing.T) {
	d := newFakeDaemon(t)
	out, err := run(t, "sessions", "clear", "--api", d.URL)
	if err != nil || !strings.Contains(out, "Sessions cleared.") {
		t.Errorf("sessions clear = %q, %v", out, err)
	}
	_, err = run(t, "test-connection", "--api", d.URL)
	if err == nil || !strings.Contains(err.Error(), "No endpoint configured") {
		t.Errorf("test-connection error = %v", err)
	}
}

func TestAutomationCmds(t *testing.T) {
	d := newFakeDaemon(t)

	out, err := run(t, "automation", "list", "--api", d.URL)
	if err != nil {
		t.Fatalf("automation list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("list output = %q, want header and 2 rows", out)
	}
	if !strings.HasPrefix(lines[1], "instagram_post") || !strings.HasPrefix(lines[2], "x_post") {
		t.Errorf("rows not sorted by id:\n%s", out)
	}
	if !strings.Contains(lines[2], "scheduled") || !strings.Contains(lines[2], "24h") {
		t.Errorf("x_post row = %q", lines[2])
	}

	out, err = run(t, "automation", "trigger", "x_post", "--api", d.URL)
	if err != nil || !strings.Contains(out, "x_post: Posted to X") {
		t.Errorf("trigger = %q, %v", out, err)
	}
	_, err = run(t, "automation", "trigger", "linkedin_post", "--api", d.URL)
	if err == nil || !strings.Contains(err.Error(), "Automation is disabled") {
		t.Errorf("trigger disabled error = %v", err)
	}

	out, err = run(t, "automation", "runs", "x_post", "--api", d.URL)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	for _, want := range []string{"schedule", "ok", "failed", "Agent returned empty response"} {
		if !strings.Contains(out, want) {
			t.Errorf("runs output missing %q:\n%s", want, out)
		}
	}
	out, _ = run(t, "automation", "runs", "linkedin_post", "--api", d.URL)
	if !strings.Contains(out, "No runs recorded.") {
		t.Errorf("empty runs output = %q", out)
	}
}

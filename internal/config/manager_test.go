package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{
		"calendar": {"dir": "./ics", "exclude_marker": "Optional Attendance"},
		"portal": {"page_url": "https://portal.example/attendance"},
		"auth": {"max_wait": "30m"},
		"creds": {},
		"browser": {},
		"scheduler": {"offset_min": "3m", "offset_max": "8m"},
		"logging": {"level": "INFO", "console": true, "file": {"enabled": false, "path": ""}, "buffer": {"enabled": true, "lines": 5}},
		"tui": {}
	}`)

	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Portal.PageURL != "https://portal.example/attendance" {
		t.Fatalf("page_url = %q", cfg.Portal.PageURL)
	}
	if cfg.Calendar.ExcludeMarker != "Optional Attendance" {
		t.Fatalf("exclude_marker = %q", cfg.Calendar.ExcludeMarker)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return committed config")
	}
}

func TestParseYAMLCoercion(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
calendar:
  dir: ./ics
portal:
  page_url: https://portal.example/attendance
  button_ids:
    - pbid-buttonTwo
    - pbid-buttonOne
auth: {}
creds: {}
browser: {}
scheduler:
  seed: 42
logging:
  level: DEBUG
  console: true
  file: {enabled: false, path: ""}
  buffer: {enabled: false}
tui: {}
`)

	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Portal.ButtonIDs) != 2 || cfg.Portal.ButtonIDs[0] != "pbid-buttonTwo" {
		t.Fatalf("button_ids = %v", cfg.Portal.ButtonIDs)
	}
	if cfg.Scheduler.Seed != 42 {
		t.Fatalf("seed = %d", cfg.Scheduler.Seed)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"calendar": {"dirr": "typo"}}`)

	m := NewConfigManager(path)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"tui": {}}{"tui": {}}`)

	m := NewConfigManager(path)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestReloadCommitsOnlyAcceptedConfigs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"portal": {"page_url": "https://portal.example/a"}}`)

	m := NewConfigManager(path)
	m.SetValidator(Validate)
	first, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// Broken candidate: previous config must stay committed.
	writeFile(t, dir, "config.json", `{"portal": {"page_urll": "typo"}}`)
	m.reload(context.Background())
	if got := m.Get(); got != first {
		t.Fatal("rejected reload replaced the committed config")
	}
	select {
	case cfg := <-sub:
		t.Fatalf("rejected reload was published: %+v", cfg)
	default:
	}

	// Valid change: committed and published.
	writeFile(t, dir, "config.json", `{"portal": {"page_url": "https://portal.example/b"}}`)
	m.reload(context.Background())
	if got := m.Get(); got.Portal.PageURL != "https://portal.example/b" {
		t.Fatalf("page_url = %q", got.Portal.PageURL)
	}
	select {
	case cfg := <-sub:
		if cfg.Portal.PageURL != "https://portal.example/b" {
			t.Fatalf("published page_url = %q", cfg.Portal.PageURL)
		}
	default:
		t.Fatal("accepted reload was not published")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	newCfg := &Config{}
	newCfg.Scheduler.OffsetMin = "4m"
	newCfg.Logging.Level = "DEBUG"

	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	want := map[string]bool{"scheduler": true, "logging": true}
	if len(changed) != 2 {
		t.Fatalf("changed = %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Fatalf("unexpected section %q in %v", c, changed)
		}
	}

	if changed, _ := SummarizeConfigChange(newCfg, newCfg); len(changed) != 0 {
		t.Fatalf("no-op diff reported %v", changed)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "90s"); err != nil || d.Seconds() != 90 {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if d, err := ParseDurationOrDefault("x", "", 5); err != nil || d != 5 {
		t.Fatalf("default not applied: %v, %v", d, err)
	}
}

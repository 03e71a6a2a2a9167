package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
listen:
  port: 9000
kimi:
  api_key: test-key
  model: kimi-k2-0711-preview
session:
  backend: file
  path: /tmp/memory.json
  max_history: 5
organizer:
  max_rounds: 4
log_level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Listen.Port != 9000 {
		t.Errorf("Listen.Port = %d, want 9000", cfg.Listen.Port)
	}
	if cfg.Kimi.APIKey != "test-key" {
		t.Errorf("Kimi.APIKey = %q, want %q", cfg.Kimi.APIKey, "test-key")
	}
	if cfg.Kimi.BaseURL != "https://api.moonshot.cn/v1" {
		t.Errorf("Kimi.BaseURL default not applied, got %q", cfg.Kimi.BaseURL)
	}
	if cfg.Session.Backend != "file" {
		t.Errorf("Session.Backend = %q, want file", cfg.Session.Backend)
	}
	if cfg.Session.MaxHistory != 5 {
		t.Errorf("Session.MaxHistory = %d, want 5", cfg.Session.MaxHistory)
	}
	if cfg.Organizer.MaxRounds != 4 {
		t.Errorf("Organizer.MaxRounds = %d, want 4", cfg.Organizer.MaxRounds)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("MIKO_TEST_KEY", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "kimi:\n  api_key: ${MIKO_TEST_KEY}\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Kimi.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.Kimi.APIKey)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	_, err := FindConfig("/does/not/exist.yaml")
	if err == nil {
		t.Error("FindConfig() with missing explicit path should fail")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultToolTimeout(t *testing.T) {
	cfg := Default()
	if got := cfg.ToolTimeout().Seconds(); got != 30 {
		t.Errorf("ToolTimeout() = %vs, want 30s", got)
	}
}

package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Koi-west/claude-code-pet/internal/config"
	"github.com/Koi-west/claude-code-pet/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_Version(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), &out, io.Discard, []string{"version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "version:") {
		t.Errorf("version output missing fields: %q", out.String())
	}
}

func TestRun_VersionJSON(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), &out, io.Discard, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), `"go_version"`) {
		t.Errorf("json output missing go_version: %q", out.String())
	}
}

func TestRun_NoCommandPrintsUsage(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), &out, io.Discard, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Usage: miko") {
		t.Errorf("usage not printed: %q", out.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	err := run(context.Background(), io.Discard, io.Discard, []string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("err = %v, want unknown command", err)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	err := run(context.Background(), io.Discard, io.Discard, []string{"-bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Errorf("err = %v, want unknown flag", err)
	}
}

func TestRun_BadOutputFormat(t *testing.T) {
	err := run(context.Background(), io.Discard, io.Discard, []string{"-o", "xml", "version"})
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("err = %v, want unknown output format", err)
	}
}

func TestOpenStore_Backends(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.SessionConfig
		wantErr string
	}{
		{name: "default memory", cfg: config.SessionConfig{MaxHistory: 10}},
		{name: "explicit memory", cfg: config.SessionConfig{Backend: "memory", MaxHistory: 10}},
		{
			name: "file",
			cfg:  config.SessionConfig{Backend: "file", Path: filepath.Join(dir, "memory.json"), MaxHistory: 10},
		},
		{
			name: "sqlite",
			cfg:  config.SessionConfig{Backend: "sqlite", Path: filepath.Join(dir, "memory.db"), MaxHistory: 10},
		},
		{
			name:    "file without path",
			cfg:     config.SessionConfig{Backend: "file"},
			wantErr: "session.path",
		},
		{
			name:    "unknown backend",
			cfg:     config.SessionConfig{Backend: "redis"},
			wantErr: "unknown session backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(&config.Config{Session: tt.cfg})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("openStore: %v", err)
			}
			defer closeStore(store, testLogger())

			if err := store.RecordInteraction("default", session.Interaction{
				User:      "你好",
				Assistant: "你好呀！",
			}); err != nil {
				t.Fatalf("record: %v", err)
			}
			if got := store.RecentMessages("default", 3); len(got) != 2 {
				t.Errorf("recent = %d messages, want 2", len(got))
			}
		})
	}
}

func TestShellRunner_ConfigLayering(t *testing.T) {
	cfg := config.Default()
	cfg.ShellExec.WorkingDir = "/tmp"
	cfg.ShellExec.DeniedPatterns = []string{"shutdown now"}
	cfg.ShellExec.DefaultTimeoutSec = 5

	runner := shellRunner(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := runner.Run(ctx, "shutdown now")
	if err == nil {
		t.Errorf("configured denial not enforced: %q", out)
	}
	if _, err := runner.Run(ctx, "rm -rf /"); err == nil {
		t.Error("built-in denial lost after layering")
	}
}

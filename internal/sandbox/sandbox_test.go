//go:build !windows

package sandbox

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/workspace"
)

func TestHostRunner(t *testing.T) {
	r := NewHostRunner(DefaultConfig())
	dir := t.TempDir()
	ctx := context.Background()

	t.Run("stdout", func(t *testing.T) {
		res, err := r.RunCmd(ctx, dir, "sh", []string{"-c", "echo hello"}, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.TrimSpace(res.Stdout) != "hello" || res.Code != 0 {
			t.Errorf("got %+v", res)
		}
	})

	t.Run("exit code", func(t *testing.T) {
		res, err := r.RunCmd(ctx, dir, "sh", []string{"-c", "echo oops >&2; exit 3"}, 0)
		if err == nil {
			t.Fatal("expected error for non-zero exit")
		}
		if res.Code != 3 || strings.TrimSpace(res.Stderr) != "oops" {
			t.Errorf("got %+v", res)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		start := time.Now()
		res, err := r.RunCmd(ctx, dir, "sh", []string{"-c", "sleep 5"}, 50*time.Millisecond)
		if err == nil || !res.TimedOut {
			t.Errorf("expected timeout, got %+v err=%v", res, err)
		}
		if time.Since(start) > 3*time.Second {
			t.Errorf("process group not killed in time")
		}
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := r.RunCmd(ctx, dir, "definitely-not-a-real-binary-xyz", nil, 0)
		if !IsCommandNotFound(err) {
			t.Errorf("expected command-not-found, got %v", err)
		}
	})
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"Docker", ModeDocker, false},
		{" host ", ModeHost, false},
		{"vm", ModeAuto, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) = %s, %v", tt.in, got, err)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SEPILOT_SANDBOX_MODE", "host")
	t.Setenv("SEPILOT_CMD_TIMEOUT", "30s")
	t.Setenv("SEPILOT_DOCKER_MEMORY", "512m")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := DefaultConfig().ApplyEnv(logger)
	if cfg.Mode != ModeHost || cfg.CmdTimeout != 30*time.Second || cfg.Memory != "512m" {
		t.Errorf("got %+v", cfg)
	}

	t.Setenv("SEPILOT_SANDBOX_MODE", "bogus")
	if cfg := DefaultConfig().ApplyEnv(logger); cfg.Mode != ModeAuto {
		t.Errorf("invalid mode should keep default, got %s", cfg.Mode)
	}
}

func TestResourceParsing(t *testing.T) {
	if got := memoryBytes("512m"); got != 512<<20 {
		t.Errorf("memoryBytes(512m) = %d", got)
	}
	if got := memoryBytes(""); got != defaultMemoryBytes {
		t.Errorf("memoryBytes(\"\") = %d", got)
	}
	if got := memoryBytes("lots"); got != defaultMemoryBytes {
		t.Errorf("memoryBytes(lots) = %d", got)
	}
	if got := cpus("1.5"); got != 1.5 {
		t.Errorf("cpus(1.5) = %v", got)
	}
	if got := cpus("-1"); got != defaultCPUs {
		t.Errorf("cpus(-1) = %v", got)
	}
}

func TestImageFor(t *testing.T) {
	if got := ImageFor(workspace.ProjectTypeGo, Config{}); got != "golang:alpine" {
		t.Errorf("go image = %s", got)
	}
	if got := ImageFor(workspace.ProjectTypeGo, Config{Image: "custom:1"}); got != "custom:1" {
		t.Errorf("override ignored: %s", got)
	}
	if got := ImageFor(workspace.ProjectTypeUnknown, Config{}); got != "alpine:latest" {
		t.Errorf("fallback image = %s", got)
	}
}

func TestResultCombined(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{Result{Stdout: "a\n", Stderr: "b"}, "a\nb"},
		{Result{Stdout: "a"}, "a"},
		{Result{Stderr: "b"}, "b"},
	}
	for _, tt := range tests {
		if got := tt.res.Combined(); got != tt.want {
			t.Errorf("Combined() = %q, want %q", got, tt.want)
		}
	}
}

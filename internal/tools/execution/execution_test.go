package execution

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/sandbox"
)

// MockRunner records the last command and returns a canned result.
type MockRunner struct {
	RunCmdFunc func(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error)
	gotName    string
	gotArgs    []string
}

func (m *MockRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
	m.gotName, m.gotArgs = name, args
	if m.RunCmdFunc != nil {
		return m.RunCmdFunc(ctx, dir, name, args, timeout)
	}
	return sandbox.Result{}, nil
}

func TestRunCommandImpl(t *testing.T) {
	tests := []struct {
		name       string
		command    string
		mockResult sandbox.Result
		mockErr    error
		wantErr    bool
		wantName   string
		wantArgs   []string
		wantStatus string
		wantStdout string
	}{
		{
			name:       "Allowed command",
			command:    "go version",
			mockResult: sandbox.Result{Stdout: "go version go1.24"},
			wantName:   "go",
			wantArgs:   []string{"version"},
			wantStatus: "ok",
			wantStdout: "go version go1.24",
		},
		{
			name:       "Quoted arguments",
			command:    `git commit -m "fix the bug"`,
			wantName:   "git",
			wantArgs:   []string{"commit", "-m", "fix the bug"},
			wantStatus: "ok",
		},
		{
			name:       "Pipes run through sh",
			command:    "go test ./... | tail -5",
			wantName:   "sh",
			wantArgs:   []string{"-c", "go test ./... | tail -5"},
			wantStatus: "ok",
		},
		{
			name:       "Non-zero exit is a failed result",
			command:    "go vet ./...",
			mockResult: sandbox.Result{Stderr: "vet: bad", Code: 1},
			mockErr:    errors.New("exit status 1"),
			wantName:   "go",
			wantArgs:   []string{"vet", "./..."},
			wantStatus: "failed",
		},
		{
			name:    "Disallowed command",
			command: "forbidden_cmd --some-arg",
			wantErr: true,
		},
		{
			name:    "Missing binary",
			command: "cargo build",
			mockErr: exec.ErrNotFound,
			wantErr: true,
		},
		{
			name:    "Empty command",
			command: "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{
				RunCmdFunc: func(context.Context, string, string, []string, time.Duration) (sandbox.Result, error) {
					return tt.mockResult, tt.mockErr
				},
			}

			out, err := runCommandImpl(context.Background(), runner, "/tmp", tt.command, time.Minute, defaultCmdLines)
			if (err != nil) != tt.wantErr {
				t.Fatalf("runCommandImpl() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if runner.gotName != tt.wantName || !reflect.DeepEqual(runner.gotArgs, tt.wantArgs) {
				t.Errorf("ran %s %v, want %s %v", runner.gotName, runner.gotArgs, tt.wantName, tt.wantArgs)
			}
			var res ExecResult
			if err := json.Unmarshal([]byte(out), &res); err != nil {
				t.Fatalf("failed to unmarshal result: %v", err)
			}
			if res.Status != tt.wantStatus || res.Stdout != tt.wantStdout {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestClamps(t *testing.T) {
	if got := clampTimeout(nil); got != defaultCmdTimeout {
		t.Errorf("default timeout = %v", got)
	}
	if got := clampTimeout(float64(1)); got != minCmdTimeout {
		t.Errorf("low timeout = %v", got)
	}
	if got := clampTimeout(float64(9999)); got != maxCmdTimeout {
		t.Errorf("high timeout = %v", got)
	}
	if got := clampLines(float64(2)); got != minCmdLines {
		t.Errorf("low lines = %d", got)
	}
	if got := clampLines(1000); got != maxCmdLines {
		t.Errorf("high lines = %d", got)
	}
}

func TestTruncateOutput(t *testing.T) {
	out, truncated := truncateOutput("a\nb\nc\nd", 2)
	if out != "a\nb" || !truncated {
		t.Errorf("got %q, %v", out, truncated)
	}
	out, truncated = truncateOutput(strings.Repeat("x", maxCmdChars+10), 10)
	if len(out) != maxCmdChars || !truncated {
		t.Errorf("char cap not applied: %d", len(out))
	}
}

func TestRunTestsUsesDetectedProject(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &MockRunner{}
	out, err := NewRunTestsTool(dir, runner).Fn(context.Background(), nil)
	if err != nil {
		t.Fatalf("run_tests: %v", err)
	}
	if runner.gotName != "go" || !reflect.DeepEqual(runner.gotArgs, []string{"test", "./..."}) {
		t.Errorf("ran %s %v", runner.gotName, runner.gotArgs)
	}
	if !strings.Contains(out, `"command":"go test ./..."`) {
		t.Errorf("unexpected output %s", out)
	}

	if _, err := NewRunBuildTool(t.TempDir(), runner).Fn(context.Background(), nil); err == nil {
		t.Error("expected an error for an unknown project")
	}
}

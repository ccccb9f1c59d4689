package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/sandbox"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/workspace"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	RunFunc func(name string, args []string) (sandbox.Result, error)
}

func (f *fakeRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	f.mu.Unlock()
	if f.RunFunc == nil {
		return sandbox.Result{}, nil
	}
	return f.RunFunc(name, args)
}

func projectDir(t *testing.T, manifest string) string {
	t.Helper()
	dir := t.TempDir()
	if manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, manifest), []byte("{}"), 0o644))
	}
	return dir
}

func TestVerifyNothingModified(t *testing.T) {
	runner := &fakeRunner{}
	p := New(runner, Options{}, nil)
	rep, err := p.Verify(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.True(t, rep.AllPassed)
	assert.NotNil(t, rep.Checks)
	assert.Empty(t, rep.Checks)
	assert.Empty(t, runner.calls)
}

func TestVerifyFailingLint(t *testing.T) {
	root := projectDir(t, "package.json")
	runner := &fakeRunner{RunFunc: func(name string, args []string) (sandbox.Result, error) {
		if len(args) > 1 && args[1] == "eslint" {
			out := "src/a.ts\n  1:7  error  'x' is assigned a value but never used  no-unused-vars\n\n✖ 1 problem (1 error, 0 warnings)\n"
			return sandbox.Result{Stdout: out, Code: 1}, errors.New("exit status 1")
		}
		return sandbox.Result{}, nil
	}}
	p := New(runner, Options{}, nil)

	rep, err := p.Verify(context.Background(), root, []string{"src/a.ts", "src/b.ts", "src/c.ts"})
	require.NoError(t, err)
	assert.False(t, rep.AllPassed)
	require.Len(t, rep.Checks, 2)

	byName := map[string]CheckResult{}
	for _, c := range rep.Checks {
		byName[c.Name] = c
	}
	assert.True(t, byName[CheckTypeCheck].Passed)
	assert.False(t, byName[CheckLint].Passed)
	assert.Contains(t, byName[CheckLint].Command, "src/a.ts src/b.ts src/c.ts")
	assert.Contains(t, rep.Summary(), "lint")
	require.Len(t, rep.Suggestions, 1)
	assert.Contains(t, rep.Suggestions[0], "eslint --fix")
}

func TestVerifyMarkersDecide(t *testing.T) {
	root := projectDir(t, "package.json")
	runner := &fakeRunner{RunFunc: func(name string, args []string) (sandbox.Result, error) {
		if len(args) > 1 && args[1] == "tsc" {
			return sandbox.Result{Stdout: "src/a.ts(3,1): error TS2304: Cannot find name 'foo'.", Code: 2}, errors.New("exit status 2")
		}
		// non-zero exit without a known marker is not a failure
		return sandbox.Result{Stdout: "warning only", Code: 1}, errors.New("exit status 1")
	}}
	rep, err := New(runner, Options{}, nil).Verify(context.Background(), root, []string{"src/a.ts"})
	require.NoError(t, err)
	require.Len(t, rep.Checks, 2)
	for _, c := range rep.Checks {
		switch c.Name {
		case CheckTypeCheck:
			assert.False(t, c.Passed)
			assert.Contains(t, c.Message, "error TS2304")
		case CheckLint:
			assert.True(t, c.Passed)
		}
	}
}

func TestVerifyGoFormatting(t *testing.T) {
	root := projectDir(t, "go.mod")
	runner := &fakeRunner{RunFunc: func(name string, args []string) (sandbox.Result, error) {
		if name == "gofmt" {
			return sandbox.Result{Stdout: "main.go\n"}, nil
		}
		return sandbox.Result{}, nil
	}}
	rep, err := New(runner, Options{}, nil).Verify(context.Background(), root, []string{"main.go", "README.md"})
	require.NoError(t, err)
	assert.False(t, rep.AllPassed)
	assert.Contains(t, runner.calls, "go vet ./...")
	assert.Contains(t, runner.calls, "gofmt -l main.go")
}

func TestVerifyMissingToolIsSkipped(t *testing.T) {
	root := projectDir(t, "pyproject.toml")
	runner := &fakeRunner{RunFunc: func(name string, args []string) (sandbox.Result, error) {
		return sandbox.Result{Code: -1}, &exec.Error{Name: name, Err: exec.ErrNotFound}
	}}
	rep, err := New(runner, Options{}, nil).Verify(context.Background(), root, []string{"app.py"})
	require.NoError(t, err)
	assert.True(t, rep.AllPassed)
	require.Len(t, rep.Checks, 1, "python files are not statically typed, only lint runs")
	assert.True(t, rep.Checks[0].Skipped)
}

func TestVerifyLintFileCap(t *testing.T) {
	root := projectDir(t, "pyproject.toml")
	var files []string
	for i := 0; i < 25; i++ {
		files = append(files, fmt.Sprintf("pkg/m%02d.py", i))
	}
	p := New(&fakeRunner{}, Options{}, nil)
	checks := p.Plan(root, files)
	require.Len(t, checks, 1)
	assert.Len(t, checks[0].Command.Args, 1+10)
}

func TestVerifyLintSkipsOtherLanguages(t *testing.T) {
	docsOnly := []string{"README.md", "config/app.yaml"}

	node := New(&fakeRunner{}, Options{}, nil).Plan(projectDir(t, "package.json"), docsOnly)
	assert.Empty(t, node)

	rust := New(&fakeRunner{}, Options{}, nil).Plan(projectDir(t, "Cargo.toml"), docsOnly)
	var names []string
	for _, c := range rust {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{CheckLint}, names)
}

func TestVerifyOptionalChecksAndOverrides(t *testing.T) {
	root := projectDir(t, "go.mod")
	p := New(&fakeRunner{}, Options{
		EnableBuild: true,
		EnableTest:  true,
		Commands:    map[string]workspace.Command{CheckTest: {Name: "make", Args: []string{"test"}}},
	}, nil)
	checks := p.Plan(root, []string{"a.go"})

	var names, cmds []string
	for _, c := range checks {
		names = append(names, c.Name)
		cmds = append(cmds, c.Command.String())
	}
	assert.Equal(t, []string{CheckTypeCheck, CheckLint, CheckBuild, CheckTest}, names)
	assert.Equal(t, "make test", cmds[3])
}

func TestVerifyTruncatesDetails(t *testing.T) {
	root := projectDir(t, "go.mod")
	runner := &fakeRunner{RunFunc: func(name string, args []string) (sandbox.Result, error) {
		if name == "go" {
			return sandbox.Result{Stderr: strings.Repeat("vet: bad\n", 200), Code: 1}, errors.New("exit status 1")
		}
		return sandbox.Result{}, nil
	}}
	rep, err := New(runner, Options{}, nil).Verify(context.Background(), root, []string{"a.go"})
	require.NoError(t, err)
	for _, c := range rep.Checks {
		if c.Name == CheckTypeCheck {
			assert.False(t, c.Passed)
			assert.LessOrEqual(t, len([]rune(c.Details)), 503)
		}
	}
}

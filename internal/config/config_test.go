package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/workspace"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeYAML(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root, NewManagerAt(t.TempDir()), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Engine.DefaultMaxIterations)
	assert.Equal(t, filepath.Join(root, ".sepilot/agent.db"), cfg.Store.Path)
	assert.False(t, cfg.Retrieval.Enabled)
	assert.True(t, cfg.Tools.Execution)
	assert.Equal(t, cfg.Invoker, cfg.Engine.Invoker)
	assert.NotEmpty(t, cfg.Approval.Destructive)
}

func TestLoadLayers(t *testing.T) {
	root := t.TempDir()
	user := NewManagerAt(t.TempDir())

	writeYAML(t, user.Path(), `
provider:
  provider: anthropic
  model: user-model
engine:
  max_iterations: 8
invoker:
  timeout: 45s
`)
	writeYAML(t, filepath.Join(root, WorkspaceFile), `
provider:
  model: workspace-model
tools:
  execution: false
verify:
  enable_build: true
  commands:
    lint: ruff check
retrieval:
  enabled: true
  top_k: 9
`)

	cfg, err := Load(root, user, envMap(map[string]string{"SEPILOT_MAX_ITERATIONS": "4"}), nil)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Provider, "user file survives a workspace file that omits it")
	assert.Equal(t, "workspace-model", cfg.Provider.Model)
	assert.Equal(t, "workspace-model", cfg.Engine.Model)
	assert.Equal(t, 4, cfg.Engine.DefaultMaxIterations, "env beats files")
	assert.Equal(t, 45*time.Second, cfg.Engine.Invoker.Timeout)
	assert.Equal(t, 2, cfg.Invoker.Retry.MaxRetries, "unset fields keep defaults")
	assert.False(t, cfg.Tools.Execution)
	assert.True(t, cfg.Tools.Editing)
	assert.True(t, cfg.Retrieval.Enabled)
	assert.Equal(t, 9, cfg.Retrieval.TopK)
	assert.Equal(t, 40, cfg.Retrieval.ChunkLines)
	assert.True(t, cfg.Verify.EnableBuild)

	opts, err := cfg.Verify.PipelineOptions()
	require.NoError(t, err)
	assert.Equal(t, workspace.Command{Name: "ruff", Args: []string{"check"}}, opts.Commands["lint"])
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := Load("", nil, envMap(map[string]string{
		"SEPILOT_MODEL":          "m",
		"SEPILOT_CONTEXT_TOKENS": "abc",
		"SEPILOT_TOOL_TIMEOUT":   "10s",
		"SEPILOT_RAG":            "true",
		"SEPILOT_STORE_PATH":     "/tmp/x.db",
	}), nil)
	require.NoError(t, err)

	assert.Equal(t, "m", cfg.Engine.Model)
	assert.Equal(t, 64000, cfg.Engine.ContextTokens, "bad values are ignored")
	assert.Equal(t, 10*time.Second, cfg.Engine.Invoker.Timeout)
	assert.True(t, cfg.Retrieval.Enabled)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	root := t.TempDir()
	writeYAML(t, filepath.Join(root, WorkspaceFile), "engine: [not, a, map]\n")
	_, err := Load(root, nil, nil, nil)
	assert.Error(t, err)
}

func TestPipelineOptionsEmptyCommand(t *testing.T) {
	v := VerifyConfig{Commands: map[string]string{"test": "  "}}
	_, err := v.PipelineOptions()
	assert.Error(t, err)
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, WriteDefault(path))
	assert.Error(t, WriteDefault(path), "existing file is kept")

	var cfg Config
	require.NoError(t, readInto(path, &cfg))
	assert.Equal(t, Default().Engine.DefaultMaxIterations, cfg.Engine.DefaultMaxIterations)
	assert.Equal(t, Default().Invoker, cfg.Invoker)
	assert.Equal(t, Default().Sandbox.CmdTimeout, cfg.Sandbox.CmdTimeout)
}

func TestManagerSave(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "sepilot"))
	assert.False(t, m.Exists())

	cfg := Default()
	cfg.Provider.APIKey = "secret"
	require.NoError(t, m.Save(cfg))
	assert.True(t, m.Exists())

	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestManagerLoadIgnoresEnv(t *testing.T) {
	m := NewManagerAt(t.TempDir())
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Engine.DefaultMaxIterations, cfg.Engine.DefaultMaxIterations)

	cfg.Provider.Provider = "groq"
	require.NoError(t, m.Save(cfg))

	t.Setenv("SEPILOT_SANDBOX_MODE", "host")
	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "groq", loaded.Provider.Provider)
	assert.Equal(t, Default().Sandbox.Mode, loaded.Sandbox.Mode)
}

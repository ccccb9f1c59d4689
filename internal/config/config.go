// Package config layers agent settings from built-in defaults, the user
// config file, the workspace's .sepilot/agent.yaml and SEPILOT_*
// environment variables, in that order.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/compactor"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/engine"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/invoker"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/providers"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/retrieval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/sandbox"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/store"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools/builtin"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/triage"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/verify"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/workspace"
)

// WorkspaceFile is the per-workspace config location.
const WorkspaceFile = ".sepilot/agent.yaml"

// Config is the full agent configuration.
type Config struct {
	Provider  providers.Settings `yaml:"provider"`
	Engine    engine.Config      `yaml:"engine"`
	Invoker   invoker.Policy     `yaml:"invoker"`
	Compactor compactor.Options  `yaml:"compactor"`
	Triage    triage.Keywords    `yaml:"triage"`
	Approval  approval.Policy    `yaml:"approval"`
	Verify    VerifyConfig       `yaml:"verify"`
	Sandbox   sandbox.Config     `yaml:"sandbox"`
	Store     StoreConfig        `yaml:"store"`
	Retrieval RetrievalConfig    `yaml:"retrieval"`
	Tools     builtin.Set        `yaml:"tools"`
	Session   SessionConfig      `yaml:"session"`
}

// VerifyConfig adds command overrides written as plain command lines.
type VerifyConfig struct {
	verify.Options `yaml:",inline"`
	// Commands maps a check name (build, test, lint, typecheck) to the
	// command line that replaces the detected one.
	Commands map[string]string `yaml:"commands"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path"` // relative paths resolve against the workspace
}

// RetrievalConfig turns the bleve index on and tunes it.
type RetrievalConfig struct {
	Enabled           bool `yaml:"enabled"`
	retrieval.Options `yaml:",inline"`
}

// SessionConfig locates saved sessions.
type SessionConfig struct {
	Dir string `yaml:"dir"` // empty means the user config dir
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine:    engine.DefaultConfig(),
		Invoker:   invoker.DefaultPolicy(),
		Compactor: compactor.DefaultOptions(),
		Triage:    triage.DefaultKeywords(),
		Approval:  approval.DefaultPolicy(),
		Verify:    VerifyConfig{Options: verify.DefaultOptions()},
		Sandbox:   sandbox.DefaultConfig(),
		Store:     StoreConfig{Path: store.DefaultPath},
		Retrieval: RetrievalConfig{Options: retrieval.DefaultOptions()},
		Tools:     builtin.AllTools(),
	}
}

// Load builds the configuration for the workspace at root. A nil getenv
// disables environment overrides other than the sandbox ones.
func Load(root string, m *Manager, getenv func(string) string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	if m != nil {
		if err := readInto(m.Path(), &cfg); err != nil {
			return Config{}, err
		}
	}
	if root != "" {
		if err := readInto(filepath.Join(root, WorkspaceFile), &cfg); err != nil {
			return Config{}, err
		}
	}
	if getenv != nil {
		cfg.applyEnv(getenv, logger)
	}
	cfg.Sandbox = cfg.Sandbox.ApplyEnv(logger)

	if cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) && root != "" {
		cfg.Store.Path = filepath.Join(root, cfg.Store.Path)
	}
	cfg.Engine.Invoker = cfg.Invoker
	if cfg.Engine.Model == "" {
		cfg.Engine.Model = cfg.Provider.Model
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string, logger *slog.Logger) {
	if v := getenv("SEPILOT_MODEL"); v != "" {
		c.Engine.Model = v
		c.Provider.Model = v
	}
	if v := getenv("SEPILOT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.DefaultMaxIterations = n
		} else {
			logger.Warn("ignoring SEPILOT_MAX_ITERATIONS", "value", v)
		}
	}
	if v := getenv("SEPILOT_CONTEXT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.ContextTokens = n
		} else {
			logger.Warn("ignoring SEPILOT_CONTEXT_TOKENS", "value", v)
		}
	}
	if v := getenv("SEPILOT_TOOL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Invoker.Timeout = d
		} else {
			logger.Warn("ignoring SEPILOT_TOOL_TIMEOUT", "value", v)
		}
	}
	if v := getenv("SEPILOT_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := getenv("SEPILOT_RAG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Retrieval.Enabled = b
		} else {
			logger.Warn("ignoring SEPILOT_RAG", "value", v)
		}
	}
}

// PipelineOptions converts the verify section for verify.New.
func (v VerifyConfig) PipelineOptions() (verify.Options, error) {
	opts := v.Options
	if len(v.Commands) == 0 {
		return opts, nil
	}
	opts.Commands = make(map[string]workspace.Command, len(v.Commands))
	for check, line := range v.Commands {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return verify.Options{}, fmt.Errorf("verify command for %q is empty", check)
		}
		opts.Commands[check] = workspace.Command{Name: fields[0], Args: fields[1:]}
	}
	return opts, nil
}

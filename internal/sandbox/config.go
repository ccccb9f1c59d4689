package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto uses Docker when the daemon answers, otherwise the host.
	ModeAuto Mode = "auto"
)

const defaultCmdTimeout = 2 * time.Minute

// Config holds configuration for sandbox execution.
type Config struct {
	Mode       Mode          `yaml:"mode"`
	Image      string        `yaml:"image"`  // overrides the per-project image
	CPU        string        `yaml:"cpu"`    // e.g. "2" or "1.5"
	Memory     string        `yaml:"memory"` // e.g. "1g", "512m"
	CmdTimeout time.Duration `yaml:"cmd_timeout"`
	Network    bool          `yaml:"network"` // allow network inside containers
}

// DefaultConfig returns the compiled defaults.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeAuto,
		CPU:        "2",
		Memory:     "1g",
		CmdTimeout: defaultCmdTimeout,
	}
}

// ParseMode parses a mode name. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "docker":
		return ModeDocker, nil
	case "host":
		return ModeHost, nil
	default:
		return ModeAuto, fmt.Errorf("unknown sandbox mode %q", s)
	}
}

// ApplyEnv overlays SEPILOT_SANDBOX_MODE, SEPILOT_CMD_TIMEOUT,
// SEPILOT_DOCKER_IMAGE, SEPILOT_DOCKER_CPU and SEPILOT_DOCKER_MEMORY.
func (c Config) ApplyEnv(logger *slog.Logger) Config {
	if v, ok := os.LookupEnv("SEPILOT_SANDBOX_MODE"); ok {
		m, err := ParseMode(v)
		if err != nil {
			logger.Warn("ignoring SEPILOT_SANDBOX_MODE", "value", v, "error", err)
		} else {
			c.Mode = m
		}
	}
	if v := os.Getenv("SEPILOT_CMD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.CmdTimeout = d
		} else {
			logger.Warn("ignoring SEPILOT_CMD_TIMEOUT", "value", v)
		}
	}
	if v := os.Getenv("SEPILOT_DOCKER_IMAGE"); v != "" {
		c.Image = v
	}
	if v := os.Getenv("SEPILOT_DOCKER_CPU"); v != "" {
		c.CPU = v
	}
	if v := os.Getenv("SEPILOT_DOCKER_MEMORY"); v != "" {
		c.Memory = v
	}
	return c
}

// DockerAvailable reports whether the docker CLI can reach a daemon.
func DockerAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "ps").Run() == nil
}

// New returns the runner cfg asks for. Docker failures fall back to the host
// runner with a warning, except in ModeDocker where they are returned.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Mode {
	case ModeHost:
		logger.Warn("sandbox disabled: commands run directly on the host")
		return NewHostRunner(cfg), nil
	case ModeDocker:
		return NewDockerRunner(ctx, cfg)
	default:
		if !DockerAvailable(ctx) {
			logger.Warn("docker not available, commands run directly on the host")
			return NewHostRunner(cfg), nil
		}
		r, err := NewDockerRunner(ctx, cfg)
		if err != nil {
			logger.Warn("docker runner unavailable, commands run directly on the host", "error", err)
			return NewHostRunner(cfg), nil
		}
		return r, nil
	}
}

func effectiveTimeout(timeout time.Duration, cfg Config) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if cfg.CmdTimeout > 0 {
		return cfg.CmdTimeout
	}
	return defaultCmdTimeout
}

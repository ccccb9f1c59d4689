package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manager handles the user-level config file.
type Manager struct {
	configDir string
}

// NewManager returns a manager rooted at the user config dir.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{configDir: filepath.Join(configDir, "sepilot")}, nil
}

// NewManagerAt returns a manager rooted at dir.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// Dir returns the directory holding the config file and saved sessions.
func (m *Manager) Dir() string {
	return m.configDir
}

// Path returns the absolute path to agent.yaml.
func (m *Manager) Path() string {
	return filepath.Join(m.configDir, "agent.yaml")
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.Path())
	return err == nil
}

// Load reads the user file over the defaults without environment
// overrides. A missing file yields the defaults.
func (m *Manager) Load() (Config, error) {
	cfg := Default()
	if err := readInto(m.Path(), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg with owner-only permissions since it may hold an API key.
func (m *Manager) Save(cfg Config) error {
	return writeFile(m.Path(), cfg, 0o600)
}

// WriteDefault writes the default configuration to path unless a file is
// already there.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return writeFile(path, Default(), 0o644)
}

func writeFile(path string, cfg Config, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// readInto overlays the file at path onto cfg. A missing file is not an error.
func readInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

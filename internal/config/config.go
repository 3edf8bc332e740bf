// Package config handles global assetcat configuration and the per-project
// assetcat.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global assetcat configuration.
type Config struct {
	// DefaultProject is the name of the default project (from Projects).
	DefaultProject string `toml:"default_project"`

	// Projects is a map of project names to root paths.
	Projects map[string]string `toml:"projects"`

	// UI controls optional CLI theming preferences.
	UI UIConfig `toml:"ui"`

	// Log controls diagnostic logging on stderr.
	Log LogConfig `toml:"log"`
}

// UIConfig represents optional CLI theming preferences.
type UIConfig struct {
	// Accent is an optional accent color for CLI output.
	// Supported values are ANSI color codes ("0" to "255") or hex colors ("#RRGGBB").
	Accent string `toml:"accent"`
}

// LogConfig configures the stderr logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `toml:"level"`
}

// GetProjectPath returns the root of a named project.
// If name is empty, returns the default project's root.
func (c *Config) GetProjectPath(name string) (string, error) {
	if name == "" {
		name = c.DefaultProject
	}
	if name == "" {
		return "", fmt.Errorf("no default project configured")
	}
	if path, ok := c.Projects[name]; ok {
		return path, nil
	}
	return "", fmt.Errorf("project '%s' not found in config", name)
}

// Load loads the configuration from the default location.
// Returns a default config if the file doesn't exist.
func Load() (*Config, error) {
	configPath := DefaultPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return &Config{}, nil
	}

	return LoadFrom(configPath)
}

// LoadFrom loads the configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &config, nil
}

// DefaultPath returns the default config file path.
// Checks ~/.config/assetcat/config.toml first (XDG style),
// then falls back to the OS-specific location.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		xdgPath := filepath.Join(home, ".config", "assetcat", "config.toml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "assetcat", "config.toml")
	}

	return filepath.Join(".", "config.toml")
}

// CreateDefault creates a default config file if it doesn't exist.
func CreateDefault() (string, error) {
	configPath := DefaultPath()

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil // Already exists
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	defaultConfig := `# assetcat configuration

# Default project name (must exist in [projects] below)
# default_project = "game"

# Named projects
# [projects]
# game = "/path/to/game"

# Optional UI accent color for headers in terminal output.
# Supports ANSI color codes (0-255) or hex (#RRGGBB).
# [ui]
# accent = "39"

# [log]
# level = "info"
`

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return configPath, nil
}

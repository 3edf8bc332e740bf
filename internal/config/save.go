package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/aidanlsb/assetcat/internal/atomicfile"
)

type persistedConfig struct {
	DefaultProject *string               `toml:"default_project,omitempty"`
	Projects       map[string]string     `toml:"projects,omitempty"`
	UI             *persistedUISettings  `toml:"ui,omitempty"`
	Log            *persistedLogSettings `toml:"log,omitempty"`
}

type persistedUISettings struct {
	Accent *string `toml:"accent,omitempty"`
}

type persistedLogSettings struct {
	Level *string `toml:"level,omitempty"`
}

func nonEmptyPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// Save writes the global config to the default config path.
func Save(cfg *Config) error {
	return SaveTo(DefaultPath(), cfg)
}

// SaveTo writes the global config to a specific path atomically.
// Empty settings are omitted.
func SaveTo(path string, cfg *Config) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	out := persistedConfig{
		DefaultProject: nonEmptyPtr(cfg.DefaultProject),
	}
	if len(cfg.Projects) > 0 {
		out.Projects = cfg.Projects
	}
	if accent := nonEmptyPtr(cfg.UI.Accent); accent != nil {
		out.UI = &persistedUISettings{Accent: accent}
	}
	if level := nonEmptyPtr(cfg.Log.Level); level != nil {
		out.Log = &persistedLogSettings{Level: level}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(out); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := atomicfile.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}

	return nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigGetProjectPath(t *testing.T) {
	cfg := &Config{
		DefaultProject: "game",
		Projects: map[string]string{
			"game":  "/path/to/game",
			"tools": "/path/to/tools",
		},
	}

	tests := []struct {
		name    string
		arg     string
		want    string
		wantErr bool
	}{
		{name: "named project", arg: "tools", want: "/path/to/tools"},
		{name: "default project", arg: "", want: "/path/to/game"},
		{name: "missing project", arg: "nope", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.GetProjectPath(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	empty := &Config{}
	if _, err := empty.GetProjectPath(""); err == nil {
		t.Error("expected error with no default project")
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := &Config{
		DefaultProject: " game ",
		Projects:       map[string]string{"game": "/tmp/game"},
		UI:             UIConfig{Accent: "39"},
		Log:            LogConfig{Level: "debug"},
	}
	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo returned error: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}
	if loaded.DefaultProject != "game" {
		t.Errorf("default_project = %q, want trimmed %q", loaded.DefaultProject, "game")
	}
	if loaded.Projects["game"] != "/tmp/game" {
		t.Errorf("projects.game = %q", loaded.Projects["game"])
	}
	if loaded.UI.Accent != "39" || loaded.Log.Level != "debug" {
		t.Errorf("unexpected ui/log: %+v %+v", loaded.UI, loaded.Log)
	}
}

func TestSaveToOmitsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := SaveTo(path, &Config{}); err != nil {
		t.Fatalf("SaveTo returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"default_project", "[ui]", "[log]", "[projects]"} {
		if strings.Contains(string(data), key) {
			t.Errorf("expected %s to be omitted, got %q", key, data)
		}
	}
}

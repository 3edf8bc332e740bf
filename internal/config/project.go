package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/aidanlsb/assetcat/internal/atomicfile"
	"github.com/aidanlsb/assetcat/internal/paths"
	"github.com/aidanlsb/assetcat/internal/source"
)

// ProjectFile is the project config file name, at the project root.
const ProjectFile = "assetcat.yaml"

// StateDir holds assetcat's per-project state.
const StateDir = ".assetcat"

// Defaults applied by the getters.
const (
	DefaultServeAddr = "127.0.0.1:7411"
	DefaultWorkers   = 4
	DefaultDebounce  = 100 * time.Millisecond
)

// ErrNoProject is returned when no project root is found.
var ErrNoProject = errors.New("not inside an assetcat project")

// ProjectConfig represents project-level configuration from assetcat.yaml.
type ProjectConfig struct {
	// Roots are the content directories, relative to the project root
	// (default: ["Assets"]). Logical paths strip the first matching root.
	Roots []string `yaml:"roots,omitempty"`

	// ResourcesSegment is the folder name marking path-addressed content
	// (default: "Resources").
	ResourcesSegment string `yaml:"resources_segment,omitempty"`

	// Index is the external index DSN, e.g. "redis://localhost:6379/0".
	// Empty disables the external index.
	Index string `yaml:"index,omitempty"`

	// IndexTimeout bounds one external index lookup (default: 2s).
	IndexTimeout Duration `yaml:"index_timeout,omitempty"`

	// Audit enables .assetcat/audit.log (default: true).
	Audit *bool `yaml:"audit,omitempty"`

	Serve ServeConfig `yaml:"serve,omitempty"`
	Sync  SyncConfig  `yaml:"sync,omitempty"`
	Watch WatchConfig `yaml:"watch,omitempty"`
}

// ServeConfig configures `acat serve`.
type ServeConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// SyncConfig configures the sync agent.
type SyncConfig struct {
	// Workers is the number of parallel workers in serve mode.
	Workers int `yaml:"workers,omitempty"`

	// PreserveForeignIdentity keeps a duplicate's stored id as an override
	// when no other object owns it, instead of restamping.
	PreserveForeignIdentity bool `yaml:"preserve_foreign_identity,omitempty"`
}

// WatchConfig configures `acat watch`.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// IsZero lets omitempty drop unset durations.
func (d Duration) IsZero() bool { return d == 0 }

// DefaultProjectConfig returns the default project configuration.
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{}
}

// GetRoots returns the normalized content roots.
func (pc *ProjectConfig) GetRoots() []string {
	if len(pc.Roots) == 0 {
		return []string{paths.DefaultRoot}
	}
	out := make([]string, 0, len(pc.Roots))
	for _, r := range pc.Roots {
		if n := paths.NormalizeDirRoot(r); n != "" {
			out = append(out, n[:len(n)-1])
		}
	}
	return out
}

// GetIndexTimeout returns the external index timeout.
func (pc *ProjectConfig) GetIndexTimeout() time.Duration {
	if pc.IndexTimeout <= 0 {
		return source.DefaultIndexTimeout
	}
	return time.Duration(pc.IndexTimeout)
}

// GetServeAddr returns the HTTP listen address.
func (pc *ProjectConfig) GetServeAddr() string {
	if pc.Serve.Addr == "" {
		return DefaultServeAddr
	}
	return pc.Serve.Addr
}

// GetWorkers returns the number of sync workers.
func (pc *ProjectConfig) GetWorkers() int {
	if pc.Sync.Workers <= 0 {
		return DefaultWorkers
	}
	return pc.Sync.Workers
}

// GetDebounce returns the watcher debounce interval.
func (pc *ProjectConfig) GetDebounce() time.Duration {
	if pc.Watch.Debounce <= 0 {
		return DefaultDebounce
	}
	return time.Duration(pc.Watch.Debounce)
}

// IsAuditEnabled reports whether the audit log is on.
func (pc *ProjectConfig) IsAuditEnabled() bool {
	return pc.Audit == nil || *pc.Audit
}

// SourceOptions returns the factory chain options for this project.
func (pc *ProjectConfig) SourceOptions() source.Options {
	return source.Options{
		Roots:            pc.GetRoots(),
		ResourcesSegment: pc.ResourcesSegment,
		IndexTimeout:     pc.GetIndexTimeout(),
	}
}

//go:embed project.schema.json
var projectSchemaJSON []byte

var (
	projectSchemaOnce sync.Once
	projectSchema     *jsonschema.Schema
	projectSchemaErr  error
)

func compiledProjectSchema() (*jsonschema.Schema, error) {
	projectSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(projectSchemaJSON))
		if err != nil {
			projectSchemaErr = fmt.Errorf("project schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("assetcat.schema.json", doc); err != nil {
			projectSchemaErr = fmt.Errorf("project schema: %w", err)
			return
		}
		projectSchema, projectSchemaErr = c.Compile("assetcat.schema.json")
	})
	return projectSchema, projectSchemaErr
}

// ValidateProjectConfig checks raw assetcat.yaml content against the
// embedded schema.
func ValidateProjectConfig(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse %s: %w", ProjectFile, err)
	}
	if raw == nil {
		return nil
	}

	// Round-trip through JSON so the validator sees JSON types.
	j, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", ProjectFile, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(j))
	if err != nil {
		return err
	}

	sch, err := compiledProjectSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("invalid %s: %w", ProjectFile, err)
	}
	return nil
}

// LoadProjectConfig loads assetcat.yaml from projectRoot.
// Returns the default config if the file doesn't exist.
func LoadProjectConfig(projectRoot string) (*ProjectConfig, error) {
	configPath := filepath.Join(projectRoot, ProjectFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProjectConfig(), nil
		}
		return nil, fmt.Errorf("failed to read project config %s: %w", configPath, err)
	}

	if err := ValidateProjectConfig(data); err != nil {
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse project config %s: %w", configPath, err)
	}
	return &cfg, nil
}

// CreateDefaultProjectConfig writes a commented assetcat.yaml and creates
// the state directory. Returns true if a new config file was created.
func CreateDefaultProjectConfig(projectRoot string) (bool, error) {
	if err := os.MkdirAll(filepath.Join(projectRoot, StateDir), 0o755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", StateDir, err)
	}

	configPath := filepath.Join(projectRoot, ProjectFile)
	if _, err := os.Stat(configPath); err == nil {
		return false, nil
	}

	defaultConfig := `# assetcat project configuration

# Content directories, relative to this file.
roots:
  - Assets

# Folder name marking path-addressed content.
resources_segment: Resources

# External index for indexed content. Supported schemes:
#   memory://, file://index.yaml, redis://host:6379/0, http(s)://host/base
# index: redis://localhost:6379/0
# index_timeout: 2s

# serve:
#   addr: 127.0.0.1:7411

# sync:
#   workers: 4
#   preserve_foreign_identity: false

# watch:
#   debounce: 100ms
`

	if err := atomicfile.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return false, fmt.Errorf("failed to write project config: %w", err)
	}
	return true, nil
}

// SaveProjectConfig writes cfg back to assetcat.yaml.
func SaveProjectConfig(projectRoot string, cfg *ProjectConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := ValidateProjectConfig(data); err != nil {
		return err
	}
	if err := atomicfile.WriteFile(filepath.Join(projectRoot, ProjectFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ProjectFile, err)
	}
	return nil
}

// FindProjectRoot walks up from start to the nearest directory holding
// assetcat.yaml or a state directory.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		for _, marker := range []string{ProjectFile, StateDir} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w (searched from %s)", ErrNoProject, start)
		}
		dir = parent
	}
}

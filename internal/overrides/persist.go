package overrides

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/aidanlsb/assetcat/internal/atomicfile"
	"github.com/aidanlsb/assetcat/internal/guid"
)

// Record is one persisted row, kept as text so that damaged rows can be
// reported instead of failing the whole load.
type Record struct {
	Container string `toml:"container"`
	Sub       int64  `toml:"sub"`
	GUID      string `toml:"guid"`
}

// Persister loads and saves the whole override table.
type Persister interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// DefaultFile is the project-relative location of the override table.
const DefaultFile = ".assetcat/overrides.toml"

type persistedTable struct {
	Overrides []Record `toml:"override"`
}

// FilePersister stores overrides in a TOML file.
type FilePersister struct {
	Path string
}

// NewFilePersister returns a persister for the table under projectRoot.
func NewFilePersister(projectRoot string) *FilePersister {
	return &FilePersister{Path: filepath.Join(projectRoot, filepath.FromSlash(DefaultFile))}
}

// Load reads the table. A missing file is an empty table.
func (p *FilePersister) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var table persistedTable
	if _, err := toml.DecodeFile(p.Path, &table); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", p.Path, err)
	}
	return table.Overrides, nil
}

// Save rewrites the table atomically.
func (p *FilePersister) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString("# Identifier overrides. Managed by `acat override`.\n\n")
	if len(records) > 0 {
		if err := toml.NewEncoder(&buf).Encode(persistedTable{Overrides: records}); err != nil {
			return fmt.Errorf("failed to marshal overrides: %w", err)
		}
	}
	if atomicfile.Unchanged(p.Path, buf.Bytes()) {
		return nil
	}
	return atomicfile.WriteFile(p.Path, buf.Bytes(), 0o644)
}

// MemoryPersister keeps the table in memory. Fail, when set, is returned
// from every Save.
type MemoryPersister struct {
	mu      sync.Mutex
	records []Record
	saves   int
	Fail    error
}

// NewMemoryPersister returns a persister seeded with records.
func NewMemoryPersister(records ...Record) *MemoryPersister {
	return &MemoryPersister{records: append([]Record(nil), records...)}
}

func (m *MemoryPersister) Load(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...), nil
}

func (m *MemoryPersister) Save(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.records = append([]Record(nil), records...)
	m.saves++
	return nil
}

// Records returns what was last saved.
func (m *MemoryPersister) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Saves returns the number of successful saves.
func (m *MemoryPersister) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func toRecords(entries []Entry) []Record {
	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = Record{
			Container: guid.FormatContainerID(e.Container),
			Sub:       e.Sub,
			GUID:      guid.Format(e.ID),
		}
	}
	return out
}

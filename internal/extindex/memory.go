package extindex

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/aidanlsb/assetcat/internal/guid"
)

// Memory is a static in-process index.
type Memory struct {
	mu      sync.RWMutex
	keys    map[string]string
	version uint64
}

// NewMemory returns an index seeded with keys, which maps FieldKey values
// to load keys.
func NewMemory(keys map[string]string) *Memory {
	m := &Memory{keys: make(map[string]string, len(keys))}
	for k, v := range keys {
		m.keys[k] = v
	}
	return m
}

// Put adds or replaces a key.
func (m *Memory) Put(container uuid.UUID, sub int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[FieldKey(container, sub)] = key
	m.version++
}

// Version counts the Put calls so far.
func (m *Memory) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *Memory) Key(ctx context.Context, container uuid.UUID, sub int64) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[FieldKey(container, sub)]
	return key, ok, nil
}

func (m *Memory) Close() error { return nil }

// openFile loads a YAML map. Keys are "<container>" (sub 0) or
// "<container>:<sub>":
//
//	5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f: bundles/units/tank
//	5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f:4: bundles/units/tank#turret
func openFile(dsn string) (Lookup, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	path := u.Path
	if u.Host != "" && u.Host != "localhost" {
		path = u.Host + path
	}
	if u.Opaque != "" {
		path = u.Opaque
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse index file: %w", err)
	}

	keys := make(map[string]string, len(raw))
	for k, v := range raw {
		container, sub, _ := strings.Cut(k, ":")
		id, err := guid.ParseContainerID(container)
		if err != nil {
			return nil, fmt.Errorf("index file key %q: %w", k, err)
		}
		var n int64
		if sub != "" {
			if n, err = strconv.ParseInt(sub, 10, 64); err != nil {
				return nil, fmt.Errorf("index file key %q: bad sub id", k)
			}
		}
		keys[FieldKey(id, n)] = v
	}
	return NewMemory(keys), nil
}

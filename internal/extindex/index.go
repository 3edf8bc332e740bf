// Package extindex talks to external indexing services that map content
// objects to opaque load keys.
package extindex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aidanlsb/assetcat/internal/guid"
)

// Lookup resolves an object to its key in an external index.
// found is false when the index does not know the object.
type Lookup interface {
	Key(ctx context.Context, container uuid.UUID, sub int64) (key string, found bool, err error)
	Close() error
}

// Versioned is implemented by indexes whose contents live in process.
// Version changes whenever a key is added or replaced.
type Versioned interface {
	Version() uint64
}

// Opener builds a Lookup from a DSN.
type Opener func(dsn string) (Lookup, error)

var registry = struct {
	mu      sync.RWMutex
	openers map[string]Opener
}{
	openers: map[string]Opener{},
}

func init() {
	Register("memory", func(string) (Lookup, error) { return NewMemory(nil), nil })
	Register("file", openFile)
	Register("redis", openRedis)
	Register("rediss", openRedis)
	Register("http", openHTTP)
	Register("https", openHTTP)
}

// Register installs an opener for scheme, replacing any previous one.
func Register(scheme string, open Opener) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || open == nil {
		return
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.openers[scheme] = open
}

// Open builds a Lookup for dsn. An empty DSN returns nil: no index is
// configured and the externally-indexed strategy never claims anything.
func Open(dsn string) (Lookup, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse index dsn: %w", err)
	}
	scheme := normalizeScheme(parsed.Scheme)

	registry.mu.RLock()
	open, ok := registry.openers[scheme]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return open(dsn)
}

func normalizeScheme(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FieldKey is the field name used by hash-backed indexes:
// "<container 32-hex>:<sub>".
func FieldKey(container uuid.UUID, sub int64) string {
	return guid.FormatContainerID(container) + ":" + strconv.FormatInt(sub, 10)
}

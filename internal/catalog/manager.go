package catalog

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/extindex"
	"github.com/aidanlsb/assetcat/internal/model"
)

// ObjectSource enumerates the project's content objects.
type ObjectSource interface {
	Objects(ctx context.Context) ([]model.ContentObject, error)
}

// Manager owns the current snapshot of a project.
//
// Readers call Current and never block. Rebuilds are serialised; concurrent
// Refresh calls share one rebuild.
type Manager struct {
	builder *Builder
	objects ObjectSource
	log     zerolog.Logger

	current atomic.Pointer[Snapshot]
	stale   atomic.Bool
	writeMu sync.Mutex
	group   singleflight.Group

	listenersMu sync.Mutex
	listeners   []func(Result)
}

// NewManager returns a manager holding an empty, stale snapshot.
func NewManager(b *Builder, objects ObjectSource, log zerolog.Logger) *Manager {
	m := &Manager{builder: b, objects: objects, log: log}
	m.current.Store(Empty())
	m.stale.Store(true)
	return m
}

// Builder returns the builder used for rebuilds.
func (m *Manager) Builder() *Builder { return m.builder }

// Current returns the latest snapshot.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// MarkStale flags the snapshot for rebuild on the next Refresh.
func (m *Manager) MarkStale(reason string) {
	if !m.stale.Swap(true) {
		m.log.Debug().Str("reason", reason).Msg("catalog marked stale")
	}
}

// Stale reports whether the snapshot is known to be out of date.
func (m *Manager) Stale() bool {
	return m.stale.Load()
}

// OnRebuild registers fn to run after every installed rebuild.
func (m *Manager) OnRebuild(fn func(Result)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Refresh rebuilds when the snapshot is stale or its inputs changed since
// it was built. rebuilt is false when the current snapshot was kept.
func (m *Manager) Refresh(ctx context.Context) (res Result, rebuilt bool, err error) {
	v, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx, false)
	})
	if err != nil {
		return Result{}, false, err
	}
	out := v.(refreshOutcome)
	return out.result, out.rebuilt, nil
}

// Rebuild forces a full rebuild.
func (m *Manager) Rebuild(ctx context.Context) (Result, error) {
	v, err, _ := m.group.Do("rebuild", func() (any, error) {
		return m.refresh(ctx, true)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(refreshOutcome).result, nil
}

type refreshOutcome struct {
	result  Result
	rebuilt bool
}

func (m *Manager) refresh(ctx context.Context, force bool) (refreshOutcome, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	// Clear before reading inputs so a MarkStale racing with the rebuild
	// is not lost.
	wasStale := m.stale.Swap(false)

	objects, err := m.objects.Objects(ctx)
	if err != nil {
		m.stale.Store(true)
		return refreshOutcome{}, fmt.Errorf("enumerate objects: %w", err)
	}

	fp := m.fingerprint(objects)
	cur := m.Current()
	if !force && !wasStale && cur.Fingerprint() == fp && cur.Version() > 0 {
		return refreshOutcome{result: Result{Snapshot: cur, Diagnostics: cur.Diagnostics()}}, nil
	}

	res := m.builder.Rebuild(ctx, objects)
	if err := ctx.Err(); err != nil {
		m.stale.Store(true)
		return refreshOutcome{}, err
	}
	res.Snapshot.fingerprint = fp
	m.install(res)
	return refreshOutcome{result: res, rebuilt: true}, nil
}

// Apply installs a snapshot produced elsewhere, e.g. by Builder.Upsert.
func (m *Manager) Apply(res Result) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.install(res)
}

func (m *Manager) install(res Result) {
	m.current.Store(res.Snapshot)
	m.log.Info().
		Uint64("version", res.Snapshot.Version()).
		Int("entries", res.Snapshot.Len()).
		Int("errors", res.Diagnostics.Count(diag.SeverityError)).
		Msg("catalog installed")

	m.listenersMu.Lock()
	listeners := append([]func(Result){}, m.listeners...)
	m.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(res)
	}
}

// fingerprint hashes what a rebuild depends on: each object's identity
// inputs and path, the override table, and the version of an in-process
// index. Remote indexes cannot be hashed; a change there needs MarkStale
// or Rebuild.
func (m *Manager) fingerprint(objects []model.ContentObject) uint64 {
	sorted := append([]model.ContentObject(nil), objects...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ref().Less(sorted[j].Ref()) })

	d := xxhash.New()
	var buf [8]byte
	for _, o := range sorted {
		_, _ = d.Write(o.ContainerID[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(o.SubID))
		_, _ = d.Write(buf[:])
		_, _ = d.WriteString(o.ContainerPath)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(o.Name)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(o.Kind)
		if o.IsPrimary {
			_, _ = d.WriteString("\x01")
		} else {
			_, _ = d.WriteString("\x02")
		}
	}
	if m.builder.Identities != nil {
		binary.LittleEndian.PutUint64(buf[:], m.builder.Identities.Hash())
		_, _ = d.Write(buf[:])
	}
	if idx, ok := m.builder.Index.(extindex.Versioned); ok {
		binary.LittleEndian.PutUint64(buf[:], idx.Version())
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

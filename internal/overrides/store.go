// Package overrides holds intentional deviations from derived identifiers.
//
// An override pins (container, sub) to an explicit AssetGuid. Removing the
// override reverts the object to guid.Derive. The store is the only owner
// of the persisted table; every mutation is written through before the
// in-memory view changes.
package overrides

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/model"
)

// Key addresses one object.
type Key struct {
	Container uuid.UUID
	Sub       int64
}

// KeyOf returns the key of a content object.
func KeyOf(o model.ContentObject) Key {
	return Key{Container: o.ContainerID, Sub: o.SubID}
}

// Ref converts the key to an object reference without a path.
func (k Key) Ref() model.ObjectRef {
	return model.ObjectRef{ContainerID: k.Container, SubID: k.Sub}
}

func (k Key) less(o Key) bool {
	if c := model.CompareContainers(k.Container, o.Container); c != 0 {
		return c < 0
	}
	return k.Sub < o.Sub
}

// Entry is one override.
type Entry struct {
	Key
	ID guid.AssetGuid
}

// Derived returns the id the object would have without the override.
func (e Entry) Derived() guid.AssetGuid {
	return guid.Derive(e.Container, e.Sub)
}

// Store is the override table.
type Store struct {
	mu        sync.RWMutex
	entries   map[Key]guid.AssetGuid
	persister Persister
	log       zerolog.Logger

	hash      uint64
	hashValid bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open loads the table from p. Rows that are malformed, use reserved bits
// or repeat an earlier key are dropped and reported; the next successful
// write persists the cleaned table.
func Open(ctx context.Context, p Persister, opts ...Option) (*Store, diag.List, error) {
	s := &Store{
		entries:   make(map[Key]guid.AssetGuid),
		persister: p,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	records, err := p.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	var diags diag.List
	for i, r := range records {
		container, err := guid.ParseContainerID(r.Container)
		if err != nil {
			diags = append(diags, diag.Warnf(diag.CodeOverrideInvalid, model.ObjectRef{SubID: r.Sub},
				"override row %d dropped: %v", i+1, err))
			continue
		}
		key := Key{Container: container, Sub: r.Sub}
		id, err := guid.Parse(r.GUID)
		if err != nil {
			diags = append(diags, diag.Warnf(diag.CodeOverrideInvalid, key.Ref(),
				"override row %d dropped: %v", i+1, err))
			continue
		}
		if !id.IsValid() {
			diags = append(diags, diag.Warnf(diag.CodeOverrideInvalid, key.Ref(),
				"override row %d dropped: invalid id", i+1))
			continue
		}
		if !id.IsCatalogID() {
			diags = append(diags, diag.Warnf(diag.CodeOverrideInvalid, key.Ref(),
				"override row %d dropped: %s uses reserved bits", i+1, id))
			continue
		}
		if _, dup := s.entries[key]; dup {
			diags = append(diags, diag.Warnf(diag.CodeOverrideInvalid, key.Ref(),
				"override row %d dropped: duplicate key", i+1))
			continue
		}
		s.entries[key] = id
	}

	for _, d := range diags {
		s.log.Warn().Str("code", d.Code).Msg(d.Message)
	}
	return s, diags, nil
}

// NewMemory returns an empty store backed by a MemoryPersister.
func NewMemory() *Store {
	s, _, _ := Open(context.Background(), NewMemoryPersister())
	return s
}

// Get returns the override for key, if any.
func (s *Store) Get(key Key) (guid.AssetGuid, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.entries[key]
	return id, ok
}

// Len returns the number of overrides.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Effective returns the authoritative id for key and whether it comes from
// an override.
func (s *Store) Effective(key Key) (guid.AssetGuid, bool) {
	if id, ok := s.Get(key); ok {
		return id, true
	}
	return guid.Derive(key.Container, key.Sub), false
}

// WouldChange reports whether clearing the override for key changes the
// effective id. Callers confirm with the user before such a clear, since
// existing references to the old id stop resolving.
func (s *Store) WouldChange(key Key) bool {
	id, ok := s.Get(key)
	return ok && id != guid.Derive(key.Container, key.Sub)
}

// Set pins key to id. guid.Invalid removes the override.
//
// The table is persisted before memory changes. On error nothing changes
// and the error wraps ErrPersist.
func (s *Store) Set(ctx context.Context, key Key, id guid.AssetGuid) error {
	if !id.IsValid() {
		return s.Clear(ctx, key)
	}
	if !id.IsCatalogID() {
		return fmt.Errorf("%w: %s", ErrReservedBits, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[key]; ok && cur == id {
		return nil
	}
	next := s.cloneLocked()
	next[key] = id
	if err := s.commitLocked(ctx, next); err != nil {
		return err
	}
	s.log.Debug().Str("container", key.Container.String()).Int64("sub", key.Sub).Str("guid", id.String()).Msg("override set")
	return nil
}

// Clear removes the override for key. Clearing an absent key is a no-op.
func (s *Store) Clear(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return nil
	}
	next := s.cloneLocked()
	delete(next, key)
	if err := s.commitLocked(ctx, next); err != nil {
		return err
	}
	s.log.Debug().Str("container", key.Container.String()).Int64("sub", key.Sub).Msg("override cleared")
	return nil
}

// All returns every override ordered by container then sub.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedEntries(s.entries)
}

// Prune removes overrides equal to the derived id.
func (s *Store) Prune(ctx context.Context) ([]Entry, error) {
	return s.removeWhere(ctx, func(e Entry) bool {
		return e.ID == e.Derived()
	})
}

// Validate removes overrides whose object no longer exists.
func (s *Store) Validate(ctx context.Context, exists func(Key) bool) ([]Entry, error) {
	return s.removeWhere(ctx, func(e Entry) bool {
		return !exists(e.Key)
	})
}

func (s *Store) removeWhere(ctx context.Context, drop func(Entry) bool) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []Entry
	next := s.cloneLocked()
	for _, e := range sortedEntries(s.entries) {
		if drop(e) {
			removed = append(removed, e)
			delete(next, e.Key)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if err := s.commitLocked(ctx, next); err != nil {
		return nil, err
	}
	return removed, nil
}

// Hash fingerprints the table. It changes whenever any override changes and
// is memoised until then.
func (s *Store) Hash() uint64 {
	s.mu.RLock()
	if s.hashValid {
		h := s.hash
		s.mu.RUnlock()
		return h
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hashValid {
		s.hash = hashEntries(sortedEntries(s.entries))
		s.hashValid = true
	}
	return s.hash
}

func (s *Store) cloneLocked() map[Key]guid.AssetGuid {
	next := make(map[Key]guid.AssetGuid, len(s.entries)+1)
	for k, v := range s.entries {
		next[k] = v
	}
	return next
}

func (s *Store) commitLocked(ctx context.Context, next map[Key]guid.AssetGuid) error {
	if err := s.persister.Save(ctx, toRecords(sortedEntries(next))); err != nil {
		s.log.Error().Err(err).Msg("override table not saved")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.entries = next
	s.hashValid = false
	return nil
}

func sortedEntries(m map[Key]guid.AssetGuid) []Entry {
	out := make([]Entry, 0, len(m))
	for k, v := range m {
		out = append(out, Entry{Key: k, ID: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.less(out[j].Key) })
	return out
}

func hashEntries(entries []Entry) uint64 {
	d := xxhash.New()
	var buf [16]byte
	for _, e := range entries {
		_, _ = d.Write(e.Container[:])
		binary.LittleEndian.PutUint64(buf[:8], uint64(e.Sub))
		binary.LittleEndian.PutUint64(buf[8:], uint64(e.ID))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

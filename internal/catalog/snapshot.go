// Package catalog maps asset ids to their logical paths and sources.
//
// A Snapshot is immutable. Rebuilding, upserting or removing always yields
// a new Snapshot; readers holding an older one are unaffected.
package catalog

import (
	"sort"

	"github.com/google/uuid"

	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/model"
	"github.com/aidanlsb/assetcat/internal/source"
)

// Entry is one catalogued object.
type Entry struct {
	ID           guid.AssetGuid  `json:"guid"`
	LogicalPath  string          `json:"logical_path"`
	Source       source.Source   `json:"source"`
	DeclaredKind string          `json:"kind"`
	Object       model.ObjectRef `json:"object"`
	IsOverride   bool            `json:"is_override,omitempty"`
}

// Snapshot is a finished catalog.
type Snapshot struct {
	version     uint64
	fingerprint uint64

	entries []Entry // sorted by logical path, container path, container, sub
	byID    map[guid.AssetGuid]int
	byPath  map[string]int

	// objects is every object the snapshot was built from, including ones
	// that were excluded. Incremental updates start from it.
	objects    []model.ContentObject
	containers map[uuid.UUID]struct{}

	diagnostics diag.List
}

// Empty returns a snapshot with no entries.
func Empty() *Snapshot {
	return &Snapshot{
		byID:       map[guid.AssetGuid]int{},
		byPath:     map[string]int{},
		containers: map[uuid.UUID]struct{}{},
	}
}

// Version increases with every snapshot a Builder produces.
func (s *Snapshot) Version() uint64 { return s.version }

// Fingerprint is the dependency hash the snapshot was built for. Zero when
// unknown.
func (s *Snapshot) Fingerprint() uint64 { return s.fingerprint }

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// Lookup returns the entry for id.
func (s *Snapshot) Lookup(id guid.AssetGuid) (Entry, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// LookupByPath returns the entry owning logical path p.
func (s *Snapshot) LookupByPath(p string) (Entry, bool) {
	i, ok := s.byPath[p]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Entries returns a copy of all entries ordered by logical path.
func (s *Snapshot) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// ContainerEntries returns the entries of one container.
func (s *Snapshot) ContainerEntries(container uuid.UUID) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if e.Object.ContainerID == container {
			out = append(out, e)
		}
	}
	return out
}

// HasContainer reports whether any object of container went into this
// snapshot, whether or not it ended up catalogued.
func (s *Snapshot) HasContainer(container uuid.UUID) bool {
	_, ok := s.containers[container]
	return ok
}

// OwnerOf returns the object currently holding id.
func (s *Snapshot) OwnerOf(id guid.AssetGuid) (model.ObjectRef, bool) {
	e, ok := s.Lookup(id)
	return e.Object, ok
}

// Objects returns the objects the snapshot was built from.
func (s *Snapshot) Objects() []model.ContentObject {
	return append([]model.ContentObject(nil), s.objects...)
}

// Diagnostics returns what the build reported.
func (s *Snapshot) Diagnostics() diag.List {
	return append(diag.List(nil), s.diagnostics...)
}

// Restore rebuilds a snapshot from saved entries, e.g. ones read back from
// the store. Object names are not saved, so the snapshot has no fingerprint
// and the next Manager.Refresh replaces it.
func Restore(version uint64, entries []Entry, diags diag.List) *Snapshot {
	objects := make([]model.ContentObject, 0, len(entries))
	for _, e := range entries {
		objects = append(objects, model.ContentObject{
			ContainerID:   e.Object.ContainerID,
			SubID:         e.Object.SubID,
			IsPrimary:     e.Object.SubID == guid.PrimarySubID,
			Kind:          e.DeclaredKind,
			ContainerPath: e.Object.Path,
		})
	}
	return newSnapshot(version, 0, append([]Entry(nil), entries...), objects, diags)
}

func newSnapshot(version, fingerprint uint64, entries []Entry, objects []model.ContentObject, diags diag.List) *Snapshot {
	sortEntries(entries)
	s := &Snapshot{
		version:     version,
		fingerprint: fingerprint,
		entries:     entries,
		byID:        make(map[guid.AssetGuid]int, len(entries)),
		byPath:      make(map[string]int, len(entries)),
		objects:     objects,
		containers:  make(map[uuid.UUID]struct{}),
		diagnostics: diags,
	}
	for i, e := range entries {
		s.byID[e.ID] = i
		if _, taken := s.byPath[e.LogicalPath]; !taken {
			s.byPath[e.LogicalPath] = i
		}
	}
	for _, o := range objects {
		s.containers[o.ContainerID] = struct{}{}
	}
	return s
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entryLess(entries[i], entries[j])
	})
}

func entryLess(a, b Entry) bool {
	if a.LogicalPath != b.LogicalPath {
		return a.LogicalPath < b.LogicalPath
	}
	if a.Object.Path != b.Object.Path {
		return a.Object.Path < b.Object.Path
	}
	return a.Object.Less(b.Object)
}

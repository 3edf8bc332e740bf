package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/extindex"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/model"
	"github.com/aidanlsb/assetcat/internal/overrides"
	"github.com/aidanlsb/assetcat/internal/source"
)

// Identities supplies the authoritative id of an object.
// *overrides.Store implements it.
type Identities interface {
	Effective(key overrides.Key) (guid.AssetGuid, bool)
	Hash() uint64
}

// Builder turns content objects into snapshots.
type Builder struct {
	Identities Identities
	Chain      *source.Chain
	Index      extindex.Lookup
	// Roots are stripped from container paths to form logical paths.
	Roots []string
	Log   zerolog.Logger

	version atomic.Uint64
}

// SeedVersion makes the next snapshot's version greater than v. Used after
// restoring a saved snapshot so versions keep increasing across restarts.
func (b *Builder) SeedVersion(v uint64) {
	for {
		cur := b.version.Load()
		if cur >= v || b.version.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Result is a snapshot plus everything the build had to say about it.
// Callers must check Diagnostics; a snapshot is usable even when they
// contain errors.
type Result struct {
	Snapshot    *Snapshot
	Diagnostics diag.List
}

type candidate struct {
	obj        model.ContentObject
	id         guid.AssetGuid
	isOverride bool
	path       string
}

func (c candidate) ref() model.ObjectRef {
	return c.obj.Ref()
}

func candidateLess(a, b candidate) bool {
	if a.path != b.path {
		return a.path < b.path
	}
	if a.obj.ContainerPath != b.obj.ContainerPath {
		return a.obj.ContainerPath < b.obj.ContainerPath
	}
	return a.ref().Less(b.ref())
}

// Rebuild builds a whole new snapshot from objects.
//
// Objects are ordered by logical path (then container path, container id
// and sub id) before anything else happens, so the outcome never depends on
// the order objects were supplied in. Objects sharing an id are all
// excluded and reported together in one error diagnostic.
func (b *Builder) Rebuild(ctx context.Context, objects []model.ContentObject) Result {
	start := time.Now()
	objects = dedupeObjects(objects)

	cands, diags := b.candidates(objects)
	entries, more := b.resolve(ctx, cands)
	diags = append(diags, more...)
	diags.Sort()

	snap := newSnapshot(b.version.Add(1), 0, entries, objects, diags)
	b.Log.Debug().
		Int("objects", len(objects)).
		Int("entries", snap.Len()).
		Int("diagnostics", len(diags)).
		Dur("took", time.Since(start)).
		Msg("catalog rebuilt")
	return Result{Snapshot: snap, Diagnostics: snap.Diagnostics()}
}

// candidates computes id and logical path per object and drops the ones
// whose id cannot be catalogued.
func (b *Builder) candidates(objects []model.ContentObject) ([]candidate, diag.List) {
	lp := logicalPaths(objects, b.Roots)
	var diags diag.List
	cands := make([]candidate, 0, len(objects))
	for _, o := range objects {
		id, isOverride := b.effective(o)
		c := candidate{obj: o, id: id, isOverride: isOverride, path: lp[keyOf(o)]}
		if !id.IsCatalogID() {
			diags = append(diags, diag.Errorf(diag.CodeReservedBits, c.ref(),
				"%s: id %s is not a catalog id", c.path, id))
			continue
		}
		cands = append(cands, c)
	}
	sort.SliceStable(cands, func(i, j int) bool { return candidateLess(cands[i], cands[j]) })
	return cands, diags
}

func (b *Builder) effective(o model.ContentObject) (guid.AssetGuid, bool) {
	key := overrides.KeyOf(o)
	if b.Identities == nil {
		return guid.Derive(key.Container, key.Sub), false
	}
	return b.Identities.Effective(key)
}

// resolve runs the source chain, then enforces id uniqueness and path
// ownership on the sorted candidates.
func (b *Builder) resolve(ctx context.Context, cands []candidate) ([]Entry, diag.List) {
	var diags diag.List

	type resolved struct {
		candidate
		src source.Source
	}
	chain := b.Chain
	if chain == nil {
		chain = source.DefaultChain(source.Options{Roots: b.Roots})
	}
	var claimed []resolved
	for _, c := range cands {
		src, ok, d := chain.Resolve(ctx, source.ContextFor(c.obj, b.Index))
		diags = append(diags, d...)
		if ok {
			claimed = append(claimed, resolved{candidate: c, src: src})
		}
	}

	groups := make(map[guid.AssetGuid][]int, len(claimed))
	for i, r := range claimed {
		groups[r.id] = append(groups[r.id], i)
	}

	entries := make([]Entry, 0, len(claimed))
	pathOwner := make(map[string]model.ObjectRef, len(claimed))
	for i, r := range claimed {
		members := groups[r.id]
		if len(members) > 1 {
			if members[0] == i {
				group := make([]candidate, len(members))
				for j, m := range members {
					group[j] = claimed[m].candidate
				}
				diags = append(diags, conflictDiagnostic(r.id, group))
			}
			continue
		}
		if owner, taken := pathOwner[r.path]; taken {
			diags = append(diags, diag.Warnf(diag.CodePathCollision, r.ref(),
				"logical path %q already belongs to %s; %s is reachable by id only", r.path, owner, r.id))
		} else {
			pathOwner[r.path] = r.ref()
		}
		entries = append(entries, Entry{
			ID:           r.id,
			LogicalPath:  r.path,
			Source:       r.src,
			DeclaredKind: r.obj.Kind,
			Object:       r.ref(),
			IsOverride:   r.isOverride,
		})
	}
	return entries, diags
}

func conflictDiagnostic(id guid.AssetGuid, group []candidate) diag.Diagnostic {
	names := make([]string, len(group))
	related := make([]model.ObjectRef, 0, len(group)-1)
	for i, c := range group {
		names[i] = fmt.Sprintf("%s (%s)", c.path, c.ref())
		if i > 0 {
			related = append(related, c.ref())
		}
	}
	d := diag.Errorf(diag.CodeIdentityConflict, group[0].ref(),
		"identity conflict on %s between %d objects: %s; all are excluded until one gets a distinct id",
		id, len(group), strings.Join(names, ", "))
	d.Related = related
	return d
}

// dedupeObjects keeps the first object per (container, sub).
func dedupeObjects(objects []model.ContentObject) []model.ContentObject {
	seen := make(map[objectKey]struct{}, len(objects))
	out := make([]model.ContentObject, 0, len(objects))
	for _, o := range objects {
		k := keyOf(o)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, o)
	}
	return out
}

// Upsert returns a snapshot with obj added or replaced.
//
// Only obj's container is re-resolved when that cannot affect any other
// entry. Otherwise (id or path contention, or earlier conflicts that might
// now be resolved) it falls back to a full rebuild, which is always the
// reference behaviour.
func (b *Builder) Upsert(ctx context.Context, snap *Snapshot, obj model.ContentObject) Result {
	objects := make([]model.ContentObject, 0, len(snap.objects)+1)
	replaced := false
	for _, o := range snap.objects {
		if keyOf(o) == keyOf(obj) {
			objects = append(objects, obj)
			replaced = true
			continue
		}
		objects = append(objects, o)
	}
	if !replaced {
		objects = append(objects, obj)
	}
	return b.patchContainer(ctx, snap, obj.ContainerID, objects)
}

// Remove returns a snapshot without (container, sub).
func (b *Builder) Remove(ctx context.Context, snap *Snapshot, container uuid.UUID, sub int64) Result {
	objects := make([]model.ContentObject, 0, len(snap.objects))
	for _, o := range snap.objects {
		if o.ContainerID == container && o.SubID == sub {
			continue
		}
		objects = append(objects, o)
	}
	return b.patchContainer(ctx, snap, container, objects)
}

// RemoveContainer returns a snapshot without any object of container.
func (b *Builder) RemoveContainer(ctx context.Context, snap *Snapshot, container uuid.UUID) Result {
	objects := make([]model.ContentObject, 0, len(snap.objects))
	for _, o := range snap.objects {
		if o.ContainerID != container {
			objects = append(objects, o)
		}
	}
	return b.patchContainer(ctx, snap, container, objects)
}

func (b *Builder) patchContainer(ctx context.Context, snap *Snapshot, container uuid.UUID, objects []model.ContentObject) Result {
	if len(snap.diagnostics.WithCode(diag.CodeIdentityConflict)) > 0 ||
		len(snap.diagnostics.WithCode(diag.CodeReservedBits)) > 0 {
		return b.Rebuild(ctx, objects)
	}

	var mine []model.ContentObject
	for _, o := range objects {
		if o.ContainerID == container {
			mine = append(mine, o)
		}
	}
	cands, diags := b.candidates(mine)
	if len(diags) > 0 {
		return b.Rebuild(ctx, objects)
	}

	seenIDs := make(map[guid.AssetGuid]struct{}, len(cands))
	for _, c := range cands {
		if _, dup := seenIDs[c.id]; dup {
			return b.Rebuild(ctx, objects)
		}
		seenIDs[c.id] = struct{}{}
		if e, ok := snap.Lookup(c.id); ok && e.Object.ContainerID != container {
			return b.Rebuild(ctx, objects)
		}
		if e, ok := snap.LookupByPath(c.path); ok && e.Object.ContainerID != container {
			return b.Rebuild(ctx, objects)
		}
	}
	pathUsers := make(map[string]int, len(snap.entries))
	for _, e := range snap.entries {
		pathUsers[e.LogicalPath]++
	}
	for _, e := range snap.entries {
		if e.Object.ContainerID == container && pathUsers[e.LogicalPath] > 1 {
			// A path this container shares may change hands.
			return b.Rebuild(ctx, objects)
		}
	}

	fresh, chainDiags := b.resolve(ctx, cands)
	if len(chainDiags.WithCode(diag.CodePathCollision)) > 0 || len(chainDiags.WithCode(diag.CodeIdentityConflict)) > 0 {
		return b.Rebuild(ctx, objects)
	}

	entries := make([]Entry, 0, len(snap.entries)+len(fresh))
	for _, e := range snap.entries {
		if e.Object.ContainerID != container {
			entries = append(entries, e)
		}
	}
	entries = append(entries, fresh...)

	var kept diag.List
	for _, d := range snap.diagnostics {
		if d.Object.ContainerID != container {
			kept = append(kept, d)
		}
	}
	kept = append(kept, chainDiags...)
	kept.Sort()

	next := newSnapshot(b.version.Add(1), 0, entries, objects, kept)
	return Result{Snapshot: next, Diagnostics: next.Diagnostics()}
}

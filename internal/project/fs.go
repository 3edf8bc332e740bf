package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/model"
	"github.com/aidanlsb/assetcat/internal/paths"
)

// FS is a Database over a project directory.
//
// It caches the container id <-> path mapping built by Scan and kept current
// by Reconcile. Asset contents are always read from disk.
type FS struct {
	root  string
	roots []string
	log   zerolog.Logger

	mu      sync.RWMutex
	scanned bool
	byID    map[uuid.UUID]string
	byPath  map[string]uuid.UUID
}

// Option configures an FS.
type Option func(*FS)

// WithRoots sets the content roots, relative to the project root.
func WithRoots(roots ...string) Option {
	return func(f *FS) {
		if len(roots) > 0 {
			f.roots = roots
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(f *FS) { f.log = log }
}

// OpenFS returns an FS rooted at root.
func OpenFS(root string, opts ...Option) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("open project: %s is not a directory", abs)
	}

	f := &FS{
		root:   abs,
		roots:  []string{paths.DefaultRoot},
		log:    zerolog.Nop(),
		byID:   make(map[uuid.UUID]string),
		byPath: make(map[string]uuid.UUID),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute project root.
func (f *FS) Root() string { return f.root }

// Roots returns the content roots.
func (f *FS) Roots() []string { return append([]string(nil), f.roots...) }

func (f *FS) abs(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}

// Scan walks the content roots and rebuilds the id cache.
//
// Assets without a meta file get one with a fresh container id. When two
// meta files carry the same id, the path that sorts later is given a fresh
// id. Both cases are reported as ChangeImported.
func (f *FS) Scan(ctx context.Context) ([]Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanLocked(ctx)
}

func (f *FS) scanLocked(ctx context.Context) ([]Change, error) {
	byID := make(map[uuid.UUID]string)
	byPath := make(map[string]uuid.UUID)
	var changes []Change

	err := walkAssets(f.root, f.roots, func(rel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, exists, err := readMeta(f.abs(rel) + MetaExt)
		if err != nil {
			f.log.Warn().Err(err).Str("path", rel).Msg("unreadable meta file, assigning a new container id")
		}

		_, taken := byID[id]
		if !exists || err != nil || taken {
			if taken {
				f.log.Warn().Str("path", rel).Str("container", id.String()).Str("original", byID[id]).
					Msg("duplicate container id, assigning a new one")
			}
			id, err = f.assignID(rel)
			if err != nil {
				return err
			}
			changes = append(changes, Change{Kind: ChangeImported, Container: id, NewPath: rel})
		}

		byID[id] = rel
		byPath[rel] = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}

	f.byID = byID
	f.byPath = byPath
	f.scanned = true
	f.log.Debug().Int("containers", len(byID)).Int("changes", len(changes)).Msg("scanned project")
	return changes, nil
}

func (f *FS) assignID(rel string) (uuid.UUID, error) {
	id := uuid.New()
	if err := writeMeta(f.abs(rel)+MetaExt, id); err != nil {
		return uuid.Nil, fmt.Errorf("write meta for %s: %w", rel, err)
	}
	return id, nil
}

func (f *FS) ensureScanned(ctx context.Context) error {
	f.mu.RLock()
	ok := f.scanned
	f.mu.RUnlock()
	if ok {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanned {
		return nil
	}
	_, err := f.scanLocked(ctx)
	return err
}

// EnsureMeta gives rel a meta file if it has none and returns its id.
func (f *FS) EnsureMeta(ctx context.Context, rel string) (uuid.UUID, error) {
	if err := f.ensureScanned(ctx); err != nil {
		return uuid.Nil, err
	}
	rel = paths.NormalizeRelPath(rel)
	id, exists, err := readMeta(f.abs(rel) + MetaExt)
	if err == nil && exists {
		return id, nil
	}
	id, err = f.assignID(rel)
	if err != nil {
		return uuid.Nil, err
	}
	f.mu.Lock()
	f.track(id, rel)
	f.mu.Unlock()
	return id, nil
}

func (f *FS) track(id uuid.UUID, rel string) {
	if old, ok := f.byPath[rel]; ok && old != id {
		delete(f.byID, old)
	}
	if old, ok := f.byID[id]; ok && old != rel {
		delete(f.byPath, old)
	}
	f.byID[id] = rel
	f.byPath[rel] = id
}

func (f *FS) untrack(rel string) {
	if id, ok := f.byPath[rel]; ok {
		delete(f.byID, id)
		delete(f.byPath, rel)
	}
}

// Objects returns every content object, in container path order.
// Unreadable assets are logged and skipped.
func (f *FS) Objects(ctx context.Context) ([]model.ContentObject, error) {
	if err := f.ensureScanned(ctx); err != nil {
		return nil, err
	}

	f.mu.RLock()
	rels := make([]string, 0, len(f.byPath))
	for rel := range f.byPath {
		rels = append(rels, rel)
	}
	ids := make(map[string]uuid.UUID, len(f.byPath))
	for rel, id := range f.byPath {
		ids[rel] = id
	}
	f.mu.RUnlock()
	sort.Strings(rels)

	var out []model.ContentObject
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := readAsset(f.abs(rel))
		if err != nil {
			f.log.Warn().Err(err).Str("path", rel).Msg("skipping unreadable asset")
			continue
		}
		out = append(out, a.objects(ids[rel], rel)...)
	}
	return out, nil
}

// ContainerObjects returns the objects of one container.
func (f *FS) ContainerObjects(ctx context.Context, container uuid.UUID) ([]model.ContentObject, error) {
	if err := f.ensureScanned(ctx); err != nil {
		return nil, err
	}
	rel, ok := f.ContainerPath(container)
	if !ok {
		return nil, fmt.Errorf("container %s: %w", container, ErrNotFound)
	}
	a, err := readAsset(f.abs(rel))
	if err != nil {
		return nil, err
	}
	return a.objects(container, rel), nil
}

// ContainerPath returns the container's project-relative path.
func (f *FS) ContainerPath(container uuid.UUID) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rel, ok := f.byID[container]
	return rel, ok
}

// StoredIdentity returns the guid text written on the object.
func (f *FS) StoredIdentity(ctx context.Context, ref model.ObjectRef) (string, bool, error) {
	if err := f.ensureScanned(ctx); err != nil {
		return "", false, err
	}
	rel, ok := f.ContainerPath(ref.ContainerID)
	if !ok {
		return "", false, fmt.Errorf("container %s: %w", ref.ContainerID, ErrNotFound)
	}
	a, err := readAsset(f.abs(rel))
	if err != nil {
		return "", false, err
	}
	return a.storedIdentity(ref.SubID)
}

// StampIdentity writes id onto the object's asset file.
func (f *FS) StampIdentity(ctx context.Context, ref model.ObjectRef, id guid.AssetGuid) error {
	if err := f.ensureScanned(ctx); err != nil {
		return err
	}
	rel, ok := f.ContainerPath(ref.ContainerID)
	if !ok {
		return fmt.Errorf("container %s: %w", ref.ContainerID, ErrNotFound)
	}
	if err := stampAsset(f.abs(rel), ref.SubID, id); err != nil {
		return err
	}
	f.log.Debug().Str("path", rel).Int64("sub", ref.SubID).Stringer("guid", id).Msg("stamped identity")
	return nil
}

// Relocate points the id cache at newPath for container, for moves the
// host reports directly rather than through Reconcile. A meta file naming
// container is written when the asset has none.
func (f *FS) Relocate(ctx context.Context, container uuid.UUID, newPath string) error {
	if err := f.ensureScanned(ctx); err != nil {
		return err
	}
	rel, ok := f.relAsset(newPath)
	if !ok {
		return fmt.Errorf("relocate %s: %s: %w", container, newPath, ErrOutsideProject)
	}
	if !f.fileExists(rel) {
		return fmt.Errorf("relocate %s: %s: %w", container, rel, ErrNotFound)
	}

	id, exists, err := readMeta(f.abs(rel) + MetaExt)
	switch {
	case err != nil:
		return fmt.Errorf("relocate %s: %w", container, err)
	case !exists:
		if err := writeMeta(f.abs(rel)+MetaExt, container); err != nil {
			return fmt.Errorf("write meta for %s: %w", rel, err)
		}
	case id != container:
		return fmt.Errorf("relocate %s: %s is %s: %w", container, rel, id, ErrWrongContainer)
	}

	f.mu.Lock()
	old, known := f.byID[container]
	f.track(container, rel)
	f.mu.Unlock()
	if !known || old != rel {
		f.log.Debug().Str("container", container.String()).Str("from", old).Str("to", rel).Msg("relocated container")
	}
	return nil
}

// Reconcile classifies changed paths into project changes and updates the
// id cache. Paths may be absolute or project-relative, and may name either
// an asset or its meta file. Paths outside the content roots are ignored.
//
// Existing files are handled before vanished ones, so a rename reported as
// a (create, remove) pair yields one ChangeMoved. A directory path stands
// for every known asset below it.
func (f *FS) Reconcile(ctx context.Context, changed []string) ([]Change, error) {
	if err := f.ensureScanned(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var existing, vanished []string
	seen := make(map[string]bool)
	for _, p := range changed {
		rels := f.trackedUnder(p)
		if rel, ok := f.relAsset(p); ok {
			rels = append(rels, rel)
		}
		for _, rel := range rels {
			if seen[rel] {
				continue
			}
			seen[rel] = true
			if _, err := os.Stat(f.abs(rel)); err == nil {
				existing = append(existing, rel)
			} else {
				vanished = append(vanished, rel)
			}
		}
	}
	sort.Strings(existing)
	sort.Strings(vanished)

	var changes []Change
	for _, rel := range existing {
		if err := ctx.Err(); err != nil {
			return changes, err
		}
		c, err := f.reconcileExisting(rel)
		if err != nil {
			return changes, err
		}
		changes = append(changes, c...)
	}
	for _, rel := range vanished {
		id, known := f.byPath[rel]
		if !known {
			continue
		}
		f.untrack(rel)
		changes = append(changes, Change{Kind: ChangeDeleted, Container: id, OldPath: rel})
	}
	return changes, nil
}

func (f *FS) reconcileExisting(rel string) ([]Change, error) {
	id, exists, err := readMeta(f.abs(rel) + MetaExt)
	if err != nil {
		f.log.Warn().Err(err).Str("path", rel).Msg("unreadable meta file, assigning a new container id")
	}

	var changes []Change
	if prev, known := f.byPath[rel]; known && (!exists || err != nil || prev != id) {
		// The file at rel now belongs to a different container.
		f.untrack(rel)
		changes = append(changes, Change{Kind: ChangeDeleted, Container: prev, OldPath: rel})
	}

	if !exists || err != nil {
		id, err = f.assignID(rel)
		if err != nil {
			return changes, err
		}
		f.track(id, rel)
		return append(changes, Change{Kind: ChangeImported, Container: id, NewPath: rel}), nil
	}

	old, known := f.byID[id]
	switch {
	case !known || old == rel:
		f.track(id, rel)
		return append(changes, Change{Kind: ChangeImported, Container: id, NewPath: rel}), nil
	case f.fileExists(old):
		// A copy: the original keeps its id.
		f.log.Info().Str("path", rel).Str("original", old).Msg("duplicated container, assigning a new id")
		id, err = f.assignID(rel)
		if err != nil {
			return changes, err
		}
		f.track(id, rel)
		return append(changes, Change{Kind: ChangeImported, Container: id, NewPath: rel}), nil
	default:
		f.track(id, rel)
		return append(changes,
			Change{Kind: ChangeMoved, Container: id, OldPath: old, NewPath: rel},
			Change{Kind: ChangeImported, Container: id, NewPath: rel},
		), nil
	}
}

func (f *FS) fileExists(rel string) bool {
	_, err := os.Stat(f.abs(rel))
	return err == nil
}

// trackedUnder returns the known asset paths below a directory path.
// A removed directory yields no events for the files it held.
func (f *FS) trackedUnder(p string) []string {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return nil
		}
		p = rel
	}
	dir := paths.NormalizeRelPath(p)
	if dir == "" || dir == "." || strings.HasSuffix(dir, AssetExt) || strings.HasSuffix(dir, MetaExt) {
		return nil
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []string
	for rel := range f.byPath {
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
	}
	return out
}

// relAsset maps a changed path to the project-relative asset path it
// concerns.
func (f *FS) relAsset(p string) (string, bool) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(f.root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", false
		}
		p = rel
	}
	rel := paths.NormalizeRelPath(p)
	rel = strings.TrimSuffix(rel, MetaExt)
	if !strings.HasSuffix(rel, AssetExt) {
		return "", false
	}
	for _, r := range f.roots {
		if paths.UnderRoot(rel, r) {
			return rel, true
		}
	}
	return "", false
}

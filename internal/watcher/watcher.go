// Package watcher keeps a project's catalog in step with its files.
//
// It is used by `acat watch` and by `acat serve --watch`. Filesystem events
// are debounced, reconciled into project changes and handed to the sync
// agent. The catalog is refreshed after every flush.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/project"
	"github.com/aidanlsb/assetcat/internal/syncagent"
)

// DefaultDebounce is how long a path must be quiet before it is flushed.
const DefaultDebounce = 100 * time.Millisecond

// Reconciler turns changed paths into project changes.
type Reconciler interface {
	Root() string
	Reconcile(ctx context.Context, changed []string) ([]project.Change, error)
}

// Processor applies change notifications to stored identities.
type Processor interface {
	Process(ctx context.Context, batch []syncagent.Notification) syncagent.Report
}

// Refresher rebuilds the catalog when it is stale.
type Refresher interface {
	Refresh(ctx context.Context) (catalog.Result, bool, error)
}

// Flush describes one processed batch.
type Flush struct {
	Paths   []string
	Changes []project.Change
	Report  syncagent.Report
	Rebuilt bool
	Err     error
}

// Watcher monitors a project directory and syncs changed assets.
type Watcher struct {
	root      string
	reconcile Reconciler
	agent     Processor
	catalog   Refresher
	log       zerolog.Logger

	debounceDelay time.Duration

	fsWatcher *fsnotify.Watcher
	pending   map[string]struct{}
	lastEvent time.Time
	mu        sync.Mutex
	flushMu   sync.Mutex
	ready     chan struct{}

	onFlush func(Flush)
}

// Config holds configuration options for the Watcher.
type Config struct {
	Project       Reconciler
	Agent         Processor
	Catalog       Refresher
	DebounceDelay time.Duration // Default: 100ms
	Logger        *zerolog.Logger
	OnFlush       func(Flush) // Optional callback
}

// New creates a new Watcher with the given configuration.
func New(cfg Config) (*Watcher, error) {
	if cfg.Project == nil {
		return nil, fmt.Errorf("project is required")
	}
	if cfg.Agent == nil {
		return nil, fmt.Errorf("sync agent is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	debounce := cfg.DebounceDelay
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	return &Watcher{
		root:          cfg.Project.Root(),
		reconcile:     cfg.Project,
		agent:         cfg.Agent,
		catalog:       cfg.Catalog,
		log:           log,
		debounceDelay: debounce,
		pending:       make(map[string]struct{}),
		ready:         make(chan struct{}),
		onFlush:       cfg.OnFlush,
	}, nil
}

// Ready is closed once the initial directory watches are in place.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Start begins watching the project for file changes.
// It blocks until the context is cancelled. Pending paths are flushed
// before it returns.
func (w *Watcher) Start(ctx context.Context) error {
	var err error
	w.fsWatcher, err = fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer w.fsWatcher.Close()

	if err := w.addWatchRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch project: %w", err)
	}
	w.log.Debug().Str("root", w.root).Msg("watching project")
	close(w.ready)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.processDebounced(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			w.flushAll()
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if w.shouldIgnore(path) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// Files may land before the new directory is watched.
			_ = w.addWatchRecursive(path)
			w.scheduleTree(path)
			return
		}
	}

	if !isAssetPath(path) {
		// A removed or renamed directory takes its assets with it. The
		// reconciler expands a directory path to the assets it knew there.
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			w.schedule(path)
		}
		return
	}

	w.log.Debug().Str("op", event.Op.String()).Str("path", path).Msg("event")
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
		w.schedule(path)
	}
}

// isAssetPath reports whether path names an asset file or its sidecar.
func isAssetPath(path string) bool {
	p := strings.TrimSuffix(path, project.MetaExt)
	return strings.HasSuffix(p, project.AssetExt)
}

// schedule adds a path to the pending set and restarts the quiet period.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[strings.TrimSuffix(path, project.MetaExt)] = struct{}{}
	w.lastEvent = time.Now()
}

// scheduleTree schedules every asset below dir.
func (w *Watcher) scheduleTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && w.shouldIgnoreDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if isAssetPath(path) {
			w.schedule(path)
		}
		return nil
	})
}

// processDebounced flushes pending paths after the debounce delay.
func (w *Watcher) processDebounced(ctx context.Context) {
	tick := w.debounceDelay / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending(ctx, time.Now())
		}
	}
}

// processPending flushes the pending set once no event has arrived for the
// debounce delay. The whole set goes in one batch so a rename's old and new
// path are reconciled together.
func (w *Watcher) processPending(ctx context.Context, now time.Time) {
	w.mu.Lock()
	if len(w.pending) == 0 || now.Sub(w.lastEvent) < w.debounceDelay {
		w.mu.Unlock()
		return
	}
	ready := w.takePendingLocked()
	w.mu.Unlock()

	w.flush(ctx, ready)
}

// flushAll processes everything pending regardless of age.
func (w *Watcher) flushAll() {
	w.mu.Lock()
	ready := w.takePendingLocked()
	w.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w.flush(ctx, ready)
}

func (w *Watcher) takePendingLocked() []string {
	ready := make([]string, 0, len(w.pending))
	for path := range w.pending {
		ready = append(ready, path)
	}
	w.pending = make(map[string]struct{})
	sort.Strings(ready)
	return ready
}

// flush reconciles paths, syncs the resulting notifications and refreshes
// the catalog.
func (w *Watcher) flush(ctx context.Context, paths []string) Flush {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	f := Flush{Paths: paths}
	defer func() {
		if w.onFlush != nil {
			w.onFlush(f)
		}
	}()

	changes, err := w.reconcile.Reconcile(ctx, paths)
	if err != nil {
		f.Err = fmt.Errorf("reconcile: %w", err)
		w.log.Error().Err(err).Strs("paths", paths).Msg("reconcile failed")
		return f
	}
	f.Changes = changes
	if len(changes) == 0 {
		return f
	}

	f.Report = w.agent.Process(ctx, syncagent.FromChanges(changes))
	if f.Report.Err != nil && !errors.Is(f.Report.Err, context.Canceled) {
		w.log.Warn().Err(f.Report.Err).Msg("sync interrupted")
	}
	for _, r := range f.Report.Failed() {
		w.log.Error().Str("object", r.Object.String()).Str("error", r.Error).Msg("sync failed")
	}

	_, rebuilt, err := w.catalog.Refresh(ctx)
	if err != nil {
		f.Err = fmt.Errorf("refresh catalog: %w", err)
		w.log.Error().Err(err).Msg("catalog refresh failed")
		return f
	}
	f.Rebuilt = rebuilt
	w.log.Info().
		Int("changes", len(changes)).
		Int("stamped", f.Report.Count(syncagent.OutcomeStamped)+f.Report.Count(syncagent.OutcomeDuplicate)).
		Bool("rebuilt", rebuilt).
		Msg("synced")
	return f
}

// addWatchRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addWatchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != w.root && w.shouldIgnoreDir(path) {
				return filepath.SkipDir
			}
			if err := w.fsWatcher.Add(path); err != nil {
				w.log.Debug().Err(err).Str("path", path).Msg("failed to watch")
			}
		}
		return nil
	})
}

// shouldIgnore returns true if any component of path below the root is
// ignored.
func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if ignoredName(part) {
			return true
		}
	}
	return false
}

// shouldIgnoreDir returns true if the directory should not be watched.
func (w *Watcher) shouldIgnoreDir(path string) bool {
	return ignoredName(filepath.Base(path))
}

func ignoredName(name string) bool {
	switch name {
	case project.StateDir, ".git", "node_modules":
		return true
	}
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

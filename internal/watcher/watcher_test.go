package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/overrides"
	"github.com/aidanlsb/assetcat/internal/project"
	"github.com/aidanlsb/assetcat/internal/source"
	"github.com/aidanlsb/assetcat/internal/syncagent"
	"github.com/aidanlsb/assetcat/internal/testutil"
)

type fakeProject struct {
	root    string
	changes []project.Change
	err     error
	calls   [][]string
}

func (f *fakeProject) Root() string { return f.root }

func (f *fakeProject) Reconcile(_ context.Context, changed []string) ([]project.Change, error) {
	f.calls = append(f.calls, changed)
	return f.changes, f.err
}

type fakeAgent struct {
	batches [][]syncagent.Notification
}

func (f *fakeAgent) Process(_ context.Context, batch []syncagent.Notification) syncagent.Report {
	f.batches = append(f.batches, batch)
	return syncagent.Report{Processed: len(batch)}
}

type fakeCatalog struct {
	refreshes int
	err       error
}

func (f *fakeCatalog) Refresh(context.Context) (catalog.Result, bool, error) {
	f.refreshes++
	return catalog.Result{}, f.err == nil, f.err
}

func newFakeWatcher(t *testing.T, p *fakeProject, a *fakeAgent, c *fakeCatalog, onFlush func(Flush)) *Watcher {
	t.Helper()
	w, err := New(Config{Project: p, Agent: a, Catalog: c, OnFlush: onFlush})
	require.NoError(t, err)
	return w
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Project: &fakeProject{}})
	assert.Error(t, err)

	w, err := New(Config{Project: &fakeProject{root: "/p"}, Agent: &fakeAgent{}, Catalog: &fakeCatalog{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.debounceDelay)
}

func TestProcessPendingWaitsForQuiet(t *testing.T) {
	p := &fakeProject{root: "/p"}
	a := &fakeAgent{}
	c := &fakeCatalog{}
	w := newFakeWatcher(t, p, a, c, nil)

	w.schedule("/p/Assets/A.asset")
	w.schedule("/p/Assets/B.asset.meta")
	last := w.lastEvent

	w.processPending(context.Background(), last.Add(DefaultDebounce/2))
	assert.Empty(t, p.calls, "flushed before the quiet period")

	w.processPending(context.Background(), last.Add(DefaultDebounce))
	require.Len(t, p.calls, 1)
	assert.Equal(t, []string{"/p/Assets/A.asset", "/p/Assets/B.asset"}, p.calls[0])
	assert.Empty(t, w.pending)
}

func TestFlushPipeline(t *testing.T) {
	id := uuid.New()

	t.Run("changes are synced then refreshed", func(t *testing.T) {
		p := &fakeProject{root: "/p", changes: []project.Change{
			{Kind: project.ChangeMoved, Container: id, OldPath: "Assets/A.asset", NewPath: "Assets/B.asset"},
			{Kind: project.ChangeImported, Container: id, NewPath: "Assets/B.asset"},
		}}
		a := &fakeAgent{}
		c := &fakeCatalog{}
		var got Flush
		w := newFakeWatcher(t, p, a, c, func(f Flush) { got = f })

		w.flush(context.Background(), []string{"/p/Assets/A.asset", "/p/Assets/B.asset"})

		require.Len(t, a.batches, 1)
		assert.Equal(t, []syncagent.Notification{
			{Kind: syncagent.Moved, Container: id, OldPath: "Assets/A.asset", NewPath: "Assets/B.asset"},
			{Kind: syncagent.Imported, Container: id, NewPath: "Assets/B.asset"},
		}, a.batches[0])
		assert.Equal(t, 1, c.refreshes)
		assert.True(t, got.Rebuilt)
		assert.NoError(t, got.Err)
		assert.Equal(t, 2, got.Report.Processed)
	})

	t.Run("no changes skips sync", func(t *testing.T) {
		p := &fakeProject{root: "/p"}
		a := &fakeAgent{}
		c := &fakeCatalog{}
		w := newFakeWatcher(t, p, a, c, nil)

		w.flush(context.Background(), []string{"/p/Assets/readme.asset"})
		assert.Empty(t, a.batches)
		assert.Zero(t, c.refreshes)
	})

	t.Run("reconcile error is reported", func(t *testing.T) {
		p := &fakeProject{root: "/p", err: errors.New("disk on fire")}
		a := &fakeAgent{}
		c := &fakeCatalog{}
		var got Flush
		w := newFakeWatcher(t, p, a, c, func(f Flush) { got = f })

		w.flush(context.Background(), []string{"/p/Assets/A.asset"})
		require.Error(t, got.Err)
		assert.Contains(t, got.Err.Error(), "disk on fire")
		assert.Empty(t, a.batches)
	})

	t.Run("refresh error is reported", func(t *testing.T) {
		p := &fakeProject{root: "/p", changes: []project.Change{{Kind: project.ChangeDeleted, Container: id, OldPath: "Assets/A.asset"}}}
		c := &fakeCatalog{err: errors.New("boom")}
		var got Flush
		w := newFakeWatcher(t, p, &fakeAgent{}, c, func(f Flush) { got = f })

		w.flush(context.Background(), []string{"/p/Assets/A.asset"})
		require.Error(t, got.Err)
		assert.False(t, got.Rebuilt)
	})
}

func TestShouldIgnore(t *testing.T) {
	w := newFakeWatcher(t, &fakeProject{root: "/p"}, &fakeAgent{}, &fakeCatalog{}, nil)

	tests := []struct {
		path string
		want bool
	}{
		{"/p/Assets/A.asset", false},
		{"/p/Assets/Sub/B.asset.meta", false},
		{"/p/.assetcat/catalog.db", true},
		{"/p/.git/HEAD", true},
		{"/p/Assets/.hidden/C.asset", true},
		{"/p/node_modules/x", true},
		{"/p", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, w.shouldIgnore(filepath.FromSlash(tt.path)))
		})
	}
}

func TestIsAssetPath(t *testing.T) {
	assert.True(t, isAssetPath("Assets/A.asset"))
	assert.True(t, isAssetPath("Assets/A.asset.meta"))
	assert.False(t, isAssetPath("Assets/readme.txt"))
	assert.False(t, isAssetPath("Assets/Sub"))
}

// TestWatchStampsNewAsset runs the real pipeline: a file dropped into the
// project gets a meta file, its identity stamped and a catalog entry.
func TestWatchStampsNewAsset(t *testing.T) {
	p := testutil.NewTestProject(t).
		WithFile("Assets/.keep", "").
		Build()

	fsdb, err := project.OpenFS(p.Path)
	require.NoError(t, err)
	ov := overrides.NewMemory()
	b := &catalog.Builder{Identities: ov, Chain: source.DefaultChain(source.Options{})}
	mgr := catalog.NewManager(b, fsdb, zerolog.Nop())
	_, err = mgr.Rebuild(context.Background())
	require.NoError(t, err)
	agent := &syncagent.Agent{DB: fsdb, Overrides: ov, Catalog: mgr, Log: zerolog.Nop()}

	var mu sync.Mutex
	var flushes []Flush
	w, err := New(Config{
		Project:       fsdb,
		Agent:         agent,
		Catalog:       mgr,
		DebounceDelay: 20 * time.Millisecond,
		OnFlush: func(f Flush) {
			mu.Lock()
			flushes = append(flushes, f)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}

	p.WriteFile("Assets/Units/Tank.asset", testutil.Asset("EntityPrototype", "Tank"))

	require.Eventually(t, func() bool {
		_, ok := mgr.Current().LookupByPath("Units/Tank")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	require.True(t, p.FileExists("Assets/Units/Tank.asset.meta"))
	e, _ := mgr.Current().LookupByPath("Units/Tank")
	require.Eventually(t, func() bool {
		return strings.Contains(p.ReadFile("Assets/Units/Tank.asset"), guid.Format(e.ID))
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, flushes)
	for _, f := range flushes {
		assert.NoError(t, f.Err)
	}
}

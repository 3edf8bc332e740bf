package syncagent

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/overrides"
	"github.com/aidanlsb/assetcat/internal/project"
	"github.com/aidanlsb/assetcat/internal/source"
	"github.com/aidanlsb/assetcat/internal/testutil"
)

// stampedAsset is an asset body already carrying container's primary id.
func stampedAsset(container uuid.UUID, name string) string {
	return testutil.Asset("Thing", name) + fmt.Sprintf("guid: %q\n", guid.Format(guid.Derive(container, 0)))
}

type fsFixture struct {
	p     *testutil.TestProject
	db    *project.FS
	mgr   *catalog.Manager
	agent *Agent
}

func newFSFixture(t *testing.T, p *testutil.TestProject) *fsFixture {
	t.Helper()
	db, err := project.OpenFS(p.Path)
	require.NoError(t, err)
	ov := overrides.NewMemory()
	b := &catalog.Builder{Identities: ov, Chain: source.DefaultChain(source.Options{})}
	mgr := catalog.NewManager(b, db, zerolog.Nop())
	_, err = mgr.Rebuild(context.Background())
	require.NoError(t, err)
	return &fsFixture{
		p:     p,
		db:    db,
		mgr:   mgr,
		agent: &Agent{DB: db, Overrides: ov, Catalog: mgr, Log: zerolog.Nop()},
	}
}

func TestMovedOnDiskKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestProject(t).
		WithAsset("Assets/Foo.asset", containerX, stampedAsset(containerX, "Foo")).
		Build()
	f := newFSFixture(t, p)
	_, ok := f.mgr.Current().LookupByPath("Foo")
	require.True(t, ok)

	p.Rename("Assets/Foo.asset", "Assets/Bar.asset")
	rep := f.agent.Process(ctx, []Notification{
		{Kind: Moved, Container: containerX, OldPath: "Assets/Foo.asset", NewPath: "Assets/Bar.asset"},
	})
	assert.Equal(t, 1, rep.Processed)
	assert.Empty(t, rep.Failed())
	assert.Empty(t, rep.Diagnostics)

	rel, ok := f.db.ContainerPath(containerX)
	require.True(t, ok)
	assert.Equal(t, "Assets/Bar.asset", rel)

	res, rebuilt, err := f.mgr.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.Equal(t, 1, res.Snapshot.Len())
	_, ok = res.Snapshot.LookupByPath("Foo")
	assert.False(t, ok)
	e, ok := res.Snapshot.LookupByPath("Bar")
	require.True(t, ok)
	assert.Equal(t, guid.Derive(containerX, 0), e.ID)
	e, ok = res.Snapshot.Lookup(guid.Derive(containerX, 0))
	require.True(t, ok)
	assert.Equal(t, "Assets/Bar.asset", e.Object.Path)
}

func TestImportedUnseenContainerIsStamped(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewTestProject(t).
		WithAsset("Assets/Foo.asset", containerX, stampedAsset(containerX, "Foo")).
		Build()
	f := newFSFixture(t, p)

	y := uuid.MustParse("00000000-0000-4000-8000-000000000042")
	p.WriteFile("Assets/New.asset", testutil.Asset("Thing", "New"))
	p.WriteFile("Assets/New.asset.meta", testutil.MetaContent(y))
	p.WriteFile("Assets/Bare.asset", testutil.Asset("Thing", "Bare"))
	z := uuid.MustParse("00000000-0000-4000-8000-000000000043")

	rep := f.agent.Process(ctx, []Notification{
		{Kind: Imported, Container: y, NewPath: "Assets/New.asset"},
		{Kind: Imported, Container: z, NewPath: "Assets/Bare.asset"},
	})
	assert.Empty(t, rep.Failed())
	assert.Equal(t, 2, rep.Count(OutcomeStamped))
	assert.True(t, rep.Dirty)
	p.AssertFileContains("Assets/New.asset", guid.Derive(y, 0).String())
	p.AssertFileContains("Assets/Bare.asset", guid.Derive(z, 0).String())
	p.AssertFileContains("Assets/Bare.asset.meta", guid.FormatContainerID(z))

	res, _, err := f.mgr.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Snapshot.Len())
	e, ok := res.Snapshot.LookupByPath("New")
	require.True(t, ok)
	assert.Equal(t, guid.Derive(y, 0), e.ID)
}

func TestMovedOntoAnotherContainerFails(t *testing.T) {
	other := uuid.MustParse("00000000-0000-4000-8000-000000000044")
	p := testutil.NewTestProject(t).
		WithAsset("Assets/Foo.asset", containerX, stampedAsset(containerX, "Foo")).
		WithAsset("Assets/Bar.asset", other, stampedAsset(other, "Bar")).
		Build()
	f := newFSFixture(t, p)

	rep := f.agent.Process(context.Background(), []Notification{
		{Kind: Moved, Container: containerX, OldPath: "Assets/Foo.asset", NewPath: "Assets/Bar.asset"},
	})
	failed := rep.Failed()
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, project.ErrWrongContainer)
	assert.Len(t, rep.Diagnostics.WithCode(diag.CodeUnreadable), 1)

	rel, _ := f.db.ContainerPath(containerX)
	assert.Equal(t, "Assets/Foo.asset", rel)
}

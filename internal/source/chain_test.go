package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/extindex"
)

type stubFactory struct {
	name     string
	priority int
	claim    bool
	err      error
	calls    int
}

func (f *stubFactory) Name() string  { return f.name }
func (f *stubFactory) Priority() int { return f.priority }
func (f *stubFactory) TryCreate(ctx context.Context, c Context) (Source, bool, error) {
	f.calls++
	if f.err != nil {
		return Source{}, false, f.err
	}
	if !f.claim {
		return Source{}, false, nil
	}
	return Source{Kind: StaticEmbedded, Path: f.name}, true, nil
}

type slowIndex struct{}

func (slowIndex) Key(ctx context.Context, _ uuid.UUID, _ int64) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}
func (slowIndex) Close() error { return nil }

var container = uuid.MustParse("5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f")

func primary(path string) Context {
	return Context{ContainerID: container, ContainerPath: path, IsPrimary: true, Name: "Tank"}
}

func TestChainFirstMatchWins(t *testing.T) {
	a := &stubFactory{name: "A", priority: 10, claim: true}
	b := &stubFactory{name: "B", priority: 20, claim: true}

	// Declaration order must not matter; priority does.
	chain := NewChain(b, a)
	src, ok, diags := chain.Resolve(context.Background(), primary("Assets/Tank.asset"))
	require.True(t, ok)
	assert.Empty(t, diags)
	assert.Equal(t, "A", src.Path)
	assert.Equal(t, "A", src.Factory)
	assert.Equal(t, 0, b.calls)
}

func TestChainTiesKeepDeclarationOrder(t *testing.T) {
	first := &stubFactory{name: "first", priority: 5, claim: true}
	second := &stubFactory{name: "second", priority: 5, claim: true}

	src, ok, _ := NewChain(first, second).Resolve(context.Background(), primary("Assets/x.asset"))
	require.True(t, ok)
	assert.Equal(t, "first", src.Factory)

	src, ok, _ = NewChain(second, first).Resolve(context.Background(), primary("Assets/x.asset"))
	require.True(t, ok)
	assert.Equal(t, "second", src.Factory)
}

func TestChainNoClaimIsNotAnError(t *testing.T) {
	chain := NewChain(&stubFactory{name: "never", priority: 1})
	_, ok, diags := chain.Resolve(context.Background(), primary("Elsewhere/x.asset"))
	assert.False(t, ok)
	assert.Empty(t, diags)
}

func TestChainFailureFallsThrough(t *testing.T) {
	broken := &stubFactory{name: "broken", priority: 1, err: errors.New("boom")}
	fallback := &stubFactory{name: "fallback", priority: 2, claim: true}

	src, ok, diags := NewChain(broken, fallback).Resolve(context.Background(), primary("Assets/x.asset"))
	require.True(t, ok)
	assert.Equal(t, "fallback", src.Factory)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeFactoryFailed, diags[0].Code)
	assert.Equal(t, diag.SeverityWarning, diags[0].Severity)
}

func TestExternalIndexTimeoutDeclines(t *testing.T) {
	chain := NewChain(
		&ExternalIndexFactory{Timeout: 20 * time.Millisecond},
		&StaticFactory{},
	)
	sc := primary("Assets/Tank.asset")
	sc.Index = slowIndex{}

	start := time.Now()
	src, ok, diags := chain.Resolve(context.Background(), sc)
	require.True(t, ok)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StaticEmbedded, src.Kind)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeIndexUnavailable, diags[0].Code)
}

func TestDefaultChain(t *testing.T) {
	index := extindex.NewMemory(nil)
	index.Put(container, 0, "bundles/tank")
	chain := DefaultChain(Options{})

	tests := []struct {
		name    string
		ctx     Context
		wantOK  bool
		want    Source
		noIndex bool
	}{
		{
			name:   "indexed object beats resources folder",
			ctx:    Context{ContainerID: container, ContainerPath: "Assets/Resources/Tank.asset", IsPrimary: true},
			wantOK: true,
			want:   Source{Kind: ExternallyIndexed, Key: "bundles/tank", Factory: "external-index"},
		},
		{
			name:   "resources folder",
			ctx:    Context{ContainerID: uuid.New(), ContainerPath: "Assets/Resources/Fx/Boom.asset", IsPrimary: true},
			wantOK: true,
			want:   Source{Kind: PathAddressed, Path: "Fx/Boom", Factory: "resources"},
		},
		{
			name:   "nested object in resources folder",
			ctx:    Context{ContainerID: uuid.New(), ContainerPath: "Assets/Resources/Fx/Boom.asset", SubID: 3, Name: "Spark"},
			wantOK: true,
			want:   Source{Kind: PathAddressed, Path: "Fx/Boom", SubName: "Spark", Factory: "resources"},
		},
		{
			name:   "static catch-all",
			ctx:    Context{ContainerID: uuid.New(), ContainerPath: "Assets/Units/Tank.asset", IsPrimary: true},
			wantOK: true,
			want:   Source{Kind: StaticEmbedded, Path: "Assets/Units/Tank.asset", Factory: "static"},
		},
		{
			name:    "outside roots",
			ctx:     Context{ContainerID: uuid.New(), ContainerPath: "Packages/Core/Tank.asset", IsPrimary: true},
			wantOK:  false,
			noIndex: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.noIndex {
				tc.ctx.Index = index
			}
			src, ok, diags := chain.Resolve(context.Background(), tc.ctx)
			assert.Empty(t, diags)
			require.Equal(t, tc.wantOK, ok)
			if ok {
				assert.Equal(t, tc.want, src)
			}

			again, _, _ := chain.Resolve(context.Background(), tc.ctx)
			assert.Equal(t, src, again, "resolution must be deterministic")
		})
	}
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{StaticEmbedded, PathAddressed, ExternallyIndexed} {
		got, ok := ParseKind(k.String())
		assert.True(t, ok)
		assert.Equal(t, k, got)
	}
	_, ok := ParseKind("bogus")
	assert.False(t, ok)
}

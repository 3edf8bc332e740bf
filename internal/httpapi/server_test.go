package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/model"
	"github.com/aidanlsb/assetcat/internal/overrides"
	"github.com/aidanlsb/assetcat/internal/project"
	"github.com/aidanlsb/assetcat/internal/source"
	"github.com/aidanlsb/assetcat/internal/store"
	"github.com/aidanlsb/assetcat/internal/syncagent"
)

var (
	tankID   = uuid.MustParse("5f2d1c3e-8a4b-4c6d-9e0f-1a2b3c4d5e6f")
	bulletID = uuid.MustParse("a1b2c3d4-e5f6-0718-293a-4b5c6d7e8f90")
)

type testServer struct {
	db    *project.Memory
	mgr   *catalog.Manager
	store *store.Store
	srv   *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := project.NewMemory()
	db.Put(
		model.ContentObject{ContainerID: tankID, IsPrimary: true, Kind: "EntityPrototype", Name: "Tank", ContainerPath: "Assets/Units/Tank.asset"},
		model.ContentObject{ContainerID: tankID, SubID: 1, Kind: "Component", Name: "Turret", ContainerPath: "Assets/Units/Tank.asset"},
		model.ContentObject{ContainerID: bulletID, IsPrimary: true, Kind: "Projectile", Name: "Bullet", ContainerPath: "Assets/Fx/Bullet.asset"},
	)
	ov := overrides.NewMemory()
	b := &catalog.Builder{Identities: ov, Chain: source.DefaultChain(source.Options{})}
	mgr := catalog.NewManager(b, db, zerolog.Nop())
	_, err := mgr.Rebuild(context.Background())
	require.NoError(t, err)

	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	agent := &syncagent.Agent{DB: db, Overrides: ov, Catalog: mgr, Log: zerolog.Nop()}
	srv, err := New(Config{Catalog: mgr, Agent: agent, Store: st, Version: "test", Logger: zerolog.Nop()})
	require.NoError(t, err)
	return &testServer{db: db, mgr: mgr, store: st, srv: srv}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewRequiresCatalog(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[healthResponse](t, rec)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "test", got.Version)
	assert.Equal(t, 3, got.Entries)
	assert.NotZero(t, got.CatalogVersion)
}

func TestGetEntry(t *testing.T) {
	ts := newTestServer(t)
	tank := guid.Derive(tankID, 0)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"canonical", "/v1/entries/" + strings.Trim(guid.Format(tank), "[]"), http.StatusOK},
		{"bracketed", "/v1/entries/%5B" + strings.Trim(guid.Format(tank), "[]") + "%5D", http.StatusOK},
		{"unknown", "/v1/entries/0000000000000010", http.StatusNotFound},
		{"malformed", "/v1/entries/not-a-guid", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.target, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusOK {
				var e map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
				assert.Equal(t, "Units/Tank", e["logical_path"])
				assert.Equal(t, guid.Format(tank), e["guid"])
				src := e["source"].(map[string]any)
				assert.Equal(t, "static", src["kind"])
			}
		})
	}
}

func TestListEntries(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/entries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[entriesResponse](t, rec)
	require.Len(t, all.Entries, 3)
	assert.Equal(t, "Fx/Bullet", all.Entries[0].LogicalPath)

	rec = ts.do(t, http.MethodGet, "/v1/entries?path=Units/Tank%7CTurret", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	e := decode[catalog.Entry](t, rec)
	assert.Equal(t, guid.Derive(tankID, 1), e.ID)

	rec = ts.do(t, http.MethodGet, "/v1/entries?path=Nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExport(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	records, err := catalog.ParseExport(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, catalog.ExportRecords(ts.mgr.Current()), records)

	rec = ts.do(t, http.MethodGet, "/v1/export?format=json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]catalog.Record](t, rec), 3)

	rec = ts.do(t, http.MethodGet, "/v1/export?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiagnostics(t *testing.T) {
	ts := newTestServer(t)
	// Two containers claiming the same path produce a warning.
	ts.db.Put(model.ContentObject{ContainerID: uuid.New(), IsPrimary: true, Kind: "Projectile", ContainerPath: "Assets/Fx/Bullet.asset"})
	_, err := ts.mgr.Rebuild(context.Background())
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/v1/diagnostics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	diags := got["diagnostics"].([]any)
	require.NotEmpty(t, diags)
	first := diags[0].(map[string]any)
	assert.Equal(t, "warn", first["severity"])

	rec = ts.do(t, http.MethodGet, "/v1/diagnostics?severity=error", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string]any](t, rec)["diagnostics"])

	rec = ts.do(t, http.MethodGet, "/v1/diagnostics?severity=loud", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRebuildPersists(t *testing.T) {
	ts := newTestServer(t)
	before := ts.mgr.Current().Version()

	rec := ts.do(t, http.MethodPost, "/v1/rebuild", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[rebuildResponse](t, rec)
	assert.True(t, got.Persisted)
	assert.Equal(t, 3, got.Entries)
	assert.Greater(t, got.CatalogVersion, before)

	stats, err := ts.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got.CatalogVersion, stats.SnapshotVersion)
	assert.Equal(t, 3, stats.Entries)
}

func TestNotifications(t *testing.T) {
	ts := newTestServer(t)

	body := `[{"kind":"moved","container":"` + tankID.String() + `","old_path":"Assets/Units/Tank.asset","new_path":"Assets/Units/Heavy.asset"}]`
	rec := ts.do(t, http.MethodPost, "/v1/notifications", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[notificationsResponse](t, rec)
	assert.Equal(t, 1, got.Report.Processed)
	assert.True(t, got.Rebuilt)

	rec = ts.do(t, http.MethodGet, "/v1/entries?path=Units/Heavy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, guid.Derive(tankID, 0), decode[catalog.Entry](t, rec).ID)

	t.Run("bad kind", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/notifications", `[{"kind":"exploded"}]`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("missing kind", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/notifications", `[{"container":"`+tankID.String()+`"}]`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("not an array", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/notifications", `{"kind":"moved"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestNotificationsWithoutAgent(t *testing.T) {
	ts := newTestServer(t)
	srv, err := New(Config{Catalog: ts.mgr, Logger: zerolog.Nop()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications", strings.NewReader(`[]`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

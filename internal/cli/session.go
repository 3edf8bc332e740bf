package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aidanlsb/assetcat/internal/audit"
	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/config"
	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/extindex"
	"github.com/aidanlsb/assetcat/internal/logging"
	"github.com/aidanlsb/assetcat/internal/overrides"
	"github.com/aidanlsb/assetcat/internal/project"
	"github.com/aidanlsb/assetcat/internal/source"
	"github.com/aidanlsb/assetcat/internal/store"
	"github.com/aidanlsb/assetcat/internal/syncagent"
)

// session is one project opened for a command: its config, files,
// override table, external index and catalog.
type session struct {
	root      string
	cfg       *config.ProjectConfig
	db        *project.FS
	overrides *overrides.Store
	index     extindex.Lookup
	catalog   *catalog.Manager
	agent     *syncagent.Agent
	audit     *audit.Logger
	log       zerolog.Logger

	// loadDiags are problems found loading the override table.
	loadDiags diag.List
}

func openSession(ctx context.Context) (*session, error) {
	root := getProjectPath()
	pcfg, err := config.LoadProjectConfig(root)
	if err != nil {
		return nil, handleError(ErrConfigInvalid, err, "Fix assetcat.yaml and try again")
	}

	s := &session{root: root, cfg: pcfg, log: logging.With("cli")}

	s.db, err = project.OpenFS(root,
		project.WithRoots(pcfg.GetRoots()...),
		project.WithLogger(logging.With("project")))
	if err != nil {
		return nil, handleError(ErrFileReadError, err, "")
	}

	s.overrides, s.loadDiags, err = overrides.Open(ctx, overrides.NewFilePersister(root),
		overrides.WithLogger(logging.With("overrides")))
	if err != nil {
		return nil, handleError(ErrFileReadError, fmt.Errorf("load overrides: %w", err), "Fix or remove "+overrides.DefaultFile)
	}

	s.index, err = extindex.Open(pcfg.Index)
	if err != nil {
		return nil, handleError(ErrIndexError, fmt.Errorf("open external index: %w", err), "Check the index setting in assetcat.yaml")
	}

	b := &catalog.Builder{
		Identities: s.overrides,
		Chain:      source.DefaultChain(pcfg.SourceOptions()),
		Index:      s.index,
		Roots:      pcfg.GetRoots(),
		Log:        logging.With("catalog"),
	}
	if st, err := store.Open(root); err == nil {
		if stats, err := st.Stats(ctx); err == nil {
			b.SeedVersion(stats.SnapshotVersion)
		}
		st.Close()
	}
	s.catalog = catalog.NewManager(b, s.db, logging.With("catalog"))
	s.audit = audit.New(root, pcfg.IsAuditEnabled())
	s.agent = &syncagent.Agent{
		DB:                      s.db,
		Overrides:               s.overrides,
		Catalog:                 s.catalog,
		Log:                     logging.With("sync"),
		Audit:                   s.audit,
		PreserveForeignIdentity: pcfg.Sync.PreserveForeignIdentity,
	}
	return s, nil
}

// Close releases the external index.
func (s *session) Close() {
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close external index")
		}
	}
}

// rebuild runs a full rebuild and returns its result with the override
// load problems prepended.
func (s *session) rebuild(ctx context.Context) (catalog.Result, error) {
	res, err := s.catalog.Rebuild(ctx)
	if err != nil {
		return res, err
	}
	if len(s.loadDiags) > 0 {
		all := append(diag.List{}, s.loadDiags...)
		res.Diagnostics = append(all, res.Diagnostics...)
	}
	return res, nil
}

// persist saves res to the project's snapshot store under the write lock.
func (s *session) persist(ctx context.Context, res catalog.Result) error {
	lock, err := store.AcquireWriteLock(s.root)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(s.root)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveSnapshot(ctx, res.Snapshot, res.Diagnostics); err != nil {
		return err
	}
	if err := s.audit.LogRebuild(res.Snapshot.Version(), res.Snapshot.Len(), res.Diagnostics.Count(diag.SeverityError)); err != nil {
		s.log.Warn().Err(err).Msg("failed to write audit log")
	}
	return nil
}

// commit rebuilds and saves the snapshot, returning its version.
func (s *session) commit(ctx context.Context) (uint64, error) {
	res, err := s.rebuild(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.persist(ctx, res); err != nil {
		return 0, err
	}
	return res.Snapshot.Version(), nil
}

// loadSaved opens the store read-only and loads the last saved snapshot.
func loadSaved(ctx context.Context, root string) (*catalog.Snapshot, *store.Stats, error) {
	st, err := store.Open(root)
	if err != nil {
		return nil, nil, err
	}
	defer st.Close()

	snap, err := st.LoadSnapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	stats, err := st.Stats(ctx)
	if err != nil {
		return nil, nil, err
	}
	return snap, stats, nil
}

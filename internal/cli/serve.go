package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/audit"
	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/httpapi"
	"github.com/aidanlsb/assetcat/internal/logging"
	"github.com/aidanlsb/assetcat/internal/store"
	"github.com/aidanlsb/assetcat/internal/ui"
	"github.com/aidanlsb/assetcat/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP",
	Long: `Runs the catalog HTTP API in the foreground.

Endpoints:
  GET  /healthz
  GET  /v1/entries[?path=]     list entries or look one up by logical path
  GET  /v1/entries/:guid       look up one entry
  GET  /v1/export[?format=]    text export, or JSON records
  GET  /v1/diagnostics         filter with ?code= and ?severity=
  POST /v1/rebuild             force a rebuild
  POST /v1/notifications       apply moved/deleted/imported notifications

Every rebuild is saved to .assetcat/catalog.db. The store stays locked while
the server runs. With --watch, project files are also watched and synced.

Examples:
  acat serve
  acat serve --addr 127.0.0.1:9000 --watch`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	watch, _ := cmd.Flags().GetBool("watch")

	useServiceLogLevel()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if addr == "" {
		addr = s.cfg.GetServeAddr()
	}

	saver, release, err := s.openSaver()
	if err != nil {
		return handleError(errorCode(err), err, "Another acat serve or watch may be running")
	}
	defer release()

	if _, err := s.catalog.Rebuild(ctx); err != nil {
		return handleError(errorCode(err), fmt.Errorf("initial rebuild failed: %w", err), "")
	}

	srv, err := httpapi.New(httpapi.Config{
		Catalog: s.catalog,
		Agent:   s.agent,
		Store:   saver,
		Version: currentVersionInfo().Version,
		Logger:  logging.With("http"),
	})
	if err != nil {
		return handleError(ErrInternal, err, "")
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	if watch {
		w, err := s.newWatcher()
		if err != nil {
			return handleError(ErrInternal, err, "")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Start(ctx); err != nil {
				errCh <- fmt.Errorf("watcher: %w", err)
				stop()
			}
		}()
	}

	fmt.Fprintf(os.Stderr, "Serving %s on %s\n", ui.FilePath(s.root), ui.Bold.Render("http://"+addr))
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop")

	serveErr := srv.ListenAndServe(ctx, addr)
	stop()
	wg.Wait()
	close(errCh)
	if serveErr != nil {
		return handleError(ErrInternal, serveErr, "")
	}
	if err, ok := <-errCh; ok {
		return handleError(ErrInternal, err, "")
	}
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the project and sync identities as files change",
	Long: `Watches the content roots and keeps stored identities and the saved
catalog up to date as assets are created, moved, copied and deleted.

The watcher:
- Monitors .asset and .meta files under the content roots
- Waits for a quiet period (watch.debounce, default 100ms) before syncing
- Ignores .assetcat/, .git/ and dot-prefixed directories
- Saves a new snapshot after every change

Examples:
  acat watch
  acat watch --debug`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	useServiceLogLevel()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	_, release, err := s.openSaver()
	if err != nil {
		return handleError(errorCode(err), err, "Another acat serve or watch may be running")
	}
	defer release()

	if _, err := s.catalog.Rebuild(ctx); err != nil {
		return handleError(errorCode(err), fmt.Errorf("initial rebuild failed: %w", err), "")
	}

	w, err := s.newWatcher()
	if err != nil {
		return handleError(ErrInternal, err, "")
	}

	fmt.Fprintf(os.Stderr, "Watching project: %s\n", ui.FilePath(s.root))
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop")

	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nShutting down watcher...")
	}()
	return w.Start(ctx)
}

// useServiceLogLevel raises logging to info for long-running commands when
// neither the config nor --debug chose a level.
func useServiceLogLevel() {
	if cfg.Log.Level == "" && !debugFlag {
		logging.SetLevel("info")
	}
}

func (s *session) newWatcher() (*watcher.Watcher, error) {
	log := logging.With("watcher")
	return watcher.New(watcher.Config{
		Project:       s.db,
		Agent:         s.agent,
		Catalog:       s.catalog,
		DebounceDelay: s.cfg.GetDebounce(),
		Logger:        &log,
		OnFlush: func(f watcher.Flush) {
			if f.Err != nil {
				fmt.Fprintln(os.Stderr, ui.Errorf("sync failed: %v", f.Err))
				return
			}
			for _, r := range f.Report.Failed() {
				fmt.Fprintln(os.Stderr, ui.Errorf("%s: %s", r.Object, r.Error))
			}
		},
	})
}

// openSaver takes the store's write lock and saves every rebuild the
// catalog installs from now on. release drops the lock.
func (s *session) openSaver() (*snapshotSaver, func(), error) {
	lock, err := store.AcquireWriteLock(s.root)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(s.root)
	if err != nil {
		lock.Release()
		return nil, nil, err
	}
	saver := &snapshotSaver{store: st, audit: s.audit, log: logging.With("store")}
	s.catalog.OnRebuild(saver.onRebuild)
	release := func() {
		st.Close()
		lock.Release()
	}
	return saver, release, nil
}

// snapshotSaver persists snapshots, skipping versions it already saved.
type snapshotSaver struct {
	mu    sync.Mutex
	store *store.Store
	audit *audit.Logger
	log   zerolog.Logger
	last  uint64
}

func (p *snapshotSaver) SaveSnapshot(ctx context.Context, snap *catalog.Snapshot, diags diag.List) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if snap.Version() != 0 && snap.Version() == p.last {
		return nil
	}
	if err := p.store.SaveSnapshot(ctx, snap, diags); err != nil {
		return err
	}
	p.last = snap.Version()
	if err := p.audit.LogRebuild(snap.Version(), snap.Len(), diags.Count(diag.SeverityError)); err != nil {
		p.log.Warn().Err(err).Msg("failed to write audit log")
	}
	p.log.Debug().Uint64("version", snap.Version()).Int("entries", snap.Len()).Msg("snapshot saved")
	return nil
}

func (p *snapshotSaver) onRebuild(res catalog.Result) {
	if err := p.SaveSnapshot(context.Background(), res.Snapshot, res.Diagnostics); err != nil {
		p.log.Error().Err(err).Msg("failed to save snapshot")
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from assetcat.yaml, else 127.0.0.1:7411)")
	serveCmd.Flags().Bool("watch", false, "Also watch the project and sync identities")
}

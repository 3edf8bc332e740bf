package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/paths"
	"github.com/aidanlsb/assetcat/internal/store"
	"github.com/aidanlsb/assetcat/internal/syncagent"
	"github.com/aidanlsb/assetcat/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync [paths...]",
	Short: "Stamp asset guids onto project files",
	Long: `Compares the guid stored in every asset with its effective guid and
stamps the effective guid where they differ. Assets without a .meta file
get one.

Copies of an existing asset keep their copied guid until synced; sync gives
them their own. With sync.preserve_foreign_identity set, a copied guid that
no catalogued object holds is kept as an override instead.

Pass paths (files or directories) to limit the sync. A new catalog snapshot
is saved afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start := time.Now()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		rep, err := s.syncAll(ctx, args)
		if err != nil {
			return handleError(errorCode(err), err, "")
		}
		version, commitErr := s.commit(ctx)
		if commitErr != nil {
			s.log.Warn().Err(commitErr).Msg("failed to save snapshot after sync")
		}

		failed := rep.Failed()
		if isJSONOutput() {
			outputSuccessWithWarnings(map[string]interface{}{
				"processed":       rep.Processed,
				"stamped":         rep.Count(syncagent.OutcomeStamped),
				"drift":           rep.Count(syncagent.OutcomeDrift),
				"duplicates":      rep.Count(syncagent.OutcomeDuplicate),
				"override_kept":   rep.Count(syncagent.OutcomeOverrideKept),
				"pinned":          rep.Count(syncagent.OutcomePinned),
				"failed":          failed,
				"catalog_version": version,
				"diagnostics":     rep.Diagnostics,
			}, diagnosticWarnings(rep.Diagnostics), &Meta{
				Count:          rep.Processed,
				CatalogVersion: version,
				ElapsedMs:      time.Since(start).Milliseconds(),
			})
			if len(failed) > 0 {
				return errSilent
			}
			return nil
		}

		changed := rep.Count(syncagent.OutcomeStamped) + rep.Count(syncagent.OutcomeDrift) +
			rep.Count(syncagent.OutcomeDuplicate) + rep.Count(syncagent.OutcomeOverrideKept) +
			rep.Count(syncagent.OutcomePinned)
		if changed == 0 && len(failed) == 0 {
			outf("%s", ui.Checkf("All identities up to date %s", ui.Hint(fmt.Sprintf("(%d containers)", rep.Processed))))
		} else {
			outf("%s", ui.Checkf("Synced %d containers", rep.Processed))
			for _, o := range []syncagent.Outcome{
				syncagent.OutcomeStamped,
				syncagent.OutcomeDrift,
				syncagent.OutcomeDuplicate,
				syncagent.OutcomeOverrideKept,
				syncagent.OutcomePinned,
			} {
				if n := rep.Count(o); n > 0 {
					outf("  %s %s", ui.Bold.Render(fmt.Sprintf("%d", n)), o)
				}
			}
		}
		printDiagnostics(rep.Diagnostics, 20)
		if len(failed) > 0 {
			return handleErrorMsg(ErrSyncFailed, fmt.Sprintf("%d objects could not be synced", len(failed)), "")
		}
		return nil
	},
}

// syncAll stamps every container, or those under filter. New and copied
// containers are judged against the saved snapshot so copies are told
// apart from their originals.
func (s *session) syncAll(ctx context.Context, filter []string) (syncagent.Report, error) {
	if _, err := s.db.Scan(ctx); err != nil {
		return syncagent.Report{}, err
	}

	saved, _, err := loadSaved(ctx, s.root)
	switch {
	case err == nil:
		s.catalog.Apply(catalog.Result{Snapshot: saved, Diagnostics: saved.Diagnostics()})
	case errors.Is(err, store.ErrNoSnapshot):
	default:
		s.log.Warn().Err(err).Msg("could not read saved snapshot, judging every container as new")
	}

	objs, err := s.db.Objects(ctx)
	if err != nil {
		return syncagent.Report{}, err
	}
	prefixes := make([]string, 0, len(filter))
	for _, p := range filter {
		if filepath.IsAbs(p) {
			if rel, err := filepath.Rel(s.root, p); err == nil {
				p = rel
			}
		}
		prefixes = append(prefixes, paths.NormalizeRelPath(p))
	}

	seen := make(map[uuid.UUID]bool)
	var batch []syncagent.Notification
	for _, o := range objs {
		if seen[o.ContainerID] || !matchesAny(o.ContainerPath, prefixes) {
			continue
		}
		seen[o.ContainerID] = true
		batch = append(batch, syncagent.Notification{Kind: syncagent.Imported, Container: o.ContainerID, NewPath: o.ContainerPath})
	}

	ch := make(chan syncagent.Notification)
	go func() {
		defer close(ch)
		for _, n := range batch {
			select {
			case ch <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	rep, err := s.agent.Run(ctx, ch, s.cfg.GetWorkers())
	s.log.Info().
		Int("containers", rep.Processed).
		Int("failed", len(rep.Failed())).
		Int("warnings", rep.Diagnostics.Count(diag.SeverityWarning)).
		Msg("sync finished")
	return rep, err
}

func matchesAny(containerPath string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if containerPath == p || paths.UnderRoot(containerPath, p) {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

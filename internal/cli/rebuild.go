package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/store"
	"github.com/aidanlsb/assetcat/internal/ui"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the catalog from the project",
	Long: `Scans every content root, derives each object's asset guid and saves the
resulting catalog snapshot to .assetcat/catalog.db.

Objects with conflicting identities are excluded and reported. The command
exits non-zero when the catalog has errors, but the snapshot is saved
either way.

Examples:
  # Rebuild and save
  acat rebuild

  # Show what would change compared to the saved snapshot
  acat rebuild --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		start := time.Now()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		var spinner *ui.Spinner
		if !jsonOutput {
			spinner = ui.NewSpinner(stdout, "Rebuilding catalog")
			spinner.Start()
		}
		res, err := s.rebuild(ctx)
		if spinner != nil {
			spinner.Stop()
		}
		if err != nil {
			return handleError(errorCode(err), fmt.Errorf("rebuild failed: %w", err), "")
		}
		snap := res.Snapshot

		var changes []catalog.Change
		hadSaved := false
		if saved, _, err := loadSaved(ctx, s.root); err == nil {
			hadSaved = true
			changes = catalog.Diff(catalog.ExportRecords(saved), catalog.ExportRecords(snap))
		} else if !errors.Is(err, store.ErrNoSnapshot) {
			s.log.Warn().Err(err).Msg("could not read saved snapshot")
		}

		if !dryRun {
			if err := s.persist(ctx, res); err != nil {
				return handleError(errorCode(err), fmt.Errorf("failed to save snapshot: %w", err), "Is another acat process running?")
			}
		}

		errCount := res.Diagnostics.Count(diag.SeverityError)
		warnCount := res.Diagnostics.Count(diag.SeverityWarning)

		if isJSONOutput() {
			outputSuccessWithWarnings(map[string]interface{}{
				"catalog_version": snap.Version(),
				"entries":         snap.Len(),
				"errors":          errCount,
				"warnings":        warnCount,
				"dry_run":         dryRun,
				"changes":         changes,
				"diagnostics":     res.Diagnostics,
			}, diagnosticWarnings(res.Diagnostics), &Meta{
				Count:          snap.Len(),
				CatalogVersion: snap.Version(),
				ElapsedMs:      time.Since(start).Milliseconds(),
			})
			if errCount > 0 {
				return errSilent
			}
			return nil
		}

		if dryRun {
			if !hadSaved {
				outf("Dry run: %d entries would be saved (no saved snapshot yet)", snap.Len())
			} else if len(changes) == 0 {
				outf("Dry run: no changes since the saved snapshot")
			} else {
				outf("Dry run: %d changes since the saved snapshot", len(changes))
				printChanges(changes)
			}
		} else {
			outf("%s", ui.Checkf("Rebuilt catalog %s", ui.Hint(fmt.Sprintf("(version %d)", snap.Version()))))
			outf("  %s entries", ui.Bold.Render(fmt.Sprintf("%d", snap.Len())))
			if hadSaved && len(changes) > 0 {
				outf("  %s changes since last save", ui.Bold.Render(fmt.Sprintf("%d", len(changes))))
			}
		}

		if errCount+warnCount > 0 {
			outf("  %s", ui.ErrorWarningCounts(errCount, warnCount))
			printDiagnostics(res.Diagnostics, 20)
		}
		if errCount > 0 {
			return handleErrorMsg(ErrCatalogErrors, fmt.Sprintf("catalog has %d errors", errCount), "Run 'acat check' for details")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
	rebuildCmd.Flags().Bool("dry-run", false, "Show what would change without saving")
}

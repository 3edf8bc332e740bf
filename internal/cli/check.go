package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/store"
	"github.com/aidanlsb/assetcat/internal/ui"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report catalog diagnostics",
	Long: `Prints the diagnostics of the saved catalog snapshot: identity conflicts,
reserved bits, path collisions, failed source factories and override
problems. Use --live to rebuild from the project first without saving.

Exits non-zero when there are errors, or warnings with --strict.

Examples:
  acat check
  acat check --code identity-conflict
  acat check --live --strict`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		live, _ := cmd.Flags().GetBool("live")
		strict, _ := cmd.Flags().GetBool("strict")
		code, _ := cmd.Flags().GetString("code")
		severityFlag, _ := cmd.Flags().GetString("severity")

		minSeverity := diag.SeverityInfo
		if severityFlag != "" {
			sev, ok := diag.ParseSeverity(severityFlag)
			if !ok {
				return handleErrorMsg(ErrInvalidInput, fmt.Sprintf("unknown severity %q", severityFlag), "Use error, warn or info")
			}
			minSeverity = sev
		}

		var (
			list    diag.List
			version uint64
			entries int
		)
		if live {
			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			res, err := s.rebuild(ctx)
			if err != nil {
				return handleError(errorCode(err), err, "")
			}
			list, version, entries = res.Diagnostics, res.Snapshot.Version(), res.Snapshot.Len()
		} else {
			st, err := store.Open(getProjectPath())
			if err != nil {
				return handleError(ErrDatabaseError, err, "")
			}
			defer st.Close()
			stats, err := st.Stats(ctx)
			if err != nil {
				return handleError(ErrDatabaseError, err, "")
			}
			if stats.SavedAt.IsZero() {
				return handleError(ErrNoSnapshot, store.ErrNoSnapshot, "Run 'acat rebuild' first, or pass --live")
			}
			list, err = st.LoadDiagnostics(ctx)
			if err != nil {
				return handleError(ErrDatabaseError, err, "")
			}
			version, entries = stats.SnapshotVersion, stats.Entries
		}

		list = filterDiagnostics(list, code, minSeverity)
		errCount := list.Count(diag.SeverityError)
		warnCount := list.Count(diag.SeverityWarning)

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"catalog_version": version,
				"entries":         entries,
				"errors":          errCount,
				"warnings":        warnCount,
				"diagnostics":     list,
			}, &Meta{Count: len(list), CatalogVersion: version})
		} else {
			if errCount+warnCount == 0 {
				outf("%s", ui.Checkf("No problems %s", ui.Hint(fmt.Sprintf("(%d entries, version %d)", entries, version))))
			} else {
				outf("Catalog version %d, %d entries %s", version, entries, ui.ErrorWarningCounts(errCount, warnCount))
				printDiagnostics(list, 0)
			}
			if n := list.Count(diag.SeverityInfo); n > 0 && minSeverity == diag.SeverityInfo {
				outf("  %s", ui.Hint(fmt.Sprintf("%d info diagnostics (use --json to see them)", n)))
			}
		}

		if errCount > 0 || (strict && warnCount > 0) {
			if isJSONOutput() {
				return errSilent
			}
			return errors.New("catalog check failed")
		}
		return nil
	},
}

// filterDiagnostics keeps diagnostics matching code (when set) that are at
// least as severe as floor.
func filterDiagnostics(list diag.List, code string, floor diag.Severity) diag.List {
	if code != "" {
		list = list.WithCode(code)
	}
	out := make(diag.List, 0, len(list))
	for _, d := range list {
		if d.Severity <= floor {
			out = append(out, d)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("live", false, "Rebuild from the project instead of reading the saved snapshot")
	checkCmd.Flags().Bool("strict", false, "Treat warnings as errors")
	checkCmd.Flags().String("code", "", "Only show diagnostics with this code")
	checkCmd.Flags().String("severity", "", "Minimum severity: error, warn or info")
}

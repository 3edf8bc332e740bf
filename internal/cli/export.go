package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/atomicfile"
	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/store"
	"github.com/aidanlsb/assetcat/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog as text",
	Long: `Writes the catalog as one tab-separated record per line:

  # assetcat snapshot v1
  [1B6A075DEE3A0393]	Units/Tank	EntityPrototype

Records are ordered by logical path, so two exports of the same project
diff cleanly. Compare exports with 'acat diff'.

Examples:
  acat export -o catalog.txt
  acat export --live > catalog.txt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		live, _ := cmd.Flags().GetBool("live")
		output, _ := cmd.Flags().GetString("output")

		var snap *catalog.Snapshot
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
			snap = res.Snapshot
		} else {
			saved, _, err := loadSaved(ctx, getProjectPath())
			if err != nil {
				if errors.Is(err, store.ErrNoSnapshot) {
					return handleError(ErrNoSnapshot, err, "Run 'acat rebuild' first, or pass --live")
				}
				return handleError(ErrDatabaseError, err, "")
			}
			snap = saved
		}

		if output != "" {
			err := atomicfile.Write(output, 0o644, func(w io.Writer) error {
				return catalog.Export(w, snap)
			})
			if err != nil {
				return handleError(ErrFileWriteError, fmt.Errorf("failed to write %s: %w", output, err), "")
			}
			if isJSONOutput() {
				outputSuccess(map[string]interface{}{
					"path":    output,
					"entries": snap.Len(),
				}, &Meta{Count: snap.Len(), CatalogVersion: snap.Version()})
				return nil
			}
			outf("%s", ui.Checkf("Exported %d entries to %s", snap.Len(), ui.FilePath(output)))
			return nil
		}

		if isJSONOutput() {
			outputSuccess(catalog.ExportRecords(snap), &Meta{Count: snap.Len(), CatalogVersion: snap.Version()})
			return nil
		}
		if err := catalog.Export(stdout, snap); err != nil {
			return handleError(ErrFileWriteError, err, "")
		}
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <old-export> <new-export>",
	Short: "Compare two catalog exports",
	Long: `Compares two files written by 'acat export' by asset guid.

Reports entries that were added, removed, moved to a new logical path or
retyped. A logical path that kept its name but now carries a different guid
is reported as reassigned: references to the old guid are broken.

Exits non-zero when any path was reassigned.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		before, err := readExport(args[0])
		if err != nil {
			return handleError(ErrFileReadError, err, "")
		}
		after, err := readExport(args[1])
		if err != nil {
			return handleError(ErrFileReadError, err, "")
		}

		changes := catalog.Diff(before, after)
		reassigned := 0
		for _, c := range changes {
			if c.Kind == catalog.Reassigned {
				reassigned++
			}
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"changes":    changes,
				"reassigned": reassigned,
			}, &Meta{Count: len(changes)})
		} else if len(changes) == 0 {
			outf("%s", ui.Check("No changes"))
		} else {
			outf("%d changes:", len(changes))
			printChanges(changes)
		}

		if reassigned > 0 {
			if isJSONOutput() {
				return errSilent
			}
			return fmt.Errorf("%d logical paths were reassigned to new guids", reassigned)
		}
		return nil
	},
}

func readExport(path string) ([]catalog.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()
	records, err := catalog.ParseExport(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(diffCmd)
	exportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	exportCmd.Flags().Bool("live", false, "Rebuild from the project instead of reading the saved snapshot")
}

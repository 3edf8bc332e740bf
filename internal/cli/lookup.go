package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/store"
	"github.com/aidanlsb/assetcat/internal/ui"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <guid|path>",
	Short: "Look up a catalog entry by guid or logical path",
	Long: `Looks up one catalog entry.

The argument is tried as an asset guid first ("[0123456789ABCDEF]", bare hex
or 0x-prefixed) and as a logical path otherwise. Nested objects use
"Container|Name" paths.

By default the saved snapshot is read. Use --live to rebuild from the
project first.

Examples:
  acat lookup "[1B6A075DEE3A0393]"
  acat lookup Units/Tank
  acat lookup "Units/Tank|Turret" --live`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		live, _ := cmd.Flags().GetBool("live")
		query := strings.TrimSpace(args[0])
		if query == "" {
			return handleErrorMsg(ErrMissingArgument, "lookup needs a guid or a logical path", "")
		}

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

		entry, ok := lookupEntry(snap, query)
		if !ok {
			return handleErrorMsg(ErrEntryNotFound, fmt.Sprintf("no catalog entry for %q", query), "")
		}

		if isJSONOutput() {
			outputSuccess(entry, &Meta{Count: 1, CatalogVersion: snap.Version()})
			return nil
		}
		printEntry(entry)
		return nil
	},
}

// lookupEntry resolves query as a guid, then as a logical path.
func lookupEntry(snap *catalog.Snapshot, query string) (catalog.Entry, bool) {
	if id, err := guid.Parse(query); err == nil {
		if e, ok := snap.Lookup(id); ok {
			return e, true
		}
	}
	return snap.LookupByPath(query)
}

func printEntry(e catalog.Entry) {
	t := ui.NewTable(2)
	t.AddField("guid", ui.GUID(e.ID.String()))
	t.AddField("path", e.LogicalPath)
	t.AddField("kind", e.DeclaredKind)
	t.AddField("source", e.Source.String())
	t.AddField("object", e.Object.String())
	if e.IsOverride {
		t.AddField("override", "yes")
	}
	fmt.Fprint(stdout, t.String())
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.Flags().Bool("live", false, "Rebuild from the project instead of reading the saved snapshot")
}

package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/audit"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/overrides"
	"github.com/aidanlsb/assetcat/internal/syncagent"
	"github.com/aidanlsb/assetcat/internal/ui"
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage identity overrides",
	Long: `Overrides pin an object's asset guid explicitly instead of deriving it from
its container id. They are stored in .assetcat/overrides.toml, which should
be committed.

Changing an override restamps the object and saves a new catalog snapshot.`,
}

type overrideRow struct {
	Container string         `json:"container"`
	Sub       int64          `json:"sub"`
	Guid      guid.AssetGuid `json:"guid"`
	Derived   guid.AssetGuid `json:"derived"`
	Redundant bool           `json:"redundant,omitempty"`
	Path      string         `json:"path,omitempty"`
}

var overrideListCmd = &cobra.Command{
	Use:   "list",
	Short: "List overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if _, err := s.db.Scan(ctx); err != nil {
			return handleError(ErrFileReadError, err, "")
		}

		var rows []overrideRow
		for _, e := range s.overrides.All() {
			row := overrideRow{
				Container: guid.FormatContainerID(e.Container),
				Sub:       e.Sub,
				Guid:      e.ID,
				Derived:   e.Derived(),
				Redundant: e.ID == e.Derived(),
			}
			if p, ok := s.db.ContainerPath(e.Container); ok {
				row.Path = p
			}
			rows = append(rows, row)
		}

		if isJSONOutput() {
			outputSuccessWithWarnings(map[string]interface{}{"overrides": rows},
				diagnosticWarnings(s.loadDiags), &Meta{Count: len(rows)})
			return nil
		}
		if len(rows) == 0 {
			outf("No overrides.")
			return nil
		}
		t := ui.NewTable(4)
		t.SetHeader("guid", "object", "path", "")
		for _, r := range rows {
			note := ui.Hint("derived " + r.Derived.String())
			if r.Redundant {
				note = ui.Warning("redundant")
			}
			where := r.Path
			if where == "" {
				where = ui.Warning("missing from project")
			}
			t.AddRow(ui.GUID(r.Guid.String()), fmt.Sprintf("%s#%d", r.Container, r.Sub), where, note)
		}
		fmt.Fprint(stdout, t.String())
		printDiagnostics(s.loadDiags, 0)
		return nil
	},
}

var overrideSetCmd = &cobra.Command{
	Use:   "set <container-id> <sub-id> <guid>",
	Short: "Pin an object's asset guid",
	Long: `Pins the object (container-id, sub-id) to guid.

The guid must not use the reserved high bits. Setting the derived guid is
allowed but redundant; 'acat override prune' removes such entries.

Examples:
  acat override set 5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f 0 "[1B6A075DEE3A0393]"`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reason, _ := cmd.Flags().GetString("reason")

		key, err := parseOverrideKey(args[0], args[1])
		if err != nil {
			return err
		}
		id, err := guid.Parse(args[2])
		if err != nil {
			return handleError(ErrGuidInvalid, err, "")
		}
		if !id.IsCatalogID() {
			return handleError(ErrReservedBits, fmt.Errorf("%w: %s", overrides.ErrReservedBits, id), "Catalog guids never set the two high bits")
		}

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		old, _ := s.overrides.Effective(key)
		if err := s.overrides.Set(ctx, key, id); err != nil {
			return handleError(errorCode(err), err, "")
		}
		if err := s.audit.LogOverride(key.Container.String(), key.Sub, old.String(), id.String(), reason); err != nil {
			s.log.Warn().Err(err).Msg("failed to write audit log")
		}

		rep, version := s.applyOverrideChange(ctx, key.Container)
		return reportOverrideChange(key, old, id, rep, version)
	},
}

var overrideClearCmd = &cobra.Command{
	Use:   "clear <container-id> [sub-id]",
	Short: "Remove an override",
	Long: `Removes the override for (container-id, sub-id); sub-id defaults to 0.

When the override differs from the derived guid, clearing it changes the
object's guid and breaks existing references. That needs confirmation:
an interactive prompt, or --yes.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		yes, _ := cmd.Flags().GetBool("yes")
		reason, _ := cmd.Flags().GetString("reason")

		sub := "0"
		if len(args) == 2 {
			sub = args[1]
		}
		key, err := parseOverrideKey(args[0], sub)
		if err != nil {
			return err
		}

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		old, ok := s.overrides.Get(key)
		if !ok {
			return handleErrorMsg(ErrOverrideNotFound,
				fmt.Sprintf("no override for %s#%d", guid.FormatContainerID(key.Container), key.Sub), "Run 'acat override list'")
		}
		derived := guid.Derive(key.Container, key.Sub)

		if s.overrides.WouldChange(key) && !yes {
			msg := fmt.Sprintf("Clearing changes the guid from %s to %s. Existing references will break.", old, derived)
			if !shouldPromptForConfirm() {
				return handleErrorWithDetails(ErrConfirmationRequired, msg, "Pass --yes to confirm", map[string]interface{}{
					"current": old,
					"derived": derived,
				})
			}
			outf("%s", ui.Warning(msg))
			if !promptForConfirm("Clear override?") {
				outf("Cancelled.")
				return nil
			}
		}

		if err := s.overrides.Clear(ctx, key); err != nil {
			return handleError(errorCode(err), err, "")
		}
		if err := s.audit.LogOverride(key.Container.String(), key.Sub, old.String(), "", reason); err != nil {
			s.log.Warn().Err(err).Msg("failed to write audit log")
		}

		rep, version := s.applyOverrideChange(ctx, key.Container)
		return reportOverrideChange(key, old, derived, rep, version)
	},
}

var overridePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove redundant overrides",
	Long: `Removes overrides equal to the derived guid. With --missing, also removes
overrides whose object no longer exists in the project.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		missing, _ := cmd.Flags().GetBool("missing")

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		removed, err := s.overrides.Prune(ctx)
		if err != nil {
			return handleError(errorCode(err), err, "")
		}
		var vanished []overrides.Entry
		if missing {
			objs, err := s.db.Objects(ctx)
			if err != nil {
				return handleError(ErrFileReadError, err, "")
			}
			present := make(map[overrides.Key]bool, len(objs))
			for _, o := range objs {
				present[overrides.KeyOf(o)] = true
			}
			vanished, err = s.overrides.Validate(ctx, func(k overrides.Key) bool { return present[k] })
			if err != nil {
				return handleError(errorCode(err), err, "")
			}
		}

		for _, e := range removed {
			s.logPrune(e, "redundant")
		}
		for _, e := range vanished {
			s.logPrune(e, "missing")
		}
		if len(removed)+len(vanished) > 0 {
			if _, err := s.commit(ctx); err != nil {
				s.log.Warn().Err(err).Msg("failed to save snapshot after prune")
			}
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"redundant": entryRows(removed),
				"missing":   entryRows(vanished),
			}, &Meta{Count: len(removed) + len(vanished)})
			return nil
		}
		if len(removed)+len(vanished) == 0 {
			outf("%s", ui.Check("Nothing to prune"))
			return nil
		}
		for _, e := range removed {
			outf("  - %s %s#%d %s", ui.GUID(e.ID.String()), guid.FormatContainerID(e.Container), e.Sub, ui.Hint("(redundant)"))
		}
		for _, e := range vanished {
			outf("  - %s %s#%d %s", ui.GUID(e.ID.String()), guid.FormatContainerID(e.Container), e.Sub, ui.Hint("(missing)"))
		}
		outf("%s", ui.Checkf("Pruned %d overrides", len(removed)+len(vanished)))
		return nil
	},
}

func (s *session) logPrune(e overrides.Entry, reason string) {
	err := s.audit.Log(audit.Entry{
		Operation: audit.OpPrune,
		Container: e.Container.String(),
		Sub:       e.Sub,
		Old:       e.ID.String(),
		Reason:    reason,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to write audit log")
	}
}

func parseOverrideKey(container, sub string) (overrides.Key, error) {
	id, err := guid.ParseContainerID(container)
	if err != nil {
		return overrides.Key{}, handleError(ErrContainerInvalid, err, "Container ids are 32 hex digits, with or without dashes")
	}
	n, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return overrides.Key{}, handleErrorMsg(ErrInvalidInput, fmt.Sprintf("invalid sub id %q", sub), "Sub ids are decimal integers")
	}
	return overrides.Key{Container: id, Sub: n}, nil
}

func entryRows(entries []overrides.Entry) []overrideRow {
	rows := make([]overrideRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, overrideRow{
			Container: guid.FormatContainerID(e.Container),
			Sub:       e.Sub,
			Guid:      e.ID,
			Derived:   e.Derived(),
		})
	}
	return rows
}

// applyOverrideChange restamps the container when it is in the project and
// saves a fresh snapshot. Failures are logged; the override itself is
// already persisted.
func (s *session) applyOverrideChange(ctx context.Context, container uuid.UUID) (syncagent.Report, uint64) {
	var rep syncagent.Report
	// The agent needs a catalog that knows the container, or the old id
	// would look foreign.
	if _, err := s.catalog.Rebuild(ctx); err != nil {
		s.log.Warn().Err(err).Msg("rebuild before restamp failed")
	} else if objs, err := s.db.ContainerObjects(ctx, container); err == nil && len(objs) > 0 {
		rep = s.agent.Process(ctx, []syncagent.Notification{{Kind: syncagent.Imported, Container: container, NewPath: objs[0].ContainerPath}})
		for _, r := range rep.Failed() {
			s.log.Warn().Str("object", r.Object.String()).Str("error", r.Error).Msg("restamp failed")
		}
	}
	res, err := s.commit(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to save snapshot after override change")
		return rep, 0
	}
	return rep, res
}

func reportOverrideChange(key overrides.Key, old, now guid.AssetGuid, rep syncagent.Report, version uint64) error {
	if isJSONOutput() {
		outputSuccess(map[string]interface{}{
			"container":       guid.FormatContainerID(key.Container),
			"sub":             key.Sub,
			"old":             old,
			"guid":            now,
			"restamped":       rep.Dirty,
			"catalog_version": version,
		}, &Meta{CatalogVersion: version})
		return nil
	}
	if old == now {
		outf("%s", ui.Checkf("%s#%d keeps %s", guid.FormatContainerID(key.Container), key.Sub, ui.GUID(now.String())))
	} else {
		outf("%s", ui.Checkf("%s#%d: %s -> %s", guid.FormatContainerID(key.Container), key.Sub, old, ui.GUID(now.String())))
	}
	if rep.Dirty {
		outf("  %s", ui.Hint("restamped in project files"))
	}
	if len(rep.Failed()) > 0 {
		outf("  %s", ui.Warningf("%d objects could not be restamped", len(rep.Failed())))
	}
	return nil
}

func init() {
	overrideSetCmd.Flags().String("reason", "", "Reason recorded in the audit log")
	overrideClearCmd.Flags().String("reason", "", "Reason recorded in the audit log")
	overrideClearCmd.Flags().BoolP("yes", "y", false, "Confirm a clear that changes the guid")
	overridePruneCmd.Flags().Bool("missing", false, "Also remove overrides for objects missing from the project")

	overrideCmd.AddCommand(overrideListCmd)
	overrideCmd.AddCommand(overrideSetCmd)
	overrideCmd.AddCommand(overrideClearCmd)
	overrideCmd.AddCommand(overridePruneCmd)
	rootCmd.AddCommand(overrideCmd)
}

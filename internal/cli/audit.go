package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/audit"
	"github.com/aidanlsb/assetcat/internal/config"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/ui"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the identity audit log",
	Long: `Prints .assetcat/audit.log: every stamped identity, override change and
saved rebuild.

Examples:
  acat audit --since 24h
  acat audit --object 5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f#1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetDuration("since")
		object, _ := cmd.Flags().GetString("object")
		limit, _ := cmd.Flags().GetInt("limit")

		root := getProjectPath()
		pcfg, err := config.LoadProjectConfig(root)
		if err != nil {
			return handleError(ErrConfigInvalid, err, "Fix assetcat.yaml and try again")
		}
		log := audit.New(root, pcfg.IsAuditEnabled())
		if !log.Enabled() {
			return handleErrorMsg(ErrInvalidInput, "the audit log is disabled", "Set audit: true in assetcat.yaml")
		}

		var entries []audit.Entry
		switch {
		case object != "":
			container, sub, err := parseObjectRef(object)
			if err != nil {
				return handleError(ErrContainerInvalid, err, "Use <container-id> or <container-id>#<sub-id>")
			}
			entries, err = log.ReadForObject(container, sub)
			if err != nil {
				return handleError(ErrFileReadError, err, "")
			}
			if since > 0 {
				entries = entriesSince(entries, time.Now().Add(-since))
			}
		case since > 0:
			entries, err = log.ReadSince(time.Now().Add(-since))
		default:
			entries, err = log.Read()
		}
		if err != nil {
			return handleError(ErrFileReadError, err, "")
		}
		if limit > 0 && len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{"entries": entries}, &Meta{Count: len(entries)})
			return nil
		}
		if len(entries) == 0 {
			outf("No audit entries.")
			return nil
		}
		t := ui.NewTable(4)
		t.SetHeader("time", "op", "object", "change")
		for _, e := range entries {
			t.AddRow(ui.Muted.Render(e.Timestamp.Local().Format("2006-01-02 15:04:05")), e.Operation, describeAuditTarget(e), describeAuditChange(e))
		}
		fmt.Fprint(stdout, t.String())
		return nil
	},
}

// parseObjectRef reads "container" or "container#sub". Containers are
// returned in the dashed form the log uses.
func parseObjectRef(s string) (string, int64, error) {
	containerText, subText, hasSub := strings.Cut(s, "#")
	container, err := guid.ParseContainerID(containerText)
	if err != nil {
		return "", 0, err
	}
	var sub int64
	if hasSub {
		sub, err = strconv.ParseInt(subText, 10, 64)
		if err != nil {
			return "", 0, fmt.Errorf("invalid sub id %q", subText)
		}
	}
	return container.String(), sub, nil
}

func entriesSince(entries []audit.Entry, t time.Time) []audit.Entry {
	var out []audit.Entry
	for _, e := range entries {
		if !e.Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	return out
}

func describeAuditTarget(e audit.Entry) string {
	if e.Container == "" {
		return ""
	}
	if e.Path != "" {
		return fmt.Sprintf("%s#%d", e.Path, e.Sub)
	}
	return fmt.Sprintf("%s#%d", e.Container, e.Sub)
}

func describeAuditChange(e audit.Entry) string {
	if e.Operation == audit.OpRebuild {
		return ui.Hint(fmt.Sprintf("version %v, %v entries, %v errors", e.Extra["version"], e.Extra["entries"], e.Extra["errors"]))
	}
	change := e.New
	if e.Old != "" && e.New != "" {
		change = e.Old + " -> " + e.New
	} else if e.New == "" {
		change = e.Old + " removed"
	}
	if e.Reason != "" {
		change += " " + ui.Hint("("+e.Reason+")")
	}
	return change
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().Duration("since", 0, "Only show entries newer than this (e.g. 24h)")
	auditCmd.Flags().String("object", "", "Only show entries for <container-id>[#sub-id]")
	auditCmd.Flags().Int("limit", 0, "Show at most this many of the newest entries")
}

package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/buildinfo"
	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/store"
)

// versionInfo adds the on-disk formats this binary reads and writes.
type versionInfo struct {
	buildinfo.Info
	StoreSchema  int    `json:"store_schema"`
	ExportFormat string `json:"export_format"`
}

func currentVersionInfo() versionInfo {
	return versionInfo{
		Info:         buildinfo.Read(),
		StoreSchema:  store.CurrentVersion,
		ExportFormat: strings.TrimPrefix(catalog.ExportHeader, "# "),
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show assetcat version and build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentVersionInfo()
		if isJSONOutput() {
			outputSuccess(info, nil)
			return nil
		}

		outf("acat %s (%s)", info.Version, info.Platform)
		if info.Commit != "" {
			commit := info.Commit
			if info.Modified {
				commit += "+dirty"
			}
			outf("commit %s %s", commit, info.CommitTime)
		}
		outf("built with %s from %s", info.GoVersion, info.Module)
		outf("store schema %d, export format %q", info.StoreSchema, info.ExportFormat)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/ui"
)

var guidCmd = &cobra.Command{
	Use:   "guid",
	Short: "Derive and inspect asset guids",
	Long:  `Derives asset guids from container ids and inspects existing guids. No project is needed.`,
}

var guidDeriveCmd = &cobra.Command{
	Use:   "derive <container-id> [sub-id]",
	Short: "Derive the asset guid of an object",
	Long: `Prints the asset guid derived from a container id and an optional sub id
(default 0, the container's primary object).

Examples:
  acat guid derive 5f2d1c3e8a4b4c6d9e0f1a2b3c4d5e6f
  acat guid derive 5f2d1c3e-8a4b-4c6d-9e0f-1a2b3c4d5e6f 3`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := guid.ParseContainerID(args[0])
		if err != nil {
			return handleError(ErrContainerInvalid, err, "Container ids are 32 hex digits, with or without dashes")
		}
		sub := guid.PrimarySubID
		if len(args) == 2 {
			sub, err = strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return handleErrorMsg(ErrInvalidInput, fmt.Sprintf("invalid sub id %q", args[1]), "Sub ids are decimal integers")
			}
		}

		id := guid.Derive(container, sub)
		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"container": guid.FormatContainerID(container),
				"sub":       sub,
				"guid":      id,
				"value":     uint64(id),
			}, nil)
			return nil
		}
		outf("%s", ui.GUID(id.String()))
		return nil
	},
}

var guidParseCmd = &cobra.Command{
	Use:   "parse <guid>",
	Short: "Validate an asset guid and print its canonical form",
	Long: `Parses an asset guid in canonical ("[0123456789ABCDEF]"), bare hex or
0x-prefixed form and prints its canonical form and flags.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := guid.Parse(args[0])
		if err != nil {
			return handleError(ErrGuidInvalid, err, "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"guid":       id,
				"value":      uint64(id),
				"catalog_id": id.IsCatalogID(),
				"dynamic":    id.IsDynamic(),
			}, nil)
			return nil
		}

		t := ui.NewTable(2)
		t.AddField("guid", ui.GUID(id.String()))
		t.AddField("value", strconv.FormatUint(uint64(id), 10))
		switch {
		case id.IsCatalogID():
			t.AddField("kind", "catalog")
		case id.IsDynamic():
			t.AddField("kind", "dynamic")
		default:
			t.AddField("kind", ui.Warning("reserved bits set"))
		}
		fmt.Fprint(stdout, t.String())
		return nil
	},
}

var guidRuntimeCmd = &cobra.Command{
	Use:   "runtime <name> <kind>",
	Short: "Print the dynamic guid for an object created at runtime",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := guid.ForRuntime(args[0], args[1])
		if isJSONOutput() {
			outputSuccess(map[string]interface{}{"guid": id, "value": uint64(id)}, nil)
			return nil
		}
		outf("%s", ui.GUID(id.String()))
		return nil
	},
}

func init() {
	guidCmd.AddCommand(guidDeriveCmd)
	guidCmd.AddCommand(guidParseCmd)
	guidCmd.AddCommand(guidRuntimeCmd)
	rootCmd.AddCommand(guidCmd)
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/config"
	"github.com/aidanlsb/assetcat/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Initialize a new project",
	Long: `Creates a new assetcat project at the specified path.

Creates:
  - assetcat.yaml  (project configuration)
  - .assetcat/     (snapshot store, overrides and audit log)
  - .gitignore     (ignores the snapshot store)

The override table (.assetcat/overrides.toml) is meant to be committed;
only the derived store is ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		if err := os.MkdirAll(filepath.Join(path, config.StateDir), 0o755); err != nil {
			return handleError(ErrFileWriteError, fmt.Errorf("failed to create %s directory: %w", config.StateDir, err), "")
		}

		gitignoreStatus, err := ensureGitignore(path)
		if err != nil {
			return handleError(ErrFileWriteError, err, "")
		}

		createdConfig, err := config.CreateDefaultProjectConfig(path)
		if err != nil {
			return handleError(ErrFileWriteError, fmt.Errorf("failed to create %s: %w", config.ProjectFile, err), "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"path":           path,
				"created_config": createdConfig,
				"gitignore":      gitignoreStatus,
			}, nil)
			return nil
		}

		outf("Initializing project at: %s", ui.FilePath(path))
		if createdConfig {
			outf("%s", ui.Check("Created assetcat.yaml (project configuration)"))
		} else {
			outf("• assetcat.yaml already exists (kept)")
		}
		outf("%s", ui.Check("Ensured .assetcat/ directory exists"))
		switch gitignoreStatus {
		case "created":
			outf("%s", ui.Check("Created .gitignore"))
		case "updated":
			outf("%s", ui.Check("Updated .gitignore (added assetcat entries)"))
		default:
			outf("• .gitignore already has assetcat entries")
		}

		if createdConfig {
			outf("\nProject initialized! Run 'acat rebuild' to build the catalog.")
		} else {
			outf("\nExisting project detected. Configuration preserved.")
		}
		return nil
	},
}

// gitignoreEntries are the derived files under .assetcat/.
var gitignoreEntries = []string{
	".assetcat/catalog.db*",
	".assetcat/catalog.lock",
}

func ensureGitignore(root string) (string, error) {
	gitignorePath := filepath.Join(root, ".gitignore")

	existing := ""
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existing = string(data)
	}

	var missing []string
	for _, entry := range gitignoreEntries {
		if !strings.Contains(existing, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return "unchanged", nil
	}

	status := "created"
	var content string
	if existing == "" {
		content = "# assetcat (auto-generated)\n# Snapshot store, rebuilt with 'acat rebuild'\n" +
			strings.Join(gitignoreEntries, "\n") + "\n"
	} else {
		status = "updated"
		content = strings.TrimRight(existing, "\n") + "\n\n# assetcat\n" + strings.Join(missing, "\n") + "\n"
	}
	if err := os.WriteFile(gitignorePath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write .gitignore: %w", err)
	}
	return status, nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}

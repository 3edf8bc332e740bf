// Package cli implements the command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/assetcat/internal/config"
	"github.com/aidanlsb/assetcat/internal/logging"
	"github.com/aidanlsb/assetcat/internal/ui"
)

var (
	// Global flags
	projectFlag string // Project root or named project from config
	configPath  string
	debugFlag   bool

	// Resolved values
	resolvedProjectPath string
	resolvedConfigPath  string
	cfg                 *config.Config
)

// errSilent is returned after a failure has already been reported, so
// Execute exits non-zero without printing it again.
var errSilent = errors.New("failure already reported")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "acat",
	Short: "assetcat - stable asset identity for content projects",
	Long: `assetcat assigns every content object a stable 64-bit asset guid and keeps
a catalog mapping guids to logical paths and load sources.

Identities are derived from the container id in each asset's .meta file, so
renaming or moving an asset never changes its guid. Per-object overrides pin
a guid explicitly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, resolvedConfigPath, err = loadGlobalConfigWithPath()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		// One-shot commands only log warnings unless configured otherwise.
		logging.SetLevel("warn")
		if cfg.Log.Level != "" && !logging.SetLevel(cfg.Log.Level) {
			fmt.Fprintf(os.Stderr, "warning: unknown log level %q in config\n", cfg.Log.Level)
		}
		if debugFlag {
			logging.SetDebug(true)
		}
		ui.ConfigureTheme(cfg.UI.Accent)

		// Skip project resolution for commands that don't need it
		if !needsProject(cmd) {
			return nil
		}
		resolvedProjectPath, err = resolveProjectPath()
		if err != nil {
			return handleError(ErrProjectNotFound, err, "Run 'acat init' to create a project, or pass --project")
		}
		return nil
	},
}

func needsProject(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "init", "version", "guid", "diff", "completion", "help":
			return false
		}
	}
	return true
}

// resolveProjectPath picks the project root: --project (a path or a named
// project from config), then the nearest project above the working
// directory, then the configured default project.
func resolveProjectPath() (string, error) {
	if p := strings.TrimSpace(projectFlag); p != "" {
		if st, err := os.Stat(p); err == nil && st.IsDir() {
			return p, nil
		}
		if path, err := cfg.GetProjectPath(p); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("project not found: %s", p)
	}

	wd, err := os.Getwd()
	if err == nil {
		if root, err := config.FindProjectRoot(wd); err == nil {
			return root, nil
		}
	}

	path, err := cfg.GetProjectPath("")
	if err != nil {
		return "", fmt.Errorf(`no project found

Either:
  1. Run acat inside a project (a directory with assetcat.yaml)
  2. Use --project /path/to/project or --project <name> from config
  3. Set default_project in %s`, resolvedConfigPath)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("project not found: %s", path)
	}
	return path, nil
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errSilent) {
		fmt.Fprintln(os.Stderr, ui.Error(err.Error()))
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project root, or a named project from config")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (for scripts)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

// getProjectPath returns the resolved project root.
func getProjectPath() string {
	return resolvedProjectPath
}

func loadGlobalConfigWithPath() (*config.Config, string, error) {
	resolvedPath := config.DefaultPath()

	var loadedCfg *config.Config
	var err error
	if strings.TrimSpace(configPath) != "" {
		resolvedPath = configPath
		loadedCfg, err = config.LoadFrom(configPath)
	} else {
		loadedCfg, err = config.Load()
	}
	if err != nil {
		return nil, "", err
	}
	if loadedCfg == nil {
		loadedCfg = &config.Config{}
	}

	return loadedCfg, resolvedPath, nil
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/config"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/overrides"
	"github.com/aidanlsb/assetcat/internal/store"
	"github.com/aidanlsb/assetcat/internal/testutil"
)

var (
	tankID   = uuid.MustParse("5f2d1c3e-8a4b-4c6d-9e0f-1a2b3c4d5e6f")
	bulletID = uuid.MustParse("a1b2c3d4-e5f6-0718-293a-4b5c6d7e8f90")
)

const tankAsset = `kind: EntityPrototype
name: Tank
objects:
  - id: 4
    name: Turret
    kind: Component
`

// runCmd executes the root command in-process with an empty global config
// and returns what it wrote to stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, nil, 0o644))

	var err error
	out := captureOutput(t, func() {
		rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
		err = rootCmd.ExecuteContext(context.Background())
	})
	resetFlags(rootCmd)
	return out, err
}

// runJSON runs a command against root in JSON mode and parses the envelope.
func runJSON(t *testing.T, root string, args ...string) (envelope, error) {
	t.Helper()
	flags := []string{"--json"}
	if root != "" {
		flags = append(flags, "--project", root)
	}
	out, err := runCmd(t, append(flags, args...)...)
	return parseEnvelope(t, out), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func newProject(t *testing.T) *testutil.TestProject {
	t.Helper()
	return testutil.NewTestProject(t).
		WithAsset("Assets/Units/Tank.asset", tankID, tankAsset).
		WithAsset("Assets/Fx/Bullet.asset", bulletID, testutil.Asset("Projectile", "Bullet")).
		Build()
}

func TestInitCreatesProject(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "game")

	env, err := runJSON(t, "", "init", dir)
	require.NoError(t, err)
	require.True(t, env.OK)
	data := decodeData[map[string]any](t, env)
	assert.Equal(t, true, data["created_config"])
	assert.Equal(t, "created", data["gitignore"])

	assert.FileExists(t, filepath.Join(dir, config.ProjectFile))
	gitignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(gitignore), ".assetcat/catalog.db*")

	env, err = runJSON(t, "", "init", dir)
	require.NoError(t, err)
	data = decodeData[map[string]any](t, env)
	assert.Equal(t, false, data["created_config"])
	assert.Equal(t, "unchanged", data["gitignore"])
}

func TestRebuildThenLookup(t *testing.T) {
	p := newProject(t)

	env, err := runJSON(t, p.Path, "rebuild")
	require.NoError(t, err)
	require.True(t, env.OK, "%+v", env.Error)
	data := decodeData[map[string]any](t, env)
	assert.EqualValues(t, 3, data["entries"])
	assert.EqualValues(t, 0, data["errors"])
	require.NotNil(t, env.Meta)
	assert.NotZero(t, env.Meta.CatalogVersion)

	t.Run("by path", func(t *testing.T) {
		env, err := runJSON(t, p.Path, "lookup", "Units/Tank")
		require.NoError(t, err)
		e := decodeData[catalog.Entry](t, env)
		assert.Equal(t, guid.Derive(tankID, 0), e.ID)
		assert.Equal(t, "EntityPrototype", e.DeclaredKind)
	})

	t.Run("by guid", func(t *testing.T) {
		id := guid.Derive(tankID, 4)
		env, err := runJSON(t, p.Path, "lookup", id.String())
		require.NoError(t, err)
		e := decodeData[catalog.Entry](t, env)
		assert.Equal(t, id, e.ID)
		assert.Equal(t, "Component", e.DeclaredKind)
	})

	t.Run("unknown", func(t *testing.T) {
		env, err := runJSON(t, p.Path, "lookup", "Units/Nope")
		assert.ErrorIs(t, err, errSilent)
		require.NotNil(t, env.Error)
		assert.Equal(t, ErrEntryNotFound, env.Error.Code)
	})
}

func TestLookupWithoutSnapshot(t *testing.T) {
	p := newProject(t)

	env, err := runJSON(t, p.Path, "lookup", "Units/Tank")
	assert.ErrorIs(t, err, errSilent)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrNoSnapshot, env.Error.Code)

	env, err = runJSON(t, p.Path, "lookup", "--live", "Units/Tank")
	require.NoError(t, err)
	assert.Equal(t, guid.Derive(tankID, 0), decodeData[catalog.Entry](t, env).ID)
}

func TestRebuildPersistsSnapshot(t *testing.T) {
	p := newProject(t)

	first, err := runJSON(t, p.Path, "rebuild")
	require.NoError(t, err)
	second, err := runJSON(t, p.Path, "rebuild")
	require.NoError(t, err)
	assert.Greater(t, second.Meta.CatalogVersion, first.Meta.CatalogVersion)

	st, err := store.Open(p.Path)
	require.NoError(t, err)
	defer st.Close()
	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.Meta.CatalogVersion, stats.SnapshotVersion)
	assert.Equal(t, 3, stats.Entries)
}

func TestRebuildDryRunReportsMoves(t *testing.T) {
	p := newProject(t)
	_, err := runJSON(t, p.Path, "rebuild")
	require.NoError(t, err)

	p.Rename("Assets/Units/Tank.asset", "Assets/Units/Heavy.asset")

	env, err := runJSON(t, p.Path, "rebuild", "--dry-run")
	require.NoError(t, err)
	data := decodeData[struct {
		DryRun  bool             `json:"dry_run"`
		Changes []catalog.Change `json:"changes"`
	}](t, env)
	assert.True(t, data.DryRun)
	require.NotEmpty(t, data.Changes)
	for _, c := range data.Changes {
		assert.Equal(t, catalog.Moved, c.Kind, "%+v", c)
	}

	// The saved snapshot is untouched.
	env, err = runJSON(t, p.Path, "lookup", "Units/Tank")
	require.NoError(t, err)
	assert.True(t, env.OK)
}

func TestExportAndDiff(t *testing.T) {
	p := newProject(t)
	_, err := runJSON(t, p.Path, "rebuild")
	require.NoError(t, err)

	before := filepath.Join(t.TempDir(), "before.txt")
	_, err = runJSON(t, p.Path, "export", "-o", before)
	require.NoError(t, err)
	content, err := os.ReadFile(before)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), catalog.ExportHeader+"\n"))
	assert.Contains(t, string(content), guid.Derive(tankID, 0).String()+"\tUnits/Tank\tEntityPrototype")

	t.Run("no changes", func(t *testing.T) {
		env, err := runJSON(t, "", "diff", before, before)
		require.NoError(t, err)
		data := decodeData[map[string]any](t, env)
		assert.Empty(t, data["changes"])
	})

	t.Run("reassigned path fails", func(t *testing.T) {
		after := filepath.Join(t.TempDir(), "after.txt")
		replaced := strings.Replace(string(content), guid.Derive(tankID, 0).String(), "[0000000000001234]", 1)
		require.NoError(t, os.WriteFile(after, []byte(replaced), 0o644))

		env, err := runJSON(t, "", "diff", before, after)
		assert.ErrorIs(t, err, errSilent)
		data := decodeData[struct {
			Changes    []catalog.Change `json:"changes"`
			Reassigned int              `json:"reassigned"`
		}](t, env)
		assert.Equal(t, 1, data.Reassigned)
		require.Len(t, data.Changes, 1)
		assert.Equal(t, catalog.Reassigned, data.Changes[0].Kind)
	})
}

func TestOverrideSetAndClear(t *testing.T) {
	p := newProject(t)
	container := guid.FormatContainerID(tankID)
	pinned := guid.MustParse("[0000000000001234]")

	env, err := runJSON(t, p.Path, "override", "set", container, "0", pinned.String(), "--reason", "legacy id")
	require.NoError(t, err)
	require.True(t, env.OK, "%+v", env.Error)
	p.AssertFileContains("Assets/Units/Tank.asset", pinned.String())

	env, err = runJSON(t, p.Path, "lookup", pinned.String())
	require.NoError(t, err)
	e := decodeData[catalog.Entry](t, env)
	assert.Equal(t, "Units/Tank", e.LogicalPath)
	assert.True(t, e.IsOverride)

	env, err = runJSON(t, p.Path, "override", "list")
	require.NoError(t, err)
	rows := decodeData[struct {
		Overrides []overrideRow `json:"overrides"`
	}](t, env).Overrides
	require.Len(t, rows, 1)
	assert.Equal(t, pinned, rows[0].Guid)
	assert.Equal(t, "Assets/Units/Tank.asset", rows[0].Path)

	t.Run("clear needs confirmation", func(t *testing.T) {
		env, err := runJSON(t, p.Path, "override", "clear", container)
		assert.ErrorIs(t, err, errSilent)
		require.NotNil(t, env.Error)
		assert.Equal(t, ErrConfirmationRequired, env.Error.Code)
	})

	env, err = runJSON(t, p.Path, "override", "clear", container, "--yes")
	require.NoError(t, err)
	require.True(t, env.OK, "%+v", env.Error)
	p.AssertFileContains("Assets/Units/Tank.asset", guid.Derive(tankID, 0).String())
	p.AssertFileNotContains("Assets/Units/Tank.asset", pinned.String())

	env, err = runJSON(t, p.Path, "override", "clear", container, "--yes")
	assert.ErrorIs(t, err, errSilent)
	assert.Equal(t, ErrOverrideNotFound, env.Error.Code)
}

func TestOverrideSetRejectsReservedBits(t *testing.T) {
	p := newProject(t)
	env, err := runJSON(t, p.Path, "override", "set", guid.FormatContainerID(tankID), "0", "[C000000000000001]")
	assert.ErrorIs(t, err, errSilent)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrReservedBits, env.Error.Code)
	assert.False(t, p.FileExists(overrides.DefaultFile))
}

func TestOverridePrune(t *testing.T) {
	p := newProject(t)
	container := guid.FormatContainerID(tankID)
	_, err := runJSON(t, p.Path, "override", "set", container, "0", guid.Derive(tankID, 0).String())
	require.NoError(t, err)
	_, err = runJSON(t, p.Path, "override", "set", guid.FormatContainerID(uuid.New()), "0", "[0000000000004321]")
	require.NoError(t, err)

	env, err := runJSON(t, p.Path, "override", "prune", "--missing")
	require.NoError(t, err)
	data := decodeData[struct {
		Redundant []overrideRow `json:"redundant"`
		Missing   []overrideRow `json:"missing"`
	}](t, env)
	assert.Len(t, data.Redundant, 1)
	assert.Len(t, data.Missing, 1)

	env, err = runJSON(t, p.Path, "override", "list")
	require.NoError(t, err)
	assert.Empty(t, decodeData[map[string]any](t, env)["overrides"])
}

func TestSyncStampsAndRestampsCopies(t *testing.T) {
	p := newProject(t)

	env, err := runJSON(t, p.Path, "sync")
	require.NoError(t, err)
	data := decodeData[map[string]any](t, env)
	assert.EqualValues(t, 2, data["processed"])
	assert.EqualValues(t, 3, data["stamped"])
	tankGuid := guid.Derive(tankID, 0).String()
	p.AssertFileContains("Assets/Units/Tank.asset", tankGuid)

	env, err = runJSON(t, p.Path, "sync")
	require.NoError(t, err)
	assert.EqualValues(t, 0, decodeData[map[string]any](t, env)["stamped"])

	p.Copy("Assets/Units/Tank.asset", "Assets/Units/Tank2.asset")
	env, err = runJSON(t, p.Path, "sync", "Assets/Units")
	require.NoError(t, err)
	data = decodeData[map[string]any](t, env)
	assert.EqualValues(t, 2, data["processed"])
	assert.EqualValues(t, 2, data["duplicates"])
	p.AssertFileNotContains("Assets/Units/Tank2.asset", tankGuid)
	p.AssertFileContains("Assets/Units/Tank.asset", tankGuid)

	env, err = runJSON(t, p.Path, "lookup", "Units/Tank2")
	require.NoError(t, err)
	copyEntry := decodeData[catalog.Entry](t, env)
	assert.NotEqual(t, guid.Derive(tankID, 0), copyEntry.ID)
	p.AssertFileContains("Assets/Units/Tank2.asset", copyEntry.ID.String())
}

func TestCheck(t *testing.T) {
	p := newProject(t)

	env, err := runJSON(t, p.Path, "check")
	assert.ErrorIs(t, err, errSilent)
	assert.Equal(t, ErrNoSnapshot, env.Error.Code)

	_, err = runJSON(t, p.Path, "rebuild")
	require.NoError(t, err)

	env, err = runJSON(t, p.Path, "check")
	require.NoError(t, err)
	data := decodeData[map[string]any](t, env)
	assert.EqualValues(t, 0, data["errors"])
	assert.EqualValues(t, 3, data["entries"])

	env, err = runJSON(t, p.Path, "check", "--severity", "error")
	require.NoError(t, err)
	assert.Empty(t, decodeData[map[string]any](t, env)["diagnostics"])

	env, err = runJSON(t, p.Path, "check", "--severity", "loud")
	assert.ErrorIs(t, err, errSilent)
	assert.Equal(t, ErrInvalidInput, env.Error.Code)
}

func TestGuidCommands(t *testing.T) {
	env, err := runJSON(t, "", "guid", "derive", tankID.String(), "4")
	require.NoError(t, err)
	data := decodeData[struct {
		Guid guid.AssetGuid `json:"guid"`
		Sub  int64          `json:"sub"`
	}](t, env)
	assert.Equal(t, guid.Derive(tankID, 4), data.Guid)
	assert.EqualValues(t, 4, data.Sub)

	env, err = runJSON(t, "", "guid", "parse", "0x1234")
	require.NoError(t, err)
	parsed := decodeData[map[string]any](t, env)
	assert.Equal(t, "[0000000000001234]", parsed["guid"])
	assert.Equal(t, true, parsed["catalog_id"])

	env, err = runJSON(t, "", "guid", "parse", "not-a-guid")
	assert.ErrorIs(t, err, errSilent)
	assert.Equal(t, ErrGuidInvalid, env.Error.Code)

	out, err := runCmd(t, "guid", "runtime", "Bullet(Clone)", "Projectile")
	require.NoError(t, err)
	assert.Contains(t, out, guid.ForRuntime("Bullet(Clone)", "Projectile").String())
}

func TestAuditCommand(t *testing.T) {
	p := newProject(t)
	_, err := runJSON(t, p.Path, "sync")
	require.NoError(t, err)

	env, err := runJSON(t, p.Path, "audit", "--object", guid.FormatContainerID(tankID)+"#4")
	require.NoError(t, err)
	entries := decodeData[struct {
		Entries []map[string]any `json:"entries"`
	}](t, env).Entries
	require.Len(t, entries, 1)
	assert.Equal(t, "stamp", entries[0]["op"])
	assert.Equal(t, guid.Derive(tankID, 4).String(), entries[0]["new"])

	env, err = runJSON(t, p.Path, "audit", "--since", "1h")
	require.NoError(t, err)
	assert.NotEmpty(t, decodeData[map[string]any](t, env)["entries"])
}

func TestHandleError(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		withJSON(t, true)
		var err error
		out := captureOutput(t, func() {
			err = handleError(ErrGuidInvalid, errors.New("bad guid"), "try again")
		})
		assert.ErrorIs(t, err, errSilent)
		env := parseEnvelope(t, out)
		assert.False(t, env.OK)
		assert.Equal(t, ErrGuidInvalid, env.Error.Code)
		assert.Equal(t, "try again", env.Error.Suggestion)
	})

	t.Run("text", func(t *testing.T) {
		withJSON(t, false)
		err := handleError(ErrGuidInvalid, errors.New("bad guid"), "try again")
		require.Error(t, err)
		assert.Equal(t, "bad guid\n\ntry again", err.Error())
	})
}

func TestErrorCode(t *testing.T) {
	_, parseErr := guid.Parse("zz")
	tests := []struct {
		err  error
		want string
	}{
		{parseErr, ErrGuidInvalid},
		{fmt.Errorf("set: %w", overrides.ErrReservedBits), ErrReservedBits},
		{fmt.Errorf("%w: disk full", overrides.ErrPersist), ErrPersistFailed},
		{store.ErrStoreLocked, ErrStoreLocked},
		{store.ErrNoSnapshot, ErrNoSnapshot},
		{config.ErrNoProject, ErrProjectNotFound},
		{errors.New("boom"), ErrInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err), "%v", tt.err)
	}
}

func TestConfirmPrompt(t *testing.T) {
	withJSON(t, false)

	withStdin(t, "y\n", true)
	var ok bool
	out := captureOutput(t, func() { ok = promptForConfirm("Clear override?") })
	assert.True(t, ok)
	assert.Contains(t, out, "Clear override?")

	withStdin(t, "\n", true)
	captureOutput(t, func() { ok = promptForConfirm("") })
	assert.False(t, ok)

	withStdin(t, "y\n", false)
	assert.False(t, promptForConfirm("ignored"))
}

func TestDiagnosticWarningsSkipInfo(t *testing.T) {
	p := newProject(t)
	env, err := runJSON(t, p.Path, "sync")
	require.NoError(t, err)
	// Every stamp is an info diagnostic; none become envelope warnings.
	assert.Empty(t, env.Warnings)
	var data struct {
		Diagnostics []json.RawMessage `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.Diagnostics)
}

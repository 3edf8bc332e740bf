package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/assetcat/internal/buildinfo"
	"github.com/aidanlsb/assetcat/internal/store"
)

func TestVersionCommandJSONOutput(t *testing.T) {
	withJSON(t, true)
	prevVersion, prevCommit := buildinfo.Version, buildinfo.Commit
	t.Cleanup(func() { buildinfo.Version, buildinfo.Commit = prevVersion, prevCommit })
	buildinfo.Version = "v0.4.0"
	buildinfo.Commit = "cafef00d"

	out := captureOutput(t, func() {
		require.NoError(t, versionCmd.RunE(versionCmd, nil))
	})

	var resp struct {
		OK   bool           `json:"ok"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.True(t, resp.OK)
	assert.Equal(t, "v0.4.0", resp.Data["version"])
	assert.Equal(t, "cafef00d", resp.Data["commit"])
	assert.NotEmpty(t, resp.Data["platform"])
	assert.EqualValues(t, store.CurrentVersion, resp.Data["store_schema"])
	assert.Equal(t, "assetcat snapshot v1", resp.Data["export_format"])
}

func TestVersionCommandText(t *testing.T) {
	withJSON(t, false)
	prevVersion := buildinfo.Version
	t.Cleanup(func() { buildinfo.Version = prevVersion })
	buildinfo.Version = "v0.4.0"

	out := captureOutput(t, func() {
		require.NoError(t, versionCmd.RunE(versionCmd, nil))
	})
	assert.Contains(t, out, "acat v0.4.0")
	assert.Contains(t, out, "export format \"assetcat snapshot v1\"")
}

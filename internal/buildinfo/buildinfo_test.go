package buildinfo

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stubBuildInfo(t *testing.T, bi *debug.BuildInfo) {
	t.Helper()
	prev := readBuildInfo
	prevVersion, prevCommit, prevDate := Version, Commit, Date
	t.Cleanup(func() {
		readBuildInfo = prev
		Version, Commit, Date = prevVersion, prevCommit, prevDate
	})
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
	Version, Commit, Date = "", "", ""
}

func TestReadEmbedded(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		GoVersion: "go1.23.4",
		Main:      debug.Module{Path: "example.com/fork/assetcat", Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2026-02-14T17:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "GOOS", Value: "windows"},
			{Key: "GOARCH", Value: "amd64"},
		},
	})

	assert.Equal(t, Info{
		Version:    "v1.2.3",
		Module:     "example.com/fork/assetcat",
		Commit:     "abc123",
		CommitTime: "2026-02-14T17:00:00Z",
		Modified:   true,
		GoVersion:  "go1.23.4",
		Platform:   "windows/amd64",
	}, Read())
}

func TestReadDevelopmentBuild(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	info := Read()
	assert.Equal(t, "devel", info.Version)
	assert.Equal(t, modulePath, info.Module)
	assert.Empty(t, info.Commit)
	assert.False(t, info.Modified)
}

func TestReadWithoutBuildInfo(t *testing.T) {
	stubBuildInfo(t, nil)
	assert.Equal(t, Info{
		Version:   "devel",
		Module:    modulePath,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}, Read())
}

func TestLinkTimeValuesWin(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}},
	})
	Version, Commit, Date = "v0.4.0", "cafef00d", "2026-03-01"

	info := Read()
	assert.Equal(t, "v0.4.0", info.Version)
	assert.Equal(t, "cafef00d", info.Commit)
	assert.Equal(t, "2026-03-01", info.CommitTime)
}

package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerRoundTrip(t *testing.T) {
	root := t.TempDir()
	l := New(root, true)

	require.NoError(t, l.LogStamp("c1", 0, "Assets/Tank.asset", "", "[1B6A075DEE3A0393]", "identity-stamped"))
	require.NoError(t, l.LogOverride("c1", 2, "", "[0000000000000042]", "override-pinned"))
	require.NoError(t, l.LogOverride("c2", 0, "[0000000000000042]", "", ""))
	require.NoError(t, l.LogRebuild(3, 10, 0))

	all, err := l.Read()
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, OpStamp, all[0].Operation)
	assert.Equal(t, OpOverrideSet, all[1].Operation)
	assert.Equal(t, OpOverrideClear, all[2].Operation)
	assert.Equal(t, OpRebuild, all[3].Operation)

	forObj, err := l.ReadForObject("c1", 2)
	require.NoError(t, err)
	require.Len(t, forObj, 1)
	assert.Equal(t, "[0000000000000042]", forObj[0].New)

	_, err = os.Stat(filepath.Join(root, ".assetcat", "audit.log"))
	assert.NoError(t, err)
}

func TestLoggerSkipsMalformedLines(t *testing.T) {
	root := t.TempDir()
	l := New(root, true)
	require.NoError(t, l.LogStamp("c1", 0, "", "", "[0000000000000001]", ""))

	f, err := os.OpenFile(filepath.Join(root, ".assetcat", "audit.log"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, _ = f.WriteString("not json\n\n")
	require.NoError(t, f.Close())

	all, err := l.Read()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	recent, err := l.ReadSince(time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestDisabledLogger(t *testing.T) {
	root := t.TempDir()
	l := New(root, false)
	require.NoError(t, l.LogStamp("c1", 0, "", "", "x", ""))
	_, err := os.Stat(filepath.Join(root, ".assetcat"))
	assert.True(t, os.IsNotExist(err))

	var nilLogger *Logger
	assert.False(t, nilLogger.Enabled())
	assert.NoError(t, nilLogger.LogStamp("c1", 0, "", "", "x", ""))
}

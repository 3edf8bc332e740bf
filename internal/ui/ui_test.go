package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"", "", false},
		{"none", "", false},
		{"39", "39", true},
		{"  244 ", "244", true},
		{"256", "", false},
		{"-1", "", false},
		{"#7AA2F7", "#7aa2f7", true},
		{"#abc", "#aabbcc", true},
		{"#zzzzzz", "", false},
		{"#abcd", "", false},
		{"teal", "", false},
	}
	for _, tt := range tests {
		got, ok := parseColor(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestTableAlignsStyledCells(t *testing.T) {
	tbl := NewTable(3)
	tbl.AddRow(Accent.Render("[0000000000000001]"), "Units/Tank", "EntityPrototype")
	tbl.AddRow("[0000000000000002]", "Fx/Bullet", "Projectile")

	assert.Equal(t, []int{18, 10, 15}, tbl.widths)
	assert.Contains(t, tbl.String(), "[0000000000000002]  Fx/Bullet   Projectile\n")
}

func TestTableTrimsTrailingBlankCells(t *testing.T) {
	tbl := NewTable(3)
	tbl.AddRow("guid", "[0000000000000001]")
	tbl.AddRow("a", "b", "c")
	lines := strings.Split(tbl.String(), "\n")
	assert.Equal(t, "guid  [0000000000000001]", lines[0])
}

func TestTableEmpty(t *testing.T) {
	tbl := NewTable(2)
	tbl.SetHeader("guid", "path")
	assert.Empty(t, tbl.String())
}

func TestErrorWarningCounts(t *testing.T) {
	assert.Equal(t, "(1 error, 2 warnings)", ErrorWarningCounts(1, 2))
	assert.Equal(t, "(3 errors)", ErrorWarningCounts(3, 0))
	assert.Equal(t, "(1 warning)", ErrorWarningCounts(0, 1))
	assert.Equal(t, "(0 warnings)", ErrorWarningCounts(0, 0))
}

func TestSpinnerOnPlainWriter(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "Rebuilding catalog")
	s.Start()
	s.Stop()
	s.Stop()
	assert.Equal(t, "Rebuilding catalog...\n", buf.String())
}

func TestChangeLine(t *testing.T) {
	line := ChangeLine(MarkAdded, "[0000000000000001]", "Units/Tank")
	assert.True(t, strings.HasPrefix(line, "+ "))
	assert.Contains(t, line, "[0000000000000001]")
	assert.True(t, strings.HasSuffix(line, " Units/Tank"))
}

package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders rows as space-aligned columns without borders. Widths are
// measured with lipgloss so styled cells line up.
type Table struct {
	header []string
	rows   [][]string
	widths []int
	gap    string
}

// NewTable returns a table with cols columns.
func NewTable(cols int) *Table {
	return &Table{widths: make([]int, cols), gap: "  "}
}

// SetHeader sets column titles, rendered muted above the rows.
func (t *Table) SetHeader(titles ...string) {
	t.header = t.fit(titles)
}

// AddRow adds a row. Missing cells are blank; extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, t.fit(cells))
}

// AddField adds a two-column label/value row with a muted label.
func (t *Table) AddField(label, value string) {
	t.AddRow(Muted.Render(label), value)
}

func (t *Table) fit(cells []string) []string {
	row := make([]string, len(t.widths))
	copy(row, cells)
	for i, c := range row {
		if w := lipgloss.Width(c); w > t.widths[i] {
			t.widths[i] = w
		}
	}
	return row
}

func (t *Table) String() string {
	if len(t.rows) == 0 {
		return ""
	}
	var sb strings.Builder
	if t.header != nil {
		styled := make([]string, len(t.header))
		for i, h := range t.header {
			styled[i] = Muted.Render(h)
		}
		t.writeRow(&sb, styled)
	}
	for _, row := range t.rows {
		t.writeRow(&sb, row)
	}
	return sb.String()
}

func (t *Table) writeRow(sb *strings.Builder, row []string) {
	last := len(row) - 1
	for last > 0 && row[last] == "" {
		last--
	}
	for i := 0; i <= last; i++ {
		if i > 0 {
			sb.WriteString(t.gap)
		}
		sb.WriteString(row[i])
		if i < last {
			sb.WriteString(strings.Repeat(" ", t.widths[i]-lipgloss.Width(row[i])))
		}
	}
	sb.WriteByte('\n')
}

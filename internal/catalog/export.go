package catalog

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aidanlsb/assetcat/internal/guid"
)

// ExportHeader is the first line of every export.
const ExportHeader = "# assetcat snapshot v1"

// Record is one exported line.
type Record struct {
	ID          guid.AssetGuid `json:"guid"`
	LogicalPath string         `json:"logical_path"`
	Kind        string         `json:"kind"`
}

// ExportRecords returns the snapshot's records ordered by logical path.
func ExportRecords(s *Snapshot) []Record {
	out := make([]Record, 0, s.Len())
	for _, e := range s.entries {
		out = append(out, Record{ID: e.ID, LogicalPath: e.LogicalPath, Kind: e.DeclaredKind})
	}
	return out
}

// Export writes the snapshot as text:
//
//	# assetcat snapshot v1
//	[1B6A075DEE3A0393]	Units/Tank	EntityPrototype
//
// One tab-separated record per line, ordered by logical path. Tabs and
// newlines inside fields are replaced by spaces.
func Export(w io.Writer, s *Snapshot) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, ExportHeader); err != nil {
		return err
	}
	for _, r := range ExportRecords(s) {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\n", guid.Format(r.ID), clean(r.LogicalPath), clean(r.Kind)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

var fieldCleaner = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func clean(s string) string {
	return fieldCleaner.Replace(s)
}

// ParseExport reads what Export wrote. Blank lines and "#" comments are
// skipped.
func ParseExport(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	sawHeader := false
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == ExportHeader {
			sawHeader = true
			continue
		}
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 tab-separated fields, got %d", line, len(fields))
		}
		id, err := guid.Parse(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, Record{ID: id, LogicalPath: fields[1], Kind: fields[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sawHeader && len(out) > 0 {
		return nil, fmt.Errorf("missing %q header", ExportHeader)
	}
	return out, nil
}

// ChangeKind classifies a difference between two exports.
type ChangeKind string

const (
	Added      ChangeKind = "added"
	Removed    ChangeKind = "removed"
	Moved      ChangeKind = "moved"
	Retyped    ChangeKind = "retyped"
	Reassigned ChangeKind = "reassigned"
)

// Change is one difference between two exports.
type Change struct {
	Kind    ChangeKind     `json:"kind"`
	ID      guid.AssetGuid `json:"guid"`
	OldPath string         `json:"old_path,omitempty"`
	NewPath string         `json:"new_path,omitempty"`
	OldKind string         `json:"old_kind,omitempty"`
	NewKind string         `json:"new_kind,omitempty"`
}

// Diff compares two exports by id. A path that kept its name but now
// carries a different id is reported as Reassigned, which usually means
// references to the old id broke.
func Diff(before, after []Record) []Change {
	oldByID := make(map[guid.AssetGuid]Record, len(before))
	for _, r := range before {
		oldByID[r.ID] = r
	}
	newByID := make(map[guid.AssetGuid]Record, len(after))
	for _, r := range after {
		newByID[r.ID] = r
	}
	oldByPath := make(map[string]Record, len(before))
	for _, r := range before {
		oldByPath[r.LogicalPath] = r
	}

	var changes []Change
	for _, n := range after {
		o, ok := oldByID[n.ID]
		if !ok {
			if prev, had := oldByPath[n.LogicalPath]; had {
				if _, survived := newByID[prev.ID]; !survived {
					changes = append(changes, Change{Kind: Reassigned, ID: n.ID, OldPath: prev.LogicalPath, NewPath: n.LogicalPath, OldKind: prev.Kind, NewKind: n.Kind})
					continue
				}
			}
			changes = append(changes, Change{Kind: Added, ID: n.ID, NewPath: n.LogicalPath, NewKind: n.Kind})
			continue
		}
		if o.LogicalPath != n.LogicalPath {
			changes = append(changes, Change{Kind: Moved, ID: n.ID, OldPath: o.LogicalPath, NewPath: n.LogicalPath})
		}
		if o.Kind != n.Kind {
			changes = append(changes, Change{Kind: Retyped, ID: n.ID, NewPath: n.LogicalPath, OldKind: o.Kind, NewKind: n.Kind})
		}
	}

	reassignedFrom := make(map[string]bool)
	for _, c := range changes {
		if c.Kind == Reassigned {
			reassignedFrom[c.OldPath] = true
		}
	}
	for _, o := range before {
		if _, ok := newByID[o.ID]; ok {
			continue
		}
		if reassignedFrom[o.LogicalPath] {
			continue
		}
		changes = append(changes, Change{Kind: Removed, ID: o.ID, OldPath: o.LogicalPath, OldKind: o.Kind})
	}

	sort.SliceStable(changes, func(i, j int) bool {
		pi, pj := changePath(changes[i]), changePath(changes[j])
		if pi != pj {
			return pi < pj
		}
		return changes[i].Kind < changes[j].Kind
	})
	return changes
}

func changePath(c Change) string {
	if c.NewPath != "" {
		return c.NewPath
	}
	return c.OldPath
}

package cli

import (
	"fmt"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/ui"
)

// printDiagnostics writes warnings and errors in text mode, capped at limit
// (0 = no cap). Info diagnostics are only counted.
func printDiagnostics(list diag.List, limit int) {
	shown := 0
	for _, d := range list {
		if d.Severity == diag.SeverityInfo {
			continue
		}
		if limit > 0 && shown == limit {
			rest := list.Count(diag.SeverityError) + list.Count(diag.SeverityWarning) - shown
			outf("  %s", ui.Hint(fmt.Sprintf("... and %d more", rest)))
			return
		}
		shown++
		line := fmt.Sprintf("[%s] %s %s", d.Code, d.Message, ui.Hint(d.Object.String()))
		if d.Severity == diag.SeverityError {
			outf("  %s", ui.Error(line))
		} else {
			outf("  %s", ui.Warning(line))
		}
	}
}

// printChanges writes export diff changes in text mode.
func printChanges(changes []catalog.Change) {
	for _, c := range changes {
		id := c.ID.String()
		switch c.Kind {
		case catalog.Added:
			outf("  %s", ui.ChangeLine(ui.MarkAdded, id, c.NewPath+" "+ui.Hint(c.NewKind)))
		case catalog.Removed:
			outf("  %s", ui.ChangeLine(ui.MarkRemoved, id, c.OldPath+" "+ui.Hint(c.OldKind)))
		case catalog.Moved:
			outf("  %s", ui.ChangeLine(ui.MarkChanged, id, c.OldPath+" -> "+c.NewPath))
		case catalog.Retyped:
			outf("  %s", ui.ChangeLine(ui.MarkChanged, id, c.NewPath+" "+c.OldKind+" -> "+c.NewKind))
		case catalog.Reassigned:
			outf("  %s", ui.ChangeLine(ui.MarkBroken, id, c.NewPath+" "+ui.Warning("id reassigned")))
		}
	}
}

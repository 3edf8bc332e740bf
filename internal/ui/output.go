package ui

import "fmt"

// Status symbols. Output relies on these rather than red/green text.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
)

// Check returns msg prefixed with a checkmark.
func Check(msg string) string {
	return SymbolSuccess + " " + msg
}

func Checkf(format string, args ...interface{}) string {
	return Check(fmt.Sprintf(format, args...))
}

func Error(msg string) string {
	return SymbolError + " " + msg
}

func Errorf(format string, args ...interface{}) string {
	return Error(fmt.Sprintf(format, args...))
}

func Warning(msg string) string {
	return SymbolWarning + " " + msg
}

func Warningf(format string, args ...interface{}) string {
	return Warning(fmt.Sprintf(format, args...))
}

// GUID styles an asset guid.
func GUID(text string) string {
	return Accent.Render(text)
}

// FilePath styles a project or file path.
func FilePath(path string) string {
	return Accent.Render(path)
}

// Hint returns muted secondary text.
func Hint(msg string) string {
	return Muted.Render(msg)
}

// Change markers for catalog diffs.
const (
	MarkAdded   = "+"
	MarkRemoved = "-"
	MarkChanged = "~"
	MarkBroken  = "!"
)

// ChangeLine renders one diff line: marker, guid, then detail.
func ChangeLine(marker, id, detail string) string {
	if marker == MarkBroken {
		marker = Bold.Render(marker)
	}
	return fmt.Sprintf("%s %s %s", marker, GUID(id), detail)
}

// ErrorWarningCounts returns "(3 errors, 2 warnings)", dropping a zero
// half. Both zero yields "(0 warnings)".
func ErrorWarningCounts(errors, warnings int) string {
	switch {
	case errors > 0 && warnings > 0:
		return fmt.Sprintf("(%s, %s)", plural(errors, "error"), plural(warnings, "warning"))
	case errors > 0:
		return "(" + plural(errors, "error") + ")"
	default:
		return "(" + plural(warnings, "warning") + ")"
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

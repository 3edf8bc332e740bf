// Package diag defines the structured diagnostics produced by catalog
// rebuilds, override loading and sync runs.
package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aidanlsb/assetcat/internal/model"
)

// Severity indicates how serious a diagnostic is.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARN"
	case SeverityInfo:
		return "INFO"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToUpper(s) {
	case "ERROR":
		return SeverityError, true
	case "WARN", "WARNING":
		return SeverityWarning, true
	case "INFO":
		return SeverityInfo, true
	}
	return SeverityInfo, false
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	v, ok := ParseSeverity(string(text))
	if !ok {
		return fmt.Errorf("unknown severity %q", text)
	}
	*s = v
	return nil
}

// Codes used across packages.
const (
	CodeIdentityConflict   = "identity-conflict"
	CodeReservedBits       = "reserved-bits"
	CodePathCollision      = "path-collision"
	CodeFactoryFailed      = "factory-failed"
	CodeIndexUnavailable   = "index-unavailable"
	CodeOverrideDrift      = "override-drift"
	CodeIdentityDrift      = "identity-drift"
	CodeDuplicateRestamped = "duplicate-restamped"
	CodeIdentityStamped    = "identity-stamped"
	CodeStampFailed        = "stamp-failed"
	CodeOverrideInvalid    = "override-invalid"
	CodeOverridePinned     = "override-pinned"
	CodeDuplicateContainer = "duplicate-container"
	CodeUnreadable         = "unreadable"
)

// Diagnostic is one problem found about one or more objects.
type Diagnostic struct {
	Severity Severity          `json:"severity"`
	Code     string            `json:"code"`
	Object   model.ObjectRef   `json:"object"`
	Related  []model.ObjectRef `json:"related,omitempty"`
	Message  string            `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s [%s] %s", d.Severity, d.Code, d.Message)
}

// Errorf builds an error-severity diagnostic.
func Errorf(code string, obj model.ObjectRef, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Code: code, Object: obj, Message: fmt.Sprintf(format, args...)}
}

// Warnf builds a warning-severity diagnostic.
func Warnf(code string, obj model.ObjectRef, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Code: code, Object: obj, Message: fmt.Sprintf(format, args...)}
}

// Infof builds an info-severity diagnostic.
func Infof(code string, obj model.ObjectRef, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityInfo, Code: code, Object: obj, Message: fmt.Sprintf(format, args...)}
}

// List is a collection of diagnostics.
type List []Diagnostic

// HasErrors reports whether any diagnostic has error severity.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of diagnostics with the given severity.
func (l List) Count(s Severity) int {
	n := 0
	for _, d := range l {
		if d.Severity == s {
			n++
		}
	}
	return n
}

// WithCode returns the diagnostics carrying code.
func (l List) WithCode(code string) List {
	var out List
	for _, d := range l {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Sort orders diagnostics by severity, then object, then code. The sort is
// stable so diagnostics about the same object keep their emission order.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		if l[i].Severity != l[j].Severity {
			return l[i].Severity < l[j].Severity
		}
		if l[i].Object != l[j].Object {
			return l[i].Object.Less(l[j].Object)
		}
		return l[i].Code < l[j].Code
	})
}

// Package audit provides an append-only log of identity mutations: stamps
// written onto assets and overrides set or cleared.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Operations recorded in the log.
const (
	OpStamp         = "stamp"
	OpOverrideSet   = "override-set"
	OpOverrideClear = "override-clear"
	OpPrune         = "prune"
	OpRebuild       = "rebuild"
)

// DefaultFile is the log location relative to the project root.
const DefaultFile = ".assetcat/audit.log"

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	Operation string         `json:"op"`
	Container string         `json:"container,omitempty"`
	Sub       int64          `json:"sub,omitempty"`
	Path      string         `json:"path,omitempty"`
	Old       string         `json:"old,omitempty"`
	New       string         `json:"new,omitempty"`
	Reason    string         `json:"reason,omitempty"` // diagnostic code that caused it
	Extra     map[string]any `json:"extra,omitempty"`
}

// Logger handles writing to the audit log. A nil Logger discards entries.
type Logger struct {
	path    string
	enabled bool
	mu      sync.Mutex
}

// New creates a new audit logger for the given project.
// If enabled is false, the logger will be a no-op.
func New(projectRoot string, enabled bool) *Logger {
	if !enabled {
		return &Logger{enabled: false}
	}
	return &Logger{
		path:    filepath.Join(projectRoot, filepath.FromSlash(DefaultFile)),
		enabled: true,
	}
}

// Log writes an entry to the audit log.
func (l *Logger) Log(entry Entry) error {
	if !l.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// LogStamp records an identity written onto an asset.
func (l *Logger) LogStamp(container string, sub int64, path, oldID, newID, reason string) error {
	return l.Log(Entry{
		Operation: OpStamp,
		Container: container,
		Sub:       sub,
		Path:      path,
		Old:       oldID,
		New:       newID,
		Reason:    reason,
	})
}

// LogOverride records an override being set, or cleared when newID is
// empty.
func (l *Logger) LogOverride(container string, sub int64, oldID, newID, reason string) error {
	op := OpOverrideSet
	if newID == "" {
		op = OpOverrideClear
	}
	return l.Log(Entry{
		Operation: op,
		Container: container,
		Sub:       sub,
		Old:       oldID,
		New:       newID,
		Reason:    reason,
	})
}

// LogRebuild records a rebuild summary.
func (l *Logger) LogRebuild(version uint64, entries, errors int) error {
	return l.Log(Entry{
		Operation: OpRebuild,
		Extra: map[string]any{
			"version": version,
			"entries": entries,
			"errors":  errors,
		},
	})
}

// Read reads all entries from the audit log. Malformed lines are skipped.
func (l *Logger) Read() ([]Entry, error) {
	if !l.Enabled() {
		return nil, nil
	}

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}

// ReadSince reads entries logged at or after since.
func (l *Logger) ReadSince(since time.Time) ([]Entry, error) {
	all, err := l.Read()
	if err != nil {
		return nil, err
	}

	var filtered []Entry
	for _, entry := range all {
		if !entry.Timestamp.Before(since) {
			filtered = append(filtered, entry)
		}
	}
	return filtered, nil
}

// ReadForObject reads entries about one object.
func (l *Logger) ReadForObject(container string, sub int64) ([]Entry, error) {
	all, err := l.Read()
	if err != nil {
		return nil, err
	}

	var filtered []Entry
	for _, entry := range all {
		if entry.Container == container && entry.Sub == sub {
			filtered = append(filtered, entry)
		}
	}
	return filtered, nil
}

// Enabled returns true if the audit logger is enabled.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

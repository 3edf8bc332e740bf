// Package store persists catalog snapshots in SQLite so read-only commands
// and the server can start from the last build without rebuilding.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

// Store is the SQLite database handle.
type Store struct {
	db   *sql.DB
	path string
}

var (
	// ErrStoreLocked indicates another process is writing a snapshot.
	ErrStoreLocked = errors.New("catalog store is locked by another process")
	// ErrNoSnapshot indicates nothing has been saved yet.
	ErrNoSnapshot = errors.New("no snapshot saved")
)

// CurrentVersion is the schema version. Databases with another version are
// discarded and recreated; they only hold derived data.
const CurrentVersion = 1

const (
	stateDir = ".assetcat"
	dbFile   = "catalog.db"
	lockFile = "catalog.lock"
)

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path, or "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Open opens or creates the store of the project at projectRoot.
// An incompatible database is deleted and recreated.
func Open(projectRoot string) (*Store, error) {
	dir := filepath.Join(projectRoot, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", stateDir, err)
	}
	dbPath := filepath.Join(dir, dbFile)

	if _, err := os.Stat(dbPath); err == nil && !isSchemaCompatible(dbPath) {
		if err := removeDatabaseFiles(dbPath); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenInMemory opens an in-memory store (for testing).
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func isSchemaCompatible(dbPath string) bool {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return false
	}
	defer db.Close()

	var v string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&v); err != nil {
		return false
	}
	return v == strconv.Itoa(CurrentVersion)
}

func removeDatabaseFiles(dbPath string) error {
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// initialize creates the database schema.
func (s *Store) initialize() error {
	schema := `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;

		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS entries (
			guid TEXT PRIMARY KEY,       -- canonical "[0123456789ABCDEF]"
			logical_path TEXT NOT NULL,
			kind TEXT NOT NULL,
			source_kind TEXT NOT NULL,
			source_path TEXT,
			source_sub_name TEXT,
			source_key TEXT,
			factory TEXT NOT NULL,
			container TEXT NOT NULL,
			sub INTEGER NOT NULL,
			container_path TEXT NOT NULL,
			is_override INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_entries_path ON entries(logical_path);
		CREATE INDEX IF NOT EXISTS idx_entries_container ON entries(container, sub);

		CREATE TABLE IF NOT EXISTS diagnostics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			severity INTEGER NOT NULL,
			code TEXT NOT NULL,
			container TEXT NOT NULL,
			sub INTEGER NOT NULL,
			path TEXT,
			related TEXT NOT NULL DEFAULT '[]',   -- JSON array of object refs
			message TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_diagnostics_code ON diagnostics(code);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(CurrentVersion))
	if err != nil {
		return fmt.Errorf("failed to set database version: %w", err)
	}
	return nil
}

// WriteLock is an exclusive, cross-process lock on a project's store.
type WriteLock struct {
	file *os.File
}

// AcquireWriteLock takes the project's write lock without waiting. It
// returns ErrStoreLocked when another process holds it.
func AcquireWriteLock(projectRoot string) (*WriteLock, error) {
	dir := filepath.Join(projectRoot, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", stateDir, err)
	}

	f, err := os.OpenFile(filepath.Join(dir, lockFile), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open store lock: %w", err)
	}
	if err := lockFileExclusiveNonBlocking(f); err != nil {
		f.Close()
		if isWouldBlockError(err) {
			return nil, ErrStoreLocked
		}
		return nil, fmt.Errorf("failed to acquire store lock: %w", err)
	}
	return &WriteLock{file: f}, nil
}

// Release drops the lock.
func (l *WriteLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/model"
	"github.com/aidanlsb/assetcat/internal/source"
	"github.com/aidanlsb/assetcat/internal/sqlutil"
)

// Stats describes the saved snapshot.
type Stats struct {
	SnapshotVersion uint64    `json:"snapshot_version"`
	Fingerprint     uint64    `json:"fingerprint"`
	SavedAt         time.Time `json:"saved_at"`
	Entries         int       `json:"entries"`
	Containers      int       `json:"containers"`
	Diagnostics     int       `json:"diagnostics"`
	Errors          int       `json:"errors"`
}

// SaveSnapshot replaces the saved entries and diagnostics with snap's in one
// transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap *catalog.Snapshot, diags diag.List) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"entries", "diagnostics"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	entryStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (guid, logical_path, kind, source_kind, source_path, source_sub_name,
			source_key, factory, container, sub, container_path, is_override)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer entryStmt.Close()

	for _, e := range snap.Entries() {
		_, err := entryStmt.ExecContext(ctx,
			guid.Format(e.ID), e.LogicalPath, e.DeclaredKind,
			e.Source.Kind.String(), e.Source.Path, e.Source.SubName, e.Source.Key, e.Source.Factory,
			e.Object.ContainerID.String(), e.Object.SubID, e.Object.Path, boolToInt(e.IsOverride))
		if err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}

	diagStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO diagnostics (severity, code, container, sub, path, related, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer diagStmt.Close()

	for _, d := range diags {
		related, err := json.Marshal(d.Related)
		if err != nil {
			return err
		}
		if d.Related == nil {
			related = []byte("[]")
		}
		_, err = diagStmt.ExecContext(ctx, int(d.Severity), d.Code,
			d.Object.ContainerID.String(), d.Object.SubID, d.Object.Path, string(related), d.Message)
		if err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	meta := map[string]string{
		"snapshot_version": strconv.FormatUint(snap.Version(), 10),
		"fingerprint":      strconv.FormatUint(snap.Fingerprint(), 10),
		"saved_at":         time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}

	return tx.Commit()
}

const entryColumns = `guid, logical_path, kind, source_kind, source_path, source_sub_name, source_key,
	factory, container, sub, container_path, is_override`

// LoadEntries returns the saved entries, sorted as a snapshot sorts them.
func (s *Store) LoadEntries(ctx context.Context) ([]catalog.Entry, error) {
	return sqlutil.QueryAll(ctx, s.db, scanEntry, `SELECT `+entryColumns+`
		FROM entries
		ORDER BY logical_path, container_path, container, sub`)
}

// Lookup returns one saved entry by id.
func (s *Store) Lookup(ctx context.Context, id guid.AssetGuid) (catalog.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE guid = ?`, guid.Format(id))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Entry{}, false, nil
	}
	if err != nil {
		return catalog.Entry{}, false, err
	}
	return e, true, nil
}

func scanEntry(row sqlutil.Scanner) (catalog.Entry, error) {
	var idText, logical, kind, srcKind, factory, container, containerPath string
	var srcPath, srcSub, srcKey sql.NullString
	var sub int64
	var isOverride int
	if err := row.Scan(&idText, &logical, &kind, &srcKind, &srcPath, &srcSub, &srcKey,
		&factory, &container, &sub, &containerPath, &isOverride); err != nil {
		return catalog.Entry{}, err
	}

	id, err := guid.Parse(idText)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("saved entry: %w", err)
	}
	cid, err := uuid.Parse(container)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("saved entry %s: container: %w", idText, err)
	}
	sk, _ := source.ParseKind(srcKind)

	return catalog.Entry{
		ID:          id,
		LogicalPath: logical,
		Source: source.Source{
			Kind:    sk,
			Path:    srcPath.String,
			SubName: srcSub.String,
			Key:     srcKey.String,
			Factory: factory,
		},
		DeclaredKind: kind,
		Object:       model.ObjectRef{ContainerID: cid, SubID: sub, Path: containerPath},
		IsOverride:   isOverride != 0,
	}, nil
}

// LoadDiagnostics returns the saved diagnostics in the order they were
// saved.
func (s *Store) LoadDiagnostics(ctx context.Context) (diag.List, error) {
	out, err := sqlutil.QueryAll(ctx, s.db, scanDiagnostic, `
		SELECT severity, code, container, sub, path, related, message
		FROM diagnostics ORDER BY id`)
	return diag.List(out), err
}

func scanDiagnostic(row sqlutil.Scanner) (diag.Diagnostic, error) {
	var sev int
	var code, container, related, msg string
	var path sql.NullString
	var sub int64
	if err := row.Scan(&sev, &code, &container, &sub, &path, &related, &msg); err != nil {
		return diag.Diagnostic{}, err
	}
	cid, err := uuid.Parse(container)
	if err != nil {
		return diag.Diagnostic{}, fmt.Errorf("saved diagnostic: container: %w", err)
	}
	d := diag.Diagnostic{
		Severity: diag.Severity(sev),
		Code:     code,
		Object:   model.ObjectRef{ContainerID: cid, SubID: sub, Path: path.String},
		Message:  msg,
	}
	if err := json.Unmarshal([]byte(related), &d.Related); err != nil {
		return diag.Diagnostic{}, fmt.Errorf("saved diagnostic: related: %w", err)
	}
	if len(d.Related) == 0 {
		d.Related = nil
	}
	return d, nil
}

// LoadSnapshot restores the saved snapshot. It returns ErrNoSnapshot when
// nothing was saved yet.
func (s *Store) LoadSnapshot(ctx context.Context) (*catalog.Snapshot, error) {
	st, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if st.SavedAt.IsZero() {
		return nil, ErrNoSnapshot
	}
	entries, err := s.LoadEntries(ctx)
	if err != nil {
		return nil, err
	}
	diags, err := s.LoadDiagnostics(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Restore(st.SnapshotVersion, entries, diags), nil
}

// Stats returns statistics about the saved snapshot.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&st.Entries); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT container) FROM entries").Scan(&st.Containers); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM diagnostics").Scan(&st.Diagnostics); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM diagnostics WHERE severity = ?",
		int(diag.SeverityError)).Scan(&st.Errors); err != nil {
		return nil, err
	}

	meta, err := s.meta(ctx)
	if err != nil {
		return nil, err
	}
	st.SnapshotVersion, _ = strconv.ParseUint(meta["snapshot_version"], 10, 64)
	st.Fingerprint, _ = strconv.ParseUint(meta["fingerprint"], 10, 64)
	if v, ok := meta["saved_at"]; ok {
		st.SavedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return &st, nil
}

func (s *Store) meta(ctx context.Context) (map[string]string, error) {
	pairs, err := sqlutil.QueryAll(ctx, s.db, func(row sqlutil.Scanner) ([2]string, error) {
		var kv [2]string
		err := row.Scan(&kv[0], &kv[1])
		return kv, err
	}, "SELECT key, value FROM meta")
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		out[kv[0]] = kv[1]
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

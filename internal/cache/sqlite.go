package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
	_ "modernc.org/sqlite"
)

// #region schema
const canvasSchema = `
CREATE TABLE IF NOT EXISTS canvas_entries (
	fingerprint  TEXT PRIMARY KEY,
	state        TEXT NOT NULL,
	data         BLOB,
	updated_at   TEXT NOT NULL
);
`
// #endregion schema

// #region sqlite-store

// SQLiteStore persists canvases in the canvas_entries table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the canvas_entries table on db if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(canvasSchema); err != nil {
		return nil, fmt.Errorf("migrate canvas_entries: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, fp canvas.Fingerprint) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM canvas_entries WHERE fingerprint = ? AND state = 'ready'`,
		string(fp),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load canvas %s: %w", fp, err)
	}
	return data, true, nil
}

// Begin writes the building marker unless a ready row already exists.
func (s *SQLiteStore) Begin(ctx context.Context, fp canvas.Fingerprint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO canvas_entries (fingerprint, state, data, updated_at)
		 VALUES (?, 'building', NULL, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET updated_at = excluded.updated_at
		 WHERE canvas_entries.state = 'building'`,
		string(fp), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("begin canvas %s: %w", fp, err)
	}
	return nil
}

func (s *SQLiteStore) Commit(ctx context.Context, fp canvas.Fingerprint, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO canvas_entries (fingerprint, state, data, updated_at)
		 VALUES (?, 'ready', ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		   state = 'ready', data = excluded.data, updated_at = excluded.updated_at`,
		string(fp), data, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("commit canvas %s: %w", fp, err)
	}
	return nil
}

func (s *SQLiteStore) Abort(ctx context.Context, fp canvas.Fingerprint) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM canvas_entries WHERE fingerprint = ? AND state = 'building'`,
		string(fp),
	)
	if err != nil {
		return fmt.Errorf("abort canvas %s: %w", fp, err)
	}
	return nil
}

// #endregion sqlite-store

// #region list

// Info summarises one stored row for inspection.
type Info struct {
	Fingerprint canvas.Fingerprint `json:"fingerprint"`
	State       EntryState         `json:"state"`
	Bytes       int                `json:"bytes"`
	UpdatedAt   string             `json:"updated_at"`
}

// List returns every row, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, state, COALESCE(LENGTH(data), 0), updated_at
		 FROM canvas_entries ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list canvases: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		var fp, state string
		if err := rows.Scan(&fp, &state, &info.Bytes, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan canvas row: %w", err)
		}
		info.Fingerprint = canvas.Fingerprint(fp)
		info.State = EntryState(state)
		out = append(out, info)
	}
	return out, rows.Err()
}

// #endregion list

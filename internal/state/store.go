package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/cache"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/logging"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
	_ "modernc.org/sqlite"
)

// #region store-struct
// Store owns the brain database: canvas entries, policy observations and
// the trace log share one SQLite file.
type Store struct {
	db           *sql.DB
	canvases     *cache.SQLiteStore
	observations *policy.SQLiteStore
}
// #endregion store-struct

// #region constructor
// Open opens a SQLite database and runs every migration.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	canvases, err := cache.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	observations, err := policy.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := logging.InitSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, canvases: canvases, observations: observations}, nil
}
// #endregion constructor

// #region accessors
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle for the trace log.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Canvases is the durable tier of the canvas cache.
func (s *Store) Canvases() *cache.SQLiteStore {
	return s.canvases
}

// Observations is the policy observation log.
func (s *Store) Observations() *policy.SQLiteStore {
	return s.observations
}
// #endregion accessors

// #region inspect
// Counts is a row count per table.
type Counts struct {
	Canvases     int `json:"canvases"`
	Observations int `json:"observations"`
	Traces       int `json:"traces"`
}

// Count returns the row count of each table.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"canvas_entries", &c.Canvases},
		{"policy_observations", &c.Observations},
		{"trace_log", &c.Traces},
	} {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return Counts{}, fmt.Errorf("count %s: %w", q.table, err)
		}
	}
	return c, nil
}

const traceColumns = `trace_id, query_id, COALESCE(workload_key, ''), COALESCE(fingerprint, ''),
	COALESCE(policy_name, ''), COALESCE(source, ''), outcome, tokens_used, latency_ms,
	COALESCE(plan_json, ''), COALESCE(passes_json, ''), COALESCE(error, ''), created_at`

// RecentTraces returns up to limit trace_log rows, newest first.
func (s *Store) RecentTraces(ctx context.Context, limit int) ([]logging.TraceEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+traceColumns+` FROM trace_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var out []logging.TraceEntry
	for rows.Next() {
		e, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Trace returns the trace_log row for traceID.
func (s *Store) Trace(ctx context.Context, traceID string) (logging.TraceEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+traceColumns+` FROM trace_log WHERE trace_id = ?`, traceID)
	e, err := scanTrace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return logging.TraceEntry{}, fmt.Errorf("trace %s not found", traceID)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrace(r scanner) (logging.TraceEntry, error) {
	var e logging.TraceEntry
	var createdAt string
	if err := r.Scan(&e.TraceID, &e.QueryID, &e.WorkloadKey, &e.Fingerprint,
		&e.PolicyName, &e.Source, &e.Outcome, &e.TokensUsed, &e.LatencyMs,
		&e.PlanJSON, &e.PassesJSON, &e.Error, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan trace: %w", err)
	}
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}
// #endregion inspect

// #region helpers
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
// #endregion helpers

package policy

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
	_ "modernc.org/sqlite"
)

// #endregion

// #region schema

const observationsSchema = `
CREATE TABLE IF NOT EXISTS policy_observations (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    trace_id      TEXT NOT NULL,
    policy_name   TEXT NOT NULL,
    workload_key  TEXT NOT NULL,
    tokens        INTEGER NOT NULL,
    latency_ms    INTEGER NOT NULL,
    outcome       TEXT NOT NULL,
    created_at    TEXT NOT NULL
);
`

const observationsIndex = `
CREATE INDEX IF NOT EXISTS idx_policy_observations_lookup
ON policy_observations(policy_name, workload_key);
`

// #endregion schema

// #region store

// SQLiteStore is the append-only observation log.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore initializes the policy_observations table.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(observationsSchema); err != nil {
		return nil, err
	}
	if _, err := db.Exec(observationsIndex); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append persists one observation row.
func (s *SQLiteStore) Append(ctx context.Context, obs Observation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policy_observations
		(trace_id, policy_name, workload_key, tokens, latency_ms, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		obs.TraceID,
		obs.PolicyName,
		obs.WorkloadKey,
		obs.Tokens,
		obs.LatencyMs,
		string(obs.Outcome),
		obs.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// All returns every observation in insertion order.
func (s *SQLiteStore) All(ctx context.Context) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, policy_name, workload_key, tokens, latency_ms, outcome, created_at
		FROM policy_observations
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		var outcome, createdAt string
		if err := rows.Scan(&o.TraceID, &o.PolicyName, &o.WorkloadKey, &o.Tokens, &o.LatencyMs, &outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Outcome = reasoner.Outcome(outcome)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			o.CreatedAt = t
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// #endregion store

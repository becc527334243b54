package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
)

// #region schema
const traceSchema = `
CREATE TABLE IF NOT EXISTS trace_log (
    trace_id     TEXT NOT NULL,
    query_id     TEXT NOT NULL,
    workload_key TEXT,
    fingerprint  TEXT,
    policy_name  TEXT,
    source       TEXT,
    outcome      TEXT NOT NULL,
    tokens_used  INTEGER NOT NULL,
    latency_ms   INTEGER NOT NULL,
    plan_json    TEXT,
    passes_json  TEXT,
    error        TEXT,
    created_at   TEXT NOT NULL
);
`

// InitSchema creates the trace_log table if it does not exist.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(traceSchema); err != nil {
		return fmt.Errorf("init trace_log: %w", err)
	}
	return nil
}
// #endregion schema

// #region entry-from-trace
// EntryFromTrace flattens a finished trace into a TraceEntry.
func EntryFromTrace(queryID, workloadKey, fingerprint string, tr reasoner.Trace) (TraceEntry, error) {
	plan, err := json.Marshal(tr.Plan)
	if err != nil {
		return TraceEntry{}, fmt.Errorf("marshal plan: %w", err)
	}
	passes := make([]PassRecord, len(tr.Passes))
	for i, p := range tr.Passes {
		passes[i] = PassRecord{
			Tier:       string(p.Tier),
			TokensUsed: p.TokensUsed,
			LatencyMs:  p.LatencyMs,
			Confidence: p.Confidence,
			Attempts:   p.Attempts,
			Cancelled:  p.Cancelled,
			Error:      p.Error,
		}
	}
	passesJSON, err := json.Marshal(passes)
	if err != nil {
		return TraceEntry{}, fmt.Errorf("marshal passes: %w", err)
	}

	return TraceEntry{
		TraceID:     tr.ID,
		QueryID:     queryID,
		WorkloadKey: workloadKey,
		Fingerprint: fingerprint,
		PolicyName:  tr.Plan.PolicyName,
		Source:      string(tr.Plan.Source),
		Outcome:     string(tr.Outcome),
		TokensUsed:  tr.TokensUsedTotal,
		LatencyMs:   tr.LatencyMsTotal,
		PlanJSON:    string(plan),
		PassesJSON:  string(passesJSON),
		Error:       tr.Err,
	}, nil
}
// #endregion entry-from-trace

// #region log-trace
// LogTrace writes a trace entry to the trace_log table.
func LogTrace(db *sql.DB, entry TraceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO trace_log (trace_id, query_id, workload_key, fingerprint, policy_name, source, outcome, tokens_used, latency_ms, plan_json, passes_json, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TraceID,
		entry.QueryID,
		nullIfEmpty(entry.WorkloadKey),
		nullIfEmpty(entry.Fingerprint),
		nullIfEmpty(entry.PolicyName),
		nullIfEmpty(entry.Source),
		entry.Outcome,
		entry.TokensUsed,
		entry.LatencyMs,
		nullIfEmpty(entry.PlanJSON),
		nullIfEmpty(entry.PassesJSON),
		nullIfEmpty(entry.Error),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log trace: %w", err)
	}
	return nil
}
// #endregion log-trace

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers

package logging

import "time"

// #region trace-entry
// TraceEntry is a single row in the trace_log table.
type TraceEntry struct {
	TraceID     string    `json:"trace_id"`
	QueryID     string    `json:"query_id"`
	WorkloadKey string    `json:"workload_key,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	PolicyName  string    `json:"policy_name,omitempty"`
	Source      string    `json:"source,omitempty"` // "hint" | "recommendation" | "heuristic"
	Outcome     string    `json:"outcome"`
	TokensUsed  int       `json:"tokens_used"`
	LatencyMs   int       `json:"latency_ms"`
	PlanJSON    string    `json:"plan_json,omitempty"`
	PassesJSON  string    `json:"passes_json,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
// #endregion trace-entry

// #region pass-record
// PassRecord is the compact per-pass summary serialized into passes_json.
type PassRecord struct {
	Tier       string  `json:"tier"`
	TokensUsed int     `json:"tokens_used"`
	LatencyMs  int     `json:"latency_ms"`
	Confidence float64 `json:"confidence"`
	Attempts   int     `json:"attempts"`
	Cancelled  bool    `json:"cancelled,omitempty"`
	Error      string  `json:"error,omitempty"`
}
// #endregion pass-record

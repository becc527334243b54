package logging

import (
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := InitSchema(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func sampleTrace() reasoner.Trace {
	return reasoner.Trace{
		ID: "t-1",
		Plan: controller.Plan{
			PolicyName: "cascade",
			NumPasses:  2,
			Strategy:   controller.StrategyCascade,
			Source:     controller.SourceHeuristic,
		},
		Passes: []reasoner.Pass{
			{Tier: transport.TierSmall, TokensUsed: 100, LatencyMs: 40, Confidence: 0.3, Attempts: 1},
			{Tier: transport.TierExpert, TokensUsed: 300, LatencyMs: 120, Confidence: 0.9, Attempts: 2},
		},
		Outcome:         reasoner.OutcomeEscalated,
		TokensUsedTotal: 400,
		LatencyMsTotal:  160,
	}
}

// #endregion helpers

// #region log-trace-tests
func TestLogTrace_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry, err := EntryFromTrace("q1", "wl", "abc123", sampleTrace())
	if err != nil {
		t.Fatalf("EntryFromTrace: %v", err)
	}
	entry.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := LogTrace(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM trace_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var policy, outcome, source, passesJSON string
	var tokens int
	db.QueryRow("SELECT policy_name, outcome, source, tokens_used, passes_json FROM trace_log").
		Scan(&policy, &outcome, &source, &tokens, &passesJSON)
	if policy != "cascade" {
		t.Errorf("expected policy 'cascade', got %q", policy)
	}
	if outcome != "escalated" {
		t.Errorf("expected outcome 'escalated', got %q", outcome)
	}
	if source != "heuristic" {
		t.Errorf("expected source 'heuristic', got %q", source)
	}
	if tokens != 400 {
		t.Errorf("expected 400 tokens, got %d", tokens)
	}

	var passes []PassRecord
	if err := json.Unmarshal([]byte(passesJSON), &passes); err != nil {
		t.Fatalf("decode passes: %v", err)
	}
	if len(passes) != 2 || passes[1].Tier != "expert" || passes[1].Attempts != 2 {
		t.Errorf("unexpected passes: %+v", passes)
	}
}

func TestLogTrace_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	if err := LogTrace(db, TraceEntry{TraceID: "t-2", QueryID: "q2", Outcome: "success"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM trace_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogTrace_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogTrace(db, TraceEntry{TraceID: "t-3", QueryID: "q3", Outcome: "error"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var workload, fingerprint, policy, errText sql.NullString
	db.QueryRow("SELECT workload_key, fingerprint, policy_name, error FROM trace_log").Scan(
		&workload, &fingerprint, &policy, &errText,
	)
	if workload.Valid || fingerprint.Valid || policy.Valid || errText.Valid {
		t.Error("expected NULL for empty optional fields")
	}
}

func TestLogTrace_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	if err := LogTrace(db, TraceEntry{TraceID: "t-4", QueryID: "q4", Outcome: "success"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-trace-tests

// #region setup-tests
func TestSetup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brain.log")
	closer := Setup(path)
	log.Printf("[TEST] hello rotation")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	Setup("")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello rotation") {
		t.Errorf("expected log line in file, got %q", data)
	}
}

// #endregion setup-tests

// #region null-if-empty-tests
func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Error("expected nil for empty string")
	}
	if nullIfEmpty("x") != "x" {
		t.Error("expected passthrough for non-empty string")
	}
}

// #endregion null-if-empty-tests

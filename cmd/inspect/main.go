package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/cache"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/logging"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to brain.db")
	last := flag.Int("last", 20, "show N most recent traces")
	traceID := flag.String("trace", "", "show single trace detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/brain.db [--last N] [--trace id] [--json]")
		os.Exit(2)
	}

	store, err := state.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if *traceID != "" {
		err = runDetailMode(ctx, store, *traceID, *jsonOut)
	} else {
		err = runListMode(ctx, store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type policyRow struct {
	policy.Record
	Cost float64 `json:"cost"`
}

type listOutput struct {
	Counts   state.Counts         `json:"counts"`
	Canvases []cache.Info         `json:"canvases"`
	Policies []policyRow          `json:"policies"`
	Traces   []logging.TraceEntry `json:"traces"`
}

func runListMode(ctx context.Context, store *state.Store, last int, jsonOut bool) error {
	var out listOutput
	var err error
	if out.Counts, err = store.Count(ctx); err != nil {
		return err
	}
	if out.Canvases, err = store.Canvases().List(ctx); err != nil {
		return err
	}

	// Aggregates are not stored; rebuild them from the observation log.
	m := policy.NewManager(config.DefaultPolicy(), nil)
	if err := m.Replay(ctx, store.Observations()); err != nil {
		return err
	}
	for _, r := range m.Snapshot() {
		out.Policies = append(out.Policies, policyRow{Record: r, Cost: m.Cost(r)})
	}

	if out.Traces, err = store.RecentTraces(ctx, last); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(out)
	}
	printListTables(out)
	return nil
}

func printListTables(out listOutput) {
	fmt.Printf("Canvases: %d | Observations: %d | Traces: %d\n\n",
		out.Counts.Canvases, out.Counts.Observations, out.Counts.Traces)

	fmt.Printf("%-12s  %-9s  %8s  %s\n", "Canvas", "State", "Bytes", "Updated")
	fmt.Printf("%-12s+-%-9s+-%8s+-%s\n", "------------", "---------", "--------", "--------------------")
	for _, c := range out.Canvases {
		fmt.Printf("%-12s  %-9s  %8d  %s\n", shortID(string(c.Fingerprint)), c.State, c.Bytes, c.UpdatedAt)
	}

	fmt.Printf("\n%-18s  %-14s  %7s  %9s  %9s  %7s  %s\n",
		"Policy", "Workload", "Samples", "Avg Tok", "Avg ms", "Success", "Cost")
	fmt.Printf("%-18s+-%-14s+-%7s+-%9s+-%9s+-%7s+-%s\n",
		"------------------", "--------------", "-------", "---------", "---------", "-------", "--------")
	for _, p := range out.Policies {
		fmt.Printf("%-18s  %-14s  %7d  %9.1f  %9.1f  %7.2f  %.1f\n",
			p.PolicyName, p.WorkloadKey, p.SampleCount, p.AvgTokens, p.AvgLatencyMs, p.SuccessRate, p.Cost)
	}

	fmt.Printf("\n%-12s  %-12s  %-18s  %-14s  %-22s  %7s  %s\n",
		"Trace", "Query", "Policy", "Source", "Outcome", "Tokens", "Time")
	fmt.Printf("%-12s+-%-12s+-%-18s+-%-14s+-%-22s+-%7s+-%s\n",
		"------------", "------------", "------------------", "--------------", "----------------------", "-------", "--------------------")
	for _, e := range out.Traces {
		fmt.Printf("%-12s  %-12s  %-18s  %-14s  %-22s  %7d  %s\n",
			shortID(e.TraceID), e.QueryID, dash(e.PolicyName), dash(e.Source), e.Outcome,
			e.TokensUsed, e.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	TraceID     string               `json:"trace_id"`
	QueryID     string               `json:"query_id"`
	WorkloadKey string               `json:"workload_key,omitempty"`
	Fingerprint string               `json:"fingerprint,omitempty"`
	PolicyName  string               `json:"policy_name,omitempty"`
	Source      string               `json:"source,omitempty"`
	Outcome     string               `json:"outcome"`
	TokensUsed  int                  `json:"tokens_used"`
	LatencyMs   int                  `json:"latency_ms"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   string               `json:"created_at"`
	Plan        json.RawMessage      `json:"plan,omitempty"`
	Passes      []logging.PassRecord `json:"passes,omitempty"`
}

func runDetailMode(ctx context.Context, store *state.Store, traceID string, jsonOut bool) error {
	e, err := store.Trace(ctx, traceID)
	if err != nil {
		return err
	}

	out := detailOutput{
		TraceID:     e.TraceID,
		QueryID:     e.QueryID,
		WorkloadKey: e.WorkloadKey,
		Fingerprint: e.Fingerprint,
		PolicyName:  e.PolicyName,
		Source:      e.Source,
		Outcome:     e.Outcome,
		TokensUsed:  e.TokensUsed,
		LatencyMs:   e.LatencyMs,
		Error:       e.Error,
		CreatedAt:   e.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if e.PlanJSON != "" {
		out.Plan = json.RawMessage(e.PlanJSON)
	}
	if e.PassesJSON != "" {
		if err := json.Unmarshal([]byte(e.PassesJSON), &out.Passes); err != nil {
			return fmt.Errorf("decode passes: %w", err)
		}
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Trace:       %s\n", out.TraceID)
	fmt.Printf("Query:       %s\n", out.QueryID)
	fmt.Printf("Workload:    %s\n", dash(out.WorkloadKey))
	fmt.Printf("Fingerprint: %s\n", dash(out.Fingerprint))
	fmt.Printf("Policy:      %s (%s)\n", dash(out.PolicyName), dash(out.Source))
	fmt.Printf("Outcome:     %s\n", out.Outcome)
	fmt.Printf("Tokens:      %d\n", out.TokensUsed)
	fmt.Printf("Latency:     %dms\n", out.LatencyMs)
	fmt.Printf("Created:     %s\n", out.CreatedAt)
	if out.Error != "" {
		fmt.Printf("Error:       %s\n", out.Error)
	}

	if len(out.Passes) > 0 {
		fmt.Printf("\nPasses:\n")
		for i, p := range out.Passes {
			status := "ok"
			switch {
			case p.Cancelled:
				status = "cancelled"
			case p.Error != "":
				status = "error: " + p.Error
			}
			fmt.Printf("  %d. %-7s tokens=%-6d latency=%-6dms conf=%.2f attempts=%d %s\n",
				i+1, p.Tier, p.TokensUsed, p.LatencyMs, p.Confidence, p.Attempts, status)
		}
	}
	return nil
}

// #endregion detail-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// #endregion output

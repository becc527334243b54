package main

// #region imports
import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
)

// #endregion

// #region analyze

type policyRow struct {
	policy.Record
	Cost float64 `json:"cost"`
}

type recommendationRow struct {
	WorkloadKey string  `json:"workload_key"`
	PolicyName  string  `json:"policy_name,omitempty"`
	Fallback    bool    `json:"fallback"`
	Cost        float64 `json:"cost,omitempty"`
	// Cost of the single-call baseline recorded alongside the policy.
	BaselineCost    float64 `json:"baseline_cost,omitempty"`
	BaselineSamples int     `json:"baseline_samples,omitempty"`
}

type analysis struct {
	Files           int                 `json:"files"`
	Policies        []policyRow         `json:"policies"`
	Recommendations []recommendationRow `json:"recommendations"`
}

func analyzeCmd() *cobra.Command {
	var (
		glob    string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "analyze-policies",
		Short: "Rebuild policy statistics from JSONL reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			src, err := policy.NewJSONLSource(glob)
			if err != nil {
				return err
			}
			if len(src.Paths) == 0 {
				return fmt.Errorf("no reports match %s", glob)
			}

			m := policy.NewManager(cfg.Policy, nil)
			if err := m.Replay(cmd.Context(), src); err != nil {
				return err
			}
			out := analyze(m, len(src.Paths))
			if jsonOut {
				return printJSON(os.Stdout, out)
			}
			printAnalysis(os.Stdout, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&glob, "glob", "g", "results/*.jsonl", "report files to replay")
	cmd.Flags().BoolVarP(&jsonOut, "json", "j", false, "output as JSON")
	return cmd
}

func analyze(m *policy.Manager, files int) analysis {
	out := analysis{Files: files}
	for _, r := range m.Snapshot() {
		out.Policies = append(out.Policies, policyRow{Record: r, Cost: m.Cost(r)})
	}
	for _, w := range m.Workloads() {
		row := recommendationRow{WorkloadKey: w}
		if rec, ok := m.Recommend(w); ok {
			row.PolicyName = rec.PolicyName
			row.Fallback = rec.WorkloadKey == policy.GlobalWorkload
			row.Cost = m.Cost(rec)
			if base, ok := m.Lookup(policy.BaselineName(rec.PolicyName), rec.WorkloadKey); ok {
				row.BaselineCost = m.Cost(base)
				row.BaselineSamples = base.SampleCount
			}
		}
		out.Recommendations = append(out.Recommendations, row)
	}
	return out
}

func printAnalysis(w io.Writer, a analysis) {
	fmt.Fprintf(w, "Replayed %d report file(s)\n\n", a.Files)
	fmt.Fprintf(w, "%-18s| %-16s| %7s| %10s| %10s| %7s| %s\n",
		"Policy", "Workload", "Samples", "Avg Tok", "Avg ms", "Success", "Cost")
	fmt.Fprintf(w, "%-18s+%-17s+%8s+%11s+%11s+%8s+%s\n",
		"------------------", "-----------------", "--------", "-----------", "-----------", "--------", "--------")
	for _, r := range a.Policies {
		fmt.Fprintf(w, "%-18s| %-16s| %7d| %10.1f| %10.1f| %7.2f| %.1f\n",
			r.PolicyName, r.WorkloadKey, r.SampleCount, r.AvgTokens, r.AvgLatencyMs, r.SuccessRate, r.Cost)
	}

	fmt.Fprintln(w, "\nRecommendations:")
	for _, r := range a.Recommendations {
		vs := ""
		if r.BaselineSamples > 0 {
			vs = fmt.Sprintf(", baseline %.1f, Δ %+.1f", r.BaselineCost, r.Cost-r.BaselineCost)
		}
		switch {
		case r.PolicyName == "":
			fmt.Fprintf(w, "  %-16s cold start (heuristic)\n", r.WorkloadKey)
		case r.Fallback:
			fmt.Fprintf(w, "  %-16s %s (global, cost %.1f%s)\n", r.WorkloadKey, r.PolicyName, r.Cost, vs)
		default:
			fmt.Fprintf(w, "  %-16s %s (cost %.1f%s)\n", r.WorkloadKey, r.PolicyName, r.Cost, vs)
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion analyze

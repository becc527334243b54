package main

// #region imports
import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
)

// #endregion

// #region run

func runCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "run <queries.jsonl>",
		Short: "Execute a query file and write an experiments report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := runBatch(ctx, a, args[0])
			if err != nil {
				return err
			}
			path, err := pipeline.WriteReport(outputDir(a, outDir), "experiments", 0, records)
			if err != nil {
				return err
			}
			printSummary(os.Stdout, pipeline.Summarize(records))
			fmt.Printf("\nReport: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "report directory (overrides config)")
	return cmd
}

// runBatch loads path and runs it with documents resolved next to the file.
func runBatch(ctx context.Context, a *app, path string) ([]pipeline.Record, error) {
	queries, err := pipeline.LoadQueries(path)
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries in %s", path)
	}
	pipe := a.pipe.WithResolver(pipeline.NewFileResolver(path))
	return pipe.Run(ctx, queries), nil
}

func outputDir(a *app, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return a.cfg.Pipeline.OutputDir
}

// #endregion run

// #region summary

func printSummary(w io.Writer, s pipeline.Summary) {
	fmt.Fprintf(w, "Cases: %d | Failed: %d | Cache hits: %d\n", s.Cases, s.Failed, s.CacheHits)
	fmt.Fprintf(w, "Avg tokens: %.1f | Avg latency: %.1fms\n", s.AvgTokens, s.AvgLatencyMs)
	if s.BaselineCases > 0 {
		fmt.Fprintf(w, "Baseline (%d paired): tokens %.1f vs brain %.1f (Δ %+.1f) | latency %.1fms vs brain %.1fms (Δ %+.1f)\n",
			s.BaselineCases, s.BaselineAvgTokens, s.PairedAvgTokens, s.TokenDelta(),
			s.BaselineAvgLatencyMs, s.PairedAvgLatencyMs, s.LatencyDelta())
	}

	outcomes := make([]string, 0, len(s.ByOutcome))
	for o := range s.ByOutcome {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	fmt.Fprintln(w, "Outcomes:")
	for _, o := range outcomes {
		fmt.Fprintf(w, "  %-24s %d\n", o, s.ByOutcome[reasoner.Outcome(o)])
	}

	policies := make([]string, 0, len(s.ByPolicy))
	for p := range s.ByPolicy {
		policies = append(policies, p)
	}
	sort.Strings(policies)
	fmt.Fprintln(w, "Policies:")
	for _, p := range policies {
		fmt.Fprintf(w, "  %-24s %d\n", p, s.ByPolicy[p])
	}
}

// #endregion summary

package main

// #region imports
import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/replay"
)

// #endregion

// #region replay

func replayCmd() *cobra.Command {
	var fixture string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay controller decisions from a fixture and compare",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.LoadFixture(fixture)
			if err != nil {
				return fmt.Errorf("load fixture: %w", err)
			}
			results, err := f.Run()
			if err != nil {
				return err
			}
			if f.Description != "" {
				fmt.Println(f.Description)
				fmt.Println()
			}
			diverge := printComparison(os.Stdout, replay.Compare(results, f.ExpectedResults))
			printReplaySummary(os.Stdout, replay.Summarize(results))
			if diverge > 0 {
				return fmt.Errorf("%d case(s) diverge", diverge)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&fixture, "fixture", "f", "", "fixture JSON file")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}

// #endregion replay

// #region output

// printComparison writes the comparison table and returns the number of
// diverging cases.
func printComparison(w io.Writer, rows []replay.Comparison) int {
	fmt.Fprintf(w, "%-14s| %-24s| %-24s| %s\n", "Case", "Expected", "Replayed", "Match")
	fmt.Fprintf(w, "%-14s+%-25s+%-25s+%s\n",
		"--------------", "-------------------------", "-------------------------", "------")

	matches := 0
	for _, r := range rows {
		match := "DIFF"
		if r.Match {
			match = "OK"
			matches++
		}
		fmt.Fprintf(w, "%-14s| %-24s| %-24s| %s\n", r.CaseID, r.Expected, r.Replayed, match)
	}

	diverge := len(rows) - matches
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", len(rows), matches, diverge)
	return diverge
}

func printReplaySummary(w io.Writer, s replay.ReplaySummary) {
	fmt.Fprintf(w, "Rejected: %d/%d\n", s.Rejected, s.TotalCases)
	for _, p := range s.Policies() {
		fmt.Fprintf(w, "  %-16s %d\n", p, s.ByPolicy[p])
	}
	sources := make([]string, 0, len(s.BySource))
	for src := range s.BySource {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)
	for _, src := range sources {
		fmt.Fprintf(w, "  source=%-14s %d\n", src, s.BySource[controller.Source(src)])
	}
}

// #endregion output

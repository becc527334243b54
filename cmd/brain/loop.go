package main

// #region imports
import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/pipeline"
)

// #endregion

// #region loop

func loopCmd() *cobra.Command {
	var (
		outDir        string
		minIterations int
		maxIterations int
	)
	cmd := &cobra.Command{
		Use:   "loop <queries.jsonl>",
		Short: "Re-run a query file until efficiency expectations are met",
		Long: `Run the query file repeatedly. Each iteration records its traces into the
policy history, so later iterations plan with what earlier ones learned.

The loop stops after --min-iterations once every query stayed within its
token budget without erroring, or after --max-iterations regardless.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateIterations(minIterations, maxIterations); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			dir := outputDir(a, outDir)
			for iter := 1; iter <= maxIterations; iter++ {
				records, err := runBatch(ctx, a, args[0])
				if err != nil {
					return err
				}
				path, err := pipeline.WriteReport(dir, "loop", iter, records)
				if err != nil {
					return err
				}
				met := pipeline.ExpectationsMet(records)

				fmt.Printf("=== Iteration %d/%d: %s\n", iter, maxIterations, path)
				printSummary(os.Stdout, pipeline.Summarize(records))
				fmt.Printf("Expectations met: %v\n\n", met)

				if loopDone(iter, minIterations, met) {
					log.Printf("[LOOP] expectations met after %d iterations", iter)
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			log.Printf("[LOOP] stopped at max iterations (%d) without meeting expectations", maxIterations)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "report directory (overrides config)")
	cmd.Flags().IntVar(&minIterations, "min-iterations", 1, "iterations to run before checking expectations")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 5, "upper bound on iterations")
	return cmd
}

func validateIterations(minIter, maxIter int) error {
	if minIter < 1 {
		return fmt.Errorf("--min-iterations must be >= 1, got %d", minIter)
	}
	if maxIter < minIter {
		return fmt.Errorf("--max-iterations (%d) must be >= --min-iterations (%d)", maxIter, minIter)
	}
	return nil
}

// loopDone reports whether iteration iter may end the loop.
func loopDone(iter, minIter int, met bool) bool {
	return iter >= minIter && met
}

// #endregion loop

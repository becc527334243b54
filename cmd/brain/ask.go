package main

// #region imports
import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/pipeline"
)

// #endregion

// #region ask

func askCmd() *cobra.Command {
	var (
		policyName string
		workload   string
		budget     int
	)
	cmd := &cobra.Command{
		Use:   "ask <document>",
		Short: "Ask questions about one document interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			if workload == "" {
				workload = args[0]
			}

			fmt.Println("Brain ready.")
			fmt.Printf("  DB: %s | Document: %s\n", a.cfg.Database, args[0])
			fmt.Println("Type a question (or 'quit' to exit):")

			scanner := bufio.NewScanner(os.Stdin)
			turn := 0
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				if question == "quit" || question == "exit" {
					break
				}

				turn++
				q := pipeline.Query{
					ID:          fmt.Sprintf("turn-%d", turn),
					Document:    string(doc),
					Question:    question,
					WorkloadKey: workload,
					Policy:      policyName,
				}
				if budget > 0 {
					q.Budget = &controller.Budget{TokenBudget: budget, LatencyTargetMs: a.cfg.Pipeline.DefaultLatencyMs}
				}

				rec, err := a.pipe.RunQuery(ctx, q)
				if err != nil {
					fmt.Printf("error: %v\n", err)
					continue
				}
				fmt.Printf("\n%s\n\n", rec.FinalAnswer)
				fmt.Printf("[%s] policy=%s outcome=%s tokens=%d cache_hit=%v\n",
					q.ID, rec.PolicyName, rec.Outcome, rec.TokensUsedTotal, rec.CacheHit)
				if rec.HasBaseline() {
					fmt.Printf("[%s] baseline tokens=%d (Δ %+d) latency=%dms (Δ %+d)\n", q.ID,
						rec.BaselineTokens, rec.TokensUsedTotal-rec.BaselineTokens,
						rec.BaselineLatencyMs, rec.LatencyMsTotal-rec.BaselineLatencyMs)
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVarP(&policyName, "policy", "p", "", "policy hint for every question")
	cmd.Flags().StringVarP(&workload, "workload", "w", "", "workload key (defaults to the document path)")
	cmd.Flags().IntVar(&budget, "budget", 0, "token budget per question (0 = config default)")
	return cmd
}

// #endregion ask

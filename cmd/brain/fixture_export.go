package main

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/replay"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/state"
)

// #endregion

// #region fixture-export

func fixtureExportCmd() *cobra.Command {
	var (
		last    int
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "fixture-export",
		Short: "Export recent logged decisions as a replay fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := state.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open state %s: %w", cfg.Database, err)
			}
			defer st.Close()

			ctx := cmd.Context()
			traces, err := st.RecentTraces(ctx, last)
			if err != nil {
				return err
			}
			if len(traces) == 0 {
				return fmt.Errorf("no traces in %s", cfg.Database)
			}
			slices.Reverse(traces)

			history, err := st.Observations().All(ctx)
			if err != nil {
				return err
			}
			f, err := replay.BuildFixture(traces, history, sizeLookup(ctx, st),
				replay.ReplayConfig{Controller: cfg.Controller, Policy: cfg.Policy})
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(f, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal fixture: %w", err)
			}
			if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("write fixture: %w", err)
			}
			fmt.Printf("Exported %d cases, %d seed observations to %s\n", len(f.Cases), len(f.Observations), outPath)
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "number of most recent traces to export")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output fixture JSON path")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// sizeLookup reads canvas sizes from the durable canvas store.
func sizeLookup(ctx context.Context, st *state.Store) replay.SizeLookup {
	return func(fingerprint string) (int, bool) {
		fp := canvas.Fingerprint(fingerprint)
		data, ok, err := st.Canvases().Load(ctx, fp)
		if err != nil {
			log.Printf("[REPLAY] load canvas %s: %v", fingerprint, err)
			return 0, false
		}
		if !ok {
			return 0, false
		}
		cv, err := canvas.Unmarshal(fp, data)
		if err != nil {
			log.Printf("[REPLAY] decode canvas %s: %v", fingerprint, err)
			return 0, false
		}
		return cv.SizeEstimate, true
	}
}

// #endregion fixture-export

package replay

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/logging"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
)

// #region export

// SizeLookup returns the canvas size estimate for a fingerprint.
type SizeLookup func(fingerprint string) (int, bool)

// BuildFixture turns logged traces (oldest first) into a replay fixture.
// The fixture is seeded with the observation history recorded before the
// first exported trace. Traces without a plan or a known canvas are skipped.
func BuildFixture(traces []logging.TraceEntry, history []policy.Observation, sizeOf SizeLookup, cfg ReplayConfig) (*Fixture, error) {
	f := &Fixture{
		Description: fmt.Sprintf("exported from %d logged traces", len(traces)),
		Config:      FixtureConfig{Controller: &cfg.Controller, Policy: &cfg.Policy},
	}

	exported := make(map[string]bool)
	for _, tr := range traces {
		if tr.PlanJSON == "" {
			log.Printf("[REPLAY] skip trace %s: no plan", tr.TraceID)
			continue
		}
		var plan controller.Plan
		if err := json.Unmarshal([]byte(tr.PlanJSON), &plan); err != nil {
			return nil, fmt.Errorf("trace %s: decode plan: %w", tr.TraceID, err)
		}
		size, ok := sizeOf(tr.Fingerprint)
		if !ok {
			log.Printf("[REPLAY] skip trace %s: canvas %s not cached", tr.TraceID, tr.Fingerprint)
			continue
		}

		fc := FixtureCase{
			CaseID:       tr.QueryID,
			SizeEstimate: size,
			Budget:       controller.Budget{TokenBudget: plan.TokenBudget, LatencyTargetMs: plan.LatencyTargetMs},
			WorkloadKey:  tr.WorkloadKey,
		}
		if plan.Source == controller.SourceHint {
			fc.Policy = plan.PolicyName
		}
		f.Cases = append(f.Cases, fc)
		f.ExpectedResults = append(f.ExpectedResults, ExpectedResult{
			CaseID:     tr.QueryID,
			PolicyName: plan.PolicyName,
			Source:     string(plan.Source),
		})
		exported[tr.TraceID] = true
	}

	for _, o := range history {
		if exported[o.TraceID] {
			break
		}
		f.Observations = append(f.Observations, FixtureObservation{
			PolicyName:  o.PolicyName,
			WorkloadKey: o.WorkloadKey,
			Tokens:      o.Tokens,
			LatencyMs:   o.LatencyMs,
			Outcome:     string(o.Outcome),
		})
	}
	return f, nil
}

// #endregion export

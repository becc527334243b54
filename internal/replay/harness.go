package replay

import (
	"context"
	"fmt"
	"sort"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
)

// #region types
// Rejected is the replayed label for a case whose budget was refused.
const Rejected = "rejected"

// Case is a single recorded decision input.
type Case struct {
	CaseID string
	Canvas *canvas.Canvas
	Budget controller.Budget
	Hint   controller.PolicyHint
}

// ReplayConfig bundles controller and policy configs for a replay run.
type ReplayConfig struct {
	Controller config.Controller
	Policy     config.Policy
}

// DefaultReplayConfig returns the stock controller and policy settings.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Controller: config.DefaultController(),
		Policy:     config.DefaultPolicy(),
	}
}

// ReplayResult captures the decision replayed for one case.
type ReplayResult struct {
	CaseID string
	Label  string // policy name, or Rejected
	Plan   controller.Plan
	Reason string
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalCases int
	Rejected   int
	BySource   map[controller.Source]int
	ByPolicy   map[string]int
}

// #endregion types

// #region replay
// Replay seeds a fresh policy manager with observations, then decides every
// case in order. No model is called and nothing is written.
func Replay(cases []Case, observations []policy.Observation, cfg ReplayConfig) ([]ReplayResult, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	mgr := policy.NewManager(cfg.Policy, nil)
	if err := mgr.Replay(context.Background(), observationList(observations)); err != nil {
		return nil, err
	}
	ctrl, err := controller.New(cfg.Controller, mgr.Recommender())
	if err != nil {
		return nil, err
	}

	results := make([]ReplayResult, 0, len(cases))
	for _, c := range cases {
		plan, err := ctrl.Decide(c.Canvas, c.Budget, c.Hint)
		if err != nil {
			results = append(results, ReplayResult{
				CaseID: c.CaseID,
				Label:  Rejected,
				Reason: err.Error(),
			})
			continue
		}
		results = append(results, ReplayResult{
			CaseID: c.CaseID,
			Label:  plan.PolicyName,
			Plan:   plan,
			Reason: fmt.Sprintf("%s via %s", plan.Strategy, plan.Source),
		})
	}
	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{
		TotalCases: len(results),
		BySource:   make(map[controller.Source]int),
		ByPolicy:   make(map[string]int),
	}
	for _, r := range results {
		if r.Label == Rejected {
			s.Rejected++
			continue
		}
		s.BySource[r.Plan.Source]++
		s.ByPolicy[r.Plan.PolicyName]++
	}
	return s
}

// Policies returns the distinct policy labels in results, sorted.
func (s ReplaySummary) Policies() []string {
	out := make([]string, 0, len(s.ByPolicy))
	for name := range s.ByPolicy {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type observationList []policy.Observation

func (l observationList) All(context.Context) ([]policy.Observation, error) {
	return l, nil
}

// #endregion replay

// #region compare
// Comparison is one row of an expected-versus-replayed table.
type Comparison struct {
	CaseID   string
	Expected string
	Replayed string
	Match    bool
}

// Compare pairs results with expectations by position. An expected source,
// when given, must match too.
func Compare(results []ReplayResult, expected []ExpectedResult) []Comparison {
	n := min(len(results), len(expected))
	out := make([]Comparison, 0, n)
	for i := 0; i < n; i++ {
		r, e := results[i], expected[i]
		match := r.CaseID == e.CaseID && r.Label == e.PolicyName
		if match && e.Source != "" && r.Label != Rejected {
			match = string(r.Plan.Source) == e.Source
		}
		out = append(out, Comparison{
			CaseID:   r.CaseID,
			Expected: e.label(),
			Replayed: resultLabel(r),
			Match:    match,
		})
	}
	return out
}

func resultLabel(r ReplayResult) string {
	if r.Label == Rejected {
		return Rejected
	}
	return r.Label + "/" + string(r.Plan.Source)
}

// #endregion compare

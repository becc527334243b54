package replay

import (
	"testing"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
)

// #region helpers

func sized(id string, n int) Case {
	return Case{
		CaseID: id,
		Canvas: &canvas.Canvas{SizeEstimate: n},
		Budget: controller.Budget{TokenBudget: 4000, LatencyTargetMs: 10000},
	}
}

func obs(policyName, workload string, tokens, latency int, outcome reasoner.Outcome, n int) []policy.Observation {
	out := make([]policy.Observation, n)
	for i := range out {
		out[i] = policy.Observation{PolicyName: policyName, WorkloadKey: workload, Tokens: tokens, LatencyMs: latency, Outcome: outcome}
	}
	return out
}

// #endregion helpers

// #region replay-tests

func TestReplay_HeuristicOnly(t *testing.T) {
	results, err := Replay([]Case{sized("a", 500), sized("b", 3000), sized("c", 5000)}, nil, DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	want := []string{"small_only", "cascade", "expert"}
	for i, r := range results {
		if r.Label != want[i] || r.Plan.Source != controller.SourceHeuristic {
			t.Errorf("case %s: expected %s/heuristic, got %s/%s", r.CaseID, want[i], r.Label, r.Plan.Source)
		}
	}
}

func TestReplay_RecommendationBeatsHeuristic(t *testing.T) {
	// expert costs 800 + 0.1*1200 = 920, cascade 500 + 0.1*1500 = 650.
	seed := append(
		obs("expert", "wl", 800, 1200, reasoner.OutcomeSuccess, 3),
		obs("cascade", "wl", 500, 1500, reasoner.OutcomeSuccess, 3)...,
	)
	c := sized("wl-case", 500)
	c.Hint.WorkloadKey = "wl"

	results, err := Replay([]Case{c}, seed, DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if results[0].Label != "cascade" || results[0].Plan.Source != controller.SourceRecommendation {
		t.Errorf("expected the cheaper cascade by recommendation, got %s/%s", results[0].Label, results[0].Plan.Source)
	}
}

func TestReplay_Rejected(t *testing.T) {
	c := sized("bad", 500)
	c.Budget.LatencyTargetMs = 0
	results, err := Replay([]Case{c}, nil, DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if results[0].Label != Rejected || results[0].Reason == "" {
		t.Errorf("expected rejection with reason, got %+v", results[0])
	}
}

func TestReplay_InvalidConfig(t *testing.T) {
	cfg := DefaultReplayConfig()
	cfg.Controller.SmallThreshold = cfg.Controller.ExpertThreshold + 1
	if _, err := Replay(nil, nil, cfg); err == nil {
		t.Fatal("expected error for inconsistent thresholds")
	}

	cfg = DefaultReplayConfig()
	cfg.Policy = config.Policy{}
	if _, err := Replay(nil, nil, cfg); err == nil {
		t.Fatal("expected error for zero policy config")
	}
}

func TestReplay_Deterministic(t *testing.T) {
	cases := []Case{sized("a", 500), sized("b", 9000)}
	seed := obs("cascade", "*", 100, 100, reasoner.OutcomeSuccess, 5)
	a, _ := Replay(cases, seed, DefaultReplayConfig())
	b, _ := Replay(cases, seed, DefaultReplayConfig())
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("case %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

// #endregion replay-tests

// #region summary-tests

func TestSummarize(t *testing.T) {
	results := []ReplayResult{
		{CaseID: "1", Label: "cascade", Plan: controller.Plan{PolicyName: "cascade", Source: controller.SourceHeuristic}},
		{CaseID: "2", Label: "cascade", Plan: controller.Plan{PolicyName: "cascade", Source: controller.SourceRecommendation}},
		{CaseID: "3", Label: "expert", Plan: controller.Plan{PolicyName: "expert", Source: controller.SourceHint}},
		{CaseID: "4", Label: Rejected},
	}
	s := Summarize(results)
	if s.TotalCases != 4 || s.Rejected != 1 {
		t.Errorf("unexpected totals: %+v", s)
	}
	if s.ByPolicy["cascade"] != 2 || s.BySource[controller.SourceHint] != 1 {
		t.Errorf("unexpected breakdown: %+v", s)
	}
	if got := s.Policies(); len(got) != 2 || got[0] != "cascade" || got[1] != "expert" {
		t.Errorf("unexpected policy list %v", got)
	}
}

func TestCompare(t *testing.T) {
	results := []ReplayResult{
		{CaseID: "a", Label: "cascade", Plan: controller.Plan{PolicyName: "cascade", Source: controller.SourceHeuristic}},
		{CaseID: "b", Label: "expert", Plan: controller.Plan{PolicyName: "expert", Source: controller.SourceHint}},
		{CaseID: "c", Label: Rejected},
	}
	expected := []ExpectedResult{
		{CaseID: "a", PolicyName: "cascade"},
		{CaseID: "b", PolicyName: "expert", Source: "heuristic"},
		{CaseID: "c", PolicyName: Rejected},
	}
	got := Compare(results, expected)
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if !got[0].Match || got[1].Match || !got[2].Match {
		t.Errorf("unexpected matches: %+v", got)
	}
	if got[1].Replayed != "expert/hint" || got[1].Expected != "expert/heuristic" {
		t.Errorf("unexpected labels: %+v", got[1])
	}
}

// #endregion summary-tests

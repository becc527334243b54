package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
)

// #region fixture-tests

// TestFixture_Decisions is the regression baseline: if thresholds, policy
// weights or the recommendation rules change, this catches drift.
func TestFixture_Decisions(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "decisions.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results, err := f.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(f.ExpectedResults) {
		t.Fatalf("expected %d results, got %d", len(f.ExpectedResults), len(results))
	}

	for i, c := range Compare(results, f.ExpectedResults) {
		if !c.Match {
			t.Errorf("case %d (%s): expected %s, got %s (reason: %s)",
				i, c.CaseID, c.Expected, c.Replayed, results[i].Reason)
		}
	}
}

func TestFixture_Speculation(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "decisions.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	results, err := f.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, r := range results {
		switch r.CaseID {
		case "mid-doc":
			if r.Plan.Speculation != "none" {
				t.Errorf("mid-doc: expected no speculation, got %s", r.Plan.Speculation)
			}
		case "mid-doc-tight":
			if r.Plan.Speculation != "speculative" {
				t.Errorf("mid-doc-tight: expected speculation under a tight latency target, got %s", r.Plan.Speculation)
			}
		}
	}
}

func TestLoadFixture_Missing(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing fixture")
	}
}

func TestLoadFixture_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"cases": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFixtureConfig_Overrides(t *testing.T) {
	ctrl := config.DefaultController()
	ctrl.SmallThreshold = 100
	fc := FixtureConfig{Controller: &ctrl}

	cfg := fc.ToReplayConfig()
	if cfg.Controller.SmallThreshold != 100 {
		t.Errorf("controller override not applied: %+v", cfg.Controller)
	}
	if cfg.Policy != config.DefaultPolicy() {
		t.Errorf("missing policy section should keep defaults: %+v", cfg.Policy)
	}
}

func TestToObservations_Repeat(t *testing.T) {
	f := Fixture{Observations: []FixtureObservation{
		{PolicyName: "a", WorkloadKey: "w", Repeat: 3},
		{PolicyName: "b", WorkloadKey: "w"},
	}}
	if got := len(f.ToObservations()); got != 4 {
		t.Errorf("expected 4 observations, got %d", got)
	}
}

// #endregion fixture-tests

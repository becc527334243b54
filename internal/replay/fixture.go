package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string               `json:"description"`
	Config          FixtureConfig        `json:"config"`
	Observations    []FixtureObservation `json:"observations"`
	Cases           []FixtureCase        `json:"cases"`
	ExpectedResults []ExpectedResult     `json:"expected_results"`
}

// FixtureConfig overrides the stock settings. Missing sections keep defaults.
type FixtureConfig struct {
	Controller *config.Controller `json:"controller,omitempty"`
	Policy     *config.Policy     `json:"policy,omitempty"`
}

// FixtureObservation seeds the policy manager.
type FixtureObservation struct {
	PolicyName  string `json:"policy_name"`
	WorkloadKey string `json:"workload_key"`
	Tokens      int    `json:"tokens"`
	LatencyMs   int    `json:"latency_ms"`
	Outcome     string `json:"outcome"`
	Repeat      int    `json:"repeat,omitempty"` // 0 = once
}

// FixtureCase is one decision to replay.
type FixtureCase struct {
	CaseID       string            `json:"case_id"`
	SizeEstimate int               `json:"size_estimate"`
	Canvas       *canvas.Canvas    `json:"canvas,omitempty"` // overrides size_estimate
	Budget       controller.Budget `json:"budget"`
	Policy       string            `json:"policy,omitempty"`
	WorkloadKey  string            `json:"workload_key,omitempty"`
}

// ExpectedResult captures the expected policy per case. PolicyName is
// "rejected" for refused budgets. Source is optional.
type ExpectedResult struct {
	CaseID     string `json:"case_id"`
	PolicyName string `json:"policy_name"`
	Source     string `json:"source,omitempty"`
}

func (e ExpectedResult) label() string {
	if e.Source == "" || e.PolicyName == Rejected {
		return e.PolicyName
	}
	return e.PolicyName + "/" + e.Source
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToReplayConfig applies the fixture overrides to the defaults.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	cfg := DefaultReplayConfig()
	if fc.Controller != nil {
		cfg.Controller = *fc.Controller
	}
	if fc.Policy != nil {
		cfg.Policy = *fc.Policy
	}
	return cfg
}

// ToObservations expands Repeat counts into individual observations.
func (f *Fixture) ToObservations() []policy.Observation {
	var out []policy.Observation
	for _, o := range f.Observations {
		n := max(1, o.Repeat)
		for i := 0; i < n; i++ {
			out = append(out, policy.Observation{
				PolicyName:  o.PolicyName,
				WorkloadKey: o.WorkloadKey,
				Tokens:      o.Tokens,
				LatencyMs:   o.LatencyMs,
				Outcome:     reasoner.Outcome(o.Outcome),
			})
		}
	}
	return out
}

// ToCase converts a FixtureCase to a domain Case.
func (fc *FixtureCase) ToCase() Case {
	cv := fc.Canvas
	if cv == nil {
		cv = &canvas.Canvas{Fingerprint: canvas.Fingerprint(fc.CaseID), SizeEstimate: fc.SizeEstimate}
	}
	return Case{
		CaseID: fc.CaseID,
		Canvas: cv,
		Budget: fc.Budget,
		Hint:   controller.PolicyHint{Name: fc.Policy, WorkloadKey: fc.WorkloadKey},
	}
}

// Run replays every case in the fixture.
func (f *Fixture) Run() ([]ReplayResult, error) {
	cases := make([]Case, len(f.Cases))
	for i := range f.Cases {
		cases[i] = f.Cases[i].ToCase()
	}
	return Replay(cases, f.ToObservations(), f.Config.ToReplayConfig())
}

// #endregion fixture-loader

package controller

import (
	"fmt"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
)

// #region enums

// Strategy is how passes are routed across model tiers.
type Strategy string

const (
	StrategySmallOnly Strategy = "small_only"
	StrategyCascade   Strategy = "cascade"
	StrategyExpert    Strategy = "expert"
)

// Speculation says whether cascade tiers race each other.
type Speculation string

const (
	SpeculationNone        Speculation = "none"
	SpeculationSpeculative Speculation = "speculative"
)

// Source records which rule produced a plan.
type Source string

const (
	SourceHint           Source = "hint"
	SourceRecommendation Source = "recommendation"
	SourceHeuristic      Source = "heuristic"
)

// #endregion enums

// #region inputs

// Config is the controller's threshold set.
type Config = config.Controller

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return config.DefaultController()
}

// Budget is the per-query spend limit.
type Budget struct {
	TokenBudget     int `json:"token_budget"`
	LatencyTargetMs int `json:"latency_target_ms"`
}

// Validate returns *InvalidBudgetError unless both limits are positive.
func (b Budget) Validate() error {
	if b.TokenBudget <= 0 || b.LatencyTargetMs <= 0 {
		return &InvalidBudgetError{Budget: b}
	}
	return nil
}

// PolicyHint optionally pins a policy or names the workload for recommendations.
type PolicyHint struct {
	Name        string `json:"name,omitempty"`
	WorkloadKey string `json:"workload_key,omitempty"`
}

// Recommendation is the best known policy for a workload.
type Recommendation struct {
	PolicyName  string
	SampleCount int
}

// Recommender answers best-known-policy queries. Implemented by policy.Manager.
type Recommender interface {
	Recommend(workloadKey string) (Recommendation, bool)
}

// #endregion inputs

// #region plan

// Plan is the execution plan handed to the reasoner.
type Plan struct {
	PolicyName          string      `json:"policy_name"`
	NumPasses           int         `json:"num_passes"`
	Strategy            Strategy    `json:"strategy"`
	Speculation         Speculation `json:"speculation"`
	EscalationThreshold float64     `json:"escalation_threshold"`
	TokenBudget         int         `json:"token_budget"`
	LatencyTargetMs     int         `json:"latency_target_ms"`
	Source              Source      `json:"source"`
}

// #endregion plan

// #region errors

// InvalidBudgetError rejects a non-positive budget. It matches config.ErrConfig.
type InvalidBudgetError struct {
	Budget Budget
}

func (e *InvalidBudgetError) Error() string {
	return fmt.Sprintf("invalid budget: token_budget=%d latency_target_ms=%d",
		e.Budget.TokenBudget, e.Budget.LatencyTargetMs)
}

func (e *InvalidBudgetError) Unwrap() error { return config.ErrConfig }

// #endregion errors

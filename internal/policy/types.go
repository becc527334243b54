package policy

import (
	"context"
	"strings"
	"time"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
)

// #region constants

// GlobalWorkload keys the cross-workload record for each policy.
const GlobalWorkload = "*"

// BaselineSuffix marks the records of single-call baseline runs, kept as
// "<policy>_baseline" next to the policy whose query they shadowed. Baseline
// records are compared against but never recommended.
const BaselineSuffix = "_baseline"

// BaselineName returns the record name for the baseline of policyName.
func BaselineName(policyName string) string { return policyName + BaselineSuffix }

// IsBaseline reports whether name is a baseline record.
func IsBaseline(name string) bool { return strings.HasSuffix(name, BaselineSuffix) }

// SpeculativeSuffix keeps races apart from sequential runs of the same
// policy. A race cancels its losing tier, so it almost never ends in a clean
// success and would drag the sequential record below the success floor.
const SpeculativeSuffix = "_spec"

// RecordName is the record a plan's outcome aggregates under.
func RecordName(plan controller.Plan) string {
	if plan.Speculation == controller.SpeculationSpeculative {
		return plan.PolicyName + SpeculativeSuffix
	}
	return plan.PolicyName
}

// Recommendable reports whether name can be handed to the controller.
// Baseline and speculative records are for comparison only.
func Recommendable(name string) bool {
	return !IsBaseline(name) && !strings.HasSuffix(name, SpeculativeSuffix)
}

// #endregion constants

// #region record

// Record is the aggregate for one (policy, workload) pair.
type Record struct {
	PolicyName   string  `json:"policy_name"`
	WorkloadKey  string  `json:"workload_key"`
	SampleCount  int     `json:"sample_count"`
	AvgTokens    float64 `json:"avg_tokens"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
}

// #endregion record

// #region observation

// Observation is one historical outcome behind a Record update.
type Observation struct {
	TraceID     string           `json:"trace_id"`
	PolicyName  string           `json:"policy_name"`
	WorkloadKey string           `json:"workload_key"`
	Tokens      int              `json:"tokens"`
	LatencyMs   int              `json:"latency_ms"`
	Outcome     reasoner.Outcome `json:"outcome"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Success reports whether the observation counts toward the success rate.
// Only a clean success counts; escalations and cancelled passes do not.
func (o Observation) Success() bool {
	return o.Outcome == reasoner.OutcomeSuccess
}

// #endregion observation

// #region interfaces

// Source yields observations for replay.
type Source interface {
	All(ctx context.Context) ([]Observation, error)
}

// Store is an append-only observation log.
type Store interface {
	Source
	Append(ctx context.Context, obs Observation) error
}

// #endregion interfaces

// #region config

// Config holds the recommendation weights.
type Config = config.Policy

// DefaultConfig returns MinSamples 3, SuccessFloor 0.9 and weights 1 / 0.1.
func DefaultConfig() Config {
	return config.DefaultPolicy()
}

// #endregion config

package controller

// #region imports
import (
	"fmt"
	"log"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
)

// #endregion

// #region controller

// Controller turns a canvas, a budget and an optional hint into a Plan.
// Decide does no I/O beyond logging and is deterministic for a fixed
// recommender snapshot.
type Controller struct {
	cfg         Config
	policies    map[string]Policy
	recommender Recommender // nil = heuristic only
}

// New validates cfg and returns a Controller. recommender may be nil.
func New(cfg Config, recommender Recommender) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}
	return &Controller{
		cfg:         cfg,
		policies:    Policies(cfg),
		recommender: recommender,
	}, nil
}

// Config returns the thresholds in use.
func (c *Controller) Config() Config {
	return c.cfg
}

// Lookup returns the named policy.
func (c *Controller) Lookup(name string) (Policy, bool) {
	p, ok := c.policies[name]
	return p, ok
}

// #endregion controller

// #region decide

// Decide picks a plan: explicit hint first, then a recommendation with enough
// samples, then the size heuristic.
func (c *Controller) Decide(cv *canvas.Canvas, budget Budget, hint PolicyHint) (Plan, error) {
	if err := budget.Validate(); err != nil {
		return Plan{}, err
	}

	size := 0
	if cv != nil {
		size = cv.SizeEstimate
	}

	pol, source, ok := c.fromHint(hint)
	if !ok {
		pol, source, ok = c.fromRecommendation(hint.WorkloadKey)
	}
	if !ok {
		pol, source = c.heuristic(size), SourceHeuristic
	}

	plan := Plan{
		PolicyName:          pol.Name,
		NumPasses:           pol.NumPasses,
		Strategy:            pol.Strategy,
		Speculation:         SpeculationNone,
		EscalationThreshold: pol.EscalationThreshold,
		TokenBudget:         budget.TokenBudget,
		LatencyTargetMs:     budget.LatencyTargetMs,
		Source:              source,
	}
	if plan.Strategy == StrategyCascade && budget.LatencyTargetMs < c.cfg.TightLatencyMs {
		plan.Speculation = SpeculationSpeculative
	}
	return plan, nil
}

func (c *Controller) fromHint(hint PolicyHint) (Policy, Source, bool) {
	if hint.Name == "" {
		return Policy{}, "", false
	}
	pol, ok := c.policies[hint.Name]
	if !ok {
		log.Printf("[CTRL] unknown policy hint %q ignored", hint.Name)
		return Policy{}, "", false
	}
	return pol, SourceHint, true
}

func (c *Controller) fromRecommendation(workloadKey string) (Policy, Source, bool) {
	if c.recommender == nil || workloadKey == "" {
		return Policy{}, "", false
	}
	rec, ok := c.recommender.Recommend(workloadKey)
	if !ok || rec.SampleCount < c.cfg.MinSamples {
		return Policy{}, "", false
	}
	pol, ok := c.policies[rec.PolicyName]
	if !ok {
		log.Printf("[CTRL] recommended policy %q unknown, falling back", rec.PolicyName)
		return Policy{}, "", false
	}
	return pol, SourceRecommendation, true
}

// heuristic routes by canvas size: small_only below T1, cascade up to T2,
// expert with one extra pass per ExpertPassStep beyond T2.
func (c *Controller) heuristic(size int) Policy {
	switch {
	case size < c.cfg.SmallThreshold:
		return c.policies["small_only"]
	case size < c.cfg.ExpertThreshold:
		return c.policies["cascade"]
	}
	passes := 1 + (size-c.cfg.ExpertThreshold)/c.cfg.ExpertPassStep
	if passes > c.cfg.MaxPasses {
		passes = c.cfg.MaxPasses
	}
	return c.policies[PolicyNameFor(StrategyExpert, passes)]
}

// #endregion decide

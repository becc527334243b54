package controller

import (
	"fmt"
	"sort"
)

// #region policy

// Policy is a named set of plan parameters.
type Policy struct {
	Name                string   `json:"name"`
	Strategy            Strategy `json:"strategy"`
	NumPasses           int      `json:"num_passes"`
	EscalationThreshold float64  `json:"escalation_threshold"`
}

// #endregion policy

// #region registry

// Policies builds the registry of named policies for cfg: small_only,
// cascade, expert and expert_xN for every 2 <= N <= MaxPasses.
func Policies(cfg Config) map[string]Policy {
	reg := map[string]Policy{
		"small_only": {
			Name:      "small_only",
			Strategy:  StrategySmallOnly,
			NumPasses: 1,
		},
		"cascade": {
			Name:                "cascade",
			Strategy:            StrategyCascade,
			NumPasses:           2,
			EscalationThreshold: cfg.CascadeEscalation,
		},
		"expert": {
			Name:      "expert",
			Strategy:  StrategyExpert,
			NumPasses: 1,
		},
	}
	for n := 2; n <= cfg.MaxPasses; n++ {
		name := PolicyNameFor(StrategyExpert, n)
		reg[name] = Policy{Name: name, Strategy: StrategyExpert, NumPasses: n}
	}
	return reg
}

// PolicyNameFor maps strategy and pass count back to a policy name.
func PolicyNameFor(s Strategy, passes int) string {
	if s == StrategyExpert && passes > 1 {
		return fmt.Sprintf("expert_x%d", passes)
	}
	return string(s)
}

// SortedPolicies returns the registry ordered by name.
func SortedPolicies(cfg Config) []Policy {
	reg := Policies(cfg)
	out := make([]Policy, 0, len(reg))
	for _, p := range reg {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// #endregion registry

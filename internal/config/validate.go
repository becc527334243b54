package config

import "fmt"

// #region validate

// Validate checks every section and returns an error wrapping ErrConfig on
// the first inconsistency.
func (c Config) Validate() error {
	if err := c.Controller.Validate(); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if err := c.Reasoner.Validate(); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case "memory", "sqlite":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("%w: redis cache backend needs redis_url", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrConfig, c.Cache.Backend)
	}
	if c.Cache.BuildRetries < 0 {
		return fmt.Errorf("%w: build_retries must be >= 0", ErrConfig)
	}
	switch c.Transport.Provider {
	case "scripted", "openai":
	case "rpc":
		if c.Transport.RPCAddr == "" {
			return fmt.Errorf("%w: rpc provider needs rpc_addr", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrConfig, c.Transport.Provider)
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1", ErrConfig)
	}
	if c.Pipeline.BaselineChars < 0 {
		return fmt.Errorf("%w: baseline_chars must be >= 0", ErrConfig)
	}
	return nil
}

// Validate rejects inconsistent controller thresholds.
func (c Controller) Validate() error {
	switch {
	case c.SmallThreshold < 0 || c.ExpertThreshold < 0:
		return fmt.Errorf("%w: thresholds must be >= 0", ErrConfig)
	case c.SmallThreshold > c.ExpertThreshold:
		return fmt.Errorf("%w: small_threshold %d > expert_threshold %d", ErrConfig, c.SmallThreshold, c.ExpertThreshold)
	case c.CascadeEscalation < 0 || c.CascadeEscalation > 1:
		return fmt.Errorf("%w: cascade_escalation %.2f outside [0,1]", ErrConfig, c.CascadeEscalation)
	case c.ExpertPassStep < 1:
		return fmt.Errorf("%w: expert_pass_step must be >= 1", ErrConfig)
	case c.MaxPasses < 1:
		return fmt.Errorf("%w: max_passes must be >= 1", ErrConfig)
	case c.TightLatencyMs < 0:
		return fmt.Errorf("%w: tight_latency_ms must be >= 0", ErrConfig)
	case c.MinSamples < 1:
		return fmt.Errorf("%w: min_samples must be >= 1", ErrConfig)
	}
	return nil
}

// Validate rejects out-of-range recommendation weights.
func (p Policy) Validate() error {
	switch {
	case p.MinSamples < 1:
		return fmt.Errorf("%w: policy min_samples must be >= 1", ErrConfig)
	case p.SuccessFloor < 0 || p.SuccessFloor > 1:
		return fmt.Errorf("%w: success_floor %.2f outside [0,1]", ErrConfig, p.SuccessFloor)
	case p.WTokens < 0 || p.WLatency < 0:
		return fmt.Errorf("%w: weights must be >= 0", ErrConfig)
	}
	return nil
}

// Validate rejects negative retry or pass limits.
func (r Reasoner) Validate() error {
	switch {
	case r.RetryBudget < 0:
		return fmt.Errorf("%w: retry_budget must be >= 0", ErrConfig)
	case r.BackoffBase < 0 || r.MinPassTimeout < 0:
		return fmt.Errorf("%w: durations must be >= 0", ErrConfig)
	case r.MinPassTokens < 1:
		return fmt.Errorf("%w: min_pass_tokens must be >= 1", ErrConfig)
	}
	return nil
}

// #endregion validate

package reasoner

// #region imports
import (
	"context"
	"log"
	"time"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

// #endregion

// #region run-pass

// runPass invokes tier with prompt, retrying transport failures up to
// RetryBudget times with doubling backoff. Tokens from failed attempts are
// charged to the pass. share is the number of passes the remaining budget is
// split over. A cancelled ctx stops retries immediately.
func (r *Reasoner) runPass(ctx context.Context, led *ledger, tier transport.Tier, prompt string, share int) (Pass, error) {
	pass := Pass{Tier: tier}
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= r.cfg.RetryBudget; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, r.cfg.BackoffBase<<(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		timeout, maxTokens := led.allowance(share, r.cfg.MinPassTimeout, r.cfg.MinPassTokens)
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := r.model.Invoke(callCtx, transport.Request{
			Tier:      tier,
			Prompt:    prompt,
			MaxTokens: maxTokens,
			Timeout:   timeout,
		})
		cancel()

		pass.Attempts++
		pass.TokensUsed += resp.TokensUsed
		led.charge(resp.TokensUsed)

		if err == nil {
			pass.AnswerText = resp.Text
			if resp.Confidence != nil {
				pass.Confidence = clamp(*resp.Confidence, 0, 1)
			} else {
				pass.Confidence = EstimateConfidence(resp.Text)
			}
			pass.LatencyMs = int(time.Since(start).Milliseconds())
			return pass, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Printf("[CASCADE] %s pass attempt %d failed: %v", tier, pass.Attempts, err)
	}

	pass.Error = lastErr.Error()
	pass.LatencyMs = int(time.Since(start).Milliseconds())
	return pass, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// #endregion run-pass

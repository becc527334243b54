package transport

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// #endregion

// #region script

// Script fixes how the scripted model answers one tier.
type Script struct {
	Text          string        // empty = generated from the prompt
	Confidence    *float64      // self-reported confidence, nil = none
	Delay         time.Duration // 0 = simulated from prompt size
	TokensUsed    int           // 0 = estimated from prompt and text
	PartialTokens int           // tokens reported when interrupted; 0 = proportional
	Failures      int           // the first N calls fail
	FailTokens    int           // tokens reported by a failed call
}

// Conf is a helper for Script.Confidence literals.
func Conf(v float64) *float64 { return &v }

// #endregion script

// #region scripted

// Scripted is a deterministic Model for tests, demos and the loop command.
// It honours cancellation and reports partial token usage when interrupted.
type Scripted struct {
	mu      sync.Mutex
	scripts map[Tier]Script
	calls   map[Tier]int
}

// NewScripted creates a scripted model. Tiers without a script get a default
// echo answer.
func NewScripted(scripts map[Tier]Script) *Scripted {
	if scripts == nil {
		scripts = map[Tier]Script{}
	}
	return &Scripted{scripts: scripts, calls: make(map[Tier]int)}
}

// Calls returns how many times tier was invoked.
func (s *Scripted) Calls(tier Tier) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[tier]
}

// Invoke answers req after the scripted delay.
func (s *Scripted) Invoke(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	s.calls[req.Tier]++
	n := s.calls[req.Tier]
	script := s.scripts[req.Tier]
	s.mu.Unlock()

	text := script.Text
	if text == "" {
		text = defaultAnswer(req, n)
	}
	tokens := script.TokensUsed
	if tokens == 0 {
		tokens = max(1, EstimateTokens(req.Prompt)) + EstimateTokens(text) + 1
	}
	delay := script.Delay
	if delay == 0 {
		delay = min(time.Duration(EstimateTokens(req.Prompt))*2*time.Millisecond, 50*time.Millisecond)
	}

	ctx, cancel := WithTimeout(ctx, req)
	defer cancel()

	start := time.Now()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		partial := script.PartialTokens
		if partial == 0 && delay > 0 {
			partial = int(float64(tokens) * float64(time.Since(start)) / float64(delay))
		}
		return Response{TokensUsed: partial, LatencyMs: int(time.Since(start).Milliseconds())},
			NewError(req.Tier, ctx.Err())
	case <-timer.C:
	}

	latency := int(time.Since(start).Milliseconds())
	if n <= script.Failures {
		return Response{TokensUsed: script.FailTokens, LatencyMs: latency},
			NewError(req.Tier, errors.New("scripted failure"))
	}
	return Response{
		Text:       text,
		TokensUsed: tokens,
		LatencyMs:  latency,
		Confidence: script.Confidence,
	}, nil
}

func defaultAnswer(req Request, n int) string {
	prefix := "SMALL"
	if req.Tier == TierExpert {
		prefix = "EXPERT"
	}
	excerpt := req.Prompt
	if r := []rune(excerpt); len(r) > 120 {
		excerpt = string(r[:120])
	}
	return fmt.Sprintf("%s answer %d: %s", prefix, n, excerpt)
}

// #endregion scripted

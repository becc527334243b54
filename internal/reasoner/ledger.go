package reasoner

import (
	"sync"
	"time"
)

// #region ledger

// ledger is the per-query budget counter. It is the only state speculative
// passes share.
type ledger struct {
	mu      sync.Mutex
	tokens  int
	latency time.Duration
	start   time.Time
	spent   int
}

func newLedger(tokenBudget, latencyMs int) *ledger {
	return &ledger{
		tokens:  tokenBudget,
		latency: time.Duration(latencyMs) * time.Millisecond,
		start:   time.Now(),
	}
}

func (l *ledger) charge(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.spent += n
	l.mu.Unlock()
}

func (l *ledger) spentTokens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent
}

// allowance splits what is left of the budget evenly over share passes,
// with floors on both the timeout and the token cap.
func (l *ledger) allowance(share int, minTimeout time.Duration, minTokens int) (time.Duration, int) {
	if share < 1 {
		share = 1
	}
	l.mu.Lock()
	remainingTokens := l.tokens - l.spent
	l.mu.Unlock()
	remainingLatency := l.latency - time.Since(l.start)

	timeout := remainingLatency / time.Duration(share)
	if timeout < minTimeout {
		timeout = minTimeout
	}
	maxTokens := remainingTokens / share
	if maxTokens < minTokens {
		maxTokens = minTokens
	}
	return timeout, maxTokens
}

// #endregion ledger

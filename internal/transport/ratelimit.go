package transport

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// #region rate-limited

// RateLimited wraps a Model with one token-bucket limiter per tier.
type RateLimited struct {
	next  Model
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[Tier]*rate.Limiter
}

// NewRateLimited allows perSecond calls per tier with the given burst.
func NewRateLimited(next Model, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:     next,
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[Tier]*rate.Limiter),
	}
}

func (r *RateLimited) limiter(tier Tier) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[tier]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[tier] = l
	}
	return l
}

// Invoke waits for the tier's limiter, then calls the wrapped model. Waiting
// counts against the request timeout.
func (r *RateLimited) Invoke(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := WithTimeout(ctx, req)
	defer cancel()
	if err := r.limiter(req.Tier).Wait(ctx); err != nil {
		return Response{}, NewError(req.Tier, err)
	}
	return r.next.Invoke(ctx, req)
}

// #endregion rate-limited

package transport

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"time"
)

// #endregion

// #region types

// Tier names a model class.
type Tier string

const (
	TierSmall  Tier = "small"
	TierExpert Tier = "expert"
)

// Request is one model call.
type Request struct {
	Tier      Tier
	Prompt    string
	MaxTokens int
	Timeout   time.Duration // 0 = caller's context only
}

// Response is a model reply. On error it may still carry the tokens consumed
// before the failure.
type Response struct {
	Text       string
	TokensUsed int
	LatencyMs  int
	Confidence *float64 // nil when the model did not self-report
}

// Model is anything that can answer a Request.
type Model interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// #endregion types

// #region error

// Error is a failed model call.
type Error struct {
	Tier      Tier
	Err       error
	Timeout   bool
	Cancelled bool
}

// NewError wraps err for tier and classifies context errors.
func NewError(tier Tier, err error) *Error {
	return &Error{
		Tier:      tier,
		Err:       err,
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Cancelled: errors.Is(err, context.Canceled),
	}
}

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s tier timed out: %v", e.Tier, e.Err)
	case e.Cancelled:
		return fmt.Sprintf("%s tier cancelled: %v", e.Tier, e.Err)
	}
	return fmt.Sprintf("%s tier failed: %v", e.Tier, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// #endregion error

// #region helpers

// EstimateTokens approximates token usage as one token per four characters.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// WithTimeout applies req.Timeout to ctx when set.
func WithTimeout(ctx context.Context, req Request) (context.Context, context.CancelFunc) {
	if req.Timeout > 0 {
		return context.WithTimeout(ctx, req.Timeout)
	}
	return context.WithCancel(ctx)
}

// #endregion helpers

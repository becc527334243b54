package reasoner

// #region imports
import (
	"context"
	"fmt"
	"log"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

// #endregion

// #region speculative

type passResult struct {
	pass Pass
	err  error
}

// speculative races the small and expert tiers. A small answer at or above
// the bar, or any expert answer, wins; the other pass is cancelled, awaited
// and recorded with whatever tokens it reported.
func (r *Reasoner) speculative(ctx context.Context, x *execution, base canvas.Context) {
	threshold := x.trace.Plan.EscalationThreshold

	smallCtx, cancelSmall := context.WithCancel(ctx)
	defer cancelSmall()
	expertCtx, cancelExpert := context.WithCancel(ctx)
	defer cancelExpert()

	// both channels are buffered so a loser never blocks on send
	smallCh := make(chan passResult, 1)
	expertCh := make(chan passResult, 1)

	x.transition(StateSmallPass)
	x.transition(StateExpertPass)
	go func() {
		p, err := r.runPass(smallCtx, x.ledger, transport.TierSmall, base.Render(1, 1), 2)
		smallCh <- passResult{p, err}
	}()
	go func() {
		p, err := r.runPass(expertCtx, x.ledger, transport.TierExpert, base.Render(1, 1), 2)
		expertCh <- passResult{p, err}
	}()

	select {
	case s := <-smallCh:
		if s.err == nil && s.pass.Confidence >= threshold {
			cancelExpert()
			e := <-expertCh
			e.pass.Cancelled = true
			r.finish(x, s.pass, e.pass, s.pass.AnswerText, OutcomeCancelledPassPresent)
			return
		}
		// small failed or fell short: the expert answer decides
		e := <-expertCh
		if e.err != nil {
			r.finishError(x, s.pass, e.pass, e.err)
			return
		}
		r.metrics.RecordEscalation()
		r.finish(x, s.pass, e.pass, e.pass.AnswerText, OutcomeEscalated)

	case e := <-expertCh:
		if e.err == nil {
			cancelSmall()
			s := <-smallCh
			s.pass.Cancelled = true
			r.finish(x, s.pass, e.pass, e.pass.AnswerText, OutcomeCancelledPassPresent)
			return
		}
		s := <-smallCh
		if s.err == nil && s.pass.Confidence >= threshold {
			log.Printf("[CASCADE] trace=%s expert failed, small answer above bar adopted", x.trace.ID)
			r.finish(x, s.pass, e.pass, s.pass.AnswerText, OutcomeSuccess)
			return
		}
		r.finishError(x, s.pass, e.pass, e.err)
	}
}

func (r *Reasoner) finish(x *execution, small, expert Pass, answer string, outcome Outcome) {
	x.record(small)
	x.record(expert)
	x.trace.FinalAnswer = answer
	x.trace.Outcome = outcome
}

func (r *Reasoner) finishError(x *execution, small, expert Pass, err error) {
	x.record(small)
	x.record(expert)
	x.fail(fmt.Errorf("speculative cascade: %w", err))
}

// #endregion speculative

package reasoner

// #region imports
import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/metrics"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

// #endregion

// #region reasoner

// Reasoner executes control plans against a model transport.
type Reasoner struct {
	model   transport.Model
	cfg     Config
	metrics *metrics.Metrics
}

// New creates a Reasoner. m may be nil.
func New(model transport.Model, cfg Config, m *metrics.Metrics) *Reasoner {
	return &Reasoner{model: model, cfg: cfg, metrics: m}
}

// #endregion reasoner

// #region execution

// execution is the mutable state of one Execute call.
type execution struct {
	trace  Trace
	ledger *ledger
	start  time.Time
}

func (x *execution) transition(to State) {
	from := StateInit
	if n := len(x.trace.States); n > 0 {
		from = x.trace.States[n-1]
	}
	x.trace.States = append(x.trace.States, to)
	if to != StateInit {
		log.Printf("[CASCADE] trace=%s %s -> %s", x.trace.ID, from, to)
	}
}

func (x *execution) record(p Pass) {
	x.trace.Passes = append(x.trace.Passes, p)
}

func (x *execution) fail(err error) {
	x.trace.Outcome = OutcomeError
	x.trace.Err = err.Error()
	x.trace.FinalAnswer = ""
}

// #endregion execution

// #region execute

// Execute runs plan over cv for question and returns the finished trace.
// Failures are reported in the trace, never as a separate error. cv is only
// read; each refinement pass sees a derived canvas.Context.
func (r *Reasoner) Execute(ctx context.Context, cv *canvas.Canvas, question string, plan controller.Plan) Trace {
	x := &execution{
		trace:  Trace{ID: uuid.New().String(), Plan: plan},
		ledger: newLedger(plan.TokenBudget, plan.LatencyTargetMs),
		start:  time.Now(),
	}
	x.transition(StateInit)
	base := canvas.NewContext(cv, question)

	switch plan.Strategy {
	case controller.StrategySmallOnly:
		r.smallOnly(ctx, x, base)
	case controller.StrategyCascade:
		if plan.Speculation == controller.SpeculationSpeculative {
			r.speculative(ctx, x, base)
		} else {
			r.cascade(ctx, x, base)
		}
	case controller.StrategyExpert:
		r.refine(ctx, x, base, max(1, plan.NumPasses))
		if x.trace.Outcome == "" {
			x.trace.Outcome = OutcomeSuccess
		}
	default:
		x.fail(fmt.Errorf("unknown strategy %q", plan.Strategy))
	}

	x.transition(StateDone)
	x.trace.TokensUsedTotal = x.ledger.spentTokens()
	x.trace.LatencyMsTotal = int(time.Since(x.start).Milliseconds())
	for _, p := range x.trace.Passes {
		r.metrics.RecordPass(string(p.Tier), p.TokensUsed, p.Cancelled)
	}
	log.Printf("[CASCADE] trace=%s policy=%s outcome=%s passes=%d tokens=%d latency=%dms",
		x.trace.ID, plan.PolicyName, x.trace.Outcome, len(x.trace.Passes),
		x.trace.TokensUsedTotal, x.trace.LatencyMsTotal)
	return x.trace
}

// #endregion execute

// #region sequential

func (r *Reasoner) smallOnly(ctx context.Context, x *execution, base canvas.Context) {
	x.transition(StateSmallPass)
	p, err := r.runPass(ctx, x.ledger, transport.TierSmall, base.Render(1, 1), 1)
	x.record(p)
	if err != nil {
		x.fail(err)
		return
	}
	x.trace.FinalAnswer = p.AnswerText
	x.trace.Outcome = OutcomeSuccess
}

// cascade runs the small tier and escalates to the expert tier when the
// small answer falls below the plan's escalation threshold.
func (r *Reasoner) cascade(ctx context.Context, x *execution, base canvas.Context) {
	plan := x.trace.Plan
	total := max(2, plan.NumPasses)

	x.transition(StateSmallPass)
	small, err := r.runPass(ctx, x.ledger, transport.TierSmall, base.Render(1, 1), total)
	x.record(small)
	if err != nil {
		x.fail(err)
		return
	}
	if small.Confidence >= plan.EscalationThreshold {
		x.trace.FinalAnswer = small.AnswerText
		x.trace.Outcome = OutcomeSuccess
		return
	}

	log.Printf("[CASCADE] trace=%s confidence %.2f < %.2f, escalating",
		x.trace.ID, small.Confidence, plan.EscalationThreshold)
	x.transition(StateEscalate)
	r.metrics.RecordEscalation()
	r.refine(ctx, x, base.WithPrior(small.AnswerText), max(1, plan.NumPasses-1))
	if x.trace.Outcome == "" {
		x.trace.Outcome = OutcomeEscalated
	}
}

// refine runs n sequential expert passes. Each pass receives a new context
// carrying the previous answer; the final pass's answer is the result.
func (r *Reasoner) refine(ctx context.Context, x *execution, cx canvas.Context, n int) {
	for i := 1; i <= n; i++ {
		x.transition(StateExpertPass)
		p, err := r.runPass(ctx, x.ledger, transport.TierExpert, cx.Render(i, n), n-i+1)
		x.record(p)
		if err != nil {
			x.fail(err)
			return
		}
		x.trace.FinalAnswer = p.AnswerText
		cx = cx.WithPrior(p.AnswerText)
	}
}

// #endregion sequential

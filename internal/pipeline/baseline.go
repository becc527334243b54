package pipeline

// #region imports
import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

// #endregion

// #region baseline

const baselinePrompt = `You are an expert analyst. Answer the QUESTION using the CONTEXT below.

QUESTION:
%s

CONTEXT:
%s

Answer:`

// baselineRun is one expert call over the raw document, with no canvas and
// no controller. It is what the brain's plan is measured against.
type baselineRun struct {
	policyName string
	traceID    string
	answer     string
	tokens     int
	latencyMs  int
	err        error
}

func (p *Pipeline) baselineEnabled() bool {
	return p.baseline != nil && p.cfg.BaselineChars > 0
}

// runBaseline answers question from the first BaselineChars characters of
// raw and records the result under "<policy>_baseline" for workload.
func (p *Pipeline) runBaseline(ctx context.Context, raw, question string, plan controller.Plan, workload string) baselineRun {
	run := baselineRun{
		policyName: policy.BaselineName(plan.PolicyName),
		traceID:    uuid.New().String(),
	}
	prompt := fmt.Sprintf(baselinePrompt, question, truncateRunes(raw, p.cfg.BaselineChars))

	start := time.Now()
	resp, err := p.baseline.Invoke(ctx, transport.Request{
		Tier:      transport.TierExpert,
		Prompt:    prompt,
		MaxTokens: plan.TokenBudget,
	})
	run.latencyMs = int(time.Since(start).Milliseconds())
	run.tokens = resp.TokensUsed
	run.answer = resp.Text
	run.err = err

	tr := reasoner.Trace{
		ID:              run.traceID,
		TokensUsedTotal: run.tokens,
		LatencyMsTotal:  run.latencyMs,
		Outcome:         reasoner.OutcomeSuccess,
	}
	if err != nil {
		tr.Outcome = reasoner.OutcomeError
		log.Printf("[PIPE] baseline %s failed: %v", run.policyName, err)
	}
	if err := p.policies.Record(tr, run.policyName, workload); err != nil {
		log.Printf("[PIPE] baseline %s: policy record failed: %v", run.policyName, err)
	}
	return run
}

// apply copies the run onto rec.
func (b baselineRun) apply(rec *Record) {
	rec.BaselinePolicy = b.policyName
	rec.BaselineTraceID = b.traceID
	rec.BaselineAnswer = b.answer
	rec.BaselineTokens = b.tokens
	rec.BaselineLatencyMs = b.latencyMs
	if b.err != nil {
		rec.BaselineError = b.err.Error()
	}
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

// #endregion baseline

package pipeline

// #region imports
import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/cache"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/logging"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/metrics"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

// #endregion

// #region pipeline

// Deps wires a Pipeline. TraceDB, Metrics and Baseline may be nil. A nil
// Baseline skips the single-call comparison run.
type Deps struct {
	Resolver   DocumentResolver
	Encoder    canvas.Encoder
	Cache      *cache.Cache
	Controller *controller.Controller
	Reasoner   *reasoner.Reasoner
	Policies   *policy.Manager
	TraceDB    *sql.DB
	Metrics    *metrics.Metrics
	Baseline   transport.Model
	Config     config.Pipeline
}

// Pipeline drives encode, decide, execute and record for each query.
type Pipeline struct {
	resolver DocumentResolver
	encoder  canvas.Encoder
	cache    *cache.Cache
	ctrl     *controller.Controller
	reasoner *reasoner.Reasoner
	policies *policy.Manager
	traceDB  *sql.DB
	metrics  *metrics.Metrics
	baseline transport.Model
	cfg      config.Pipeline
}

// New creates a Pipeline from its dependencies.
func New(d Deps) *Pipeline {
	if d.Config.Concurrency < 1 {
		d.Config.Concurrency = 1
	}
	return &Pipeline{
		resolver: d.Resolver,
		encoder:  d.Encoder,
		cache:    d.Cache,
		ctrl:     d.Controller,
		reasoner: d.Reasoner,
		policies: d.Policies,
		traceDB:  d.TraceDB,
		metrics:  d.Metrics,
		baseline: d.Baseline,
		cfg:      d.Config,
	}
}

// WithResolver returns a shallow copy that resolves documents through r.
func (p *Pipeline) WithResolver(r DocumentResolver) *Pipeline {
	cp := *p
	cp.resolver = r
	return &cp
}

// WithoutBaseline returns a shallow copy that skips the baseline run.
func (p *Pipeline) WithoutBaseline() *Pipeline {
	cp := *p
	cp.baseline = nil
	return &cp
}

// Policies exposes the policy manager shared by every query.
func (p *Pipeline) Policies() *policy.Manager { return p.policies }

// Controller exposes the decision engine.
func (p *Pipeline) Controller() *controller.Controller { return p.ctrl }

// #endregion pipeline

// #region run-query

// Decision is the plan for a query together with the canvas it was made on.
type Decision struct {
	Plan        controller.Plan `json:"plan"`
	Fingerprint string          `json:"fingerprint"`
	CacheHit    bool            `json:"cache_hit"`
	Canvas      *canvas.Canvas  `json:"canvas"`

	raw string
}

// Plan validates q, builds or loads its canvas and decides the plan without
// executing it.
func (p *Pipeline) Plan(ctx context.Context, q Query) (Decision, error) {
	d, stage, err := p.decide(ctx, q)
	if err != nil {
		return d, fmt.Errorf("query %s: %s: %w", q.ID, stage, err)
	}
	return d, nil
}

func (p *Pipeline) decide(ctx context.Context, q Query) (Decision, string, error) {
	var d Decision
	if err := q.Validate(); err != nil {
		return d, "validate", err
	}
	budget := p.budgetFor(q)
	if err := budget.Validate(); err != nil {
		return d, "budget", err
	}

	raw, err := p.document(ctx, q)
	if err != nil {
		return d, "resolve", err
	}

	fp := canvas.FingerprintOf(raw)
	d.Fingerprint, d.raw = string(fp), raw
	cv, hit, err := p.cache.Fetch(ctx, fp, func(ctx context.Context) (*canvas.Canvas, error) {
		return p.encoder.Encode(ctx, raw)
	})
	if err != nil {
		return d, "canvas", err
	}
	d.Canvas, d.CacheHit = cv, hit

	d.Plan, err = p.ctrl.Decide(cv, budget, controller.PolicyHint{Name: q.Policy, WorkloadKey: q.Workload()})
	if err != nil {
		return d, "decide", err
	}
	return d, "", nil
}

// RunQuery processes one query. Invalid queries and budgets are rejected
// with an error wrapping config.ErrConfig before any document or model work.
// Resolve and canvas failures also return an error. Reasoning failures do not:
// they are reported through the record's Outcome and Error. When a baseline
// model is wired, the query is then answered once more by a single expert
// call over the raw document and both results land on the record.
func (p *Pipeline) RunQuery(ctx context.Context, q Query) (Record, error) {
	start := time.Now()
	workload := q.Workload()
	rec := Record{
		ID:            q.ID,
		Question:      q.Question,
		ExpectedNotes: q.ExpectedNotes,
		WorkloadKey:   workload,
		Outcome:       reasoner.OutcomeError,
	}

	d, stage, err := p.decide(ctx, q)
	rec.Fingerprint, rec.CacheHit = d.Fingerprint, d.CacheHit
	if err != nil {
		err = fmt.Errorf("query %s: %s: %w", q.ID, stage, err)
		rec.Error = err.Error()
		p.metrics.RecordQuery(string(reasoner.OutcomeError), time.Since(start).Seconds())
		log.Printf("[PIPE] %v", err)
		return rec, err
	}
	plan := d.Plan

	tr := p.reasoner.Execute(ctx, d.Canvas, q.Question, plan)
	rec.Plan = &tr.Plan
	rec.Passes = tr.Passes
	rec.FinalAnswer = tr.FinalAnswer
	rec.Outcome = tr.Outcome
	rec.TokensUsedTotal = tr.TokensUsedTotal
	rec.LatencyMsTotal = tr.LatencyMsTotal
	rec.PolicyName = plan.PolicyName
	rec.TraceID = tr.ID
	rec.Error = tr.Err

	if err := p.policies.Record(tr, policy.RecordName(plan), workload); err != nil {
		log.Printf("[PIPE] query %s: policy record failed: %v", q.ID, err)
	}
	p.logTrace(q.ID, workload, d.Fingerprint, tr)
	p.metrics.RecordQuery(string(tr.Outcome), time.Since(start).Seconds())

	log.Printf("[PIPE] query=%s workload=%s policy=%s cache_hit=%v outcome=%s tokens=%d",
		q.ID, workload, plan.PolicyName, d.CacheHit, tr.Outcome, tr.TokensUsedTotal)

	if p.baselineEnabled() {
		b := p.runBaseline(ctx, d.raw, q.Question, plan, workload)
		b.apply(&rec)
		log.Printf("[PIPE] query=%s baseline tokens=%d latency_ms=%d (brain %+d tokens, %+d ms)",
			q.ID, b.tokens, b.latencyMs, tr.TokensUsedTotal-b.tokens, tr.LatencyMsTotal-b.latencyMs)
	}
	return rec, nil
}

func (p *Pipeline) budgetFor(q Query) controller.Budget {
	if q.Budget != nil {
		return *q.Budget
	}
	return controller.Budget{
		TokenBudget:     p.cfg.DefaultTokenBudget,
		LatencyTargetMs: p.cfg.DefaultLatencyMs,
	}
}

func (p *Pipeline) document(ctx context.Context, q Query) (string, error) {
	if q.Document != "" {
		return q.Document, nil
	}
	if p.resolver == nil {
		return "", errors.New("no document resolver configured")
	}
	return p.resolver.Resolve(ctx, q.DocumentReference)
}

func (p *Pipeline) logTrace(queryID, workload, fp string, tr reasoner.Trace) {
	if p.traceDB == nil {
		return
	}
	entry, err := logging.EntryFromTrace(queryID, workload, fp, tr)
	if err == nil {
		err = logging.LogTrace(p.traceDB, entry)
	}
	if err != nil {
		log.Printf("[PIPE] query %s: trace log failed: %v", queryID, err)
	}
}

// #endregion run-query

// #region run

// Run processes queries concurrently, bounded by the configured
// concurrency. A failing query is recorded on its own row and never
// cancels the others. Records come back in input order.
func (p *Pipeline) Run(ctx context.Context, queries []Query) []Record {
	records := make([]Record, len(queries))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			rec, err := p.RunQuery(ctx, q)
			if err != nil && rec.Error == "" {
				rec.Error = err.Error()
			}
			records[i] = rec
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("[PIPE] batch done: %d queries", len(queries))
	return records
}

// #endregion run

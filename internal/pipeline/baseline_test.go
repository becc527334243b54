package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

// recordingModel answers every call with resp and keeps the prompts.
type recordingModel struct {
	mu    sync.Mutex
	reqs  []transport.Request
	resp  transport.Response
	err   error
	delay time.Duration
}

func (m *recordingModel) Invoke(ctx context.Context, req transport.Request) (transport.Response, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	time.Sleep(m.delay)
	return m.resp, m.err
}

func TestRunQuery_Baseline(t *testing.T) {
	base := &recordingModel{resp: transport.Response{Text: "Baseline: May.", TokensUsed: 5000}, delay: 20 * time.Millisecond}
	p := newTestPipeline(t, confidentModel(), MapResolver{"doc": shortDoc}, nil)
	p.baseline = base

	rec, err := p.RunQuery(context.Background(), Query{ID: "q1", DocumentReference: "doc", Question: "When?", WorkloadKey: "launch", Budget: budget(2000, 10000)})
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if len(base.reqs) != 1 || base.reqs[0].Tier != transport.TierExpert {
		t.Fatalf("expected one expert baseline call, got %+v", base.reqs)
	}
	prompt := base.reqs[0].Prompt
	if !strings.Contains(prompt, "QUESTION:\nWhen?") || !strings.Contains(prompt, shortDoc) {
		t.Errorf("baseline prompt missing question or document:\n%s", prompt)
	}

	want := policy.BaselineName(rec.PolicyName)
	if rec.BaselinePolicy != want || rec.BaselineTokens != 5000 || rec.BaselineAnswer != "Baseline: May." {
		t.Errorf("baseline not on record: %+v", rec)
	}
	if rec.BaselineLatencyMs < 20 || rec.BaselineTraceID == "" {
		t.Errorf("baseline latency %d, trace %q", rec.BaselineLatencyMs, rec.BaselineTraceID)
	}

	r, ok := p.Policies().Lookup(want, "launch")
	if !ok || r.SampleCount != 1 || r.AvgTokens != 5000 || r.SuccessRate != 1 {
		t.Errorf("baseline observation not recorded: %+v", r)
	}
	if !ExpectationsMet([]Record{rec}) {
		t.Errorf("brain (%d tokens, %dms) should beat the baseline (%d tokens, %dms)",
			rec.TokensUsedTotal, rec.LatencyMsTotal, rec.BaselineTokens, rec.BaselineLatencyMs)
	}
}

func TestRunQuery_BaselineTruncatesDocument(t *testing.T) {
	base := &recordingModel{resp: transport.Response{Text: "x", TokensUsed: 1}}
	p := newTestPipeline(t, confidentModel(), nil, nil)
	p.baseline = base
	p.cfg.BaselineChars = 10

	doc := "ÉÉÉÉÉÉÉÉÉÉ" + "TAIL"
	if _, err := p.RunQuery(context.Background(), Query{ID: "q", Document: doc, Question: "Why?"}); err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	prompt := base.reqs[0].Prompt
	if !strings.Contains(prompt, "ÉÉÉÉÉÉÉÉÉÉ") || strings.Contains(prompt, "TAIL") {
		t.Errorf("expected the first 10 characters only:\n%s", prompt)
	}
}

func TestRunQuery_BaselineFailure(t *testing.T) {
	base := &recordingModel{resp: transport.Response{TokensUsed: 7}, err: errors.New("upstream down")}
	p := newTestPipeline(t, confidentModel(), MapResolver{"doc": shortDoc}, nil)
	p.baseline = base

	rec, err := p.RunQuery(context.Background(), Query{ID: "q", DocumentReference: "doc", Question: "When?", Budget: budget(2000, 10000)})
	if err != nil {
		t.Fatalf("baseline failure must not fail the query: %v", err)
	}
	if rec.Outcome != reasoner.OutcomeSuccess || !strings.Contains(rec.BaselineError, "upstream down") || rec.HasBaseline() {
		t.Errorf("unexpected record: %+v", rec)
	}
	r, _ := p.Policies().Lookup(rec.BaselinePolicy, "q")
	if r.SampleCount != 1 || r.SuccessRate != 0 {
		t.Errorf("failed baseline should count as an error: %+v", r)
	}
	// the comparison falls back to the budget
	if !ExpectationsMet([]Record{rec}) {
		t.Error("record within budget should meet expectations without a baseline")
	}
}

func TestRunQuery_WithoutBaseline(t *testing.T) {
	base := &recordingModel{resp: transport.Response{Text: "x", TokensUsed: 1}}
	p := newTestPipeline(t, confidentModel(), MapResolver{"doc": shortDoc}, nil)
	p.baseline = base

	rec, err := p.WithoutBaseline().RunQuery(context.Background(), Query{ID: "q", DocumentReference: "doc", Question: "When?"})
	if err != nil {
		t.Fatal(err)
	}
	if len(base.reqs) != 0 || rec.BaselinePolicy != "" {
		t.Errorf("baseline ran: %d calls, %+v", len(base.reqs), rec)
	}
}

func TestExpectationsMet_AgainstBaseline(t *testing.T) {
	plan := &controller.Plan{PolicyName: "cascade", TokenBudget: 4000}
	paired := func(tokens, latency, baseTokens, baseLatency int) Record {
		return Record{
			Plan: plan, Outcome: reasoner.OutcomeSuccess, TokensUsedTotal: tokens, LatencyMsTotal: latency,
			BaselinePolicy: "cascade_baseline", BaselineTokens: baseTokens, BaselineLatencyMs: baseLatency,
		}
	}
	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{"beats baseline", paired(400, 100, 1000, 300), true},
		{"ties baseline", paired(1000, 300, 1000, 300), true},
		{"more tokens", paired(1200, 100, 1000, 300), false},
		{"slower", paired(400, 500, 1000, 300), false},
		{"within budget but over baseline", paired(3000, 100, 1000, 300), false},
		{"no baseline, within budget", Record{Plan: plan, Outcome: reasoner.OutcomeSuccess, TokensUsedTotal: 3000}, true},
		{"no baseline, over budget", Record{Plan: plan, Outcome: reasoner.OutcomeSuccess, TokensUsedTotal: 5000}, false},
		{"errored", Record{Plan: plan, Outcome: reasoner.OutcomeError}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpectationsMet([]Record{tt.rec}); got != tt.want {
				t.Errorf("ExpectationsMet = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummarize_BaselineDeltas(t *testing.T) {
	plan := &controller.Plan{PolicyName: "cascade", TokenBudget: 4000}
	records := []Record{
		{Plan: plan, Outcome: reasoner.OutcomeSuccess, TokensUsedTotal: 400, LatencyMsTotal: 100,
			BaselinePolicy: "cascade_baseline", BaselineTokens: 1000, BaselineLatencyMs: 300},
		{Plan: plan, Outcome: reasoner.OutcomeSuccess, TokensUsedTotal: 600, LatencyMsTotal: 300,
			BaselinePolicy: "cascade_baseline", BaselineTokens: 2000, BaselineLatencyMs: 500},
		{Plan: plan, Outcome: reasoner.OutcomeSuccess, TokensUsedTotal: 9000, LatencyMsTotal: 9000},
	}
	s := Summarize(records)
	if s.BaselineCases != 2 || s.BaselineAvgTokens != 1500 || s.PairedAvgTokens != 500 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.TokenDelta() != -1000 || s.LatencyDelta() != -200 {
		t.Errorf("deltas = %v tokens, %v ms", s.TokenDelta(), s.LatencyDelta())
	}
}

func TestRunQuery_SpeculativeRecordedApart(t *testing.T) {
	p := newTestPipeline(t, confidentModel(), MapResolver{"doc": shortDoc}, nil)
	q := Query{ID: "q", DocumentReference: "doc", Question: "When?", WorkloadKey: "wl", Policy: "cascade", Budget: budget(2000, 1000)}
	rec, err := p.RunQuery(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Plan.Speculation != controller.SpeculationSpeculative || rec.PolicyName != "cascade" {
		t.Fatalf("expected a speculative cascade plan, got %+v", rec.Plan)
	}
	if _, ok := p.Policies().Lookup("cascade_spec", "wl"); !ok {
		t.Error("speculative run not recorded under cascade_spec")
	}
	if _, ok := p.Policies().Lookup("cascade", "wl"); ok {
		t.Error("speculative run leaked into the sequential cascade record")
	}
}

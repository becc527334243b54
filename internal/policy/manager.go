package policy

// #region imports
import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
)

// #endregion

// #region manager

type recordKey struct {
	policy   string
	workload string
}

// entry guards one Record. Updates to different records never contend.
type entry struct {
	mu  sync.Mutex
	rec Record
}

// Manager aggregates traces into per-policy records and recommends the
// cheapest reliable policy for a workload.
type Manager struct {
	cfg   Config
	store Store // nil = in-memory only

	mu      sync.RWMutex
	records map[recordKey]*entry
}

// NewManager creates a Manager. store may be nil.
func NewManager(cfg Config, store Store) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   store,
		records: make(map[recordKey]*entry),
	}
}

// #endregion manager

// #region record

// Record folds trace into the (policyName, workloadKey) record and the
// policy's global record, then appends the observation to the store.
func (m *Manager) Record(trace reasoner.Trace, policyName, workloadKey string) error {
	obs := Observation{
		TraceID:     trace.ID,
		PolicyName:  policyName,
		WorkloadKey: workloadKey,
		Tokens:      trace.TokensUsedTotal,
		LatencyMs:   trace.LatencyMsTotal,
		Outcome:     trace.Outcome,
		CreatedAt:   time.Now().UTC(),
	}
	m.apply(obs)
	if m.store != nil {
		if err := m.store.Append(context.Background(), obs); err != nil {
			return fmt.Errorf("append observation: %w", err)
		}
	}
	return nil
}

func (m *Manager) apply(obs Observation) {
	if obs.PolicyName == "" {
		return
	}
	if obs.WorkloadKey != "" && obs.WorkloadKey != GlobalWorkload {
		m.entryFor(recordKey{obs.PolicyName, obs.WorkloadKey}).add(obs)
	}
	m.entryFor(recordKey{obs.PolicyName, GlobalWorkload}).add(obs)
}

func (m *Manager) entryFor(k recordKey) *entry {
	m.mu.RLock()
	e, ok := m.records[k]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.records[k]; ok {
		return e
	}
	e = &entry{rec: Record{PolicyName: k.policy, WorkloadKey: k.workload}}
	m.records[k] = e
	return e
}

// add updates the running means.
func (e *entry) add(obs Observation) {
	success := 0.0
	if obs.Success() {
		success = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r := &e.rec
	r.SampleCount++
	n := float64(r.SampleCount)
	r.AvgTokens += (float64(obs.Tokens) - r.AvgTokens) / n
	r.AvgLatencyMs += (float64(obs.LatencyMs) - r.AvgLatencyMs) / n
	r.SuccessRate += (success - r.SuccessRate) / n
}

func (e *entry) snapshot() Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec
}

// #endregion record

// #region recommend

// Recommend returns the cheapest policy for workloadKey among records with
// at least MinSamples and a success rate at or above SuccessFloor. Baseline
// and speculative records are never candidates. It falls
// back to global records when the workload has none eligible. The boolean is
// false on cold start.
func (m *Manager) Recommend(workloadKey string) (Record, bool) {
	candidates := m.eligible(workloadKey)
	if len(candidates) == 0 && workloadKey != GlobalWorkload {
		candidates = m.eligible(GlobalWorkload)
	}

	var best Record
	found := false
	for _, r := range candidates {
		if r.SuccessRate < m.cfg.SuccessFloor {
			continue
		}
		if !found || m.better(r, best) {
			best, found = r, true
		}
	}
	return best, found
}

func (m *Manager) eligible(workloadKey string) []Record {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.records))
	for k, e := range m.records {
		if k.workload == workloadKey && Recommendable(k.policy) {
			entries = append(entries, e)
		}
	}
	m.mu.RUnlock()

	var out []Record
	for _, e := range entries {
		if r := e.snapshot(); r.SampleCount >= m.cfg.MinSamples {
			out = append(out, r)
		}
	}
	return out
}

// Cost is the weighted objective Recommend minimises.
func (m *Manager) Cost(r Record) float64 {
	return m.cfg.WTokens*r.AvgTokens + m.cfg.WLatency*r.AvgLatencyMs
}

func (m *Manager) better(a, b Record) bool {
	ca, cb := m.Cost(a), m.Cost(b)
	if ca != cb {
		return ca < cb
	}
	if a.SampleCount != b.SampleCount {
		return a.SampleCount > b.SampleCount
	}
	return a.PolicyName < b.PolicyName
}

// Recommender adapts the manager for the controller.
func (m *Manager) Recommender() controller.Recommender {
	return recommender{m}
}

type recommender struct{ m *Manager }

func (r recommender) Recommend(workloadKey string) (controller.Recommendation, bool) {
	rec, ok := r.m.Recommend(workloadKey)
	if !ok {
		return controller.Recommendation{}, false
	}
	return controller.Recommendation{PolicyName: rec.PolicyName, SampleCount: rec.SampleCount}, true
}

// #endregion recommend

// #region snapshot

// Snapshot returns a copy of every record sorted by workload then policy.
func (m *Manager) Snapshot() []Record {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.records))
	for _, e := range m.records {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = e.snapshot()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkloadKey != out[j].WorkloadKey {
			return out[i].WorkloadKey < out[j].WorkloadKey
		}
		return out[i].PolicyName < out[j].PolicyName
	})
	return out
}

// Lookup returns the record for one (policy, workload) pair.
func (m *Manager) Lookup(policyName, workloadKey string) (Record, bool) {
	m.mu.RLock()
	e, ok := m.records[recordKey{policyName, workloadKey}]
	m.mu.RUnlock()
	if !ok {
		return Record{}, false
	}
	return e.snapshot(), true
}

// Workloads returns the distinct non-global workload keys seen.
func (m *Manager) Workloads() []string {
	m.mu.RLock()
	seen := make(map[string]bool)
	for k := range m.records {
		if k.workload != GlobalWorkload {
			seen[k.workload] = true
		}
	}
	m.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// #endregion snapshot

// #region replay

// Replay discards the in-memory aggregates and rebuilds them from every
// observation in src. Nothing is written back to the store.
func (m *Manager) Replay(ctx context.Context, src Source) error {
	obs, err := src.All(ctx)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	m.mu.Lock()
	m.records = make(map[recordKey]*entry)
	m.mu.Unlock()

	for _, o := range obs {
		m.apply(o)
	}
	log.Printf("[POLICY] replayed %d observation(s) into %d record(s)", len(obs), len(m.Snapshot()))
	return nil
}

// #endregion replay

package pipeline

// #region imports
import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
)

// #endregion

// #region record

// Record is one output line: the trace plus query bookkeeping.
type Record struct {
	ID              string           `json:"id"`
	Question        string           `json:"question"`
	ExpectedNotes   string           `json:"expected_notes,omitempty"`
	WorkloadKey     string           `json:"workload_key"`
	Fingerprint     string           `json:"fingerprint,omitempty"`
	CacheHit        bool             `json:"cache_hit"`
	Plan            *controller.Plan `json:"plan,omitempty"`
	Passes          []reasoner.Pass  `json:"passes"`
	FinalAnswer     string           `json:"final_answer"`
	Outcome         reasoner.Outcome `json:"outcome"`
	TokensUsedTotal int              `json:"tokens_used_total"`
	LatencyMsTotal  int              `json:"latency_ms_total"`
	PolicyName      string           `json:"policy_name,omitempty"`
	TraceID         string           `json:"trace_id,omitempty"`
	Error           string           `json:"error,omitempty"`

	// Single expert call over the raw document, when enabled.
	BaselinePolicy    string `json:"baseline_policy_name,omitempty"`
	BaselineTraceID   string `json:"baseline_trace_id,omitempty"`
	BaselineAnswer    string `json:"baseline_answer,omitempty"`
	BaselineTokens    int    `json:"baseline_tokens"`
	BaselineLatencyMs int    `json:"baseline_latency_ms"`
	BaselineError     string `json:"baseline_error,omitempty"`
}

// HasBaseline reports whether a baseline run completed for the record.
func (r Record) HasBaseline() bool {
	return r.BaselinePolicy != "" && r.BaselineError == ""
}

// #endregion record

// #region write

// WriteRecords writes records as JSONL to path.
func WriteRecords(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			f.Close()
			return fmt.Errorf("encode record %s: %w", records[i].ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush report: %w", err)
	}
	return f.Close()
}

// ReportPath names a report file: <prefix>_<utc timestamp>[_iterNN].jsonl.
// iteration 0 omits the suffix.
func ReportPath(dir, prefix string, at time.Time, iteration int) string {
	name := prefix + "_" + at.UTC().Format("20060102_150405")
	if iteration > 0 {
		name += fmt.Sprintf("_iter%02d", iteration)
	}
	return filepath.Join(dir, name+".jsonl")
}

// WriteReport creates dir and writes records to a fresh report file.
func WriteReport(dir, prefix string, iteration int, records []Record) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := ReportPath(dir, prefix, time.Now(), iteration)
	if err := WriteRecords(path, records); err != nil {
		return "", err
	}
	return path, nil
}

// #endregion write

// #region load

// LoadRecords reads a JSONL report.
func LoadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return out, nil
}

// #endregion load

// #region summary

// Summary aggregates one batch. Baseline averages cover only the records
// with a completed baseline run, as do the brain averages beside them.
type Summary struct {
	Cases        int                      `json:"cases"`
	Failed       int                      `json:"failed"`
	CacheHits    int                      `json:"cache_hits"`
	AvgTokens    float64                  `json:"avg_tokens"`
	AvgLatencyMs float64                  `json:"avg_latency_ms"`
	ByOutcome    map[reasoner.Outcome]int `json:"by_outcome"`
	ByPolicy     map[string]int           `json:"by_policy"`

	BaselineCases        int     `json:"baseline_cases"`
	PairedAvgTokens      float64 `json:"paired_avg_tokens"`
	PairedAvgLatencyMs   float64 `json:"paired_avg_latency_ms"`
	BaselineAvgTokens    float64 `json:"baseline_avg_tokens"`
	BaselineAvgLatencyMs float64 `json:"baseline_avg_latency_ms"`
}

// TokenDelta is brain minus baseline average tokens over paired records.
func (s Summary) TokenDelta() float64 { return s.PairedAvgTokens - s.BaselineAvgTokens }

// LatencyDelta is brain minus baseline average latency over paired records.
func (s Summary) LatencyDelta() float64 { return s.PairedAvgLatencyMs - s.BaselineAvgLatencyMs }

// Summarize folds records into a Summary.
func Summarize(records []Record) Summary {
	s := Summary{
		Cases:     len(records),
		ByOutcome: make(map[reasoner.Outcome]int),
		ByPolicy:  make(map[string]int),
	}
	if len(records) == 0 {
		return s
	}
	var tokens, latency int
	var pTokens, pLatency, bTokens, bLatency int
	for _, r := range records {
		tokens += r.TokensUsedTotal
		latency += r.LatencyMsTotal
		if r.CacheHit {
			s.CacheHits++
		}
		if r.Outcome == reasoner.OutcomeError {
			s.Failed++
		}
		s.ByOutcome[r.Outcome]++
		if r.PolicyName != "" {
			s.ByPolicy[r.PolicyName]++
		}
		if r.HasBaseline() {
			s.BaselineCases++
			pTokens += r.TokensUsedTotal
			pLatency += r.LatencyMsTotal
			bTokens += r.BaselineTokens
			bLatency += r.BaselineLatencyMs
		}
	}
	s.AvgTokens = float64(tokens) / float64(len(records))
	s.AvgLatencyMs = float64(latency) / float64(len(records))
	if n := float64(s.BaselineCases); n > 0 {
		s.PairedAvgTokens = float64(pTokens) / n
		s.PairedAvgLatencyMs = float64(pLatency) / n
		s.BaselineAvgTokens = float64(bTokens) / n
		s.BaselineAvgLatencyMs = float64(bLatency) / n
	}
	return s
}

// ExpectationsMet reports whether the brain beat its baseline on every
// record: no more tokens and no more latency than the single expert call.
// Records without a completed baseline fall back to staying within the
// plan's token budget. A rejected or errored query never meets
// expectations.
func ExpectationsMet(records []Record) bool {
	for _, r := range records {
		if r.Plan == nil || r.Outcome == reasoner.OutcomeError {
			return false
		}
		if r.HasBaseline() {
			if r.TokensUsedTotal > r.BaselineTokens || r.LatencyMsTotal > r.BaselineLatencyMs {
				return false
			}
			continue
		}
		if r.TokensUsedTotal > r.Plan.TokenBudget {
			return false
		}
	}
	return true
}

// #endregion summary

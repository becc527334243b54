package policy

// #region imports
import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
)

// #endregion

// #region jsonl-source

// JSONLSource replays observations from pipeline report files.
type JSONLSource struct {
	Paths []string
}

// NewJSONLSource expands glob into a sorted file list.
func NewJSONLSource(glob string) (*JSONLSource, error) {
	paths, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", glob, err)
	}
	sort.Strings(paths)
	return &JSONLSource{Paths: paths}, nil
}

// reportLine is the subset of a report record replay needs.
type reportLine struct {
	ID              string           `json:"id"`
	WorkloadKey     string           `json:"workload_key"`
	PolicyName      string           `json:"policy_name"`
	Plan            *controller.Plan `json:"plan"`
	Outcome         reasoner.Outcome `json:"outcome"`
	TokensUsedTotal int              `json:"tokens_used_total"`
	LatencyMsTotal  int              `json:"latency_ms_total"`
	TraceID         string           `json:"trace_id"`

	BaselinePolicy    string `json:"baseline_policy_name"`
	BaselineTokens    int    `json:"baseline_tokens"`
	BaselineLatencyMs int    `json:"baseline_latency_ms"`
	BaselineTraceID   string `json:"baseline_trace_id"`
	BaselineError     string `json:"baseline_error"`
}

// All reads every line of every file. Lines without a policy name, such as
// rejected queries, are skipped. A line carrying a baseline run yields a
// second observation under the baseline's policy name.
func (s *JSONLSource) All(ctx context.Context) ([]Observation, error) {
	var out []Observation
	for _, path := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obs, err := readReport(path)
		if err != nil {
			return nil, err
		}
		out = append(out, obs...)
	}
	return out, nil
}

func readReport(path string) ([]Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []Observation
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r reportLine
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if r.PolicyName == "" {
			continue
		}
		workload := r.WorkloadKey
		if workload == "" {
			workload = r.ID
		}
		name := r.PolicyName
		if r.Plan != nil {
			name = RecordName(*r.Plan)
		}
		out = append(out, Observation{
			TraceID:     r.TraceID,
			PolicyName:  name,
			WorkloadKey: workload,
			Tokens:      r.TokensUsedTotal,
			LatencyMs:   r.LatencyMsTotal,
			Outcome:     r.Outcome,
		})
		if r.BaselinePolicy != "" {
			outcome := reasoner.OutcomeSuccess
			if r.BaselineError != "" {
				outcome = reasoner.OutcomeError
			}
			out = append(out, Observation{
				TraceID:     r.BaselineTraceID,
				PolicyName:  r.BaselinePolicy,
				WorkloadKey: workload,
				Tokens:      r.BaselineTokens,
				LatencyMs:   r.BaselineLatencyMs,
				Outcome:     outcome,
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// #endregion jsonl-source

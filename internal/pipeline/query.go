package pipeline

// #region imports
import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
)

// #endregion

// #region query

// Query is one input line.
type Query struct {
	ID                string             `json:"id"`
	DocumentReference string             `json:"document_reference,omitempty"`
	Document          string             `json:"document,omitempty"` // inline text, skips the resolver
	Question          string             `json:"question"`
	ExpectedNotes     string             `json:"expected_notes,omitempty"`
	Budget            *controller.Budget `json:"budget,omitempty"`
	WorkloadKey       string             `json:"workload_key,omitempty"`
	Policy            string             `json:"policy,omitempty"`
}

// Workload returns the workload key, defaulting to the query ID.
func (q Query) Workload() string {
	if q.WorkloadKey != "" {
		return q.WorkloadKey
	}
	return q.ID
}

// Validate checks the required fields.
func (q Query) Validate() error {
	switch {
	case q.ID == "":
		return fmt.Errorf("%w: query missing id", config.ErrConfig)
	case q.Question == "":
		return fmt.Errorf("%w: query %s missing question", config.ErrConfig, q.ID)
	case q.DocumentReference == "" && q.Document == "":
		return fmt.Errorf("%w: query %s missing document_reference", config.ErrConfig, q.ID)
	}
	return nil
}

// #endregion query

// #region load

// LoadQueries reads a JSONL query file. Blank lines are skipped.
func LoadQueries(path string) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open queries: %w", err)
	}
	defer f.Close()

	var out []Query
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var q Query
		if err := json.Unmarshal([]byte(line), &q); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		out = append(out, q)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return out, nil
}

// #endregion load

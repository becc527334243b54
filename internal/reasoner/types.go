package reasoner

import (
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

// #region state

// State is a step of the execution state machine.
type State string

const (
	StateInit       State = "INIT"
	StateSmallPass  State = "SMALL_PASS"
	StateEscalate   State = "ESCALATE"
	StateExpertPass State = "EXPERT_PASS"
	StateDone       State = "DONE"
)

// #endregion state

// #region outcome

// Outcome classifies how a trace ended.
type Outcome string

const (
	OutcomeSuccess              Outcome = "success"
	OutcomeEscalated            Outcome = "escalated"
	OutcomeCancelledPassPresent Outcome = "cancelled_pass_present"
	OutcomeError                Outcome = "error"
)

// #endregion outcome

// #region pass

// Pass is one model invocation, including its retries.
type Pass struct {
	Tier       transport.Tier `json:"tier"`
	TokensUsed int            `json:"tokens_used"`
	LatencyMs  int            `json:"latency_ms"`
	Confidence float64        `json:"confidence"`
	AnswerText string         `json:"answer_text"`
	Attempts   int            `json:"attempts"`
	Cancelled  bool           `json:"cancelled"`
	Error      string         `json:"error,omitempty"`
}

// #endregion pass

// #region trace

// Trace is the full record of one plan execution.
type Trace struct {
	ID              string          `json:"id"`
	Plan            controller.Plan `json:"plan"`
	Passes          []Pass          `json:"passes"`
	States          []State         `json:"states"`
	FinalAnswer     string          `json:"final_answer"`
	Outcome         Outcome         `json:"outcome"`
	Err             string          `json:"error,omitempty"`
	TokensUsedTotal int             `json:"tokens_used_total"`
	LatencyMsTotal  int             `json:"latency_ms_total"`
}

// #endregion trace

// #region config

// Config holds retry and per-pass limits.
type Config = config.Reasoner

// DefaultConfig returns two retries, 100ms base backoff, a 250ms pass timeout
// floor and a 64 token floor.
func DefaultConfig() Config {
	return config.DefaultReasoner()
}

// #endregion config

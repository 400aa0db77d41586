package orchestrator

import (
	"github.com/fyrsmithlabs/agentloop/internal/oracle"
	"github.com/fyrsmithlabs/agentloop/internal/saturation"
)

// EventType discriminates progress events.
type EventType string

const (
	// EventIterationStarted fires at the top of each iteration.
	EventIterationStarted EventType = "iteration_started"
	// EventOutputChunk carries a streamed partial output.
	EventOutputChunk EventType = "output_chunk"
	// EventExecutionFailed fires when an execution fails after retries and
	// fallback, and the loop continues past it.
	EventExecutionFailed EventType = "execution_failed"
	// EventOracleVerdict carries the verifier's judgment.
	EventOracleVerdict EventType = "oracle_verdict"
	// EventOracleError fires when verification itself failed and the loop
	// degrades to "cannot verify".
	EventOracleError EventType = "oracle_error"
	// EventInference fires when CanContinue=true was inferred from an
	// incomplete verdict.
	EventInference EventType = "can_continue_inferred"
	// EventAutoContinue fires when the next prompt is auto-enqueued.
	EventAutoContinue EventType = "auto_continuing"
	// EventSaturation forwards saturation level changes and required
	// actions.
	EventSaturation EventType = "saturation"
	// EventCheckpoint carries the context summary at iteration end when
	// checkpointing is enabled.
	EventCheckpoint EventType = "checkpoint"
	// EventTerminal is the final event of every run.
	EventTerminal EventType = "terminal"
)

// TerminalReason explains why the loop halted. Every run ends with exactly
// one terminal event so callers never infer completion from side effects.
type TerminalReason string

const (
	ReasonGoalAchieved    TerminalReason = "goal_achieved"
	ReasonWaitingForInput TerminalReason = "waiting_for_input"
	ReasonHumanReview     TerminalReason = "human_review"
	ReasonMaxIterations   TerminalReason = "max_iterations_reached"
	ReasonQueueEmpty      TerminalReason = "queue_empty"
	ReasonNoWork          TerminalReason = "no_pending_work"
	ReasonSingleGoalDone  TerminalReason = "single_goal_processed"
	ReasonStopped         TerminalReason = "stopped"
	ReasonFatalError      TerminalReason = "fatal_error"
	ReasonCancelled       TerminalReason = "cancelled"
)

// Event is one progress notification from the control loop.
type Event struct {
	Type      EventType `json:"type"`
	Iteration int       `json:"iteration,omitempty"`
	Message   string    `json:"message,omitempty"`

	// Verdict is set on oracle events.
	Verdict *oracle.Verdict `json:"verdict,omitempty"`

	// Saturation is set on saturation events.
	Saturation *saturation.State `json:"saturation,omitempty"`

	// Reason is set on the terminal event.
	Reason TerminalReason `json:"reason,omitempty"`

	// Err carries the error text on failure events.
	Err string `json:"error,omitempty"`
}

// Report is the final state of a completed run.
type Report struct {
	Reason      TerminalReason
	Iterations  int
	Completed   bool
	FinalOutput string
}

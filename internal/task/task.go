// Package task defines the contract between the orchestrator and the
// external executor that performs the actual work of one iteration.
package task

import "context"

// Request is an opaque unit of work: an identifier plus the prompt to act on.
type Request struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

// Result is the outcome of one executed attempt. Produced exactly once per
// attempt. A false Success with no error means the executor produced an
// unusable result; the resilient layer treats that as retryable.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Output is a partial progress notification emitted during execution. Zero
// or more may arrive per attempt; they are not persisted.
type Output struct {
	RequestID string `json:"request_id"`
	Content   string `json:"content"`
}

// OutputFunc receives streaming Output notifications.
type OutputFunc func(Output)

// Executor performs the work for one request. Implementations live outside
// the engine (LLM providers, subprocess runners, test doubles).
//
// onOutput may be nil. Execute must return ctx.Err() on genuine
// cancellation and must not return it otherwise.
type Executor interface {
	Execute(ctx context.Context, req Request, onOutput OutputFunc) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request, onOutput OutputFunc) (*Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, req Request, onOutput OutputFunc) (*Result, error) {
	return f(ctx, req, onOutput)
}

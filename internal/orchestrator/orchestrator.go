// Package orchestrator drives the autonomous control loop: it pulls pending
// prompts, executes them through the resilient layer, asks the oracle whether
// the goal is satisfied, folds what was learned into the execution context,
// and tracks token pressure in the saturation monitor. Progress is reported
// as a stream of typed events; every run ends with exactly one terminal
// event.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentloop/internal/execctx"
	"github.com/fyrsmithlabs/agentloop/internal/fallback"
	"github.com/fyrsmithlabs/agentloop/internal/logging"
	"github.com/fyrsmithlabs/agentloop/internal/oracle"
	"github.com/fyrsmithlabs/agentloop/internal/resilient"
	"github.com/fyrsmithlabs/agentloop/internal/saturation"
	"github.com/fyrsmithlabs/agentloop/internal/task"
	"github.com/fyrsmithlabs/agentloop/internal/telemetry"
	"github.com/fyrsmithlabs/agentloop/internal/tokens"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("orchestrator already started")

// eventBuffer sizes the event channel. A slow consumer loses events rather
// than stalling the loop.
const eventBuffer = 128

// Summarizer reduces an execution context when the saturation monitor
// recommends mitigation. Returning a nil context means "no reduction".
type Summarizer interface {
	Summarize(ctx context.Context, ec *execctx.Context, state saturation.State) (*execctx.Context, error)
}

// Orchestrator runs one autonomous session. It owns its execution context,
// saturation monitor, and prompt queue; independent instances share nothing.
type Orchestrator struct {
	cfg        Config
	executor   task.Executor
	verifier   oracle.Verifier
	oracleCfg  oracle.Config
	policy     *oracle.Policy
	monitor    *saturation.Monitor
	counter    tokens.Counter
	summarizer Summarizer
	logger     *logging.Logger
	metrics    *telemetry.Metrics
	goal       string

	mu      sync.Mutex
	queue   []string
	execCtx *execctx.Context

	events  chan Event
	started atomic.Bool
}

// Events returns the progress event stream. Closed when the run ends.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// EnqueuePrompt adds a pending prompt.
func (o *Orchestrator) EnqueuePrompt(text string) {
	if text == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, text)
}

// PendingPrompts returns the queue depth.
func (o *Orchestrator) PendingPrompts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// AddHumanFeedback folds reviewer feedback into the execution context.
// Intended between runs or while the loop is stopped waiting for input.
func (o *Orchestrator) AddHumanFeedback(feedback string) {
	if feedback == "" {
		return
	}
	o.setContext(o.currentContext().WithHumanFeedback(feedback))
}

// Context returns the current execution context snapshot.
func (o *Orchestrator) Context() *execctx.Context {
	return o.currentContext()
}

// Saturation returns the current saturation snapshot.
func (o *Orchestrator) Saturation() saturation.State {
	return o.monitor.CurrentState()
}

// Start runs the control loop until a terminal verdict, queue exhaustion,
// the iteration budget, or cancellation. It blocks; run it in a goroutine
// and consume Events for progress.
func (o *Orchestrator) Start(ctx context.Context) (*Report, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	defer close(o.events)

	goal := o.goal
	if goal == "" {
		// No explicit goal: the first queued prompt is the goal. Carry over
		// any feedback added before the run started.
		goal = o.peekPrompt()
		fresh := execctx.New(goal)
		for _, f := range o.currentContext().HumanFeedback() {
			fresh = fresh.WithHumanFeedback(f)
		}
		o.setContext(fresh)
	}
	ctx = logging.WithSessionID(ctx, o.currentContext().SessionID())

	o.logger.Info(ctx, "starting autonomous run",
		zap.String("goal", goal),
		zap.String("mode", string(o.cfg.CompletionMode)),
		zap.Int("max_iterations", o.cfg.MaxIterations),
	)

	var lastOutput string
	completed := 0

	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return o.finish(ctx, ReasonCancelled, completed, lastOutput, "run cancelled", err)
		}

		prompt, ok := o.dequeuePrompt()
		if !ok {
			if o.cfg.CompletionMode == ModeUntilGoalAchieved {
				return o.finish(ctx, ReasonNoWork, completed, lastOutput, "no pending work", nil)
			}
			return o.finish(ctx, ReasonQueueEmpty, completed, lastOutput, "prompt queue drained", nil)
		}

		ictx := logging.WithIteration(ctx, iteration)
		o.setContext(o.currentContext().WithIteration(iteration))
		o.emit(Event{Type: EventIterationStarted, Iteration: iteration, Message: prompt})
		o.logger.Info(ictx, "iteration started")

		req := task.Request{ID: uuid.NewString(), Prompt: o.buildPrompt(prompt)}
		o.recordUsage(ictx, o.counter.Count(req.Prompt), "prompt")

		res, err := o.executor.Execute(ictx, req, o.streamOutput(iteration))
		if err != nil {
			if isCancellation(err) {
				return o.finish(ictx, ReasonCancelled, completed, lastOutput, "run cancelled", err)
			}
			o.metrics.RecordFailure(ictx)

			var failed *resilient.ExecutionFailedError
			if errors.As(err, &failed) && o.cfg.ContinueOnFailure {
				o.setContext(o.currentContext().WithErrorResolution(execctx.ErrorResolution{
					ErrorSummary: failed.Error(),
					Resolution:   "skipped after retries, continuing with next prompt",
					Category:     "execution",
					Succeeded:    false,
				}))
				o.emit(Event{Type: EventExecutionFailed, Iteration: iteration, Err: err.Error()})
				o.logger.Warn(ictx, "execution failed, continuing", zap.Error(err))
				completed = iteration
				continue
			}
			return o.finish(ictx, ReasonFatalError, completed, lastOutput, "execution failed", err)
		}

		output := res.Output
		lastOutput = output
		completed = iteration

		o.recordUsage(ictx, o.counter.Count(output), "response")
		o.maybeSummarize(ictx)

		var verdict *oracle.Verdict
		if o.cfg.EnableOracle && o.verifier != nil && o.verifier.IsConfigured() {
			var verr error
			verdict, verr = o.verify(ictx, goal, output)
			if verr != nil {
				return o.finish(ictx, ReasonCancelled, completed, lastOutput, "run cancelled", verr)
			}
		}

		if verdict == nil {
			// No verification: accumulate and let the mode decide.
			o.setContext(o.currentContext().WithPreviousOutput(output))
			o.checkpoint(ictx, iteration)
			o.metrics.RecordIteration(ictx)
			if o.cfg.CompletionMode == ModeSingleGoal {
				return o.finish(ictx, ReasonSingleGoalDone, completed, lastOutput, "single prompt processed", nil)
			}
			continue
		}

		if u := verdict.TokenUsage; u != nil {
			o.recordUsage(ictx, u.Total(), "oracle")
		}
		o.metrics.RecordVerdict(ictx, verdict.IsComplete, verdict.Confidence)

		outcome := o.policy.Decide(verdict, iteration)
		if outcome.InferredCanContinue {
			o.emit(Event{
				Type:      EventInference,
				Iteration: iteration,
				Message:   "Inferring CanContinue=true from IsComplete=false",
			})
			o.logger.Debug(ictx, "inferred continuability from incomplete verdict")
		}
		o.emit(Event{Type: EventOracleVerdict, Iteration: iteration, Verdict: verdict, Message: verdict.Analysis})
		o.logger.Info(ictx, "oracle verdict",
			zap.Bool("complete", verdict.IsComplete),
			zap.Bool("can_continue", verdict.CanContinue),
			zap.Float64("confidence", verdict.Confidence),
		)

		o.foldReflection(verdict, iteration)
		o.setContext(o.currentContext().WithPreviousOutput(output))
		o.checkpoint(ictx, iteration)
		o.metrics.RecordIteration(ictx)

		switch outcome.Decision {
		case oracle.DecisionComplete:
			return o.finish(ictx, ReasonGoalAchieved, completed, lastOutput, outcome.Reason, nil)
		case oracle.DecisionContinue:
			if o.cfg.CompletionMode == ModeSingleGoal {
				return o.finish(ictx, ReasonSingleGoalDone, completed, lastOutput, "single prompt processed", nil)
			}
			o.EnqueuePrompt(outcome.NextPrompt)
			o.emit(Event{Type: EventAutoContinue, Iteration: iteration, Message: outcome.NextPrompt})
			o.logger.Info(ictx, "auto-continuing")
		case oracle.DecisionHumanReview:
			return o.finish(ictx, ReasonHumanReview, completed, lastOutput, outcome.Reason, nil)
		case oracle.DecisionWait:
			return o.finish(ictx, ReasonWaitingForInput, completed, lastOutput, outcome.Reason, nil)
		default:
			return o.finish(ictx, ReasonStopped, completed, lastOutput, outcome.Reason, nil)
		}
	}

	return o.finish(ctx, ReasonMaxIterations, completed, lastOutput, "iteration budget exhausted", nil)
}

// verify runs the verifier with up to MaxOracleIterations refinement
// attempts. On exhaustion it degrades to "cannot verify": an incomplete
// verdict flows through the normal completion policy instead of crashing
// the run. The returned error is non-nil only for cancellation.
func (o *Orchestrator) verify(ctx context.Context, goal, output string) (*oracle.Verdict, error) {
	var lastErr error

	for attempt := 1; attempt <= o.cfg.MaxOracleIterations; attempt++ {
		o.setContext(o.currentContext().WithOracleIteration(attempt))

		vctx, cancel := context.WithTimeout(ctx, o.oracleCfg.Timeout)
		verdict, err := o.verifier.Verify(vctx, goal, output, o.oracleCfg)
		cancel()

		if err == nil && verdict != nil {
			return verdict, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			err = errors.New("verifier returned no verdict")
		}
		lastErr = err
		o.logger.Warn(ctx, "verification attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	o.emit(Event{
		Type:    EventOracleError,
		Message: "cannot verify, treating as incomplete",
		Err:     lastErr.Error(),
	})
	return &oracle.Verdict{
		IsComplete:  false,
		CanContinue: false,
		Analysis:    fmt.Sprintf("verification unavailable: %v", lastErr),
	}, nil
}

// foldReflection turns the verdict's reflection into a learning and an
// insight on the execution context.
func (o *Orchestrator) foldReflection(v *oracle.Verdict, iteration int) {
	r := v.Reflection
	if r == nil {
		return
	}

	summary := r.WhatWorked
	if summary == "" && len(r.Lessons) > 0 {
		summary = strings.Join(r.Lessons, "; ")
	}
	if summary == "" {
		summary = r.WhatToImprove
	}

	ec := o.currentContext()
	if summary != "" {
		ec = ec.WithLearning(execctx.Learning{
			Summary:    summary,
			Type:       execctx.LearningReflection,
			Iteration:  iteration,
			Confidence: v.Confidence,
		})
	}
	ec = ec.WithInsight(execctx.ReflectionInsight{
		WhatWorked:        r.WhatWorked,
		WhatToImprove:     r.WhatToImprove,
		Lessons:           append([]string(nil), r.Lessons...),
		SuggestedStrategy: r.SuggestedStrategy,
		Iteration:         iteration,
	})
	o.setContext(ec)
}

// buildPrompt augments the queued prompt with the accumulated context
// summary.
func (o *Orchestrator) buildPrompt(prompt string) string {
	summary := o.currentContext().Summary()
	if summary == "" {
		return prompt
	}
	return prompt + "\n\n## Session Context\n" + summary
}

// recordUsage feeds the saturation monitor and the token metrics.
func (o *Orchestrator) recordUsage(ctx context.Context, count int, source string) {
	if count <= 0 {
		return
	}
	o.monitor.RecordUsage(count, source)
	o.metrics.RecordTokens(ctx, count, source)

	st := o.monitor.CurrentState()
	o.metrics.RecordSaturation(ctx, st.Percentage, string(st.Level))
}

// maybeSummarize invokes the summarizer when the monitor recommends
// mitigation, then re-baselines the budget against the reduced context.
func (o *Orchestrator) maybeSummarize(ctx context.Context) {
	if o.summarizer == nil {
		return
	}

	st := o.monitor.CurrentState()
	if st.RecommendedAction == saturation.ActionNone {
		return
	}

	reduced, err := o.summarizer.Summarize(ctx, o.currentContext(), st)
	if err != nil {
		o.logger.Warn(ctx, "summarization failed", zap.Error(err))
		return
	}
	if reduced == nil {
		return
	}

	o.setContext(reduced)
	o.monitor.ResetIteration()
	o.monitor.RecordUsage(o.counter.Count(reduced.Summary()), "summary")
	o.logger.Info(ctx, "context summarized",
		zap.String("action", string(st.RecommendedAction)),
	)
}

// checkpoint emits the context summary when checkpointing is enabled.
func (o *Orchestrator) checkpoint(ctx context.Context, iteration int) {
	if !o.cfg.EnableCheckpointing {
		return
	}
	o.emit(Event{Type: EventCheckpoint, Iteration: iteration, Message: o.currentContext().Summary()})
	o.logger.Debug(ctx, "checkpoint emitted")
}

// finish emits the terminal event and builds the final report.
func (o *Orchestrator) finish(ctx context.Context, reason TerminalReason, iterations int, output, msg string, err error) (*Report, error) {
	ev := Event{Type: EventTerminal, Iteration: iterations, Reason: reason, Message: msg}
	if err != nil {
		ev.Err = err.Error()
		o.logger.Error(ctx, "run halted", zap.String("reason", string(reason)), zap.Error(err))
	} else {
		o.logger.Info(ctx, "run finished", zap.String("reason", string(reason)))
	}
	o.emit(ev)

	report := &Report{
		Reason:      reason,
		Iterations:  iterations,
		Completed:   reason == ReasonGoalAchieved,
		FinalOutput: output,
	}
	return report, err
}

// streamOutput forwards partial outputs as events.
func (o *Orchestrator) streamOutput(iteration int) task.OutputFunc {
	return func(out task.Output) {
		o.emit(Event{Type: EventOutputChunk, Iteration: iteration, Message: out.Content})
	}
}

// onSaturationEvent forwards monitor events into the progress stream.
func (o *Orchestrator) onSaturationEvent(ev saturation.Event) {
	switch e := ev.(type) {
	case saturation.ChangedEvent:
		st := e.State
		o.emit(Event{
			Type:       EventSaturation,
			Saturation: &st,
			Message:    fmt.Sprintf("saturation %s -> %s", e.Previous, e.Current),
		})
	case saturation.ActionRequiredEvent:
		st := e.State
		o.emit(Event{
			Type:       EventSaturation,
			Saturation: &st,
			Message:    fmt.Sprintf("action required: %s, free %d tokens", e.Action, e.TokensToFree),
		})
	}
}

// fallbackContext builds the fallback context from the live session state.
func (o *Orchestrator) fallbackContext(req task.Request) fallback.Context {
	ec := o.currentContext()
	return fallback.Context{
		Request:         req,
		PreviousOutputs: ec.PreviousOutputs(),
		Metadata:        ec.MetadataMap(),
	}
}

// emit delivers an event without blocking the loop.
func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
	}
}

func (o *Orchestrator) dequeuePrompt() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return "", false
	}
	p := o.queue[0]
	o.queue = o.queue[1:]
	return p, true
}

func (o *Orchestrator) peekPrompt() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return ""
	}
	return o.queue[0]
}

func (o *Orchestrator) currentContext() *execctx.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.execCtx
}

func (o *Orchestrator) setContext(ec *execctx.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.execCtx = ec
}

// isCancellation reports whether err stems from context cancellation or
// deadline expiry.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

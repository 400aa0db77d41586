// Package resilient wraps a task executor with retry, exponential backoff,
// and fallback substitution. Cancellation always propagates immediately and
// is never retried or substituted.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentloop/internal/fallback"
	"github.com/fyrsmithlabs/agentloop/internal/logging"
	"github.com/fyrsmithlabs/agentloop/internal/task"
	"github.com/fyrsmithlabs/agentloop/internal/telemetry"
)

// ErrUnsuccessfulResult marks an attempt that returned without error but
// with Success=false. It is retryable.
var ErrUnsuccessfulResult = errors.New("executor returned unsuccessful result")

// ExecutionFailedError is returned only after retries and fallback are both
// exhausted. It wraps the last failure.
type ExecutionFailedError struct {
	Attempts int
	Err      error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("execution failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExecutionFailedError) Unwrap() error {
	return e.Err
}

// ContextFunc builds the fallback context for a failed request. The
// orchestrator supplies one that carries the previous-outputs history and
// session metadata.
type ContextFunc func(req task.Request) fallback.Context

// Executor decorates an inner task executor with the retry policy.
type Executor struct {
	inner       task.Executor
	settings    Settings
	fallback    fallback.Strategy
	fallbackCtx ContextFunc
	logger      *logging.Logger
	metrics     *telemetry.Metrics

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithFallback sets the fallback strategy consulted after retries are
// exhausted.
func WithFallback(s fallback.Strategy) Option {
	return func(e *Executor) { e.fallback = s }
}

// WithFallbackContext sets the builder for the fallback context.
func WithFallbackContext(fn ContextFunc) Option {
	return func(e *Executor) { e.fallbackCtx = fn }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics sets the telemetry instruments. Nil metrics are no-ops.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New creates a resilient executor around inner.
func New(inner task.Executor, settings Settings, opts ...Option) (*Executor, error) {
	if inner == nil {
		return nil, errors.New("inner executor is required")
	}
	settings.ApplyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	e := &Executor{
		inner:    inner,
		settings: settings,
		fallbackCtx: func(req task.Request) fallback.Context {
			return fallback.Context{Request: req}
		},
		logger: logging.NewNop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute runs the inner executor with up to MaxRetries attempts. A failed
// attempt is one that returns an error or a result with Success=false.
// Cancellation short-circuits: no further retries, no fallback.
func (e *Executor) Execute(ctx context.Context, req task.Request, onOutput task.OutputFunc) (*task.Result, error) {
	var lastErr error

	for attempt := 1; attempt <= e.settings.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := e.inner.Execute(ctx, req, onOutput)
		e.metrics.RecordAttempt(ctx, attempt > 1)
		switch {
		case err != nil:
			if isCancellation(err) {
				return nil, err
			}
			lastErr = err
		case res != nil && res.Success:
			if attempt > 1 {
				e.logger.Info(ctx, "execution recovered after retries",
					zap.String("request_id", req.ID),
					zap.Int("attempts", attempt),
				)
			}
			return res, nil
		default:
			lastErr = ErrUnsuccessfulResult
			if res != nil && res.Error != "" {
				lastErr = fmt.Errorf("%w: %s", ErrUnsuccessfulResult, res.Error)
			}
		}

		if attempt == e.settings.MaxRetries {
			break
		}

		delay := e.settings.DelayForAttempt(attempt)
		e.logger.Debug(ctx, "attempt failed, backing off",
			zap.String("request_id", req.ID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	if res := e.tryFallback(ctx, req); res != nil {
		return res, nil
	}

	return nil, &ExecutionFailedError{
		Attempts: e.settings.MaxRetries,
		Err:      lastErr,
	}
}

// tryFallback consults the fallback strategy after exhaustion. A nil return
// means no substitute was available.
func (e *Executor) tryFallback(ctx context.Context, req task.Request) *task.Result {
	if e.fallback == nil {
		return nil
	}

	fc := e.fallbackCtx(req)
	if !e.fallback.CanProvide(fc) {
		return nil
	}
	res := e.fallback.Provide(fc)
	if res == nil {
		return nil
	}

	e.metrics.RecordFallback(ctx)
	e.logger.Warn(ctx, "retries exhausted, substituting fallback result",
		zap.String("request_id", req.ID),
	)
	return res
}

// isCancellation reports whether err stems from context cancellation or
// deadline expiry.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

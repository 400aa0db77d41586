package resilient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/agentloop/internal/fallback"
	"github.com/fyrsmithlabs/agentloop/internal/task"
	"github.com/fyrsmithlabs/agentloop/internal/telemetry"
)

// scriptedExecutor returns the queued outcomes in order, recording every
// invocation.
type scriptedExecutor struct {
	results []*task.Result
	errs    []error
	calls   int
}

func (s *scriptedExecutor) Execute(_ context.Context, _ task.Request, _ task.OutputFunc) (*task.Result, error) {
	i := s.calls
	s.calls++
	var res *task.Result
	var err error
	if i < len(s.results) {
		res = s.results[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return res, err
}

type stubStrategy struct {
	can    bool
	result *task.Result
	asked  int
}

func (s *stubStrategy) CanProvide(fallback.Context) bool { return s.can }
func (s *stubStrategy) Provide(fallback.Context) *task.Result {
	s.asked++
	return s.result
}
func (s *stubStrategy) Reset() {}

// noSleep replaces the backoff wait and records requested delays.
func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDelayForAttemptBackoff(t *testing.T) {
	s := DefaultSettings()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 8 * time.Second},
		{6, 10 * time.Second}, // capped
		{7, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.DelayForAttempt(tt.attempt), "attempt %d", tt.attempt)
	}

	// Monotone non-decreasing.
	for n := 1; n < 10; n++ {
		assert.GreaterOrEqual(t, s.DelayForAttempt(n+1), s.DelayForAttempt(n))
	}
}

func TestRetryThenSucceed(t *testing.T) {
	inner := &scriptedExecutor{
		results: []*task.Result{nil, nil, {Success: true, Output: "done"}},
		errs:    []error{errors.New("boom"), errors.New("boom again"), nil},
	}
	exec, err := New(inner, Settings{})
	require.NoError(t, err)
	var delays []time.Duration
	exec.sleep = noSleep(&delays)

	res, err := exec.Execute(context.Background(), task.Request{ID: "r1"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "done", res.Output)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, delays)
}

func TestUnsuccessfulResultIsRetried(t *testing.T) {
	inner := &scriptedExecutor{
		results: []*task.Result{
			{Success: false, Error: "invalid"},
			{Success: true, Output: "ok"},
		},
	}
	exec, err := New(inner, Settings{})
	require.NoError(t, err)
	var delays []time.Duration
	exec.sleep = noSleep(&delays)

	res, err := exec.Execute(context.Background(), task.Request{ID: "r2"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, inner.calls)
}

func TestExhaustionUsesFallback(t *testing.T) {
	inner := &scriptedExecutor{
		errs: []error{errors.New("e1"), errors.New("e2"), errors.New("e3")},
	}
	strategy := &stubStrategy{can: true, result: &task.Result{Success: true, Output: "fallback answer"}}
	exec, err := New(inner, Settings{}, WithFallback(strategy))
	require.NoError(t, err)
	var delays []time.Duration
	exec.sleep = noSleep(&delays)

	res, err := exec.Execute(context.Background(), task.Request{ID: "r3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", res.Output)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 1, strategy.asked)
}

func TestExhaustionWithoutFallbackFails(t *testing.T) {
	inner := &scriptedExecutor{
		errs: []error{errors.New("e1"), errors.New("e2"), errors.New("last failure")},
	}
	exec, err := New(inner, Settings{})
	require.NoError(t, err)
	var delays []time.Duration
	exec.sleep = noSleep(&delays)

	_, err = exec.Execute(context.Background(), task.Request{ID: "r4"}, nil)
	require.Error(t, err)

	var failed *ExecutionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 3, failed.Attempts)
	assert.Contains(t, failed.Error(), "last failure")
}

func TestFallbackCannotProvideFails(t *testing.T) {
	inner := &scriptedExecutor{
		errs: []error{errors.New("e1"), errors.New("e2"), errors.New("e3")},
	}
	strategy := &stubStrategy{can: false}
	exec, err := New(inner, Settings{}, WithFallback(strategy))
	require.NoError(t, err)
	var delays []time.Duration
	exec.sleep = noSleep(&delays)

	_, err = exec.Execute(context.Background(), task.Request{ID: "r5"}, nil)
	var failed *ExecutionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 0, strategy.asked)
}

func TestCancellationShortCircuits(t *testing.T) {
	inner := &scriptedExecutor{
		errs: []error{context.Canceled},
	}
	strategy := &stubStrategy{can: true, result: &task.Result{Success: true}}
	exec, err := New(inner, Settings{}, WithFallback(strategy))
	require.NoError(t, err)
	var delays []time.Duration
	exec.sleep = noSleep(&delays)

	_, err = exec.Execute(context.Background(), task.Request{ID: "r6"}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
	assert.Empty(t, delays)
	assert.Equal(t, 0, strategy.asked)
}

func TestCancelledContextSkipsAttempt(t *testing.T) {
	inner := &scriptedExecutor{results: []*task.Result{{Success: true}}}
	exec, err := New(inner, Settings{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = exec.Execute(ctx, task.Request{ID: "r7"}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, inner.calls)
}

func TestCancellationDuringBackoff(t *testing.T) {
	inner := &scriptedExecutor{
		errs: []error{errors.New("e1"), nil},
		results: []*task.Result{
			nil,
			{Success: true},
		},
	}
	exec, err := New(inner, Settings{})
	require.NoError(t, err)
	exec.sleep = func(_ context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, err = exec.Execute(context.Background(), task.Request{ID: "r8"}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestFallbackContextCarriesRequest(t *testing.T) {
	inner := &scriptedExecutor{
		errs: []error{errors.New("e1"), errors.New("e2"), errors.New("e3")},
	}
	var seen fallback.Context
	strategy := fallback.StrategyFunc{
		CanProvideFunc: func(fc fallback.Context) bool {
			seen = fc
			return false
		},
	}
	exec, err := New(inner, Settings{},
		WithFallback(strategy),
		WithFallbackContext(func(req task.Request) fallback.Context {
			return fallback.Context{
				Request:         req,
				PreviousOutputs: []string{"earlier output"},
			}
		}),
	)
	require.NoError(t, err)
	var delays []time.Duration
	exec.sleep = noSleep(&delays)

	_, _ = exec.Execute(context.Background(), task.Request{ID: "r9"}, nil)
	assert.Equal(t, "r9", seen.Request.ID)
	assert.Equal(t, []string{"earlier output"}, seen.PreviousOutputs)
}

func TestAttemptAndFallbackMetricsRecorded(t *testing.T) {
	tt := telemetry.NewTestTelemetry(t)
	m, err := telemetry.NewMetrics(tt.Telemetry)
	require.NoError(t, err)

	inner := &scriptedExecutor{
		errs: []error{errors.New("e1"), errors.New("e2")},
	}
	strategy := &stubStrategy{can: true, result: &task.Result{Success: true, Output: "substitute"}}
	exec, err := New(inner, Settings{MaxRetries: 2},
		WithFallback(strategy),
		WithMetrics(m),
	)
	require.NoError(t, err)
	var delays []time.Duration
	exec.sleep = noSleep(&delays)

	res, err := exec.Execute(context.Background(), task.Request{ID: "r10"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "substitute", res.Output)

	attempts, ok := tt.FindMetric(t, "agentloop.executor.attempts")
	require.True(t, ok)
	attemptSum, ok := attempts.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	// One data point per retry attribute: first attempt and the retry.
	require.Len(t, attemptSum.DataPoints, 2)
	var total int64
	for _, dp := range attemptSum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	fallbacks, ok := tt.FindMetric(t, "agentloop.fallbacks")
	require.True(t, ok)
	fbSum, ok := fallbacks.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, fbSum.DataPoints, 1)
	assert.Equal(t, int64(1), fbSum.DataPoints[0].Value)
}

func TestSettingsValidation(t *testing.T) {
	_, err := New(nil, Settings{})
	require.Error(t, err)

	inner := &scriptedExecutor{}
	_, err = New(inner, Settings{MaxRetries: -1})
	require.Error(t, err)

	_, err = New(inner, Settings{BackoffMultiplier: 0.5})
	require.Error(t, err)
}

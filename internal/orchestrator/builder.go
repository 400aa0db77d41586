package orchestrator

import (
	"errors"
	"fmt"

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

// Builder assembles an immutable Orchestrator.
type Builder struct {
	cfg        Config
	goal       string
	executor   task.Executor
	verifier   oracle.Verifier
	oracleCfg  oracle.Config
	strategy   fallback.Strategy
	resilience resilient.Settings
	satCfg     saturation.Config
	counter    tokens.Counter
	summarizer Summarizer
	logger     *logging.Logger
	metrics    *telemetry.Metrics
}

// NewBuilder creates a builder with engine defaults.
func NewBuilder() *Builder {
	return &Builder{cfg: NewDefaultConfig()}
}

// WithConfig replaces the declarative config wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithGoal sets the session goal. When unset, the first enqueued prompt
// becomes the goal.
func (b *Builder) WithGoal(goal string) *Builder {
	b.goal = goal
	return b
}

// WithExecutor sets the external task executor. Required.
func (b *Builder) WithExecutor(e task.Executor) *Builder {
	b.executor = e
	return b
}

// WithOracle sets the completion verifier and enables verification.
func (b *Builder) WithOracle(v oracle.Verifier, cfg oracle.Config) *Builder {
	b.verifier = v
	b.oracleCfg = cfg
	b.cfg.EnableOracle = true
	return b
}

// WithFallbackStrategy sets the fallback strategy and enables it.
func (b *Builder) WithFallbackStrategy(s fallback.Strategy) *Builder {
	b.strategy = s
	b.cfg.EnableFallbackStrategy = true
	return b
}

// WithMaxIterations bounds the loop.
func (b *Builder) WithMaxIterations(n int) *Builder {
	b.cfg.MaxIterations = n
	return b
}

// WithAutoContinue enables auto-continue on continuable oracle verdicts.
func (b *Builder) WithAutoContinue(enabled bool) *Builder {
	b.cfg.AutoContinueOnOracle = enabled
	return b
}

// WithAutoContinueOnIncomplete enables auto-continue even when the verdict
// does not claim continuability.
func (b *Builder) WithAutoContinueOnIncomplete(enabled bool) *Builder {
	b.cfg.AutoContinueOnIncomplete = enabled
	return b
}

// WithInferCanContinueFromComplete enables CanContinue inference.
func (b *Builder) WithInferCanContinueFromComplete(enabled bool) *Builder {
	b.cfg.InferCanContinueFromComplete = enabled
	return b
}

// WithCompletionMode selects the run-finished policy.
func (b *Builder) WithCompletionMode(mode CompletionMode) *Builder {
	b.cfg.CompletionMode = mode
	return b
}

// WithContinueOnFailure keeps the loop going past failed executions.
func (b *Builder) WithContinueOnFailure(enabled bool) *Builder {
	b.cfg.ContinueOnFailure = enabled
	return b
}

// WithConfidenceThresholds sets the completion confidence gate and the
// human-review floor. Zero disables either.
func (b *Builder) WithConfidenceThresholds(min, humanReview float64) *Builder {
	b.cfg.MinConfidenceThreshold = min
	b.cfg.HumanReviewConfidenceThreshold = humanReview
	return b
}

// WithResilience overrides the retry settings derived from the config.
func (b *Builder) WithResilience(s resilient.Settings) *Builder {
	b.resilience = s
	return b
}

// WithSaturation sets the token budget and thresholds.
func (b *Builder) WithSaturation(cfg saturation.Config) *Builder {
	b.satCfg = cfg
	return b
}

// WithTokenCounter sets the token counter. Defaults to the heuristic
// counter.
func (b *Builder) WithTokenCounter(c tokens.Counter) *Builder {
	b.counter = c
	return b
}

// WithSummarizer sets the context reducer invoked on saturation pressure.
func (b *Builder) WithSummarizer(s Summarizer) *Builder {
	b.summarizer = s
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l *logging.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetrics sets the telemetry instruments. Nil metrics are no-ops.
func (b *Builder) WithMetrics(m *telemetry.Metrics) *Builder {
	b.metrics = m
	return b
}

// Build validates the configuration and produces an orchestrator ready to
// Start.
func (b *Builder) Build() (*Orchestrator, error) {
	cfg := b.cfg
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if b.executor == nil {
		return nil, errors.New("executor is required")
	}
	if cfg.EnableOracle && b.verifier == nil {
		return nil, errors.New("oracle enabled but no verifier provided")
	}

	oracleCfg := b.oracleCfg
	oracleCfg.ApplyDefaults()
	if cfg.EnableOracle {
		if err := oracleCfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid oracle config: %w", err)
		}
	}

	o := &Orchestrator{
		cfg:        cfg,
		verifier:   b.verifier,
		oracleCfg:  oracleCfg,
		policy:     oracle.NewPolicy(cfg.policyConfig()),
		counter:    b.counter,
		summarizer: b.summarizer,
		logger:     b.logger,
		metrics:    b.metrics,
		goal:       b.goal,
		execCtx:    execctx.New(b.goal),
		events:     make(chan Event, eventBuffer),
	}
	if o.counter == nil {
		o.counter = tokens.HeuristicCounter{}
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}

	emitter := saturation.NewFanoutEmitter()
	emitter.Subscribe(o.onSaturationEvent)
	o.monitor = saturation.NewMonitor(b.satCfg, emitter)

	settings := b.resilience
	if settings == (resilient.Settings{}) {
		settings = cfg.resilienceSettings()
	}
	opts := []resilient.Option{
		resilient.WithLogger(o.logger),
		resilient.WithMetrics(b.metrics),
	}
	if cfg.EnableFallbackStrategy && b.strategy != nil {
		opts = append(opts,
			resilient.WithFallback(b.strategy),
			resilient.WithFallbackContext(o.fallbackContext),
		)
	}
	exec, err := resilient.New(b.executor, settings, opts...)
	if err != nil {
		return nil, fmt.Errorf("building resilient executor: %w", err)
	}
	o.executor = exec

	return o, nil
}

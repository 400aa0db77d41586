package orchestrator

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/agentloop/internal/oracle"
	"github.com/fyrsmithlabs/agentloop/internal/resilient"
)

// CompletionMode governs when the control loop considers its run finished.
type CompletionMode string

const (
	// ModeUntilQueueEmpty finishes once no pending prompts remain.
	ModeUntilQueueEmpty CompletionMode = "until_queue_empty"
	// ModeSingleGoal processes exactly one prompt and halts.
	ModeSingleGoal CompletionMode = "single_goal"
	// ModeUntilGoalAchieved runs until the oracle judges the goal complete.
	ModeUntilGoalAchieved CompletionMode = "until_goal_achieved"
)

// Config is the declarative policy for an autonomous run. Immutable once
// built; the orchestrator consumes it read-only.
type Config struct {
	// MaxIterations bounds the loop. Default: 10
	MaxIterations int `koanf:"max_iterations"`

	// EnableOracle turns on completion verification.
	EnableOracle bool `koanf:"enable_oracle"`

	// MaxOracleIterations bounds verification refinement attempts per
	// iteration. Default: 3
	MaxOracleIterations int `koanf:"max_oracle_iterations"`

	// CompletionMode selects the run-finished policy.
	// Default: until_queue_empty
	CompletionMode CompletionMode `koanf:"completion_mode"`

	// EnableCheckpointing emits a context-summary checkpoint event at the
	// end of every iteration.
	EnableCheckpointing bool `koanf:"enable_checkpointing"`

	// ContinueOnFailure records a failed execution as an error resolution
	// and advances to the next queued prompt instead of halting.
	ContinueOnFailure bool `koanf:"continue_on_failure"`

	// MinConfidenceThreshold gates acceptance of completion claims.
	// Zero disables the gate.
	MinConfidenceThreshold float64 `koanf:"min_confidence_threshold"`

	// HumanReviewConfidenceThreshold routes very-low-confidence completion
	// claims to human review. Zero disables.
	HumanReviewConfidenceThreshold float64 `koanf:"human_review_confidence_threshold"`

	// AutoContinueOnOracle auto-enqueues the next prompt when the oracle
	// says the goal is incomplete but continuable.
	AutoContinueOnOracle bool `koanf:"auto_continue_on_oracle"`

	// AutoContinueOnIncomplete auto-continues even when the verdict does
	// not claim continuability.
	AutoContinueOnIncomplete bool `koanf:"auto_continue_on_incomplete"`

	// InferCanContinueFromComplete treats IsComplete=false as implicitly
	// continuable when the verifier left CanContinue unset.
	InferCanContinueFromComplete bool `koanf:"infer_can_continue_from_complete"`

	// RetryOnFailureCount is the executor attempt budget. Default: 3
	RetryOnFailureCount int `koanf:"retry_on_failure_count"`

	// RetryDelay is the initial backoff delay. Default: 500ms
	RetryDelay time.Duration `koanf:"retry_delay"`

	// EnableFallbackStrategy consults the fallback strategy after retry
	// exhaustion.
	EnableFallbackStrategy bool `koanf:"enable_fallback_strategy"`
}

// NewDefaultConfig returns config with engine defaults.
func NewDefaultConfig() Config {
	return Config{
		MaxIterations:       10,
		MaxOracleIterations: 3,
		CompletionMode:      ModeUntilQueueEmpty,
		RetryOnFailureCount: 3,
		RetryDelay:          500 * time.Millisecond,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	defaults := NewDefaultConfig()

	if c.MaxIterations == 0 {
		c.MaxIterations = defaults.MaxIterations
	}
	if c.MaxOracleIterations == 0 {
		c.MaxOracleIterations = defaults.MaxOracleIterations
	}
	if c.CompletionMode == "" {
		c.CompletionMode = defaults.CompletionMode
	}
	if c.RetryOnFailureCount == 0 {
		c.RetryOnFailureCount = defaults.RetryOnFailureCount
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = defaults.RetryDelay
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.MaxOracleIterations < 1 {
		return fmt.Errorf("max_oracle_iterations must be >= 1, got %d", c.MaxOracleIterations)
	}
	switch c.CompletionMode {
	case ModeUntilQueueEmpty, ModeSingleGoal, ModeUntilGoalAchieved:
	default:
		return fmt.Errorf("unknown completion_mode %q", c.CompletionMode)
	}
	if c.MinConfidenceThreshold < 0 || c.MinConfidenceThreshold > 1 {
		return fmt.Errorf("min_confidence_threshold must be in [0,1], got %v", c.MinConfidenceThreshold)
	}
	if c.HumanReviewConfidenceThreshold < 0 || c.HumanReviewConfidenceThreshold > 1 {
		return fmt.Errorf("human_review_confidence_threshold must be in [0,1], got %v", c.HumanReviewConfidenceThreshold)
	}
	if c.RetryOnFailureCount < 1 {
		return fmt.Errorf("retry_on_failure_count must be >= 1, got %d", c.RetryOnFailureCount)
	}
	return nil
}

// policyConfig maps the declarative settings onto the completion policy.
func (c *Config) policyConfig() oracle.PolicyConfig {
	return oracle.PolicyConfig{
		AutoContinueOnOracle:           c.AutoContinueOnOracle,
		AutoContinueOnIncomplete:       c.AutoContinueOnIncomplete,
		InferCanContinueFromComplete:   c.InferCanContinueFromComplete,
		MinConfidenceThreshold:         c.MinConfidenceThreshold,
		HumanReviewConfidenceThreshold: c.HumanReviewConfidenceThreshold,
	}
}

// resilienceSettings derives retry settings from the declarative config.
func (c *Config) resilienceSettings() resilient.Settings {
	return resilient.Settings{
		MaxRetries:   c.RetryOnFailureCount,
		InitialDelay: c.RetryDelay,
	}
}

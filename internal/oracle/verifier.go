package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config configures the verifier call.
type Config struct {
	// Enabled gates whether verification is attempted at all.
	Enabled bool `koanf:"enabled"`

	// Model names the verifier model family, passed through opaquely.
	Model string `koanf:"model"`

	// MaxIterations bounds refinement attempts per verification.
	// Default: 3
	MaxIterations int `koanf:"max_iterations"`

	// Timeout bounds a single verifier call.
	// Default: 60s
	Timeout time.Duration `koanf:"timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	return nil
}

// Verifier judges whether an iteration's output satisfies the original goal.
// Implementations call out to an external model and are injected into the
// orchestrator.
type Verifier interface {
	// Verify returns the verdict for the given output. The verifier must
	// honor ctx cancellation.
	Verify(ctx context.Context, originalPrompt, executionOutput string, cfg Config) (*Verdict, error)

	// IsConfigured reports whether the verifier is ready to be called.
	IsConfigured() bool
}

// BuildVerificationPrompt constructs the verifier's input from the goal, the
// iteration output, and the accumulated context summary. Pure string
// assembly, independent of any network call.
func BuildVerificationPrompt(originalPrompt, executionOutput, contextSummary string) string {
	var b strings.Builder

	b.WriteString("You are verifying whether a task has been completed.\n\n")
	b.WriteString("## Original Goal\n")
	b.WriteString(strings.TrimSpace(originalPrompt))
	b.WriteString("\n\n")

	if contextSummary != "" {
		b.WriteString("## Accumulated Context\n")
		b.WriteString(strings.TrimSpace(contextSummary))
		b.WriteString("\n\n")
	}

	b.WriteString("## Latest Output\n")
	b.WriteString(strings.TrimSpace(executionOutput))
	b.WriteString("\n\n")

	b.WriteString("Judge the output against the goal. Respond with JSON fields: ")
	b.WriteString(`"is_complete" (bool), "can_continue" (bool), "analysis" (string), `)
	b.WriteString(`"next_prompt_suggestion" (string, optional), "confidence" (0.0-1.0).`)
	b.WriteString("\n")

	return b.String()
}

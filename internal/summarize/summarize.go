// Package summarize reduces a saturated execution context using extractive
// summarization: older outputs are condensed into their highest-scoring
// sentences while recent outputs, learnings, and human feedback survive
// verbatim.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/agentloop/internal/execctx"
	"github.com/fyrsmithlabs/agentloop/internal/saturation"
)

// Config tunes the reduction.
type Config struct {
	// TargetRatio is the desired size reduction of condensed outputs.
	// Default: 3.0 (condense to roughly a third)
	TargetRatio float64 `koanf:"target_ratio"`

	// KeepRecentOutputs is how many of the newest outputs survive verbatim.
	// Default: 1
	KeepRecentOutputs int `koanf:"keep_recent_outputs"`

	// KeepLearnings bounds the learnings carried into the reduced context.
	// Default: 10
	KeepLearnings int `koanf:"keep_learnings"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TargetRatio == 0 {
		c.TargetRatio = 3.0
	}
	if c.KeepRecentOutputs == 0 {
		c.KeepRecentOutputs = 1
	}
	if c.KeepLearnings == 0 {
		c.KeepLearnings = 10
	}
}

// Extractive condenses contexts without calling out to a model. It satisfies
// the orchestrator's Summarizer interface.
type Extractive struct {
	cfg Config
}

// NewExtractive creates an extractive summarizer.
func NewExtractive(cfg Config) *Extractive {
	cfg.ApplyDefaults()
	return &Extractive{cfg: cfg}
}

// Summarize returns a reduced context preserving the goal, session identity,
// human feedback, recent learnings, and error resolutions. Older outputs are
// folded into a single condensed digest.
func (e *Extractive) Summarize(_ context.Context, ec *execctx.Context, _ saturation.State) (*execctx.Context, error) {
	if ec == nil {
		return nil, fmt.Errorf("nil context")
	}

	reduced := execctx.NewWithSessionID(ec.Goal(), ec.SessionID()).
		WithIteration(ec.Iteration())

	for _, f := range ec.HumanFeedback() {
		reduced = reduced.WithHumanFeedback(f)
	}
	learnings := ec.Learnings()
	if len(learnings) > e.cfg.KeepLearnings {
		learnings = learnings[len(learnings)-e.cfg.KeepLearnings:]
	}
	for _, l := range learnings {
		reduced = reduced.WithLearning(l)
	}
	for _, r := range ec.ErrorResolutions() {
		reduced = reduced.WithErrorResolution(r)
	}

	outputs := ec.PreviousOutputs()
	keep := e.cfg.KeepRecentOutputs
	if keep > len(outputs) {
		keep = len(outputs)
	}
	older := outputs[:len(outputs)-keep]
	recent := outputs[len(outputs)-keep:]

	if len(older) > 0 {
		joined := strings.Join(older, "\n")
		target := int(float64(len(joined)) / e.cfg.TargetRatio)
		reduced = reduced.WithPreviousOutput(extract(joined, target))
	}
	for _, out := range recent {
		reduced = reduced.WithPreviousOutput(out)
	}

	return reduced, nil
}

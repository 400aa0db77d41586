// Package execctx accumulates everything an autonomous session has learned:
// summaries, error resolutions, human feedback, reflection insights, and a
// sliding window of recent outputs.
//
// Context values are immutable. Every With* method returns a new *Context and
// leaves the receiver untouched, so snapshots taken at any iteration remain
// valid for replay and debugging, and independent sessions never share
// mutable state.
package execctx

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxPreviousOutputs caps the sliding window of prior iteration outputs.
// Oldest entries are evicted first.
const MaxPreviousOutputs = 5

// MaxLearnings bounds the learning list so long sessions cannot grow the
// context without limit. Oldest learnings are evicted first.
const MaxLearnings = 50

// LearningType classifies where a learning came from.
type LearningType string

const (
	// LearningIteration is knowledge extracted from a regular iteration.
	LearningIteration LearningType = "iteration"
	// LearningReflection is knowledge extracted from an oracle reflection.
	LearningReflection LearningType = "reflection"
	// LearningHuman is knowledge supplied by a human reviewer.
	LearningHuman LearningType = "human"
)

// Learning is a single piece of accumulated knowledge.
type Learning struct {
	Summary    string       `json:"summary"`
	Type       LearningType `json:"type"`
	Iteration  int          `json:"iteration"`
	Confidence float64      `json:"confidence"`
}

// ErrorResolution records an execution error and how it was handled.
type ErrorResolution struct {
	ErrorSummary string `json:"error_summary"`
	Resolution   string `json:"resolution"`
	Category     string `json:"category"`
	Succeeded    bool   `json:"succeeded"`
}

// ReflectionInsight captures the oracle's self-assessment of an iteration.
type ReflectionInsight struct {
	WhatWorked        string   `json:"what_worked,omitempty"`
	WhatToImprove     string   `json:"what_to_improve,omitempty"`
	Lessons           []string `json:"lessons,omitempty"`
	SuggestedStrategy string   `json:"suggested_strategy,omitempty"`
	Iteration         int      `json:"iteration"`
}

// Context is the immutable per-session accumulator. Construct with New and
// derive updated values with the With* methods.
type Context struct {
	goal            string
	sessionID       string
	iteration       int
	oracleIteration int

	learnings       []Learning
	resolutions     []ErrorResolution
	previousOutputs []string
	humanFeedback   []string
	insights        []ReflectionInsight
	metadata        map[string]any
}

// New creates a fresh context for a session pursuing the given goal.
func New(goal string) *Context {
	return &Context{
		goal:      goal,
		sessionID: uuid.NewString(),
	}
}

// NewWithSessionID creates a context with an explicit session id, for
// resuming a session or for deterministic tests.
func NewWithSessionID(goal, sessionID string) *Context {
	return &Context{
		goal:      goal,
		sessionID: sessionID,
	}
}

// clone returns a shallow copy. Callers must replace any slice or map they
// intend to modify; shared backing arrays are never appended to in place
// because every With* copies the collection it touches.
func (c *Context) clone() *Context {
	dup := *c
	return &dup
}

// Goal returns the original session goal.
func (c *Context) Goal() string { return c.goal }

// SessionID returns the session identifier.
func (c *Context) SessionID() string { return c.sessionID }

// Iteration returns the current iteration number.
func (c *Context) Iteration() int { return c.iteration }

// OracleIteration returns the current oracle-iteration number.
func (c *Context) OracleIteration() int { return c.oracleIteration }

// Learnings returns a copy of the accumulated learnings.
func (c *Context) Learnings() []Learning {
	out := make([]Learning, len(c.learnings))
	copy(out, c.learnings)
	return out
}

// ErrorResolutions returns a copy of the recorded error resolutions.
func (c *Context) ErrorResolutions() []ErrorResolution {
	out := make([]ErrorResolution, len(c.resolutions))
	copy(out, c.resolutions)
	return out
}

// PreviousOutputs returns a copy of the recent-output window, oldest first.
func (c *Context) PreviousOutputs() []string {
	out := make([]string, len(c.previousOutputs))
	copy(out, c.previousOutputs)
	return out
}

// HumanFeedback returns a copy of the accumulated human feedback.
func (c *Context) HumanFeedback() []string {
	out := make([]string, len(c.humanFeedback))
	copy(out, c.humanFeedback)
	return out
}

// Insights returns a copy of the accumulated reflection insights.
func (c *Context) Insights() []ReflectionInsight {
	out := make([]ReflectionInsight, len(c.insights))
	copy(out, c.insights)
	return out
}

// Metadata returns the value stored under key, if any.
func (c *Context) Metadata(key string) (any, bool) {
	v, ok := c.metadata[key]
	return v, ok
}

// MetadataMap returns a copy of the full metadata map.
func (c *Context) MetadataMap() map[string]any {
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// WithIteration returns a context with the iteration counter set to n.
func (c *Context) WithIteration(n int) *Context {
	dup := c.clone()
	dup.iteration = n
	return dup
}

// WithNextIteration returns a context with the iteration counter advanced by one.
func (c *Context) WithNextIteration() *Context {
	return c.WithIteration(c.iteration + 1)
}

// WithOracleIteration returns a context with the oracle-iteration counter set to n.
func (c *Context) WithOracleIteration(n int) *Context {
	dup := c.clone()
	dup.oracleIteration = n
	return dup
}

// WithLearning returns a context with the learning appended. The list is
// bounded at MaxLearnings; the oldest entry is evicted first.
func (c *Context) WithLearning(l Learning) *Context {
	dup := c.clone()
	src := c.learnings
	if len(src) >= MaxLearnings {
		src = src[len(src)-MaxLearnings+1:]
	}
	dup.learnings = make([]Learning, len(src), len(src)+1)
	copy(dup.learnings, src)
	dup.learnings = append(dup.learnings, l)
	return dup
}

// WithErrorResolution returns a context with the resolution appended.
func (c *Context) WithErrorResolution(r ErrorResolution) *Context {
	dup := c.clone()
	dup.resolutions = make([]ErrorResolution, len(c.resolutions), len(c.resolutions)+1)
	copy(dup.resolutions, c.resolutions)
	dup.resolutions = append(dup.resolutions, r)
	return dup
}

// WithPreviousOutput returns a context with output appended to the recent
// window. The window holds at most MaxPreviousOutputs entries, oldest
// evicted first.
func (c *Context) WithPreviousOutput(output string) *Context {
	dup := c.clone()
	src := c.previousOutputs
	if len(src) >= MaxPreviousOutputs {
		src = src[len(src)-MaxPreviousOutputs+1:]
	}
	dup.previousOutputs = make([]string, len(src), len(src)+1)
	copy(dup.previousOutputs, src)
	dup.previousOutputs = append(dup.previousOutputs, output)
	return dup
}

// WithHumanFeedback returns a context with the feedback appended.
func (c *Context) WithHumanFeedback(feedback string) *Context {
	dup := c.clone()
	dup.humanFeedback = make([]string, len(c.humanFeedback), len(c.humanFeedback)+1)
	copy(dup.humanFeedback, c.humanFeedback)
	dup.humanFeedback = append(dup.humanFeedback, feedback)
	return dup
}

// WithInsight returns a context with the reflection insight appended.
func (c *Context) WithInsight(i ReflectionInsight) *Context {
	dup := c.clone()
	dup.insights = make([]ReflectionInsight, len(c.insights), len(c.insights)+1)
	copy(dup.insights, c.insights)
	dup.insights = append(dup.insights, i)
	return dup
}

// WithMetadata returns a context with key set to value. Existing keys are
// overwritten (last write wins).
func (c *Context) WithMetadata(key string, value any) *Context {
	dup := c.clone()
	dup.metadata = make(map[string]any, len(c.metadata)+1)
	for k, v := range c.metadata {
		dup.metadata[k] = v
	}
	dup.metadata[key] = value
	return dup
}

// summaryLearnings is how many recent learnings Summary includes.
const summaryLearnings = 5

// Summary renders a compact textual digest of the context, suitable for
// inclusion in a task prompt: the goal, recent learnings, error resolutions,
// and human feedback.
func (c *Context) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", c.goal)
	fmt.Fprintf(&b, "Iteration: %d\n", c.iteration)

	if n := len(c.learnings); n > 0 {
		b.WriteString("\nRecent learnings:\n")
		start := 0
		if n > summaryLearnings {
			start = n - summaryLearnings
		}
		for _, l := range c.learnings[start:] {
			fmt.Fprintf(&b, "- [%s] %s\n", l.Type, l.Summary)
		}
	}

	if len(c.resolutions) > 0 {
		b.WriteString("\nErrors encountered:\n")
		for _, r := range c.resolutions {
			status := "unresolved"
			if r.Succeeded {
				status = "resolved"
			}
			fmt.Fprintf(&b, "- %s (%s, %s)\n", r.ErrorSummary, r.Category, status)
		}
	}

	if len(c.humanFeedback) > 0 {
		b.WriteString("\nHuman feedback:\n")
		for _, f := range c.humanFeedback {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	return b.String()
}

// Package fallback supplies substitute results when normal execution cannot
// succeed after retries. Strategies are pure logic over the session's
// accumulated outputs; a strategy instance owns its own already-used set
// across calls within one session lifetime.
package fallback

import (
	"strings"

	"github.com/fyrsmithlabs/agentloop/internal/task"
)

// Metadata keys recognized by strategies.
const (
	// MetaMustGuess signals that the strategy must commit to a best guess
	// instead of producing another probing candidate.
	MetaMustGuess = "must_guess"
)

// Context carries the failed request plus the history a strategy may use to
// avoid repeating itself.
type Context struct {
	Request         task.Request
	PreviousOutputs []string
	Metadata        map[string]any
}

// MustGuess reports whether the metadata signals a forced best guess.
func (c Context) MustGuess() bool {
	v, ok := c.Metadata[MetaMustGuess]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Strategy provides fallback results when the executor is exhausted.
type Strategy interface {
	// CanProvide reports whether a fallback is available for this context.
	CanProvide(fc Context) bool

	// Provide returns a substitute result, or nil when the strategy is
	// exhausted for this context.
	Provide(fc Context) *task.Result

	// Reset clears the strategy's already-used memory for a new session.
	Reset()
}

// StrategyFunc adapts bare functions to the Strategy interface. Nil members
// behave as "cannot provide" and no-op.
type StrategyFunc struct {
	CanProvideFunc func(fc Context) bool
	ProvideFunc    func(fc Context) *task.Result
	ResetFunc      func()
}

func (s StrategyFunc) CanProvide(fc Context) bool {
	return s.CanProvideFunc != nil && s.CanProvideFunc(fc)
}

func (s StrategyFunc) Provide(fc Context) *task.Result {
	if s.ProvideFunc == nil {
		return nil
	}
	return s.ProvideFunc(fc)
}

func (s StrategyFunc) Reset() {
	if s.ResetFunc != nil {
		s.ResetFunc()
	}
}

// ConceptExtractor turns a candidate value into the concepts it covers,
// used for overlap detection. The default treats the whole lowercased value
// as a single concept.
type ConceptExtractor func(value string) []string

func defaultConcepts(value string) []string {
	return []string{strings.ToLower(strings.TrimSpace(value))}
}

// result wraps a candidate as a successful substitute outcome.
func result(candidate string) *task.Result {
	return &task.Result{Success: true, Output: candidate}
}

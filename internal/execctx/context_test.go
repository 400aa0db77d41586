package execctx

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx := New("ship the feature")

	assert.Equal(t, "ship the feature", ctx.Goal())
	assert.NotEmpty(t, ctx.SessionID())
	assert.Equal(t, 0, ctx.Iteration())
	assert.Empty(t, ctx.Learnings())
	assert.Empty(t, ctx.PreviousOutputs())
}

func TestNewWithSessionID(t *testing.T) {
	ctx := NewWithSessionID("goal", "sess-001")
	assert.Equal(t, "sess-001", ctx.SessionID())
}

func TestWithLearning_Immutable(t *testing.T) {
	original := New("goal")
	updated := original.WithLearning(Learning{
		Summary:    "tests must run before commit",
		Type:       LearningIteration,
		Iteration:  1,
		Confidence: 0.9,
	})

	require.NotSame(t, original, updated)
	assert.Empty(t, original.Learnings(), "original must not be mutated")
	require.Len(t, updated.Learnings(), 1)
	assert.Equal(t, "tests must run before commit", updated.Learnings()[0].Summary)
}

func TestWithLearning_Bounded(t *testing.T) {
	ctx := New("goal")
	for i := 0; i < MaxLearnings+10; i++ {
		ctx = ctx.WithLearning(Learning{Summary: fmt.Sprintf("l%d", i), Type: LearningIteration})
	}

	learnings := ctx.Learnings()
	require.Len(t, learnings, MaxLearnings)
	// Oldest evicted first: the first retained entry is l10.
	assert.Equal(t, "l10", learnings[0].Summary)
	assert.Equal(t, fmt.Sprintf("l%d", MaxLearnings+9), learnings[len(learnings)-1].Summary)
}

func TestWithPreviousOutput_WindowCap(t *testing.T) {
	ctx := New("goal")
	for i := 0; i < 8; i++ {
		ctx = ctx.WithPreviousOutput(fmt.Sprintf("output-%d", i))
	}

	window := ctx.PreviousOutputs()
	require.Len(t, window, MaxPreviousOutputs)
	// FIFO: oldest evicted, arrival order preserved.
	assert.Equal(t, []string{"output-3", "output-4", "output-5", "output-6", "output-7"}, window)
}

func TestWithPreviousOutput_OriginalWindowUnchanged(t *testing.T) {
	ctx := New("goal").WithPreviousOutput("a").WithPreviousOutput("b")
	snapshot := ctx.PreviousOutputs()

	_ = ctx.WithPreviousOutput("c").WithPreviousOutput("d")

	assert.Equal(t, snapshot, ctx.PreviousOutputs())
}

func TestWithErrorResolution(t *testing.T) {
	original := New("goal")
	updated := original.WithErrorResolution(ErrorResolution{
		ErrorSummary: "executor timeout",
		Resolution:   "retried with backoff",
		Category:     "transient",
		Succeeded:    true,
	})

	assert.Empty(t, original.ErrorResolutions())
	require.Len(t, updated.ErrorResolutions(), 1)
	assert.True(t, updated.ErrorResolutions()[0].Succeeded)
}

func TestWithMetadata_LastWriteWins(t *testing.T) {
	ctx := New("goal").
		WithMetadata("mustGuess", false).
		WithMetadata("mustGuess", true)

	v, ok := ctx.Metadata("mustGuess")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestWithMetadata_OriginalUnchanged(t *testing.T) {
	original := New("goal").WithMetadata("k", "v1")
	_ = original.WithMetadata("k", "v2")

	v, ok := original.Metadata("k")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestWithIterationCounters(t *testing.T) {
	ctx := New("goal")
	next := ctx.WithNextIteration().WithNextIteration().WithOracleIteration(3)

	assert.Equal(t, 0, ctx.Iteration())
	assert.Equal(t, 2, next.Iteration())
	assert.Equal(t, 3, next.OracleIteration())
}

func TestWithHumanFeedbackAndInsight(t *testing.T) {
	ctx := New("goal").
		WithHumanFeedback("prefer smaller diffs").
		WithInsight(ReflectionInsight{WhatWorked: "incremental edits", Iteration: 2})

	require.Len(t, ctx.HumanFeedback(), 1)
	require.Len(t, ctx.Insights(), 1)
	assert.Equal(t, "incremental edits", ctx.Insights()[0].WhatWorked)
}

func TestSummary(t *testing.T) {
	ctx := New("refactor the parser").
		WithNextIteration().
		WithLearning(Learning{Summary: "grammar is LL(1)", Type: LearningIteration}).
		WithErrorResolution(ErrorResolution{ErrorSummary: "flaky test", Category: "transient", Succeeded: true}).
		WithHumanFeedback("keep the public API stable")

	s := ctx.Summary()
	assert.Contains(t, s, "Goal: refactor the parser")
	assert.Contains(t, s, "Iteration: 1")
	assert.Contains(t, s, "grammar is LL(1)")
	assert.Contains(t, s, "flaky test (transient, resolved)")
	assert.Contains(t, s, "keep the public API stable")
}

func TestSummary_RecentLearningsOnly(t *testing.T) {
	ctx := New("goal")
	for i := 0; i < 10; i++ {
		ctx = ctx.WithLearning(Learning{Summary: fmt.Sprintf("learning-%d", i), Type: LearningIteration})
	}

	s := ctx.Summary()
	assert.False(t, strings.Contains(s, "learning-0"), "old learnings should be omitted")
	assert.Contains(t, s, "learning-9")
}

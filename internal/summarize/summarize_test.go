package summarize

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentloop/internal/execctx"
	"github.com/fyrsmithlabs/agentloop/internal/saturation"
)

func longText() string {
	sentences := []string{
		"The parser rejects unterminated string literals with a clear position.",
		"Benchmarks show the tokenizer spends most time in rune decoding.",
		"Refactoring the scanner removed two allocations per token.",
		"Error recovery now resynchronizes at statement boundaries.",
		"The grammar change required regenerating all golden files.",
		"Follow-up work should profile the symbol table under load.",
	}
	return strings.Join(sentences, " ")
}

func TestSummarizeCondensesOlderOutputs(t *testing.T) {
	ec := execctx.New("fix the parser")
	for i := 0; i < 4; i++ {
		ec = ec.WithPreviousOutput(longText())
	}
	ec = ec.WithPreviousOutput("most recent output")

	s := NewExtractive(Config{})
	reduced, err := s.Summarize(context.Background(), ec, saturation.State{})
	require.NoError(t, err)

	outputs := reduced.PreviousOutputs()
	require.Len(t, outputs, 2)
	assert.Equal(t, "most recent output", outputs[1])
	assert.Less(t, len(outputs[0]), 4*len(longText()))
	assert.NotEmpty(t, outputs[0])
}

func TestSummarizePreservesIdentityAndFeedback(t *testing.T) {
	ec := execctx.New("goal").
		WithIteration(7).
		WithHumanFeedback("prefer smaller diffs").
		WithLearning(execctx.Learning{Summary: "tests are slow", Type: execctx.LearningIteration}).
		WithErrorResolution(execctx.ErrorResolution{ErrorSummary: "flaky test", Succeeded: true}).
		WithPreviousOutput("only output")

	s := NewExtractive(Config{})
	reduced, err := s.Summarize(context.Background(), ec, saturation.State{})
	require.NoError(t, err)

	assert.Equal(t, "goal", reduced.Goal())
	assert.Equal(t, ec.SessionID(), reduced.SessionID())
	assert.Equal(t, 7, reduced.Iteration())
	assert.Equal(t, []string{"prefer smaller diffs"}, reduced.HumanFeedback())
	require.Len(t, reduced.Learnings(), 1)
	require.Len(t, reduced.ErrorResolutions(), 1)
	assert.Equal(t, []string{"only output"}, reduced.PreviousOutputs())
}

func TestSummarizeBoundsLearnings(t *testing.T) {
	ec := execctx.New("goal")
	for i := 0; i < 20; i++ {
		ec = ec.WithLearning(execctx.Learning{Summary: "learning", Iteration: i})
	}

	s := NewExtractive(Config{KeepLearnings: 5})
	reduced, err := s.Summarize(context.Background(), ec, saturation.State{})
	require.NoError(t, err)

	learnings := reduced.Learnings()
	require.Len(t, learnings, 5)
	assert.Equal(t, 19, learnings[4].Iteration)
}

func TestSummarizeNilContext(t *testing.T) {
	s := NewExtractive(Config{})
	_, err := s.Summarize(context.Background(), nil, saturation.State{})
	require.Error(t, err)
}

func TestExtractKeepsHighScoringSentences(t *testing.T) {
	text := longText()
	out := extract(text, len(text)/3)

	assert.NotEmpty(t, out)
	assert.Less(t, len(out), len(text))
	// Sentence order is preserved even though selection is score-ranked.
	first := strings.Index(out, "parser")
	last := strings.Index(out, "profile")
	if first >= 0 && last >= 0 {
		assert.Less(t, first, last)
	}
}

func TestExtractShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "tiny", extract("tiny", 100))
	assert.Equal(t, "", extract("", 10))
}

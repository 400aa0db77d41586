package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicCounter(t *testing.T) {
	c := HeuristicCounter{}

	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("ab"))
	assert.Equal(t, 1, c.Count("abcd"))
	assert.Equal(t, 2, c.Count("abcde"))
	assert.Equal(t, 25, c.Count(string(make([]byte, 100))))
}

func TestTiktokenCounterDeterministic(t *testing.T) {
	c, err := NewTiktokenCounter("")
	require.NoError(t, err)

	text := "The quick brown fox jumps over the lazy dog."
	first := c.Count(text)
	assert.Greater(t, first, 0)
	assert.Equal(t, first, c.Count(text))

	assert.Equal(t, 0, c.Count(""))
}

func TestTiktokenCounterUnknownEncoding(t *testing.T) {
	_, err := NewTiktokenCounter("not-an-encoding")
	assert.Error(t, err)
}

func TestCounterFunc(t *testing.T) {
	c := CounterFunc(func(text string) int { return len(text) })
	assert.Equal(t, 5, c.Count("hello"))
}

// Package tokens counts tokens for saturation accounting. Counting is
// deterministic for a given text and encoding.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter converts text to a token count.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to the Counter interface.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int { return f(text) }

// TiktokenCounter counts with a BPE codec. Accurate for OpenAI-family
// models and a close approximation elsewhere.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTiktokenCounter creates a counter for the given encoding. An empty
// encoding selects cl100k_base.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc := tokenizer.Cl100kBase
	if encoding != "" {
		enc = tokenizer.Encoding(encoding)
	}
	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", enc, err)
	}
	return &TiktokenCounter{codec: codec}, nil
}

// Count returns the number of tokens in text. Falls back to the heuristic
// on encode failure rather than dropping the usage sample.
func (c *TiktokenCounter) Count(text string) int {
	n, err := c.codec.Count(text)
	if err != nil {
		return heuristicCount(text)
	}
	return n
}

// HeuristicCounter approximates roughly four characters per token. Cheap
// and dependency-free, for tests and for models without a known encoding.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	return heuristicCount(text)
}

func heuristicCount(text string) int {
	if text == "" {
		return 0
	}
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

package fallback

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/fyrsmithlabs/agentloop/internal/task"
)

// Pool is a group of candidate values that only applies once all of its
// required keywords have appeared in the accumulated context.
type Pool struct {
	// Name identifies the pool in logs and tests.
	Name string
	// Priority orders pools; higher priority pools are tried first.
	Priority int
	// RequiredKeywords must all appear in the accumulated context before
	// this pool applies. An empty list makes the pool unconditional.
	RequiredKeywords []string
	// Items are the candidate values, in preference order.
	Items []string
}

// GuessRule maps a keyword condition to a committed best guess. A rule with
// no conditions acts as the default.
type GuessRule struct {
	Conditions []string
	Guess      string
}

// PoolStrategy selects fallback candidates from keyword-gated pools, with an
// ordered rule table for forced best guesses and a legacy flat list as the
// last resort.
type PoolStrategy struct {
	mu sync.Mutex

	pools       []Pool
	defaultPool []string
	legacy      []string
	guessRules  []GuessRule

	used map[string]struct{} // normalized form of every served item
}

// NewPoolStrategy creates a pool strategy. Any of the argument slices may be
// empty; an entirely empty strategy can never provide.
func NewPoolStrategy(pools []Pool, defaultPool, legacy []string, guessRules []GuessRule) *PoolStrategy {
	s := &PoolStrategy{
		pools:       make([]Pool, len(pools)),
		defaultPool: append([]string(nil), defaultPool...),
		legacy:      append([]string(nil), legacy...),
		guessRules:  append([]GuessRule(nil), guessRules...),
		used:        make(map[string]struct{}),
	}
	copy(s.pools, pools)
	// Priority first, then specificity: more required keywords win.
	sort.SliceStable(s.pools, func(i, j int) bool {
		if s.pools[i].Priority != s.pools[j].Priority {
			return s.pools[i].Priority > s.pools[j].Priority
		}
		return len(s.pools[i].RequiredKeywords) > len(s.pools[j].RequiredKeywords)
	})
	return s
}

// CanProvide reports whether the strategy can produce a value for this context.
func (s *PoolStrategy) CanProvide(fc Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(fc) != ""
}

// Provide returns the selected candidate, or nil when exhausted.
func (s *PoolStrategy) Provide(fc Context) *task.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.selectLocked(fc)
	if candidate == "" {
		return nil
	}
	s.used[normalize(candidate)] = struct{}{}
	return result(candidate)
}

// Reset clears the already-used set.
func (s *PoolStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = make(map[string]struct{})
}

// selectLocked applies the selection order: forced guess, keyword pools,
// default pool, legacy flat list.
func (s *PoolStrategy) selectLocked(fc Context) string {
	accumulated := accumulatedKeywords(fc.PreviousOutputs)

	if fc.MustGuess() {
		if guess := s.deduceGuess(accumulated); guess != "" {
			return guess
		}
	}

	for _, pool := range s.pools {
		if !containsAll(accumulated, pool.RequiredKeywords) {
			continue
		}
		if item := s.firstUnused(pool.Items, fc); item != "" {
			return item
		}
	}

	if item := s.firstUnused(s.defaultPool, fc); item != "" {
		return item
	}

	return s.firstUnused(s.legacy, fc)
}

// deduceGuess evaluates the guess rules in order. The first rule whose
// condition set is a subset of the accumulated context wins; an empty
// condition set matches anything and so acts as the default.
func (s *PoolStrategy) deduceGuess(accumulated map[string]struct{}) string {
	for _, rule := range s.guessRules {
		if containsAll(accumulated, rule.Conditions) {
			return rule.Guess
		}
	}
	return ""
}

// firstUnused finds the first item not yet served and not a duplicate of
// anything in the previous outputs.
func (s *PoolStrategy) firstUnused(items []string, fc Context) string {
	for _, item := range items {
		norm := normalize(item)
		if _, ok := s.used[norm]; ok {
			continue
		}
		if s.isDuplicate(norm, fc) {
			continue
		}
		return item
	}
	return ""
}

// isDuplicate checks the normalized item against served items and previous
// outputs: containment either way, or sharing two or more significant words.
func (s *PoolStrategy) isDuplicate(norm string, fc Context) bool {
	for served := range s.used {
		if duplicates(norm, served) {
			return true
		}
	}
	for _, out := range fc.PreviousOutputs {
		if duplicates(norm, normalize(out)) {
			return true
		}
	}
	return false
}

// commonPrefixes are interrogative lead-ins stripped during normalization so
// that rephrasings of the same probe compare equal.
var commonPrefixes = []string{
	"is it ", "is the ", "does it ", "does the ", "can it ", "can the ",
	"do you ", "are you ", "is there ", "would you ", "could it ",
}

// normalize lowercases, strips question marks and common prefixes, and
// collapses whitespace.
func normalize(s string) string {
	out := strings.ToLower(strings.TrimSpace(s))
	out = strings.ReplaceAll(out, "?", "")
	for _, prefix := range commonPrefixes {
		if strings.HasPrefix(out, prefix) {
			out = strings.TrimPrefix(out, prefix)
			break
		}
	}
	return strings.Join(strings.Fields(out), " ")
}

// stopwords are excluded from significant-word comparison.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "it": {}, "is": {}, "are": {}, "was": {},
	"that": {}, "this": {}, "with": {}, "have": {}, "has": {}, "does": {},
	"can": {}, "you": {}, "your": {}, "and": {}, "or": {}, "not": {},
	"for": {}, "from": {}, "into": {}, "than": {}, "then": {}, "they": {},
}

// significantWords returns the domain-significant words of a normalized
// string, with surrounding punctuation trimmed.
func significantWords(norm string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(norm) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(w) <= 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

// duplicates reports whether two normalized strings describe the same probe.
func duplicates(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	wa := significantWords(a)
	wb := significantWords(b)
	shared := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			shared++
			if shared >= 2 {
				return true
			}
		}
	}
	return false
}

// accumulatedKeywords collects the significant words appearing anywhere in
// the previous outputs, the context against which pool requirements and
// guess-rule conditions are matched.
func accumulatedKeywords(outputs []string) map[string]struct{} {
	acc := make(map[string]struct{})
	for _, out := range outputs {
		for w := range significantWords(normalize(out)) {
			acc[w] = struct{}{}
		}
	}
	return acc
}

// containsAll reports whether every keyword is present in the accumulated set.
func containsAll(accumulated map[string]struct{}, keywords []string) bool {
	for _, kw := range keywords {
		if _, ok := accumulated[strings.ToLower(kw)]; !ok {
			return false
		}
	}
	return true
}

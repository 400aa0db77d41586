package fallback

import (
	"strings"
	"sync"

	"github.com/fyrsmithlabs/agentloop/internal/task"
)

// ListStrategy walks a fixed candidate list in order, skipping any candidate
// whose concepts overlap with concepts already seen in previous outputs or
// in prior picks. Exhausted lists yield nil.
type ListStrategy struct {
	mu         sync.Mutex
	candidates []string
	extract    ConceptExtractor
	used       map[string]struct{}
}

// NewListStrategy creates a list strategy over candidates. A nil extractor
// uses the whole lowercased candidate as its single concept.
func NewListStrategy(candidates []string, extract ConceptExtractor) *ListStrategy {
	if extract == nil {
		extract = defaultConcepts
	}
	list := make([]string, len(candidates))
	copy(list, candidates)
	return &ListStrategy{
		candidates: list,
		extract:    extract,
		used:       make(map[string]struct{}),
	}
}

// CanProvide reports whether any unused, non-overlapping candidate remains.
func (s *ListStrategy) CanProvide(fc Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLocked(fc) != ""
}

// Provide returns the next candidate in list order, or nil when exhausted.
func (s *ListStrategy) Provide(fc Context) *task.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.nextLocked(fc)
	if candidate == "" {
		return nil
	}
	for _, concept := range s.extract(candidate) {
		s.used[concept] = struct{}{}
	}
	return result(candidate)
}

// Reset clears the already-used concept set.
func (s *ListStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = make(map[string]struct{})
}

// nextLocked finds the first candidate whose concepts are all unseen.
func (s *ListStrategy) nextLocked(fc Context) string {
	seen := s.seenConcepts(fc)
	for _, candidate := range s.candidates {
		if !s.overlaps(candidate, seen) {
			return candidate
		}
	}
	return ""
}

// seenConcepts merges concepts from prior picks with concepts occurring in
// the session's previous outputs.
func (s *ListStrategy) seenConcepts(fc Context) map[string]struct{} {
	seen := make(map[string]struct{}, len(s.used))
	for c := range s.used {
		seen[c] = struct{}{}
	}
	for _, out := range fc.PreviousOutputs {
		lower := strings.ToLower(out)
		for _, candidate := range s.candidates {
			for _, concept := range s.extract(candidate) {
				if concept != "" && strings.Contains(lower, concept) {
					seen[concept] = struct{}{}
				}
			}
		}
	}
	return seen
}

func (s *ListStrategy) overlaps(candidate string, seen map[string]struct{}) bool {
	for _, concept := range s.extract(candidate) {
		if _, ok := seen[concept]; ok {
			return true
		}
	}
	return false
}

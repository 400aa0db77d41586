package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListStrategy_NoRepeat(t *testing.T) {
	candidates := []string{"alpha", "beta", "gamma", "delta"}
	s := NewListStrategy(candidates, nil)
	fc := Context{}

	// N distinct, non-overlapping items come back in pool order.
	for i, want := range candidates {
		require.True(t, s.CanProvide(fc), "CanProvide before pick %d", i)
		res := s.Provide(fc)
		require.NotNil(t, res, "pick %d", i)
		assert.True(t, res.Success)
		assert.Equal(t, want, res.Output)
	}

	// The (N+1)-th request is nil.
	assert.False(t, s.CanProvide(fc))
	assert.Nil(t, s.Provide(fc))
}

func TestListStrategy_SkipsConceptsSeenInPreviousOutputs(t *testing.T) {
	s := NewListStrategy([]string{"alpha", "beta"}, nil)
	fc := Context{PreviousOutputs: []string{"we already tried ALPHA and it failed"}}

	res := s.Provide(fc)
	require.NotNil(t, res)
	assert.Equal(t, "beta", res.Output)
}

func TestListStrategy_CustomExtractor(t *testing.T) {
	// Tokenizing extractor: candidates sharing a token overlap.
	extract := func(v string) []string {
		return []string{v[:1]} // first letter as the concept
	}
	s := NewListStrategy([]string{"apple pie", "apricot jam", "banana bread"}, extract)
	fc := Context{}

	first := s.Provide(fc)
	require.NotNil(t, first)
	assert.Equal(t, "apple pie", first.Output)

	// "apricot jam" shares concept "a" with the served pick.
	second := s.Provide(fc)
	require.NotNil(t, second)
	assert.Equal(t, "banana bread", second.Output)
}

func TestListStrategy_Reset(t *testing.T) {
	s := NewListStrategy([]string{"alpha"}, nil)
	fc := Context{}

	require.NotNil(t, s.Provide(fc))
	require.Nil(t, s.Provide(fc))

	s.Reset()
	res := s.Provide(fc)
	require.NotNil(t, res)
	assert.Equal(t, "alpha", res.Output)
}

func TestPoolStrategy_PoolGatedByKeywords(t *testing.T) {
	pools := []Pool{
		{
			Name:             "animals",
			Priority:         1,
			RequiredKeywords: []string{"animal"},
			Items:            []string{"Does it have fur?"},
		},
	}
	s := NewPoolStrategy(pools, []string{"Is it bigger than a breadbox?"}, nil, nil)

	// Without "animal" in context, only the default pool applies.
	res := s.Provide(Context{})
	require.NotNil(t, res)
	assert.Equal(t, "Is it bigger than a breadbox?", res.Output)

	s.Reset()

	// Once the context mentions the keyword, the gated pool wins.
	fc := Context{PreviousOutputs: []string{"Yes, it is a living animal."}}
	res = s.Provide(fc)
	require.NotNil(t, res)
	assert.Equal(t, "Does it have fur?", res.Output)
}

func TestPoolStrategy_SpecificityOrder(t *testing.T) {
	pools := []Pool{
		{Name: "broad", Priority: 0, RequiredKeywords: []string{"animal"}, Items: []string{"Is it wild?"}},
		{Name: "narrow", Priority: 0, RequiredKeywords: []string{"animal", "domestic"}, Items: []string{"Is it a common household pet?"}},
	}
	s := NewPoolStrategy(pools, nil, nil, nil)

	fc := Context{PreviousOutputs: []string{"Yes: an animal, specifically a domestic one."}}
	res := s.Provide(fc)
	require.NotNil(t, res)
	// Same priority: the pool with more required keywords is tried first.
	assert.Equal(t, "Is it a common household pet?", res.Output)
}

func TestPoolStrategy_PriorityBeatsSpecificity(t *testing.T) {
	pools := []Pool{
		{Name: "low", Priority: 0, RequiredKeywords: []string{"animal", "domestic"}, Items: []string{"Is it a common household pet?"}},
		{Name: "high", Priority: 5, RequiredKeywords: []string{"animal"}, Items: []string{"Is it dangerous?"}},
	}
	s := NewPoolStrategy(pools, nil, nil, nil)

	fc := Context{PreviousOutputs: []string{"Yes, an animal, a domestic one."}}
	res := s.Provide(fc)
	require.NotNil(t, res)
	assert.Equal(t, "Is it dangerous?", res.Output)
}

func TestPoolStrategy_MustGuessRuleOrder(t *testing.T) {
	rules := []GuessRule{
		{Conditions: []string{"animal", "domestic"}, Guess: "a house cat"},
		{Conditions: []string{"animal"}, Guess: "a wolf"},
		{Conditions: nil, Guess: "a rock"}, // default rule
	}
	s := NewPoolStrategy(nil, nil, nil, rules)

	tests := []struct {
		name    string
		outputs []string
		want    string
	}{
		{"both keywords", []string{"It is an animal and fully domestic."}, "a house cat"},
		{"one keyword", []string{"It is some kind of animal."}, "a wolf"},
		{"no keywords", []string{"No idea what this thing could ever be."}, "a rock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.Reset()
			fc := Context{
				PreviousOutputs: tt.outputs,
				Metadata:        map[string]any{MetaMustGuess: true},
			}
			res := s.Provide(fc)
			require.NotNil(t, res)
			assert.Equal(t, tt.want, res.Output)
		})
	}
}

func TestPoolStrategy_MustGuessFallsThroughWithoutRules(t *testing.T) {
	s := NewPoolStrategy(nil, []string{"Is it heavy?"}, nil, nil)
	fc := Context{Metadata: map[string]any{MetaMustGuess: true}}

	res := s.Provide(fc)
	require.NotNil(t, res)
	assert.Equal(t, "Is it heavy?", res.Output)
}

func TestPoolStrategy_LegacyListLastResort(t *testing.T) {
	s := NewPoolStrategy(nil, []string{"Is it heavy?"}, []string{"Is it blue?"}, nil)
	fc := Context{}

	first := s.Provide(fc)
	require.NotNil(t, first)
	assert.Equal(t, "Is it heavy?", first.Output)

	second := s.Provide(fc)
	require.NotNil(t, second)
	assert.Equal(t, "Is it blue?", second.Output)

	assert.Nil(t, s.Provide(fc))
}

func TestPoolStrategy_DuplicateByContainment(t *testing.T) {
	s := NewPoolStrategy(nil, []string{"Does it have fur?", "Is it heavy?"}, nil, nil)
	fc := Context{PreviousOutputs: []string{"Asked before: does it have fur? Answer was no."}}

	res := s.Provide(fc)
	require.NotNil(t, res)
	assert.Equal(t, "Is it heavy?", res.Output)
}

func TestPoolStrategy_DuplicateBySharedWords(t *testing.T) {
	// "electronic device" shares two significant words with the served item.
	s := NewPoolStrategy(nil, []string{
		"Is it an electronic device used daily?",
		"Is it some kind of electronic device?",
		"Is it edible?",
	}, nil, nil)
	fc := Context{}

	first := s.Provide(fc)
	require.NotNil(t, first)
	assert.Equal(t, "Is it an electronic device used daily?", first.Output)

	second := s.Provide(fc)
	require.NotNil(t, second)
	assert.Equal(t, "Is it edible?", second.Output)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Is it ALIVE?", "alive"},
		{"does it   have   fur?", "have fur"},
		{"plain value", "plain value"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize(tt.in), "normalize(%q)", tt.in)
	}
}

func TestPoolStrategy_ExhaustionAcrossAllTiers(t *testing.T) {
	pools := []Pool{{Name: "p", Items: []string{"one"}}}
	s := NewPoolStrategy(pools, []string{"two"}, []string{"three"}, nil)
	fc := Context{}

	var got []string
	for i := 0; i < 3; i++ {
		res := s.Provide(fc)
		require.NotNil(t, res, "pick %d", i)
		got = append(got, res.Output)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
	assert.False(t, s.CanProvide(fc))
	assert.Nil(t, s.Provide(fc))
}

package summarize

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// minSentenceLen filters fragments produced by abbreviations and ellipses.
const minSentenceLen = 10

// extract reduces text to roughly targetLen bytes by keeping the
// highest-scoring sentences in their original order. Scoring favors early
// position, medium length, and words that are rare across the text.
func extract(text string, targetLen int) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return text
	}
	if len(text) <= targetLen {
		return text
	}

	scores := scoreSentences(sentences)

	type ranked struct {
		index int
		score float64
	}
	order := make([]ranked, len(sentences))
	for i, s := range scores {
		order[i] = ranked{index: i, score: s}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].score > order[j].score })

	keep := make(map[int]bool, len(sentences))
	used := 0
	for _, r := range order {
		n := len(sentences[r.index])
		if used+n > targetLen && used > 0 {
			continue
		}
		keep[r.index] = true
		used += n + 1
	}
	// Never return empty output, even for a tiny target.
	if len(keep) == 0 {
		keep[order[0].index] = true
	}

	var out []string
	for i, s := range sentences {
		if keep[i] {
			out = append(out, s)
		}
	}
	return strings.Join(out, " ")
}

// splitSentences breaks text on terminal punctuation.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			s := strings.TrimSpace(current.String())
			if len(s) >= minSentenceLen {
				sentences = append(sentences, s)
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// scoreSentences assigns an importance score to each sentence.
func scoreSentences(sentences []string) []float64 {
	freq := wordFrequency(sentences)
	scores := make([]float64, len(sentences))

	for i, sentence := range sentences {
		words := strings.Fields(sentence)

		// Earlier sentences carry more context.
		position := 1.0 / (float64(i) + 1.0)

		// Prefer medium-length sentences, peaking around 20 words.
		length := math.Min(float64(len(words))/20.0, 1.0)
		if len(words) > 20 {
			length = math.Max(1.0-(float64(len(words))-20.0)/50.0, 0.1)
		}

		// Inverse-frequency score rewards distinctive vocabulary.
		rarity := 0.0
		for _, w := range words {
			w = normalizeWord(w)
			if n, ok := freq[w]; ok && n > 1 {
				rarity += 1.0 / float64(n)
			}
		}
		if len(words) > 0 {
			rarity /= float64(len(words))
		}

		scores[i] = position*0.3 + length*0.4 + rarity*0.3
	}
	return scores
}

func wordFrequency(sentences []string) map[string]int {
	freq := make(map[string]int)
	for _, sentence := range sentences {
		for _, w := range strings.Fields(sentence) {
			w = normalizeWord(w)
			if len(w) > 2 {
				freq[w]++
			}
		}
	}
	return freq
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
}

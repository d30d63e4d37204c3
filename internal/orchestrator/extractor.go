package orchestrator

import (
	"sort"
	"strings"
	"unicode"
)

// Extractor pulls candidate concept names out of conversation text.
type Extractor interface {
	Extract(text string, max int) []string
}

// FrequencyExtractor is a cheap, model-free extractor: it counts non-stopword
// tokens and returns the most frequent ones. Ties resolve to the token that
// appeared first, so results are deterministic.
type FrequencyExtractor struct {
	stopwords map[string]bool
}

// NewFrequencyExtractor builds an extractor with a default English stopword
// list.
func NewFrequencyExtractor() *FrequencyExtractor {
	words := []string{
		"the", "and", "for", "are", "but", "not", "you", "all", "can", "have",
		"that", "this", "with", "from", "they", "will", "what", "when", "how",
		"was", "were", "been", "being", "would", "could", "should", "there",
		"their", "them", "then", "than", "its", "it's", "into", "about",
		"just", "also", "some", "any", "our", "your", "his", "her", "had",
		"has", "did", "does", "doing", "very", "more", "most", "out", "over",
		"because", "which", "who", "whom", "why", "where", "while", "each",
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return &FrequencyExtractor{stopwords: set}
}

// Extract returns up to max concept candidates, most frequent first.
func (e *FrequencyExtractor) Extract(text string, max int) []string {
	if max <= 0 {
		max = 5
	}

	counts := make(map[string]int)
	firstSeen := make(map[string]int)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-'
	})
	for i, tok := range tokens {
		tok = strings.Trim(tok, "-")
		if len(tok) < 3 || e.stopwords[tok] {
			continue
		}
		if _, seen := counts[tok]; !seen {
			firstSeen[tok] = i
		}
		counts[tok]++
	}

	candidates := make([]string, 0, len(counts))
	for tok := range counts {
		candidates = append(candidates, tok)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return firstSeen[a] < firstSeen[b]
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates
}

var _ Extractor = (*FrequencyExtractor)(nil)

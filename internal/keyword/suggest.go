package keyword

import (
	"strings"
	"unicode/utf8"
)

// Suggester proposes corrections for query terms missing from a vocabulary.
type Suggester struct {
	vocab map[string]uint64
}

// NewSuggester builds a suggester over vocab (term -> document frequency).
func NewSuggester(vocab map[string]uint64) *Suggester {
	return &Suggester{vocab: vocab}
}

// Correct replaces every unknown term of query with its best suggestion.
// The second result is false when nothing was changed.
func (s *Suggester) Correct(query string) (string, bool) {
	terms := tokenizeQuery(query)
	changed := false
	for i, t := range terms {
		if _, ok := s.vocab[t]; ok {
			continue
		}
		if best, ok := s.Suggest(t); ok {
			terms[i] = best
			changed = true
		}
	}
	if !changed {
		return query, false
	}
	return strings.Join(terms, " "), true
}

// Suggest returns the closest known term. Closer wins, then more frequent,
// then alphabetical.
func (s *Suggester) Suggest(term string) (string, bool) {
	n := utf8.RuneCountInString(term)
	maxDist := 2
	if n <= 4 {
		maxDist = 1
	}
	best, bestDist, bestFreq := "", maxDist+1, uint64(0)
	for cand, freq := range s.vocab {
		diff := utf8.RuneCountInString(cand) - n
		if diff > maxDist || -diff > maxDist {
			continue
		}
		d := levenshtein(term, cand)
		if d == 0 || d > maxDist {
			continue
		}
		if d < bestDist || (d == bestDist && (freq > bestFreq || (freq == bestFreq && cand < best))) {
			best, bestDist, bestFreq = cand, d, freq
		}
	}
	return best, best != ""
}

// levenshtein is the edit distance between a and b, counted in runes.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

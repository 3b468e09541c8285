package textutil

import (
	"regexp"
	"strings"
)

// tokenSplitPattern matches non-alphanumeric character sequences for tokenization.
var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9']+`)

// Tokenize splits text into lowercase word tokens. Apostrophes are kept so
// contractions count as single words.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	raw := tokenSplitPattern.Split(lowered, -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		token = strings.Trim(token, "'")
		if token == "" {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// Divergence measures the lexical change between a reference text and a
// candidate rewording as a ratio in [0, 1].
func Divergence(reference, candidate string) float64 {
	ref := Tokenize(reference)
	cand := Tokenize(candidate)
	if len(ref) == 0 && len(cand) == 0 {
		return 0
	}
	longest := len(ref)
	if len(cand) > longest {
		longest = len(cand)
	}
	if longest == 0 {
		return 0
	}
	return float64(editDistance(ref, cand)) / float64(longest)
}

// editDistance computes the Levenshtein distance over token sequences using
// a two-row rolling buffer.
func editDistance(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

package services

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// levenshteinDistance calculates the edit distance between two strings.
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// Single-row DP to keep allocation bounded
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = minInt(
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

func minInt(a, b, c int) int {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}

// nameSimilarity scores how alike two column names are, in [0,1].
// Names are lowercased and singularized before comparison so that
// plural/singular variants of the same word score as identical.
func nameSimilarity(a, b string) float64 {
	a = inflection.Singular(strings.ToLower(a))
	b = inflection.Singular(strings.ToLower(b))

	if a == b {
		return 1.0
	}

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}

	dist := levenshteinDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// jaccardOverlap computes |A ∩ B| / |A ∪ B| over two sample value sets.
// Empty sets score zero: no evidence is not evidence of a match.
func jaccardOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[v] = struct{}{}
	}

	setB := make(map[string]struct{}, len(b))
	intersection := 0
	for _, v := range b {
		if _, dup := setB[v]; dup {
			continue
		}
		setB[v] = struct{}{}
		if _, ok := setA[v]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// clampConfidence bounds a confidence score to [0,1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

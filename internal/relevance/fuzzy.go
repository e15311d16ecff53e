package relevance

import "strings"

// Levenshtein returns the edit distance between a and b, counting runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n, m := len(ra), len(rb)

	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, m+1)
		d[i][0] = i
	}
	for j := 0; j <= m; j++ {
		d[0][j] = j
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min(
				d[i-1][j]+1,
				d[i][j-1]+1,
				d[i-1][j-1]+cost,
			)
		}
	}
	return d[n][m]
}

// FuzzyMatch reports whether some window of text, len(term)+maxDistance runes
// long, is within maxDistance edits of term, where maxDistance is a third of
// the term length. Terms shorter than three runes must appear verbatim.
func FuzzyMatch(term, text string) bool {
	rt, rx := []rune(term), []rune(text)
	if len(rt) == 0 {
		return false
	}

	maxDistance := len(rt) / 3
	if maxDistance == 0 {
		return strings.Contains(text, term)
	}

	window := len(rt) + maxDistance
	if len(rx) <= window {
		return Levenshtein(term, text) <= maxDistance
	}
	for i := 0; i+window <= len(rx); i++ {
		if Levenshtein(term, string(rx[i:i+window])) <= maxDistance {
			return true
		}
	}
	return false
}

// Package relevance implements query normalization, typo-tolerant matching
// and the additive relevance score used to rank search hits.
package relevance

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sedirimou/Gameva-sub003/pkg/slug"
)

// Wildcard is the query that matches every document.
const Wildcard = "*"

// Normalize returns a lowercased copy of raw with accents folded, surrounding
// whitespace trimmed and inner whitespace runs collapsed to one space.
func Normalize(raw string) string {
	// A Caser carries state and must not be shared between goroutines.
	lower := cases.Lower(language.Und).String(raw)
	return strings.Join(strings.Fields(slug.Fold(lower)), " ")
}

// Tokenize splits the normalized query into its terms. Empty input yields an
// empty, non-nil slice.
func Tokenize(raw string) []string {
	terms := strings.Fields(Normalize(raw))
	if terms == nil {
		return []string{}
	}
	return terms
}

// IsMatchAll reports whether raw selects every document.
func IsMatchAll(raw string) bool {
	q := strings.TrimSpace(raw)
	return q == "" || q == Wildcard
}

// Query is a normalized query ready for scoring.
type Query struct {
	Full  string
	Terms []string
}

// NewQuery normalizes and tokenizes raw. A match-all query has no terms.
func NewQuery(raw string) Query {
	if IsMatchAll(raw) {
		return Query{Terms: []string{}}
	}
	full := Normalize(raw)
	return Query{Full: full, Terms: strings.Fields(full)}
}

// MatchAll reports whether the query selects every document.
func (q Query) MatchAll() bool { return len(q.Terms) == 0 }

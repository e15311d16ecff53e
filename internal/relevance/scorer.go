package relevance

import (
	"strings"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
)

// Full-query weights.
const (
	WeightNameExact       = 100
	WeightNamePrefix      = 90
	WeightNameContains    = 80
	WeightPlatformExact   = 75
	WeightDescriptionFull = 60
	WeightGenreFull       = 50
)

// Per-term weights.
const (
	WeightTermName        = 15
	WeightTermDescription = 10
	WeightTermPlatform    = 8
	WeightTermGenre       = 5
	WeightFuzzyName       = 2
	WeightFuzzyDesc       = 1
)

// Fields holds the normalized searchable fields of a document.
type Fields struct {
	Name        string
	Description string
	Platform    string
	Genres      []string
}

// Prepare normalizes the searchable fields of doc.
func Prepare(doc *domain.SearchableDocument) Fields {
	genres := make([]string, len(doc.Genres))
	for i, g := range doc.Genres {
		genres[i] = Normalize(g)
	}
	return Fields{
		Name:        Normalize(doc.Name),
		Description: Normalize(doc.Description),
		Platform:    Normalize(doc.Platform),
		Genres:      genres,
	}
}

// Score computes the relevance of doc for q. Zero means no match.
func Score(doc *domain.SearchableDocument, q Query) int {
	return ScoreFields(Prepare(doc), q)
}

// ScoreFields computes the relevance of prepared fields for q. Every
// component is summed.
func ScoreFields(f Fields, q Query) int {
	if q.MatchAll() {
		return 0
	}

	score := 0
	full := q.Full

	if f.Name == full {
		score += WeightNameExact
	}
	if strings.HasPrefix(f.Name, full) {
		score += WeightNamePrefix
	}
	if strings.Contains(f.Name, full) {
		score += WeightNameContains
	}
	if f.Platform == full {
		score += WeightPlatformExact
	}
	if strings.Contains(f.Description, full) {
		score += WeightDescriptionFull
	}
	if anyContains(f.Genres, full) {
		score += WeightGenreFull
	}

	for _, term := range q.Terms {
		if strings.Contains(f.Name, term) {
			score += WeightTermName
		} else if FuzzyMatch(term, f.Name) {
			score += WeightFuzzyName
		}
		if strings.Contains(f.Description, term) {
			score += WeightTermDescription
		} else if f.Description != "" && FuzzyMatch(term, f.Description) {
			score += WeightFuzzyDesc
		}
		if strings.Contains(f.Platform, term) {
			score += WeightTermPlatform
		}
		if anyContains(f.Genres, term) {
			score += WeightTermGenre
		}
	}

	return score
}

func anyContains(values []string, s string) bool {
	for _, v := range values {
		if strings.Contains(v, s) {
			return true
		}
	}
	return false
}

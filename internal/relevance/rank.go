package relevance

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
)

// Rank orders hits for the given sort option. Relevance ordering is score
// descending, then createdAt descending, then id descending. Every other
// option falls back to that ordering for ties.
func Rank(hits []domain.Hit, sort string) {
	slices.SortStableFunc(hits, Comparator(sort))
}

// Comparator returns the ordering used by Rank.
func Comparator(sort string) func(a, b domain.Hit) int {
	switch sort {
	case domain.SortPriceAsc:
		return func(a, b domain.Hit) int {
			return cmp.Or(cmp.Compare(a.FinalPrice, b.FinalPrice), byRelevance(a, b))
		}
	case domain.SortPriceDesc:
		return func(a, b domain.Hit) int {
			return cmp.Or(cmp.Compare(b.FinalPrice, a.FinalPrice), byRelevance(a, b))
		}
	case domain.SortNewest:
		return func(a, b domain.Hit) int {
			return cmp.Or(cmp.Compare(b.CreatedAt, a.CreatedAt), CompareIDs(b.ID, a.ID))
		}
	case domain.SortNameAsc:
		return func(a, b domain.Hit) int {
			return cmp.Or(
				cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
				byRelevance(a, b),
			)
		}
	default:
		return byRelevance
	}
}

func byRelevance(a, b domain.Hit) int {
	return cmp.Or(
		cmp.Compare(b.Score(), a.Score()),
		cmp.Compare(b.CreatedAt, a.CreatedAt),
		CompareIDs(b.ID, a.ID),
	)
}

// CompareIDs compares two document ids, numerically when both are integers.
func CompareIDs(a, b string) int {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(ai, bi)
	}
	return strings.Compare(a, b)
}

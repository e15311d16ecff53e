package elasticsearch

import (
	"strings"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/relevance"
	"github.com/sedirimou/Gameva-sub003/pkg/pagination"
)

// aggField returns the field facet counts are aggregated on.
func aggField(field string) string {
	switch field {
	case domain.FieldPlatform, domain.FieldGenres:
		return field + ".keyword"
	default:
		return field
	}
}

// filterField returns the field a filter is evaluated against.
func filterField(field string) string {
	switch field {
	case domain.FieldPrice, domain.FieldFinalPrice:
		return field
	default:
		return field + ".norm"
	}
}

func buildFilter(f domain.Filter) map[string]any {
	switch f.Op {
	case domain.OpGte, domain.OpLte:
		op := "gte"
		if f.Op == domain.OpLte {
			op = "lte"
		}
		return map[string]any{
			"range": map[string]any{filterField(f.Field): map[string]any{op: f.Number()}},
		}
	default:
		if f.Field == domain.FieldPrice || f.Field == domain.FieldFinalPrice {
			return map[string]any{"term": map[string]any{f.Field: f.Number()}}
		}
		values := make([]string, len(f.Values))
		for i, v := range f.Values {
			values[i] = strings.ToLower(v)
		}
		return map[string]any{"terms": map[string]any{filterField(f.Field): values}}
	}
}

func filterClauses(filters []domain.Filter, skipField string) []any {
	clauses := make([]any, 0, len(filters))
	for _, f := range filters {
		if f.Field == skipField {
			continue
		}
		clauses = append(clauses, buildFilter(f))
	}
	return clauses
}

// buildSearchQuery constructs the query DSL. Filters go into post_filter so
// that each facet aggregation can apply every filter except its own field's.
func buildSearchQuery(query *domain.SearchQuery, params pagination.Params) map[string]any {
	filters := domain.NormalizeFilters(query.Filters)

	q := relevance.NewQuery(query.Query)
	var must any
	if q.MatchAll() {
		must = map[string]any{"match_all": map[string]any{}}
	} else {
		must = relevanceQuery(q)
	}

	aggs := make(map[string]any, len(domain.FacetFields))
	for _, field := range domain.FacetFields {
		aggs[field] = map[string]any{
			"filter": map[string]any{
				"bool": map[string]any{"filter": filterClauses(filters, field)},
			},
			"aggs": map[string]any{
				"values": map[string]any{
					"terms": map[string]any{"field": aggField(field), "size": 50},
				},
			},
		}
	}

	body := map[string]any{
		"query":            map[string]any{"bool": map[string]any{"must": []any{must}}},
		"from":             params.Offset,
		"size":             params.PerPage,
		"track_total_hits": true,
		"sort":             buildSort(query.Sort),
		"aggs":             aggs,
		"highlight": map[string]any{
			"pre_tags":  []string{"<mark>"},
			"post_tags": []string{"</mark>"},
			"fields": map[string]any{
				"name":        map[string]any{"number_of_fragments": 0},
				"description": map[string]any{"number_of_fragments": 0},
			},
		},
	}
	if !q.MatchAll() {
		// Scoring rules target keyword subfields; highlight the text fields
		// by their terms instead.
		body["highlight"].(map[string]any)["highlight_query"] = map[string]any{
			"multi_match": map[string]any{
				"query":  q.Full,
				"fields": []string{"name", "description"},
			},
		}
	}
	if len(filters) > 0 {
		body["post_filter"] = map[string]any{
			"bool": map[string]any{"filter": filterClauses(filters, "")},
		}
	}
	return body
}

// Folded keyword fields the scoring rules match against. Their normalizer
// folds values the way relevance.Normalize folds queries.
const (
	nameFolded        = "name.sort"
	descriptionFolded = "description.fold"
	platformFolded    = "platform.norm"
	genresFolded      = "genres.norm"
)

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// relevanceQuery expresses relevance.ScoreFields as a function_score query.
// Each scoring rule is a filter carrying its weight; matching weights are
// summed and replace the text score, and a document no rule matches is not
// a hit.
func relevanceQuery(q relevance.Query) map[string]any {
	var (
		functions []any
		should    []any
	)
	add := func(weight int, filter map[string]any) {
		if filter == nil {
			return
		}
		functions = append(functions, map[string]any{"filter": filter, "weight": weight})
		should = append(should, filter)
	}

	full := q.Full
	add(relevance.WeightNameExact, term(nameFolded, full))
	add(relevance.WeightNamePrefix, map[string]any{"prefix": map[string]any{nameFolded: full}})
	add(relevance.WeightNameContains, contains(nameFolded, full))
	add(relevance.WeightPlatformExact, term(platformFolded, full))
	add(relevance.WeightDescriptionFull, contains(descriptionFolded, full))
	add(relevance.WeightGenreFull, contains(genresFolded, full))

	for _, t := range q.Terms {
		add(relevance.WeightTermName, contains(nameFolded, t))
		add(relevance.WeightFuzzyName, fuzzyOnly("name", nameFolded, t))
		add(relevance.WeightTermDescription, contains(descriptionFolded, t))
		add(relevance.WeightFuzzyDesc, fuzzyOnly("description", descriptionFolded, t))
		add(relevance.WeightTermPlatform, contains(platformFolded, t))
		add(relevance.WeightTermGenre, contains(genresFolded, t))
	}

	return map[string]any{
		"function_score": map[string]any{
			"query": map[string]any{
				"bool": map[string]any{"should": should, "minimum_should_match": 1},
			},
			"functions":  functions,
			"score_mode": "sum",
			"boost_mode": "replace",
			"min_score":  1,
		},
	}
}

func term(field, value string) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func contains(field, value string) map[string]any {
	return map[string]any{
		"wildcard": map[string]any{field: map[string]any{"value": "*" + wildcardEscaper.Replace(value) + "*"}},
	}
}

// fuzzyOnly matches documents whose text field is within the typo budget of
// relevance.FuzzyMatch of t but whose folded field does not contain t. Terms
// too short for a typo get no rule. Elasticsearch caps fuzziness at 2.
func fuzzyOnly(textField, foldedField, t string) map[string]any {
	maxDistance := len([]rune(t)) / 3
	if maxDistance == 0 {
		return nil
	}
	return map[string]any{
		"bool": map[string]any{
			"must": []any{map[string]any{
				"fuzzy": map[string]any{textField: map[string]any{
					"value":          t,
					"fuzziness":      min(maxDistance, 2),
					"transpositions": false,
				}},
			}},
			"must_not": []any{contains(foldedField, t)},
		},
	}
}

// idSort orders numeric ids by value, like relevance.CompareIDs. Ids that
// are not integers have no id.num and fall back to keyword order.
func idSort() []any {
	return []any{
		map[string]any{"id.num": map[string]any{"order": "desc", "missing": "_last"}},
		map[string]any{"id": "desc"},
	}
}

// buildSort mirrors relevance.Rank: every option ends with the
// score, createdAt, id tie-break.
func buildSort(sortBy string) []any {
	tieBreak := append([]any{
		map[string]any{"_score": "desc"},
		map[string]any{"createdAt": "desc"},
	}, idSort()...)

	var primary []any
	switch sortBy {
	case domain.SortPriceAsc:
		primary = []any{map[string]any{"finalPrice": "asc"}}
	case domain.SortPriceDesc:
		primary = []any{map[string]any{"finalPrice": "desc"}}
	case domain.SortNewest:
		return append([]any{map[string]any{"createdAt": "desc"}}, idSort()...)
	case domain.SortNameAsc:
		primary = []any{map[string]any{"name.sort": "asc"}}
	}
	return append(primary, tieBreak...)
}

// buildSuggestQuery matches name prefixes through the edge n-gram subfield.
func buildSuggestQuery(prefix string, limit int) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"match": map[string]any{
				"name.autocomplete": map[string]any{"query": prefix, "operator": "and"},
			},
		},
		"size":    limit,
		"_source": []string{"name"},
		"sort": []any{
			map[string]any{"_score": "desc"},
			map[string]any{"createdAt": "desc"},
		},
	}
}

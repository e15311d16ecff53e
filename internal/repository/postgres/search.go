package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/relevance"
	"github.com/sedirimou/Gameva-sub003/pkg/database"
	"github.com/sedirimou/Gameva-sub003/pkg/pagination"
)

// Folded column expressions. Queries are normalized the same way before
// being bound, so comparisons are accent, case and spacing insensitive on
// both sides.
var (
	foldedName     = fold(`p.name`)
	foldedDesc     = fold(`COALESCE(p.description, '')`)
	foldedPlatform = fold(`COALESCE(p.platform, '')`)
)

const finalPriceExpr = `COALESCE(p.sale_price, p.price)`

// fold lowercases col, strips accents, trims it and collapses inner
// whitespace runs to one space.
func fold(col string) string {
	return `btrim(regexp_replace(lower(unaccent(` + col + `)), '\s+', ' ', 'g'))`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchRepository ranks active products in SQL with the same additive
// weights the index uses, minus the fuzzy bonus.
type SearchRepository struct {
	db database.DBTX
}

// NewSearchRepository creates a new relational search fallback.
func NewSearchRepository(db database.DBTX) *SearchRepository {
	return &SearchRepository{db: db}
}

// Search ranks products against the query. A match-all query lists every
// active product newest first.
func (r *SearchRepository) Search(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	return r.run(ctx, "FallbackSearch", relevance.NewQuery(query.Query), query)
}

// Recent lists active products matching the filters, newest first unless
// another sort is requested.
func (r *SearchRepository) Recent(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	return r.run(ctx, "RecentProducts", relevance.NewQuery(""), query)
}

func (r *SearchRepository) run(ctx context.Context, op string, q relevance.Query, query *domain.SearchQuery) (_ *domain.SearchResult, err error) {
	start := time.Now()
	params := pagination.Resolve(query.Page, query.PerPage, query.Offset)
	filters := domain.NormalizeFilters(query.Filters)

	sort := query.Sort
	if !domain.IsValidSort(sort) || (q.MatchAll() && sort == domain.SortRelevance) {
		sort = domain.SortNewest
	}

	var b argList
	scoreSQL := scoreExpr(q, &b)
	where := []string{"p.is_active"}
	if !q.MatchAll() {
		where = append(where, "s.score > 0")
	}
	where = append(where, filterConditions(filters, "", &b)...)

	stmt := fmt.Sprintf(`
		SELECT %s, s.score, count(*) OVER() AS total_count
		FROM products p
		CROSS JOIN LATERAL (SELECT %s AS score) s
		WHERE %s
		ORDER BY %s
		LIMIT %s OFFSET %s`,
		productColumns, scoreSQL, strings.Join(where, " AND "), orderBy(sort),
		b.add(params.PerPage), b.add(params.Offset),
	)

	ctx, end := database.TraceQuery(ctx, op, stmt)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, stmt, b...)
	if err != nil {
		return nil, fmt.Errorf("fallback search: %w", err)
	}
	defer rows.Close()

	var (
		hits  = make([]domain.Hit, 0, params.PerPage)
		total int
	)
	for rows.Next() {
		var (
			p     domain.Product
			score int
		)
		if err := rows.Scan(append(productDest(&p), &score, &total)...); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		doc, err := domain.DocumentFromProduct(&p)
		if err != nil {
			// Rows the index would also reject are left out of the page.
			continue
		}
		hit := domain.NewHit(doc, score)
		hit.Highlights = relevance.Highlights(doc.Name, doc.Description, q)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}

	// OFFSET past the end returns no rows and hence no total.
	if len(hits) == 0 && params.Offset > 0 {
		if total, err = r.count(ctx, q, filters); err != nil {
			return nil, err
		}
	}

	facets, err := r.facets(ctx, q, filters)
	if err != nil {
		return nil, err
	}

	return &domain.SearchResult{
		Hits:       hits,
		Total:      total,
		Page:       params.Page,
		PerPage:    params.PerPage,
		Offset:     params.Offset,
		TotalPages: pagination.TotalPages(total, params.PerPage),
		Facets:     facets,
		TookMs:     time.Since(start).Milliseconds(),
	}, nil
}

func (r *SearchRepository) count(ctx context.Context, q relevance.Query, filters []domain.Filter) (total int, err error) {
	var b argList
	where := []string{"p.is_active"}
	score := scoreExpr(q, &b)
	if !q.MatchAll() {
		where = append(where, "s.score > 0")
	}
	where = append(where, filterConditions(filters, "", &b)...)

	stmt := fmt.Sprintf(`
		SELECT count(*)
		FROM products p
		CROSS JOIN LATERAL (SELECT %s AS score) s
		WHERE %s`,
		score, strings.Join(where, " AND "),
	)

	ctx, end := database.TraceQuery(ctx, "FallbackCount", stmt)
	defer func() { end(err) }()

	if err := r.db.QueryRow(ctx, stmt, b...).Scan(&total); err != nil {
		return 0, fmt.Errorf("fallback count: %w", err)
	}
	return total, nil
}

// facetSources maps a facet field to the FROM fragment and column producing
// its values over the matched products.
var facetSources = map[string][2]string{
	domain.FieldPlatform:  {"matched p", "p.platform"},
	domain.FieldGenres:    {"matched p CROSS JOIN LATERAL (SELECT DISTINCT btrim(v) FROM unnest(p.genres) AS u(v)) AS g(v)", "g.v"},
	domain.FieldType:      {"matched p", "p.type"},
	domain.FieldAgeRating: {"matched p", "p.age_rating"},
}

// facets counts facet values over the matched products in one statement.
// Each facet ignores the filters on its own field.
func (r *SearchRepository) facets(ctx context.Context, q relevance.Query, filters []domain.Filter) (_ map[string]map[string]int, err error) {
	var b argList
	score := scoreExpr(q, &b)
	matched := "p.is_active"
	if !q.MatchAll() {
		matched += " AND s.score > 0"
	}

	parts := make([]string, 0, len(domain.FacetFields))
	for _, field := range domain.FacetFields {
		src := facetSources[field]
		where := append([]string{fmt.Sprintf("COALESCE(%s, '') <> ''", src[1])}, filterConditions(filters, field, &b)...)
		parts = append(parts, fmt.Sprintf(
			`SELECT '%s' AS field, %s AS value, count(*) AS n FROM %s WHERE %s GROUP BY %s`,
			field, src[1], src[0], strings.Join(where, " AND "), src[1],
		))
	}

	stmt := fmt.Sprintf(`
		WITH matched AS (
			SELECT p.*
			FROM products p
			CROSS JOIN LATERAL (SELECT %s AS score) s
			WHERE %s
		)
		%s`,
		score, matched, strings.Join(parts, "\n\t\tUNION ALL "),
	)

	ctx, end := database.TraceQuery(ctx, "FallbackFacets", stmt)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, stmt, b...)
	if err != nil {
		return nil, fmt.Errorf("fallback facets: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]map[string]int, len(domain.FacetFields))
	for _, f := range domain.FacetFields {
		counts[f] = map[string]int{}
	}
	for rows.Next() {
		var (
			field, value string
			n            int
		)
		if err := rows.Scan(&field, &value, &n); err != nil {
			return nil, fmt.Errorf("scan facet row: %w", err)
		}
		if c, ok := counts[field]; ok {
			c[value] += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facet rows: %w", err)
	}
	return counts, nil
}

// argList collects positional query arguments.
type argList []any

// add appends v and returns its placeholder.
func (a *argList) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func containsPattern(s string) string { return "%" + likeEscaper.Replace(s) + "%" }
func prefixPattern(s string) string   { return likeEscaper.Replace(s) + "%" }

func genreLike(pattern string) string {
	return fmt.Sprintf(`EXISTS (SELECT 1 FROM unnest(p.genres) AS g(v) WHERE %s LIKE %s)`, fold(`g.v`), pattern)
}

func points(cond string, n int) string {
	return fmt.Sprintf("CASE WHEN %s THEN %d ELSE 0 END", cond, n)
}

// scoreExpr renders the additive relevance score of a product row.
func scoreExpr(q relevance.Query, b *argList) string {
	if q.MatchAll() {
		return "0"
	}

	full := b.add(q.Full)
	prefix := b.add(prefixPattern(q.Full))
	sub := b.add(containsPattern(q.Full))

	parts := []string{
		points(foldedName+" = "+full, relevance.WeightNameExact),
		points(foldedName+" LIKE "+prefix, relevance.WeightNamePrefix),
		points(foldedName+" LIKE "+sub, relevance.WeightNameContains),
		points(foldedPlatform+" = "+full, relevance.WeightPlatformExact),
		points(foldedDesc+" LIKE "+sub, relevance.WeightDescriptionFull),
		points(genreLike(sub), relevance.WeightGenreFull),
	}
	for _, term := range q.Terms {
		t := b.add(containsPattern(term))
		parts = append(parts,
			points(foldedName+" LIKE "+t, relevance.WeightTermName),
			points(foldedDesc+" LIKE "+t, relevance.WeightTermDescription),
			points(foldedPlatform+" LIKE "+t, relevance.WeightTermPlatform),
			points(genreLike(t), relevance.WeightTermGenre),
		)
	}
	return "(" + strings.Join(parts, "\n\t\t\t+ ") + ")"
}

// filterConditions renders every filter not on skipField as a SQL predicate.
func filterConditions(filters []domain.Filter, skipField string, b *argList) []string {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		if f.Field == skipField {
			continue
		}
		switch f.Field {
		case domain.FieldPrice, domain.FieldFinalPrice:
			col := "p.price"
			if f.Field == domain.FieldFinalPrice {
				col = finalPriceExpr
			}
			switch f.Op {
			case domain.OpGte:
				out = append(out, fmt.Sprintf("%s >= %s", col, b.add(f.Number())))
			case domain.OpLte:
				out = append(out, fmt.Sprintf("%s <= %s", col, b.add(f.Number())))
			default:
				out = append(out, fmt.Sprintf("%s = ANY(%s::numeric[])", col, b.add(numbers(f.Values))))
			}
		case domain.FieldGenres:
			out = append(out, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM unnest(p.genres) AS g(v) WHERE lower(g.v) = ANY(%s))", b.add(lowered(f.Values))))
		case domain.FieldPlatform:
			out = append(out, fmt.Sprintf("lower(p.platform) = ANY(%s)", b.add(lowered(f.Values))))
		case domain.FieldType:
			out = append(out, fmt.Sprintf("lower(p.type) = ANY(%s)", b.add(lowered(f.Values))))
		case domain.FieldAgeRating:
			out = append(out, fmt.Sprintf("lower(p.age_rating) = ANY(%s)", b.add(lowered(f.Values))))
		}
	}
	return out
}

func numbers(values []string) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func lowered(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

const relevanceOrder = "s.score DESC, p.created_at DESC, p.id DESC"

func orderBy(sort string) string {
	switch sort {
	case domain.SortPriceAsc:
		return finalPriceExpr + " ASC, " + relevanceOrder
	case domain.SortPriceDesc:
		return finalPriceExpr + " DESC, " + relevanceOrder
	case domain.SortNewest:
		return "p.created_at DESC, p.id DESC"
	case domain.SortNameAsc:
		return "lower(p.name) ASC, " + relevanceOrder
	default:
		return relevanceOrder
	}
}

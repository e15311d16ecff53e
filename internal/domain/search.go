package domain

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Document fields that can be filtered or faceted.
const (
	FieldPlatform   = "platform"
	FieldGenres     = "genres"
	FieldType       = "type"
	FieldAgeRating  = "ageRating"
	FieldPrice      = "price"
	FieldFinalPrice = "finalPrice"
)

// FacetFields lists the fields facet counts are computed for, in response order.
var FacetFields = []string{FieldPlatform, FieldGenres, FieldType, FieldAgeRating}

// Sort options for search results.
const (
	SortRelevance = "relevance"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
	SortNameAsc   = "name_asc"
)

// ValidSortOptions returns the list of valid sort options.
func ValidSortOptions() []string {
	return []string{SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest, SortNameAsc}
}

// IsValidSort checks whether the given sort string is a valid sort option.
func IsValidSort(sort string) bool {
	return slices.Contains(ValidSortOptions(), sort)
}

// FilterOp is a filter comparison operator.
type FilterOp string

const (
	OpEq  FilterOp = "="
	OpGte FilterOp = ">="
	OpLte FilterOp = "<="
	OpIn  FilterOp = "IN"
)

// Filter is a single `field op values` predicate. Filters in a query are
// combined with AND; Values of an "=" or "IN" filter are alternatives.
type Filter struct {
	Field  string   `json:"field"`
	Op     FilterOp `json:"op"`
	Values []string `json:"values"`
}

func isNumericField(field string) bool {
	return field == FieldPrice || field == FieldFinalPrice
}

func isFilterField(field string) bool {
	return isNumericField(field) || slices.Contains(FacetFields, field)
}

// Valid reports whether the filter can be evaluated.
func (f Filter) Valid() bool {
	if !isFilterField(f.Field) || len(f.Values) == 0 {
		return false
	}
	switch f.Op {
	case OpEq, OpIn:
		if isNumericField(f.Field) {
			_, err := strconv.ParseFloat(f.Values[0], 64)
			return err == nil
		}
		return true
	case OpGte, OpLte:
		if !isNumericField(f.Field) {
			return false
		}
		_, err := strconv.ParseFloat(f.Values[0], 64)
		return err == nil
	default:
		return false
	}
}

// Number returns the first value parsed as a float. Only meaningful for
// filters on numeric fields that passed Valid.
func (f Filter) Number() float64 {
	v, _ := strconv.ParseFloat(f.Values[0], 64)
	return v
}

// Matches reports whether the document satisfies the filter.
func (f Filter) Matches(d *SearchableDocument) bool {
	if isNumericField(f.Field) {
		v := d.FinalPrice
		if f.Field == FieldPrice {
			v = d.Price
		}
		switch f.Op {
		case OpGte:
			return v >= f.Number()
		case OpLte:
			return v <= f.Number()
		default:
			for _, s := range f.Values {
				if n, err := strconv.ParseFloat(s, 64); err == nil && n == v {
					return true
				}
			}
			return false
		}
	}

	for _, have := range d.FacetValues(f.Field) {
		for _, want := range f.Values {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// NormalizeFilters drops filters that cannot be evaluated. Invalid filters
// are ignored rather than rejected.
func NormalizeFilters(filters []Filter) []Filter {
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		values := make([]string, 0, len(f.Values))
		for _, v := range f.Values {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		f.Values = values
		f.Op = FilterOp(strings.ToUpper(strings.TrimSpace(string(f.Op))))
		if f.Valid() {
			out = append(out, f)
		}
	}
	return out
}

// SearchQuery holds all parameters for a search request.
type SearchQuery struct {
	Query   string   `json:"query"`
	Page    int      `json:"page"`
	PerPage int      `json:"perPage"`
	Offset  int      `json:"offset"`
	Filters []Filter `json:"filters,omitempty"`
	Sort    string   `json:"sort"`
}

// Hit is a ranked document. The relevance score is internal and never
// serialized.
type Hit struct {
	SearchableDocument
	Highlights map[string]string `json:"highlights,omitempty"`
	score      int
}

// NewHit returns a hit for doc with the given relevance score.
func NewHit(doc SearchableDocument, score int) Hit {
	return Hit{SearchableDocument: doc, score: score}
}

// Score returns the relevance score of the hit.
func (h Hit) Score() int { return h.score }

// SearchResult holds one page of ranked hits.
type SearchResult struct {
	Hits       []Hit                     `json:"hits"`
	Total      int                       `json:"total"`
	Page       int                       `json:"page"`
	PerPage    int                       `json:"perPage"`
	Offset     int                       `json:"offset"`
	TotalPages int                       `json:"totalPages"`
	Facets     map[string]map[string]int `json:"facets"`
	TookMs     int64                     `json:"tookMs"`
	Degraded   bool                      `json:"degraded,omitempty"`
	Advisory   string                    `json:"advisory,omitempty"`
}

// EmptyResult returns a result with no hits for the given page.
func EmptyResult(page, perPage int) *SearchResult {
	return &SearchResult{
		Hits:    []Hit{},
		Page:    page,
		PerPage: perPage,
		Facets:  map[string]map[string]int{},
	}
}

// IndexStats describes the live index.
type IndexStats struct {
	TotalDocuments int       `json:"totalDocuments"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created"`
}

// ItemResult is the outcome of one document in a bulk import.
type ItemResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BulkResult is the outcome of a bulk import.
type BulkResult struct {
	Items     []ItemResult `json:"items"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// Add records the outcome of one document.
func (r *BulkResult) Add(id string, err error) {
	item := ItemResult{ID: id, Success: err == nil}
	if err != nil {
		item.Error = err.Error()
		r.Failed++
	} else {
		r.Succeeded++
	}
	r.Items = append(r.Items, item)
}

// HistoryOwner identifies whose search history a keyword belongs to. UserID
// takes precedence over SessionID.
type HistoryOwner struct {
	UserID    string
	SessionID string
}

// IsZero reports whether neither identity is known.
func (o HistoryOwner) IsZero() bool {
	return o.UserID == "" && o.SessionID == ""
}

// HistoryEntry is one row of the search_history table.
type HistoryEntry struct {
	UserID         string    `json:"userId,omitempty"`
	SessionID      string    `json:"sessionId,omitempty"`
	Keyword        string    `json:"keyword"`
	SearchCount    int       `json:"searchCount"`
	LastSearchedAt time.Time `json:"lastSearchedAt"`
}

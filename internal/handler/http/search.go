package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/service"
	"github.com/sedirimou/Gameva-sub003/pkg/httputil"
	"github.com/sedirimou/Gameva-sub003/pkg/logger"
	"github.com/sedirimou/Gameva-sub003/pkg/pagination"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

// SearchHandler handles HTTP requests for the storefront search endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Response DTOs ---

// SearchItem is the public view of a hit. Internal fields such as the
// score never leave the service.
type SearchItem struct {
	ID             string            `json:"id"`
	Slug           string            `json:"slug"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Platform       string            `json:"platform"`
	Price          float64           `json:"price"`
	FinalPrice     float64           `json:"finalPrice"`
	CoverURL       string            `json:"coverUrl"`
	CoverThumbnail string            `json:"coverThumbnail"`
	Genres         []string          `json:"genres"`
	ReleaseDate    string            `json:"releaseDate"`
	AgeRating      string            `json:"ageRating"`
	Highlights     map[string]string `json:"highlights,omitempty"`
}

// SearchResponse is the body of the search and browse endpoints.
type SearchResponse struct {
	Success  bool                      `json:"success"`
	Query    string                    `json:"query"`
	Results  []SearchItem              `json:"results"`
	Total    int                       `json:"total"`
	Limit    int                       `json:"limit"`
	Offset   int                       `json:"offset"`
	HasMore  bool                      `json:"hasMore"`
	Facets   map[string]map[string]int `json:"facets"`
	Degraded bool                      `json:"degraded"`
	Advisory string                    `json:"advisory,omitempty"`
}

// SuggestResponse is the body of the suggest endpoint.
type SuggestResponse struct {
	Success     bool     `json:"success"`
	Suggestions []string `json:"suggestions"`
}

func toItem(h *domain.Hit) SearchItem {
	genres := h.Genres
	if genres == nil {
		genres = []string{}
	}
	return SearchItem{
		ID:             h.ID,
		Slug:           h.Slug,
		Name:           h.Name,
		Description:    h.Description,
		Platform:       h.Platform,
		Price:          h.Price,
		FinalPrice:     h.FinalPrice,
		CoverURL:       h.CoverImageURL,
		CoverThumbnail: h.CoverThumbnailURL,
		Genres:         genres,
		ReleaseDate:    h.ReleaseDate,
		AgeRating:      h.AgeRating,
		Highlights:     h.Highlights,
	}
}

func newSearchResponse(query string, res *domain.SearchResult) SearchResponse {
	items := make([]SearchItem, 0, len(res.Hits))
	for i := range res.Hits {
		items = append(items, toItem(&res.Hits[i]))
	}
	return SearchResponse{
		Success:  true,
		Query:    query,
		Results:  items,
		Total:    res.Total,
		Limit:    res.PerPage,
		Offset:   res.Offset,
		HasMore:  res.Offset+len(items) < res.Total,
		Facets:   res.Facets,
		Degraded: res.Degraded,
		Advisory: res.Advisory,
	}
}

// --- Request parsing ---

// parseSearchOptions reads paging, filters and sort from the query string.
// Malformed values are ignored rather than rejected: a storefront search box
// must always answer.
func parseSearchOptions(r *http.Request) service.SearchOptions {
	q := r.URL.Query()
	page := pagination.FromRequest(r)
	opts := service.SearchOptions{
		Page:    page.Page,
		PerPage: page.PerPage,
		Offset:  page.Offset,
		Sort:    q.Get("sort"),
		Owner:   ownerFromRequest(r),
	}

	opts.Filters = append(opts.Filters, listFilter(domain.FieldPlatform, q.Get("platforms"))...)
	opts.Filters = append(opts.Filters, listFilter(domain.FieldGenres, q.Get("genres"))...)
	opts.Filters = append(opts.Filters, listFilter(domain.FieldType, q.Get("type"))...)
	opts.Filters = append(opts.Filters, listFilter(domain.FieldAgeRating, q.Get("age_rating"))...)
	opts.Filters = append(opts.Filters, rangeFilter(domain.OpGte, q.Get("price_min"))...)
	opts.Filters = append(opts.Filters, rangeFilter(domain.OpLte, q.Get("price_max"))...)

	return opts
}

func listFilter(field, raw string) []domain.Filter {
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return []domain.Filter{{Field: field, Op: domain.OpIn, Values: values}}
}

func rangeFilter(op domain.FilterOp, raw string) []domain.Filter {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err != nil || v < 0 {
		return nil
	}
	return []domain.Filter{{Field: domain.FieldFinalPrice, Op: op, Values: []string{raw}}}
}

func positiveInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ownerFromRequest attributes the request to the signed-in user, else to the
// anonymous session. Both are set by the RequestLogger middleware.
func ownerFromRequest(r *http.Request) domain.HistoryOwner {
	ctx := r.Context()
	if uid := logger.UserIDFromContext(ctx); uid != "" {
		return domain.HistoryOwner{UserID: uid}
	}
	return domain.HistoryOwner{SessionID: logger.SessionIDFromContext(ctx)}
}

// --- Handlers ---

// Search handles GET /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	result, err := h.service.Search(r.Context(), query, parseSearchOptions(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, newSearchResponse(query, result))
}

// Browse handles GET /api/v1/search/browse
func (h *SearchHandler) Browse(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	result, err := h.service.Browse(r.Context(), query, parseSearchOptions(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, newSearchResponse(query, result))
}

// Suggest handles GET /api/v1/search/suggest
func (h *SearchHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("q"))
	limit, _ := positiveInt(r.URL.Query().Get("limit"))

	suggestions := h.service.Suggest(r.Context(), prefix, limit)
	httputil.WriteJSON(w, http.StatusOK, SuggestResponse{Success: true, Suggestions: suggestions})
}

// History handles GET /api/v1/search/history
func (h *SearchHandler) History(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner.IsZero() {
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Success: true, Data: []domain.HistoryEntry{}})
		return
	}

	limit, ok := positiveInt(r.URL.Query().Get("limit"))
	if !ok {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	entries, err := h.service.RecentSearches(r.Context(), owner, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Success: true, Data: entries})
}

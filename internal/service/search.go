package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/sedirimou/Gameva-sub003/internal/cache"
	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/engine"
	"github.com/sedirimou/Gameva-sub003/internal/relevance"
	"github.com/sedirimou/Gameva-sub003/internal/repository"
	"github.com/sedirimou/Gameva-sub003/pkg/pagination"
)

// Advisory messages attached to results that did not come from the index.
const (
	AdvisoryFallback    = "Search is running in reduced mode; results may be less relevant than usual."
	AdvisoryUnavailable = "Search is temporarily unavailable. Please try again shortly."
)

const (
	minHistoryKeywordLen  = 2
	maxHistoryKeywordLen  = 200
	defaultHistoryTimeout = 2 * time.Second

	DefaultSuggestions = 5
	MaxSuggestions     = 10
)

// SearchOptions carries the non-query inputs of a search request.
type SearchOptions struct {
	Page    int
	PerPage int
	// Offset, when positive, selects the first hit directly instead of Page.
	Offset  int
	Filters []domain.Filter
	Sort    string

	// Owner attributes the search to a user or anonymous session for
	// history. A zero owner records nothing.
	Owner domain.HistoryOwner
}

// SearchService answers storefront searches. It prefers the search index,
// falls back to ranked SQL, and degrades to an empty advisory result rather
// than failing.
type SearchService struct {
	index          engine.IndexClient
	fallback       repository.FallbackSearcher
	history        repository.HistoryRepository
	cache          cache.Cache
	historyTimeout time.Duration
	logger         *slog.Logger

	group   singleflight.Group
	pending sync.WaitGroup
}

// SearchOption configures a SearchService.
type SearchOption func(*SearchService)

// WithFallback enables the relational fallback path.
func WithFallback(f repository.FallbackSearcher) SearchOption {
	return func(s *SearchService) { s.fallback = f }
}

// WithHistory enables search history recording.
func WithHistory(h repository.HistoryRepository, timeout time.Duration) SearchOption {
	return func(s *SearchService) {
		s.history = h
		if timeout > 0 {
			s.historyTimeout = timeout
		}
	}
}

// WithCache enables result caching.
func WithCache(c cache.Cache) SearchOption {
	return func(s *SearchService) { s.cache = c }
}

// NewSearchService creates a new search service.
func NewSearchService(index engine.IndexClient, logger *slog.Logger, opts ...SearchOption) *SearchService {
	s := &SearchService{
		index:          index,
		cache:          cache.Noop{},
		historyTimeout: defaultHistoryTimeout,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func emptyResult(query *domain.SearchQuery) *domain.SearchResult {
	res := domain.EmptyResult(query.Page, query.PerPage)
	res.Offset = query.Offset
	return res
}

type searchFunc func(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResult, error)

func (s *SearchService) buildQuery(raw string, opts SearchOptions) *domain.SearchQuery {
	params := pagination.Resolve(opts.Page, opts.PerPage, opts.Offset)
	sort := opts.Sort
	if !domain.IsValidSort(sort) {
		sort = domain.SortRelevance
	}
	return &domain.SearchQuery{
		Query:   strings.TrimSpace(raw),
		Page:    params.Page,
		PerPage: params.PerPage,
		Offset:  params.Offset,
		Filters: domain.NormalizeFilters(opts.Filters),
		Sort:    sort,
	}
}

// Search ranks products for raw. An empty or wildcard query yields an empty
// result; use Browse to list products without a query.
func (s *SearchService) Search(ctx context.Context, raw string, opts SearchOptions) (*domain.SearchResult, error) {
	start := time.Now()
	defer func() { searchDuration.WithLabelValues("search").Observe(time.Since(start).Seconds()) }()

	query := s.buildQuery(raw, opts)
	if relevance.IsMatchAll(raw) {
		searchRequests.WithLabelValues("search", sourceEmpty).Inc()
		return emptyResult(query), nil
	}

	s.recordHistory(ctx, opts.Owner, raw)
	return s.execute(ctx, "search", query, start), nil
}

// Browse lists products newest first when raw is empty and otherwise
// behaves like Search.
func (s *SearchService) Browse(ctx context.Context, raw string, opts SearchOptions) (*domain.SearchResult, error) {
	if !relevance.IsMatchAll(raw) {
		return s.Search(ctx, raw, opts)
	}

	start := time.Now()
	defer func() { searchDuration.WithLabelValues("browse").Observe(time.Since(start).Seconds()) }()

	query := s.buildQuery("", opts)
	if query.Sort == domain.SortRelevance {
		query.Sort = domain.SortNewest
	}
	return s.execute(ctx, "browse", query, start), nil
}

// execute serves query from the cache, or runs it once for all identical
// concurrent callers.
func (s *SearchService) execute(ctx context.Context, op string, query *domain.SearchQuery, start time.Time) *domain.SearchResult {
	key := cache.Key(op, query)
	cached, gen, ok := s.cache.Get(ctx, key)
	if ok {
		searchRequests.WithLabelValues(op, sourceCache).Inc()
		cached.TookMs = time.Since(start).Milliseconds()
		return cached
	}

	// The shared call must not die with whichever caller started it; index
	// calls carry their own timeout.
	shared := context.WithoutCancel(ctx)
	v, _, _ := s.group.Do(key, func() (any, error) {
		res, source := s.run(shared, op, query)
		searchRequests.WithLabelValues(op, source).Inc()
		if source == sourceIndex {
			s.cache.Set(shared, key, gen, res)
		}
		return res, nil
	})

	res := *v.(*domain.SearchResult)
	res.TookMs = time.Since(start).Milliseconds()
	return &res
}

func (s *SearchService) run(ctx context.Context, op string, query *domain.SearchQuery) (*domain.SearchResult, string) {
	res, err := s.index.Search(ctx, query)
	if err == nil {
		return res, sourceIndex
	}
	s.logger.WarnContext(ctx, "search index failed",
		slog.String("op", op),
		slog.String("query", query.Query),
		slog.String("error", err.Error()),
	)

	if s.fallback != nil {
		fallback := searchFunc(s.fallback.Search)
		if op == "browse" {
			fallback = s.fallback.Recent
		}
		res, ferr := fallback(ctx, query)
		if ferr == nil {
			res.Advisory = AdvisoryFallback
			return res, sourceFallback
		}
		s.logger.ErrorContext(ctx, "search fallback failed",
			slog.String("op", op),
			slog.String("error", ferr.Error()),
		)
	}

	res = emptyResult(query)
	res.Degraded = true
	res.Advisory = AdvisoryUnavailable
	return res, sourceDegraded
}

// Suggest returns up to limit distinct product names matching prefix.
// Failures yield no suggestions.
func (s *SearchService) Suggest(ctx context.Context, prefix string, limit int) []string {
	if limit <= 0 {
		limit = DefaultSuggestions
	}
	limit = min(limit, MaxSuggestions)

	norm := relevance.Normalize(prefix)
	if norm == "" || relevance.IsMatchAll(prefix) {
		return []string{}
	}

	if sg, ok := s.index.(engine.Suggester); ok {
		names, err := sg.Suggest(ctx, prefix, limit)
		if err == nil {
			return names
		}
		if !errors.Is(err, errors.ErrUnsupported) {
			s.logger.WarnContext(ctx, "suggest failed", slog.String("error", err.Error()))
			return []string{}
		}
	}

	res, err := s.index.Search(ctx, &domain.SearchQuery{
		Query:   prefix,
		Page:    1,
		PerPage: pagination.MaxPerPage,
		Sort:    domain.SortRelevance,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "suggest search failed", slog.String("error", err.Error()))
		return []string{}
	}
	return suggestionsFromHits(res.Hits, norm, limit)
}

// suggestionsFromHits keeps hit order, preferring names that start with the
// prefix over names that merely contain it.
func suggestionsFromHits(hits []domain.Hit, prefix string, limit int) []string {
	var starts, contains []string
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		name := relevance.Normalize(h.Name)
		if _, dup := seen[name]; dup {
			continue
		}
		switch {
		case strings.HasPrefix(name, prefix):
			starts = append(starts, h.Name)
		case strings.Contains(name, prefix):
			contains = append(contains, h.Name)
		default:
			continue
		}
		seen[name] = struct{}{}
	}

	out := append(starts, contains...)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		return []string{}
	}
	return out
}

// recordHistory upserts the normalized query for owner in the background.
func (s *SearchService) recordHistory(ctx context.Context, owner domain.HistoryOwner, raw string) {
	if s.history == nil || owner.IsZero() {
		return
	}
	keyword := relevance.Normalize(raw)
	if utf8.RuneCountInString(keyword) < minHistoryKeywordLen {
		return
	}
	if r := []rune(keyword); len(r) > maxHistoryKeywordLen {
		keyword = string(r[:maxHistoryKeywordLen])
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.historyTimeout)
		defer cancel()

		if err := s.history.Increment(hctx, owner, keyword); err != nil {
			historyWrites.WithLabelValues("error").Inc()
			s.logger.WarnContext(hctx, "record search history failed",
				slog.String("keyword", keyword),
				slog.String("error", err.Error()),
			)
			return
		}
		historyWrites.WithLabelValues("ok").Inc()
	}()
}

// RecentSearches returns the owner's recent keywords, or none when history
// is disabled.
func (s *SearchService) RecentSearches(ctx context.Context, owner domain.HistoryOwner, limit int) ([]domain.HistoryEntry, error) {
	if s.history == nil {
		return []domain.HistoryEntry{}, nil
	}
	return s.history.Recent(ctx, owner, limit)
}

// Close waits for in-flight history writes.
func (s *SearchService) Close() {
	s.pending.Wait()
}

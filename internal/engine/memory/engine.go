// Package memory is an in-process search index. It ranks with the same
// relevance rules as the networked index and is used when no index service
// is configured.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/engine"
	"github.com/sedirimou/Gameva-sub003/internal/relevance"
	"github.com/sedirimou/Gameva-sub003/pkg/pagination"
)

// DefaultIndexName is the name reported by Stats.
const DefaultIndexName = "products"

var (
	_ engine.IndexClient = (*Engine)(nil)
	_ engine.Swapper     = (*Engine)(nil)
)

// Engine serves searches from a Store. The store can be replaced as a whole
// with Swap.
type Engine struct {
	mu     sync.RWMutex
	store  *Store
	logger *slog.Logger
}

// New creates an engine over store.
func New(store *Store, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

func (e *Engine) current() *Store {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store
}

// Swap makes store the live collection and returns the previous one.
func (e *Engine) Swap(store *Store) *Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.store
	e.store = store
	return old
}

func validate(doc *domain.SearchableDocument) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: missing id", domain.ErrInvalidDocument)
	}
	return nil
}

func (e *Engine) Upsert(_ context.Context, doc *domain.SearchableDocument) error {
	if err := validate(doc); err != nil {
		return err
	}
	e.current().Put(*doc)
	e.logger.Debug("indexed document", slog.String("id", doc.ID), slog.String("name", doc.Name))
	return nil
}

func (e *Engine) BulkImport(ctx context.Context, docs []domain.SearchableDocument) (*domain.BulkResult, error) {
	return bulkImport(ctx, e.current(), docs)
}

func bulkImport(ctx context.Context, store *Store, docs []domain.SearchableDocument) (*domain.BulkResult, error) {
	result := &domain.BulkResult{Items: make([]domain.ItemResult, 0, len(docs))}
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		err := validate(&docs[i])
		if err == nil {
			store.Put(docs[i])
		}
		result.Add(docs[i].ID, err)
	}
	return result, nil
}

func (e *Engine) Delete(_ context.Context, id string) error {
	e.current().Remove(id)
	return nil
}

func (e *Engine) Clear(_ context.Context) error {
	e.current().Reset()
	e.logger.Info("memory index cleared")
	return nil
}

func (e *Engine) Stats(_ context.Context) (*domain.IndexStats, error) {
	s := e.current()
	return &domain.IndexStats{
		TotalDocuments: s.Len(),
		Name:           s.name,
		CreatedAt:      s.createdAt,
	}, nil
}

func (e *Engine) Ping(context.Context) error { return nil }

// Search scores every document against the query, applies filters, and
// returns the requested page with facet counts. Facets are disjunctive: a
// facet field's counts ignore the filters on that same field.
func (e *Engine) Search(_ context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	start := time.Now()
	params := pagination.Resolve(query.Page, query.PerPage, query.Offset)
	q := relevance.NewQuery(query.Query)
	filters := domain.NormalizeFilters(query.Filters)
	facets := newFacetCounter()

	hits := make([]domain.Hit, 0)
	for _, en := range e.current().snapshot() {
		score := 0
		if !q.MatchAll() {
			if score = relevance.ScoreFields(en.fields, q); score == 0 {
				continue
			}
		}
		failed := failingFields(filters, &en.doc)
		if len(failed) == 0 {
			hits = append(hits, domain.NewHit(en.doc, score))
		}
		facets.add(&en.doc, failed)
	}

	sort := query.Sort
	if !domain.IsValidSort(sort) {
		sort = domain.SortRelevance
	}
	relevance.Rank(hits, sort)

	total := len(hits)
	from := min(params.Offset, total)
	to := min(from+params.PerPage, total)
	page := make([]domain.Hit, 0, to-from)
	for _, h := range hits[from:to] {
		h.SearchableDocument = cloneDoc(h.SearchableDocument)
		h.Highlights = relevance.Highlights(h.Name, h.Description, q)
		page = append(page, h)
	}

	return &domain.SearchResult{
		Hits:       page,
		Total:      total,
		Page:       params.Page,
		PerPage:    params.PerPage,
		Offset:     params.Offset,
		TotalPages: pagination.TotalPages(total, params.PerPage),
		Facets:     facets.counts,
		TookMs:     time.Since(start).Milliseconds(),
	}, nil
}

// failingFields returns the distinct fields of filters doc does not satisfy.
func failingFields(filters []domain.Filter, doc *domain.SearchableDocument) []string {
	var failed []string
	for _, f := range filters {
		if f.Matches(doc) {
			continue
		}
		dup := false
		for _, x := range failed {
			if x == f.Field {
				dup = true
				break
			}
		}
		if !dup {
			failed = append(failed, f.Field)
		}
	}
	return failed
}

type facetCounter struct {
	counts map[string]map[string]int
}

func newFacetCounter() *facetCounter {
	counts := make(map[string]map[string]int, len(domain.FacetFields))
	for _, f := range domain.FacetFields {
		counts[f] = map[string]int{}
	}
	return &facetCounter{counts: counts}
}

// add counts doc towards every facet whose own filters are the only ones it
// fails.
func (c *facetCounter) add(doc *domain.SearchableDocument, failed []string) {
	for _, field := range domain.FacetFields {
		if len(failed) > 1 || (len(failed) == 1 && failed[0] != field) {
			continue
		}
		for _, v := range doc.FacetValues(field) {
			c.counts[field][v]++
		}
	}
}

type staging struct {
	engine *Engine
	store  *Store
	done   bool
	mu     sync.Mutex
}

var errStagingClosed = errors.New("staging collection already committed or aborted")

// BeginSwap starts building a replacement collection.
func (e *Engine) BeginSwap(context.Context) (engine.Staging, error) {
	return &staging{engine: e, store: NewStore(e.current().name)}, nil
}

func (s *staging) BulkImport(ctx context.Context, docs []domain.SearchableDocument) (*domain.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, errStagingClosed
	}
	return bulkImport(ctx, s.store, docs)
}

func (s *staging) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return errStagingClosed
	}
	s.done = true
	s.engine.Swap(s.store)
	s.engine.logger.Info("memory index swapped", slog.Int("documents", s.store.Len()))
	return nil
}

func (s *staging) Abort(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	return nil
}

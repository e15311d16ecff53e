package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sedirimou/Gameva-sub003/internal/cache"
	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/engine"
	"github.com/sedirimou/Gameva-sub003/internal/engine/memory"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// catalog is the shared storefront fixture.
func catalog() []domain.SearchableDocument {
	return []domain.SearchableDocument{
		{ID: "1", Name: "Cyberpunk 2077", Platform: "Steam", Price: 59.99, FinalPrice: 59.99, Genres: []string{"RPG"}, CreatedAt: 100},
		{ID: "2", Name: "GTA V", Platform: "Steam", Price: 29.99, FinalPrice: 29.99, Description: "cyberpunk-themed mod support", Genres: []string{"Action"}, CreatedAt: 200},
		{ID: "3", Name: "Celeste", Platform: "Switch", Price: 19.99, FinalPrice: 19.99, Genres: []string{"Platformer"}, CreatedAt: 300},
		{ID: "4", Name: "Cyber Shadow", Platform: "Switch", Price: 14.99, FinalPrice: 14.99, Genres: []string{"Action"}, CreatedAt: 50},
	}
}

func newMemoryIndex(t *testing.T) *memory.Engine {
	t.Helper()
	eng := memory.New(memory.NewStore(memory.DefaultIndexName), newTestLogger())
	res, err := eng.BulkImport(context.Background(), catalog())
	require.NoError(t, err)
	require.Equal(t, len(catalog()), res.Succeeded)
	return eng
}

// countingIndex counts searches against a wrapped index and can be made to
// fail them.
type countingIndex struct {
	engine.IndexClient
	searches atomic.Int32
	err      error
}

func (c *countingIndex) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResult, error) {
	c.searches.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.IndexClient.Search(ctx, q)
}

type fakeFallback struct {
	searched, recent atomic.Int32
	err              error
}

func (f *fakeFallback) Search(_ context.Context, q *domain.SearchQuery) (*domain.SearchResult, error) {
	f.searched.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	res := domain.EmptyResult(q.Page, q.PerPage)
	res.Hits = []domain.Hit{domain.NewHit(domain.SearchableDocument{ID: "1", Name: "Cyberpunk 2077"}, 285)}
	res.Total = 1
	return res, nil
}

func (f *fakeFallback) Recent(_ context.Context, q *domain.SearchQuery) (*domain.SearchResult, error) {
	f.recent.Add(1)
	return domain.EmptyResult(q.Page, q.PerPage), nil
}

type fakeHistory struct {
	mu      sync.Mutex
	counts  map[string]int
	err     error
	entries []domain.HistoryEntry
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{counts: map[string]int{}}
}

func (h *fakeHistory) Increment(_ context.Context, owner domain.HistoryOwner, keyword string) error {
	if h.err != nil {
		return h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	who := owner.UserID
	if who == "" {
		who = "session:" + owner.SessionID
	}
	h.counts[who+"|"+keyword]++
	return nil
}

func (h *fakeHistory) Recent(context.Context, domain.HistoryOwner, int) ([]domain.HistoryEntry, error) {
	return h.entries, nil
}

func (h *fakeHistory) count(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[key]
}

func hitIDs(res *domain.SearchResult) []string {
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
	}
	return ids
}

// ─── Search ─────────────────────────────────────────────────────────────────

func TestSearch_EmptyQueryReturnsEmptyResult(t *testing.T) {
	idx := &countingIndex{IndexClient: newMemoryIndex(t)}
	svc := NewSearchService(idx, newTestLogger())

	for _, q := range []string{"", "   ", "*"} {
		res, err := svc.Search(context.Background(), q, SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, res.Hits)
		assert.Zero(t, res.Total)
		assert.False(t, res.Degraded)
	}
	assert.Zero(t, idx.searches.Load())
}

func TestSearch_RanksFromIndex(t *testing.T) {
	svc := NewSearchService(newMemoryIndex(t), newTestLogger())

	res, err := svc.Search(context.Background(), "cyberpunk", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, hitIDs(res))
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 20, res.PerPage)
	assert.False(t, res.Degraded)
	assert.Empty(t, res.Advisory)
}

func TestSearch_ClampsPaging(t *testing.T) {
	svc := NewSearchService(newMemoryIndex(t), newTestLogger())

	res, err := svc.Search(context.Background(), "cyber", SearchOptions{Page: -3, PerPage: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 50, res.PerPage)

	res, err = svc.Search(context.Background(), "cyber", SearchOptions{Page: 2, PerPage: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Page)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, 3, res.TotalPages)
}

func TestSearch_InvalidFiltersAndSortAreIgnored(t *testing.T) {
	svc := NewSearchService(newMemoryIndex(t), newTestLogger())

	res, err := svc.Search(context.Background(), "cyber", SearchOptions{
		Sort: "popularity",
		Filters: []domain.Filter{
			{Field: "colour", Op: domain.OpEq, Values: []string{"red"}},
			{Field: domain.FieldPlatform, Op: domain.OpEq, Values: []string{"switch"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, hitIDs(res))
	assert.Equal(t, map[string]int{"Steam": 2, "Switch": 1}, res.Facets[domain.FieldPlatform])
}

func TestSearch_FallsBackWhenIndexFails(t *testing.T) {
	idx := &countingIndex{IndexClient: newMemoryIndex(t), err: fmt.Errorf("search: %w", engine.ErrIndexUnavailable)}
	fb := &fakeFallback{}
	svc := NewSearchService(idx, newTestLogger(), WithFallback(fb))

	res, err := svc.Search(context.Background(), "cyberpunk", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, hitIDs(res))
	assert.Equal(t, AdvisoryFallback, res.Advisory)
	assert.False(t, res.Degraded)
	assert.Equal(t, int32(1), fb.searched.Load())
}

func TestSearch_DegradesWhenEverythingFails(t *testing.T) {
	idx := &countingIndex{IndexClient: newMemoryIndex(t), err: engine.ErrIndexUnavailable}

	t.Run("fallback fails", func(t *testing.T) {
		svc := NewSearchService(idx, newTestLogger(), WithFallback(&fakeFallback{err: errors.New("db down")}))
		res, err := svc.Search(context.Background(), "cyberpunk", SearchOptions{Page: 2})
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.Equal(t, AdvisoryUnavailable, res.Advisory)
		assert.Empty(t, res.Hits)
		assert.Zero(t, res.Total)
		assert.Equal(t, 2, res.Page)
	})

	t.Run("no fallback", func(t *testing.T) {
		svc := NewSearchService(idx, newTestLogger())
		res, err := svc.Search(context.Background(), "cyberpunk", SearchOptions{})
		require.NoError(t, err)
		assert.True(t, res.Degraded)
	})
}

func TestSearch_ServesRepeatsFromCache(t *testing.T) {
	idx := &countingIndex{IndexClient: newMemoryIndex(t)}
	svc := NewSearchService(idx, newTestLogger(), WithCache(cache.NewLRUCache(10, time.Minute)))

	first, err := svc.Search(context.Background(), "Cyberpunk", SearchOptions{})
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), "  cyberpunk ", SearchOptions{})
	require.NoError(t, err)

	assert.Equal(t, hitIDs(first), hitIDs(second))
	assert.Equal(t, int32(1), idx.searches.Load())
}

// writeDuringSearch runs a product write after the wrapped index has
// answered but before the caller sees the result.
type writeDuringSearch struct {
	engine.IndexClient
	write func()
}

func (w *writeDuringSearch) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResult, error) {
	res, err := w.IndexClient.Search(ctx, q)
	if w.write != nil {
		w.write()
		w.write = nil
	}
	return res, err
}

func TestSearch_WriteDuringSearchIsVisibleToNextRead(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryIndex(t)
	c := cache.NewLRUCache(10, time.Minute)
	indexing := NewIndexingService(mem, &fakeProducts{}, IndexingConfig{Cache: c}, newTestLogger())
	idx := &writeDuringSearch{IndexClient: mem, write: func() {
		require.NoError(t, indexing.RemoveProduct(ctx, "1"))
	}}
	svc := NewSearchService(idx, newTestLogger(), WithCache(c))

	stale, err := svc.Search(ctx, "cyberpunk", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, hitIDs(stale))

	fresh, err := svc.Search(ctx, "cyberpunk", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, hitIDs(fresh))
}

func TestSearch_DoesNotCacheDegradedResults(t *testing.T) {
	idx := &countingIndex{IndexClient: newMemoryIndex(t), err: engine.ErrIndexUnavailable}
	svc := NewSearchService(idx, newTestLogger(), WithCache(cache.NewLRUCache(10, time.Minute)))

	res, err := svc.Search(context.Background(), "cyberpunk", SearchOptions{})
	require.NoError(t, err)
	assert.True(t, res.Degraded)

	idx.err = nil
	res, err = svc.Search(context.Background(), "cyberpunk", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, []string{"1", "2"}, hitIDs(res))
}

// ─── History ────────────────────────────────────────────────────────────────

func TestSearch_RecordsHistory(t *testing.T) {
	hist := newFakeHistory()
	svc := NewSearchService(newMemoryIndex(t), newTestLogger(), WithHistory(hist, time.Second))
	ctx := context.Background()
	session := domain.HistoryOwner{SessionID: "sess-1"}

	_, _ = svc.Search(ctx, "  Cyberpunk ", SearchOptions{Owner: session})
	_, _ = svc.Search(ctx, "cyberpunk", SearchOptions{Owner: session})
	_, _ = svc.Search(ctx, "cyberpunk", SearchOptions{Owner: domain.HistoryOwner{UserID: "u-1", SessionID: "sess-1"}})
	_, _ = svc.Search(ctx, "c", SearchOptions{Owner: session})
	_, _ = svc.Search(ctx, "celeste", SearchOptions{})
	svc.Close()

	assert.Equal(t, 2, hist.count("session:sess-1|cyberpunk"))
	assert.Equal(t, 1, hist.count("u-1|cyberpunk"))
	assert.Zero(t, hist.count("session:sess-1|c"))
	assert.Len(t, hist.counts, 2)
}

func TestSearch_ConcurrentIdenticalSearchesCountTwice(t *testing.T) {
	hist := newFakeHistory()
	svc := NewSearchService(newMemoryIndex(t), newTestLogger(), WithHistory(hist, time.Second))
	owner := domain.HistoryOwner{SessionID: "sess-9"}

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Search(context.Background(), "elden ring", SearchOptions{Owner: owner})
		}()
	}
	wg.Wait()
	svc.Close()

	assert.Equal(t, 2, hist.count("session:sess-9|elden ring"))
}

func TestSearch_HistoryFailureIsNotFatal(t *testing.T) {
	hist := newFakeHistory()
	hist.err = errors.New("db down")
	svc := NewSearchService(newMemoryIndex(t), newTestLogger(), WithHistory(hist, time.Second))

	res, err := svc.Search(context.Background(), "cyberpunk", SearchOptions{Owner: domain.HistoryOwner{SessionID: "s"}})
	svc.Close()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}

func TestRecentSearches(t *testing.T) {
	svc := NewSearchService(newMemoryIndex(t), newTestLogger())
	entries, err := svc.RecentSearches(context.Background(), domain.HistoryOwner{UserID: "u"}, 5)
	require.NoError(t, err)
	assert.Empty(t, entries)

	hist := newFakeHistory()
	hist.entries = []domain.HistoryEntry{{Keyword: "zelda", SearchCount: 4}}
	svc = NewSearchService(newMemoryIndex(t), newTestLogger(), WithHistory(hist, 0))
	entries, err = svc.RecentSearches(context.Background(), domain.HistoryOwner{UserID: "u"}, 5)
	require.NoError(t, err)
	assert.Equal(t, hist.entries, entries)
}

// ─── Browse ─────────────────────────────────────────────────────────────────

func TestBrowse_EmptyQueryListsNewestFirst(t *testing.T) {
	svc := NewSearchService(newMemoryIndex(t), newTestLogger())

	res, err := svc.Browse(context.Background(), "", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1", "4"}, hitIDs(res))
	assert.Equal(t, 4, res.Total)

	res, err = svc.Browse(context.Background(), "", SearchOptions{Sort: domain.SortPriceAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "3", "2", "1"}, hitIDs(res))
}

func TestBrowse_WithQueryBehavesLikeSearch(t *testing.T) {
	svc := NewSearchService(newMemoryIndex(t), newTestLogger())

	res, err := svc.Browse(context.Background(), "cyberpunk", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, hitIDs(res))
}

func TestBrowse_FallsBackToRecent(t *testing.T) {
	idx := &countingIndex{IndexClient: newMemoryIndex(t), err: engine.ErrIndexUnavailable}
	fb := &fakeFallback{}
	svc := NewSearchService(idx, newTestLogger(), WithFallback(fb))

	res, err := svc.Browse(context.Background(), "", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, AdvisoryFallback, res.Advisory)
	assert.Equal(t, int32(1), fb.recent.Load())
	assert.Zero(t, fb.searched.Load())
}

// ─── Suggest ────────────────────────────────────────────────────────────────

type suggestingIndex struct {
	engine.IndexClient
	names []string
	err   error
}

func (s *suggestingIndex) Suggest(context.Context, string, int) ([]string, error) {
	return s.names, s.err
}

func TestSuggest_FromSearchHits(t *testing.T) {
	svc := NewSearchService(newMemoryIndex(t), newTestLogger())

	assert.Equal(t, []string{"Cyberpunk 2077", "Cyber Shadow"}, svc.Suggest(context.Background(), "Cyber", 5))
	assert.Equal(t, []string{"Cyberpunk 2077"}, svc.Suggest(context.Background(), "cyber", 1))
	assert.Equal(t, []string{"Celeste"}, svc.Suggest(context.Background(), "lest", 5))
	assert.Empty(t, svc.Suggest(context.Background(), "  ", 5))
}

func TestSuggest_UsesIndexSuggester(t *testing.T) {
	idx := &suggestingIndex{IndexClient: newMemoryIndex(t), names: []string{"Zelda"}}
	svc := NewSearchService(idx, newTestLogger())
	assert.Equal(t, []string{"Zelda"}, svc.Suggest(context.Background(), "zel", 5))

	idx.err = engine.ErrIndexUnavailable
	assert.Empty(t, svc.Suggest(context.Background(), "zel", 5))
}

func TestSuggest_UnsupportedFallsBackToSearch(t *testing.T) {
	b := engine.NewBreaker(newMemoryIndex(t), engine.DefaultBreakerConfig("suggest-test"), newTestLogger())
	svc := NewSearchService(b, newTestLogger())
	assert.Equal(t, []string{"Celeste"}, svc.Suggest(context.Background(), "cele", 5))
}

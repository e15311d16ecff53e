package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
)

func newTestEngine() *Engine {
	return New(NewStore(DefaultIndexName), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestDoc(id, name, platform string, price float64, createdAt int64, genres ...string) domain.SearchableDocument {
	return domain.SearchableDocument{
		ID:         id,
		Name:       name,
		Slug:       "slug-" + id,
		Platform:   platform,
		Price:      price,
		FinalPrice: price,
		Genres:     genres,
		CreatedAt:  createdAt,
	}
}

func ids(res *domain.SearchResult) []string {
	out := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.ID
	}
	return out
}

func seed(t *testing.T, eng *Engine, docs ...domain.SearchableDocument) {
	t.Helper()
	res, err := eng.BulkImport(context.Background(), docs)
	require.NoError(t, err)
	require.Zero(t, res.Failed)
}

func TestEngine_CyberpunkScenario(t *testing.T) {
	eng := newTestEngine()
	gta := newTestDoc("2", "GTA V", "Steam", 29.99, 200)
	gta.Description = "cyberpunk-themed mod support"
	seed(t, eng, newTestDoc("1", "Cyberpunk 2077", "Steam", 59.99, 100), gta)

	res, err := eng.Search(context.Background(), &domain.SearchQuery{Query: "cyberpunk"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(res))
	assert.Equal(t, 2, res.Total)
	assert.Greater(t, res.Hits[0].Score(), res.Hits[1].Score())
	assert.Equal(t, "<mark>Cyberpunk</mark> 2077", res.Hits[0].Highlights["name"])
	assert.Equal(t, "<mark>cyberpunk</mark>-themed mod support", res.Hits[1].Highlights["description"])
}

func TestEngine_NoMatch(t *testing.T) {
	eng := newTestEngine()
	seed(t, eng, newTestDoc("1", "Cyberpunk 2077", "Steam", 59.99, 100))

	res, err := eng.Search(context.Background(), &domain.SearchQuery{Query: "xyz"})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.NotNil(t, res.Hits)
}

func TestEngine_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine()
	d := newTestDoc("1", "Hades", "Steam", 24.99, 100, "Roguelike")

	require.NoError(t, eng.Upsert(ctx, &d))
	first, err := eng.Search(ctx, &domain.SearchQuery{Query: "hades"})
	require.NoError(t, err)

	require.NoError(t, eng.Upsert(ctx, &d))
	second, err := eng.Search(ctx, &domain.SearchQuery{Query: "hades"})
	require.NoError(t, err)

	assert.Equal(t, 1, second.Total)
	assert.Equal(t, first.Hits[0].Score(), second.Hits[0].Score())
	assert.Equal(t, first.Hits[0].SearchableDocument, second.Hits[0].SearchableDocument)

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)
}

func TestEngine_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine()
	d := newTestDoc("1", "Hades", "Steam", 24.99, 100)
	require.NoError(t, eng.Upsert(ctx, &d))

	d.Name = "Hollow Knight"
	require.NoError(t, eng.Upsert(ctx, &d))

	res, err := eng.Search(ctx, &domain.SearchQuery{Query: "hades"})
	require.NoError(t, err)
	assert.Zero(t, res.Total)

	got, ok := eng.current().Get("1")
	require.True(t, ok)
	assert.Equal(t, "Hollow Knight", got.Name)
}

func TestEngine_UpsertRejectsMissingID(t *testing.T) {
	err := newTestEngine().Upsert(context.Background(), &domain.SearchableDocument{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidDocument)
}

func TestEngine_DeleteRemovesFromResults(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine()
	seed(t, eng,
		newTestDoc("1", "Hades", "Steam", 24.99, 100),
		newTestDoc("2", "Hades II", "Steam", 29.99, 200),
	)

	require.NoError(t, eng.Delete(ctx, "1"))
	require.NoError(t, eng.Delete(ctx, "does-not-exist"))

	res, err := eng.Search(ctx, &domain.SearchQuery{Query: "hades"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(res))
}

func TestEngine_BulkImportPartialFailure(t *testing.T) {
	eng := newTestEngine()
	res, err := eng.BulkImport(context.Background(), []domain.SearchableDocument{
		newTestDoc("1", "Hades", "Steam", 1, 1),
		{Name: "no id"},
		newTestDoc("3", "Celeste", "Steam", 1, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.Items[1].Success)
	assert.NotEmpty(t, res.Items[1].Error)
	assert.Equal(t, 2, eng.current().Len())
}

func TestEngine_MatchAllWithSort(t *testing.T) {
	eng := newTestEngine()
	seed(t, eng,
		newTestDoc("1", "Hades", "Steam", 24.99, 100),
		newTestDoc("2", "Celeste", "Switch", 19.99, 300),
		newTestDoc("3", "Portal", "Steam", 9.99, 200),
	)

	res, err := eng.Search(context.Background(), &domain.SearchQuery{Sort: domain.SortNewest})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "1"}, ids(res))
	assert.Nil(t, res.Hits[0].Highlights)

	res, err = eng.Search(context.Background(), &domain.SearchQuery{Query: "*", Sort: domain.SortPriceAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1"}, ids(res))
}

func TestEngine_FiltersAndDisjunctiveFacets(t *testing.T) {
	eng := newTestEngine()
	seed(t, eng,
		newTestDoc("1", "Hades", "Steam", 24.99, 100, "Roguelike", "Action"),
		newTestDoc("2", "Hades II", "Switch", 29.99, 200, "Roguelike"),
		newTestDoc("3", "Hades Deluxe", "Steam", 59.99, 300, "Action"),
		newTestDoc("4", "Hades Demo", "PlayStation", 0, 400, "Action"),
	)

	res, err := eng.Search(context.Background(), &domain.SearchQuery{
		Query: "hades",
		Filters: []domain.Filter{
			{Field: domain.FieldPlatform, Op: domain.OpIn, Values: []string{"Steam", "Switch"}},
			{Field: domain.FieldFinalPrice, Op: domain.OpLte, Values: []string{"30"}},
			{Field: "bogus", Op: domain.OpEq, Values: []string{"ignored"}},
		},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, ids(res))

	// The platform facet ignores the platform filter but keeps the price one.
	assert.Equal(t, map[string]int{"Steam": 1, "Switch": 1, "PlayStation": 1}, res.Facets[domain.FieldPlatform])
	// Genres are counted over the fully filtered set.
	assert.Equal(t, map[string]int{"Roguelike": 2, "Action": 1}, res.Facets[domain.FieldGenres])
	assert.Empty(t, res.Facets[domain.FieldType])
}

func TestEngine_Pagination(t *testing.T) {
	eng := newTestEngine()
	for i := 1; i <= 5; i++ {
		seed(t, eng, newTestDoc(fmt.Sprint(i), fmt.Sprintf("Game %d", i), "Steam", 1, int64(i)))
	}

	res, err := eng.Search(context.Background(), &domain.SearchQuery{Query: "game", Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, []string{"3", "2"}, ids(res))

	res, err = eng.Search(context.Background(), &domain.SearchQuery{Query: "game", Page: 9, PerPage: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, res.PerPage)
	assert.Empty(t, res.Hits)
}

func TestEngine_ClearAndStats(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine()
	seed(t, eng, newTestDoc("1", "Hades", "Steam", 1, 1), newTestDoc("2", "Portal", "Steam", 1, 1))

	require.NoError(t, eng.Clear(ctx))
	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDocuments)
	assert.Equal(t, DefaultIndexName, stats.Name)

	seed(t, eng,
		newTestDoc("1", "Hades", "Steam", 1, 1),
		newTestDoc("2", "Portal", "Steam", 1, 1),
		newTestDoc("3", "Celeste", "Switch", 1, 1),
	)
	stats, err = eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)
}

func TestEngine_SwapKeepsLiveIndexUntilCommit(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine()
	seed(t, eng, newTestDoc("old", "Stale Game", "Steam", 1, 1))

	st, err := eng.BeginSwap(ctx)
	require.NoError(t, err)
	_, err = st.BulkImport(ctx, []domain.SearchableDocument{newTestDoc("new", "Fresh Game", "Steam", 1, 2)})
	require.NoError(t, err)

	res, err := eng.Search(ctx, &domain.SearchQuery{Query: "game"})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids(res))

	require.NoError(t, st.Commit(ctx))
	res, err = eng.Search(ctx, &domain.SearchQuery{Query: "game"})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids(res))

	assert.ErrorIs(t, st.Commit(ctx), errStagingClosed)
}

func TestEngine_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d := newTestDoc(fmt.Sprint(i%5), "Game", "Steam", 1, int64(i))
			assert.NoError(t, eng.Upsert(ctx, &d))
		}()
		go func() {
			defer wg.Done()
			_, err := eng.Search(ctx, &domain.SearchQuery{Query: "game"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, eng.current().Len())
}

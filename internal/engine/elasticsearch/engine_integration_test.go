package elasticsearch_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	esengine "github.com/sedirimou/Gameva-sub003/internal/engine/elasticsearch"
)

// newTestEngine creates an engine against a real cluster. It skips the test
// if ELASTICSEARCH_URL is not set.
func newTestEngine(t *testing.T) *esengine.Engine {
	t.Helper()

	esURL := os.Getenv("ELASTICSEARCH_URL")
	if esURL == "" {
		t.Skip("ELASTICSEARCH_URL not set, skipping Elasticsearch integration tests")
	}

	eng, err := esengine.New(context.Background(), esengine.Config{
		URL:   esURL,
		Alias: fmt.Sprintf("test_products_%d", time.Now().UnixNano()),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return eng
}

func TestIntegration_ReindexSwapAndSearch(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	require.NoError(t, eng.Upsert(ctx, &domain.SearchableDocument{ID: "stale", Name: "Stale Game", Genres: []string{}}))

	st, err := eng.BeginSwap(ctx)
	require.NoError(t, err)
	res, err := st.BulkImport(ctx, []domain.SearchableDocument{
		{ID: "1", Name: "Cyberpunk 2077", Platform: "Steam", Genres: []string{"RPG"}, CreatedAt: 100},
		{ID: "2", Name: "GTA V", Platform: "Steam", Description: "cyberpunk-themed mod support", Genres: []string{}, CreatedAt: 200},
		{ID: "3", Name: "Celeste", Platform: "Switch", Genres: []string{"Platformer"}, CreatedAt: 300},
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Succeeded)
	require.NoError(t, st.Commit(ctx))

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)

	found, err := eng.Search(ctx, &domain.SearchQuery{Query: "cyberpunk"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(found.Hits), 2)
	assert.Equal(t, "1", found.Hits[0].ID)

	require.NoError(t, eng.Delete(ctx, "1"))
	found, err = eng.Search(ctx, &domain.SearchQuery{Query: "cyberpunk 2077"})
	require.NoError(t, err)
	for _, h := range found.Hits {
		assert.NotEqual(t, "1", h.ID)
	}
}

package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/relevance"
	"github.com/sedirimou/Gameva-sub003/pkg/pagination"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCluster answers the handful of endpoints the engine uses.
type fakeCluster struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string
	routes   map[string]http.HandlerFunc
	prefixes map[string]http.HandlerFunc
}

func newFakeCluster(t *testing.T) (*fakeCluster, *Engine) {
	t.Helper()
	fc := &fakeCluster{
		bodies:   map[string]string{},
		routes:   map[string]http.HandlerFunc{},
		prefixes: map[string]http.HandlerFunc{},
	}
	fc.routes["HEAD /"+DefaultIndexName] = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		key := r.Method + " " + r.URL.Path

		fc.mu.Lock()
		fc.requests = append(fc.requests, key)
		fc.bodies[r.URL.Path] = string(body)
		route, ok := fc.routes[key]
		if !ok {
			for prefix, h := range fc.prefixes {
				if strings.HasPrefix(key, prefix) {
					route, ok = h, true
					break
				}
			}
		}
		fc.mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"not_found","reason":"no route ` + key + `"},"status":404}`))
			return
		}
		route(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	eng, err := NewWithClient(context.Background(), client, "", testLogger())
	require.NoError(t, err)
	return fc, eng
}

// handle serves body for "METHOD /path". Search and count accept either
// verb, so register both when in doubt.
func (fc *fakeCluster) handle(key, body string) {
	fc.handleFunc(key, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	})
}

func (fc *fakeCluster) handleFunc(key string, h http.HandlerFunc) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.routes[key] = h
}

func (fc *fakeCluster) handlePrefix(prefix string, h http.HandlerFunc) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.prefixes[prefix] = h
}

func (fc *fakeCluster) requested() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]string(nil), fc.requests...)
}

func (fc *fakeCluster) body(path string) string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.bodies[path]
}

func TestEngine_Search(t *testing.T) {
	fc, eng := newFakeCluster(t)
	searchBody := `{
		"took": 4,
		"hits": {
			"total": {"value": 2},
			"hits": [
				{"_score": 12.6, "_source": {"id": "1", "name": "Cyberpunk 2077", "platform": "Steam", "finalPrice": 59.99, "genres": ["RPG"], "createdAt": 100},
				 "highlight": {"name": ["<mark>Cyberpunk</mark> 2077"]}},
				{"_score": 3.1, "_source": {"id": "2", "name": "GTA V", "platform": "Steam", "genres": [], "createdAt": 200}}
			]
		},
		"aggregations": {
			"platform": {"doc_count": 2, "values": {"buckets": [{"key": "Steam", "doc_count": 2}]}},
			"genres": {"doc_count": 2, "values": {"buckets": [{"key": "RPG", "doc_count": 1}]}}
		}
	}`
	fc.handle("POST /"+DefaultIndexName+"/_search", searchBody)
	fc.handle("GET /"+DefaultIndexName+"/_search", searchBody)

	res, err := eng.Search(context.Background(), &domain.SearchQuery{
		Query:   "cyberpunk",
		PerPage: 10,
		Filters: []domain.Filter{{Field: domain.FieldPlatform, Op: domain.OpEq, Values: []string{"Steam"}}},
	})
	require.NoError(t, err)

	require.Len(t, res.Hits, 2)
	assert.Equal(t, "1", res.Hits[0].ID)
	assert.Equal(t, 13, res.Hits[0].Score())
	assert.Equal(t, "<mark>Cyberpunk</mark> 2077", res.Hits[0].Highlights["name"])
	assert.Nil(t, res.Hits[1].Highlights)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.TotalPages)
	assert.Equal(t, int64(4), res.TookMs)
	assert.Equal(t, map[string]int{"Steam": 2}, res.Facets[domain.FieldPlatform])
	assert.Equal(t, map[string]int{}, res.Facets[domain.FieldType])

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(fc.body("/"+DefaultIndexName+"/_search")), &sent))
	assert.Contains(t, sent, "post_filter")
	assert.EqualValues(t, 10, sent["size"])
}

func TestEngine_SearchError(t *testing.T) {
	fc, eng := newFakeCluster(t)
	fail := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"search_phase_execution_exception","reason":"all shards failed"},"status":400}`))
	}
	fc.handleFunc("POST /"+DefaultIndexName+"/_search", fail)
	fc.handleFunc("GET /"+DefaultIndexName+"/_search", fail)

	_, err := eng.Search(context.Background(), &domain.SearchQuery{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all shards failed")
}

func TestEngine_BulkImportReportsPerItem(t *testing.T) {
	fc, eng := newFakeCluster(t)
	fc.handle("POST /"+DefaultIndexName+"/_bulk", `{
		"errors": true,
		"items": [
			{"index": {"_id": "1", "status": 201}},
			{"index": {"_id": "2", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "bad price"}}}
		]
	}`)

	res, err := eng.BulkImport(context.Background(), []domain.SearchableDocument{
		{ID: "1", Name: "Hades"},
		{Name: "missing id"},
		{ID: "2", Name: "Broken"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "mapper_parsing_exception: bad price", res.Items[2].Error)

	lines := strings.Split(strings.TrimSpace(fc.body("/"+DefaultIndexName+"/_bulk")), "\n")
	assert.Len(t, lines, 4)
}

func TestEngine_DeleteMissingIsNotAnError(t *testing.T) {
	_, eng := newFakeCluster(t)
	assert.NoError(t, eng.Delete(context.Background(), "missing"))
}

func TestEngine_Stats(t *testing.T) {
	fc, eng := newFakeCluster(t)
	fc.handle("POST /"+DefaultIndexName+"/_count", `{"count": 3}`)
	fc.handle("GET /"+DefaultIndexName+"/_count", `{"count": 3}`)
	fc.handle("GET /"+DefaultIndexName+"/_settings/index.creation_date",
		`{"storefront_products_1": {"settings": {"index": {"creation_date": "1700000000000"}}}}`)

	stats, err := eng.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)
	assert.Equal(t, DefaultIndexName, stats.Name)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), stats.CreatedAt)
}

func TestEngine_SwapCommit(t *testing.T) {
	fc, eng := newFakeCluster(t)

	var (
		mu      sync.Mutex
		created string
	)
	fc.handlePrefix("PUT /"+DefaultIndexName+"_", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		created = strings.TrimPrefix(r.URL.Path, "/")
		mu.Unlock()
		_, _ = w.Write([]byte(`{"acknowledged": true}`))
	})

	st, err := eng.BeginSwap(context.Background())
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, created)
	assert.NotContains(t, fc.body("/"+created), `"aliases"`, "staging index must not be aliased yet")

	fc.handle("GET /_alias/"+DefaultIndexName, `{"storefront_products_1": {"aliases": {"storefront_products": {}}}}`)
	fc.handle("POST /_aliases", `{"acknowledged": true}`)
	fc.handle("DELETE /storefront_products_1", `{"acknowledged": true}`)

	require.NoError(t, st.Commit(context.Background()))

	var actions struct {
		Actions []map[string]map[string]string `json:"actions"`
	}
	require.NoError(t, json.Unmarshal([]byte(fc.body("/_aliases")), &actions))
	require.Len(t, actions.Actions, 2)
	assert.Equal(t, "storefront_products_1", actions.Actions[0]["remove"]["index"])
	assert.Equal(t, created, actions.Actions[1]["add"]["index"])
	assert.Contains(t, fc.requested(), "DELETE /storefront_products_1")
}

func TestBuildSearchQuery(t *testing.T) {
	q := &domain.SearchQuery{
		Query: "zelda",
		Sort:  domain.SortPriceAsc,
		Filters: []domain.Filter{
			{Field: domain.FieldPlatform, Op: domain.OpIn, Values: []string{"Switch", "Wii U"}},
			{Field: domain.FieldFinalPrice, Op: domain.OpGte, Values: []string{"10"}},
		},
	}
	body := buildSearchQuery(q, pagination.Normalize(3, 10))

	assert.Equal(t, 20, body["from"])
	assert.Equal(t, 10, body["size"])

	must := body["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	fs := must[0].(map[string]any)["function_score"].(map[string]any)
	assert.Equal(t, "sum", fs["score_mode"])
	assert.Equal(t, "replace", fs["boost_mode"])
	assert.Equal(t, 1, fs["min_score"])
	hl := body["highlight"].(map[string]any)["highlight_query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "zelda", hl["query"])

	post := body["post_filter"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	assert.Len(t, post, 2)
	assert.Equal(t, map[string]any{"terms": map[string]any{"platform.norm": []string{"switch", "wii u"}}}, post[0])
	assert.Equal(t, map[string]any{"range": map[string]any{"finalPrice": map[string]any{"gte": 10.0}}}, post[1])

	aggs := body["aggs"].(map[string]any)
	platformAgg := aggs[domain.FieldPlatform].(map[string]any)["filter"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	assert.Len(t, platformAgg, 1, "platform facet must ignore the platform filter")
	genresAgg := aggs[domain.FieldGenres].(map[string]any)["filter"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	assert.Len(t, genresAgg, 2)

	sort := body["sort"].([]any)
	assert.Equal(t, map[string]any{"finalPrice": "asc"}, sort[0])
	assert.Equal(t, map[string]any{"id.num": map[string]any{"order": "desc", "missing": "_last"}}, sort[len(sort)-2])
	assert.Equal(t, map[string]any{"id": "desc"}, sort[len(sort)-1])
}

// weights collects the weight of every scoring rule by its JSON filter.
func weights(t *testing.T, fs map[string]any) map[string]int {
	t.Helper()
	out := map[string]int{}
	for _, fn := range fs["functions"].([]any) {
		f := fn.(map[string]any)
		data, err := json.Marshal(f["filter"])
		require.NoError(t, err)
		out[string(data)] += f["weight"].(int)
	}
	return out
}

func TestRelevanceQuery_UsesScorerWeights(t *testing.T) {
	fs := relevanceQuery(relevance.NewQuery("  Half-Life   Alyx "))["function_score"].(map[string]any)
	w := weights(t, fs)

	assert.Equal(t, relevance.WeightNameExact, w[`{"term":{"name.sort":"half-life alyx"}}`])
	assert.Equal(t, relevance.WeightNamePrefix, w[`{"prefix":{"name.sort":"half-life alyx"}}`])
	assert.Equal(t, relevance.WeightNameContains, w[`{"wildcard":{"name.sort":{"value":"*half-life alyx*"}}}`])
	assert.Equal(t, relevance.WeightPlatformExact, w[`{"term":{"platform.norm":"half-life alyx"}}`])
	assert.Equal(t, relevance.WeightDescriptionFull, w[`{"wildcard":{"description.fold":{"value":"*half-life alyx*"}}}`])
	assert.Equal(t, relevance.WeightGenreFull, w[`{"wildcard":{"genres.norm":{"value":"*half-life alyx*"}}}`])
	assert.Equal(t, relevance.WeightTermName, w[`{"wildcard":{"name.sort":{"value":"*alyx*"}}}`])
	assert.Equal(t, relevance.WeightTermDescription, w[`{"wildcard":{"description.fold":{"value":"*alyx*"}}}`])
	assert.Equal(t, relevance.WeightTermPlatform, w[`{"wildcard":{"platform.norm":{"value":"*alyx*"}}}`])
	assert.Equal(t, relevance.WeightTermGenre, w[`{"wildcard":{"genres.norm":{"value":"*alyx*"}}}`])

	fuzzyName := `{"bool":{"must":[{"fuzzy":{"name":{"fuzziness":2,"transpositions":false,"value":"half-life"}}}],"must_not":[{"wildcard":{"name.sort":{"value":"*half-life*"}}}]}}`
	assert.Equal(t, relevance.WeightFuzzyName, w[fuzzyName])
	fuzzyDesc := `{"bool":{"must":[{"fuzzy":{"description":{"fuzziness":1,"transpositions":false,"value":"alyx"}}}],"must_not":[{"wildcard":{"description.fold":{"value":"*alyx*"}}}]}}`
	assert.Equal(t, relevance.WeightFuzzyDesc, w[fuzzyDesc])

	assert.Len(t, fs["functions"], 6+2*6)
	query := fs["query"].(map[string]any)["bool"].(map[string]any)
	assert.Len(t, query["should"], 6+2*6)
	assert.Equal(t, 1, query["minimum_should_match"])
}

func TestRelevanceQuery_ShortTermsHaveNoFuzzyRule(t *testing.T) {
	fs := relevanceQuery(relevance.NewQuery("gt"))["function_score"].(map[string]any)
	assert.Len(t, fs["functions"], 6+4)
	for filter := range weights(t, fs) {
		assert.NotContains(t, filter, "fuzzy")
	}
}

func TestContains_EscapesWildcards(t *testing.T) {
	assert.Equal(t,
		map[string]any{"wildcard": map[string]any{"name.sort": map[string]any{"value": `*50% off\?*`}}},
		contains("name.sort", `50% off?`),
	)
	assert.Equal(t, `*a\*b*`, contains("x", "a*b")["wildcard"].(map[string]any)["x"].(map[string]any)["value"])
}

func TestBuildSearchQuery_MatchAll(t *testing.T) {
	body := buildSearchQuery(&domain.SearchQuery{Query: " * "}, pagination.Normalize(1, 0))
	must := body["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	assert.Contains(t, must[0], "match_all")
	assert.NotContains(t, body["highlight"], "highlight_query")
	assert.NotContains(t, body, "post_filter")
	assert.Equal(t, pagination.DefaultPerPage, body["size"])
}

func TestBuildSort(t *testing.T) {
	assert.Equal(t, []any{
		map[string]any{"createdAt": "desc"},
		map[string]any{"id.num": map[string]any{"order": "desc", "missing": "_last"}},
		map[string]any{"id": "desc"},
	}, buildSort(domain.SortNewest))

	rel := buildSort(domain.SortRelevance)
	require.Len(t, rel, 4)
	assert.Equal(t, map[string]any{"_score": "desc"}, rel[0])
}

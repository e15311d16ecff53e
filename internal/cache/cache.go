// Package cache stores rendered search results between identical requests.
// Every index write invalidates the whole cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/relevance"
)

// Generation identifies the cache contents between two invalidations.
type Generation int64

// NoGeneration makes Set a no-op. Get returns it when the current generation
// cannot be read.
const NoGeneration Generation = -1

// Cache is a best-effort result cache. Lookups that fail are misses.
//
// Get also returns the generation current at lookup time. A result computed
// after a miss is stored with Set under that generation, so a result read
// before an Invalidate is never served after it.
type Cache interface {
	Get(ctx context.Context, key string) (*domain.SearchResult, Generation, bool)
	Set(ctx context.Context, key string, gen Generation, result *domain.SearchResult)
	// Invalidate drops every cached result.
	Invalidate(ctx context.Context) error
}

// Key derives the cache key of a query for an operation such as "search" or
// "browse". Queries that differ only in case, accents or spacing share a key.
func Key(op string, q *domain.SearchQuery) string {
	norm := *q
	norm.Query = relevance.Normalize(q.Query)
	norm.Filters = domain.NormalizeFilters(q.Filters)
	data, _ := json.Marshal(norm)

	h := sha256.New()
	h.Write([]byte(op))
	h.Write([]byte{0})
	h.Write(data)
	return op + ":" + hex.EncodeToString(h.Sum(nil))
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (*domain.SearchResult, Generation, bool) {
	return nil, NoGeneration, false
}
func (Noop) Set(context.Context, string, Generation, *domain.SearchResult) {}
func (Noop) Invalidate(context.Context) error                              { return nil }

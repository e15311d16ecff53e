// Package engine defines the search index client contract shared by the
// in-process and Elasticsearch implementations.
package engine

import (
	"context"
	"errors"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
)

// ErrIndexUnavailable is returned when the index cannot serve a request:
// the service is down, timed out, or the circuit breaker is open.
var ErrIndexUnavailable = errors.New("search index unavailable")

// IndexClient is a document-oriented search index.
type IndexClient interface {
	// Upsert inserts or fully replaces a document by id.
	Upsert(ctx context.Context, doc *domain.SearchableDocument) error

	// BulkImport upserts docs. A failing document is reported in the result
	// and never aborts the others; the error is reserved for failures of the
	// whole batch.
	BulkImport(ctx context.Context, docs []domain.SearchableDocument) (*domain.BulkResult, error)

	// Search ranks documents for query. An empty query matches everything.
	Search(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error)

	// Delete removes a document. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// Clear removes every document.
	Clear(ctx context.Context) error

	Stats(ctx context.Context) (*domain.IndexStats, error)
	Ping(ctx context.Context) error
}

// Suggester is implemented by clients with a dedicated prefix lookup.
type Suggester interface {
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
}

// Swapper is implemented by clients that can build a fresh collection aside
// and atomically replace the live one with it.
type Swapper interface {
	BeginSwap(ctx context.Context) (Staging, error)
}

// Staging is a collection being built for a swap. It is invisible to
// searches until Commit.
type Staging interface {
	BulkImport(ctx context.Context, docs []domain.SearchableDocument) (*domain.BulkResult, error)
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

package repository

import (
	"context"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
)

// ProductReader reads the relational product catalog, the source of truth
// the search index is derived from.
type ProductReader interface {
	// ListActive returns one page of active products ordered by created_at
	// descending, then id descending.
	ListActive(ctx context.Context, limit, offset int) ([]domain.Product, error)

	// GetByID retrieves a product regardless of its active flag.
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

// FallbackSearcher ranks products directly in the relational store when the
// search index cannot serve a request.
type FallbackSearcher interface {
	Search(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error)

	// Recent lists active products newest first, applying filters.
	Recent(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error)
}

// HistoryRepository records search terms per user or anonymous session.
type HistoryRepository interface {
	// Increment records one search of keyword by owner. The first search
	// inserts a row with count 1; later ones increment it atomically.
	Increment(ctx context.Context, owner domain.HistoryOwner, keyword string) error

	// Recent returns the owner's most recently searched keywords.
	Recent(ctx context.Context, owner domain.HistoryOwner, limit int) ([]domain.HistoryEntry, error)
}

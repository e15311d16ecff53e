package postgres

import (
	"context"
	"fmt"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/pkg/database"
	apperrors "github.com/sedirimou/Gameva-sub003/pkg/errors"
)

const maxHistory = 50

// HistoryRepository stores per-owner search keyword counters.
type HistoryRepository struct {
	db database.DBTX
}

// NewHistoryRepository creates a new PostgreSQL-backed search history store.
func NewHistoryRepository(db database.DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// The conflict targets match the partial unique indexes of search_history,
// so concurrent first searches of a keyword still end in a single row.
const (
	incrementByUser = `
		INSERT INTO search_history (user_id, session_id, keyword, search_count, last_searched_at)
		VALUES ($1, NULLIF($2, ''), $3, 1, NOW())
		ON CONFLICT (user_id, keyword) WHERE user_id IS NOT NULL
		DO UPDATE SET search_count = search_history.search_count + 1, last_searched_at = NOW()`

	incrementBySession = `
		INSERT INTO search_history (session_id, keyword, search_count, last_searched_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (session_id, keyword) WHERE user_id IS NULL
		DO UPDATE SET search_count = search_history.search_count + 1, last_searched_at = NOW()`
)

// Increment records one search of keyword in a single upsert statement.
func (r *HistoryRepository) Increment(ctx context.Context, owner domain.HistoryOwner, keyword string) (err error) {
	if owner.IsZero() {
		return apperrors.InvalidInput("search history requires a user or session id")
	}

	query, args := incrementBySession, []any{owner.SessionID, keyword}
	if owner.UserID != "" {
		query, args = incrementByUser, []any{owner.UserID, owner.SessionID, keyword}
	}

	ctx, end := database.TraceQuery(ctx, "IncrementSearchHistory", query)
	defer func() { end(err) }()

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("increment search history: %w", err)
	}
	return nil
}

// Recent returns the owner's keywords, most recently searched first.
func (r *HistoryRepository) Recent(ctx context.Context, owner domain.HistoryOwner, limit int) (_ []domain.HistoryEntry, err error) {
	if owner.IsZero() {
		return []domain.HistoryEntry{}, nil
	}
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}

	query := `
		SELECT COALESCE(user_id, ''), COALESCE(session_id, ''), keyword, search_count, last_searched_at
		FROM search_history
		WHERE session_id = $1 AND user_id IS NULL
		ORDER BY last_searched_at DESC
		LIMIT $2`
	arg := owner.SessionID
	if owner.UserID != "" {
		query = `
		SELECT COALESCE(user_id, ''), COALESCE(session_id, ''), keyword, search_count, last_searched_at
		FROM search_history
		WHERE user_id = $1
		ORDER BY last_searched_at DESC
		LIMIT $2`
		arg = owner.UserID
	}

	ctx, end := database.TraceQuery(ctx, "RecentSearchHistory", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("list search history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0, limit)
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.UserID, &e.SessionID, &e.Keyword, &e.SearchCount, &e.LastSearchedAt); err != nil {
			return nil, fmt.Errorf("scan search history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search history rows: %w", err)
	}

	return entries, nil
}

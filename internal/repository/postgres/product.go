package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/pkg/database"
	apperrors "github.com/sedirimou/Gameva-sub003/pkg/errors"
)

// productColumns selects a product row in the shape scanProduct expects.
// Nullable text columns are coalesced; numeric columns travel as text so the
// domain mapping controls rounding.
const productColumns = `p.id::text, p.name, COALESCE(p.slug, ''), COALESCE(p.platform, ''),
		p.price::text, p.sale_price::text, COALESCE(p.genres, '{}'), COALESCE(p.description, ''),
		COALESCE(p.images_cover_url, ''), COALESCE(p.images_cover_thumbnail, ''),
		COALESCE(p.type, ''), COALESCE(p.age_rating, ''), COALESCE(p.release_date::text, ''),
		p.created_at, p.is_active`

const defaultListLimit = 500

// ProductRepository reads products from PostgreSQL.
type ProductRepository struct {
	db database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product reader.
func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// ListActive returns one page of active products, newest first.
func (r *ProductRepository) ListActive(ctx context.Context, limit, offset int) (_ []domain.Product, err error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		WHERE p.is_active
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $1 OFFSET $2`

	if limit <= 0 {
		limit = defaultListLimit
	}

	ctx, end := database.TraceQuery(ctx, "ListActiveProducts", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(productDest(&p)...); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (_ *domain.Product, err error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		WHERE p.id::text = $1`

	ctx, end := database.TraceQuery(ctx, "GetProduct", query)
	defer func() { end(err) }()

	var p domain.Product
	if err := r.db.QueryRow(ctx, query, id).Scan(productDest(&p)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("get product by id: %w", err)
	}

	return &p, nil
}

func productDest(p *domain.Product) []any {
	return []any{
		&p.ID,
		&p.Name,
		&p.Slug,
		&p.Platform,
		&p.Price,
		&p.SalePrice,
		&p.Genres,
		&p.Description,
		&p.CoverURL,
		&p.CoverThumbnail,
		&p.Type,
		&p.AgeRating,
		&p.ReleaseDate,
		&p.CreatedAt,
		&p.IsActive,
	}
}

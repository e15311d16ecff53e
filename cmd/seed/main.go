// Command seed fills the products table with a deterministic game catalog
// for local development and load testing of the search service.
//
// Run: SEED_COUNT=10000 go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sedirimou/Gameva-sub003/internal/config"
	"github.com/sedirimou/Gameva-sub003/migrations"
	pkgconfig "github.com/sedirimou/Gameva-sub003/pkg/config"
	"github.com/sedirimou/Gameva-sub003/pkg/database"
	"github.com/sedirimou/Gameva-sub003/pkg/logger"
)

// Options are read from SEED_* variables.
type Options struct {
	Count     int   `env:"COUNT" envDefault:"10000"`
	BatchSize int   `env:"BATCH_SIZE" envDefault:"500"`
	RandSeed  int64 `env:"RAND_SEED" envDefault:"42"`
}

var productColumns = []string{
	"id", "name", "slug", "platform", "price", "sale_price", "genres", "description",
	"images_cover_url", "images_cover_thumbnail", "type", "age_rating",
	"release_date", "is_active", "created_at", "updated_at",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	var opts Options
	if err := pkgconfig.LoadWithPrefix(&opts, "SEED_"); err != nil {
		slog.Error("failed to load seed options", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("search-seed", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, opts, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts Options, log *slog.Logger) error {
	pg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pg, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	products := generateCatalog(rand.New(rand.NewSource(opts.RandSeed)), opts.Count, time.Now().UTC())
	log.Info("generated catalog", slog.Int("products", len(products)))

	// Re-runs replace the previous seed.
	tag, err := pool.Exec(ctx, `DELETE FROM products WHERE id >= $1 AND id < $2`,
		seedIDBase, seedIDBase+int64(opts.Count))
	if err != nil {
		return fmt.Errorf("clean previous seed: %w", err)
	}
	log.Info("removed previous seed rows", slog.Int64("rows", tag.RowsAffected()))

	batch := max(opts.BatchSize, 1)
	for start := 0; start < len(products); start += batch {
		end := min(start+batch, len(products))
		if err := copyBatch(ctx, pool, products[start:end]); err != nil {
			return fmt.Errorf("insert products %d-%d: %w", start, end, err)
		}
		log.Info("inserted batch", slog.Int("from", start), slog.Int("to", end))
	}

	// Explicit ids leave the BIGSERIAL sequence behind.
	if _, err := pool.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('products', 'id'), (SELECT MAX(id) FROM products))`); err != nil {
		return fmt.Errorf("advance id sequence: %w", err)
	}

	log.Info("seed complete, run `searchctl reindex` to rebuild the search index",
		slog.Int("products", len(products)))
	return nil
}

func copyBatch(ctx context.Context, pool *pgxpool.Pool, products []seedProduct) error {
	rows := make([][]any, 0, len(products))
	for _, p := range products {
		rows = append(rows, []any{
			p.ID, p.Name, p.Slug, p.Platform, p.Price, p.SalePrice, p.Genres, p.Description,
			p.CoverURL, p.Thumbnail, p.Type, p.AgeRating,
			p.ReleaseDate, p.Active, p.CreatedAt, p.CreatedAt,
		})
	}
	_, err := pool.CopyFrom(ctx, pgx.Identifier{"products"}, productColumns, pgx.CopyFromRows(rows))
	return err
}

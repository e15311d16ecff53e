package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/repository"
	apperrors "github.com/sedirimou/Gameva-sub003/pkg/errors"
	pkgkafka "github.com/sedirimou/Gameva-sub003/pkg/kafka"
	"github.com/sedirimou/Gameva-sub003/pkg/logger"
)

// Kafka topic constants for product domain events consumed by the search service.
const (
	TopicProductCreated = "ecommerce.product.created"
	TopicProductUpdated = "ecommerce.product.updated"
	TopicProductDeleted = "ecommerce.product.deleted"
)

// Topics lists every topic the consumer subscribes to.
var Topics = []string{TopicProductCreated, TopicProductUpdated, TopicProductDeleted}

// ProductEventData is the payload of product.created and product.updated.
// Prices are decimal strings, as stored in the catalog.
type ProductEventData struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Platform       string    `json:"platform"`
	Price          string    `json:"price"`
	SalePrice      *string   `json:"sale_price,omitempty"`
	Genres         []string  `json:"genres"`
	Description    string    `json:"description"`
	CoverURL       string    `json:"images_cover_url"`
	CoverThumbnail string    `json:"images_cover_thumbnail"`
	Type           string    `json:"type"`
	AgeRating      string    `json:"age_rating"`
	ReleaseDate    string    `json:"release_date"`
	CreatedAt      time.Time `json:"created_at"`
	IsActive       bool      `json:"is_active"`
}

func (d *ProductEventData) product() *domain.Product {
	return &domain.Product{
		ID:             d.ID,
		Name:           d.Name,
		Slug:           d.Slug,
		Platform:       d.Platform,
		Price:          d.Price,
		SalePrice:      d.SalePrice,
		Genres:         d.Genres,
		Description:    d.Description,
		CoverURL:       d.CoverURL,
		CoverThumbnail: d.CoverThumbnail,
		Type:           d.Type,
		AgeRating:      d.AgeRating,
		ReleaseDate:    d.ReleaseDate,
		CreatedAt:      d.CreatedAt,
		IsActive:       d.IsActive,
	}
}

// ProductDeletedData is the payload of product.deleted.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// Hooks receives product changes. indexsync.Syncer implements it.
type Hooks interface {
	OnProductCreated(ctx context.Context, p *domain.Product) error
	OnProductUpdated(ctx context.Context, p *domain.Product) error
	OnProductDeleted(ctx context.Context, id string) error
}

// Consumer handles Kafka events related to product changes for search indexing.
type Consumer struct {
	hooks    Hooks
	products repository.ProductReader
	logger   *slog.Logger
}

// NewConsumer creates a new event consumer. When products is non-nil the
// current catalog row is indexed instead of the event payload, so that
// out-of-order events cannot resurrect stale data.
func NewConsumer(hooks Hooks, products repository.ProductReader, logger *slog.Logger) *Consumer {
	return &Consumer{
		hooks:    hooks,
		products: products,
		logger:   logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}

	switch event.EventType {
	case TopicProductCreated:
		return c.handleUpsert(ctx, event, c.hooks.OnProductCreated)
	case TopicProductUpdated:
		return c.handleUpsert(ctx, event, c.hooks.OnProductUpdated)
	case TopicProductDeleted:
		return c.handleProductDeleted(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleUpsert(ctx context.Context, event *pkgkafka.Event, hook func(context.Context, *domain.Product) error) error {
	var data ProductEventData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}
	if data.ID == "" {
		return fmt.Errorf("%s: %w: missing product id", event.EventType, pkgkafka.ErrMalformedEvent)
	}

	product := data.product()
	if c.products != nil {
		current, err := c.products.GetByID(ctx, data.ID)
		switch {
		case err == nil:
			product = current
		case errors.Is(err, apperrors.ErrNotFound):
			// Deleted since the event was produced.
			return c.remove(ctx, event, data.ID)
		default:
			return fmt.Errorf("load product %s: %w", data.ID, err)
		}
	}

	if err := hook(ctx, product); err != nil {
		return fmt.Errorf("enqueue product %s from %s: %w", data.ID, event.EventType, err)
	}

	c.logger.InfoContext(ctx, "product queued for indexing",
		slog.String("event_type", event.EventType),
		slog.String("product_id", data.ID),
	)
	return nil
}

func (c *Consumer) handleProductDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}
	if data.ID == "" {
		return fmt.Errorf("%s: %w: missing product id", event.EventType, pkgkafka.ErrMalformedEvent)
	}
	return c.remove(ctx, event, data.ID)
}

func (c *Consumer) remove(ctx context.Context, event *pkgkafka.Event, id string) error {
	if err := c.hooks.OnProductDeleted(ctx, id); err != nil {
		return fmt.Errorf("enqueue removal of %s from %s: %w", id, event.EventType, err)
	}
	c.logger.InfoContext(ctx, "product queued for removal",
		slog.String("event_type", event.EventType),
		slog.String("product_id", id),
	)
	return nil
}

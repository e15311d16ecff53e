package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sedirimou/Gameva-sub003/internal/cache"
	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/engine"
	"github.com/sedirimou/Gameva-sub003/internal/repository"
	apperrors "github.com/sedirimou/Gameva-sub003/pkg/errors"
	"github.com/sedirimou/Gameva-sub003/pkg/kafka"
)

// Reindex strategies.
const (
	// StrategySwap fills a staging collection and swaps it in atomically.
	StrategySwap = "swap"
	// StrategyInPlace clears the live collection and refills it. Searches
	// see a partial index until the import finishes.
	StrategyInPlace = "inplace"
)

// DefaultReindexBatchSize is the number of products read and imported per batch.
const DefaultReindexBatchSize = 500

const (
	serviceName = "search-service"

	// maxReportedFailures caps the per-document errors kept in a report.
	maxReportedFailures = 20
)

// EventPublisher publishes integration events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// ReindexReport summarizes a full reindex.
type ReindexReport struct {
	Strategy string              `json:"strategy"`
	Total    int                 `json:"total"`
	Indexed  int                 `json:"indexed"`
	Failed   int                 `json:"failed"`
	Failures []domain.ItemResult `json:"failures,omitempty"`
	// Replayed counts single-product writes made during a swap and applied
	// again once the new collection was live.
	Replayed int           `json:"replayed,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (r *ReindexReport) add(res *domain.BulkResult) {
	r.Indexed += res.Succeeded
	r.Failed += res.Failed
	for _, item := range res.Items {
		if !item.Success && len(r.Failures) < maxReportedFailures {
			r.Failures = append(r.Failures, item)
		}
	}
}

func (r *ReindexReport) reject(id string, err error) {
	r.Failed++
	if len(r.Failures) < maxReportedFailures {
		r.Failures = append(r.Failures, domain.ItemResult{ID: id, Error: err.Error()})
	}
}

// ReindexedEvent is the payload of the ecommerce.search.reindexed event.
type ReindexedEvent struct {
	Strategy   string `json:"strategy"`
	Indexed    int    `json:"indexed"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"duration_ms"`
}

// IndexingService keeps the search index in step with the product catalog
// and exposes the admin operations on it.
type IndexingService struct {
	index     engine.IndexClient
	products  repository.ProductReader
	cache     cache.Cache
	publisher EventPublisher
	strategy  string
	batchSize int
	logger    *slog.Logger

	reindexing sync.Mutex
	swap       swapWrites
}

// swapWrites records single-product writes made while a swap reindex fills
// its staging collection. They are replayed onto the new live collection
// right after Commit, so none are lost to the swap.
type swapWrites struct {
	// gate is held shared by single-product writes and exclusively by
	// commit and replay.
	gate sync.RWMutex

	mu      sync.Mutex
	pending map[string]*domain.SearchableDocument // nil document: removed
}

func (w *swapWrites) begin() {
	w.mu.Lock()
	w.pending = make(map[string]*domain.SearchableDocument)
	w.mu.Unlock()
}

func (w *swapWrites) end() map[string]*domain.SearchableDocument {
	w.mu.Lock()
	defer w.mu.Unlock()
	pending := w.pending
	w.pending = nil
	return pending
}

func (w *swapWrites) record(id string, doc *domain.SearchableDocument) {
	w.mu.Lock()
	if w.pending != nil {
		w.pending[id] = doc
	}
	w.mu.Unlock()
}

// IndexingConfig holds the optional collaborators of an IndexingService.
type IndexingConfig struct {
	Cache     cache.Cache
	Publisher EventPublisher
	Strategy  string
	BatchSize int
}

// NewIndexingService creates a new indexing service.
func NewIndexingService(index engine.IndexClient, products repository.ProductReader, cfg IndexingConfig, logger *slog.Logger) *IndexingService {
	s := &IndexingService{
		index:     index,
		products:  products,
		cache:     cfg.Cache,
		publisher: cfg.Publisher,
		strategy:  cfg.Strategy,
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.strategy != StrategyInPlace {
		s.strategy = StrategySwap
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultReindexBatchSize
	}
	return s
}

// unavailable maps index failures to a 503 for admin callers.
func unavailable(op string, err error) error {
	if errors.Is(err, engine.ErrIndexUnavailable) {
		return apperrors.ServiceUnavailable("search index unavailable", fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IndexProduct projects a product into the index. Inactive products are
// removed instead.
func (s *IndexingService) IndexProduct(ctx context.Context, p *domain.Product) error {
	if !p.IsActive {
		return s.RemoveProduct(ctx, p.ID)
	}

	doc, err := domain.DocumentFromProduct(p)
	if err != nil {
		return fmt.Errorf("index product: %w", err)
	}

	s.swap.gate.RLock()
	defer s.swap.gate.RUnlock()
	s.swap.record(doc.ID, &doc)
	if err := s.index.Upsert(ctx, &doc); err != nil {
		return unavailable("index product", err)
	}
	s.invalidate(ctx)

	s.logger.DebugContext(ctx, "product indexed", slog.String("product_id", doc.ID))
	return nil
}

// RemoveProduct deletes a product from the index.
func (s *IndexingService) RemoveProduct(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("product id is required")
	}

	s.swap.gate.RLock()
	defer s.swap.gate.RUnlock()
	s.swap.record(id, nil)
	if err := s.index.Delete(ctx, id); err != nil {
		return unavailable("remove product", err)
	}
	s.invalidate(ctx)

	s.logger.DebugContext(ctx, "product removed from index", slog.String("product_id", id))
	return nil
}

// ReindexAll rebuilds the index from every active product, newest first.
// Only one reindex runs at a time.
func (s *IndexingService) ReindexAll(ctx context.Context) (*ReindexReport, error) {
	if !s.reindexing.TryLock() {
		return nil, apperrors.Conflict("a reindex is already running")
	}
	defer s.reindexing.Unlock()

	start := time.Now()
	report, err := s.reindex(ctx)
	if err != nil {
		reindexRuns.WithLabelValues(s.strategy, "error").Inc()
		s.logger.ErrorContext(ctx, "reindex failed", slog.String("error", err.Error()))
		return nil, err
	}
	report.Duration = time.Since(start)

	reindexRuns.WithLabelValues(report.Strategy, "ok").Inc()
	indexedDocuments.Set(float64(report.Indexed))
	s.invalidate(ctx)

	s.logger.InfoContext(ctx, "reindex completed",
		slog.String("strategy", report.Strategy),
		slog.Int("total", report.Total),
		slog.Int("indexed", report.Indexed),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration),
	)
	s.publishReindexed(ctx, report)

	return report, nil
}

func (s *IndexingService) reindex(ctx context.Context) (*ReindexReport, error) {
	if s.strategy == StrategySwap {
		if sw, ok := s.index.(engine.Swapper); ok {
			staging, err := sw.BeginSwap(ctx)
			switch {
			case err == nil:
				return s.reindexSwap(ctx, staging)
			case !errors.Is(err, errors.ErrUnsupported):
				return nil, unavailable("begin swap", err)
			}
		}
		s.logger.WarnContext(ctx, "index cannot swap collections, reindexing in place")
	}
	return s.reindexInPlace(ctx)
}

func (s *IndexingService) reindexSwap(ctx context.Context, staging engine.Staging) (*ReindexReport, error) {
	report := &ReindexReport{Strategy: StrategySwap}
	s.swap.begin()
	if err := s.fill(ctx, staging.BulkImport, report); err != nil {
		s.swap.end()
		if aerr := staging.Abort(context.WithoutCancel(ctx)); aerr != nil {
			s.logger.WarnContext(ctx, "abort staging collection failed", slog.String("error", aerr.Error()))
		}
		return nil, err
	}

	s.swap.gate.Lock()
	defer s.swap.gate.Unlock()
	pending := s.swap.end()
	if err := staging.Commit(ctx); err != nil {
		return nil, unavailable("commit swap", err)
	}
	report.Replayed = s.replay(ctx, pending)
	return report, nil
}

// replay applies writes recorded during a swap to the collection that was
// just made live. Failures are logged; the next write or reindex repairs them.
func (s *IndexingService) replay(ctx context.Context, pending map[string]*domain.SearchableDocument) int {
	replayed := 0
	for id, doc := range pending {
		var err error
		if doc == nil {
			err = s.index.Delete(ctx, id)
		} else {
			err = s.index.Upsert(ctx, doc)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "replay write after swap failed",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		replayed++
	}
	return replayed
}

func (s *IndexingService) reindexInPlace(ctx context.Context) (*ReindexReport, error) {
	report := &ReindexReport{Strategy: StrategyInPlace}
	if err := s.index.Clear(ctx); err != nil {
		return nil, unavailable("clear index", err)
	}
	s.invalidate(ctx)
	if err := s.fill(ctx, s.index.BulkImport, report); err != nil {
		return nil, err
	}
	return report, nil
}

type importFunc func(ctx context.Context, docs []domain.SearchableDocument) (*domain.BulkResult, error)

// fill pages through active products and imports them batch by batch.
func (s *IndexingService) fill(ctx context.Context, importer importFunc, report *ReindexReport) error {
	for offset := 0; ; offset += s.batchSize {
		products, err := s.products.ListActive(ctx, s.batchSize, offset)
		if err != nil {
			return fmt.Errorf("read products at offset %d: %w", offset, err)
		}
		report.Total += len(products)

		docs := make([]domain.SearchableDocument, 0, len(products))
		for i := range products {
			doc, err := domain.DocumentFromProduct(&products[i])
			if err != nil {
				report.reject(products[i].ID, err)
				continue
			}
			docs = append(docs, doc)
		}

		if len(docs) > 0 {
			res, err := importer(ctx, docs)
			if err != nil {
				return unavailable("bulk import", err)
			}
			report.add(res)
		}

		if len(products) < s.batchSize {
			return nil
		}
	}
}

// Clear removes every document from the index.
func (s *IndexingService) Clear(ctx context.Context) error {
	if err := s.index.Clear(ctx); err != nil {
		return unavailable("clear index", err)
	}
	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "search index cleared")
	return nil
}

// Stats describes the live index.
func (s *IndexingService) Stats(ctx context.Context) (*domain.IndexStats, error) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, unavailable("index stats", err)
	}
	return stats, nil
}

func (s *IndexingService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "search cache invalidation failed", slog.String("error", err.Error()))
	}
}

func (s *IndexingService) publishReindexed(ctx context.Context, report *ReindexReport) {
	if s.publisher == nil {
		return
	}
	topic := kafka.Topic("search", "reindexed")
	event, err := kafka.NewEvent(topic, "products", "search_index", serviceName, ReindexedEvent{
		Strategy:   report.Strategy,
		Indexed:    report.Indexed,
		Failed:     report.Failed,
		DurationMs: report.Duration.Milliseconds(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "build reindexed event", slog.String("error", err.Error()))
		return
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.WarnContext(ctx, "publish reindexed event failed", slog.String("error", err.Error()))
	}
}

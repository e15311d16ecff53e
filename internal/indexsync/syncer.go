// Package indexsync keeps the search index in step with product writes.
// Hooks enqueue work onto a bounded queue and return immediately; a fixed
// pool of workers applies it to the index. Tasks for one product id always
// land on the same worker, so they are applied in the order they were queued.
package indexsync

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
)

const (
	DefaultQueueSize   = 1024
	DefaultWorkers     = 4
	DefaultTaskTimeout = 10 * time.Second
)

var (
	// ErrQueueFull is returned when a hook cannot enqueue without blocking.
	ErrQueueFull = errors.New("index sync queue full")
	// ErrClosed is returned by hooks called after Close.
	ErrClosed = errors.New("index sync closed")
)

var (
	syncTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_sync_tasks_total",
		Help: "Index sync tasks by operation and outcome.",
	}, []string{"op", "result"})

	syncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "search_sync_queue_depth",
		Help: "Index sync tasks waiting for a worker.",
	})
)

// Indexer applies single-product changes to the index.
type Indexer interface {
	IndexProduct(ctx context.Context, p *domain.Product) error
	RemoveProduct(ctx context.Context, id string) error
}

// Config sizes the queue and the worker pool.
type Config struct {
	QueueSize   int
	Workers     int
	TaskTimeout time.Duration
}

type opKind string

const (
	opCreate opKind = "create"
	opUpdate opKind = "update"
	opDelete opKind = "delete"
)

type task struct {
	op      opKind
	product domain.Product
	id      string
	attrs   []any
}

// Syncer runs the index sync worker pool.
type Syncer struct {
	indexer Indexer
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	queues []chan task
	wg     sync.WaitGroup
}

// New starts cfg.Workers workers. The cfg.QueueSize slots are split evenly
// between them, each worker owning its own queue.
func New(indexer Indexer, cfg Config, logger *slog.Logger) *Syncer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}

	s := &Syncer{
		indexer: indexer,
		timeout: cfg.TaskTimeout,
		logger:  logger,
		queues:  make([]chan task, cfg.Workers),
	}
	perWorker := max((cfg.QueueSize+cfg.Workers-1)/cfg.Workers, 1)
	s.wg.Add(cfg.Workers)
	for i := range s.queues {
		s.queues[i] = make(chan task, perWorker)
		go s.work(s.queues[i])
	}
	return s
}

// queueFor picks the worker queue owning id.
func (s *Syncer) queueFor(id string) chan task {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.queues[h.Sum32()%uint32(len(s.queues))]
}

// OnProductCreated schedules p for indexing.
func (s *Syncer) OnProductCreated(ctx context.Context, p *domain.Product) error {
	return s.enqueue(ctx, task{op: opCreate, product: cloneProduct(p), id: p.ID})
}

// OnProductUpdated schedules p for reindexing. Inactive products are
// removed from the index.
func (s *Syncer) OnProductUpdated(ctx context.Context, p *domain.Product) error {
	return s.enqueue(ctx, task{op: opUpdate, product: cloneProduct(p), id: p.ID})
}

// OnProductDeleted schedules removal of id from the index.
func (s *Syncer) OnProductDeleted(ctx context.Context, id string) error {
	return s.enqueue(ctx, task{op: opDelete, id: id})
}

func (s *Syncer) enqueue(ctx context.Context, t task) error {
	// Keep the caller's correlation fields for the worker's log lines.
	if l := ctx.Value(loggerAttrsKey{}); l != nil {
		t.attrs = l.([]any)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		syncTasks.WithLabelValues(string(t.op), "closed").Inc()
		return ErrClosed
	}

	select {
	case s.queueFor(t.id) <- t:
		syncQueueDepth.Inc()
		return nil
	default:
		syncTasks.WithLabelValues(string(t.op), "dropped").Inc()
		s.logger.WarnContext(ctx, "index sync queue full, dropping task",
			slog.String("op", string(t.op)),
			slog.String("product_id", t.id),
		)
		return ErrQueueFull
	}
}

func (s *Syncer) work(queue <-chan task) {
	defer s.wg.Done()
	for t := range queue {
		syncQueueDepth.Dec()
		s.apply(t)
	}
}

func (s *Syncer) apply(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var err error
	switch t.op {
	case opDelete:
		err = s.indexer.RemoveProduct(ctx, t.id)
	default:
		err = s.indexer.IndexProduct(ctx, &t.product)
	}

	log := s.logger.With(t.attrs...)
	if err != nil {
		syncTasks.WithLabelValues(string(t.op), "error").Inc()
		log.ErrorContext(ctx, "index sync task failed",
			slog.String("op", string(t.op)),
			slog.String("product_id", t.id),
			slog.String("error", err.Error()),
		)
		return
	}
	syncTasks.WithLabelValues(string(t.op), "ok").Inc()
	log.DebugContext(ctx, "index sync task applied",
		slog.String("op", string(t.op)),
		slog.String("product_id", t.id),
	)
}

// Close stops accepting tasks, drains the queue and waits for the workers.
// It is safe to call more than once.
func (s *Syncer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

type loggerAttrsKey struct{}

// WithLogAttrs attaches attributes that workers add to the log lines of
// tasks enqueued with ctx.
func WithLogAttrs(ctx context.Context, attrs ...any) context.Context {
	return context.WithValue(ctx, loggerAttrsKey{}, attrs)
}

func cloneProduct(p *domain.Product) domain.Product {
	c := *p
	if p.Genres != nil {
		c.Genres = append([]string(nil), p.Genres...)
	}
	if p.SalePrice != nil {
		sale := *p.SalePrice
		c.SalePrice = &sale
	}
	return c
}

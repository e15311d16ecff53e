package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
)

// BreakerConfig holds circuit breaker and timeout settings for an index client.
type BreakerConfig struct {
	// Name identifies this breaker in metrics and logs.
	Name string

	// CallTimeout bounds every interactive call (search, upsert, delete,
	// stats, ping). Bulk import and clear are bounded by the caller.
	CallTimeout time.Duration

	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration

	// OpenTimeout is how long the breaker stays open before half-opening.
	OpenTimeout time.Duration

	// FailureRatio trips the breaker once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns defaults for the search index breaker.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		CallTimeout:  1500 * time.Millisecond,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		OpenTimeout:  30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var breakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "search_index_breaker_state",
		Help: "Current state of the search index circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

func init() {
	prometheus.MustRegister(breakerState)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Breaker decorates an IndexClient with a circuit breaker and per-call
// timeouts. Every failure it returns wraps ErrIndexUnavailable except
// document validation errors, which do not count against the breaker.
type Breaker struct {
	next    IndexClient
	cb      *gobreaker.CircuitBreaker[any]
	timeout time.Duration
	logger  *slog.Logger
}

var _ IndexClient = (*Breaker)(nil)

// NewBreaker wraps next.
func NewBreaker(next IndexClient, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("search index circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrInvalidDocument) ||
				errors.Is(err, context.Canceled)
		},
	}
	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &Breaker{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker[any](settings),
		timeout: cfg.CallTimeout,
		logger:  logger,
	}
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *Breaker) execute(op string, fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, domain.ErrInvalidDocument) || errors.Is(err, ErrIndexUnavailable) {
		return nil, err
	}
	return nil, fmt.Errorf("%s: %w: %w", op, ErrIndexUnavailable, err)
}

func (b *Breaker) Upsert(ctx context.Context, doc *domain.SearchableDocument) error {
	ctx, cancel := b.bounded(ctx)
	defer cancel()
	_, err := b.execute("upsert", func() (any, error) {
		return nil, b.next.Upsert(ctx, doc)
	})
	return err
}

func (b *Breaker) BulkImport(ctx context.Context, docs []domain.SearchableDocument) (*domain.BulkResult, error) {
	out, err := b.execute("bulk import", func() (any, error) {
		return b.next.BulkImport(ctx, docs)
	})
	if err != nil {
		return nil, err
	}
	return out.(*domain.BulkResult), nil
}

func (b *Breaker) Search(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	ctx, cancel := b.bounded(ctx)
	defer cancel()
	out, err := b.execute("search", func() (any, error) {
		return b.next.Search(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return out.(*domain.SearchResult), nil
}

func (b *Breaker) Delete(ctx context.Context, id string) error {
	ctx, cancel := b.bounded(ctx)
	defer cancel()
	_, err := b.execute("delete", func() (any, error) {
		return nil, b.next.Delete(ctx, id)
	})
	return err
}

func (b *Breaker) Clear(ctx context.Context) error {
	_, err := b.execute("clear", func() (any, error) {
		return nil, b.next.Clear(ctx)
	})
	return err
}

func (b *Breaker) Stats(ctx context.Context) (*domain.IndexStats, error) {
	ctx, cancel := b.bounded(ctx)
	defer cancel()
	out, err := b.execute("stats", func() (any, error) {
		return b.next.Stats(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.(*domain.IndexStats), nil
}

// Ping bypasses the breaker so readiness reflects the real backend.
func (b *Breaker) Ping(ctx context.Context) error {
	ctx, cancel := b.bounded(ctx)
	defer cancel()
	return b.next.Ping(ctx)
}

// Suggest delegates to the wrapped client when it has a prefix lookup.
func (b *Breaker) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	s, ok := b.next.(Suggester)
	if !ok {
		return nil, errors.ErrUnsupported
	}
	ctx, cancel := b.bounded(ctx)
	defer cancel()
	out, err := b.execute("suggest", func() (any, error) {
		return s.Suggest(ctx, prefix, limit)
	})
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}

// BeginSwap delegates to the wrapped client when it supports swapping.
func (b *Breaker) BeginSwap(ctx context.Context) (Staging, error) {
	s, ok := b.next.(Swapper)
	if !ok {
		return nil, errors.ErrUnsupported
	}
	return s.BeginSwap(ctx)
}

// Unwrap returns the decorated client.
func (b *Breaker) Unwrap() IndexClient { return b.next }

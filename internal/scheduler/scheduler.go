// Package scheduler runs the periodic full reindex.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sedirimou/Gameva-sub003/internal/service"
	apperrors "github.com/sedirimou/Gameva-sub003/pkg/errors"
)

// Reindexer rebuilds the index.
type Reindexer interface {
	ReindexAll(ctx context.Context) (*service.ReindexReport, error)
}

// Scheduler triggers a full reindex on a cron expression.
type Scheduler struct {
	cron      *cron.Cron
	reindexer Reindexer
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	entry   cron.EntryID
}

// New parses spec (standard five-field cron syntax, or descriptors such as
// "@every 6h") and returns a stopped scheduler. Runs are bounded by timeout.
func New(spec string, reindexer Reindexer, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	s := &Scheduler{
		cron:      c,
		reindexer: reindexer,
		timeout:   timeout,
		logger:    logger,
	}

	id, err := c.AddFunc(spec, s.run)
	if err != nil {
		return nil, fmt.Errorf("parse reindex schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("reindex scheduler started", slog.Time("next_run", s.cron.Entry(s.entry).Next))
}

// Stop halts the schedule and waits for a run in progress, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("reindex scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.reindexer.ReindexAll(ctx)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "scheduled reindex completed",
			slog.Int("indexed", report.Indexed),
			slog.Int("failed", report.Failed),
		)
	case errors.Is(err, apperrors.ErrConflict):
		s.logger.InfoContext(ctx, "scheduled reindex skipped, another reindex is running")
	default:
		s.logger.ErrorContext(ctx, "scheduled reindex failed", slog.String("error", err.Error()))
	}
}

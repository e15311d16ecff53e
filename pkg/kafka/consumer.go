package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 100 * time.Millisecond
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration. DLQ and Idempotency
// are optional.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topics      []string
	MinBytes    int
	MaxBytes    int
	MaxRetries  int
	DLQ         *DLQProducer
	Idempotency IdempotencyStore
}

// Consumer reads events from one or more topics within a consumer group.
// Every fetched message is committed exactly once: after success, after it
// is recognised as a duplicate, or after it has been dead-lettered.
type Consumer struct {
	reader      messageReader
	group       string
	handler     Handler
	dlq         *DLQProducer
	idempotency IdempotencyStore
	maxRetries  int
	backoff     time.Duration
	logger      *slog.Logger
	closeOnce   sync.Once
}

// NewConsumer creates a group consumer over cfg.Topics.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, logger)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	return &Consumer{
		reader:      r,
		group:       cfg.GroupID,
		handler:     handler,
		dlq:         cfg.DLQ,
		idempotency: cfg.Idempotency,
		maxRetries:  retries,
		backoff:     defaultRetryBackoff,
		logger:      logger,
	}
}

// Start consumes until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", slog.String("group", c.group))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("consumer stopping", slog.String("group", c.group))
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// process handles one message. It never returns an error: failures end in
// the DLQ (when configured) so the partition keeps moving.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ConsumerMessagesReceived.WithLabelValues(msg.Topic, c.group).Inc()
	ctx = extractTraceContext(ctx, &msg)

	start := time.Now()
	defer func() {
		ConsumerProcessingDuration.WithLabelValues(msg.Topic, c.group).Observe(time.Since(start).Seconds())
	}()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to decode event",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.fail(ctx, msg, err)
		return
	}

	if c.isDuplicate(ctx, event) {
		ConsumerMessagesDuplicate.WithLabelValues(msg.Topic, c.group).Inc()
		c.logger.DebugContext(ctx, "skipping duplicate event", slog.String("event_id", event.EventID))
		return
	}

	if err := c.handleWithRetry(ctx, event); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.ErrorContext(ctx, "handler failed after all retries",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int("retries", c.maxRetries),
			slog.String("error", err.Error()),
		)
		c.fail(ctx, msg, err)
		return
	}

	ConsumerMessagesProcessed.WithLabelValues(msg.Topic, c.group).Inc()
	if c.idempotency != nil && event.EventID != "" {
		if err := c.idempotency.Add(ctx, event.EventID); err != nil {
			c.logger.WarnContext(ctx, "failed to record processed event",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// isDuplicate treats store errors as "not seen"; reprocessing an index
// update is harmless.
func (c *Consumer) isDuplicate(ctx context.Context, event *Event) bool {
	if c.idempotency == nil || event.EventID == "" {
		return false
	}
	seen, err := c.idempotency.Contains(ctx, event.EventID)
	if err != nil {
		c.logger.WarnContext(ctx, "idempotency lookup failed, processing anyway",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return seen
}

func (c *Consumer) handleWithRetry(ctx context.Context, event *Event) error {
	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err = c.handler(ctx, event); err == nil {
			return nil
		}
		c.logger.WarnContext(ctx, "handler failed",
			slog.String("event_type", event.EventType),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
	}
	return err
}

func (c *Consumer) fail(ctx context.Context, msg kafka.Message, cause error) {
	ConsumerMessagesFailed.WithLabelValues(msg.Topic, c.group).Inc()
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
		c.logger.ErrorContext(ctx, "failed to dead-letter message", slog.String("error", err.Error()))
		return
	}
	ConsumerDLQPublished.WithLabelValues(msg.Topic, c.group).Inc()
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}

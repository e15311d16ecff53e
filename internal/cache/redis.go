package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
)

const defaultKeyPrefix = "search:"

// RedisCache shares cached results between service replicas. Keys embed a
// generation number; Invalidate bumps it so every older entry becomes
// unreachable and expires on its own.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a Redis-backed result cache.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) genKey() string { return c.prefix + "gen" }

func (c *RedisCache) generation(ctx context.Context) (Generation, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return Generation(gen), err
}

func (c *RedisCache) entryKey(gen Generation, key string) string {
	return c.prefix + strconv.FormatInt(int64(gen), 10) + ":" + key
}

// Get returns the cached result for key under the current generation.
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.SearchResult, Generation, bool) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "search cache generation read failed", slog.String("error", err.Error()))
		return nil, NoGeneration, false
	}

	data, err := c.client.Get(ctx, c.entryKey(gen, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "search cache read failed", slog.String("error", err.Error()))
		}
		return nil, gen, false
	}

	var res domain.SearchResult
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.WarnContext(ctx, "search cache entry corrupt", slog.String("key", key), slog.String("error", err.Error()))
		return nil, gen, false
	}
	return &res, gen, true
}

// Set stores result under gen. An entry written under a generation that has
// since been bumped is unreachable and expires with its TTL.
func (c *RedisCache) Set(ctx context.Context, key string, gen Generation, result *domain.SearchResult) {
	if gen == NoGeneration {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		c.logger.WarnContext(ctx, "marshal search result", slog.String("error", err.Error()))
		return
	}

	if err := c.client.Set(ctx, c.entryKey(gen, key), data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "search cache write failed", slog.String("error", err.Error()))
	}
}

// Invalidate bumps the generation atomically.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.genKey()).Err(); err != nil {
		return fmt.Errorf("redis incr cache generation: %w", err)
	}
	return nil
}

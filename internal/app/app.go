package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sedirimou/Gameva-sub003/internal/cache"
	"github.com/sedirimou/Gameva-sub003/internal/config"
	"github.com/sedirimou/Gameva-sub003/internal/engine"
	esengine "github.com/sedirimou/Gameva-sub003/internal/engine/elasticsearch"
	"github.com/sedirimou/Gameva-sub003/internal/engine/memory"
	"github.com/sedirimou/Gameva-sub003/internal/event"
	handler "github.com/sedirimou/Gameva-sub003/internal/handler/http"
	"github.com/sedirimou/Gameva-sub003/internal/indexsync"
	"github.com/sedirimou/Gameva-sub003/internal/repository/postgres"
	"github.com/sedirimou/Gameva-sub003/internal/scheduler"
	"github.com/sedirimou/Gameva-sub003/internal/service"
	"github.com/sedirimou/Gameva-sub003/migrations"
	"github.com/sedirimou/Gameva-sub003/pkg/database"
	"github.com/sedirimou/Gameva-sub003/pkg/health"
	pkgkafka "github.com/sedirimou/Gameva-sub003/pkg/kafka"
	"github.com/sedirimou/Gameva-sub003/pkg/middleware"
	"github.com/sedirimou/Gameva-sub003/pkg/tracing"
)

// ServiceName identifies the search service in logs, traces and events.
const ServiceName = "search-service"

// App wires together all dependencies and runs the search service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool      *pgxpool.Pool
	rdb       *redis.Client
	producer  *pkgkafka.Producer
	dlq       *pkgkafka.DLQProducer
	consumer  *pkgkafka.Consumer
	syncer    *indexsync.Syncer
	scheduler *scheduler.Scheduler
	search    *service.SearchService
	indexing  *service.IndexingService

	reindexOnStart bool
	httpServer     *http.Server
	shutdownTracer func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		// Release whatever was opened before the failure.
		_ = a.Shutdown()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	shutdown, err := tracing.InitTracer(ctx, cfg.Tracing(ServiceName))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracer = shutdown

	// PostgreSQL: product source, relational fallback and search history.
	database.SetSlowQueryLogging(cfg.SlowQuery, logger)
	pg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pg, logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	database.RegisterPoolMetrics(pool, "search")
	logger.Info("connected to PostgreSQL", slog.String("host", pg.Host), slog.String("db", pg.DBName))

	if cfg.RunMigrations {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	products := postgres.NewProductRepository(pool)

	// Search index behind the circuit breaker.
	index, err := a.newIndex(ctx)
	if err != nil {
		return err
	}
	breakerCfg := engine.DefaultBreakerConfig(cfg.SearchEngine)
	breakerCfg.CallTimeout = cfg.IndexTimeout
	guarded := engine.NewBreaker(index, breakerCfg, logger)

	// Response cache.
	resultCache, err := a.newCache(ctx)
	if err != nil {
		return err
	}

	// Kafka producer for search.reindexed.
	var publisher service.EventPublisher
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
	}

	// Services.
	a.indexing = service.NewIndexingService(guarded, products, service.IndexingConfig{
		Cache:     resultCache,
		Publisher: publisher,
		Strategy:  cfg.ReindexStrategy,
		BatchSize: cfg.ReindexBatchSize,
	}, logger)

	opts := []service.SearchOption{service.WithCache(resultCache)}
	if cfg.FallbackEnabled {
		opts = append(opts, service.WithFallback(postgres.NewSearchRepository(pool)))
	}
	if cfg.HistoryEnabled {
		opts = append(opts, service.WithHistory(postgres.NewHistoryRepository(pool), cfg.HistoryTimeout))
	}
	a.search = service.NewSearchService(guarded, logger, opts...)

	a.syncer = indexsync.New(a.indexing, indexsync.Config{
		QueueSize: cfg.SyncQueueSize,
		Workers:   cfg.SyncWorkers,
	}, logger)

	// Kafka consumer for product events.
	if cfg.KafkaEnabled {
		consumerCfg := pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topics:   event.Topics,
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}
		if cfg.KafkaDLQ {
			a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
			consumerCfg.DLQ = a.dlq
		}
		if a.rdb != nil {
			consumerCfg.Idempotency = pkgkafka.NewRedisIdempotencyStore(a.rdb, "search:events:", cfg.IdempotencyTTL)
		} else {
			consumerCfg.Idempotency = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
		}

		handlerFn := event.NewConsumer(a.syncer, products, logger).Handle
		a.consumer = pkgkafka.NewConsumer(consumerCfg, handlerFn, logger)
		logger.Info("kafka consumer initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Any("topics", event.Topics),
		)
	}

	if cfg.ReindexCron != "" {
		a.scheduler, err = scheduler.New(cfg.ReindexCron, a.indexing, cfg.ReindexTimeout, logger)
		if err != nil {
			return err
		}
	}

	// Health checks. The index is optional: searches degrade to SQL.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", pool.Ping)
	healthHandler.RegisterOptional("search_index", guarded.Ping)
	if a.rdb != nil {
		healthHandler.RegisterOptional("redis", func(ctx context.Context) error {
			return a.rdb.Ping(ctx).Err()
		})
	}
	if cfg.KafkaEnabled {
		healthHandler.RegisterOptional("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}

	adminTokens := middleware.StaticTokenValidator(cfg.AdminToken)
	if cfg.AdminJWTSecret != "" {
		adminTokens = middleware.AnyValidator(adminTokens, middleware.JWTValidator(cfg.AdminJWTSecret))
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSOrigins

	router := handler.NewRouter(handler.RouterConfig{
		Search:            a.search,
		Indexing:          a.indexing,
		Health:            healthHandler,
		Logger:            logger,
		AdminTokens:       adminTokens,
		CORS:              cors,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
		RateLimitRPS:      cfg.RateLimitRPS,
		RateLimitBurst:    cfg.RateLimitBurst,
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ReindexTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

func (a *App) newIndex(ctx context.Context) (engine.IndexClient, error) {
	cfg := a.cfg
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		esEng, err := esengine.New(ctx, esengine.Config{
			URL:      cfg.ElasticsearchURL,
			Username: cfg.ElasticsearchUser,
			Password: cfg.ElasticsearchPass,
			Alias:    cfg.ElasticsearchIndex,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		a.logger.Info("elasticsearch search engine initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
		return esEng, nil
	default:
		// The in-process index starts empty; fill it once running.
		a.reindexOnStart = true
		a.logger.Info("in-memory search engine initialized")
		return memory.New(memory.NewStore(memory.DefaultIndexName), a.logger), nil
	}
}

func (a *App) newCache(ctx context.Context) (cache.Cache, error) {
	cfg := a.cfg
	switch cfg.CacheBackend {
	case config.CacheRedis:
		rdb, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		a.logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
		return cache.NewRedisCache(rdb, "search:cache:", cfg.CacheTTL, a.logger), nil
	case config.CacheMemory:
		return cache.NewLRUCache(cfg.CacheSize, cfg.CacheTTL), nil
	default:
		return cache.Noop{}, nil
	}
}

// Run starts the HTTP server, the Kafka consumer and the reindex schedule,
// blocking until the context is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Start(gctx); err != nil {
				return fmt.Errorf("kafka consumer: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	if a.reindexOnStart {
		g.Go(func() error {
			if _, err := a.indexing.ReindexAll(gctx); err != nil {
				a.logger.Error("initial reindex failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components. It tolerates a partially
// initialized App.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// Drain queued index updates and history writes before their stores go away.
	if a.syncer != nil {
		a.syncer.Close()
	}
	if a.search != nil {
		a.search.Close()
	}

	if a.dlq != nil {
		errs = append(errs, a.dlq.Close())
	}
	if a.producer != nil {
		errs = append(errs, a.producer.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.shutdownTracer != nil {
		errs = append(errs, a.shutdownTracer(shutdownCtx))
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.ShutdownTimeout > 0 {
		return a.cfg.ShutdownTimeout
	}
	return 10 * time.Second
}

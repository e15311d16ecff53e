package config

import (
	"fmt"
	"slices"
	"time"

	pkgconfig "github.com/sedirimou/Gameva-sub003/pkg/config"
	"github.com/sedirimou/Gameva-sub003/pkg/database"
	"github.com/sedirimou/Gameva-sub003/pkg/tracing"
)

// Index backends.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Cache backends.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Search index
	SearchEngine       string        `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURL   string        `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string        `env:"ELASTICSEARCH_INDEX" envDefault:"storefront_products"`
	ElasticsearchUser  string        `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPass  string        `env:"ELASTICSEARCH_PASSWORD"`
	IndexTimeout       time.Duration `env:"SEARCH_INDEX_TIMEOUT" envDefault:"1500ms"`

	// Relational fallback and product source
	FallbackEnabled bool          `env:"SEARCH_FALLBACK_ENABLED" envDefault:"true"`
	PostgresHost    string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort    int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser    string        `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass    string        `env:"POSTGRES_PASSWORD" envDefault:"storefront"`
	PostgresDB      string        `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSLMode string        `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	PostgresMaxConn int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	PostgresMinConn int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations   bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	SlowQuery       time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Response cache
	CacheBackend  string        `env:"SEARCH_CACHE" envDefault:"redis"`
	CacheTTL      time.Duration `env:"SEARCH_CACHE_TTL" envDefault:"60s"`
	CacheSize     int           `env:"SEARCH_CACHE_SIZE" envDefault:"1000"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`

	// Search history
	HistoryEnabled bool          `env:"SEARCH_HISTORY_ENABLED" envDefault:"true"`
	HistoryTimeout time.Duration `env:"SEARCH_HISTORY_TIMEOUT" envDefault:"2s"`

	// Kafka
	KafkaEnabled   bool          `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers   []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID   string        `env:"KAFKA_GROUP_ID" envDefault:"search-service"`
	KafkaDLQ       bool          `env:"KAFKA_DLQ_ENABLED" envDefault:"true"`
	IdempotencyTTL time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`

	// Index sync and reindex
	SyncQueueSize    int           `env:"SEARCH_SYNC_QUEUE_SIZE" envDefault:"1024"`
	SyncWorkers      int           `env:"SEARCH_SYNC_WORKERS" envDefault:"4"`
	ReindexStrategy  string        `env:"SEARCH_REINDEX_STRATEGY" envDefault:"swap"`
	ReindexBatchSize int           `env:"SEARCH_REINDEX_BATCH_SIZE" envDefault:"500"`
	ReindexCron      string        `env:"SEARCH_REINDEX_CRON"`
	ReindexTimeout   time.Duration `env:"SEARCH_REINDEX_TIMEOUT" envDefault:"30m"`

	// Admin API. Either a shared token or admin-role JWTs from the user service.
	AdminToken     string `env:"ADMIN_API_TOKEN"`
	AdminJWTSecret string `env:"JWT_SECRET"`

	// Public rate limit per client IP; 0 disables.
	RateLimitRPS   float64 `env:"SEARCH_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"SEARCH_RATE_LIMIT_BURST" envDefault:"40"`

	// Observability
	TracingEnabled    bool     `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint      string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64  `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !slices.Contains([]string{EngineElasticsearch, EngineMemory}, c.SearchEngine) {
		return fmt.Errorf("invalid SEARCH_ENGINE %q: want elasticsearch or memory", c.SearchEngine)
	}
	if !slices.Contains([]string{CacheRedis, CacheMemory, CacheNone}, c.CacheBackend) {
		return fmt.Errorf("invalid SEARCH_CACHE %q: want redis, memory or none", c.CacheBackend)
	}
	if c.ReindexStrategy != "swap" && c.ReindexStrategy != "inplace" {
		return fmt.Errorf("invalid SEARCH_REINDEX_STRATEGY %q: want swap or inplace", c.ReindexStrategy)
	}
	if c.IndexTimeout <= 0 {
		return fmt.Errorf("SEARCH_INDEX_TIMEOUT must be positive")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("SEARCH_RATE_LIMIT_RPS must not be negative")
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.TracingSampleRate)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	return nil
}

// Postgres returns the database pool configuration.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSLMode
	pg.MaxConns = c.PostgresMaxConn
	pg.MinConns = c.PostgresMinConn
	return pg
}

// Redis returns the cache client configuration.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Addr = c.RedisAddr
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// Tracing returns the OpenTelemetry configuration.
func (c *Config) Tracing(serviceName string) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.Environment = c.Environment
	tc.Enabled = c.TracingEnabled
	tc.OTLPEndpoint = c.OTLPEndpoint
	tc.SampleRate = c.TracingSampleRate
	return tc
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sedirimou/Gameva-sub003/internal/service"
	"github.com/sedirimou/Gameva-sub003/pkg/health"
	"github.com/sedirimou/Gameva-sub003/pkg/middleware"
)

const (
	serviceName    = "search"
	requestTimeout = 30 * time.Second
	suggestMaxAge  = 60
)

// RouterConfig carries the dependencies of NewRouter.
type RouterConfig struct {
	Search   *service.SearchService
	Indexing *service.IndexingService
	Health   *health.Handler
	Logger   *slog.Logger

	// AdminTokens validates bearer tokens on the admin routes. Nil rejects
	// every admin request.
	AdminTokens       middleware.TokenValidator
	CORS              middleware.CORSConfig
	PprofAllowedCIDRs []string

	// RateLimitRPS limits public search requests per client IP; 0 disables.
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(serviceName))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, cfg.Logger)

	// Search API endpoints
	searchHandler := NewSearchHandler(cfg.Search, cfg.Logger)

	r.Route("/api/v1/search", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.Logger))
		r.Use(chimw.Compress(5))
		r.Use(chimw.Timeout(requestTimeout))

		r.Get("/", searchHandler.Search)
		r.Get("/browse", searchHandler.Browse)
		r.Get("/history", searchHandler.History)
		r.With(middleware.CacheControl(suggestMaxAge)).Get("/suggest", searchHandler.Suggest)
	})

	// Admin endpoints
	validate := cfg.AdminTokens
	if validate == nil {
		validate = middleware.StaticTokenValidator("")
	}
	adminHandler := NewAdminHandler(cfg.Indexing, cfg.Logger)

	r.Route("/api/v1/admin/search", func(r chi.Router) {
		r.Use(middleware.Auth(validate))
		r.Use(middleware.RequireRole(middleware.RoleAdmin))

		r.Get("/", adminHandler.Get)
		r.Post("/", adminHandler.Post)
	})

	return r
}

// Package server exposes the review workflow over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/cache"
	"github.com/aimerfeng/ReviewDesk/internal/config"
	apierrors "github.com/aimerfeng/ReviewDesk/internal/errors"
	"github.com/aimerfeng/ReviewDesk/internal/logging"
	"github.com/aimerfeng/ReviewDesk/internal/middleware"
	"github.com/aimerfeng/ReviewDesk/internal/monitoring"
	"github.com/aimerfeng/ReviewDesk/internal/ratelimit"
	"github.com/aimerfeng/ReviewDesk/internal/reply"
	"github.com/aimerfeng/ReviewDesk/internal/settings"
	"github.com/aimerfeng/ReviewDesk/internal/store"
	"github.com/aimerfeng/ReviewDesk/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// Dependencies are the services the API server routes to. Store, Limiter,
// Breakers and Redis may be nil.
type Dependencies struct {
	Store    store.Store
	Reviews  *reply.Service
	Settings *settings.Service
	Limiter  *ratelimit.Limiter
	Breakers *upstream.Breakers
	Redis    *cache.Redis
}

// APIServer represents the main API server
type APIServer struct {
	config   *config.Config
	router   *gin.Engine
	store    store.Store
	reviews  *reply.Service
	settings *settings.Service
	limiter  *ratelimit.Limiter
	breakers *upstream.Breakers
	redis    *cache.Redis
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, deps Dependencies) *APIServer {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	// Review payloads keep numbers as json.Number so ratings parse exactly
	binding.EnableDecoderUseNumber = true

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	srv := &APIServer{
		config:   cfg,
		router:   router,
		store:    deps.Store,
		reviews:  deps.Reviews,
		settings: deps.Settings,
		limiter:  deps.Limiter,
		breakers: deps.Breakers,
		redis:    deps.Redis,
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)
	if s.config.Monitoring.PrometheusEnabled {
		s.router.GET("/metrics", monitoring.GinHandler())
	}

	v1 := s.router.Group("/api/v1")
	{
		reviews := v1.Group("/reviews")
		{
			reviews.GET("", s.handleListReviews)
			reviews.GET("/stats", s.handleStats)
			reviews.POST("/ingest", s.handleIngest)
			reviews.POST("/google", s.handleSync(sourceGoogle))
			reviews.POST("/tripadvisor", s.handleSync(sourceTripAdvisor))
			reviews.POST("/google/webhook", s.handlePost)
			reviews.POST("/mark-posted", s.handleMarkPosted)

			// Drafting calls the reply generator and is rate limited per client
			drafts := reviews.Group("/draft")
			drafts.Use(middleware.RateLimit(s.limiter, "draft"))
			{
				drafts.POST("", s.handleDraft)
				drafts.POST("/all", s.handleDraftAll)
			}
		}

		v1.GET("/settings", s.handleGetSettings)
		v1.POST("/settings", s.handleSaveSettings)
	}
}

// healthCheck reports the store and Redis connections and breaker states.
// A failing store makes the service unhealthy; Redis is optional.
func (s *APIServer) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	switch {
	case s.store == nil:
		checks["store"] = "not_configured"
		status = http.StatusServiceUnavailable
	case s.store.Ping(ctx) != nil:
		checks["store"] = "unavailable"
		status = http.StatusServiceUnavailable
	default:
		checks["store"] = "ok"
	}

	switch {
	case s.redis == nil:
		checks["redis"] = "disabled"
	case s.redis.Health(ctx) != nil:
		checks["redis"] = "unavailable"
	default:
		checks["redis"] = "ok"
	}

	body := gin.H{
		"status":  "healthy",
		"service": "api",
		"checks":  checks,
	}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}
	if s.breakers != nil {
		body["breakers"] = s.breakers.Status()
	}
	c.JSON(status, body)
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	middleware.RespondWithError(c, err)
}

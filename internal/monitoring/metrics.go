package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream service metrics (generator and posting webhooks)
	UpstreamLatency  *prometheus.HistogramVec
	UpstreamRequests *prometheus.CounterVec
	UpstreamErrors   *prometheus.CounterVec

	// Posting webhook metrics
	PostingRequests *prometheus.CounterVec

	// Pipeline metrics
	IngestItems      *prometheus.CounterVec
	AutomationItems  *prometheus.CounterVec
	ReplyTransitions *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBQueryDuration     *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

var (
	metrics  *Metrics
	initOnce sync.Once
)

// Init initializes all Prometheus metrics
func Init() *Metrics {
	initOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		UpstreamLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reply_upstream_latency_seconds",
				Help:    "Upstream service response latency in seconds",
				Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"service"},
		),
		UpstreamRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reply_upstream_requests_total",
				Help: "Total number of requests to upstream services",
			},
			[]string{"service", "status"},
		),
		UpstreamErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reply_upstream_errors_total",
				Help: "Total number of upstream service errors",
			},
			[]string{"service", "error_type"},
		),

		PostingRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reply_posting_requests_total",
				Help: "Total number of replies forwarded to a posting webhook",
			},
			[]string{"source", "status"},
		),

		IngestItems: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_ingest_items_total",
				Help: "Ingested review items by outcome",
			},
			[]string{"source", "outcome"},
		),
		AutomationItems: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_automation_items_total",
				Help: "Automated drafting items by outcome",
			},
			[]string{"source", "outcome"},
		),
		ReplyTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_reply_transitions_total",
				Help: "Reply writes by transition and whether they applied",
			},
			[]string{"transition", "applied"},
		),

		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"route"},
		),

		DBConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_type"},
		),

		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 0.5=half-open)",
			},
			[]string{"service"},
		),
	}
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Init()
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinHandler returns a Gin-compatible handler for Prometheus metrics
func GinHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordUpstreamLatency records reply generator latency
func RecordUpstreamLatency(service string, duration time.Duration) {
	Get().UpstreamLatency.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordUpstreamRequest records an upstream service request
func RecordUpstreamRequest(service, status string) {
	Get().UpstreamRequests.WithLabelValues(service, status).Inc()
}

// RecordUpstreamError records an upstream service error
func RecordUpstreamError(service, errorType string) {
	Get().UpstreamErrors.WithLabelValues(service, errorType).Inc()
}

// RecordPosting records a posting webhook call
func RecordPosting(source, status string) {
	Get().PostingRequests.WithLabelValues(source, status).Inc()
}

// RecordIngest records the outcome of one ingested item
func RecordIngest(source, outcome string) {
	Get().IngestItems.WithLabelValues(source, outcome).Inc()
}

// RecordAutomation records the outcome of one automated draft
func RecordAutomation(source, outcome string) {
	Get().AutomationItems.WithLabelValues(source, outcome).Inc()
}

// RecordReplyTransition records a conditional reply write
func RecordReplyTransition(transition string, applied bool) {
	Get().ReplyTransitions.WithLabelValues(transition, strconv.FormatBool(applied)).Inc()
}

// RecordRateLimitHit records a rate limit hit
func RecordRateLimitHit(route string) {
	Get().RateLimitHits.WithLabelValues(route).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(queryType string, duration time.Duration) {
	Get().DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
}

// SetDBConnections sets database connection metrics
func SetDBConnections(active, idle int) {
	Get().DBConnectionsActive.Set(float64(active))
	Get().DBConnectionsIdle.Set(float64(idle))
}

// SetCircuitBreakerState sets the circuit breaker state
// state: 0=closed, 1=open, 0.5=half-open
func SetCircuitBreakerState(service string, state float64) {
	Get().CircuitBreakerState.WithLabelValues(service).Set(state)
}

package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger based on configuration
func Setup(cfg *config.LoggingConfig, env string) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer
	if cfg.Format == "json" || env == "production" {
		output = os.Stdout
	} else {
		// Pretty console output for development
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "reviewdesk").
		Logger()
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request ID stored by WithRequestID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		} else if c.Writer.Status() >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// GenerationLogEntry represents a structured log entry for reply generation calls
type GenerationLogEntry struct {
	RequestID string        `json:"request_id"`
	ReviewID  string        `json:"review_id"`
	Source    string        `json:"source"`
	Mode      string        `json:"mode"`
	Latency   time.Duration `json:"latency_ms"`
	Status    string        `json:"status"`
	ErrorCode string        `json:"error_code,omitempty"`
}

// LogGeneration logs a reply generation with structured data
func LogGeneration(entry *GenerationLogEntry) {
	event := log.Info()
	if entry.Status == "error" {
		event = log.Error()
	}

	event.
		Str("request_id", entry.RequestID).
		Str("review_id", entry.ReviewID).
		Str("source", entry.Source).
		Str("mode", entry.Mode).
		Dur("latency", entry.Latency).
		Str("status", entry.Status).
		Str("error_code", entry.ErrorCode).
		Msg("Reply generation")
}

// LogIngest logs the tally of an ingestion batch
func LogIngest(source string, stored, updated, skipped, failed int, latency time.Duration) {
	event := log.Info()
	if failed > 0 {
		event = log.Warn()
	}
	event.
		Str("source", source).
		Int("stored", stored).
		Int("updated", updated).
		Int("skipped", skipped).
		Int("failed", failed).
		Dur("latency", latency).
		Msg("Ingest batch")
}

// LogPosting logs a reply forwarded to a posting webhook
func LogPosting(requestID, reviewID, source, status string, updated bool) {
	log.Info().
		Str("request_id", requestID).
		Str("review_id", reviewID).
		Str("source", source).
		Str("status", status).
		Bool("updated", updated).
		Msg("Reply posting")
}

// LogError logs an error with context
func LogError(err error, requestID, component, operation string) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("component", component).
		Str("operation", operation).
		Msg("Error occurred")
}

// SanitizeForLog truncates long strings for logging
func SanitizeForLog(data string, maxLen int) string {
	if len(data) > maxLen {
		return data[:maxLen] + "...[truncated]"
	}
	return data
}

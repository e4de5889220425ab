package upstream

import (
	"context"
	"net/http"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/config"
	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/aimerfeng/ReviewDesk/internal/monitoring"
)

// ServiceGenerator is the breaker and metrics label for reply generation
const ServiceGenerator = "generator"

// GenerateRequest is the body sent to the reply webhook
type GenerateRequest struct {
	Prompt            string  `json:"prompt"`
	ReviewText        *string `json:"reviewText"`
	PreferredLanguage *string `json:"preferredLanguage"`
}

// Generator calls the reply generation webhook
type Generator struct {
	url      string
	timeout  time.Duration
	client   *http.Client
	breakers *Breakers
}

// NewGenerator creates a generator client. An empty URL yields a client
// whose calls fail with ErrNotConfigured.
func NewGenerator(cfg config.GeneratorConfig, breakers *Breakers) *Generator {
	if breakers == nil {
		breakers = NewBreakers(config.Default().CircuitBreaker)
	}
	return &Generator{
		url:      cfg.URL,
		timeout:  cfg.Timeout,
		client:   &http.Client{},
		breakers: breakers,
	}
}

// Configured reports whether a webhook URL is set
func (g *Generator) Configured() bool {
	return g != nil && g.url != ""
}

// Generate asks the webhook for a reply
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*models.GeneratedReply, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	result, err := g.breakers.Execute(ctx, ServiceGenerator, func() (any, error) {
		status, payload, err := postJSON(ctx, g.client, g.url, g.timeout, req)
		if err != nil {
			return nil, err
		}
		if !isSuccess(status) {
			return nil, serviceError("reply", status, payload)
		}
		reply, ok := ParseReply(payload)
		if !ok {
			return nil, ErrNoReply
		}
		return reply, nil
	})
	monitoring.RecordUpstreamLatency(ServiceGenerator, time.Since(start))
	if err != nil {
		monitoring.RecordUpstreamRequest(ServiceGenerator, "error")
		monitoring.RecordUpstreamError(ServiceGenerator, errorType(err))
		return nil, err
	}
	monitoring.RecordUpstreamRequest(ServiceGenerator, "success")
	return result.(*models.GeneratedReply), nil
}

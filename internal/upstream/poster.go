package upstream

import (
	"context"
	"net/http"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/config"
	"github.com/aimerfeng/ReviewDesk/internal/monitoring"
)

// ServicePoster is the breaker and metrics label for reply posting
const ServicePoster = "poster"

// PostRequest is the body sent to the posting webhook
type PostRequest struct {
	ReviewID  string `json:"reviewId"`
	Reply     string `json:"reply"`
	ReviewKey string `json:"reviewKey"`
	Source    string `json:"source"`
}

// Poster forwards approved replies to the posting webhook
type Poster struct {
	url      string
	timeout  time.Duration
	client   *http.Client
	breakers *Breakers
}

// NewPoster creates a posting client
func NewPoster(cfg config.PostingConfig, breakers *Breakers) *Poster {
	if breakers == nil {
		breakers = NewBreakers(config.Default().CircuitBreaker)
	}
	return &Poster{
		url:      cfg.GoogleWebhookURL,
		timeout:  cfg.Timeout,
		client:   &http.Client{},
		breakers: breakers,
	}
}

// Configured reports whether a webhook URL is set
func (p *Poster) Configured() bool {
	return p != nil && p.url != ""
}

// Post sends the reply and returns the decoded webhook response
func (p *Poster) Post(ctx context.Context, req PostRequest) (any, error) {
	if !p.Configured() {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	result, err := p.breakers.Execute(ctx, ServicePoster, func() (any, error) {
		status, payload, err := postJSON(ctx, p.client, p.url, p.timeout, req)
		if err != nil {
			return nil, err
		}
		if !isSuccess(status) {
			return nil, serviceError("posting", status, payload)
		}
		return payload, nil
	})
	monitoring.RecordUpstreamLatency(ServicePoster, time.Since(start))
	if err != nil {
		monitoring.RecordPosting(req.Source, "error")
		monitoring.RecordUpstreamRequest(ServicePoster, "error")
		monitoring.RecordUpstreamError(ServicePoster, errorType(err))
		return nil, err
	}
	monitoring.RecordPosting(req.Source, "success")
	monitoring.RecordUpstreamRequest(ServicePoster, "success")
	return result, nil
}

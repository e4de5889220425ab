package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/config"
	"github.com/aimerfeng/ReviewDesk/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPost_ForwardsReply(t *testing.T) {
	var received PostRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_, _ = w.Write([]byte(`{"ok":true,"postedId":"abc"}`))
	}))
	defer server.Close()

	poster := NewPoster(config.PostingConfig{GoogleWebhookURL: server.URL, Timeout: time.Second}, nil)
	result, err := poster.Post(context.Background(), PostRequest{
		ReviewID:  "google:r1",
		Reply:     "Thanks!",
		ReviewKey: "r1",
		Source:    "google",
	})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	body, ok := result.(map[string]any)
	if !ok || body["postedId"] != "abc" {
		t.Errorf("Post() result = %#v", result)
	}
	if received.ReviewID != "google:r1" || received.Reply != "Thanks!" || received.ReviewKey != "r1" || received.Source != "google" {
		t.Errorf("webhook received %+v", received)
	}
}

func TestPost_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"location not verified"}`))
	}))
	defer server.Close()

	poster := NewPoster(config.PostingConfig{GoogleWebhookURL: server.URL, Timeout: time.Second}, nil)
	_, err := poster.Post(context.Background(), PostRequest{ReviewID: "google:r1", Reply: "x", Source: "google"})
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("Post() error = %v, want *ServiceError", err)
	}
	if svcErr.Status != http.StatusForbidden || svcErr.Message != "location not verified" {
		t.Errorf("ServiceError = %+v", svcErr)
	}
}

func TestPost_RecordsUpstreamMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	m := monitoring.Get()
	posterOK := m.UpstreamRequests.WithLabelValues(ServicePoster, "success")
	generatorOK := m.UpstreamRequests.WithLabelValues(ServiceGenerator, "success")
	beforePoster := testutil.ToFloat64(posterOK)
	beforeGenerator := testutil.ToFloat64(generatorOK)

	poster := NewPoster(config.PostingConfig{GoogleWebhookURL: server.URL, Timeout: time.Second}, nil)
	if _, err := poster.Post(context.Background(), PostRequest{ReviewID: "r1", Reply: "x", Source: "Google"}); err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	if got := testutil.ToFloat64(posterOK) - beforePoster; got != 1 {
		t.Errorf("poster success requests delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(generatorOK) - beforeGenerator; got != 0 {
		t.Errorf("generator success requests delta = %v, want 0", got)
	}
}

func TestPost_NotConfigured(t *testing.T) {
	poster := NewPoster(config.PostingConfig{}, nil)
	if _, err := poster.Post(context.Background(), PostRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Post() error = %v, want ErrNotConfigured", err)
	}
}

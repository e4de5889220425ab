package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of an upstream body is read
const maxResponseBytes = 1 << 20

// postJSON sends body as JSON and returns the status and decoded response
func postJSON(ctx context.Context, client *http.Client, url string, timeout time.Duration, body any) (int, any, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	reqBody, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, nil, ErrUpstreamTimeout
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return 0, nil, ctx.Err()
		}
		return 0, nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, nil, ErrUpstreamTimeout
		}
		return 0, nil, fmt.Errorf("%w: failed to read response: %v", ErrUpstream, err)
	}

	return resp.StatusCode, DecodeBody(data), nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func serviceError(service string, status int, payload any) *ServiceError {
	msg := ParseError(payload)
	if msg == "" {
		msg = fmt.Sprintf("%s service error (%d)", service, status)
	}
	return &ServiceError{Service: service, Status: status, Message: msg}
}

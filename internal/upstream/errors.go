// Package upstream talks to the external reply generation and posting services.
package upstream

import (
	"errors"
	"net/http"
	"strconv"
)

var (
	// ErrNotConfigured is returned when the service URL is empty
	ErrNotConfigured = errors.New("upstream service not configured")
	// ErrNoReply is returned when a successful response carries no reply text
	ErrNoReply = errors.New("reply webhook did not return a reply")
	// ErrUpstream marks transport failures and upstream 5xx responses
	ErrUpstream = errors.New("upstream request failed")
	// ErrUpstreamTimeout is returned when the configured timeout elapses
	ErrUpstreamTimeout = errors.New("upstream request timed out")
	// ErrCircuitOpen is returned when the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ServiceError is a non-2xx response from an upstream service
type ServiceError struct {
	Service string
	Status  int
	Message string
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Message
}

// Unwrap classifies server-side failures as ErrUpstream
func (e *ServiceError) Unwrap() error {
	if e.Status >= http.StatusInternalServerError {
		return ErrUpstream
	}
	return nil
}

// errorType returns a metrics label for err
func errorType(err error) string {
	var svcErr *ServiceError
	switch {
	case errors.As(err, &svcErr):
		return "status_" + strconv.Itoa(svcErr.Status)
	case errors.Is(err, ErrNoReply):
		return "no_reply"
	case errors.Is(err, ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrUpstream):
		return "transport"
	default:
		return "other"
	}
}

package errors

import (
	"net/http"
	"strconv"
	"time"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Request errors (400xx)
	ErrInvalidRequest     ErrorCode = "40001"
	ErrValidationFailed   ErrorCode = "40002"
	ErrInvalidJSON        ErrorCode = "40003"
	ErrMissingParameter   ErrorCode = "40004"
	ErrMissingReviewID    ErrorCode = "40005"
	ErrPostingUnsupported ErrorCode = "40006"
	ErrInvalidCursor      ErrorCode = "40007"

	// Resource errors (404xx)
	ErrNotFound       ErrorCode = "40401"
	ErrReviewNotFound ErrorCode = "40402"

	// Rate limit errors (429xx)
	ErrRateLimited ErrorCode = "42901"

	// Server errors (500xx)
	ErrInternalServer         ErrorCode = "50001"
	ErrDatabaseError          ErrorCode = "50002"
	ErrStoreNotConfigured     ErrorCode = "50003"
	ErrGeneratorNotConfigured ErrorCode = "50004"

	// Upstream errors (502xx, 503xx, 504xx)
	ErrUpstreamError       ErrorCode = "50201"
	ErrNoReplyProduced     ErrorCode = "50202"
	ErrUpstreamUnavailable ErrorCode = "50301"
	ErrCircuitBreakerOpen  ErrorCode = "50302"
	ErrUpstreamTimeout     ErrorCode = "50401"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
	Timestamp  time.Time `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// WithMessage returns a copy of the error with a different message
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		Details:    e.Details,
		HTTPStatus: e.HTTPStatus,
		Timestamp:  time.Now().UTC(),
	}
}

// ErrorDetail is the error body of an error response
type ErrorDetail struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
	Method    string    `json:"method,omitempty"`
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error         ErrorDetail `json:"error"`
	RequestID     string      `json:"request_id"`
	CorrelationID string      `json:"correlation_id"`
}

// NewErrorResponse builds the standard error envelope
func NewErrorResponse(err *APIError, requestID, correlationID, path, method string) ErrorResponse {
	ts := err.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if correlationID == "" {
		correlationID = requestID
	}
	return ErrorResponse{
		Error: ErrorDetail{
			Code:      err.Code,
			Message:   err.Message,
			Details:   err.Details,
			Timestamp: ts.Format(time.RFC3339),
			Path:      path,
			Method:    method,
		},
		RequestID:     requestID,
		CorrelationID: correlationID,
	}
}

// GetHTTPStatusFromCode derives the HTTP status from the first three digits of a code
func GetHTTPStatusFromCode(code ErrorCode) int {
	if len(code) < 3 {
		return http.StatusInternalServerError
	}
	status, err := strconv.Atoi(string(code[:3]))
	if err != nil || http.StatusText(status) == "" {
		return http.StatusInternalServerError
	}
	return status
}

// IsClientError reports whether the error is caused by the request
func IsClientError(err *APIError) bool {
	return err.HTTPStatus >= 400 && err.HTTPStatus < 500
}

// Common errors
var (
	ErrReviewNotFoundError = &APIError{
		Code:       ErrReviewNotFound,
		Message:    "Review not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMissingReviewIDError = &APIError{
		Code:       ErrMissingReviewID,
		Message:    "Missing review id",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrPostingUnsupportedError = &APIError{
		Code:       ErrPostingUnsupported,
		Message:    "Source does not support posting replies",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSONError = &APIError{
		Code:       ErrInvalidJSON,
		Message:    "Invalid JSON body",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidCursorError = &APIError{
		Code:       ErrInvalidCursor,
		Message:    "Invalid list cursor",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrRateLimitedError = &APIError{
		Code:       ErrRateLimited,
		Message:    "Rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrDatabaseErrorError = &APIError{
		Code:       ErrDatabaseError,
		Message:    "Review store error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrStoreNotConfiguredError = &APIError{
		Code:       ErrStoreNotConfigured,
		Message:    "Review store is not configured",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrGeneratorNotConfiguredError = &APIError{
		Code:       ErrGeneratorNotConfigured,
		Message:    "Reply webhook is not configured",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrNoReplyProducedError = &APIError{
		Code:       ErrNoReplyProduced,
		Message:    "Reply webhook did not return a reply",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrUpstreamTimeoutError = &APIError{
		Code:       ErrUpstreamTimeout,
		Message:    "Upstream service timeout",
		HTTPStatus: http.StatusGatewayTimeout,
	}

	ErrUpstreamUnavailableError = &APIError{
		Code:       ErrUpstreamUnavailable,
		Message:    "Upstream service unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrCircuitBreakerOpenError = &APIError{
		Code:       ErrCircuitBreakerOpen,
		Message:    "Upstream service temporarily disabled after repeated failures",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewMissingParameterError creates an error naming a missing request field
func NewMissingParameterError(name string) *APIError {
	return &APIError{
		Code:       ErrMissingParameter,
		Message:    "Missing " + name,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewRateLimitError creates a rate limit error carrying the retry delay
func NewRateLimitError(retryAfterSeconds int64) *APIError {
	return &APIError{
		Code:       ErrRateLimited,
		Message:    "Rate limit exceeded",
		Details:    map[string]int64{"retry_after_seconds": retryAfterSeconds},
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewUpstreamError creates an error relaying an upstream service message.
// The upstream status is kept in details.
func NewUpstreamError(upstreamStatus int, message string) *APIError {
	return &APIError{
		Code:       ErrUpstreamError,
		Message:    message,
		Details:    map[string]int{"upstream_status": upstreamStatus},
		HTTPStatus: http.StatusBadGateway,
	}
}

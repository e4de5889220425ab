package server

import (
	"context"
	"errors"

	apierrors "github.com/aimerfeng/ReviewDesk/internal/errors"
	"github.com/aimerfeng/ReviewDesk/internal/extract"
	"github.com/aimerfeng/ReviewDesk/internal/logging"
	"github.com/aimerfeng/ReviewDesk/internal/middleware"
	"github.com/aimerfeng/ReviewDesk/internal/reply"
	"github.com/aimerfeng/ReviewDesk/internal/review"
	"github.com/aimerfeng/ReviewDesk/internal/settings"
	"github.com/aimerfeng/ReviewDesk/internal/store"
	"github.com/aimerfeng/ReviewDesk/internal/upstream"
	"github.com/gin-gonic/gin"
)

// apiError maps a service error to its API error
func apiError(err error) *apierrors.APIError {
	var svcErr *upstream.ServiceError
	var opErr *store.OpError
	switch {
	case errors.Is(err, extract.ErrNotObject),
		errors.Is(err, review.ErrInvalidPayload),
		errors.Is(err, settings.ErrInvalidPayload):
		return apierrors.NewInvalidRequestError(err.Error())
	case errors.Is(err, reply.ErrMissingReviewID):
		return apierrors.ErrMissingReviewIDError
	case errors.Is(err, reply.ErrMissingReply):
		return apierrors.NewMissingParameterError("reply")
	case errors.Is(err, reply.ErrPostingUnsupported):
		return apierrors.ErrPostingUnsupportedError
	case errors.Is(err, store.ErrInvalidCursor):
		return apierrors.ErrInvalidCursorError
	case errors.Is(err, store.ErrNotFound):
		return apierrors.ErrReviewNotFoundError
	case errors.Is(err, store.ErrNotConfigured):
		return apierrors.ErrStoreNotConfiguredError
	case errors.Is(err, upstream.ErrNotConfigured):
		return apierrors.ErrGeneratorNotConfiguredError
	case errors.Is(err, upstream.ErrCircuitOpen):
		return apierrors.ErrCircuitBreakerOpenError
	case errors.Is(err, upstream.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return apierrors.ErrUpstreamTimeoutError
	case errors.Is(err, upstream.ErrNoReply):
		return apierrors.ErrNoReplyProducedError
	case errors.As(err, &svcErr):
		return apierrors.NewUpstreamError(svcErr.Status, svcErr.Message)
	case errors.Is(err, upstream.ErrUpstream):
		return apierrors.ErrUpstreamUnavailableError
	case errors.As(err, &opErr):
		return apierrors.ErrDatabaseErrorError
	default:
		return apierrors.ErrInternalServerError
	}
}

// fail logs unexpected errors and writes the mapped API error
func fail(c *gin.Context, operation string, err error) {
	apiErr := apiError(err)
	if !apierrors.IsClientError(apiErr) {
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "server", operation)
	}
	respondError(c, apiErr)
}

package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/aimerfeng/ReviewDesk/internal/errors"
	"github.com/aimerfeng/ReviewDesk/internal/extract"
	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/aimerfeng/ReviewDesk/internal/reply"
	"github.com/aimerfeng/ReviewDesk/internal/review"
	"github.com/aimerfeng/ReviewDesk/internal/store"
	"github.com/aimerfeng/ReviewDesk/internal/upstream"
	"github.com/gin-gonic/gin"
)

const (
	sourceGoogle      = models.SourceGoogle
	sourceTripAdvisor = models.SourceTripAdvisor
)

// bindBody decodes an arbitrary JSON body. An empty body decodes to nil when
// allowEmpty is set.
func bindBody(c *gin.Context, allowEmpty bool) (any, bool) {
	var payload any
	if err := c.ShouldBindJSON(&payload); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil, true
		}
		respondError(c, apierrors.ErrInvalidJSONError)
		return nil, false
	}
	return payload, true
}

// bindReviews decodes a batch body, either an array or {reviews: [...]}
func (s *APIServer) bindReviews(c *gin.Context) ([]any, bool) {
	body, ok := bindBody(c, false)
	if !ok {
		return nil, false
	}
	payloads, err := review.ExtractPayloads(body)
	if err != nil {
		fail(c, "bind_reviews", err)
		return nil, false
	}
	return payloads, true
}

// handleIngest stores a batch without drafting
func (s *APIServer) handleIngest(c *gin.Context) {
	payloads, ok := s.bindReviews(c)
	if !ok {
		return
	}

	source := models.CanonicalSource(c.DefaultQuery("source", sourceGoogle))
	result, err := s.reviews.Ingest(c.Request.Context(), payloads, source)
	if err != nil {
		fail(c, "ingest", err)
		return
	}
	c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		*review.IngestResult
	}{true, result})
}

// handleSync ingests a batch for one source and drafts replies for it
func (s *APIServer) handleSync(source string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payloads, ok := s.bindReviews(c)
		if !ok {
			return
		}

		result, err := s.reviews.Sync(c.Request.Context(), source, payloads)
		if err != nil {
			fail(c, "sync", err)
			return
		}
		c.JSON(http.StatusOK, struct {
			OK bool `json:"ok"`
			*reply.SyncResult
		}{true, result})
	}
}

// handleDraft drafts or revises the reply for one review. The body is either
// the review itself or {review, prompt, previousReply, changeRequest}.
func (s *APIServer) handleDraft(c *gin.Context) {
	body, ok := bindBody(c, false)
	if !ok {
		return
	}

	req := reply.DraftRequest{Review: body, Source: c.Query("source")}
	if obj, isObj := body.(map[string]any); isObj {
		if inner, isObj := obj["review"].(map[string]any); isObj {
			req.Review = inner
		}
		req.Prompt = stringField(obj, "prompt")
		req.PreviousReply = stringField(obj, "previousReply")
		req.ChangeRequest = stringField(obj, "changeRequest")
	}

	result, err := s.reviews.Draft(c.Request.Context(), req)
	if err != nil {
		fail(c, "draft", err)
		return
	}
	c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		*reply.DraftResult
	}{true, result})
}

// handleDraftAll drafts replies for stored reviews that have none.
// The optional body is {limit, prompt}.
func (s *APIServer) handleDraftAll(c *gin.Context) {
	body, ok := bindBody(c, true)
	if !ok {
		return
	}

	limit := 0
	prompt := ""
	if obj, isObj := body.(map[string]any); isObj {
		if n := extract.FirstNumber(obj, "limit"); n != nil {
			limit = int(*n)
		}
		prompt = stringField(obj, "prompt")
	}

	result, err := s.reviews.DraftPending(c.Request.Context(), limit, prompt)
	if err != nil {
		fail(c, "draft_all", err)
		return
	}
	c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		*reply.PendingResult
	}{true, result})
}

// PostReplyRequest is the body of the posting webhook route
type PostReplyRequest struct {
	ReviewID  string `json:"reviewId"`
	ReviewKey string `json:"reviewKey"`
	Source    string `json:"source"`
	Reply     string `json:"reply"`
}

// handlePost publishes an approved reply through the posting webhook
func (s *APIServer) handlePost(c *gin.Context) {
	var req PostReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.ErrInvalidJSONError)
		return
	}

	result, err := s.reviews.Post(c.Request.Context(), reply.PostRequest{
		ReviewID:  req.ReviewID,
		ReviewKey: req.ReviewKey,
		Source:    req.Source,
		Reply:     req.Reply,
	})
	if err != nil {
		if errors.Is(err, upstream.ErrNotConfigured) {
			respondError(c, apierrors.ErrGeneratorNotConfiguredError.WithMessage("Posting webhook is not configured"))
			return
		}
		fail(c, "post", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"reviewId": result.ReviewID,
		"result":   result.Result,
		"updated":  result.Updated,
	})
}

// MarkPostedRequest is the body of the mark-posted route
type MarkPostedRequest struct {
	ReviewID  string `json:"reviewId"`
	ReviewKey string `json:"reviewKey"`
	Source    string `json:"source"`
	Reply     string `json:"reply"`
}

// handleMarkPosted confirms a reply that was posted by hand
func (s *APIServer) handleMarkPosted(c *gin.Context) {
	var req MarkPostedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.ErrInvalidJSONError)
		return
	}

	key, updated, err := s.reviews.MarkPosted(c.Request.Context(), reply.MarkPostedRequest{
		ReviewID:  req.ReviewID,
		ReviewKey: req.ReviewKey,
		Source:    req.Source,
		Reply:     req.Reply,
	})
	if err != nil {
		fail(c, "mark_posted", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "reviewId": key, "updated": updated})
}

// handleListReviews returns a page of reviews, most recent first
func (s *APIServer) handleListReviews(c *gin.Context) {
	filter := store.ListFilter{
		Source: strings.TrimSpace(c.Query("source")),
		Cursor: strings.TrimSpace(c.Query("cursor")),
	}
	if filter.Source != "" {
		filter.Source = models.CanonicalSource(filter.Source)
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, apierrors.NewValidationError("limit must be an integer"))
			return
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.ReviewStatus(raw)
		if !status.IsValid() {
			respondError(c, apierrors.NewValidationError("unknown status "+strconv.Quote(raw)))
			return
		}
		filter.Status = status
	}

	page, err := s.reviews.List(c.Request.Context(), filter)
	if err != nil {
		fail(c, "list", err)
		return
	}
	body := gin.H{
		"ok":    true,
		"items": page.Items,
		"count": len(page.Items),
	}
	if page.NextCursor != "" {
		body["nextCursor"] = page.NextCursor
	}
	c.JSON(http.StatusOK, body)
}

// handleStats returns review counts and average ratings
func (s *APIServer) handleStats(c *gin.Context) {
	stats, err := s.reviews.Stats(c.Request.Context())
	if err != nil {
		fail(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "stats": stats})
}

func stringField(obj map[string]any, key string) string {
	if s, ok := obj[key].(string); ok {
		return s
	}
	return ""
}

package models

import (
	"strings"
	"time"
)

// ReviewStatus represents the lifecycle state of a review reply
type ReviewStatus string

const (
	ReviewStatusDraft       ReviewStatus = "draft"
	ReviewStatusNeedsReview ReviewStatus = "needs-review"
	ReviewStatusReady       ReviewStatus = "ready"
	ReviewStatusAutoPost    ReviewStatus = "auto-post"
	ReviewStatusPosted      ReviewStatus = "posted"
)

// IsValid reports whether the status is one of the known lifecycle states
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewStatusDraft, ReviewStatusNeedsReview, ReviewStatusReady,
		ReviewStatusAutoPost, ReviewStatusPosted:
		return true
	}
	return false
}

// Known review sources
const (
	SourceGoogle      = "Google"
	SourceTripAdvisor = "TripAdvisor"
)

// CanonicalSource maps known source spellings to their canonical form.
// Unknown sources are returned trimmed.
func CanonicalSource(source string) string {
	trimmed := strings.TrimSpace(source)
	switch strings.ToLower(trimmed) {
	case "google":
		return SourceGoogle
	case "tripadvisor", "trip advisor":
		return SourceTripAdvisor
	}
	return trimmed
}

// ReviewKey builds the storage key for a review
func ReviewKey(source, externalID string) string {
	return source + "#" + externalID
}

// SplitReviewKey splits a composite "{source}#{id}" identifier.
// The separator must be neither the first nor the last character.
func SplitReviewKey(value string) (source, id string, ok bool) {
	idx := strings.Index(value, "#")
	if idx <= 0 || idx == len(value)-1 {
		return "", "", false
	}
	return value[:idx], value[idx+1:], true
}

// Review is the canonical review record
type Review struct {
	ReviewID         string       `json:"reviewId" db:"review_id"`
	ExternalID       string       `json:"externalId" db:"external_id"`
	Source           string       `json:"source" db:"source"`
	ReviewedAt       string       `json:"reviewedAt" db:"reviewed_at"`
	Status           ReviewStatus `json:"status" db:"status"`
	Rating           *float64     `json:"rating" db:"rating"`
	Review           *string      `json:"review" db:"review"`
	ReviewTranslated *string      `json:"reviewTranslated" db:"review_translated"`
	Reply            *string      `json:"reply" db:"reply"`
	ReplyOriginal    *string      `json:"replyOriginal" db:"reply_original"`
	ReplyTranslated  *string      `json:"replyTranslated" db:"reply_translated"`
	Title            *string      `json:"title" db:"title"`
	Link             *string      `json:"link" db:"link"`
	Language         *string      `json:"language" db:"language"`
	LocationID       *string      `json:"locationId" db:"location_id"`
	PlaceID          *string      `json:"placeId" db:"place_id"`
	PlaceName        *string      `json:"placeName" db:"place_name"`
	AuthorName       *string      `json:"authorName" db:"author_name"`
	CreatedAt        time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time    `json:"updatedAt" db:"updated_at"`
	ReplyGeneratedAt *time.Time   `json:"replyGeneratedAt" db:"reply_generated_at"`
	ReplyPostedAt    *string      `json:"replyPostedAt" db:"reply_posted_at"`

	// HasOwnerResponse is set by normalization when the upstream payload
	// carried a genuine owner response. It is never persisted.
	HasOwnerResponse bool `json:"-" db:"-"`
}

// HasReply reports whether the record carries a non-empty reply
func (r *Review) HasReply() bool {
	return r.Reply != nil && *r.Reply != ""
}

// GeneratedReply is the parsed output of the reply generator
type GeneratedReply struct {
	Reply            string  `json:"reply"`
	ReplyOriginal    *string `json:"replyOriginal"`
	ReplyTranslated  *string `json:"replyTranslated"`
	ReviewTranslated *string `json:"reviewTranslated"`
}

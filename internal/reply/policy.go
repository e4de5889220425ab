package reply

import (
	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/aimerfeng/ReviewDesk/internal/review"
)

// CanPost reports whether replies for source can be posted programmatically
func CanPost(source string) bool {
	return models.CanonicalSource(source) == models.SourceGoogle
}

// DraftStatus returns the status a freshly drafted reply is stored with.
// Unknown and low ratings, and flagged review text, are held for a human.
func DraftStatus(rating *float64, flagged bool) models.ReviewStatus {
	if flagged || rating == nil || *rating <= review.ReviewCeiling {
		return models.ReviewStatusNeedsReview
	}
	return models.ReviewStatusDraft
}

// ShouldAutoPost reports whether a drafted reply is posted without review
func ShouldAutoPost(source string, rating *float64, flagged bool) bool {
	return CanPost(source) && DraftStatus(rating, flagged) == models.ReviewStatusDraft
}

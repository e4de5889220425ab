// Package review normalizes upstream review payloads and reconciles them
// into the review store.
package review

import (
	"errors"
	"math"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/extract"
	"github.com/aimerfeng/ReviewDesk/internal/models"
)

var (
	// ErrMissingID is returned when a payload carries no usable review id
	ErrMissingID = errors.New("missing review id")
	// ErrMissingSource is returned when neither the payload nor the caller names a source
	ErrMissingSource = errors.New("missing review source")
)

// TimestampLayout is the ISO-8601 layout used for locally produced timestamps
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ReviewCeiling is the highest rating that is still held for human review
const ReviewCeiling = 3.0

// MaxRating is the top of the rating scale
const MaxRating = 5.0

var (
	reviewedAtKeys = []string{"publishedAtDate", "publishedDate", "publishedAt", "reviewedAt"}
	ownerTextKeys  = []string{"responseFromOwnerText", "ownerResponse.text"}
	ownerDateKeys  = []string{"responseFromOwnerDate", "ownerResponse.date"}
	languageKeys   = []string{"language", "lang"}
	placeIDKeys    = []string{"placeId", "placeInfo.id"}
)

// DefaultStatus returns the status a review starts in when nothing else
// decides it. Unknown ratings are drafted.
func DefaultStatus(rating *float64) models.ReviewStatus {
	if rating != nil && *rating <= ReviewCeiling {
		return models.ReviewStatusNeedsReview
	}
	return models.ReviewStatusDraft
}

// Normalize converts a raw upstream payload into a review record
func Normalize(raw any, now time.Time, defaultSource string) (*models.Review, error) {
	obj, err := extract.AsObject(raw)
	if err != nil {
		return nil, err
	}

	source := defaultSource
	if declared := extract.FirstString(obj, extract.SourceKeys...); declared != nil {
		source = *declared
	}
	source = models.CanonicalSource(source)

	rawID := extract.FirstString(obj, extract.IDKeys...)
	if rawID == nil {
		return nil, ErrMissingID
	}
	externalID := *rawID
	if prefix, id, ok := models.SplitReviewKey(*rawID); ok {
		source = models.CanonicalSource(prefix)
		externalID = id
	}
	if source == "" {
		return nil, ErrMissingSource
	}

	nowStr := now.UTC().Format(TimestampLayout)
	isGoogle := source == models.SourceGoogle

	record := &models.Review{
		ReviewID:   models.ReviewKey(source, externalID),
		ExternalID: externalID,
		Source:     source,
		ReviewedAt: nowStr,
		Rating:     sanitizeRating(extract.FirstNumber(obj, extract.RatingKeys...)),
		Review:     extract.Text(extract.FirstString(obj, extract.ReviewTextKeys...)),
		Link:       extract.FirstString(obj, extract.LinkKeys...),
		Language:   extract.FirstString(obj, languageKeys...),
		LocationID: extract.FirstString(obj, "locationId"),
		PlaceID:    extract.FirstString(obj, placeIDKeys...),
		PlaceName:  extract.FirstString(obj, "placeInfo.name", "placeName"),
		AuthorName: extract.FirstString(obj, extract.AuthorKeys...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if reviewedAt := extract.FirstString(obj, reviewedAtKeys...); reviewedAt != nil {
		record.ReviewedAt = *reviewedAt
	}

	title := extract.FirstString(obj, extract.TitleKeys...)
	if isGoogle {
		// Google sends the place name in title
		if record.PlaceName == nil {
			record.PlaceName = title
		}
	} else {
		record.Title = title
	}

	ownerText := extract.FirstString(obj, ownerTextKeys...)
	ownerDate := extract.FirstString(obj, ownerDateKeys...)
	hasOwnerResponse := ownerText != nil && (!isGoogle || ownerDate != nil)

	if hasOwnerResponse {
		record.HasOwnerResponse = true
		record.Reply = ownerText
		record.Status = models.ReviewStatusPosted
		postedAt := nowStr
		if ownerDate != nil {
			postedAt = *ownerDate
		}
		record.ReplyPostedAt = &postedAt
		return record, nil
	}

	record.Reply = extract.FirstString(obj, "reply")
	record.Status = DefaultStatus(record.Rating)
	if declared := extract.FirstString(obj, "status"); declared != nil {
		status := models.ReviewStatus(*declared)
		switch {
		case !status.IsValid():
		case status == models.ReviewStatusPosted && record.Reply == nil:
		default:
			record.Status = status
		}
	}
	if record.Status == models.ReviewStatusPosted {
		postedAt := nowStr
		record.ReplyPostedAt = &postedAt
	}

	return record, nil
}

// sanitizeRating keeps stored ratings on the 0..5 scale
func sanitizeRating(rating *float64) *float64 {
	if rating == nil {
		return nil
	}
	r := *rating
	if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
		return nil
	}
	if r > MaxRating {
		r = MaxRating
	}
	return &r
}

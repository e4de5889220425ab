package review

import (
	"errors"
	"testing"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/extract"
	"github.com/aimerfeng/ReviewDesk/internal/models"
	"pgregory.net/rapid"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const testNowStr = "2024-05-01T12:00:00.000Z"

func mustNormalize(t *testing.T, raw any, defaultSource string) *models.Review {
	t.Helper()
	record, err := Normalize(raw, testNow, defaultSource)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return record
}

func TestNormalize_KeyDerivation(t *testing.T) {
	tests := []struct {
		name          string
		raw           map[string]any
		defaultSource string
		wantKey       string
		wantSource    string
		wantExternal  string
	}{
		{"default source", map[string]any{"id": "abc"}, "tripadvisor", "TripAdvisor#abc", models.SourceTripAdvisor, "abc"},
		{"declared source wins", map[string]any{"reviewId": "abc", "source": "google"}, "TripAdvisor", "Google#abc", models.SourceGoogle, "abc"},
		{"prefixed id wins", map[string]any{"reviewKey": "TripAdvisor#9", "source": "Google"}, "Google", "TripAdvisor#9", models.SourceTripAdvisor, "9"},
		{"unknown source kept", map[string]any{"id": "1", "reviewOrigin": " Yelp "}, "", "Yelp#1", "Yelp", "1"},
		{"numeric id", map[string]any{"id": float64(42)}, "Google", "Google#42", models.SourceGoogle, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := mustNormalize(t, tt.raw, tt.defaultSource)
			if record.ReviewID != tt.wantKey {
				t.Errorf("ReviewID = %q, want %q", record.ReviewID, tt.wantKey)
			}
			if record.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", record.Source, tt.wantSource)
			}
			if record.ExternalID != tt.wantExternal {
				t.Errorf("ExternalID = %q, want %q", record.ExternalID, tt.wantExternal)
			}
		})
	}
}

func TestNormalize_Errors(t *testing.T) {
	if _, err := Normalize(map[string]any{"rating": 5}, testNow, "Google"); !errors.Is(err, ErrMissingID) {
		t.Errorf("missing id error = %v, want ErrMissingID", err)
	}
	if _, err := Normalize(map[string]any{"id": "1"}, testNow, ""); !errors.Is(err, ErrMissingSource) {
		t.Errorf("missing source error = %v, want ErrMissingSource", err)
	}
	if _, err := Normalize("not an object", testNow, "Google"); !errors.Is(err, extract.ErrNotObject) {
		t.Errorf("non-object error = %v, want ErrNotObject", err)
	}
}

func TestNormalize_DefaultStatus(t *testing.T) {
	tests := []struct {
		name   string
		rating any
		want   models.ReviewStatus
	}{
		{"low rating", float64(2), models.ReviewStatusNeedsReview},
		{"ceiling", float64(3), models.ReviewStatusNeedsReview},
		{"high rating", float64(4), models.ReviewStatusDraft},
		{"word rating", "five", models.ReviewStatusDraft},
		{"no rating", nil, models.ReviewStatusDraft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := map[string]any{"id": "1"}
			if tt.rating != nil {
				raw["rating"] = tt.rating
			}
			record := mustNormalize(t, raw, "Google")
			if record.Status != tt.want {
				t.Errorf("Status = %s, want %s", record.Status, tt.want)
			}
			if record.ReplyPostedAt != nil {
				t.Errorf("ReplyPostedAt = %q, want nil", *record.ReplyPostedAt)
			}
		})
	}
}

func TestNormalize_RatingSanitized(t *testing.T) {
	tests := []struct {
		rating any
		want   *float64
	}{
		{float64(7), floatPtr(5)},
		{float64(-1), nil},
		{"4 stars", floatPtr(4)},
		{"n/a", nil},
	}
	for _, tt := range tests {
		record := mustNormalize(t, map[string]any{"id": "1", "stars": tt.rating}, "Google")
		switch {
		case tt.want == nil && record.Rating != nil:
			t.Errorf("rating %v: got %v, want nil", tt.rating, *record.Rating)
		case tt.want != nil && (record.Rating == nil || *record.Rating != *tt.want):
			t.Errorf("rating %v: got %v, want %v", tt.rating, record.Rating, *tt.want)
		}
	}
}

func TestNormalize_GoogleOwnerResponseNeedsDate(t *testing.T) {
	raw := map[string]any{
		"reviewId":              "g1",
		"rating":                float64(5),
		"responseFromOwnerText": "Thanks!",
	}
	record := mustNormalize(t, raw, "Google")
	if record.Status == models.ReviewStatusPosted {
		t.Error("Google response without date must not be posted")
	}
	if record.HasOwnerResponse {
		t.Error("HasOwnerResponse should be false without a date")
	}

	raw["responseFromOwnerDate"] = "2024-04-30T08:00:00.000Z"
	record = mustNormalize(t, raw, "Google")
	if record.Status != models.ReviewStatusPosted {
		t.Errorf("Status = %s, want posted", record.Status)
	}
	if record.Reply == nil || *record.Reply != "Thanks!" {
		t.Errorf("Reply = %v, want owner text", record.Reply)
	}
	if record.ReplyPostedAt == nil || *record.ReplyPostedAt != "2024-04-30T08:00:00.000Z" {
		t.Errorf("ReplyPostedAt = %v, want owner date", record.ReplyPostedAt)
	}
	if !record.HasOwnerResponse {
		t.Error("HasOwnerResponse should be true")
	}
}

func TestNormalize_NonGoogleOwnerTextSuffices(t *testing.T) {
	raw := map[string]any{
		"id":            "t1",
		"rating":        float64(1),
		"ownerResponse": map[string]any{"text": "We are sorry"},
	}
	record := mustNormalize(t, raw, "TripAdvisor")
	if record.Status != models.ReviewStatusPosted {
		t.Errorf("Status = %s, want posted", record.Status)
	}
	if record.ReplyPostedAt == nil || *record.ReplyPostedAt != testNowStr {
		t.Errorf("ReplyPostedAt = %v, want now", record.ReplyPostedAt)
	}
}

func TestNormalize_DeclaredStatus(t *testing.T) {
	tests := []struct {
		name   string
		raw    map[string]any
		want   models.ReviewStatus
		posted bool
	}{
		{"valid status", map[string]any{"id": "1", "rating": float64(5), "status": "ready"}, models.ReviewStatusReady, false},
		{"unknown status", map[string]any{"id": "1", "rating": float64(2), "status": "archived"}, models.ReviewStatusNeedsReview, false},
		{"posted without reply", map[string]any{"id": "1", "rating": float64(5), "status": "posted"}, models.ReviewStatusDraft, false},
		{"posted with reply", map[string]any{"id": "1", "status": "posted", "reply": "Thanks"}, models.ReviewStatusPosted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := mustNormalize(t, tt.raw, "TripAdvisor")
			if record.Status != tt.want {
				t.Errorf("Status = %s, want %s", record.Status, tt.want)
			}
			if (record.ReplyPostedAt != nil) != tt.posted {
				t.Errorf("ReplyPostedAt = %v, want set=%v", record.ReplyPostedAt, tt.posted)
			}
		})
	}
}

func TestNormalize_Fields(t *testing.T) {
	google := mustNormalize(t, map[string]any{
		"reviewId":        "g1",
		"title":           "Hotel Sol",
		"text":            "<p>Great <b>pool</b></p>",
		"name":            "Ana",
		"publishedAtDate": "2024-04-01T09:30:00.000Z",
		"placeId":         "place-1",
		"url":             "https://maps.example/r/g1",
	}, "Google")
	if google.Title != nil {
		t.Errorf("Google Title = %q, want nil", *google.Title)
	}
	if google.PlaceName == nil || *google.PlaceName != "Hotel Sol" {
		t.Errorf("Google PlaceName = %v, want title", google.PlaceName)
	}
	if google.Review == nil || *google.Review != "Great pool" {
		t.Errorf("Review = %v, want stripped text", google.Review)
	}
	if google.ReviewedAt != "2024-04-01T09:30:00.000Z" {
		t.Errorf("ReviewedAt = %q", google.ReviewedAt)
	}
	if google.AuthorName == nil || *google.AuthorName != "Ana" {
		t.Errorf("AuthorName = %v", google.AuthorName)
	}
	if google.PlaceID == nil || *google.PlaceID != "place-1" {
		t.Errorf("PlaceID = %v", google.PlaceID)
	}
	if google.Link == nil || *google.Link != "https://maps.example/r/g1" {
		t.Errorf("Link = %v", google.Link)
	}

	ta := mustNormalize(t, map[string]any{"id": "t1", "title": "Lovely"}, "TripAdvisor")
	if ta.Title == nil || *ta.Title != "Lovely" {
		t.Errorf("TripAdvisor Title = %v", ta.Title)
	}
	if ta.ReviewedAt != testNowStr {
		t.Errorf("ReviewedAt = %q, want now %q", ta.ReviewedAt, testNowStr)
	}
	if !ta.CreatedAt.Equal(testNow) || !ta.UpdatedAt.Equal(testNow) {
		t.Errorf("timestamps = %v/%v, want %v", ta.CreatedAt, ta.UpdatedAt, testNow)
	}
}

func TestNormalize_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		source := rapid.SampledFrom([]string{"Google", "google", "TripAdvisor", "Trip Advisor"}).Draw(t, "source")
		id := rapid.StringMatching(`[a-z0-9]{1,12}`).Draw(t, "id")
		rating := rapid.Float64Range(-10, 10).Draw(t, "rating")

		record, err := Normalize(map[string]any{"id": id, "rating": rating}, testNow, source)
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if record.ReviewID != models.ReviewKey(record.Source, record.ExternalID) {
			t.Fatalf("ReviewID %q does not match source %q and id %q", record.ReviewID, record.Source, record.ExternalID)
		}
		if record.Source != models.SourceGoogle && record.Source != models.SourceTripAdvisor {
			t.Fatalf("Source not canonical: %q", record.Source)
		}
		if !record.Status.IsValid() {
			t.Fatalf("invalid status %q", record.Status)
		}
		if record.Rating != nil && (*record.Rating < 0 || *record.Rating > MaxRating) {
			t.Fatalf("rating out of range: %v", *record.Rating)
		}
		if record.Status == models.ReviewStatusPosted {
			t.Fatalf("posted without an owner response")
		}
	})
}

func floatPtr(f float64) *float64 { return &f }

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/models"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testReview(source, id, reviewedAt string) *models.Review {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.Review{
		ReviewID:   models.ReviewKey(source, id),
		ExternalID: id,
		Source:     source,
		ReviewedAt: reviewedAt,
		Status:     models.ReviewStatusDraft,
		Rating:     floatPtr(4),
		Review:     strPtr("Lovely stay"),
		AuthorName: strPtr("Ana"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSQLite_InsertAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	review := testReview(models.SourceGoogle, "r1", "2024-05-01T10:00:00.000Z")
	stored, err := s.Insert(ctx, review)
	if err != nil || !stored {
		t.Fatalf("Insert() = %v, %v; want true, nil", stored, err)
	}

	got, err := s.Get(ctx, review.ReviewID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ExternalID != "r1" || got.Source != models.SourceGoogle {
		t.Errorf("Get() = %+v", got)
	}
	if got.Rating == nil || *got.Rating != 4 {
		t.Errorf("Rating = %v, want 4", got.Rating)
	}
	if got.Reply != nil {
		t.Errorf("Reply = %q, want nil", *got.Reply)
	}
	if !got.CreatedAt.Equal(review.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, review.CreatedAt)
	}
	if got.ReplyGeneratedAt != nil {
		t.Errorf("ReplyGeneratedAt = %v, want nil", got.ReplyGeneratedAt)
	}
}

func TestSQLite_InsertExistingKeyIsNoop(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first := testReview(models.SourceGoogle, "r1", "2024-05-01T10:00:00.000Z")
	if _, err := s.Insert(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := testReview(models.SourceGoogle, "r1", "2024-05-02T10:00:00.000Z")
	second.Review = strPtr("Changed text")
	stored, err := s.Insert(ctx, second)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if stored {
		t.Error("Insert() of an existing key should report false")
	}

	got, _ := s.Get(ctx, first.ReviewID)
	if *got.Review != "Lovely stay" {
		t.Errorf("existing record was overwritten: %q", *got.Review)
	}
}

func TestSQLite_GetMissing(t *testing.T) {
	s := newTestSQLite(t)
	if _, err := s.Get(context.Background(), "Google#missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSQLite_UpdateConditions(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	review := testReview(models.SourceGoogle, "r1", "2024-05-01T10:00:00.000Z")
	if _, err := s.Insert(ctx, review); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	// IfReplyPresent does not apply while the reply is empty
	applied, err := s.Update(ctx, review.ReviewID, ReplyUpdate{Status: models.ReviewStatusPosted, UpdatedAt: now}, IfReplyPresent())
	if err != nil || applied {
		t.Fatalf("IfReplyPresent on empty reply = %v, %v; want false", applied, err)
	}

	applied, err = s.Update(ctx, review.ReviewID, ReplyUpdate{
		Status:           models.ReviewStatusReady,
		Reply:            strPtr("Thanks Ana"),
		Translations:     &Translations{ReplyTranslated: strPtr("Obrigado Ana")},
		ReplyGeneratedAt: &now,
		UpdatedAt:        now,
	}, IfReplyEmpty())
	if err != nil || !applied {
		t.Fatalf("IfReplyEmpty on empty reply = %v, %v; want true", applied, err)
	}

	// A second draft must not clobber the first
	applied, err = s.Update(ctx, review.ReviewID, ReplyUpdate{
		Status:    models.ReviewStatusReady,
		Reply:     strPtr("Other reply"),
		UpdatedAt: now,
	}, IfReplyEmpty())
	if err != nil || applied {
		t.Fatalf("IfReplyEmpty on filled reply = %v, %v; want false", applied, err)
	}

	applied, err = s.Update(ctx, review.ReviewID, ReplyUpdate{
		Reply:     strPtr("Revised"),
		UpdatedAt: now,
	}, IfReplyEquals("stale"))
	if err != nil || applied {
		t.Fatalf("IfReplyEquals with stale reply = %v, %v; want false", applied, err)
	}

	applied, err = s.Update(ctx, review.ReviewID, ReplyUpdate{
		Reply:        strPtr("Revised"),
		UpdatedAt:    now,
		Translations: TranslationsOf(&models.GeneratedReply{Reply: "Revised"}),
	}, IfReplyEquals("Thanks Ana"))
	if err != nil || !applied {
		t.Fatalf("IfReplyEquals with current reply = %v, %v; want true", applied, err)
	}

	got, _ := s.Get(ctx, review.ReviewID)
	if got.Reply == nil || *got.Reply != "Revised" {
		t.Errorf("Reply = %v, want Revised", got.Reply)
	}
	if got.ReplyTranslated != nil {
		t.Errorf("ReplyTranslated = %q, want cleared by the revision", *got.ReplyTranslated)
	}
	if got.Status != models.ReviewStatusReady {
		t.Errorf("Status = %s, want ready (untouched)", got.Status)
	}
	if got.ReplyGeneratedAt == nil || !got.ReplyGeneratedAt.Equal(now) {
		t.Errorf("ReplyGeneratedAt = %v, want %v", got.ReplyGeneratedAt, now)
	}

	posted := "2024-05-03T08:00:00.000Z"
	applied, err = s.Update(ctx, review.ReviewID, ReplyUpdate{
		Status:        models.ReviewStatusPosted,
		ReplyPostedAt: &posted,
		UpdatedAt:     now,
	}, IfReplyPresent())
	if err != nil || !applied {
		t.Fatalf("IfReplyPresent on filled reply = %v, %v; want true", applied, err)
	}
	got, _ = s.Get(ctx, review.ReviewID)
	if got.Status != models.ReviewStatusPosted || got.ReplyPostedAt == nil || *got.ReplyPostedAt != posted {
		t.Errorf("after posting: status=%s postedAt=%v", got.Status, got.ReplyPostedAt)
	}
}

func TestSQLite_UpdateMissingRecord(t *testing.T) {
	s := newTestSQLite(t)
	applied, err := s.Update(context.Background(), "Google#nope", ReplyUpdate{
		Status:    models.ReviewStatusPosted,
		UpdatedAt: time.Now(),
	}, IfExists())
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if applied {
		t.Error("Update() on a missing record should not apply")
	}
}

func TestSQLite_ListPagination(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		r := testReview(models.SourceGoogle, fmt.Sprintf("g%d", i), fmt.Sprintf("2024-05-0%dT10:00:00.000Z", i+1))
		if _, err := s.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	// Same timestamp as g6, ordered by key
	tie := testReview(models.SourceTripAdvisor, "t1", "2024-05-07T10:00:00.000Z")
	tie.Status = models.ReviewStatusNeedsReview
	if _, err := s.Insert(ctx, tie); err != nil {
		t.Fatal(err)
	}

	var seen []string
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatal("pagination did not terminate")
		}
		page, err := s.List(ctx, ListFilter{Limit: 3, Cursor: cursor})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		for _, item := range page.Items {
			seen = append(seen, item.ReviewID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	want := []string{
		"TripAdvisor#t1", "Google#g6", "Google#g5", "Google#g4",
		"Google#g3", "Google#g2", "Google#g1", "Google#g0",
	}
	if len(seen) != len(want) {
		t.Fatalf("List() returned %d items, want %d: %v", len(seen), len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("item %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestSQLite_ListFilters(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	g := testReview(models.SourceGoogle, "g1", "2024-05-01T10:00:00.000Z")
	ta := testReview(models.SourceTripAdvisor, "t1", "2024-05-02T10:00:00.000Z")
	ta.Status = models.ReviewStatusNeedsReview
	for _, r := range []*models.Review{g, ta} {
		if _, err := s.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.List(ctx, ListFilter{Status: models.ReviewStatusNeedsReview})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].ReviewID != ta.ReviewID {
		t.Errorf("status filter returned %v", page.Items)
	}

	page, err = s.List(ctx, ListFilter{Source: models.SourceGoogle})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].ReviewID != g.ReviewID {
		t.Errorf("source filter returned %v", page.Items)
	}
	if page.NextCursor != "" {
		t.Errorf("NextCursor = %q, want empty on last page", page.NextCursor)
	}

	page, err = s.List(ctx, ListFilter{Source: "Yelp"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Items == nil || len(page.Items) != 0 {
		t.Errorf("empty result should be a non-nil empty slice, got %#v", page.Items)
	}
}

func TestSQLite_ListInvalidCursor(t *testing.T) {
	s := newTestSQLite(t)
	if _, err := s.List(context.Background(), ListFilter{Cursor: "!!!"}); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("List() error = %v, want ErrInvalidCursor", err)
	}
}

func TestSQLite_ListAwaitingReply(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	empty := testReview(models.SourceGoogle, "a", "2024-05-01T10:00:00.000Z")
	blank := testReview(models.SourceGoogle, "b", "2024-05-02T10:00:00.000Z")
	blank.Reply = strPtr("")
	done := testReview(models.SourceGoogle, "c", "2024-05-03T10:00:00.000Z")
	done.Reply = strPtr("Thanks")
	for _, r := range []*models.Review{empty, blank, done} {
		if _, err := s.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	items, err := s.ListAwaitingReply(ctx, 10)
	if err != nil {
		t.Fatalf("ListAwaitingReply() error = %v", err)
	}
	if len(items) != 2 || items[0].ReviewID != blank.ReviewID || items[1].ReviewID != empty.ReviewID {
		t.Errorf("ListAwaitingReply() = %v", items)
	}

	items, err = s.ListAwaitingReply(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("limit not applied: %d items", len(items))
	}
}

func TestSQLite_Stats(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	g1 := testReview(models.SourceGoogle, "g1", "2024-05-01T10:00:00.000Z")
	g1.Rating = floatPtr(5)
	g2 := testReview(models.SourceGoogle, "g2", "2024-05-02T10:00:00.000Z")
	g2.Rating = floatPtr(4)
	g2.Status = models.ReviewStatusPosted
	g3 := testReview(models.SourceGoogle, "g3", "2024-05-03T10:00:00.000Z")
	g3.Rating = nil
	ta := testReview(models.SourceTripAdvisor, "t1", "2024-05-04T10:00:00.000Z")
	ta.Rating = floatPtr(2)
	ta.Status = models.ReviewStatusNeedsReview
	for _, r := range []*models.Review{g1, g2, g3, ta} {
		if _, err := s.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.AverageRating == nil || stats.AverageRating.String() != "3.67" {
		t.Errorf("AverageRating = %v, want 3.67", stats.AverageRating)
	}
	if stats.ByStatus[models.ReviewStatusDraft] != 2 || stats.ByStatus[models.ReviewStatusPosted] != 1 {
		t.Errorf("ByStatus = %v", stats.ByStatus)
	}
	if len(stats.Sources) != 2 || stats.Sources[0].Source != models.SourceGoogle {
		t.Fatalf("Sources = %+v", stats.Sources)
	}
	google := stats.Sources[0]
	if google.Total != 3 || google.Rated != 2 || google.AverageRating.String() != "4.5" {
		t.Errorf("Google stats = %+v (avg %v)", google, google.AverageRating)
	}
}

func TestSQLite_StatsEmpty(t *testing.T) {
	s := newTestSQLite(t)
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 0 || stats.AverageRating != nil || len(stats.Sources) != 0 {
		t.Errorf("Stats() on empty store = %+v", stats)
	}
}

func TestSQLite_Settings(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if _, err := s.GetSettings(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSettings() error = %v, want ErrNotFound", err)
	}

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	settings := &models.Settings{
		Prompt:           "Be kind",
		Tone:             "Warm",
		AutoDraftReplies: true,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	if err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	updated := created.Add(time.Hour)
	settings.Tone = "Formal"
	settings.CreatedAt = updated
	settings.UpdatedAt = updated
	if err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	got, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if got.Tone != "Formal" || got.Prompt != "Be kind" || !got.AutoDraftReplies {
		t.Errorf("GetSettings() = %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want first save time %v", got.CreatedAt, created)
	}
	if !got.UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, updated)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultListLimit},
		{-3, DefaultListLimit},
		{10, 10},
		{MaxListLimit + 1, MaxListLimit},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in, DefaultListLimit, MaxListLimit); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

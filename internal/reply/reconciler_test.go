package reply

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/aimerfeng/ReviewDesk/internal/store"
)

func newTestReconciler(t *testing.T) (*Reconciler, store.Store) {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	r := NewReconciler(st)
	r.now = func() time.Time { return time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC) }

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rating := 5.0
	if _, err := st.Insert(context.Background(), &models.Review{
		ReviewID:   "Google#g1",
		ExternalID: "g1",
		Source:     models.SourceGoogle,
		ReviewedAt: "2024-05-01T00:00:00.000Z",
		Rating:     &rating,
		Status:     models.ReviewStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatal(err)
	}
	return r, st
}

func TestReconciler_DraftThenPost(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()
	original := "Merci !"
	gen := &models.GeneratedReply{Reply: "Thanks!", ReplyOriginal: &original}

	applied, err := r.RecordDraft(ctx, "Google#g1", gen, models.ReviewStatusDraft)
	if err != nil || !applied {
		t.Fatalf("RecordDraft() = %v, %v", applied, err)
	}
	applied, err = r.RecordDraft(ctx, "Google#g1", &models.GeneratedReply{Reply: "Other"}, models.ReviewStatusDraft)
	if err != nil || applied {
		t.Fatalf("second RecordDraft() = %v, %v; want not applied", applied, err)
	}

	got, err := st.Get(ctx, "Google#g1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplyGeneratedAt == nil || !got.ReplyGeneratedAt.Equal(r.now()) {
		t.Errorf("ReplyGeneratedAt = %v", got.ReplyGeneratedAt)
	}
	if got.ReplyOriginal == nil || *got.ReplyOriginal != original {
		t.Errorf("ReplyOriginal = %v", got.ReplyOriginal)
	}

	applied, err = r.MarkPosted(ctx, "Google#g1", "")
	if err != nil || !applied {
		t.Fatalf("MarkPosted() = %v, %v", applied, err)
	}
	got, _ = st.Get(ctx, "Google#g1")
	if got.Status != models.ReviewStatusPosted {
		t.Errorf("Status = %s, want posted", got.Status)
	}
	if got.ReplyPostedAt == nil || *got.ReplyPostedAt != "2024-06-01T08:30:00.000Z" {
		t.Errorf("ReplyPostedAt = %v", got.ReplyPostedAt)
	}
	if *got.Reply != "Thanks!" {
		t.Errorf("Reply = %q, want the drafted reply kept", *got.Reply)
	}
}

func TestReconciler_RevisionWithEmptyPrevious(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()
	applied, err := r.RecordRevision(ctx, "Google#g1", &models.GeneratedReply{Reply: "v1"}, models.ReviewStatusDraft, "")
	if err != nil || !applied {
		t.Fatalf("RecordRevision() on an empty reply = %v, %v", applied, err)
	}
	applied, err = r.RecordRevision(ctx, "Google#g1", &models.GeneratedReply{Reply: "v2"}, models.ReviewStatusDraft, "")
	if err != nil || applied {
		t.Errorf("RecordRevision() with empty previous over v1 = %v, %v; want not applied", applied, err)
	}
}

func TestReconciler_NotConfigured(t *testing.T) {
	r := NewReconciler(nil)
	if _, err := r.MarkPosted(context.Background(), "Google#g1", "x"); !errors.Is(err, store.ErrNotConfigured) {
		t.Errorf("MarkPosted() error = %v, want ErrNotConfigured", err)
	}
}

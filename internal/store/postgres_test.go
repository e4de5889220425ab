package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/config"
	"github.com/aimerfeng/ReviewDesk/internal/database"
	"github.com/aimerfeng/ReviewDesk/internal/models"
)

// newTestPostgres connects to TEST_DATABASE_URL, migrates it and empties the tables
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := database.RunMigrations(url, 0); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	ctx := context.Background()
	db, err := database.New(ctx, config.DatabaseConfig{URL: url, MaxConns: 4})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	if _, err := db.Pool.Exec(ctx, "TRUNCATE reviews, review_settings"); err != nil {
		t.Fatal(err)
	}
	return NewPostgres(db.Pool)
}

func TestPostgres_ReviewLifecycle(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()

	review := testReview(models.SourceGoogle, "r1", "2024-05-01T10:00:00.000Z")
	stored, err := p.Insert(ctx, review)
	if err != nil || !stored {
		t.Fatalf("Insert() = %v, %v", stored, err)
	}
	if stored, _ := p.Insert(ctx, review); stored {
		t.Error("second Insert() should be a no-op")
	}

	reply := "Thanks!"
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	applied, err := p.Update(ctx, review.ReviewID, ReplyUpdate{
		Status:           models.ReviewStatusDraft,
		Reply:            &reply,
		Translations:     &Translations{ReplyOriginal: strPtr("Merci !")},
		ReplyGeneratedAt: &now,
		UpdatedAt:        now,
	}, IfReplyEmpty())
	if err != nil || !applied {
		t.Fatalf("Update() = %v, %v", applied, err)
	}

	got, err := p.Get(ctx, review.ReviewID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Reply == nil || *got.Reply != reply || got.ReplyOriginal == nil {
		t.Errorf("Get() after update = %+v", got)
	}
	if got.ReplyGeneratedAt == nil || !got.ReplyGeneratedAt.Equal(now) {
		t.Errorf("ReplyGeneratedAt = %v", got.ReplyGeneratedAt)
	}

	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 {
		t.Errorf("Stats().Total = %d, want 1", stats.Total)
	}
}

func TestPostgres_Settings(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()

	if _, err := p.GetSettings(ctx); err != ErrNotFound {
		t.Fatalf("GetSettings() error = %v, want ErrNotFound", err)
	}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := p.SaveSettings(ctx, &models.Settings{Prompt: "Be brief", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	got, err := p.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Prompt != "Be brief" || !got.CreatedAt.Equal(now) {
		t.Errorf("GetSettings() = %+v", got)
	}
}

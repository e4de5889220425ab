// Package reply drafts, revises and posts review replies and records the
// resulting status transitions.
package reply

import (
	"context"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/aimerfeng/ReviewDesk/internal/monitoring"
	"github.com/aimerfeng/ReviewDesk/internal/review"
	"github.com/aimerfeng/ReviewDesk/internal/store"
)

// Reconciler records reply and status transitions with conditional writes.
// A false result means the precondition did not hold and nothing changed.
type Reconciler struct {
	store store.Store
	now   func() time.Time
}

// NewReconciler creates a new reply reconciler
func NewReconciler(s store.Store) *Reconciler {
	return &Reconciler{store: s, now: time.Now}
}

// RecordDraft stores a generated reply only while the record has none
func (r *Reconciler) RecordDraft(ctx context.Context, reviewID string, gen *models.GeneratedReply, status models.ReviewStatus) (bool, error) {
	now := r.now().UTC()
	upd := store.ReplyUpdate{
		Status:           status,
		Reply:            &gen.Reply,
		Translations:     store.TranslationsOf(gen),
		ReplyGeneratedAt: &now,
		UpdatedAt:        now,
	}
	return r.apply(ctx, "draft", reviewID, upd, store.IfReplyEmpty())
}

// RecordRevision replaces the reply only while it still equals previous
func (r *Reconciler) RecordRevision(ctx context.Context, reviewID string, gen *models.GeneratedReply, status models.ReviewStatus, previous string) (bool, error) {
	now := r.now().UTC()
	upd := store.ReplyUpdate{
		Status:           status,
		Reply:            &gen.Reply,
		Translations:     store.TranslationsOf(gen),
		ReplyGeneratedAt: &now,
		UpdatedAt:        now,
	}
	cond := store.IfReplyEquals(previous)
	if previous == "" {
		cond = store.IfReplyEmpty()
	}
	return r.apply(ctx, "revise", reviewID, upd, cond)
}

// RecordPosted marks an existing record posted with the generated reply
func (r *Reconciler) RecordPosted(ctx context.Context, reviewID string, gen *models.GeneratedReply) (bool, error) {
	upd := r.postedUpdate()
	upd.Reply = &gen.Reply
	upd.Translations = store.TranslationsOf(gen)
	return r.apply(ctx, "posted", reviewID, upd, store.IfExists())
}

// MarkPosted confirms a reply posted outside the system. An empty reply
// keeps the stored one and only applies when a reply is present.
func (r *Reconciler) MarkPosted(ctx context.Context, reviewID, reply string) (bool, error) {
	upd := r.postedUpdate()
	if reply == "" {
		return r.apply(ctx, "mark_posted", reviewID, upd, store.IfReplyPresent())
	}
	upd.Reply = &reply
	return r.apply(ctx, "mark_posted", reviewID, upd, store.IfExists())
}

func (r *Reconciler) postedUpdate() store.ReplyUpdate {
	now := r.now().UTC()
	postedAt := now.Format(review.TimestampLayout)
	return store.ReplyUpdate{
		Status:        models.ReviewStatusPosted,
		ReplyPostedAt: &postedAt,
		UpdatedAt:     now,
	}
}

func (r *Reconciler) apply(ctx context.Context, transition, reviewID string, upd store.ReplyUpdate, cond store.Condition) (bool, error) {
	if r == nil || r.store == nil {
		return false, store.ErrNotConfigured
	}
	applied, err := r.store.Update(ctx, reviewID, upd, cond)
	if err != nil {
		return false, err
	}
	monitoring.RecordReplyTransition(transition, applied)
	return applied, nil
}

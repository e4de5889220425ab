package review

import (
	"context"
	"errors"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/extract"
	"github.com/aimerfeng/ReviewDesk/internal/logging"
	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/aimerfeng/ReviewDesk/internal/monitoring"
	"github.com/aimerfeng/ReviewDesk/internal/store"
	"github.com/rs/zerolog"
)

// ErrInvalidPayload is returned when a batch body is neither an array nor {reviews: [...]}
var ErrInvalidPayload = errors.New("expected an array of reviews or {reviews: [...]}")

// Item outcomes
const (
	OutcomeStored  = "stored"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Options parameterizes an ingestion run
type Options struct {
	DefaultSource string
}

// ItemError describes a failed item
type ItemError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// ItemOutcome is the result for a single normalized item
type ItemOutcome struct {
	Record  *models.Review
	Outcome string
}

// IngestResult tallies an ingestion run
type IngestResult struct {
	Stored  int           `json:"stored"`
	Updated int           `json:"updated"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Errors  []ItemError   `json:"errors"`
	Items   []ItemOutcome `json:"-"`
}

// Reconciler writes normalized reviews into the store
type Reconciler struct {
	store  store.Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewReconciler creates a new ingestion reconciler
func NewReconciler(s store.Store) *Reconciler {
	return &Reconciler{
		store:  s,
		now:    time.Now,
		logger: logging.NewLogger("ingest"),
	}
}

// ExtractPayloads accepts either a bare array or an object with a reviews array
func ExtractPayloads(body any) ([]any, error) {
	switch v := body.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if reviews, ok := v["reviews"].([]any); ok {
			return reviews, nil
		}
	}
	return nil, ErrInvalidPayload
}

// Ingest normalizes and stores each payload independently. Per-item failures
// are tallied; the returned error is reserved for conditions that stop the
// whole batch, in which case the partial result is still returned.
func (r *Reconciler) Ingest(ctx context.Context, payloads []any, opts Options) (*IngestResult, error) {
	result := &IngestResult{Errors: []ItemError{}}
	if r == nil || r.store == nil {
		return result, store.ErrNotConfigured
	}

	started := time.Now()
	for _, raw := range payloads {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome, record, err := r.ingestOne(ctx, raw, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			id := failedItemID(raw, record)
			result.Failed++
			result.Errors = append(result.Errors, ItemError{ID: id, Message: err.Error()})
			monitoring.RecordIngest(opts.DefaultSource, OutcomeFailed)
			r.logger.Warn().Err(err).Str("review_id", id).Msg("Review ingestion failed")
			continue
		}

		switch outcome {
		case OutcomeStored:
			result.Stored++
		case OutcomeUpdated:
			result.Updated++
		default:
			result.Skipped++
		}
		result.Items = append(result.Items, ItemOutcome{Record: record, Outcome: outcome})
		monitoring.RecordIngest(record.Source, outcome)
	}

	logging.LogIngest(opts.DefaultSource, result.Stored, result.Updated, result.Skipped, result.Failed, time.Since(started))
	return result, nil
}

func (r *Reconciler) ingestOne(ctx context.Context, raw any, opts Options) (string, *models.Review, error) {
	now := r.now()
	record, err := Normalize(raw, now, opts.DefaultSource)
	if err != nil {
		return OutcomeFailed, nil, err
	}

	inserted, err := r.store.Insert(ctx, record)
	if err != nil {
		return OutcomeFailed, record, err
	}
	if inserted {
		return OutcomeStored, record, nil
	}

	// Only Google echoes owner replies back on later syncs
	if record.Source != models.SourceGoogle || record.Reply == nil {
		return OutcomeSkipped, record, nil
	}

	updated, err := r.store.Update(ctx, record.ReviewID, backfillUpdate(record, now), backfillCondition(record))
	if err != nil {
		return OutcomeFailed, record, err
	}
	monitoring.RecordReplyTransition("backfill", updated)
	if !updated {
		return OutcomeSkipped, record, nil
	}
	r.logger.Debug().Str("review_id", record.ReviewID).Msg("Backfilled owner reply")
	return OutcomeUpdated, record, nil
}

// backfillUpdate carries an upstream reply into an existing record
func backfillUpdate(record *models.Review, now time.Time) store.ReplyUpdate {
	upd := store.ReplyUpdate{
		Status:    record.Status,
		Reply:     record.Reply,
		UpdatedAt: now,
	}
	if record.Status == models.ReviewStatusPosted {
		upd.ReplyPostedAt = record.ReplyPostedAt
	}
	return upd
}

// backfillCondition only lets a genuine owner response replace a stored reply
func backfillCondition(record *models.Review) store.Condition {
	if record.HasOwnerResponse {
		return store.IfExists()
	}
	return store.IfReplyEmpty()
}

func failedItemID(raw any, record *models.Review) string {
	if record != nil {
		return record.ReviewID
	}
	if obj, err := extract.AsObject(raw); err == nil {
		if id := extract.FirstString(obj, extract.IDKeys...); id != nil {
			return *id
		}
	}
	return "unknown"
}

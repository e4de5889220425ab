package reply

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/config"
	"github.com/aimerfeng/ReviewDesk/internal/extract"
	"github.com/aimerfeng/ReviewDesk/internal/logging"
	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/aimerfeng/ReviewDesk/internal/monitoring"
	"github.com/aimerfeng/ReviewDesk/internal/prompt"
	"github.com/aimerfeng/ReviewDesk/internal/review"
	"github.com/aimerfeng/ReviewDesk/internal/settings"
	"github.com/aimerfeng/ReviewDesk/internal/store"
	"github.com/aimerfeng/ReviewDesk/internal/upstream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Service errors
var (
	ErrPostingUnsupported = errors.New("posting is not supported for this source")
	ErrMissingReviewID    = errors.New("reviewId is required")
	ErrMissingReply       = errors.New("reply is required")
)

// Automation outcomes
const (
	OutcomeDrafted = "drafted"
	OutcomePosted  = "posted"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Generator produces reply drafts
type Generator interface {
	Generate(ctx context.Context, req upstream.GenerateRequest) (*models.GeneratedReply, error)
}

// Poster publishes replies for webhook-capable sources
type Poster interface {
	Configured() bool
	Post(ctx context.Context, req upstream.PostRequest) (any, error)
}

// Service runs the reply workflow operations
type Service struct {
	store     store.Store
	ingest    *review.Reconciler
	replies   *Reconciler
	settings  *settings.Service
	generator Generator
	poster    Poster
	cfg       config.AutomationConfig
	logger    zerolog.Logger
}

// NewService creates a new reply workflow service
func NewService(s store.Store, settingsSvc *settings.Service, gen Generator, poster Poster, cfg config.AutomationConfig) *Service {
	if cfg.DraftConcurrency <= 0 {
		cfg = config.Default().Automation
	}
	return &Service{
		store:     s,
		ingest:    review.NewReconciler(s),
		replies:   NewReconciler(s),
		settings:  settingsSvc,
		generator: gen,
		poster:    poster,
		cfg:       cfg,
		logger:    logging.NewLogger("reply"),
	}
}

// Ingest stores a batch of raw reviews
func (s *Service) Ingest(ctx context.Context, payloads []any, defaultSource string) (*review.IngestResult, error) {
	return s.ingest.Ingest(ctx, payloads, review.Options{DefaultSource: defaultSource})
}

// Automation tallies the drafting pass that follows a sync
type Automation struct {
	Processed int                `json:"processed"`
	Drafted   int                `json:"drafted"`
	Posted    int                `json:"posted"`
	Skipped   int                `json:"skipped"`
	Failed    int                `json:"failed"`
	Errors    []review.ItemError `json:"errors"`
}

// SyncResult is the ingest tally plus the automation tally
type SyncResult struct {
	*review.IngestResult
	Automation *Automation `json:"automation"`
}

// Sync ingests a batch for one source, then drafts a reply for every
// ingested record that still has none. Drafts above the review ceiling are
// posted immediately when the source supports it.
func (s *Service) Sync(ctx context.Context, source string, payloads []any) (*SyncResult, error) {
	ingested, err := s.ingest.Ingest(ctx, payloads, review.Options{DefaultSource: source})
	result := &SyncResult{IngestResult: ingested}
	if err != nil {
		return result, err
	}

	current := s.settings.Load(ctx)
	auto := &Automation{Errors: []review.ItemError{}}
	result.Automation = auto

	for _, item := range ingested.Items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		auto.Processed++

		reviewID := item.Record.ReviewID
		drafted, posted, err := s.automate(ctx, reviewID, current)
		switch {
		case err != nil && drafted:
			auto.Drafted++
			fallthrough
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			auto.Failed++
			auto.Errors = append(auto.Errors, review.ItemError{ID: reviewID, Message: err.Error()})
			monitoring.RecordAutomation(source, OutcomeFailed)
		case posted:
			auto.Drafted++
			auto.Posted++
			monitoring.RecordAutomation(source, OutcomePosted)
		case drafted:
			auto.Drafted++
			monitoring.RecordAutomation(source, OutcomeDrafted)
		default:
			auto.Skipped++
			monitoring.RecordAutomation(source, OutcomeSkipped)
		}
	}

	s.logger.Info().
		Str("source", source).
		Int("processed", auto.Processed).
		Int("drafted", auto.Drafted).
		Int("posted", auto.Posted).
		Int("failed", auto.Failed).
		Msg("Sync automation finished")
	return result, nil
}

// automate drafts and possibly posts one stored record. Records that
// already carry a reply are skipped without calling the generator.
func (s *Service) automate(ctx context.Context, reviewID string, current *models.Settings) (drafted, posted bool, err error) {
	record, err := s.store.Get(ctx, reviewID)
	if errors.Is(err, store.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	if record.HasReply() || record.Status == models.ReviewStatusPosted {
		return false, false, nil
	}

	input := extract.FromReview(record)
	flagged := prompt.LooksLikeInjection(input)
	gen, err := s.generate(ctx, "auto", record.ReviewID, record.Source, prompt.Build(input, promptOptions(current, "")), input.ReviewText, current.PreferredLanguage)
	if err != nil {
		return false, false, err
	}

	updated, err := s.replies.RecordDraft(ctx, reviewID, gen, DraftStatus(record.Rating, flagged))
	if err != nil || !updated {
		return false, false, err
	}

	if !ShouldAutoPost(record.Source, record.Rating, flagged) || s.poster == nil || !s.poster.Configured() {
		return true, false, nil
	}

	if _, err := s.poster.Post(ctx, upstream.PostRequest{
		ReviewID:  record.ExternalID,
		Reply:     gen.Reply,
		ReviewKey: record.ReviewID,
		Source:    record.Source,
	}); err != nil {
		return true, false, err
	}
	posted, err = s.replies.RecordPosted(ctx, reviewID, gen)
	logging.LogPosting(logging.RequestIDFromContext(ctx), reviewID, record.Source, "auto", posted)
	return true, posted, err
}

// DraftRequest drafts or revises the reply for one review payload
type DraftRequest struct {
	Review        any
	Source        string
	Prompt        string
	PreviousReply string
	ChangeRequest string
}

// DraftResult is the generated reply and whether it was stored
type DraftResult struct {
	Reply            string              `json:"reply"`
	ReplyOriginal    *string             `json:"replyOriginal"`
	ReplyTranslated  *string             `json:"replyTranslated"`
	ReviewTranslated *string             `json:"reviewTranslated"`
	ReviewID         *string             `json:"reviewId"`
	Updated          bool                `json:"updated"`
	Status           models.ReviewStatus `json:"status,omitempty"`
	Flagged          bool                `json:"flagged,omitempty"`
}

// Draft generates a reply for one review. With a change request it revises
// the previous reply, and the write applies only while the stored reply
// still equals it.
func (s *Service) Draft(ctx context.Context, req DraftRequest) (*DraftResult, error) {
	if s.store == nil {
		return nil, store.ErrNotConfigured
	}
	input, err := extract.FromPayload(withDefaultSource(req.Review, req.Source))
	if err != nil {
		return nil, err
	}

	current := s.settings.Load(ctx)
	opts := promptOptions(current, req.Prompt)
	revise := strings.TrimSpace(req.ChangeRequest) != ""

	mode := "draft"
	text := prompt.Build(input, opts)
	if revise {
		mode = "revise"
		text = prompt.BuildChange(input, opts, strings.TrimSpace(req.PreviousReply), strings.TrimSpace(req.ChangeRequest))
	}

	reviewID := ""
	if input.ReviewKey != nil {
		reviewID = *input.ReviewKey
	}
	source := ""
	if input.Source != nil {
		source = *input.Source
	}

	gen, err := s.generate(ctx, mode, reviewID, source, text, input.ReviewText, current.PreferredLanguage)
	if err != nil {
		return nil, err
	}

	flagged := prompt.LooksLikeInjection(input)
	result := &DraftResult{
		Reply:            gen.Reply,
		ReplyOriginal:    gen.ReplyOriginal,
		ReplyTranslated:  gen.ReplyTranslated,
		ReviewTranslated: gen.ReviewTranslated,
		ReviewID:         input.ReviewKey,
		Flagged:          flagged,
	}
	if reviewID == "" {
		return result, nil
	}

	status := DraftStatus(input.Rating, flagged)
	if revise {
		result.Updated, err = s.replies.RecordRevision(ctx, reviewID, gen, status, strings.TrimSpace(req.PreviousReply))
	} else {
		result.Updated, err = s.replies.RecordDraft(ctx, reviewID, gen, status)
	}
	if err != nil {
		return nil, err
	}
	if result.Updated {
		result.Status = status
	}
	return result, nil
}

// PendingResult tallies a draft-all run
type PendingResult struct {
	Scanned   int                `json:"scanned"`
	Processed int                `json:"processed"`
	Drafted   int                `json:"drafted"`
	Skipped   int                `json:"skipped"`
	Failed    int                `json:"failed"`
	Errors    []review.ItemError `json:"errors"`
}

// DraftPending drafts replies for stored records that have none, with
// bounded concurrency. Per-record failures are tallied.
func (s *Service) DraftPending(ctx context.Context, limit int, promptOverride string) (*PendingResult, error) {
	if s.store == nil {
		return nil, store.ErrNotConfigured
	}
	limit = store.ClampLimit(limit, s.cfg.DraftPendingDefault, s.cfg.DraftPendingMax)

	records, err := s.store.ListAwaitingReply(ctx, limit)
	if err != nil {
		return nil, err
	}
	result := &PendingResult{Scanned: len(records), Errors: []review.ItemError{}}
	if len(records) == 0 {
		return result, nil
	}

	current := s.settings.Load(ctx)
	opts := promptOptions(current, promptOverride)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.DraftConcurrency)

	for _, record := range records {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			updated, err := s.draftRecord(ctx, record, opts, current.PreferredLanguage)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			switch {
			case err != nil:
				result.Failed++
				result.Errors = append(result.Errors, review.ItemError{ID: record.ReviewID, Message: err.Error()})
			case updated:
				result.Drafted++
			default:
				result.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) draftRecord(ctx context.Context, record *models.Review, opts prompt.Options, language string) (bool, error) {
	input := extract.FromReview(record)
	gen, err := s.generate(ctx, "pending", record.ReviewID, record.Source, prompt.Build(input, opts), input.ReviewText, language)
	if err != nil {
		return false, err
	}
	return s.replies.RecordDraft(ctx, record.ReviewID, gen, DraftStatus(record.Rating, prompt.LooksLikeInjection(input)))
}

// PostRequest publishes an approved reply
type PostRequest struct {
	ReviewID  string
	ReviewKey string
	Source    string
	Reply     string
}

// PostResult carries the webhook response and the store outcome
type PostResult struct {
	ReviewID string `json:"reviewId"`
	Result   any    `json:"result"`
	Updated  bool   `json:"updated"`
}

// Post forwards a reply to the posting webhook and marks the record posted.
// Only webhook-capable sources are accepted.
func (s *Service) Post(ctx context.Context, req PostRequest) (*PostResult, error) {
	rawID := strings.TrimSpace(req.ReviewID)
	reply := strings.TrimSpace(req.Reply)
	if rawID == "" {
		return nil, ErrMissingReviewID
	}
	if reply == "" {
		return nil, ErrMissingReply
	}

	key := ResolveKey(req.ReviewKey, rawID, req.Source, models.SourceGoogle)
	source, _, ok := models.SplitReviewKey(key)
	if !ok {
		return nil, ErrMissingReviewID
	}
	if !CanPost(source) {
		return nil, ErrPostingUnsupported
	}
	externalID := rawID
	if _, id, ok := models.SplitReviewKey(rawID); ok {
		externalID = id
	}

	if s.poster == nil {
		return nil, upstream.ErrNotConfigured
	}
	result, err := s.poster.Post(ctx, upstream.PostRequest{
		ReviewID:  externalID,
		Reply:     reply,
		ReviewKey: key,
		Source:    source,
	})
	if err != nil {
		return nil, err
	}

	// The reply is already public, so a failed write is reported, not returned
	updated, err := s.replies.MarkPosted(ctx, key, reply)
	if err != nil {
		s.logger.Error().Err(err).Str("review_id", key).Msg("Failed to record posted reply")
		updated = false
	}
	logging.LogPosting(logging.RequestIDFromContext(ctx), key, source, "manual", updated)
	return &PostResult{ReviewID: key, Result: result, Updated: updated}, nil
}

// MarkPostedRequest confirms a reply posted outside the system
type MarkPostedRequest struct {
	ReviewID  string
	ReviewKey string
	Source    string
	Reply     string
}

// MarkPosted transitions an existing record to posted
func (s *Service) MarkPosted(ctx context.Context, req MarkPostedRequest) (string, bool, error) {
	key := ResolveKey(req.ReviewKey, req.ReviewID, req.Source, models.SourceTripAdvisor)
	if key == "" {
		return "", false, ErrMissingReviewID
	}
	updated, err := s.replies.MarkPosted(ctx, key, strings.TrimSpace(req.Reply))
	return key, updated, err
}

// List returns a page of reviews, most recent first
func (s *Service) List(ctx context.Context, filter store.ListFilter) (*store.ListPage, error) {
	if s.store == nil {
		return nil, store.ErrNotConfigured
	}
	return s.store.List(ctx, filter)
}

// Stats aggregates review counts and ratings
func (s *Service) Stats(ctx context.Context) (*models.ReviewStats, error) {
	if s.store == nil {
		return nil, store.ErrNotConfigured
	}
	return s.store.Stats(ctx)
}

// ResolveKey builds a storage key from an explicit key, or from a raw id and
// source. A raw id that already carries a source prefix is used as is.
func ResolveKey(reviewKey, reviewID, source, defaultSource string) string {
	if key := strings.TrimSpace(reviewKey); key != "" {
		return canonicalKey(key)
	}
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return ""
	}
	if strings.Contains(id, "#") {
		return canonicalKey(id)
	}
	src := strings.TrimSpace(source)
	if src == "" {
		src = defaultSource
	}
	return models.ReviewKey(models.CanonicalSource(src), id)
}

func canonicalKey(key string) string {
	if source, id, ok := models.SplitReviewKey(key); ok {
		return models.ReviewKey(models.CanonicalSource(source), id)
	}
	return key
}

func (s *Service) generate(ctx context.Context, mode, reviewID, source, text string, reviewText *string, language string) (*models.GeneratedReply, error) {
	if s.generator == nil {
		return nil, upstream.ErrNotConfigured
	}

	req := upstream.GenerateRequest{Prompt: text, ReviewText: reviewText}
	if language != "" {
		req.PreferredLanguage = &language
	}

	start := time.Now()
	gen, err := s.generator.Generate(ctx, req)

	entry := &logging.GenerationLogEntry{
		RequestID: logging.RequestIDFromContext(ctx),
		ReviewID:  reviewID,
		Source:    source,
		Mode:      mode,
		Latency:   time.Since(start),
		Status:    "success",
	}
	if err != nil {
		entry.Status = "error"
		entry.ErrorCode = logging.SanitizeForLog(err.Error(), 120)
	}
	logging.LogGeneration(entry)

	return gen, err
}

func promptOptions(current *models.Settings, override string) prompt.Options {
	instruction := strings.TrimSpace(override)
	if instruction == "" {
		instruction = current.Prompt
	}
	return prompt.Options{
		Instruction:       instruction,
		Tone:              current.Tone,
		PreferredLanguage: current.PreferredLanguage,
	}
}

// withDefaultSource tags a payload with source unless it names one
func withDefaultSource(payload any, source string) any {
	obj, ok := payload.(map[string]any)
	if !ok || strings.TrimSpace(source) == "" {
		return payload
	}
	if extract.FirstString(obj, extract.SourceKeys...) != nil {
		return payload
	}
	tagged := maps.Clone(obj)
	tagged["reviewOrigin"] = source
	return tagged
}

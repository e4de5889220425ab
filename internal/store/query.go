package store

import (
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/shopspring/decimal"
)

const (
	reviewsTable  = "reviews"
	settingsTable = "review_settings"
)

var reviewColumns = []string{
	"review_id", "external_id", "source", "reviewed_at", "status", "rating",
	"review", "review_translated", "reply", "reply_original", "reply_translated",
	"title", "link", "language", "location_id", "place_id", "place_name", "author_name",
	"created_at", "updated_at", "reply_generated_at", "reply_posted_at",
}

// dialect renders the shared queries for one SQL backend
type dialect struct {
	placeholder sq.PlaceholderFormat
	timeArg     func(time.Time) any
}

var postgresDialect = dialect{
	placeholder: sq.Dollar,
	timeArg:     func(t time.Time) any { return t },
}

var sqliteDialect = dialect{
	placeholder: sq.Question,
	timeArg:     func(t time.Time) any { return formatTime(t) },
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (d dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.placeholder)
}

func (d dialect) optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.timeArg(*t)
}

func (d dialect) insertReview(r *models.Review) (string, []any, error) {
	return d.builder().
		Insert(reviewsTable).
		Columns(reviewColumns...).
		Values(
			r.ReviewID, r.ExternalID, r.Source, r.ReviewedAt, string(r.Status), r.Rating,
			r.Review, r.ReviewTranslated, r.Reply, r.ReplyOriginal, r.ReplyTranslated,
			r.Title, r.Link, r.Language, r.LocationID, r.PlaceID, r.PlaceName, r.AuthorName,
			d.timeArg(r.CreatedAt), d.timeArg(r.UpdatedAt), d.optionalTime(r.ReplyGeneratedAt), r.ReplyPostedAt,
		).
		Suffix("ON CONFLICT (review_id) DO NOTHING").
		ToSql()
}

func (d dialect) updateReview(reviewID string, upd ReplyUpdate, cond Condition) (string, []any, error) {
	q := d.builder().
		Update(reviewsTable).
		Set("updated_at", d.timeArg(upd.UpdatedAt))

	if upd.Status != "" {
		q = q.Set("status", string(upd.Status))
	}
	if upd.Reply != nil {
		q = q.Set("reply", *upd.Reply)
	}
	if t := upd.Translations; t != nil {
		q = q.Set("reply_original", t.ReplyOriginal).
			Set("reply_translated", t.ReplyTranslated).
			Set("review_translated", t.ReviewTranslated)
	}
	if upd.ReplyGeneratedAt != nil {
		q = q.Set("reply_generated_at", d.timeArg(*upd.ReplyGeneratedAt))
	}
	if upd.ReplyPostedAt != nil {
		q = q.Set("reply_posted_at", *upd.ReplyPostedAt)
	}

	q = q.Where(sq.Eq{"review_id": reviewID})
	switch cond.kind {
	case conditionReplyEmpty:
		q = q.Where(replyEmpty())
	case conditionReplyPresent:
		q = q.Where(sq.And{sq.NotEq{"reply": nil}, sq.NotEq{"reply": ""}})
	case conditionReplyEquals:
		q = q.Where(sq.Eq{"reply": cond.reply})
	}

	return q.ToSql()
}

func replyEmpty() sq.Sqlizer {
	return sq.Or{sq.Eq{"reply": nil}, sq.Eq{"reply": ""}}
}

func (d dialect) selectReview(reviewID string) (string, []any, error) {
	return d.builder().
		Select(reviewColumns...).
		From(reviewsTable).
		Where(sq.Eq{"review_id": reviewID}).
		ToSql()
}

// listReviews over-fetches by one row so the caller can tell whether a next page exists
func (d dialect) listReviews(filter ListFilter, limit int) (string, []any, error) {
	q := d.builder().
		Select(reviewColumns...).
		From(reviewsTable)

	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Source != "" {
		q = q.Where(sq.Eq{"source": filter.Source})
	}
	if filter.Cursor != "" {
		c, err := decodeCursor(filter.Cursor)
		if err != nil {
			return "", nil, err
		}
		q = q.Where(sq.Expr("(reviewed_at, review_id) < (?, ?)", c.ReviewedAt, c.ReviewID))
	}

	return q.OrderBy("reviewed_at DESC", "review_id DESC").
		Limit(uint64(limit + 1)).
		ToSql()
}

func (d dialect) listAwaitingReply(limit int) (string, []any, error) {
	return d.builder().
		Select(reviewColumns...).
		From(reviewsTable).
		Where(replyEmpty()).
		OrderBy("reviewed_at DESC", "review_id DESC").
		Limit(uint64(limit)).
		ToSql()
}

func (d dialect) statsQuery() (string, []any, error) {
	return d.builder().
		Select("source", "status", "COUNT(*)", "COUNT(rating)", "COALESCE(SUM(rating), 0)").
		From(reviewsTable).
		GroupBy("source", "status").
		OrderBy("source", "status").
		ToSql()
}

func (d dialect) selectSettings() (string, []any, error) {
	return d.builder().
		Select("data", "created_at", "updated_at").
		From(settingsTable).
		Where(sq.Eq{"setting_id": models.DefaultSettingsID}).
		ToSql()
}

func (d dialect) upsertSettings(data []byte, createdAt, updatedAt time.Time) (string, []any, error) {
	return d.builder().
		Insert(settingsTable).
		Columns("setting_id", "data", "created_at", "updated_at").
		Values(models.DefaultSettingsID, string(data), d.timeArg(createdAt), d.timeArg(updatedAt)).
		Suffix("ON CONFLICT (setting_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at").
		ToSql()
}

// statRow is one (source, status) aggregate
type statRow struct {
	Source    string
	Status    string
	Count     int64
	Rated     int64
	RatingSum float64
}

// buildStats folds grouped rows into per-source and overall aggregates
func buildStats(rows []statRow) *models.ReviewStats {
	stats := &models.ReviewStats{
		ByStatus: make(map[models.ReviewStatus]int64),
		Sources:  []models.SourceStats{},
	}

	bySource := make(map[string]*models.SourceStats)
	sums := make(map[string]decimal.Decimal)
	var totalSum decimal.Decimal
	var totalRated int64

	for _, row := range rows {
		status := models.ReviewStatus(row.Status)
		src, ok := bySource[row.Source]
		if !ok {
			src = &models.SourceStats{
				Source:   row.Source,
				ByStatus: make(map[models.ReviewStatus]int64),
			}
			bySource[row.Source] = src
		}
		src.Total += row.Count
		src.Rated += row.Rated
		src.ByStatus[status] += row.Count

		sum := decimal.NewFromFloat(row.RatingSum)
		sums[row.Source] = sums[row.Source].Add(sum)
		totalSum = totalSum.Add(sum)
		totalRated += row.Rated

		stats.Total += row.Count
		stats.ByStatus[status] += row.Count
	}

	stats.AverageRating = average(totalSum, totalRated)

	names := make([]string, 0, len(bySource))
	for name := range bySource {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		src := bySource[name]
		src.AverageRating = average(sums[name], src.Rated)
		stats.Sources = append(stats.Sources, *src)
	}

	return stats
}

func average(sum decimal.Decimal, count int64) *decimal.Decimal {
	if count == 0 {
		return nil
	}
	avg := sum.Div(decimal.NewFromInt(count)).Round(2)
	return &avg
}

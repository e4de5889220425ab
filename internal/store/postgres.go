package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/aimerfeng/ReviewDesk/internal/monitoring"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Store backed by a pgx connection pool
type Postgres struct {
	pool    *pgxpool.Pool
	dialect dialect
}

// NewPostgres creates a Postgres store on an existing pool
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, dialect: postgresDialect}
}

// Insert implements Store
func (p *Postgres) Insert(ctx context.Context, review *models.Review) (bool, error) {
	defer observe("insert", time.Now())

	query, args, err := p.dialect.insertReview(review)
	if err != nil {
		return false, err
	}
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, &OpError{Op: "insert review " + review.ReviewID, Err: err}
	}
	return tag.RowsAffected() > 0, nil
}

// Update implements Store
func (p *Postgres) Update(ctx context.Context, reviewID string, upd ReplyUpdate, cond Condition) (bool, error) {
	defer observe("update", time.Now())

	query, args, err := p.dialect.updateReview(reviewID, upd, cond)
	if err != nil {
		return false, err
	}
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, &OpError{Op: "update review " + reviewID, Err: err}
	}
	return tag.RowsAffected() > 0, nil
}

// Get implements Store
func (p *Postgres) Get(ctx context.Context, reviewID string) (*models.Review, error) {
	defer observe("get", time.Now())

	query, args, err := p.dialect.selectReview(reviewID)
	if err != nil {
		return nil, err
	}
	review, err := scanPostgresReview(p.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &OpError{Op: "get review " + reviewID, Err: err}
	}
	return review, nil
}

// List implements Store
func (p *Postgres) List(ctx context.Context, filter ListFilter) (*ListPage, error) {
	defer observe("list", time.Now())

	limit := ClampLimit(filter.Limit, DefaultListLimit, MaxListLimit)
	query, args, err := p.dialect.listReviews(filter, limit)
	if err != nil {
		return nil, err
	}
	items, err := p.queryReviews(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return pageFrom(items, limit), nil
}

// ListAwaitingReply implements Store
func (p *Postgres) ListAwaitingReply(ctx context.Context, limit int) ([]*models.Review, error) {
	defer observe("list_awaiting_reply", time.Now())

	query, args, err := p.dialect.listAwaitingReply(limit)
	if err != nil {
		return nil, err
	}
	return p.queryReviews(ctx, query, args)
}

func (p *Postgres) queryReviews(ctx context.Context, query string, args []any) ([]*models.Review, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &OpError{Op: "query reviews", Err: err}
	}
	defer rows.Close()

	var items []*models.Review
	for rows.Next() {
		review, err := scanPostgresReview(rows)
		if err != nil {
			return nil, &OpError{Op: "scan review", Err: err}
		}
		items = append(items, review)
	}
	return items, rows.Err()
}

// Stats implements Store
func (p *Postgres) Stats(ctx context.Context) (*models.ReviewStats, error) {
	defer observe("stats", time.Now())

	query, args, err := p.dialect.statsQuery()
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &OpError{Op: "query stats", Err: err}
	}
	defer rows.Close()

	var stats []statRow
	for rows.Next() {
		var row statRow
		if err := rows.Scan(&row.Source, &row.Status, &row.Count, &row.Rated, &row.RatingSum); err != nil {
			return nil, &OpError{Op: "scan stats", Err: err}
		}
		stats = append(stats, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buildStats(stats), nil
}

// GetSettings implements Store
func (p *Postgres) GetSettings(ctx context.Context) (*models.Settings, error) {
	query, args, err := p.dialect.selectSettings()
	if err != nil {
		return nil, err
	}

	var (
		data      []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err = p.pool.QueryRow(ctx, query, args...).Scan(&data, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &OpError{Op: "get settings", Err: err}
	}
	return decodeSettings(data, createdAt, updatedAt)
}

// SaveSettings implements Store
func (p *Postgres) SaveSettings(ctx context.Context, settings *models.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	query, args, err := p.dialect.upsertSettings(data, settings.CreatedAt, settings.UpdatedAt)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return &OpError{Op: "save settings", Err: err}
	}
	return nil
}

// Ping implements Store
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements Store. The pool is owned by the caller.
func (p *Postgres) Close() error {
	return nil
}

func scanPostgresReview(row pgx.Row) (*models.Review, error) {
	var (
		r      models.Review
		status string
	)
	err := row.Scan(
		&r.ReviewID, &r.ExternalID, &r.Source, &r.ReviewedAt, &status, &r.Rating,
		&r.Review, &r.ReviewTranslated, &r.Reply, &r.ReplyOriginal, &r.ReplyTranslated,
		&r.Title, &r.Link, &r.Language, &r.LocationID, &r.PlaceID, &r.PlaceName, &r.AuthorName,
		&r.CreatedAt, &r.UpdatedAt, &r.ReplyGeneratedAt, &r.ReplyPostedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.ReviewStatus(status)
	return &r, nil
}

func decodeSettings(data []byte, createdAt, updatedAt time.Time) (*models.Settings, error) {
	var settings models.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, &OpError{Op: "decode settings", Err: err}
	}
	settings.CreatedAt = createdAt
	settings.UpdatedAt = updatedAt
	return &settings, nil
}

func observe(queryType string, start time.Time) {
	monitoring.RecordDBQuery(queryType, time.Since(start))
}

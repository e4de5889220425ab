package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/models"
	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLite is a Store backed by an embedded SQLite database
type SQLite struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Pass ":memory:" for an in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and avoids lock errors
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLite{db: db, dialect: sqliteDialect}, nil
}

// Insert implements Store
func (s *SQLite) Insert(ctx context.Context, review *models.Review) (bool, error) {
	defer observe("insert", time.Now())

	query, args, err := s.dialect.insertReview(review)
	if err != nil {
		return false, err
	}
	return s.exec(ctx, query, args)
}

// Update implements Store
func (s *SQLite) Update(ctx context.Context, reviewID string, upd ReplyUpdate, cond Condition) (bool, error) {
	defer observe("update", time.Now())

	query, args, err := s.dialect.updateReview(reviewID, upd, cond)
	if err != nil {
		return false, err
	}
	return s.exec(ctx, query, args)
}

func (s *SQLite) exec(ctx context.Context, query string, args []any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, &OpError{Op: "exec", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &OpError{Op: "rows affected", Err: err}
	}
	return n > 0, nil
}

// Get implements Store
func (s *SQLite) Get(ctx context.Context, reviewID string) (*models.Review, error) {
	defer observe("get", time.Now())

	query, args, err := s.dialect.selectReview(reviewID)
	if err != nil {
		return nil, err
	}
	review, err := scanSQLiteReview(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &OpError{Op: "get review " + reviewID, Err: err}
	}
	return review, nil
}

// List implements Store
func (s *SQLite) List(ctx context.Context, filter ListFilter) (*ListPage, error) {
	defer observe("list", time.Now())

	limit := ClampLimit(filter.Limit, DefaultListLimit, MaxListLimit)
	query, args, err := s.dialect.listReviews(filter, limit)
	if err != nil {
		return nil, err
	}
	items, err := s.queryReviews(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return pageFrom(items, limit), nil
}

// ListAwaitingReply implements Store
func (s *SQLite) ListAwaitingReply(ctx context.Context, limit int) ([]*models.Review, error) {
	defer observe("list_awaiting_reply", time.Now())

	query, args, err := s.dialect.listAwaitingReply(limit)
	if err != nil {
		return nil, err
	}
	return s.queryReviews(ctx, query, args)
}

func (s *SQLite) queryReviews(ctx context.Context, query string, args []any) ([]*models.Review, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &OpError{Op: "query reviews", Err: err}
	}
	defer rows.Close()

	var items []*models.Review
	for rows.Next() {
		review, err := scanSQLiteReview(rows)
		if err != nil {
			return nil, &OpError{Op: "scan review", Err: err}
		}
		items = append(items, review)
	}
	return items, rows.Err()
}

// Stats implements Store
func (s *SQLite) Stats(ctx context.Context) (*models.ReviewStats, error) {
	defer observe("stats", time.Now())

	query, args, err := s.dialect.statsQuery()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLite) GetSettings(ctx context.Context) (*models.Settings, error) {
	query, args, err := s.dialect.selectSettings()
	if err != nil {
		return nil, err
	}

	var data, createdAt, updatedAt string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&data, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &OpError{Op: "get settings", Err: err}
	}
	return decodeSettings([]byte(data), parseTime(createdAt), parseTime(updatedAt))
}

// SaveSettings implements Store
func (s *SQLite) SaveSettings(ctx context.Context, settings *models.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	query, args, err := s.dialect.upsertSettings(data, settings.CreatedAt, settings.UpdatedAt)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &OpError{Op: "save settings", Err: err}
	}
	return nil
}

// Ping implements Store
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store
func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteReview(row scanner) (*models.Review, error) {
	var (
		r                    models.Review
		status               string
		createdAt, updatedAt string
		generatedAt          sql.NullString
	)
	err := row.Scan(
		&r.ReviewID, &r.ExternalID, &r.Source, &r.ReviewedAt, &status, &r.Rating,
		&r.Review, &r.ReviewTranslated, &r.Reply, &r.ReplyOriginal, &r.ReplyTranslated,
		&r.Title, &r.Link, &r.Language, &r.LocationID, &r.PlaceID, &r.PlaceName, &r.AuthorName,
		&createdAt, &updatedAt, &generatedAt, &r.ReplyPostedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.ReviewStatus(status)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	if generatedAt.Valid {
		t := parseTime(generatedAt.String)
		r.ReplyGeneratedAt = &t
	}
	return &r, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

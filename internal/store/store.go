// Package store persists review records behind conditional writes.
package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/models"
)

var (
	// ErrNotFound is returned when a review or settings document does not exist
	ErrNotFound = errors.New("not found")
	// ErrNotConfigured is returned when no store endpoint is configured
	ErrNotConfigured = errors.New("review store not configured")
	// ErrInvalidCursor is returned for a malformed list cursor
	ErrInvalidCursor = errors.New("invalid list cursor")
)

// OpError is a backend failure annotated with the store operation that hit it
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

// List limits
const (
	DefaultListLimit = 25
	MaxListLimit     = 100
)

type conditionKind int

const (
	conditionExists conditionKind = iota
	conditionReplyEmpty
	conditionReplyPresent
	conditionReplyEquals
)

// Condition is the precondition an update must satisfy to apply.
// Every condition requires the record to exist.
type Condition struct {
	kind  conditionKind
	reply string
}

// IfExists applies the update to any existing record
func IfExists() Condition {
	return Condition{kind: conditionExists}
}

// IfReplyEmpty applies the update only while the stored reply is null or empty
func IfReplyEmpty() Condition {
	return Condition{kind: conditionReplyEmpty}
}

// IfReplyPresent applies the update only when a non-empty reply is stored
func IfReplyPresent() Condition {
	return Condition{kind: conditionReplyPresent}
}

// IfReplyEquals applies the update only while the stored reply still equals reply
func IfReplyEquals(reply string) Condition {
	return Condition{kind: conditionReplyEquals, reply: reply}
}

// String returns a short name for logs and metrics
func (c Condition) String() string {
	switch c.kind {
	case conditionReplyEmpty:
		return "reply_empty"
	case conditionReplyPresent:
		return "reply_present"
	case conditionReplyEquals:
		return "reply_equals"
	default:
		return "exists"
	}
}

// ReplyUpdate describes a reply or status transition. Nil fields are left
// untouched.
type ReplyUpdate struct {
	Status           models.ReviewStatus
	Reply            *string
	Translations     *Translations
	ReplyGeneratedAt *time.Time
	ReplyPostedAt    *string
	UpdatedAt        time.Time
}

// Translations replaces all translation columns at once; nil members are
// written as NULL
type Translations struct {
	ReplyOriginal    *string
	ReplyTranslated  *string
	ReviewTranslated *string
}

// TranslationsOf returns the translation columns of a generated reply
func TranslationsOf(gen *models.GeneratedReply) *Translations {
	return &Translations{
		ReplyOriginal:    gen.ReplyOriginal,
		ReplyTranslated:  gen.ReplyTranslated,
		ReviewTranslated: gen.ReviewTranslated,
	}
}

// ListFilter selects a page of reviews
type ListFilter struct {
	Limit  int
	Status models.ReviewStatus
	Source string
	Cursor string
}

// ListPage is one page of reviews, most recent first
type ListPage struct {
	Items      []*models.Review `json:"items"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// Store is the review persistence interface
type Store interface {
	// Insert stores the record unless its key exists and reports whether it was stored
	Insert(ctx context.Context, review *models.Review) (bool, error)
	// Update applies upd when cond holds and reports whether a record changed
	Update(ctx context.Context, reviewID string, upd ReplyUpdate, cond Condition) (bool, error)
	Get(ctx context.Context, reviewID string) (*models.Review, error)
	List(ctx context.Context, filter ListFilter) (*ListPage, error)
	// ListAwaitingReply returns records whose reply is null or empty
	ListAwaitingReply(ctx context.Context, limit int) ([]*models.Review, error)
	Stats(ctx context.Context) (*models.ReviewStats, error)
	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error
	Ping(ctx context.Context) error
	Close() error
}

// ClampLimit applies the list defaults and ceiling
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

type cursor struct {
	ReviewedAt string `json:"r"`
	ReviewID   string `json:"k"`
}

func encodeCursor(r *models.Review) string {
	data, _ := json.Marshal(cursor{ReviewedAt: r.ReviewedAt, ReviewID: r.ReviewID})
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(s string) (*cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c cursor
	if err := json.Unmarshal(data, &c); err != nil || c.ReviewID == "" {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// pageFrom trims an over-fetched result to limit and sets the next cursor
func pageFrom(items []*models.Review, limit int) *ListPage {
	page := &ListPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextCursor = encodeCursor(page.Items[limit-1])
	}
	if page.Items == nil {
		page.Items = []*models.Review{}
	}
	return page
}

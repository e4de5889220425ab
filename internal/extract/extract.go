// Package extract pulls typed fields out of loosely-shaped review payloads.
package extract

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/shopspring/decimal"
)

// ErrNotObject is returned when a payload is not a JSON object
var ErrNotObject = errors.New("review payload must be an object")

// Field aliases in priority order
var (
	SourceKeys     = []string{"reviewOrigin", "source", "origin"}
	IDKeys         = []string{"reviewKey", "reviewId", "id"}
	AuthorKeys     = []string{"authorName", "author", "name", "reviewerName", "user.name"}
	RatingKeys     = []string{"rating", "stars"}
	ReviewTextKeys = []string{"reviewText", "review", "text", "textTranslated"}
	TitleKeys      = []string{"title"}
	LinkKeys       = []string{"reviewUrl", "url", "link"}
)

var (
	numberPattern     = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	numberWordPattern = regexp.MustCompile(`(?i)\b(zero|one|two|three|four|five)\b`)
	htmlTagPattern    = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
)

var numberWords = map[string]float64{
	"zero":  0,
	"one":   1,
	"two":   2,
	"three": 3,
	"four":  4,
	"five":  5,
}

// PromptInput is the normalized view of a review used to build prompts
type PromptInput struct {
	Source     *string
	ReviewKey  *string
	ExternalID *string
	AuthorName *string
	Rating     *float64
	ReviewText *string
	Title      *string
	Link       *string
}

// AsObject returns the payload as a JSON object
func AsObject(payload any) (map[string]any, error) {
	obj, ok := payload.(map[string]any)
	if !ok || obj == nil {
		return nil, ErrNotObject
	}
	return obj, nil
}

// FromPayload extracts prompt fields from a raw review payload
func FromPayload(payload any) (*PromptInput, error) {
	obj, err := AsObject(payload)
	if err != nil {
		return nil, err
	}

	input := &PromptInput{
		AuthorName: FirstString(obj, AuthorKeys...),
		Rating:     FirstNumber(obj, RatingKeys...),
		ReviewText: Text(FirstString(obj, ReviewTextKeys...)),
		Title:      FirstString(obj, TitleKeys...),
		Link:       FirstString(obj, LinkKeys...),
	}

	if source := FirstString(obj, SourceKeys...); source != nil {
		canonical := models.CanonicalSource(*source)
		input.Source = &canonical
	}

	if rawID := FirstString(obj, IDKeys...); rawID != nil {
		key, externalID := composeKey(*rawID, input.Source)
		input.ReviewKey = key
		input.ExternalID = &externalID
		if input.Source == nil && key != nil {
			if prefix, _, ok := models.SplitReviewKey(*key); ok {
				input.Source = &prefix
			}
		}
	}

	return input, nil
}

// FromReview builds prompt fields from a stored review record
func FromReview(r *models.Review) *PromptInput {
	source := r.Source
	key := r.ReviewID
	externalID := r.ExternalID
	return &PromptInput{
		Source:     &source,
		ReviewKey:  &key,
		ExternalID: &externalID,
		AuthorName: r.AuthorName,
		Rating:     r.Rating,
		ReviewText: r.Review,
		Title:      r.Title,
		Link:       r.Link,
	}
}

// composeKey derives the storage key and external id from a raw id.
// A composite id keeps its own source prefix.
func composeKey(rawID string, source *string) (*string, string) {
	if strings.Contains(rawID, "#") {
		if prefix, id, ok := models.SplitReviewKey(rawID); ok {
			key := models.ReviewKey(models.CanonicalSource(prefix), id)
			return &key, id
		}
		return &rawID, rawID
	}
	if source == nil {
		return nil, rawID
	}
	key := models.ReviewKey(*source, rawID)
	return &key, rawID
}

// Lookup resolves a key in an object. Dotted keys walk nested objects.
func Lookup(obj map[string]any, key string) any {
	if v, ok := obj[key]; ok {
		return v
	}
	head, rest, found := strings.Cut(key, ".")
	if !found {
		return nil
	}
	nested, ok := obj[head].(map[string]any)
	if !ok {
		return nil
	}
	return Lookup(nested, rest)
}

// FirstString returns the first alias that yields a non-empty string
func FirstString(obj map[string]any, keys ...string) *string {
	for _, key := range keys {
		if s := String(Lookup(obj, key)); s != nil {
			return s
		}
	}
	return nil
}

// FirstNumber returns the first alias that yields a number
func FirstNumber(obj map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if n := Number(Lookup(obj, key)); n != nil {
			return n
		}
	}
	return nil
}

// String coerces a value to a trimmed string. Empty strings are absent
// and numbers are rendered in their shortest form.
func String(v any) *string {
	var s string
	switch val := v.(type) {
	case string:
		s = strings.TrimSpace(val)
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

// Number coerces a value to a number. Strings yield their first embedded
// decimal, or a number word from zero to five.
func Number(v any) *float64 {
	switch val := v.(type) {
	case float64:
		return &val
	case float32:
		f := float64(val)
		return &f
	case int:
		f := float64(val)
		return &f
	case int64:
		f := float64(val)
		return &f
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return &f
		}
		return parseNumberString(val.String())
	case string:
		return parseNumberString(val)
	}
	return nil
}

func parseNumberString(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if match := numberPattern.FindString(s); match != "" {
		d, err := decimal.NewFromString(match)
		if err == nil {
			f := d.InexactFloat64()
			return &f
		}
	}
	if f, ok := numberWords[strings.ToLower(s)]; ok {
		return &f
	}
	if match := numberWordPattern.FindString(s); match != "" {
		f := numberWords[strings.ToLower(match)]
		return &f
	}
	return nil
}

// Text reduces markup in review text to its plain text content
func Text(s *string) *string {
	if s == nil || !htmlTagPattern.MatchString(*s) {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(*s))
	if err != nil {
		return s
	}
	doc.Find("br").ReplaceWithHtml("\n")
	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return nil
	}
	return &text
}

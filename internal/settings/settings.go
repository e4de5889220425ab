// Package settings loads and saves the operator reply settings.
package settings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/logging"
	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/aimerfeng/ReviewDesk/internal/store"
	"github.com/rs/zerolog"
)

// ErrInvalidPayload is returned when a settings update is not a JSON object
var ErrInvalidPayload = errors.New("settings payload must be an object")

// Defaults returns the built-in settings
func Defaults() models.Settings {
	return models.Settings{
		Prompt:            "Write a warm, concise reply. Mention the guest by name, thank them, and reference one detail from the review. Keep under 60 words.",
		PreferredLanguage: "English",
		Tone:              "Warm and professional",
		GoogleMapsURL:     "https://maps.google.com/?q=place",
		TripAdvisorURL:    "https://www.tripadvisor.com/",
		SyncTime:          "2:00 AM",
		ApprovalThreshold: "3 stars and below",
		AutoPostDelay:     "30 minutes",
		AutoDraftReplies:  true,
		AutoPostHighStars: false,
		HoldLowStars:      true,
	}
}

// Service reads settings from the store on every call
type Service struct {
	store  store.Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a new settings service
func NewService(s store.Store) *Service {
	return &Service{
		store:  s,
		now:    time.Now,
		logger: logging.NewLogger("settings"),
	}
}

// Get returns the stored settings merged over the defaults
func (s *Service) Get(ctx context.Context) (*models.Settings, error) {
	if s == nil || s.store == nil {
		return nil, store.ErrNotConfigured
	}
	stored, err := s.store.GetSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		defaults := Defaults()
		return &defaults, nil
	}
	if err != nil {
		return nil, err
	}
	merged := withDefaults(stored)
	return &merged, nil
}

// Load is Get for background operations: any failure yields the defaults
func (s *Service) Load(ctx context.Context) *models.Settings {
	settings, err := s.Get(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotConfigured) {
			s.logger.Warn().Err(err).Msg("Failed to load settings, using defaults")
		}
		defaults := Defaults()
		return &defaults
	}
	return settings
}

// Save applies a partial update over the stored settings. Unknown, empty and
// mistyped fields are ignored. createdAt is kept from the first save.
func (s *Service) Save(ctx context.Context, payload any) (*models.Settings, error) {
	if s == nil || s.store == nil {
		return nil, store.ErrNotConfigured
	}
	patch, err := Pick(payload)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	merged := Defaults()
	merged.CreatedAt = now

	existing, err := s.store.GetSettings(ctx)
	switch {
	case err == nil:
		merged = withDefaults(existing)
		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = now
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	patch.Apply(&merged)
	merged.UpdatedAt = now

	if err := s.store.SaveSettings(ctx, &merged); err != nil {
		return nil, err
	}
	s.logger.Info().Msg("Settings saved")
	return &merged, nil
}

// Patch is a validated partial settings update
type Patch struct {
	Prompt            *string
	PreferredLanguage *string
	Tone              *string
	GoogleMapsURL     *string
	TripAdvisorURL    *string
	SyncTime          *string
	ApprovalThreshold *string
	AutoPostDelay     *string
	AutoDraftReplies  *bool
	AutoPostHighStars *bool
	HoldLowStars      *bool
}

// Pick keeps the recognized, well-typed, non-empty fields of payload
func Pick(payload any) (*Patch, error) {
	data, ok := payload.(map[string]any)
	if !ok || data == nil {
		return nil, ErrInvalidPayload
	}
	return &Patch{
		Prompt:            pickString(data, "replyPrompt"),
		PreferredLanguage: pickString(data, "preferredLanguage"),
		Tone:              pickString(data, "replyTone"),
		GoogleMapsURL:     pickString(data, "googleMapsUrl"),
		TripAdvisorURL:    pickString(data, "tripAdvisorUrl"),
		SyncTime:          pickString(data, "syncTime"),
		ApprovalThreshold: pickString(data, "approvalThreshold"),
		AutoPostDelay:     pickString(data, "autoPostDelay"),
		AutoDraftReplies:  pickBool(data, "autoDraftReplies"),
		AutoPostHighStars: pickBool(data, "autoPostHighStars"),
		HoldLowStars:      pickBool(data, "holdLowStars"),
	}, nil
}

// Apply writes the set fields onto settings
func (p *Patch) Apply(settings *models.Settings) {
	setString(&settings.Prompt, p.Prompt)
	setString(&settings.PreferredLanguage, p.PreferredLanguage)
	setString(&settings.Tone, p.Tone)
	setString(&settings.GoogleMapsURL, p.GoogleMapsURL)
	setString(&settings.TripAdvisorURL, p.TripAdvisorURL)
	setString(&settings.SyncTime, p.SyncTime)
	setString(&settings.ApprovalThreshold, p.ApprovalThreshold)
	setString(&settings.AutoPostDelay, p.AutoPostDelay)
	setBool(&settings.AutoDraftReplies, p.AutoDraftReplies)
	setBool(&settings.AutoPostHighStars, p.AutoPostHighStars)
	setBool(&settings.HoldLowStars, p.HoldLowStars)
}

// withDefaults fills empty string fields of a stored document
func withDefaults(stored *models.Settings) models.Settings {
	merged := *stored
	defaults := Defaults()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&merged.Prompt, defaults.Prompt)
	fill(&merged.PreferredLanguage, defaults.PreferredLanguage)
	fill(&merged.Tone, defaults.Tone)
	fill(&merged.GoogleMapsURL, defaults.GoogleMapsURL)
	fill(&merged.TripAdvisorURL, defaults.TripAdvisorURL)
	fill(&merged.SyncTime, defaults.SyncTime)
	fill(&merged.ApprovalThreshold, defaults.ApprovalThreshold)
	fill(&merged.AutoPostDelay, defaults.AutoPostDelay)
	return merged
}

func pickString(data map[string]any, key string) *string {
	s, ok := data[key].(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func pickBool(data map[string]any, key string) *bool {
	b, ok := data[key].(bool)
	if !ok {
		return nil
	}
	return &b
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

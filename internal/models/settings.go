package models

import "time"

// DefaultSettingsID is the id of the single settings document
const DefaultSettingsID = "default"

// Settings holds the operator configuration for reply drafting
type Settings struct {
	Prompt            string    `json:"replyPrompt"`
	PreferredLanguage string    `json:"preferredLanguage"`
	Tone              string    `json:"replyTone"`
	GoogleMapsURL     string    `json:"googleMapsUrl"`
	TripAdvisorURL    string    `json:"tripAdvisorUrl"`
	SyncTime          string    `json:"syncTime"`
	ApprovalThreshold string    `json:"approvalThreshold"`
	AutoPostDelay     string    `json:"autoPostDelay"`
	AutoDraftReplies  bool      `json:"autoDraftReplies"`
	AutoPostHighStars bool      `json:"autoPostHighStars"`
	HoldLowStars      bool      `json:"holdLowStars"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ReplySettings is the subset of settings consumed by reply generation
type ReplySettings struct {
	Prompt            string
	PreferredLanguage string
	Tone              string
}

// ReplySettings returns the generation-relevant settings
func (s *Settings) ReplySettings() ReplySettings {
	return ReplySettings{
		Prompt:            s.Prompt,
		PreferredLanguage: s.PreferredLanguage,
		Tone:              s.Tone,
	}
}

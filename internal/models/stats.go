package models

import "github.com/shopspring/decimal"

// SourceStats aggregates reviews for a single source
type SourceStats struct {
	Source        string                 `json:"source"`
	Total         int64                  `json:"total"`
	Rated         int64                  `json:"rated"`
	AverageRating *decimal.Decimal       `json:"averageRating"`
	ByStatus      map[ReviewStatus]int64 `json:"byStatus"`
}

// ReviewStats aggregates reviews across all sources
type ReviewStats struct {
	Total         int64                  `json:"total"`
	AverageRating *decimal.Decimal       `json:"averageRating"`
	ByStatus      map[ReviewStatus]int64 `json:"byStatus"`
	Sources       []SourceStats          `json:"sources"`
}

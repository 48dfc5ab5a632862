package core

import (
	"context"
	"time"
)

// LearningRecord is one appended quality observation. Records are never
// mutated after Append.
type LearningRecord struct {
	ID         string           `json:"id"`
	Domain     string           `json:"domain"`
	Quality    QualityVector    `json:"quality"`
	Config     RunConfiguration `json:"config"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// Recommendation is an aggregated configuration ranked by past quality.
type Recommendation struct {
	Circuit      CircuitType `json:"circuit"`
	Depth        int         `json:"depth"`
	EnhancedMode bool        `json:"enhanced_mode"`
	ArchetypeIDs []string    `json:"archetype_ids"`
	MeanOverall  float64     `json:"mean_overall"`
	BestOverall  float64     `json:"best_overall"`
	Runs         int         `json:"runs"`
}

// LearningStore persists quality observations and ranks configurations.
// Implementations must support concurrent Append without touching prior
// records and must not hold long locks across calls.
type LearningStore interface {
	Append(ctx context.Context, qv QualityVector, cfg RunConfiguration, domain string) error
	QueryBestConfigurations(ctx context.Context, domain string, limit int) ([]Recommendation, error)
}

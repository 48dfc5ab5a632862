package core

import "time"

// RunStatus describes how a run that produced a result ended.
type RunStatus string

const (
	// StatusCompleted means every requested layer ran, or a confirmed
	// breakthrough ended the run early.
	StatusCompleted RunStatus = "completed"
	// StatusPartial means the run stopped early because a later layer lost
	// every archetype or the run deadline passed.
	StatusPartial RunStatus = "partial"
	// StatusCancelled means the caller cancelled after at least one layer.
	StatusCancelled RunStatus = "cancelled"
)

// QualityVector scores a finished run. Sub-metrics are normalised to [0,10].
type QualityVector struct {
	Overall               float64 `json:"overall"`
	Confidence            float64 `json:"confidence"`
	Novelty               float64 `json:"novelty"`
	BreakthroughPotential float64 `json:"breakthrough_potential"`
	Integrity             float64 `json:"integrity"`

	ConfidencePct        float64 `json:"confidence_pct"`
	BreakthroughPct      float64 `json:"breakthrough_pct"`
	TensionPoints        int     `json:"tension_points"`
	LayersProcessed      int     `json:"layers_processed"`
	DegradedPerspectives int     `json:"degraded_perspectives"`
}

// RunResult is the immutable product of a run.
type RunResult struct {
	RunID           string          `json:"run_id"`
	Question        string          `json:"question"`
	Circuit         CircuitType     `json:"circuit"`
	Status          RunStatus       `json:"status"`
	Synthesis       string          `json:"synthesis"`
	Quality         QualityVector   `json:"quality"`
	Layers          []LayerResult   `json:"layers"`
	LayersProcessed int             `json:"layers_processed"`
	RequestedDepth  int             `json:"requested_depth"`
	Tension         TensionSnapshot `json:"tension"`
	Note            string          `json:"note,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	Elapsed         time.Duration   `json:"elapsed"`
}

// Outcome is the single terminal value of a run: exactly one field is set.
type Outcome struct {
	Result *RunResult
	Err    *RunError
}

// Cancelled reports whether the run ended through cancellation, with or
// without completed layers.
func (o Outcome) Cancelled() bool {
	if o.Result != nil {
		return o.Result.Status == StatusCancelled
	}
	return o.Err != nil && o.Err.Kind == RunErrorCancelled
}

// Error returns the terminal error as a plain error, or nil.
func (o Outcome) Error() error {
	if o.Err == nil {
		return nil
	}
	return o.Err
}

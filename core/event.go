package core

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the coarse position of a run inside its state machine.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseInvoking     Phase = "invoking"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseEvaluating   Phase = "evaluating"
	PhaseFinalizing   Phase = "finalizing"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseCancelled    Phase = "cancelled"
)

// Rank orders phases inside a single layer. Terminal phases share the
// highest rank.
func (p Phase) Rank() int {
	switch p {
	case PhaseInitializing:
		return 0
	case PhaseInvoking:
		return 1
	case PhaseSynthesizing:
		return 2
	case PhaseEvaluating:
		return 3
	case PhaseFinalizing:
		return 4
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return 5
	default:
		return -1
	}
}

// Terminal reports whether no event may follow p.
func (p Phase) Terminal() bool { return p.Rank() == 5 }

// Chunk is the per-layer archetype progress: Current of Total invocations
// that have returned in the layer so far.
type Chunk struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// ProgressEvent is a single observation of a run's progress. After
// emission it should be treated as immutable.
type ProgressEvent struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Phase       Phase     `json:"phase"`
	Layer       int       `json:"layer"`
	TotalLayers int       `json:"total_layers"`
	Archetype   string    `json:"archetype,omitempty"`
	Chunk       Chunk     `json:"chunk"`
	Percent     float64   `json:"percent"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewProgressEvent creates an event for runID stamped with a fresh id and a
// UTC timestamp.
func NewProgressEvent(runID string, phase Phase, layer, totalLayers int) ProgressEvent {
	return ProgressEvent{
		ID:          NewID(),
		RunID:       runID,
		Phase:       phase,
		Layer:       layer,
		TotalLayers: totalLayers,
		Timestamp:   time.Now().UTC(),
	}
}

// Before reports whether e strictly precedes other in the
// (layer, phase, chunk) order. An event that is Before the last emitted
// one would regress and must be dropped.
func (e ProgressEvent) Before(other ProgressEvent) bool {
	if e.Phase.Terminal() != other.Phase.Terminal() {
		return !e.Phase.Terminal()
	}
	if e.Layer != other.Layer {
		return e.Layer < other.Layer
	}
	if e.Phase.Rank() != other.Phase.Rank() {
		return e.Phase.Rank() < other.Phase.Rank()
	}
	return e.Chunk.Current < other.Chunk.Current
}

// NewID generates a new unique identifier for runs, events and records.
func NewID() string { return uuid.NewString() }

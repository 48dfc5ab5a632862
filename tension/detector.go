// Package tension measures disagreement across archetypes and layers and
// decides when a breakthrough has been reached.
package tension

import (
	"fmt"
	"math"

	"github.com/hupe1980/insightmesh/core"
)

// Pair is one contradicting pair of perspectives within a layer.
type Pair struct {
	Layer int
	A, B  string
}

// String renders the pair for prompts.
func (p Pair) String() string { return fmt.Sprintf("%s vs %s (layer %d)", p.A, p.B, p.Layer) }

// Detector evaluates layer histories. It holds no mutable state.
type Detector struct {
	metric Metric
}

// NewDetector creates a Detector. A nil metric selects DefaultMetric.
func NewDetector(m Metric) *Detector {
	if m == nil {
		m = DefaultMetric
	}
	return &Detector{metric: m}
}

// Metric returns the text metric in use.
func (d *Detector) Metric() Metric { return d.metric }

// Pairs lists the contradicting survivor pairs of one layer in registry order.
func (d *Detector) Pairs(l core.LayerResult) []Pair {
	survivors := l.Survivors()
	var out []Pair
	for i := 0; i < len(survivors); i++ {
		for j := i + 1; j < len(survivors); j++ {
			if d.metric.Contradicts(survivors[i].Text, survivors[j].Text) {
				out = append(out, Pair{Layer: l.Index, A: survivors[i].ArchetypeName, B: survivors[j].ArchetypeName})
			}
		}
	}
	return out
}

// Evaluate computes the snapshot for the history of completed layers. It
// never mutates history.
//
// A breakthrough requires all three conditions: contradictions reach
// ContradictionThreshold, at least ArchetypeOverlap distinct archetypes are
// implicated and at least MinRecursionDepth layers have completed.
func (d *Detector) Evaluate(history []core.LayerResult, params core.TensionParams) core.TensionSnapshot {
	snap := core.TensionSnapshot{Depth: len(history)}

	seen := map[string]struct{}{}
	for _, l := range history {
		survivors := l.Survivors()
		for i := 0; i < len(survivors); i++ {
			for j := i + 1; j < len(survivors); j++ {
				a, b := survivors[i], survivors[j]
				if !d.metric.Contradicts(a.Text, b.Text) {
					continue
				}
				snap.Contradictions++
				for _, id := range []string{a.ArchetypeID, b.ArchetypeID} {
					if _, ok := seen[id]; !ok {
						seen[id] = struct{}{}
						snap.Implicated = append(snap.Implicated, id)
					}
				}
			}
		}
	}

	if n := len(history); n >= 2 {
		snap.Convergence = d.metric.Similarity(history[n-2].Synthesis, history[n-1].Synthesis)
	}

	contradictionsMet := snap.Contradictions >= params.ContradictionThreshold
	overlapMet := len(snap.Implicated) >= params.ArchetypeOverlap
	depthMet := snap.Depth >= params.MinRecursionDepth
	snap.Breakthrough = contradictionsMet && overlapMet && depthMet

	if snap.Breakthrough {
		excess := (excessRatio(snap.Contradictions, params.ContradictionThreshold) +
			excessRatio(len(snap.Implicated), params.ArchetypeOverlap) +
			excessRatio(snap.Depth, params.MinRecursionDepth)) / 3
		snap.Confidence = math.Min(100, 50+50*excess)
	}
	return snap
}

// Progress returns how far each breakthrough condition is from firing as
// the mean of the capped per-condition ratios, in [0,1].
func Progress(s core.TensionSnapshot, params core.TensionParams) float64 {
	return (capRatio(s.Contradictions, params.ContradictionThreshold) +
		capRatio(len(s.Implicated), params.ArchetypeOverlap) +
		capRatio(s.Depth, params.MinRecursionDepth)) / 3
}

// ShouldStop reports whether the scheduler may finalize early. The
// confidence must exceed EarlyStopConfidence.
func ShouldStop(s core.TensionSnapshot, params core.TensionParams) bool {
	return s.Breakthrough && s.Confidence > params.EarlyStopConfidence && s.Depth >= params.MinRecursionDepth
}

func excessRatio(v, threshold int) float64 {
	if threshold <= 0 {
		return 1
	}
	return float64(v-threshold) / float64(threshold)
}

func capRatio(v, threshold int) float64 {
	if threshold <= 0 {
		return 1
	}
	return math.Min(1, float64(v)/float64(threshold))
}

// Package quality scores finished runs and feeds the scores into the
// learning store without ever failing a run.
package quality

import (
	"math"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/tension"
)

// Weights of the sub-metrics in the overall score. They sum to 1.
const (
	WeightConfidence   = 0.35
	WeightNovelty      = 0.25
	WeightBreakthrough = 0.25
	WeightIntegrity    = 0.15
)

// Evaluator scores a result against the configuration that produced it.
type Evaluator interface {
	Score(result core.RunResult, cfg core.RunConfiguration) core.QualityVector
}

// Scorer is the default Evaluator. It scores completed layers only.
type Scorer struct {
	metric tension.Metric
}

// NewScorer creates a Scorer. A nil metric selects tension.DefaultMetric.
func NewScorer(m tension.Metric) *Scorer {
	if m == nil {
		m = tension.DefaultMetric
	}
	return &Scorer{metric: m}
}

// Score implements Evaluator.
func (s *Scorer) Score(result core.RunResult, cfg core.RunConfiguration) core.QualityVector {
	qv := core.QualityVector{
		LayersProcessed: len(result.Layers),
		TensionPoints:   result.Tension.Contradictions,
	}
	if len(result.Layers) == 0 {
		return qv
	}
	params := cfg.TensionOrDefault()

	total, survived := 0, 0
	for _, l := range result.Layers {
		total += len(l.Perspectives)
		survived += len(l.Survivors())
	}
	qv.DegradedPerspectives = total - survived
	survival := 1.0
	if total > 0 {
		survival = float64(survived) / float64(total)
	}

	// A confirmed breakthrough justifies stopping early.
	depthRatio := 1.0
	if !result.Tension.Breakthrough && result.RequestedDepth > 0 {
		depthRatio = math.Min(1, float64(len(result.Layers))/float64(result.RequestedDepth))
	}
	convergence := result.Tension.Convergence
	if len(result.Layers) == 1 {
		convergence = 0.5
	}
	qv.ConfidencePct = clampPct(100 * (0.5*survival + 0.25*depthRatio + 0.25*convergence))
	if result.Tension.Breakthrough {
		qv.ConfidencePct = math.Max(qv.ConfidencePct, result.Tension.Confidence)
	}

	if result.Tension.Breakthrough {
		qv.BreakthroughPct = clampPct(result.Tension.Confidence)
	} else {
		qv.BreakthroughPct = clampPct(60 * tension.Progress(result.Tension, params))
	}

	qv.Confidence = round(qv.ConfidencePct / 10)
	qv.BreakthroughPotential = round(qv.BreakthroughPct / 10)
	qv.Novelty = round(10 * s.novelty(result.Layers[len(result.Layers)-1]))
	qv.Integrity = round(10 * survival)
	qv.ConfidencePct = round(qv.ConfidencePct)
	qv.BreakthroughPct = round(qv.BreakthroughPct)

	qv.Overall = round(clamp10(
		WeightConfidence*qv.Confidence +
			WeightNovelty*qv.Novelty +
			WeightBreakthrough*qv.BreakthroughPotential +
			WeightIntegrity*qv.Integrity,
	))
	return qv
}

// novelty is the mean pairwise dissimilarity of the final layer's survivors.
func (s *Scorer) novelty(l core.LayerResult) float64 {
	survivors := l.Survivors()
	if len(survivors) < 2 {
		return 0
	}
	sum, pairs := 0.0, 0
	for i := 0; i < len(survivors); i++ {
		for j := i + 1; j < len(survivors); j++ {
			sum += 1 - s.metric.Similarity(survivors[i].Text, survivors[j].Text)
			pairs++
		}
	}
	return sum / float64(pairs)
}

func clampPct(v float64) float64 { return math.Max(0, math.Min(100, v)) }

func clamp10(v float64) float64 { return math.Max(0, math.Min(10, v)) }

func round(v float64) float64 { return math.Round(v*100) / 100 }

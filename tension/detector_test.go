package tension

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/insightmesh/core"
)

const (
	pro = "Yes, we should pursue the opportunity: growth favours bold founders."
	con = "No, avoid it: the risk is real and the evidence weak, failure likely."
)

func layer(idx int, synthesis string, texts map[string]string, order ...string) core.LayerResult {
	l := core.LayerResult{Index: idx, Synthesis: synthesis}
	for _, id := range order {
		text, ok := texts[id]
		l.Perspectives = append(l.Perspectives, core.Perspective{
			ArchetypeID:   id,
			ArchetypeName: id,
			Text:          text,
			Failed:        !ok,
		})
	}
	return l
}

func disagreeing(n int) []core.LayerResult {
	out := make([]core.LayerResult, n)
	for i := range out {
		out[i] = layer(i+1, "mixed views", map[string]string{"a": pro, "b": con}, "a", "b")
	}
	return out
}

func TestLexicalMetric(t *testing.T) {
	m := DefaultMetric
	assert.True(t, m.Contradicts(pro, con))
	assert.False(t, m.Contradicts(pro, pro), "same stance")
	assert.False(t, m.Contradicts(pro, "The weather is mild today."), "neutral text")
	// Opposite polarity but nearly identical wording is a nuance, not a contradiction.
	assert.False(t, m.Contradicts("yes the plan works well enough", "no the plan works well enough"))

	assert.Equal(t, 1.0, m.Similarity(pro, pro))
	assert.Less(t, m.Similarity(pro, con), 0.5)
}

func TestPolarityAndTokens(t *testing.T) {
	assert.Positive(t, Polarity(pro))
	assert.Negative(t, Polarity(con))
	assert.Zero(t, Polarity("A neutral remark."))
	assert.Equal(t, []string{"don't", "stop", "now"}, Tokens("Don't stop, now!"))
}

func TestEvaluate_EmptyHistory(t *testing.T) {
	snap := NewDetector(nil).Evaluate(nil, core.DefaultTensionParams())
	assert.Equal(t, core.TensionSnapshot{}, snap)
}

func TestEvaluate_CountsAcrossLayers(t *testing.T) {
	d := NewDetector(nil)
	snap := d.Evaluate(disagreeing(3), core.DefaultTensionParams())

	assert.Equal(t, 3, snap.Contradictions)
	assert.Equal(t, []string{"a", "b"}, snap.Implicated)
	assert.Equal(t, 3, snap.Depth)
	assert.Equal(t, 1.0, snap.Convergence)
	assert.True(t, snap.Breakthrough)
	// Excess ratios 0, 0 and 0.5 average to 1/6.
	assert.InDelta(t, 50+50.0/6, snap.Confidence, 1e-9)
}

func TestEvaluate_IgnoresFailedPerspectives(t *testing.T) {
	history := []core.LayerResult{layer(1, "x", map[string]string{"a": pro}, "a", "b")}
	snap := NewDetector(nil).Evaluate(history, core.DefaultTensionParams())
	assert.Zero(t, snap.Contradictions)
	assert.Empty(t, snap.Implicated)
}

func TestEvaluate_DoesNotMutateHistory(t *testing.T) {
	history := disagreeing(2)
	before := history[0]
	_ = NewDetector(nil).Evaluate(history, core.DefaultTensionParams())
	assert.Equal(t, before, history[0])
	assert.Equal(t, core.TensionSnapshot{}, history[1].Tension)
}

// Breakthrough must require all three conditions. Each case satisfies two
// of them and must never fire.
func TestEvaluate_BreakthroughRequiresAllConditions(t *testing.T) {
	base := core.TensionParams{ContradictionThreshold: 2, ArchetypeOverlap: 2, MinRecursionDepth: 2, EarlyStopConfidence: 0}
	d := NewDetector(nil)

	all := d.Evaluate(disagreeing(2), base)
	assert.True(t, all.Breakthrough, "all conditions met")

	tests := []struct {
		name    string
		history []core.LayerResult
		params  core.TensionParams
	}{
		{
			name:    "contradiction threshold not reached",
			history: disagreeing(2),
			params:  func() core.TensionParams { p := base; p.ContradictionThreshold = 3; return p }(),
		},
		{
			name:    "too few archetypes implicated",
			history: disagreeing(2),
			params:  func() core.TensionParams { p := base; p.ArchetypeOverlap = 3; return p }(),
		},
		{
			name: "minimum depth not reached",
			history: []core.LayerResult{
				layer(1, "x", map[string]string{"a": pro, "b": con, "c": con}, "a", "b", "c"),
			},
			params: base,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := d.Evaluate(tt.history, tt.params)
			assert.False(t, snap.Breakthrough)
			assert.Zero(t, snap.Confidence)
			assert.False(t, ShouldStop(snap, tt.params))
		})
	}
}

func TestEvaluate_ConfidenceCapped(t *testing.T) {
	texts := map[string]string{"a": pro, "b": con, "c": pro, "d": con, "e": con}
	var history []core.LayerResult
	for i := 1; i <= 5; i++ {
		history = append(history, layer(i, "s", texts, "a", "b", "c", "d", "e"))
	}
	params := core.TensionParams{ContradictionThreshold: 1, ArchetypeOverlap: 1, MinRecursionDepth: 1, EarlyStopConfidence: 75}
	snap := NewDetector(nil).Evaluate(history, params)
	assert.True(t, snap.Breakthrough)
	assert.Equal(t, 100.0, snap.Confidence)
	assert.True(t, ShouldStop(snap, params))
}

func TestPairsAndProgress(t *testing.T) {
	d := NewDetector(nil)
	l := layer(2, "x", map[string]string{"a": pro, "b": con}, "a", "b")
	pairs := d.Pairs(l)
	assert.Equal(t, []Pair{{Layer: 2, A: "a", B: "b"}}, pairs)
	assert.Equal(t, "a vs b (layer 2)", pairs[0].String())

	snap := core.TensionSnapshot{Contradictions: 1, Implicated: []string{"a", "b"}, Depth: 1}
	assert.InDelta(t, (1.0/3+1+0.5)/3, Progress(snap, core.DefaultTensionParams()), 1e-9)
}

func TestShouldStop_ThresholdIsExclusive(t *testing.T) {
	params := core.DefaultTensionParams()
	snap := core.TensionSnapshot{Breakthrough: true, Confidence: params.EarlyStopConfidence, Depth: params.MinRecursionDepth}
	assert.False(t, ShouldStop(snap, params), "confidence equal to the threshold")

	snap.Confidence += 0.1
	assert.True(t, ShouldStop(snap, params))

	params.EarlyStopConfidence = 100
	snap.Confidence = 100
	assert.False(t, ShouldStop(snap, params), "a threshold of 100 never stops early")
}

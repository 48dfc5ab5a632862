package core

import "time"

// Perspective is one archetype's contribution to a layer. A failed
// invocation still yields a Perspective with Failed set and empty Text so
// the layer history shows who dropped out.
type Perspective struct {
	ArchetypeID   string        `json:"archetype_id"`
	ArchetypeName string        `json:"archetype_name"`
	Text          string        `json:"text"`
	Latency       time.Duration `json:"latency"`
	Failed        bool          `json:"failed,omitempty"`
	Failure       string        `json:"failure,omitempty"`
}

// TensionSnapshot summarises disagreement across the layers completed so far.
type TensionSnapshot struct {
	Contradictions int      `json:"contradictions"`
	Implicated     []string `json:"implicated,omitempty"`
	Convergence    float64  `json:"convergence"`
	Breakthrough   bool     `json:"breakthrough"`
	Confidence     float64  `json:"confidence"`
	Depth          int      `json:"depth"`
}

// LayerResult is the outcome of one processing layer. Perspectives are in
// registry order regardless of completion order.
type LayerResult struct {
	Index        int             `json:"index"`
	Circuit      CircuitType     `json:"circuit"`
	Perspectives []Perspective   `json:"perspectives"`
	Synthesis    string          `json:"synthesis"`
	LowDiversity bool            `json:"low_diversity,omitempty"`
	Tension      TensionSnapshot `json:"tension"`
	Elapsed      time.Duration   `json:"elapsed"`
}

// Survivors returns the perspectives that did not fail, in registry order.
func (l LayerResult) Survivors() []Perspective {
	out := make([]Perspective, 0, len(l.Perspectives))
	for _, p := range l.Perspectives {
		if !p.Failed {
			out = append(out, p)
		}
	}
	return out
}

// Degraded counts failed perspectives.
func (l LayerResult) Degraded() int {
	n := 0
	for _, p := range l.Perspectives {
		if p.Failed {
			n++
		}
	}
	return n
}

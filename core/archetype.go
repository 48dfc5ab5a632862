package core

import (
	"fmt"
	"math"
	"strings"
)

// Personality scalars are bounded to this closed interval.
const (
	MinScalar = 0.0
	MaxScalar = 10.0
)

// Archetype is a simulated reasoning persona. Its four personality scalars
// steer how the persona is rendered into a model prompt; Constraint is an
// optional free-text rule the persona must follow.
//
// Archetypes are values: a run works on its own copy, so edits made to a
// registry after StartRun never reach an in-flight run.
type Archetype struct {
	ID            string  `json:"id" yaml:"id"`
	Name          string  `json:"name" yaml:"name"`
	Description   string  `json:"description" yaml:"description"`
	LanguageStyle string  `json:"language_style" yaml:"language_style"`
	Imagination   float64 `json:"imagination" yaml:"imagination"`
	Skepticism    float64 `json:"skepticism" yaml:"skepticism"`
	Aggression    float64 `json:"aggression" yaml:"aggression"`
	Emotionality  float64 `json:"emotionality" yaml:"emotionality"`
	Constraint    string  `json:"constraint,omitempty" yaml:"constraint,omitempty"`
}

// Clamped returns a copy with every personality scalar forced into [0,10].
func (a Archetype) Clamped() Archetype {
	a.Imagination = ClampScalar(a.Imagination)
	a.Skepticism = ClampScalar(a.Skepticism)
	a.Aggression = ClampScalar(a.Aggression)
	a.Emotionality = ClampScalar(a.Emotionality)
	return a
}

// Label is the human readable name used in progress events and syntheses.
func (a Archetype) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// Validate reports whether the persona can be rendered at all. A persona
// failing validation is never sent to a model.
func (a Archetype) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: archetype id is empty", ErrInvalidPersona)
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: archetype %q has no name", ErrInvalidPersona, a.ID)
	}
	return nil
}

// ClampScalar bounds v to [MinScalar, MaxScalar]. NaN maps to MinScalar.
func ClampScalar(v float64) float64 {
	switch {
	case math.IsNaN(v), v < MinScalar:
		return MinScalar
	case v > MaxScalar:
		return MaxScalar
	default:
		return v
	}
}

// CloneArchetypes returns a detached copy of as with clamped scalars.
func CloneArchetypes(as []Archetype) []Archetype {
	if as == nil {
		return nil
	}
	out := make([]Archetype, len(as))
	for i, a := range as {
		out[i] = a.Clamped()
	}
	return out
}

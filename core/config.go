package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// CircuitType is the execution topology of a run.
type CircuitType string

const (
	// CircuitSequential invokes archetypes one at a time, each seeing the
	// perspectives produced before it in the same layer.
	CircuitSequential CircuitType = "sequential"
	// CircuitParallel invokes all archetypes of a layer concurrently.
	CircuitParallel CircuitType = "parallel"
	// CircuitRecursive feeds the previous layer's synthesis, raw perspectives
	// and tensions back with a refine-or-rebut directive.
	CircuitRecursive CircuitType = "recursive"
	// CircuitHybrid runs odd layers as parallel and even layers as recursive.
	CircuitHybrid CircuitType = "hybrid"
)

// CircuitTypes lists every supported circuit in declaration order.
var CircuitTypes = []CircuitType{CircuitSequential, CircuitParallel, CircuitRecursive, CircuitHybrid}

// ParseCircuitType converts user input into a CircuitType.
func ParseCircuitType(s string) (CircuitType, error) {
	ct := CircuitType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range CircuitTypes {
		if ct == known {
			return ct, nil
		}
	}
	return "", &ValidationError{Field: "circuit", Reason: fmt.Sprintf("unknown circuit type %q", s)}
}

// OutputStyle selects the register of prompts and syntheses.
type OutputStyle string

const (
	OutputConcise   OutputStyle = "concise"
	OutputDetailed  OutputStyle = "detailed"
	OutputNarrative OutputStyle = "narrative"
)

// Configuration bounds.
const (
	MinQuestionLength = 10
	MinDepth          = 1
	MaxDepth          = 10
	MinArchetypes     = 2
	DefaultDomain     = "general"
)

// TensionParams tunes breakthrough detection.
type TensionParams struct {
	// ContradictionThreshold is the number of contradicting perspective
	// pairs required for a breakthrough, in [1,10].
	ContradictionThreshold int `json:"contradiction_threshold" yaml:"contradiction_threshold"`
	// MinRecursionDepth is the number of completed layers required, in [1,5].
	MinRecursionDepth int `json:"min_recursion_depth" yaml:"min_recursion_depth"`
	// ArchetypeOverlap is the number of distinct archetypes that must be
	// implicated in contradictions, in [1,5].
	ArchetypeOverlap int `json:"archetype_overlap" yaml:"archetype_overlap"`
	// EarlyStopConfidence is the breakthrough confidence (percent) that must
	// be exceeded for the scheduler to stop before the requested depth. The
	// bound is exclusive, so 100 disables early termination.
	EarlyStopConfidence float64 `json:"early_stop_confidence" yaml:"early_stop_confidence"`
}

// DefaultTensionParams returns the parameters used when a configuration
// does not carry its own.
func DefaultTensionParams() TensionParams {
	return TensionParams{
		ContradictionThreshold: 3,
		MinRecursionDepth:      2,
		ArchetypeOverlap:       2,
		EarlyStopConfidence:    75,
	}
}

// Validate checks the bounds of every field.
func (p TensionParams) Validate() error {
	if p.ContradictionThreshold < 1 || p.ContradictionThreshold > 10 {
		return &ValidationError{Field: "tension.contradiction_threshold", Reason: "must be within [1,10]"}
	}
	if p.MinRecursionDepth < 1 || p.MinRecursionDepth > 5 {
		return &ValidationError{Field: "tension.min_recursion_depth", Reason: "must be within [1,5]"}
	}
	if p.ArchetypeOverlap < 1 || p.ArchetypeOverlap > 5 {
		return &ValidationError{Field: "tension.archetype_overlap", Reason: "must be within [1,5]"}
	}
	if p.EarlyStopConfidence < 0 || p.EarlyStopConfidence > 100 {
		return &ValidationError{Field: "tension.early_stop_confidence", Reason: "must be within [0,100]"}
	}
	return nil
}

// RunConfiguration is everything a run needs. It is validated once by
// StartRun and the engine keeps a deep copy, so callers may reuse or mutate
// their value afterwards without affecting the run.
type RunConfiguration struct {
	Question     string         `json:"question" yaml:"question"`
	Depth        int            `json:"depth" yaml:"depth"`
	Circuit      CircuitType    `json:"circuit" yaml:"circuit"`
	EnhancedMode bool           `json:"enhanced_mode" yaml:"enhanced_mode"`
	Archetypes   []Archetype    `json:"archetypes" yaml:"archetypes"`
	Tension      *TensionParams `json:"tension,omitempty" yaml:"tension,omitempty"`
	OutputStyle  OutputStyle    `json:"output_style,omitempty" yaml:"output_style,omitempty"`
	Domain       string         `json:"domain,omitempty" yaml:"domain,omitempty"`
}

// Validate rejects configurations that must never reach the scheduler.
func (c RunConfiguration) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(c.Question)) < MinQuestionLength {
		return &ValidationError{Field: "question", Reason: fmt.Sprintf("must be at least %d characters", MinQuestionLength)}
	}
	if c.Depth < MinDepth || c.Depth > MaxDepth {
		return &ValidationError{Field: "depth", Reason: fmt.Sprintf("must be within [%d,%d], got %d", MinDepth, MaxDepth, c.Depth)}
	}
	if _, err := ParseCircuitType(string(c.Circuit)); err != nil {
		return err
	}
	if len(c.Archetypes) < MinArchetypes {
		return &ValidationError{Field: "archetypes", Reason: fmt.Sprintf("at least %d archetypes must be active, got %d", MinArchetypes, len(c.Archetypes))}
	}
	seen := make(map[string]struct{}, len(c.Archetypes))
	for _, a := range c.Archetypes {
		if err := a.Validate(); err != nil {
			return &ValidationError{Field: "archetypes", Reason: err.Error()}
		}
		if _, dup := seen[a.ID]; dup {
			return &ValidationError{Field: "archetypes", Reason: fmt.Sprintf("duplicate archetype id %q", a.ID)}
		}
		seen[a.ID] = struct{}{}
	}
	if c.Tension != nil {
		if err := c.Tension.Validate(); err != nil {
			return err
		}
	}
	switch c.OutputStyle {
	case "", OutputConcise, OutputDetailed, OutputNarrative:
	default:
		return &ValidationError{Field: "output_style", Reason: fmt.Sprintf("unknown output style %q", c.OutputStyle)}
	}
	return nil
}

// Frozen returns a deep copy with defaults filled in. The returned value
// shares no memory with c.
func (c RunConfiguration) Frozen() RunConfiguration {
	out := c
	out.Question = strings.TrimSpace(c.Question)
	out.Circuit = CircuitType(strings.ToLower(string(c.Circuit)))
	out.Archetypes = CloneArchetypes(c.Archetypes)
	tp := DefaultTensionParams()
	if c.Tension != nil {
		tp = *c.Tension
	}
	out.Tension = &tp
	if out.OutputStyle == "" {
		out.OutputStyle = OutputConcise
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	return out
}

// TensionOrDefault returns the configured tension parameters or defaults.
func (c RunConfiguration) TensionOrDefault() TensionParams {
	if c.Tension == nil {
		return DefaultTensionParams()
	}
	return *c.Tension
}

// ArchetypeIDs lists the active archetype ids in configuration order.
func (c RunConfiguration) ArchetypeIDs() []string {
	ids := make([]string, len(c.Archetypes))
	for i, a := range c.Archetypes {
		ids[i] = a.ID
	}
	return ids
}

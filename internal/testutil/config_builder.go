package testutil

import (
	"github.com/hupe1980/insightmesh/archetype"
	"github.com/hupe1980/insightmesh/core"
)

// PivotQuestion is the reference question used by end-to-end tests.
const PivotQuestion = "Should a 10-person startup pivot its core product?"

// ConfigBuilder helps construct run configurations with fluent chaining.
// Example:
//
//	cfg := NewConfigBuilder(PivotQuestion).Depth(3).Circuit(core.CircuitParallel).Build()
//
// Defaults: depth 1, sequential circuit, Visionary and Skeptic.
type ConfigBuilder struct {
	cfg core.RunConfiguration
}

// NewConfigBuilder creates a builder for the given question.
func NewConfigBuilder(question string) *ConfigBuilder {
	return &ConfigBuilder{cfg: core.RunConfiguration{
		Question:   question,
		Depth:      1,
		Circuit:    core.CircuitSequential,
		Archetypes: Archetypes(archetype.Visionary, archetype.Skeptic),
	}}
}

// Depth sets the processing depth (chainable).
func (b *ConfigBuilder) Depth(d int) *ConfigBuilder {
	b.cfg.Depth = d
	return b
}

// Circuit sets the circuit type (chainable).
func (b *ConfigBuilder) Circuit(c core.CircuitType) *ConfigBuilder {
	b.cfg.Circuit = c
	return b
}

// Archetypes replaces the active archetype set (chainable).
func (b *ConfigBuilder) Archetypes(as ...core.Archetype) *ConfigBuilder {
	b.cfg.Archetypes = as
	return b
}

// Tension sets explicit tension parameters (chainable).
func (b *ConfigBuilder) Tension(p core.TensionParams) *ConfigBuilder {
	b.cfg.Tension = &p
	return b
}

// Enhanced toggles enhanced mode (chainable).
func (b *ConfigBuilder) Enhanced() *ConfigBuilder {
	b.cfg.EnhancedMode = true
	return b
}

// Style sets the output style (chainable).
func (b *ConfigBuilder) Style(s core.OutputStyle) *ConfigBuilder {
	b.cfg.OutputStyle = s
	return b
}

// Domain sets the learning domain (chainable).
func (b *ConfigBuilder) Domain(d string) *ConfigBuilder {
	b.cfg.Domain = d
	return b
}

// Build returns a copy of the configuration.
func (b *ConfigBuilder) Build() core.RunConfiguration {
	out := b.cfg
	out.Archetypes = core.CloneArchetypes(b.cfg.Archetypes)
	if b.cfg.Tension != nil {
		tp := *b.cfg.Tension
		out.Tension = &tp
	}
	return out
}

// Archetypes returns the default archetypes with the given ids, in the
// order given. Unknown ids yield a neutral persona named after the id.
func Archetypes(ids ...string) []core.Archetype {
	defaults := archetype.Defaults()
	out := make([]core.Archetype, 0, len(ids))
	for _, id := range ids {
		found := false
		for _, a := range defaults {
			if a.ID == id {
				out = append(out, a)
				found = true
				break
			}
		}
		if !found {
			out = append(out, core.Archetype{ID: id, Name: id, Imagination: 5, Skepticism: 5})
		}
	}
	return out
}

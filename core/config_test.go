package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() RunConfiguration {
	return RunConfiguration{
		Question: "Should a 10-person startup pivot its core product?",
		Depth:    3,
		Circuit:  CircuitSequential,
		Archetypes: []Archetype{
			{ID: "visionary", Name: "Visionary", Imagination: 9, Skepticism: 2},
			{ID: "skeptic", Name: "Skeptic", Imagination: 3, Skepticism: 9},
		},
	}
}

func TestRunConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *RunConfiguration)
		field  string
	}{
		{"question too short", func(c *RunConfiguration) { c.Question = "  Pivot?   " }, "question"},
		{"question counts runes", func(c *RunConfiguration) { c.Question = "ピボットすべき？" }, "question"},
		{"depth below range", func(c *RunConfiguration) { c.Depth = 0 }, "depth"},
		{"depth above range", func(c *RunConfiguration) { c.Depth = MaxDepth + 1 }, "depth"},
		{"unknown circuit", func(c *RunConfiguration) { c.Circuit = "spiral" }, "circuit"},
		{"one archetype", func(c *RunConfiguration) { c.Archetypes = c.Archetypes[:1] }, "archetypes"},
		{"duplicate archetype", func(c *RunConfiguration) { c.Archetypes[1].ID = "visionary" }, "archetypes"},
		{"nameless archetype", func(c *RunConfiguration) { c.Archetypes[1].Name = "" }, "archetypes"},
		{"tension out of range", func(c *RunConfiguration) {
			c.Tension = &TensionParams{ContradictionThreshold: 0, MinRecursionDepth: 2, ArchetypeOverlap: 2}
		}, "tension.contradiction_threshold"},
		{"unknown style", func(c *RunConfiguration) { c.OutputStyle = "haiku" }, "output_style"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.NoError(t, validConfig().Validate())
}

func TestParseCircuitType(t *testing.T) {
	ct, err := ParseCircuitType(" Hybrid ")
	require.NoError(t, err)
	assert.Equal(t, CircuitHybrid, ct)

	_, err = ParseCircuitType("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRunConfiguration_Frozen(t *testing.T) {
	cfg := validConfig()
	cfg.Question = "  " + cfg.Question + "  "
	cfg.Circuit = "PARALLEL"
	cfg.Archetypes[0].Imagination = 42

	frozen := cfg.Frozen()
	assert.False(t, strings.HasPrefix(frozen.Question, " "))
	assert.Equal(t, CircuitParallel, frozen.Circuit)
	assert.Equal(t, MaxScalar, frozen.Archetypes[0].Imagination)
	assert.Equal(t, OutputConcise, frozen.OutputStyle)
	assert.Equal(t, DefaultDomain, frozen.Domain)
	require.NotNil(t, frozen.Tension)
	assert.Equal(t, DefaultTensionParams(), *frozen.Tension)

	cfg.Archetypes[1].Name = "Mutated"
	assert.Equal(t, "Skeptic", frozen.Archetypes[1].Name)
}

func TestInvocationBudget(t *testing.T) {
	b := NewInvocationBudget(2)
	require.NoError(t, b.Take())
	require.NoError(t, b.Take())
	assert.ErrorIs(t, b.Take(), ErrInvocationBudget)
	assert.Equal(t, 2, b.Count())
	assert.Equal(t, 0, b.Remaining())

	unlimited := NewInvocationBudget(0)
	for range 100 {
		require.NoError(t, unlimited.Take())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}

func TestOutcome(t *testing.T) {
	assert.True(t, Outcome{Result: &RunResult{Status: StatusCancelled}}.Cancelled())
	assert.True(t, Outcome{Err: &RunError{Kind: RunErrorCancelled}}.Cancelled())
	assert.False(t, Outcome{Result: &RunResult{Status: StatusPartial}}.Cancelled())
	assert.NoError(t, Outcome{Result: &RunResult{}}.Error())

	cause := errors.New("boom")
	err := Outcome{Err: &RunError{RunID: "r1", Kind: RunErrorInternal, Reason: "hook failed", Err: cause}}.Error()
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "run r1 internal: hook failed: boom", err.Error())
}

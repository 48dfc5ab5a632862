package invoker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/prompt"
	"github.com/hupe1980/insightmesh/model"
)

// ModelGeneratorOptions configures a ModelGenerator.
type ModelGeneratorOptions struct {
	MaxTokens int64
	Stream    bool
}

// ModelGenerator adapts a model.Model to the core.Generator collaborator.
// The persona becomes the system instructions and imagination drives the
// sampling temperature.
type ModelGenerator struct {
	model model.Model
	opts  ModelGeneratorOptions
}

// NewModelGenerator wraps m.
func NewModelGenerator(m model.Model, optFns ...func(o *ModelGeneratorOptions)) *ModelGenerator {
	opts := ModelGeneratorOptions{MaxTokens: 512}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelGenerator{model: m, opts: opts}
}

// Generate implements core.Generator.
func (g *ModelGenerator) Generate(ctx context.Context, persona core.Archetype, text string, timeout time.Duration) (string, error) {
	instructions, err := prompt.Persona(persona)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrInvalidPersona, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	temperature := Temperature(persona)
	resp, err := model.Complete(ctx, g.model, model.Request{
		Instructions: instructions,
		Messages:     []model.Message{{Role: "user", Text: text}},
		Temperature:  &temperature,
		MaxTokens:    g.opts.MaxTokens,
		Stream:       g.opts.Stream,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// Temperature maps imagination [0,10] onto a sampling temperature in [0.2,1.0].
func Temperature(a core.Archetype) float64 {
	return 0.2 + 0.08*core.ClampScalar(a.Imagination)
}

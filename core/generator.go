package core

import (
	"context"
	"time"
)

// Generator is the outbound boundary to whatever produces perspective text
// (a hosted model, a local simulation, a test stub). Implementations must be
// safe for concurrent use and must honour ctx and timeout; a timeout should
// surface as an error wrapping ErrTimeout.
type Generator interface {
	Generate(ctx context.Context, persona Archetype, prompt string, timeout time.Duration) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, persona Archetype, prompt string, timeout time.Duration) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, persona Archetype, prompt string, timeout time.Duration) (string, error) {
	return f(ctx, persona, prompt, timeout)
}

// Package invoker turns (archetype, question, context) into a perspective
// text by rendering a prompt and calling the Generator collaborator under a
// per-call time budget, retrying transient upstream failures once.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/prompt"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/model"
)

// Options configures an Invoker.
type Options struct {
	// Timeout bounds a single generator call. Zero disables the bound.
	Timeout time.Duration
	// RetryBackoff is the initial backoff before the single retry.
	RetryBackoff time.Duration
	// Logger receives per-call debug output.
	Logger logging.Logger
}

// Context is the accumulated input an archetype sees besides the question.
type Context struct {
	Layer       int
	TotalLayers int
	Domain      string
	Style       core.OutputStyle

	// Earlier holds perspectives already produced in the current layer.
	Earlier []core.Perspective

	PriorSynthesis    string
	PriorPerspectives []core.Perspective
	Tensions          []string

	// Refine asks for a refinement or rebuttal of the previous layer.
	Refine bool
}

// Invoker is stateless and safe for concurrent use.
type Invoker struct {
	gen  core.Generator
	opts Options
}

// New creates an Invoker around gen.
func New(gen core.Generator, optFns ...func(o *Options)) *Invoker {
	opts := Options{
		Timeout:      30 * time.Second,
		RetryBackoff: 250 * time.Millisecond,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Invoker{gen: gen, opts: opts}
}

// Timeout returns the per-call budget.
func (iv *Invoker) Timeout() time.Duration { return iv.opts.Timeout }

// Invoke produces the perspective of a on question. Errors wrap
// core.ErrInvalidPersona, core.ErrTimeout or core.ErrUpstream, or are the
// context error when ctx ended.
func (iv *Invoker) Invoke(ctx context.Context, a core.Archetype, question string, pc Context) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err := prompt.Perspective(buildPromptData(question, pc))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", core.ErrInvalidPersona, a.ID, err)
	}

	start := time.Now()
	attempts := 0
	var out string
	op := func() error {
		attempts++
		res, err := iv.call(ctx, a, text)
		if err != nil {
			return err
		}
		out = res
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = iv.opts.RetryBackoff
	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, 1), ctx))

	if il, ok := iv.opts.Logger.(*logging.InsightLogger); ok {
		il.LogInvocation(a.ID, pc.Layer, time.Since(start), attempts, err)
	} else {
		iv.opts.Logger.Debug("Perspective invoked",
			"archetype", a.ID,
			"layer", pc.Layer,
			"attempts", attempts,
			"success", err == nil,
		)
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

// call runs one generator attempt and classifies its failure. Only
// transient upstream errors are returned unwrapped from backoff.Permanent.
func (iv *Invoker) call(ctx context.Context, a core.Archetype, text string) (string, error) {
	callCtx := ctx
	if iv.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, iv.opts.Timeout)
		defer cancel()
	}

	res, err := iv.gen.Generate(callCtx, a, text, iv.opts.Timeout)
	if err == nil {
		res = strings.TrimSpace(res)
		if res == "" {
			return "", backoff.Permanent(fmt.Errorf("%w: %s returned an empty perspective", core.ErrUpstream, a.ID))
		}
		return res, nil
	}

	switch {
	case ctx.Err() != nil:
		return "", backoff.Permanent(ctx.Err())
	case errors.Is(err, core.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return "", backoff.Permanent(fmt.Errorf("%w: %s after %s", core.ErrTimeout, a.ID, iv.opts.Timeout))
	case errors.Is(err, core.ErrInvalidPersona):
		return "", backoff.Permanent(err)
	case model.IsTransient(err):
		return "", fmt.Errorf("%w: %w", core.ErrUpstream, err)
	default:
		return "", backoff.Permanent(fmt.Errorf("%w: %w", core.ErrUpstream, err))
	}
}

func buildPromptData(question string, pc Context) prompt.PerspectiveData {
	return prompt.PerspectiveData{
		Question:          question,
		Domain:            pc.Domain,
		Layer:             pc.Layer,
		TotalLayers:       pc.TotalLayers,
		Style:             pc.Style,
		Earlier:           entries(pc.Earlier),
		PriorSynthesis:    pc.PriorSynthesis,
		PriorPerspectives: entries(pc.PriorPerspectives),
		Tensions:          pc.Tensions,
		Refine:            pc.Refine,
	}
}

func entries(ps []core.Perspective) []prompt.Entry {
	out := make([]prompt.Entry, 0, len(ps))
	for _, p := range ps {
		if p.Failed {
			continue
		}
		out = append(out, prompt.Entry{Name: p.ArchetypeName, Text: p.Text})
	}
	return out
}

// Package layer executes one processing layer: it fans out perspective
// invocations in sequential or parallel mode, collects the results in
// registry order and synthesises the survivors.
package layer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/invoker"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/telemetry"
)

// Mode is the intra-layer invocation pattern.
type Mode int

const (
	// Sequential invokes one archetype at a time, each seeing the earlier
	// perspectives of the same layer.
	Sequential Mode = iota
	// Parallel invokes every archetype concurrently with identical context
	// and joins before synthesis.
	Parallel
)

func (m Mode) String() string {
	if m == Parallel {
		return "parallel"
	}
	return "sequential"
}

// Invoker is the perspective source used by the processor.
type Invoker interface {
	Invoke(ctx context.Context, a core.Archetype, question string, pc invoker.Context) (string, error)
}

// Hooks observe a layer while it runs. Calls are serialised, so Done
// counts never go backwards.
type Hooks struct {
	// Started fires before an archetype is invoked with the number of
	// invocations already finished in this layer.
	Started func(a core.Archetype, done, total int)
	// Finished fires after an invocation returned, successfully or not.
	Finished func(p core.Perspective, done, total int)
	// Synthesizing fires once all invocations returned.
	Synthesizing func(survivors int)
}

// Input describes one layer to process.
type Input struct {
	Index       int
	TotalLayers int
	Question    string
	Circuit     core.CircuitType
	Mode        Mode
	// Archetypes in registry order.
	Archetypes []core.Archetype
	// Base is the context shared by every invocation of the layer.
	Base  invoker.Context
	Hooks Hooks
}

// Options configures a Processor.
type Options struct {
	Synthesizer Synthesizer
	Logger      logging.Logger
	Instruments *telemetry.Instruments
}

// Processor runs layers. It holds no per-run state and may be shared.
type Processor struct {
	inv  Invoker
	opts Options
}

// NewProcessor creates a Processor using inv for every perspective.
func NewProcessor(inv Invoker, optFns ...func(o *Options)) *Processor {
	opts := Options{
		Synthesizer: ExtractiveSynthesizer{},
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Synthesizer == nil {
		opts.Synthesizer = ExtractiveSynthesizer{}
	}
	return &Processor{inv: inv, opts: opts}
}

// Process runs one layer. A context error is returned as is and the partial
// layer is discarded. When every archetype fails the returned error wraps
// core.ErrAllArchetypesFailed and the result still carries the degraded
// perspectives.
func (p *Processor) Process(ctx context.Context, in Input) (core.LayerResult, error) {
	start := time.Now()
	res := core.LayerResult{Index: in.Index, Circuit: in.Circuit}

	var perspectives []core.Perspective
	switch in.Mode {
	case Parallel:
		perspectives = p.fanOut(ctx, in)
	default:
		perspectives = p.sequential(ctx, in)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.Perspectives = perspectives

	survivors := res.Survivors()
	if len(survivors) == 0 {
		res.Elapsed = time.Since(start)
		p.opts.Logger.Warn("All archetypes failed", "layer", in.Index, "archetypes", len(in.Archetypes))
		return res, fmt.Errorf("layer %d: %w", in.Index, core.ErrAllArchetypesFailed)
	}

	if in.Hooks.Synthesizing != nil {
		in.Hooks.Synthesizing(len(survivors))
	}

	if len(survivors) == 1 {
		res.Synthesis = survivors[0].Text
		res.LowDiversity = true
	} else {
		text, err := p.opts.Synthesizer.Synthesize(ctx, SynthesisRequest{
			Question:     in.Question,
			Layer:        in.Index,
			Style:        in.Base.Style,
			Perspectives: survivors,
		})
		if err != nil {
			return res, err
		}
		res.Synthesis = text
	}

	res.Elapsed = time.Since(start)
	if il, ok := p.opts.Logger.(*logging.InsightLogger); ok {
		il.LogLayer(in.Index, len(survivors), res.Degraded(), res.Elapsed, res.LowDiversity)
		return res, nil
	}
	p.opts.Logger.Info("Layer processed",
		"layer", in.Index,
		"mode", in.Mode.String(),
		"survivors", len(survivors),
		"degraded", res.Degraded(),
		"duration", res.Elapsed,
		"low_diversity", res.LowDiversity,
	)
	return res, nil
}

func (p *Processor) sequential(ctx context.Context, in Input) []core.Perspective {
	total := len(in.Archetypes)
	out := make([]core.Perspective, 0, total)
	for i, a := range in.Archetypes {
		if ctx.Err() != nil {
			break
		}
		if in.Hooks.Started != nil {
			in.Hooks.Started(a, i, total)
		}
		pc := in.Base
		pc.Layer, pc.TotalLayers = in.Index, in.TotalLayers
		pc.Earlier = append([]core.Perspective(nil), out...)

		persp := p.invoke(ctx, a, in.Question, pc)
		out = append(out, persp)
		if in.Hooks.Finished != nil {
			in.Hooks.Finished(persp, i+1, total)
		}
	}
	return out
}

func (p *Processor) fanOut(ctx context.Context, in Input) []core.Perspective {
	total := len(in.Archetypes)
	out := make([]core.Perspective, total)

	pc := in.Base
	pc.Layer, pc.TotalLayers = in.Index, in.TotalLayers
	pc.Earlier = nil

	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)
	if in.Hooks.Started != nil {
		for _, a := range in.Archetypes {
			in.Hooks.Started(a, 0, total)
		}
	}
	for i, a := range in.Archetypes {
		g.Go(func() error {
			persp := p.invoke(ctx, a, in.Question, pc)
			out[i] = persp

			mu.Lock()
			defer mu.Unlock()
			done++
			if in.Hooks.Finished != nil {
				in.Hooks.Finished(persp, done, total)
			}
			// Failures are recorded as degraded perspectives; they never
			// cancel siblings.
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Processor) invoke(ctx context.Context, a core.Archetype, question string, pc invoker.Context) core.Perspective {
	start := time.Now()
	text, err := p.inv.Invoke(ctx, a, question, pc)
	persp := core.Perspective{
		ArchetypeID:   a.ID,
		ArchetypeName: a.Label(),
		Text:          text,
		Latency:       time.Since(start),
	}
	if err != nil {
		persp.Text = ""
		persp.Failed = true
		persp.Failure = err.Error()
		p.opts.Logger.Warn("Invocation failed", "archetype", a.ID, "layer", pc.Layer, "error", err)
	}
	if p.opts.Instruments != nil && ctx.Err() == nil {
		p.opts.Instruments.Invocation(ctx, a.ID, persp.Failed)
	}
	return persp
}

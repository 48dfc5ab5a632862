package circuit

import (
	"context"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/invoker"
	"github.com/hupe1980/insightmesh/layer"
	"github.com/hupe1980/insightmesh/tension"
)

// State is everything a strategy needs to advance one layer. History holds
// the completed layers in order and must not be modified.
type State struct {
	Config  core.RunConfiguration
	History []core.LayerResult
	// Layer is the 1-based index of the layer to run.
	Layer int
	Hooks layer.Hooks
}

// Strategy advances a run by one layer.
type Strategy interface {
	Type() core.CircuitType
	AdvanceLayer(ctx context.Context, st State) (core.LayerResult, error)
}

// New returns the strategy for ct. Every strategy shares proc and det.
func New(ct core.CircuitType, proc *layer.Processor, det *tension.Detector) (Strategy, error) {
	b := base{proc: proc, det: det}
	switch ct {
	case core.CircuitSequential:
		return &Sequential{base: b}, nil
	case core.CircuitParallel:
		return &Parallel{base: b}, nil
	case core.CircuitRecursive:
		return &Recursive{base: b}, nil
	case core.CircuitHybrid:
		return &Hybrid{
			odd:  &Parallel{base: b},
			even: &Recursive{base: b},
		}, nil
	default:
		_, err := core.ParseCircuitType(string(ct))
		return nil, err
	}
}

// base holds the dependencies shared by every strategy.
type base struct {
	proc *layer.Processor
	det  *tension.Detector
}

func (b base) input(st State, ct core.CircuitType, mode layer.Mode, pc invoker.Context) layer.Input {
	pc.Domain = st.Config.Domain
	pc.Style = st.Config.OutputStyle
	return layer.Input{
		Index:       st.Layer,
		TotalLayers: st.Config.Depth,
		Question:    st.Config.Question,
		Circuit:     ct,
		Mode:        mode,
		Archetypes:  st.Config.Archetypes,
		Base:        pc,
		Hooks:       st.Hooks,
	}
}

func previous(st State) (core.LayerResult, bool) {
	if len(st.History) == 0 {
		return core.LayerResult{}, false
	}
	return st.History[len(st.History)-1], true
}

// Sequential invokes archetypes one at a time in registry order.
type Sequential struct{ base }

// Type implements Strategy.
func (*Sequential) Type() core.CircuitType { return core.CircuitSequential }

// AdvanceLayer implements Strategy.
func (s *Sequential) AdvanceLayer(ctx context.Context, st State) (core.LayerResult, error) {
	var pc invoker.Context
	if prev, ok := previous(st); ok {
		pc.PriorSynthesis = prev.Synthesis
	}
	return s.proc.Process(ctx, s.input(st, core.CircuitSequential, layer.Sequential, pc))
}

// Parallel invokes every archetype concurrently with identical context.
type Parallel struct{ base }

// Type implements Strategy.
func (*Parallel) Type() core.CircuitType { return core.CircuitParallel }

// AdvanceLayer implements Strategy.
func (p *Parallel) AdvanceLayer(ctx context.Context, st State) (core.LayerResult, error) {
	return p.advance(ctx, st, core.CircuitParallel)
}

func (p *Parallel) advance(ctx context.Context, st State, ct core.CircuitType) (core.LayerResult, error) {
	var pc invoker.Context
	if prev, ok := previous(st); ok {
		pc.PriorSynthesis = prev.Synthesis
	}
	return p.proc.Process(ctx, p.input(st, ct, layer.Parallel, pc))
}

// Recursive feeds the previous layer back for refinement or rebuttal.
type Recursive struct{ base }

// Type implements Strategy.
func (*Recursive) Type() core.CircuitType { return core.CircuitRecursive }

// AdvanceLayer implements Strategy.
func (r *Recursive) AdvanceLayer(ctx context.Context, st State) (core.LayerResult, error) {
	return r.advance(ctx, st, core.CircuitRecursive)
}

func (r *Recursive) advance(ctx context.Context, st State, ct core.CircuitType) (core.LayerResult, error) {
	var pc invoker.Context
	if prev, ok := previous(st); ok {
		pc.PriorSynthesis = prev.Synthesis
		pc.PriorPerspectives = prev.Perspectives
		for _, pair := range r.det.Pairs(prev) {
			pc.Tensions = append(pc.Tensions, pair.String())
		}
		pc.Refine = true
	}
	return r.proc.Process(ctx, r.input(st, ct, layer.Sequential, pc))
}

// Hybrid alternates: odd layers run as Parallel, even layers as Recursive.
type Hybrid struct {
	odd  *Parallel
	even *Recursive
}

// Type implements Strategy.
func (*Hybrid) Type() core.CircuitType { return core.CircuitHybrid }

// AdvanceLayer implements Strategy.
func (h *Hybrid) AdvanceLayer(ctx context.Context, st State) (core.LayerResult, error) {
	if st.Layer%2 == 1 {
		return h.odd.advance(ctx, st, core.CircuitHybrid)
	}
	return h.even.advance(ctx, st, core.CircuitHybrid)
}

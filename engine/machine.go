package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/insightmesh/circuit"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/layer"
	"github.com/hupe1980/insightmesh/tension"
)

// state is a position in the run state machine. Runs move
// idle, initializing, layer_loop, finalizing, completed; initializing and
// layer_loop may end in failed when no result can be built.
type state string

const (
	stateIdle         state = "idle"
	stateInitializing state = "initializing"
	stateLayerLoop    state = "layer_loop"
	stateFinalizing   state = "finalizing"
	stateCompleted    state = "completed"
	stateFailed       state = "failed"
)

// machine drives the layers of one run. It is used by the run goroutine only.
type machine struct {
	e     *Engine
	r     *run
	span  trace.Span
	state state

	// reached is the highest layer any progress event referred to.
	reached int
}

func (m *machine) to(next state) {
	m.e.logger.Debug("Run state changed", "run_id", m.r.id, "from", m.state, "to", next)
	m.span.AddEvent("state."+string(next), trace.WithAttributes(attribute.String("insightmesh.from", string(m.state))))
	m.state = next
}

func (m *machine) emit(ev core.ProgressEvent) {
	if ev.Layer > m.reached {
		m.reached = ev.Layer
	}
	m.r.reporter.Emit(ev)
}

func (m *machine) fail(kind core.RunErrorKind, reason string, retryable bool, err error) core.Outcome {
	return core.Outcome{Err: &core.RunError{
		RunID:     m.r.id,
		Kind:      kind,
		Reason:    reason,
		Retryable: retryable,
		Err:       err,
	}}
}

// drive runs layers 1..depth, stopping early on a confirmed breakthrough,
// a lost layer, cancellation or the run deadline, and builds the outcome
// from the completed layers.
func (m *machine) drive(ctx context.Context, strategy circuit.Strategy) core.Outcome {
	cfg := m.r.cfg
	params := cfg.TensionOrDefault()

	m.to(stateInitializing)
	if err := m.e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeRun, &CallbackContext{RunID: m.r.id, Config: cfg}); err != nil {
		return m.fail(core.RunErrorInternal, "before_run callback failed", false, err)
	}

	m.to(stateLayerLoop)
	var (
		history     []core.LayerResult
		status      = core.StatusCompleted
		note        string
		interrupted error
	)

	for i := 1; i <= cfg.Depth; i++ {
		if ctx.Err() != nil {
			interrupted = context.Cause(ctx)
			break
		}

		res, err := m.advance(ctx, strategy, history, i)
		if err != nil {
			if ctx.Err() != nil {
				interrupted = context.Cause(ctx)
				break
			}
			if len(history) == 0 {
				if errors.Is(err, core.ErrAllArchetypesFailed) {
					return m.fail(core.RunErrorAllFailed, "no archetype produced a perspective in layer 1", true, err)
				}
				return m.fail(core.RunErrorInternal, "layer 1 failed", false, err)
			}
			status = core.StatusPartial
			note = fmt.Sprintf("layer %d failed (%v); result built from layer %d", i, err, len(history))
			break
		}

		m.emit(m.r.reporter.Event(core.PhaseEvaluating, i))
		res.Tension = m.e.detector.Evaluate(append(history, res), params)
		history = append(history, res)
		completed := &history[len(history)-1]

		if m.e.instruments != nil {
			m.e.instruments.Layer(ctx, string(cfg.Circuit), res.Elapsed, res.Tension.Breakthrough)
		}
		m.span.AddEvent("layer.completed", trace.WithAttributes(
			attribute.Int("insightmesh.layer", i),
			attribute.Int("insightmesh.contradictions", res.Tension.Contradictions),
			attribute.Bool("insightmesh.breakthrough", res.Tension.Breakthrough),
			attribute.Float64("insightmesh.confidence", res.Tension.Confidence),
		))

		lc := &CallbackContext{RunID: m.r.id, Config: cfg, Layer: completed}
		if err := m.e.callbacks.ExecuteCallbacks(ctx, CallbackAfterLayer, lc); err != nil {
			status = core.StatusPartial
			note = fmt.Sprintf("after_layer callback stopped the run after layer %d: %v", i, err)
			break
		}
		if res.Tension.Breakthrough {
			if err := m.e.callbacks.ExecuteCallbacks(ctx, CallbackOnBreakthrough, lc); err != nil {
				m.e.logger.Warn("on_breakthrough callback failed", "run_id", m.r.id, "layer", i, "error", err)
			}
		}

		if i < cfg.Depth && tension.ShouldStop(res.Tension, params) {
			note = fmt.Sprintf("breakthrough confirmed at layer %d with %.0f%% confidence; stopped before requested depth %d",
				i, res.Tension.Confidence, cfg.Depth)
			m.e.logger.Info("Early termination", "run_id", m.r.id, "layer", i, "confidence", res.Tension.Confidence)
			break
		}
	}

	if interrupted != nil {
		timedOut := errors.Is(interrupted, errRunTimeout) || errors.Is(interrupted, context.DeadlineExceeded)
		switch {
		case len(history) == 0 && timedOut:
			return m.fail(core.RunErrorTimeout, "run deadline passed before the first layer completed", true, core.ErrTimeout)
		case len(history) == 0:
			return m.fail(core.RunErrorCancelled, "run cancelled before the first layer completed", false, interrupted)
		case timedOut:
			status = core.StatusPartial
			note = fmt.Sprintf("run deadline passed; result built from %d of %d layers", len(history), cfg.Depth)
		default:
			status = core.StatusCancelled
			note = fmt.Sprintf("run cancelled after %d of %d layers", len(history), cfg.Depth)
		}
	}

	m.to(stateFinalizing)
	m.emit(m.r.reporter.Event(core.PhaseFinalizing, m.reached))

	last := history[len(history)-1]
	result := core.RunResult{
		RunID:           m.r.id,
		Question:        cfg.Question,
		Circuit:         cfg.Circuit,
		Status:          status,
		Synthesis:       last.Synthesis,
		Layers:          history,
		LayersProcessed: len(history),
		RequestedDepth:  cfg.Depth,
		Tension:         last.Tension,
		Note:            note,
		StartedAt:       m.r.startedAt,
		Elapsed:         time.Since(m.r.startedAt),
	}
	result.Quality = m.e.scorer.Score(result, cfg)

	if status != core.StatusCancelled {
		m.e.recorder.Record(ctx, result.Quality, cfg, cfg.Domain)
	}
	return core.Outcome{Result: &result}
}

// advance runs layer i inside its own span, translating layer hooks into
// progress events.
func (m *machine) advance(ctx context.Context, strategy circuit.Strategy, history []core.LayerResult, i int) (core.LayerResult, error) {
	ctx, span := m.e.tracer.Start(ctx, "insightmesh.layer", trace.WithAttributes(
		attribute.String("insightmesh.run_id", m.r.id),
		attribute.Int("insightmesh.layer", i),
	))
	defer span.End()

	rep := m.r.reporter
	hooks := layer.Hooks{
		Started: func(a core.Archetype, done, total int) {
			ev := rep.Event(core.PhaseInvoking, i)
			ev.Archetype = a.Label()
			ev.Chunk = core.Chunk{Current: done, Total: total}
			m.emit(ev)
		},
		Finished: func(p core.Perspective, done, total int) {
			ev := rep.Event(core.PhaseInvoking, i)
			ev.Archetype = p.ArchetypeName
			ev.Chunk = core.Chunk{Current: done, Total: total}
			if p.Failed {
				ev.Message = "degraded: " + p.Failure
			}
			m.emit(ev)
		},
		Synthesizing: func(survivors int) {
			ev := rep.Event(core.PhaseSynthesizing, i)
			ev.Message = fmt.Sprintf("synthesizing %d perspectives", survivors)
			m.emit(ev)
		},
	}

	res, err := strategy.AdvanceLayer(ctx, circuit.State{
		Config:  m.r.cfg,
		History: history,
		Layer:   i,
		Hooks:   hooks,
	})
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(
		attribute.Int("insightmesh.survivors", len(res.Survivors())),
		attribute.Int("insightmesh.degraded", res.Degraded()),
	)
	return res, err
}

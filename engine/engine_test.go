package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/insightmesh/archetype"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/testutil"
	"github.com/hupe1980/insightmesh/learning"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newEngine builds an engine with a large subscription buffer so tests see
// every event, and closes it when the test ends.
func newEngine(t *testing.T, gen core.Generator, optFns ...func(o *Options)) *Engine {
	t.Helper()
	eng := New(gen, append([]func(o *Options){func(o *Options) {
		o.Config.SubscriptionBuffer = 1024
	}}, optFns...)...)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

// collect drains a subscription and returns every event and the outcome.
func collect(t *testing.T, eng *Engine, h core.RunHandle) ([]core.ProgressEvent, core.Outcome) {
	t.Helper()
	events, outcomes, err := eng.Subscribe(h)
	require.NoError(t, err)
	return drain(t, events, outcomes)
}

// drain reads a progress stream to its end and then the outcome.
func drain(t *testing.T, events <-chan core.ProgressEvent, outcomes <-chan core.Outcome) ([]core.ProgressEvent, core.Outcome) {
	t.Helper()
	var got []core.ProgressEvent
	deadline := time.After(5 * time.Second)
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatal("progress stream did not close")
		}
	}
	select {
	case o := <-outcomes:
		return got, o
	case <-deadline:
		t.Fatal("no outcome delivered")
	}
	return nil, core.Outcome{}
}

func start(t *testing.T, eng *Engine, cfg core.RunConfiguration) core.RunHandle {
	t.Helper()
	h, err := eng.StartRun(context.Background(), cfg)
	require.NoError(t, err)
	return h
}

func TestStartRun_ValidationIsSynchronous(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	eng := newEngine(t, gen)

	tests := []struct {
		name  string
		cfg   core.RunConfiguration
		field string
	}{
		{"short question", testutil.NewConfigBuilder("Pivot?").Build(), "question"},
		{"depth zero", testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(0).Build(), "depth"},
		{"depth eleven", testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(11).Build(), "depth"},
		{"unknown circuit", testutil.NewConfigBuilder(testutil.PivotQuestion).Circuit("spiral").Build(), "circuit"},
		{"single archetype", testutil.NewConfigBuilder(testutil.PivotQuestion).
			Archetypes(testutil.Archetypes(archetype.Visionary)...).Build(), "archetypes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.StartRun(context.Background(), tt.cfg)
			require.ErrorIs(t, err, core.ErrValidation)

			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Empty(t, eng.Active())
	assert.Empty(t, gen.Calls())
}

func TestRun_SequentialPivotScenario(t *testing.T) {
	eng := newEngine(t, testutil.NewScriptedGenerator())
	cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(3).Build()

	res, err := eng.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, 3, res.LayersProcessed)
	assert.Equal(t, 3, res.RequestedDepth)
	require.Len(t, res.Layers, 3)
	for _, l := range res.Layers {
		assert.Len(t, l.Perspectives, 2)
		assert.Len(t, l.Survivors(), 2)
	}

	assert.Contains(t, res.Synthesis, "Visionary")
	assert.Contains(t, res.Synthesis, "pursue")
	assert.Contains(t, res.Synthesis, "Skeptic")
	assert.Contains(t, res.Synthesis, "avoid")

	q := res.Quality
	assert.Equal(t, 3, q.LayersProcessed)
	assert.Equal(t, res.Tension.Contradictions, q.TensionPoints)
	assert.Zero(t, q.DegradedPerspectives)
	for name, v := range map[string]float64{
		"overall": q.Overall, "confidence": q.Confidence, "novelty": q.Novelty,
		"breakthrough": q.BreakthroughPotential, "integrity": q.Integrity,
	} {
		assert.Greater(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 10.0, name)
	}
	assert.Equal(t, 10.0, q.Integrity)
}

func TestRun_ParallelWithTimingOutArchetype(t *testing.T) {
	gen := testutil.NewScriptedGenerator().HangFor(archetype.Skeptic)
	eng := newEngine(t, gen, func(o *Options) {
		o.Config.InvocationTimeout = 50 * time.Millisecond
	})
	cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(3).Circuit(core.CircuitParallel).Build()

	h := start(t, eng, cfg)
	events, o := collect(t, eng, h)
	require.Nil(t, o.Err)
	res := o.Result

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, core.PhaseCompleted, events[len(events)-1].Phase)
	assert.Equal(t, 3, res.LayersProcessed)
	for _, l := range res.Layers {
		require.Len(t, l.Survivors(), 1)
		assert.Equal(t, archetype.Visionary, l.Survivors()[0].ArchetypeID)
		assert.True(t, l.LowDiversity)
		assert.True(t, l.Perspectives[1].Failed)
		assert.Contains(t, l.Perspectives[1].Failure, "timeout")
	}
	assert.Equal(t, 3, res.Quality.DegradedPerspectives)
	assert.Equal(t, 5.0, res.Quality.Integrity)

	// Without contradictions breakthrough potential only reflects depth,
	// exactly as for a healthy run that never disagrees.
	healthy := newEngine(t, testutil.NewScriptedGenerator().WithReply(testutil.AgreeReply))
	ref, err := healthy.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, ref.Quality.BreakthroughPotential, res.Quality.BreakthroughPotential)
}

func TestRun_MaxDepthWithoutBreakthrough(t *testing.T) {
	eng := newEngine(t, testutil.NewScriptedGenerator().WithReply(testutil.AgreeReply))
	cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(core.MaxDepth).Circuit(core.CircuitHybrid).Build()

	res, err := eng.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, 10, res.LayersProcessed)
	assert.False(t, res.Tension.Breakthrough)
	assert.Empty(t, res.Note)
}

func TestRun_EarlyTerminationOnBreakthrough(t *testing.T) {
	eng := newEngine(t, testutil.NewScriptedGenerator())
	cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).
		Depth(5).
		Archetypes(testutil.Archetypes(archetype.Visionary, archetype.Empath, archetype.Skeptic, archetype.Pragmatist)...).
		Build()

	res, err := eng.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, 2, res.LayersProcessed)
	assert.Equal(t, 5, res.RequestedDepth)
	assert.True(t, res.Tension.Breakthrough)
	assert.Greater(t, res.Tension.Confidence, 75.0)
	assert.Contains(t, res.Note, "breakthrough confirmed at layer 2")
	assert.InDelta(t, res.Tension.Confidence, res.Quality.BreakthroughPct, 0.01)
}

func TestRun_LayersProcessedBounds(t *testing.T) {
	eng := newEngine(t, testutil.NewScriptedGenerator(), func(o *Options) {
		o.Config.MaxConcurrentRuns = 0
	})
	for _, ct := range core.CircuitTypes {
		for depth := 1; depth <= 4; depth++ {
			cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(depth).Circuit(ct).Build()
			res, err := eng.Run(context.Background(), cfg)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, res.LayersProcessed, 1, "%s depth %d", ct, depth)
			assert.LessOrEqual(t, res.LayersProcessed, depth, "%s depth %d", ct, depth)
			assert.Len(t, res.Layers, res.LayersProcessed)
		}
	}
}

func TestRun_ParallelIssuesBeforeAwaiting(t *testing.T) {
	gen := testutil.NewScriptedGenerator().WithDelay(30 * time.Millisecond)
	eng := newEngine(t, gen)
	cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).
		Circuit(core.CircuitParallel).
		Archetypes(testutil.Archetypes(archetype.Visionary, archetype.Skeptic, archetype.Empath, archetype.Historian)...).
		Build()

	_, err := eng.Run(context.Background(), cfg)
	require.NoError(t, err)

	calls := gen.Calls()
	require.Len(t, calls, 4)
	lastIssued, firstReturned := calls[0].Issued, calls[0].Returned
	for _, c := range calls {
		if c.Issued.After(lastIssued) {
			lastIssued = c.Issued
		}
		if c.Returned.Before(firstReturned) {
			firstReturned = c.Returned
		}
	}
	assert.False(t, lastIssued.After(firstReturned), "an invocation was issued after another one returned")
}

func TestRun_SequentialCircuitsAwaitEachInvocation(t *testing.T) {
	for _, ct := range []core.CircuitType{core.CircuitSequential, core.CircuitRecursive} {
		t.Run(string(ct), func(t *testing.T) {
			gen := testutil.NewScriptedGenerator().WithDelay(5 * time.Millisecond)
			eng := newEngine(t, gen)
			cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).
				Depth(2).
				Circuit(ct).
				Archetypes(testutil.Archetypes(archetype.Visionary, archetype.Skeptic, archetype.Empath)...).
				Build()

			_, err := eng.Run(context.Background(), cfg)
			require.NoError(t, err)

			calls := gen.Calls()
			require.Len(t, calls, 6)
			for i := 1; i < len(calls); i++ {
				assert.False(t, calls[i].Issued.Before(calls[i-1].Returned),
					"call %d issued before call %d returned", i, i-1)
			}
		})
	}
}

type layerView struct {
	Survivors []string
	Synthesis string
}

func project(res *core.RunResult) (int, []layerView) {
	views := make([]layerView, len(res.Layers))
	for i, l := range res.Layers {
		for _, p := range l.Survivors() {
			views[i].Survivors = append(views[i].Survivors, p.ArchetypeID)
		}
		views[i].Synthesis = l.Synthesis
	}
	return res.LayersProcessed, views
}

func TestRun_Idempotent(t *testing.T) {
	for _, ct := range core.CircuitTypes {
		t.Run(string(ct), func(t *testing.T) {
			cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(3).Circuit(ct).
				Archetypes(testutil.Archetypes(archetype.Visionary, archetype.Skeptic, archetype.Historian)...).
				Build()

			first, err := newEngine(t, testutil.NewScriptedGenerator()).Run(context.Background(), cfg)
			require.NoError(t, err)
			second, err := newEngine(t, testutil.NewScriptedGenerator()).Run(context.Background(), cfg)
			require.NoError(t, err)

			n1, v1 := project(first)
			n2, v2 := project(second)
			assert.Equal(t, n1, n2)
			if diff := cmp.Diff(v1, v2); diff != "" {
				t.Errorf("runs differ (-first +second):\n%s", diff)
			}
			assert.Equal(t, first.Synthesis, second.Synthesis)
			assert.Equal(t, first.Quality, second.Quality)
		})
	}
}

func TestStartAndSubscribe_SurvivesRetirement(t *testing.T) {
	eng := newEngine(t, testutil.NewScriptedGenerator(), func(o *Options) {
		o.Config.RetainFinished = 0
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h, events, outcomes, err := eng.StartAndSubscribe(ctx, testutil.NewConfigBuilder(testutil.PivotQuestion).Build())
	require.NoError(t, err)

	// The run finishes at once and is forgotten by the engine.
	require.Eventually(t, func() bool {
		_, _, err := eng.Subscribe(h)
		return errors.Is(err, core.ErrRunNotFound)
	}, 5*time.Second, 5*time.Millisecond)

	got, o := drain(t, events, outcomes)
	require.NotEmpty(t, got)
	assert.Equal(t, core.PhaseCancelled, got[len(got)-1].Phase)
	require.NotNil(t, o.Err)
	assert.Equal(t, core.RunErrorCancelled, o.Err.Kind)
}

func TestCancel_ImmediatelyAfterStart(t *testing.T) {
	gen := testutil.NewScriptedGenerator().WithDelay(time.Second)
	eng := newEngine(t, gen, func(o *Options) {
		o.Config.InvocationTimeout = 2 * time.Second
	})
	cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(3).Circuit(core.CircuitParallel).Build()

	h := start(t, eng, cfg)
	require.NoError(t, eng.Cancel(h))

	began := time.Now()
	events, o := collect(t, eng, h)
	assert.Less(t, time.Since(began), 2*time.Second)

	assert.True(t, o.Cancelled())
	require.NotNil(t, o.Err)
	assert.Equal(t, core.RunErrorCancelled, o.Err.Kind)
	assert.False(t, o.Err.Retryable)
	assert.Equal(t, core.PhaseCancelled, events[len(events)-1].Phase)
	assert.Empty(t, eng.Active())
}

func TestCancel_AfterFirstLayerYieldsCancelledResult(t *testing.T) {
	store := learning.NewInMemoryStore()
	cbs := NewCallbackManager()

	var eng *Engine
	cbs.RegisterCallback(NewFunctionCallback(CallbackAfterLayer, func(_ context.Context, cc *CallbackContext) error {
		if cc.Layer.Index == 1 {
			return eng.Cancel(core.RunHandle{ID: cc.RunID})
		}
		return nil
	}))
	eng = newEngine(t, testutil.NewScriptedGenerator(), func(o *Options) {
		o.Store = store
		o.Callbacks = cbs
	})

	h := start(t, eng, testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(4).Build())
	_, o := collect(t, eng, h)

	require.NotNil(t, o.Result)
	assert.True(t, o.Cancelled())
	assert.Equal(t, core.StatusCancelled, o.Result.Status)
	assert.Equal(t, 1, o.Result.LayersProcessed)
	assert.Equal(t, 1, o.Result.Quality.LayersProcessed)
	assert.Contains(t, o.Result.Note, "cancelled after 1 of 4 layers")

	require.NoError(t, eng.Close())
	assert.Empty(t, store.Records(core.DefaultDomain))
}

func TestRun_AllArchetypesFailInFirstLayer(t *testing.T) {
	boom := errors.New("provider down")
	gen := testutil.NewScriptedGenerator().
		FailFor(archetype.Visionary, boom).
		FailFor(archetype.Skeptic, boom)
	eng := newEngine(t, gen)

	res, err := eng.Run(context.Background(), testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(2).Build())
	assert.Nil(t, res)
	require.ErrorIs(t, err, core.ErrAllArchetypesFailed)

	var runErr *core.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, core.RunErrorAllFailed, runErr.Kind)
	assert.True(t, runErr.Retryable)
	assert.Equal(t, 1, gen.CallsFor(archetype.Visionary))
}

func TestRun_LaterLayerFailureYieldsPartial(t *testing.T) {
	base := testutil.NewScriptedGenerator()
	gen := core.GeneratorFunc(func(ctx context.Context, p core.Archetype, prompt string, timeout time.Duration) (string, error) {
		if strings.Contains(prompt, "Layer 2 of") {
			return "", errors.New("provider down")
		}
		return base.Generate(ctx, p, prompt, timeout)
	})
	eng := newEngine(t, gen)

	res, err := eng.Run(context.Background(), testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(3).Build())
	require.NoError(t, err)

	assert.Equal(t, core.StatusPartial, res.Status)
	assert.Equal(t, 1, res.LayersProcessed)
	assert.Equal(t, res.Layers[0].Synthesis, res.Synthesis)
	assert.Contains(t, res.Note, "layer 2 failed")
	assert.Zero(t, res.Quality.DegradedPerspectives, "scoring uses completed layers only")
}

func TestRun_DeadlineBeforeFirstLayer(t *testing.T) {
	gen := testutil.NewScriptedGenerator().HangFor(archetype.Visionary).HangFor(archetype.Skeptic)
	eng := newEngine(t, gen, func(o *Options) {
		o.Config.RunTimeout = 50 * time.Millisecond
	})

	_, err := eng.Run(context.Background(), testutil.NewConfigBuilder(testutil.PivotQuestion).Circuit(core.CircuitParallel).Build())
	require.ErrorIs(t, err, core.ErrTimeout)

	var runErr *core.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, core.RunErrorTimeout, runErr.Kind)
	assert.True(t, runErr.Retryable)
}

func TestRun_DeadlineAfterFirstLayer(t *testing.T) {
	gen := testutil.NewScriptedGenerator().WithDelay(100 * time.Millisecond)
	eng := newEngine(t, gen, func(o *Options) {
		o.Config.RunTimeout = 150 * time.Millisecond
	})
	cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(3).Circuit(core.CircuitParallel).Build()

	res, err := eng.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPartial, res.Status)
	assert.Equal(t, 1, res.LayersProcessed)
	assert.Contains(t, res.Note, "deadline")
}

func TestStartRun_RejectsBeyondCapacity(t *testing.T) {
	gen := testutil.NewScriptedGenerator().HangFor(archetype.Visionary).HangFor(archetype.Skeptic)
	eng := newEngine(t, gen, func(o *Options) {
		o.Config.MaxConcurrentRuns = 1
	})
	cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).Build()

	h := start(t, eng, cfg)
	assert.Equal(t, []string{h.ID}, eng.Active())

	_, err := eng.StartRun(context.Background(), cfg)
	require.ErrorIs(t, err, core.ErrEngineBusy)

	require.NoError(t, eng.Cancel(h))
	_, o := collect(t, eng, h)
	assert.True(t, o.Cancelled())

	require.Eventually(t, func() bool {
		h2, err := eng.StartRun(context.Background(), cfg)
		if err != nil {
			return false
		}
		_ = eng.Cancel(h2)
		return true
	}, time.Second, 5*time.Millisecond)
}

func TestUnknownHandle(t *testing.T) {
	eng := newEngine(t, testutil.NewScriptedGenerator())
	ghost := core.RunHandle{ID: "ghost"}

	_, _, err := eng.Subscribe(ghost)
	assert.ErrorIs(t, err, core.ErrRunNotFound)
	assert.ErrorIs(t, eng.Cancel(ghost), core.ErrRunNotFound)
}

func TestSubscribe_AfterFinish(t *testing.T) {
	eng := newEngine(t, testutil.NewScriptedGenerator())
	h := start(t, eng, testutil.NewConfigBuilder(testutil.PivotQuestion).Build())
	_, first := collect(t, eng, h)
	require.NotNil(t, first.Result)

	events, o := collect(t, eng, h)
	require.Len(t, events, 1)
	assert.Equal(t, core.PhaseCompleted, events[0].Phase)
	assert.Equal(t, 100.0, events[0].Percent)
	assert.Equal(t, first.Result, o.Result)

	assert.NoError(t, eng.Cancel(h), "cancelling a finished run is a no-op")
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	for _, ct := range core.CircuitTypes {
		t.Run(string(ct), func(t *testing.T) {
			gen := testutil.NewScriptedGenerator().WithDelay(2 * time.Millisecond)
			eng := newEngine(t, gen)
			cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(3).Circuit(ct).
				Archetypes(testutil.Archetypes(archetype.Visionary, archetype.Skeptic, archetype.Empath)...).
				Build()

			h := start(t, eng, cfg)
			events, o := collect(t, eng, h)
			require.NotNil(t, o.Result)
			require.NotEmpty(t, events)

			phases := map[core.Phase]bool{}
			for i, ev := range events {
				phases[ev.Phase] = true
				assert.Equal(t, h.ID, ev.RunID)
				assert.Equal(t, 3, ev.TotalLayers)
				if i == 0 {
					continue
				}
				prev := events[i-1]
				assert.False(t, ev.Before(prev), "event %d regressed: %+v after %+v", i, ev, prev)
				assert.GreaterOrEqual(t, ev.Percent, prev.Percent)
			}
			for _, p := range []core.Phase{core.PhaseInvoking, core.PhaseSynthesizing, core.PhaseEvaluating, core.PhaseFinalizing} {
				assert.True(t, phases[p], "missing phase %s", p)
			}
			last := events[len(events)-1]
			assert.Equal(t, core.PhaseCompleted, last.Phase)
			assert.Equal(t, 100.0, last.Percent)
		})
	}
}

func TestRun_RecordsQuality(t *testing.T) {
	store := learning.NewInMemoryStore()
	eng := New(testutil.NewScriptedGenerator(), func(o *Options) { o.Store = store })

	cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(2).Domain("strategy").Build()
	res, err := eng.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	records := store.Records("strategy")
	require.Len(t, records, 1)
	assert.Equal(t, res.Quality, records[0].Quality)
	assert.Equal(t, 2, records[0].Config.Depth)

	_, err = eng.StartRun(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCallbacks_Lifecycle(t *testing.T) {
	var (
		mu  sync.Mutex
		got []CallbackType
	)
	cbs := NewCallbackManager()
	for _, ct := range []CallbackType{CallbackBeforeRun, CallbackAfterLayer, CallbackOnBreakthrough, CallbackAfterRun} {
		cbs.RegisterCallback(NewFunctionCallback(ct, func(_ context.Context, cc *CallbackContext) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, cc.CallbackType)
			return nil
		}))
	}
	eng := newEngine(t, testutil.NewScriptedGenerator().WithReply(testutil.AgreeReply), func(o *Options) {
		o.Callbacks = cbs
	})

	_, err := eng.Run(context.Background(), testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(2).Build())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []CallbackType{CallbackBeforeRun, CallbackAfterLayer, CallbackAfterLayer, CallbackAfterRun}, got)
}

func TestCallbacks_BeforeRunErrorAbortsRun(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	cbs := NewCallbackManager()
	cbs.RegisterCallback(NewFunctionCallback(CallbackBeforeRun, func(context.Context, *CallbackContext) error {
		return errors.New("quota exceeded")
	}))
	eng := newEngine(t, gen, func(o *Options) { o.Callbacks = cbs })

	_, err := eng.Run(context.Background(), testutil.NewConfigBuilder(testutil.PivotQuestion).Build())
	var runErr *core.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, core.RunErrorInternal, runErr.Kind)
	assert.Empty(t, gen.Calls())
}

func TestRun_EnhancedModeUsesModelSynthesis(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	eng := newEngine(t, gen)

	res, err := eng.Run(context.Background(), testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(2).Enhanced().Build())
	require.NoError(t, err)

	assert.Equal(t, 2, gen.CallsFor("synthesizer"))
	assert.Contains(t, res.Synthesis, "Synthesizer would pursue it")
	assert.Contains(t, res.Synthesis, "[Visionary]")
	assert.Contains(t, res.Synthesis, "[Skeptic]")
}

func TestRun_InvocationBudget(t *testing.T) {
	eng := newEngine(t, testutil.NewScriptedGenerator().WithReply(testutil.AgreeReply), func(o *Options) {
		o.Config.MaxInvocationsPerRun = 3
	})

	res, err := eng.Run(context.Background(), testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(2).Build())
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	second := res.Layers[1]
	assert.True(t, second.LowDiversity)
	assert.True(t, second.Perspectives[1].Failed)
	assert.Contains(t, second.Perspectives[1].Failure, "invocation budget exhausted")
	assert.Equal(t, 1, res.Quality.DegradedPerspectives)
}

func TestStartRun_FreezesConfiguration(t *testing.T) {
	gen := testutil.NewScriptedGenerator().WithDelay(10 * time.Millisecond)
	eng := newEngine(t, gen)

	cfg := testutil.NewConfigBuilder(testutil.PivotQuestion).Depth(2).Build()
	h := start(t, eng, cfg)
	cfg.Archetypes[0].Name = "Mutated"
	cfg.Question = "Something else entirely?"

	_, o := collect(t, eng, h)
	require.NotNil(t, o.Result)
	assert.Equal(t, testutil.PivotQuestion, o.Result.Question)
	for _, l := range o.Result.Layers {
		assert.Equal(t, "Visionary", l.Perspectives[0].ArchetypeName)
	}
}

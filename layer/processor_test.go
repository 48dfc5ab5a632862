package layer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/insightmesh/archetype"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/testutil"
	"github.com/hupe1980/insightmesh/invoker"
)

func newProcessor(gen core.Generator, timeout time.Duration) *Processor {
	inv := invoker.New(gen, func(o *invoker.Options) {
		o.Timeout = timeout
		o.RetryBackoff = time.Millisecond
	})
	return NewProcessor(inv)
}

func input(mode Mode, ids ...string) Input {
	return Input{
		Index:       1,
		TotalLayers: 1,
		Question:    testutil.PivotQuestion,
		Circuit:     core.CircuitSequential,
		Mode:        mode,
		Archetypes:  testutil.Archetypes(ids...),
	}
}

func TestProcess_SequentialAccumulatesContext(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	p := newProcessor(gen, time.Second)

	res, err := p.Process(context.Background(), input(Sequential, archetype.Visionary, archetype.Skeptic, archetype.Empath))
	require.NoError(t, err)
	require.Len(t, res.Perspectives, 3)
	assert.Equal(t, archetype.Visionary, res.Perspectives[0].ArchetypeID)
	assert.Equal(t, archetype.Empath, res.Perspectives[2].ArchetypeID)

	calls := gen.Calls()
	require.Len(t, calls, 3)
	assert.NotContains(t, calls[0].Prompt, "already given in this layer")
	assert.Contains(t, calls[1].Prompt, "- Visionary: Yes, Visionary would pursue it")
	assert.Contains(t, calls[2].Prompt, "- Skeptic: No, Skeptic would avoid it")

	// Invocation N+1 starts only after N returned.
	for i := 1; i < len(calls); i++ {
		assert.False(t, calls[i].Issued.Before(calls[i-1].Returned), "call %d overlapped call %d", i, i-1)
	}
}

func TestProcess_ParallelIssuesAllBeforeAnyReturns(t *testing.T) {
	gen := testutil.NewScriptedGenerator().WithDelay(30 * time.Millisecond)
	p := newProcessor(gen, time.Second)

	res, err := p.Process(context.Background(), input(Parallel, archetype.Visionary, archetype.Skeptic, archetype.Empath, archetype.Historian))
	require.NoError(t, err)
	require.Len(t, res.Survivors(), 4)

	calls := gen.Calls()
	require.Len(t, calls, 4)
	var lastIssued, firstReturned time.Time
	for i, c := range calls {
		if i == 0 || c.Issued.After(lastIssued) {
			lastIssued = c.Issued
		}
		if i == 0 || c.Returned.Before(firstReturned) {
			firstReturned = c.Returned
		}
		assert.NotContains(t, c.Prompt, "already given in this layer")
	}
	assert.True(t, lastIssued.Before(firstReturned), "invocations were not concurrent")
}

func TestProcess_ParallelKeepsRegistryOrder(t *testing.T) {
	// The first archetype finishes last.
	gen := testutil.NewScriptedGenerator().DelayFor(archetype.Visionary, 40*time.Millisecond)
	p := newProcessor(gen, time.Second)

	res, err := p.Process(context.Background(), input(Parallel, archetype.Visionary, archetype.Skeptic))
	require.NoError(t, err)
	assert.Equal(t, archetype.Visionary, res.Perspectives[0].ArchetypeID)
	assert.True(t, strings.HasPrefix(res.Synthesis, "[Visionary]"))
}

func TestProcess_DegradedPerspective(t *testing.T) {
	gen := testutil.NewScriptedGenerator().HangFor(archetype.Skeptic)
	p := newProcessor(gen, 20*time.Millisecond)

	res, err := p.Process(context.Background(), input(Parallel, archetype.Visionary, archetype.Skeptic))
	require.NoError(t, err)
	require.Len(t, res.Perspectives, 2)

	failed := res.Perspectives[1]
	assert.True(t, failed.Failed)
	assert.Empty(t, failed.Text)
	assert.Contains(t, failed.Failure, core.ErrTimeout.Error())

	assert.Equal(t, 1, res.Degraded())
	assert.True(t, res.LowDiversity)
	assert.Equal(t, res.Perspectives[0].Text, res.Synthesis)
}

func TestProcess_AllFailed(t *testing.T) {
	boom := errors.New("boom")
	gen := testutil.NewScriptedGenerator().
		FailFor(archetype.Visionary, boom).
		FailFor(archetype.Skeptic, boom)
	p := newProcessor(gen, time.Second)

	res, err := p.Process(context.Background(), input(Sequential, archetype.Visionary, archetype.Skeptic))
	require.ErrorIs(t, err, core.ErrAllArchetypesFailed)
	assert.Len(t, res.Perspectives, 2)
	assert.Equal(t, 2, res.Degraded())
}

func TestProcess_Cancelled(t *testing.T) {
	gen := testutil.NewScriptedGenerator().HangFor(archetype.Visionary).HangFor(archetype.Skeptic)
	p := newProcessor(gen, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := p.Process(ctx, input(Parallel, archetype.Visionary, archetype.Skeptic))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProcess_Hooks(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	p := newProcessor(gen, time.Second)

	var (
		mu        sync.Mutex
		started   []string
		done      []int
		synthesis int
	)
	in := input(Sequential, archetype.Visionary, archetype.Skeptic)
	in.Hooks = Hooks{
		Started: func(a core.Archetype, _, _ int) {
			mu.Lock()
			defer mu.Unlock()
			started = append(started, a.ID)
		},
		Finished: func(_ core.Perspective, n, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 2, total)
			done = append(done, n)
		},
		Synthesizing: func(survivors int) { synthesis = survivors },
	}

	_, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{archetype.Visionary, archetype.Skeptic}, started)
	assert.Equal(t, []int{1, 2}, done)
	assert.Equal(t, 2, synthesis)
}

// Package insightmesh provides a high-level façade over the circuit engine,
// the archetype registry and the learning store. Most applications interact
// with this package by:
//  1. Creating a Mesh via New() around a core.Generator (a hosted model
//     adapter or a local stub)
//  2. Adjusting archetypes through Archetypes() and building a run
//     configuration with Configure or Recommend
//  3. Running asynchronously (StartRun, Subscribe) or synchronously (Run,
//     RunWithProgress)
//
// The façade delegates scheduling to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable learning store
// (learning.OpenSQLStore) and a structured logger.
package insightmesh

import (
	"context"

	"github.com/hupe1980/insightmesh/archetype"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/engine"
	"github.com/hupe1980/insightmesh/learning"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/tension"
)

// Options configures the Mesh instance.
type Options struct {
	// EngineConfig holds run limits and timeouts.
	EngineConfig engine.Config

	// Registry is the live archetype set. Defaults to the built-in archetypes.
	Registry *archetype.Registry

	// Store records run quality and answers recommendations. Defaults to an
	// in-memory store.
	Store core.LearningStore

	// Metric decides contradictions. Defaults to tension.DefaultMetric.
	Metric tension.Metric

	// Callbacks receives run lifecycle hooks. May be nil.
	Callbacks *engine.CallbackManager

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating the engine, registry and store.
type Mesh struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new Mesh producing perspectives with gen. Any unset
// collaborator is initialized with an in-memory implementation.
func New(gen core.Generator, optFns ...func(o *Options)) *Mesh {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Registry:     archetype.NewRegistry(),
		Store:        learning.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	e := engine.New(gen, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Store = opts.Store
		o.Metric = opts.Metric
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})

	return &Mesh{opts: opts, engine: e}
}

// Archetypes returns the live registry. Edits affect runs started later only.
func (m *Mesh) Archetypes() *archetype.Registry { return m.opts.Registry }

// Store returns the learning store.
func (m *Mesh) Store() core.LearningStore { return m.opts.Store }

// Configure builds a run configuration for question with a snapshot of the
// given archetypes (all registered archetypes when ids is empty). Depth 3
// on a sequential circuit is used; callers adjust the returned value.
func (m *Mesh) Configure(question string, ids ...string) (core.RunConfiguration, error) {
	archetypes, err := m.opts.Registry.Snapshot(ids...)
	if err != nil {
		return core.RunConfiguration{}, &core.ValidationError{Field: "archetypes", Reason: err.Error()}
	}
	return core.RunConfiguration{
		Question:   question,
		Depth:      3,
		Circuit:    core.CircuitSequential,
		Archetypes: archetypes,
	}, nil
}

// Recommend returns the best configuration learned for domain with
// question filled in. It reports false when there is no history yet.
func (m *Mesh) Recommend(ctx context.Context, question, domain string) (core.RunConfiguration, bool, error) {
	if domain == "" {
		domain = core.DefaultDomain
	}
	cfg, ok, err := learning.Recommend(ctx, m.opts.Store, domain, m.opts.Registry.Snapshot)
	if err != nil || !ok {
		return core.RunConfiguration{}, ok, err
	}
	cfg.Question = question
	return cfg, true, nil
}

// StartRun validates cfg and starts a run in the background.
func (m *Mesh) StartRun(ctx context.Context, cfg core.RunConfiguration) (core.RunHandle, error) {
	return m.engine.StartRun(ctx, cfg)
}

// StartAndSubscribe starts a run and returns its progress stream and
// outcome in one step.
func (m *Mesh) StartAndSubscribe(ctx context.Context, cfg core.RunConfiguration) (core.RunHandle, <-chan core.ProgressEvent, <-chan core.Outcome, error) {
	return m.engine.StartAndSubscribe(ctx, cfg)
}

// Cancel requests cooperative cancellation of a run.
func (m *Mesh) Cancel(h core.RunHandle) error { return m.engine.Cancel(h) }

// Subscribe returns the progress stream and the terminal outcome of a run.
func (m *Mesh) Subscribe(h core.RunHandle) (<-chan core.ProgressEvent, <-chan core.Outcome, error) {
	return m.engine.Subscribe(h)
}

// Active lists the ids of runs that have not finished.
func (m *Mesh) Active() []string { return m.engine.Active() }

// Run is a synchronous helper that blocks until the run's outcome.
func (m *Mesh) Run(ctx context.Context, cfg core.RunConfiguration) (*core.RunResult, error) {
	return m.engine.Run(ctx, cfg)
}

// RunWithProgress is like Run but calls fn for every progress event the
// subscription receives. Cancelling ctx cancels the run.
func (m *Mesh) RunWithProgress(ctx context.Context, cfg core.RunConfiguration, fn func(core.ProgressEvent)) (*core.RunResult, error) {
	_, events, outcome, err := m.engine.StartAndSubscribe(ctx, cfg)
	if err != nil {
		return nil, err
	}

	for ev := range events {
		if fn != nil {
			fn(ev)
		}
	}
	o := <-outcome
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Result, nil
}

// Close cancels every in-flight run and waits for pending learning records.
func (m *Mesh) Close() error { return m.engine.Close() }

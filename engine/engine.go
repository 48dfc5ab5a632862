package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/insightmesh/circuit"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/invoker"
	"github.com/hupe1980/insightmesh/layer"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/progress"
	"github.com/hupe1980/insightmesh/quality"
	"github.com/hupe1980/insightmesh/telemetry"
	"github.com/hupe1980/insightmesh/tension"
)

// ErrClosed is returned by StartRun after Close.
var ErrClosed = errors.New("engine closed")

// Cancellation causes attached to a run context.
var (
	errCancelled  = errors.New("run cancelled")
	errRunTimeout = errors.New("run deadline exceeded")
)

// Config defines tuning parameters for the Engine's operational behavior.
//
// Example:
//
//	cfg := engine.DefaultConfig
//	cfg.RunTimeout = 2 * time.Minute
//	cfg.MaxConcurrentRuns = 4
type Config struct {
	// MaxConcurrentRuns limits the number of runs executing at once.
	// StartRun fails with core.ErrEngineBusy beyond it. Zero means unlimited.
	MaxConcurrentRuns int

	// RunTimeout caps the wall-clock time of a run. When it passes, the run
	// is finalized with the layers completed so far. Zero disables the cap.
	RunTimeout time.Duration

	// InvocationTimeout bounds every single perspective invocation and
	// enhanced-mode synthesis.
	InvocationTimeout time.Duration

	// MaxInvocationsPerRun caps the perspective invocations of one run.
	// Invocations beyond it become degraded perspectives. Zero means
	// unlimited.
	MaxInvocationsPerRun int

	// SubscriptionBuffer is the channel buffer of each progress
	// subscription. Slow subscribers lose intermediate events, never the
	// latest one.
	SubscriptionBuffer int

	// RetainFinished is how many finished runs stay addressable for late
	// Subscribe calls.
	RetainFinished int
}

// DefaultConfig provides production-ready default configuration values.
var DefaultConfig = Config{
	MaxConcurrentRuns:    10,
	RunTimeout:           5 * time.Minute,
	InvocationTimeout:    30 * time.Second,
	MaxInvocationsPerRun: 0,
	SubscriptionBuffer:   16,
	RetainFinished:       128,
}

// Options configures an Engine instance using the functional options pattern.
//
// Example:
//
//	eng := engine.New(gen, func(o *engine.Options) {
//	    o.Store = learning.NewInMemoryStore()
//	    o.Logger = logger
//	})
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Store receives one quality record per finished, non-cancelled run.
	// Nil disables learning.
	Store core.LearningStore

	// Metric decides contradictions and similarity. Defaults to
	// tension.DefaultMetric.
	Metric tension.Metric

	// Synthesizer is used by runs in enhanced mode. Defaults to a
	// layer.ModelSynthesizer over the engine's generator.
	Synthesizer layer.Synthesizer

	// Callbacks receives run lifecycle hooks. May be nil.
	Callbacks *CallbackManager

	// Instruments records metrics. Defaults to instruments on the global
	// meter provider, which is a no-op unless telemetry was initialised.
	Instruments *telemetry.Instruments

	// Tracer records run and layer spans. Defaults to the global provider.
	Tracer trace.Tracer

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine schedules runs: it validates and freezes configurations, drives
// the configured circuit layer by layer, evaluates tension after every
// layer, scores the result and hands it to the learning store.
//
// Concurrency Model:
//   - One goroutine per run; layers fan out according to the circuit
//   - Runs share only the learning store
//   - Cancel and the run deadline propagate to every outstanding invocation
//
// Event Flow:
//  1. StartRun validates, freezes and emits the initializing event
//  2. Every layer emits invoking, synthesizing and evaluating events
//  3. The run emits finalizing and exactly one terminal event
//  4. Subscriptions close, then the terminal Outcome is delivered
//
// Example Usage:
//
//	eng := engine.New(gen)
//	h, err := eng.StartRun(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	events, outcome, _ := eng.Subscribe(h)
//	for ev := range events {
//	    fmt.Printf("%5.1f%% %s\n", ev.Percent, ev.Phase)
//	}
//	o := <-outcome
type Engine struct {
	config      Config
	invoker     *invoker.Invoker
	enhanced    layer.Synthesizer
	detector    *tension.Detector
	scorer      *quality.Scorer
	recorder    *quality.Recorder
	callbacks   *CallbackManager
	instruments *telemetry.Instruments
	tracer      trace.Tracer
	logger      logging.Logger

	slots chan struct{}

	mu       sync.RWMutex
	runs     map[string]*run
	finished []string
	closed   bool
	wg       sync.WaitGroup
}

var _ core.Engine = (*Engine)(nil)

// New creates an Engine that obtains every perspective from gen.
func New(gen core.Generator, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	if opts.Metric == nil {
		opts.Metric = tension.DefaultMetric
	}
	if opts.Synthesizer == nil {
		opts.Synthesizer = layer.NewModelSynthesizer(gen, func(o *layer.ModelSynthesizerOptions) {
			if opts.Config.InvocationTimeout > 0 {
				o.Timeout = opts.Config.InvocationTimeout
			}
			o.Logger = opts.Logger
		})
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Instruments == nil {
		inst, err := telemetry.NewInstruments(telemetry.Meter(telemetry.ScopeName))
		if err != nil {
			opts.Logger.Warn("Metrics disabled", "error", err)
		}
		opts.Instruments = inst
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer(telemetry.ScopeName)
	}

	e := &Engine{
		config: opts.Config,
		invoker: invoker.New(gen, func(o *invoker.Options) {
			if opts.Config.InvocationTimeout > 0 {
				o.Timeout = opts.Config.InvocationTimeout
			}
			o.Logger = opts.Logger
		}),
		enhanced:  opts.Synthesizer,
		detector:  tension.NewDetector(opts.Metric),
		scorer:    quality.NewScorer(opts.Metric),
		recorder:  quality.NewRecorder(opts.Store, func(o *quality.RecorderOptions) { o.Logger = opts.Logger }),
		callbacks: opts.Callbacks,

		instruments: opts.Instruments,
		tracer:      opts.Tracer,
		logger:      opts.Logger,
		runs:        make(map[string]*run),
	}
	if opts.Config.MaxConcurrentRuns > 0 {
		e.slots = make(chan struct{}, opts.Config.MaxConcurrentRuns)
	}
	return e
}

// StartRun validates cfg and starts a run in the background. Validation
// errors are returned directly and no run is created. The run keeps a deep
// copy of cfg and inherits ctx's values and cancellation.
func (e *Engine) StartRun(ctx context.Context, cfg core.RunConfiguration) (core.RunHandle, error) {
	r, err := e.start(ctx, cfg)
	if err != nil {
		return core.RunHandle{}, err
	}
	return core.RunHandle{ID: r.id}, nil
}

func (e *Engine) start(ctx context.Context, cfg core.RunConfiguration) (*run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	frozen := cfg.Frozen()

	strategy, err := e.strategy(frozen)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if !e.acquire() {
		return nil, fmt.Errorf("%w: %d runs in flight", core.ErrEngineBusy, e.config.MaxConcurrentRuns)
	}

	id := core.NewID()
	runCtx, cancel := context.WithCancelCause(ctx)
	stop := func() { cancel(nil) }
	if e.config.RunTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, e.config.RunTimeout, errRunTimeout)
		stop = func() {
			cancelTimeout()
			cancel(nil)
		}
	}

	r := newRun(id, frozen, cancel, progress.NewReporter(id, frozen.Depth, func(o *progress.Options) {
		o.Logger = e.logger
	}))
	r.reporter.Emit(r.reporter.Event(core.PhaseInitializing, 0))
	e.runs[id] = r

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release()
		defer stop()
		e.execute(runCtx, r, strategy)
	}()

	e.logger.Debug("Run started", "run_id", id, "circuit", frozen.Circuit, "depth", frozen.Depth, "archetypes", len(frozen.Archetypes))
	return r, nil
}

// StartAndSubscribe starts a run and subscribes to it before returning.
// Unlike StartRun followed by Subscribe, the subscription cannot miss a run
// that finished and was retired in between.
func (e *Engine) StartAndSubscribe(ctx context.Context, cfg core.RunConfiguration) (core.RunHandle, <-chan core.ProgressEvent, <-chan core.Outcome, error) {
	r, err := e.start(ctx, cfg)
	if err != nil {
		return core.RunHandle{}, nil, nil, err
	}
	return core.RunHandle{ID: r.id}, r.reporter.Subscribe(e.config.SubscriptionBuffer), r.await(), nil
}

// Run starts a run and blocks until its outcome. Partial and cancelled
// results are returned without error; a run that produced no result returns
// its *core.RunError.
func (e *Engine) Run(ctx context.Context, cfg core.RunConfiguration) (*core.RunResult, error) {
	_, events, outcome, err := e.StartAndSubscribe(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for range events {
		// Drain; the outcome is delivered after the stream closes.
	}
	o := <-outcome
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Result, nil
}

// Cancel requests cooperative cancellation. Cancelling a finished run is a
// no-op.
func (e *Engine) Cancel(h core.RunHandle) error {
	r, ok := e.lookup(h.ID)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, h.ID)
	}
	r.cancel(errCancelled)
	return nil
}

// Subscribe returns the run's progress stream, starting with its latest
// event, and a channel delivering the terminal Outcome once the stream is
// closed.
func (e *Engine) Subscribe(h core.RunHandle) (<-chan core.ProgressEvent, <-chan core.Outcome, error) {
	r, ok := e.lookup(h.ID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, h.ID)
	}
	return r.reporter.Subscribe(e.config.SubscriptionBuffer), r.await(), nil
}

// Active returns the ids of runs that have not finished, sorted.
func (e *Engine) Active() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var ids []string
	for id, r := range e.runs {
		if !r.finished() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Close rejects new runs, cancels the active ones and waits for them and
// for pending learning records.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	for _, r := range e.runs {
		r.cancel(ErrClosed)
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.recorder.Wait()
	return nil
}

func (e *Engine) lookup(id string) (*run, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runs[id]
	return r, ok
}

func (e *Engine) acquire() bool {
	if e.slots == nil {
		return true
	}
	select {
	case e.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *Engine) release() {
	if e.slots != nil {
		<-e.slots
	}
}

// retire keeps the most recent RetainFinished runs addressable.
func (e *Engine) retire(r *run) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.finished = append(e.finished, r.id)
	for len(e.finished) > max(e.config.RetainFinished, 0) {
		delete(e.runs, e.finished[0])
		e.finished = e.finished[1:]
	}
}

// strategy builds the per-run circuit. The processor is per run so the
// invocation budget and synthesizer follow the configuration.
func (e *Engine) strategy(cfg core.RunConfiguration) (circuit.Strategy, error) {
	var inv layer.Invoker = e.invoker
	if e.config.MaxInvocationsPerRun > 0 {
		inv = &budgeted{next: e.invoker, budget: core.NewInvocationBudget(e.config.MaxInvocationsPerRun)}
	}
	proc := layer.NewProcessor(inv, func(o *layer.Options) {
		if cfg.EnhancedMode {
			o.Synthesizer = e.enhanced
		}
		o.Logger = e.logger
		o.Instruments = e.instruments
	})
	return circuit.New(cfg.Circuit, proc, e.detector)
}

// budgeted refuses invocations once the run's budget is spent.
type budgeted struct {
	next   layer.Invoker
	budget *core.InvocationBudget
}

func (b *budgeted) Invoke(ctx context.Context, a core.Archetype, question string, pc invoker.Context) (string, error) {
	if err := b.budget.Take(); err != nil {
		return "", err
	}
	return b.next.Invoke(ctx, a, question, pc)
}

// run is the engine-side state of one run.
type run struct {
	id        string
	cfg       core.RunConfiguration
	startedAt time.Time
	reporter  *progress.Reporter
	cancel    context.CancelCauseFunc

	mu      sync.Mutex
	outcome *core.Outcome
	waiters []chan core.Outcome
}

func newRun(id string, cfg core.RunConfiguration, cancel context.CancelCauseFunc, reporter *progress.Reporter) *run {
	return &run{
		id:        id,
		cfg:       cfg,
		startedAt: time.Now().UTC(),
		reporter:  reporter,
		cancel:    cancel,
	}
}

func (r *run) await() <-chan core.Outcome {
	ch := make(chan core.Outcome, 1)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.outcome != nil {
		ch <- *r.outcome
		close(ch)
		return ch
	}
	r.waiters = append(r.waiters, ch)
	return ch
}

func (r *run) finish(o core.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcome = &o
	for _, ch := range r.waiters {
		ch <- o
		close(ch)
	}
	r.waiters = nil
}

func (r *run) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome != nil
}

// execute drives one run to its outcome and delivers it.
func (e *Engine) execute(ctx context.Context, r *run, strategy circuit.Strategy) {
	ctx, span := e.tracer.Start(ctx, "insightmesh.run", trace.WithAttributes(
		attribute.String("insightmesh.run_id", r.id),
		attribute.String("insightmesh.circuit", string(r.cfg.Circuit)),
		attribute.Int("insightmesh.depth", r.cfg.Depth),
		attribute.Int("insightmesh.archetypes", len(r.cfg.Archetypes)),
	))
	defer span.End()

	if e.instruments != nil {
		e.instruments.RunStarted(ctx)
	}

	m := &machine{e: e, r: r, span: span, state: stateIdle}
	o := m.drive(ctx, strategy)

	// The run context may be cancelled by now; bookkeeping must still happen.
	bg := context.WithoutCancel(ctx)

	terminal := core.PhaseCompleted
	status := "error"
	switch {
	case o.Cancelled():
		terminal = core.PhaseCancelled
		status = string(core.StatusCancelled)
	case o.Err != nil:
		terminal = core.PhaseFailed
	}
	if o.Result != nil {
		status = string(o.Result.Status)
		span.SetAttributes(
			attribute.Int("insightmesh.layers_processed", o.Result.LayersProcessed),
			attribute.Float64("insightmesh.quality.overall", o.Result.Quality.Overall),
		)
	}
	if o.Err != nil {
		span.RecordError(o.Err)
		span.SetStatus(codes.Error, string(o.Err.Kind))
		m.to(stateFailed)
	} else {
		m.to(stateCompleted)
	}

	ev := r.reporter.Event(terminal, m.reached)
	if o.Result != nil {
		ev.Message = o.Result.Note
	} else {
		ev.Message = o.Err.Reason
	}
	r.reporter.Emit(ev)

	if e.instruments != nil {
		e.instruments.RunFinished(bg, string(r.cfg.Circuit), status)
	}
	e.logRun(r, o)

	if err := e.callbacks.ExecuteCallbacks(bg, CallbackAfterRun, &CallbackContext{RunID: r.id, Config: r.cfg, Outcome: &o}); err != nil {
		e.logger.Warn("after_run callback failed", "run_id", r.id, "error", err)
	}

	r.reporter.Close()
	r.finish(o)
	e.retire(r)
}

func (e *Engine) logRun(r *run, o core.Outcome) {
	var (
		layers int
		status string
		dur    = time.Since(r.startedAt)
	)
	if o.Result != nil {
		layers, status = o.Result.LayersProcessed, string(o.Result.Status)
	} else {
		status = string(o.Err.Kind)
	}
	if il, ok := e.logger.(*logging.InsightLogger); ok {
		il.WithRun(r.id).LogRun(status, layers, r.cfg.Depth, dur, o.Error())
		return
	}
	if o.Err != nil {
		e.logger.Error("Run failed", "run_id", r.id, "status", status, "duration", dur, "error", o.Err)
		return
	}
	e.logger.Info("Run finished", "run_id", r.id, "status", status, "layers_processed", layers, "requested_depth", r.cfg.Depth, "duration", dur)
}

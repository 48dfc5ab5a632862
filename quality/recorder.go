package quality

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Timeout bounds a single Append.
	Timeout time.Duration
	Logger  logging.Logger
}

// Recorder appends quality vectors to a learning store in the background.
// Failures are logged and swallowed.
type Recorder struct {
	store core.LearningStore
	opts  RecorderOptions
	wg    sync.WaitGroup
}

// NewRecorder creates a Recorder. A nil store makes Record a no-op.
func NewRecorder(store core.LearningStore, optFns ...func(o *RecorderOptions)) *Recorder {
	opts := RecorderOptions{
		Timeout: 5 * time.Second,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Recorder{store: store, opts: opts}
}

// Record schedules an append and returns immediately. The append does not
// inherit cancellation from ctx; only its values are kept.
func (r *Recorder) Record(ctx context.Context, qv core.QualityVector, cfg core.RunConfiguration, domain string) {
	if r.store == nil {
		return
	}
	cfg = cfg.Frozen()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.opts.Logger.Error("Learning store panicked", "panic", p)
			}
		}()

		appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.Timeout)
		defer cancel()
		if err := r.store.Append(appendCtx, qv, cfg, domain); err != nil {
			r.opts.Logger.Warn("Failed to record quality", "domain", domain, "error", err)
			return
		}
		r.opts.Logger.Debug("Quality recorded", "domain", domain, "overall", qv.Overall)
	}()
}

// Wait blocks until every scheduled append finished.
func (r *Recorder) Wait() { r.wg.Wait() }

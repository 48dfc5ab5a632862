// Package progress fans a run's progress events out to subscribers. The
// stream never regresses: an event ordered before the last emitted one is
// dropped. Slow subscribers lose intermediate events, never the latest one.
package progress

import (
	"math"
	"sync"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
)

// DefaultBuffer is the subscription buffer used when none is requested.
// A buffer of one gives pure last-event-wins semantics.
const DefaultBuffer = 1

// Options configures a Reporter.
type Options struct {
	Logger logging.Logger
	// OnEvent observes every accepted event synchronously.
	OnEvent func(core.ProgressEvent)
}

// Reporter is safe for concurrent use. Emit never blocks on subscribers.
type Reporter struct {
	runID string
	total int
	opts  Options

	mu     sync.Mutex
	last   *core.ProgressEvent
	subs   []chan core.ProgressEvent
	closed bool
}

// NewReporter creates a Reporter for one run of total layers.
func NewReporter(runID string, total int, optFns ...func(o *Options)) *Reporter {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Reporter{runID: runID, total: total, opts: opts}
}

// Event returns a new event for this run.
func (r *Reporter) Event(phase core.Phase, layer int) core.ProgressEvent {
	return core.NewProgressEvent(r.runID, phase, layer, r.total)
}

// Emit publishes ev. It reports false when ev was dropped because it would
// regress the stream or the reporter is closed.
func (r *Reporter) Emit(ev core.ProgressEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if r.last != nil && (r.last.Phase.Terminal() || ev.Before(*r.last)) {
		r.opts.Logger.Debug("Dropping regressing progress event",
			"phase", ev.Phase, "layer", ev.Layer, "last_phase", r.last.Phase, "last_layer", r.last.Layer)
		return false
	}

	ev.RunID = r.runID
	ev.TotalLayers = r.total
	ev.Percent = r.percent(ev)
	r.last = &ev

	for _, sub := range r.subs {
		offer(sub, ev)
	}
	if r.opts.OnEvent != nil {
		r.opts.OnEvent(ev)
	}
	return true
}

// offer sends without blocking, evicting the oldest buffered event when
// the subscriber is full. Only the reporter sends on sub, under its lock.
func offer(sub chan core.ProgressEvent, ev core.ProgressEvent) {
	for {
		select {
		case sub <- ev:
			return
		default:
		}
		select {
		case <-sub:
		default:
		}
	}
}

// Subscribe returns a channel receiving events from now on, starting with
// the last emitted one. It is closed by Close; subscribing to a closed
// reporter yields the last event and a closed channel.
func (r *Reporter) Subscribe(buffer int) <-chan core.ProgressEvent {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	ch := make(chan core.ProgressEvent, buffer)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.last != nil {
		ch <- *r.last
	}
	if r.closed {
		close(ch)
		return ch
	}
	r.subs = append(r.subs, ch)
	return ch
}

// Last returns the most recent accepted event.
func (r *Reporter) Last() (core.ProgressEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return core.ProgressEvent{}, false
	}
	return *r.last, true
}

// Close closes every subscription. It is idempotent.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, sub := range r.subs {
		close(sub)
	}
	r.subs = nil
}

// percent maps an event onto [0,100]. Failed and cancelled runs keep the
// percentage they reached.
func (r *Reporter) percent(ev core.ProgressEvent) float64 {
	prev := 0.0
	if r.last != nil {
		prev = r.last.Percent
	}
	switch ev.Phase {
	case core.PhaseCompleted:
		return 100
	case core.PhaseFailed, core.PhaseCancelled:
		return prev
	case core.PhaseFinalizing:
		return math.Max(prev, 99)
	}
	if r.total <= 0 || ev.Layer < 1 {
		return prev
	}

	var inLayer float64
	switch ev.Phase {
	case core.PhaseInvoking:
		if ev.Chunk.Total > 0 {
			inLayer = 0.8 * float64(ev.Chunk.Current) / float64(ev.Chunk.Total)
		}
	case core.PhaseSynthesizing:
		inLayer = 0.85
	case core.PhaseEvaluating:
		inLayer = 0.95
	}
	pct := 100 * (float64(ev.Layer-1) + inLayer) / float64(r.total)
	return math.Round(math.Max(prev, math.Min(99, pct))*10) / 10
}

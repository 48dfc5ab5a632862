// Package engine implements the circuit scheduler of insightmesh.
//
// The Engine owns the lifecycle of every run, from a validated and frozen
// configuration to exactly one terminal outcome. It bridges the public
// facade and the layer machinery (circuit strategies, the layer processor,
// the tension detector and the quality scorer).
//
// # Core Responsibilities
//
// Run Management:
//   - Synchronous validation and deep-copy of the configuration
//   - Admission control with a configurable concurrent run limit
//   - Active run tracking, cancellation and graceful Close
//
// Layer Orchestration:
//   - Per-circuit strategies (sequential, parallel, recursive, hybrid)
//   - Tension evaluation after every layer and early termination on a
//     confirmed breakthrough
//   - Degraded perspectives for failed invocations; partial results when a
//     later layer loses every archetype
//
// Progress and Outcome:
//   - Monotonic progress events fanned out to any number of subscribers
//   - One terminal Outcome per run, delivered after the event stream closes
//   - Quality scoring and fire-and-forget learning records
//
// # State Machine
//
// Every run moves through idle, initializing, layer_loop and finalizing to
// completed, or to failed when no layer could be completed. Transitions are
// logged at debug level and recorded as span events.
//
// # Terminal Outcomes
//
//	situation                         outcome
//	all layers done / breakthrough    Result{Status: completed}
//	later layer lost every archetype  Result{Status: partial}
//	run deadline after ≥1 layer       Result{Status: partial}
//	cancel after ≥1 layer             Result{Status: cancelled}
//	layer 1 lost every archetype      RunError{Kind: all_archetypes_failed, Retryable: true}
//	run deadline before any layer     RunError{Kind: timeout, Retryable: true}
//	cancel before any layer           RunError{Kind: cancelled}
//
// # Callbacks
//
// A CallbackManager hooks into BeforeRun, AfterLayer, OnBreakthrough and
// AfterRun. Callbacks run synchronously on the run goroutine.
//
// # Usage
//
//	eng := engine.New(gen, func(o *engine.Options) {
//	    o.Store = learning.NewInMemoryStore()
//	})
//	defer eng.Close()
//
//	res, err := eng.Run(ctx, cfg)
//	if err != nil {
//	    var runErr *core.RunError
//	    if errors.As(err, &runErr) && runErr.Retryable {
//	        // try again later
//	    }
//	    return err
//	}
//	fmt.Println(res.Synthesis)
package engine

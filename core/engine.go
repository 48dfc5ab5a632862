package core

import "context"

// RunHandle identifies a started run.
type RunHandle struct {
	ID string `json:"id"`
}

// Engine drives runs from configuration to outcome.
//
// A concrete implementation is responsible for:
//   - Validating and freezing the configuration synchronously in StartRun
//   - Driving layers in the background and emitting progress events
//   - Delivering exactly one terminal Outcome per run
//   - Propagating Cancel to every outstanding invocation
type Engine interface {
	// StartRun validates cfg and starts a run in the background. Validation
	// failures are returned directly and no run is created.
	StartRun(ctx context.Context, cfg RunConfiguration) (RunHandle, error)

	// Cancel requests cooperative cancellation of a run.
	Cancel(h RunHandle) error

	// Subscribe returns the progress stream and the terminal outcome channel.
	// The events channel is closed before the outcome is delivered.
	Subscribe(h RunHandle) (<-chan ProgressEvent, <-chan Outcome, error)
}

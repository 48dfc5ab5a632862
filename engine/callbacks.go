package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
)

// CallbackType defines the lifecycle points of a run where callbacks are
// executed.
//
// Available callback types:
//   - BeforeRun: after validation, before the first layer
//   - AfterLayer: after a layer completed and its tension was evaluated
//   - OnBreakthrough: after a layer whose snapshot signalled a breakthrough
//   - AfterRun: once the terminal outcome is known
//
// Callbacks run synchronously on the run goroutine. An error from a
// BeforeRun callback aborts the run; an error from an AfterLayer callback
// finalizes the run with the layers completed so far. Errors from the other
// types are logged.
type CallbackType string

const (
	// CallbackBeforeRun is triggered before the first layer is processed.
	CallbackBeforeRun CallbackType = "before_run"

	// CallbackAfterLayer is triggered after every completed layer.
	CallbackAfterLayer CallbackType = "after_layer"

	// CallbackOnBreakthrough is triggered when a layer's tension snapshot
	// signals a breakthrough.
	CallbackOnBreakthrough CallbackType = "on_breakthrough"

	// CallbackAfterRun is triggered with the terminal outcome.
	CallbackAfterRun CallbackType = "after_run"
)

// CallbackContext carries what a callback may inspect. Fields that do not
// apply to a callback type are zero.
type CallbackContext struct {
	RunID        string
	CallbackType CallbackType
	Config       core.RunConfiguration

	// Layer is the layer just completed (AfterLayer, OnBreakthrough).
	Layer *core.LayerResult

	// Outcome is the terminal outcome (AfterRun).
	Outcome *core.Outcome
}

// Callback is a run lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackAfterLayer, func(ctx context.Context, cc *CallbackContext) error {
//	    log.Printf("layer %d: %d contradictions", cc.Layer.Index, cc.Layer.Tension.Contradictions)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes lifecycle points to registered callbacks. It is
// safe for concurrent registration and execution.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback. Callbacks of the same type run in
// registration order.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every callback registered for callbackType and
// stops at the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}
	return nil
}

// LoggingCallback writes one structured log line per lifecycle point.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logging.OrNoOp(logger),
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle point with the run id and, when present, the
// layer or terminal outcome.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{"callback", string(c.callbackType), "run_id", callbackCtx.RunID}
	if l := callbackCtx.Layer; l != nil {
		args = append(args,
			"layer", l.Index,
			"contradictions", l.Tension.Contradictions,
			"breakthrough", l.Tension.Breakthrough,
		)
	}
	if o := callbackCtx.Outcome; o != nil {
		switch {
		case o.Result != nil:
			args = append(args, "status", string(o.Result.Status), "layers_processed", o.Result.LayersProcessed)
		case o.Err != nil:
			args = append(args, "error_kind", string(o.Err.Kind))
		}
	}
	c.logger.Info("Run lifecycle", args...)
	return nil
}

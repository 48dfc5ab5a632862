package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks configuration problems detected before any invocation.
	ErrValidation = errors.New("invalid run configuration")

	// ErrInvalidPersona marks an archetype that cannot be rendered into a prompt.
	// Invocations failing this way are never retried.
	ErrInvalidPersona = errors.New("invalid persona")

	// ErrTimeout marks an invocation or run that exceeded its time budget.
	ErrTimeout = errors.New("timeout")

	// ErrUpstream marks a failure reported by the model collaborator.
	ErrUpstream = errors.New("upstream error")

	// ErrAllArchetypesFailed is returned by a layer in which no archetype
	// produced a perspective.
	ErrAllArchetypesFailed = errors.New("all archetypes failed")

	// ErrRunNotFound is returned for handles the engine does not know.
	ErrRunNotFound = errors.New("run not found")

	// ErrEngineBusy is returned when the concurrent run limit is reached.
	ErrEngineBusy = errors.New("engine at run capacity")

	// ErrInvocationBudget is returned once a run exhausted its invocation budget.
	ErrInvocationBudget = errors.New("invocation budget exhausted")
)

// ValidationError describes a single rejected configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// RunErrorKind classifies terminal run failures.
type RunErrorKind string

const (
	// RunErrorValidation is reported for configurations rejected at start.
	RunErrorValidation RunErrorKind = "validation"
	// RunErrorAllFailed is reported when the first layer produced no perspective.
	RunErrorAllFailed RunErrorKind = "all_archetypes_failed"
	// RunErrorTimeout is reported when the run deadline passed before any layer completed.
	RunErrorTimeout RunErrorKind = "timeout"
	// RunErrorCancelled is reported when the run was cancelled before any layer completed.
	RunErrorCancelled RunErrorKind = "cancelled"
	// RunErrorInternal covers unexpected failures (hooks, budget exhaustion).
	RunErrorInternal RunErrorKind = "internal"
)

// RunError is the typed terminal error of a run. Reason is human readable.
type RunError struct {
	RunID     string       `json:"run_id"`
	Kind      RunErrorKind `json:"kind"`
	Reason    string       `json:"reason"`
	Retryable bool         `json:"retryable"`
	Err       error        `json:"-"`
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("run %s %s: %s: %v", e.RunID, e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("run %s %s: %s", e.RunID, e.Kind, e.Reason)
}

func (e *RunError) Unwrap() error { return e.Err }

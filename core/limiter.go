package core

import (
	"fmt"
	"sync"
)

// InvocationBudget enforces a maximum number of perspective invocations
// per run. It is shared by the goroutines of one run only.
type InvocationBudget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewInvocationBudget creates a budget allowing max invocations.
// If max == 0, unlimited invocations are allowed.
func NewInvocationBudget(max int) *InvocationBudget {
	return &InvocationBudget{max: max}
}

// Take consumes one invocation and returns an error once the budget is spent.
func (b *InvocationBudget) Take() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.count >= b.max {
		return fmt.Errorf("%w: %d invocations", ErrInvocationBudget, b.max)
	}
	b.count++

	return nil
}

// Count returns the number of invocations taken so far.
func (b *InvocationBudget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns how many invocations are left, or -1 when unlimited.
func (b *InvocationBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max == 0 {
		return -1
	}

	return b.max - b.count
}

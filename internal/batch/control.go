package batch

import (
	"context"
	"sync"
)

// Control carries the cooperative pause/stop signaling for a run.
//
// Stop is the run context's cancellation; pause is a gate the round loop
// awaits at iteration boundaries. Neither ever interrupts an in-flight
// generation call: a call already awaited completes (or fails) before the
// signal takes effect. That granularity is the documented contract, not
// true preemption.
type Control struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

// NewControl returns a Control in the running (unpaused) state.
func NewControl() *Control {
	return &Control{}
}

// Pause suspends the run before its next round. Idempotent.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused {
		c.paused = true
		c.resume = make(chan struct{})
	}
}

// Resume lifts a pause. Idempotent.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		c.paused = false
		close(c.resume)
	}
}

// Paused reports whether the gate is currently closed.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// await blocks while paused, returning when resumed or when ctx is done.
// Called by the orchestrator at round boundaries only.
func (c *Control) await(ctx context.Context) error {
	for {
		c.mu.Lock()
		if !c.paused {
			c.mu.Unlock()
			return nil
		}
		resume := c.resume
		c.mu.Unlock()

		select {
		case <-resume:
			// Re-check: Pause may have been called again.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

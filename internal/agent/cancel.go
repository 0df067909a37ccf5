package agent

import (
	"context"
	"sync"
)

// Controller turns an interrupt into cooperative cancellation of the
// step in flight. Cancel is safe from any goroutine, is a no-op when
// nothing is running, and coalesces repeated requests while a previous
// cancel is still settling.
type Controller struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelled bool
}

// begin derives the step context and arms the controller. The returned
// release must be called when the step settles.
func (c *Controller) begin(ctx context.Context) (context.Context, func()) {
	stepCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.cancelled = false
	c.mu.Unlock()
	return stepCtx, func() {
		c.mu.Lock()
		c.cancel = nil
		c.cancelled = false
		c.mu.Unlock()
		cancel()
	}
}

// Cancel requests cancellation of the step in flight. It returns true
// when a cancellation was actually delivered: false means no step was
// running or a previous cancel is still settling.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil || c.cancelled {
		return false
	}
	c.cancelled = true
	c.cancel()
	return true
}

// Cancelling reports whether a delivered cancel is still settling.
func (c *Controller) Cancelling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Package reconcile tracks in-flight tool calls and pairs results back
// to them. Every emitted call eventually reaches exactly one terminal
// status, however late or out of order its resolution arrives.
package reconcile

import (
	"fmt"
	"sync"

	"github.com/midodimori/langrepl/internal/thread"
	"github.com/midodimori/langrepl/internal/tools"
)

// Reconciler holds the live call table for one session. Calls are kept
// in emission order; each advances through the status machine
// independently of its siblings.
type Reconciler struct {
	mu    sync.Mutex
	calls map[string]*tools.Call
	order []string
}

// New creates an empty reconciler.
func New() *Reconciler {
	return &Reconciler{calls: make(map[string]*tools.Call)}
}

// Track registers an emitted call. Duplicate IDs are rejected; the
// reasoning side must mint unique call IDs per step.
func (r *Reconciler) Track(call tools.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calls[call.ID]; exists {
		return fmt.Errorf("call %s already tracked", call.ID)
	}
	c := call
	if c.Status == "" {
		c.Status = tools.StatusPending
	}
	r.calls[call.ID] = &c
	r.order = append(r.order, call.ID)
	return nil
}

// Transition moves a call to a new status, enforcing the legal
// transitions of the call state machine.
func (r *Reconciler) Transition(callID string, to tools.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(callID, to, "")
}

func (r *Reconciler) transitionLocked(callID string, to tools.Status, result string) error {
	c, ok := r.calls[callID]
	if !ok {
		return fmt.Errorf("unknown call %s", callID)
	}
	if !c.Status.CanTransition(to) {
		return fmt.Errorf("call %s: illegal transition %s -> %s", callID, c.Status, to)
	}
	c.Status = to
	if result != "" {
		c.Result = result
	}
	return nil
}

// Resolve records a successful result: Executing -> Completed.
func (r *Reconciler) Resolve(callID, result string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(callID, tools.StatusCompleted, result)
}

// Fail records an execution error: Executing -> Errored. The error text
// becomes the call's result so the reasoning side sees it.
func (r *Reconciler) Fail(callID string, execErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(callID, tools.StatusErrored, execErr.Error())
}

// Deny records a policy or user denial: Pending -> Denied, with the
// canonical denial text as the result.
func (r *Reconciler) Deny(callID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(callID, tools.StatusDenied, reason); err != nil {
		return err
	}
	return nil
}

// Cancel moves one non-terminal call to Cancelled. Calls that already
// reached a terminal status are left untouched and reported as false.
func (r *Reconciler) Cancel(callID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return false, fmt.Errorf("unknown call %s", callID)
	}
	if c.Status.Terminal() {
		return false, nil
	}
	if !c.Status.CanTransition(tools.StatusCancelled) {
		return false, fmt.Errorf("call %s: illegal transition %s -> %s", callID, c.Status, tools.StatusCancelled)
	}
	c.Status = tools.StatusCancelled
	return true, nil
}

// CancelOpen cancels every call that has not reached a terminal status:
// approved-but-not-started and executing calls alike. Pending calls
// are denied rather than cancelled, since they never got a verdict.
// Returns the IDs that changed.
func (r *Reconciler) CancelOpen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed []string
	for _, id := range r.order {
		c := r.calls[id]
		if c.Status.Terminal() {
			continue
		}
		switch c.Status {
		case tools.StatusPending:
			c.Status = tools.StatusDenied
			c.Result = "Cancelled before a verdict."
		default:
			c.Status = tools.StatusCancelled
		}
		changed = append(changed, id)
	}
	return changed
}

// AddAudit appends a note to a call's audit trail.
func (r *Reconciler) AddAudit(callID, note string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.calls[callID]; ok {
		c.Audit = append(c.Audit, note)
	}
}

// Get returns a copy of one tracked call.
func (r *Reconciler) Get(callID string) (tools.Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return tools.Call{}, false
	}
	return *c, true
}

// Open returns copies of all non-terminal calls in emission order.
func (r *Reconciler) Open() []tools.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var open []tools.Call
	for _, id := range r.order {
		if c := r.calls[id]; !c.Status.Terminal() {
			open = append(open, *c)
		}
	}
	return open
}

// Snapshot returns copies of all tracked calls in emission order, for
// checkpoint persistence.
func (r *Reconciler) Snapshot() []tools.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tools.Call, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.calls[id])
	}
	return out
}

// LoadFrom rebuilds the call table from a checkpoint's pending calls.
// Calls persisted as Executing were interrupted by the shutdown that
// produced this resume, so they reclassify to Cancelled; their work may
// or may not have happened and must not be assumed complete.
func (r *Reconciler) LoadFrom(cp *thread.Checkpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[string]*tools.Call, len(cp.PendingCalls))
	r.order = r.order[:0]
	for _, call := range cp.PendingCalls {
		c := call
		if c.Status == tools.StatusExecuting {
			c.Status = tools.StatusCancelled
		}
		r.calls[c.ID] = &c
		r.order = append(r.order, c.ID)
	}
}

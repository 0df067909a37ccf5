package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/midodimori/langrepl/internal/tools"
)

// Response is a human verdict on a suspended call. The "always"
// variants also persist a rule so the question is not asked again.
type Response string

const (
	ResponseAllow       Response = "allow"
	ResponseAlwaysAllow Response = "always_allow"
	ResponseDeny        Response = "deny"
	ResponseAlwaysDeny  Response = "always_deny"
)

// Allowed reports whether the verdict lets the call run.
func (r Response) Allowed() bool {
	return r == ResponseAllow || r == ResponseAlwaysAllow
}

// Persistent reports whether the verdict should be written back as a
// rule.
func (r Response) Persistent() bool {
	return r == ResponseAlwaysAllow || r == ResponseAlwaysDeny
}

// Request is one suspended call awaiting a verdict, keyed by call ID.
type Request struct {
	CallID    string         `json:"call_id"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recorder receives every resolved decision for the audit trail.
// The thread store implements it.
type Recorder interface {
	RecordDecision(callID, tool, effect, reason string) error
}

// Manager parks calls whose decision is AskUser until a human responds.
// Each suspended call blocks only its own goroutine; unrelated calls
// keep flowing, and a verdict can arrive at any later time in any
// order.
type Manager struct {
	mu       sync.Mutex
	pending  map[string]pendingReq
	recorder Recorder
}

type pendingReq struct {
	req Request
	ch  chan Response
}

// NewManager creates a manager. recorder may be nil.
func NewManager(recorder Recorder) *Manager {
	return &Manager{
		pending:  make(map[string]pendingReq),
		recorder: recorder,
	}
}

// Ask suspends call until a verdict arrives or the context expires.
// Context expiry counts as a denial of this one call, never of the
// whole session.
func (m *Manager) Ask(ctx context.Context, call tools.Call) (Response, error) {
	req := Request{
		CallID:    call.ID,
		Tool:      call.Name,
		Args:      call.Args,
		CreatedAt: time.Now(),
	}
	ch := make(chan Response, 1)

	m.mu.Lock()
	if _, exists := m.pending[call.ID]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("call %s already awaiting approval", call.ID)
	}
	m.pending[call.ID] = pendingReq{req: req, ch: ch}
	m.mu.Unlock()

	select {
	case resp := <-ch:
		m.cleanup(call.ID)
		m.record(call, string(resp), "user verdict")
		return resp, nil
	case <-ctx.Done():
		m.cleanup(call.ID)
		m.record(call, string(ResponseDeny), "approval wait cancelled")
		return ResponseDeny, ctx.Err()
	}
}

// Respond delivers a verdict for a suspended call.
func (m *Manager) Respond(callID string, resp Response) error {
	m.mu.Lock()
	p, ok := m.pending[callID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending approval for call %s", callID)
	}
	select {
	case p.ch <- resp:
	default:
	}
	return nil
}

// Pending lists suspended calls, oldest first.
func (m *Manager) Pending() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := make([]Request, 0, len(m.pending))
	for _, p := range m.pending {
		reqs = append(reqs, p.req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.Before(reqs[j].CreatedAt) })
	return reqs
}

// Record writes a decision that did not pass through Ask, such as a
// rule-driven allow or deny.
func (m *Manager) Record(call tools.Call, effect Effect, reason string) {
	m.record(call, string(effect), reason)
}

func (m *Manager) record(call tools.Call, effect, reason string) {
	if m.recorder == nil {
		return
	}
	_ = m.recorder.RecordDecision(call.ID, call.Name, effect, reason)
}

func (m *Manager) cleanup(callID string) {
	m.mu.Lock()
	delete(m.pending, callID)
	m.mu.Unlock()
}

// Close denies every still-suspended call. Used on shutdown so no Ask
// blocks past the session's lifetime.
func (m *Manager) Close() {
	m.mu.Lock()
	pending := make([]pendingReq, 0, len(m.pending))
	for _, p := range m.pending {
		pending = append(pending, p)
	}
	m.mu.Unlock()
	for _, p := range pending {
		select {
		case p.ch <- ResponseDeny:
		default:
		}
	}
}

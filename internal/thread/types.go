// Package thread provides durable, branchable conversation history:
// append-only checkpoint persistence on sqlite and the resume, branch,
// compress, and clear operations built on top of it.
package thread

import (
	"errors"
	"time"

	"github.com/midodimori/langrepl/internal/tools"
)

var (
	// ErrNotFound reports an unknown thread or checkpoint.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a checkpoint append whose sequence is not
	// exactly last+1. The caller must reload the latest checkpoint and
	// retry; the store never overwrites silently.
	ErrConflict = errors.New("sequence conflict")
)

// Thread identifies one independently resumable conversation history.
type Thread struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parent_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Message is a single conversation turn.
type Message struct {
	Role       string    `json:"role"` // "system", "user", "assistant", "tool"
	Content    string    `json:"content"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	IsError    bool      `json:"is_error,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// Todo is one task tracked by the agent's planning tool. The engine
// persists it opaquely.
type Todo struct {
	Content string `json:"content"`
	Status  string `json:"status"` // pending, in_progress, completed
}

// Usage accumulates token and cost counters across a thread.
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add returns the element-wise sum of two usage counters.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		Cost:         u.Cost + other.Cost,
	}
}

// Checkpoint is one durably committed snapshot of a thread's state.
// Sequence numbers within a thread are contiguous starting at 1.
type Checkpoint struct {
	ThreadID     string            `json:"thread_id"`
	Seq          int64             `json:"seq"`
	Messages     []Message         `json:"messages"`
	PendingCalls []tools.Call      `json:"pending_calls,omitempty"`
	Todos        []Todo            `json:"todos,omitempty"`
	Files        map[string]string `json:"files,omitempty"`
	Usage        Usage             `json:"usage"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Clone returns a deep copy so the live view can be mutated without
// aliasing persisted state.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	out.PendingCalls = append([]tools.Call(nil), c.PendingCalls...)
	out.Todos = append([]Todo(nil), c.Todos...)
	if c.Files != nil {
		out.Files = make(map[string]string, len(c.Files))
		for k, v := range c.Files {
			out.Files[k] = v
		}
	}
	return &out
}

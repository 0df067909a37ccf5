// Package tools defines the tool identifier scheme, the tool call state
// machine, and the dispatch registry used by the agent session.
package tools

import (
	"context"
	"fmt"
	"strings"
)

// Category is the first component of a tool identifier.
type Category string

const (
	// CategoryImpl covers user-facing built-in tools (file system, terminal, web).
	CategoryImpl Category = "impl"
	// CategoryInternal covers bookkeeping tools (todo, memory) that never
	// require approval.
	CategoryInternal Category = "internal"
	// CategoryMCP covers tools exposed by external MCP servers.
	CategoryMCP Category = "mcp"
)

// Ident addresses a callable action as category:module:function.
type Ident struct {
	Category Category
	Module   string
	Function string
}

// String renders the identifier in its wire form.
func (id Ident) String() string {
	return string(id.Category) + ":" + id.Module + ":" + id.Function
}

// ParseIdent parses a category:module:function reference.
func ParseIdent(s string) (Ident, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Ident{}, fmt.Errorf("invalid tool reference %q: want category:module:function", s)
	}
	cat := Category(parts[0])
	switch cat {
	case CategoryImpl, CategoryInternal, CategoryMCP:
	default:
		return Ident{}, fmt.Errorf("unknown tool category %q in %q", parts[0], s)
	}
	if parts[1] == "" || parts[2] == "" {
		return Ident{}, fmt.Errorf("invalid tool reference %q: empty segment", s)
	}
	return Ident{Category: cat, Module: parts[1], Function: parts[2]}, nil
}

// Status is the lifecycle state of a tool call.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusDenied, StatusCompleted, StatusErrored, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving to next.
// Pending → Approved|Denied; Approved → Executing|Cancelled;
// Executing → Completed|Errored|Cancelled.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusDenied
	case StatusApproved:
		return next == StatusExecuting || next == StatusCancelled
	case StatusExecuting:
		return next == StatusCompleted || next == StatusErrored || next == StatusCancelled
	}
	return false
}

// Call is a single tool invocation emitted by a reasoning step. Once a
// call reaches a terminal status and is checkpointed it is immutable
// history.
type Call struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Status Status         `json:"status"`
	Result string         `json:"result,omitempty"`
	// Audit records every approval decision attached to this call.
	Audit []string `json:"audit,omitempty"`
}

// NewCall builds a Pending call for the given identifier.
func NewCall(id string, ident Ident, args map[string]any) Call {
	return Call{
		ID:     id,
		Name:   ident.String(),
		Args:   args,
		Status: StatusPending,
	}
}

// Ident parses the call's name triplet. Calls built through NewCall
// always carry a valid triplet; names loaded from older checkpoints may
// not, in which case the zero Ident is returned.
func (c Call) Ident() Ident {
	id, err := ParseIdent(c.Name)
	if err != nil {
		return Ident{}
	}
	return id
}

// Internal reports whether this call targets a bookkeeping tool that
// bypasses approval.
func (c Call) Internal() bool {
	return strings.HasPrefix(c.Name, string(CategoryInternal)+":")
}

// SerializeArgs returns the stable string form of this call's arguments.
func (c Call) SerializeArgs() string {
	return SerializeArgs(c.Args)
}

// Handler executes one tool call and returns its textual result.
type Handler func(ctx context.Context, call Call) (string, error)

package tools

import (
	"context"
	"fmt"

	"github.com/midodimori/langrepl/internal/pattern"
)

// Registry maps tool identifiers to handlers. Registration happens at
// startup; resolution tries an exact identifier first, then glob entries
// in registration order.
type Registry struct {
	exact map[string]entry
	globs []entry
}

type entry struct {
	name    string
	handler Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[string]entry)}
}

// Register binds a handler to an identifier.
func (r *Registry) Register(ident Ident, h Handler) {
	r.exact[ident.String()] = entry{name: ident.String(), handler: h}
}

// RegisterPattern binds a handler to a glob over category:module:function,
// e.g. "mcp:github:*". The pattern must compile; malformed patterns are
// rejected here rather than at dispatch time.
func (r *Registry) RegisterPattern(namePattern string, h Handler) error {
	if _, err := pattern.Compile(namePattern); err != nil {
		return err
	}
	r.globs = append(r.globs, entry{name: namePattern, handler: h})
	return nil
}

// Resolve returns the handler for a call name, trying exact entries
// before glob entries.
func (r *Registry) Resolve(name string) (Handler, bool) {
	if e, ok := r.exact[name]; ok {
		return e.handler, true
	}
	for _, e := range r.globs {
		if pattern.MatchName(e.name, name) {
			return e.handler, true
		}
	}
	return nil, false
}

// Names returns all exactly-registered identifiers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.exact))
	for name := range r.exact {
		names = append(names, name)
	}
	return names
}

// Dispatch executes the call's handler. It is invoked only after the
// approval engine has allowed the call.
func (r *Registry) Dispatch(ctx context.Context, call Call) (string, error) {
	h, ok := r.Resolve(call.Name)
	if !ok {
		return "", fmt.Errorf("tool not found: %s", call.Name)
	}
	return h(ctx, call)
}

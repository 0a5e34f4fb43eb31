package invoke

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Router dispatches each call to the backend named by the descriptor's
// Server field. Descriptors without a server go to the fallback.
type Router struct {
	tools    Lookup
	servers  map[string]Invoker
	fallback Invoker
}

// NewRouter creates a Router. fallback may be nil, in which case calls to
// tools without a server fail.
func NewRouter(tools Lookup, servers map[string]Invoker, fallback Invoker) *Router {
	return &Router{tools: tools, servers: maps.Clone(servers), fallback: fallback}
}

// Servers returns the configured server names, sorted.
func (r *Router) Servers() []string {
	return slices.Sorted(maps.Keys(r.servers))
}

// Invoke routes one call.
func (r *Router) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	d, err := r.tools.Get(name)
	if err != nil {
		return nil, err
	}
	if d.Server == "" {
		if r.fallback == nil {
			return nil, fmt.Errorf("%w: %s has no server", ErrUnknownServer, name)
		}
		return r.fallback.Invoke(ctx, name, args)
	}
	backend, ok := r.servers[d.Server]
	if !ok {
		return nil, fmt.Errorf("%w: %q (tool %s)", ErrUnknownServer, d.Server, name)
	}
	return backend.Invoke(ctx, name, args)
}

package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/flemzord/mcpexec/internal/security"
)

// ToolHandler answers tool calls arriving over the bridge.
type ToolHandler interface {
	CallTool(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// ToolHandlerFunc adapts a function to ToolHandler.
type ToolHandlerFunc func(ctx context.Context, name string, args json.RawMessage) (any, error)

// CallTool calls f.
func (f ToolHandlerFunc) CallTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	return f(ctx, name, args)
}

// Invoker runs a tool on its backend.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
}

// ArgumentValidator checks decoded arguments against a tool's schema.
type ArgumentValidator interface {
	ValidateArguments(name string, args any) error
}

// Gate is the ToolHandler used for real executions. It only lets the
// child reach the tools selected for the run, and checks every payload
// before it reaches a backend.
type Gate struct {
	// Permitted lists the tool names the artifact was synthesized for.
	Permitted []string
	Validator ArgumentValidator
	Invoker   Invoker
	// Limiter, if non-nil, charges one tool_call per call.
	Limiter         *security.RateLimiter
	MaxPayloadBytes int
	MaxJSONDepth    int
}

var _ ToolHandler = (*Gate)(nil)

// CallTool validates and forwards one call.
func (g *Gate) CallTool(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	if !slices.Contains(g.Permitted, name) {
		return nil, fmt.Errorf("%w: %s", ErrToolNotPermitted, name)
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := security.ValidatePayload(raw, g.MaxPayloadBytes, g.MaxJSONDepth); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%s: arguments must be a JSON object: %w", name, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	if g.Limiter != nil {
		if err := g.Limiter.Allow(security.KindToolCall); err != nil {
			return nil, err
		}
	}
	if g.Validator != nil {
		if err := g.Validator.ValidateArguments(name, args); err != nil {
			return nil, err
		}
	}
	if g.Invoker == nil {
		return nil, ErrNoToolBackend
	}
	return g.Invoker.Invoke(ctx, name, args)
}

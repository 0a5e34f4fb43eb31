// Package invoke contains the backends that answer tool calls made by a
// running artifact: canned descriptor examples, remote MCP servers, and a
// router choosing between them per tool.
package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/flemzord/mcpexec/internal/tool"
)

// Invoker runs one tool call.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, name string, args map[string]any) (any, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	return f(ctx, name, args)
}

// Lookup resolves a tool name to its descriptor. *tool.Registry satisfies it.
type Lookup interface {
	Get(name string) (tool.Descriptor, error)
}

// ExampleInvoker answers calls from the examples in each descriptor. An
// example whose input equals the call arguments wins; otherwise the first
// example is used. It lets artifacts run end to end without a live backend.
type ExampleInvoker struct {
	tools Lookup
}

// NewExampleInvoker creates an ExampleInvoker over tools.
func NewExampleInvoker(tools Lookup) *ExampleInvoker {
	return &ExampleInvoker{tools: tools}
}

// Invoke returns the matching example output.
func (e *ExampleInvoker) Invoke(_ context.Context, name string, args map[string]any) (any, error) {
	d, err := e.tools.Get(name)
	if err != nil {
		return nil, err
	}
	if len(d.Examples) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoExample, name)
	}
	want := normalize(args)
	for _, ex := range d.Examples {
		if reflect.DeepEqual(normalize(ex.Input), want) {
			return ex.Output, nil
		}
	}
	return d.Examples[0].Output, nil
}

// normalize round-trips v through JSON so numbers and nested maps compare
// the same way whether they came from a file or from the bridge.
func normalize(v map[string]any) any {
	if len(v) == 0 {
		return map[string]any{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

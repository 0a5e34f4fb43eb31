package invoke

import "errors"

var (
	// ErrNoExample is returned by ExampleInvoker for a tool without examples.
	ErrNoExample = errors.New("invoke: tool has no examples")

	// ErrUnknownServer is returned when a descriptor names a server that
	// has no configured backend.
	ErrUnknownServer = errors.New("invoke: unknown tool server")

	// ErrToolFailed wraps an error result reported by a remote tool.
	ErrToolFailed = errors.New("invoke: tool reported an error")
)

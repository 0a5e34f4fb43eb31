package sandbox

import "errors"

var (
	// ErrToolNotPermitted is returned to the child when it calls a tool
	// outside the set selected for the execution.
	ErrToolNotPermitted = errors.New("sandbox: tool not permitted for this execution")

	// ErrNoToolBackend is returned to the child when the execution has no
	// tool handler.
	ErrNoToolBackend = errors.New("sandbox: no tool backend configured")

	// ErrUnknownTier is returned for a tier name the executor does not know.
	ErrUnknownTier = errors.New("sandbox: unknown tier")
)

// ErrContainerUnavailable is returned when the container tier is selected
// but no container runtime can be found. The executor never falls back to
// a weaker tier.
var ErrContainerUnavailable = errors.New("sandbox: container runtime not available")

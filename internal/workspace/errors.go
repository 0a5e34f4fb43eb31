package workspace

import "errors"

var (
	// ErrNotFound is returned for an unknown workspace id.
	ErrNotFound = errors.New("workspace: not found")

	// ErrInvalidTransition is returned when a status change would skip or
	// revert a lifecycle step.
	ErrInvalidTransition = errors.New("workspace: invalid status transition")
)

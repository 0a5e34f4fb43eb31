package engine

import "errors"

var (
	// ErrNoRelevantTools is reported when discovery selects nothing.
	ErrNoRelevantTools = errors.New("no relevant tools")

	// ErrSecurityRefused is reported when validation or an approver
	// rejects the artifact.
	ErrSecurityRefused = errors.New("security: refused")

	// ErrRateLimited is reported when the execution budget is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout is reported when the sandbox wall-clock limit or the
	// caller's context ends the run.
	ErrTimeout = errors.New("timeout")
)

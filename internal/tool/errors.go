package tool

import "errors"

// Registry errors.
var (
	ErrToolNotFound = errors.New("tool not found")

	// ErrMalformedDescriptor covers a missing name, duplicate parameters and
	// any other normalization failure.
	ErrMalformedDescriptor = errors.New("malformed tool descriptor")

	// ErrIndexFailed means descriptor files were found but none indexed.
	ErrIndexFailed = errors.New("no tool descriptor could be indexed")

	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Policy and approval errors.
var (
	// ErrToolInMultipleLists rejects a policy naming one tool at two levels.
	ErrToolInMultipleLists = errors.New("tool appears in conflicting policy lists")

	ErrApprovalTimeout = errors.New("approval request timed out")

	// ErrApprovalPending rejects a second request reusing a pending ID.
	ErrApprovalPending = errors.New("approval already pending")
)

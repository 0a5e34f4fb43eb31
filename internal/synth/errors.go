package synth

import "errors"

var (
	// ErrTemplatesUnavailable is returned when no template candidate for a
	// dialect could be loaded.
	ErrTemplatesUnavailable = errors.New("templates unavailable")

	// ErrUnknownDialect is returned for an unsupported dialect name.
	ErrUnknownDialect = errors.New("unknown dialect")

	// ErrNoTools is returned when a request selects no tools.
	ErrNoTools = errors.New("no tools to synthesize")
)

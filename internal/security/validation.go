package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Defaults for PayloadLimits.
const (
	DefaultMaxPayloadBytes = 1 << 20 // 1 MiB
	DefaultMaxJSONDepth    = 32
)

// Payload errors.
var (
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// PayloadLimits bound a JSON document crossing the sandbox bridge. Zero
// fields select the defaults.
type PayloadLimits struct {
	MaxBytes int
	MaxDepth int
}

// Check rejects data unless it is exactly one JSON value within the size
// and nesting limits. The depth walk streams tokens, so a hostile document
// is refused before it is ever materialized.
func (l PayloadLimits) Check(data []byte) error {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxPayloadBytes
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxJSONDepth
	}
	if len(data) > l.MaxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(data), l.MaxBytes)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth, values := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		if depth == 0 {
			values++
			if values > 1 {
				return fmt.Errorf("%w: trailing data after the first value", ErrInvalidJSON)
			}
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > l.MaxDepth {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, l.MaxDepth)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
	if values == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidJSON)
	}
	if depth != 0 {
		return fmt.Errorf("%w: unexpected end of input", ErrInvalidJSON)
	}
	return nil
}

// ValidatePayload checks data against PayloadLimits{maxBytes, maxDepth}.
func ValidatePayload(data []byte, maxBytes, maxDepth int) error {
	return PayloadLimits{MaxBytes: maxBytes, MaxDepth: maxDepth}.Check(data)
}

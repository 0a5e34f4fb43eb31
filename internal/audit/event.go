// Package audit keeps the append-only record of what the engine did: every
// execution, security decision, failure and detected anomaly. Events are
// totally ordered by a process-wide sequence number.
package audit

import (
	"time"
)

// Kind classifies an event.
type Kind string

// Event kinds.
const (
	KindExecution Kind = "execution"
	KindSecurity  Kind = "security"
	KindError     Kind = "error"
	KindAnomaly   Kind = "anomaly"
)

// Severity grades an event.
type Severity string

// Event severities, least severe first.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is one audit record. Sequence and Timestamp are assigned by Log.Append.
type Event struct {
	Sequence    uint64         `json:"sequence"`
	Timestamp   time.Time      `json:"timestamp"`
	Kind        Kind           `json:"kind"`
	Severity    Severity       `json:"severity"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Filter narrows a query over stored events. Zero fields match everything.
type Filter struct {
	Kind          Kind
	ExecutionID   string
	AfterSequence uint64
	// Limit caps the result; the newest matching events are kept.
	Limit int
}

// Match reports whether e passes f.
func (f Filter) Match(e Event) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.ExecutionID != "" && e.ExecutionID != f.ExecutionID {
		return false
	}
	return e.Sequence > f.AfterSequence
}

func clonePayload(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return clonePayload(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	default:
		return v
	}
}

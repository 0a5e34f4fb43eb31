// Package execution defines the result contract returned to callers of the
// execution engine. It has no dependencies on the engine internals so hosts
// (CLI, gateway, MCP server) can share it.
package execution

import "time"

// Tier names the sandbox isolation strength used for a run.
type Tier string

// Isolation tiers, weakest first.
const (
	TierProcess   Tier = "process"
	TierVM        Tier = "vm"
	TierContainer Tier = "container"
)

// ErrorTimeout is the Error value of a run stopped by its wall-clock limit
// or by cancellation.
const ErrorTimeout = "timeout"

// Metrics are the measured costs of one run.
type Metrics struct {
	WallMS          int64 `json:"wall_ms"`
	MemoryBytes     int64 `json:"memory_bytes"`
	TokensInSummary int   `json:"tokens_in_summary"`
}

// Wall returns WallMS as a duration.
func (m Metrics) Wall() time.Duration {
	return time.Duration(m.WallMS) * time.Millisecond
}

// Result is the outcome of one execution. Exactly one of Output and Error
// is meaningful: Output when Success is true, Error otherwise.
type Result struct {
	ExecutionID string   `json:"execution_id"`
	Success     bool     `json:"success"`
	Output      any      `json:"output,omitempty"`
	Error       string   `json:"error,omitempty"`
	Summary     string   `json:"summary"`
	Metrics     Metrics  `json:"metrics"`
	PIIRedacted bool     `json:"pii_redacted"`
	Cached      bool     `json:"cached,omitempty"`
	Tier        Tier     `json:"tier,omitempty"`
	RiskLevel   string   `json:"risk_level,omitempty"`
	Tools       []string `json:"tools,omitempty"`
	WorkspaceID string   `json:"workspace_id,omitempty"`
}

// TimedOut reports whether the run was stopped by its limit or cancelled.
func (r Result) TimedOut() bool {
	return !r.Success && r.Error == ErrorTimeout
}

// Failed builds an unsuccessful result carrying err and summary.
func Failed(id, err, summary string) Result {
	return Result{ExecutionID: id, Error: err, Summary: summary}
}

// Package engine turns a natural-language intent into a sandboxed tool
// execution. One call walks discovery, synthesis, validation, cache lookup,
// execution, redaction and summarization in order, and always ends with an
// audit event.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/mcpexec/internal/audit"
	"github.com/flemzord/mcpexec/internal/cache"
	"github.com/flemzord/mcpexec/internal/discovery"
	"github.com/flemzord/mcpexec/internal/sandbox"
	"github.com/flemzord/mcpexec/internal/security"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/internal/tool"
	"github.com/flemzord/mcpexec/pkg/execution"
)

const tracerName = "github.com/flemzord/mcpexec/internal/engine"

// DefaultMaxTools caps the tools selected for one intent.
const DefaultMaxTools = 5

type stage string

const (
	stageReceived     stage = "received"
	stageDiscovering  stage = "discovering"
	stageSynthesizing stage = "synthesizing"
	stageValidating   stage = "validating"
	stageCacheLookup  stage = "cache_lookup"
	stageExecuting    stage = "executing"
)

// Config tunes the engine. Zero values select the defaults.
type Config struct {
	MaxTools        int           `yaml:"max_tools"`
	Dialect         synth.Dialect `yaml:"dialect"`
	SummaryLimit    int           `yaml:"summary_limit"`
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
	// RemoteApproval holds artifacts for an out-of-band decision (see
	// Engine.Approvals) when no Approver is set.
	RemoteApproval bool `yaml:"remote_approval"`
	// Policy filters and flags tools by name.
	Policy tool.Policy `yaml:"-"`
	// Bridge payload limits; zero uses the security package defaults.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`
	MaxJSONDepth    int `yaml:"max_json_depth"`
}

func (c *Config) defaults() {
	if c.MaxTools <= 0 {
		c.MaxTools = DefaultMaxTools
	}
	if c.Dialect == "" {
		c.Dialect = synth.TypedScript
	}
	if c.SummaryLimit <= 0 {
		c.SummaryLimit = DefaultSummaryLimit
	}
	if c.ApprovalTimeout <= 0 {
		c.ApprovalTimeout = 5 * time.Minute
	}
}

// Deps are the collaborators an Engine drives. Registry, Index,
// Synthesizer, Executor, Cache and Audit are required.
type Deps struct {
	Registry    *tool.Registry
	Index       *discovery.Index
	Synthesizer *synth.Synthesizer
	Validator   *security.StaticValidator
	Executor    *sandbox.Executor
	Cache       *cache.Cache
	Audit       *audit.Log
	Detector    *audit.Detector
	// Invoker answers tool calls made by artifacts.
	Invoker sandbox.Invoker
	// Approver, when set, is asked before running an artifact that needs
	// approval.
	Approver tool.ApprovalRequester
	Limiter  *security.RateLimiter
	Metrics  *Metrics
}

// Engine runs intents. It is safe for concurrent use.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	approvals *tool.Approvals
}

// New creates an Engine.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Engine, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("engine: registry is required")
	case deps.Index == nil:
		return nil, errors.New("engine: discovery index is required")
	case deps.Synthesizer == nil:
		return nil, errors.New("engine: synthesizer is required")
	case deps.Executor == nil:
		return nil, errors.New("engine: executor is required")
	case deps.Cache == nil:
		return nil, errors.New("engine: cache is required")
	case deps.Audit == nil:
		return nil, errors.New("engine: audit log is required")
	}
	if deps.Validator == nil {
		deps.Validator = security.NewStaticValidator(security.StaticConfig{})
	}
	if deps.Detector == nil {
		deps.Detector = audit.NewDetector(audit.DetectorConfig{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()
	e := &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "engine"),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	if deps.Approver != nil || cfg.RemoteApproval {
		e.approvals = tool.NewApprovals(deps.Approver, cfg.ApprovalTimeout)
	}
	return e, nil
}

// Approvals returns the broker holding artifacts that await a decision, or
// nil when approval is not configured.
func (e *Engine) Approvals() *tool.Approvals {
	return e.approvals
}

// Request is one intent to execute.
type Request struct {
	Intent string
	// Dialect overrides the configured dialect.
	Dialect synth.Dialect
	// Limits override the sandbox tier limits field by field.
	Limits sandbox.Limits
	// NoCache skips the result cache for both lookup and store.
	NoCache bool
}

// invocation is the per-call state threaded through the stages.
type invocation struct {
	id      string
	req     Request
	start   time.Time
	stage   stage
	pii     *security.PIITokenizer
	tools   []string
	digest  string
	risk    security.Assessment
	report  security.Report
	logger  *slog.Logger
	sawRisk bool
}

// Search returns the tools discovery would select for intent, without
// running anything. Denied tools are left out.
func (e *Engine) Search(ctx context.Context, intent string, limit int) []discovery.Result {
	var out []discovery.Result
	for _, r := range e.deps.Index.Search(ctx, intent, 0) {
		if e.cfg.Policy.Resolve(r.Descriptor.Name) == tool.ApprovalDeny {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Execute runs req and returns its result. Failures at any stage are
// reported in the result; Execute never returns an error.
func (e *Engine) Execute(ctx context.Context, req Request) execution.Result {
	inv := &invocation{
		id:    uuid.NewString(),
		req:   req,
		start: e.now(),
		stage: stageReceived,
		pii:   security.NewPIITokenizer(),
	}
	inv.logger = e.logger.With("execution_id", inv.id)
	if inv.req.Dialect == "" {
		inv.req.Dialect = e.cfg.Dialect
	}

	ctx, span := e.tracer.Start(ctx, "engine.execute", trace.WithAttributes(
		attribute.String("execution.id", inv.id),
		attribute.String("execution.dialect", string(inv.req.Dialect)),
	))
	defer span.End()

	res := e.run(ctx, inv)

	span.SetAttributes(
		attribute.String("execution.stage", string(inv.stage)),
		attribute.Bool("execution.success", res.Success),
		attribute.Bool("execution.cached", res.Cached),
	)
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}
	e.deps.Metrics.execution(inv.stage, res.Success, string(res.Tier), e.now().Sub(inv.start).Seconds())
	return res
}

func (e *Engine) run(ctx context.Context, inv *invocation) execution.Result {
	if e.deps.Limiter != nil {
		if err := e.deps.Limiter.Allow(security.KindExecution); err != nil {
			return e.fail(ctx, inv, audit.KindError, audit.SeverityWarning,
				fmt.Errorf("%w: %w", ErrRateLimited, err), "Rate limited: too many executions, retry later")
		}
	}

	inv.stage = stageDiscovering
	selected := e.discover(ctx, inv)
	if len(selected) == 0 {
		return e.fail(ctx, inv, audit.KindExecution, audit.SeverityWarning,
			ErrNoRelevantTools, "No relevant tools found for this intent")
	}

	inv.stage = stageSynthesizing
	art, err := e.synthesize(ctx, inv, selected)
	if err != nil {
		summary := "Synthesis failed: " + err.Error()
		if errors.Is(err, synth.ErrTemplatesUnavailable) {
			summary = "Templates unavailable: " + err.Error()
		}
		return e.fail(ctx, inv, audit.KindError, audit.SeverityHigh, err, summary)
	}

	inv.stage = stageValidating
	if res, refused := e.validate(ctx, inv, art); refused {
		return res
	}

	inv.stage = stageCacheLookup
	if !inv.req.NoCache {
		if entry, ok := e.deps.Cache.Get(inv.digest); ok {
			e.deps.Metrics.cacheLookup("hit")
			hit := entry.Value
			hit.Cached = true
			hit.Metrics.WallMS = e.now().Sub(inv.start).Milliseconds()
			return e.finish(ctx, inv, hit, map[string]any{"cache": "hit"})
		}
		e.deps.Metrics.cacheLookup("miss")
	}

	inv.stage = stageExecuting
	return e.finish(ctx, inv, e.execute(ctx, inv, art), nil)
}

func (e *Engine) discover(ctx context.Context, inv *invocation) []tool.Descriptor {
	_, span := e.tracer.Start(ctx, "engine.discover")
	defer span.End()

	results := e.Search(ctx, inv.req.Intent, e.cfg.MaxTools)
	selected := make([]tool.Descriptor, 0, len(results))
	for _, r := range results {
		selected = append(selected, r.Descriptor)
		inv.tools = append(inv.tools, r.Descriptor.Name)
	}
	span.SetAttributes(attribute.StringSlice("tools", inv.tools))
	inv.logger.Debug("tools selected", "tools", inv.tools)
	return selected
}

func (e *Engine) synthesize(ctx context.Context, inv *invocation, tools []tool.Descriptor) (synth.Artifact, error) {
	_, span := e.tracer.Start(ctx, "engine.synthesize")
	defer span.End()

	art, err := e.deps.Synthesizer.Synthesize(synth.Request{
		Tools:   tools,
		Dialect: inv.req.Dialect,
		Intent:  inv.req.Intent,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return art, err
	}
	inv.digest = art.Digest()
	span.SetAttributes(attribute.Int("artifact.estimated_cost", art.EstimatedCost))
	return art, nil
}

// validate runs the static checks and, when needed, the approval flow. It
// reports true with a terminal result when the artifact must not run.
func (e *Engine) validate(ctx context.Context, inv *invocation, art synth.Artifact) (execution.Result, bool) {
	ctx, span := e.tracer.Start(ctx, "engine.validate")
	defer span.End()

	inv.report = e.deps.Validator.Validate(art)
	inv.risk = security.Assess(art, inv.report)
	inv.sawRisk = true
	span.SetAttributes(
		attribute.Int("risk.score", inv.risk.Score),
		attribute.String("risk.level", string(inv.risk.Level)),
	)

	if inv.report.Refused {
		return e.refuse(ctx, inv, fmt.Errorf("%w (risk score %d)", ErrSecurityRefused, inv.report.RiskScore)), true
	}

	asked := e.cfg.Policy.NeedsApproval(art.Tools)
	if !inv.report.RequiresApproval && len(asked) == 0 {
		return execution.Result{}, false
	}
	if err := e.approve(ctx, inv, art, asked); err != nil {
		return e.refuse(ctx, inv, err), true
	}
	return execution.Result{}, false
}

func (e *Engine) approve(ctx context.Context, inv *invocation, art synth.Artifact, asked []string) error {
	if e.approvals == nil {
		inv.logger.Warn("artifact requires approval but no approver is configured; running", "risk_score", inv.report.RiskScore)
		e.record(ctx, audit.Event{
			Kind:        audit.KindSecurity,
			Severity:    audit.SeverityWarning,
			ExecutionID: inv.id,
			Payload: map[string]any{
				"approval":   "unavailable",
				"risk_score": inv.report.RiskScore,
			},
		})
		return nil
	}

	reasons := make([]string, 0, len(inv.report.Issues)+len(asked))
	for _, issue := range inv.report.Issues {
		reasons = append(reasons, string(issue.Kind)+": "+issue.Detail)
	}
	for _, name := range asked {
		reasons = append(reasons, "policy: "+name+" requires approval")
	}

	resp, err := e.approvals.Request(ctx, tool.ApprovalRequest{
		ID:          uuid.NewString(),
		ExecutionID: inv.id,
		Intent:      inv.req.Intent,
		Tools:       art.Tools,
		RiskScore:   inv.report.RiskScore,
		Reasons:     reasons,
		Source:      art.Source,
	})
	if err != nil {
		return fmt.Errorf("%w: approval failed: %w", ErrSecurityRefused, err)
	}
	if !resp.Approved {
		reason := resp.Reason
		if reason == "" {
			reason = "denied by approver"
		}
		return fmt.Errorf("%w: %s", ErrSecurityRefused, reason)
	}
	e.record(ctx, audit.Event{
		Kind:        audit.KindSecurity,
		Severity:    audit.SeverityInfo,
		ExecutionID: inv.id,
		Payload:     map[string]any{"approval": "granted", "risk_score": inv.report.RiskScore},
	})
	return nil
}

func (e *Engine) refuse(ctx context.Context, inv *invocation, err error) execution.Result {
	severity := audit.SeverityHigh
	if inv.report.Catastrophic() {
		severity = audit.SeverityCritical
	}
	detail := "risk score " + fmt.Sprint(inv.report.RiskScore)
	if len(inv.report.Issues) > 0 {
		detail = inv.report.Issues[0].Detail
	}
	res := e.fail(ctx, inv, audit.KindSecurity, severity, err, "Security: refused, "+detail)
	e.observe(ctx, inv, res)
	return res
}

func (e *Engine) execute(ctx context.Context, inv *invocation, art synth.Artifact) execution.Result {
	tier := sandbox.TierFor(inv.risk.Level)
	ctx, span := e.tracer.Start(ctx, "engine.sandbox", trace.WithAttributes(attribute.String("sandbox.tier", string(tier))))
	defer span.End()

	gate := &sandbox.Gate{
		Permitted:       art.Tools,
		Validator:       e.deps.Registry,
		Invoker:         e.deps.Invoker,
		Limiter:         e.deps.Limiter,
		MaxPayloadBytes: e.cfg.MaxPayloadBytes,
		MaxJSONDepth:    e.cfg.MaxJSONDepth,
	}
	req := sandbox.Request{
		ExecutionID: inv.id,
		Artifact:    art,
		Tier:        tier,
		Limits:      inv.req.Limits,
		Handler:     gate,
	}
	run := func() (execution.Result, bool) {
		res := e.deps.Executor.Execute(ctx, req)
		// Cancelled runs never reach the cache.
		return res, res.Success && ctx.Err() == nil
	}

	var res execution.Result
	if inv.req.NoCache {
		res, _ = run()
	} else {
		var shared bool
		res, shared = e.deps.Cache.Do(inv.digest, run)
		res.Cached = shared
	}
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

// finish redacts, summarizes and records a result that reached the cache
// or the sandbox.
func (e *Engine) finish(ctx context.Context, inv *invocation, res execution.Result, extra map[string]any) execution.Result {
	res.ExecutionID = inv.id
	res.RiskLevel = string(inv.risk.Level)
	if len(res.Tools) == 0 {
		res.Tools = inv.tools
	}

	out, outHit := inv.pii.TokenizeValue(res.Output)
	res.Output = out
	errText, errHit := inv.pii.Tokenize(res.Error)
	res.Error = errText
	res.Summary, res.PIIRedacted = e.summary(inv, summarize(res))
	res.PIIRedacted = res.PIIRedacted || outHit || errHit
	res.Metrics.TokensInSummary = estimateTokens(res.Summary)

	payload := map[string]any{
		"stage":        string(inv.stage),
		"success":      res.Success,
		"cached":       res.Cached,
		"tier":         string(res.Tier),
		"risk_level":   res.RiskLevel,
		"risk_score":   inv.risk.Score,
		"tools":        res.Tools,
		"digest":       inv.digest,
		"workspace_id": res.WorkspaceID,
		"wall_ms":      res.Metrics.WallMS,
		"memory_bytes": res.Metrics.MemoryBytes,
		"pii_redacted": res.PIIRedacted,
	}
	if res.Error != "" {
		payload["error"] = res.Error
	}
	for k, v := range extra {
		payload[k] = v
	}
	severity := audit.SeverityInfo
	if !res.Success {
		severity = audit.SeverityWarning
	}
	e.record(ctx, audit.Event{Kind: audit.KindExecution, Severity: severity, ExecutionID: inv.id, Payload: payload})
	e.observe(ctx, inv, res)

	inv.logger.Info("execution finished",
		"success", res.Success,
		"cached", res.Cached,
		"tier", res.Tier,
		"wall_ms", res.Metrics.WallMS,
	)
	return res
}

// fail ends an invocation that never produced a sandbox result.
func (e *Engine) fail(ctx context.Context, inv *invocation, kind audit.Kind, severity audit.Severity, err error, summary string) execution.Result {
	errText, errHit := inv.pii.Tokenize(err.Error())
	res := execution.Failed(inv.id, errText, "")
	res.Tools = inv.tools
	if inv.sawRisk {
		res.RiskLevel = string(inv.risk.Level)
	}
	var sumHit bool
	res.Summary, sumHit = e.summary(inv, summary)
	res.PIIRedacted = errHit || sumHit
	res.Metrics.WallMS = e.now().Sub(inv.start).Milliseconds()
	res.Metrics.TokensInSummary = estimateTokens(res.Summary)

	intent, _ := inv.pii.Tokenize(inv.req.Intent)
	payload := map[string]any{
		"stage":   string(inv.stage),
		"success": false,
		"error":   res.Error,
		"intent":  intent,
		"tools":   inv.tools,
	}
	if inv.sawRisk {
		payload["risk_score"] = inv.report.RiskScore
		payload["risk_level"] = res.RiskLevel
		issues := make([]any, 0, len(inv.report.Issues))
		for _, i := range inv.report.Issues {
			issues = append(issues, map[string]any{
				"kind":     string(i.Kind),
				"severity": string(i.Severity),
				"location": i.Location,
				"detail":   i.Detail,
			})
		}
		payload["issues"] = issues
	}
	e.record(ctx, audit.Event{Kind: kind, Severity: severity, ExecutionID: inv.id, Payload: payload})

	inv.logger.Info("execution stopped", "stage", inv.stage, "error", res.Error)
	return res
}

func (e *Engine) summary(inv *invocation, s string) (string, bool) {
	s, hit := inv.pii.Tokenize(s)
	return truncate(s, e.cfg.SummaryLimit), hit
}

// observe feeds the detector and records what it finds.
func (e *Engine) observe(ctx context.Context, inv *invocation, res execution.Result) {
	anomalies := e.deps.Detector.Observe(audit.Observation{
		ExecutionID:  inv.id,
		Success:      res.Success,
		Cached:       res.Cached,
		WallMS:       res.Metrics.WallMS,
		MemoryBytes:  res.Metrics.MemoryBytes,
		Catastrophic: inv.report.Catastrophic(),
	})
	for _, a := range anomalies {
		e.deps.Metrics.anomaly(string(a.Kind))
		inv.logger.Warn("anomaly detected", "kind", a.Kind, "detail", a.Detail)
		e.record(ctx, a.Event())
	}
}

// record appends to the audit log. It outlives the caller's context so a
// cancelled run is still recorded.
func (e *Engine) record(ctx context.Context, ev audit.Event) {
	if _, err := e.deps.Audit.Append(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Error("audit append failed", "kind", ev.Kind, "execution_id", ev.ExecutionID, "error", err)
	}
}

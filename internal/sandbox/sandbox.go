// Package sandbox runs synthesized artifacts in an isolated child process
// and answers the tool calls they make. Three tiers trade start-up cost for
// isolation: a plain harness child, a harness child with the restricted
// interpreter profile and tighter limits, and a container.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"time"

	"github.com/flemzord/mcpexec/internal/cleanup"
	"github.com/flemzord/mcpexec/internal/harness"
	"github.com/flemzord/mcpexec/internal/security"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/internal/workspace"
	"github.com/flemzord/mcpexec/pkg/execution"
)

// NetworkPolicy controls outbound network access from the container tier.
// The process tiers have no network namespace of their own; the restricted
// profile removes the interpreter's network packages instead.
type NetworkPolicy string

// Network policies.
const (
	NetworkNone   NetworkPolicy = "none"
	NetworkEgress NetworkPolicy = "egress"
)

// Limits bound one execution.
type Limits struct {
	Wall        time.Duration `yaml:"wall"`
	MemoryBytes int64         `yaml:"memory_bytes"`
	// CPUShare is the fraction of one CPU the child may use on average.
	CPUShare float64       `yaml:"cpu_share"`
	Network  NetworkPolicy `yaml:"network"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		Wall:        30 * time.Second,
		MemoryBytes: 256 << 20,
		CPUShare:    1.0,
		Network:     NetworkNone,
	}
}

// merge fills the zero fields of l from fallback.
func (l Limits) merge(fallback Limits) Limits {
	if l.Wall <= 0 {
		l.Wall = fallback.Wall
	}
	if l.MemoryBytes <= 0 {
		l.MemoryBytes = fallback.MemoryBytes
	}
	if l.CPUShare <= 0 {
		l.CPUShare = fallback.CPUShare
	}
	if l.Network == "" {
		l.Network = fallback.Network
	}
	return l
}

// cpuSeconds is the RLIMIT_CPU value matching the wall budget and share.
// The wall deadline normally fires first; the rlimit catches a child that
// escapes the host's kill.
func (l Limits) cpuSeconds() int64 {
	return max(1, int64(math.Ceil(l.Wall.Seconds()*l.CPUShare))+1)
}

// TierFor maps a risk level to the isolation tier that runs it.
func TierFor(level security.RiskLevel) execution.Tier {
	switch level {
	case security.RiskLow:
		return execution.TierProcess
	case security.RiskMedium:
		return execution.TierVM
	default:
		return execution.TierContainer
	}
}

// Config configures an Executor. Zero values select the defaults noted.
type Config struct {
	// HarnessPath is the binary re-executed as the child. Defaults to the
	// running executable.
	HarnessPath string
	// HarnessArgs precede the harness flags. Defaults to {"harness"}; an
	// empty non-nil slice passes none.
	HarnessArgs []string
	// HarnessEnv is appended to the child environment.
	HarnessEnv []string
	// Python is the interpreter for scripted-python artifacts. Defaults to
	// "python3".
	Python string
	// OutputLimit caps captured output and stderr. Defaults to
	// DefaultOutputLimit.
	OutputLimit int
	// Env is the child's base environment. Defaults to the host environment
	// with credentials removed.
	Env []string
	// WaitDelay bounds how long pipes are drained after the child is killed.
	// Defaults to 2s.
	WaitDelay time.Duration
	// TierLimits overrides DefaultLimits per tier.
	TierLimits map[execution.Tier]Limits
	Container  ContainerConfig
}

func (c *Config) defaults() error {
	if c.HarnessPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("sandbox: locating harness binary: %w", err)
		}
		c.HarnessPath = exe
	}
	if c.HarnessArgs == nil {
		c.HarnessArgs = []string{"harness"}
	}
	if c.Python == "" {
		c.Python = "python3"
	}
	if c.OutputLimit <= 0 {
		c.OutputLimit = DefaultOutputLimit
	}
	if c.Env == nil {
		c.Env = security.SanitizedEnv(os.Environ(), nil)
	}
	if c.WaitDelay <= 0 {
		c.WaitDelay = 2 * time.Second
	}
	c.Container.defaults()
	return nil
}

// Executor runs artifacts. It is safe for concurrent use; each Execute
// owns its own workspace and child.
type Executor struct {
	cfg        Config
	workspaces *workspace.Manager
	cleanups   *cleanup.Manager
	logger     *slog.Logger
}

// NewExecutor creates an Executor. Children are registered with cleanups
// while they run so a signal kills them.
func NewExecutor(cfg Config, workspaces *workspace.Manager, cleanups *cleanup.Manager, logger *slog.Logger) (*Executor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:        cfg,
		workspaces: workspaces,
		cleanups:   cleanups,
		logger:     logger.With("component", "sandbox"),
	}, nil
}

// Request is one artifact to run.
type Request struct {
	ExecutionID string
	Artifact    synth.Artifact
	Tier        execution.Tier
	// Limits override the tier limits field by field.
	Limits Limits
	// Handler answers tool calls. A nil handler fails every call.
	Handler ToolHandler
}

// LimitsFor returns the effective limits of tier.
func (e *Executor) LimitsFor(tier execution.Tier) Limits {
	return e.cfg.TierLimits[tier].merge(DefaultLimits())
}

// Execute runs req.Artifact in a fresh workspace and returns the outcome.
// Failures are reported in the result, never as an error. The workspace is
// kept after the run for inspection; the child and its handles are always
// released.
func (e *Executor) Execute(ctx context.Context, req Request) execution.Result {
	res := execution.Result{
		ExecutionID: req.ExecutionID,
		Tier:        req.Tier,
		Tools:       req.Artifact.Tools,
	}
	limits := req.Limits.merge(e.LimitsFor(req.Tier))
	logger := e.logger.With("execution_id", req.ExecutionID, "tier", req.Tier)

	ws, err := e.workspaces.Create(req.Artifact.Dialect, req.Artifact.Source)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.WorkspaceID = ws.ID
	if err := e.workspaces.UpdateStatus(ws.ID, workspace.StatusRunning); err != nil {
		res.Error = err.Error()
		return res
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, limits.Wall)
	defer cancel()

	out, runErr := e.launch(runCtx, req, ws, limits)
	res.Metrics.WallMS = time.Since(start).Milliseconds()
	res.Metrics.MemoryBytes = out.memory

	switch {
	case runCtx.Err() != nil:
		res.Error = execution.ErrorTimeout
	case runErr != nil:
		res.Error = runErr.Error()
	default:
		res.Success = true
		res.Output = out.output
	}

	status := workspace.StatusCompleted
	if !res.Success {
		status = workspace.StatusFailed
	}
	if err := e.workspaces.UpdateStatus(ws.ID, status); err != nil {
		logger.Warn("workspace status update failed", "workspace", ws.ID, "error", err)
	}
	if err := e.workspaces.SetResult(ws.ID, res); err != nil {
		logger.Warn("workspace result update failed", "workspace", ws.ID, "error", err)
	}
	logger.Debug("execution finished",
		"workspace", ws.ID,
		"success", res.Success,
		"wall_ms", res.Metrics.WallMS,
	)
	return res
}

func (e *Executor) launch(ctx context.Context, req Request, ws workspace.Workspace, limits Limits) (runOutput, error) {
	switch req.Tier {
	case execution.TierProcess, execution.TierVM:
		profile := harness.ProfileFull
		if req.Tier == execution.TierVM {
			profile = harness.ProfileRestricted
		}
		inv := e.invocation(ws, profile, limits, ws.ArtifactPath())
		args := append(append([]string{}, e.cfg.HarnessArgs...), inv.Args()...)
		//nolint:gosec // harness path and flags are built by the host.
		cmd := exec.CommandContext(ctx, e.cfg.HarnessPath, args...)
		cmd.Dir = ws.Dir
		cmd.Env = append(append([]string{}, e.cfg.Env...), e.cfg.HarnessEnv...)
		return e.run(ctx, cmd, ws.ID, req.Handler)

	case execution.TierContainer:
		if _, err := exec.LookPath(e.cfg.Container.Runtime); err != nil {
			return runOutput{}, fmt.Errorf("%w: %s", ErrContainerUnavailable, e.cfg.Container.Runtime)
		}
		name := containerName(ws.ID)
		defer e.removeContainer(name)
		//nolint:gosec // arguments are built by the host from validated limits.
		cmd := exec.CommandContext(ctx, e.cfg.Container.Runtime, e.containerArgs(name, ws, limits)...)
		cmd.Env = e.cfg.Env
		return e.run(ctx, cmd, ws.ID, req.Handler)

	default:
		return runOutput{}, fmt.Errorf("%w: %q", ErrUnknownTier, req.Tier)
	}
}

func (e *Executor) invocation(ws workspace.Workspace, profile harness.Profile, limits Limits, file string) harness.Invocation {
	return harness.Invocation{
		Dialect: string(ws.Dialect),
		Profile: profile,
		Limits: harness.Limits{
			MemoryBytes: limits.MemoryBytes,
			CPUSeconds:  limits.cpuSeconds(),
		}.ForProfile(profile),
		Python: e.cfg.Python,
		File:   file,
	}
}

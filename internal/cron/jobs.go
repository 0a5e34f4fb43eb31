package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// WorkspacePruner is the part of workspace.Manager the cleanup job needs.
type WorkspacePruner interface {
	Cleanup(olderThan time.Duration) (int, error)
}

// CacheSweeper is the part of cache.Cache the sweep job needs.
type CacheSweeper interface {
	Sweep() int
}

// Defaults for the maintenance jobs.
const (
	DefaultRetention         = time.Hour
	DefaultWorkspaceSchedule = "*/10 * * * *"
	DefaultCacheSchedule     = "*/5 * * * *"
)

// WorkspaceCleanupJob deletes workspaces not touched within Retention.
// Running workspaces are never removed.
type WorkspaceCleanupJob struct {
	Workspaces   WorkspacePruner
	Retention    time.Duration
	Logger       *slog.Logger
	ScheduleExpr string
}

var _ Job = (*WorkspaceCleanupJob)(nil)

// Name implements Job.
func (j *WorkspaceCleanupJob) Name() string { return "workspace_cleanup" }

// Schedule implements Job.
func (j *WorkspaceCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultWorkspaceSchedule
}

// Run implements Job.
func (j *WorkspaceCleanupJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cron: workspace cleanup cancelled: %w", err)
	}
	retention := j.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	removed, err := j.Workspaces.Cleanup(retention)
	if removed > 0 {
		logger(j.Logger).Info("removed retired workspaces", "count", removed, "retention", retention)
	}
	if err != nil {
		return fmt.Errorf("cron: workspace cleanup: %w", err)
	}
	return nil
}

// CacheSweepJob drops expired result cache entries.
type CacheSweepJob struct {
	Cache        CacheSweeper
	Logger       *slog.Logger
	ScheduleExpr string
}

var _ Job = (*CacheSweepJob)(nil)

// Name implements Job.
func (j *CacheSweepJob) Name() string { return "cache_sweep" }

// Schedule implements Job.
func (j *CacheSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultCacheSchedule
}

// Run implements Job.
func (j *CacheSweepJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cron: cache sweep cancelled: %w", err)
	}
	if n := j.Cache.Sweep(); n > 0 {
		logger(j.Logger).Debug("swept expired cache entries", "count", n)
	}
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

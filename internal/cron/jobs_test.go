package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/mcpexec/internal/cron"
	"github.com/flemzord/mcpexec/internal/cron/crontest"
)

func TestWorkspaceCleanupJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		retention time.Duration
		want      time.Duration
		err       error
	}{
		{name: "default retention", want: cron.DefaultRetention},
		{name: "configured retention", retention: 5 * time.Minute, want: 5 * time.Minute},
		{name: "partial failure", retention: time.Minute, want: time.Minute, err: errors.New("permission denied")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pruner := &crontest.Pruner{Removed: 2, Err: tt.err}
			j := &cron.WorkspaceCleanupJob{Workspaces: pruner, Retention: tt.retention, Logger: slog.New(slog.DiscardHandler)}
			err := j.Run(context.Background())
			if !errors.Is(err, tt.err) || (tt.err == nil) != (err == nil) {
				t.Errorf("Run() error = %v, want %v", err, tt.err)
			}
			if pruner.Calls() != 1 {
				t.Errorf("calls = %d", pruner.Calls())
			}
			if pruner.LastAge() != tt.want {
				t.Errorf("olderThan = %s, want %s", pruner.LastAge(), tt.want)
			}
		})
	}
}

func TestMaintenanceJobs_Defaults(t *testing.T) {
	t.Parallel()

	ws := &cron.WorkspaceCleanupJob{}
	if ws.Name() != "workspace_cleanup" || ws.Schedule() != cron.DefaultWorkspaceSchedule {
		t.Errorf("workspace job = %s %s", ws.Name(), ws.Schedule())
	}
	sweep := &cron.CacheSweepJob{ScheduleExpr: "@every 1m"}
	if sweep.Name() != "cache_sweep" || sweep.Schedule() != "@every 1m" {
		t.Errorf("sweep job = %s %s", sweep.Name(), sweep.Schedule())
	}
}

func TestCacheSweepJob(t *testing.T) {
	t.Parallel()

	sweeper := &crontest.Sweeper{Removed: 3}
	j := &cron.CacheSweepJob{Cache: sweeper}
	if err := j.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sweeper.Calls() != 1 {
		t.Errorf("calls = %d", sweeper.Calls())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Error("cancelled sweep returned nil")
	}
	if sweeper.Calls() != 1 {
		t.Error("cancelled sweep still ran")
	}
}

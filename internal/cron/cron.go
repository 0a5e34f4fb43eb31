// Package cron runs the engine's periodic maintenance: retired workspace
// removal and result cache sweeps.
package cron

import "context"

// Job is one periodic task.
type Job interface {
	// Name identifies the job in logs. Names are unique per scheduler.
	Name() string

	// Schedule is a 5-field cron expression or a descriptor such as
	// "@every 10m".
	Schedule() string

	// Run performs one tick. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

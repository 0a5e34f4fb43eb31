// Package crontest holds cron job doubles.
package crontest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/flemzord/mcpexec/internal/cron"
)

// Job is a cron.Job backed by a function. A nil Fn succeeds immediately.
type Job struct {
	JobName string
	Spec    string
	Fn      func(ctx context.Context) error

	runs atomic.Int64
}

var _ cron.Job = (*Job)(nil)

// NewJob returns a Job named name on spec that does nothing.
func NewJob(name, spec string) *Job {
	return &Job{JobName: name, Spec: spec}
}

func (j *Job) Name() string     { return j.JobName }
func (j *Job) Schedule() string { return j.Spec }

func (j *Job) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.Fn == nil {
		return nil
	}
	return j.Fn(ctx)
}

// Runs reports how many times Run was entered.
func (j *Job) Runs() int {
	return int(j.runs.Load())
}

// Pruner records workspace cleanup calls.
type Pruner struct {
	Removed int
	Err     error

	calls   atomic.Int32
	lastAge atomic.Int64
}

var _ cron.WorkspacePruner = (*Pruner)(nil)

func (p *Pruner) Cleanup(olderThan time.Duration) (int, error) {
	p.calls.Add(1)
	p.lastAge.Store(int64(olderThan))
	return p.Removed, p.Err
}

// Calls returns the number of Cleanup calls.
func (p *Pruner) Calls() int { return int(p.calls.Load()) }

// LastAge returns the age passed to the latest Cleanup.
func (p *Pruner) LastAge() time.Duration { return time.Duration(p.lastAge.Load()) }

// Sweeper records cache sweeps.
type Sweeper struct {
	Removed int

	calls atomic.Int32
}

var _ cron.CacheSweeper = (*Sweeper)(nil)

func (s *Sweeper) Sweep() int {
	s.calls.Add(1)
	return s.Removed
}

// Calls returns the number of Sweep calls.
func (s *Sweeper) Calls() int { return int(s.calls.Load()) }

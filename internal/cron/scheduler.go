package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field expressions and @-descriptors.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs registered jobs on their schedules. A job whose previous
// tick is still running skips the new one.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    []Job
	running map[string]*sync.Mutex
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		running: make(map[string]*sync.Mutex),
		logger:  logger.With("component", "cron"),
	}
}

// RegisterJob adds j. Jobs registered after Start are not scheduled.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, dup := s.running[name]; dup {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	if _, err := parser.Parse(j.Schedule()); err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
	}
	s.running[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name()
	}
	return names
}

// Start schedules every registered job.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("cron: scheduler already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithParser(parser))
	for _, j := range s.jobs {
		lock := s.running[j.Name()]
		if _, err := c.AddFunc(j.Schedule(), func() { s.tick(ctx, j, lock) }); err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", j.Name(), err)
		}
	}
	s.cron, s.cancel = c, cancel
	c.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

func (s *Scheduler) tick(ctx context.Context, j Job, lock *sync.Mutex) {
	if !lock.TryLock() {
		s.logger.Warn("job still running, skipping tick", "job", j.Name())
		return
	}
	defer lock.Unlock()

	if err := j.Run(ctx); err != nil {
		s.logger.Error("job failed", "job", j.Name(), "error", err)
		return
	}
	s.logger.Debug("job completed", "job", j.Name())
}

// RunNow runs the named job once, outside its schedule, honouring the
// no-overlap rule. It reports false when the job is unknown or busy.
func (s *Scheduler) RunNow(ctx context.Context, name string) bool {
	s.mu.Lock()
	lock := s.running[name]
	var job Job
	for _, j := range s.jobs {
		if j.Name() == name {
			job = j
		}
	}
	s.mu.Unlock()
	if job == nil || !lock.TryLock() {
		return false
	}
	defer lock.Unlock()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", "job", name, "error", err)
	}
	return true
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
		s.logger.Info("scheduler stopped")
	}
	return nil
}

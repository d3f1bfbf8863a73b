package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Kind is the trigger type of a job
type Kind string

const (
	// KindCron fires at wall-clock times given by a cron expression
	KindCron Kind = "cron"
	// KindInterval fires at a fixed interval given as a Go duration
	KindInterval Kind = "interval"
)

// ErrJobNotFound is returned for handles the scheduler does not know
var ErrJobNotFound = errors.New("job not found")

// JobHandle identifies a registered job
type JobHandle string

// Callback is the work a trigger fires
type Callback func(ctx context.Context) error

// Job describes a registered trigger
type Job struct {
	Handle    JobHandle `json:"handle"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Spec      string    `json:"spec"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	RunCount  int       `json:"run_count"`
	FailCount int       `json:"fail_count"`
	LastError string    `json:"last_error,omitempty"`
}

type registeredJob struct {
	Job
	schedule cron.Schedule
	entryID  cron.EntryID
	callback Callback
}

// Scheduler registers and fires cron and interval triggers
type Scheduler struct {
	mu       sync.RWMutex
	cron     *cron.Cron
	parser   cron.Parser
	location *time.Location
	jobs     map[JobHandle]*registeredJob
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
}

// NewScheduler creates a scheduler evaluating cron expressions in loc
func NewScheduler(logger *zap.Logger, loc *time.Location) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	logger = logger.Named("scheduler")

	cronLog := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLog)),
		),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		location: loc,
		jobs:     make(map[JobHandle]*registeredJob),
		logger:   logger,
		ctx:      context.Background(),
	}
}

// Start starts firing triggers. Callbacks receive a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.running = true

	// Entries get their real next-fire time once cron is running
	for _, job := range s.jobs {
		job.NextRun = s.cron.Entry(job.entryID).Next
	}

	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	stopped := s.cron.Stop()
	<-stopped.Done()
	cancel()

	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether triggers are firing
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Register adds a trigger and returns its handle
func (s *Scheduler) Register(name string, kind Kind, spec string, callback Callback) (JobHandle, error) {
	if callback == nil {
		return "", fmt.Errorf("callback is required")
	}

	schedule, err := s.parse(kind, spec)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	handle := JobHandle(uuid.New().String())
	job := &registeredJob{
		Job: Job{
			Handle: handle,
			Name:   name,
			Kind:   kind,
			Spec:   spec,
		},
		schedule: schedule,
		callback: callback,
	}

	job.entryID = s.cron.Schedule(schedule, s.wrap(handle))
	job.NextRun = s.nextRun(job)
	s.jobs[handle] = job

	s.logger.Info("trigger registered",
		zap.String("name", name),
		zap.String("kind", string(kind)),
		zap.String("spec", spec),
		zap.Time("next_run", job.NextRun),
	)
	return handle, nil
}

// Reschedule replaces the trigger spec of an existing job. Only future
// fires are affected; a run in progress is not interrupted.
func (s *Scheduler) Reschedule(handle JobHandle, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[handle]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, handle)
	}

	schedule, err := s.parse(job.Kind, spec)
	if err != nil {
		return err
	}

	// Swap the cron entry
	s.cron.Remove(job.entryID)
	job.schedule = schedule
	job.Spec = spec
	job.entryID = s.cron.Schedule(schedule, s.wrap(handle))
	job.NextRun = s.nextRun(job)

	s.logger.Info("trigger rescheduled",
		zap.String("name", job.Name),
		zap.String("spec", spec),
		zap.Time("next_run", job.NextRun),
	)
	return nil
}

// Remove unregisters a job
func (s *Scheduler) Remove(handle JobHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[handle]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, handle)
	}

	s.cron.Remove(job.entryID)
	delete(s.jobs, handle)
	return nil
}

// Get returns a registered job
func (s *Scheduler) Get(handle JobHandle) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[handle]
	if !exists {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, handle)
	}
	return job.Job, nil
}

// ListUpcoming returns all jobs ordered by next fire time
func (s *Scheduler) ListUpcoming() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		job.NextRun = s.nextRun(job)
		jobs = append(jobs, job.Job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].NextRun.Equal(jobs[j].NextRun) {
			return jobs[i].NextRun.Before(jobs[j].NextRun)
		}
		return jobs[i].Name < jobs[j].Name
	})
	return jobs
}

// RunNow fires a job immediately in the caller's goroutine
func (s *Scheduler) RunNow(handle JobHandle) error {
	s.mu.RLock()
	_, exists := s.jobs[handle]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, handle)
	}
	return s.execute(handle)
}

func (s *Scheduler) parse(kind Kind, spec string) (cron.Schedule, error) {
	switch kind {
	case KindCron:
		schedule, err := s.parser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
		}
		return schedule, nil
	case KindInterval:
		interval, err := time.ParseDuration(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", spec, err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("interval must be positive, got %s", spec)
		}
		return cron.Every(interval), nil
	default:
		return nil, fmt.Errorf("unknown trigger kind %q", kind)
	}
}

// nextRun prefers cron's own bookkeeping and falls back to the schedule
// while the scheduler is stopped. Caller holds s.mu.
func (s *Scheduler) nextRun(job *registeredJob) time.Time {
	if s.running {
		if next := s.cron.Entry(job.entryID).Next; !next.IsZero() {
			return next
		}
	}
	return job.schedule.Next(time.Now().In(s.location))
}

func (s *Scheduler) wrap(handle JobHandle) cron.Job {
	return cron.FuncJob(func() {
		_ = s.execute(handle)
	})
}

func (s *Scheduler) execute(handle JobHandle) error {
	s.mu.Lock()
	job, exists := s.jobs[handle]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, handle)
	}
	job.LastRun = time.Now()
	job.RunCount++
	callback := job.callback
	name := job.Name
	ctx := s.ctx
	s.mu.Unlock()

	started := time.Now()
	err := callback(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The job may have been removed while running
	if job, exists = s.jobs[handle]; exists {
		job.NextRun = s.nextRun(job)
		if err != nil {
			job.FailCount++
			job.LastError = err.Error()
		} else {
			job.LastError = ""
		}
	}

	if err != nil {
		s.logger.Error("scheduled job failed",
			zap.String("name", name),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return err
	}

	s.logger.Debug("scheduled job completed",
		zap.String("name", name),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// cronLogger adapts zap to the cron.Logger interface
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

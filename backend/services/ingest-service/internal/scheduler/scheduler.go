package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	// ErrBusy is returned by RunNow while the job is already running.
	ErrBusy = errors.New("scheduler: job already running")
	// ErrUnknownJob is returned for names that were never registered.
	ErrUnknownJob = errors.New("scheduler: unknown job")
)

const defaultTimeout = 5 * time.Minute

// JobFunc is the function signature for jobs.
type JobFunc func(ctx context.Context) error

// Job is a registered job. At most one run of a job is in flight at a time.
type Job struct {
	Name     string
	Schedule string
	Func     JobFunc
	EntryID  cron.EntryID

	running sync.Mutex
	stateMu sync.RWMutex
	lastRun time.Time
	lastErr error
}

// JobStatus is a point-in-time view of a job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

// Scheduler runs registered jobs on cron schedules (with a seconds field).
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]*Job
	timeout time.Duration
	logger  *zap.Logger
	mu      sync.RWMutex

	baseMu sync.RWMutex
	base   context.Context

	triggered sync.WaitGroup
}

// NewScheduler creates a scheduler whose runs are bounded by timeout (default 5m).
func NewScheduler(timeout time.Duration, logger *zap.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		jobs:    make(map[string]*Job),
		timeout: timeout,
		logger:  logger.Named("scheduler"),
		base:    context.Background(),
	}
}

// Register adds a job to the scheduler.
func (s *Scheduler) Register(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}

	job := &Job{
		Name:     name,
		Schedule: schedule,
		Func:     fn,
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.runJob(s.context(), job); errors.Is(err, ErrBusy) {
			s.logger.Warn("skipping scheduled run, previous run still in flight", zap.String("name", job.Name))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}

	job.EntryID = entryID
	s.jobs[name] = job

	s.logger.Info("job registered", zap.String("name", name), zap.String("schedule", schedule))
	return nil
}

// Start starts the scheduler. Runs are cancelled when ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.baseMu.Lock()
	s.base = ctx
	s.baseMu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop stops the scheduler and waits for running jobs, including triggered ones.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.triggered.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow runs a job synchronously. It returns ErrBusy instead of queueing behind a running cycle.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return s.runJob(ctx, job)
}

// Trigger starts a run of name in the background under the context passed to Start.
// Stop waits for it.
func (s *Scheduler) Trigger(name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}

	s.triggered.Add(1)
	go func() {
		defer s.triggered.Done()
		if err := s.runJob(s.context(), job); errors.Is(err, ErrBusy) {
			s.logger.Warn("skipping triggered run, previous run still in flight", zap.String("name", job.Name))
		}
	}()
	return nil
}

// Jobs returns the status of every job sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		job.stateMu.RLock()
		st := JobStatus{
			Name:     job.Name,
			Schedule: job.Schedule,
			LastRun:  job.lastRun,
			NextRun:  s.cron.Entry(job.EntryID).Next,
		}
		if job.lastErr != nil {
			st.LastError = job.lastErr.Error()
		}
		job.stateMu.RUnlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) context() context.Context {
	s.baseMu.RLock()
	defer s.baseMu.RUnlock()
	return s.base
}

func (s *Scheduler) runJob(parent context.Context, job *Job) error {
	if !job.running.TryLock() {
		return ErrBusy
	}
	defer job.running.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("job started", zap.String("name", job.Name))

	err := job.Func(ctx)

	duration := time.Since(start)
	job.stateMu.Lock()
	job.lastRun = start.UTC()
	job.lastErr = err
	job.stateMu.Unlock()

	if err != nil {
		s.logger.Error("job failed", zap.String("name", job.Name), zap.Duration("duration", duration), zap.Error(err))
	} else {
		s.logger.Info("job completed", zap.String("name", job.Name), zap.Duration("duration", duration))
	}
	return err
}

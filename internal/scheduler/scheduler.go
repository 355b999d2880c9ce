package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/futureindex/pkg/logger"
)

// ErrJobRunning is returned when a job is triggered while a previous run
// of the same job has not finished
var ErrJobRunning = errors.New("job is already running")

// Scheduler runs index jobs on cron schedules (six fields, seconds first)
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	mu      sync.RWMutex
	jobs    map[string]Job
	entries map[string]cron.EntryID
	history map[string]*JobHistory
	running map[string]bool

	// scheduled and manual runs are cancelled by Stop
	ctx    context.Context
	cancel context.CancelFunc

	maxRetries int
	retryDelay time.Duration
	location   *time.Location
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithRetry sets how often a failed run is retried and the pause between attempts
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *Scheduler) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

// WithLocation evaluates schedules in loc instead of time.Local
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

// New creates a scheduler with 2 retries one minute apart unless overridden
func New(log *logger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger:     log.WithComponent("scheduler"),
		jobs:       make(map[string]Job),
		entries:    make(map[string]cron.EntryID),
		history:    make(map[string]*JobHistory),
		running:    make(map[string]bool),
		ctx:        ctx,
		cancel:     cancel,
		maxRetries: 2,
		retryDelay: time.Minute,
		location:   time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger{s.logger}),
	)
	return s
}

// AddJob registers job under its name
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	id, err := s.cron.AddFunc(job.Schedule(), func() {
		if _, err := s.run(s.ctx, job); errors.Is(err, ErrJobRunning) {
			s.logger.WithField("job", name).Warn("Previous run still in progress, skipping")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.entries[name] = id
	s.history[name] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// Start begins firing scheduled jobs
func (s *Scheduler) Start() {
	s.logger.WithField("location", s.location.String()).Info("Starting scheduler")
	s.cron.Start()
}

// Stop cancels running jobs and waits for scheduled ones to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunJob runs a job now, outside its schedule, and waits for the result.
// The run is cancelled when ctx is done or the scheduler stops.
func (s *Scheduler) RunJob(ctx context.Context, name string) (JobResult, error) {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return JobResult{}, fmt.Errorf("job %s not found", name)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	return s.run(ctx, job)
}

// NextRun returns the next scheduled time of a job (zero before Start)
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	s.mu.RLock()
	id, exists := s.entries[name]
	s.mu.RUnlock()

	if !exists {
		return time.Time{}, fmt.Errorf("job %s not found", name)
	}
	return s.cron.Entry(id).Next, nil
}

// run executes job with retries and records the result.
// Overlapping runs of the same job are refused with ErrJobRunning.
func (s *Scheduler) run(ctx context.Context, job Job) (JobResult, error) {
	name := job.Name()

	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%s: %w", name, ErrJobRunning)
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	log := s.logger.WithField("job", name)
	log.Info("Job started")

	result := JobResult{JobName: name, StartTime: time.Now()}
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		result.Attempts++
		lastErr = runOnce(ctx, job)
		if lastErr == nil || ctx.Err() != nil {
			break
		}

		if attempt < s.maxRetries {
			log.WithError(lastErr).WithField("attempt", attempt+1).Warn("Job execution failed, retrying")
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Success = lastErr == nil
	if lastErr != nil {
		result.Error = lastErr.Error()
	}

	s.mu.Lock()
	if h, ok := s.history[name]; ok {
		h.AddResult(result)
	}
	s.mu.Unlock()

	if result.Success {
		log.WithField("duration", result.Duration.String()).Info("Job completed successfully")
	} else {
		log.WithFields(map[string]interface{}{
			"duration": result.Duration.String(),
			"attempts": result.Attempts,
			"error":    result.Error,
		}).Error("Job failed after all retries")
	}

	return result, nil
}

// runOnce turns a panicking job into a failed attempt
func runOnce(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}

// History returns the recorded results of a job
func (s *Scheduler) History(name string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.history[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return h, nil
}

// Jobs returns registered job names, sorted
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns run statistics for every registered job
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.jobs))
	for name, job := range s.jobs {
		h := s.history[name]
		total, failed := h.Counts()

		st := JobStats{
			JobName:      name,
			Schedule:     job.Schedule(),
			TotalRuns:    total,
			SuccessCount: total - failed,
			FailureCount: failed,
			SuccessRate:  h.SuccessRate(),
			Running:      s.running[name],
		}

		if last, ok := h.Last(); ok {
			st.LastRun = &last.StartTime
			if last.Success {
				st.LastSuccess = &last.StartTime
			} else {
				st.LastFailure = &last.StartTime
			}
		}
		if next := s.cron.Entry(s.entries[name]).Next; !next.IsZero() {
			st.NextRun = &next
		}

		stats[name] = st
	}

	return stats
}

// JobStats summarises a job's recent runs
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	Running      bool       `json:"running"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

// cronLogger routes robfig/cron's internal logging through our logger
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.WithFields(kv(keysAndValues)).Debug("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithError(err).WithFields(kv(keysAndValues)).Error("cron: " + msg)
}

func kv(pairs []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fields[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return fields
}

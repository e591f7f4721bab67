// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrJobRunning is returned by RunNow when the job is already running
var ErrJobRunning = errors.New("job is already running")

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Scheduler runs jobs on cron schedules. A job never overlaps itself: a tick
// that fires while the previous run is still going (a slow auto-step, a large
// backup upload) is dropped, and so is a manual RunNow.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	running map[string]time.Time // job name -> start of the current run
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cronLog := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		log:     log,
		running: make(map[string]time.Time),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job on a cron schedule with seconds:
//   - "0 30 22 * * MON-FRI" - 22:30 on weekdays
//   - "0 0 3 * * *"         - 03:00 every day
//   - "@every 30s"          - every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.tick(job) }); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, job.Name(), err)
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// RunNow executes a job immediately, outside its schedule
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")

	ran, err := s.run(job)
	if !ran {
		return fmt.Errorf("%s: %w", job.Name(), ErrJobRunning)
	}
	return err
}

func (s *Scheduler) tick(job Job) {
	ran, err := s.run(job)
	if !ran {
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
	}
}

// run executes job unless a run of the same job is in flight. ran is false
// when the call was skipped.
func (s *Scheduler) run(job Job) (ran bool, err error) {
	name := job.Name()

	s.mu.Lock()
	if started, busy := s.running[name]; busy {
		s.mu.Unlock()
		s.log.Warn().
			Str("job", name).
			Dur("running_for", time.Since(started)).
			Msg("Previous run still in progress, skipping")
		return false, nil
	}
	start := time.Now()
	s.running[name] = start
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	s.log.Debug().Str("job", name).Msg("Running job")
	err = job.Run()
	s.log.Debug().
		Str("job", name).
		Dur("duration", time.Since(start)).
		Bool("failed", err != nil).
		Msg("Job finished")

	return true, err
}

// cronLogger routes cron's own messages (recovered panics, schedule
// bookkeeping) through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

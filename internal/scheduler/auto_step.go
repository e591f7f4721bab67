package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ActiveStepper advances every active portfolio by one trading day.
// *simulation.Service satisfies it.
type ActiveStepper interface {
	StepActive(ctx context.Context) (int, error)
}

// AutoStepJob steps active portfolios once per tick, so live portfolios
// follow the market as new end-of-day bars arrive.
type AutoStepJob struct {
	stepper ActiveStepper
	timeout time.Duration
	log     zerolog.Logger
}

// NewAutoStepJob creates a new AutoStepJob
func NewAutoStepJob(stepper ActiveStepper, timeout time.Duration) *AutoStepJob {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &AutoStepJob{
		stepper: stepper,
		timeout: timeout,
		log:     zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *AutoStepJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *AutoStepJob) Name() string {
	return "auto_step"
}

// Run executes the auto-step job
func (j *AutoStepJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	stepped, err := j.stepper.StepActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to step active portfolios: %w", err)
	}

	j.log.Info().Int("stepped", stepped).Msg("Auto-step completed")
	return nil
}

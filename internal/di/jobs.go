package di

import (
	"fmt"
	"time"

	"github.com/aristath/simtrader/internal/config"
	"github.com/aristath/simtrader/internal/reliability"
	"github.com/aristath/simtrader/internal/scheduler"
	"github.com/rs/zerolog"
)

const maintenanceSchedule = "0 0 2 * * *"

// RegisterJobs creates the background jobs and registers them on a cron scheduler.
// The scheduler is stored on the container but not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	jobs := scheduler.New(log)
	instances := &JobInstances{}

	if cfg.AutoStepEnabled {
		autoStep := scheduler.NewAutoStepJob(container.SimulationService, 30*time.Minute)
		autoStep.SetLogger(log)
		if err := jobs.AddJob(cfg.AutoStepSchedule, autoStep); err != nil {
			return nil, fmt.Errorf("failed to register auto-step job: %w", err)
		}
		instances.AutoStep = autoStep
	}

	maintenance := reliability.NewDailyMaintenanceJob(container.DB, cfg.DataDir, log)
	if err := jobs.AddJob(maintenanceSchedule, maintenance); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}
	instances.Maintenance = maintenance

	if container.BackupService != nil {
		backup := scheduler.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays)
		backup.SetLogger(log)
		if err := jobs.AddJob(cfg.Backup.Schedule, backup); err != nil {
			return nil, fmt.Errorf("failed to register backup job: %w", err)
		}
		instances.Backup = backup
	}

	container.JobScheduler = jobs
	return instances, nil
}

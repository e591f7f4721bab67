package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/simtrader/internal/reliability"
	"github.com/rs/zerolog"
)

// Backuper uploads and prunes database backups.
// *reliability.BackupService satisfies it.
type Backuper interface {
	Backup(ctx context.Context) (*reliability.BackupInfo, error)
	Rotate(ctx context.Context, retentionDays int) (int, error)
}

// BackupJob uploads a fresh backup, then rotates old ones
type BackupJob struct {
	backups       Backuper
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewBackupJob creates a new BackupJob
func NewBackupJob(backups Backuper, retentionDays int) *BackupJob {
	return &BackupJob{
		backups:       backups,
		retentionDays: retentionDays,
		timeout:       30 * time.Minute,
		log:           zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *BackupJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run executes the backup job. A failed rotation is logged, not returned:
// the new backup is already stored.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	info, err := j.backups.Backup(ctx)
	if err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}

	deleted, err := j.backups.Rotate(ctx, j.retentionDays)
	if err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	j.log.Info().
		Str("key", info.Key).
		Int("rotated", deleted).
		Msg("Backup job completed")

	return nil
}

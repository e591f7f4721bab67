package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Free disk thresholds for the data directory
const (
	criticalFreeBytes = 500 << 20
	lowFreeBytes      = 5 << 30
)

// MaintainedDB is the part of *database.DB the maintenance job needs
type MaintainedDB interface {
	HealthCheck(ctx context.Context) error
	WALCheckpoint(mode string) error
}

// DailyMaintenanceJob checks integrity, truncates the WAL and watches free
// disk space under the data directory.
type DailyMaintenanceJob struct {
	db           MaintainedDB
	dataDir      string
	minFreeBytes uint64
	timeout      time.Duration
	log          zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job
func NewDailyMaintenanceJob(db MaintainedDB, dataDir string, log zerolog.Logger) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		db:           db,
		dataDir:      dataDir,
		minFreeBytes: criticalFreeBytes,
		timeout:      5 * time.Minute,
		log:          log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// SetLogger sets the logger for the job
func (j *DailyMaintenanceJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// Run executes the daily maintenance job
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("CRITICAL: Database health check failed")
		return fmt.Errorf("database health check failed: %w", err)
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		// A busy WAL is retried on the next run
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed successfully")

	return nil
}

// checkDiskSpace fails when the data directory is nearly full
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	if usage.Free < j.minFreeBytes {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free under %s", availableGB, j.dataDir)
	}

	if usage.Free < lowFreeBytes {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Disk space running low")
	}

	return nil
}

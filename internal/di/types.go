package di

import (
	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/modules/cash_flows"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/marketdata"
	"github.com/aristath/simtrader/internal/modules/performance"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/recommendations"
	"github.com/aristath/simtrader/internal/modules/simulation"
	"github.com/aristath/simtrader/internal/modules/strategies"
	"github.com/aristath/simtrader/internal/modules/trading"
	"github.com/aristath/simtrader/internal/reliability"
	"github.com/aristath/simtrader/internal/scheduler"
)

// Container holds every wired dependency of the application
type Container struct {
	// Database
	DB *database.DB

	// Repositories
	MarketRepo         *marketdata.Repository
	PortfolioRepo      *portfolio.Repository
	LedgerRepo         *ledger.Repository
	RecommendationRepo *recommendations.Repository
	PerformanceRepo    *performance.Repository
	SimulationRepo     *simulation.Repository

	// Services
	Importer          *marketdata.Importer
	Registry          *strategies.Registry
	Engine            *recommendations.Engine
	Executor          *trading.Executor
	CashManager       *cash_flows.Manager
	Tracker           *performance.Tracker
	Scheduler         *simulation.Scheduler
	SimulationService *simulation.Service
	BackupService     *reliability.BackupService // nil when backups are not configured

	// Background jobs
	JobScheduler *scheduler.Scheduler
}

// JobInstances holds the registered jobs for manual triggering
type JobInstances struct {
	AutoStep    *scheduler.AutoStepJob // nil when auto-step is disabled
	Maintenance *reliability.DailyMaintenanceJob
	Backup      *scheduler.BackupJob // nil when backups are not configured
}

// Close releases the database
func (c *Container) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

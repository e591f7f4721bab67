package di

import (
	"context"
	"fmt"

	"github.com/aristath/simtrader/internal/config"
	"github.com/aristath/simtrader/internal/modules/cash_flows"
	"github.com/aristath/simtrader/internal/modules/marketdata"
	"github.com/aristath/simtrader/internal/modules/performance"
	"github.com/aristath/simtrader/internal/modules/recommendations"
	"github.com/aristath/simtrader/internal/modules/simulation"
	"github.com/aristath/simtrader/internal/modules/strategies"
	"github.com/aristath/simtrader/internal/modules/trading"
	"github.com/aristath/simtrader/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices builds the engine on top of the repositories
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.MarketRepo == nil {
		return fmt.Errorf("repositories must be initialized before services")
	}

	container.Importer = marketdata.NewImporter(container.MarketRepo)
	container.Registry = strategies.NewPopulatedRegistry(log)
	container.Engine = recommendations.NewEngine(container.Registry, container.MarketRepo, log)
	container.Executor = trading.NewExecutor(container.LedgerRepo, container.PortfolioRepo, log)
	container.CashManager = cash_flows.NewManager(container.LedgerRepo, container.PortfolioRepo, log)
	container.Tracker = performance.NewTracker(container.PerformanceRepo, cfg.RiskFreeRate, log)

	container.Scheduler = simulation.NewScheduler(simulation.Deps{
		DB:              container.DB.Conn(),
		Market:          container.MarketRepo,
		Engine:          container.Engine,
		Portfolios:      container.PortfolioRepo,
		Ledger:          container.LedgerRepo,
		Recommendations: container.RecommendationRepo,
		Executor:        container.Executor,
		Cash:            container.CashManager,
		Tracker:         container.Tracker,
		Repo:            container.SimulationRepo,
	}, simulation.Options{
		HaltOnMissingData: cfg.MissingDataPolicy == config.MissingDataHalt,
		FractionalSectors: cfg.FractionalSectors,
		EntryMinimum:      cfg.EntryMinimum,
		Workers:           cfg.Workers,
	}, log)
	container.SimulationService = simulation.NewService(container.Scheduler, log)

	if cfg.Backup.Enabled() {
		backups, err := reliability.NewBackupServiceFromConfig(context.Background(), container.DB, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize backup service: %w", err)
		}
		container.BackupService = backups
	} else {
		log.Info().Msg("Backups not configured, backup service disabled")
	}

	log.Debug().
		Strs("strategies", container.Registry.Names()).
		Int("workers", container.Scheduler.Workers()).
		Msg("Services initialized")
	return nil
}

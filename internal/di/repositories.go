package di

import (
	"fmt"

	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/marketdata"
	"github.com/aristath/simtrader/internal/modules/performance"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/recommendations"
	"github.com/aristath/simtrader/internal/modules/simulation"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates every repository over the container's database
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.DB == nil {
		return fmt.Errorf("container database cannot be nil")
	}

	container.MarketRepo = marketdata.NewRepository(container.DB.Conn(), log)
	container.PortfolioRepo = portfolio.NewRepository(log)
	container.LedgerRepo = ledger.NewRepository(log)
	container.RecommendationRepo = recommendations.NewRepository(log)
	container.PerformanceRepo = performance.NewRepository(log)
	container.SimulationRepo = simulation.NewRepository(log)

	log.Debug().Msg("Repositories initialized")
	return nil
}

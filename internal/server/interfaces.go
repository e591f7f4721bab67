package server

import (
	"context"
	"time"

	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/performance"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/recommendations"
	"github.com/aristath/simtrader/internal/modules/simulation"
	"github.com/shopspring/decimal"
)

// SimulationService is the engine surface served over HTTP.
// *simulation.Service satisfies it.
type SimulationService interface {
	CreatePortfolio(ctx context.Context, req simulation.CreateRequest) (*portfolio.Portfolio, error)
	ListPortfolios(ctx context.Context) ([]*portfolio.Portfolio, error)
	Portfolio(ctx context.Context, portfolioID int64) (*simulation.Detail, error)
	SetActive(ctx context.Context, portfolioID int64, active bool) error

	StepOnce(ctx context.Context, portfolioID int64) (*simulation.StepResult, error)
	RunSimulation(ctx context.Context, portfolioID int64) (*simulation.RunResult, error)
	ResetPortfolio(ctx context.Context, portfolioID int64) error

	FavoredRecommendations(ctx context.Context, portfolioID int64) ([]recommendations.Recommendation, error)
	StrategyGrid(ctx context.Context, symbols []string, date time.Time) (recommendations.Grid, error)

	PlaceManualOrder(ctx context.Context, portfolioID int64, order simulation.ManualOrder) (*ledger.Transaction, error)
	Deposit(ctx context.Context, portfolioID int64, amount decimal.Decimal, date time.Time) (*portfolio.Portfolio, error)
	Withdraw(ctx context.Context, portfolioID int64, amount decimal.Decimal, date time.Time) (*portfolio.Portfolio, error)

	Metrics(ctx context.Context, portfolioID int64) (performance.Metrics, error)
	Snapshots(ctx context.Context, portfolioID int64) ([]*performance.Snapshot, error)
	Transactions(ctx context.Context, portfolioID int64) ([]*ledger.Transaction, error)
	Warnings(ctx context.Context, portfolioID int64) ([]simulation.Warning, error)
}

var _ SimulationService = (*simulation.Service)(nil)

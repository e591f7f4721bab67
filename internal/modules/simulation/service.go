package simulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/performance"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/recommendations"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultRunLengthDays is the run target used when a portfolio is created without one
const DefaultRunLengthDays = 365

// Service is the engine facade used by the API, the CLI and the cron jobs
type Service struct {
	scheduler *Scheduler
	log       zerolog.Logger
}

// NewService creates the facade over a scheduler
func NewService(scheduler *Scheduler, log zerolog.Logger) *Service {
	return &Service{
		scheduler: scheduler,
		log:       log.With().Str("service", "simulation").Logger(),
	}
}

// Scheduler exposes the underlying state machine
func (s *Service) Scheduler() *Scheduler {
	return s.scheduler
}

// CreateRequest describes a new portfolio
type CreateRequest struct {
	Name          string
	Policy        portfolio.Policy
	InitialCash   decimal.Decimal
	FirstDate     time.Time // Zero means today
	RunLengthDays int       // Zero means DefaultRunLengthDays
}

// Detail is a portfolio together with its holdings and progress
type Detail struct {
	Portfolio  *portfolio.Portfolio `json:"portfolio"`
	Positions  []*ledger.Position   `json:"positions"`
	Cursor     *Cursor              `json:"cursor,omitempty"`
	Status     Status               `json:"status"`
	TotalValue decimal.Decimal      `json:"total_value"`
	ValuedAt   *time.Time           `json:"valued_at,omitempty"` // Close used for positions; nil before the first simulated day
}

// ManualOrder is a user-placed trade
type ManualOrder struct {
	Symbol   string          `json:"symbol"`
	Side     domain.Side     `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Date     time.Time       `json:"date"`
}

// CreatePortfolio stores the portfolio, its opening deposit and its cursor in one transaction
func (s *Service) CreatePortfolio(ctx context.Context, req CreateRequest) (*portfolio.Portfolio, error) {
	sched := s.scheduler
	if !sched.Engine.Registry().Has(req.Policy.Strategy) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownStrategy, req.Policy.Strategy)
	}

	now := sched.opts.Now()
	firstDate := req.FirstDate
	if firstDate.IsZero() {
		firstDate = utils.Day(now)
	}
	runLength := req.RunLengthDays
	if runLength == 0 {
		runLength = DefaultRunLengthDays
	}
	if runLength < 0 {
		return nil, fmt.Errorf("run length must not be negative, got %d", runLength)
	}

	var created *portfolio.Portfolio
	err := database.WithTransactionContext(ctx, sched.DB, func(tx *sql.Tx) error {
		p, err := sched.Portfolios.Create(ctx, tx, req.Name, req.Policy, req.InitialCash, now)
		if err != nil {
			return err
		}
		if p.InitialCash.IsPositive() {
			if err := sched.Ledger.AppendCashTransaction(ctx, tx, &ledger.CashTransaction{
				PortfolioID: p.ID,
				Type:        ledger.CashDeposit,
				Amount:      p.InitialCash,
				Date:        utils.Day(firstDate),
				Description: InitialDepositDescription,
			}); err != nil {
				return err
			}
		}
		if _, err := sched.configure(ctx, tx, p.ID, firstDate, runLength); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	return created, nil
}

// ListPortfolios returns every portfolio
func (s *Service) ListPortfolios(ctx context.Context) ([]*portfolio.Portfolio, error) {
	return s.scheduler.Portfolios.List(ctx, s.scheduler.DB)
}

// Portfolio returns the portfolio with its positions, cursor and status
func (s *Service) Portfolio(ctx context.Context, portfolioID int64) (*Detail, error) {
	sched := s.scheduler
	p, err := s.load(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	positions, err := sched.Ledger.Positions(ctx, sched.DB, portfolioID)
	if err != nil {
		return nil, err
	}
	cursor, err := sched.Repo.GetCursor(ctx, sched.DB, portfolioID)
	if err != nil {
		return nil, err
	}
	status, err := sched.Status(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	// Positions are marked at the last simulated close, the same prices the
	// latest snapshot used. Before the first simulated day only trade prices exist.
	var valuedAt *time.Time
	if cursor != nil && cursor.LastCompletedDate != nil {
		held := make([]string, 0, len(positions))
		for _, pos := range positions {
			held = append(held, pos.Symbol)
		}
		marks, err := marksAsOf(ctx, sched.Market, held, *cursor.LastCompletedDate, nil)
		if err != nil {
			return nil, err
		}
		for _, pos := range positions {
			if mark, ok := marks[pos.Symbol]; ok {
				pos.LastPrice = mark
			}
		}
		valuedAt = cursor.LastCompletedDate
	}

	total := p.Cash.Add(p.Bank)
	for _, pos := range positions {
		total = total.Add(pos.Quantity.Mul(pos.LastPrice))
	}

	return &Detail{
		Portfolio:  p,
		Positions:  positions,
		Cursor:     cursor,
		Status:     status,
		TotalValue: total,
		ValuedAt:   valuedAt,
	}, nil
}

// SetActive marks the portfolio for (or removes it from) daily auto-stepping
func (s *Service) SetActive(ctx context.Context, portfolioID int64, active bool) error {
	sched := s.scheduler
	unlock := sched.lock(portfolioID)
	defer unlock()

	p, err := s.load(ctx, portfolioID)
	if err != nil {
		return err
	}
	p.Active = active
	return sched.Portfolios.SaveBalances(ctx, sched.DB, p)
}

// StepOnce advances the portfolio by one trading day
func (s *Service) StepOnce(ctx context.Context, portfolioID int64) (*StepResult, error) {
	return s.scheduler.Step(ctx, portfolioID)
}

// RunSimulation runs the portfolio to its target date
func (s *Service) RunSimulation(ctx context.Context, portfolioID int64) (*RunResult, error) {
	return s.scheduler.Run(ctx, portfolioID)
}

// RunMany runs several portfolios in parallel
func (s *Service) RunMany(ctx context.Context, portfolioIDs []int64, workers int) []Outcome {
	return s.scheduler.RunMany(ctx, portfolioIDs, workers)
}

// ResetPortfolio discards the portfolio's simulated history
func (s *Service) ResetPortfolio(ctx context.Context, portfolioID int64) error {
	return s.scheduler.Reset(ctx, portfolioID)
}

// StepActive advances every active portfolio by one day. Portfolios already
// at the newest market date are left alone. Returns the number stepped.
func (s *Service) StepActive(ctx context.Context) (int, error) {
	sched := s.scheduler
	portfolios, err := sched.Portfolios.ListActive(ctx, sched.DB)
	if err != nil {
		return 0, err
	}

	stepped := 0
	for _, p := range portfolios {
		if err := ctx.Err(); err != nil {
			return stepped, err
		}
		_, err := sched.Step(ctx, p.ID)
		switch {
		case err == nil:
			stepped++
		case errors.Is(err, domain.ErrMarketDataExhausted):
			// No new bars yet
		default:
			s.log.Warn().Err(err).Int64("portfolio_id", p.ID).Msg("Auto-step failed")
		}
	}
	return stepped, nil
}

// FavoredRecommendations evaluates the portfolio's strategy over its universe
// and holdings as of the last simulated day (or the newest market date before
// the first step). Strongest first, ties by symbol.
func (s *Service) FavoredRecommendations(ctx context.Context, portfolioID int64) ([]recommendations.Recommendation, error) {
	sched := s.scheduler
	p, err := s.load(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	date, err := s.evaluationDate(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	catalog, err := sched.Market.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	book, err := ledger.LoadBook(ctx, sched.DB, sched.Ledger, portfolioID)
	if err != nil {
		return nil, err
	}

	symbols := book.Symbols()
	for symbol := range recommendations.Universe(p.Policy, catalog) {
		symbols = append(symbols, symbol)
	}

	recs, err := sched.Engine.Favored(ctx, p, symbols, date)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Strength != recs[j].Strength {
			return recs[i].Strength > recs[j].Strength
		}
		return recs[i].Symbol < recs[j].Symbol
	})
	return recs, nil
}

func (s *Service) evaluationDate(ctx context.Context, portfolioID int64) (time.Time, error) {
	cursor, err := s.scheduler.Repo.GetCursor(ctx, s.scheduler.DB, portfolioID)
	if err != nil {
		return time.Time{}, err
	}
	if cursor != nil && cursor.LastCompletedDate != nil {
		return *cursor.LastCompletedDate, nil
	}
	return s.scheduler.Market.LatestDate(ctx)
}

// StrategyGrid evaluates every strategy for every symbol on date. A zero date
// means the newest market date.
func (s *Service) StrategyGrid(ctx context.Context, symbols []string, date time.Time) (recommendations.Grid, error) {
	sched := s.scheduler
	if date.IsZero() {
		latest, err := sched.Market.LatestDate(ctx)
		if err != nil {
			return nil, err
		}
		date = latest
	}
	return sched.Engine.Grid(ctx, symbols, utils.Day(date))
}

// PlaceManualOrder executes a user order. Manual orders ignore the holding
// period but pass every other validation layer. A rejection is returned as a
// *domain.RejectionError and leaves the ledger untouched.
func (s *Service) PlaceManualOrder(ctx context.Context, portfolioID int64, mo ManualOrder) (*ledger.Transaction, error) {
	sched := s.scheduler
	unlock := sched.lock(portfolioID)
	defer unlock()

	order := domain.Order{
		Symbol:   mo.Symbol,
		Side:     mo.Side,
		Quantity: mo.Quantity,
		Price:    mo.Price,
		Date:     utils.Day(mo.Date),
		Source:   domain.SourceManual,
	}

	var txn *ledger.Transaction
	err := database.WithTransactionContext(ctx, sched.DB, func(tx *sql.Tx) error {
		p, err := sched.Portfolios.GetByID(ctx, tx, portfolioID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: %d", domain.ErrPortfolioNotFound, portfolioID)
		}

		book, err := ledger.LoadBook(ctx, tx, sched.Ledger, portfolioID)
		if err != nil {
			return err
		}
		marks, err := marksAsOf(ctx, sched.Market, book.Symbols(), order.Date, map[string]decimal.Decimal{})
		if err != nil {
			return err
		}

		fill, err := sched.Executor.Execute(ctx, tx, p, book, marks, order)
		if err != nil {
			return err
		}
		txn = fill.Transaction
		return nil
	})
	if err != nil {
		return nil, s.classify("manual order", err)
	}
	return txn, nil
}

// Deposit adds money to the portfolio's cash and invested principal
func (s *Service) Deposit(ctx context.Context, portfolioID int64, amount decimal.Decimal, date time.Time) (*portfolio.Portfolio, error) {
	return s.moveCash(ctx, portfolioID, func(tx *sql.Tx, p *portfolio.Portfolio) error {
		return s.scheduler.Cash.Deposit(ctx, tx, p, amount, utils.Day(date), "")
	})
}

// Withdraw takes money out of the portfolio's cash and invested principal
func (s *Service) Withdraw(ctx context.Context, portfolioID int64, amount decimal.Decimal, date time.Time) (*portfolio.Portfolio, error) {
	return s.moveCash(ctx, portfolioID, func(tx *sql.Tx, p *portfolio.Portfolio) error {
		return s.scheduler.Cash.Withdraw(ctx, tx, p, amount, utils.Day(date))
	})
}

func (s *Service) moveCash(ctx context.Context, portfolioID int64, fn func(*sql.Tx, *portfolio.Portfolio) error) (*portfolio.Portfolio, error) {
	sched := s.scheduler
	unlock := sched.lock(portfolioID)
	defer unlock()

	var out *portfolio.Portfolio
	err := database.WithTransactionContext(ctx, sched.DB, func(tx *sql.Tx) error {
		p, err := sched.Portfolios.GetByID(ctx, tx, portfolioID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: %d", domain.ErrPortfolioNotFound, portfolioID)
		}
		if err := fn(tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, s.classify("cash movement", err)
	}
	return out, nil
}

// Metrics computes the ordered performance metrics of the portfolio
func (s *Service) Metrics(ctx context.Context, portfolioID int64) (performance.Metrics, error) {
	if _, err := s.load(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.scheduler.Tracker.Metrics(ctx, s.scheduler.DB, portfolioID)
}

// Snapshots returns the portfolio's snapshot history in date order
func (s *Service) Snapshots(ctx context.Context, portfolioID int64) ([]*performance.Snapshot, error) {
	if _, err := s.load(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.scheduler.Tracker.Repository().List(ctx, s.scheduler.DB, portfolioID)
}

// Transactions returns the portfolio's trade ledger
func (s *Service) Transactions(ctx context.Context, portfolioID int64) ([]*ledger.Transaction, error) {
	return s.scheduler.Ledger.Transactions(ctx, s.scheduler.DB, portfolioID)
}

// Warnings returns the days skipped for missing data and other warnings
func (s *Service) Warnings(ctx context.Context, portfolioID int64) ([]Warning, error) {
	return s.scheduler.Repo.Warnings(ctx, s.scheduler.DB, portfolioID)
}

func (s *Service) load(ctx context.Context, portfolioID int64) (*portfolio.Portfolio, error) {
	p, err := s.scheduler.Portfolios.GetByID(ctx, s.scheduler.DB, portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %d", domain.ErrPortfolioNotFound, portfolioID)
	}
	return p, nil
}

// classify passes rejections and lookups through and wraps storage failures
func (s *Service) classify(op string, err error) error {
	if rej, ok := domain.AsRejection(err); ok {
		return rej
	}
	if errors.Is(err, domain.ErrPortfolioNotFound) {
		return err
	}
	s.log.Error().Err(err).Str("op", op).Msg("Operation rolled back")
	return domain.NewPersistenceError(op, err)
}

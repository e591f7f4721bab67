package simulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/cash_flows"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/marketdata"
	"github.com/aristath/simtrader/internal/modules/performance"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/recommendations"
	"github.com/aristath/simtrader/internal/modules/trading"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Runs longer than this are logged as slow
const slowRunThreshold = 5 * time.Minute

// MarketData is the market-side collaborator of the scheduler
type MarketData interface {
	marketdata.Feed
	marketdata.Catalog
	marketdata.Calendar
	marketdata.SeriesSource
}

// Deps are the collaborators a Scheduler drives
type Deps struct {
	DB              *sql.DB
	Market          MarketData
	Engine          *recommendations.Engine
	Portfolios      *portfolio.Repository
	Ledger          *ledger.Repository
	Recommendations *recommendations.Repository
	Executor        *trading.Executor
	Cash            *cash_flows.Manager
	Tracker         *performance.Tracker
	Repo            *Repository
}

// Options tune scheduler behavior
type Options struct {
	HaltOnMissingData bool     // Fail the step instead of skipping the date
	FractionalSectors []string // Sectors traded in fractional quantities
	EntryMinimum      bool     // Engine buys must open positions at or above trading.EntryMinimum
	Workers           int      // RunMany parallelism; 0 = physical cores - 1
	Now               func() time.Time
}

// Scheduler is the per-portfolio simulation state machine
type Scheduler struct {
	Deps
	opts Options

	mu      sync.Mutex
	locks   map[int64]*sync.Mutex
	running map[int64]bool

	log zerolog.Logger
}

// NewScheduler creates a scheduler
func NewScheduler(deps Deps, opts Options, log zerolog.Logger) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		Deps:    deps,
		opts:    opts,
		locks:   make(map[int64]*sync.Mutex),
		running: make(map[int64]bool),
		log:     log.With().Str("component", "simulation_scheduler").Logger(),
	}
}

// lock serializes every mutation of one portfolio. Different portfolios never contend.
func (s *Scheduler) lock(portfolioID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[portfolioID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[portfolioID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Scheduler) setRunning(portfolioID int64, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if running {
		s.running[portfolioID] = true
	} else {
		delete(s.running, portfolioID)
	}
}

// today is the current date according to the scheduler clock
func (s *Scheduler) today() time.Time {
	return utils.Day(s.opts.Now())
}

// Workers resolves the bulk-run parallelism
func (s *Scheduler) Workers() int {
	if s.opts.Workers > 0 {
		return s.opts.Workers
	}
	return DefaultWorkers()
}

// DefaultWorkers leaves one physical core free, with a floor of one worker
func DefaultWorkers() int {
	n, err := cpu.Counts(false)
	if err != nil || n < 2 {
		return 1
	}
	return n - 1
}

// Status returns the portfolio's scheduler state
func (s *Scheduler) Status(ctx context.Context, portfolioID int64) (Status, error) {
	s.mu.Lock()
	running := s.running[portfolioID]
	s.mu.Unlock()
	if running {
		return StatusRunning, nil
	}

	cursor, err := s.Repo.GetCursor(ctx, s.DB, portfolioID)
	if err != nil {
		return "", err
	}
	if cursor == nil {
		return StatusNotStarted, nil
	}
	return cursor.Status(), nil
}

// Cursor returns the portfolio's cursor, or ErrNoCursor
func (s *Scheduler) Cursor(ctx context.Context, portfolioID int64) (*Cursor, error) {
	cursor, err := s.Repo.GetCursor(ctx, s.DB, portfolioID)
	if err != nil {
		return nil, err
	}
	if cursor == nil {
		return nil, ErrNoCursor
	}
	return cursor, nil
}

// Configure creates the cursor or changes its target. Progress is kept when
// the cursor already exists.
func (s *Scheduler) Configure(ctx context.Context, portfolioID int64, firstDate time.Time, runLengthDays int) (*Cursor, error) {
	if runLengthDays < 0 {
		return nil, fmt.Errorf("run length must not be negative, got %d", runLengthDays)
	}

	unlock := s.lock(portfolioID)
	defer unlock()

	var cursor *Cursor
	err := database.WithTransactionContext(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		cursor, err = s.configure(ctx, tx, portfolioID, firstDate, runLengthDays)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

func (s *Scheduler) configure(ctx context.Context, q database.Queryer, portfolioID int64, firstDate time.Time, runLengthDays int) (*Cursor, error) {
	cursor, err := s.Repo.GetCursor(ctx, q, portfolioID)
	if err != nil {
		return nil, err
	}
	if cursor == nil {
		cursor = &Cursor{PortfolioID: portfolioID}
	}
	cursor.FirstDate = utils.Day(firstDate)
	cursor.RunLengthDays = runLengthDays

	if err := s.Repo.SaveCursor(ctx, q, cursor); err != nil {
		return nil, err
	}
	return cursor, nil
}

// Step simulates the next trading day of the portfolio.
//
// Returns:
//   - *StepResult: The simulated (or skipped) day
//   - error: ErrNoCursor, domain.ErrMarketDataExhausted, domain.ErrMissingMarketData
//     (halt policy), or a domain.PersistenceError after which nothing was written
func (s *Scheduler) Step(ctx context.Context, portfolioID int64) (*StepResult, error) {
	unlock := s.lock(portfolioID)
	defer unlock()

	return s.step(ctx, portfolioID, s.Market, s.Engine, s.log)
}

// Run steps the portfolio until its cursor reaches the target date or market
// data runs out. Cancelling ctx stops the run between days; the cursor then
// sits on the last committed day and a later Run resumes from there.
func (s *Scheduler) Run(ctx context.Context, portfolioID int64) (*RunResult, error) {
	unlock := s.lock(portfolioID)
	defer unlock()

	s.setRunning(portfolioID, true)
	defer s.setRunning(portfolioID, false)

	run := &Run{
		ID:          uuid.New().String(),
		PortfolioID: portfolioID,
		StartedAt:   s.opts.Now().UTC(),
		Status:      StatusRunning,
	}
	log := s.log.With().Str("run_id", run.ID).Int64("portfolio_id", portfolioID).Logger()

	cursor, err := s.Cursor(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.StartRun(ctx, s.DB, run); err != nil {
		return nil, err
	}

	// One cached feed per run: every symbol is read from storage once
	feed := marketdata.NewCachedFeed(s.Market)
	engine := s.Engine.WithFeed(feed)

	done := utils.OperationTimer("simulation_run", slowRunThreshold, log)
	result, runErr := s.runLoop(ctx, cursor, feed, engine, run, log)
	done(result.DaysStepped)

	run.Status = result.Status
	run.DaysStepped = result.DaysStepped
	if runErr != nil {
		run.Error = runErr.Error()
	}
	finished := s.opts.Now().UTC()
	run.FinishedAt = &finished
	// The audit row must survive a cancelled ctx
	if err := s.Repo.FinishRun(context.WithoutCancel(ctx), s.DB, run); err != nil {
		log.Error().Err(err).Msg("Failed to record run outcome")
	}

	snapshot, err := s.Tracker.Repository().Latest(context.WithoutCancel(ctx), s.DB, portfolioID)
	if err != nil && runErr == nil {
		runErr = err
	}
	result.FinalSnapshot = snapshot

	log.Info().
		Str("status", string(result.Status)).
		Int("days", result.DaysStepped).
		Msg("Simulation run finished")

	return result, runErr
}

func (s *Scheduler) runLoop(
	ctx context.Context,
	cursor *Cursor,
	feed marketdata.Feed,
	engine *recommendations.Engine,
	run *Run,
	log zerolog.Logger,
) (*RunResult, error) {
	result := &RunResult{RunID: run.ID, PortfolioID: cursor.PortfolioID, Status: StatusPaused}

	if cursor.Reached() {
		result.Status = StatusCompleted
		return result, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		step, err := s.step(ctx, cursor.PortfolioID, feed, engine, log)
		if errors.Is(err, domain.ErrMarketDataExhausted) {
			result.Status = StatusCompleted
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result.DaysStepped++

		if !step.Date.Before(cursor.Target()) {
			result.Status = StatusCompleted
			return result, nil
		}
	}
}

// RunMany runs several portfolios in parallel, bounded by the worker count.
// Portfolios are independent: one failure never stops the others. Outcomes
// follow the order of portfolioIDs.
func (s *Scheduler) RunMany(ctx context.Context, portfolioIDs []int64, workers int) []Outcome {
	if workers <= 0 {
		workers = s.Workers()
	}

	outcomes := make([]Outcome, len(portfolioIDs))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, id := range portfolioIDs {
		i, id := i, id
		g.Go(func() error {
			result, err := s.Run(ctx, id)
			outcomes[i] = Outcome{PortfolioID: id, Result: result, Err: err}
			if err != nil {
				s.log.Warn().Err(err).Int64("portfolio_id", id).Msg("Bulk run ended with an error")
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info().Int("portfolios", len(portfolioIDs)).Int("workers", workers).Msg("Bulk run finished")
	return outcomes
}

// Reset discards every ledger entry, snapshot, recommendation and warning of
// the portfolio, restores its initial cash and rewinds the cursor to today.
// The portfolio ends inactive.
func (s *Scheduler) Reset(ctx context.Context, portfolioID int64) error {
	unlock := s.lock(portfolioID)
	defer unlock()

	today := s.today()
	err := database.WithTransactionContext(ctx, s.DB, func(tx *sql.Tx) error {
		p, err := s.Portfolios.GetByID(ctx, tx, portfolioID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: %d", domain.ErrPortfolioNotFound, portfolioID)
		}

		if err := s.Ledger.Purge(ctx, tx, portfolioID); err != nil {
			return err
		}
		if err := s.Tracker.Repository().DeleteAll(ctx, tx, portfolioID); err != nil {
			return err
		}
		if err := s.Recommendations.DeleteAll(ctx, tx, portfolioID); err != nil {
			return err
		}
		if err := s.Repo.DeleteWarnings(ctx, tx, portfolioID); err != nil {
			return err
		}

		p.Cash = p.InitialCash
		p.Invested = p.InitialCash
		p.Bank = decimal.Zero
		p.LastActive = nil
		p.Active = false
		if err := s.Portfolios.SaveBalances(ctx, tx, p); err != nil {
			return err
		}
		if p.InitialCash.IsPositive() {
			if err := s.Ledger.AppendCashTransaction(ctx, tx, &ledger.CashTransaction{
				PortfolioID: p.ID,
				Type:        ledger.CashDeposit,
				Amount:      p.InitialCash,
				Date:        today,
				Description: InitialDepositDescription,
			}); err != nil {
				return err
			}
		}

		cursor, err := s.Repo.GetCursor(ctx, tx, portfolioID)
		if err != nil {
			return err
		}
		if cursor == nil {
			cursor = &Cursor{PortfolioID: portfolioID}
		}
		cursor.FirstDate = today
		cursor.LastCompletedDate = nil
		cursor.DaysCompleted = 0
		return s.Repo.SaveCursor(ctx, tx, cursor)
	})
	if err != nil {
		if errors.Is(err, domain.ErrPortfolioNotFound) {
			return err
		}
		return domain.NewPersistenceError("reset", err)
	}

	s.log.Info().Int64("portfolio_id", portfolioID).Str("first_date", utils.FormatDate(today)).Msg("Portfolio reset")
	return nil
}

// InitialDepositDescription labels the opening DEPOSIT of a portfolio
const InitialDepositDescription = "Initial deposit"

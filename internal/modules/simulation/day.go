package simulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/cash_flows"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/marketdata"
	"github.com/aristath/simtrader/internal/modules/recommendations"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// step simulates one day inside a single transaction. Nothing, the cursor
// included, is written unless the whole day commits.
func (s *Scheduler) step(
	ctx context.Context,
	portfolioID int64,
	feed marketdata.Feed,
	engine *recommendations.Engine,
	log zerolog.Logger,
) (*StepResult, error) {
	var result *StepResult
	err := database.WithTransactionContext(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		result, err = s.simulateDay(ctx, tx, portfolioID, feed, engine, log)
		return err
	})
	if err == nil {
		return result, nil
	}

	switch {
	case errors.Is(err, ErrNoCursor),
		errors.Is(err, domain.ErrMarketDataExhausted),
		errors.Is(err, domain.ErrMissingMarketData),
		errors.Is(err, domain.ErrPortfolioNotFound),
		errors.Is(err, domain.ErrUnknownStrategy),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return nil, err
	}

	log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Simulation day rolled back")
	return nil, domain.NewPersistenceError("step", err)
}

// simulateDay runs the day plan:
//  1. rebalance divestments (rebalance months only)
//  2. favored SELLs exit full positions
//  3. favored BUYs, strongest first, sized against the live state
//  4. bank sweep, then reinvestment when the period comes round
//  5. snapshot and cursor advance
func (s *Scheduler) simulateDay(
	ctx context.Context,
	tx *sql.Tx,
	portfolioID int64,
	feed marketdata.Feed,
	engine *recommendations.Engine,
	log zerolog.Logger,
) (*StepResult, error) {
	cursor, err := s.Repo.GetCursor(ctx, tx, portfolioID)
	if err != nil {
		return nil, err
	}
	if cursor == nil {
		return nil, ErrNoCursor
	}

	date, err := s.Market.NextTradingDate(ctx, cursor.After())
	if err != nil {
		return nil, err
	}

	p, err := s.Portfolios.GetByID(ctx, tx, portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %d", domain.ErrPortfolioNotFound, portfolioID)
	}

	book, err := ledger.LoadBook(ctx, tx, s.Ledger, portfolioID)
	if err != nil {
		return nil, err
	}

	catalog, err := s.Market.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	universe := recommendations.Universe(p.Policy, catalog)

	symbols := book.Symbols()
	for symbol := range universe {
		symbols = append(symbols, symbol)
	}

	prices, err := closesOn(ctx, feed, symbols, date)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return s.missingDay(ctx, tx, cursor, date, log)
	}

	marks, err := marksAsOf(ctx, feed, book.Symbols(), date, prices)
	if err != nil {
		return nil, err
	}

	favored, err := engine.Favored(ctx, p, symbols, date)
	if err != nil {
		return nil, err
	}
	if err := s.Recommendations.Upsert(ctx, tx, favored); err != nil {
		return nil, err
	}

	state := recommendations.DayState{
		Portfolio:         p,
		Book:              book,
		Catalog:           catalog,
		Marks:             marks,
		Prices:            prices,
		Date:              date,
		FractionalSectors: s.opts.FractionalSectors,
		EntryMinimum:      s.opts.EntryMinimum,
	}
	result := &StepResult{PortfolioID: portfolioID, Date: date}

	execute := func(order domain.Order) error {
		if _, err := s.Executor.Execute(ctx, tx, p, book, marks, order); err != nil {
			if _, ok := domain.AsRejection(err); ok {
				result.Rejections++
				return nil
			}
			return err
		}
		result.Trades++
		return nil
	}

	if cash_flows.ShouldRebalance(p.Policy, date) {
		for _, order := range recommendations.Divestments(state) {
			if err := execute(order); err != nil {
				return nil, err
			}
		}
	}

	for _, order := range recommendations.Exits(state, favored) {
		if err := execute(order); err != nil {
			return nil, err
		}
	}

	for _, rec := range recommendations.RankBuys(favored, universe) {
		order := recommendations.SizeBuy(state, rec)
		if order == nil {
			continue
		}
		if err := execute(*order); err != nil {
			return nil, err
		}
	}

	swept, err := s.Cash.Sweep(ctx, tx, p, date)
	if err != nil {
		return nil, err
	}
	cursor.DaysCompleted++
	reinvested := decimal.Zero
	if cash_flows.ShouldReinvest(p.Policy, cursor.DaysCompleted) {
		if reinvested, err = s.Cash.Reinvest(ctx, tx, p, date); err != nil {
			return nil, err
		}
	}

	p.LastActive = &date
	if err := s.Portfolios.SaveBalances(ctx, tx, p); err != nil {
		return nil, err
	}

	snapshot, err := s.Tracker.Record(ctx, tx, p, book, marks, date)
	if err != nil {
		return nil, err
	}

	cursor.LastCompletedDate = &date
	if err := s.Repo.SaveCursor(ctx, tx, cursor); err != nil {
		return nil, err
	}

	result.Swept = swept.String()
	result.Reinvested = reinvested.String()
	result.Snapshot = snapshot

	log.Info().
		Int64("portfolio_id", portfolioID).
		Str("date", utils.FormatDate(date)).
		Int("trades", result.Trades).
		Int("rejections", result.Rejections).
		Str("total_value", snapshot.TotalValue.String()).
		Msg("Simulated day")

	return result, nil
}

// missingDay handles a date on which no relevant symbol has a bar
func (s *Scheduler) missingDay(ctx context.Context, tx *sql.Tx, cursor *Cursor, date time.Time, log zerolog.Logger) (*StepResult, error) {
	if s.opts.HaltOnMissingData {
		return nil, fmt.Errorf("%w on %s", domain.ErrMissingMarketData, utils.FormatDate(date))
	}

	if err := s.Repo.AddWarning(ctx, tx, Warning{
		PortfolioID: cursor.PortfolioID,
		Date:        date,
		Kind:        WarningMissingData,
		Message:     "no bar for any universe or held symbol; day skipped",
	}); err != nil {
		return nil, err
	}

	cursor.LastCompletedDate = &date
	if err := s.Repo.SaveCursor(ctx, tx, cursor); err != nil {
		return nil, err
	}

	log.Warn().
		Int64("portfolio_id", cursor.PortfolioID).
		Str("date", utils.FormatDate(date)).
		Msg("Skipped day without market data")

	return &StepResult{
		PortfolioID: cursor.PortfolioID,
		Date:        date,
		Skipped:     true,
		Swept:       "0",
		Reinvested:  "0",
	}, nil
}

// closesOn returns the close of every symbol with a bar dated exactly on date
func closesOn(ctx context.Context, feed marketdata.Feed, symbols []string, date time.Time) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		if _, seen := prices[symbol]; seen {
			continue
		}
		bar, err := feed.GetBar(ctx, symbol, date)
		if errors.Is(err, domain.ErrNotAvailable) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get bar for %s: %w", symbol, err)
		}
		prices[symbol] = bar.Close
	}
	return prices, nil
}

// marksAsOf values held symbols at their last close on or before date.
// Today's closes are reused; other symbols fall back to history.
func marksAsOf(ctx context.Context, feed marketdata.Feed, held []string, date time.Time, prices map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	marks := make(map[string]decimal.Decimal, len(prices)+len(held))
	for symbol, price := range prices {
		marks[symbol] = price
	}
	for _, symbol := range held {
		if _, ok := marks[symbol]; ok {
			continue
		}
		bars, err := feed.History(ctx, symbol, date, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to load last close for %s: %w", symbol, err)
		}
		if len(bars) > 0 {
			marks[symbol] = bars[len(bars)-1].Close
		}
	}
	return marks, nil
}

package performance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/rs/zerolog"
)

// Repository stores performance snapshots, one per (portfolio, date)
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{
		log: log.With().Str("repo", "performance").Logger(),
	}
}

const snapshotColumns = `portfolio_id, date, stock_value, cost_basis, invested, cash, bank,
	total_value, peak_value, drawdown, max_drawdown`

// Append inserts a snapshot. A second snapshot for the same date is an error.
func (r *Repository) Append(ctx context.Context, q database.Queryer, s *Snapshot) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO performance_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.PortfolioID, utils.Day(s.Date).Unix(), s.StockValue.String(), s.CostBasis.String(),
		s.Invested.String(), s.Cash.String(), s.Bank.String(), s.TotalValue.String(),
		s.PeakValue.String(), s.Drawdown, s.MaxDrawdown,
	)
	if err != nil {
		return fmt.Errorf("failed to append snapshot for %s: %w", utils.FormatDate(s.Date), err)
	}
	return nil
}

// Latest returns the most recent snapshot, or nil when there is none
func (r *Repository) Latest(ctx context.Context, q database.Queryer, portfolioID int64) (*Snapshot, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM performance_snapshots
		WHERE portfolio_id = ?
		ORDER BY date DESC
		LIMIT 1`, portfolioID)

	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return s, nil
}

// List returns the snapshot history in date order
func (r *Repository) List(ctx context.Context, q database.Queryer, portfolioID int64) ([]*Snapshot, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM performance_snapshots
		WHERE portfolio_id = ?
		ORDER BY date`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*Snapshot, 0)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// DeleteAll removes every snapshot of a portfolio
func (r *Repository) DeleteAll(ctx context.Context, q database.Queryer, portfolioID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM performance_snapshots WHERE portfolio_id = ?`, portfolioID); err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}

func scanSnapshot(row interface{ Scan(...any) error }) (*Snapshot, error) {
	var s Snapshot
	var date int64
	err := row.Scan(
		&s.PortfolioID, &date, &s.StockValue, &s.CostBasis, &s.Invested, &s.Cash, &s.Bank,
		&s.TotalValue, &s.PeakValue, &s.Drawdown, &s.MaxDrawdown,
	)
	if err != nil {
		return nil, err
	}
	s.Date = utils.UnixToDate(date)
	return &s, nil
}

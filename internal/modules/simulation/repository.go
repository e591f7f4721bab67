package simulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/rs/zerolog"
)

// Repository persists cursors, warnings and run audits
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a simulation repository
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{
		log: log.With().Str("repo", "simulation").Logger(),
	}
}

const cursorColumns = `portfolio_id, first_date, run_length_days, last_completed_date, days_completed`

// GetCursor returns the portfolio's cursor, or nil if none exists
func (r *Repository) GetCursor(ctx context.Context, q database.Queryer, portfolioID int64) (*Cursor, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+cursorColumns+` FROM simulation_cursors WHERE portfolio_id = ?`, portfolioID)

	var (
		c         Cursor
		firstDate int64
		last      sql.NullInt64
	)
	err := row.Scan(&c.PortfolioID, &firstDate, &c.RunLengthDays, &last, &c.DaysCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	c.FirstDate = utils.UnixToDate(firstDate)
	if last.Valid {
		d := utils.UnixToDate(last.Int64)
		c.LastCompletedDate = &d
	}
	return &c, nil
}

// SaveCursor inserts or replaces the cursor
func (r *Repository) SaveCursor(ctx context.Context, q database.Queryer, c *Cursor) error {
	var last sql.NullInt64
	if c.LastCompletedDate != nil {
		last = sql.NullInt64{Int64: utils.Day(*c.LastCompletedDate).Unix(), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO simulation_cursors (`+cursorColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (portfolio_id) DO UPDATE SET
			first_date = excluded.first_date,
			run_length_days = excluded.run_length_days,
			last_completed_date = excluded.last_completed_date,
			days_completed = excluded.days_completed
	`, c.PortfolioID, utils.Day(c.FirstDate).Unix(), c.RunLengthDays, last, c.DaysCompleted)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// AddWarning records a recoverable condition for a simulated date
func (r *Repository) AddWarning(ctx context.Context, q database.Queryer, w Warning) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO simulation_warnings (portfolio_id, date, kind, message) VALUES (?, ?, ?, ?)`,
		w.PortfolioID, utils.Day(w.Date).Unix(), w.Kind, w.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to add warning: %w", err)
	}
	return nil
}

// Warnings lists the portfolio's warnings in date order
func (r *Repository) Warnings(ctx context.Context, q database.Queryer, portfolioID int64) ([]Warning, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT portfolio_id, date, kind, message FROM simulation_warnings WHERE portfolio_id = ? ORDER BY date, id`,
		portfolioID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query warnings: %w", err)
	}
	defer rows.Close()

	warnings := make([]Warning, 0)
	for rows.Next() {
		var w Warning
		var date int64
		if err := rows.Scan(&w.PortfolioID, &date, &w.Kind, &w.Message); err != nil {
			return nil, fmt.Errorf("failed to scan warning: %w", err)
		}
		w.Date = utils.UnixToDate(date)
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// DeleteWarnings removes every warning of the portfolio
func (r *Repository) DeleteWarnings(ctx context.Context, q database.Queryer, portfolioID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM simulation_warnings WHERE portfolio_id = ?`, portfolioID); err != nil {
		return fmt.Errorf("failed to delete warnings: %w", err)
	}
	return nil
}

// StartRun records the beginning of a bulk run
func (r *Repository) StartRun(ctx context.Context, q database.Queryer, run *Run) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO simulation_runs (run_id, portfolio_id, started_at, status) VALUES (?, ?, ?, ?)`,
		run.ID, run.PortfolioID, run.StartedAt.Unix(), string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a bulk run
func (r *Repository) FinishRun(ctx context.Context, q database.Queryer, run *Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	_, err := q.ExecContext(ctx,
		`UPDATE simulation_runs SET finished_at = ?, status = ?, days_stepped = ?, error = ? WHERE run_id = ?`,
		finished.Unix(), string(run.Status), run.DaysStepped, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// Runs lists the run audit of a portfolio, most recent first
func (r *Repository) Runs(ctx context.Context, q database.Queryer, portfolioID int64) ([]Run, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT run_id, portfolio_id, started_at, finished_at, status, days_stepped, error
		FROM simulation_runs WHERE portfolio_id = ? ORDER BY started_at DESC, rowid DESC
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run      Run
			started  int64
			finished sql.NullInt64
			status   string
		)
		if err := rows.Scan(&run.ID, &run.PortfolioID, &started, &finished, &status, &run.DaysStepped, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			t := time.Unix(finished.Int64, 0).UTC()
			run.FinishedAt = &t
		}
		run.Status = Status(status)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Package simulation drives portfolios forward one trading day at a time.
//
// Each portfolio owns a persisted Cursor. A step evaluates the day, executes
// the resulting orders, settles cash and records a snapshot, then advances the
// cursor, all inside one database transaction. Runs repeat steps until the
// cursor reaches its target, and may be cancelled between days.
package simulation

import (
	"errors"
	"time"

	"github.com/aristath/simtrader/internal/modules/performance"
)

// ErrNoCursor is returned when a portfolio has never been configured for simulation
var ErrNoCursor = errors.New("simulation cursor not configured")

// Status is the scheduler state of a portfolio
type Status string

const (
	StatusNotStarted Status = "NotStarted"
	StatusRunning    Status = "Running"
	StatusPaused     Status = "Paused"
	StatusCompleted  Status = "Completed"
)

// Warning kinds
const (
	WarningMissingData = "missing_market_data"
)

// Cursor is the resumable progress marker of one portfolio
type Cursor struct {
	PortfolioID       int64      `json:"portfolio_id"`
	FirstDate         time.Time  `json:"first_date"`
	RunLengthDays     int        `json:"run_length_days"`
	LastCompletedDate *time.Time `json:"last_completed_date,omitempty"`
	DaysCompleted     int        `json:"days_completed"` // Trading days simulated, skipped days excluded
}

// Target is the date a run must reach
func (c *Cursor) Target() time.Time {
	return c.FirstDate.AddDate(0, 0, c.RunLengthDays)
}

// Reached reports whether the last completed date is on or past the target
func (c *Cursor) Reached() bool {
	return c.LastCompletedDate != nil && !c.LastCompletedDate.Before(c.Target())
}

// Status derives the persisted state. Running is tracked by the scheduler.
func (c *Cursor) Status() Status {
	switch {
	case c.LastCompletedDate == nil:
		return StatusNotStarted
	case c.Reached():
		return StatusCompleted
	default:
		return StatusPaused
	}
}

// After is the date the next step searches forward from
func (c *Cursor) After() time.Time {
	if c.LastCompletedDate != nil {
		return *c.LastCompletedDate
	}
	return c.FirstDate.AddDate(0, 0, -1)
}

// Warning is a recoverable condition recorded against a simulated date
type Warning struct {
	PortfolioID int64     `json:"portfolio_id"`
	Date        time.Time `json:"date"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
}

// Run is the audit record of one bulk run
type Run struct {
	ID          string     `json:"run_id"`
	PortfolioID int64      `json:"portfolio_id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Status      Status     `json:"status"`
	DaysStepped int        `json:"days_stepped"`
	Error       string     `json:"error,omitempty"`
}

// StepResult describes one simulated day
type StepResult struct {
	PortfolioID int64                 `json:"portfolio_id"`
	Date        time.Time             `json:"date"`
	Skipped     bool                  `json:"skipped"`
	Trades      int                   `json:"trades"`
	Rejections  int                   `json:"rejections"`
	Swept       string                `json:"swept"`
	Reinvested  string                `json:"reinvested"`
	Snapshot    *performance.Snapshot `json:"snapshot,omitempty"` // nil on skipped days
}

// RunResult describes a finished or interrupted run
type RunResult struct {
	RunID         string                `json:"run_id"`
	PortfolioID   int64                 `json:"portfolio_id"`
	Status        Status                `json:"status"`
	DaysStepped   int                   `json:"days_stepped"`
	FinalSnapshot *performance.Snapshot `json:"final_snapshot,omitempty"`
}

// Outcome pairs a portfolio with its bulk-run result
type Outcome struct {
	PortfolioID int64
	Result      *RunResult
	Err         error
}

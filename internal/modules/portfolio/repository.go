package portfolio

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repository handles portfolio persistence.
// Every method takes a database.Queryer so callers can run it inside the
// per-day transaction or directly against the connection.
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

const portfolioColumns = `id, name, strategy, reserve_cash_percent, bank_threshold, bank_percent,
	rebalance_months, dividend_only, sectors_allowed, sectors_forbidden, max_exposure_percent,
	reinvest_period, reinvest_amount, min_holding_days, initial_cash, cash, bank, invested,
	last_active, active, created_at`

// Create inserts a portfolio whose cash and invested principal equal its initial cash.
//
// Parameters:
//   - q: Connection or transaction
//   - name: Unique portfolio name
//   - policy: Validated policy
//   - initialCash: Opening deposit
//
// Returns:
//   - *Portfolio: Created portfolio with ID populated
//   - error: Error if validation or the insert fails
func (r *Repository) Create(ctx context.Context, q database.Queryer, name string, policy Policy, initialCash decimal.Decimal, now time.Time) (*Portfolio, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if initialCash.IsNegative() {
		return nil, fmt.Errorf("initial cash must not be negative, got %s", initialCash)
	}

	months, allowed, forbidden, err := encodeLists(policy)
	if err != nil {
		return nil, err
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO portfolios (
			name, strategy, reserve_cash_percent, bank_threshold, bank_percent,
			rebalance_months, dividend_only, sectors_allowed, sectors_forbidden, max_exposure_percent,
			reinvest_period, reinvest_amount, min_holding_days, initial_cash, cash, bank, invested,
			last_active, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '0', ?, NULL, 0, ?)`,
		name, policy.Strategy, policy.ReserveCashPercent.String(), policy.BankThreshold.String(), policy.BankPercent.String(),
		months, boolToInt(policy.DividendOnly), allowed, forbidden, policy.MaxExposurePercent.String(),
		policy.ReinvestPeriod, policy.ReinvestAmount.String(), policy.MinHoldingDays,
		initialCash.String(), initialCash.String(), initialCash.String(),
		now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert portfolio %s: %w", name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	r.log.Info().Int64("portfolio_id", id).Str("name", name).Str("strategy", policy.Strategy).Msg("Portfolio created")

	return r.GetByID(ctx, q, id)
}

// GetByID returns the portfolio, or nil if it does not exist
func (r *Repository) GetByID(ctx context.Context, q database.Queryer, id int64) (*Portfolio, error) {
	row := q.QueryRowContext(ctx, `SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, id)

	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %d: %w", id, err)
	}

	return p, nil
}

// List returns all portfolios ordered by ID
func (r *Repository) List(ctx context.Context, q database.Queryer) ([]*Portfolio, error) {
	return r.list(ctx, q, `SELECT `+portfolioColumns+` FROM portfolios ORDER BY id`)
}

// ListActive returns portfolios flagged for automatic daily stepping
func (r *Repository) ListActive(ctx context.Context, q database.Queryer) ([]*Portfolio, error) {
	return r.list(ctx, q, `SELECT `+portfolioColumns+` FROM portfolios WHERE active = 1 ORDER BY id`)
}

func (r *Repository) list(ctx context.Context, q database.Queryer, query string) ([]*Portfolio, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := make([]*Portfolio, 0)
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

// SaveBalances persists the running balances and activity markers
func (r *Repository) SaveBalances(ctx context.Context, q database.Queryer, p *Portfolio) error {
	if p.Cash.IsNegative() {
		return fmt.Errorf("refusing to persist negative cash %s for portfolio %d", p.Cash, p.ID)
	}

	var lastActive any
	if p.LastActive != nil {
		lastActive = utils.Day(*p.LastActive).Unix()
	}

	res, err := q.ExecContext(ctx, `
		UPDATE portfolios
		SET cash = ?, bank = ?, invested = ?, initial_cash = ?, last_active = ?, active = ?
		WHERE id = ?`,
		p.Cash.String(), p.Bank.String(), p.Invested.String(), p.InitialCash.String(),
		lastActive, boolToInt(p.Active), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save balances for portfolio %d: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("portfolio %d not found", p.ID)
	}

	return nil
}

// SavePolicy persists a validated policy
func (r *Repository) SavePolicy(ctx context.Context, q database.Queryer, id int64, policy Policy) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	months, allowed, forbidden, err := encodeLists(policy)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		UPDATE portfolios
		SET strategy = ?, reserve_cash_percent = ?, bank_threshold = ?, bank_percent = ?,
			rebalance_months = ?, dividend_only = ?, sectors_allowed = ?, sectors_forbidden = ?,
			max_exposure_percent = ?, reinvest_period = ?, reinvest_amount = ?, min_holding_days = ?
		WHERE id = ?`,
		policy.Strategy, policy.ReserveCashPercent.String(), policy.BankThreshold.String(), policy.BankPercent.String(),
		months, boolToInt(policy.DividendOnly), allowed, forbidden,
		policy.MaxExposurePercent.String(), policy.ReinvestPeriod, policy.ReinvestAmount.String(), policy.MinHoldingDays,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to save policy for portfolio %d: %w", id, err)
	}

	return nil
}

func scanPortfolio(row interface{ Scan(...any) error }) (*Portfolio, error) {
	var p Portfolio
	var months, allowed, forbidden string
	var dividendOnly, active int
	var lastActive sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&p.ID, &p.Name, &p.Policy.Strategy, &p.Policy.ReserveCashPercent, &p.Policy.BankThreshold, &p.Policy.BankPercent,
		&months, &dividendOnly, &allowed, &forbidden, &p.Policy.MaxExposurePercent,
		&p.Policy.ReinvestPeriod, &p.Policy.ReinvestAmount, &p.Policy.MinHoldingDays,
		&p.InitialCash, &p.Cash, &p.Bank, &p.Invested,
		&lastActive, &active, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(months), &p.Policy.RebalanceMonths); err != nil {
		return nil, fmt.Errorf("failed to decode rebalance_months: %w", err)
	}
	if err := json.Unmarshal([]byte(allowed), &p.Policy.SectorsAllowed); err != nil {
		return nil, fmt.Errorf("failed to decode sectors_allowed: %w", err)
	}
	if err := json.Unmarshal([]byte(forbidden), &p.Policy.SectorsForbidden); err != nil {
		return nil, fmt.Errorf("failed to decode sectors_forbidden: %w", err)
	}

	p.Policy.DividendOnly = dividendOnly == 1
	p.Active = active == 1
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lastActive.Valid {
		t := utils.UnixToDate(lastActive.Int64)
		p.LastActive = &t
	}

	return &p, nil
}

func encodeLists(policy Policy) (months, allowed, forbidden string, err error) {
	enc := func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode policy list: %w", err)
		}
		return string(b), nil
	}

	m := policy.RebalanceMonths
	if m == nil {
		m = []int{}
	}
	a := policy.SectorsAllowed
	if a == nil {
		a = []string{}
	}
	f := policy.SectorsForbidden
	if f == nil {
		f = []string{}
	}

	if months, err = enc(m); err != nil {
		return
	}
	if allowed, err = enc(a); err != nil {
		return
	}
	forbidden, err = enc(f)
	return
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

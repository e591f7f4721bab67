package cash_flows

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Manager moves money between operating cash, the bank and the outside world.
// Each movement updates the portfolio balances and appends one signed entry to
// the cash ledger through the caller's Queryer.
type Manager struct {
	ledgerRepo    *ledger.Repository
	portfolioRepo *portfolio.Repository
	log           zerolog.Logger
}

// NewManager creates a new cash manager
func NewManager(ledgerRepo *ledger.Repository, portfolioRepo *portfolio.Repository, log zerolog.Logger) *Manager {
	return &Manager{
		ledgerRepo:    ledgerRepo,
		portfolioRepo: portfolioRepo,
		log:           log.With().Str("service", "cash_manager").Logger(),
	}
}

// Sweep moves the eligible excess cash into the bank. Returns the amount moved.
func (m *Manager) Sweep(ctx context.Context, q database.Queryer, p *portfolio.Portfolio, date time.Time) (decimal.Decimal, error) {
	amount := SweepAmount(p.Policy, p.Cash)
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}

	p.Cash = p.Cash.Sub(amount)
	p.Bank = p.Bank.Add(amount)
	if err := m.record(ctx, q, p, ledger.CashBank, amount.Neg(), date, "Bank sweep"); err != nil {
		return decimal.Zero, err
	}

	m.log.Debug().Int64("portfolio_id", p.ID).Str("amount", amount.String()).Msg("Swept cash to bank")
	return amount, nil
}

// Reinvest moves min(reinvest_amount, bank) back into operating cash. Returns the amount moved.
func (m *Manager) Reinvest(ctx context.Context, q database.Queryer, p *portfolio.Portfolio, date time.Time) (decimal.Decimal, error) {
	amount := ReinvestAmount(p.Policy, p.Bank)
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}

	p.Bank = p.Bank.Sub(amount)
	p.Cash = p.Cash.Add(amount)
	if err := m.record(ctx, q, p, ledger.CashReinvest, amount, date, "Bank reinvestment"); err != nil {
		return decimal.Zero, err
	}

	m.log.Debug().Int64("portfolio_id", p.ID).Str("amount", amount.String()).Msg("Reinvested from bank")
	return amount, nil
}

// Deposit adds external money to cash and to invested principal
func (m *Manager) Deposit(ctx context.Context, q database.Queryer, p *portfolio.Portfolio, amount decimal.Decimal, date time.Time, description string) error {
	if !amount.IsPositive() {
		return domain.NewRejection(domain.ReasonInvalidOrder, "", "", "deposit amount must be positive, got %s", amount)
	}
	if description == "" {
		description = "Deposit"
	}

	p.Cash = p.Cash.Add(amount)
	p.Invested = p.Invested.Add(amount)
	if err := m.record(ctx, q, p, ledger.CashDeposit, amount, date, description); err != nil {
		return err
	}

	m.log.Info().Int64("portfolio_id", p.ID).Str("amount", amount.String()).Msg("Deposit recorded")
	return nil
}

// Withdraw takes money out of cash and out of invested principal
func (m *Manager) Withdraw(ctx context.Context, q database.Queryer, p *portfolio.Portfolio, amount decimal.Decimal, date time.Time) error {
	if !amount.IsPositive() {
		return domain.NewRejection(domain.ReasonInvalidOrder, "", "", "withdrawal amount must be positive, got %s", amount)
	}
	if amount.GreaterThan(p.Cash) {
		return domain.NewRejection(domain.ReasonInsufficientCash, "", "", "withdrawing %s with only %s cash", amount, p.Cash)
	}

	p.Cash = p.Cash.Sub(amount)
	p.Invested = p.Invested.Sub(amount)
	if err := m.record(ctx, q, p, ledger.CashWithdrawal, amount.Neg(), date, "Withdrawal"); err != nil {
		return err
	}

	m.log.Info().Int64("portfolio_id", p.ID).Str("amount", amount.String()).Msg("Withdrawal recorded")
	return nil
}

func (m *Manager) record(ctx context.Context, q database.Queryer, p *portfolio.Portfolio, typ ledger.CashType, amount decimal.Decimal, date time.Time, description string) error {
	if err := m.ledgerRepo.AppendCashTransaction(ctx, q, &ledger.CashTransaction{
		PortfolioID: p.ID,
		Type:        typ,
		Amount:      amount,
		Date:        date,
		Description: description,
	}); err != nil {
		return err
	}

	if err := m.portfolioRepo.SaveBalances(ctx, q, p); err != nil {
		return fmt.Errorf("failed to save balances after %s: %w", typ, err)
	}
	return nil
}

// Package portfolio provides the portfolio aggregate: policy configuration and
// running balances (cash, bank, invested principal).
package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Policy is the per-portfolio trading and cash configuration
type Policy struct {
	Strategy           string          `json:"strategy"`
	ReserveCashPercent decimal.Decimal `json:"reserve_cash_percent"` // Cash floor as % of total value
	BankThreshold      decimal.Decimal `json:"bank_threshold"`       // Cash above this is eligible for sweeping
	BankPercent        decimal.Decimal `json:"bank_percent"`         // % of the excess swept to bank
	RebalanceMonths    []int           `json:"rebalance_months"`     // 1-12
	DividendOnly       bool            `json:"dividend_only"`
	SectorsAllowed     []string        `json:"sectors_allowed"`
	SectorsForbidden   []string        `json:"sectors_forbidden"`
	MaxExposurePercent decimal.Decimal `json:"max_exposure_percent"` // Per-position cap as % of total value; 0 disables
	ReinvestPeriod     int             `json:"reinvest_period"`      // Simulated days between reinvestments; 0 disables
	ReinvestAmount     decimal.Decimal `json:"reinvest_amount"`
	MinHoldingDays     int             `json:"min_holding_days"` // Applies to automatic sells only
}

// DefaultPolicy returns the standard policy for a strategy
func DefaultPolicy(strategy string) Policy {
	return Policy{
		Strategy:           strategy,
		ReserveCashPercent: decimal.NewFromInt(5),
		BankThreshold:      decimal.NewFromInt(10000),
		BankPercent:        decimal.Zero,
		RebalanceMonths:    []int{1},
		MaxExposurePercent: decimal.NewFromInt(20),
		ReinvestPeriod:     7,
		ReinvestAmount:     decimal.Zero,
		MinHoldingDays:     1,
	}
}

// Validate checks that percentages and periods are in range
func (p Policy) Validate() error {
	hundred := decimal.NewFromInt(100)

	if p.Strategy == "" {
		return fmt.Errorf("strategy is required")
	}
	if p.ReserveCashPercent.IsNegative() || p.ReserveCashPercent.GreaterThan(hundred) {
		return fmt.Errorf("reserve_cash_percent must be within [0, 100], got %s", p.ReserveCashPercent)
	}
	if p.BankPercent.IsNegative() || p.BankPercent.GreaterThan(hundred) {
		return fmt.Errorf("bank_percent must be within [0, 100], got %s", p.BankPercent)
	}
	if p.BankThreshold.IsNegative() {
		return fmt.Errorf("bank_threshold must not be negative, got %s", p.BankThreshold)
	}
	if p.MaxExposurePercent.IsNegative() || p.MaxExposurePercent.GreaterThan(hundred) {
		return fmt.Errorf("max_exposure_percent must be within [0, 100], got %s", p.MaxExposurePercent)
	}
	if p.ReinvestPeriod < 0 {
		return fmt.Errorf("reinvest_period must not be negative, got %d", p.ReinvestPeriod)
	}
	if p.ReinvestAmount.IsNegative() {
		return fmt.Errorf("reinvest_amount must not be negative, got %s", p.ReinvestAmount)
	}
	if p.MinHoldingDays < 0 {
		return fmt.Errorf("min_holding_days must not be negative, got %d", p.MinHoldingDays)
	}
	for _, m := range p.RebalanceMonths {
		if m < 1 || m > 12 {
			return fmt.Errorf("rebalance month out of range: %d", m)
		}
	}
	return nil
}

// SectorAllowed applies the sector filters to a single sector
func (p Policy) SectorAllowed(sector string) bool {
	for _, s := range p.SectorsForbidden {
		if s == sector {
			return false
		}
	}
	if len(p.SectorsAllowed) == 0 {
		return true
	}
	for _, s := range p.SectorsAllowed {
		if s == sector {
			return true
		}
	}
	return false
}

// Portfolio is the aggregate root of a simulated account
type Portfolio struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Policy      Policy          `json:"policy"`
	InitialCash decimal.Decimal `json:"initial_cash"` // Principal restored by reset
	Cash        decimal.Decimal `json:"cash"`
	Bank        decimal.Decimal `json:"bank"`
	Invested    decimal.Decimal `json:"invested"` // Net principal paid in (deposits - withdrawals)
	LastActive  *time.Time      `json:"last_active,omitempty"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Package cash_flows is the cash manager: reserve floor, bank sweeps, periodic
// reinvestment, the rebalance calendar and external deposits/withdrawals.
//
// The periodic hooks are plain predicates over the simulated date and the
// cursor's day count; the scheduler checks them once per simulated day.
package cash_flows

import (
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// ShouldRebalance reports whether date falls in one of the policy's rebalance months
func ShouldRebalance(policy portfolio.Policy, date time.Time) bool {
	month := int(date.Month())
	for _, m := range policy.RebalanceMonths {
		if m == month {
			return true
		}
	}
	return false
}

// ShouldReinvest reports whether the day that brings the cursor to
// daysCompleted simulated days is a reinvestment day
func ShouldReinvest(policy portfolio.Policy, daysCompleted int) bool {
	return policy.ReinvestPeriod > 0 &&
		policy.ReinvestAmount.IsPositive() &&
		daysCompleted > 0 &&
		daysCompleted%policy.ReinvestPeriod == 0
}

// SweepAmount is bank_percent% of the cash above bank_threshold, rounded down to cents
func SweepAmount(policy portfolio.Policy, cash decimal.Decimal) decimal.Decimal {
	if !policy.BankPercent.IsPositive() || !cash.GreaterThan(policy.BankThreshold) {
		return decimal.Zero
	}
	return domain.RoundCents(domain.Percent(cash.Sub(policy.BankThreshold), policy.BankPercent))
}

// ReinvestAmount is min(reinvest_amount, bank)
func ReinvestAmount(policy portfolio.Policy, bank decimal.Decimal) decimal.Decimal {
	if !bank.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(policy.ReinvestAmount, bank)
}

// Headroom is the cash a BUY may spend without breaching the reserve floor
func Headroom(policy portfolio.Policy, cash, total decimal.Decimal) decimal.Decimal {
	h := cash.Sub(domain.Percent(total, policy.ReserveCashPercent))
	if h.IsNegative() {
		return decimal.Zero
	}
	return h
}

package cash_flows

import (
	"testing"
	"time"

	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestShouldRebalance(t *testing.T) {
	policy := portfolio.DefaultPolicy("rsi")
	policy.RebalanceMonths = []int{1, 7}

	assert.True(t, ShouldRebalance(policy, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, ShouldRebalance(policy, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, ShouldRebalance(policy, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)))

	policy.RebalanceMonths = nil
	assert.False(t, ShouldRebalance(policy, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
}

func TestShouldReinvest(t *testing.T) {
	policy := portfolio.DefaultPolicy("rsi")
	policy.ReinvestPeriod = 7
	policy.ReinvestAmount = dec("500")

	tests := []struct {
		days int
		want bool
	}{
		{0, false},
		{1, false},
		{6, false},
		{7, true},
		{8, false},
		{14, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldReinvest(policy, tt.days), "day %d", tt.days)
	}

	policy.ReinvestAmount = decimal.Zero
	assert.False(t, ShouldReinvest(policy, 7), "nothing to move")

	policy.ReinvestAmount = dec("500")
	policy.ReinvestPeriod = 0
	assert.False(t, ShouldReinvest(policy, 7), "disabled")
}

func TestSweepAmount(t *testing.T) {
	policy := portfolio.DefaultPolicy("rsi")
	policy.BankThreshold = dec("10000")
	policy.BankPercent = dec("33")

	assert.True(t, SweepAmount(policy, dec("10000")).IsZero(), "at threshold")
	assert.True(t, SweepAmount(policy, dec("9000")).IsZero())
	// 33% of 1234.56 = 407.4048 -> 407.40
	assert.Equal(t, "407.4", SweepAmount(policy, dec("11234.56")).String())

	policy.BankPercent = decimal.Zero
	assert.True(t, SweepAmount(policy, dec("20000")).IsZero())
}

func TestReinvestAmountIsCappedByBank(t *testing.T) {
	policy := portfolio.DefaultPolicy("rsi")
	policy.ReinvestAmount = dec("500")

	assert.Equal(t, "500", ReinvestAmount(policy, dec("800")).String())
	assert.Equal(t, "120", ReinvestAmount(policy, dec("120")).String())
	assert.True(t, ReinvestAmount(policy, decimal.Zero).IsZero())
}

func TestHeadroom(t *testing.T) {
	policy := portfolio.DefaultPolicy("rsi")
	policy.ReserveCashPercent = dec("20")

	assert.Equal(t, "8000", Headroom(policy, dec("10000"), dec("10000")).String())
	assert.True(t, Headroom(policy, dec("1000"), dec("10000")).IsZero())
}

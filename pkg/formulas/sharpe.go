package formulas

import (
	"math"
)

// CalculateSharpeRatio calculates the annualized Sharpe Ratio
//
// Sharpe Ratio Formula:
//
//	Sharpe = (mean(returns) - periodic risk-free) / stddev(returns)
//	Annualized: Sharpe × sqrt(periodsPerYear)
//
// Args:
//
//	returns: Array of periodic returns (daily, monthly, etc.)
//	riskFreeRate: Risk-free rate (annual, as decimal, e.g., 0.02 for 2%)
//	periodsPerYear: Number of periods per year (252 for daily, 12 for monthly)
//
// Returns:
//
//	Sharpe ratio, or nil with fewer than 2 returns or a deviation that is zero
//	up to float noise
func CalculateSharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return nil
	}

	mean := Mean(returns)
	stdDev := StdDev(returns)
	if negligibleDeviation(stdDev, mean) {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sharpe := (mean - periodicRiskFree) / stdDev * math.Sqrt(float64(periodsPerYear))

	return &sharpe
}

// CalculateSortinoRatio calculates the Sortino Ratio (downside deviation version of Sharpe)
// Only considers downside volatility (returns below the target/MAR)
//
// Sortino Formula:
//
//	Sortino = (Portfolio Return - Risk-free Rate) / Downside Deviation
//	Downside Deviation = sqrt(mean of squared deviations below MAR)
//
// Returns nil with fewer than 2 returns or no downside observations.
func CalculateSortinoRatio(returns []float64, riskFreeRate float64, targetReturn float64, periodsPerYear int) *float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return nil
	}

	periodicMAR := targetReturn / float64(periodsPerYear)

	var downsideSquaredSum float64
	downsideCount := 0
	for _, ret := range returns {
		if ret < periodicMAR {
			deviation := ret - periodicMAR
			downsideSquaredSum += deviation * deviation
			downsideCount++
		}
	}

	if downsideCount == 0 {
		return nil
	}

	mean := Mean(returns)
	downsideDeviation := math.Sqrt(downsideSquaredSum / float64(downsideCount))
	if negligibleDeviation(downsideDeviation, mean) {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sortino := (mean - periodicRiskFree) / downsideDeviation * math.Sqrt(float64(periodsPerYear))

	return &sortino
}

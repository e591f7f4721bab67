package formulas

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualizes daily statistics
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// CalculateDecimalReturns converts a value series to simple periodic returns.
// Periods whose starting value is zero are skipped rather than producing Inf.
// Returns are divided in decimal and only then converted, so a series growing by a constant
// factor yields identical returns and a deviation of exactly zero.
func CalculateDecimalReturns(values []decimal.Decimal) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1].IsZero() {
			continue
		}
		r := values[i].Sub(values[i-1]).Div(values[i-1])
		returns = append(returns, r.InexactFloat64())
	}

	return returns
}

// negligibleDeviation reports whether sd is zero or float noise relative to mean
func negligibleDeviation(sd, mean float64) bool {
	return sd == 0 || math.IsNaN(sd) || sd <= relativeEpsilon*math.Abs(mean)
}

const relativeEpsilon = 1e-12

// AnnualizedVolatility is the sample standard deviation of daily returns × sqrt(252).
// Returns nil with fewer than two observations.
func AnnualizedVolatility(dailyReturns []float64) *float64 {
	if len(dailyReturns) < 2 {
		return nil
	}

	sd, err := stats.StandardDeviationSample(stats.Float64Data(dailyReturns))
	if err != nil || math.IsNaN(sd) {
		return nil
	}

	vol := sd * math.Sqrt(TradingDaysPerYear)
	return &vol
}

// HistoricalVaR returns the one-day historical Value at Risk at the given
// confidence (e.g. 95), expressed as a positive loss fraction.
// Returns nil with fewer than two observations.
func HistoricalVaR(dailyReturns []float64, confidence float64) *float64 {
	if len(dailyReturns) < 2 || confidence <= 0 || confidence >= 100 {
		return nil
	}

	data := stats.Float64Data(dailyReturns)
	cutoff, err := stats.Percentile(data, 100-confidence)
	if err != nil {
		// Too few observations to resolve the tail: use the worst return
		cutoff, err = stats.Min(data)
		if err != nil {
			return nil
		}
	}

	v := math.Max(0, -cutoff)
	return &v
}

// CalculateCAGR annualizes growth from start to end over the given number of trading days.
func CalculateCAGR(start, end float64, tradingDays int) *float64 {
	if start <= 0 || end <= 0 || tradingDays <= 0 {
		return nil
	}

	years := float64(tradingDays) / TradingDaysPerYear
	cagr := math.Pow(end/start, 1/years) - 1
	if math.IsNaN(cagr) || math.IsInf(cagr, 0) {
		return nil
	}

	return &cagr
}

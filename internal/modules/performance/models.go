// Package performance records the daily performance snapshot of each portfolio
// and derives risk-adjusted metrics from the snapshot history.
package performance

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the end-of-day valuation of a portfolio
type Snapshot struct {
	PortfolioID int64           `json:"portfolio_id"`
	Date        time.Time       `json:"date"`
	StockValue  decimal.Decimal `json:"stock_value"` // Σ quantity × close
	CostBasis   decimal.Decimal `json:"cost_basis"`  // Σ remaining lot principal
	Invested    decimal.Decimal `json:"invested"`    // Net principal paid in
	Cash        decimal.Decimal `json:"cash"`
	Bank        decimal.Decimal `json:"bank"`
	TotalValue  decimal.Decimal `json:"total_value"`
	PeakValue   decimal.Decimal `json:"peak_value"`
	Drawdown    float64         `json:"drawdown"`     // [0, 1]
	MaxDrawdown float64         `json:"max_drawdown"` // Non-decreasing over a run
}

// Metric names, in reporting order
const (
	MetricROI                  = "roi"
	MetricSharpeRatio          = "sharpe_ratio"
	MetricSortinoRatio         = "sortino_ratio"
	MetricAnnualizedReturn     = "annualized_return"
	MetricAnnualizedVolatility = "annualized_volatility"
	MetricValueAtRisk95        = "value_at_risk_95"
	MetricCurrentDrawdown      = "current_drawdown"
	MetricMaxDrawdown          = "max_drawdown"
	MetricDaysInDrawdown       = "days_in_drawdown"
)

// Metric is a named value; a nil Value means "not available yet"
type Metric struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

// Metrics is an ordered mapping of metric name to optional value
type Metrics []Metric

// Get returns the named value, or nil when absent or unavailable
func (m Metrics) Get(name string) *float64 {
	for _, metric := range m {
		if metric.Name == name {
			return metric.Value
		}
	}
	return nil
}

// MarshalJSON renders the metrics as a JSON object in reporting order
func (m Metrics) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, metric := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(metric.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(metric.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

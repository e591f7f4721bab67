package performance

import (
	"context"
	"time"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Tracker records daily snapshots and computes metrics from them
type Tracker struct {
	repo         *Repository
	riskFreeRate float64 // Annual
	log          zerolog.Logger
}

// NewTracker creates a new performance tracker
func NewTracker(repo *Repository, riskFreeRate float64, log zerolog.Logger) *Tracker {
	return &Tracker{
		repo:         repo,
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("service", "performance").Logger(),
	}
}

// Repository exposes the snapshot repository
func (t *Tracker) Repository() *Repository {
	return t.repo
}

// Record values the portfolio at marks and appends the day's snapshot. The
// running peak and drawdown continue from the previous snapshot.
func (t *Tracker) Record(
	ctx context.Context,
	q database.Queryer,
	p *portfolio.Portfolio,
	book *ledger.Book,
	marks map[string]decimal.Decimal,
	date time.Time,
) (*Snapshot, error) {
	prev, err := t.repo.Latest(ctx, q, p.ID)
	if err != nil {
		return nil, err
	}

	stock := book.StockValue(marks)
	total := stock.Add(p.Cash).Add(p.Bank)

	prevPeak := decimal.Zero
	prevMax := 0.0
	if prev != nil {
		prevPeak = prev.PeakValue
		prevMax = prev.MaxDrawdown
	}
	_, drawdown, maxDrawdown := formulas.DrawdownStep(prevPeak.InexactFloat64(), prevMax, total.InexactFloat64())

	s := &Snapshot{
		PortfolioID: p.ID,
		Date:        date,
		StockValue:  stock,
		CostBasis:   book.TotalCostBasis(),
		Invested:    p.Invested,
		Cash:        p.Cash,
		Bank:        p.Bank,
		TotalValue:  total,
		PeakValue:   decimal.Max(prevPeak, total),
		Drawdown:    drawdown,
		MaxDrawdown: maxDrawdown,
	}
	if err := t.repo.Append(ctx, q, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Metrics loads the snapshot history and computes every metric
func (t *Tracker) Metrics(ctx context.Context, q database.Queryer, portfolioID int64) (Metrics, error) {
	snapshots, err := t.repo.List(ctx, q, portfolioID)
	if err != nil {
		return nil, err
	}
	return Compute(snapshots, t.riskFreeRate), nil
}

// Compute derives the ordered metrics from a snapshot history. Metrics that
// cannot be computed yet (no principal, too few observations, zero variance)
// are nil rather than zero.
func Compute(snapshots []*Snapshot, riskFreeRate float64) Metrics {
	exact := make([]decimal.Decimal, len(snapshots))
	totals := make([]float64, len(snapshots))
	for i, s := range snapshots {
		exact[i] = s.TotalValue
		totals[i] = s.TotalValue.InexactFloat64()
	}
	returns := formulas.CalculateDecimalReturns(exact)

	var roi, annualized, current, maxDD, days *float64
	if n := len(snapshots); n > 0 {
		latest := snapshots[n-1]
		roi = ROI(latest.TotalValue, latest.Invested)
		annualized = formulas.CalculateCAGR(totals[0], totals[n-1], n-1)
		current = ptr(latest.Drawdown)
		maxDD = ptr(latest.MaxDrawdown)
		if dd := formulas.CalculateDrawdownMetrics(totals); dd != nil {
			days = ptr(float64(dd.DaysInDrawdown))
		}
	}

	return Metrics{
		{Name: MetricROI, Value: roi},
		{Name: MetricSharpeRatio, Value: formulas.CalculateSharpeRatio(returns, riskFreeRate, formulas.TradingDaysPerYear)},
		{Name: MetricSortinoRatio, Value: formulas.CalculateSortinoRatio(returns, riskFreeRate, riskFreeRate, formulas.TradingDaysPerYear)},
		{Name: MetricAnnualizedReturn, Value: annualized},
		{Name: MetricAnnualizedVolatility, Value: formulas.AnnualizedVolatility(returns)},
		{Name: MetricValueAtRisk95, Value: formulas.HistoricalVaR(returns, 95)},
		{Name: MetricCurrentDrawdown, Value: current},
		{Name: MetricMaxDrawdown, Value: maxDD},
		{Name: MetricDaysInDrawdown, Value: days},
	}
}

// ROI is (total − invested) / invested × 100, nil when invested is zero
func ROI(total, invested decimal.Decimal) *float64 {
	if !invested.IsPositive() {
		return nil
	}
	roi := total.Sub(invested).Div(invested).Mul(decimal.NewFromInt(100)).InexactFloat64()
	return &roi
}

func ptr(v float64) *float64 {
	return &v
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/simulation"
	"github.com/shopspring/decimal"
)

const cryptoSector = "Cryptocurrency"

// Crypto filters of the parameter search
const (
	cryptoOnly = "only" // Cryptocurrency is the only allowed sector
	cryptoNo   = "no"   // Cryptocurrency is forbidden
	cryptoAny  = "any"  // No sector filter
)

// searchGrid holds the values tried for each policy dimension. Every
// combination becomes one portfolio.
type searchGrid struct {
	InitialCash    decimal.Decimal
	Reserve        []decimal.Decimal
	ReinvestPeriod []int
	ReinvestAmount []decimal.Decimal
	BankThreshold  []decimal.Decimal
	Crypto         []string
	MaxExposure    []decimal.Decimal
	Strategies     []string
}

type gridPoint struct {
	Name   string
	Policy portfolio.Policy
}

// expand returns the cartesian product of the grid, strategy varying fastest.
// Names are derived from the values, so the same combination always maps to
// the same portfolio.
func (g searchGrid) expand() ([]gridPoint, error) {
	dims := []struct {
		flag string
		n    int
	}{
		{"reserve", len(g.Reserve)},
		{"reinvest-period", len(g.ReinvestPeriod)},
		{"reinvest-amount", len(g.ReinvestAmount)},
		{"bank-threshold", len(g.BankThreshold)},
		{"crypto", len(g.Crypto)},
		{"max-exposure", len(g.MaxExposure)},
		{"strategy", len(g.Strategies)},
	}
	for _, d := range dims {
		if d.n == 0 {
			return nil, fmt.Errorf("search grid needs at least one --%s value", d.flag)
		}
	}
	for _, c := range g.Crypto {
		if c != cryptoOnly && c != cryptoNo && c != cryptoAny {
			return nil, fmt.Errorf("invalid --crypto %q: want only, no or any", c)
		}
	}

	points := make([]gridPoint, 0)
	for _, reserve := range g.Reserve {
		for _, period := range g.ReinvestPeriod {
			for _, amount := range g.ReinvestAmount {
				for _, bank := range g.BankThreshold {
					for _, crypto := range g.Crypto {
						for _, exposure := range g.MaxExposure {
							for _, strategy := range g.Strategies {
								policy := portfolio.DefaultPolicy(strategy)
								policy.ReserveCashPercent = reserve
								policy.ReinvestPeriod = period
								policy.ReinvestAmount = amount
								policy.BankThreshold = bank
								policy.MaxExposurePercent = exposure
								switch crypto {
								case cryptoOnly:
									policy.SectorsAllowed = []string{cryptoSector}
								case cryptoNo:
									policy.SectorsForbidden = []string{cryptoSector}
								}
								if err := policy.Validate(); err != nil {
									return nil, err
								}

								points = append(points, gridPoint{
									Name: fmt.Sprintf("Parameter search cash=%s reserve=%s reinvest=%d/%s bank=%s crypto=%s exposure=%s strategy=%s",
										g.InitialCash, reserve, period, amount, bank, crypto, exposure, strategy),
									Policy: policy,
								})
							}
						}
					}
				}
			}
		}
	}
	return points, nil
}

func parseDecimals(flag string, values []string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid --%s value %q: %w", flag, v, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// preparePortfolios creates a portfolio per grid point, or resets the one left
// by an earlier search with the same name. It returns the ids in grid order.
func (a *app) preparePortfolios(ctx context.Context, points []gridPoint, cash decimal.Decimal, firstDate time.Time, runLength int) ([]int64, error) {
	svc := a.container.SimulationService

	existing, err := svc.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int64, len(existing))
	for _, p := range existing {
		byName[p.Name] = p.ID
	}

	ids := make([]int64, 0, len(points))
	for _, point := range points {
		id, ok := byName[point.Name]
		if !ok {
			p, err := svc.CreatePortfolio(ctx, simulation.CreateRequest{
				Name:          point.Name,
				Policy:        point.Policy,
				InitialCash:   cash,
				FirstDate:     firstDate,
				RunLengthDays: runLength,
			})
			if err != nil {
				return nil, err
			}
			ids = append(ids, p.ID)
			continue
		}

		// Reset rewinds the cursor to today, the window is applied after it
		if err := svc.ResetPortfolio(ctx, id); err != nil {
			return nil, err
		}
		if !firstDate.IsZero() || runLength > 0 {
			if err := a.retarget(ctx, id, firstDate, runLength); err != nil {
				return nil, err
			}
		}
		ids = append(ids, id)
	}

	a.log.Info().
		Int("portfolios", len(ids)).
		Int("reused", len(ids)-countNew(points, byName)).
		Msg("Search grid prepared")
	return ids, nil
}

// retarget moves a reused portfolio's cursor to the requested window, keeping
// whichever of the two values was not given.
func (a *app) retarget(ctx context.Context, id int64, firstDate time.Time, runLength int) error {
	sched := a.container.SimulationService.Scheduler()
	cursor, err := sched.Cursor(ctx, id)
	if err != nil {
		return err
	}
	if firstDate.IsZero() {
		firstDate = cursor.FirstDate
	}
	if runLength == 0 {
		runLength = cursor.RunLengthDays
	}
	_, err = sched.Configure(ctx, id, firstDate, runLength)
	return err
}

func countNew(points []gridPoint, existing map[string]int64) int {
	n := 0
	for _, p := range points {
		if _, ok := existing[p.Name]; !ok {
			n++
		}
	}
	return n
}

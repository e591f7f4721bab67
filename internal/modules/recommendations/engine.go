package recommendations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/marketdata"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/strategies"
	"github.com/rs/zerolog"
)

// Engine evaluates strategies over a market data feed
type Engine struct {
	registry *strategies.Registry
	feed     marketdata.Feed
	log      zerolog.Logger
}

// NewEngine creates a new recommendation engine
func NewEngine(registry *strategies.Registry, feed marketdata.Feed, log zerolog.Logger) *Engine {
	return &Engine{
		registry: registry,
		feed:     feed,
		log:      log.With().Str("service", "recommendation_engine").Logger(),
	}
}

// WithFeed returns an engine sharing the registry but reading from feed.
// Bulk runs use it to evaluate against a cached feed.
func (e *Engine) WithFeed(feed marketdata.Feed) *Engine {
	return &Engine{registry: e.registry, feed: feed, log: e.log}
}

// Registry exposes the strategy registry
func (e *Engine) Registry() *strategies.Registry {
	return e.registry
}

// Universe applies the policy's sector and dividend filters to the catalog.
// Forbidden sectors are removed first, then a non-empty allowed set keeps only
// its members, then dividend_only drops products without a positive dividend rate.
func Universe(policy portfolio.Policy, catalog map[string]domain.ProductInfo) map[string]domain.ProductInfo {
	out := make(map[string]domain.ProductInfo, len(catalog))
	for symbol, info := range catalog {
		if !policy.SectorAllowed(info.Sector) {
			continue
		}
		if policy.DividendOnly && !info.DividendRate.IsPositive() {
			continue
		}
		out[symbol] = info
	}
	return out
}

// window loads the evaluation input for symbol on date. ok is false when the
// symbol has no bar dated exactly on date.
func (e *Engine) window(ctx context.Context, symbol string, date time.Time, policy portfolio.Policy) (strategies.Input, bool, error) {
	if _, err := e.feed.GetBar(ctx, symbol, date); err != nil {
		if errors.Is(err, domain.ErrNotAvailable) {
			return strategies.Input{}, false, nil
		}
		return strategies.Input{}, false, fmt.Errorf("failed to get bar for %s: %w", symbol, err)
	}

	bars, err := e.feed.History(ctx, symbol, date, strategies.HistoryWindow)
	if err != nil {
		return strategies.Input{}, false, fmt.Errorf("failed to load history for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return strategies.Input{}, false, nil
	}

	return strategies.Input{Symbol: symbol, AsOf: date, Bars: bars, Policy: policy}, true, nil
}

// Favored evaluates the portfolio's configured strategy for every symbol that
// has a bar on date. Results are ordered by symbol.
func (e *Engine) Favored(ctx context.Context, p *portfolio.Portfolio, symbols []string, date time.Time) ([]Recommendation, error) {
	if !e.registry.Has(p.Policy.Strategy) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownStrategy, p.Policy.Strategy)
	}

	recs := make([]Recommendation, 0, len(symbols))
	for _, symbol := range sortedUnique(symbols) {
		in, ok, err := e.window(ctx, symbol, date, p.Policy)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		sig, err := e.registry.Evaluate(p.Policy.Strategy, in)
		if err != nil {
			return nil, err
		}

		recs = append(recs, Recommendation{
			PortfolioID: p.ID,
			Symbol:      symbol,
			Strategy:    p.Policy.Strategy,
			Action:      sig.Action,
			Strength:    sig.Strength,
			Price:       in.Bars[len(in.Bars)-1].Close,
			Info:        sig.Info,
			AsOf:        date,
		})
	}

	e.log.Debug().
		Int64("portfolio_id", p.ID).
		Str("date", date.Format("2006-01-02")).
		Int("evaluated", len(recs)).
		Msg("Favored recommendations computed")

	return recs, nil
}

// Grid evaluates every registered strategy for every symbol with a bar on date
func (e *Engine) Grid(ctx context.Context, symbols []string, date time.Time) (Grid, error) {
	grid := make(Grid, len(symbols))
	for _, symbol := range sortedUnique(symbols) {
		in, ok, err := e.window(ctx, symbol, date, portfolio.Policy{})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		row := make(map[string]domain.Action)
		for _, s := range e.registry.List() {
			sig, err := e.registry.Evaluate(s.Name, in)
			if err != nil {
				return nil, err
			}
			row[s.Name] = sig.Action
		}
		grid[symbol] = row
	}
	return grid, nil
}

func sortedUnique(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

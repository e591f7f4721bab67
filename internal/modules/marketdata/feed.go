// Package marketdata provides the daily bar feed and product catalog consumed by
// the simulation engine, backed by the market_data and products tables.
package marketdata

import (
	"context"
	"time"

	"github.com/aristath/simtrader/internal/domain"
)

// Feed supplies immutable daily bars
type Feed interface {
	// GetBar returns the bar dated exactly on date, or domain.ErrNotAvailable.
	GetBar(ctx context.Context, symbol string, date time.Time) (*domain.Bar, error)
	// History returns up to n bars dated on or before asOf, oldest first.
	History(ctx context.Context, symbol string, asOf time.Time, n int) ([]domain.Bar, error)
}

// Catalog supplies per-product metadata
type Catalog interface {
	ListActive(ctx context.Context) (map[string]domain.ProductInfo, error)
}

// Calendar enumerates the dates for which any bar exists
type Calendar interface {
	// NextTradingDate returns the first date strictly after `after` carrying any bar,
	// or domain.ErrMarketDataExhausted.
	NextTradingDate(ctx context.Context, after time.Time) (time.Time, error)
	// LatestDate returns the most recent date carrying any bar.
	LatestDate(ctx context.Context) (time.Time, error)
}

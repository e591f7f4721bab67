package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/utils"
)

// SeriesSource loads a full bar series for one symbol
type SeriesSource interface {
	Series(ctx context.Context, symbol string) ([]domain.Bar, error)
}

// CachedFeed memoizes full per-symbol series so that a bulk run reads each
// symbol from storage once. Bars are immutable, so a cache is valid for the
// lifetime of one run; create a fresh CachedFeed per run to pick up imports.
type CachedFeed struct {
	source SeriesSource
	mu     sync.Mutex
	series map[string][]domain.Bar
}

// NewCachedFeed wraps source
func NewCachedFeed(source SeriesSource) *CachedFeed {
	return &CachedFeed{
		source: source,
		series: make(map[string][]domain.Bar),
	}
}

func (c *CachedFeed) load(ctx context.Context, symbol string) ([]domain.Bar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.series[symbol]; ok {
		return s, nil
	}

	s, err := c.source.Series(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.series[symbol] = s
	return s, nil
}

// upTo returns the number of bars dated on or before day.
func upTo(series []domain.Bar, day time.Time) int {
	return sort.Search(len(series), func(i int) bool { return series[i].Date.After(day) })
}

// GetBar returns the bar dated exactly on date.
func (c *CachedFeed) GetBar(ctx context.Context, symbol string, date time.Time) (*domain.Bar, error) {
	series, err := c.load(ctx, symbol)
	if err != nil {
		return nil, err
	}

	day := utils.Day(date)
	i := upTo(series, day)
	if i == 0 || !series[i-1].Date.Equal(day) {
		return nil, domain.ErrNotAvailable
	}

	bar := series[i-1]
	return &bar, nil
}

// History returns up to n bars dated on or before asOf, oldest first.
func (c *CachedFeed) History(ctx context.Context, symbol string, asOf time.Time, n int) ([]domain.Bar, error) {
	series, err := c.load(ctx, symbol)
	if err != nil {
		return nil, err
	}

	end := upTo(series, utils.Day(asOf))
	start := end - n
	if start < 0 {
		start = 0
	}

	out := make([]domain.Bar, end-start)
	copy(out, series[start:end])
	return out, nil
}

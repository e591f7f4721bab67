package testing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aristath/simtrader/internal/domain"
)

// MockFeed is an in-memory market data feed and product catalog for testing
type MockFeed struct {
	mu       sync.RWMutex
	bars     map[string][]domain.Bar // ascending by date
	products map[string]domain.ProductInfo
	err      error
}

// NewMockFeed creates an empty mock feed
func NewMockFeed() *MockFeed {
	return &MockFeed{
		bars:     make(map[string][]domain.Bar),
		products: make(map[string]domain.ProductInfo),
	}
}

// SetProduct registers a product in the catalog
func (m *MockFeed) SetProduct(info domain.ProductInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[info.Symbol] = info
}

// AddBars appends bars for their symbols, keeping each series sorted
func (m *MockFeed) AddBars(bars ...domain.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		m.bars[b.Symbol] = append(m.bars[b.Symbol], b)
		series := m.bars[b.Symbol]
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	}
}

// SetError makes every call fail with err
func (m *MockFeed) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ListActive returns the catalog
func (m *MockFeed) ListActive(ctx context.Context) (map[string]domain.ProductInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]domain.ProductInfo, len(m.products))
	for k, v := range m.products {
		out[k] = v
	}
	return out, nil
}

// GetBar returns the bar dated exactly on date, or domain.ErrNotAvailable
func (m *MockFeed) GetBar(ctx context.Context, symbol string, date time.Time) (*domain.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, b := range m.bars[symbol] {
		if b.Date.Equal(date) {
			bar := b
			return &bar, nil
		}
	}
	return nil, domain.ErrNotAvailable
}

// History returns up to n bars dated on or before asOf, ascending
func (m *MockFeed) History(ctx context.Context, symbol string, asOf time.Time, n int) ([]domain.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Bar
	for _, b := range m.bars[symbol] {
		if !b.Date.After(asOf) {
			out = append(out, b)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

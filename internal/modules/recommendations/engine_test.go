package recommendations

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/strategies"
	testingpkg "github.com/aristath/simtrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedRamp adds n daily bars ending on day(n-1) with closes start, start+step, ...
func seedRamp(feed *testingpkg.MockFeed, symbol string, n int, start, step float64) {
	for i := 0; i < n; i++ {
		p := decimal.NewFromFloat(start + float64(i)*step)
		feed.AddBars(domain.Bar{Symbol: symbol, Date: day(i), Open: p, High: p, Low: p, Close: p, Volume: 1000})
	}
}

func newEngine(feed *testingpkg.MockFeed) *Engine {
	return NewEngine(strategies.NewPopulatedRegistry(zerolog.Nop()), feed, zerolog.Nop())
}

func TestFavoredEvaluatesSymbolsWithABarOnTheDay(t *testing.T) {
	feed := testingpkg.NewMockFeed()
	seedRamp(feed, "UP", 60, 100, 1)
	seedRamp(feed, "DOWN", 60, 200, -1)
	seedRamp(feed, "STALE", 30, 100, 1) // last bar day(29)

	engine := newEngine(feed)
	p := &portfolio.Portfolio{ID: 7, Policy: portfolio.DefaultPolicy("sma_buy_hold")}

	recs, err := engine.Favored(context.Background(), p, []string{"UP", "DOWN", "STALE", "UP"}, day(59))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "DOWN", recs[0].Symbol)
	assert.Equal(t, domain.ActionHold, recs[0].Action)
	assert.Equal(t, "UP", recs[1].Symbol)
	assert.Equal(t, domain.ActionBuy, recs[1].Action)
	assert.Equal(t, int64(7), recs[1].PortfolioID)
	assert.Equal(t, "159", recs[1].Price.String())
	assert.Equal(t, day(59), recs[1].AsOf)
	assert.Contains(t, recs[1].Info, "sma")
}

func TestFavoredUnknownStrategy(t *testing.T) {
	engine := newEngine(testingpkg.NewMockFeed())
	p := &portfolio.Portfolio{ID: 1, Policy: portfolio.DefaultPolicy("martingale")}

	_, err := engine.Favored(context.Background(), p, []string{"UP"}, day(0))
	assert.True(t, errors.Is(err, domain.ErrUnknownStrategy))
}

func TestFavoredPropagatesFeedErrors(t *testing.T) {
	feed := testingpkg.NewMockFeed()
	feed.SetError(errors.New("disk on fire"))
	engine := newEngine(feed)
	p := &portfolio.Portfolio{ID: 1, Policy: portfolio.DefaultPolicy("rsi")}

	_, err := engine.Favored(context.Background(), p, []string{"UP"}, day(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestGridCoversEveryStrategy(t *testing.T) {
	feed := testingpkg.NewMockFeed()
	seedRamp(feed, "UP", 60, 100, 1)
	seedRamp(feed, "DOWN", 60, 200, -1)

	engine := newEngine(feed)
	grid, err := engine.Grid(context.Background(), []string{"UP", "DOWN", "MISSING"}, day(59))
	require.NoError(t, err)

	require.Len(t, grid, 2)
	assert.Len(t, grid["UP"], len(engine.Registry().Names()))
	assert.Equal(t, domain.ActionBuy, grid["UP"]["sma_buy_hold"])
	assert.Equal(t, domain.ActionSell, grid["UP"]["rsi"])
	assert.Equal(t, domain.ActionBuy, grid["DOWN"]["rsi"])
}

func TestWithFeedSharesRegistry(t *testing.T) {
	engine := newEngine(testingpkg.NewMockFeed())
	other := engine.WithFeed(testingpkg.NewMockFeed())
	assert.Same(t, engine.Registry(), other.Registry())
}

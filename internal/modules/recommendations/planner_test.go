package recommendations

import (
	"testing"
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func catalog() map[string]domain.ProductInfo {
	return map[string]domain.ProductInfo{
		"AAA": {Symbol: "AAA", Sector: "Technology", DividendRate: dec("0")},
		"BBB": {Symbol: "BBB", Sector: "Utilities", DividendRate: dec("0.03")},
		"CCC": {Symbol: "CCC", Sector: "Tobacco", DividendRate: dec("0.05")},
		"BTC": {Symbol: "BTC", Sector: "Cryptocurrency", DividendRate: dec("0")},
	}
}

func state(cash string, policy portfolio.Policy) DayState {
	return DayState{
		Portfolio: &portfolio.Portfolio{ID: 1, Policy: policy, Cash: dec(cash), Bank: decimal.Zero},
		Book:      ledger.NewBook(1),
		Catalog:   catalog(),
		Marks:     map[string]decimal.Decimal{},
		Prices:    map[string]decimal.Decimal{},
		Date:      day(10),
	}
}

func hold(s *DayState, symbol, qty, price string, bought time.Time) {
	q := dec(qty)
	s.Book.AddLot(&ledger.Lot{
		PortfolioID: 1, Symbol: symbol, Quantity: q, OriginalQuantity: q,
		PurchasePrice: dec(price), PurchaseDate: bought,
	})
	s.Marks[symbol] = dec(price)
	s.Prices[symbol] = dec(price)
}

func TestUniverseFilters(t *testing.T) {
	policy := portfolio.DefaultPolicy("rsi")
	assert.Len(t, Universe(policy, catalog()), 4)

	policy.SectorsForbidden = []string{"Tobacco"}
	u := Universe(policy, catalog())
	assert.NotContains(t, u, "CCC")
	assert.Len(t, u, 3)

	policy.SectorsAllowed = []string{"Utilities", "Tobacco"}
	u = Universe(policy, catalog())
	assert.Equal(t, []string{"BBB"}, keys(u), "forbidden wins over allowed")

	policy = portfolio.DefaultPolicy("rsi")
	policy.DividendOnly = true
	assert.Equal(t, []string{"BBB", "CCC"}, keys(Universe(policy, catalog())))
}

func keys(m map[string]domain.ProductInfo) []string {
	return sortedUnique(func() []string {
		out := make([]string, 0, len(m))
		for k := range m {
			out = append(out, k)
		}
		return out
	}())
}

func TestRankBuys(t *testing.T) {
	favored := []Recommendation{
		{Symbol: "BBB", Action: domain.ActionBuy, Strength: 0.5},
		{Symbol: "AAA", Action: domain.ActionBuy, Strength: 0.5},
		{Symbol: "BTC", Action: domain.ActionBuy, Strength: 0.9},
		{Symbol: "CCC", Action: domain.ActionBuy, Strength: 1},
		{Symbol: "DDD", Action: domain.ActionSell, Strength: 1},
	}
	universe := catalog()
	delete(universe, "CCC")

	ranked := RankBuys(favored, universe)
	require.Len(t, ranked, 3)
	assert.Equal(t, "BTC", ranked[0].Symbol)
	assert.Equal(t, "AAA", ranked[1].Symbol, "ties by symbol")
	assert.Equal(t, "BBB", ranked[2].Symbol)
}

func TestSizeBuyTakesSmallerOfExposureAndHeadroom(t *testing.T) {
	policy := portfolio.DefaultPolicy("rsi") // reserve 5%, exposure 20%
	s := state("10000", policy)
	s.Prices["AAA"] = dec("30")

	order := SizeBuy(s, Recommendation{Symbol: "AAA", Action: domain.ActionBuy})
	require.NotNil(t, order)
	// 20% of 10000 = 2000 -> 66 shares
	assert.Equal(t, "66", order.Quantity.String())
	assert.Equal(t, domain.SideBuy, order.Side)

	policy.MaxExposurePercent = decimal.Zero
	policy.ReserveCashPercent = dec("50")
	s = state("10000", policy)
	s.Prices["AAA"] = dec("30")
	order = SizeBuy(s, Recommendation{Symbol: "AAA"})
	require.NotNil(t, order)
	// 10000 - 5000 floor = 5000 -> 166 shares
	assert.Equal(t, "166", order.Quantity.String())
}

func TestSizeBuyFractionalSector(t *testing.T) {
	s := state("10000", portfolio.DefaultPolicy("rsi"))
	s.FractionalSectors = []string{"Cryptocurrency"}
	s.Prices["BTC"] = dec("30000")

	order := SizeBuy(s, Recommendation{Symbol: "BTC"})
	require.NotNil(t, order)
	assert.Equal(t, "0.0666", order.Quantity.String())
}

func TestSizeBuyEntryMinimum(t *testing.T) {
	policy := portfolio.DefaultPolicy("rsi") // exposure 20%
	s := state("10000", policy)
	s.EntryMinimum = true
	s.FractionalSectors = []string{"Cryptocurrency"}
	s.Prices["AAA"] = dec("30")

	// 66 shares fit the exposure cap, a 10000 portfolio opens with at least 100
	assert.Nil(t, SizeBuy(s, Recommendation{Symbol: "AAA"}))

	s.EntryMinimum = false
	order := SizeBuy(s, Recommendation{Symbol: "AAA"})
	require.NotNil(t, order)
	assert.Equal(t, "66", order.Quantity.String())

	// Adding to an existing position is not an entry
	s = state("10000", policy)
	s.EntryMinimum = true
	hold(&s, "AAA", "10", "30", day(1))
	order = SizeBuy(s, Recommendation{Symbol: "AAA"})
	require.NotNil(t, order)
	// 20% of 10300 = 2060, minus 300 held -> 58 shares
	assert.Equal(t, "58", order.Quantity.String())

	policy.MaxExposurePercent = decimal.Zero
	s = state("10000", policy)
	s.EntryMinimum = true
	s.Prices["AAA"] = dec("30")
	order = SizeBuy(s, Recommendation{Symbol: "AAA"})
	require.NotNil(t, order)
	assert.Equal(t, "316", order.Quantity.String())

	s = state("10000", portfolio.DefaultPolicy("rsi"))
	s.EntryMinimum = true
	s.FractionalSectors = []string{"Cryptocurrency"}
	s.Prices["BTC"] = dec("30000")
	order = SizeBuy(s, Recommendation{Symbol: "BTC"})
	require.NotNil(t, order)
	assert.Equal(t, "0.0666", order.Quantity.String())

	s.Prices["BTC"] = dec("300000")
	assert.Nil(t, SizeBuy(s, Recommendation{Symbol: "BTC"}), "0.0066 is below the 0.01 entry")
}

func TestSizeBuyNothingAffordable(t *testing.T) {
	s := state("400", portfolio.DefaultPolicy("rsi"))
	s.Prices["AAA"] = dec("1000")
	assert.Nil(t, SizeBuy(s, Recommendation{Symbol: "AAA"}))

	assert.Nil(t, SizeBuy(s, Recommendation{Symbol: "ZZZ"}), "no price today")
}

func TestDivestments(t *testing.T) {
	policy := portfolio.DefaultPolicy("rsi")
	policy.SectorsForbidden = []string{"Tobacco"}
	s := state("5000", policy)
	hold(&s, "CCC", "10", "50", day(0))  // forbidden: 500
	hold(&s, "AAA", "30", "100", day(0)) // over the 20% exposure cap
	hold(&s, "BBB", "1", "100", day(0))  // fine

	orders := Divestments(s)
	require.Len(t, orders, 2)

	assert.Equal(t, "AAA", orders[0].Symbol)
	// total = 500 + 3000 + 100 + 5000 = 8600, limit 1720, excess 1280 -> 12 shares
	assert.Equal(t, "12", orders[0].Quantity.String())
	assert.Equal(t, domain.SourceRebalance, orders[0].Source)

	assert.Equal(t, "CCC", orders[1].Symbol)
	assert.Equal(t, "10", orders[1].Quantity.String())
}

func TestExitsRespectHoldingPeriod(t *testing.T) {
	policy := portfolio.DefaultPolicy("rsi")
	policy.MinHoldingDays = 3
	s := state("5000", policy)
	hold(&s, "AAA", "5", "100", day(2)) // 8 days old
	hold(&s, "BBB", "5", "100", day(9)) // 1 day old

	favored := []Recommendation{
		{Symbol: "AAA", Action: domain.ActionSell, Strength: 0.2},
		{Symbol: "BBB", Action: domain.ActionSell, Strength: 0.2},
		{Symbol: "CCC", Action: domain.ActionSell, Strength: 0.2}, // not held
	}

	orders := Exits(s, favored)
	require.Len(t, orders, 1)
	assert.Equal(t, "AAA", orders[0].Symbol)
	assert.Equal(t, "5", orders[0].Quantity.String())
	assert.Equal(t, domain.SideSell, orders[0].Side)
}

package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func lot(id int64, qty, price string, d time.Time) *Lot {
	q := decimal.RequireFromString(qty)
	return &Lot{
		ID:               id,
		PortfolioID:      1,
		Symbol:           "SYM",
		Quantity:         q,
		OriginalQuantity: q,
		PurchasePrice:    decimal.RequireFromString(price),
		PurchaseDate:     d,
	}
}

func TestBookConsumeFIFO(t *testing.T) {
	b := NewBook(1)
	// Added out of order: FIFO is by purchase date, not insertion
	b.AddLot(lot(2, "5", "110", day(2)))
	b.AddLot(lot(1, "10", "100", day(1)))
	b.AddLot(lot(3, "5", "120", day(3)))

	consumed, touched, err := b.Consume("SYM", decimal.NewFromInt(12))
	require.NoError(t, err)

	require.Len(t, consumed, 2)
	assert.Equal(t, int64(1), consumed[0].LotID)
	assert.True(t, consumed[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int64(2), consumed[1].LotID)
	assert.True(t, consumed[1].Quantity.Equal(decimal.NewFromInt(2)))
	require.Len(t, touched, 2)
	assert.True(t, touched[0].Quantity.IsZero())
	assert.True(t, touched[1].Quantity.Equal(decimal.NewFromInt(3)))

	sum := decimal.Zero
	for _, c := range consumed {
		sum = sum.Add(c.Quantity)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(12)))

	assert.True(t, b.Quantity("SYM").Equal(decimal.NewFromInt(8)))
	assert.Len(t, b.Lots("SYM"), 2)
	// 3×110 + 5×120
	assert.True(t, b.CostBasis("SYM").Equal(decimal.NewFromInt(930)))
}

func TestBookConsumeMoreThanHeldLeavesLotsUntouched(t *testing.T) {
	b := NewBook(1)
	b.AddLot(lot(1, "10", "100", day(1)))

	_, _, err := b.Consume("SYM", decimal.NewFromInt(11))
	require.Error(t, err)
	assert.True(t, b.Quantity("SYM").Equal(decimal.NewFromInt(10)))
}

func TestBookConsumeAllRemovesSymbol(t *testing.T) {
	b := NewBook(1)
	b.AddLot(lot(1, "10", "100", day(1)))

	_, _, err := b.Consume("SYM", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Empty(t, b.Symbols())
	assert.Nil(t, b.Position("SYM", decimal.NewFromInt(100), day(2)))
}

func TestBookValuation(t *testing.T) {
	b := NewBook(1)
	b.AddLot(lot(1, "10", "100", day(1)))
	other := lot(2, "2", "50", day(1))
	other.Symbol = "ABC"
	b.AddLot(other)

	marks := map[string]decimal.Decimal{"SYM": decimal.NewFromInt(110)}
	// ABC has no mark and falls back to its purchase price
	assert.True(t, b.StockValue(marks).Equal(decimal.NewFromInt(1200)))
	assert.True(t, b.MarketValue("SYM", marks).Equal(decimal.NewFromInt(1100)))
	assert.True(t, b.TotalCostBasis().Equal(decimal.NewFromInt(1100)))
	assert.Equal(t, []string{"ABC", "SYM"}, b.Symbols())

	latest, ok := b.LatestPurchase("SYM")
	require.True(t, ok)
	assert.Equal(t, day(1), latest)
}

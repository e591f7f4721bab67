package trading

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	testingpkg "github.com/aristath/simtrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db         *database.DB
	executor   *Executor
	ledgerRepo *ledger.Repository
	portfolios *portfolio.Repository
	portfolio  *portfolio.Portfolio
}

func newFixture(t *testing.T, mutate func(*portfolio.Policy)) *fixture {
	t.Helper()

	db, _ := testingpkg.NewTestDB(t, "trading")
	ledgerRepo := ledger.NewRepository(zerolog.Nop())
	portfolios := portfolio.NewRepository(zerolog.Nop())

	policy := portfolio.DefaultPolicy("sma_buy_hold")
	if mutate != nil {
		mutate(&policy)
	}
	p, err := portfolios.Create(context.Background(), db.Conn(), "test", policy, decimal.NewFromInt(10000), time.Now())
	require.NoError(t, err)

	return &fixture{
		db:         db,
		executor:   NewExecutor(ledgerRepo, portfolios, zerolog.Nop()),
		ledgerRepo: ledgerRepo,
		portfolios: portfolios,
		portfolio:  p,
	}
}

func d(n int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// execute runs one order in its own transaction, reloading state like a manual order does
func (f *fixture) execute(t *testing.T, order domain.Order, marks map[string]decimal.Decimal) (*Fill, error) {
	t.Helper()
	ctx := context.Background()

	var fill *Fill
	err := database.WithTransactionContext(ctx, f.db.Conn(), func(tx *sql.Tx) error {
		p, err := f.portfolios.GetByID(ctx, tx, f.portfolio.ID)
		if err != nil {
			return err
		}
		book, err := ledger.LoadBook(ctx, tx, f.ledgerRepo, p.ID)
		if err != nil {
			return err
		}
		fill, err = f.executor.Execute(ctx, tx, p, book, marks, order)
		return err
	})
	return fill, err
}

func (f *fixture) reload(t *testing.T) *portfolio.Portfolio {
	t.Helper()
	p, err := f.portfolios.GetByID(context.Background(), f.db.Conn(), f.portfolio.ID)
	require.NoError(t, err)
	return p
}

func buy(symbol, qty, price string, day int) domain.Order {
	return domain.Order{Symbol: symbol, Side: domain.SideBuy, Quantity: dec(qty), Price: dec(price), Date: d(day)}
}

func sell(symbol, qty, price string, day int) domain.Order {
	return domain.Order{Symbol: symbol, Side: domain.SideSell, Quantity: dec(qty), Price: dec(price), Date: d(day)}
}

func TestBuyThenSellRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.execute(t, buy("SYM", "10", "100", 0), nil)
	require.NoError(t, err)

	p := f.reload(t)
	assert.Equal(t, "9000", p.Cash.String())

	positions, err := f.ledgerRepo.Positions(ctx, f.db.Conn(), p.ID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "10", positions[0].Quantity.String())
	assert.Equal(t, "1000", positions[0].CostBasis.String())

	fill, err := f.execute(t, sell("SYM", "10", "120", 2), nil)
	require.NoError(t, err)
	assert.Equal(t, "200", fill.Transaction.RealizedGain.String())
	require.Len(t, fill.Consumed, 1)

	p = f.reload(t)
	assert.Equal(t, "10200", p.Cash.String())

	positions, err = f.ledgerRepo.Positions(ctx, f.db.Conn(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, positions, "position removed at zero")

	lots, err := f.ledgerRepo.AllLots(ctx, f.db.Conn(), p.ID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.True(t, lots[0].Quantity.IsZero(), "lot fully consumed")

	cash, err := f.ledgerRepo.CashTransactions(ctx, f.db.Conn(), p.ID)
	require.NoError(t, err)
	require.Len(t, cash, 2)
	assert.Equal(t, ledger.CashBuy, cash[0].Type)
	assert.Equal(t, "-1000", cash[0].Amount.String())
	assert.Equal(t, ledger.CashSell, cash[1].Type)
	assert.Equal(t, "1200", cash[1].Amount.String())
}

func TestBuySellSamePriceIsFlat(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.execute(t, buy("SYM", "7", "100", 0), nil)
	require.NoError(t, err)
	fill, err := f.execute(t, sell("SYM", "7", "100", 0), nil)
	require.NoError(t, err)

	assert.True(t, fill.Transaction.RealizedGain.IsZero())
	assert.Equal(t, "10000", f.reload(t).Cash.String())
	positions, err := f.ledgerRepo.Positions(ctx, f.db.Conn(), f.portfolio.ID)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSameDayRoundTripConsumesOlderLot(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.execute(t, buy("SYM", "5", "100", 0), nil)
	require.NoError(t, err)
	_, err = f.execute(t, buy("SYM", "3", "90", 1), nil)
	require.NoError(t, err)

	_, err = f.execute(t, buy("SYM", "3", "95", 2), nil)
	require.NoError(t, err)
	fill, err := f.execute(t, sell("SYM", "3", "95", 2), nil)
	require.NoError(t, err)

	// FIFO takes the day-0 lot, not the one just bought
	assert.Equal(t, "-15", fill.Transaction.RealizedGain.String())

	positions, err := f.ledgerRepo.Positions(context.Background(), f.db.Conn(), f.portfolio.ID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "8", positions[0].Quantity.String())
}

func TestSellConsumesOldestLotsFirst(t *testing.T) {
	f := newFixture(t, func(p *portfolio.Policy) { p.MaxExposurePercent = decimal.Zero })

	_, err := f.execute(t, buy("SYM", "10", "100", 0), nil)
	require.NoError(t, err)
	_, err = f.execute(t, buy("SYM", "10", "110", 1), nil)
	require.NoError(t, err)

	fill, err := f.execute(t, sell("SYM", "15", "120", 2), nil)
	require.NoError(t, err)

	require.Len(t, fill.Consumed, 2)
	assert.Equal(t, d(0), fill.Consumed[0].PurchaseDate)
	assert.Equal(t, "10", fill.Consumed[0].Quantity.String())
	assert.Equal(t, d(1), fill.Consumed[1].PurchaseDate)
	assert.Equal(t, "5", fill.Consumed[1].Quantity.String())
	// (120-100)×10 + (120-110)×5
	assert.Equal(t, "250", fill.Transaction.RealizedGain.String())

	lots, err := f.ledgerRepo.OpenLots(context.Background(), f.db.Conn(), f.portfolio.ID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "5", lots[0].Quantity.String())
	assert.Equal(t, "10", lots[0].OriginalQuantity.String())
}

func TestReserveFloorRejectsBuy(t *testing.T) {
	f := newFixture(t, func(p *portfolio.Policy) {
		p.ReserveCashPercent = decimal.NewFromInt(20)
		p.MaxExposurePercent = decimal.Zero
	})

	// 80.01 × 100 leaves 1999 < 2000
	_, err := f.execute(t, buy("SYM", "80.01", "100", 0), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientCash))
	rej, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonInsufficientCash, rej.Reason)

	ctx := context.Background()
	p := f.reload(t)
	assert.Equal(t, "10000", p.Cash.String(), "ledger untouched")
	lots, err := f.ledgerRepo.AllLots(ctx, f.db.Conn(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, lots)
	txs, err := f.ledgerRepo.Transactions(ctx, f.db.Conn(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)

	// Exactly at the floor is allowed
	_, err = f.execute(t, buy("SYM", "80", "100", 0), nil)
	require.NoError(t, err)
}

func TestExposureCapRejectsBuy(t *testing.T) {
	f := newFixture(t, nil) // 20% of 10000

	_, err := f.execute(t, buy("SYM", "21", "100", 0), nil)
	assert.True(t, errors.Is(err, domain.ErrExposureExceeded))

	_, err = f.execute(t, buy("SYM", "15", "100", 0), nil)
	require.NoError(t, err)

	// 15 held + 6 more = 2100 > 2000
	_, err = f.execute(t, buy("SYM", "6", "100", 1), map[string]decimal.Decimal{"SYM": dec("100")})
	assert.True(t, errors.Is(err, domain.ErrExposureExceeded))
}

func TestSellMoreThanHeldRejected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.execute(t, sell("SYM", "1", "100", 0), nil)
	assert.True(t, errors.Is(err, domain.ErrInsufficientShares))

	_, err = f.execute(t, buy("SYM", "2", "100", 0), nil)
	require.NoError(t, err)
	_, err = f.execute(t, sell("SYM", "3", "100", 1), nil)
	assert.True(t, errors.Is(err, domain.ErrInsufficientShares))
}

func TestInvalidOrdersRejected(t *testing.T) {
	f := newFixture(t, nil)

	cases := []domain.Order{
		buy("SYM", "0", "100", 0),
		buy("SYM", "1", "0", 0),
		buy("", "1", "100", 0),
		{Symbol: "SYM", Side: "HOLD", Quantity: dec("1"), Price: dec("1"), Date: d(0)},
		{Symbol: "SYM", Side: domain.SideBuy, Quantity: dec("1"), Price: dec("1")},
	}
	for _, order := range cases {
		_, err := f.execute(t, order, nil)
		assert.True(t, errors.Is(err, domain.ErrInvalidOrder), "%+v", order)
	}
}

func TestSharesAndPrecision(t *testing.T) {
	fractional := []string{"Cryptocurrency"}
	assert.Equal(t, int32(0), Precision("Technology", fractional))
	assert.Equal(t, FractionalPrecision, Precision("Cryptocurrency", fractional))

	assert.Equal(t, "33", Shares(dec("1000"), dec("30"), 0).String())
	assert.Equal(t, "33.3333", Shares(dec("1000"), dec("30"), 4).String())
	assert.True(t, Shares(dec("-5"), dec("30"), 0).IsZero())
	assert.True(t, Shares(dec("5"), decimal.Zero, 0).IsZero())
}

func TestEntryMinimum(t *testing.T) {
	cases := []struct {
		total     string
		precision int32
		want      string
	}{
		{"0", 0, "1"},
		{"50", 0, "1"},
		{"99.99", 0, "1"},
		{"100", 0, "10"},
		{"9999", 0, "10"},
		{"10000", 0, "100"},
		{"250000", 0, "100"},
		{"1000000", 0, "1000"},
		{"10000", FractionalPrecision, "0.01"},
	}
	for _, tc := range cases {
		got := EntryMinimum(dec(tc.total), tc.precision)
		assert.True(t, got.Equal(dec(tc.want)), "total %s: got %s, want %s", tc.total, got, tc.want)
	}
}

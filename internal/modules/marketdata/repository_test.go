package marketdata

import (
	"context"
	"testing"

	"github.com/aristath/simtrader/internal/domain"
	testingpkg "github.com/aristath/simtrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()
	db, _ := testingpkg.NewTestDB(t, "marketdata")
	conn := db.Conn()

	testingpkg.SeedProduct(t, conn, "AAA", "Technology", "0")
	testingpkg.SeedProduct(t, conn, "DIV", "Utilities", "0.035")
	testingpkg.SeedBars(t, conn, "AAA", []testingpkg.BarSpec{
		{Date: "2024-01-02", Close: "100"},
		{Date: "2024-01-03", Close: "101.5"},
		{Date: "2024-01-05", Close: "103"},
	})
	testingpkg.SeedBars(t, conn, "DIV", []testingpkg.BarSpec{
		{Date: "2024-01-04", Close: "50"},
	})

	return NewRepository(conn, zerolog.Nop())
}

func TestRepositoryGetBar(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	bar, err := repo.GetBar(ctx, "AAA", testingpkg.Day(t, "2024-01-03"))
	require.NoError(t, err)
	assert.Equal(t, "101.5", bar.Close.String())
	assert.Equal(t, int64(1000), bar.Volume)

	_, err = repo.GetBar(ctx, "AAA", testingpkg.Day(t, "2024-01-04"))
	assert.ErrorIs(t, err, domain.ErrNotAvailable)
}

func TestRepositoryHistoryIsAscendingAndBounded(t *testing.T) {
	repo := setupRepo(t)

	bars, err := repo.History(context.Background(), "AAA", testingpkg.Day(t, "2024-01-05"), 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "101.5", bars[0].Close.String())
	assert.Equal(t, "103", bars[1].Close.String())

	bars, err = repo.History(context.Background(), "AAA", testingpkg.Day(t, "2024-01-04"), 10)
	require.NoError(t, err)
	assert.Len(t, bars, 2, "bars after asOf are excluded")
}

func TestRepositoryCalendar(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	next, err := repo.NextTradingDate(ctx, testingpkg.Day(t, "2024-01-03"))
	require.NoError(t, err)
	assert.Equal(t, testingpkg.Day(t, "2024-01-04"), next, "any symbol's bar makes a trading date")

	_, err = repo.NextTradingDate(ctx, testingpkg.Day(t, "2024-01-05"))
	assert.ErrorIs(t, err, domain.ErrMarketDataExhausted)

	latest, err := repo.LatestDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, testingpkg.Day(t, "2024-01-05"), latest)
}

func TestRepositoryListActiveAndLastClose(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	products, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Utilities", products["DIV"].Sector)
	assert.Equal(t, "0.035", products["DIV"].DividendRate.String())

	require.NoError(t, repo.UpsertProduct(ctx, domain.ProductInfo{Symbol: "DIV", Sector: "Utilities"}, false))
	products, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.NotContains(t, products, "DIV")

	price, err := repo.LastClose(ctx, "AAA", testingpkg.Day(t, "2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, "101.5", price.String())

	_, err = repo.LastClose(ctx, "AAA", testingpkg.Day(t, "2023-12-31"))
	assert.ErrorIs(t, err, domain.ErrNotAvailable)
}

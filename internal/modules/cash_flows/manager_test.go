package cash_flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	testingpkg "github.com/aristath/simtrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerMovements(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "cash_flows")
	ctx := context.Background()
	conn := db.Conn()

	ledgerRepo := ledger.NewRepository(zerolog.Nop())
	portfolioRepo := portfolio.NewRepository(zerolog.Nop())
	manager := NewManager(ledgerRepo, portfolioRepo, zerolog.Nop())

	policy := portfolio.DefaultPolicy("rsi")
	policy.BankThreshold = dec("5000")
	policy.BankPercent = dec("50")
	policy.ReinvestAmount = dec("1000")
	p, err := portfolioRepo.Create(ctx, conn, "cash", policy, dec("10000"), time.Now())
	require.NoError(t, err)

	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	swept, err := manager.Sweep(ctx, conn, p, day)
	require.NoError(t, err)
	assert.Equal(t, "2500", swept.String())
	assert.Equal(t, "7500", p.Cash.String())
	assert.Equal(t, "2500", p.Bank.String())

	moved, err := manager.Reinvest(ctx, conn, p, day)
	require.NoError(t, err)
	assert.Equal(t, "1000", moved.String())
	assert.Equal(t, "8500", p.Cash.String())
	assert.Equal(t, "1500", p.Bank.String())

	require.NoError(t, manager.Deposit(ctx, conn, p, dec("250"), day, ""))
	assert.Equal(t, "10250", p.Invested.String())

	err = manager.Withdraw(ctx, conn, p, dec("100000"), day)
	assert.True(t, errors.Is(err, domain.ErrInsufficientCash))
	require.NoError(t, manager.Withdraw(ctx, conn, p, dec("750"), day))
	assert.Equal(t, "8000", p.Cash.String())
	assert.Equal(t, "9500", p.Invested.String())

	err = manager.Deposit(ctx, conn, p, decimal.Zero, day, "")
	assert.True(t, errors.Is(err, domain.ErrInvalidOrder))

	stored, err := portfolioRepo.GetByID(ctx, conn, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "8000", stored.Cash.String())
	assert.Equal(t, "1500", stored.Bank.String())

	entries, err := ledgerRepo.CashTransactions(ctx, conn, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	types := []ledger.CashType{entries[0].Type, entries[1].Type, entries[2].Type, entries[3].Type}
	assert.Equal(t, []ledger.CashType{ledger.CashBank, ledger.CashReinvest, ledger.CashDeposit, ledger.CashWithdrawal}, types)
	assert.Equal(t, "-2500", entries[0].Amount.String())
	assert.Equal(t, "-750", entries[3].Amount.String())
}

func TestSweepBelowThresholdIsNoop(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "cash_flows_noop")
	ctx := context.Background()

	ledgerRepo := ledger.NewRepository(zerolog.Nop())
	portfolioRepo := portfolio.NewRepository(zerolog.Nop())
	manager := NewManager(ledgerRepo, portfolioRepo, zerolog.Nop())

	p, err := portfolioRepo.Create(ctx, db.Conn(), "noop", portfolio.DefaultPolicy("rsi"), dec("10000"), time.Now())
	require.NoError(t, err)

	swept, err := manager.Sweep(ctx, db.Conn(), p, time.Now())
	require.NoError(t, err)
	assert.True(t, swept.IsZero())

	moved, err := manager.Reinvest(ctx, db.Conn(), p, time.Now())
	require.NoError(t, err)
	assert.True(t, moved.IsZero())

	entries, err := ledgerRepo.CashTransactions(ctx, db.Conn(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// Package ledger holds the lot-level position ledger: lots, derived positions,
// the BUY/SELL transaction audit trail and the signed cash ledger.
package ledger

import (
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/shopspring/decimal"
)

// CashType classifies a cash ledger entry
type CashType string

const (
	CashDeposit    CashType = "DEPOSIT"
	CashWithdrawal CashType = "WITHDRAWAL"
	CashBuy        CashType = "BUY"
	CashSell       CashType = "SELL"
	CashBank       CashType = "BANK"
	CashReinvest   CashType = "REINVEST"
)

// Lot is a purchase tranche. Only Quantity changes after creation, and only downwards.
type Lot struct {
	ID               int64           `json:"id"`
	PortfolioID      int64           `json:"portfolio_id"`
	Symbol           string          `json:"symbol"`
	Quantity         decimal.Decimal `json:"quantity"`
	OriginalQuantity decimal.Decimal `json:"original_quantity"`
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	PurchaseDate     time.Time       `json:"purchase_date"`
}

// Principal is the remaining cost basis of the lot
func (l Lot) Principal() decimal.Decimal {
	return l.Quantity.Mul(l.PurchasePrice)
}

// Position is the per-symbol aggregate of open lots
type Position struct {
	PortfolioID int64           `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	LastPrice   decimal.Decimal `json:"last_price"`
	UpdatedDate time.Time       `json:"updated_date"`
}

// Transaction is an append-only BUY/SELL record
type Transaction struct {
	ID           int64           `json:"id"`
	PortfolioID  int64           `json:"portfolio_id"`
	Symbol       string          `json:"symbol"`
	Side         domain.Side     `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	RealizedGain decimal.Decimal `json:"realized_gain"`
	Date         time.Time       `json:"date"`
	Source       string          `json:"source"`
}

// CashTransaction is an append-only signed cash movement
type CashTransaction struct {
	ID          int64           `json:"id"`
	PortfolioID int64           `json:"portfolio_id"`
	Type        CashType        `json:"type"`
	Amount      decimal.Decimal `json:"amount"` // Signed from the operating-cash point of view
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

// Consumption records how much of one lot a sale used
type Consumption struct {
	LotID         int64
	PurchaseDate  time.Time
	PurchasePrice decimal.Decimal
	Quantity      decimal.Decimal
}

// Package domain holds value types shared by every simulator module.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Action is a strategy verdict for one symbol on one day
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Bar is one day's OHLCV for a symbol. Bars are immutable once stored.
type Bar struct {
	Symbol string
	Date   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// ProductInfo is the per-product metadata supplied by the catalog
type ProductInfo struct {
	Symbol       string
	Name         string
	Sector       string
	DividendRate decimal.Decimal
}

// Order is a request to trade, from the engine or a manual caller
type Order struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Date     time.Time
	Source   string // "engine", "rebalance", "manual"
}

// Order sources
const (
	SourceEngine    = "engine"
	SourceRebalance = "rebalance"
	SourceManual    = "manual"
)

// Value is quantity × price
func (o Order) Value() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

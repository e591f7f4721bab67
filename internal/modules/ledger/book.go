package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/simtrader/internal/database"
	"github.com/shopspring/decimal"
)

// Book is the in-transaction view of a portfolio's open lots. Positions are
// derived from it, so it is the single authority the executor reasons over
// while a day or an order is being applied.
type Book struct {
	PortfolioID int64
	lots        map[string][]*Lot // FIFO per symbol
}

// NewBook creates an empty book
func NewBook(portfolioID int64) *Book {
	return &Book{
		PortfolioID: portfolioID,
		lots:        make(map[string][]*Lot),
	}
}

// LoadBook reads every open lot of the portfolio through q
func LoadBook(ctx context.Context, q database.Queryer, repo *Repository, portfolioID int64) (*Book, error) {
	lots, err := repo.OpenLots(ctx, q, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load book: %w", err)
	}

	b := NewBook(portfolioID)
	for _, l := range lots {
		b.lots[l.Symbol] = append(b.lots[l.Symbol], l)
	}
	return b, nil
}

// AddLot appends a freshly purchased lot
func (b *Book) AddLot(l *Lot) {
	b.lots[l.Symbol] = append(b.lots[l.Symbol], l)
	sortFIFO(b.lots[l.Symbol])
}

func sortFIFO(lots []*Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		if !lots[i].PurchaseDate.Equal(lots[j].PurchaseDate) {
			return lots[i].PurchaseDate.Before(lots[j].PurchaseDate)
		}
		return lots[i].ID < lots[j].ID
	})
}

// Lots returns the open lots of symbol, oldest first
func (b *Book) Lots(symbol string) []*Lot {
	return b.lots[symbol]
}

// Symbols returns held symbols in ascending order
func (b *Book) Symbols() []string {
	out := make([]string, 0, len(b.lots))
	for s := range b.lots {
		if b.Quantity(s).IsPositive() {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Quantity is the held quantity of symbol
func (b *Book) Quantity(symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.lots[symbol] {
		total = total.Add(l.Quantity)
	}
	return total
}

// CostBasis is the remaining principal of symbol's open lots
func (b *Book) CostBasis(symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.lots[symbol] {
		total = total.Add(l.Principal())
	}
	return total
}

// TotalCostBasis is the remaining principal across every open lot
func (b *Book) TotalCostBasis() decimal.Decimal {
	total := decimal.Zero
	for _, s := range b.Symbols() {
		total = total.Add(b.CostBasis(s))
	}
	return total
}

// StockValue marks every position at marks[symbol]. Symbols without a mark
// fall back to their last purchase price.
func (b *Book) StockValue(marks map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, s := range b.Symbols() {
		total = total.Add(b.Quantity(s).Mul(b.mark(s, marks)))
	}
	return total
}

// MarketValue is quantity × mark for one symbol
func (b *Book) MarketValue(symbol string, marks map[string]decimal.Decimal) decimal.Decimal {
	return b.Quantity(symbol).Mul(b.mark(symbol, marks))
}

func (b *Book) mark(symbol string, marks map[string]decimal.Decimal) decimal.Decimal {
	if p, ok := marks[symbol]; ok {
		return p
	}
	lots := b.lots[symbol]
	if len(lots) == 0 {
		return decimal.Zero
	}
	return lots[len(lots)-1].PurchasePrice
}

// LatestPurchase returns the purchase date of the newest open lot of symbol
func (b *Book) LatestPurchase(symbol string) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, l := range b.lots[symbol] {
		if l.Quantity.IsPositive() && (!found || l.PurchaseDate.After(latest)) {
			latest = l.PurchaseDate
			found = true
		}
	}
	return latest, found
}

// Consume takes qty of symbol from the oldest lots first. Nothing is modified
// unless the whole quantity is available. The returned lots are those whose
// quantity changed and must be persisted.
func (b *Book) Consume(symbol string, qty decimal.Decimal) ([]Consumption, []*Lot, error) {
	if !qty.IsPositive() {
		return nil, nil, fmt.Errorf("consume quantity must be positive, got %s", qty)
	}
	held := b.Quantity(symbol)
	if qty.GreaterThan(held) {
		return nil, nil, fmt.Errorf("cannot consume %s %s, only %s held", qty, symbol, held)
	}

	remaining := qty
	consumed := make([]Consumption, 0)
	touched := make([]*Lot, 0)
	for _, l := range b.lots[symbol] {
		if !remaining.IsPositive() {
			break
		}
		if !l.Quantity.IsPositive() {
			continue
		}

		take := decimal.Min(l.Quantity, remaining)
		l.Quantity = l.Quantity.Sub(take)
		remaining = remaining.Sub(take)

		consumed = append(consumed, Consumption{
			LotID:         l.ID,
			PurchaseDate:  l.PurchaseDate,
			PurchasePrice: l.PurchasePrice,
			Quantity:      take,
		})
		touched = append(touched, l)
	}

	// Drop exhausted lots from the open view
	open := b.lots[symbol][:0]
	for _, l := range b.lots[symbol] {
		if l.Quantity.IsPositive() {
			open = append(open, l)
		}
	}
	if len(open) == 0 {
		delete(b.lots, symbol)
	} else {
		b.lots[symbol] = open
	}

	return consumed, touched, nil
}

// Position derives the position row for symbol, or nil when nothing is held
func (b *Book) Position(symbol string, lastPrice decimal.Decimal, date time.Time) *Position {
	qty := b.Quantity(symbol)
	if !qty.IsPositive() {
		return nil
	}
	return &Position{
		PortfolioID: b.PortfolioID,
		Symbol:      symbol,
		Quantity:    qty,
		CostBasis:   b.CostBasis(symbol),
		LastPrice:   lastPrice,
		UpdatedDate: date,
	}
}

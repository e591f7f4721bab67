package recommendations

import (
	"sort"
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/cash_flows"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/trading"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/shopspring/decimal"
)

// DayState is the portfolio state the planner sizes orders against. The
// scheduler refreshes Portfolio and Book as orders execute.
type DayState struct {
	Portfolio         *portfolio.Portfolio
	Book              *ledger.Book
	Catalog           map[string]domain.ProductInfo // Every active product, for sector lookups
	Marks             map[string]decimal.Decimal    // Last close on or before Date
	Prices            map[string]decimal.Decimal    // Close dated exactly on Date
	Date              time.Time
	FractionalSectors []string
	EntryMinimum      bool // Skip new positions smaller than trading.EntryMinimum
}

func (s DayState) precision(symbol string) int32 {
	return trading.Precision(s.Catalog[symbol].Sector, s.FractionalSectors)
}

// InHoldingPeriod reports whether an automatic sell of symbol must wait for the
// holding period: the newest lot must be at least min_holding_days old.
func (s DayState) InHoldingPeriod(symbol string) bool {
	latest, ok := s.Book.LatestPurchase(symbol)
	if !ok {
		return false
	}
	return utils.DaysBetween(latest, s.Date) < s.Portfolio.Policy.MinHoldingDays
}

// Divestments plans the rebalance pass: held symbols now outside the sector
// policy are sold in full, positions above max_exposure are trimmed by the excess.
// Symbols without a price on the day, or still inside the holding period, are left alone.
func Divestments(s DayState) []domain.Order {
	policy := s.Portfolio.Policy
	total := trading.TotalValue(s.Portfolio, s.Book, s.Marks)
	limit := domain.Percent(total, policy.MaxExposurePercent)

	orders := make([]domain.Order, 0)
	for _, symbol := range s.Book.Symbols() {
		price, ok := s.Prices[symbol]
		if !ok || s.InHoldingPeriod(symbol) {
			continue
		}

		held := s.Book.Quantity(symbol)
		qty := decimal.Zero
		switch {
		case !policy.SectorAllowed(s.Catalog[symbol].Sector):
			qty = held
		case policy.MaxExposurePercent.IsPositive():
			value := held.Mul(price)
			if value.GreaterThan(limit) {
				qty = decimal.Min(held, trading.Shares(value.Sub(limit), price, s.precision(symbol)))
			}
		}

		if qty.IsPositive() {
			orders = append(orders, domain.Order{
				Symbol:   symbol,
				Side:     domain.SideSell,
				Quantity: qty,
				Price:    price,
				Date:     s.Date,
				Source:   domain.SourceRebalance,
			})
		}
	}
	return orders
}

// Exits turns favored SELL signals on held symbols into full-position sells.
// SELLs are never cash constrained.
func Exits(s DayState, favored []Recommendation) []domain.Order {
	orders := make([]domain.Order, 0)
	for _, rec := range favored {
		if rec.Action != domain.ActionSell {
			continue
		}
		held := s.Book.Quantity(rec.Symbol)
		price, ok := s.Prices[rec.Symbol]
		if !held.IsPositive() || !ok || s.InHoldingPeriod(rec.Symbol) {
			continue
		}
		orders = append(orders, domain.Order{
			Symbol:   rec.Symbol,
			Side:     domain.SideSell,
			Quantity: held,
			Price:    price,
			Date:     s.Date,
			Source:   domain.SourceEngine,
		})
	}
	return orders
}

// RankBuys returns the favored BUY candidates inside the universe, strongest
// first with ties broken by symbol
func RankBuys(favored []Recommendation, universe map[string]domain.ProductInfo) []Recommendation {
	buys := make([]Recommendation, 0)
	for _, rec := range favored {
		if rec.Action != domain.ActionBuy {
			continue
		}
		if _, ok := universe[rec.Symbol]; !ok {
			continue
		}
		buys = append(buys, rec)
	}

	sort.SliceStable(buys, func(i, j int) bool {
		if buys[i].Strength != buys[j].Strength {
			return buys[i].Strength > buys[j].Strength
		}
		return buys[i].Symbol < buys[j].Symbol
	})
	return buys
}

// SizeBuy sizes a BUY of rec against the current state: the smaller of the
// exposure room and the cash above the reserve floor, rounded down to the
// symbol's tradable increment. Returns nil when nothing can be bought, or when
// EntryMinimum is set and a new position would open below the entry minimum.
func SizeBuy(s DayState, rec Recommendation) *domain.Order {
	price, ok := s.Prices[rec.Symbol]
	if !ok || !price.IsPositive() {
		return nil
	}

	policy := s.Portfolio.Policy
	marks := make(map[string]decimal.Decimal, len(s.Marks)+1)
	for k, v := range s.Marks {
		marks[k] = v
	}
	marks[rec.Symbol] = price
	total := trading.TotalValue(s.Portfolio, s.Book, marks)

	budget := cash_flows.Headroom(policy, s.Portfolio.Cash, total)
	if policy.MaxExposurePercent.IsPositive() {
		room := domain.Percent(total, policy.MaxExposurePercent).Sub(s.Book.MarketValue(rec.Symbol, marks))
		budget = decimal.Min(budget, room)
	}

	precision := s.precision(rec.Symbol)
	qty := trading.Shares(budget, price, precision)
	if !qty.IsPositive() {
		return nil
	}
	if s.EntryMinimum && !s.Book.Quantity(rec.Symbol).IsPositive() &&
		qty.LessThan(trading.EntryMinimum(total, precision)) {
		return nil
	}

	return &domain.Order{
		Symbol:   rec.Symbol,
		Side:     domain.SideBuy,
		Quantity: qty,
		Price:    price,
		Date:     s.Date,
		Source:   domain.SourceEngine,
	}
}

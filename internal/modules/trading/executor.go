// Package trading turns orders into ledger mutations: lots, derived positions,
// the transaction trail and the cash ledger.
package trading

import (
	"context"
	"fmt"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Executor validates and applies orders. It never begins or commits a
// transaction: callers pass the Queryer of the unit of work the order belongs
// to (one simulated day, or one manual order).
type Executor struct {
	ledgerRepo    *ledger.Repository
	portfolioRepo *portfolio.Repository
	log           zerolog.Logger
}

// NewExecutor creates a new order executor
func NewExecutor(ledgerRepo *ledger.Repository, portfolioRepo *portfolio.Repository, log zerolog.Logger) *Executor {
	return &Executor{
		ledgerRepo:    ledgerRepo,
		portfolioRepo: portfolioRepo,
		log:           log.With().Str("service", "executor").Logger(),
	}
}

// Fill is the outcome of an executed order
type Fill struct {
	Transaction *ledger.Transaction
	Consumed    []ledger.Consumption // SELL only, oldest lot first
}

// Execute validates the order against the portfolio and book, then applies it.
// A *domain.RejectionError is returned before anything is written. On success
// p and book reflect the new state.
//
// Parameters:
//   - q: Queryer of the enclosing transaction
//   - p: Portfolio whose balances are updated and saved
//   - book: Open lots of p, loaded through q
//   - marks: Valuation prices used for total value (the traded symbol is marked at the order price)
//   - order: Order to apply
//
// Returns:
//   - *Fill: Recorded transaction and, for sells, the consumed tranches
//   - error: Rejection, or a storage error after which the enclosing transaction must roll back
func (e *Executor) Execute(
	ctx context.Context,
	q database.Queryer,
	p *portfolio.Portfolio,
	book *ledger.Book,
	marks map[string]decimal.Decimal,
	order domain.Order,
) (*Fill, error) {
	if err := e.Validate(p, book, marks, order); err != nil {
		e.log.Warn().
			Int64("portfolio_id", p.ID).
			Str("symbol", order.Symbol).
			Str("side", string(order.Side)).
			Str("quantity", order.Quantity.String()).
			Str("reason", reasonOf(err)).
			Msg("Order rejected")
		return nil, err
	}

	var fill *Fill
	var err error
	if order.Side == domain.SideBuy {
		fill, err = e.applyBuy(ctx, q, p, book, order)
	} else {
		fill, err = e.applySell(ctx, q, p, book, order)
	}
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Int64("portfolio_id", p.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("quantity", order.Quantity.String()).
		Str("price", order.Price.String()).
		Str("realized_gain", fill.Transaction.RealizedGain.String()).
		Str("cash", p.Cash.String()).
		Msg("Order executed")

	return fill, nil
}

// Validate runs every validation layer without writing anything
func (e *Executor) Validate(p *portfolio.Portfolio, book *ledger.Book, marks map[string]decimal.Decimal, order domain.Order) error {
	// Layer 1: order shape
	if err := validateShape(order); err != nil {
		return err
	}

	if order.Side == domain.SideSell {
		// Layer 2: position size (SELL only)
		return validateSellPosition(book, order)
	}

	total := TotalValue(p, book, withMark(marks, order.Symbol, order.Price))

	// Layer 3: reserve floor (BUY only)
	if err := validateReserve(p, total, order); err != nil {
		return err
	}

	// Layer 4: exposure cap (BUY only)
	return validateExposure(p, book, total, order)
}

func validateShape(order domain.Order) error {
	switch {
	case order.Symbol == "":
		return domain.NewRejection(domain.ReasonInvalidOrder, order.Symbol, order.Side, "symbol is required")
	case !order.Side.Valid():
		return domain.NewRejection(domain.ReasonInvalidOrder, order.Symbol, order.Side, "side must be BUY or SELL")
	case !order.Quantity.IsPositive():
		return domain.NewRejection(domain.ReasonInvalidOrder, order.Symbol, order.Side, "quantity must be positive, got %s", order.Quantity)
	case !order.Price.IsPositive():
		return domain.NewRejection(domain.ReasonInvalidOrder, order.Symbol, order.Side, "price must be positive, got %s", order.Price)
	case order.Date.IsZero():
		return domain.NewRejection(domain.ReasonInvalidOrder, order.Symbol, order.Side, "date is required")
	}
	return nil
}

func validateSellPosition(book *ledger.Book, order domain.Order) error {
	held := book.Quantity(order.Symbol)
	if order.Quantity.GreaterThan(held) {
		return domain.NewRejection(domain.ReasonInsufficientShares, order.Symbol, order.Side,
			"selling %s but only %s held", order.Quantity, held)
	}
	return nil
}

func validateReserve(p *portfolio.Portfolio, total decimal.Decimal, order domain.Order) error {
	after := p.Cash.Sub(order.Value())
	floor := ReserveFloor(p.Policy, total)
	if after.LessThan(floor) || after.IsNegative() {
		return domain.NewRejection(domain.ReasonInsufficientCash, order.Symbol, order.Side,
			"cash after trade %s below reserve floor %s", after, floor)
	}
	return nil
}

func validateExposure(p *portfolio.Portfolio, book *ledger.Book, total decimal.Decimal, order domain.Order) error {
	if !p.Policy.MaxExposurePercent.IsPositive() {
		return nil
	}

	resulting := book.Quantity(order.Symbol).Add(order.Quantity).Mul(order.Price)
	limit := domain.Percent(total, p.Policy.MaxExposurePercent)
	if resulting.GreaterThan(limit) {
		return domain.NewRejection(domain.ReasonExposureExceeded, order.Symbol, order.Side,
			"position value %s would exceed %s%% of total value (%s)", resulting, p.Policy.MaxExposurePercent, limit)
	}
	return nil
}

func (e *Executor) applyBuy(ctx context.Context, q database.Queryer, p *portfolio.Portfolio, book *ledger.Book, order domain.Order) (*Fill, error) {
	value := order.Value()

	lot := &ledger.Lot{
		PortfolioID:      p.ID,
		Symbol:           order.Symbol,
		Quantity:         order.Quantity,
		OriginalQuantity: order.Quantity,
		PurchasePrice:    order.Price,
		PurchaseDate:     order.Date,
	}
	if err := e.ledgerRepo.InsertLot(ctx, q, lot); err != nil {
		return nil, err
	}
	book.AddLot(lot)

	if err := e.ledgerRepo.UpsertPosition(ctx, q, book.Position(order.Symbol, order.Price, order.Date)); err != nil {
		return nil, err
	}

	tx := &ledger.Transaction{
		PortfolioID:  p.ID,
		Symbol:       order.Symbol,
		Side:         domain.SideBuy,
		Quantity:     order.Quantity,
		Price:        order.Price,
		RealizedGain: decimal.Zero,
		Date:         order.Date,
		Source:       sourceOf(order),
	}
	if err := e.ledgerRepo.AppendTransaction(ctx, q, tx); err != nil {
		return nil, err
	}

	if err := e.ledgerRepo.AppendCashTransaction(ctx, q, &ledger.CashTransaction{
		PortfolioID: p.ID,
		Type:        ledger.CashBuy,
		Amount:      value.Neg(),
		Date:        order.Date,
		Description: fmt.Sprintf("BUY %s %s @ %s", order.Quantity, order.Symbol, order.Price),
	}); err != nil {
		return nil, err
	}

	p.Cash = p.Cash.Sub(value)
	if err := e.portfolioRepo.SaveBalances(ctx, q, p); err != nil {
		return nil, err
	}

	return &Fill{Transaction: tx}, nil
}

func (e *Executor) applySell(ctx context.Context, q database.Queryer, p *portfolio.Portfolio, book *ledger.Book, order domain.Order) (*Fill, error) {
	consumed, touched, err := book.Consume(order.Symbol, order.Quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to consume lots: %w", err)
	}

	for _, lot := range touched {
		if err := e.ledgerRepo.ReduceLot(ctx, q, lot); err != nil {
			return nil, err
		}
	}

	realized := RealizedGain(order.Price, consumed)

	if pos := book.Position(order.Symbol, order.Price, order.Date); pos != nil {
		err = e.ledgerRepo.UpsertPosition(ctx, q, pos)
	} else {
		err = e.ledgerRepo.DeletePosition(ctx, q, p.ID, order.Symbol)
	}
	if err != nil {
		return nil, err
	}

	tx := &ledger.Transaction{
		PortfolioID:  p.ID,
		Symbol:       order.Symbol,
		Side:         domain.SideSell,
		Quantity:     order.Quantity,
		Price:        order.Price,
		RealizedGain: realized,
		Date:         order.Date,
		Source:       sourceOf(order),
	}
	if err := e.ledgerRepo.AppendTransaction(ctx, q, tx); err != nil {
		return nil, err
	}

	value := order.Value()
	if err := e.ledgerRepo.AppendCashTransaction(ctx, q, &ledger.CashTransaction{
		PortfolioID: p.ID,
		Type:        ledger.CashSell,
		Amount:      value,
		Date:        order.Date,
		Description: fmt.Sprintf("SELL %s %s @ %s", order.Quantity, order.Symbol, order.Price),
	}); err != nil {
		return nil, err
	}

	p.Cash = p.Cash.Add(value)
	if err := e.portfolioRepo.SaveBalances(ctx, q, p); err != nil {
		return nil, err
	}

	return &Fill{Transaction: tx, Consumed: consumed}, nil
}

// RealizedGain is Σ (sell price − purchase price) × consumed quantity
func RealizedGain(sellPrice decimal.Decimal, consumed []ledger.Consumption) decimal.Decimal {
	gain := decimal.Zero
	for _, c := range consumed {
		gain = gain.Add(sellPrice.Sub(c.PurchasePrice).Mul(c.Quantity))
	}
	return gain
}

// TotalValue is Σ(position × mark) + cash + bank
func TotalValue(p *portfolio.Portfolio, book *ledger.Book, marks map[string]decimal.Decimal) decimal.Decimal {
	return book.StockValue(marks).Add(p.Cash).Add(p.Bank)
}

// ReserveFloor is the minimum cash a BUY must leave behind
func ReserveFloor(policy portfolio.Policy, total decimal.Decimal) decimal.Decimal {
	return domain.Percent(total, policy.ReserveCashPercent)
}

func withMark(marks map[string]decimal.Decimal, symbol string, price decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(marks)+1)
	for k, v := range marks {
		out[k] = v
	}
	out[symbol] = price
	return out
}

func sourceOf(order domain.Order) string {
	if order.Source == "" {
		return domain.SourceEngine
	}
	return order.Source
}

func reasonOf(err error) string {
	if rej, ok := domain.AsRejection(err); ok {
		return string(rej.Reason)
	}
	return "error"
}

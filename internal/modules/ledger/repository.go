package ledger

import (
	"context"
	"fmt"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/rs/zerolog"
)

// Repository persists ledger rows. Every method takes a database.Queryer so the
// same calls run inside the per-day or per-order transaction.
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// InsertLot creates a lot and populates its ID
func (r *Repository) InsertLot(ctx context.Context, q database.Queryer, lot *Lot) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO lots (portfolio_id, symbol, quantity, original_quantity, purchase_price, purchase_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		lot.PortfolioID, lot.Symbol, lot.Quantity.String(), lot.OriginalQuantity.String(),
		lot.PurchasePrice.String(), utils.Day(lot.PurchaseDate).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert lot for %s: %w", lot.Symbol, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	lot.ID = id

	return nil
}

// ReduceLot sets a lot's remaining quantity after partial or full consumption
func (r *Repository) ReduceLot(ctx context.Context, q database.Queryer, lot *Lot) error {
	if lot.Quantity.IsNegative() {
		return fmt.Errorf("lot %d quantity would go negative: %s", lot.ID, lot.Quantity)
	}

	res, err := q.ExecContext(ctx, `UPDATE lots SET quantity = ? WHERE id = ?`, lot.Quantity.String(), lot.ID)
	if err != nil {
		return fmt.Errorf("failed to reduce lot %d: %w", lot.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lot %d not found", lot.ID)
	}

	return nil
}

// OpenLots returns lots with remaining quantity, FIFO-ordered per symbol
// (oldest purchase date first, then creation order)
func (r *Repository) OpenLots(ctx context.Context, q database.Queryer, portfolioID int64) ([]*Lot, error) {
	return r.queryLots(ctx, q, `
		SELECT id, portfolio_id, symbol, quantity, original_quantity, purchase_price, purchase_date
		FROM lots
		WHERE portfolio_id = ? AND CAST(quantity AS REAL) > 0
		ORDER BY symbol, purchase_date, id`, portfolioID)
}

// AllLots returns every lot ever created, including fully consumed ones
func (r *Repository) AllLots(ctx context.Context, q database.Queryer, portfolioID int64) ([]*Lot, error) {
	return r.queryLots(ctx, q, `
		SELECT id, portfolio_id, symbol, quantity, original_quantity, purchase_price, purchase_date
		FROM lots
		WHERE portfolio_id = ?
		ORDER BY id`, portfolioID)
}

func (r *Repository) queryLots(ctx context.Context, q database.Queryer, query string, args ...any) ([]*Lot, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	lots := make([]*Lot, 0)
	for rows.Next() {
		var l Lot
		var date int64
		if err := rows.Scan(&l.ID, &l.PortfolioID, &l.Symbol, &l.Quantity, &l.OriginalQuantity, &l.PurchasePrice, &date); err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		l.PurchaseDate = utils.UnixToDate(date)
		lots = append(lots, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lots: %w", err)
	}

	return lots, nil
}

// UpsertPosition writes the derived position row
func (r *Repository) UpsertPosition(ctx context.Context, q database.Queryer, pos *Position) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO positions (portfolio_id, symbol, quantity, cost_basis, last_price, updated_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, symbol) DO UPDATE SET
			quantity = excluded.quantity,
			cost_basis = excluded.cost_basis,
			last_price = excluded.last_price,
			updated_date = excluded.updated_date`,
		pos.PortfolioID, pos.Symbol, pos.Quantity.String(), pos.CostBasis.String(),
		pos.LastPrice.String(), utils.Day(pos.UpdatedDate).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", pos.Symbol, err)
	}
	return nil
}

// DeletePosition removes a position that reached zero
func (r *Repository) DeletePosition(ctx context.Context, q database.Queryer, portfolioID int64, symbol string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM positions WHERE portfolio_id = ? AND symbol = ?`, portfolioID, symbol); err != nil {
		return fmt.Errorf("failed to delete position %s: %w", symbol, err)
	}
	return nil
}

// Positions returns current positions ordered by symbol
func (r *Repository) Positions(ctx context.Context, q database.Queryer, portfolioID int64) ([]*Position, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT portfolio_id, symbol, quantity, cost_basis, last_price, updated_date
		FROM positions
		WHERE portfolio_id = ?
		ORDER BY symbol`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*Position, 0)
	for rows.Next() {
		var p Position
		var date int64
		if err := rows.Scan(&p.PortfolioID, &p.Symbol, &p.Quantity, &p.CostBasis, &p.LastPrice, &date); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.UpdatedDate = utils.UnixToDate(date)
		positions = append(positions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// AppendTransaction records a BUY/SELL and populates its ID
func (r *Repository) AppendTransaction(ctx context.Context, q database.Queryer, tx *Transaction) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO transactions (portfolio_id, symbol, side, quantity, price, realized_gain, date, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.PortfolioID, tx.Symbol, string(tx.Side), tx.Quantity.String(), tx.Price.String(),
		tx.RealizedGain.String(), utils.Day(tx.Date).Unix(), tx.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to append %s transaction for %s: %w", tx.Side, tx.Symbol, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	tx.ID = id

	return nil
}

// Transactions returns the BUY/SELL history in insertion order
func (r *Repository) Transactions(ctx context.Context, q database.Queryer, portfolioID int64) ([]*Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, portfolio_id, symbol, side, quantity, price, realized_gain, date, source
		FROM transactions
		WHERE portfolio_id = ?
		ORDER BY id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]*Transaction, 0)
	for rows.Next() {
		var t Transaction
		var side string
		var date int64
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.Symbol, &side, &t.Quantity, &t.Price, &t.RealizedGain, &date, &t.Source); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Side = domain.Side(side)
		t.Date = utils.UnixToDate(date)
		txs = append(txs, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}

// AppendCashTransaction records a signed cash movement and populates its ID
func (r *Repository) AppendCashTransaction(ctx context.Context, q database.Queryer, ct *CashTransaction) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO cash_transactions (portfolio_id, type, amount, date, description)
		VALUES (?, ?, ?, ?, ?)`,
		ct.PortfolioID, string(ct.Type), ct.Amount.String(), utils.Day(ct.Date).Unix(), ct.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to append %s cash transaction: %w", ct.Type, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	ct.ID = id

	return nil
}

// CashTransactions returns the cash ledger in insertion order
func (r *Repository) CashTransactions(ctx context.Context, q database.Queryer, portfolioID int64) ([]*CashTransaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, portfolio_id, type, amount, date, description
		FROM cash_transactions
		WHERE portfolio_id = ?
		ORDER BY id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cash transactions: %w", err)
	}
	defer rows.Close()

	entries := make([]*CashTransaction, 0)
	for rows.Next() {
		var c CashTransaction
		var typ string
		var date int64
		if err := rows.Scan(&c.ID, &c.PortfolioID, &typ, &c.Amount, &date, &c.Description); err != nil {
			return nil, fmt.Errorf("failed to scan cash transaction: %w", err)
		}
		c.Type = CashType(typ)
		c.Date = utils.UnixToDate(date)
		entries = append(entries, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cash transactions: %w", err)
	}

	return entries, nil
}

// Purge removes every ledger row of a portfolio (positions, lots, transactions,
// cash transactions). Used by reset only.
func (r *Repository) Purge(ctx context.Context, q database.Queryer, portfolioID int64) error {
	for _, table := range []string{"positions", "lots", "transactions", "cash_transactions"} {
		if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE portfolio_id = ?`, portfolioID); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}

	r.log.Info().Int64("portfolio_id", portfolioID).Msg("Ledger purged")
	return nil
}

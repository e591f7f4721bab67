package marketdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repository is the SQLite-backed Feed, Catalog and Calendar.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new market data repository.
//
// Parameters:
//   - db: Database connection holding market_data and products
//   - log: Structured logger
//
// Returns:
//   - *Repository: Initialized repository instance
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "market_data").Logger(),
	}
}

const barColumns = `symbol, date, open, high, low, close, volume`

func scanBar(row interface{ Scan(...any) error }) (domain.Bar, error) {
	var b domain.Bar
	var date int64
	if err := row.Scan(&b.Symbol, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
		return domain.Bar{}, err
	}
	b.Date = utils.UnixToDate(date)
	return b, nil
}

// GetBar returns the bar for symbol dated exactly on date.
func (r *Repository) GetBar(ctx context.Context, symbol string, date time.Time) (*domain.Bar, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+barColumns+` FROM market_data WHERE symbol = ? AND date = ?`,
		symbol, utils.Day(date).Unix(),
	)

	bar, err := scanBar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bar %s on %s: %w", symbol, utils.FormatDate(date), err)
	}

	return &bar, nil
}

// History returns up to n bars dated on or before asOf, oldest first.
func (r *Repository) History(ctx context.Context, symbol string, asOf time.Time, n int) ([]domain.Bar, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+barColumns+` FROM (
			SELECT `+barColumns+` FROM market_data
			WHERE symbol = ? AND date <= ?
			ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC`,
		symbol, utils.Day(asOf).Unix(), n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", symbol, err)
	}
	defer rows.Close()

	return collectBars(rows)
}

// Series returns every bar for symbol, oldest first.
func (r *Repository) Series(ctx context.Context, symbol string) ([]domain.Bar, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+barColumns+` FROM market_data WHERE symbol = ? ORDER BY date ASC`,
		symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query series for %s: %w", symbol, err)
	}
	defer rows.Close()

	return collectBars(rows)
}

func collectBars(rows *sql.Rows) ([]domain.Bar, error) {
	bars := make([]domain.Bar, 0)
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}
	return bars, nil
}

// NextTradingDate returns the first date strictly after `after` with any bar.
func (r *Repository) NextTradingDate(ctx context.Context, after time.Time) (time.Time, error) {
	var next sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MIN(date) FROM market_data WHERE date > ?`,
		utils.Day(after).Unix(),
	).Scan(&next)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query next trading date: %w", err)
	}
	if !next.Valid {
		return time.Time{}, domain.ErrMarketDataExhausted
	}
	return utils.UnixToDate(next.Int64), nil
}

// LatestDate returns the most recent date with any bar.
func (r *Repository) LatestDate(ctx context.Context) (time.Time, error) {
	var latest sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(date) FROM market_data`).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest trading date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, domain.ErrMarketDataExhausted
	}
	return utils.UnixToDate(latest.Int64), nil
}

// ListActive returns metadata for every active product, keyed by symbol.
func (r *Repository) ListActive(ctx context.Context) (map[string]domain.ProductInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT symbol, name, sector, dividend_rate FROM products WHERE active = 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make(map[string]domain.ProductInfo)
	for rows.Next() {
		var p domain.ProductInfo
		if err := rows.Scan(&p.Symbol, &p.Name, &p.Sector, &p.DividendRate); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[p.Symbol] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// UpsertProduct creates or replaces catalog metadata for a product.
func (r *Repository) UpsertProduct(ctx context.Context, p domain.ProductInfo, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (symbol, name, sector, dividend_rate, active)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			dividend_rate = excluded.dividend_rate,
			active = excluded.active`,
		p.Symbol, p.Name, p.Sector, p.DividendRate.String(), boolToInt(active),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.Symbol, err)
	}
	return nil
}

// InsertBars stores bars, ignoring any (symbol, date) already present since
// stored bars are immutable. Returns the number of new rows.
func (r *Repository) InsertBars(ctx context.Context, bars []domain.Bar) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin bar import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO market_data (`+barColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare bar insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, b := range bars {
		res, err := stmt.ExecContext(ctx,
			b.Symbol, utils.Day(b.Date).Unix(),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert bar %s %s: %w", b.Symbol, utils.FormatDate(b.Date), err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bar import: %w", err)
	}

	r.log.Info().Int("received", len(bars)).Int("inserted", inserted).Msg("Imported bars")
	return inserted, nil
}

// LastClose returns the most recent close on or before asOf.
func (r *Repository) LastClose(ctx context.Context, symbol string, asOf time.Time) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT close FROM market_data WHERE symbol = ? AND date <= ? ORDER BY date DESC LIMIT 1`,
		symbol, utils.Day(asOf).Unix(),
	).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, domain.ErrNotAvailable
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get last close for %s: %w", symbol, err)
	}
	return price, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package marketdata

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// BarRow is one CSV line of daily bars: date,symbol,open,high,low,close,volume.
// open/high/low may be empty and default to close.
type BarRow struct {
	Date   string `csv:"date"`
	Symbol string `csv:"symbol"`
	Open   string `csv:"open"`
	High   string `csv:"high"`
	Low    string `csv:"low"`
	Close  string `csv:"close"`
	Volume string `csv:"volume"`
}

// ProductRow is one CSV line of catalog metadata: symbol,name,sector,dividend_rate,active.
type ProductRow struct {
	Symbol       string `csv:"symbol"`
	Name         string `csv:"name"`
	Sector       string `csv:"sector"`
	DividendRate string `csv:"dividend_rate"`
	Active       string `csv:"active"`
}

// ParseBars decodes bar rows from CSV.
func ParseBars(r io.Reader) ([]domain.Bar, error) {
	rows := []BarRow{}
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode bars csv: %w", err)
	}

	bars := make([]domain.Bar, 0, len(rows))
	for i, row := range rows {
		bar, err := row.toBar()
		if err != nil {
			return nil, fmt.Errorf("bars csv line %d: %w", i+2, err)
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

func (row BarRow) toBar() (domain.Bar, error) {
	symbol := strings.TrimSpace(row.Symbol)
	if symbol == "" {
		return domain.Bar{}, fmt.Errorf("missing symbol")
	}

	date, err := utils.ParseDate(strings.TrimSpace(row.Date))
	if err != nil {
		return domain.Bar{}, err
	}

	closePrice, err := parsePrice("close", row.Close, decimal.Zero)
	if err != nil {
		return domain.Bar{}, err
	}
	if !closePrice.IsPositive() {
		return domain.Bar{}, fmt.Errorf("close must be positive, got %s", closePrice)
	}

	open, err := parsePrice("open", row.Open, closePrice)
	if err != nil {
		return domain.Bar{}, err
	}
	high, err := parsePrice("high", row.High, closePrice)
	if err != nil {
		return domain.Bar{}, err
	}
	low, err := parsePrice("low", row.Low, closePrice)
	if err != nil {
		return domain.Bar{}, err
	}

	var volume int64
	if v := strings.TrimSpace(row.Volume); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("invalid volume %q: %w", v, err)
		}
		volume = int64(f)
	}

	return domain.Bar{
		Symbol: symbol,
		Date:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

func parsePrice(field, raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if fallback.IsZero() {
			return decimal.Zero, fmt.Errorf("missing %s", field)
		}
		return fallback, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return d, nil
}

// ParseProducts decodes catalog rows from CSV. An empty active column means active.
func ParseProducts(r io.Reader) ([]ProductRow, error) {
	rows := []ProductRow{}
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode products csv: %w", err)
	}
	return rows, nil
}

// Importer loads CSV files into the market data tables.
type Importer struct {
	repo *Repository
}

// NewImporter creates an importer writing through repo
func NewImporter(repo *Repository) *Importer {
	return &Importer{repo: repo}
}

// ImportBars parses and stores bars, returning how many were new.
func (im *Importer) ImportBars(ctx context.Context, r io.Reader) (int, error) {
	bars, err := ParseBars(r)
	if err != nil {
		return 0, err
	}
	return im.repo.InsertBars(ctx, bars)
}

// ImportProducts parses and upserts catalog rows, returning how many were written.
func (im *Importer) ImportProducts(ctx context.Context, r io.Reader) (int, error) {
	rows, err := ParseProducts(r)
	if err != nil {
		return 0, err
	}

	for i, row := range rows {
		symbol := strings.TrimSpace(row.Symbol)
		if symbol == "" {
			return i, fmt.Errorf("products csv line %d: missing symbol", i+2)
		}

		rate := decimal.Zero
		if s := strings.TrimSpace(row.DividendRate); s != "" {
			if rate, err = decimal.NewFromString(s); err != nil {
				return i, fmt.Errorf("products csv line %d: invalid dividend_rate %q: %w", i+2, s, err)
			}
		}

		active := true
		if s := strings.TrimSpace(row.Active); s != "" {
			if active, err = strconv.ParseBool(s); err != nil {
				return i, fmt.Errorf("products csv line %d: invalid active %q: %w", i+2, s, err)
			}
		}

		info := domain.ProductInfo{
			Symbol:       symbol,
			Name:         strings.TrimSpace(row.Name),
			Sector:       strings.TrimSpace(row.Sector),
			DividendRate: rate,
		}
		if err := im.repo.UpsertProduct(ctx, info, active); err != nil {
			return i, err
		}
	}

	return len(rows), nil
}

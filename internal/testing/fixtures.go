package testing

import (
	"database/sql"
	"testing"
	"time"
)

// BarSpec is a compact daily bar for seeding market data.
// Open/High/Low default to Close.
type BarSpec struct {
	Date   string // YYYY-MM-DD
	Close  string
	Volume int64
}

// Day parses a YYYY-MM-DD fixture date at midnight UTC.
func Day(t *testing.T, date string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		t.Fatalf("bad fixture date %q: %v", date, err)
	}
	return d
}

// SeedProduct inserts one catalog product.
func SeedProduct(t *testing.T, db *sql.DB, symbol, sector, dividendRate string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO products (symbol, name, sector, dividend_rate, active) VALUES (?, ?, ?, ?, 1)`,
		symbol, symbol, sector, dividendRate,
	)
	if err != nil {
		t.Fatalf("failed to seed product %s: %v", symbol, err)
	}
}

// SeedBars inserts daily bars for a symbol.
func SeedBars(t *testing.T, db *sql.DB, symbol string, bars []BarSpec) {
	t.Helper()
	for _, b := range bars {
		date := Day(t, b.Date)
		volume := b.Volume
		if volume == 0 {
			volume = 1000
		}
		_, err := db.Exec(
			`INSERT INTO market_data (symbol, date, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			symbol, date.Unix(), b.Close, b.Close, b.Close, b.Close, volume,
		)
		if err != nil {
			t.Fatalf("failed to seed bar %s %s: %v", symbol, b.Date, err)
		}
	}
}

// TradingDays returns n consecutive weekday dates starting at start (inclusive).
func TradingDays(t *testing.T, start string, n int) []string {
	t.Helper()
	d := Day(t, start)
	out := make([]string, 0, n)
	for len(out) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, d.Format("2006-01-02"))
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// Series pairs dates with closes into BarSpecs.
func Series(dates []string, closes []string) []BarSpec {
	out := make([]BarSpec, 0, len(dates))
	for i, d := range dates {
		if i >= len(closes) {
			break
		}
		out = append(out, BarSpec{Date: d, Close: closes[i]})
	}
	return out
}

// Constant repeats a close for every date.
func Constant(dates []string, close string) []BarSpec {
	out := make([]BarSpec, 0, len(dates))
	for _, d := range dates {
		out = append(out, BarSpec{Date: d, Close: close})
	}
	return out
}

package trading

import (
	"math"

	"github.com/shopspring/decimal"
)

// FractionalPrecision is the quantity precision of fractional sectors
const FractionalPrecision int32 = 4

// Precision returns how many decimals quantities of a sector trade in
func Precision(sector string, fractionalSectors []string) int32 {
	for _, s := range fractionalSectors {
		if s == sector {
			return FractionalPrecision
		}
	}
	return 0
}

// Shares converts an amount of money into a tradable quantity, rounded down
func Shares(amount, price decimal.Decimal, precision int32) decimal.Decimal {
	if !amount.IsPositive() || !price.IsPositive() {
		return decimal.Zero
	}
	return amount.DivRound(price, precision+8).Truncate(precision)
}

// fractionalEntry is the smallest opening quantity in a fractional sector
var fractionalEntry = decimal.New(1, -2)

// EntryMinimum is the smallest quantity a new position may open with. Whole
// shares scale with the portfolio as 10^floor(log10(total)/2), so a 10000
// portfolio opens with at least 100 shares. Fractional sectors need 0.01.
func EntryMinimum(total decimal.Decimal, precision int32) decimal.Decimal {
	if precision > 0 {
		return fractionalEntry
	}
	if !total.IsPositive() {
		return decimal.NewFromInt(1)
	}
	exp := math.Floor(math.Log10(total.InexactFloat64()) / 2)
	if exp < 0 {
		exp = 0
	}
	return decimal.New(1, int32(exp))
}

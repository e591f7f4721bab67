package strategies

import (
	"math"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/pkg/formulas"
)

const (
	smaWindow      = 50
	smaLongWindow  = 200
	rsiWindow      = 14
	rsiHigh        = 70.0
	rsiLow         = 30.0
	rsiMid         = 50.0
	vwapDays       = 200
	vwapHigh       = 1.02
	vwapLow        = 0.98
	reversionBand  = 0.05
	macdFast       = 12
	macdSlow       = 26
	macdSignalSpan = 9
)

func hold(info map[string]float64) Signal {
	return Signal{Action: domain.ActionHold, Info: info}
}

func closes(in Input) []float64 {
	out := make([]float64, len(in.Bars))
	for i, b := range in.Bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

func last(values []float64) float64 {
	return values[len(values)-1]
}

// SMABuyHold buys while the last close is above SMA(50)
func SMABuyHold(in Input) Signal {
	c := closes(in)
	sma := formulas.CalculateSMA(c, smaWindow)
	if sma == nil || *sma == 0 {
		return hold(nil)
	}

	info := map[string]float64{"sma": *sma}
	price := last(c)
	if price > *sma {
		return Signal{Action: domain.ActionBuy, Strength: (price - *sma) / *sma, Info: info}
	}
	return hold(info)
}

// RSI buys below 30 and sells above 70
func RSI(in Input) Signal {
	rsi := formulas.CalculateRSI(closes(in), rsiWindow)
	if rsi == nil {
		return hold(nil)
	}

	info := map[string]float64{"rsi": *rsi}
	switch {
	case *rsi > rsiHigh:
		return Signal{Action: domain.ActionSell, Strength: (*rsi - rsiHigh) / rsiHigh, Info: info}
	case *rsi < rsiLow:
		return Signal{Action: domain.ActionBuy, Strength: (rsiLow - *rsi) / rsiLow, Info: info}
	}
	return hold(info)
}

// VWAP trades deviations from the volume-weighted average of the last 200 calendar days
func VWAP(in Input) Signal {
	if len(in.Bars) == 0 {
		return hold(nil)
	}

	since := in.Bars[len(in.Bars)-1].Date.AddDate(0, 0, -vwapDays)
	var c, v []float64
	for _, b := range in.Bars {
		if b.Date.After(since) {
			c = append(c, b.Close.InexactFloat64())
			v = append(v, float64(b.Volume))
		}
	}

	vwap := formulas.CalculateVWAP(c, v)
	if vwap == nil || *vwap == 0 {
		return hold(nil)
	}

	info := map[string]float64{"vwap": *vwap}
	price := last(c)
	strength := math.Abs(price-*vwap) / *vwap
	switch {
	case price < *vwap*vwapLow:
		return Signal{Action: domain.ActionBuy, Strength: strength, Info: info}
	case price > *vwap*vwapHigh:
		return Signal{Action: domain.ActionSell, Strength: strength, Info: info}
	}
	return hold(info)
}

// MeanReversion trades closes outside a ±5% band around SMA(50)
func MeanReversion(in Input) Signal {
	c := closes(in)
	sma := formulas.CalculateSMA(c, smaWindow)
	if sma == nil || *sma == 0 {
		return hold(nil)
	}

	high := *sma * (1 + reversionBand)
	low := *sma * (1 - reversionBand)
	info := map[string]float64{"sma": *sma, "band_high": high, "band_low": low}

	price := last(c)
	switch {
	case price < low:
		return Signal{Action: domain.ActionBuy, Strength: math.Abs(price-low) / low, Info: info}
	case price > high:
		return Signal{Action: domain.ActionSell, Strength: math.Abs(price-high) / high, Info: info}
	}
	return hold(info)
}

// MACD trades signal-line crossovers on the last bar
func MACD(in Input) Signal {
	p := formulas.CalculateMACD(closes(in), macdFast, macdSlow, macdSignalSpan)
	if p == nil {
		return hold(nil)
	}

	info := map[string]float64{"macd": p.MACD, "signal": p.Signal}
	switch {
	case p.BullishCross():
		return Signal{Action: domain.ActionBuy, Strength: 1, Info: info}
	case p.BearishCross():
		return Signal{Action: domain.ActionSell, Strength: 1, Info: info}
	}
	return hold(info)
}

// BuySMASellRSI enters like SMABuyHold and exits when RSI is overbought
func BuySMASellRSI(in Input) Signal {
	primary := SMABuyHold(in)
	secondary := RSI(in)
	if primary.Action == domain.ActionHold && secondary.Action == domain.ActionSell {
		return Signal{Action: domain.ActionSell, Strength: secondary.Strength, Info: merge(primary.Info, secondary.Info)}
	}
	primary.Info = merge(primary.Info, secondary.Info)
	return primary
}

// BuySMASellVWAP enters like SMABuyHold and exits whenever VWAP says sell
func BuySMASellVWAP(in Input) Signal {
	primary := SMABuyHold(in)
	secondary := VWAP(in)
	if secondary.Action == domain.ActionSell {
		return Signal{Action: domain.ActionSell, Strength: secondary.Strength, Info: merge(primary.Info, secondary.Info)}
	}
	primary.Info = merge(primary.Info, secondary.Info)
	return primary
}

// SMARSI is RSI with an SMA(50)/SMA(200) trend filter
func SMARSI(in Input) Signal {
	c := closes(in)
	rsi := formulas.CalculateRSI(c, rsiWindow)
	short := formulas.CalculateSMA(c, smaWindow)
	long := formulas.CalculateSMA(c, smaLongWindow)
	if rsi == nil || short == nil || long == nil {
		return hold(nil)
	}

	info := map[string]float64{"rsi": *rsi, "sma_short": *short, "sma_long": *long}
	r := *rsi
	switch {
	case r > rsiHigh:
		return Signal{Action: domain.ActionSell, Strength: (r - rsiHigh) / rsiHigh, Info: info}
	case r < rsiLow:
		return Signal{Action: domain.ActionBuy, Strength: safeRatio(rsiLow-r, r), Info: info}
	case *short > *long && r >= rsiMid:
		return Signal{Action: domain.ActionBuy, Strength: (r - rsiMid) / rsiMid, Info: info}
	case *short < *long && r <= rsiMid:
		return Signal{Action: domain.ActionSell, Strength: safeRatio(rsiMid-r, r), Info: info}
	}
	return hold(info)
}

// safeRatio returns 1 for a zero denominator, the saturated strength
func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 1
	}
	return num / den
}

func merge(a, b map[string]float64) map[string]float64 {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]float64, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

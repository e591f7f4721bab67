package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateSMA calculates the Simple Moving Average of the last length closes.
// Returns nil if insufficient data.
func CalculateSMA(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) < length {
		return nil
	}

	sma := talib.Sma(closes, length)
	return lastValid(sma)
}

// CalculateEMA calculates the Exponential Moving Average
//
// EMA Formula:
//
//	EMA_today = (Price_today × multiplier) + (EMA_yesterday × (1 - multiplier))
//	where multiplier = 2 / (period + 1)
//
// Returns nil if insufficient data.
func CalculateEMA(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) < length {
		return nil
	}

	ema := talib.Ema(closes, length)
	return lastValid(ema)
}

// CalculateRSI calculates the Relative Strength Index
//
// RSI Formula:
//
//	RSI = 100 - (100 / (1 + RS))
//	where RS = Average Gain / Average Loss over N periods
//
// A window with no price movement at all is neutral (50).
// Returns the current RSI value (0-100) or nil if insufficient data.
func CalculateRSI(closes []float64, length int) *float64 {
	if length < 2 || len(closes) < length+1 {
		return nil
	}

	if isFlat(closes[len(closes)-length-1:]) {
		neutral := 50.0
		return &neutral
	}

	rsi := talib.Rsi(closes, length)
	return lastValid(rsi)
}

// MACDPoint holds the last two MACD and signal line values
type MACDPoint struct {
	PrevMACD   float64
	PrevSignal float64
	MACD       float64
	Signal     float64
}

// BullishCross reports a MACD crossing above its signal line on the last bar.
func (p MACDPoint) BullishCross() bool {
	return p.PrevMACD <= p.PrevSignal && p.MACD > p.Signal
}

// BearishCross reports a MACD crossing below its signal line on the last bar.
func (p MACDPoint) BearishCross() bool {
	return p.PrevMACD >= p.PrevSignal && p.MACD < p.Signal
}

// CalculateMACD returns the last two MACD/signal values.
// Returns nil unless at least slow+signal closes are available.
func CalculateMACD(closes []float64, fast, slow, signal int) *MACDPoint {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal {
		return nil
	}

	macd, sig, _ := talib.Macd(closes, fast, slow, signal)
	n := len(macd)
	if n < 2 || len(sig) != n {
		return nil
	}

	p := &MACDPoint{
		PrevMACD:   macd[n-2],
		PrevSignal: sig[n-2],
		MACD:       macd[n-1],
		Signal:     sig[n-1],
	}
	for _, v := range []float64{p.PrevMACD, p.PrevSignal, p.MACD, p.Signal} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
	}

	return p
}

// CalculateVWAP computes the volume-weighted average of closes.
// Returns nil when the series is empty or carries no volume.
func CalculateVWAP(closes []float64, volumes []float64) *float64 {
	if len(closes) == 0 || len(closes) != len(volumes) {
		return nil
	}

	var pv, v float64
	for i := range closes {
		pv += closes[i] * volumes[i]
		v += volumes[i]
	}
	if v <= 0 {
		return nil
	}

	vwap := pv / v
	return &vwap
}

func lastValid(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	last := series[len(series)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		return nil
	}
	return &last
}

func isFlat(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

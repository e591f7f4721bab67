package formulas

// DrawdownMetrics represents drawdown analysis results
type DrawdownMetrics struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // Largest peak-to-trough decline, in [0,1]
	CurrentDrawdown float64 `json:"current_drawdown"` // Decline of the last value from the running peak
	DaysInDrawdown  int     `json:"days_in_drawdown"` // Observations since the peak
	PeakValue       float64 `json:"peak_value"`
	CurrentValue    float64 `json:"current_value"`
}

// DrawdownStep advances a running drawdown by one observation.
// Given the previous peak and max drawdown it returns the new peak,
// the drawdown of value against that peak, and the new max drawdown.
// A non-positive peak yields zero drawdown.
func DrawdownStep(prevPeak, prevMax, value float64) (peak, drawdown, maxDrawdown float64) {
	peak = prevPeak
	if value > peak {
		peak = value
	}

	if peak > 0 {
		drawdown = (peak - value) / peak
	}
	if drawdown < 0 {
		drawdown = 0
	}
	if drawdown > 1 {
		drawdown = 1
	}

	maxDrawdown = prevMax
	if drawdown > maxDrawdown {
		maxDrawdown = drawdown
	}

	return peak, drawdown, maxDrawdown
}

// CalculateDrawdownMetrics calculates comprehensive drawdown metrics
// including current drawdown, days in drawdown, and peak values.
// Returns nil for an empty series.
func CalculateDrawdownMetrics(values []float64) *DrawdownMetrics {
	if len(values) == 0 {
		return nil
	}

	var peak, current, maxDrawdown float64
	peakIndex := 0
	for i, v := range values {
		prevPeak := peak
		peak, current, maxDrawdown = DrawdownStep(peak, maxDrawdown, v)
		if peak > prevPeak {
			peakIndex = i
		}
	}

	return &DrawdownMetrics{
		MaxDrawdown:     maxDrawdown,
		CurrentDrawdown: current,
		DaysInDrawdown:  len(values) - 1 - peakIndex,
		PeakValue:       peak,
		CurrentValue:    values[len(values)-1],
	}
}

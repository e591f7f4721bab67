package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawdownStep(t *testing.T) {
	peak, dd, maxDD := DrawdownStep(0, 0, 100)
	assert.Equal(t, 100.0, peak)
	assert.Equal(t, 0.0, dd)
	assert.Equal(t, 0.0, maxDD)

	peak, dd, maxDD = DrawdownStep(peak, maxDD, 80)
	assert.Equal(t, 100.0, peak)
	assert.InDelta(t, 0.2, dd, 1e-12)
	assert.InDelta(t, 0.2, maxDD, 1e-12)

	// Recovery lowers the current drawdown but never the max
	peak, dd, maxDD = DrawdownStep(peak, maxDD, 95)
	assert.InDelta(t, 0.05, dd, 1e-12)
	assert.InDelta(t, 0.2, maxDD, 1e-12)

	peak, dd, maxDD = DrawdownStep(peak, maxDD, 120)
	assert.Equal(t, 120.0, peak)
	assert.Equal(t, 0.0, dd)
	assert.InDelta(t, 0.2, maxDD, 1e-12)
}

func TestCalculateDrawdownMetrics(t *testing.T) {
	assert.Nil(t, CalculateDrawdownMetrics(nil))

	m := CalculateDrawdownMetrics([]float64{100, 120, 90, 105})
	require.NotNil(t, m)
	assert.InDelta(t, 0.25, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, 0.125, m.CurrentDrawdown, 1e-12)
	assert.Equal(t, 2, m.DaysInDrawdown)
	assert.Equal(t, 120.0, m.PeakValue)
	assert.Equal(t, 105.0, m.CurrentValue)
}

func TestDrawdownMonotoneOverSeries(t *testing.T) {
	values := []float64{100, 90, 110, 70, 130, 60, 61}
	var peak, maxDD float64
	prevMax := 0.0
	for _, v := range values {
		var dd float64
		peak, dd, maxDD = DrawdownStep(peak, maxDD, v)
		assert.GreaterOrEqual(t, dd, 0.0)
		assert.LessOrEqual(t, dd, 1.0)
		assert.GreaterOrEqual(t, maxDD, prevMax)
		prevMax = maxDD
	}
}

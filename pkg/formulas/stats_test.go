package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnualizedVolatility(t *testing.T) {
	assert.Nil(t, AnnualizedVolatility([]float64{0.01}))

	returns := []float64{0.01, -0.01, 0.02, -0.02}
	got := AnnualizedVolatility(returns)
	require.NotNil(t, got)
	assert.InDelta(t, StdDev(returns)*math.Sqrt(252), *got, 1e-12)
}

func TestHistoricalVaR(t *testing.T) {
	assert.Nil(t, HistoricalVaR([]float64{0.01}, 95))

	returns := make([]float64, 0, 100)
	for i := 0; i < 100; i++ {
		returns = append(returns, float64(i-50)/1000)
	}
	got := HistoricalVaR(returns, 95)
	require.NotNil(t, got)
	assert.Greater(t, *got, 0.04)
	assert.Less(t, *got, 0.05)

	gains := HistoricalVaR([]float64{0.01, 0.02, 0.03}, 95)
	require.NotNil(t, gains)
	assert.Equal(t, 0.0, *gains)
}

func TestCalculateCAGR(t *testing.T) {
	assert.Nil(t, CalculateCAGR(0, 100, 252))

	got := CalculateCAGR(100, 110, 252)
	require.NotNil(t, got)
	assert.InDelta(t, 0.10, *got, 1e-12)
}

package strategies

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barsFrom(closes []float64) []domain.Bar {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		p := decimal.NewFromFloat(c)
		bars[i] = domain.Bar{
			Symbol: "SYM",
			Date:   start.AddDate(0, 0, i),
			Open:   p,
			High:   p,
			Low:    p,
			Close:  p,
			Volume: 1000,
		}
	}
	return bars
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func flat(n int, v float64) []float64 {
	return ramp(n, v, 0)
}

func input(closes []float64) Input {
	bars := barsFrom(closes)
	return Input{Symbol: "SYM", AsOf: bars[len(bars)-1].Date, Bars: bars}
}

func TestPopulatedRegistryOrder(t *testing.T) {
	r := NewPopulatedRegistry(zerolog.Nop())
	assert.Equal(t, []string{
		"sma_buy_hold", "rsi", "vwap", "mean_reversion", "macd",
		"buy_sma_sell_rsi", "buy_sma_sell_vwap", "sma_rsi",
	}, r.Names())
	assert.Len(t, r.List(), 8)
}

func TestRegistryUnknownStrategy(t *testing.T) {
	r := NewPopulatedRegistry(zerolog.Nop())
	_, err := r.Evaluate("martingale", input(flat(10, 100)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownStrategy))
	assert.False(t, r.Has("martingale"))
}

func TestRegistryNormalizesStrength(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register("loud", "", func(Input) Signal { return Signal{Action: domain.ActionBuy, Strength: 5} })
	r.Register("quiet_hold", "", func(Input) Signal { return Signal{Action: domain.ActionHold, Strength: 0.7} })
	r.Register("empty", "", func(Input) Signal { return Signal{} })

	sig, err := r.Evaluate("loud", input(flat(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, 1.0, sig.Strength)

	sig, err = r.Evaluate("quiet_hold", input(flat(1, 1)))
	require.NoError(t, err)
	assert.Zero(t, sig.Strength)

	sig, err = r.Evaluate("empty", input(flat(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, sig.Action)
}

func TestRegisterReplaceKeepsOrder(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register("a", "", SMABuyHold)
	r.Register("b", "", RSI)
	r.Register("a", "replaced", VWAP)

	assert.Equal(t, []string{"a", "b"}, r.Names())
	s, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "replaced", s.Description)
}

func TestEveryStrategyHoldsOnShortHistory(t *testing.T) {
	r := NewPopulatedRegistry(zerolog.Nop())
	for _, name := range r.Names() {
		if name == "vwap" {
			// VWAP needs a single bar; a flat single bar sits on its own average
			continue
		}
		sig, err := r.Evaluate(name, input(ramp(5, 100, 1)))
		require.NoError(t, err)
		assert.Equal(t, domain.ActionHold, sig.Action, name)
		assert.Zero(t, sig.Strength, name)
	}
}

func TestEveryStrategyIsDeterministic(t *testing.T) {
	r := NewPopulatedRegistry(zerolog.Nop())
	in := input(append(ramp(200, 100, 0.5), ramp(60, 200, -0.7)...))
	for _, name := range r.Names() {
		first, err := r.Evaluate(name, in)
		require.NoError(t, err)
		second, err := r.Evaluate(name, in)
		require.NoError(t, err)
		assert.Equal(t, first, second, name)
		assert.GreaterOrEqual(t, first.Strength, 0.0, name)
		assert.LessOrEqual(t, first.Strength, 1.0, name)
	}
}

// Package strategies holds the named strategy evaluators and the registry the
// recommendation engine runs them through.
package strategies

import (
	"fmt"
	"sync"
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// HistoryWindow is the number of bars handed to evaluators (enough for SMA(200))
const HistoryWindow = 260

// Input is everything an evaluator may look at
type Input struct {
	Symbol string
	AsOf   time.Time
	Bars   []domain.Bar // Ascending, last bar is the evaluation day
	Policy portfolio.Policy
}

// Signal is an evaluator verdict
type Signal struct {
	Action   domain.Action      `json:"action" msgpack:"action"`
	Strength float64            `json:"strength" msgpack:"strength"` // [0, 1]
	Info     map[string]float64 `json:"info,omitempty" msgpack:"info,omitempty"`
}

// Evaluator scores one symbol. Evaluators are pure: same input, same signal.
type Evaluator func(in Input) Signal

// Strategy is a registered, named evaluator
type Strategy struct {
	Name        string
	Description string
	Evaluate    Evaluator
}

// Registry holds strategies in registration order
type Registry struct {
	strategies map[string]Strategy
	order      []string
	mu         sync.RWMutex
	log        zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		log:        log.With().Str("component", "strategy_registry").Logger(),
	}
}

// Register adds or replaces a strategy. Replacing keeps the original position.
func (r *Registry) Register(name, description string, eval Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[name]; !exists {
		r.order = append(r.order, name)
	}
	r.strategies[name] = Strategy{Name: name, Description: description, Evaluate: eval}

	r.log.Debug().Str("name", name).Msg("Registered strategy")
}

// Get retrieves a strategy by name
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %s", domain.ErrUnknownStrategy, name)
	}
	return s, nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[name]
	return ok
}

// List returns all strategies in registration order
func (r *Registry) List() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Strategy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.strategies[name])
	}
	return out
}

// Names returns registered names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Evaluate runs the named strategy. Strength is clamped to [0, 1] and a HOLD
// always carries strength 0 so ranking only ever sees actionable signals.
func (r *Registry) Evaluate(name string, in Input) (Signal, error) {
	s, err := r.Get(name)
	if err != nil {
		return Signal{}, err
	}
	return normalize(s.Evaluate(in)), nil
}

func normalize(sig Signal) Signal {
	if sig.Action == "" {
		sig.Action = domain.ActionHold
	}
	if sig.Action == domain.ActionHold || sig.Strength < 0 || sig.Strength != sig.Strength {
		sig.Strength = 0
	}
	if sig.Strength > 1 {
		sig.Strength = 1
	}
	return sig
}

// NewPopulatedRegistry creates a registry with every built-in strategy registered
func NewPopulatedRegistry(log zerolog.Logger) *Registry {
	r := NewRegistry(log)

	r.Register("sma_buy_hold", "Buy while the close is above its 50-day SMA", SMABuyHold)
	r.Register("rsi", "Buy oversold (RSI<30), sell overbought (RSI>70)", RSI)
	r.Register("vwap", "Trade deviations of ±2% from the 200-day VWAP", VWAP)
	r.Register("mean_reversion", "Trade closes outside a ±5% band around the 50-day SMA", MeanReversion)
	r.Register("macd", "Trade MACD(12,26,9) signal-line crossovers", MACD)
	r.Register("buy_sma_sell_rsi", "SMA entries, RSI overbought exits", BuySMASellRSI)
	r.Register("buy_sma_sell_vwap", "SMA entries, VWAP exits", BuySMASellVWAP)
	r.Register("sma_rsi", "RSI with a 50/200-day SMA trend filter", SMARSI)

	log.Info().
		Int("strategies", len(r.order)).
		Msg("Strategy registry initialized")

	return r
}

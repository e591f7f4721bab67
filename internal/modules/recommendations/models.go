// Package recommendations is the recommendation engine: it filters the
// tradable universe per portfolio policy, runs strategies over it and turns the
// favored signals into the day's orders.
package recommendations

import (
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/shopspring/decimal"
)

// Recommendation is one strategy verdict for one symbol on one day
type Recommendation struct {
	PortfolioID int64              `json:"portfolio_id,omitempty"`
	Symbol      string             `json:"symbol"`
	Strategy    string             `json:"strategy"`
	Action      domain.Action      `json:"action"`
	Strength    float64            `json:"strength"`
	Price       decimal.Decimal    `json:"price"`
	Info        map[string]float64 `json:"info,omitempty"`
	AsOf        time.Time          `json:"as_of"`
}

// Grid maps symbol -> strategy name -> action
type Grid map[string]map[string]domain.Action

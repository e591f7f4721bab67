package recommendations

import (
	"context"
	"fmt"

	"github.com/aristath/simtrader/internal/database"
	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository stores the current recommendation per (portfolio, symbol)
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a new recommendation repository
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{
		log: log.With().Str("repo", "recommendations").Logger(),
	}
}

// Upsert replaces the current recommendation for each (portfolio, symbol).
// Indicator values are stored as a msgpack blob.
func (r *Repository) Upsert(ctx context.Context, q database.Queryer, recs []Recommendation) error {
	for _, rec := range recs {
		var info []byte
		if len(rec.Info) > 0 {
			encoded, err := msgpack.Marshal(rec.Info)
			if err != nil {
				return fmt.Errorf("failed to encode info for %s: %w", rec.Symbol, err)
			}
			info = encoded
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO recommendations (portfolio_id, symbol, strategy, action, strength, price, info, as_of)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(portfolio_id, symbol) DO UPDATE SET
				strategy = excluded.strategy,
				action = excluded.action,
				strength = excluded.strength,
				price = excluded.price,
				info = excluded.info,
				as_of = excluded.as_of`,
			rec.PortfolioID, rec.Symbol, rec.Strategy, string(rec.Action), rec.Strength,
			rec.Price.String(), info, utils.Day(rec.AsOf).Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert recommendation for %s: %w", rec.Symbol, err)
		}
	}
	return nil
}

// List returns the current recommendations of a portfolio, strongest first
func (r *Repository) List(ctx context.Context, q database.Queryer, portfolioID int64) ([]Recommendation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT portfolio_id, symbol, strategy, action, strength, price, info, as_of
		FROM recommendations
		WHERE portfolio_id = ?
		ORDER BY strength DESC, symbol`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	recs := make([]Recommendation, 0)
	for rows.Next() {
		var rec Recommendation
		var action string
		var info []byte
		var asOf int64
		if err := rows.Scan(&rec.PortfolioID, &rec.Symbol, &rec.Strategy, &action, &rec.Strength, &rec.Price, &info, &asOf); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		if len(info) > 0 {
			if err := msgpack.Unmarshal(info, &rec.Info); err != nil {
				r.log.Warn().Err(err).Str("symbol", rec.Symbol).Msg("Discarding undecodable recommendation info")
			}
		}
		rec.Action = domain.Action(action)
		rec.AsOf = utils.UnixToDate(asOf)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recommendations: %w", err)
	}

	return recs, nil
}

// DeleteAll removes every recommendation of a portfolio
func (r *Repository) DeleteAll(ctx context.Context, q database.Queryer, portfolioID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM recommendations WHERE portfolio_id = ?`, portfolioID); err != nil {
		return fmt.Errorf("failed to delete recommendations: %w", err)
	}
	return nil
}

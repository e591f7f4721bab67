package di

import (
	"fmt"

	"github.com/aristath/simtrader/internal/config"
	"github.com/aristath/simtrader/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens simtrader.db and applies the schema. Market data
// and every ledger table share this one database so a simulated day commits
// in a single transaction.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileLedger,
		Name:    "simtrader",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize simtrader database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate simtrader database: %w", err)
	}

	log.Info().Str("path", db.Path()).Msg("Database initialized")

	return &Container{DB: db}, nil
}

// Package main is the entry point for simtrader, a portfolio simulation and
// recommendation engine. It serves the HTTP API and exposes the same engine
// operations as one-shot commands for scripting.
package main

import (
	"os"

	"github.com/aristath/simtrader/internal/config"
	"github.com/aristath/simtrader/internal/di"
	"github.com/aristath/simtrader/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries what every command needs once the root command has loaded
// configuration and wired dependencies.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	container *di.Container
	jobs      *di.JobInstances
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "simtrader",
		Short:        "Portfolio simulation and recommendation engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.container.Close()
		},
	}

	root.AddCommand(
		newServeCmd(a),
		newPortfolioCmd(a),
		newStepCmd(a),
		newRunCmd(a),
		newResetCmd(a),
		newSearchCmd(a),
		newImportCmd(a),
		newBackupCmd(a),
	)

	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	a.cfg = cfg
	a.log = logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(a.log)

	container, jobs, err := di.Wire(cfg, a.log)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to wire dependencies")
		return err
	}

	a.container = container
	a.jobs = jobs
	return nil
}

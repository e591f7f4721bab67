package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/simtrader/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}
}

func (a *app) serve() error {
	a.log.Info().Msg("Starting simtrader")

	srv := server.New(server.Config{
		Log:     a.log,
		Port:    a.cfg.Port,
		DevMode: a.cfg.DevMode,
		Service: a.container.SimulationService,
		DB:      a.container.DB,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.container.JobScheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		a.log.Error().Err(err).Msg("HTTP server failed")
		a.container.JobScheduler.Stop()
		return err
	}

	a.log.Info().Msg("Shutting down...")

	// Let an in-flight auto-step finish its day before the database closes.
	a.container.JobScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("Server forced to shutdown")
	}

	a.log.Info().Msg("Server stopped")
	return nil
}

// Package server provides the HTTP API of the simulator.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// HealthChecker reports whether the database is usable. *database.DB satisfies it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool
	Service SimulationService
	DB      HealthChecker
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	port      int
	service   SimulationService
	db        HealthChecker
	startedAt time.Time
	now       func() time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		port:      cfg.Port,
		service:   cfg.Service,
		db:        cfg.DB,
		startedAt: time.Now(),
		now:       time.Now,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Minute, // Bulk runs answer only once the run ends
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	timeout := middleware.Timeout(60 * time.Second)

	s.router.Route("/api", func(r chi.Router) {
		r.With(timeout).Get("/health", s.handleHealth)
		r.With(timeout).Get("/strategies/grid", s.handleStrategyGrid)

		r.Route("/portfolios", func(r chi.Router) {
			r.With(timeout).Get("/", s.handleListPortfolios)
			r.With(timeout).Post("/", s.handleCreatePortfolio)

			r.Route("/{id}", func(r chi.Router) {
				// Runs are cancelled with the request, so they get no timeout
				r.Post("/run", s.handleRun)

				r.Group(func(r chi.Router) {
					r.Use(timeout)

					r.Get("/", s.handleGetPortfolio)
					r.Put("/active", s.handleSetActive)
					r.Post("/step", s.handleStep)
					r.Post("/reset", s.handleReset)
					r.Get("/recommendations", s.handleRecommendations)
					r.Post("/orders", s.handlePlaceOrder)
					r.Post("/deposits", s.handleDeposit)
					r.Post("/withdrawals", s.handleWithdraw)
					r.Get("/metrics", s.handleMetrics)
					r.Get("/snapshots", s.handleSnapshots)
					r.Get("/transactions", s.handleTransactions)
					r.Get("/warnings", s.handleWarnings)
				})
			})
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

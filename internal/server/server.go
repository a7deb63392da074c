// Package server exposes the bot's control and reporting API over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/server/handler"
	"github.com/alanyoungcy/futuresbot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter applies per-client request limiting when non-nil.
	RateLimiter     domain.RateLimiter
	RateLimitPerMin int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Backtest and Trades may be nil when the corresponding subsystem is not
// wired; their routes are then not registered.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Engine   *handler.EngineHandler
	Backtest *handler.BacktestHandler
	Trades   *handler.TradeHandler
}

// Server is the headless HTTP API server for the trading bot.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the middleware chain (CORS, logging, rate limit, auth) applied.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Combined status for dashboards.
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Engine lifecycle and configuration.
	mux.HandleFunc("GET /api/engine/status", handlers.Engine.GetStatus)
	mux.HandleFunc("POST /api/engine/start", handlers.Engine.Start)
	mux.HandleFunc("POST /api/engine/stop", handlers.Engine.Stop)
	mux.HandleFunc("POST /api/engine/close", handlers.Engine.ClosePosition)
	mux.HandleFunc("PUT /api/engine/leverage", handlers.Engine.SetLeverage)
	mux.HandleFunc("PUT /api/engine/config", handlers.Engine.UpdateConfig)
	mux.HandleFunc("PUT /api/engine/sentiment", handlers.Engine.SetSentiment)

	// Backtest execution and run history.
	if handlers.Backtest != nil {
		mux.HandleFunc("POST /api/backtest/run", handlers.Backtest.RunBacktest)
		mux.HandleFunc("GET /api/backtest/runs", handlers.Backtest.ListRuns)
		mux.HandleFunc("GET /api/backtest/runs/{id}", handlers.Backtest.GetRun)
		mux.HandleFunc("GET /api/backtest/runs/{id}/trades", handlers.Backtest.ListRunTrades)
		mux.HandleFunc("GET /api/backtest/runs/{id}/report", handlers.Backtest.GetRunReport)
	}

	// Fill history.
	if handlers.Trades != nil {
		mux.HandleFunc("GET /api/trades", handlers.Trades.ListRecent)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if cfg.RateLimiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimitPerMin, time.Minute)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // backtest runs are synchronous
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Package server exposes the settlement engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/riozmarkets/settlement/internal/crypto"
	"github.com/riozmarkets/settlement/internal/domain"
	"github.com/riozmarkets/settlement/internal/server/handler"
	"github.com/riozmarkets/settlement/internal/server/middleware"
	"github.com/riozmarkets/settlement/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// the HTTP-level limiter (service-level limits still apply).
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Orders    *handler.OrderHandler
	Cashout   *handler.CashoutHandler
	FastPools *handler.FastPoolHandler
	Wallet    *handler.WalletHandler
	Admin     *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the settlement engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. adminAuth may be nil, in which case the admin endpoints
// reject every request.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, adminAuth *crypto.AdminAuth, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market and position endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/pools", handlers.Markets.GetPools)
	mux.HandleFunc("GET /api/positions", handlers.Markets.ListPositions)
	mux.HandleFunc("POST /api/positions", handlers.Markets.PlacePosition)

	// Cashout endpoints.
	mux.HandleFunc("GET /api/positions/{id}/cashout", handlers.Cashout.Quote)
	mux.HandleFunc("POST /api/positions/{id}/cashout", handlers.Cashout.Perform)

	// Exchange order endpoints.
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)

	// Fast-pool endpoints.
	mux.HandleFunc("GET /api/fastpools/current", handlers.FastPools.CurrentRound)
	mux.HandleFunc("GET /api/fastpools/history", handlers.FastPools.History)
	mux.HandleFunc("GET /api/fastpools/bets", handlers.FastPools.ListBets)
	mux.HandleFunc("POST /api/fastpools/bets", handlers.FastPools.PlaceBet)

	// Wallet endpoints.
	mux.HandleFunc("GET /api/wallet", handlers.Wallet.GetBalances)
	mux.HandleFunc("GET /api/wallet/transactions", handlers.Wallet.ListTransactions)

	// Admin endpoints, HMAC-signed.
	admin := middleware.AdminAuth(adminAuth)
	mux.Handle("POST /api/admin/markets/{id}/resolve", admin(http.HandlerFunc(handlers.Admin.ResolveMarket)))
	mux.Handle("POST /api/admin/fastpools/pause", admin(http.HandlerFunc(handlers.Admin.PauseAsset)))
	mux.Handle("POST /api/admin/reconciliation/run", admin(http.HandlerFunc(handlers.Admin.RunReconciliation)))
	mux.Handle("GET /api/admin/reconciliation/reports", admin(http.HandlerFunc(handlers.Admin.ListReports)))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-IP rate limiting when configured.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

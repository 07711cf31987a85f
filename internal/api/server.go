package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shfed/creditcore/internal/catalog"
	"github.com/shfed/creditcore/internal/domain"
	"github.com/shfed/creditcore/internal/ledger"
	"github.com/shfed/creditcore/internal/scoring"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, cat *catalog.Catalog, engine *scoring.Engine, led *ledger.Ledger, version string) *Server {
	handler := NewHandler(repo, cache, bus, cat, engine, led, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Scoring
	router.Post("/score", handler.Score)

	// Event ingest and retrieval
	router.Post("/events", handler.IngestEvent)
	router.Get("/events/{id}", handler.GetEvent)

	// Actor views
	router.Get("/actors/{id}/score", handler.GetActorScore)
	router.Get("/actors/{id}/events", handler.GetActorEvents)
	router.Get("/actors/{id}/debts", handler.GetActorDebts)

	// Ledger
	router.Post("/ledger/entries", handler.AppendEntry)
	router.Get("/ledger/entries", handler.ListEntries)
	router.Get("/ledger/balances", handler.GetBalances)
	router.Get("/ledger/verify", handler.VerifyLedger)
	router.Get("/ledger/stats", handler.LedgerStats)

	// Debt and dispute scaffolds
	router.Post("/debts", handler.OpenDebt)
	router.Post("/debts/payments", handler.PayDebt)
	router.Post("/disputes", handler.OpenDispute)
	router.Post("/disputes/resolve", handler.ResolveDispute)

	// Rule management
	router.Get("/rules", handler.ListRules)
	router.Get("/rules/{key}", handler.GetRule)
	router.Post("/rules", handler.UpdateRules)
	router.Post("/rules/reload", handler.ReloadRules)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

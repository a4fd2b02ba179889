package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/alerts"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/metrics"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/ratelimit"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/registry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the components the API serves. Nil members disable the
// endpoints that need them.
type Deps struct {
	Analyzer Analyzer
	Registry EntryReader
	Program  *registry.Program
	Oracle   Invalidator
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Policies *alerts.Engine
	Limiter  *ratelimit.Limiter

	// MetricsPath exposes Prometheus metrics when set.
	MetricsPath string
	Version     string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(cfg, deps)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware(cfg.AllowedOrigins))
	router.Use(RecoverMiddleware)
	router.Use(middleware.RealIP)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(metrics.Middleware)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.MetricsPath != "" {
		router.Handle(deps.MetricsPath, metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(APIKeyMiddleware(deps.Repo, cfg.RequireAPIKey))
		r.Use(rememberIdentity)
		if deps.Limiter != nil {
			r.Use(deps.Limiter.Middleware(rateLimitClient))
		}

		r.Get("/wallets/{address}/analysis", handler.AnalyzeWallet)
		r.Get("/wallets/{address}/analyses", handler.ListWalletAnalyses)
		r.Get("/analyses/{id}", handler.GetAnalysis)

		r.Get("/drainers/{address}", handler.GetDrainer)
		r.Post("/reports", handler.CreateReport)

		r.Get("/alerts", handler.ListAlerts)
		r.Post("/alerts", handler.CreateAlert)
		r.Delete("/alerts/{id}", handler.DeleteAlert)
	})

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

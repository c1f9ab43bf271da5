// Package api provides HTTP handlers and routing for the orchestrator service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server holds the HTTP handlers and dependencies.
type Server struct {
	router   *mux.Router
	handlers *Handlers
	limiter  *RateLimiter
}

// NewServer creates a new API server with the given handlers.
func NewServer(h *Handlers) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		limiter:  NewRateLimiter(h.config.RateLimitRPS, h.config.RateLimitBurst),
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router for use with http.Server.
// Inbound requests get a server span that worker calls inherit.
func (s *Server) Router() http.Handler {
	return otelhttp.NewHandler(s.router, "bitware-orchestrator",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routePath(r)
		}),
	)
}

func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/healthz", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/ready", s.handlers.Ready).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Orchestration
	api.HandleFunc("/orchestrate", s.handlers.Orchestrate).Methods("POST", "OPTIONS")

	// Execution history
	api.HandleFunc("/pipelines", s.handlers.ListPipelines).Methods("GET")
	api.HandleFunc("/pipelines/{id}", s.handlers.GetPipeline).Methods("GET")

	// Catalog
	api.HandleFunc("/templates", s.handlers.ListTemplates).Methods("GET")
	api.HandleFunc("/templates/{name}", s.handlers.GetTemplate).Methods("GET")
	api.HandleFunc("/workers", s.handlers.ListWorkers).Methods("GET")

	api.Use(s.limiter.Handler)

	s.router.Use(s.handlers.CORSMiddleware)
	s.router.Use(s.handlers.LoggingMiddleware)
	s.router.Use(s.handlers.RecoveryMiddleware)
}

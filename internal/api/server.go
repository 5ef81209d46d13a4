// Package api provides the HTTP API for pathorama: health and status, target
// submission, host request events, live hit streaming and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apihandlers "github.com/anstrom/pathorama/internal/api/handlers"
	"github.com/anstrom/pathorama/internal/api/middleware"
	"github.com/anstrom/pathorama/internal/config"
	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/metrics"
)

const serverShutdownTimeout = 30 * time.Second

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	engine     apihandlers.Engine
	hub        *apihandlers.HitHub
	metrics    *metrics.PrometheusMetrics
	logger     *logging.Logger
	startTime  time.Time
}

// New creates a new API server. hub and pm may be nil, which disables the
// hit stream and the metrics endpoint respectively.
func New(
	cfg *config.Config,
	engine apihandlers.Engine,
	hub *apihandlers.HitHub,
	pm *metrics.PrometheusMetrics,
	logger *logging.Logger,
) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("api: config is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("api: scanner engine is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	s := &Server{
		router:    mux.NewRouter(),
		config:    cfg,
		engine:    engine,
		hub:       hub,
		metrics:   pm,
		logger:    logger.WithComponent("api"),
		startTime: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port)),
		Handler:           s.router,
		ReadTimeout:       cfg.API.ReadTimeout,
		ReadHeaderTimeout: cfg.API.ReadTimeout,
		WriteTimeout:      cfg.API.WriteTimeout,
		IdleTimeout:       cfg.API.IdleTimeout,
	}
	return s, nil
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server",
		"address", s.httpServer.Addr,
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if s.hub != nil {
		s.hub.Shutdown()
	}

	s.logger.Info("API server stopped successfully")
	return nil
}

// Router returns the configured router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.httpServer.Addr
}

func (s *Server) setupRoutes() {
	health := apihandlers.NewHealthHandler(s.engine, s.clientCounter(), s.logger)
	targets := apihandlers.NewTargetHandler(s.engine, s.logger)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	api.HandleFunc("/status", health.Status).Methods(http.MethodGet)
	api.HandleFunc("/version", health.Version).Methods(http.MethodGet)
	api.HandleFunc("/descriptor", health.Descriptor).Methods(http.MethodGet)
	api.HandleFunc("/targets", targets.AddTarget).Methods(http.MethodPost)
	api.HandleFunc("/events/request", targets.RequestEvent).Methods(http.MethodPost)
	if s.hub != nil {
		api.Handle("/ws/hits", s.hub).Methods(http.MethodGet)
	}

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path,
			promhttp.HandlerFor(s.metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.router.HandleFunc("/", s.index).Methods(http.MethodGet)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger))
	if s.metrics != nil {
		s.router.Use(middleware.Metrics(s.metrics))
	}

	if s.config.API.CORS.Enabled {
		s.router.Use(handlers.CORS(
			handlers.AllowedOrigins(s.config.API.CORS.AllowedOrigins),
			handlers.AllowedHeaders([]string{"Content-Type", middleware.RequestIDHeader}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		))
	}

	s.router.Use(middleware.ContentType())
	s.router.Use(middleware.SecurityHeaders())
}

func (s *Server) clientCounter() apihandlers.ClientCounter {
	if s.hub == nil {
		return nil
	}
	return s.hub
}

// index lists the available endpoints.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"health":     "/api/v1/health",
		"status":     "/api/v1/status",
		"descriptor": "/api/v1/descriptor",
		"targets":    "/api/v1/targets",
		"events":     "/api/v1/events/request",
	}
	if s.hub != nil {
		endpoints["hits"] = "/api/v1/ws/hits"
	}
	if s.metrics != nil && s.config.Metrics.Enabled {
		endpoints["metrics"] = s.config.Metrics.Path
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"service":   "pathorama",
		"version":   "v1",
		"endpoints": endpoints,
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
	}); err != nil {
		s.logger.Error("Failed to encode API index response", "error", err)
	}
}

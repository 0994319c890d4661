// Package api provides the HTTP server for promgate. It mounts the
// metrics exposition endpoint alongside JSON system endpoints for health,
// liveness, status and version.
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

	"github.com/promgate/promgate/internal/api/middleware"
	"github.com/promgate/promgate/internal/config"
	"github.com/promgate/promgate/internal/exposition"
	"github.com/promgate/promgate/internal/logging"
	"github.com/promgate/promgate/internal/metrics"
)

// Version is the service version reported by the version endpoint. Set
// via SetVersion from the CLI layer at startup.
var Version = "dev"

// SetVersion sets the reported service version.
func SetVersion(v string) {
	Version = v
}

// Server represents the promgate HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	registry   metrics.Registry
	store      *metrics.Store
	logger     *logging.Logger
	startTime  time.Time
}

// New creates a new server. registry backs the exposition endpoint;
// store, which may be part of that registry, receives the server's own
// request metrics.
func New(cfg *config.Config, registry metrics.Registry, store *metrics.Store) *Server {
	logger := logging.Default()
	router := mux.NewRouter()

	server := &Server{
		router:    router,
		config:    cfg,
		registry:  registry,
		store:     store,
		logger:    logger,
		startTime: time.Now(),
	}

	if store != nil {
		middleware.Describe(store)
	}

	server.setupRoutes()
	server.setupMiddleware()

	server.httpServer = &http.Server{
		Addr:           net.JoinHostPort(cfg.Server.ListenAddr, strconv.Itoa(cfg.Server.Port)),
		Handler:        server.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return server
}

// Start starts the server and blocks until ctx is canceled or the server
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.InfoServer("Starting server",
		"address", s.httpServer.Addr,
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.InfoServer("Stopping server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.ErrorServer("Server shutdown error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.InfoServer("Server stopped")
	return nil
}

// GetRouter returns the configured router.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return s.httpServer.Addr
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	// The exposition endpoint at the conventional scrape path.
	s.router.Handle("/metrics", exposition.NewHandler(s.registry, ExpositionOptions(s.config))).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/liveness", s.livenessHandler).Methods("GET")
	api.HandleFunc("/health", s.healthHandler).Methods("GET")
	api.HandleFunc("/status", s.statusHandler).Methods("GET")
	api.HandleFunc("/version", s.versionHandler).Methods("GET")

	s.router.HandleFunc("/", s.indexHandler).Methods("GET")
}

// setupMiddleware configures middleware.
func (s *Server) setupMiddleware() {
	requestLogger := s.logger.WithComponent("api").Logger

	s.router.Use(middleware.Recovery(requestLogger))

	if s.config.Logging.RequestLogging {
		s.router.Use(middleware.Logging(requestLogger))
	}

	s.router.Use(middleware.Metrics(s.store))
	s.router.Use(middleware.SecurityHeaders())

	if s.config.Server.RequestTimeout > 0 {
		s.router.Use(middleware.RequestTimeout(s.config.Server.RequestTimeout))
	}

	if s.config.Server.CORS.Enabled {
		corsOptions := handlers.AllowedOrigins(s.config.Server.CORS.AllowedOrigins)
		corsHeaders := handlers.AllowedHeaders(s.config.Server.CORS.AllowedHeaders)
		corsMethods := handlers.AllowedMethods(s.config.Server.CORS.AllowedMethods)
		s.router.Use(handlers.CORS(corsOptions, corsHeaders, corsMethods))
	}
}

// ExpositionOptions builds renderer options from configuration.
func ExpositionOptions(cfg *config.Config) exposition.Options {
	opts := exposition.Options{
		ExtraLabels:       metrics.Labels(cfg.Exposition.ExtraLabels),
		IncludeTimestamps: cfg.Exposition.IncludeTimestamps,
	}
	if cfg.Exposition.TimestampLabel {
		opts = opts.WithTimestampLabel(nil)
	}
	return opts
}

// indexHandler returns service information for root requests.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"service": "promgate",
		"version": Version,
		"endpoints": map[string]string{
			"metrics":  "/metrics",
			"liveness": "/api/v1/liveness",
			"health":   "/api/v1/health",
			"status":   "/api/v1/status",
		},
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// livenessHandler provides a simple liveness check endpoint.
func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// healthHandler reports service health. The only dependency is the
// registry backend, checked with a snapshot read.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := make(map[string]string)

	if s.registry != nil {
		if _, err := s.registry.Snapshot(r.Context()); err != nil {
			status = "unhealthy"
			checks["registry"] = "failed: " + err.Error()
		} else {
			checks["registry"] = "ok"
		}
	} else {
		checks["registry"] = "not configured"
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, r, statusCode, response)
}

// statusHandler provides detailed status information.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	families := 0
	if s.registry != nil {
		if snapshot, err := s.registry.Snapshot(r.Context()); err == nil {
			families = len(snapshot)
		}
	}

	response := map[string]interface{}{
		"service":   "promgate",
		"version":   Version,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
		"families":  families,
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// versionHandler provides version information.
func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"service":   "promgate",
		"version":   Version,
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.ErrorServer("Failed to encode JSON response", err,
			"path", r.URL.Path,
			"method", r.Method)
	}
}

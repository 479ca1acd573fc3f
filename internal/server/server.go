// Package server provides the introspection HTTP server: health/readiness
// probes, metrics, a plugin listing sourced from the Installed Plugin Record
// store and the Lifecycle Manager, and the mount point plugins publish their
// own routes through via Host.API().
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// InstalledPluginSource supplies the server with the current installed-plugin
// registry (consumer-side interface; satisfied by *store.SQLiteStore).
type InstalledPluginSource interface {
	AllInstalledPlugins(ctx context.Context) (map[string]*plugin.InstalledPluginRecord, error)
}

// StateSource reports a plugin's current lifecycle state (satisfied by
// *lifecycle.Manager).
type StateSource interface {
	State(name string) (plugin.State, bool)
}

// ReadinessChecker verifies that the server is ready to serve traffic.
// Returns nil if ready, an error describing why not otherwise.
type ReadinessChecker func(ctx context.Context) error

// Server is the core introspection HTTP server.
type Server struct {
	httpServer *http.Server
	plugins    InstalledPluginSource
	states     StateSource
	logger     *zap.Logger
	mux        *http.ServeMux
	ready      ReadinessChecker
}

// New creates a Server with the standard middleware chain and core routes
// mounted. Plugins mount additional routes afterward via Registry(). When
// devMode is true, Swagger UI is served at /swagger/ and loads its API
// description from /swagger/doc.json.
func New(addr string, plugins InstalledPluginSource, states StateSource, logger *zap.Logger, ready ReadinessChecker, devMode bool) *Server {
	mux := http.NewServeMux()

	s := &Server{
		plugins: plugins,
		states:  states,
		logger:  logger,
		mux:     mux,
		ready:   ready,
	}
	s.registerRoutes()

	if devMode {
		mux.Handle("GET /swagger/", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
		logger.Info("swagger UI enabled (dev_mode)", zap.String("path", "/swagger/"))
	}

	middlewares := []Middleware{
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, []string{"/healthz", "/readyz", "/metrics"}),
		SecurityHeadersMiddleware,
		RateLimitMiddleware(100, 200, []string{"/healthz", "/readyz", "/metrics"}),
	}
	handler := Chain(mux, middlewares...)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// registerRoutes sets up the unversioned and core versioned endpoints.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handlePlugins)
}

// Mux exposes the underlying mux so collaborators that predate Host.API()
// (the WebSocket UI Integration handler) can mount their own routes.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// Registry returns an APIRegistry that mounts a plugin's routes under
// /api/v1/plugins/{name}/, implementing plugin.APIRegistry for Host.API().
func (s *Server) Registry(pluginName string) plugin.APIRegistry {
	return &apiRegistry{mux: s.mux, logger: s.logger, pluginName: pluginName}
}

type apiRegistry struct {
	mux        *http.ServeMux
	logger     *zap.Logger
	pluginName string
}

// RegisterRoute implements plugin.APIRegistry. handler must be an
// http.HandlerFunc or a func(http.ResponseWriter, *http.Request); anything
// else is rejected so a misbehaving plugin cannot silently no-op.
func (r *apiRegistry) RegisterRoute(method, path string, handler any) {
	var h http.HandlerFunc
	switch fn := handler.(type) {
	case http.HandlerFunc:
		h = fn
	case func(http.ResponseWriter, *http.Request):
		h = fn
	default:
		r.logger.Error("route handler has unsupported type, route not mounted",
			zap.String("plugin", r.pluginName), zap.String("path", path))
		return
	}

	pattern := fmt.Sprintf("%s /api/v1/plugins/%s%s", method, r.pluginName, path)
	r.mux.HandleFunc(pattern, h)
	r.logger.Debug("mounted plugin route", zap.String("plugin", r.pluginName), zap.String("pattern", pattern))
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Service: "qorzen-sub001"})
}

// PluginResponse describes one installed plugin for introspection.
type PluginResponse struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	State       string `json:"state,omitempty"`
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	records, err := s.plugins.AllInstalledPlugins(r.Context())
	if err != nil {
		InternalError(w, err.Error(), r.URL.Path)
		return
	}

	info := make([]PluginResponse, 0, len(records))
	for _, rec := range records {
		pr := PluginResponse{
			Name:        rec.Manifest.Name,
			Version:     rec.Manifest.Version,
			DisplayName: rec.Manifest.DisplayName,
			Description: rec.Manifest.Description,
			Enabled:     rec.Enabled,
		}
		if s.states != nil {
			if st, ok := s.states.State(rec.Manifest.Name); ok {
				pr.State = string(st)
			}
		}
		info = append(info, pr)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

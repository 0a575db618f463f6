// Package api serves metrics and health checks over HTTP for ad-hoc
// inspection and scraping.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	stderr "errors"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/export"
	promexport "github.com/monitoringcenter/monitoringcenter/pkg/export/prometheus"
	"github.com/monitoringcenter/monitoringcenter/pkg/health"
	"github.com/monitoringcenter/monitoringcenter/pkg/monitoring"
	"github.com/monitoringcenter/monitoringcenter/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Backend is the read side of a monitoring center. *monitoring.Center
// satisfies it.
type Backend interface {
	Metrics(filter registry.Filter) []registry.Entry
	RunHealthCheck(ctx context.Context, name string) (*health.Result, error)
	RunHealthChecks(ctx context.Context) (map[string]*health.Result, error)
	Prometheus() prometheus.Gatherer
	NamingConfig() monitoring.NamingConfig
}

var _ Backend = (*monitoring.Center)(nil)

// Server provides HTTP API endpoints for monitoring
type Server struct {
	httpServer *http.Server
	backend    Backend
	config     ServerConfig
	logger     logrus.FieldLogger
	started    time.Time
}

// ServerConfig configures the API server
type ServerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Address to bind the server to (e.g., "localhost:8080")
	Address string `yaml:"address" json:"address"`

	// Username enables basic authentication when not empty
	Username string `yaml:"username" json:"username,omitempty"`
	Password string `yaml:"password" json:"-"`

	// Compression gzips responses for clients that accept it
	Compression bool `yaml:"compression" json:"compression"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:      true,
		Address:      "localhost:8080",
		Compression:  true,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

var endpoints = []string{
	"/ping",
	"/info",
	"/metrics",
	"/metrics/prometheus",
	"/healthcheck",
	"/healthcheck/{name}",
}

// NewServer creates a new API server
func NewServer(config ServerConfig, backend Backend, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		backend: backend,
		config:  config,
		logger:  logger.WithField("component", "api"),
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /info", s.handleInfo)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /metrics/prometheus", s.handlePrometheus)
	mux.HandleFunc("GET /healthcheck", s.handleHealthChecks)
	mux.HandleFunc("GET /healthcheck/{name}", s.handleHealthCheck)

	var handler http.Handler = mux
	if config.Username != "" {
		handler = s.authMiddleware(handler)
	}
	if config.Compression {
		handler = gzhttp.GzipHandler(handler)
	}
	handler = s.loggingMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         config.Address,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithField("address", s.config.Address).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// StartBackground starts the server in a background goroutine
func (s *Server) StartBackground() {
	go func() {
		if err := s.Start(); err != nil && !stderr.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("API server failed")
		}
	}()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte("pong\n"))
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	nc := s.backend.NamingConfig()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "monitoringcenter",
		"naming":    nc,
		"prefix":    nc.Prefix(),
		"uptime":    time.Since(s.started).String(),
		"timestamp": time.Now(),
		"endpoints": endpoints,
	})
}

// handleMetrics serves {name: {stat: value}} for every metric, or only
// those inside the namespace given by the prefix query parameter.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	filter := registry.All
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		filter = registry.WithPrefix(prefix)
	}
	s.respondJSON(w, http.StatusOK, export.Values(s.backend.Metrics(filter)))
}

func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	promexport.Handler(s.backend.Prometheus()).ServeHTTP(w, r)
}

// handleHealthChecks answers 200 when every check passes, 500 when any
// fails and 501 when none are registered.
func (s *Server) handleHealthChecks(w http.ResponseWriter, r *http.Request) {
	results, err := s.backend.RunHealthChecks(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	statusCode := http.StatusOK
	for _, result := range results {
		if !result.Healthy {
			statusCode = http.StatusInternalServerError
			break
		}
	}
	s.respondJSON(w, statusCode, results)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	result, err := s.backend.RunHealthCheck(r.Context(), r.PathValue("name"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	statusCode := http.StatusOK
	if !result.Healthy {
		statusCode = http.StatusInternalServerError
	}
	s.respondJSON(w, statusCode, result)
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("Handled request")
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	wantUser := []byte(s.config.Username)
	wantPass := []byte(s.config.Password)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), wantUser) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), wantPass) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="monitoringcenter"`)
			s.respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Helper methods

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Warn("Error encoding JSON response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now(),
	})
}

// respondFailure maps a coded error onto its HTTP status.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	var monErr *errors.MonitoringError
	if stderr.As(err, &monErr) && monErr.HTTPStatus != 0 {
		statusCode = monErr.HTTPStatus
	}
	s.respondJSON(w, statusCode, map[string]interface{}{
		"error":     err.Error(),
		"timestamp": time.Now(),
	})
}

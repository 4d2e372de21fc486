package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HTTPServer provides health checks, status and metrics endpoints
type HTTPServer struct {
	port     int
	daemon   *Daemon
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	server   *http.Server
}

// NewHTTPServer creates a new HTTP server exposing the metrics of gatherer
func NewHTTPServer(port int, daemon *Daemon, gatherer prometheus.Gatherer, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &HTTPServer{
		port:     port,
		daemon:   daemon,
		gatherer: gatherer,
		logger:   logger,
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute, // scrape-driven cycles run inside the request
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routes of the server
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/ready", s.readinessHandler)
	mux.HandleFunc("/readyz", s.readinessHandler)
	mux.HandleFunc("/status", s.statusHandler)

	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(s.logger),
		ErrorHandling: promhttp.ContinueOnError,
	}))

	return mux
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.server.Handler = s.Handler()
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return NewDaemonError("listen", "running", fmt.Errorf("%w: %w", ErrHTTPServerFailed, err))
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}

// healthHandler responds to health check requests
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "aliyun-db-exporter",
	})
}

// readinessHandler reports ready once a snapshot has been published
func (s *HTTPServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.daemon == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"reason": "daemon not initialized",
		})
		return
	}

	if !s.daemon.Ready() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"reason": "no snapshot published yet",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
	})
}

// statusHandler provides detailed daemon status
func (s *HTTPServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if s.daemon == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "daemon not available",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, s.daemon.GetStatus())
}

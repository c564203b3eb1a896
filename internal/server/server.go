package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/gearbase/geartrack/internal/catalog"
	"github.com/gearbase/geartrack/internal/metrics"
	"github.com/gearbase/geartrack/internal/storage"
	"github.com/gearbase/geartrack/internal/tracker"
	"github.com/gearbase/geartrack/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
}

// HTTPServer serves the dashboard API over the tracker's projections
type HTTPServer struct {
	config  *ServerConfig
	server  *http.Server
	router  *mux.Router
	storage storage.Storage
	tracker *tracker.Tracker
	catalog *catalog.Catalog
	metrics *metrics.PrometheusMetrics
	logger  *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	store storage.Storage,
	trk *tracker.Tracker,
	cat *catalog.Catalog,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:  config,
		storage: store,
		tracker: trk,
		catalog: cat,
		metrics: metrics.GetMetrics(),
		logger:  utils.GetLogger(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.config.EnableMetrics {
		s.router.Use(s.metricsMiddleware)
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoints
	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	// Metrics endpoints
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Projection endpoints
	api.HandleFunc("/items", s.listItemsHandler).Methods("GET")
	api.HandleFunc("/items/{id}", s.getItemHandler).Methods("GET")
	api.HandleFunc("/counts", s.countsHandler).Methods("GET")
	api.HandleFunc("/holders", s.holdersHandler).Methods("GET")
	api.HandleFunc("/overdue", s.overdueHandler).Methods("GET")
	api.HandleFunc("/status", s.statusHandler).Methods("GET")

	// Log endpoints
	api.HandleFunc("/logs", s.listLogsHandler).Methods("GET")
	api.HandleFunc("/logs", s.appendLogHandler).Methods("POST")

	// Catalog endpoints
	api.HandleFunc("/catalog/items", s.catalogItemsHandler).Methods("GET")
	api.HandleFunc("/catalog/users", s.catalogUsersHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.config.EnableMetrics {
		s.metrics.UpdateSystemMetrics()
		s.updateComponentHealth()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Catch immediate binding errors before declaring the server up
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metrics.UpdateSystemMetrics()
		s.updateComponentHealth()
	}
}

// updateComponentHealth refreshes the per-component health gauges
func (s *HTTPServer) updateComponentHealth() {
	if s.storage != nil {
		s.metrics.UpdateComponentHealth("storage", s.storage.Ping() == nil)
	}
	if s.tracker != nil {
		s.metrics.UpdateComponentHealth("tracker", s.tracker.IsRunning())
	}
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}

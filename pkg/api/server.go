// Package api exposes the positioning system over HTTP: CRUD and CSV
// import/export for antennas, tags and readings, pipeline runs, run
// history, predictions and system events.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rfidlab/tagpos/pkg/logx"
	"github.com/rfidlab/tagpos/pkg/metrics"
	"github.com/rfidlab/tagpos/pkg/mqtt"
	"github.com/rfidlab/tagpos/pkg/positioning"
	"github.com/rfidlab/tagpos/pkg/runhist"
	"github.com/rfidlab/tagpos/pkg/store"
	"github.com/rfidlab/tagpos/pkg/telem"
)

// Config holds API server configuration.
type Config struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	AuthKey string `json:"auth_key"` // optional, empty allows anonymous access
}

// Server is the HTTP front of the daemon.
type Server struct {
	store     *store.Store
	pipeline  *positioning.Pipeline
	history   *runhist.History
	telemetry *telem.Store
	publisher *mqtt.Client
	metrics   *metrics.Metrics
	defaults  positioning.Params
	config    *Config
	logger    *logx.Logger
	startTime time.Time

	// One pipeline run at a time; concurrent triggers queue up here.
	runMu sync.Mutex
}

// NewServer wires the API server. history, publisher and metrics may be
// nil when those subsystems are disabled.
func NewServer(st *store.Store, pipeline *positioning.Pipeline, history *runhist.History,
	telemetry *telem.Store, publisher *mqtt.Client, m *metrics.Metrics,
	defaults positioning.Params, config *Config, logger *logx.Logger,
) *Server {
	return &Server{
		store:     st,
		pipeline:  pipeline,
		history:   history,
		telemetry: telemetry,
		publisher: publisher,
		metrics:   m,
		defaults:  defaults,
		config:    config,
		logger:    logger,
		startTime: time.Now(),
	}
}

// authMiddleware enforces the optional API key, accepted as an X-API-Key
// header or an auth query parameter.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.AuthKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		authKey := r.Header.Get("X-API-Key")
		if authKey == "" {
			authKey = r.URL.Query().Get("auth")
		}
		if authKey != s.config.AuthKey {
			s.logger.Warn("invalid authentication attempt", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/antennas", s.authMiddleware(s.handleAntennas))
	mux.HandleFunc("/api/antennas/upload", s.authMiddleware(s.handleAntennasUpload))
	mux.HandleFunc("/api/tags", s.authMiddleware(s.handleTags))
	mux.HandleFunc("/api/tags/upload", s.authMiddleware(s.handleTagsUpload))
	mux.HandleFunc("/api/readings", s.authMiddleware(s.handleReadings))
	mux.HandleFunc("/api/predictions", s.authMiddleware(s.handlePredictions))
	mux.HandleFunc("/api/pipeline/run", s.authMiddleware(s.handlePipelineRun))
	mux.HandleFunc("/api/runs", s.authMiddleware(s.handleRuns))
	mux.HandleFunc("/api/export/tags", s.authMiddleware(s.handleExportTags))
	mux.HandleFunc("/api/export/readings", s.authMiddleware(s.handleExportReadings))
	mux.HandleFunc("/api/reset", s.authMiddleware(s.handleReset))
	mux.HandleFunc("/api/events", s.authMiddleware(s.handleEvents))
	mux.HandleFunc("/api/health", s.authMiddleware(s.handleHealth))
	mux.HandleFunc("/api/info", s.authMiddleware(s.handleInfo))

	return mux
}

// Start launches the listener in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting api server", "address", addr)
	go func() {
		if err := http.ListenAndServe(addr, s.Handler()); err != nil {
			s.logger.Error("api server failed", "error", err)
		}
	}()
}

func (s *Server) sendJSONResponse(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendErrorResponse(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		s.logger.Error(message, "error", err)
		message = fmt.Sprintf("%s: %v", message, err)
	}
	s.sendJSONResponse(w, status, map[string]string{"error": message})
}

// isConfigurationError distinguishes caller mistakes from internal faults
// when a pipeline run fails.
func isConfigurationError(err error) bool {
	return errors.Is(err, positioning.ErrEmptyReferenceSet) ||
		errors.Is(err, positioning.ErrMissingTruth) ||
		errors.Is(err, positioning.ErrFeatureCount) ||
		errors.Is(err, positioning.ErrDataGap) ||
		errors.Is(err, positioning.ErrWindowSize) ||
		errors.Is(err, positioning.ErrNeighborCount)
}

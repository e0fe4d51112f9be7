// Package server provides the HTTP surface of the HealthBridge sign pipeline.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/healthbridge/healthbridge/internal/confidence"
	"github.com/healthbridge/healthbridge/internal/gesture"
	"github.com/healthbridge/healthbridge/internal/segment"
	"github.com/healthbridge/healthbridge/internal/server/api"
	"github.com/healthbridge/healthbridge/internal/store"
)

// PipelineStatus reports the state of the live camera loop.
type PipelineStatus interface {
	Running() bool
	State() segment.State
	Err() error
}

// Config holds the server configuration. Nil collaborators disable the
// routes that need them.
type Config struct {
	StaticDir     string
	Store         *store.Store
	Translator    api.Translator
	Confidence    confidence.Config
	Selection     func() gesture.SelectionConfig
	DefaultPreset gesture.Preset
	Events        *Hub
	Preview       FrameSource
	Pipeline      PipelineStatus
	// Metrics serves /metrics; promhttp.Handler() when nil.
	Metrics http.Handler
}

// Server represents the HTTP server for the HealthBridge application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Metrics == nil {
		config.Metrics = promhttp.Handler()
	}
	if config.Confidence.Levels == (confidence.LevelConfig{}) {
		config.Confidence = confidence.DefaultConfig()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/api/select", api.NewSelectHandler(s.config.Selection))
	s.mux.Handle("/api/confidence", api.NewConfidenceHandler(s.config.Confidence))
	s.mux.Handle("/metrics", s.config.Metrics)

	if s.config.Translator != nil {
		s.mux.Handle("/api/translate", api.NewTranslateHandler(s.config.Translator))
	}

	if s.config.Store != nil {
		translations := api.NewTranslationHandler(s.config.Store)
		s.mux.Handle("/api/translations", translations)
		s.mux.Handle("/api/translations/", translations)
		s.mux.Handle("/api/settings", api.NewSettingsHandler(s.config.Store, s.config.DefaultPreset))
	}

	if s.config.Events != nil {
		s.mux.Handle("/api/events", s.config.Events)
	}

	if s.config.Preview != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Preview))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type pipelineHealth struct {
	Running bool          `json:"running"`
	State   segment.State `json:"state"`
	Error   string        `json:"error,omitempty"`
}

type healthResponse struct {
	Status   string          `json:"status"`
	Uptime   string          `json:"uptime"`
	Pipeline *pipelineHealth `json:"pipeline,omitempty"`
}

// handleHealth handles GET requests to /api/health. A pipeline fault
// reports status "degraded" until the pipeline restarts cleanly.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).String(),
	}

	if p := s.config.Pipeline; p != nil {
		ph := &pipelineHealth{Running: p.Running(), State: p.State()}
		if err := p.Err(); err != nil {
			ph.Error = err.Error()
			response.Status = "degraded"
		}
		response.Pipeline = ph
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// HTTPServer returns an http.Server for addr so callers can shut it down.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

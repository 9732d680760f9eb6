// Package server provides the HTTP server for the rep counter: live session
// state, history, settings, the camera preview and metrics.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/repcounter/internal/rep"
	"github.com/ayusman/repcounter/internal/server/api"
	"github.com/ayusman/repcounter/internal/store"
)

// Counter is the live counting session served over HTTP.
type Counter interface {
	Session() *rep.Session
	SessionID() string
	IsEnabled() bool
	Restart() (rep.Update, error)
}

// FrameSource provides the latest encoded preview frame. Watch registers a
// viewer so the source knows frames are wanted.
type FrameSource interface {
	Latest() ([]byte, uint64)
	Watch() func()
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Counter   Counter
	Frames    FrameSource
	// Defaults is the counter configuration reported before settings are saved.
	Defaults rep.Config
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP server.
type Server struct {
	config Config
	router chi.Router
	start  time.Time
}

// New creates a new Server with the given configuration. Routes whose
// dependency is missing from config are not registered.
func New(config Config) *Server {
	if config.Defaults == (rep.Config{}) {
		config.Defaults = rep.DefaultConfig()
	}
	s := &Server{
		config: config,
		router: chi.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogging)

	s.router.Get("/api/health", s.handleHealth)

	if s.config.Counter != nil {
		s.router.Get("/api/session", s.handleSession)
		s.router.Post("/api/session/restart", s.handleRestart)
		s.router.Handle("/api/live", NewLiveHandler(s.config.Counter.Session()))
	}

	if s.config.Store != nil {
		s.router.Mount("/api/sessions", api.NewSessionHandler(s.config.Store).Routes())
		s.router.Mount("/api/settings", api.NewSettingsHandler(s.config.Store, s.config.Defaults).Routes())
	}

	if s.config.Frames != nil {
		s.router.Get("/api/stream", NewStreamHandler(s.config.Frames).ServeHTTP)
	}

	if s.config.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	if s.config.StaticDir != "" {
		s.router.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

type sessionResponse struct {
	ID       string       `json:"id,omitempty"`
	Enabled  bool         `json:"enabled"`
	Snapshot rep.Snapshot `json:"snapshot"`
}

// handleSession handles GET /api/session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	c := s.config.Counter
	api.WriteJSON(w, http.StatusOK, sessionResponse{
		ID:       c.SessionID(),
		Enabled:  c.IsEnabled(),
		Snapshot: c.Session().Snapshot(),
	})
}

// handleRestart handles POST /api/session/restart. The response carries the
// reset event with the discarded count.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	u, err := s.config.Counter.Restart()
	if err != nil {
		logrus.WithError(err).Error("session restart failed")
		api.WriteError(w, http.StatusInternalServerError, "Failed to restart session")
		return
	}
	api.WriteJSON(w, http.StatusOK, u)
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

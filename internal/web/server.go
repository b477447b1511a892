// Package web provides the HTTP server for the personnel import service:
// the websocket upload endpoint plus a health probe.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/catdadcode/pdk-data-importer/internal/config"
	"github.com/catdadcode/pdk-data-importer/internal/importer"
)

// Server is the HTTP server hosting the upload websocket.
type Server struct {
	cfg      config.ServerConfig
	imports  *importer.Service
	stager   *Stager
	upgrader websocket.Upgrader
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a Server over the import service and staging area.
func NewServer(cfg config.ServerConfig, imports *importer.Service, stager *Stager) *Server {
	s := &Server{
		cfg:     cfg,
		imports: imports,
		stager:  stager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			// Uploads come from native clients and local tooling, not
			// browsers, so origin enforcement stays off.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/ws", s.handleWS)
	s.router.Get("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"activeImports": s.imports.ActiveImports(),
	})
	if err != nil {
		slog.Warn("health encode failed", "error", err)
	}
}

// Start begins listening for HTTP requests. WriteTimeout stays disabled
// because websocket connections hold their writer for the whole session.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

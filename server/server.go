// Package server implements the tasksync HTTP server, REST API, auth, and SSE real-time events.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pathwise/tasksync/comms"
	"github.com/pathwise/tasksync/config"
	"github.com/pathwise/tasksync/reconcile"
	"github.com/pathwise/tasksync/roadmap"
	"github.com/pathwise/tasksync/server/api"
	"github.com/pathwise/tasksync/server/ws"
	"github.com/pathwise/tasksync/task"
)

// Server is the tasksync HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	store      *task.Store
	importer   *roadmap.Importer
	reconciler *reconcile.Reconciler
	bus        *comms.Bus
	hub        *ws.Hub

	routesOnce sync.Once
	detachHub  func()

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	version string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger,
		hub:       ws.NewHub(logger),
		detachHub: func() {},
		version:   ver,
	}
}

// SetStore attaches the task store to the server.
func (s *Server) SetStore(store *task.Store) {
	s.store = store
}

// SetImporter attaches the roadmap importer to the server.
func (s *Server) SetImporter(im *roadmap.Importer) {
	s.importer = im
}

// SetReconciler attaches the milestone status reconciler to the server.
func (s *Server) SetReconciler(r *reconcile.Reconciler) {
	s.reconciler = r
}

// SetBus attaches the change bus. Its events are relayed to SSE clients.
func (s *Server) SetBus(bus *comms.Bus) {
	s.bus = bus
}

// Handler registers routes on first use and returns the root handler.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.registerRoutes)
	return s.mux
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9090"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop detaches and closes the SSE hub, ending open streams, then gracefully
// shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.detachHub()
	s.hub.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	if s.bus == nil {
		s.bus = comms.NewBus(s.logger)
	}
	s.detachHub = s.bus.AddBroadcaster(s.hub)

	h := &api.Handlers{
		Store:      s.store,
		Importer:   s.importer,
		Reconciler: s.reconciler,
		Bus:        s.bus,
		Logger:     s.logger,
		Version:    s.version,
	}
	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())

	// SSE: auth handled inline because EventSource can't set headers
	s.mux.HandleFunc("GET /events", s.handleSSE)

	// Protected API, wrapped in auth middleware
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSSE streams the token subject's task events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	subject, err := verifyJWT(s.jwtSecret(), r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.hub.ServeSSE(w, r, subject)
}

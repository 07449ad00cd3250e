// Package httpserver exposes the gateway's WebSocket namespaces and
// operational endpoints behind one net/http.ServeMux, grounded on the same
// ServeMux composition internal/platform/httpserver uses for the bidding
// engine.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	gatewayservice "porterdispatch/contexts/realtime/gateway-service"
)

// Dependency is a liveness/readiness probe for one external dependency.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	httpServer *http.Server
	module     gatewayservice.Module
	deps       []Dependency
	startedAt  time.Time
}

func New(module gatewayservice.Module, deps []Dependency, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}
	s := &Server{
		mux:       http.NewServeMux(),
		logger:    logger,
		addr:      addr,
		module:    module,
		deps:      deps,
		startedAt: time.Now().UTC(),
	}
	s.registerRoutes()
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.mux}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.mux.HandleFunc("GET /client", s.handleNamespace("client"))
	s.mux.HandleFunc("GET /porter", s.handleNamespace("porter"))
	s.mux.HandleFunc("GET /admin", s.handleNamespace("admin"))
}

func (s *Server) handleNamespace(namespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.module.Hub.ServeWS(w, r, namespace)
	}
}

func (s *Server) Start() error {
	s.logger.Info("gateway http server starting",
		"event", "gateway_http_server_starting",
		"module", "realtime/gateway-service",
		"layer", "transport",
		"addr", s.addr,
	)
	if s.httpServer == nil {
		s.httpServer = &http.Server{Addr: s.addr, Handler: s.mux}
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	failed := make(map[string]string)
	for _, dep := range s.deps {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := dep.Check(ctx)
		cancel()
		if err != nil {
			failed[dep.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("gateway readiness check failed",
			"event", "gateway_http_ready_failed",
			"module", "realtime/gateway-service",
			"layer", "transport",
			"failed_dependencies", failed,
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleMetrics exports the gateway's connection/room gauges: live sockets
// and active rooms on this instance.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("# HELP gateway_connections_total Live WebSocket connections on this instance\n" +
		"# TYPE gateway_connections_total gauge\n" +
		"gateway_connections_total " + strconv.Itoa(s.module.Hub.ConnectionCount()) + "\n" +
		"# HELP gateway_rooms_total Active local room subscriptions on this instance\n" +
		"# TYPE gateway_rooms_total gauge\n" +
		"gateway_rooms_total " + strconv.Itoa(s.module.Hub.RoomCount()) + "\n"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

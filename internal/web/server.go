// Package web serves the exploration API: start/stop endpoints, the three
// SSE event streams, and read access to stored results.
package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/lucasnoah/droidscope/internal/bus"
	"github.com/lucasnoah/droidscope/internal/db"
	"github.com/lucasnoah/droidscope/internal/executor"
	"github.com/lucasnoah/droidscope/internal/exploration"
	"github.com/lucasnoah/droidscope/internal/run"
)

// Server is the HTTP API server.
type Server struct {
	store    *exploration.Store
	db       *db.DB
	bus      *bus.Bus
	registry *run.Registry
	exec     *executor.Executor
	port     int
}

// NewServer creates a Server.
func NewServer(store *exploration.Store, database *db.DB, b *bus.Bus, registry *run.Registry, exec *executor.Executor, port int) *Server {
	return &Server{
		store:    store,
		db:       database,
		bus:      b,
		registry: registry,
		exec:     exec,
		port:     port,
	}
}

// Handler returns the API routing table. Split out from Start for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/explorations", s.handleExplorations)
	mux.HandleFunc("/api/explorations/", s.routeExploration)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/library", s.handleLibrary)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/results", s.handleLatestResult)
	mux.HandleFunc("/api/results/", s.handleResult)
	mux.HandleFunc("/api/progress", s.handleProgressStream)
	mux.HandleFunc("/api/logs", s.handleLogStream)
	mux.HandleFunc("/api/stages", s.handleStageStream)
	return mux
}

// Start registers routes and starts listening.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("DroidScope API: http://localhost%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) routeExploration(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/explorations/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleExplorationDetail(w, r, id)
	case http.MethodDelete:
		s.handleExplorationDelete(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

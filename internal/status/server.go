// Package status exposes a read-only local HTTP surface over the offline
// engine: health, queue depth, and cached session lookup. It exists for
// diagnostics and for the UI layer's advisory "N actions waiting"
// indicator; all mutations stay routed through the engine itself.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/louisbranch/storyloom/internal/offline"
	"github.com/louisbranch/storyloom/internal/platform/timeouts"
)

// Engine is the read side of the offline engine consumed by the server.
type Engine interface {
	CountPending() int
	PendingActions() []offline.Action
	CachedGame(sessionID string) (offline.CachedGame, bool)
	SyncState() offline.State
}

// Server serves the status endpoints.
type Server struct {
	engine Engine
}

// New creates a status server over engine.
func New(engine Engine) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	return &Server{engine: engine}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/v1/queue", s.handleQueue).Methods(http.MethodGet)
	router.HandleFunc("/v1/sessions/{sessionID}", s.handleSession).Methods(http.MethodGet)
	return router
}

// Run serves the status endpoints on port until ctx is cancelled.
func (s *Server) Run(ctx context.Context, port int) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	log.Printf("status server listening on :%d", port)

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve status: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	<-serveErr
	return nil
}

type healthResponse struct {
	Status    string        `json:"status"`
	SyncState offline.State `json:"sync_state"`
	Pending   int           `json:"pending"`
	Time      time.Time     `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		SyncState: s.engine.SyncState(),
		Pending:   s.engine.CountPending(),
		Time:      time.Now().UTC(),
	})
}

type queueResponse struct {
	Pending int              `json:"pending"`
	Actions []offline.Action `json:"actions"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	actions := s.engine.PendingActions()
	if actions == nil {
		actions = []offline.Action{}
	}
	writeJSON(w, http.StatusOK, queueResponse{
		Pending: len(actions),
		Actions: actions,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	game, ok := s.engine.CachedGame(sessionID)
	if !ok {
		http.Error(w, "session not cached", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode status response: %v", err)
	}
}

package broker

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/symgym/symgym/internal/logging"
)

// Server exposes the instance pool and a run-results mailbox over HTTP.
// Training workers lease endpoints from it; the trainer drains the results.
type Server struct {
	pool   *Pool
	logger *slog.Logger

	mu      sync.Mutex
	results []json.RawMessage
}

// NewServer wraps a pool in the HTTP API.
func NewServer(pool *Pool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{pool: pool, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/instances/lease", s.handleLease)
	r.Post("/instances/{id}/return", s.handleReturn)
	r.Post("/results", s.handlePostResult)
	r.Get("/results", s.handleDrainResults)
	return r
}

func (s *Server) handleLease(w http.ResponseWriter, r *http.Request) {
	inst, err := s.pool.Lease(r.Context())
	if err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		s.logger.Error("lease failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, inst)
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.pool.Return(id); err != nil {
		s.logger.Error("return failed", "id", id, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePostResult(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid result payload", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.results = append(s.results, payload)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// handleDrainResults returns all accumulated results and clears the mailbox.
func (s *Server) handleDrainResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	results := s.results
	s.results = nil
	s.mu.Unlock()
	if results == nil {
		results = []json.RawMessage{}
	}
	s.writeJSON(w, results)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", "err", err)
	}
}

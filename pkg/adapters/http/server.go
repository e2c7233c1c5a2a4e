package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/rehearsal/internal/logging"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// Server exposes stored test results over HTTP.
type Server struct {
	Store   ports.ResultStore
	Streams *StreamManager
	Metrics http.Handler
	Version string
	Logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts a metrics handler on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.Metrics = h }
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.Version = v }
}

// WithLogger configures the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.Logger = l
		}
	}
}

// NewServer creates a server over store.
func NewServer(store ports.ResultStore, opts ...Option) *Server {
	s := &Server{
		Store:   store,
		Streams: NewStreamManager(),
		Version: "dev",
		Logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.Logger
	return s
}

// NewHandler creates the HTTP handler for store.
func NewHandler(store ports.ResultStore, opts ...Option) http.Handler {
	return NewServer(store, opts...).Handler()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/results", s.ListResults)
	r.Get("/results/{name}", s.GetResult)
	r.Delete("/results/{name}", s.DeleteResult)
	r.Get("/events", s.SubscribeEvents)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("response encode failed", "error", err)
	}
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "rehearsal-http",
		"version": s.Version,
	})
}

// ListResults handles the GET /results request.
func (s *Server) ListResults(w http.ResponseWriter, r *http.Request) {
	names, err := s.Store.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.Logger.Error("list results failed", "error", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"results": names})
}

// GetResult handles the GET /results/{name} request.
func (s *Server) GetResult(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	result, err := s.Store.Load(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, fmt.Sprintf("Result not found: %s", name), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusInternalServerError)
		s.Logger.Error("load result failed", "test", name, "error", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// DeleteResult handles the DELETE /results/{name} request.
func (s *Server) DeleteResult(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.Store.Delete(r.Context(), name); err != nil {
		http.Error(w, fmt.Sprintf("Delete error: %v", err), http.StatusInternalServerError)
		s.Logger.Error("delete result failed", "test", name, "error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Package status exposes a read-only HTTP view of the monitor.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fsentry/internal/logging"
	"fsentry/internal/monitor"
)

var logger = logging.GetLogger().WithPrefix("status")

// Recorder keeps the latest cycle stats for the HTTP handlers. It
// implements monitor.StatusSink.
type Recorder struct {
	mu    sync.RWMutex
	stats monitor.CycleStats
}

// RecordCycle implements monitor.StatusSink
func (r *Recorder) RecordCycle(stats monitor.CycleStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = stats
}

// Current returns the most recent cycle stats
func (r *Recorder) Current() monitor.CycleStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Server serves the status endpoints on a configured address
type Server struct {
	recorder *Recorder
	srv      *http.Server
}

// NewServer creates a status server listening on addr
func NewServer(addr string, recorder *Recorder) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	s := &Server{recorder: recorder}
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background. Listen errors other than a
// clean shutdown are logged, not fatal: the monitor keeps running
// without its status surface.
func (s *Server) Start() {
	go func() {
		logger.Info("Status endpoint listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Status server failed: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.recorder.Current()); err != nil {
		logger.Warn("Failed to encode status response: %v", err)
	}
}

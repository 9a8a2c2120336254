package api

import (
	"FlowForge/internal/model"
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// Server exposes the latest progress snapshot over HTTP so external UIs can
// poll a running generation job.
type Server struct {
	srv      *http.Server
	progress func() model.ProgressEvent
}

// NewServer builds the status server. progress returns the most recent
// snapshot; it must be safe to call from any goroutine.
func NewServer(listenAddr string, progress func() model.ProgressEvent) *Server {
	s := &Server{progress: progress}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/progress", s.progressHandler).Methods("GET")

	s.srv = &http.Server{
		Addr:    listenAddr,
		Handler: r,
	}
	return s
}

// Start serves in the background. Listen failures are logged, not fatal:
// the run must not depend on the status surface.
func (s *Server) Start() {
	go func() {
		log.Printf("Status API listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Status API stopped: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.progress()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

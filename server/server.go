// Package server exposes the execution tracker and revision workflow over a
// JSON HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sukhchana/jira-tool/revision"
	"github.com/sukhchana/jira-tool/tracker"
)

// Server is the HTTP API server.
type Server struct {
	addr       string
	tracker    *tracker.Tracker
	workflow   *revision.Workflow
	logger     *zap.SugaredLogger
	httpServer *http.Server
}

// New creates the API server.
func New(addr string, trk *tracker.Tracker, workflow *revision.Workflow, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Server{
		addr:     addr,
		tracker:  trk,
		workflow: workflow,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/executions", s.handleExecutions)
	mux.HandleFunc("/api/executions/", s.handleExecutionByID)
	mux.HandleFunc("/api/revisions/", s.handleRevisionByID)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the underlying handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Infow("HTTP server listening", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

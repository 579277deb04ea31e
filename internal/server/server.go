// Package server exposes a session over HTTP: upload a spreadsheet, follow
// the run (polling or server-sent events), retry, and download the result.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sheetwright/internal/config"
	"sheetwright/internal/logging"
	"sheetwright/internal/session"
)

// Server serves one session.
type Server struct {
	sess *session.Session
	cfg  config.ServerConfig

	shutdownTimeout time.Duration
}

// New creates a server for sess.
func New(sess *session.Session) *Server {
	return &Server{
		sess:            sess,
		cfg:             sess.Config.Server,
		shutdownTimeout: sess.Config.GetShutdownTimeout(),
	}
}

// Handler returns the routed handler with request-id, logging and
// recovery middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/retry", s.handleRetry)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/download", s.handleDownload)
	mux.HandleFunc("GET /api/quota", s.handleQuota)
	mux.HandleFunc("GET /api/template", s.handleTemplate)
	return wrap(mux)
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.cfg.Addr
	}
	if addr == "" {
		return errors.New("addr is required")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      0, // event streams stay open
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Server("http server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		logging.Server("shutting down (timeout %s)", s.shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

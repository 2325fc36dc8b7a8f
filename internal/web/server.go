// Package web serves a read-only JSON API over stored linkage results, so
// a run's posterior table and diagnostics can be inspected without
// re-running the batch pipeline.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/reclink/internal/store"
)

// Server is the results API server.
type Server struct {
	store      *store.Store
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a server over the given store, listening on addr.
func NewServer(st *store.Store, addr string) *Server {
	s := &Server{store: st}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	h := &Handler{DB: s.store.DB}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/runs", h.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}/summary", h.RunSummary).Methods("GET")
	api.HandleFunc("/runs/{id}/posteriors", h.Posteriors).Methods("GET")
	api.HandleFunc("/runs/{id}/thresholds", h.Thresholds).Methods("GET")
	api.HandleFunc("/runs/{id}/bins", h.Bins).Methods("GET")
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("Results API listening on %s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		fmt.Printf("Received %v, shutting down...\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

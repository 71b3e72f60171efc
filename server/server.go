// Package server serves the results of classification and time series runs over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/landcover/analysis"
	"github.com/cyclopcam/landcover/analysis/rundb"
	"github.com/cyclopcam/landcover/pkg/storage"
	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log logs.Log

	runs       *rundb.RunDB
	exports    storage.Storage
	ownsRuns   bool
	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
}

// New creates a server for an already opened run database and export store
func New(log logs.Log, runs *rundb.RunDB, exports storage.Storage) *Server {
	s := &Server{
		Log:     log,
		runs:    runs,
		exports: exports,
	}
	s.setupHttpRoutes()
	return s
}

// NewServer opens the run database and export store described by cfg
func NewServer(log logs.Log, cfg *analysis.Config) (*Server, error) {
	runs, err := rundb.Open(log, cfg.DB)
	if err != nil {
		return nil, err
	}
	exports, err := storage.Open(context.Background(), log, cfg.Exports)
	if err != nil {
		runs.Close()
		return nil, fmt.Errorf("Failed to open export store: %w", err)
	}
	s := New(log, runs, exports)
	s.ownsRuns = true
	return s, nil
}

// Handler returns the HTTP router, for embedding in tests or other servers
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'", sig.String())
			s.Shutdown()
		}
	}()
}

func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
		s.signalIn = nil
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.Log.Warnf("HTTP server shutdown: %v", err)
		}
	}
	if s.ownsRuns {
		s.runs.Close()
	}
	s.Log.Infof("Shutdown complete")
}

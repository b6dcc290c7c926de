// Package server implements the HTTP layer: run streaming, stop control,
// agent discovery, health and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sevir/agentrelay/internal/config"
	"github.com/sevir/agentrelay/internal/runner"
	"github.com/sevir/agentrelay/internal/session"
)

// Server serves the agentrelay HTTP API.
type Server struct {
	addr       string
	version    string
	commit     string
	config     *config.Config
	registry   *session.Registry
	runner     *runner.Runner
	prom       prometheus.Gatherer
	httpServer *http.Server
}

// Config holds server configuration.
type Config struct {
	Addr      string
	Version   string
	Commit    string
	AppConfig *config.Config
	Registry  *session.Registry
	Runner    *runner.Runner
	// Prom defaults to the global gatherer.
	Prom prometheus.Gatherer
}

// New creates a new server.
func New(cfg Config) *Server {
	s := &Server{
		addr:     cfg.Addr,
		version:  cfg.Version,
		commit:   cfg.Commit,
		config:   cfg.AppConfig,
		registry: cfg.Registry,
		runner:   cfg.Runner,
		prom:     cfg.Prom,
	}
	if s.prom == nil {
		s.prom = prometheus.DefaultGatherer
	}

	s.httpServer = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.newGinEngine(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: run responses stream for as long as the
		// configured response deadline allows, possibly forever.
		WriteTimeout: 0,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

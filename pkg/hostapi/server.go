// Package hostapi is the host daemon's HTTP surface. It serves the routes
// the orchestrator's proxy forwards to: execution submits, status polls,
// cancels and control pings, all scoped to the devices this host drives.
// Submissions are validated synchronously and answer with an execution_id;
// everything after that is observed through the status snapshot.
package hostapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/virtualpytest/pilot/pkg/blocks"
	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/runner"
)

// Server is the host HTTP API over one runner.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg    *config.HostConfig
	runner *runner.Runner
	blocks *blocks.Registry
}

// NewServer assembles the host API and registers all routes.
func NewServer(cfg *config.HostConfig, r *runner.Runner) *Server {
	s := &Server{
		echo:   echo.New(),
		cfg:    cfg,
		runner: r,
		blocks: blocks.MustNew(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.GET("/health", s.healthHandler)
	e.GET("/metrics", func(c *echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})

	e.GET("/host/ping", s.pingHandler)
	e.GET("/host/capabilities", s.capabilitiesHandler)
	e.POST("/host/execute/graph", s.executeGraphHandler)
	e.POST("/host/execute/batch", s.executeBatchHandler)
	e.GET("/host/executions/:id", s.executionStatusHandler)
	e.POST("/host/executions/:id/cancel", s.executionCancelHandler)
	e.GET("/host/executions/:id/stream", s.executionStreamHandler)
}

// Handler exposes the routed mux for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Host API listening", "addr", s.cfg.ListenAddr, "host", s.cfg.HostName)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

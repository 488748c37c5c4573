// Package api is the orchestrator's HTTP surface. Every execution endpoint
// follows the uniform async contract: submissions answer with an
// execution_id immediately, progress is observed by polling the status
// endpoint, and failures inside an execution surface as error_kind +
// error_msg fields of the status snapshot, never as transport errors.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/virtualpytest/pilot/pkg/blocks"
	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/control"
	"github.com/virtualpytest/pilot/pkg/database"
	"github.com/virtualpytest/pilot/pkg/events"
	"github.com/virtualpytest/pilot/pkg/metrics"
	"github.com/virtualpytest/pilot/pkg/navigation"
	"github.com/virtualpytest/pilot/pkg/planner"
	"github.com/virtualpytest/pilot/pkg/proxy"
	"github.com/virtualpytest/pilot/pkg/registry"
	"github.com/virtualpytest/pilot/pkg/store"
)

// Deps are the wired subsystems the server exposes. DBClient and Events may
// be nil when the process runs on the in-memory store.
type Deps struct {
	Config     *config.Config
	DBClient   *database.Client
	Store      store.Store
	Registry   *registry.Registry
	Control    *control.Manager
	Navigation *navigation.Service
	Planner    *planner.Builder
	Proxy      *proxy.Proxy
	Events     *events.Publisher
	Metrics    *metrics.Metrics
}

// Server is the orchestrator HTTP API.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg      *config.Config
	dbClient *database.Client
	store    store.Store
	registry *registry.Registry
	control  *control.Manager
	nav      *navigation.Service
	planner  *planner.Builder
	proxy    *proxy.Proxy
	events   *events.Publisher
	metrics  *metrics.Metrics
	blocks   *blocks.Registry
}

// NewServer assembles the API and registers all routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		echo:     echo.New(),
		cfg:      deps.Config,
		dbClient: deps.DBClient,
		store:    deps.Store,
		registry: deps.Registry,
		control:  deps.Control,
		nav:      deps.Navigation,
		planner:  deps.Planner,
		proxy:    deps.Proxy,
		events:   deps.Events,
		metrics:  deps.Metrics,
		blocks:   blocks.MustNew(),
	}
	s.echo.Use(securityHeaders())
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

	api := e.Group("/api/v1")

	api.POST("/control/take", s.takeControlHandler)
	api.POST("/control/release", s.releaseControlHandler)
	api.GET("/control/locked", s.listLockedHandler)

	api.GET("/capabilities/actions", s.listActionsHandler)
	api.GET("/capabilities/verifications", s.listVerificationsHandler)

	api.GET("/navigation/nodes", s.listNodesHandler)
	api.POST("/navigation/execute", s.executeNavigationHandler)

	api.POST("/actions/execute", s.executeActionsHandler)
	api.POST("/verifications/execute", s.executeVerificationsHandler)

	api.POST("/plans/generate", s.generatePlanHandler)
	api.POST("/plans/execute", s.executePlanHandler)
	api.POST("/plans/resolve", s.resolvePlanHandler)

	api.POST("/testcases/save", s.saveTestCaseHandler)
	api.GET("/testcases/load", s.loadTestCaseHandler)
	api.GET("/testcases/list", s.listTestCasesHandler)
	api.DELETE("/testcases/:name", s.deleteTestCaseHandler)

	api.GET("/execution/status", s.executionStatusHandler)
	api.POST("/execution/cancel", s.executionCancelHandler)
	api.GET("/executions/recent", s.recentExecutionsHandler)

	api.POST("/hosts/register", s.registerHostHandler)
	api.POST("/hosts/heartbeat", s.heartbeatHandler)
	api.GET("/hosts", s.listHostsHandler)

	api.GET("/trees/:interface", s.getTreeHandler)
	api.PUT("/trees/:interface", s.putTreeHandler)
	api.PUT("/trees/:interface/nodes", s.putTreeNodeHandler)
	api.DELETE("/trees/:interface/nodes/:id", s.deleteTreeNodeHandler)
	api.PUT("/trees/:interface/edges", s.putTreeEdgeHandler)
	api.DELETE("/trees/:interface/edges/:id", s.deleteTreeEdgeHandler)
}

// Handler exposes the routed mux for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called. The registry sweep runs in control.Watchdog, wired by the main.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("API server listening", "addr", s.cfg.Server.ListenAddr)
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

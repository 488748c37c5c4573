package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/database"
	"github.com/virtualpytest/pilot/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Only the server's own components are
// checked; host reachability is reported informationally so an offline host
// never restarts the orchestrator.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy
	resp := &HealthResponse{Version: version.GitCommit, Checks: checks}

	if s.dbClient != nil {
		dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
		resp.Database = dbHealth
		if err != nil {
			status = healthStatusUnhealthy
			checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	hosts := s.registry.Hosts()
	resp.Hosts = make(map[string]string, len(hosts))
	offline := 0
	for _, h := range hosts {
		resp.Hosts[h.HostName] = string(h.Status)
		if h.Status == core.HostStatusOffline {
			offline++
		}
	}
	if offline > 0 && status == healthStatusHealthy {
		status = healthStatusDegraded
	}
	checks["registry"] = HealthCheck{Status: healthStatusHealthy}

	resp.Status = status
	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, resp)
}

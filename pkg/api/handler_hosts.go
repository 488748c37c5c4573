package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/virtualpytest/pilot/pkg/registry"
)

// registerHostHandler handles POST /api/v1/hosts/register. Re-registration
// replaces the host's device list and marks it online.
func (s *Server) registerHostHandler(c *echo.Context) error {
	var req registry.Registration
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if err := s.registry.Register(req); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, &StatusMessage{Status: "registered"})
}

// heartbeatHandler handles POST /api/v1/hosts/heartbeat.
func (s *Server) heartbeatHandler(c *echo.Context) error {
	var req HeartbeatRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if req.HostName == "" {
		return invalidInput(c, "host_name is required")
	}
	if err := s.registry.Heartbeat(req.HostName); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, &StatusMessage{Status: "ok"})
}

// listHostsHandler handles GET /api/v1/hosts.
func (s *Server) listHostsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Hosts())
}

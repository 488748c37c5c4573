package hostapi

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/executor"
	"github.com/virtualpytest/pilot/pkg/proxy"
	"github.com/virtualpytest/pilot/pkg/runner"
	"github.com/virtualpytest/pilot/pkg/version"
)

// SubmitResponse acknowledges an accepted execution.
type SubmitResponse struct {
	ExecutionID string `json:"execution_id"`
}

// HealthResponse is the host health body.
type HealthResponse struct {
	Status   string        `json:"status"`
	HostName string        `json:"host_name"`
	Version  string        `json:"version"`
	Runner   runner.Health `json:"runner"`
}

// pingHandler handles GET /host/ping. The control layer pings before
// granting a session, so an unknown device answers not_found.
func (s *Server) pingHandler(c *echo.Context) error {
	deviceID := c.QueryParam("device_id")
	if deviceID == "" {
		return invalidInput(c, "device_id is required")
	}
	for _, d := range s.runner.Devices() {
		if d.DeviceID == deviceID {
			return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
		}
	}
	return respondError(c, core.Errf(core.KindNotFound, "unknown device %s", deviceID))
}

// capabilitiesHandler handles GET /host/capabilities.
func (s *Server) capabilitiesHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.runner.Devices())
}

// executeGraphHandler handles POST /host/execute/graph. The graph is
// validated against the block schemas before it is queued, so malformed
// plans fail the submit instead of the status poll.
func (s *Server) executeGraphHandler(c *echo.Context) error {
	var sub proxy.GraphSubmission
	if err := c.Bind(&sub); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if sub.DeviceID == "" {
		return invalidInput(c, "device_id is required")
	}
	if !sub.Kind.IsValid() {
		return invalidInput(c, "unknown execution kind %q", sub.Kind)
	}
	if sub.Graph == nil {
		return invalidInput(c, "graph is required")
	}
	if err := s.blocks.ValidateGraph(sub.Graph); err != nil {
		return respondError(c, err)
	}
	id, err := s.runner.SubmitGraph(sub.DeviceID, sub.Kind, sub.Graph, sub.Vars)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, &SubmitResponse{ExecutionID: id})
}

// executeBatchHandler handles POST /host/execute/batch.
func (s *Server) executeBatchHandler(c *echo.Context) error {
	var sub proxy.BatchSubmission
	if err := c.Bind(&sub); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if sub.DeviceID == "" {
		return invalidInput(c, "device_id is required")
	}
	if len(sub.Actions) == 0 {
		return invalidInput(c, "actions must not be empty")
	}
	id, err := s.runner.SubmitBatch(sub.DeviceID, executor.ActionBatch{
		Actions:        sub.Actions,
		RetryActions:   sub.RetryActions,
		FailureActions: sub.FailureActions,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, &SubmitResponse{ExecutionID: id})
}

// executionStatusHandler handles GET /host/executions/:id.
func (s *Server) executionStatusHandler(c *echo.Context) error {
	snap, err := s.runner.Status(c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// executionCancelHandler handles POST /host/executions/:id/cancel.
func (s *Server) executionCancelHandler(c *echo.Context) error {
	if err := s.runner.Cancel(c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancel_requested"})
}

// healthHandler handles GET /health. A host with running workers is
// healthy; queue pressure shows in the runner section.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:   "healthy",
		HostName: s.cfg.HostName,
		Version:  version.GitCommit,
		Runner:   s.runner.Health(),
	})
}

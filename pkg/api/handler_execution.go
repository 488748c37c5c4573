package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// executionStatusHandler handles GET /api/v1/execution/status. An
// unreachable host answers with a degraded failed snapshot, not an error,
// so pollers keep a single response shape.
func (s *Server) executionStatusHandler(c *echo.Context) error {
	executionID := c.QueryParam("execution_id")
	if executionID == "" {
		return invalidInput(c, "execution_id is required")
	}
	snap, err := s.proxy.Status(c.Request().Context(), executionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// executionCancelHandler handles POST /api/v1/execution/cancel. Cancel is
// best-effort: the terminal state still arrives through status polling.
func (s *Server) executionCancelHandler(c *echo.Context) error {
	var req CancelExecutionRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if req.ExecutionID == "" {
		return invalidInput(c, "execution_id is required")
	}
	if err := s.proxy.Cancel(c.Request().Context(), req.ExecutionID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, &StatusMessage{Status: "cancel_requested"})
}

// recentExecutionsHandler handles GET /api/v1/executions/recent.
func (s *Server) recentExecutionsHandler(c *echo.Context) error {
	teamID := c.QueryParam("team_id")
	if teamID == "" {
		return invalidInput(c, "team_id is required")
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			return invalidInput(c, "limit must be between 1 and 500")
		}
		limit = n
	}
	entries, err := s.store.ExecutionHistory().ListRecent(c.Request().Context(), teamID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

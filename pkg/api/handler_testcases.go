package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/virtualpytest/pilot/pkg/store"
)

// saveTestCaseHandler handles POST /api/v1/testcases/save. The graph is
// validated before persisting so a saved testcase always loads executable.
func (s *Server) saveTestCaseHandler(c *echo.Context) error {
	var req SaveTestCaseRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if req.TeamID == "" || req.Name == "" {
		return invalidInput(c, "team_id and name are required")
	}
	if err := s.blocks.ValidateGraph(req.Graph); err != nil {
		return respondError(c, err)
	}
	if err := s.store.TestCases().Upsert(c.Request().Context(), &store.TestCase{
		TeamID:    req.TeamID,
		Name:      req.Name,
		Interface: req.Interface,
		Graph:     *req.Graph,
	}); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, &StatusMessage{Status: "saved"})
}

// loadTestCaseHandler handles GET /api/v1/testcases/load.
func (s *Server) loadTestCaseHandler(c *echo.Context) error {
	teamID := c.QueryParam("team_id")
	name := c.QueryParam("name")
	if teamID == "" || name == "" {
		return invalidInput(c, "team_id and name are required")
	}
	tc, err := s.store.TestCases().GetByKey(c.Request().Context(), teamID, name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, tc)
}

// listTestCasesHandler handles GET /api/v1/testcases/list.
func (s *Server) listTestCasesHandler(c *echo.Context) error {
	teamID := c.QueryParam("team_id")
	if teamID == "" {
		return invalidInput(c, "team_id is required")
	}
	filter := store.TestCaseFilter{Interface: c.QueryParam("interface")}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return invalidInput(c, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	cases, err := s.store.TestCases().List(c.Request().Context(), teamID, filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cases)
}

// deleteTestCaseHandler handles DELETE /api/v1/testcases/:name.
func (s *Server) deleteTestCaseHandler(c *echo.Context) error {
	teamID := c.QueryParam("team_id")
	name := c.Param("name")
	if teamID == "" || name == "" {
		return invalidInput(c, "team_id and name are required")
	}
	if err := s.store.TestCases().Delete(c.Request().Context(), teamID, name); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, &StatusMessage{Status: "deleted"})
}

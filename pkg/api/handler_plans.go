package api

import (
	"net/http"
	"sort"

	echo "github.com/labstack/echo/v5"

	"github.com/virtualpytest/pilot/pkg/planner"
)

// generatePlanHandler handles POST /api/v1/plans/generate. Infeasibility and
// disambiguation are HTTP 200 with the structured outcome; only invalid
// input and infrastructure failures use the error body.
func (s *Server) generatePlanHandler(c *echo.Context) error {
	var req planner.Request
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	outcome, err := s.planner.Generate(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, outcome)
}

// resolvePlanHandler handles POST /api/v1/plans/resolve: persist confirmed
// phrase -> node choices as learned mappings. Confirming the same pair again
// bumps its usage count, so repeats are safe.
func (s *Server) resolvePlanHandler(c *echo.Context) error {
	var req ResolvePlanRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if req.TeamID == "" || req.Interface == "" {
		return invalidInput(c, "team_id and interface are required")
	}
	if len(req.Resolutions) == 0 {
		return invalidInput(c, "resolutions must not be empty")
	}

	phrases := make([]string, 0, len(req.Resolutions))
	for phrase := range req.Resolutions {
		phrases = append(phrases, phrase)
	}
	sort.Strings(phrases)

	ctx := c.Request().Context()
	for _, phrase := range phrases {
		if err := s.planner.ConfirmMapping(ctx, req.TeamID, req.Interface, phrase, req.Resolutions[phrase]); err != nil {
			return respondError(c, err)
		}
	}
	return c.JSON(http.StatusOK, &ResolveResponse{Status: "ok", Confirmed: len(phrases)})
}

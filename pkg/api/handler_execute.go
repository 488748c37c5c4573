package api

import (
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/proxy"
)

// executeActionsHandler handles POST /api/v1/actions/execute: forward an
// action batch to the owning host's device mailbox.
func (s *Server) executeActionsHandler(c *echo.Context) error {
	var req ExecuteActionsRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if req.SessionID == "" {
		return invalidInput(c, "session_id is required")
	}
	if len(req.Actions) == 0 {
		return invalidInput(c, "actions must not be empty")
	}
	session, err := s.control.Validate(req.SessionID)
	if err != nil {
		return respondError(c, err)
	}

	executionID, err := s.proxy.SubmitBatch(c.Request().Context(), session.TeamID, session.HostName,
		proxy.BatchSubmission{
			DeviceID:       session.DeviceID,
			Actions:        req.Actions,
			RetryActions:   req.RetryActions,
			FailureActions: req.FailureActions,
		})
	if err != nil {
		return respondError(c, err)
	}
	s.control.Touch(req.SessionID)
	return c.JSON(http.StatusOK, &SubmitResponse{ExecutionID: executionID})
}

// executeVerificationsHandler handles POST /api/v1/verifications/execute:
// wrap the batch into a verification chain and submit it as a graph.
func (s *Server) executeVerificationsHandler(c *echo.Context) error {
	var req ExecuteVerificationsRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if req.SessionID == "" {
		return invalidInput(c, "session_id is required")
	}
	if len(req.Verifications) == 0 {
		return invalidInput(c, "verifications must not be empty")
	}
	session, err := s.control.Validate(req.SessionID)
	if err != nil {
		return respondError(c, err)
	}

	plan := verificationPlan(req.Verifications)
	if err := s.blocks.ValidateGraph(plan); err != nil {
		return respondError(c, err)
	}
	executionID, err := s.proxy.SubmitGraph(c.Request().Context(), session.TeamID, session.HostName,
		session.DeviceID, core.KindVerification, plan, nil)
	if err != nil {
		return respondError(c, err)
	}
	s.control.Touch(req.SessionID)
	return c.JSON(http.StatusOK, &SubmitResponse{ExecutionID: executionID})
}

// executePlanHandler handles POST /api/v1/plans/execute: run a caller-built
// or AI-generated graph. The graph is validated here so malformed plans fail
// synchronously instead of surfacing through a status poll.
func (s *Server) executePlanHandler(c *echo.Context) error {
	var req ExecutePlanRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if req.SessionID == "" {
		return invalidInput(c, "session_id is required")
	}
	session, err := s.control.Validate(req.SessionID)
	if err != nil {
		return respondError(c, err)
	}
	if err := s.blocks.ValidateGraph(req.Graph); err != nil {
		return respondError(c, err)
	}

	executionID, err := s.proxy.SubmitGraph(c.Request().Context(), session.TeamID, session.HostName,
		session.DeviceID, core.KindAIPrompt, req.Graph, req.Vars)
	if err != nil {
		return respondError(c, err)
	}
	s.control.Touch(req.SessionID)
	return c.JSON(http.StatusOK, &SubmitResponse{ExecutionID: executionID})
}

// verificationPlan chains the requested checks into verification blocks sharing one
// failure terminal, so the first failing check ends the run as failed.
func verificationPlan(specs []VerificationSpec) *core.Graph {
	g := &core.Graph{
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart, Data: core.NodeData{Label: "START"}},
		},
	}
	prev := "start"
	edgeN := 0
	wire := func(source, target string, handle core.EdgeHandle) {
		edgeN++
		g.Edges = append(g.Edges, core.Edge{
			ID:           fmt.Sprintf("e%d", edgeN),
			Source:       source,
			Target:       target,
			SourceHandle: handle,
			Type:         "default",
		})
	}

	for i, spec := range specs {
		id := fmt.Sprintf("ver%d", i+1)
		g.Nodes = append(g.Nodes, core.Node{
			ID:       id,
			Type:     core.NodeVerification,
			Position: core.Position{X: float64((i + 1) * 200)},
			Data: core.NodeData{
				Label:            core.FormatLabel(core.NodeVerification, i+1, spec.VerificationType),
				VerificationType: spec.VerificationType,
				Expected:         spec.Expected,
				Params:           spec.Params,
			},
		})
		wire(prev, id, core.HandleSuccess)
		prev = id
	}

	x := float64((len(specs) + 1) * 200)
	g.Nodes = append(g.Nodes,
		core.Node{ID: "success", Type: core.NodeSuccess, Position: core.Position{X: x}, Data: core.NodeData{Label: "SUCCESS"}},
		core.Node{ID: "failure", Type: core.NodeFailure, Position: core.Position{X: x, Y: 200}, Data: core.NodeData{Label: "FAILURE"}},
	)
	wire(prev, "success", core.HandleSuccess)
	for i := range specs {
		wire(fmt.Sprintf("ver%d", i+1), "failure", core.HandleFailure)
	}
	return g
}

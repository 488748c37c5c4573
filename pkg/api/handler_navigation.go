package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/virtualpytest/pilot/pkg/core"
)

// listNodesHandler handles GET /api/v1/navigation/nodes.
func (s *Server) listNodesHandler(c *echo.Context) error {
	teamID := c.QueryParam("team_id")
	iface := c.QueryParam("interface")
	if teamID == "" || iface == "" {
		return invalidInput(c, "team_id and interface are required")
	}
	g, err := s.nav.Graph(c.Request().Context(), teamID, iface)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, &NodesResponse{Interface: iface, Nodes: g.Labels()})
}

// executeNavigationHandler handles POST /api/v1/navigation/execute: resolve
// the path now, embed it as pre-expanded transitions, and submit a minimal
// navigation plan to the owning host. The host never consults the tree.
func (s *Server) executeNavigationHandler(c *echo.Context) error {
	var req ExecuteNavigationRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if req.SessionID == "" || req.TargetNode == "" {
		return invalidInput(c, "session_id and target_node are required")
	}
	session, err := s.control.Validate(req.SessionID)
	if err != nil {
		return respondError(c, err)
	}
	if session.Interface == "" {
		return invalidInput(c, "session has no navigation tree; take control with a tree_id first")
	}

	ctx := c.Request().Context()
	g, err := s.nav.Graph(ctx, session.TeamID, session.Interface)
	if err != nil {
		return respondError(c, err)
	}
	targetID, err := g.ResolveNode(req.TargetNode)
	if err != nil {
		return respondError(c, err)
	}
	transitions, err := g.FindPath(req.CurrentNodeID, req.TargetNode)
	if err != nil {
		return respondError(c, err)
	}

	plan := navigationPlan(req.TargetNode, targetID, transitions)
	executionID, err := s.proxy.SubmitGraph(ctx, session.TeamID, session.HostName, session.DeviceID,
		core.KindNavigation, plan, nil)
	if err != nil {
		return respondError(c, err)
	}
	s.control.Touch(req.SessionID)
	return c.JSON(http.StatusOK, &SubmitResponse{ExecutionID: executionID})
}

// navigationPlan wraps one pre-expanded path into the minimal executable
// graph: a single navigation block with explicit success and failure exits.
func navigationPlan(target, targetID string, transitions []core.Transition) *core.Graph {
	return &core.Graph{
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart, Data: core.NodeData{Label: "START"}},
			{ID: "nav1", Type: core.NodeNavigation, Position: core.Position{X: 200}, Data: core.NodeData{
				Label:        core.FormatLabel(core.NodeNavigation, 1, target),
				TargetNode:   target,
				TargetNodeID: targetID,
				ActionType:   "navigation",
				Transitions:  transitions,
			}},
			{ID: "success", Type: core.NodeSuccess, Position: core.Position{X: 400}, Data: core.NodeData{Label: "SUCCESS"}},
			{ID: "failure", Type: core.NodeFailure, Position: core.Position{X: 400, Y: 200}, Data: core.NodeData{Label: "FAILURE"}},
		},
		Edges: []core.Edge{
			{ID: "e1", Source: "start", Target: "nav1", SourceHandle: core.HandleSuccess, Type: "default"},
			{ID: "e2", Source: "nav1", Target: "success", SourceHandle: core.HandleSuccess, Type: "default"},
			{ID: "e3", Source: "nav1", Target: "failure", SourceHandle: core.HandleFailure, Type: "default"},
		},
	}
}

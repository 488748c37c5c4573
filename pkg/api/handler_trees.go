package api

import (
	"context"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/events"
)

// getTreeHandler handles GET /api/v1/trees/:interface.
func (s *Server) getTreeHandler(c *echo.Context) error {
	teamID := c.QueryParam("team_id")
	iface := c.Param("interface")
	if teamID == "" {
		return invalidInput(c, "team_id is required")
	}
	tree, err := s.store.NavigationTrees().GetByInterface(c.Request().Context(), teamID, iface)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, tree)
}

// putTreeHandler handles PUT /api/v1/trees/:interface: replace the whole
// tree for one (team, interface).
func (s *Server) putTreeHandler(c *echo.Context) error {
	iface := c.Param("interface")
	var tree core.NavigationTree
	if err := c.Bind(&tree); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if tree.TeamID == "" {
		return invalidInput(c, "team_id is required")
	}
	tree.Interface = iface
	if err := s.store.NavigationTrees().Upsert(c.Request().Context(), &tree); err != nil {
		return respondError(c, err)
	}
	s.invalidateTree(c.Request().Context(), tree.TeamID, iface, events.TreeChangeReplaced, tree.TreeID)
	return c.JSON(http.StatusOK, &StatusMessage{Status: "saved"})
}

// putTreeNodeHandler handles PUT /api/v1/trees/:interface/nodes.
func (s *Server) putTreeNodeHandler(c *echo.Context) error {
	teamID := c.QueryParam("team_id")
	iface := c.Param("interface")
	if teamID == "" {
		return invalidInput(c, "team_id is required")
	}
	var node core.TreeNode
	if err := c.Bind(&node); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if node.ID == "" || node.Label == "" {
		return invalidInput(c, "node id and label are required")
	}
	if err := s.store.NavigationTrees().UpsertNode(c.Request().Context(), teamID, iface, node); err != nil {
		return respondError(c, err)
	}
	s.invalidateTree(c.Request().Context(), teamID, iface, events.TreeChangeNodeUpserted, node.ID)
	return c.JSON(http.StatusOK, &StatusMessage{Status: "saved"})
}

// deleteTreeNodeHandler handles DELETE /api/v1/trees/:interface/nodes/:id.
func (s *Server) deleteTreeNodeHandler(c *echo.Context) error {
	teamID := c.QueryParam("team_id")
	iface := c.Param("interface")
	nodeID := c.Param("id")
	if teamID == "" {
		return invalidInput(c, "team_id is required")
	}
	if err := s.store.NavigationTrees().DeleteNode(c.Request().Context(), teamID, iface, nodeID); err != nil {
		return respondError(c, err)
	}
	s.invalidateTree(c.Request().Context(), teamID, iface, events.TreeChangeNodeDeleted, nodeID)
	return c.JSON(http.StatusOK, &StatusMessage{Status: "deleted"})
}

// putTreeEdgeHandler handles PUT /api/v1/trees/:interface/edges.
func (s *Server) putTreeEdgeHandler(c *echo.Context) error {
	teamID := c.QueryParam("team_id")
	iface := c.Param("interface")
	if teamID == "" {
		return invalidInput(c, "team_id is required")
	}
	var edge core.TreeEdge
	if err := c.Bind(&edge); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if edge.ID == "" || edge.Source == "" || edge.Target == "" {
		return invalidInput(c, "edge id, source and target are required")
	}
	if err := s.store.NavigationTrees().UpsertEdge(c.Request().Context(), teamID, iface, edge); err != nil {
		return respondError(c, err)
	}
	s.invalidateTree(c.Request().Context(), teamID, iface, events.TreeChangeEdgeUpserted, edge.ID)
	return c.JSON(http.StatusOK, &StatusMessage{Status: "saved"})
}

// deleteTreeEdgeHandler handles DELETE /api/v1/trees/:interface/edges/:id.
func (s *Server) deleteTreeEdgeHandler(c *echo.Context) error {
	teamID := c.QueryParam("team_id")
	iface := c.Param("interface")
	edgeID := c.Param("id")
	if teamID == "" {
		return invalidInput(c, "team_id is required")
	}
	if err := s.store.NavigationTrees().DeleteEdge(c.Request().Context(), teamID, iface, edgeID); err != nil {
		return respondError(c, err)
	}
	s.invalidateTree(c.Request().Context(), teamID, iface, events.TreeChangeEdgeDeleted, edgeID)
	return c.JSON(http.StatusOK, &StatusMessage{Status: "deleted"})
}

// invalidateTree drops every cache derived from the tree and broadcasts the
// mutation so sibling processes do the same. A failed broadcast only logs:
// this process already serves fresh data, others recover via TTL expiry.
func (s *Server) invalidateTree(ctx context.Context, teamID, iface, change, elementID string) {
	s.nav.Invalidate(teamID, iface)
	s.planner.InvalidateContext(teamID, iface)
	err := s.events.PublishTreeChanged(ctx, events.TreeChangedPayload{
		TeamID:    teamID,
		Interface: iface,
		Change:    change,
		ElementID: elementID,
	})
	if err != nil {
		slog.Warn("Tree change broadcast failed", "interface", iface, "change", change, "error", err)
	}
}

// Package navigation maintains the unified navigation graph per
// (team, interface) and computes device navigation paths over it. Graphs
// are built from navigation trees, cached with a short TTL, and invalidated
// on tree writes; the pathfinder pre-expands paths into concrete action
// sequences so executors never consult the tree at runtime.
package navigation

import (
	"log/slog"
	"time"

	"github.com/virtualpytest/pilot/pkg/core"
)

// UnifiedGraph is a navigation tree flattened into one adjacency structure
// indexed by node id and label. It is read-only after construction; cache
// refreshes build a new graph rather than mutating a shared one.
type UnifiedGraph struct {
	TeamID    string
	Interface string
	TreeID    string
	BuiltAt   time.Time

	nodes     []core.TreeNode
	byID      map[string]core.TreeNode
	byLabel   map[string][]string
	adjacency map[string][]hop
}

// hop is one traversable step. Edges with reverse actions contribute a
// second hop in the opposite direction.
type hop struct {
	edgeID  string
	to      string
	actions []core.Action
}

// BuildGraph flattens a navigation tree. Edges referencing nodes that do
// not (yet) exist are skipped: tree editors write nodes and edges in
// separate calls, so a tree may be transiently dangling.
func BuildGraph(tree *core.NavigationTree) *UnifiedGraph {
	g := &UnifiedGraph{
		TeamID:    tree.TeamID,
		Interface: tree.Interface,
		TreeID:    tree.TreeID,
		BuiltAt:   time.Now(),
		nodes:     append([]core.TreeNode(nil), tree.Nodes...),
		byID:      make(map[string]core.TreeNode, len(tree.Nodes)),
		byLabel:   make(map[string][]string),
		adjacency: make(map[string][]hop),
	}
	for _, n := range tree.Nodes {
		if _, dup := g.byID[n.ID]; dup {
			continue
		}
		g.byID[n.ID] = n
		g.byLabel[n.Label] = append(g.byLabel[n.Label], n.ID)
	}
	dangling := 0
	for _, e := range tree.Edges {
		if _, ok := g.byID[e.Source]; !ok {
			dangling++
			continue
		}
		if _, ok := g.byID[e.Target]; !ok {
			dangling++
			continue
		}
		g.adjacency[e.Source] = append(g.adjacency[e.Source], hop{edgeID: e.ID, to: e.Target, actions: e.Actions})
		if len(e.ReverseActions) > 0 {
			g.adjacency[e.Target] = append(g.adjacency[e.Target], hop{edgeID: e.ID, to: e.Source, actions: e.ReverseActions})
		}
	}
	if dangling > 0 {
		slog.Warn("Navigation tree has dangling edges",
			"team", tree.TeamID, "interface", tree.Interface, "skipped", dangling)
	}
	return g
}

// NodeByID returns the node with the given id.
func (g *UnifiedGraph) NodeByID(id string) (core.TreeNode, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// RootID returns the id of the tree's root, its first declared node.
func (g *UnifiedGraph) RootID() string {
	if len(g.nodes) == 0 {
		return ""
	}
	return g.nodes[0].ID
}

// NodeCount reports the number of nodes.
func (g *UnifiedGraph) NodeCount() int {
	return len(g.nodes)
}

// Labels returns the distinct node labels in declaration order. This is the
// "available nodes" view the plan builder works from.
func (g *UnifiedGraph) Labels() []string {
	seen := make(map[string]bool, len(g.nodes))
	out := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		if seen[n.Label] {
			continue
		}
		seen[n.Label] = true
		out = append(out, n.Label)
	}
	return out
}

// HasLabel reports whether any node carries the label.
func (g *UnifiedGraph) HasLabel(label string) bool {
	return len(g.byLabel[label]) > 0
}

// EdgeCommands returns the distinct action commands the tree's edges use,
// in adjacency declaration order.
func (g *UnifiedGraph) EdgeCommands() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range g.nodes {
		for _, h := range g.adjacency[n.ID] {
			for _, a := range h.actions {
				if a.Command == "" || seen[a.Command] {
					continue
				}
				seen[a.Command] = true
				out = append(out, a.Command)
			}
		}
	}
	return out
}

// ResolveNode maps a node id or label to a node id. Label resolution is
// strict: an unknown name is not_found and a label carried by multiple
// nodes is invalid_input. Fuzzy correction and disambiguation belong to
// the plan builder, not the pathfinder.
func (g *UnifiedGraph) ResolveNode(idOrLabel string) (string, error) {
	if _, ok := g.byID[idOrLabel]; ok {
		return idOrLabel, nil
	}
	ids := g.byLabel[idOrLabel]
	switch len(ids) {
	case 0:
		return "", core.Errf(core.KindNotFound, "node %q not found in navigation tree", idOrLabel)
	case 1:
		return ids[0], nil
	default:
		return "", core.Errf(core.KindInvalidInput, "label %q is ambiguous, %d nodes carry it; use a node id", idOrLabel, len(ids))
	}
}

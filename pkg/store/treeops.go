package store

import (
	"time"

	"github.com/virtualpytest/pilot/pkg/core"
)

// The node/edge endpoints operate on the tree row as a whole: read, mutate
// in Go, write back. Both store implementations share the mutation step so
// their semantics cannot drift.

func applyNodeUpsert(tree *core.NavigationTree, node core.TreeNode) {
	for i := range tree.Nodes {
		if tree.Nodes[i].ID == node.ID {
			tree.Nodes[i] = node
			tree.UpdatedAt = time.Now()
			return
		}
	}
	tree.Nodes = append(tree.Nodes, node)
	tree.UpdatedAt = time.Now()
}

// applyNodeDelete removes the node and every edge touching it.
func applyNodeDelete(tree *core.NavigationTree, nodeID string) {
	nodes := tree.Nodes[:0]
	for _, n := range tree.Nodes {
		if n.ID != nodeID {
			nodes = append(nodes, n)
		}
	}
	tree.Nodes = nodes
	edges := tree.Edges[:0]
	for _, e := range tree.Edges {
		if e.Source != nodeID && e.Target != nodeID {
			edges = append(edges, e)
		}
	}
	tree.Edges = edges
	tree.UpdatedAt = time.Now()
}

func applyEdgeUpsert(tree *core.NavigationTree, edge core.TreeEdge) {
	for i := range tree.Edges {
		if tree.Edges[i].ID == edge.ID {
			tree.Edges[i] = edge
			tree.UpdatedAt = time.Now()
			return
		}
	}
	tree.Edges = append(tree.Edges, edge)
	tree.UpdatedAt = time.Now()
}

func applyEdgeDelete(tree *core.NavigationTree, edgeID string) {
	edges := tree.Edges[:0]
	for _, e := range tree.Edges {
		if e.ID != edgeID {
			edges = append(edges, e)
		}
	}
	tree.Edges = edges
	tree.UpdatedAt = time.Now()
}

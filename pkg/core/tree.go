package core

import "time"

// TreeNode is one labelled screen/state of a navigation tree. Nodes may
// belong to nested subtrees; Subtree is empty for top-level nodes.
type TreeNode struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Subtree string `json:"subtree,omitempty"`
}

// TreeEdge is one transition between tree nodes. Actions is the ordered
// command sequence that performs the transition; ReverseActions (optional)
// performs the opposite direction when the tree author declares it.
type TreeEdge struct {
	ID             string   `json:"id"`
	Source         string   `json:"source"`
	Target         string   `json:"target"`
	Actions        []Action `json:"actions"`
	ReverseActions []Action `json:"reverse_actions,omitempty"`
}

// NavigationTree is the declarative UI map of one interface, unique per
// (team, interface). Cross-subtree edges are plain edges.
type NavigationTree struct {
	TeamID    string     `json:"team_id"`
	Interface string     `json:"interface"`
	TreeID    string     `json:"tree_id"`
	Nodes     []TreeNode `json:"nodes"`
	Edges     []TreeEdge `json:"edges"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// NodeByLabel returns all nodes carrying the given label, in declaration
// order. Duplicate labels across subtrees are legal in a tree; resolving
// them is the caller's concern.
func (t *NavigationTree) NodeByLabel(label string) []TreeNode {
	var out []TreeNode
	for _, n := range t.Nodes {
		if n.Label == label {
			out = append(out, n)
		}
	}
	return out
}

package core

// NodeType is the block type of a plan graph node.
type NodeType string

const (
	NodeStart             NodeType = "start"
	NodeSuccess           NodeType = "success"
	NodeFailure           NodeType = "failure"
	NodeNavigation        NodeType = "navigation"
	NodeAction            NodeType = "action"
	NodeVerification      NodeType = "verification"
	NodeSleep             NodeType = "sleep"
	NodeSetVariable       NodeType = "set_variable"
	NodeEvaluateCondition NodeType = "evaluate_condition"
	NodeLoop              NodeType = "loop"
	NodeSubgraph          NodeType = "subgraph"
)

// IsValid checks if the node type is one of the defined block types.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeStart, NodeSuccess, NodeFailure, NodeNavigation, NodeAction,
		NodeVerification, NodeSleep, NodeSetVariable, NodeEvaluateCondition,
		NodeLoop, NodeSubgraph:
		return true
	}
	return false
}

// IsTerminal reports whether the node ends an execution.
func (t NodeType) IsTerminal() bool {
	return t == NodeSuccess || t == NodeFailure
}

// IsFallible reports whether the block can fail at runtime and therefore
// gets a failure edge wired to the shared failure terminal.
func (t NodeType) IsFallible() bool {
	switch t {
	case NodeNavigation, NodeAction, NodeVerification:
		return true
	}
	return false
}

// EdgeHandle selects which outcome of the source block an edge follows.
type EdgeHandle string

const (
	HandleSuccess EdgeHandle = "success"
	HandleFailure EdgeHandle = "failure"
)

// Position places a node on the visual canvas. The executor ignores it but
// round-trips it so saved testcases keep their layout.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Action is one concrete device command with its parameters and
// post-command delay.
type Action struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
	DelayMs int            `json:"delay_ms,omitempty"`
}

// Transition is one pre-expanded navigation step: the tree edge it came
// from plus the resolved action sequence. Navigation blocks embed these so
// the executor never consults the navigation tree at runtime.
type Transition struct {
	EdgeID  string   `json:"edge_id,omitempty"`
	From    string   `json:"from"`
	To      string   `json:"to"`
	FromID  string   `json:"from_id,omitempty"`
	ToID    string   `json:"to_id,omitempty"`
	Actions []Action `json:"actions"`
}

// NodeData carries the per-type payload of a plan graph node. Fields are
// populated according to the node type; unused fields stay empty.
type NodeData struct {
	Label string `json:"label"`

	// navigation
	TargetNode   string       `json:"target_node,omitempty"`
	TargetNodeID string       `json:"target_node_id,omitempty"`
	ActionType   string       `json:"action_type,omitempty"`
	Transitions  []Transition `json:"transitions,omitempty"`

	// action
	Command string         `json:"command,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	DelayMs int            `json:"delay,omitempty"`

	// verification
	VerificationType string `json:"verification_type,omitempty"`
	Expected         any    `json:"expected,omitempty"`

	// sleep
	DurationMs int `json:"duration_ms,omitempty"`

	// set_variable
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`

	// evaluate_condition
	OperandType  string `json:"operand_type,omitempty"`
	Condition    string `json:"condition,omitempty"`
	LeftOperand  string `json:"left_operand,omitempty"`
	RightOperand string `json:"right_operand,omitempty"`

	// loop / subgraph
	Iterations int    `json:"iterations,omitempty"`
	Body       *Graph `json:"body,omitempty"`

	Description string `json:"description,omitempty"`
}

// Node is one typed block of a plan graph.
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Edge is a directed connection between blocks. SourceHandle names the
// outcome of the source block it follows.
type Edge struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"`
	Target       string     `json:"target"`
	SourceHandle EdgeHandle `json:"sourceHandle"`
	Type         string     `json:"type,omitempty"`
}

// Graph is the executable plan artifact produced by the AI builder or
// loaded from a saved testcase.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// StartNode returns the unique start node, or nil if absent.
func (g *Graph) StartNode() *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Type == NodeStart {
			return &g.Nodes[i]
		}
	}
	return nil
}

// OutgoingEdge returns the first edge leaving nodeID on the given handle,
// in declaration order, or nil if none exists.
func (g *Graph) OutgoingEdge(nodeID string, handle EdgeHandle) *Edge {
	for i := range g.Edges {
		e := &g.Edges[i]
		if e.Source == nodeID && e.SourceHandle == handle {
			return e
		}
	}
	return nil
}

// NodesOfType returns all nodes of the given type in declaration order.
func (g *Graph) NodesOfType(t NodeType) []*Node {
	var out []*Node
	for i := range g.Nodes {
		if g.Nodes[i].Type == t {
			out = append(out, &g.Nodes[i])
		}
	}
	return out
}

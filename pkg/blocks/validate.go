package blocks

import (
	"github.com/virtualpytest/pilot/pkg/core"
)

// ValidateGraph checks a plan graph against the structural rules every
// executable plan must satisfy: exactly one start, at least one terminal,
// edges referencing real nodes, no duplicate outgoing handles, every node
// reachable from start, labels matching the grammar, and per-type
// parameters valid. Loop bodies and subgraphs validate recursively. This
// is the pre-execution half of the double validation; the plan builder
// performs its own at generation time.
func (r *Registry) ValidateGraph(g *core.Graph) error {
	if g == nil || len(g.Nodes) == 0 {
		return core.Errf(core.KindInvalidInput, "graph has no nodes")
	}

	ids := make(map[string]*core.Node, len(g.Nodes))
	starts := 0
	terminals := 0
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return core.Errf(core.KindInvalidInput, "graph contains a node without an id")
		}
		if _, dup := ids[n.ID]; dup {
			return core.Errf(core.KindInvalidInput, "duplicate node id %q", n.ID)
		}
		ids[n.ID] = n

		if err := r.ValidateNode(n); err != nil {
			return err
		}
		if !core.LabelMatchesType(n.Data.Label, n.Type) {
			return core.Errf(core.KindInvalidInput, "block %s has label %q, which violates the %s label grammar", n.ID, n.Data.Label, n.Type)
		}

		switch n.Type {
		case core.NodeStart:
			starts++
		case core.NodeSuccess, core.NodeFailure:
			terminals++
		case core.NodeLoop:
			if n.Data.Body == nil {
				return core.Errf(core.KindInvalidInput, "loop block %s has no body", n.ID)
			}
			if err := r.ValidateGraph(n.Data.Body); err != nil {
				return core.WrapErr(core.KindInvalidInput, err, "loop block %s body is invalid", n.ID)
			}
		case core.NodeSubgraph:
			if err := r.ValidateGraph(n.Data.Body); err != nil {
				return core.WrapErr(core.KindInvalidInput, err, "subgraph block %s body is invalid", n.ID)
			}
		}
	}
	if starts != 1 {
		return core.Errf(core.KindInvalidInput, "graph must have exactly one start block, found %d", starts)
	}
	if terminals == 0 {
		return core.Errf(core.KindInvalidInput, "graph has no success or failure terminal")
	}

	type handleKey struct {
		source string
		handle core.EdgeHandle
	}
	handles := make(map[handleKey]bool, len(g.Edges))
	adjacency := make(map[string][]string)
	for i := range g.Edges {
		e := &g.Edges[i]
		if _, ok := ids[e.Source]; !ok {
			return core.Errf(core.KindInvalidInput, "edge %s references unknown source node %q", e.ID, e.Source)
		}
		if _, ok := ids[e.Target]; !ok {
			return core.Errf(core.KindInvalidInput, "edge %s references unknown target node %q", e.ID, e.Target)
		}
		if e.SourceHandle != core.HandleSuccess && e.SourceHandle != core.HandleFailure {
			return core.Errf(core.KindInvalidInput, "edge %s has unknown sourceHandle %q", e.ID, e.SourceHandle)
		}
		key := handleKey{source: e.Source, handle: e.SourceHandle}
		if handles[key] {
			return core.Errf(core.KindInvalidInput, "node %q has more than one outgoing %s edge", e.Source, e.SourceHandle)
		}
		handles[key] = true
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	// Reachability from start: a node nothing points at is dead weight and
	// almost always an editing mistake.
	start := g.StartNode()
	reachable := map[string]bool{start.ID: true}
	queue := []string{start.ID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}
	for id := range ids {
		if !reachable[id] {
			return core.Errf(core.KindInvalidInput, "node %q is not reachable from start", id)
		}
	}
	return nil
}

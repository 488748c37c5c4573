package navigation

import (
	"github.com/virtualpytest/pilot/pkg/core"
)

// FindPath computes the shortest action path from sourceID to the target
// node (id or label). An empty sourceID starts from the tree root. Every
// edge counts as one step; neighbors expand in edge insertion order, so
// equal-length paths resolve deterministically to the first-declared one.
//
// The result is the pre-expanded transition list embedded into navigation
// blocks: one entry per hop, carrying the edge's action sequence. An empty
// list with a nil error means the device is already at the target.
func (g *UnifiedGraph) FindPath(sourceID, target string) ([]core.Transition, error) {
	if sourceID == "" {
		sourceID = g.RootID()
	}
	src, ok := g.byID[sourceID]
	if !ok {
		return nil, core.Errf(core.KindNotFound, "source node %q not found in navigation tree", sourceID)
	}
	targetID, err := g.ResolveNode(target)
	if err != nil {
		return nil, err
	}
	if sourceID == targetID {
		return nil, nil
	}

	type crumb struct {
		fromID string
		via    hop
	}
	prev := make(map[string]crumb)
	visited := map[string]bool{sourceID: true}
	queue := []string{sourceID}
	found := false
	for len(queue) > 0 && !found {
		cur := queue[0]
		queue = queue[1:]
		for _, h := range g.adjacency[cur] {
			if visited[h.to] {
				continue
			}
			visited[h.to] = true
			prev[h.to] = crumb{fromID: cur, via: h}
			if h.to == targetID {
				found = true
				break
			}
			queue = append(queue, h.to)
		}
	}
	if !found {
		return nil, core.Errf(core.KindInfeasible, "no path from %q to %q", src.Label, target)
	}

	var path []core.Transition
	for cur := targetID; cur != sourceID; {
		c := prev[cur]
		path = append(path, core.Transition{
			EdgeID:  c.via.edgeID,
			From:    g.byID[c.fromID].Label,
			To:      g.byID[cur].Label,
			FromID:  c.fromID,
			ToID:    cur,
			Actions: append([]core.Action(nil), c.via.actions...),
		})
		cur = c.fromID
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

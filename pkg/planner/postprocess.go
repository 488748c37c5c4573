package planner

import (
	"fmt"

	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/navigation"
)

// labelCounter tracks per-type ordinals across a whole plan, loop bodies
// included, so enforcement reproduces the assembler's numbering.
type labelCounter struct {
	counts map[core.NodeType]int
}

// EnforceLabels rewrites every label in the graph to the canonical grammar,
// whatever the LLM or a caller put there. Ordinals are recomputed in
// declaration order, descending into loop bodies at their position.
func EnforceLabels(g *core.Graph) {
	c := &labelCounter{counts: make(map[core.NodeType]int)}
	c.enforce(g)
}

func (c *labelCounter) enforce(g *core.Graph) {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		switch n.Type {
		case core.NodeStart, core.NodeSuccess, core.NodeFailure:
			n.Data.Label = core.FormatLabel(n.Type, 0, "")
			continue
		}
		c.counts[n.Type]++
		n.Data.Label = core.FormatLabel(n.Type, c.counts[n.Type], labelTarget(n))
		if n.Type == core.NodeLoop && n.Data.Body != nil {
			c.enforce(n.Data.Body)
		}
	}
}

func labelTarget(n *core.Node) string {
	switch n.Type {
	case core.NodeNavigation:
		return n.Data.TargetNode
	case core.NodeAction:
		return n.Data.Command
	case core.NodeVerification:
		return n.Data.VerificationType
	case core.NodeSleep:
		return fmt.Sprintf("%dms", n.Data.DurationMs)
	case core.NodeSetVariable:
		return n.Data.Name
	case core.NodeEvaluateCondition:
		return n.Data.Condition
	case core.NodeLoop:
		return fmt.Sprintf("%dx", n.Data.Iterations)
	case core.NodeSubgraph:
		return "subgraph"
	}
	return string(n.Type)
}

// validateTargets checks every navigation block against the unified graph,
// the second of the two fail-closed validations. Unknown targets go through
// the fuzzy matcher once more: a single live candidate is substituted
// silently, several force disambiguation, none makes the plan infeasible.
func validateTargets(g *core.Graph, graph *navigation.UnifiedGraph, threshold float64, maxSuggestions int) ([]Ambiguity, error) {
	labels := graph.Labels()
	var ambiguities []Ambiguity

	var walk func(*core.Graph) error
	walk = func(g *core.Graph) error {
		for i := range g.Nodes {
			n := &g.Nodes[i]
			if n.Type == core.NodeLoop && n.Data.Body != nil {
				if err := walk(n.Data.Body); err != nil {
					return err
				}
			}
			if n.Type != core.NodeNavigation {
				continue
			}
			if graph.HasLabel(n.Data.TargetNode) {
				continue
			}
			outcome, corrected, suggestions := matchPhrase(n.Data.TargetNode, labels, threshold, maxSuggestions)
			switch outcome {
			case matchCorrected:
				n.Data.TargetNode = corrected
			case matchAmbiguous:
				ambiguities = append(ambiguities, Ambiguity{
					Original:    n.Data.TargetNode,
					Suggestions: suggestionLabels(suggestions),
				})
			default:
				return core.Errf(core.KindInfeasible, "plan targets node %q which does not exist in the navigation tree", n.Data.TargetNode)
			}
		}
		return nil
	}
	if err := walk(g); err != nil {
		return nil, err
	}
	return ambiguities, nil
}

// prefetchTransitions embeds the pathfinder result into every navigation
// block, walking the plan in execution order. The device position threads
// through: each navigation starts where the previous one ended.
func prefetchTransitions(g *core.Graph, graph *navigation.UnifiedGraph, currentNodeID string) error {
	source := currentNodeID

	var walk func(*core.Graph) error
	walk = func(g *core.Graph) error {
		for i := range g.Nodes {
			n := &g.Nodes[i]
			switch n.Type {
			case core.NodeLoop:
				if n.Data.Body != nil {
					if err := walk(n.Data.Body); err != nil {
						return err
					}
				}
			case core.NodeNavigation:
				targetID, err := graph.ResolveNode(n.Data.TargetNode)
				if err != nil {
					return err
				}
				transitions, err := graph.FindPath(source, n.Data.TargetNode)
				if err != nil {
					return err
				}
				n.Data.TargetNodeID = targetID
				n.Data.Transitions = transitions
				source = targetID
			}
		}
		return nil
	}
	return walk(g)
}

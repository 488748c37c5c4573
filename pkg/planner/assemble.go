package planner

import (
	"fmt"

	"github.com/virtualpytest/pilot/pkg/core"
)

// assembler turns parsed steps into a plan graph. Ordinals for ids and
// labels are shared across the whole plan, loop bodies included, so every
// label stays unique and per-type monotonic.
type assembler struct {
	navN, actN, verN, sleepN, loopN int
	edgeN                           int
}

// AssembleGraph builds the executable graph for an ordered step list. Every
// fallible block gets a failure edge to one shared FAILURE terminal; the
// last step's success edge lands on SUCCESS. When the intent announced a
// loop but the steps carry no repeat marker, everything after the first
// navigation wraps into the loop body.
func AssembleGraph(steps []Step, intent Intent) *core.Graph {
	steps = applyLoopFallback(steps, intent)
	a := &assembler{}
	return a.assemble(steps)
}

// TrivialNavigationPlan is the exact-match short circuit: a three-node plan
// that navigates to one node and succeeds. No failure terminal, matching
// the minimal shape the executor treats as propagate-on-failure.
func TrivialNavigationPlan(node string) *core.Graph {
	g := &core.Graph{
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart, Position: core.Position{X: 0}, Data: core.NodeData{Label: "START"}},
			{ID: "nav1", Type: core.NodeNavigation, Position: core.Position{X: 200}, Data: core.NodeData{
				Label:      core.FormatLabel(core.NodeNavigation, 1, node),
				TargetNode: node,
				ActionType: "navigation",
			}},
			{ID: "success", Type: core.NodeSuccess, Position: core.Position{X: 400}, Data: core.NodeData{Label: "SUCCESS"}},
		},
		Edges: []core.Edge{
			{ID: "e1", Source: "start", Target: "nav1", SourceHandle: core.HandleSuccess, Type: "default"},
			{ID: "e2", Source: "nav1", Target: "success", SourceHandle: core.HandleSuccess, Type: "default"},
		},
	}
	return g
}

// applyLoopFallback wraps steps after the first navigation into a loop when
// the intent says loop but the LLM emitted no Repeat marker.
func applyLoopFallback(steps []Step, intent Intent) []Step {
	if !intent.HasLoop || intent.LoopCount <= 0 {
		return steps
	}
	for _, s := range steps {
		if s.Repeat > 0 {
			return steps
		}
	}
	split := 0
	if len(steps) > 0 && steps[0].Kind == StepNavigate {
		split = 1
	}
	if split >= len(steps) {
		return steps
	}
	body := append([]Step(nil), steps[split:]...)
	return append(append([]Step(nil), steps[:split]...), Step{Repeat: intent.LoopCount, Body: body})
}

func (a *assembler) assemble(steps []Step) *core.Graph {
	g := &core.Graph{}
	x := 0.0
	add := func(n core.Node) string {
		n.Position = core.Position{X: x}
		x += 200
		g.Nodes = append(g.Nodes, n)
		return n.ID
	}

	add(core.Node{ID: "start", Type: core.NodeStart, Data: core.NodeData{Label: "START"}})
	prev := "start"
	fallible := false

	for _, step := range steps {
		node := a.buildNode(step)
		if node == nil {
			continue
		}
		id := add(*node)
		a.wire(g, prev, id, core.HandleSuccess)
		if node.Type.IsFallible() || node.Type == core.NodeLoop {
			fallible = true
		}
		prev = id
	}

	add(core.Node{ID: "success", Type: core.NodeSuccess, Data: core.NodeData{Label: "SUCCESS"}})
	a.wire(g, prev, "success", core.HandleSuccess)

	if fallible {
		add(core.Node{ID: "failure", Type: core.NodeFailure, Data: core.NodeData{Label: "FAILURE"}})
		for i := range g.Nodes {
			n := &g.Nodes[i]
			if n.Type.IsFallible() || n.Type == core.NodeLoop {
				a.wire(g, n.ID, "failure", core.HandleFailure)
			}
		}
	}
	return g
}

func (a *assembler) buildNode(step Step) *core.Node {
	if step.Repeat > 0 {
		a.loopN++
		body := a.assemble(step.Body)
		return &core.Node{
			ID:   fmt.Sprintf("loop%d", a.loopN),
			Type: core.NodeLoop,
			Data: core.NodeData{
				Label:      core.FormatLabel(core.NodeLoop, a.loopN, fmt.Sprintf("%dx", step.Repeat)),
				Iterations: step.Repeat,
				Body:       body,
			},
		}
	}
	switch step.Kind {
	case StepNavigate:
		a.navN++
		return &core.Node{
			ID:   fmt.Sprintf("nav%d", a.navN),
			Type: core.NodeNavigation,
			Data: core.NodeData{
				Label:      core.FormatLabel(core.NodeNavigation, a.navN, step.Target),
				TargetNode: step.Target,
				ActionType: "navigation",
			},
		}
	case StepAction:
		a.actN++
		return &core.Node{
			ID:   fmt.Sprintf("act%d", a.actN),
			Type: core.NodeAction,
			Data: core.NodeData{
				Label:       core.FormatLabel(core.NodeAction, a.actN, step.Command),
				Command:     step.Command,
				ActionType:  "action",
				Description: step.Description,
			},
		}
	case StepVerify:
		a.verN++
		return &core.Node{
			ID:   fmt.Sprintf("ver%d", a.verN),
			Type: core.NodeVerification,
			Data: core.NodeData{
				Label:            core.FormatLabel(core.NodeVerification, a.verN, step.Verification),
				VerificationType: step.Verification,
			},
		}
	case StepSleep:
		a.sleepN++
		return &core.Node{
			ID:   fmt.Sprintf("sleep%d", a.sleepN),
			Type: core.NodeSleep,
			Data: core.NodeData{
				Label:      core.FormatLabel(core.NodeSleep, a.sleepN, fmt.Sprintf("%dms", step.DurationMs)),
				DurationMs: step.DurationMs,
			},
		}
	}
	return nil
}

func (a *assembler) wire(g *core.Graph, source, target string, handle core.EdgeHandle) {
	a.edgeN++
	g.Edges = append(g.Edges, core.Edge{
		ID:           fmt.Sprintf("e%d", a.edgeN),
		Source:       source,
		Target:       target,
		SourceHandle: handle,
		Type:         "default",
	})
}

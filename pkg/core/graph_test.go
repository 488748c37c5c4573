package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    ExecutionStatus
		to      ExecutionStatus
		allowed bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusCancelled, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCancelled, StatusRunning, false},
		{StatusFailed, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestValidLabel(t *testing.T) {
	valid := []string{
		"START", "SUCCESS", "FAILURE",
		"navigation_1:home",
		"navigation_12:live_tv",
		"action_2:press_key",
		"verification_1:check_audio",
		"sleep_1:500ms",
		"set_variable_1:counter",
		"evaluate_condition_1:==",
		"loop_1:2x",
		"subgraph_1:warmup",
	}
	for _, l := range valid {
		assert.True(t, ValidLabel(l), "label %q", l)
	}

	invalid := []string{
		"", "start", "Success",
		"navigation_0:home",
		"navigation_1:",
		"navigation:home",
		"teleport_1:home",
		"navigation_01:home",
	}
	for _, l := range invalid {
		assert.False(t, ValidLabel(l), "label %q", l)
	}
}

func TestLabelMatchesType(t *testing.T) {
	assert.True(t, LabelMatchesType("START", NodeStart))
	assert.True(t, LabelMatchesType("success", NodeSuccess), "terminals accepted case-insensitively on input")
	assert.True(t, LabelMatchesType("navigation_1:home", NodeNavigation))
	assert.False(t, LabelMatchesType("navigation_1:home", NodeAction))
	assert.False(t, LabelMatchesType("action_1:zap", NodeVerification))
}

func TestFormatLabel(t *testing.T) {
	assert.Equal(t, "START", FormatLabel(NodeStart, 0, ""))
	assert.Equal(t, "navigation_1:home", FormatLabel(NodeNavigation, 1, "home"))
	assert.Equal(t, "verification_3:check_audio", FormatLabel(NodeVerification, 3, "check_audio"))
	assert.True(t, ValidLabel(FormatLabel(NodeLoop, 2, "4x")))
}

func TestGraphHelpers(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			{ID: "start", Type: NodeStart, Data: NodeData{Label: "START"}},
			{ID: "nav1", Type: NodeNavigation, Data: NodeData{Label: "navigation_1:home", TargetNode: "home"}},
			{ID: "success", Type: NodeSuccess, Data: NodeData{Label: "SUCCESS"}},
			{ID: "failure", Type: NodeFailure, Data: NodeData{Label: "FAILURE"}},
		},
		Edges: []Edge{
			{ID: "e1", Source: "start", Target: "nav1", SourceHandle: HandleSuccess},
			{ID: "e2", Source: "nav1", Target: "success", SourceHandle: HandleSuccess},
			{ID: "e3", Source: "nav1", Target: "failure", SourceHandle: HandleFailure},
		},
	}

	require.NotNil(t, g.StartNode())
	assert.Equal(t, "start", g.StartNode().ID)

	e := g.OutgoingEdge("nav1", HandleFailure)
	require.NotNil(t, e)
	assert.Equal(t, "failure", e.Target)

	assert.Nil(t, g.OutgoingEdge("success", HandleSuccess))
	assert.Len(t, g.NodesOfType(NodeNavigation), 1)
	assert.Nil(t, g.NodeByID("missing"))
}

func TestGraphJSONRoundTrip(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			{ID: "start", Type: NodeStart, Position: Position{X: 0, Y: 0}, Data: NodeData{Label: "START"}},
			{
				ID:   "nav1",
				Type: NodeNavigation,
				Data: NodeData{
					Label:      "navigation_1:live",
					TargetNode: "live",
					ActionType: "navigation",
					Transitions: []Transition{
						{From: "home", To: "live", Actions: []Action{{Command: "press_key", Params: map[string]any{"key": "LIVE"}, DelayMs: 200}}},
					},
				},
			},
			{
				ID:   "loop1",
				Type: NodeLoop,
				Data: NodeData{
					Label:      "loop_1:2x",
					Iterations: 2,
					Body: &Graph{
						Nodes: []Node{{ID: "act1", Type: NodeAction, Data: NodeData{Label: "action_1:zap", Command: "zap"}}},
					},
				},
			},
			{ID: "success", Type: NodeSuccess, Data: NodeData{Label: "SUCCESS"}},
		},
		Edges: []Edge{
			{ID: "e1", Source: "start", Target: "nav1", SourceHandle: HandleSuccess, Type: "default"},
			{ID: "e2", Source: "nav1", Target: "loop1", SourceHandle: HandleSuccess, Type: "default"},
			{ID: "e3", Source: "loop1", Target: "success", SourceHandle: HandleSuccess, Type: "default"},
		},
	}

	raw, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sourceHandle":"success"`)

	var back Graph
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, *g, back)
}

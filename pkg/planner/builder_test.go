package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/llm"
	"github.com/virtualpytest/pilot/pkg/navigation"
	"github.com/virtualpytest/pilot/pkg/store"
)

func plannerTree() *core.NavigationTree {
	press := func(key string) []core.Action {
		return []core.Action{{Command: "press_key", Params: map[string]any{"key": key}}}
	}
	return &core.NavigationTree{
		TeamID:    "team-a",
		Interface: "horizon_android_tv",
		TreeID:    "tree-1",
		Nodes: []core.TreeNode{
			{ID: "n1", Label: "home"},
			{ID: "n2", Label: "live_tv"},
			{ID: "n3", Label: "live_radio"},
			{ID: "n4", Label: "settings"},
		},
		Edges: []core.TreeEdge{
			{ID: "e1", Source: "n1", Target: "n2", Actions: press("LIVE")},
			{ID: "e2", Source: "n1", Target: "n3", Actions: press("RADIO")},
			{ID: "e3", Source: "n1", Target: "n4", Actions: press("SETTINGS")},
		},
	}
}

type builderFixture struct {
	builder *Builder
	llm     *llm.Scripted
	store   *store.MemoryStore
}

func newBuilderFixture(t *testing.T, entries ...llm.ScriptEntry) *builderFixture {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.NavigationTrees().Upsert(context.Background(), plannerTree()))

	nav := navigation.NewService(st.NavigationTrees(), 0)
	models := config.NewDeviceModelRegistry(map[string]*config.DeviceModelConfig{
		"android_tv": {
			RemoteKeys:    []string{"UP", "DOWN", "OK", "LIVE"},
			Verifications: []string{"check_audio", "check_video", "image_match"},
		},
	})
	scripted := llm.NewScripted(entries...)
	builder := NewBuilder(config.DefaultAIConfig(), scripted, nav, models, st, nil)
	return &builderFixture{builder: builder, llm: scripted, store: st}
}

func (f *builderFixture) generate(t *testing.T, prompt string, resolutions map[string]string) *Outcome {
	t.Helper()
	outcome, err := f.builder.Generate(context.Background(), Request{
		TeamID:      "team-a",
		Interface:   "horizon_android_tv",
		DeviceModel: "android_tv",
		Prompt:      prompt,
		Resolutions: resolutions,
	})
	require.NoError(t, err)
	return outcome
}

func TestGenerateExactMatchShortCircuit(t *testing.T) {
	f := newBuilderFixture(t)

	outcome := f.generate(t, "home", nil)
	assert.Equal(t, OutcomeOK, outcome.Status)
	assert.False(t, outcome.CacheHit)
	assert.Equal(t, []string{"START", "navigation_1:home", "SUCCESS"}, nodeLabels(outcome.Graph))
	assert.Zero(t, f.llm.Calls(), "exact match must not call the LLM")

	// Second identical invocation hits the plan cache.
	second := f.generate(t, "home", nil)
	assert.True(t, second.CacheHit)
	assert.Equal(t, outcome.Fingerprint, second.Fingerprint)
	assert.Equal(t, nodeLabels(outcome.Graph), nodeLabels(second.Graph))
	assert.Zero(t, f.llm.Calls())
}

func TestGenerateTwoStepSequence(t *testing.T) {
	f := newBuilderFixture(t, llm.ScriptEntry{Text: `ANALYSIS: Go to live_tv and verify audio.
STEPS:
1. Navigate to: live_tv
2. Verify: check_audio`})

	outcome := f.generate(t, "go to live_tv and check audio", nil)
	require.Equal(t, OutcomeOK, outcome.Status)
	assert.Equal(t, 1, f.llm.Calls())

	g := outcome.Graph
	assert.Equal(t, []string{"START", "navigation_1:live_tv", "verification_1:check_audio", "SUCCESS", "FAILURE"}, nodeLabels(g))

	// Transitions are pre-expanded into the navigation block.
	nav := g.NodeByID("nav1")
	require.NotNil(t, nav)
	assert.Equal(t, "n2", nav.Data.TargetNodeID)
	require.Len(t, nav.Data.Transitions, 1)
	assert.Equal(t, "e1", nav.Data.Transitions[0].EdgeID)
	assert.Equal(t, "press_key", nav.Data.Transitions[0].Actions[0].Command)

	// Both fallible blocks reach the shared failure terminal.
	assert.Equal(t, "failure", g.OutgoingEdge("nav1", core.HandleFailure).Target)
	assert.Equal(t, "failure", g.OutgoingEdge("ver1", core.HandleFailure).Target)
}

func TestGenerateDisambiguationThenLearnedMapping(t *testing.T) {
	f := newBuilderFixture(t,
		llm.ScriptEntry{Text: "ANALYSIS: ok\nSTEPS:\n1. Navigate to: live_tv"},
		llm.ScriptEntry{Text: "ANALYSIS: ok\nSTEPS:\n1. Navigate to: live_tv"},
	)

	// First call stalls on the ambiguous phrase.
	first := f.generate(t, "navigate to live", nil)
	require.Equal(t, OutcomeNeedsDisambiguation, first.Status)
	require.Len(t, first.Ambiguities, 1)
	assert.Equal(t, "live", first.Ambiguities[0].Original)
	assert.Equal(t, []string{"live_tv", "live_radio"}, first.Ambiguities[0].Suggestions)
	assert.Equal(t, "navigate to live", first.OriginalPrompt)
	assert.Contains(t, first.AvailableNodes, "live_radio")
	assert.Zero(t, f.llm.Calls(), "ambiguity halts before the LLM")

	// Resubmission with the resolution generates and persists the mapping.
	second := f.generate(t, "navigate to live", map[string]string{"live": "live_tv"})
	require.Equal(t, OutcomeOK, second.Status)
	assert.Equal(t, "navigation_1:live_tv", second.Graph.Nodes[1].Data.Label)

	mapped, err := f.store.LearnedMappings().GetBatch(context.Background(), "team-a", "horizon_android_tv", []string{"live"})
	require.NoError(t, err)
	assert.Equal(t, "live_tv", mapped["live"])

	// A different prompt with the same phrase substitutes without asking.
	third := f.generate(t, "show live please", nil)
	require.Equal(t, OutcomeOK, third.Status)
	assert.Equal(t, 2, f.llm.Calls())
}

func TestGenerateLoopScope(t *testing.T) {
	f := newBuilderFixture(t, llm.ScriptEntry{Text: `ANALYSIS: Navigate to live_tv, zap twice, check audio and video per zap.
STEPS:
1. Navigate to: live_tv
2. Repeat: 2 times:
3. Action: zap
4. Verify: check_audio
5. Verify: check_video
6. End repeat`})

	outcome := f.generate(t, "go to live_tv then zap 2 times, for each zap check audio and video", nil)
	require.Equal(t, OutcomeOK, outcome.Status)

	g := outcome.Graph
	loop := g.NodeByID("loop1")
	require.NotNil(t, loop)
	assert.Equal(t, 2, loop.Data.Iterations)
	assert.Equal(t, []string{"START", "action_1:zap", "verification_1:check_audio", "verification_2:check_video", "SUCCESS", "FAILURE"},
		nodeLabels(loop.Data.Body))
	assert.Equal(t, "navigation_1:live_tv", g.Nodes[1].Data.Label)
}

func TestGenerateStopwordsOnlyInfeasible(t *testing.T) {
	f := newBuilderFixture(t)

	outcome := f.generate(t, "go to then open and check", nil)
	assert.Equal(t, OutcomeInfeasible, outcome.Status)
	assert.NotEmpty(t, outcome.Analysis)
	assert.Zero(t, f.llm.Calls())
}

func TestGenerateEmptyPromptInvalid(t *testing.T) {
	f := newBuilderFixture(t)

	_, err := f.builder.Generate(context.Background(), Request{
		TeamID: "team-a", Interface: "horizon_android_tv", DeviceModel: "android_tv",
		Prompt: "   ",
	})
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
}

func TestGeneratePostValidationCorrectsTarget(t *testing.T) {
	// The LLM misspells a node; post-processing reuses the fuzzy matcher.
	f := newBuilderFixture(t, llm.ScriptEntry{Text: "ANALYSIS: ok\nSTEPS:\n1. Navigate to: setings"})

	outcome := f.generate(t, "open settings panel", nil)
	require.Equal(t, OutcomeOK, outcome.Status)
	assert.Equal(t, "navigation_1:settings", outcome.Graph.Nodes[1].Data.Label)
	assert.Equal(t, "n4", outcome.Graph.Nodes[1].Data.TargetNodeID)
}

func TestGenerateParseFailureRetriesOnce(t *testing.T) {
	f := newBuilderFixture(t,
		llm.ScriptEntry{Text: "I would be happy to help!"},
		llm.ScriptEntry{Text: "ANALYSIS: ok\nSTEPS:\n1. Navigate to: home"},
	)

	outcome := f.generate(t, "navigate to home_screen", nil)
	require.Equal(t, OutcomeOK, outcome.Status)
	assert.Equal(t, 2, f.llm.Calls())
}

func TestGenerateParseFailureExhausted(t *testing.T) {
	f := newBuilderFixture(t,
		llm.ScriptEntry{Text: "no steps here"},
		llm.ScriptEntry{Text: "still nothing"},
	)

	_, err := f.builder.Generate(context.Background(), Request{
		TeamID: "team-a", Interface: "horizon_android_tv", DeviceModel: "android_tv",
		Prompt: "navigate to home_screen",
	})
	require.Error(t, err)
	assert.Equal(t, core.KindInternal, core.KindOf(err))
	assert.Equal(t, 2, f.llm.Calls())
}

func TestGenerateIdenticalPromptsIdenticalPlans(t *testing.T) {
	response := llm.ScriptEntry{Text: "ANALYSIS: ok\nSTEPS:\n1. Navigate to: live_tv\n2. Verify: check_audio"}
	f := newBuilderFixture(t, response, response)

	first := f.generate(t, "go to live_tv and check audio", nil)
	second := f.generate(t, "go to live_tv and check audio", nil)

	require.Equal(t, OutcomeOK, first.Status)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Graph, second.Graph)
	assert.Equal(t, 1, f.llm.Calls(), "second call must reuse the cached plan")
}

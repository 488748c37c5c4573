package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/core"
)

func edgeIDs(path []core.Transition) []string {
	out := make([]string, len(path))
	for i, tr := range path {
		out[i] = tr.EdgeID
	}
	return out
}

func TestFindPathPrefersShortest(t *testing.T) {
	g := BuildGraph(tvTree())

	// home → settings has a two-hop route via menu and a direct edge
	path, err := g.FindPath("n1", "settings")
	require.NoError(t, err)
	assert.Equal(t, []string{"e3"}, edgeIDs(path))
	assert.Equal(t, "home", path[0].From)
	assert.Equal(t, "settings", path[0].To)
	require.Len(t, path[0].Actions, 1)
	assert.Equal(t, "press_key", path[0].Actions[0].Command)
}

func TestFindPathBreaksTiesByInsertionOrder(t *testing.T) {
	g := BuildGraph(tvTree())

	// home → profile: menu/e5 and settings/e4 both give two hops; the
	// menu route wins because e1 is declared before e3.
	path, err := g.FindPath("n1", "profile")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e5"}, edgeIDs(path))
	assert.Equal(t, []string{"home", "menu"}, []string{path[0].From, path[1].From})
}

func TestFindPathMultiHop(t *testing.T) {
	g := BuildGraph(tvTree())

	path, err := g.FindPath("n1", "playback")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e5", "e6"}, edgeIDs(path))
	assert.Equal(t, "playback", path[2].To)
	assert.Equal(t, "n5", path[2].ToID)
}

func TestFindPathUsesReverseActions(t *testing.T) {
	g := BuildGraph(tvTree())

	path, err := g.FindPath("n5", "profile")
	require.NoError(t, err)
	require.Len(t, path, 1)
	assert.Equal(t, "e6", path[0].EdgeID)
	assert.Equal(t, "playback", path[0].From)
	assert.Equal(t, "profile", path[0].To)
	require.Len(t, path[0].Actions, 1)
	assert.Equal(t, map[string]any{"key": "BACK"}, path[0].Actions[0].Params)
}

func TestFindPathAlreadyThere(t *testing.T) {
	g := BuildGraph(tvTree())

	path, err := g.FindPath("n3", "settings")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestFindPathDefaultsToRoot(t *testing.T) {
	g := BuildGraph(tvTree())

	path, err := g.FindPath("", "menu")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, edgeIDs(path))
}

func TestFindPathUnreachable(t *testing.T) {
	g := BuildGraph(tvTree())

	_, err := g.FindPath("n1", "n6")
	assert.True(t, core.IsKind(err, core.KindInfeasible))
}

func TestFindPathAmbiguousTarget(t *testing.T) {
	g := BuildGraph(tvTree())

	_, err := g.FindPath("n1", "promo")
	assert.True(t, core.IsKind(err, core.KindInvalidInput))
}

func TestFindPathUnknownSource(t *testing.T) {
	g := BuildGraph(tvTree())

	_, err := g.FindPath("ghost", "home")
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

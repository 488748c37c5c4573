package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/core"
)

func TestSubstitute(t *testing.T) {
	v := Vars{"channel": "7", "app": "live_tv"}

	out, err := v.Substitute("tune {channel} in {app}")
	require.NoError(t, err)
	assert.Equal(t, "tune 7 in live_tv", out)

	out, err = v.Substitute("no placeholders")
	require.NoError(t, err)
	assert.Equal(t, "no placeholders", out)
}

func TestSubstituteUnresolved(t *testing.T) {
	v := Vars{"channel": "7"}

	_, err := v.Substitute("tune {channel} in {app}")
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
	assert.Contains(t, err.Error(), "app")
}

func TestSubstituteParamsNested(t *testing.T) {
	v := Vars{"key": "OK", "pkg": "tv"}

	out, err := v.SubstituteParams(map[string]any{
		"key":   "{key}",
		"count": 3,
		"extra": map[string]any{"package": "{pkg}"},
		"list":  []any{"{key}", 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "OK", out["key"])
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, "tv", out["extra"].(map[string]any)["package"])
	assert.Equal(t, "OK", out["list"].([]any)[0])
}

func TestSubstituteParamsNil(t *testing.T) {
	v := Vars{}
	out, err := v.SubstituteParams(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

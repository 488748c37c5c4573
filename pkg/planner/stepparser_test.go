package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseBasic(t *testing.T) {
	resp := ParseResponse(`ANALYSIS: Navigate home, then verify audio.
STEPS:
1. Navigate to: home
2. Action: press_key (press OK)
3. Verify: check_audio
4. Sleep: 500 ms`)

	assert.Equal(t, "Navigate home, then verify audio.", resp.Analysis)
	require.Len(t, resp.Steps, 4)
	assert.Equal(t, Step{Kind: StepNavigate, Target: "home"}, resp.Steps[0])
	assert.Equal(t, Step{Kind: StepAction, Command: "press_key", Description: "press OK"}, resp.Steps[1])
	assert.Equal(t, Step{Kind: StepVerify, Verification: "check_audio"}, resp.Steps[2])
	assert.Equal(t, Step{Kind: StepSleep, DurationMs: 500}, resp.Steps[3])
}

func TestParseResponseLoopMarkers(t *testing.T) {
	resp := ParseResponse(`ANALYSIS: Zap twice, checking audio and video each time.
STEPS:
1. Navigate to: live_tv
2. Repeat: 2 times:
3. Action: zap
4. Verify: check_audio
5. Verify: check_video
6. End repeat`)

	require.Len(t, resp.Steps, 2)
	assert.Equal(t, StepNavigate, resp.Steps[0].Kind)

	loop := resp.Steps[1]
	assert.Equal(t, 2, loop.Repeat)
	require.Len(t, loop.Body, 3)
	assert.Equal(t, "zap", loop.Body[0].Command)
	assert.Equal(t, "check_audio", loop.Body[1].Verification)
	assert.Equal(t, "check_video", loop.Body[2].Verification)
}

func TestParseResponseUnclosedLoopClosesAtEnd(t *testing.T) {
	resp := ParseResponse(`STEPS:
1. Repeat: 3 times:
2. Action: zap`)

	require.Len(t, resp.Steps, 1)
	assert.Equal(t, 3, resp.Steps[0].Repeat)
	assert.Len(t, resp.Steps[0].Body, 1)
}

func TestParseResponseIsTotal(t *testing.T) {
	// Unknown lines, markdown noise and prose are skipped, never fatal.
	resp := ParseResponse("Sure! Here's the plan:\n```\nSTEPS:\n1. Navigate to: home\nsome stray commentary\n2. Verify: check_audio\n```\nHope this helps!")

	require.Len(t, resp.Steps, 2)
	assert.Equal(t, "home", resp.Steps[0].Target)
}

func TestParseResponseVariants(t *testing.T) {
	resp := ParseResponse(`steps:
- go to: settings
- Wait: 2 s
- action: launch_app`)

	require.Len(t, resp.Steps, 3)
	assert.Equal(t, "settings", resp.Steps[0].Target)
	assert.Equal(t, 2000, resp.Steps[1].DurationMs)
	assert.Equal(t, "launch_app", resp.Steps[2].Command)
}

func TestParseResponseEmpty(t *testing.T) {
	assert.Empty(t, ParseResponse("").Steps)
	assert.Empty(t, ParseResponse("I cannot help with that.").Steps)
}

package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractIntentSingleNavigation(t *testing.T) {
	intent := ExtractIntent("go to home")
	assert.Equal(t, []string{"home"}, intent.Navigation)
	assert.Empty(t, intent.Actions)
	assert.Empty(t, intent.Verifications)
	assert.Equal(t, StructureSingle, intent.Structure)
}

func TestExtractIntentSequenceWithVerification(t *testing.T) {
	intent := ExtractIntent("go to home and check audio")
	assert.Equal(t, []string{"home"}, intent.Navigation)
	assert.Equal(t, []string{"audio"}, intent.Verifications)
	assert.Equal(t, StructureSequence, intent.Structure)
	assert.False(t, intent.HasLoop)
}

func TestExtractIntentLoop(t *testing.T) {
	intent := ExtractIntent("go to live_tv then zap 2 times, for each zap check audio and video")
	assert.True(t, intent.HasLoop)
	assert.Equal(t, 2, intent.LoopCount)
	assert.Equal(t, StructureSequenceWithLoop, intent.Structure)
	assert.Equal(t, []string{"live_tv"}, intent.Navigation)
	assert.Contains(t, intent.Actions, "zap")
	assert.Equal(t, []string{"audio", "video"}, intent.Verifications)
}

func TestExtractIntentTwice(t *testing.T) {
	intent := ExtractIntent("zap twice")
	assert.True(t, intent.HasLoop)
	assert.Equal(t, 2, intent.LoopCount)
}

func TestExtractIntentConditionalWinsStructure(t *testing.T) {
	intent := ExtractIntent("go to settings, if the banner shows press back 3 times")
	assert.True(t, intent.HasConditional)
	assert.True(t, intent.HasLoop)
	assert.Equal(t, StructureConditional, intent.Structure)
}

func TestExtractIntentSequenceFromMultiplePhrases(t *testing.T) {
	// No explicit "then", but two targets still make a sequence.
	intent := ExtractIntent("open settings playback")
	assert.Equal(t, StructureSequence, intent.Structure)
}

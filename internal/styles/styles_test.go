package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creative-studio-server/internal/pipeline"
)

func TestApplyUnknownPresetReturnsError(t *testing.T) {
	_, err := Apply(pipeline.StoryArc{}, Preset("invalid"))
	require.Error(t, err)
	assert.IsType(t, ErrUnknownPreset{}, err)
}

func TestApplyDurationClampedToTenSeconds(t *testing.T) {
	arc := pipeline.StoryArc{RecommendedDuration: 8.0, EmotionalTone: pipeline.ToneRomantic}
	result, err := Apply(arc, PresetRomantic)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.RecommendedDuration, 10.0)
}

func TestApplyColorGradeOverrideOnlyForRomanticAndCinematic(t *testing.T) {
	arc := pipeline.StoryArc{RecommendedDuration: 3, EmotionalTone: pipeline.ToneJoyful}

	romantic, err := Apply(arc, PresetRomantic)
	require.NoError(t, err)
	assert.Equal(t, "vibrant", romantic.ColorGradeApplied)

	energetic, err := Apply(arc, PresetEnergetic)
	require.NoError(t, err)
	assert.Equal(t, "vibrant", energetic.ColorGradeApplied) // already vibrant by default, no override applies
}

func TestApplyTransitionOverrideOnlyForCinematicAndDocumentary(t *testing.T) {
	arc := pipeline.StoryArc{RecommendedDuration: 3, NarrativePosition: pipeline.PositionClimax}

	cinematic, err := Apply(arc, PresetCinematic)
	require.NoError(t, err)
	assert.Equal(t, "cinematic_wipes", cinematic.TransitionApplied)

	romantic, err := Apply(arc, PresetRomantic)
	require.NoError(t, err)
	assert.Equal(t, "soft_crossfade", romantic.TransitionApplied) // not overridable, keeps preset default
}

func TestRecommendSortsDescendingByConfidence(t *testing.T) {
	arc := pipeline.StoryArc{
		EmotionalTone:       pipeline.ToneRomantic,
		SceneClassification: pipeline.SceneIntimateMoments,
		StoryImportance:     0.1,
	}
	ranked := Recommend(arc)
	require.Len(t, ranked, 4)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Confidence, ranked[i].Confidence)
	}
	assert.Equal(t, PresetRomantic, ranked[0].Preset)
}

func TestStyleScoreWithinBounds(t *testing.T) {
	arc := pipeline.StoryArc{
		EmotionalTone:       pipeline.ToneCelebratory,
		SceneClassification: pipeline.SceneParty,
		StoryImportance:     0.9,
	}
	score := StyleScore(arc, PresetEnergetic)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

package storyarc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"creative-studio-server/internal/pipeline"
)

func baseObjects(scene pipeline.Scene) *pipeline.ObjectAnalysis {
	return &pipeline.ObjectAnalysis{
		Duration:            10,
		Counts:              pipeline.NewObjectCounts(),
		Confidence:          map[pipeline.ObjectKind]float64{},
		KeyMoments:          nil,
		SceneClassification: scene,
	}
}

func baseEmotions() *pipeline.EmotionAnalysis {
	return &pipeline.EmotionAnalysis{
		Duration:         10,
		Scores:           pipeline.NewEmotionScores(),
		EmotionalMoments: nil,
		OverallSentiment: pipeline.SentimentNeutral,
		ExcitementLevel:  0,
	}
}

func TestBuildImportanceClampsToOne(t *testing.T) {
	objects := baseObjects(pipeline.SceneCeremony)
	objects.Counts[pipeline.ObjectWeddingRings] = 1
	objects.Counts[pipeline.ObjectWeddingCake] = 1
	objects.Counts[pipeline.ObjectCeremonyMoments] = 1
	objects.Counts[pipeline.ObjectDancing] = 1
	objects.KeyMoments = []float64{1, 2, 3}

	emotions := baseEmotions()
	emotions.Scores[pipeline.EmotionJoy] = 0.9
	emotions.Scores[pipeline.EmotionLove] = 0.9
	emotions.Scores[pipeline.EmotionCelebration] = 0.9

	arc := Build("clip.mp4", objects, emotions, pipeline.StyleTraditional)
	assert.Equal(t, 1.0, arc.StoryImportance)
}

func TestRefineSceneOverridesPartyToIntimateOnTenderness(t *testing.T) {
	objects := baseObjects(pipeline.SceneParty)
	emotions := baseEmotions()
	emotions.Scores[pipeline.EmotionTenderness] = 0.6

	arc := Build("clip.mp4", objects, emotions, pipeline.StyleModern)
	assert.Equal(t, pipeline.SceneIntimateMoments, arc.SceneClassification)
	assert.Equal(t, pipeline.PositionRisingAction, arc.NarrativePosition)
}

func TestRefineSceneReceptionBecomesPartyOnHighExcitement(t *testing.T) {
	objects := baseObjects(pipeline.SceneReception)
	emotions := baseEmotions()
	emotions.ExcitementLevel = 0.9

	arc := Build("clip.mp4", objects, emotions, pipeline.StyleModern)
	assert.Equal(t, pipeline.SceneParty, arc.SceneClassification)
}

func TestNarrativePositionMappingIsFixedRegardlessOfStyle(t *testing.T) {
	objects := baseObjects(pipeline.SceneCeremony)
	emotions := baseEmotions()

	traditional := Build("clip.mp4", objects, emotions, pipeline.StyleTraditional)
	destination := Build("clip.mp4", objects, emotions, pipeline.StyleDestination)

	assert.Equal(t, pipeline.PositionClimax, traditional.NarrativePosition)
	assert.Equal(t, traditional.NarrativePosition, destination.NarrativePosition)
}

func TestEmotionalToneSelectsIntimateOnTendernessAndLove(t *testing.T) {
	objects := baseObjects(pipeline.SceneIntimateMoments)
	emotions := baseEmotions()
	emotions.Scores[pipeline.EmotionTenderness] = 0.8
	emotions.Scores[pipeline.EmotionLove] = 0.7
	emotions.ExcitementLevel = 0.1

	arc := Build("clip.mp4", objects, emotions, pipeline.StyleIntimate)
	assert.Equal(t, pipeline.ToneIntimate, arc.EmotionalTone)
}

func TestRecommendedDurationWithinBounds(t *testing.T) {
	objects := baseObjects(pipeline.SceneCeremony)
	emotions := baseEmotions()
	emotions.Scores[pipeline.EmotionTenderness] = 0.9
	emotions.Scores[pipeline.EmotionLove] = 0.9

	arc := Build("clip.mp4", objects, emotions, pipeline.StyleIntimate)
	assert.GreaterOrEqual(t, arc.RecommendedDuration, 1.0)
	assert.LessOrEqual(t, arc.RecommendedDuration, 8.0)
}

func TestGenerateStoryNotesJoinsApplicableFacts(t *testing.T) {
	objects := baseObjects(pipeline.SceneCeremony)
	objects.Counts[pipeline.ObjectWeddingRings] = 1
	emotions := baseEmotions()
	emotions.Scores[pipeline.EmotionJoy] = 0.9

	arc := Build("clip.mp4", objects, emotions, pipeline.StyleTraditional)
	assert.Contains(t, arc.Notes, "ring exchange")
	assert.Contains(t, arc.Notes, "perfect for highlight")
}

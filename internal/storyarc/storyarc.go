// Package storyarc implements the Story Arc Builder:
// narrative-position/emotional-tone classification, story-importance
// scoring, and recommended-duration calculation for a single clip, given
// its Object Detector and Emotion Analyzer outputs.
//
// Grounded closely on original_source/worker/story_arc_creator.py — a pure
// scoring module with no external I/O, so this is close to a direct port
// of its weights and thresholds rather than a reimplementation.
package storyarc

import "creative-studio-server/internal/pipeline"

// template is a narrative-style's scene structure, used only for the
// narrative-position lookup (the weights/emotional_arc fields the source
// carries are descriptive metadata the Go port doesn't otherwise need).
var narrativePositionByScene = map[pipeline.Scene]pipeline.NarrativePosition{
	pipeline.ScenePreparation:     pipeline.PositionOpening,
	pipeline.SceneCeremony:        pipeline.PositionClimax,
	pipeline.SceneReception:       pipeline.PositionFallingAction,
	pipeline.SceneParty:           pipeline.PositionResolution,
	pipeline.SceneIntimateMoments: pipeline.PositionRisingAction,
	pipeline.SceneScenicMoments:   pipeline.PositionRisingAction,
}

var baseDurations = map[pipeline.Scene]float64{
	pipeline.ScenePreparation:     3.0,
	pipeline.SceneCeremony:        5.0,
	pipeline.SceneReception:       4.0,
	pipeline.SceneParty:           3.0,
	pipeline.SceneIntimateMoments: 4.0,
	pipeline.SceneScenicMoments:   3.0,
}

var toneMultipliers = map[pipeline.EmotionalTone]float64{
	pipeline.ToneRomantic:    1.2,
	pipeline.ToneIntimate:    1.3,
	pipeline.ToneDramatic:    1.1,
	pipeline.ToneJoyful:      0.9,
	pipeline.ToneCelebratory: 0.8,
}

var sceneDescriptions = map[pipeline.Scene]string{
	pipeline.ScenePreparation:     "Getting ready moments with anticipation and excitement",
	pipeline.SceneCeremony:        "The main ceremony with vows, ring exchange, and the kiss",
	pipeline.SceneReception:       "Cocktail hour and dinner with speeches and toasts",
	pipeline.SceneParty:           "Dancing and celebration with high energy",
	pipeline.SceneIntimateMoments: "Romantic and tender moments between the couple",
	pipeline.SceneScenicMoments:   "Beautiful location shots and environmental beauty",
}

// Build creates the story arc for one clip.
func Build(clipPath string, objects *pipeline.ObjectAnalysis, emotions *pipeline.EmotionAnalysis, style pipeline.NarrativeStyle) pipeline.StoryArc {
	scene := refineSceneClassification(objects, emotions)
	importance := calculateStoryImportance(objects, emotions)
	position := narrativePositionFor(scene)
	tone := determineEmotionalTone(emotions, scene)
	duration := recommendedDuration(scene, importance, tone)
	notes := generateStoryNotes(scene, tone, objects, emotions)

	return pipeline.StoryArc{
		ClipPath:            clipPath,
		SceneClassification: scene,
		StoryImportance:     importance,
		NarrativePosition:   position,
		EmotionalTone:       tone,
		RecommendedDuration: duration,
		Notes:               notes,
	}
}

func refineSceneClassification(objects *pipeline.ObjectAnalysis, emotions *pipeline.EmotionAnalysis) pipeline.Scene {
	scene := objects.SceneClassification
	excitement := emotions.ExcitementLevel

	switch {
	case scene == pipeline.SceneCeremony && excitement > 0.7:
		return pipeline.SceneCeremony
	case scene == pipeline.SceneParty && emotions.Scores[pipeline.EmotionTenderness] > 0.5:
		return pipeline.SceneIntimateMoments
	case scene == pipeline.SceneReception && excitement > 0.8:
		return pipeline.SceneParty
	case emotions.Scores[pipeline.EmotionLove] > 0.6 && excitement < 0.4:
		return pipeline.SceneIntimateMoments
	default:
		return scene
	}
}

func calculateStoryImportance(objects *pipeline.ObjectAnalysis, emotions *pipeline.EmotionAnalysis) float64 {
	importance := 0.0

	if objects.Counts[pipeline.ObjectWeddingRings] > 0 {
		importance += 0.3
	}
	if objects.Counts[pipeline.ObjectWeddingCake] > 0 {
		importance += 0.2
	}
	if objects.Counts[pipeline.ObjectCeremonyMoments] > 0 {
		importance += 0.4
	}
	if objects.Counts[pipeline.ObjectDancing] > 0 {
		importance += 0.1
	}

	if emotions.Scores[pipeline.EmotionJoy] > 0.7 {
		importance += 0.2
	}
	if emotions.Scores[pipeline.EmotionLove] > 0.6 {
		importance += 0.3
	}
	if emotions.Scores[pipeline.EmotionCelebration] > 0.7 {
		importance += 0.1
	}

	if len(objects.KeyMoments) > 2 {
		importance += 0.1
	}

	if importance > 1.0 {
		importance = 1.0
	}
	return importance
}

func narrativePositionFor(scene pipeline.Scene) pipeline.NarrativePosition {
	if pos, ok := narrativePositionByScene[scene]; ok {
		return pos
	}
	return pipeline.PositionRisingAction
}

func determineEmotionalTone(emotions *pipeline.EmotionAnalysis, scene pipeline.Scene) pipeline.EmotionalTone {
	excitement := emotions.ExcitementLevel
	scores := map[pipeline.EmotionalTone]float64{
		pipeline.ToneRomantic:    classifyRomantic(emotions.Scores, scene),
		pipeline.ToneJoyful:      classifyJoyful(emotions.Scores, excitement, scene),
		pipeline.ToneDramatic:    classifyDramatic(emotions.Scores, excitement, scene),
		pipeline.ToneIntimate:    classifyIntimateTone(emotions.Scores, excitement),
		pipeline.ToneCelebratory: classifyCelebratory(emotions.Scores, excitement, scene),
	}

	best := pipeline.ToneJoyful
	bestScore := -1.0
	// iterate in a fixed order so ties resolve deterministically, matching
	// the Python dict's insertion-ordered max() tie-break
	for _, tone := range []pipeline.EmotionalTone{pipeline.ToneRomantic, pipeline.ToneJoyful, pipeline.ToneDramatic, pipeline.ToneIntimate, pipeline.ToneCelebratory} {
		if scores[tone] > bestScore {
			bestScore = scores[tone]
			best = tone
		}
	}
	return best
}

func classifyRomantic(emotions map[pipeline.Emotion]float64, scene pipeline.Scene) float64 {
	score := 0.0
	if emotions[pipeline.EmotionLove] > 0.5 {
		score += 0.6
	}
	if emotions[pipeline.EmotionTenderness] > 0.4 {
		score += 0.4
	}
	if scene == pipeline.SceneCeremony || scene == pipeline.SceneIntimateMoments {
		score += 0.3
	}
	return score
}

func classifyJoyful(emotions map[pipeline.Emotion]float64, excitement float64, scene pipeline.Scene) float64 {
	score := 0.0
	if emotions[pipeline.EmotionJoy] > 0.6 {
		score += 0.8
	}
	if excitement > 0.5 {
		score += 0.4
	}
	if scene == pipeline.SceneParty || scene == pipeline.SceneReception {
		score += 0.3
	}
	return score
}

func classifyDramatic(emotions map[pipeline.Emotion]float64, excitement float64, scene pipeline.Scene) float64 {
	score := 0.0
	if emotions[pipeline.EmotionSurprise] > 0.5 {
		score += 0.6
	}
	if scene == pipeline.SceneCeremony {
		score += 0.4
	}
	if excitement > 0.6 {
		score += 0.3
	}
	return score
}

func classifyIntimateTone(emotions map[pipeline.Emotion]float64, excitement float64) float64 {
	score := 0.0
	if emotions[pipeline.EmotionTenderness] > 0.6 {
		score += 0.8
	}
	if emotions[pipeline.EmotionLove] > 0.5 {
		score += 0.6
	}
	if excitement < 0.4 {
		score += 0.4
	}
	return score
}

func classifyCelebratory(emotions map[pipeline.Emotion]float64, excitement float64, scene pipeline.Scene) float64 {
	score := 0.0
	if emotions[pipeline.EmotionCelebration] > 0.6 {
		score += 0.8
	}
	if excitement > 0.7 {
		score += 0.6
	}
	if scene == pipeline.SceneParty || scene == pipeline.SceneReception {
		score += 0.4
	}
	return score
}

func recommendedDuration(scene pipeline.Scene, importance float64, tone pipeline.EmotionalTone) float64 {
	base, ok := baseDurations[scene]
	if !ok {
		base = 3.0
	}

	importanceMultiplier := 0.5 + importance*0.5
	duration := base * importanceMultiplier

	toneMultiplier := 1.0
	if m, ok := toneMultipliers[tone]; ok {
		toneMultiplier = m
	}
	duration *= toneMultiplier

	if duration < 1.0 {
		return 1.0
	}
	if duration > 8.0 {
		return 8.0
	}
	return duration
}

func generateStoryNotes(scene pipeline.Scene, tone pipeline.EmotionalTone, objects *pipeline.ObjectAnalysis, emotions *pipeline.EmotionAnalysis) string {
	var notes []string

	if desc, ok := sceneDescriptions[scene]; ok {
		notes = append(notes, desc)
	} else {
		notes = append(notes, "Wedding moment")
	}

	if objects.Counts[pipeline.ObjectWeddingRings] > 0 {
		notes = append(notes, "Features ring exchange - a key wedding moment")
	}
	if objects.Counts[pipeline.ObjectWeddingCake] > 0 {
		notes = append(notes, "Includes cake cutting ceremony")
	}
	if objects.Counts[pipeline.ObjectDancing] > 0 {
		notes = append(notes, "Shows dancing and celebration")
	}
	if objects.Counts[pipeline.ObjectPeople] > 3 {
		notes = append(notes, "Features multiple people - great for group shots")
	}

	if emotions.Scores[pipeline.EmotionJoy] > 0.7 {
		notes = append(notes, "High joy and happiness - perfect for highlight")
	}
	if emotions.Scores[pipeline.EmotionLove] > 0.6 {
		notes = append(notes, "Romantic and loving moments")
	}
	if emotions.Scores[pipeline.EmotionCelebration] > 0.7 {
		notes = append(notes, "Celebratory and festive atmosphere")
	}

	if len(objects.KeyMoments) > 2 {
		notes = append(notes, "Contains multiple key moments")
	}

	joined := notes[0]
	for _, n := range notes[1:] {
		joined += "; " + n
	}
	return joined
}

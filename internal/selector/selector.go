// Package selector implements the Content Selector: per-clip
// analysis orchestration (full or fast mode), final-score fusion, a
// SelectionResult cache, and batch-with-early-exit best-clip selection.
//
// Grounded on original_source/worker/ai_content_selector.py's
// AIContentSelector, in particular analyze_clip/analyze_clip_fast,
// _calculate_final_score(_fast), _generate_selection_reason, and
// _select_best_clips_batch's batching and early-exit rule.
package selector

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"creative-studio-server/internal/emotionanalyzer"
	"creative-studio-server/internal/objectdetector"
	"creative-studio-server/internal/pipeline"
	"creative-studio-server/internal/storyarc"
	"creative-studio-server/internal/styles"
	"creative-studio-server/internal/visionenricher"
	"creative-studio-server/pkg/videoengine"
)

// Mode selects between the full and fast analysis paths.
type Mode string

const (
	ModeFull Mode = "full"
	ModeFast Mode = "fast"
)

// ObjectDetector is the subset of objectdetector.Detector the selector
// needs, kept as a local interface so tests can substitute a fake without
// constructing a real ffmpeg-backed gateway.
type ObjectDetector interface {
	Analyze(ctx context.Context, videoPath string) (*pipeline.ObjectAnalysis, error)
}

// EmotionAnalyzer is the subset of emotionanalyzer.Analyzer the selector
// needs.
type EmotionAnalyzer interface {
	Analyze(ctx context.Context, videoPath string) *pipeline.EmotionAnalysis
}

// Vision is the subset of visionenricher.Enricher the selector needs.
type Vision interface {
	Enabled() bool
	AnalyzeThumbnail(ctx context.Context, imagePath string) *visionenricher.Hints
}

// ThumbnailExtractor generates a single still frame for the Vision
// Enricher, matching the source's `_extract_thumbnail` ffmpeg call.
type ThumbnailExtractor interface {
	GenerateThumbnail(ctx context.Context, inputPath, outputPath string, timeOffset float64) error
}

var _ ObjectDetector = (*objectdetector.Detector)(nil)
var _ EmotionAnalyzer = (*emotionanalyzer.Analyzer)(nil)
var _ Vision = (*visionenricher.Enricher)(nil)
var _ ThumbnailExtractor = (*videoengine.Gateway)(nil)

// Selector fuses Object/Emotion/Story-Arc/Style analyses into scored
// SelectionResults and selects the best clips from a candidate set.
type Selector struct {
	objects    ObjectDetector
	emotions   EmotionAnalyzer
	vision     Vision
	thumbnails ThumbnailExtractor
	cache      Cache
	tempDir    string
}

func New(objects ObjectDetector, emotions EmotionAnalyzer, vision Vision, thumbnails ThumbnailExtractor, cache Cache, tempDir string) *Selector {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Selector{objects: objects, emotions: emotions, vision: vision, thumbnails: thumbnails, cache: cache, tempDir: tempDir}
}

// ClearCache forces every subsequent analyze* call to recompute rather than
// reuse a cached SelectionResult.
func (s *Selector) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// Analyze runs the full analysis path: Object ∥ Emotion, optional Vision
// enrichment, then Story Arc, then Style Preset, then final-score fusion.
func (s *Selector) Analyze(ctx context.Context, clipPath string, style pipeline.NarrativeStyle, preset styles.Preset) (pipeline.SelectionResult, error) {
	key := CacheKey{ClipPath: clipPath, Style: style, Preset: string(preset), Mode: string(ModeFull), CacheVersion: DefaultCacheVersion}
	if cached, ok := s.cache.Get(ctx, key); ok {
		return *cached, nil
	}

	objects, emotions, err := s.analyzeBase(ctx, clipPath)
	if err != nil {
		return pipeline.SelectionResult{}, err
	}

	objects, emotions = s.maybeEnrichWithVision(ctx, clipPath, objects, emotions)

	result := s.fuse(clipPath, objects, emotions, style, preset, ModeFull)
	s.cache.Set(ctx, key, result)
	return result, nil
}

// AnalyzeFast skips the Emotion Analyzer, injecting a neutral default, for
// the faster background-job analysis path.
func (s *Selector) AnalyzeFast(ctx context.Context, clipPath string, style pipeline.NarrativeStyle, preset styles.Preset) (pipeline.SelectionResult, error) {
	key := CacheKey{ClipPath: clipPath, Style: style, Preset: string(preset), Mode: string(ModeFast), CacheVersion: DefaultCacheVersion}
	if cached, ok := s.cache.Get(ctx, key); ok {
		return *cached, nil
	}

	objects, err := s.objects.Analyze(ctx, clipPath)
	if err != nil {
		return pipeline.SelectionResult{}, err
	}
	emotions := neutralEmotions(objects.Duration)

	objects, emotions = s.maybeEnrichWithVision(ctx, clipPath, objects, emotions)

	result := s.fuse(clipPath, objects, emotions, style, preset, ModeFast)
	s.cache.Set(ctx, key, result)
	return result, nil
}

func (s *Selector) analyzeBase(ctx context.Context, clipPath string) (*pipeline.ObjectAnalysis, *pipeline.EmotionAnalysis, error) {
	var objects *pipeline.ObjectAnalysis
	var emotions *pipeline.EmotionAnalysis

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o, err := s.objects.Analyze(gctx, clipPath)
		objects = o
		return err
	})
	g.Go(func() error {
		emotions = s.emotions.Analyze(gctx, clipPath)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return objects, emotions, nil
}

func neutralEmotions(duration float64) *pipeline.EmotionAnalysis {
	scores := pipeline.NewEmotionScores()
	return &pipeline.EmotionAnalysis{
		Duration:         duration,
		Scores:           scores,
		EmotionalMoments: []pipeline.EmotionalMoment{{Timestamp: 0, Emotion: "neutral", Confidence: 0.5}},
		OverallSentiment: pipeline.SentimentNeutral,
		ExcitementLevel:  0.3,
	}
}

// maybeEnrichWithVision calls the Vision Enricher on a first-frame
// thumbnail and merges hints into the object/emotion analyses, matching
// _maybe_enrich_with_vision/_merge_vision_hints. Any failure leaves the
// analyses untouched.
func (s *Selector) maybeEnrichWithVision(ctx context.Context, clipPath string, objects *pipeline.ObjectAnalysis, emotions *pipeline.EmotionAnalysis) (*pipeline.ObjectAnalysis, *pipeline.EmotionAnalysis) {
	if s.vision == nil || !s.vision.Enabled() || s.thumbnails == nil {
		return objects, emotions
	}

	thumbPath, err := s.extractThumbnail(ctx, clipPath)
	if err != nil || thumbPath == "" {
		return objects, emotions
	}
	defer os.Remove(thumbPath)

	hints := s.vision.AnalyzeThumbnail(ctx, thumbPath)
	if hints == nil {
		return objects, emotions
	}
	return mergeVisionHints(objects, emotions, hints)
}

func (s *Selector) extractThumbnail(ctx context.Context, clipPath string) (string, error) {
	dir, err := os.MkdirTemp(s.tempDir, "cs_thumb_")
	if err != nil {
		return "", err
	}
	out := dir + "/thumb.jpg"
	if err := s.thumbnails.GenerateThumbnail(ctx, clipPath, out, 0); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return out, nil
}

var visionSubjectMapping = map[string]pipeline.ObjectKind{
	"rings":  pipeline.ObjectWeddingRings,
	"cake":   pipeline.ObjectWeddingCake,
	"dance":  pipeline.ObjectDancing,
	"toast":  pipeline.ObjectToastMoments,
	"bouquet": pipeline.ObjectBouquet,
	"guests": pipeline.ObjectPeople,
	"bride":  pipeline.ObjectPeople,
	"groom":  pipeline.ObjectPeople,
}

var positiveTones = map[pipeline.EmotionalTone]bool{
	pipeline.ToneRomantic:    true,
	pipeline.ToneJoyful:      true,
	pipeline.ToneIntimate:    true,
	pipeline.ToneCelebratory: true,
}

func mergeVisionHints(objects *pipeline.ObjectAnalysis, emotions *pipeline.EmotionAnalysis, hints *visionenricher.Hints) (*pipeline.ObjectAnalysis, *pipeline.EmotionAnalysis) {
	mergedObjects := *objects
	mergedObjects.Counts = cloneObjectCounts(objects.Counts)
	if hints.Scene != "" {
		mergedObjects.SceneClassification = hints.Scene
	}
	for _, subject := range hints.Subjects {
		if kind, ok := visionSubjectMapping[strings.ToLower(subject)]; ok {
			mergedObjects.Counts[kind]++
		}
	}

	mergedEmotions := *emotions
	mergedEmotions.Scores = cloneEmotionScores(emotions.Scores)
	if hints.Emotion != "" {
		key := pipeline.Emotion(hints.Emotion)
		if mergedEmotions.Scores[key] < 0.6 {
			mergedEmotions.Scores[key] = 0.6
		}
		if positiveTones[hints.Emotion] {
			mergedEmotions.OverallSentiment = pipeline.SentimentPositive
			if mergedEmotions.ExcitementLevel < 0.5 {
				mergedEmotions.ExcitementLevel = 0.5
			}
		}
	}

	return &mergedObjects, &mergedEmotions
}

func cloneObjectCounts(src map[pipeline.ObjectKind]int) map[pipeline.ObjectKind]int {
	dst := make(map[pipeline.ObjectKind]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneEmotionScores(src map[pipeline.Emotion]float64) map[pipeline.Emotion]float64 {
	dst := make(map[pipeline.Emotion]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (s *Selector) fuse(clipPath string, objects *pipeline.ObjectAnalysis, emotions *pipeline.EmotionAnalysis, style pipeline.NarrativeStyle, preset styles.Preset, mode Mode) pipeline.SelectionResult {
	arc := storyarc.Build(clipPath, objects, emotions, style)
	styleResult, err := styles.Apply(arc, preset)
	if err != nil {
		styleResult = styles.Result{ClipPath: clipPath, AppliedStyle: preset, RecommendedDuration: arc.RecommendedDuration}
	}

	var finalScore float64
	if mode == ModeFast {
		finalScore = calculateFinalScoreFast(objects, arc)
	} else {
		finalScore = calculateFinalScore(objects, emotions, arc, styleResult)
	}

	reason := generateSelectionReason(objects, emotions, arc, finalScore)

	return pipeline.SelectionResult{
		ClipPath:        clipPath,
		Object:          *objects,
		Emotion:         *emotions,
		Arc:             arc,
		StylePreset:     string(styleResult.AppliedStyle),
		FinalScore:      finalScore,
		SelectionReason: reason,
	}
}

func calculateFinalScoreFast(objects *pipeline.ObjectAnalysis, arc pipeline.StoryArc) float64 {
	objectScore := minF(float64(len(objects.KeyMoments))/10.0, 1.0)
	score := objectScore*0.5 + arc.StoryImportance*0.3 + 0.5*0.2
	return minF(score, 1.0)
}

func calculateFinalScore(objects *pipeline.ObjectAnalysis, emotions *pipeline.EmotionAnalysis, arc pipeline.StoryArc, styleResult styles.Result) float64 {
	score := calculateObjectScore(objects)*0.3 +
		calculateEmotionScore(emotions)*0.25 +
		calculateStoryScore(arc)*0.25 +
		styles.StyleScore(arc, styleResult.AppliedStyle)*0.2
	return minF(score, 1.0)
}

func calculateObjectScore(objects *pipeline.ObjectAnalysis) float64 {
	score := 0.0
	if objects.Counts[pipeline.ObjectWeddingRings] > 0 {
		score += 0.4
	}
	if objects.Counts[pipeline.ObjectWeddingCake] > 0 {
		score += 0.3
	}
	if objects.Counts[pipeline.ObjectCeremonyMoments] > 0 {
		score += 0.5
	}
	if objects.Counts[pipeline.ObjectDancing] > 0 {
		score += 0.2
	}
	if objects.Counts[pipeline.ObjectPeople] > 2 {
		score += 0.1
	}

	keyMoments := len(objects.KeyMoments)
	switch {
	case keyMoments > 3:
		score += 0.2
	case keyMoments > 1:
		score += 0.1
	}

	return minF(score, 1.0)
}

func calculateEmotionScore(emotions *pipeline.EmotionAnalysis) float64 {
	score := 0.0
	if emotions.Scores[pipeline.EmotionJoy] > 0.6 {
		score += 0.3
	}
	if emotions.Scores[pipeline.EmotionLove] > 0.5 {
		score += 0.4
	}
	if emotions.Scores[pipeline.EmotionCelebration] > 0.6 {
		score += 0.2
	}
	if emotions.Scores[pipeline.EmotionTenderness] > 0.5 {
		score += 0.3
	}

	switch {
	case emotions.ExcitementLevel > 0.7:
		score += 0.2
	case emotions.ExcitementLevel > 0.4:
		score += 0.1
	}

	switch emotions.OverallSentiment {
	case pipeline.SentimentPositive:
		score += 0.2
	case pipeline.SentimentNeutral:
		score += 0.1
	}

	if len(emotions.EmotionalMoments) > 2 {
		score += 0.1
	}

	return minF(score, 1.0)
}

var sceneScoreTable = map[pipeline.Scene]float64{
	pipeline.SceneCeremony:        0.9,
	pipeline.SceneIntimateMoments: 0.8,
	pipeline.ScenePreparation:     0.6,
	pipeline.SceneReception:       0.7,
	pipeline.SceneParty:           0.5,
	pipeline.SceneScenicMoments:   0.4,
}

var toneScoreTable = map[pipeline.EmotionalTone]float64{
	pipeline.ToneRomantic:    0.9,
	pipeline.ToneIntimate:    0.8,
	pipeline.ToneJoyful:      0.7,
	pipeline.ToneDramatic:    0.6,
	pipeline.ToneCelebratory: 0.5,
}

var positionScoreTable = map[pipeline.NarrativePosition]float64{
	pipeline.PositionClimax:        0.9,
	pipeline.PositionRisingAction:  0.8,
	pipeline.PositionOpening:       0.6,
	pipeline.PositionFallingAction: 0.7,
	pipeline.PositionResolution:    0.5,
}

func calculateStoryScore(arc pipeline.StoryArc) float64 {
	score := arc.StoryImportance * 0.4
	score += lookupOr(sceneScoreTable, arc.SceneClassification, 0.5) * 0.3
	score += lookupOr(toneScoreTable, arc.EmotionalTone, 0.5) * 0.2
	score += lookupOr(positionScoreTable, arc.NarrativePosition, 0.5) * 0.1
	return minF(score, 1.0)
}

func lookupOr[K comparable](table map[K]float64, key K, fallback float64) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return fallback
}

func generateSelectionReason(objects *pipeline.ObjectAnalysis, emotions *pipeline.EmotionAnalysis, arc pipeline.StoryArc, finalScore float64) string {
	var reasons []string

	if objects.Counts[pipeline.ObjectWeddingRings] >= 2 {
		reasons = append(reasons, "features ring exchange")
	}
	if objects.Counts[pipeline.ObjectWeddingCake] >= 2 {
		reasons = append(reasons, "includes cake cutting")
	}
	if objects.Counts[pipeline.ObjectCeremonyMoments] >= 3 {
		reasons = append(reasons, "shows ceremony moments")
	}
	if objects.Counts[pipeline.ObjectDancing] >= 2 {
		reasons = append(reasons, "captures dancing")
	}
	if objects.Counts[pipeline.ObjectPeople] >= 5 {
		reasons = append(reasons, "shows wedding party")
	}

	if emotions.Scores[pipeline.EmotionJoy] > 0.7 {
		reasons = append(reasons, "high joy and happiness")
	}
	if emotions.Scores[pipeline.EmotionLove] > 0.6 {
		reasons = append(reasons, "romantic and loving")
	}
	if emotions.Scores[pipeline.EmotionCelebration] > 0.7 {
		reasons = append(reasons, "celebratory atmosphere")
	}

	if arc.StoryImportance > 0.7 {
		reasons = append(reasons, "high story importance")
	}
	if arc.EmotionalTone == pipeline.ToneRomantic {
		reasons = append(reasons, "romantic tone")
	}
	if arc.EmotionalTone == pipeline.ToneIntimate {
		reasons = append(reasons, "intimate moment")
	}
	if arc.NarrativePosition == pipeline.PositionClimax {
		reasons = append(reasons, "climactic moment")
	}

	if len(objects.KeyMoments) > 3 {
		reasons = append(reasons, fmt.Sprintf("%d key moments", len(objects.KeyMoments)))
	}

	switch {
	case finalScore > 0.8:
		reasons = append(reasons, "excellent overall quality")
	case finalScore > 0.6:
		reasons = append(reasons, "good quality")
	default:
		reasons = append(reasons, "decent quality")
	}

	if len(reasons) == 0 {
		if objects.Counts[pipeline.ObjectPeople] > 0 {
			reasons = append(reasons, "shows people")
		}
		if arc.StoryImportance > 0.3 {
			reasons = append(reasons, "story relevance")
		}
		reasons = append(reasons, "meets basic criteria")
	}

	return strings.Join(reasons, ", ")
}

// SelectBest runs analyze (or analyzeFast) over clips in fixed-size
// batches, with an early exit once at least 2*targetCount clips have been
// analyzed and at least targetCount of them score above 0.6 — the exact
// rule in _select_best_clips_batch. Results are sorted by final score
// descending and truncated to targetCount.
func (s *Selector) SelectBest(ctx context.Context, clips []string, targetCount, batchSize int, style pipeline.NarrativeStyle, preset styles.Preset, fast bool) ([]pipeline.SelectionResult, error) {
	if batchSize <= 0 {
		batchSize = 4
	}

	var all []pipeline.SelectionResult
	for start := 0; start < len(clips); start += batchSize {
		if ctx.Err() != nil {
			break
		}
		end := start + batchSize
		if end > len(clips) {
			end = len(clips)
		}
		batch := clips[start:end]

		results, errs := pipeline.RunBatches(ctx, batch, len(batch), func(ctx context.Context, clip string) (pipeline.SelectionResult, error) {
			if fast {
				return s.AnalyzeFast(ctx, clip, style, preset)
			}
			return s.Analyze(ctx, clip, style, preset)
		}, nil)

		for i, r := range results {
			if errs[i] == nil {
				all = append(all, r)
			}
		}

		if len(all) >= targetCount*2 {
			highQuality := 0
			for _, r := range all {
				if r.FinalScore > 0.6 {
					highQuality++
				}
			}
			if highQuality >= targetCount {
				break
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].FinalScore > all[j].FinalScore })
	if len(all) > targetCount {
		all = all[:targetCount]
	}
	return all, nil
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

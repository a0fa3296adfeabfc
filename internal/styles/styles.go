// Package styles implements the Style Preset engine:
// four named editing styles, each carrying a color grade, a transition
// style, and duration/focus preferences, applied to a clip's story arc to
// produce hints consumed by the Content Selector's style sub-score. The
// FFmpeg filter strings for each color grade and transition are exposed via
// FFmpegColorFilter/FFmpegTransitionFilter; the Assembler does not apply
// them when rendering.
//
// Grounded on original_source/worker/style_presets.py's StylePresetEngine.
package styles

import "creative-studio-server/internal/pipeline"

// Preset names the four style families.
type Preset string

const (
	PresetRomantic    Preset = "romantic"
	PresetEnergetic   Preset = "energetic"
	PresetCinematic   Preset = "cinematic"
	PresetDocumentary Preset = "documentary"
)

// AllPresets lists every preset in a stable order, matching the Python
// dict's insertion order (used for Recommend's tie-stable iteration).
var AllPresets = []Preset{PresetRomantic, PresetEnergetic, PresetCinematic, PresetDocumentary}

// durationPreference enumerates how a preset prefers clip length.
type durationPreference string

const (
	durationLonger  durationPreference = "longer"
	durationShorter durationPreference = "shorter"
	durationVaried  durationPreference = "varied"
	durationMedium  durationPreference = "medium"
)

// config is a preset's fixed parameters.
type config struct {
	displayName         string
	colorGrade          string
	transitionStyle     string
	musicTempo          string
	durationPreference  durationPreference
	focusPriority       string
	transitionDuration  float64
	colorSaturation     float64
	colorWarmth         float64
	contrastLevel       float64
	brightnessOffset    float64
	overridableByTone   bool // only "romantic" and "cinematic" presets
	overridableByBeat   bool // only "cinematic" and "documentary" presets
}

var presets = map[Preset]config{
	PresetRomantic: {
		displayName: "Romantic", colorGrade: "warm_tones", transitionStyle: "soft_crossfade",
		musicTempo: "slow_to_medium", durationPreference: durationLonger, focusPriority: "emotional_moments",
		transitionDuration: 0.8, colorSaturation: 1.1, colorWarmth: 1.2, contrastLevel: 0.9, brightnessOffset: 0.1,
		overridableByTone: true,
	},
	PresetEnergetic: {
		displayName: "Energetic", colorGrade: "vibrant", transitionStyle: "quick_cuts",
		musicTempo: "fast", durationPreference: durationShorter, focusPriority: "action_moments",
		transitionDuration: 0.2, colorSaturation: 1.3, colorWarmth: 1.0, contrastLevel: 1.1, brightnessOffset: 0.0,
	},
	PresetCinematic: {
		displayName: "Cinematic", colorGrade: "film_look", transitionStyle: "cinematic_wipes",
		musicTempo: "dramatic", durationPreference: durationVaried, focusPriority: "story_beats",
		transitionDuration: 1.2, colorSaturation: 0.9, colorWarmth: 1.1, contrastLevel: 1.2, brightnessOffset: -0.1,
		overridableByTone: true, overridableByBeat: true,
	},
	PresetDocumentary: {
		displayName: "Documentary", colorGrade: "natural", transitionStyle: "fade",
		musicTempo: "moderate", durationPreference: durationMedium, focusPriority: "authentic_moments",
		transitionDuration: 0.5, colorSaturation: 1.0, colorWarmth: 1.0, contrastLevel: 1.0, brightnessOffset: 0.0,
		overridableByBeat: true,
	},
}

type colorGradeInfo struct {
	description  string
	ffmpegFilter string
}

// ColorGrades maps every color grade name to its description and FFmpeg
// filter string (the filter string is returned by FFmpegColorFilter).
var ColorGrades = map[string]colorGradeInfo{
	"warm_tones": {"Warm, golden tones perfect for romantic moments",
		"colorbalance=rs=0.1:gs=0.05:bs=-0.1:rm=0.1:gm=0.05:bm=-0.1"},
	"vibrant": {"Bright, saturated colors for energetic moments",
		"eq=saturation=1.3:contrast=1.1"},
	"film_look": {"Cinematic film look with enhanced contrast",
		"colorbalance=rs=0.05:gs=0.02:bs=-0.05:rm=0.05:gm=0.02:bm=-0.05,eq=contrast=1.2"},
	"natural": {"Natural colors with minimal processing",
		"eq=saturation=1.0:contrast=1.0"},
}

type transitionInfo struct {
	description  string
	ffmpegFilter string
	duration     float64
}

// TransitionStyles maps every transition style name to its description,
// FFmpeg filter, and default duration.
var TransitionStyles = map[string]transitionInfo{
	"soft_crossfade": {"Soft crossfade between clips", "xfade=transition=fade:duration=0.8:offset=0", 0.8},
	"quick_cuts":     {"Quick cuts with minimal transition", "xfade=transition=wipeleft:duration=0.2:offset=0", 0.2},
	"cinematic_wipes": {"Cinematic wipe transitions", "xfade=transition=wiperight:duration=1.2:offset=0", 1.2},
	"fade":           {"Simple fade transitions", "xfade=transition=fade:duration=0.5:offset=0", 0.5},
}

var durationMultipliers = map[durationPreference]float64{
	durationLonger:  1.3,
	durationShorter: 0.7,
	durationVaried:  1.0,
	durationMedium:  1.0,
}

var toneColorOverrides = map[pipeline.EmotionalTone]string{
	pipeline.ToneRomantic:    "warm_tones",
	pipeline.ToneJoyful:      "vibrant",
	pipeline.ToneDramatic:    "film_look",
	pipeline.ToneIntimate:    "warm_tones",
	pipeline.ToneCelebratory: "vibrant",
}

var positionTransitionOverrides = map[pipeline.NarrativePosition]string{
	pipeline.PositionOpening:       "fade",
	pipeline.PositionRisingAction:  "soft_crossfade",
	pipeline.PositionClimax:        "cinematic_wipes",
	pipeline.PositionFallingAction: "soft_crossfade",
	pipeline.PositionResolution:    "fade",
}

var focusDescriptions = map[string]string{
	"emotional_moments": "Focus on emotional and romantic moments",
	"action_moments":    "Focus on dynamic and energetic moments",
	"story_beats":       "Focus on key story moments and narrative flow",
	"authentic_moments":  "Focus on natural and authentic moments",
}

var durationDescriptions = map[durationPreference]string{
	durationLonger:  "Longer clips for emotional impact",
	durationShorter: "Shorter clips for fast-paced editing",
	durationVaried:  "Varied clip lengths for dynamic pacing",
	durationMedium:  "Medium-length clips for balanced pacing",
}

// ErrUnknownPreset reports a preset name that isn't one of the four
// registered families.
type ErrUnknownPreset struct{ Name string }

func (e ErrUnknownPreset) Error() string { return "styles: unknown preset \"" + e.Name + "\"" }

// Result is the outcome of applying a preset to one clip's story arc.
type Result struct {
	ClipPath            string
	AppliedStyle        Preset
	ColorGradeApplied   string
	TransitionApplied   string
	RecommendedDuration float64
	Notes               string
}

// Apply adjusts a story arc's recommended duration, resolves the color
// grade and transition style (applying the tone/position overrides only
// where the original allows them), and produces a human-readable notes
// string.
func Apply(arc pipeline.StoryArc, preset Preset) (Result, error) {
	cfg, ok := presets[preset]
	if !ok {
		return Result{}, ErrUnknownPreset{Name: string(preset)}
	}

	duration := adjustDuration(arc.RecommendedDuration, cfg)
	colorGrade := selectColorGrade(arc, preset, cfg)
	transition := selectTransitionStyle(arc, preset, cfg)
	notes := generateStyleNotes(cfg, colorGrade, transition)

	return Result{
		ClipPath:            arc.ClipPath,
		AppliedStyle:        preset,
		ColorGradeApplied:   colorGrade,
		TransitionApplied:   transition,
		RecommendedDuration: duration,
		Notes:               notes,
	}, nil
}

func adjustDuration(base float64, cfg config) float64 {
	multiplier, ok := durationMultipliers[cfg.durationPreference]
	if !ok {
		multiplier = 1.0
	}
	adjusted := base * multiplier
	if adjusted < 1.0 {
		return 1.0
	}
	if adjusted > 10.0 {
		return 10.0
	}
	return adjusted
}

func selectColorGrade(arc pipeline.StoryArc, preset Preset, cfg config) string {
	if !cfg.overridableByTone {
		return cfg.colorGrade
	}
	if suggested, ok := toneColorOverrides[arc.EmotionalTone]; ok {
		return suggested
	}
	return cfg.colorGrade
}

func selectTransitionStyle(arc pipeline.StoryArc, preset Preset, cfg config) string {
	if !cfg.overridableByBeat {
		return cfg.transitionStyle
	}
	if suggested, ok := positionTransitionOverrides[arc.NarrativePosition]; ok {
		return suggested
	}
	return cfg.transitionStyle
}

func generateStyleNotes(cfg config, colorGrade, transition string) string {
	notes := []string{"Applied " + cfg.displayName + " style"}

	if info, ok := ColorGrades[colorGrade]; ok {
		notes = append(notes, "Color: "+info.description)
	}
	if info, ok := TransitionStyles[transition]; ok {
		notes = append(notes, "Transitions: "+info.description)
	}

	focus, ok := focusDescriptions[cfg.focusPriority]
	if !ok {
		focus = "Standard focus"
	}
	notes = append(notes, focus)

	durationDesc, ok := durationDescriptions[cfg.durationPreference]
	if !ok {
		durationDesc = "Standard duration"
	}
	notes = append(notes, durationDesc)

	joined := notes[0]
	for _, n := range notes[1:] {
		joined += "; " + n
	}
	return joined
}

// PresetScore pairs a preset with its recommendation confidence.
type PresetScore struct {
	Preset     Preset
	Confidence float64
}

var toneScores = map[pipeline.EmotionalTone]map[Preset]float64{
	pipeline.ToneRomantic: {
		PresetRomantic: 0.9, PresetCinematic: 0.7, PresetDocumentary: 0.5, PresetEnergetic: 0.2,
	},
	pipeline.ToneJoyful: {
		PresetEnergetic: 0.9, PresetDocumentary: 0.6, PresetRomantic: 0.4, PresetCinematic: 0.5,
	},
	pipeline.ToneDramatic: {
		PresetCinematic: 0.9, PresetRomantic: 0.6, PresetDocumentary: 0.4, PresetEnergetic: 0.3,
	},
	pipeline.ToneIntimate: {
		PresetRomantic: 0.9, PresetDocumentary: 0.7, PresetCinematic: 0.5, PresetEnergetic: 0.1,
	},
	pipeline.ToneCelebratory: {
		PresetEnergetic: 0.9, PresetDocumentary: 0.6, PresetRomantic: 0.4, PresetCinematic: 0.5,
	},
}

var sceneScores = map[pipeline.Scene]map[Preset]float64{
	pipeline.ScenePreparation: {
		PresetDocumentary: 0.8, PresetRomantic: 0.6, PresetCinematic: 0.5, PresetEnergetic: 0.3,
	},
	pipeline.SceneCeremony: {
		PresetCinematic: 0.9, PresetRomantic: 0.8, PresetDocumentary: 0.6, PresetEnergetic: 0.2,
	},
	pipeline.SceneReception: {
		PresetDocumentary: 0.7, PresetEnergetic: 0.6, PresetRomantic: 0.5, PresetCinematic: 0.4,
	},
	pipeline.SceneParty: {
		PresetEnergetic: 0.9, PresetDocumentary: 0.6, PresetCinematic: 0.5, PresetRomantic: 0.3,
	},
	pipeline.SceneIntimateMoments: {
		PresetRomantic: 0.9, PresetDocumentary: 0.7, PresetCinematic: 0.6, PresetEnergetic: 0.1,
	},
	pipeline.SceneScenicMoments: {
		PresetCinematic: 0.8, PresetDocumentary: 0.7, PresetRomantic: 0.5, PresetEnergetic: 0.2,
	},
}

// Recommend ranks all four presets by a weighted score over emotional
// tone (0.4), scene classification (0.3), and a story-importance bonus
// (+0.2 cinematic above 0.7 importance, +0.2 documentary below 0.3),
// sorted by descending confidence. Ties keep AllPresets order
// (stableSortDescending, a stable insertion sort), matching the stability
// of Python's list.sort.
func Recommend(arc pipeline.StoryArc) []PresetScore {
	scores := make([]PresetScore, 0, len(AllPresets))
	toneRow := toneScores[arc.EmotionalTone]
	sceneRow := sceneScores[arc.SceneClassification]

	for _, preset := range AllPresets {
		score := toneRow[preset]*0.4 + sceneRow[preset]*0.3

		switch {
		case arc.StoryImportance > 0.7 && preset == PresetCinematic:
			score += 0.2
		case arc.StoryImportance < 0.3 && preset == PresetDocumentary:
			score += 0.2
		}

		scores = append(scores, PresetScore{Preset: preset, Confidence: score})
	}

	stableSortDescending(scores)
	return scores
}

func stableSortDescending(scores []PresetScore) {
	for i := 1; i < len(scores); i++ {
		for j := i; j > 0 && scores[j].Confidence > scores[j-1].Confidence; j-- {
			scores[j], scores[j-1] = scores[j-1], scores[j]
		}
	}
}

// StyleScore computes the Content Selector's 0.2-weighted style sub-score
//: 0.5 baseline, +0.2 if the preset's applied color
// grade matches the arc's emotional-tone-suggested grade, +0.3 if the
// preset ranks first in Recommend, clamped to [0,1].
func StyleScore(arc pipeline.StoryArc, preset Preset) float64 {
	result, err := Apply(arc, preset)
	if err != nil {
		return 0.5
	}

	score := 0.5
	if suggested, ok := toneColorOverrides[arc.EmotionalTone]; ok && suggested == result.ColorGradeApplied {
		score += 0.2
	}

	ranked := Recommend(arc)
	if len(ranked) > 0 && ranked[0].Preset == preset {
		score += 0.3
	}

	if score > 1.0 {
		return 1.0
	}
	if score < 0.0 {
		return 0.0
	}
	return score
}

// FFmpegColorFilter returns the FFmpeg filter string for a color grade,
// falling back to a neutral eq filter for an unrecognized name.
func FFmpegColorFilter(colorGrade string) string {
	if info, ok := ColorGrades[colorGrade]; ok {
		return info.ffmpegFilter
	}
	return "eq=saturation=1.0:contrast=1.0"
}

// FFmpegTransitionFilter returns the FFmpeg filter string for a transition
// style, falling back to a plain fade for an unrecognized name.
func FFmpegTransitionFilter(transitionStyle string) string {
	if info, ok := TransitionStyles[transitionStyle]; ok {
		return info.ffmpegFilter
	}
	return "xfade=transition=fade:duration=0.5:offset=0"
}

// Package pipeline holds the data model and cross-cutting primitives shared
// by every stage of the assemble/conform pipeline: closed enumerations for
// object kinds, emotions, scenes, narrative positions and tones, the
// per-clip analysis structs, the timeline and job shapes, and a bounded
// worker pool used for batched per-clip analysis.
package pipeline

import "time"

// ObjectKind enumerates the wedding-domain objects the Object Detector
// recognizes. Closed over the source's string-keyed dict.
type ObjectKind string

const (
	ObjectWeddingRings    ObjectKind = "wedding_rings"
	ObjectWeddingCake     ObjectKind = "wedding_cake"
	ObjectDancing         ObjectKind = "dancing"
	ObjectBouquet         ObjectKind = "bouquet"
	ObjectCeremonyMoments ObjectKind = "ceremony_moments"
	ObjectToastMoments    ObjectKind = "toast_moments"
	ObjectPeople          ObjectKind = "people"
)

// AllObjectKinds lists every recognized kind in a stable order, used when
// initializing zero-valued count maps so downstream code never has to
// guard against a missing key.
var AllObjectKinds = []ObjectKind{
	ObjectWeddingRings, ObjectWeddingCake, ObjectDancing, ObjectBouquet,
	ObjectCeremonyMoments, ObjectToastMoments, ObjectPeople,
}

// Emotion enumerates the emotion categories scored per clip.
type Emotion string

const (
	EmotionJoy         Emotion = "joy"
	EmotionSurprise    Emotion = "surprise"
	EmotionLove        Emotion = "love"
	EmotionExcitement  Emotion = "excitement"
	EmotionTenderness  Emotion = "tenderness"
	EmotionCelebration Emotion = "celebration"
)

var AllEmotions = []Emotion{
	EmotionJoy, EmotionSurprise, EmotionLove, EmotionExcitement,
	EmotionTenderness, EmotionCelebration,
}

// Scene enumerates the scene classifications used by the Object Detector
// and refined by the Story Arc Builder.
type Scene string

const (
	SceneCeremony        Scene = "ceremony"
	SceneReception       Scene = "reception"
	SceneParty           Scene = "party"
	ScenePreparation     Scene = "preparation"
	SceneIntimateMoments Scene = "intimate_moments"
	SceneScenicMoments   Scene = "scenic_moments"
)

// NarrativePosition enumerates where a clip sits in the overall story arc.
type NarrativePosition string

const (
	PositionOpening       NarrativePosition = "opening"
	PositionRisingAction  NarrativePosition = "rising_action"
	PositionClimax        NarrativePosition = "climax"
	PositionFallingAction NarrativePosition = "falling_action"
	PositionResolution    NarrativePosition = "resolution"
)

// EmotionalTone enumerates the five tone classifications the Story Arc
// Builder argmaxes over.
type EmotionalTone string

const (
	ToneRomantic    EmotionalTone = "romantic"
	ToneJoyful      EmotionalTone = "joyful"
	ToneDramatic    EmotionalTone = "dramatic"
	ToneIntimate    EmotionalTone = "intimate"
	ToneCelebratory EmotionalTone = "celebratory"
)

// Sentiment is the overall sentiment emitted by the Emotion Analyzer.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// NarrativeStyle selects the Story Arc Builder's template family.
type NarrativeStyle string

const (
	StyleTraditional NarrativeStyle = "traditional"
	StyleModern      NarrativeStyle = "modern"
	StyleIntimate    NarrativeStyle = "intimate"
	StyleDestination NarrativeStyle = "destination"
)

// JobState is the Job Registry's state machine.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// ClipRef is an absolute path to a source audio/video file plus a content
// hash derived from (path, mtime, size). Immutable for the life of a run.
type ClipRef struct {
	Path string
	Hash string
}

// Confidence bundles the per-signal confidence scores the Music Analyzer
// reports alongside its tempo/grid estimate.
type Confidence struct {
	Tempo   float64
	Beats   float64
	Bars    float64
	Overall float64
}

// MusicAnalysis is the Music Analyzer's output.
type MusicAnalysis struct {
	Tempo           float64 // BPM, 60 <= Tempo <= 200
	BeatTimes       []float64
	BarTimes        []float64
	BeatsPerBar     int // fixed 4
	BarsPerMinute   float64
	TimeSignature   string // "4/4"
	MusicStart      float64
	AnalysisSeconds float64
	Confidence      Confidence
	Fallback        bool // true when the deterministic 120 BPM fallback fired
}

// VisualAnalysis is the Visual Analyzer's output.
type VisualAnalysis struct {
	Duration        float64
	FaceCountMean   float64
	FaceConfidence  float64
	MotionScore     float64
	BrightnessScore float64
	ContrastScore   float64
	StabilityScore  float64
	OverallQuality  float64
	BestMoments     []float64 // ascending, len <= 10, spacing >= 0.1*Duration
}

// ObjectAnalysis is the Object Detector's output.
type ObjectAnalysis struct {
	Duration         float64
	Counts           map[ObjectKind]int
	Confidence       map[ObjectKind]float64
	KeyMoments       []float64
	SceneClassification Scene
}

// EmotionalMoment is a single (timestamp, emotion, confidence) tuple.
type EmotionalMoment struct {
	Timestamp  float64
	Emotion    Emotion
	Confidence float64
}

// EmotionAnalysis is the Emotion Analyzer's output.
type EmotionAnalysis struct {
	Duration         float64
	Scores           map[Emotion]float64
	EmotionalMoments []EmotionalMoment
	OverallSentiment Sentiment
	ExcitementLevel  float64
}

// StoryArc is the Story Arc Builder's output.
type StoryArc struct {
	ClipPath            string
	SceneClassification Scene
	StoryImportance     float64 // [0,1]
	NarrativePosition   NarrativePosition
	EmotionalTone       EmotionalTone
	RecommendedDuration float64 // [1.0, 8.0] seconds
	Notes               string
}

// SelectionResult is the Content Selector's per-clip output.
type SelectionResult struct {
	ClipPath        string
	Object          ObjectAnalysis
	Emotion         EmotionAnalysis
	Arc             StoryArc
	StylePreset     string
	FinalScore      float64 // [0,1]
	SelectionReason string
}

// TimelineClip is one entry in a Timeline's ordered clip list.
type TimelineClip struct {
	Src string  `json:"src"`
	In  float64 `json:"in"`
	Out float64 `json:"out"`
}

// Timeline is the canonical, hash-stamped pipeline output. Field order here is irrelevant — internal/timeline re-marshals
// through a sorted-key encoder; this struct exists for in-memory use.
type Timeline struct {
	Clips             []TimelineClip    `json:"clips"`
	FPS               int               `json:"fps"`
	TargetSeconds     int               `json:"target_seconds"`
	Music             string            `json:"music"`
	UsedSceneDetect   bool              `json:"used_scene_detect"`
	UsedBeatSnapping  bool              `json:"used_beat_snapping"`
	BarMarkers        []float64         `json:"bar_markers,omitempty"`
	Tempo             *float64          `json:"tempo,omitempty"`
	TimeSignature     string            `json:"time_signature,omitempty"`
	SourceHashes      map[string]string `json:"source_hashes"`
	CreatedAt         string            `json:"created_at"`
	Version           string            `json:"version"`
	TimelineHash      string            `json:"timeline_hash,omitempty"`
}

// Job is the Job Registry's record of a background processing request
//.
type Job struct {
	ID            string
	Clips         []string
	MusicPath     string
	TargetSeconds int
	StoryStyle    NarrativeStyle
	StylePreset   string
	State         JobState
	Progress      float64 // [0,1], monotone non-decreasing
	CurrentStep   string
	Results       []SelectionResult
	Error         string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// NewObjectCounts returns a zero-initialized count map covering every
// recognized object kind, so callers never need a "missing key" guard.
func NewObjectCounts() map[ObjectKind]int {
	m := make(map[ObjectKind]int, len(AllObjectKinds))
	for _, k := range AllObjectKinds {
		m[k] = 0
	}
	return m
}

// NewEmotionScores returns a zero-initialized score map covering every
// recognized emotion.
func NewEmotionScores() map[Emotion]float64 {
	m := make(map[Emotion]float64, len(AllEmotions))
	for _, e := range AllEmotions {
		m[e] = 0
	}
	return m
}

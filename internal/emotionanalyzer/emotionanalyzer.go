// Package emotionanalyzer implements the Emotion Analyzer:
// per-clip facial-expression and audio-sentiment scoring, fused into an
// overall sentiment and excitement level, plus the emotional moments the
// Story Arc Builder and Content Selector draw on.
//
// Grounded on original_source/worker/emotion_analyzer.py. The source
// drives OpenCV (Haar cascades, Canny edges, contour moments) for facial
// signals and librosa (RMS, spectral centroid, zero-crossing rate, beat
// tracking) for audio signals; the pack carries no CV library, so facial
// signals are reimplemented as grayscale-gradient heuristics over mouth/eye
// regions (see DESIGN.md), while audio signals use gonum's FFT
// (dsp/fourier) the same way the pack's numeric dependency is used
// elsewhere, plus the tempo estimator musicanalyzer already built.
package emotionanalyzer

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"creative-studio-server/internal/musicanalyzer"
	"creative-studio-server/internal/pipeline"
	"creative-studio-server/pkg/videoengine"
)

const (
	sampleWidth      = 96
	sampleHeight     = 96 // square samples so mouth/eye sub-regions stay proportionate to the source's face ROI
	samplesPerSecond = 1.0 / 1.5
	emotionThreshold = 0.3
	maxMoments       = 10
)

// Gateway is the subset of *videoengine.Gateway this package depends on.
type Gateway interface {
	GetVideoInfo(ctx context.Context, path string) (*videoengine.VideoInfo, error)
	ExtractRGBFrames(ctx context.Context, path string, width, height int, samplesPerSecond float64) ([]videoengine.RGBFrame, error)
	TranscodeToWAV(ctx context.Context, inputPath, outputPath string) error
}

var _ Gateway = (*videoengine.Gateway)(nil)

type Analyzer struct {
	gw      Gateway
	tempDir string
}

func New(gw Gateway, tempDir string) *Analyzer {
	return &Analyzer{gw: gw, tempDir: tempDir}
}

type frameEmotions struct {
	timestamp float64
	scores    map[pipeline.Emotion]float64
}

// Analyze scores emotional content across video frames and the audio
// track, fuses them, and derives overall sentiment/excitement.
func (a *Analyzer) Analyze(ctx context.Context, videoPath string) *pipeline.EmotionAnalysis {
	info, err := a.gw.GetVideoInfo(ctx, videoPath)
	duration := 0.0
	if err == nil {
		duration = info.Duration
	}

	videoEmotions := a.analyzeVideoEmotions(ctx, videoPath)
	audioEmotions := a.analyzeAudioEmotions(ctx, videoPath)

	combined := combineEmotions(videoEmotions, audioEmotions)
	sentiment := determineSentiment(combined)
	excitement := calculateExcitementLevel(combined)
	moments := findEmotionalMoments(videoEmotions)

	return &pipeline.EmotionAnalysis{
		Duration:         duration,
		Scores:           combined,
		EmotionalMoments: moments,
		OverallSentiment: sentiment,
		ExcitementLevel:  excitement,
	}
}

func (a *Analyzer) analyzeVideoEmotions(ctx context.Context, videoPath string) []frameEmotions {
	frames, err := a.gw.ExtractRGBFrames(ctx, videoPath, sampleWidth, sampleHeight, samplesPerSecond)
	if err != nil || len(frames) == 0 {
		return nil
	}

	out := make([]frameEmotions, 0, len(frames))
	for i := range frames {
		f := &frames[i]
		if !hasFacePresence(f) {
			out = append(out, frameEmotions{timestamp: f.Timestamp, scores: zeroScores()})
			continue
		}
		out = append(out, frameEmotions{timestamp: f.Timestamp, scores: analyzeFrameEmotions(f)})
	}
	return out
}

func zeroScores() map[pipeline.Emotion]float64 {
	m := make(map[pipeline.Emotion]float64, len(pipeline.AllEmotions))
	for _, e := range pipeline.AllEmotions {
		m[e] = 0.0
	}
	return m
}

func analyzeFrameEmotions(f *videoengine.RGBFrame) map[pipeline.Emotion]float64 {
	gray := toGray(f)
	joy := detectJoy(gray, f.Width, f.Height)
	surprise := detectSurprise(gray, f.Width, f.Height)
	tenderness := detectTenderness(gray, f.Width, f.Height)
	excitement := detectExcitement(gray)
	love := (joy + tenderness) / 2.0 * softnessFactor(tenderness)
	celebration := (joy + excitement) / 2.0

	return map[pipeline.Emotion]float64{
		pipeline.EmotionJoy:         joy,
		pipeline.EmotionSurprise:    surprise,
		pipeline.EmotionLove:        love,
		pipeline.EmotionExcitement:  excitement,
		pipeline.EmotionTenderness:  tenderness,
		pipeline.EmotionCelebration: celebration,
	}
}

// softnessFactor scales love down when the tenderness signal itself is
// weak (factor 0.5 at zero tenderness, 1.0 at full tenderness): love =
// joy/tenderness average scaled by this softness factor, replacing the
// source's hardcoded 0.0 placeholder.
func softnessFactor(tenderness float64) float64 {
	return 0.5 + 0.5*tenderness
}

func toGray(f *videoengine.RGBFrame) []float64 {
	n := f.Width * f.Height
	gray := make([]float64, n)
	for i := 0; i < n; i++ {
		o := i * 3
		gray[i] = 0.299*float64(f.RGB[o]) + 0.587*float64(f.RGB[o+1]) + 0.114*float64(f.RGB[o+2])
	}
	return gray
}

func hasFacePresence(f *videoengine.RGBFrame) bool {
	n := f.Width * f.Height
	if n == 0 {
		return false
	}
	matches := 0
	for i := 0; i < n; i++ {
		o := i * 3
		r, g, b := int(f.RGB[o]), int(f.RGB[o+1]), int(f.RGB[o+2])
		if isSkinTone(r, g, b) {
			matches++
		}
	}
	return float64(matches)/float64(n) > 0.05
}

func isSkinTone(r, g, b int) bool {
	return r > 95 && g > 40 && b > 20 &&
		r > g && r > b &&
		(r-g) > 15
}

// detectJoy approximates the source's mouth-region smile-contour scan with
// a horizontal-gradient-asymmetry proxy: a genuine upward mouth curve
// produces more high-gradient pixels in the lower half of the mouth region
// than the upper half.
func detectJoy(gray []float64, w, h int) float64 {
	top := int(float64(h) * 0.6)
	left := int(float64(w) * 0.2)
	right := int(float64(w) * 0.8)
	if top >= h || left >= right {
		return 0.0
	}

	upperEdges, lowerEdges := 0.0, 0.0
	mid := top + (h-top)/2
	for y := top; y < h-1; y++ {
		for x := left; x < right-1; x++ {
			i := y*w + x
			gx := gray[i+1] - gray[i]
			gy := gray[i+w] - gray[i]
			mag := math.Hypot(gx, gy)
			if y < mid {
				upperEdges += mag
			} else {
				lowerEdges += mag
			}
		}
	}
	if upperEdges+lowerEdges == 0 {
		return 0.0
	}
	asymmetry := (lowerEdges - upperEdges) / (lowerEdges + upperEdges)
	return math.Max(0.0, math.Min(1.0, asymmetry))
}

// detectSurprise approximates wide-eye detection via high gradient-density
// in the eye-band region, the same "large contour with wide aspect ratio"
// signal the source looked for, reduced to a density proxy.
func detectSurprise(gray []float64, w, h int) float64 {
	top := int(float64(h) * 0.2)
	bottom := int(float64(h) * 0.5)
	left := int(float64(w) * 0.1)
	right := int(float64(w) * 0.9)
	if bottom >= h || left >= right || top >= bottom {
		return 0.0
	}

	total := 0.0
	n := 0
	for y := top; y < bottom-1; y++ {
		for x := left; x < right-1; x++ {
			i := y*w + x
			gx := gray[i+1] - gray[i]
			gy := gray[i+w] - gray[i]
			total += math.Hypot(gx, gy)
			n++
		}
	}
	if n == 0 {
		return 0.0
	}
	density := (total / float64(n)) / 255.0
	return math.Min(1.0, density*4)
}

// detectTenderness mirrors the source's discrete-Laplacian softness
// measure: low Laplacian variance (smooth gradients) scores as soft/tender.
func detectTenderness(gray []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0.0
	}
	laplacian := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			lap := gray[i-1] + gray[i+1] + gray[i-w] + gray[i+w] - 4*gray[i]
			laplacian = append(laplacian, lap)
		}
	}
	if len(laplacian) == 0 {
		return 0.0
	}
	_, std := stat.MeanStdDev(laplacian, nil)
	softness := 1.0 - std/255.0
	return math.Max(0.0, softness)
}

// detectExcitement is a direct port of the source's energy measure: the
// standard deviation of face-region brightness, normalized.
func detectExcitement(gray []float64) float64 {
	if len(gray) == 0 {
		return 0.0
	}
	_, std := stat.MeanStdDev(gray, nil)
	return math.Min(1.0, std/255.0)
}

func (a *Analyzer) analyzeAudioEmotions(ctx context.Context, videoPath string) map[pipeline.Emotion]float64 {
	wavPath := a.tempDir + "/emotion-audio.wav"
	if err := a.gw.TranscodeToWAV(ctx, videoPath, wavPath); err != nil {
		return zeroScores()
	}
	samples, sr, err := musicanalyzer.DecodeMonoWAV(wavPath)
	if err != nil || len(samples) == 0 {
		return zeroScores()
	}

	peak := 0.0
	for _, s := range samples {
		if math.Abs(s) > peak {
			peak = math.Abs(s)
		}
	}
	if peak < 0.001 {
		return zeroScores()
	}

	rms := rootMeanSquare(samples)
	excitementRMS := math.Min(rms*2, 1.0)

	centroid := spectralCentroid(samples, sr)
	joy := math.Min(centroid/3000.0, 1.0)

	zcr := zeroCrossingRate(samples)
	celebration := math.Min(zcr*10, 1.0)

	tempo := musicanalyzer.EstimateTempoFromSamples(samples, sr)
	excitementTempo := math.Min(tempo/200.0, 1.0)

	// Combine RMS- and tempo-derived excitement as a weighted average
	// (0.6/0.4) instead of the source's clobbering double-assignment bug.
	excitement := 0.6*excitementRMS + 0.4*excitementTempo

	scores := zeroScores()
	scores[pipeline.EmotionExcitement] = excitement
	scores[pipeline.EmotionJoy] = joy
	scores[pipeline.EmotionCelebration] = celebration
	return scores
}

func rootMeanSquare(samples []float64) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0.0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// spectralCentroid computes the energy-weighted mean frequency over a
// single FFT window drawn from (up to) the first 4096 samples, using
// gonum's real FFT rather than a hand-rolled DFT.
func spectralCentroid(samples []float64, sr int) float64 {
	n := 4096
	if len(samples) < n {
		n = len(samples)
	}
	if n < 2 {
		return 0.0
	}
	windowed := make([]float64, n)
	copy(windowed, samples[:n])
	applyHannWindow(windowed)

	fft := fourier.NewFFT(n)
	spectrum := fft.Coefficients(nil, windowed)

	var weightedSum, magSum float64
	for k, c := range spectrum {
		mag := math.Hypot(real(c), imag(c))
		freq := float64(k) * float64(sr) / float64(n)
		weightedSum += freq * mag
		magSum += mag
	}
	if magSum == 0 {
		return 0.0
	}
	return weightedSum / magSum
}

func applyHannWindow(samples []float64) {
	n := len(samples)
	for i := range samples {
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		samples[i] *= w
	}
}

func combineEmotions(video []frameEmotions, audio map[pipeline.Emotion]float64) map[pipeline.Emotion]float64 {
	hasAudio := false
	for _, v := range audio {
		if v > 0.0 {
			hasAudio = true
			break
		}
	}

	combined := make(map[pipeline.Emotion]float64, len(pipeline.AllEmotions))
	for _, e := range pipeline.AllEmotions {
		videoAvg := 0.0
		if len(video) > 0 {
			sum := 0.0
			for _, fe := range video {
				sum += fe.scores[e]
			}
			videoAvg = sum / float64(len(video))
		}
		if hasAudio {
			combined[e] = 0.7*videoAvg + 0.3*audio[e]
		} else {
			combined[e] = videoAvg
		}
	}
	return combined
}

func determineSentiment(emotions map[pipeline.Emotion]float64) pipeline.Sentiment {
	positive := emotions[pipeline.EmotionJoy] + emotions[pipeline.EmotionLove] + emotions[pipeline.EmotionCelebration]
	if positive > 0.5 {
		return pipeline.SentimentPositive
	}
	return pipeline.SentimentNeutral
}

func calculateExcitementLevel(emotions map[pipeline.Emotion]float64) float64 {
	level := emotions[pipeline.EmotionExcitement]*0.5 + emotions[pipeline.EmotionCelebration]*0.3 + emotions[pipeline.EmotionJoy]*0.2
	return math.Min(level, 1.0)
}

func findEmotionalMoments(video []frameEmotions) []pipeline.EmotionalMoment {
	var moments []pipeline.EmotionalMoment
	for _, fe := range video {
		for _, e := range pipeline.AllEmotions {
			if conf := fe.scores[e]; conf > emotionThreshold {
				moments = append(moments, pipeline.EmotionalMoment{
					Timestamp:  fe.timestamp,
					Emotion:    e,
					Confidence: conf,
				})
			}
		}
	}
	sort.Slice(moments, func(i, j int) bool { return moments[i].Confidence > moments[j].Confidence })
	if len(moments) > maxMoments {
		moments = moments[:maxMoments]
	}
	return moments
}

// Package musicanalyzer implements the Music Analyzer:
// tempo/beat/bar grid estimation for the track the Assembler synchronizes
// highlight clips against.
//
// Grounded on original_source/worker/simple_beat_detector.py. The source
// calls into librosa for onset-envelope tempo tracking; this package
// reimplements the same overall shape — RMS-based music-start detection,
// autocorrelation-based tempo estimation over an RMS onset envelope,
// regular beat/bar grid generation from that tempo, offset-preserving grid
// alignment — using gonum/floats for the vector arithmetic, since the pack
// carries no onset-detection library and gonum is the pack's numeric
// library of choice (farcloser-haustorium).
package musicanalyzer

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"creative-studio-server/internal/pipeline"
	"creative-studio-server/pkg/videoengine"
)

const (
	sampleRate  = 22050
	hopLength   = 512
	frameLength = 2048
	minTempo    = 60.0
	maxTempo    = 200.0
	beatsPerBar = 4
)

// Gateway is the subset of *videoengine.Gateway the analyzer needs, so
// tests can fake it without shelling out to ffmpeg.
type Gateway interface {
	TranscodeToWAV(ctx context.Context, inputPath, outputPath string) error
}

var _ Gateway = (*videoengine.Gateway)(nil)

// Analyzer estimates the beat/bar grid of a music track.
type Analyzer struct {
	gw      Gateway
	tempDir string
}

func New(gw Gateway, tempDir string) *Analyzer {
	return &Analyzer{gw: gw, tempDir: tempDir}
}

// Analyze runs the full pipeline described above. It never returns an
// error: on any failure it falls back to the deterministic 120 BPM grid,
// matching the source's _fallback_analysis behavior.
func (a *Analyzer) Analyze(ctx context.Context, musicPath string, targetDuration float64) *pipeline.MusicAnalysis {
	audio, err := a.loadMono(ctx, musicPath)
	if err != nil {
		return fallbackAnalysis(targetDuration)
	}

	samples := audio.Samples
	if targetDuration > 0 {
		maxSamples := int(targetDuration * float64(audio.SampleRate))
		if maxSamples < len(samples) {
			samples = samples[:maxSamples]
		}
	}
	if len(samples) < frameLength {
		return fallbackAnalysis(targetDuration)
	}

	rms, times := rmsEnvelope(samples, audio.SampleRate)
	musicStart := findMusicStart(rms, times)

	startSample := int(musicStart * float64(audio.SampleRate))
	if startSample > 0 && startSample < len(samples) {
		samples = samples[startSample:]
	}
	if len(samples) < frameLength {
		return fallbackAnalysis(targetDuration)
	}

	onsetRMS, onsetTimes := rmsEnvelope(samples, audio.SampleRate)
	tempo := estimateTempo(onsetRMS, audio.SampleRate)
	tempo = math.Max(minTempo, math.Min(maxTempo, tempo))

	duration := float64(len(samples)) / float64(audio.SampleRate)
	beatInterval := 60.0 / tempo
	barInterval := beatInterval * beatsPerBar

	beatTimes := arange(0, duration, beatInterval)
	barTimes := arange(0, duration, barInterval)

	alignedBeats := alignToGrid(beatTimes, beatInterval)
	alignedBars := alignToGrid(barTimes, barInterval)

	if musicStart > 0 {
		addOffset(alignedBeats, musicStart)
		addOffset(alignedBars, musicStart)
	}

	if targetDuration > 0 {
		alignedBeats = filterLE(alignedBeats, targetDuration)
		alignedBars = filterLE(alignedBars, targetDuration)
	}

	_ = onsetTimes // retained: mirrors the source's parallel (rms, times) pair, used only for start detection here

	return &pipeline.MusicAnalysis{
		Tempo:           tempo,
		BeatTimes:       alignedBeats,
		BarTimes:        alignedBars,
		BeatsPerBar:     beatsPerBar,
		BarsPerMinute:   tempo / beatsPerBar,
		TimeSignature:   "4/4",
		MusicStart:      musicStart,
		AnalysisSeconds: duration,
		Confidence:      pipeline.Confidence{Tempo: 0.8, Beats: 0.9, Bars: 0.9, Overall: 0.87},
		Fallback:        false,
	}
}

// EstimateTempoFromSamples exposes the autocorrelation-based tempo
// estimate this package uses internally, so other analyzers that need a
// tempo signal (the Emotion Analyzer's audio-excitement component) reuse
// the same beat-tracking approximation instead of reimplementing it.
func EstimateTempoFromSamples(samples []float64, sr int) float64 {
	rms, _ := rmsEnvelope(samples, sr)
	tempo := estimateTempo(rms, sr)
	return math.Max(minTempo, math.Min(maxTempo, tempo))
}

// DecodeMonoWAV reads a 16-bit PCM WAV file to normalized mono samples,
// exposed so other analyzers needing raw audio (the Emotion Analyzer)
// share the one WAV reader in the pack-less tree rather than duplicating it.
func DecodeMonoWAV(path string) ([]float64, int, error) {
	audio, err := readWAV(path)
	if err != nil {
		return nil, 0, err
	}
	return audio.Samples, audio.SampleRate, nil
}

func (a *Analyzer) loadMono(ctx context.Context, musicPath string) (*decodedAudio, error) {
	if isWAV(musicPath) {
		return readWAV(musicPath)
	}
	wavPath := a.tempDir + "/music-analysis.wav"
	if err := a.gw.TranscodeToWAV(ctx, musicPath, wavPath); err != nil {
		return nil, err
	}
	return readWAV(wavPath)
}

func isWAV(path string) bool {
	n := len(path)
	return n >= 4 && (path[n-4:] == ".wav" || path[n-4:] == ".WAV")
}

// rmsEnvelope computes frame-wise RMS energy over frameLength windows at
// hopLength stride, plus each frame's center time — the onset envelope the
// source feeds into both music-start detection and tempo tracking.
func rmsEnvelope(samples []float64, sr int) (rms, times []float64) {
	if len(samples) < frameLength {
		return nil, nil
	}
	numFrames := (len(samples)-frameLength)/hopLength + 1
	rms = make([]float64, numFrames)
	times = make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		start := i * hopLength
		frame := samples[start : start+frameLength]
		rms[i] = math.Sqrt(floats.Dot(frame, frame) / float64(len(frame)))
		times[i] = float64(start+frameLength/2) / float64(sr)
	}
	return rms, times
}

// findMusicStart locates the first frame whose RMS exceeds 10% of the
// track's peak energy, clamped to [0.1s, 5.0s] — identical thresholding to
// the source's _find_music_start.
func findMusicStart(rms, times []float64) float64 {
	if len(rms) == 0 {
		return 0.0
	}
	maxEnergy := floats.Max(rms)
	threshold := maxEnergy * 0.1
	for i, v := range rms {
		if v > threshold {
			start := times[i]
			return math.Max(0.1, math.Min(5.0, start))
		}
	}
	return 0.0
}

// estimateTempo autocorrelates the onset envelope over the lag range
// implied by [minTempo, maxTempo] BPM and returns the BPM of the strongest
// periodicity, biased toward the source's start_bpm=120 prior by picking
// the nearest-to-120 peak when multiple lags score within 5% of the best.
func estimateTempo(rms []float64, sr int) float64 {
	if len(rms) < 8 {
		return 120.0
	}
	frameRate := float64(sr) / float64(hopLength)

	minLag := int(frameRate * 60.0 / maxTempo)
	maxLag := int(frameRate * 60.0 / minTempo)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(rms) {
		maxLag = len(rms) - 1
	}
	if maxLag <= minLag {
		return 120.0
	}

	mean := floats.Sum(rms) / float64(len(rms))
	centered := make([]float64, len(rms))
	for i, v := range rms {
		centered[i] = v - mean
	}

	bestLag := 0
	bestScore := math.Inf(-1)
	bestDistTo120 := math.Inf(1)
	for lag := minLag; lag <= maxLag; lag++ {
		score := floats.Dot(centered[:len(centered)-lag], centered[lag:])
		bpm := 60.0 * frameRate / float64(lag)
		distTo120 := math.Abs(bpm - 120.0)
		if score > bestScore*1.05 || (score > bestScore*0.95 && distTo120 < bestDistTo120) {
			if score > bestScore {
				bestScore = score
			}
			bestLag = lag
			bestDistTo120 = distTo120
		}
	}
	if bestLag == 0 {
		return 120.0
	}
	return 60.0 * frameRate / float64(bestLag)
}

func arange(start, stop, step float64) []float64 {
	if step <= 0 {
		return nil
	}
	n := int(math.Ceil((stop - start) / step))
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// alignToGrid snaps every time after the first onto a regular grid whose
// spacing is interval, anchored at the first element — mirroring the
// source's _align_to_grid offset-preserving rounding.
func alignToGrid(times []float64, interval float64) []float64 {
	if len(times) == 0 {
		return nil
	}
	offset := times[0]
	aligned := make([]float64, len(times))
	aligned[0] = offset
	for i := 1; i < len(times); i++ {
		relative := times[i] - offset
		gridPos := math.Round(relative/interval) * interval
		aligned[i] = offset + gridPos
	}
	return dedupeSorted(aligned)
}

func dedupeSorted(vals []float64) []float64 {
	if len(vals) == 0 {
		return vals
	}
	sorted := append([]float64(nil), vals...)
	floats.Sort(sorted)
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func addOffset(vals []float64, offset float64) {
	for i := range vals {
		vals[i] += offset
	}
}

func filterLE(vals []float64, limit float64) []float64 {
	out := vals[:0:0]
	for _, v := range vals {
		if v <= limit {
			out = append(out, v)
		}
	}
	return out
}

// fallbackAnalysis is the deterministic 120 BPM grid the source falls back
// to when librosa analysis raises — used here whenever WAV decoding or
// tempo estimation cannot proceed.
func fallbackAnalysis(targetDuration float64) *pipeline.MusicAnalysis {
	const tempo = 120.0
	beatInterval := 60.0 / tempo
	barInterval := beatInterval * beatsPerBar

	limit := targetDuration
	if limit <= 0 {
		limit = 300.0
	}

	var beatTimes, barTimes []float64
	for t := 0.0; t <= limit+barInterval && t <= 300.0; t += beatInterval {
		beatTimes = append(beatTimes, t)
		if len(beatTimes)%beatsPerBar == 0 {
			barTimes = append(barTimes, t)
		}
	}

	return &pipeline.MusicAnalysis{
		Tempo:           tempo,
		BeatTimes:       beatTimes,
		BarTimes:        barTimes,
		BeatsPerBar:     beatsPerBar,
		BarsPerMinute:   tempo / beatsPerBar,
		TimeSignature:   "4/4",
		MusicStart:      0.0,
		AnalysisSeconds: limit,
		Confidence:      pipeline.Confidence{Tempo: 0.5, Beats: 0.5, Bars: 0.5, Overall: 0.5},
		Fallback:        true,
	}
}

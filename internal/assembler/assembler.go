// Package assembler implements the Assembler: the pipeline
// stage that turns a set of source clips and a music track into a proxy
// highlight video plus its Timeline artifact.
//
// Grounded on original_source/worker/video_processor.py's
// VideoProcessor.assemble_from_sources, with the trimming-strategy
// selection split out into the pure, independently testable trimplan.go.
package assembler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"creative-studio-server/config"
	"creative-studio-server/internal/pipeline"
	"creative-studio-server/internal/selector"
	"creative-studio-server/internal/styles"
	"creative-studio-server/internal/timeline"
	"creative-studio-server/pkg/logger"
	"creative-studio-server/pkg/videoengine"
)

// Gateway is the subset of *videoengine.Gateway the Assembler needs.
type Gateway interface {
	GetVideoInfo(ctx context.Context, path string) (*videoengine.VideoInfo, error)
	Run(ctx context.Context, argv []string) (stdout, stderr string, exitCode int, err error)
}

var _ Gateway = (*videoengine.Gateway)(nil)

// MusicAnalyzer is the subset of *musicanalyzer.Analyzer the Assembler
// needs.
type MusicAnalyzer interface {
	Analyze(ctx context.Context, musicPath string, targetDuration float64) *pipeline.MusicAnalysis
}

// VisualAnalyzer is the subset of *visualanalyzer.Analyzer the Assembler
// needs, used only for the bar-synced trimming strategy's best-moment
// search window.
type VisualAnalyzer interface {
	FindBestMomentsInRange(ctx context.Context, videoPath string, start, duration float64, maxMoments int) []float64
}

// Selector is the subset of *selector.Selector the AI-assisted assembly
// variant uses to reorder/filter the input clip list before the rest of
// the pipeline runs.
type Selector interface {
	SelectBest(ctx context.Context, clips []string, targetCount, batchSize int, style pipeline.NarrativeStyle, preset styles.Preset, fast bool) ([]pipeline.SelectionResult, error)
}

var _ Selector = (*selector.Selector)(nil)

// Assembler orchestrates proxy creation, music-synced trimming,
// concatenation, music overlay, and timeline emission.
type Assembler struct {
	gw    Gateway
	music MusicAnalyzer
	vis   VisualAnalyzer
	sel   Selector
	cfg   config.PipelineConfig
}

func New(gw Gateway, music MusicAnalyzer, vis VisualAnalyzer, sel Selector, cfg config.PipelineConfig) *Assembler {
	return &Assembler{gw: gw, music: music, vis: vis, sel: sel, cfg: cfg}
}

// Result is what Assemble returns: the paths of the two artifacts plus
// timing metrics for observability.
type Result struct {
	ProxyOutput  string
	TimelinePath string
	TimelineHash string
	ProxyTime    time.Duration
	RenderTime   time.Duration
	TempDir      string
}

// SelectionResult mirrors Result but additionally carries the AI-selected
// assembly variant's composite output:
// which of the input clips were kept, and why.
type SelectionResult struct {
	Result
	Selected []pipeline.SelectionResult
}

// Options parameterizes a single Assemble call.
type Options struct {
	TargetSeconds int
	TempRoot      string // overrides cfg.TempRoot for this call; "" uses the configured default
}

// Assemble runs the full render pipeline over clips verbatim, in the
// order given.
func (a *Assembler) Assemble(ctx context.Context, clips []string, musicPath string, opts Options) (Result, error) {
	target := opts.TargetSeconds
	if target <= 0 {
		target = len(clips) * 3
	}

	tempDir, proxyDir, err := a.makeTempDirs(opts.TempRoot)
	if err != nil {
		return Result{}, err
	}

	proxyStart := time.Now()
	proxyPaths, err := a.createProxies(ctx, clips, proxyDir)
	if err != nil {
		return Result{}, fmt.Errorf("assembler: proxy creation: %w", err)
	}
	proxyTime := time.Since(proxyStart)

	musicAnalysis := a.music.Analyze(ctx, musicPath, float64(target))

	segments, err := a.planAndCutSegments(ctx, proxyPaths, musicAnalysis, float64(target), tempDir)
	if err != nil {
		return Result{}, err
	}

	renderStart := time.Now()
	concatenated, err := a.concatenate(ctx, segments, tempDir)
	if err != nil {
		return Result{}, fmt.Errorf("assembler: concatenation: %w", err)
	}

	finalOutput, err := a.overlayMusic(ctx, concatenated, musicPath, tempDir)
	if err != nil {
		return Result{}, fmt.Errorf("assembler: music overlay: %w", err)
	}
	renderTime := time.Since(renderStart)

	timelinePath, timelineHash, err := a.writeTimeline(ctx, clips, segments, musicPath, musicAnalysis, target, tempDir)
	if err != nil {
		return Result{}, fmt.Errorf("assembler: timeline emission: %w", err)
	}

	proxyOutput := filepath.Join(tempDir, "highlight_proxy.mp4")
	if err := os.Rename(finalOutput, proxyOutput); err != nil {
		return Result{}, fmt.Errorf("assembler: rename output: %w", err)
	}

	logger.Infof("assembler: proxy ready at %s (proxy=%s render=%s)", proxyOutput, proxyTime, renderTime)

	return Result{
		ProxyOutput:  proxyOutput,
		TimelinePath: timelinePath,
		TimelineHash: timelineHash,
		ProxyTime:    proxyTime,
		RenderTime:   renderTime,
		TempDir:      tempDir,
	}, nil
}

// AISelectionOptions parameterizes the AI-selected assembly variant
//.
type AISelectionOptions struct {
	Options
	TargetClipCount int
	Style           pipeline.NarrativeStyle
	StylePreset     styles.Preset
	Fast            bool
}

// AssembleWithSelection runs the Content Selector over clips first to
// reorder/filter them down to TargetClipCount, then assembles identically
// to Assemble. The returned Selected field carries each kept clip's
// selection metadata (story breakdown, quality scores) for the caller to
// surface alongside the proxy.
func (a *Assembler) AssembleWithSelection(ctx context.Context, clips []string, musicPath string, opts AISelectionOptions) (SelectionResult, error) {
	if a.sel == nil {
		return SelectionResult{}, fmt.Errorf("assembler: AI selection requested but no selector configured")
	}

	targetCount := opts.TargetClipCount
	if targetCount <= 0 || targetCount > len(clips) {
		targetCount = len(clips)
	}
	batchSize := 4
	if len(clips) < batchSize {
		batchSize = len(clips)
	}

	selected, err := a.sel.SelectBest(ctx, clips, targetCount, batchSize, opts.Style, opts.StylePreset, opts.Fast)
	if err != nil {
		return SelectionResult{}, fmt.Errorf("assembler: content selection: %w", err)
	}

	orderedClips := make([]string, len(selected))
	for i, r := range selected {
		orderedClips[i] = r.ClipPath
	}

	base, err := a.Assemble(ctx, orderedClips, musicPath, opts.Options)
	if err != nil {
		return SelectionResult{}, err
	}

	return SelectionResult{Result: base, Selected: selected}, nil
}

func (a *Assembler) makeTempDirs(tempRootOverride string) (tempDir, proxyDir string, err error) {
	root := tempRootOverride
	if root == "" {
		root = a.cfg.TempRoot
	}
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return "", "", err
		}
	}

	tempDir, err = os.MkdirTemp(root, "assemble_")
	if err != nil {
		return "", "", err
	}
	proxyDir = filepath.Join(tempDir, "proxies")
	if err := os.MkdirAll(proxyDir, 0o755); err != nil {
		return "", "", err
	}
	return tempDir, proxyDir, nil
}

func (a *Assembler) createProxies(ctx context.Context, clips []string, proxyDir string) ([]string, error) {
	proxyPaths := make([]string, len(clips))
	renderOpts := a.proxyRenderOptions()

	for i, clip := range clips {
		proxyPath := filepath.Join(proxyDir, fmt.Sprintf("proxy_%03d.mp4", i))
		args := append([]string{"-y", "-i", clip}, videoengine.BuildRenderArgs(renderOpts)...)
		args = append(args, "-movflags", "+faststart", proxyPath)

		if _, stderr, _, err := a.gw.Run(ctx, args); err != nil {
			return nil, fmt.Errorf("proxy for %s: %w (%s)", clip, err, stderr)
		}
		proxyPaths[i] = proxyPath
	}
	return proxyPaths, nil
}

func (a *Assembler) proxyRenderOptions() *videoengine.RenderOptions {
	crf, err := strconv.Atoi(a.cfg.ProxyCRF)
	if err != nil || crf <= 0 {
		crf = 23
	}
	audioBitrate := parseKbps(a.cfg.ProxyAudioBitrate, 128)
	preset := a.cfg.ProxyPreset
	if preset == "" {
		preset = "fast"
	}
	return &videoengine.RenderOptions{
		Width:        1280,
		Height:       720,
		Preset:       preset,
		CRF:          crf,
		AudioBitrate: audioBitrate,
	}
}

func parseKbps(s string, fallback int) int {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s), "k")
	v, err := strconv.Atoi(trimmed)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

type cutSegment struct {
	path        string
	sourceStart float64
	duration    float64
	proxyIndex  int
}

// planAndCutSegments picks a trimming
// strategy, cuts each segment, then loop-appends if the result falls short
// of target.
func (a *Assembler) planAndCutSegments(ctx context.Context, proxyPaths []string, music *pipeline.MusicAnalysis, target float64, tempDir string) ([]cutSegment, error) {
	durations := make([]float64, len(proxyPaths))
	for i, p := range proxyPaths {
		info, err := a.gw.GetVideoInfo(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", p, err)
		}
		durations[i] = info.Duration
	}

	bestMoment := func(clipIndex int, windowStart, windowDuration float64) (float64, bool) {
		if a.vis == nil {
			return 0, false
		}
		moments := a.vis.FindBestMomentsInRange(ctx, proxyPaths[clipIndex], windowStart, windowDuration, 1)
		if len(moments) == 0 {
			return 0, false
		}
		return moments[0] - windowStart, true
	}

	segPlan := PlanSegments(durations, music.BarTimes, music.BeatTimes, target, bestMoment)
	segPlan = FillToTarget(segPlan, target)

	segments := make([]cutSegment, len(segPlan))
	for i, seg := range segPlan {
		proxyIndex := i % len(proxyPaths)
		outPath := filepath.Join(tempDir, fmt.Sprintf("trimmed_%03d.mp4", i))

		args := []string{
			"-y", "-ss", fmt.Sprintf("%.3f", seg.Start),
			"-i", proxyPaths[proxyIndex],
			"-t", fmt.Sprintf("%.3f", seg.Duration),
		}
		args = append(args, videoengine.BuildRenderArgs(&videoengine.RenderOptions{
			Width: 1280, Height: 720, FrameRate: 25, Preset: "fast", CRF: 23, AudioBitrate: 128,
		})...)
		args = append(args, outPath)

		if _, stderr, _, err := a.gw.Run(ctx, args); err != nil {
			return nil, fmt.Errorf("trim segment %d: %w (%s)", i, err, stderr)
		}

		segments[i] = cutSegment{path: outPath, sourceStart: seg.Start, duration: seg.Duration, proxyIndex: proxyIndex}
	}

	return segments, nil
}

func (a *Assembler) concatenate(ctx context.Context, segments []cutSegment, tempDir string) (string, error) {
	paths := make([]string, len(segments))
	for i, s := range segments {
		paths[i] = s.path
	}
	listPath, err := videoengine.ConcatFileList(tempDir, paths)
	if err != nil {
		return "", err
	}

	outPath := filepath.Join(tempDir, "concatenated.mp4")
	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c:v", "libx264", "-c:a", "aac", "-preset", "fast", "-crf", "23", outPath}
	if _, stderr, _, err := a.gw.Run(ctx, args); err != nil {
		return "", fmt.Errorf("%w (%s)", err, stderr)
	}
	return outPath, nil
}

// overlayMusic applies EBU-R128 loudness
// normalization at -14 LUFS, 48kHz stereo, AAC 192kbps, terminated at the
// shorter of the two streams.
func (a *Assembler) overlayMusic(ctx context.Context, videoPath, musicPath, tempDir string) (string, error) {
	outPath := filepath.Join(tempDir, "highlight_final.mp4")
	args := []string{
		"-y",
		"-i", videoPath,
		"-stream_loop", "-1", "-i", musicPath,
		"-filter_complex", "[1:a]loudnorm=I=-14:TP=-1.5:LRA=11,aresample=48000,pan=stereo|FL=c0|FR=c1[a]",
		"-map", "0:v:0",
		"-map", "[a]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-ac", "2",
		"-b:a", "192k",
		"-shortest",
		outPath,
	}
	if _, stderr, _, err := a.gw.Run(ctx, args); err != nil {
		return "", fmt.Errorf("%w (%s)", err, stderr)
	}
	return outPath, nil
}

func (a *Assembler) writeTimeline(ctx context.Context, originalClips []string, segments []cutSegment, musicPath string, music *pipeline.MusicAnalysis, target int, tempDir string) (path, hash string, err error) {
	timelineClips := make([]pipeline.TimelineClip, len(segments))
	for i, s := range segments {
		src := originalClips[s.proxyIndex%len(originalClips)]
		timelineClips[i] = pipeline.TimelineClip{Src: src, In: s.sourceStart, Out: s.sourceStart + s.duration}
	}

	timelinePath := filepath.Join(tempDir, "timeline.json")
	tempo := music.Tempo
	written, err := timeline.Write(timelineClips, musicPath, timelinePath, timeline.WriteOptions{
		FPS:              a.fps(),
		TargetSeconds:    target,
		UsedSceneDetect:  false,
		UsedBeatSnapping: true,
		BarMarkers:       music.BarTimes,
		Tempo:            &tempo,
		TimeSignature:    music.TimeSignature,
	})
	if err != nil {
		return "", "", err
	}

	_, raw, err := timeline.Read(written)
	if err != nil {
		return "", "", err
	}
	hashVal, _ := raw["timeline_hash"].(string)
	return written, hashVal, nil
}

func (a *Assembler) fps() int {
	if a.cfg.DefaultFPS > 0 {
		return a.cfg.DefaultFPS
	}
	return 25
}

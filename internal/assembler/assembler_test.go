package assembler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"creative-studio-server/config"
	"creative-studio-server/internal/pipeline"
	"creative-studio-server/internal/styles"
	"creative-studio-server/pkg/videoengine"
)

type fakeGateway struct {
	infoDuration float64
	runCalls     int
}

func (g *fakeGateway) GetVideoInfo(ctx context.Context, path string) (*videoengine.VideoInfo, error) {
	return &videoengine.VideoInfo{Duration: g.infoDuration}, nil
}

func (g *fakeGateway) Run(ctx context.Context, argv []string) (string, string, int, error) {
	g.runCalls++
	out := argv[len(argv)-1]
	if err := os.WriteFile(out, []byte("fake-ffmpeg-output"), 0o644); err != nil {
		return "", "", 1, err
	}
	return "", "", 0, nil
}

type fakeMusicAnalyzer struct {
	analysis *pipeline.MusicAnalysis
}

func (f *fakeMusicAnalyzer) Analyze(ctx context.Context, musicPath string, targetDuration float64) *pipeline.MusicAnalysis {
	return f.analysis
}

type fakeVisualAnalyzer struct{}

func (fakeVisualAnalyzer) FindBestMomentsInRange(ctx context.Context, videoPath string, start, duration float64, maxMoments int) []float64 {
	return nil
}

type fakeSelector struct {
	results []pipeline.SelectionResult
}

func (f *fakeSelector) SelectBest(ctx context.Context, clips []string, targetCount, batchSize int, style pipeline.NarrativeStyle, preset styles.Preset, fast bool) ([]pipeline.SelectionResult, error) {
	return f.results, nil
}

func writeDummyFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("dummy-media-bytes"), 0o644); err != nil {
		t.Fatalf("write dummy file: %v", err)
	}
	return path
}

func sampleMusicAnalysis() *pipeline.MusicAnalysis {
	return &pipeline.MusicAnalysis{
		Tempo:         120,
		BeatTimes:     []float64{0, 0.5, 1, 1.5, 2},
		BarTimes:      []float64{0, 2, 4},
		TimeSignature: "4/4",
	}
}

func TestAssembleProducesProxyAndTimeline(t *testing.T) {
	dir := t.TempDir()
	clip1 := writeDummyFile(t, dir, "clip1.mp4")
	clip2 := writeDummyFile(t, dir, "clip2.mp4")
	music := writeDummyFile(t, dir, "music.mp3")

	gw := &fakeGateway{infoDuration: 5}
	a := New(gw, &fakeMusicAnalyzer{analysis: sampleMusicAnalysis()}, fakeVisualAnalyzer{}, nil, config.PipelineConfig{
		ProxyPreset: "fast", ProxyCRF: "23", ProxyAudioBitrate: "128k", DefaultFPS: 25, TempRoot: dir,
	})

	result, err := a.Assemble(context.Background(), []string{clip1, clip2}, music, Options{TargetSeconds: 6})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if _, err := os.Stat(result.ProxyOutput); err != nil {
		t.Fatalf("expected proxy output to exist: %v", err)
	}
	if _, err := os.Stat(result.TimelinePath); err != nil {
		t.Fatalf("expected timeline to exist: %v", err)
	}
	if result.TimelineHash == "" {
		t.Fatal("expected non-empty timeline hash")
	}
	if gw.runCalls == 0 {
		t.Fatal("expected gateway.Run to be invoked")
	}
}

func TestAssembleWithSelectionRequiresSelector(t *testing.T) {
	dir := t.TempDir()
	clip1 := writeDummyFile(t, dir, "clip1.mp4")
	music := writeDummyFile(t, dir, "music.mp3")

	gw := &fakeGateway{infoDuration: 5}
	a := New(gw, &fakeMusicAnalyzer{analysis: sampleMusicAnalysis()}, fakeVisualAnalyzer{}, nil, config.PipelineConfig{TempRoot: dir})

	_, err := a.AssembleWithSelection(context.Background(), []string{clip1}, music, AISelectionOptions{})
	if err == nil {
		t.Fatal("expected error when no selector is configured")
	}
}

func TestAssembleWithSelectionReordersViaSelector(t *testing.T) {
	dir := t.TempDir()
	clip1 := writeDummyFile(t, dir, "clip1.mp4")
	clip2 := writeDummyFile(t, dir, "clip2.mp4")
	music := writeDummyFile(t, dir, "music.mp3")

	gw := &fakeGateway{infoDuration: 5}
	sel := &fakeSelector{results: []pipeline.SelectionResult{
		{ClipPath: clip2, FinalScore: 0.9},
		{ClipPath: clip1, FinalScore: 0.5},
	}}
	a := New(gw, &fakeMusicAnalyzer{analysis: sampleMusicAnalysis()}, fakeVisualAnalyzer{}, sel, config.PipelineConfig{TempRoot: dir})

	result, err := a.AssembleWithSelection(context.Background(), []string{clip1, clip2}, music, AISelectionOptions{
		TargetClipCount: 2,
		Style:           pipeline.StyleTraditional,
		StylePreset:     styles.PresetRomantic,
	})
	if err != nil {
		t.Fatalf("AssembleWithSelection failed: %v", err)
	}
	if len(result.Selected) != 2 {
		t.Fatalf("expected 2 selected clips, got %d", len(result.Selected))
	}
	if result.Selected[0].ClipPath != clip2 {
		t.Fatalf("expected selector's order to be preserved, got %s first", result.Selected[0].ClipPath)
	}
}

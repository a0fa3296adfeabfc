package conform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"creative-studio-server/internal/pipeline"
	"creative-studio-server/internal/timeline"
)

type fakeGateway struct {
	runCalls []string
}

func (g *fakeGateway) Run(ctx context.Context, argv []string) (string, string, int, error) {
	g.runCalls = append(g.runCalls, argv[len(argv)-1])
	out := argv[len(argv)-1]
	if err := os.WriteFile(out, []byte("fake-render"), 0o644); err != nil {
		return "", "", 1, err
	}
	return "", "", 0, nil
}

func writeDummyFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("dummy-bytes"), 0o644); err != nil {
		t.Fatalf("write dummy file: %v", err)
	}
	return path
}

func writeSampleTimeline(t *testing.T, dir string) string {
	t.Helper()
	clip1 := writeDummyFile(t, dir, "clip1.mp4")
	clip2 := writeDummyFile(t, dir, "clip2.mp4")
	music := writeDummyFile(t, dir, "music.mp3")

	timelinePath := filepath.Join(dir, "timeline.json")
	_, err := timeline.Write([]pipeline.TimelineClip{
		{Src: clip1, In: 0, Out: 2},
		{Src: clip2, In: 1, Out: 3},
	}, music, timelinePath, timeline.WriteOptions{FPS: 25, TargetSeconds: 4})
	if err != nil {
		t.Fatalf("write sample timeline: %v", err)
	}
	return timelinePath
}

func TestConformWithAudioProducesMasterOutput(t *testing.T) {
	dir := t.TempDir()
	timelinePath := writeSampleTimeline(t, dir)

	gw := &fakeGateway{}
	c := New(gw)

	result, err := c.Conform(context.Background(), Options{TimelinePath: timelinePath, TempDir: dir})
	if err != nil {
		t.Fatalf("Conform failed: %v", err)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if filepath.Base(result.OutputPath) != "highlight_master.mp4" {
		t.Fatalf("expected default output filename, got %s", result.OutputPath)
	}
	if len(gw.runCalls) != 2 {
		t.Fatalf("expected 2 ffmpeg invocations (video-only + audio overlay), got %d", len(gw.runCalls))
	}
}

func TestConformNoAudioSkipsMusicOverlay(t *testing.T) {
	dir := t.TempDir()
	timelinePath := writeSampleTimeline(t, dir)

	gw := &fakeGateway{}
	c := New(gw)

	result, err := c.Conform(context.Background(), Options{TimelinePath: timelinePath, TempDir: dir, NoAudio: true})
	if err != nil {
		t.Fatalf("Conform failed: %v", err)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if len(gw.runCalls) != 1 {
		t.Fatalf("expected exactly 1 ffmpeg invocation for video-only conform, got %d", len(gw.runCalls))
	}
}

func TestConformFailsWhenSourceMissing(t *testing.T) {
	dir := t.TempDir()
	timelinePath := writeSampleTimeline(t, dir)

	clip1 := filepath.Join(dir, "clip1.mp4")
	if err := os.Remove(clip1); err != nil {
		t.Fatalf("remove source clip: %v", err)
	}

	gw := &fakeGateway{}
	c := New(gw)

	_, err := c.Conform(context.Background(), Options{TimelinePath: timelinePath, TempDir: dir})
	if err == nil {
		t.Fatal("expected error when a source clip is missing")
	}
}

func TestConformRespectsExplicitOutputPath(t *testing.T) {
	dir := t.TempDir()
	timelinePath := writeSampleTimeline(t, dir)
	explicitOut := filepath.Join(dir, "custom_master.mp4")

	gw := &fakeGateway{}
	c := New(gw)

	result, err := c.Conform(context.Background(), Options{TimelinePath: timelinePath, OutputPath: explicitOut, TempDir: dir, NoAudio: true})
	if err != nil {
		t.Fatalf("Conform failed: %v", err)
	}
	if result.OutputPath != explicitOut {
		t.Fatalf("expected output path %s, got %s", explicitOut, result.OutputPath)
	}
}

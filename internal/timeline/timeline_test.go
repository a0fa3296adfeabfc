package timeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creative-studio-server/internal/pipeline"
)

func withFixedNow(t *testing.T) {
	t.Helper()
	orig := nowFunc
	nowFunc = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() { nowFunc = orig })
}

func writeTempClip(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestWriteProducesSelfVerifyingHash(t *testing.T) {
	withFixedNow(t)
	dir := t.TempDir()
	clipA := writeTempClip(t, dir, "a.mp4", "clip-a-bytes")
	music := writeTempClip(t, dir, "music.wav", "music-bytes")
	out := filepath.Join(dir, "timeline.json")

	path, err := Write(
		[]pipeline.TimelineClip{{Src: clipA, In: 1.0001, Out: 4.0009}},
		music,
		out,
		WriteOptions{FPS: 30, TargetSeconds: 30},
	)
	require.NoError(t, err)

	tl, raw, err := Read(path)
	require.NoError(t, err)
	assert.NotEmpty(t, tl.TimelineHash)
	assert.NoError(t, Validate(raw))
	assert.NoError(t, ValidateSources(tl))

	// in/out rounded to 3 decimals
	assert.InDelta(t, 1.0, tl.Clips[0].In, 0.001)
	assert.InDelta(t, 4.001, tl.Clips[0].Out, 0.001)
}

func TestValidateDetectsTamperedHash(t *testing.T) {
	withFixedNow(t)
	dir := t.TempDir()
	clipA := writeTempClip(t, dir, "a.mp4", "clip-a-bytes")
	music := writeTempClip(t, dir, "music.wav", "music-bytes")
	out := filepath.Join(dir, "timeline.json")

	path, err := Write([]pipeline.TimelineClip{{Src: clipA, In: 0, Out: 2}}, music, out, WriteOptions{FPS: 30, TargetSeconds: 10})
	require.NoError(t, err)

	raw, err := readRaw(path)
	require.NoError(t, err)
	raw["fps"] = 60.0

	assert.ErrorIs(t, Validate(raw), pipeline.ErrTimelineInvalid)
}

func TestValidateSourcesDetectsChangedClip(t *testing.T) {
	withFixedNow(t)
	dir := t.TempDir()
	clipA := writeTempClip(t, dir, "a.mp4", "clip-a-bytes")
	music := writeTempClip(t, dir, "music.wav", "music-bytes")
	out := filepath.Join(dir, "timeline.json")

	path, err := Write([]pipeline.TimelineClip{{Src: clipA, In: 0, Out: 2}}, music, out, WriteOptions{FPS: 30, TargetSeconds: 10})
	require.NoError(t, err)

	tl, _, err := Read(path)
	require.NoError(t, err)
	require.NoError(t, ValidateSources(tl))

	require.NoError(t, os.WriteFile(clipA, []byte("mutated-bytes"), 0o644))
	assert.ErrorIs(t, ValidateSources(tl), pipeline.ErrTimelineSourcesChanged)
}

func TestValidateSourcesDetectsTouchedClipWithUnchangedContent(t *testing.T) {
	withFixedNow(t)
	dir := t.TempDir()
	clipA := writeTempClip(t, dir, "a.mp4", "clip-a-bytes")
	music := writeTempClip(t, dir, "music.wav", "music-bytes")
	out := filepath.Join(dir, "timeline.json")

	path, err := Write([]pipeline.TimelineClip{{Src: clipA, In: 0, Out: 2}}, music, out, WriteOptions{FPS: 30, TargetSeconds: 10})
	require.NoError(t, err)

	tl, _, err := Read(path)
	require.NoError(t, err)
	require.NoError(t, ValidateSources(tl))

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(clipA, future, future))
	assert.ErrorIs(t, ValidateSources(tl), pipeline.ErrTimelineSourcesChanged)
}

func TestReadRejectsMalformedClip(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "bad.json")
	body, _ := json.Marshal(map[string]interface{}{
		"clips":          []interface{}{map[string]interface{}{"src": "x.mp4", "in": 5.0, "out": 2.0}},
		"fps":            30,
		"target_seconds": 10,
		"music":          "m.wav",
		"timeline_hash":  "deadbeef",
	})
	require.NoError(t, os.WriteFile(out, body, 0o644))

	_, _, err := Read(out)
	assert.ErrorIs(t, err, pipeline.ErrTimelineInvalid)
}

func readRaw(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

package videoengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creative-studio-server/internal/pipeline"
)

func TestParseVideoInfoExtractsFormatAndStreams(t *testing.T) {
	raw := []byte(`{
		"format": {"duration": "12.5", "size": "1024", "bit_rate": "2000000"},
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30/1"},
			{"codec_type": "audio", "codec_name": "aac", "bit_rate": "128000"}
		]
	}`)

	info, err := parseVideoInfo(raw)
	require.NoError(t, err)

	assert.Equal(t, 12.5, info.Duration)
	assert.EqualValues(t, 1024, info.Size)
	assert.Equal(t, 2000000, info.Bitrate)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.Equal(t, "h264", info.Codec)
	assert.Equal(t, 30.0, info.FrameRate)
	assert.Equal(t, "mp4", info.Format)
	assert.True(t, info.HasAudio)
	assert.Equal(t, "aac", info.AudioCodec)
	assert.Equal(t, 128000, info.AudioBitrate)
}

func TestParseVideoInfoDefaultsUnknownFormatForUnrecognizedCodec(t *testing.T) {
	raw := []byte(`{"format": {}, "streams": [{"codec_type": "video", "codec_name": "av1"}]}`)

	info, err := parseVideoInfo(raw)
	require.NoError(t, err)
	assert.Equal(t, "unknown", info.Format)
}

func TestParseVideoInfoRejectsMalformedJSON(t *testing.T) {
	_, err := parseVideoInfo([]byte("not json"))
	assert.Error(t, err)
}

func TestBuildRenderArgsDefaultsOnNilOptions(t *testing.T) {
	args := BuildRenderArgs(nil)
	assert.Contains(t, args, "libx264")
	assert.Contains(t, args, "23")
}

func TestBuildRenderArgsHonorsCopyVideo(t *testing.T) {
	args := BuildRenderArgs(&RenderOptions{CopyVideo: true})
	assert.Contains(t, args, "copy")
	assert.NotContains(t, args, "libx264")
}

func TestBuildRenderArgsAppliesScaleAndFrameRate(t *testing.T) {
	args := BuildRenderArgs(&RenderOptions{Width: 1280, Height: 720, FrameRate: 29.97})
	joined := assertJoined(args)
	assert.Contains(t, joined, "scale=1280:720")
	assert.Contains(t, joined, "29.97")
}

func TestBuildRenderArgsFallsBackToDefaultAudioBitrate(t *testing.T) {
	args := BuildRenderArgs(&RenderOptions{})
	joined := assertJoined(args)
	assert.Contains(t, joined, "128k")
}

func TestBuildVideoFiltersJoinsNamedFiltersWithParameters(t *testing.T) {
	s := buildVideoFilters([]VideoFilter{
		{Name: "eq", Parameters: map[string]interface{}{"brightness": 0.1}},
		{Name: "hflip"},
	})
	assert.Contains(t, s, "eq=brightness=0.1")
	assert.Contains(t, s, "hflip")
}

func TestParseFFmpegTimeParsesHMSFormat(t *testing.T) {
	assert.Equal(t, 3661.5, parseFFmpegTime("01:01:01.5"))
}

func TestParseFFmpegTimeReturnsZeroOnMalformedInput(t *testing.T) {
	assert.Equal(t, 0.0, parseFFmpegTime("not-a-time"))
}

func TestConcatFileListWritesAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	listPath, err := ConcatFileList(dir, []string{src})
	require.NoError(t, err)

	contents, err := os.ReadFile(listPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), src)
}

func TestConcatFileListWithTrimWritesInpointAndDuration(t *testing.T) {
	dir := t.TempDir()
	clips := []pipeline.TimelineClip{{Src: filepath.Join(dir, "a.mp4"), In: 1.5, Out: 4.0}}

	listPath, err := ConcatFileListWithTrim(dir, clips)
	require.NoError(t, err)

	contents, err := os.ReadFile(listPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "inpoint 1.500")
	assert.Contains(t, string(contents), "duration 2.500")
}

func TestWellKnownPathsReturnsNonEmptyListForEveryPlatformBranch(t *testing.T) {
	assert.NotEmpty(t, wellKnownPaths("ffmpeg"))
}

func assertJoined(args []string) string {
	out := ""
	for _, a := range args {
		out += a + " "
	}
	return out
}

package emotionanalyzer

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creative-studio-server/internal/pipeline"
	"creative-studio-server/pkg/videoengine"
)

type fakeGateway struct {
	info      *videoengine.VideoInfo
	frames    []videoengine.RGBFrame
	wavWriter func(outputPath string) error
}

func (f *fakeGateway) GetVideoInfo(ctx context.Context, path string) (*videoengine.VideoInfo, error) {
	return f.info, nil
}

func (f *fakeGateway) ExtractRGBFrames(ctx context.Context, path string, width, height int, sps float64) ([]videoengine.RGBFrame, error) {
	return f.frames, nil
}

func (f *fakeGateway) TranscodeToWAV(ctx context.Context, inputPath, outputPath string) error {
	return f.wavWriter(outputPath)
}

func noAudio(path string) error { return writeSilentWAV(path) }

func skinToneFrame(ts float64, w, h int) videoengine.RGBFrame {
	rgb := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		rgb[i*3] = 210
		rgb[i*3+1] = 160
		rgb[i*3+2] = 130
	}
	return videoengine.RGBFrame{Timestamp: ts, Width: w, Height: h, RGB: rgb}
}

func TestAnalyzeReturnsNeutralForFacelessClip(t *testing.T) {
	gw := &fakeGateway{
		info:      &videoengine.VideoInfo{Duration: 2.0},
		frames:    []videoengine.RGBFrame{solidGray(0, 16, 16, 60)},
		wavWriter: noAudio,
	}
	a := New(gw, t.TempDir())
	result := a.Analyze(context.Background(), "clip.mp4")
	assert.Equal(t, pipeline.SentimentNeutral, result.OverallSentiment)
	assert.Empty(t, result.EmotionalMoments)
}

func TestAnalyzeDoesNotPanicOnFacePresence(t *testing.T) {
	gw := &fakeGateway{
		info:      &videoengine.VideoInfo{Duration: 2.0},
		frames:    []videoengine.RGBFrame{skinToneFrame(0, 32, 32)},
		wavWriter: noAudio,
	}
	a := New(gw, t.TempDir())
	result := a.Analyze(context.Background(), "clip.mp4")
	require.NotNil(t, result)
	for _, e := range pipeline.AllEmotions {
		v := result.Scores[e]
		assert.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func solidGray(ts float64, w, h int, v byte) videoengine.RGBFrame {
	rgb := make([]byte, w*h*3)
	for i := range rgb {
		rgb[i] = v
	}
	return videoengine.RGBFrame{Timestamp: ts, Width: w, Height: h, RGB: rgb}
}

func writeSilentWAV(path string) error {
	samples := make([]int16, 1000)
	dataLen := len(samples) * 2
	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], 22050)
	binary.LittleEndian.PutUint32(buf[28:32], 22050*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:46+i*2], uint16(s))
	}
	return os.WriteFile(path, buf, 0o644)
}

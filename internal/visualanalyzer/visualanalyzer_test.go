package visualanalyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creative-studio-server/pkg/videoengine"
)

type fakeGateway struct {
	info   *videoengine.VideoInfo
	frames []videoengine.RGBFrame
	err    error
}

func (f *fakeGateway) GetVideoInfo(ctx context.Context, path string) (*videoengine.VideoInfo, error) {
	return f.info, f.err
}

func (f *fakeGateway) ExtractRGBFrames(ctx context.Context, path string, width, height int, sps float64) ([]videoengine.RGBFrame, error) {
	return f.frames, f.err
}

func solidFrame(ts float64, w, h int, r, g, b byte) videoengine.RGBFrame {
	rgb := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		rgb[i*3] = r
		rgb[i*3+1] = g
		rgb[i*3+2] = b
	}
	return videoengine.RGBFrame{Timestamp: ts, Width: w, Height: h, RGB: rgb}
}

func TestAnalyzeScoresMidGrayAsHighBrightness(t *testing.T) {
	gw := &fakeGateway{
		info: &videoengine.VideoInfo{Duration: 3.0},
		frames: []videoengine.RGBFrame{
			solidFrame(0, 8, 8, 128, 128, 128),
			solidFrame(1, 8, 8, 128, 128, 128),
			solidFrame(2, 8, 8, 128, 128, 128),
		},
	}
	a := New(gw)
	result := a.Analyze(context.Background(), "clip.mp4")

	assert.Equal(t, 3.0, result.Duration)
	assert.Greater(t, result.BrightnessScore, 0.9)
	assert.Equal(t, 0.0, result.MotionScore) // identical frames -> no motion
}

func TestAnalyzeReturnsZeroValueOnProbeFailure(t *testing.T) {
	gw := &fakeGateway{info: &videoengine.VideoInfo{Duration: 0}}
	a := New(gw)
	result := a.Analyze(context.Background(), "missing.mp4")
	assert.Equal(t, 0.0, result.Duration)
	assert.Nil(t, result.BestMoments)
}

func TestFindBestMomentsRespectsMinimumSpacing(t *testing.T) {
	moments := []momentScore{
		{timestamp: 0.0, combinedScore: 0.9},
		{timestamp: 0.05, combinedScore: 0.95},
		{timestamp: 5.0, combinedScore: 0.8},
	}
	best := findBestMoments(moments, 10.0, 10)
	require.Len(t, best, 2)
	assert.InDelta(t, 0.05, best[0], 1e-9)
	assert.InDelta(t, 5.0, best[1], 1e-9)
}

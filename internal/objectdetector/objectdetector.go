// Package objectdetector implements the Object Detector:
// wedding-domain object/moment counting and scene classification.
//
// Grounded on original_source/worker/wedding_object_detector.py. The
// source drives OpenCV (Haar cascades for faces, HoughCircles for rings,
// HSV inRange + findContours for cake/bouquet color-region detection); the
// pack carries no computer-vision library, so each detector is reimplemented
// as a color/region heuristic operating on raw RGB frames from the
// Transcoder Gateway, preserving the source's per-frame cap and the scene
// classification thresholds exactly.
package objectdetector

import (
	"context"
	"math"

	"creative-studio-server/internal/pipeline"
	"creative-studio-server/pkg/videoengine"
)

const (
	sampleWidth      = 96
	sampleHeight     = 54
	samplesPerSecond = 1.0 / 1.5 // source samples every 1.5s
)

// Gateway is the subset of *videoengine.Gateway this package depends on.
type Gateway interface {
	GetVideoInfo(ctx context.Context, path string) (*videoengine.VideoInfo, error)
	ExtractRGBFrames(ctx context.Context, path string, width, height int, samplesPerSecond float64) ([]videoengine.RGBFrame, error)
}

var _ Gateway = (*videoengine.Gateway)(nil)

type Detector struct {
	gw Gateway
}

func New(gw Gateway) *Detector {
	return &Detector{gw: gw}
}

// Analyze counts wedding-domain objects per frame, identifies key moments
// (frames with nonzero total object activity), and classifies the scene.
func (d *Detector) Analyze(ctx context.Context, videoPath string) (*pipeline.ObjectAnalysis, error) {
	info, err := d.gw.GetVideoInfo(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if info.Duration <= 0 {
		return &pipeline.ObjectAnalysis{
			Counts:              pipeline.NewObjectCounts(),
			Confidence:          map[pipeline.ObjectKind]float64{},
			SceneClassification: pipeline.ScenePreparation,
		}, nil
	}

	frames, err := d.gw.ExtractRGBFrames(ctx, videoPath, sampleWidth, sampleHeight, samplesPerSecond)
	if err != nil {
		return nil, err
	}

	counts := pipeline.NewObjectCounts()
	confidenceSums := map[pipeline.ObjectKind]float64{}
	confidenceN := map[pipeline.ObjectKind]int{}
	var keyMoments []float64

	var prev *videoengine.RGBFrame
	for i := range frames {
		f := &frames[i]

		faceProxy := estimateFaceCount(f)
		frameObjects := map[pipeline.ObjectKind]int{
			pipeline.ObjectWeddingRings:    detectRings(f),
			pipeline.ObjectWeddingCake:     detectCake(f),
			pipeline.ObjectDancing:         detectDancing(f, prev, faceProxy),
			pipeline.ObjectBouquet:         detectBouquet(f),
			pipeline.ObjectCeremonyMoments: detectCeremony(faceProxy),
			pipeline.ObjectToastMoments:    detectToast(f, faceProxy),
			pipeline.ObjectPeople:          faceProxy,
		}

		total := 0
		for kind, count := range frameObjects {
			counts[kind] += count
			total += count
			if count > 0 {
				confidenceSums[kind] += 1.0
			}
			confidenceN[kind]++
		}
		if total > 0 {
			keyMoments = append(keyMoments, f.Timestamp)
		}

		prev = f
	}

	confidence := map[pipeline.ObjectKind]float64{}
	for _, kind := range pipeline.AllObjectKinds {
		if n := confidenceN[kind]; n > 0 {
			confidence[kind] = confidenceSums[kind] / float64(n)
		} else {
			confidence[kind] = 0.0
		}
	}

	scene := classifyScene(counts)

	return &pipeline.ObjectAnalysis{
		Duration:            info.Duration,
		Counts:              counts,
		Confidence:          confidence,
		KeyMoments:          keyMoments,
		SceneClassification: scene,
	}, nil
}

// classifyScene mirrors the source's _classify_scene threshold order
// exactly: ceremony > 3 wins first, then dancing > 2, then any cake/toast,
// else preparation.
func classifyScene(counts map[pipeline.ObjectKind]int) pipeline.Scene {
	switch {
	case counts[pipeline.ObjectCeremonyMoments] > 3:
		return pipeline.SceneCeremony
	case counts[pipeline.ObjectDancing] > 2:
		return pipeline.SceneParty
	case counts[pipeline.ObjectWeddingCake] > 0 || counts[pipeline.ObjectToastMoments] > 0:
		return pipeline.SceneReception
	default:
		return pipeline.ScenePreparation
	}
}

func estimateFaceCount(f *videoengine.RGBFrame) int {
	fraction := skinFraction(f)
	// calibrated so a frame that is ~4% skin-tone pixels reads as roughly
	// one face's worth of presence, matching the source's per-frame face
	// counts which rarely exceed single digits in a wedding clip
	count := int(math.Round(fraction / 0.04))
	if count > 10 {
		count = 10
	}
	return count
}

func detectRings(f *videoengine.RGBFrame) int {
	n := f.Width * f.Height
	if n == 0 {
		return 0
	}
	metallic := 0
	for i := 0; i < n; i++ {
		o := i * 3
		if isMetallicColor(int(f.RGB[o]), int(f.RGB[o+1]), int(f.RGB[o+2])) {
			metallic++
		}
	}
	// the source caps detected circles at 4/frame; approximate by scaling
	// the metallic-pixel fraction onto the same headroom
	count := int(float64(metallic) / float64(n) * 40)
	return capAt(count, 4)
}

func isMetallicColor(r, g, b int) bool {
	if r > 150 && g > 150 && b < 100 {
		return true // gold-like
	}
	if r > 180 && g > 180 && b > 180 {
		return true // silver-like
	}
	return false
}

func detectCake(f *videoengine.RGBFrame) int {
	n := f.Width * f.Height
	if n == 0 {
		return 0
	}
	// upper half of frame only, mirroring the source's tall-region bias
	// (aspect_ratio > 0.8, taller than wide) via a vertical-position proxy
	white := 0
	upperN := 0
	for y := 0; y < f.Height/2; y++ {
		for x := 0; x < f.Width; x++ {
			i := y*f.Width + x
			o := i * 3
			upperN++
			if isWhiteCream(int(f.RGB[o]), int(f.RGB[o+1]), int(f.RGB[o+2])) {
				white++
			}
		}
	}
	if upperN == 0 {
		return 0
	}
	fraction := float64(white) / float64(upperN)
	if fraction < 0.05 {
		return 0
	}
	count := int(fraction * 10)
	return capAt(count, 2)
}

func isWhiteCream(r, g, b int) bool {
	return r > 200 && g > 200 && b > 180
}

func detectDancing(f, prev *videoengine.RGBFrame, faceProxy int) int {
	if prev == nil {
		return 0
	}
	motion := motionBetween(prev, f)
	if faceProxy > 0 && motion > 0.1 {
		return capAt(faceProxy, 10)
	}
	return 0
}

func detectBouquet(f *videoengine.RGBFrame) int {
	n := f.Width * f.Height
	if n == 0 {
		return 0
	}
	colorful := 0
	for i := 0; i < n; i++ {
		o := i * 3
		if isColorful(int(f.RGB[o]), int(f.RGB[o+1]), int(f.RGB[o+2])) {
			colorful++
		}
	}
	fraction := float64(colorful) / float64(n)
	if fraction < 0.02 || fraction > 0.2 {
		return 0 // too small or fills the whole frame, unlikely to be a bouquet
	}
	count := int(fraction * 15)
	return capAt(count, 3)
}

func isColorful(r, g, b int) bool {
	maxC, minC := max3(r, g, b), min3(r, g, b)
	saturationProxy := maxC - minC
	return saturationProxy > 50
}

func detectCeremony(faceProxy int) int {
	if faceProxy >= 2 {
		return capAt(faceProxy, 8)
	}
	return 0
}

func detectToast(f *videoengine.RGBFrame, faceProxy int) int {
	if hasGlassGlint(f) && faceProxy > 0 {
		return capAt(faceProxy, 6)
	}
	return 0
}

// hasGlassGlint looks for small, very bright near-white highlight pixels
// against a darker surround — a "glassProxy": a bright, high-contrast
// region heuristic reusing the same brightness/contrast primitives the
// Visual Analyzer already computes, rather than inventing a dedicated
// glass detector.
func hasGlassGlint(f *videoengine.RGBFrame) bool {
	n := f.Width * f.Height
	if n == 0 {
		return false
	}
	bright := 0
	for i := 0; i < n; i++ {
		o := i * 3
		r, g, b := int(f.RGB[o]), int(f.RGB[o+1]), int(f.RGB[o+2])
		if r > 230 && g > 230 && b > 230 {
			bright++
		}
	}
	fraction := float64(bright) / float64(n)
	return fraction > 0.005 && fraction < 0.05
}

func motionBetween(prev, cur *videoengine.RGBFrame) float64 {
	n := prev.Width * prev.Height
	if n == 0 || n != cur.Width*cur.Height {
		return 0.0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		o := i * 3
		pl := luma(prev.RGB[o], prev.RGB[o+1], prev.RGB[o+2])
		cl := luma(cur.RGB[o], cur.RGB[o+1], cur.RGB[o+2])
		diff := pl - cl
		if diff < 0 {
			diff = -diff
		}
		sum += diff
	}
	intensity := sum / float64(n) / 255.0
	return math.Min(1.0, intensity*10)
}

func luma(r, g, b byte) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

func skinFraction(f *videoengine.RGBFrame) float64 {
	n := f.Width * f.Height
	if n == 0 {
		return 0.0
	}
	matches := 0
	for i := 0; i < n; i++ {
		o := i * 3
		r, g, b := int(f.RGB[o]), int(f.RGB[o+1]), int(f.RGB[o+2])
		if isSkinTone(r, g, b) {
			matches++
		}
	}
	return float64(matches) / float64(n)
}

func isSkinTone(r, g, b int) bool {
	return r > 95 && g > 40 && b > 20 &&
		r > g && r > b &&
		(r-g) > 15 &&
		(max3(r, g, b)-min3(r, g, b)) > 15
}

func capAt(v, max int) int {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}

func max3(a, b, c int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

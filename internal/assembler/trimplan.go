package assembler

import "math"

// Segment is one clip's computed trim window: start offset and duration,
// both in seconds relative to the clip's own timeline.
type Segment struct {
	Start    float64
	Duration float64
}

// strategy names which rule produced a trim plan, surfaced only for
// logging/diagnostics.
type strategy string

const (
	strategyBarSynced  strategy = "bar_synced"
	strategyBeatSynced strategy = "beat_synced"
	strategyUniform    strategy = "uniform"
)

// chooseStrategy applies the first matching rule: bar-synced when there
// are at least as many bars as clips, else beat-synced when there are at
// least as many beats as clips, else uniform.
func chooseStrategy(bars, beats []float64, clipCount int) strategy {
	switch {
	case len(bars) >= clipCount && clipCount > 0:
		return strategyBarSynced
	case len(beats) >= clipCount && clipCount > 0:
		return strategyBeatSynced
	default:
		return strategyUniform
	}
}

// PlanSegments computes the per-clip trim window for every clip in
// clipDurations, given the Music Analyzer's bar/beat grids and the target
// highlight duration. bestMoment, when non-nil, is called to find the
// first visually-best moment inside a search window centered on the
// strategy's target start — the bar-synced search-window rule (callers
// pass the Visual Analyzer; nil skips the search entirely and falls back
// to the target start, used by tests and by the beat-synced/uniform
// branches, which never run a best-moment search).
func PlanSegments(clipDurations []float64, bars, beats []float64, targetSeconds float64, bestMoment func(clipIndex int, windowStart, windowDuration float64) (float64, bool)) []Segment {
	n := len(clipDurations)
	if n == 0 {
		return nil
	}

	switch chooseStrategy(bars, beats, n) {
	case strategyBarSynced:
		return planBarSynced(clipDurations, bars, bestMoment)
	case strategyBeatSynced:
		return planBeatSynced(clipDurations, beats)
	default:
		return planUniform(clipDurations, targetSeconds)
	}
}

func planBarSynced(clipDurations []float64, bars []float64, bestMoment func(int, float64, float64) (float64, bool)) []Segment {
	n := len(clipDurations)
	segments := make([]Segment, n)

	for i := 0; i < n; i++ {
		clipDuration := clipDurations[i]

		var segDuration float64
		if i+1 < len(bars) {
			segDuration = bars[i+1] - bars[i]
		} else if len(bars) >= 2 {
			segDuration = bars[len(bars)-1] - bars[len(bars)-2]
		} else {
			segDuration = clipDuration
		}

		target := math.Mod(bars[i], clipDuration)
		if target < 0 {
			target += clipDuration
		}

		windowDuration := math.Min(10.0, 0.3*clipDuration)
		windowStart := math.Max(0, target-windowDuration/2)

		start := target
		if bestMoment != nil {
			if moment, ok := bestMoment(i, windowStart, windowDuration); ok {
				start = moment
			}
		}

		segments[i] = recenterIfOverflowing(Segment{Start: start, Duration: segDuration}, clipDuration)
	}
	return segments
}

func planBeatSynced(clipDurations []float64, beats []float64) []Segment {
	n := len(clipDurations)
	segments := make([]Segment, n)

	for i := 0; i < n; i++ {
		clipDuration := clipDurations[i]

		var interval float64
		if i+1 < len(beats) {
			interval = beats[i+1] - beats[i]
		} else if len(beats) >= 2 {
			interval = beats[len(beats)-1] - beats[len(beats)-2]
		} else {
			interval = clipDuration
		}

		start := clampToClip(beats[i], clipDuration)
		segments[i] = recenterIfOverflowing(Segment{Start: start, Duration: interval}, clipDuration)
	}
	return segments
}

func planUniform(clipDurations []float64, targetSeconds float64) []Segment {
	n := len(clipDurations)
	segments := make([]Segment, n)
	segDuration := targetSeconds / float64(n)

	for i, clipDuration := range clipDurations {
		start := clampToClip((clipDuration-segDuration)/2, clipDuration)
		segments[i] = recenterIfOverflowing(Segment{Start: start, Duration: segDuration}, clipDuration)
	}
	return segments
}

func clampToClip(value, clipDuration float64) float64 {
	if value < 0 {
		return 0
	}
	if value > clipDuration {
		return clipDuration
	}
	return value
}

// recenterIfOverflowing handles the final edge case: if
// start+duration exceeds the clip's own duration, re-center on the clip's
// middle rather than clamping, preserving the computed segment duration
// where possible.
func recenterIfOverflowing(seg Segment, clipDuration float64) Segment {
	if seg.Duration > clipDuration {
		seg.Duration = clipDuration
	}
	if seg.Start+seg.Duration > clipDuration {
		seg.Start = math.Max(0, (clipDuration-seg.Duration)/2)
	}
	return seg
}

// FillToTarget pads short selections: if the summed segment
// durations fall short of 0.9*target, loop-append segments (cycling
// through the original list) until the target is met, trimming the final
// appended segment so the total lands exactly on target.
func FillToTarget(segments []Segment, targetSeconds float64) []Segment {
	if len(segments) == 0 {
		return segments
	}

	total := sumDurations(segments)
	if total >= 0.9*targetSeconds {
		return segments
	}

	filled := append([]Segment(nil), segments...)
	i := 0
	for sumDurations(filled) < targetSeconds {
		next := segments[i%len(segments)]
		filled = append(filled, next)
		i++
	}

	overshoot := sumDurations(filled) - targetSeconds
	if overshoot > 0 {
		last := &filled[len(filled)-1]
		last.Duration = math.Max(0, last.Duration-overshoot)
	}
	return filled
}

func sumDurations(segments []Segment) float64 {
	total := 0.0
	for _, s := range segments {
		total += s.Duration
	}
	return total
}

package assembler

import "testing"

func TestChooseStrategyPrefersBarsThenBeatsThenUniform(t *testing.T) {
	if got := chooseStrategy([]float64{0, 1, 2}, []float64{0, 1, 2, 3, 4}, 3); got != strategyBarSynced {
		t.Fatalf("expected bar-synced, got %s", got)
	}
	if got := chooseStrategy([]float64{0}, []float64{0, 1, 2}, 3); got != strategyBeatSynced {
		t.Fatalf("expected beat-synced, got %s", got)
	}
	if got := chooseStrategy([]float64{0}, []float64{0}, 3); got != strategyUniform {
		t.Fatalf("expected uniform, got %s", got)
	}
}

func TestPlanSegmentsUniformSplitsTargetEvenly(t *testing.T) {
	segs := PlanSegments([]float64{10, 10}, nil, nil, 6, nil)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	for _, s := range segs {
		if s.Duration != 3 {
			t.Fatalf("expected 3s segments, got %v", s.Duration)
		}
		if s.Start < 0 || s.Start+s.Duration > 10 {
			t.Fatalf("segment out of clip bounds: %+v", s)
		}
	}
}

func TestPlanSegmentsBeatSyncedUsesBeatIntervals(t *testing.T) {
	beats := []float64{0, 1, 2.5}
	segs := PlanSegments([]float64{5, 5, 5}, nil, beats, 6, nil)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	if segs[0].Duration != 1 {
		t.Fatalf("expected first interval 1s, got %v", segs[0].Duration)
	}
	if segs[1].Duration != 1.5 {
		t.Fatalf("expected second interval 1.5s, got %v", segs[1].Duration)
	}
}

func TestPlanSegmentsBarSyncedUsesBestMomentWhenAvailable(t *testing.T) {
	bars := []float64{0, 2, 4}
	called := false
	bestMoment := func(clipIndex int, windowStart, windowDuration float64) (float64, bool) {
		called = true
		return windowStart + 0.5, true
	}
	segs := PlanSegments([]float64{10, 10, 10}, bars, nil, 6, bestMoment)
	if !called {
		t.Fatal("expected bestMoment to be consulted for bar-synced strategy")
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
}

func TestPlanSegmentsRecentersWhenOverflowing(t *testing.T) {
	// a 3s clip asked for a 7.5s segment (the 2.5s->10s beat interval)
	// starting at 2.5s would overflow 3s
	segs := planBeatSynced([]float64{3}, []float64{2.5, 10})
	seg := segs[0]
	if seg.Start+seg.Duration > 3+1e-9 {
		t.Fatalf("segment overflows clip bounds: %+v", seg)
	}
}

func TestFillToTargetLoopsUntilTargetReached(t *testing.T) {
	segments := []Segment{{Start: 0, Duration: 1}, {Start: 0, Duration: 1}}
	filled := FillToTarget(segments, 10)
	total := sumDurations(filled)
	if total < 9.999 || total > 10.001 {
		t.Fatalf("expected total duration ~10, got %v", total)
	}
	if len(filled) <= len(segments) {
		t.Fatalf("expected extra looped segments, got %d", len(filled))
	}
}

func TestFillToTargetNoopWhenAlreadyCloseToTarget(t *testing.T) {
	segments := []Segment{{Start: 0, Duration: 5}, {Start: 0, Duration: 5}}
	filled := FillToTarget(segments, 10)
	if len(filled) != len(segments) {
		t.Fatalf("expected no change, got %d segments", len(filled))
	}
}

func TestPlanSegmentsEmptyInputReturnsNil(t *testing.T) {
	if segs := PlanSegments(nil, nil, nil, 10, nil); segs != nil {
		t.Fatalf("expected nil for empty input, got %+v", segs)
	}
}

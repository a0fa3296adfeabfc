package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"creative-studio-server/internal/pipeline"
	"creative-studio-server/internal/styles"
)

type fakeAnalyzer struct {
	scores map[string]float64
	err    error
	delay  time.Duration
}

func (f *fakeAnalyzer) AnalyzeFast(ctx context.Context, clip string, style pipeline.NarrativeStyle, preset styles.Preset) (pipeline.SelectionResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return pipeline.SelectionResult{}, f.err
	}
	return pipeline.SelectionResult{ClipPath: clip, FinalScore: f.scores[clip]}, nil
}

func waitForTerminal(t *testing.T, r *Registry, id string, timeout time.Duration) pipeline.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := r.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if job.State == pipeline.JobCompleted || job.State == pipeline.JobFailed || job.State == pipeline.JobCancelled {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state within %s", id, timeout)
	return pipeline.Job{}
}

func TestCreateStartsAsPending(t *testing.T) {
	r := New(&fakeAnalyzer{})
	id := r.Create(CreateConfig{Clips: []string{"a.mp4"}, TargetSeconds: 10})

	job, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.State != pipeline.JobPending {
		t.Fatalf("expected pending, got %s", job.State)
	}
}

func TestStartProcessesAllClipsAndCompletes(t *testing.T) {
	scores := map[string]float64{"a.mp4": 0.9, "b.mp4": 0.1, "c.mp4": 0.5}
	r := New(&fakeAnalyzer{scores: scores})
	id := r.Create(CreateConfig{Clips: []string{"a.mp4", "b.mp4", "c.mp4"}, TargetSeconds: 15})

	if err := r.Start(context.Background(), id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := waitForTerminal(t, r, id, time.Second)
	if job.State != pipeline.JobCompleted {
		t.Fatalf("expected completed, got %s", job.State)
	}
	if job.Progress != 1 {
		t.Fatalf("expected progress 1, got %v", job.Progress)
	}
	if len(job.Results) != 3 {
		t.Fatalf("expected 3 results (only 3 clips exist, target-derived count of 5 clamps down), got %d", len(job.Results))
	}
	if job.Results[0].FinalScore < job.Results[1].FinalScore {
		t.Fatal("expected results sorted descending by final score")
	}
}

func TestStartTruncatesToTargetDerivedCount(t *testing.T) {
	scores := map[string]float64{}
	clips := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
	for i, c := range clips {
		scores[c] = float64(len(clips)-i) / float64(len(clips))
	}
	r := New(&fakeAnalyzer{scores: scores})
	// target=6 -> max(5, 6/3=2) = 5
	id := r.Create(CreateConfig{Clips: clips, TargetSeconds: 6})

	if err := r.Start(context.Background(), id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	job := waitForTerminal(t, r, id, time.Second)
	if len(job.Results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(job.Results))
	}
}

func TestStartOnUnknownJobFails(t *testing.T) {
	r := New(&fakeAnalyzer{})
	if err := r.Start(context.Background(), "missing"); !errors.Is(err, pipeline.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestCancelStopsAtBatchBoundary(t *testing.T) {
	clips := []string{"a", "b", "c", "d", "e", "f"} // 2 batches of 3
	r := New(&fakeAnalyzer{delay: 40 * time.Millisecond})
	id := r.Create(CreateConfig{Clips: clips, TargetSeconds: 30})

	if err := r.Start(context.Background(), id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond) // let the first batch start
	if !r.Cancel(id) {
		t.Fatal("expected Cancel to succeed while job is running")
	}

	job := waitForTerminal(t, r, id, time.Second)
	if job.State != pipeline.JobCancelled {
		t.Fatalf("expected cancelled, got %s", job.State)
	}
}

func TestCancelOnNonRunningJobReturnsFalse(t *testing.T) {
	r := New(&fakeAnalyzer{})
	id := r.Create(CreateConfig{Clips: []string{"a.mp4"}})
	if r.Cancel(id) {
		t.Fatal("expected Cancel to fail on a pending job")
	}
}

func TestCleanupRemovesOldTerminalJobs(t *testing.T) {
	r := New(&fakeAnalyzer{scores: map[string]float64{"a.mp4": 1}})
	id := r.Create(CreateConfig{Clips: []string{"a.mp4"}, TargetSeconds: 10})
	if err := r.Start(context.Background(), id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForTerminal(t, r, id, time.Second)

	restoreNow := nowFunc
	nowFunc = func() time.Time { return restoreNow().Add(48 * time.Hour) }
	defer func() { nowFunc = restoreNow }()

	removed := r.Cleanup(24 * time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 job removed, got %d", removed)
	}
	if _, err := r.Get(id); !errors.Is(err, pipeline.ErrJobNotFound) {
		t.Fatal("expected job to be gone after cleanup")
	}
}

func TestAllClipsFailingMarksJobFailed(t *testing.T) {
	r := New(&fakeAnalyzer{err: errors.New("boom")})
	id := r.Create(CreateConfig{Clips: []string{"a.mp4"}, TargetSeconds: 10})
	if err := r.Start(context.Background(), id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	job := waitForTerminal(t, r, id, time.Second)
	if job.State != pipeline.JobFailed {
		t.Fatalf("expected failed, got %s", job.State)
	}
	if job.Error == "" {
		t.Fatal("expected non-empty error message")
	}
}

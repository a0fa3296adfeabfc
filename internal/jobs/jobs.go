// Package jobs implements the Job Registry: a state
// machine for background highlight-selection runs, each progressing
// pending -> running -> {completed | failed | cancelled}.
//
// Grounded on original_source/worker/background_processor.py's
// BackgroundProcessor/ProcessingJob. github.com/google/uuid (also carried
// by the pack's starsinc1708-TorrX and activadee-videocraft examples)
// replaces the source's uuid.uuid4() for job IDs. The live Registry is
// in-memory, matching the source's own self.jobs dict; SnapshotStore and
// AuditStore are optional Redis/gorm-backed persistence layers that mirror
// every state transition out to durable storage without the state machine
// itself depending on either.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"creative-studio-server/internal/pipeline"
	"creative-studio-server/internal/selector"
	"creative-studio-server/internal/styles"
	"creative-studio-server/pkg/logger"
)

// Analyzer is the subset of *selector.Selector the Job Registry's
// executor needs: the fast per-clip analysis path, since background jobs
// run the fast (no-vision) analysis in batches.
type Analyzer interface {
	AnalyzeFast(ctx context.Context, clipPath string, style pipeline.NarrativeStyle, preset styles.Preset) (pipeline.SelectionResult, error)
}

var _ Analyzer = (*selector.Selector)(nil)

const batchSize = 3

// nowFunc is overridable in tests so CreatedAt/StartedAt/CompletedAt are
// deterministic.
var nowFunc = time.Now

// Registry holds every job created during the process's lifetime and
// tracks an in-flight cancellation handle per running job.
type Registry struct {
	mu       sync.Mutex
	jobs     map[string]*pipeline.Job
	cancels  map[string]context.CancelFunc
	analyzer Analyzer
	snapshot SnapshotStore
	audit    AuditStore
}

// Option configures optional persistence for a Registry. Without any
// Option the Registry is purely in-memory, matching
// background_processor.py's own self.jobs dict.
type Option func(*Registry)

// WithSnapshotStore durably persists every state transition (Redis-backed
// in production), so a job's status survives a process restart.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(r *Registry) { r.snapshot = s }
}

// WithAuditStore records every job state transition into a durable audit
// trail (gorm-backed in production), independent of the live Registry.
func WithAuditStore(a AuditStore) Option {
	return func(r *Registry) { r.audit = a }
}

func New(analyzer Analyzer, opts ...Option) *Registry {
	r := &Registry{
		jobs:     make(map[string]*pipeline.Job),
		cancels:  make(map[string]context.CancelFunc),
		analyzer: analyzer,
		snapshot: NewNoopSnapshotStore(),
		audit:    NewNoopAuditStore(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// persist snapshots and audits the job's current state. Caller must hold
// r.mu; persist takes its own copy so the stores never race with further
// in-process mutation.
func (r *Registry) persist(ctx context.Context, job *pipeline.Job) {
	snapshot := *job
	r.snapshot.Save(ctx, snapshot)
	r.audit.Record(ctx, snapshot)
}

// CreateConfig is the input to Create, mirroring the source's
// create(config).
type CreateConfig struct {
	Clips         []string
	MusicPath     string
	TargetSeconds int
	StoryStyle    pipeline.NarrativeStyle
	StylePreset   string
}

// Create registers a new job in state pending and returns its ID.
func (r *Registry) Create(cfg CreateConfig) string {
	id := uuid.NewString()

	r.mu.Lock()
	job := &pipeline.Job{
		ID:            id,
		Clips:         cfg.Clips,
		MusicPath:     cfg.MusicPath,
		TargetSeconds: cfg.TargetSeconds,
		StoryStyle:    cfg.StoryStyle,
		StylePreset:   cfg.StylePreset,
		State:         pipeline.JobPending,
		Progress:      0,
		CurrentStep:   "Initializing...",
		CreatedAt:     nowFunc(),
	}
	r.jobs[id] = job
	r.persist(context.Background(), job)
	r.mu.Unlock()

	logger.Infof("jobs: created %s for %d clips", id, len(cfg.Clips))
	return id
}

// Get returns a snapshot copy of a job's current state.
func (r *Registry) Get(id string) (pipeline.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return pipeline.Job{}, pipeline.ErrJobNotFound
	}
	return *job, nil
}

// Start transitions a job to running and launches its executor on a
// background goroutine. It returns once the transition is recorded; the
// executor itself runs asynchronously.
func (r *Registry) Start(ctx context.Context, id string) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return pipeline.ErrJobNotFound
	}

	now := nowFunc()
	job.State = pipeline.JobRunning
	job.StartedAt = &now
	job.CurrentStep = "Starting AI analysis..."
	job.Progress = 0

	runCtx, cancel := context.WithCancel(ctx)
	r.cancels[id] = cancel
	r.persist(ctx, job)
	r.mu.Unlock()

	logger.Infof("jobs: starting %s", id)
	go r.execute(runCtx, id)

	return nil
}

// Cancel marks a running job cancelled and signals its executor to stop
// at the next batch boundary. Returns false if the job isn't currently
// running.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.State != pipeline.JobRunning {
		return false
	}

	job.State = pipeline.JobCancelled
	if cancel, ok := r.cancels[id]; ok {
		cancel()
	}
	r.persist(context.Background(), job)
	logger.Infof("jobs: cancelled %s", id)
	return true
}

// Cleanup removes every job in a terminal state older than maxAge,
// returning how many were removed.
func (r *Registry) Cleanup(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := nowFunc()
	removed := 0
	for id, job := range r.jobs {
		if !isTerminal(job.State) {
			continue
		}
		if now.Sub(job.CreatedAt) > maxAge {
			delete(r.jobs, id)
			delete(r.cancels, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Infof("jobs: cleaned up %d old jobs", removed)
	}
	return removed
}

func isTerminal(s pipeline.JobState) bool {
	return s == pipeline.JobCompleted || s == pipeline.JobFailed || s == pipeline.JobCancelled
}

// execute runs the fast-analysis batch loop,
// updating progress/current_step at batch boundaries, then sorts and
// truncates to the best min(len, max(5, target/3)) clips.
func (r *Registry) execute(ctx context.Context, id string) {
	r.mu.Lock()
	job := r.jobs[id]
	clips := append([]string(nil), job.Clips...)
	style := job.StoryStyle
	preset := styles.Preset(job.StylePreset)
	target := job.TargetSeconds
	r.mu.Unlock()

	total := len(clips)

	results, errs := pipeline.RunBatches(ctx, clips, batchSize,
		func(ctx context.Context, clip string) (pipeline.SelectionResult, error) {
			return r.analyzer.AnalyzeFast(ctx, clip, style, preset)
		},
		func(processed, total int) {
			r.mu.Lock()
			if job.State == pipeline.JobRunning {
				job.Progress = float64(processed) / float64(total)
				job.CurrentStep = fmt.Sprintf("Processed %d/%d clips", processed, total)
			}
			r.mu.Unlock()
			logger.Infof("jobs: %s processed %d/%d clips", id, processed, total)
		},
	)

	var collected []pipeline.SelectionResult
	var firstErr error
	for i, err := range errs {
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		collected = append(collected, results[i])
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := nowFunc()

	if len(collected) == 0 && firstErr != nil {
		job.State = pipeline.JobFailed
		job.Error = firstErr.Error()
		job.CompletedAt = &now
		r.persist(context.Background(), job)
		logger.Errorf("jobs: %s failed: %v", id, firstErr)
		return
	}

	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].FinalScore > collected[j].FinalScore
	})

	targetCount := len(collected)
	if wanted := max(5, target/3); wanted < targetCount {
		targetCount = wanted
	}
	job.Results = collected[:targetCount]

	job.CompletedAt = &now
	if job.State != pipeline.JobCancelled {
		job.State = pipeline.JobCompleted
		job.Progress = 1
		job.CurrentStep = "Completed!"
		logger.Infof("jobs: %s completed with %d results", id, len(job.Results))
	}
	r.persist(context.Background(), job)
}

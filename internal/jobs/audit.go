package jobs

import (
	"context"

	"gorm.io/gorm"

	"creative-studio-server/internal/pipeline"
	"creative-studio-server/models"
	"creative-studio-server/pkg/logger"
)

// AuditStore writes a durable audit row per job, independent of the
// in-memory Registry and any Redis snapshot, so job history is queryable
// after the jobs themselves are cleaned up. Persists through
// models.JobRecord, a render-task-shaped gorm model adapted for pipeline
// jobs.
type AuditStore interface {
	Record(ctx context.Context, job pipeline.Job)
}

type noopAuditStore struct{}

func (noopAuditStore) Record(context.Context, pipeline.Job) {}

// NewNoopAuditStore is the default used when no database is configured.
func NewNoopAuditStore() AuditStore { return noopAuditStore{} }

type gormAuditStore struct {
	db *gorm.DB
}

// NewGormAuditStore records job state transitions into a JobRecord row,
// upserted by job ID.
func NewGormAuditStore(db *gorm.DB) AuditStore {
	return &gormAuditStore{db: db}
}

func (s *gormAuditStore) Record(ctx context.Context, job pipeline.Job) {
	record := models.JobRecord{
		JobID:         job.ID,
		State:         string(job.State),
		Progress:      job.Progress,
		CurrentStep:   job.CurrentStep,
		Clips:         models.StringArray(job.Clips),
		MusicPath:     job.MusicPath,
		TargetSeconds: job.TargetSeconds,
		StoryStyle:    string(job.StoryStyle),
		StylePreset:   job.StylePreset,
		ResultCount:   len(job.Results),
		ErrorMessage:  job.Error,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
	}

	err := s.db.WithContext(ctx).
		Where("job_id = ?", job.ID).
		Assign(record).
		FirstOrCreate(&models.JobRecord{JobID: job.ID}).Error
	if err != nil {
		logger.Warnf("jobs: failed to record audit row for %s: %v", job.ID, err)
	}
}

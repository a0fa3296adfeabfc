package jobs

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"creative-studio-server/internal/pipeline"
	"creative-studio-server/pkg/logger"
)

// SnapshotStore persists a job's current state somewhere outside process
// memory, so a job's status survives a worker restart even though the
// Registry's own map does not. Failures are logged, never surfaced to
// callers — snapshot persistence is best-effort, not a correctness
// requirement of the Job Registry's state machine.
type SnapshotStore interface {
	Save(ctx context.Context, job pipeline.Job)
}

type noopSnapshotStore struct{}

func (noopSnapshotStore) Save(context.Context, pipeline.Job) {}

// NewNoopSnapshotStore is the default used when no Redis client is
// configured.
func NewNoopSnapshotStore() SnapshotStore { return noopSnapshotStore{} }

type redisSnapshotStore struct {
	client *redis.Client
}

// NewRedisSnapshotStore promotes job-status durability from the Registry's
// in-memory map to Redis. No TTL is set: a job snapshot persists until
// explicitly cleaned up, matching the Registry's own Cleanup semantics.
func NewRedisSnapshotStore(client *redis.Client) SnapshotStore {
	return &redisSnapshotStore{client: client}
}

func (s *redisSnapshotStore) Save(ctx context.Context, job pipeline.Job) {
	raw, err := json.Marshal(job)
	if err != nil {
		logger.Warnf("jobs: failed to marshal snapshot for %s: %v", job.ID, err)
		return
	}
	if err := s.client.Set(ctx, "job-snapshot:"+job.ID, raw, 0).Err(); err != nil {
		logger.Warnf("jobs: failed to persist snapshot for %s: %v", job.ID, err)
	}
}

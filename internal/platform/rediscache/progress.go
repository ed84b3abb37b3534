// Package rediscache mirrors job progress into Redis for cheap status
// polling. The cache is advisory: Postgres remains the source of truth,
// and every operation here degrades to an error the caller may log and
// ignore.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/catalog-api/internal/domain"
)

// snapshotTTL bounds how long a stale snapshot can outlive its job.
const snapshotTTL = 24 * time.Hour

// redisClient is the slice of the go-redis API the cache needs.
// *redis.Client satisfies it.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ProgressSnapshot is the cached view of a job's counters.
type ProgressSnapshot struct {
	Status    string    `json:"status"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressCache reads and writes per-job progress snapshots.
type ProgressCache struct {
	rdb    redisClient
	logger *slog.Logger
}

// NewProgressCache creates a cache over the given Redis client.
func NewProgressCache(rdb redisClient, logger *slog.Logger) *ProgressCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressCache{
		rdb:    rdb,
		logger: logger.With("component", "progress_cache"),
	}
}

func progressKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:progress", jobID)
}

// Set overwrites the job's snapshot.
func (c *ProgressCache) Set(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, processed, total int) error {
	snapshot := ProgressSnapshot{
		Status:    string(status),
		Processed: processed,
		Total:     total,
		UpdatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal progress snapshot: %w", err)
	}

	if err := c.rdb.Set(ctx, progressKey(jobID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache progress for job %s: %w", jobID, err)
	}
	return nil
}

// Get returns the job's snapshot, or nil when none is cached.
func (c *ProgressCache) Get(ctx context.Context, jobID uuid.UUID) (*ProgressSnapshot, error) {
	data, err := c.rdb.Get(ctx, progressKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read progress for job %s: %w", jobID, err)
	}

	var snapshot ProgressSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		// Corrupt snapshot: drop it rather than keep serving garbage.
		c.logger.Warn("dropping unreadable progress snapshot",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()))
		_ = c.rdb.Del(ctx, progressKey(jobID)).Err()
		return nil, nil
	}
	return &snapshot, nil
}

// Delete removes the job's snapshot.
func (c *ProgressCache) Delete(ctx context.Context, jobID uuid.UUID) error {
	if err := c.rdb.Del(ctx, progressKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to delete progress for job %s: %w", jobID, err)
	}
	return nil
}

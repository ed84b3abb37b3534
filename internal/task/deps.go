package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/store"
	"github.com/phrazzld/catalog-api/internal/webhook"
)

// Tasks retry a failed batch commit a few times within their lease
// before giving up and letting redelivery take over.
const (
	maxCommitAttempts = 3
	maxCommitBackoff  = 60 * time.Second
)

// ProgressCache mirrors job counters for cheap status polling. The
// cache is advisory: tasks log and ignore its errors.
type ProgressCache interface {
	Set(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, processed, total int) error
}

// EventDispatcher delivers completion events to subscribed webhooks.
// A dispatch error means delivery was exhausted, not that the job
// failed; tasks record it on the job's error summary and move on.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event webhook.Event) error
}

// taskDeps bundles the collaborators shared by all concrete tasks. The
// factory owns one instance and hands it to every task it builds.
type taskDeps struct {
	tx       store.Transactor
	jobs     store.JobStore
	outcomes store.OutcomeStore
	products store.ProductStore
	cache    ProgressCache
	events   EventDispatcher

	importBatchSize int
	deleteBatchSize int

	logger *slog.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// setProgress writes the advisory cache snapshot, logging failures.
func (d *taskDeps) setProgress(ctx context.Context, log *slog.Logger, jobID uuid.UUID, status domain.JobStatus, processed, total int) {
	if err := d.cache.Set(ctx, jobID, status, processed, total); err != nil {
		log.Warn("failed to mirror progress to cache", "error", err)
	}
}

// commitBackoff returns the wait before the next commit attempt:
// 2^attempt seconds, capped.
func commitBackoff(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > maxCommitBackoff {
		return maxCommitBackoff
	}
	return delay
}

// transact runs fn with bounded retries. Batch writes are idempotent
// (outcome ordinals conflict away, product upserts rewrite identical
// values), so retrying a commit whose fate is unknown is safe.
func (d *taskDeps) transact(ctx context.Context, log *slog.Logger, fn store.TxFn) error {
	var lastErr error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		lastErr = d.tx.Transact(ctx, fn)
		if lastErr == nil {
			return nil
		}

		log.Warn("batch commit failed",
			"attempt", attempt,
			"error", lastErr)

		if attempt < maxCommitAttempts {
			if err := d.sleep(ctx, commitBackoff(attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

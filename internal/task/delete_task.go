package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/store"
	"github.com/phrazzld/catalog-api/internal/webhook"
)

// BulkDeletePayload is the durable payload of a bulk delete task. The
// product id set is snapshotted at enqueue time, so products created
// after the request was accepted are never deleted.
type BulkDeletePayload struct {
	JobID      uuid.UUID   `json:"job_id"`
	TenantID   uuid.UUID   `json:"tenant_id"`
	ProductIDs []uuid.UUID `json:"product_ids"`
}

// BulkDeleteTask deletes a snapshotted set of products in batches,
// advancing the job's durable progress counter after each batch. The
// counter doubles as the resume point: redelivery skips ids already
// covered, and deleting an id twice is a no-op anyway.
type BulkDeleteTask struct {
	baseTask
	job  BulkDeletePayload
	deps *taskDeps
}

// Execute runs the delete.
func (t *BulkDeleteTask) Execute(ctx context.Context) error {
	log := t.deps.logger.With(
		slog.String("job_id", t.job.JobID.String()),
		slog.Int("snapshot_size", len(t.job.ProductIDs)),
	)

	job, err := t.deps.jobs.GetByID(ctx, t.job.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status.IsTerminal() {
		log.Info("job already terminal, skipping redelivery", "status", string(job.Status))
		return nil
	}

	total := len(t.job.ProductIDs)
	if err := t.deps.jobs.MarkRunning(ctx, job.ID, total); err != nil {
		if errors.Is(err, store.ErrTerminalStatus) {
			log.Info("job finished elsewhere before start")
			return nil
		}
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	// Durable resume point.
	processed := job.ProcessedRows
	if processed > 0 {
		log.Info("resuming bulk delete", "already_processed", processed)
	}
	t.deps.setProgress(ctx, log, job.ID, domain.JobStatusRunning, processed, total)

	for processed < total {
		end := processed + t.deps.deleteBatchSize
		if end > total {
			end = total
		}
		chunk := t.job.ProductIDs[processed:end]

		err := t.deps.transact(ctx, log, func(ctx context.Context, tx *sql.Tx) error {
			if _, err := t.deps.products.WithTx(tx).DeleteByIDs(ctx, t.job.TenantID, chunk); err != nil {
				return err
			}
			return t.deps.jobs.WithTx(tx).UpdateProgress(ctx, job.ID, end, 0)
		})
		if err != nil {
			return fmt.Errorf("failed to commit delete batch at %d: %w", processed, err)
		}

		processed = end
		t.deps.setProgress(ctx, log, job.ID, domain.JobStatusRunning, processed, total)

		if processed < total {
			current, err := t.deps.jobs.GetByID(ctx, job.ID)
			if err != nil {
				return fmt.Errorf("failed to recheck job status: %w", err)
			}
			if current.Status == domain.JobStatusCancelled {
				log.Info("bulk delete stopped, job cancelled", "processed", processed)
				return nil
			}
		}
	}

	if err := t.deps.jobs.TransitionToTerminal(ctx, job.ID, domain.JobStatusSucceeded, ""); err != nil {
		if errors.Is(err, store.ErrTerminalStatus) {
			log.Info("job already finalized elsewhere, skipping completion event")
			return nil
		}
		return fmt.Errorf("failed to finalize job: %w", err)
	}

	t.deps.setProgress(ctx, log, job.ID, domain.JobStatusSucceeded, total, total)
	log.Info("bulk delete finished", "deleted_count", total)

	event := webhook.NewEvent(domain.EventBulkDeleteComplete, t.job.TenantID, job.ID, map[string]any{
		"deleted_count": total,
	})
	if err := t.deps.events.Dispatch(ctx, event); err != nil {
		log.Warn("completion event delivery failed", "error", err)
		if appendErr := t.deps.jobs.AppendErrorSummary(ctx, job.ID, fmt.Sprintf("webhook delivery failed: %v", err)); appendErr != nil {
			log.Error("failed to note delivery failure on job", "error", appendErr)
		}
	}

	return nil
}

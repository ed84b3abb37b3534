package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/ingest"
	"github.com/phrazzld/catalog-api/internal/store"
	"github.com/phrazzld/catalog-api/internal/webhook"
)

// ImportPayload is the durable payload of a catalog import task.
type ImportPayload struct {
	JobID    uuid.UUID `json:"job_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	FilePath string    `json:"file_path"`
}

// CatalogImportTask streams a CSV file through the row processor and
// applies decisions in durable batches. Execution is idempotent: row
// ordinals already recorded in the outcome ledger are skipped, so
// redelivery after a crash or an expired lease resumes where the last
// committed batch left off instead of double-applying rows.
type CatalogImportTask struct {
	baseTask
	job  ImportPayload
	deps *taskDeps
}

// Execute runs the import. Row-level problems are recorded as outcomes
// and never abort the job; only file-level problems (unreadable file,
// invalid header) fail it. A returned error marks the task failed and
// means the job could not be driven to a terminal state.
func (t *CatalogImportTask) Execute(ctx context.Context) error {
	log := t.deps.logger.With(
		slog.String("job_id", t.job.JobID.String()),
		slog.String("file", t.job.FilePath),
	)

	job, err := t.deps.jobs.GetByID(ctx, t.job.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status.IsTerminal() {
		log.Info("job already terminal, skipping redelivery", "status", string(job.Status))
		return nil
	}

	totalRows, err := t.countRows()
	if err != nil {
		// File-level fatal: the job fails before any row is processed.
		t.failJob(ctx, log, job, fmt.Sprintf("import failed: %v", err))
		return nil
	}

	if err := t.deps.jobs.MarkRunning(ctx, job.ID, totalRows); err != nil {
		if errors.Is(err, store.ErrTerminalStatus) {
			log.Info("job finished elsewhere before start")
			return nil
		}
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	// Resume point: outcomes are written in file order by a single
	// leased worker, so recorded ordinals form a prefix of the file.
	resumeAfter, err := t.deps.outcomes.MaxRecordedOrdinal(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to read resume point: %w", err)
	}
	counts, err := t.deps.outcomes.CountByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to read outcome counts: %w", err)
	}
	if resumeAfter > 0 {
		log.Info("resuming import", "resume_after_ordinal", resumeAfter)
	}

	t.deps.setProgress(ctx, log, job.ID, domain.JobStatusRunning, counts.Total, totalRows)

	if err := t.processRows(ctx, log, job, totalRows, resumeAfter, counts); err != nil {
		if errors.Is(err, errJobCancelled) {
			log.Info("import stopped, job cancelled")
			return nil
		}
		return err
	}

	return t.finalize(ctx, log, job, totalRows)
}

// errJobCancelled stops the row loop when the job was cancelled out
// from under the task.
var errJobCancelled = errors.New("job cancelled")

// countRows validates the header and counts data rows in one streaming
// pass, before any row is applied.
func (t *CatalogImportTask) countRows() (int, error) {
	f, err := os.Open(t.job.FilePath)
	if err != nil {
		return 0, fmt.Errorf("cannot open source file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ingest.CountRows(f)
}

// processRows streams the file, skipping already-recorded ordinals, and
// commits decisions in batches.
func (t *CatalogImportTask) processRows(ctx context.Context, log *slog.Logger, job *domain.IngestionJob, totalRows, resumeAfter int, counts store.OutcomeCounts) error {
	f, err := os.Open(t.job.FilePath)
	if err != nil {
		return fmt.Errorf("cannot reopen source file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader, err := ingest.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to reread csv header: %w", err)
	}

	var (
		processed = counts.Total
		failed    = counts.Failed

		batchOutcomes []*domain.RowOutcome
		batchFailed   int
		// Products decided but not yet committed, keyed by SKU. Cleared
		// after each commit; later rows then see the committed value via
		// the store. This is how two rows with the same SKU in one file
		// resolve deterministically in row order.
		batchProducts = map[string]*domain.Product{}
	)

	flush := func() error {
		if len(batchOutcomes) == 0 {
			return nil
		}

		products := make([]*domain.Product, 0, len(batchProducts))
		for _, p := range batchProducts {
			products = append(products, p)
		}

		newProcessed := processed + len(batchOutcomes)
		newFailed := failed + batchFailed

		err := t.deps.transact(ctx, log, func(ctx context.Context, tx *sql.Tx) error {
			if _, err := t.deps.outcomes.WithTx(tx).InsertBatch(ctx, batchOutcomes); err != nil {
				return err
			}
			if err := t.deps.products.WithTx(tx).UpsertBatch(ctx, products); err != nil {
				return err
			}
			return t.deps.jobs.WithTx(tx).UpdateProgress(ctx, job.ID, newProcessed, newFailed)
		})
		if err != nil {
			return fmt.Errorf("failed to commit batch ending at row %d: %w", batchOutcomes[len(batchOutcomes)-1].RowOrdinal, err)
		}

		processed = newProcessed
		failed = newFailed
		batchOutcomes = batchOutcomes[:0]
		batchFailed = 0
		batchProducts = map[string]*domain.Product{}

		t.deps.setProgress(ctx, log, job.ID, domain.JobStatusRunning, processed, totalRows)
		return nil
	}

	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read row: %w", err)
		}
		if row.Ordinal <= resumeAfter {
			continue
		}

		existing, err := t.lookupExisting(ctx, row, batchProducts)
		if err != nil {
			return err
		}

		decision := ingest.Process(t.job.TenantID, row, existing)

		var productID *uuid.UUID
		if decision.Product != nil {
			batchProducts[decision.Product.SKU] = decision.Product
			id := decision.Product.ID
			productID = &id
		} else if decision.Outcome == domain.OutcomeSkippedDuplicate && existing != nil {
			id := existing.ID
			productID = &id
		}

		outcome, err := domain.NewRowOutcome(job.ID, row.Ordinal, decision.Outcome, decision.Reason, productID)
		if err != nil {
			return fmt.Errorf("invalid outcome for row %d: %w", row.Ordinal, err)
		}
		batchOutcomes = append(batchOutcomes, outcome)
		if decision.Outcome.IsFailure() {
			batchFailed++
		}

		if len(batchOutcomes) >= t.deps.importBatchSize {
			if err := flush(); err != nil {
				return err
			}
			if err := t.checkCancelled(ctx, job.ID); err != nil {
				return err
			}
		}
	}

	return flush()
}

// lookupExisting resolves the product a row collides with: first the
// current uncommitted batch, then the store.
func (t *CatalogImportTask) lookupExisting(ctx context.Context, row ingest.Row, batchProducts map[string]*domain.Product) (*domain.Product, error) {
	sku := ingest.SKU(row)
	if sku == "" {
		return nil, nil
	}

	if p, ok := batchProducts[sku]; ok {
		return p, nil
	}

	existing, err := t.deps.products.GetBySKU(ctx, t.job.TenantID, sku)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up sku %q: %w", sku, err)
	}
	return existing, nil
}

// checkCancelled aborts the row loop when the job was moved to
// cancelled by an API caller between batches.
func (t *CatalogImportTask) checkCancelled(ctx context.Context, jobID uuid.UUID) error {
	job, err := t.deps.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to recheck job status: %w", err)
	}
	if job.Status == domain.JobStatusCancelled {
		return errJobCancelled
	}
	return nil
}

// finalize derives the terminal status from the outcome ledger and
// transitions the job exactly once. The completion event fires only
// when this call actually performed the transition.
func (t *CatalogImportTask) finalize(ctx context.Context, log *slog.Logger, job *domain.IngestionJob, totalRows int) error {
	counts, err := t.deps.outcomes.CountByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to tally outcomes: %w", err)
	}

	status := domain.JobStatusSucceeded
	summary := ""
	if counts.Failed > 0 {
		status = domain.JobStatusPartiallyFailed
		summary = fmt.Sprintf("%d of %d rows failed validation", counts.Failed, counts.Total)
	}

	if err := t.deps.jobs.TransitionToTerminal(ctx, job.ID, status, summary); err != nil {
		if errors.Is(err, store.ErrTerminalStatus) {
			log.Info("job already finalized elsewhere, skipping completion event")
			return nil
		}
		return fmt.Errorf("failed to finalize job: %w", err)
	}

	t.deps.setProgress(ctx, log, job.ID, status, counts.Total, totalRows)
	log.Info("import finished",
		"status", string(status),
		"created", counts.Created,
		"updated", counts.Updated,
		"skipped", counts.Skipped,
		"failed", counts.Failed)

	t.emitCompletion(ctx, log, job, status, counts)
	return nil
}

// failJob drives the job to failed for file-level fatal errors. The
// guard makes this safe under redelivery.
func (t *CatalogImportTask) failJob(ctx context.Context, log *slog.Logger, job *domain.IngestionJob, summary string) {
	err := t.deps.jobs.TransitionToTerminal(ctx, job.ID, domain.JobStatusFailed, summary)
	if errors.Is(err, store.ErrTerminalStatus) {
		return
	}
	if err != nil {
		log.Error("failed to mark job failed", "error", err)
		return
	}

	t.deps.setProgress(ctx, log, job.ID, domain.JobStatusFailed, 0, 0)
	log.Warn("import failed before processing rows", "reason", summary)

	t.emitCompletion(ctx, log, job, domain.JobStatusFailed, store.OutcomeCounts{})
}

// emitCompletion dispatches the upload completion event. Delivery
// failure is noted on the job but never re-fails it.
func (t *CatalogImportTask) emitCompletion(ctx context.Context, log *slog.Logger, job *domain.IngestionJob, status domain.JobStatus, counts store.OutcomeCounts) {
	event := webhook.NewEvent(domain.EventProductUploadComplete, t.job.TenantID, job.ID, map[string]any{
		"status":         string(status),
		"total_products": counts.Total,
		"created":        counts.Created,
		"updated":        counts.Updated,
		"skipped":        counts.Skipped,
		"failed":         counts.Failed,
	})

	if err := t.deps.events.Dispatch(ctx, event); err != nil {
		log.Warn("completion event delivery failed", "error", err)
		if appendErr := t.deps.jobs.AppendErrorSummary(ctx, job.ID, fmt.Sprintf("webhook delivery failed: %v", err)); appendErr != nil {
			log.Error("failed to note delivery failure on job", "error", appendErr)
		}
	}
}

package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// OutcomeType is the decision recorded for a single row of an
// ingestion file.
type OutcomeType string

// Possible row outcome values
const (
	OutcomeCreated          OutcomeType = "created"
	OutcomeUpdated          OutcomeType = "updated"
	OutcomeSkippedDuplicate OutcomeType = "skipped_duplicate"
	OutcomeRejected         OutcomeType = "rejected"
)

// Rejection and skip reasons recorded alongside outcomes. These are the
// only failure surface for row-level problems; a rejected row never
// aborts its job.
const (
	ReasonMissingSKU    = "missing_sku"
	ReasonMissingName   = "missing_name"
	ReasonInvalidPrice  = "invalid_price"
	ReasonNegativePrice = "negative_price"
	ReasonSKUExists     = "sku_exists_no_override"
)

// Common validation errors for RowOutcome
var (
	ErrEmptyOutcomeJobID  = errors.New("row outcome job ID cannot be empty")
	ErrInvalidRowOrdinal  = errors.New("row ordinal must be positive")
	ErrMissingReason      = errors.New("rejected and skipped outcomes require a reason")
	ErrUnexpectedProduct  = errors.New("rejected outcomes cannot reference a product")
	ErrMissingProductRef  = errors.New("created and updated outcomes require a product reference")
)

// RowOutcome is the append-only record of one row decision. A row
// ordinal already recorded for a job is never reprocessed, which is
// what makes redelivery after a crash safe.
type RowOutcome struct {
	JobID      uuid.UUID   `json:"job_id"`
	RowOrdinal int         `json:"row_ordinal"`
	Outcome    OutcomeType `json:"outcome"`
	Reason     string      `json:"reason,omitempty"`
	ProductID  *uuid.UUID  `json:"product_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewRowOutcome creates a validated RowOutcome record.
func NewRowOutcome(jobID uuid.UUID, ordinal int, outcome OutcomeType, reason string, productID *uuid.UUID) (*RowOutcome, error) {
	o := &RowOutcome{
		JobID:      jobID,
		RowOrdinal: ordinal,
		Outcome:    outcome,
		Reason:     reason,
		ProductID:  productID,
		CreatedAt:  time.Now().UTC(),
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}

	return o, nil
}

// Validate checks if the RowOutcome has valid data.
func (o *RowOutcome) Validate() error {
	if o.JobID == uuid.Nil {
		return ErrEmptyOutcomeJobID
	}

	if o.RowOrdinal < 1 {
		return ErrInvalidRowOrdinal
	}

	switch o.Outcome {
	case OutcomeCreated, OutcomeUpdated:
		if o.ProductID == nil || *o.ProductID == uuid.Nil {
			return ErrMissingProductRef
		}
	case OutcomeSkippedDuplicate, OutcomeRejected:
		if o.Reason == "" {
			return ErrMissingReason
		}
		if o.Outcome == OutcomeRejected && o.ProductID != nil {
			return ErrUnexpectedProduct
		}
	default:
		return ErrInvalidOutcome
	}

	return nil
}

// IsFailure reports whether the outcome counts toward a job's
// failed_rows tally.
func (o OutcomeType) IsFailure() bool {
	return o == OutcomeRejected
}

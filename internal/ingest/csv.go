// Package ingest contains the CSV parsing and row decision logic for
// catalog imports. The row processor is a pure function; all storage
// mutation happens in the task layer after a decision is made.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// RequiredColumns are the header columns every import file must carry.
// A file missing any of them is a job-level fatal error: the job fails
// before any row is processed.
var RequiredColumns = []string{"name", "sku", "description"}

// Header and file-level parse errors.
var (
	ErrMissingHeader  = errors.New("csv file does not contain a header row")
	ErrMissingColumns = errors.New("csv file is missing required columns")
)

// Row is one parsed CSV record. Ordinals are 1-based file positions and
// drive the idempotent-resume ledger.
type Row struct {
	Ordinal int
	Values  map[string]string
}

// Reader streams rows from an import file in order. Column names are
// normalized to lower case; ragged records are tolerated (short rows
// leave trailing columns blank) so a malformed row can be rejected
// per-row instead of aborting the job.
type Reader struct {
	cr      *csv.Reader
	columns []string
	ordinal int
}

// NewReader wraps r, reads the header row, and validates the required
// column set. Returns ErrMissingHeader or ErrMissingColumns on invalid
// headers.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingHeader
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	columns := normalizeHeader(header)
	if err := validateColumns(columns); err != nil {
		return nil, err
	}

	return &Reader{cr: cr, columns: columns}, nil
}

// Next returns the next row in file order, or io.EOF when the file is
// exhausted.
func (r *Reader) Next() (Row, error) {
	record, err := r.cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		return Row{}, fmt.Errorf("failed to read csv record: %w", err)
	}

	r.ordinal++
	values := make(map[string]string, len(r.columns))
	for i, col := range r.columns {
		if i < len(record) {
			values[col] = record[i]
		} else {
			values[col] = ""
		}
	}

	return Row{Ordinal: r.ordinal, Values: values}, nil
}

// Columns returns the normalized header columns in file order.
func (r *Reader) Columns() []string {
	return r.columns
}

// CountRows streams the file once and returns the number of data rows.
// The total is persisted on the job before processing starts so
// progress percentages are meaningful from the first batch.
func CountRows(r io.Reader) (int, error) {
	reader, err := NewReader(r)
	if err != nil {
		return 0, err
	}

	count := 0
	for {
		_, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return 0, err
		}
		count++
	}
}

// normalizeHeader trims, lower-cases, and strips a UTF-8 BOM from the
// header columns.
func normalizeHeader(header []string) []string {
	columns := make([]string, len(header))
	for i, col := range header {
		col = strings.TrimPrefix(col, "\uFEFF")
		columns[i] = strings.ToLower(strings.TrimSpace(col))
	}
	return columns
}

func validateColumns(columns []string) error {
	present := make(map[string]bool, len(columns))
	for _, col := range columns {
		present[col] = true
	}

	var missing []string
	for _, required := range RequiredColumns {
		if !present[required] {
			missing = append(missing, required)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	return nil
}

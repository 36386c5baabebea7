/*
pipeline.go - Bulk CSV import/export pipeline

PURPOSE:
  Parses and serializes the tabular interchange format and feeds each
  import row through the reconciliation engine, aggregating counts.

CSV SHAPE:
  Header: Address, Name, Bill Amount, Due Date (YYYY-MM-DD)
  Rows:   [address, name, amount, due_date, uid?]
  The uid column is optional for backward compatibility with files
  exported before UIDs existed.

IMPORT POLICY:
  - Header row is skipped
  - Rows with fewer than 4 fields, or a blank address/name after
    trimming, are skipped (counted, never aborting)
  - A blank uid column delegates to the engine's keep-or-generate rule
  - Rows run strictly sequentially, each in its own transaction
  - A UID conflict aborts the batch at the failing row; earlier rows stay
    committed. The report records the processed count and failing line so
    the partial commit is explicit rather than silent.

SEE ALSO:
  - reconcile.go: Per-row semantics
  - api/handlers.go: HTTP upload/download endpoints
*/
package billing

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CSVHeader is the fixed export header and the row shape imports expect.
var CSVHeader = []string{"Address", "Name", "Bill Amount", "Due Date (YYYY-MM-DD)"}

// ImportReport summarizes one import batch.
type ImportReport struct {
	BatchID    string `json:"batch_id"`
	Processed  int    `json:"processed"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Aborted    bool   `json:"aborted"`
	FailedLine int    `json:"failed_line,omitempty"` // 1-based CSV line of the aborting row
}

// Pipeline imports and exports billing records in bulk.
type Pipeline struct {
	engine *Engine
	store  BillStore
}

// NewPipeline creates a pipeline over the given engine and store.
func NewPipeline(engine *Engine, store BillStore) *Pipeline {
	return &Pipeline{engine: engine, store: store}
}

// Import consumes CSV rows from r, reconciling each one. The returned
// report is meaningful even when err is non-nil: on a UID conflict it
// describes the rows committed before the abort.
func (p *Pipeline) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	report := ImportReport{BatchID: uuid.New().String()}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // row length is validated per row

	// Header row. An empty file imports zero records.
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return report, nil
		}
		return report, fmt.Errorf("read csv header: %w", err)
	}

	line := 1
	for {
		line++
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return report, nil
		}
		if err != nil {
			return report, fmt.Errorf("read csv line %d: %w", line, err)
		}

		rec, ok := parseRow(row)
		if !ok {
			report.Skipped++
			continue
		}

		_, outcome, err := p.engine.Reconcile(ctx, rec)
		switch {
		case err == nil:
			report.Processed++
			if outcome == OutcomeCreated {
				report.Created++
			} else {
				report.Updated++
			}
		case errors.Is(err, ErrValidation):
			// Malformed row, same treatment as a blank address.
			report.Skipped++
		case errors.Is(err, ErrUIDConflict):
			report.Aborted = true
			report.FailedLine = line
			return report, err
		default:
			report.Aborted = true
			report.FailedLine = line
			return report, fmt.Errorf("import line %d: %w", line, err)
		}
	}
}

// parseRow maps one CSV row onto a Record. Returns ok=false for rows that
// the import policy skips outright.
func parseRow(row []string) (Record, bool) {
	if len(row) < 4 {
		return Record{}, false
	}

	address := NormalizeAddress(row[0])
	name := strings.TrimSpace(row[1])
	if address == "" || name == "" {
		return Record{}, false
	}

	amount := decimal.Zero
	if raw := strings.TrimSpace(row[2]); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return Record{}, false
		}
		amount = parsed
	}

	rec := Record{
		Address: string(address),
		Name:    name,
		UID:     KeepExistingUID(),
		Amount:  amount,
		DueDate: strings.TrimSpace(row[3]),
	}
	if len(row) >= 5 {
		if uid := strings.TrimSpace(row[4]); uid != "" {
			rec.UID = ExplicitUID(uid)
		}
	}
	return rec, true
}

// Export writes every resident and their current bill to w as CSV, with
// the fixed header and address-ascending order. Residents without a bill
// export amount 0 and a blank due date.
func (p *Pipeline) Export(ctx context.Context, w io.Writer) error {
	records, err := p.store.ListAllWithResidents(ctx)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rb := range records {
		amount := "0"
		dueDate := ""
		if rb.Bill != nil {
			amount = rb.Bill.Amount.String()
			dueDate = rb.Bill.DueDate
		}
		row := []string{string(rb.Resident.Address), rb.Resident.Name, amount, dueDate}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

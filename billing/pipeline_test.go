package billing_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/billdesk/billing"
	"github.com/openmuni/billdesk/billing/store"
)

func newTestPipeline() (*billing.Pipeline, *store.Memory) {
	mem := store.NewMemory()
	engine := billing.NewEngine(mem)
	return billing.NewPipeline(engine, mem), mem
}

const csvHeader = "Address,Name,Bill Amount,Due Date (YYYY-MM-DD)\n"

// =============================================================================
// IMPORT
// =============================================================================

func TestImport_ProcessesRowsAndSkipsInvalidOnes(t *testing.T) {
	// GIVEN: A CSV with good rows, a short row, and a blank-name row
	// WHEN: Importing
	// THEN: Good rows commit, bad rows are skipped without aborting

	pipeline, mem := newTestPipeline()
	ctx := context.Background()

	input := csvHeader +
		"12 main st,J. Doe,150.00,2025-03-01\n" +
		"short,row\n" +
		"7 ELM ST, ,25,2025-03-05\n" +
		"5 OAK AVE,A. Lee,200,2025-04-01,999999\n"

	report, err := pipeline.Import(ctx, strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 2, report.Skipped)
	assert.False(t, report.Aborted)
	assert.NotEmpty(t, report.BatchID)

	// Address normalized, uid from the 5th column honored
	lee, err := mem.FindByUID(ctx, "999999")
	require.NoError(t, err)
	require.NotNil(t, lee)
	assert.Equal(t, billing.Address("5 OAK AVE"), lee.Address)

	doe, err := mem.FindByAddress(ctx, "12 MAIN ST")
	require.NoError(t, err)
	require.NotNil(t, doe)
	assert.True(t, billing.IsValidUID(doe.UID), "blank uid column should generate one")
}

func TestImport_UIDCollision_AbortsBatchWithPartialCommit(t *testing.T) {
	// GIVEN: Two rows claiming the same uid for different addresses
	// WHEN: Importing
	// THEN: The first row commits, the batch aborts at the second with
	//       count=1 processed

	pipeline, mem := newTestPipeline()
	ctx := context.Background()

	input := csvHeader +
		"5 OAK AVE,A. Lee,200,2025-04-01,999999\n" +
		"6 PINE RD,B. Lee,50,2025-04-05,999999\n" +
		"8 BIRCH LN,C. Lee,75,2025-04-06\n"

	report, err := pipeline.Import(ctx, strings.NewReader(input))
	require.ErrorIs(t, err, billing.ErrUIDConflict)

	assert.Equal(t, 1, report.Processed)
	assert.True(t, report.Aborted)
	assert.Equal(t, 3, report.FailedLine)

	// Earlier row persisted
	lee, err := mem.FindByAddress(ctx, "5 OAK AVE")
	require.NoError(t, err)
	require.NotNil(t, lee)

	// Rows after the failure never ran
	after, err := mem.FindByAddress(ctx, "8 BIRCH LN")
	require.NoError(t, err)
	assert.Nil(t, after)
}

func TestImport_BlankAmountClearsBill(t *testing.T) {
	pipeline, mem := newTestPipeline()
	ctx := context.Background()

	_, err := pipeline.Import(ctx, strings.NewReader(csvHeader+
		"12 MAIN ST,J. Doe,150.00,2025-03-01\n"))
	require.NoError(t, err)

	_, err = pipeline.Import(ctx, strings.NewReader(csvHeader+
		"12 MAIN ST,J. Doe,,\n"))
	require.NoError(t, err)

	bill, err := mem.FindBill(ctx, "12 MAIN ST")
	require.NoError(t, err)
	assert.Nil(t, bill)
}

func TestImport_EmptyFile_ReportsZero(t *testing.T) {
	pipeline, _ := newTestPipeline()

	report, err := pipeline.Import(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 0, report.Skipped)
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExport_HeaderAndBilllessResidents(t *testing.T) {
	// Residents without a bill export amount 0 and an empty due date,
	// ordered by address ascending.

	pipeline, _ := newTestPipeline()
	ctx := context.Background()

	_, err := pipeline.Import(ctx, strings.NewReader(csvHeader+
		"6 PINE RD,B. Lee,50,2025-04-05\n"+
		"5 OAK AVE,A. Lee,0,\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, pipeline.Export(ctx, &out))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `Address,Name,Bill Amount,Due Date (YYYY-MM-DD)`, lines[0])
	assert.Equal(t, `5 OAK AVE,A. Lee,0,`, lines[1])
	assert.Equal(t, `6 PINE RD,B. Lee,50,2025-04-05`, lines[2])
}

func TestExportImport_RoundTripIsStable(t *testing.T) {
	// GIVEN: A populated store
	// WHEN: Exporting, re-importing the same CSV, and exporting again
	// THEN: Both exports and the full listing are identical

	pipeline, mem := newTestPipeline()
	ctx := context.Background()

	_, err := pipeline.Import(ctx, strings.NewReader(csvHeader+
		"12 MAIN ST,J. Doe,150.00,2025-03-01\n"+
		"5 OAK AVE,A. Lee,200,2025-04-01,999999\n"+
		"9 LAKE DR,C. Ruiz,0,\n"))
	require.NoError(t, err)

	var first bytes.Buffer
	require.NoError(t, pipeline.Export(ctx, &first))

	before, err := mem.ListAllWithResidents(ctx)
	require.NoError(t, err)

	report, err := pipeline.Import(ctx, bytes.NewReader(first.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 3, report.Updated)

	var second bytes.Buffer
	require.NoError(t, pipeline.Export(ctx, &second))
	assert.Equal(t, first.String(), second.String())

	after, err := mem.ListAllWithResidents(ctx)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Resident, after[i].Resident, "resident %d changed on re-import", i)
	}
}

package billing_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/billdesk/billing"
	"github.com/openmuni/billdesk/billing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine() (*billing.Engine, *store.Memory) {
	mem := store.NewMemory()
	return billing.NewEngine(mem), mem
}

func amt(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// =============================================================================
// CREATE / UPDATE
// =============================================================================

func TestReconcile_NewResident_CreatesWithFreshUID(t *testing.T) {
	// GIVEN: No record exists for 12 MAIN ST
	// WHEN: Reconciling a lowercase, untrimmed address with a bill
	// THEN: Resident is created under the normalized address with a
	//       6-digit UID and the bill attached

	engine, mem := newTestEngine()
	ctx := context.Background()

	resident, outcome, err := engine.Reconcile(ctx, billing.Record{
		Address: "  12 main st ",
		Name:    "J. Doe",
		UID:     billing.KeepExistingUID(),
		Amount:  amt("150.00"),
		DueDate: "2025-03-01",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.OutcomeCreated, outcome)
	assert.Equal(t, billing.Address("12 MAIN ST"), resident.Address)
	assert.True(t, billing.IsValidUID(resident.UID), "uid %q should be 6 digits", resident.UID)

	found, err := mem.FindByAddress(ctx, "12 MAIN ST")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "J. Doe", found.Name)
	assert.Equal(t, resident.UID, found.UID)

	bill, err := mem.FindBill(ctx, "12 MAIN ST")
	require.NoError(t, err)
	require.NotNil(t, bill)
	assert.True(t, bill.Amount.Equal(amt("150.00")))
	assert.Equal(t, "2025-03-01", bill.DueDate)
}

func TestReconcile_Update_KeepsUIDAndClearsBillOnZeroAmount(t *testing.T) {
	// GIVEN: 12 MAIN ST exists with a UID and a bill
	// WHEN: Reconciling again with amount 0 and no UID input
	// THEN: The bill becomes absent and the resident keeps the prior UID

	engine, mem := newTestEngine()
	ctx := context.Background()

	first, _, err := engine.Reconcile(ctx, billing.Record{
		Address: "12 MAIN ST", Name: "J. Doe",
		UID: billing.KeepExistingUID(), Amount: amt("150.00"), DueDate: "2025-03-01",
	})
	require.NoError(t, err)

	second, outcome, err := engine.Reconcile(ctx, billing.Record{
		Address: "12 MAIN ST", Name: "J. Doe",
		UID: billing.KeepExistingUID(), Amount: decimal.Zero,
	})
	require.NoError(t, err)

	assert.Equal(t, billing.OutcomeUpdated, outcome)
	assert.Equal(t, first.UID, second.UID, "plain update must not regenerate the uid")

	bill, err := mem.FindBill(ctx, "12 MAIN ST")
	require.NoError(t, err)
	assert.Nil(t, bill, "zero amount should leave no bill")
}

func TestReconcile_Upsert_FullReplaceIsIdempotent(t *testing.T) {
	// Repeating the same record leaves the same resident and bill.

	engine, mem := newTestEngine()
	ctx := context.Background()

	rec := billing.Record{
		Address: "5 OAK AVE", Name: "A. Lee",
		UID: billing.ExplicitUID("314159"), Amount: amt("200"), DueDate: "2025-04-01",
	}
	_, _, err := engine.Reconcile(ctx, rec)
	require.NoError(t, err)
	_, outcome, err := engine.Reconcile(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeUpdated, outcome)

	found, err := mem.FindByAddress(ctx, "5 OAK AVE")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "A. Lee", found.Name)
	assert.Equal(t, "314159", found.UID)

	all, err := mem.ListAllWithResidents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestReconcile_EmptyAddressOrName_Rejected(t *testing.T) {
	engine, mem := newTestEngine()
	ctx := context.Background()

	_, _, err := engine.Reconcile(ctx, billing.Record{Address: "   ", Name: "J. Doe"})
	assert.ErrorIs(t, err, billing.ErrValidation)

	_, _, err = engine.Reconcile(ctx, billing.Record{Address: "12 MAIN ST", Name: " "})
	assert.ErrorIs(t, err, billing.ErrValidation)

	all, err := mem.ListAllWithResidents(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "rejected records must not write anything")
}

func TestReconcile_MalformedExplicitUID_Rejected(t *testing.T) {
	engine, _ := newTestEngine()

	_, _, err := engine.Reconcile(context.Background(), billing.Record{
		Address: "12 MAIN ST", Name: "J. Doe",
		UID: billing.ExplicitUID("12ab"), Amount: amt("10"), DueDate: "2025-01-01",
	})

	assert.ErrorIs(t, err, billing.ErrValidation)
	var verr *billing.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "uid", verr.Field)
}

// =============================================================================
// UID CONFLICTS
// =============================================================================

func TestReconcile_UIDClaimedByOtherAddress_AbortsWholeRecord(t *testing.T) {
	// GIVEN: UID 999999 belongs to 5 OAK AVE, which also has a bill
	// WHEN: Reconciling 6 PINE RD with the same explicit UID
	// THEN: The record fails with a UID conflict and 5 OAK AVE's
	//       resident and bill are untouched; 6 PINE RD gains no bill

	engine, mem := newTestEngine()
	ctx := context.Background()

	_, _, err := engine.Reconcile(ctx, billing.Record{
		Address: "5 OAK AVE", Name: "A. Lee",
		UID: billing.ExplicitUID("999999"), Amount: amt("200"), DueDate: "2025-04-01",
	})
	require.NoError(t, err)

	_, _, err = engine.Reconcile(ctx, billing.Record{
		Address: "6 PINE RD", Name: "B. Lee",
		UID: billing.ExplicitUID("999999"), Amount: amt("50"), DueDate: "2025-04-05",
	})
	require.ErrorIs(t, err, billing.ErrUIDConflict)

	var conflict *billing.UIDConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "999999", conflict.UID)
	assert.Equal(t, billing.Address("5 OAK AVE"), conflict.ClaimedBy)

	// First record unchanged
	owner, err := mem.FindByAddress(ctx, "5 OAK AVE")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "999999", owner.UID)
	bill, err := mem.FindBill(ctx, "5 OAK AVE")
	require.NoError(t, err)
	require.NotNil(t, bill)
	assert.True(t, bill.Amount.Equal(amt("200")))

	// Failing record wrote nothing
	loser, err := mem.FindByAddress(ctx, "6 PINE RD")
	require.NoError(t, err)
	assert.Nil(t, loser)
	bill, err = mem.FindBill(ctx, "6 PINE RD")
	require.NoError(t, err)
	assert.Nil(t, bill)
}

func TestReconcile_ExplicitUID_SameAddressReassignIsAllowed(t *testing.T) {
	// Re-supplying a resident's own UID is not a conflict.

	engine, _ := newTestEngine()
	ctx := context.Background()

	_, _, err := engine.Reconcile(ctx, billing.Record{
		Address: "5 OAK AVE", Name: "A. Lee",
		UID: billing.ExplicitUID("271828"), Amount: amt("200"), DueDate: "2025-04-01",
	})
	require.NoError(t, err)

	resident, _, err := engine.Reconcile(ctx, billing.Record{
		Address: "5 oak ave", Name: "A. Lee-Chen",
		UID: billing.ExplicitUID("271828"), Amount: amt("75"), DueDate: "2025-05-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "271828", resident.UID)
	assert.Equal(t, "A. Lee-Chen", resident.Name)
}

func TestReconcile_GenerateNew_ReplacesExistingUID(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	first, _, err := engine.Reconcile(ctx, billing.Record{
		Address: "12 MAIN ST", Name: "J. Doe",
		UID: billing.KeepExistingUID(), Amount: amt("10"), DueDate: "2025-01-01",
	})
	require.NoError(t, err)

	second, _, err := engine.Reconcile(ctx, billing.Record{
		Address: "12 MAIN ST", Name: "J. Doe",
		UID: billing.GenerateNewUID(), Amount: amt("10"), DueDate: "2025-01-01",
	})
	require.NoError(t, err)

	assert.True(t, billing.IsValidUID(second.UID))
	assert.NotEqual(t, first.UID, second.UID)
}

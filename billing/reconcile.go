/*
reconcile.go - The identity-upsert + bill-replace reconciliation engine

PURPOSE:
  Single entry point for every write to resident and bill state: an admin
  saving one record and a bulk import row both flow through Reconcile.
  Given (address, name, uid choice, amount, due date) it decides how to
  create/update the identity and replace the bill, atomically.

ALGORITHM:
  1. Normalize address (trim + uppercase); reject empty address or name
  2. Resolve the final UID:
     - Explicit input is used as-is (after format check)
     - Otherwise an existing resident keeps their UID
     - Otherwise a fresh unique UID is generated
  3. Upsert the resident. A UID claimed by a different address aborts the
     whole record here - the bill step never runs
  4. Replace the bill (amount <= 0 deletes it)
  5. Report created or updated

ORDERING INVARIANT:
  Identity resolution must succeed before the bill is touched. A bill is
  meaningless without a uniquely-identified owner, so a UID constraint
  failure must not leave behind a mutated bill. Both steps run inside one
  store transaction; either the whole record commits or none of it does.

SEE ALSO:
  - store.go: The transactional Store contract
  - pipeline.go: Feeds import rows through Reconcile
*/
package billing

import (
	"context"
	"strings"
)

// Engine ties the identity store and bill store together under a single
// transaction boundary. It holds no persistent state itself.
type Engine struct {
	store Store
	uids  *UIDGenerator
}

// NewEngine creates a reconciliation engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, uids: NewUIDGenerator()}
}

// Reconcile applies one record. On success it returns the resulting
// resident and whether the resident row was created or updated. On any
// error nothing the record implied is committed.
func (e *Engine) Reconcile(ctx context.Context, rec Record) (Resident, Outcome, error) {
	address := NormalizeAddress(rec.Address)
	name := strings.TrimSpace(rec.Name)

	if address == "" {
		return Resident{}, "", &ValidationError{Field: "address", Message: "must not be empty"}
	}
	if name == "" {
		return Resident{}, "", &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if rec.UID.Mode == UIDExplicit && !IsValidUID(rec.UID.Value) {
		return Resident{}, "", &ValidationError{Field: "uid", Message: "must be exactly 6 digits"}
	}

	var (
		resident Resident
		outcome  Outcome
	)
	err := e.store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.FindByAddress(ctx, address)
		if err != nil {
			return err
		}

		uid, err := e.resolveUID(ctx, tx, address, existing, rec.UID)
		if err != nil {
			return err
		}

		resident = Resident{Address: address, Name: name, UID: uid}
		if err := tx.UpsertResident(ctx, resident); err != nil {
			return err
		}

		if err := tx.ReplaceBill(ctx, Bill{Address: address, Amount: rec.Amount, DueDate: rec.DueDate}); err != nil {
			return err
		}

		outcome = OutcomeUpdated
		if existing == nil {
			outcome = OutcomeCreated
		}
		return nil
	})
	if err != nil {
		return Resident{}, "", err
	}
	return resident, outcome, nil
}

// resolveUID determines the final UID for the record per its UIDChoice.
// Explicit values are checked against the current owner so the caller gets
// a UIDConflictError naming the claiming address instead of a bare
// constraint failure; the store's unique index remains the backstop.
func (e *Engine) resolveUID(ctx context.Context, tx Store, address Address, existing *Resident, choice UIDChoice) (string, error) {
	switch choice.Mode {
	case UIDExplicit:
		owner, err := tx.FindByUID(ctx, choice.Value)
		if err != nil {
			return "", err
		}
		if owner != nil && owner.Address != address {
			return "", &UIDConflictError{UID: choice.Value, Requested: address, ClaimedBy: owner.Address}
		}
		return choice.Value, nil

	case UIDKeepExisting:
		if existing != nil && existing.UID != "" {
			return existing.UID, nil
		}
		return e.generateUID(ctx, tx)

	default: // UIDGenerateNew
		return e.generateUID(ctx, tx)
	}
}

func (e *Engine) generateUID(ctx context.Context, tx Store) (string, error) {
	return e.uids.GenerateUnique(ctx, func(ctx context.Context, uid string) (bool, error) {
		owner, err := tx.FindByUID(ctx, uid)
		if err != nil {
			return false, err
		}
		return owner != nil, nil
	})
}

/*
store.go - Persistence interfaces for residents and bills

PURPOSE:
  Defines the interface between the reconciliation engine and the
  database. Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  IdentityStore: address/uid -> resident mapping (exclusively owns it)
  BillStore:     address -> current bill mapping (exclusively owns it)
  Store:         Both, plus WithTx for the reconcile transaction boundary

OWNERSHIP:
  The engine holds no persistent state of its own. It composes the two
  stores inside a single transaction per record: the identity upsert must
  commit-or-fail before the bill is touched.

NOT-FOUND CONVENTION:
  Finders return (nil, nil) when nothing matches. ErrNotFound is layered
  on at the API boundary where an empty result needs a user-visible shape.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - billing/store/memory.go: In-memory for testing

SEE ALSO:
  - reconcile.go: Uses Store.WithTx
*/
package billing

import "context"

// =============================================================================
// IDENTITY STORE
// =============================================================================

// IdentityStore persists the address -> resident mapping.
type IdentityStore interface {
	// FindByAddress returns the resident at the normalized address, or
	// (nil, nil) if none exists.
	FindByAddress(ctx context.Context, address Address) (*Resident, error)

	// FindByUID returns the resident owning the given UID, or (nil, nil).
	FindByUID(ctx context.Context, uid string) (*Resident, error)

	// UpsertResident inserts a new resident or fully replaces the row for
	// an existing address (name and uid both overwritten). Returns an
	// error wrapping ErrUIDConflict if the UID is already assigned to a
	// different address.
	UpsertResident(ctx context.Context, r Resident) error
}

// =============================================================================
// BILL STORE
// =============================================================================

// BillStore persists the address -> current bill mapping. At most one bill
// exists per address.
type BillStore interface {
	// FindBill returns the current bill for the address, or (nil, nil).
	FindBill(ctx context.Context, address Address) (*Bill, error)

	// ReplaceBill deletes any existing bill for the address, then inserts
	// the new one only if bill.Amount > 0. A zero or negative amount
	// leaves the address with no bill.
	ReplaceBill(ctx context.Context, bill Bill) error

	// ListAllWithResidents returns every resident left-joined with their
	// bill (nil when absent), ordered by address ascending.
	ListAllWithResidents(ctx context.Context) ([]ResidentBill, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is the full persistence surface the reconciliation engine needs.
type Store interface {
	IdentityStore
	BillStore

	// WithTx runs fn against a transactional view of the store. If fn
	// returns an error the transaction is rolled back and nothing fn did
	// is visible; otherwise it commits atomically.
	WithTx(ctx context.Context, fn func(store Store) error) error
}

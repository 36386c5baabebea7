/*
Package billing provides the core resident identity and billing
reconciliation engine.

PURPOSE:
  This package contains the domain types and algorithms that govern how a
  street address (and its optional public UID) maps to a resident, how the
  single current bill attaches to that identity, and how untrusted external
  rows are reconciled against existing records without creating duplicates
  or UID collisions.

KEY CONCEPTS IN THIS FILE (types.go):
  - Address: Normalized primary identity key (trim + uppercase)
  - Resident: A billing identity keyed by address
  - Bill: The single current amount-due record for an address
  - UIDChoice: Tagged choice for UID handling on save/import
  - Outcome: Whether a reconcile created or updated the resident

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for money, never float64
  2. Full replace: Bills are deleted and recreated, never patched
  3. Explicit intent: Blank-vs-absent UID input is a tagged choice,
     not an overloaded empty string

SEE ALSO:
  - reconcile.go: The upsert/replace algorithm tying identity and bill
  - store.go: Persistence interfaces
  - uid.go: Random 6-digit UID generation
*/
package billing

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ADDRESS - Primary identity key
// =============================================================================

// Address is a normalized street address. Always produced by
// NormalizeAddress; never construct one from raw user input directly.
type Address string

// NormalizeAddress trims surrounding whitespace and uppercases the input.
// "12 main st " and "12 MAIN ST" identify the same resident.
func NormalizeAddress(raw string) Address {
	return Address(strings.ToUpper(strings.TrimSpace(raw)))
}

// =============================================================================
// UID - Optional public lookup identifier
// =============================================================================

// uidPattern matches exactly six decimal digits, leading zeros included.
var uidPattern = regexp.MustCompile(`^[0-9]{6}$`)

// IsValidUID reports whether s is a well-formed 6-digit UID string.
func IsValidUID(s string) bool {
	return uidPattern.MatchString(s)
}

// UIDMode selects how the reconciler resolves a resident's UID.
type UIDMode int

const (
	// UIDKeepExisting keeps the resident's current UID if one exists,
	// otherwise generates a fresh one. This is the default for saves and
	// import rows that leave the uid column blank.
	UIDKeepExisting UIDMode = iota

	// UIDExplicit uses the supplied value as-is (admin or import override).
	UIDExplicit

	// UIDGenerateNew always draws a fresh unique UID, discarding any
	// existing assignment.
	UIDGenerateNew
)

// UIDChoice carries the mode and, for UIDExplicit, the value.
type UIDChoice struct {
	Mode  UIDMode
	Value string
}

// KeepExistingUID resolves to the resident's current UID, generating one
// only when the resident has none.
func KeepExistingUID() UIDChoice { return UIDChoice{Mode: UIDKeepExisting} }

// ExplicitUID uses the given UID verbatim.
func ExplicitUID(uid string) UIDChoice {
	return UIDChoice{Mode: UIDExplicit, Value: uid}
}

// GenerateNewUID forces a fresh unique UID.
func GenerateNewUID() UIDChoice { return UIDChoice{Mode: UIDGenerateNew} }

// =============================================================================
// DOMAIN RECORDS
// =============================================================================

// Resident is a billing identity keyed by address. UID, when non-empty, is
// a secondary unique key used for public lookup instead of the address.
type Resident struct {
	Address Address
	Name    string
	UID     string
}

// Bill is the single current amount-due record for an address. A bill with
// Amount <= 0 is never stored; such an address simply has no bill.
type Bill struct {
	Address Address
	Amount  decimal.Decimal
	DueDate string // ISO YYYY-MM-DD
}

// ResidentBill pairs a resident with their current bill, if any. Produced
// by the left-join listing used for the dashboard table and CSV export.
type ResidentBill struct {
	Resident Resident
	Bill     *Bill
}

// =============================================================================
// RECONCILE INPUT / OUTCOME
// =============================================================================

// Record is one reconcile request: a single admin save or one import row.
type Record struct {
	Address string // raw; normalized by the engine
	Name    string
	UID     UIDChoice
	Amount  decimal.Decimal
	DueDate string // ISO YYYY-MM-DD, blank when no bill
}

// Outcome reports what a reconcile did to the resident row.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

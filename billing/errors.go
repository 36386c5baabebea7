/*
errors.go - Centralized error types for the billing core

PURPOSE:
  All domain error types in one place. Callers classify failures with
  errors.Is / errors.As; the structured types carry enough context for a
  user-visible message without re-querying the store.

ERROR CATEGORIES:
  1. Validation errors - missing/empty required fields, rejected before
     any write
  2. Constraint violations - UID already claimed by a different address
  3. Not found - normal empty results, never treated as failures
  4. UID space exhaustion - terminal generator failure (pathological only)

SEE ALSO:
  - reconcile.go: Produces these errors
  - store.go: Store implementations map driver errors onto these
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a record is rejected before any write
	// (empty address or name). Wrapped by ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrUIDConflict is returned when a UID already belongs to a different
	// address. Wrapped by UIDConflictError.
	ErrUIDConflict = errors.New("uid already claimed by another address")

	// ErrNotFound is returned by lookups that match nothing. This is a
	// normal empty result, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrUIDSpaceExhausted is returned when the generator cannot find a
	// free UID within its retry bound. Practically unreachable below
	// hundreds of thousands of residents.
	ErrUIDSpaceExhausted = errors.New("uid space exhausted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError identifies which required field was missing or malformed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// UIDConflictError reports a UID uniqueness violation: the UID requested
// for one address is already assigned to another.
type UIDConflictError struct {
	UID       string
	Requested Address // address the caller tried to assign the UID to
	ClaimedBy Address // address that already owns the UID, if known
}

func (e *UIDConflictError) Error() string {
	if e.ClaimedBy != "" {
		return fmt.Sprintf("uid %s requested for %s is already assigned to %s",
			e.UID, e.Requested, e.ClaimedBy)
	}
	return fmt.Sprintf("uid %s requested for %s is already assigned", e.UID, e.Requested)
}

func (e *UIDConflictError) Unwrap() error {
	return ErrUIDConflict
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// rather than a storage or internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrUIDConflict)
}

// IsNotFound returns true if the error indicates an empty lookup result.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  internal domain model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts cross the wire as strings ("150.00"), parsed with
  shopspring/decimal on the way in. JSON numbers are float64 and would
  lose precision.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import "github.com/openmuni/billdesk/billing"

// =============================================================================
// PUBLIC LOOKUP
// =============================================================================

// LookupRequest carries the resident's query: a street address or a
// 6-digit bill ID.
type LookupRequest struct {
	Query string `json:"query"`
}

// LookupResponse is returned for a successful public lookup.
type LookupResponse struct {
	Name    string `json:"name"`
	Amount  string `json:"amount"`
	DueDate string `json:"due_date"`
}

// =============================================================================
// ADMIN SESSION
// =============================================================================

// LoginRequest carries dashboard credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token for subsequent admin calls.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// =============================================================================
// ADMIN RECORDS
// =============================================================================

// RecordDTO is one resident with their current bill, if any.
type RecordDTO struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	UID     string `json:"uid,omitempty"`
	Amount  string `json:"amount,omitempty"`
	DueDate string `json:"due_date,omitempty"`
}

// SaveRecordRequest is a single admin save. A blank uid keeps the
// resident's existing UID (or generates one for a new resident);
// regenerate_uid forces a fresh one. A blank or zero amount clears the
// bill.
type SaveRecordRequest struct {
	Address       string `json:"address"`
	Name          string `json:"name"`
	UID           string `json:"uid,omitempty"`
	RegenerateUID bool   `json:"regenerate_uid,omitempty"`
	Amount        string `json:"amount"`
	DueDate       string `json:"due_date"`
}

// SaveRecordResponse reports the reconciled record and what happened.
type SaveRecordResponse struct {
	Outcome string    `json:"outcome"`
	Record  RecordDTO `json:"record"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRecordDTO(rb billing.ResidentBill) RecordDTO {
	dto := RecordDTO{
		Address: string(rb.Resident.Address),
		Name:    rb.Resident.Name,
		UID:     rb.Resident.UID,
	}
	if rb.Bill != nil {
		dto.Amount = rb.Bill.Amount.String()
		dto.DueDate = rb.Bill.DueDate
	}
	return dto
}

func toRecordDTOs(rbs []billing.ResidentBill) []RecordDTO {
	dtos := make([]RecordDTO, len(rbs))
	for i, rb := range rbs {
		dtos[i] = toRecordDTO(rb)
	}
	return dtos
}

/*
handlers.go - HTTP API handlers for the billing lookup service

PURPOSE:
  Exposes the billing core via a JSON API. Handles HTTP request/response
  and delegates to the reconciliation engine, pipeline, and stores.

ENDPOINTS:
  Public:
    POST   /api/lookup               Look up a bill by address or UID
    POST   /api/login                Exchange credentials for a session token

  Admin (Bearer token required):
    GET    /api/admin/records            Dashboard table (left join)
    GET    /api/admin/records/{address}  One resident + current bill
    POST   /api/admin/records            Save one record (reconcile)
    GET    /api/admin/export             CSV download
    POST   /api/admin/import             CSV upload

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing/invalid credentials or token
  - 404: Not found
  - 409: UID conflict
  - 500: Internal errors

PRIVACY:
  The public lookup returns one neutral not-found message for every kind
  of miss. Whether an address exists but has no bill, or does not exist
  at all, is not observable from outside.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/openmuni/billdesk/auth"
	"github.com/openmuni/billdesk/billing"
	"github.com/openmuni/billdesk/metrics"
)

// msgNoBill is the single public miss message (privacy by ambiguity).
const msgNoBill = "No active bill found for this address or ID."

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    billing.Store
	Engine   *billing.Engine
	Pipeline *billing.Pipeline
	Auth     *auth.Authenticator
	Tokens   *auth.JWTManager
	Metrics  *metrics.Metrics
}

// NewHandler creates a handler over the given store and auth collaborators.
func NewHandler(store billing.Store, authn *auth.Authenticator, tokens *auth.JWTManager, m *metrics.Metrics) *Handler {
	engine := billing.NewEngine(store)
	return &Handler{
		Store:    store,
		Engine:   engine,
		Pipeline: billing.NewPipeline(engine, store),
		Auth:     authn,
		Tokens:   tokens,
		Metrics:  m,
	}
}

// =============================================================================
// PUBLIC LOOKUP
// =============================================================================

// Lookup resolves an address or 6-digit UID to the current bill.
// POST /api/lookup
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "Enter an address or bill ID", nil)
		return
	}

	ctx := r.Context()
	var (
		resident *billing.Resident
		err      error
	)
	if billing.IsValidUID(query) {
		resident, err = h.Store.FindByUID(ctx, query)
	} else {
		resident, err = h.Store.FindByAddress(ctx, billing.NormalizeAddress(query))
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Lookup failed", err)
		return
	}

	var bill *billing.Bill
	if resident != nil {
		bill, err = h.Store.FindBill(ctx, resident.Address)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Lookup failed", err)
			return
		}
	}

	// Unknown identifier and known-address-without-bill are deliberately
	// indistinguishable here.
	if resident == nil || bill == nil {
		h.Metrics.ObserveLookup(false)
		writeError(w, http.StatusNotFound, msgNoBill, nil)
		return
	}

	h.Metrics.ObserveLookup(true)
	writeJSON(w, http.StatusOK, LookupResponse{
		Name:    resident.Name,
		Amount:  bill.Amount.String(),
		DueDate: bill.DueDate,
	})
}

// =============================================================================
// ADMIN SESSION
// =============================================================================

// Login exchanges dashboard credentials for a session token.
// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	admin, err := h.Auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Login failed", err)
		return
	}

	token, err := h.Tokens.Generate(admin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Login failed", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Username: admin.Username})
}

// =============================================================================
// ADMIN RECORDS
// =============================================================================

// ListRecords returns every resident with their current bill.
// GET /api/admin/records
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListAllWithResidents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list records", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": toRecordDTOs(records)})
}

// GetRecord returns one resident and their current bill. The admin
// surface is authenticated, so unlike the public lookup it may say
// plainly that a resident does not exist.
// GET /api/admin/records/{address}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid address", err)
		return
	}
	address := billing.NormalizeAddress(raw)

	ctx := r.Context()
	resident, err := h.Store.FindByAddress(ctx, address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get record", err)
		return
	}
	if resident == nil {
		writeError(w, http.StatusNotFound, "Resident not found", nil)
		return
	}

	bill, err := h.Store.FindBill(ctx, address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get record", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTO(billing.ResidentBill{Resident: *resident, Bill: bill}))
}

// SaveRecord reconciles a single resident + bill record.
// POST /api/admin/records
func (h *Handler) SaveRecord(w http.ResponseWriter, r *http.Request) {
	var req SaveRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount := decimal.Zero
	if raw := strings.TrimSpace(req.Amount); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		amount = parsed
	}

	dueDate := strings.TrimSpace(req.DueDate)
	if dueDate != "" {
		if _, err := time.Parse("2006-01-02", dueDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid due_date format (use YYYY-MM-DD)", err)
			return
		}
	}

	rec := billing.Record{
		Address: req.Address,
		Name:    req.Name,
		UID:     billing.KeepExistingUID(),
		Amount:  amount,
		DueDate: dueDate,
	}
	switch {
	case strings.TrimSpace(req.UID) != "":
		rec.UID = billing.ExplicitUID(strings.TrimSpace(req.UID))
	case req.RegenerateUID:
		rec.UID = billing.GenerateNewUID()
	}

	resident, outcome, err := h.Engine.Reconcile(r.Context(), rec)
	if err != nil {
		h.Metrics.ObserveReconcile("rejected")
		switch {
		case errors.Is(err, billing.ErrValidation):
			writeError(w, http.StatusBadRequest, "Invalid record", err)
		case errors.Is(err, billing.ErrUIDConflict):
			writeError(w, http.StatusConflict, "Bill ID already belongs to another address", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to save record", err)
		}
		return
	}
	h.Metrics.ObserveReconcile(string(outcome))

	bill, err := h.Store.FindBill(r.Context(), resident.Address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load saved bill", err)
		return
	}

	status := http.StatusOK
	if outcome == billing.OutcomeCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, SaveRecordResponse{
		Outcome: string(outcome),
		Record:  toRecordDTO(billing.ResidentBill{Resident: resident, Bill: bill}),
	})
}

// =============================================================================
// BULK IMPORT / EXPORT
// =============================================================================

// ExportCSV streams all records as a CSV attachment.
// GET /api/admin/export
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename=billing_data.csv`)
	if err := h.Pipeline.Export(r.Context(), w); err != nil {
		// Headers are already written; the truncated body is all we can
		// signal with.
		return
	}
}

// ImportCSV ingests an uploaded CSV file, one reconcile per row.
// Accepts either a multipart form with a "file" field or a raw CSV body.
// POST /api/admin/import
func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "No file uploaded", err)
			return
		}
		defer file.Close()
		body = file
	}

	report, err := h.Pipeline.Import(r.Context(), body)
	h.Metrics.ObserveImport(report.Processed, report.Skipped, report.Aborted)
	if err != nil {
		if errors.Is(err, billing.ErrUIDConflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":  err.Error(),
				"report": report,
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Error processing CSV: " + err.Error(),
			"report": report,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

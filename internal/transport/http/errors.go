package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

const (
	codeMethodNotAllowed      = "method_not_allowed"
	codeNotFound              = "not_found"
	codeInvalidRequestBody    = "invalid_request_body"
	codeMissingRequiredField  = "missing_required_field"
	codeInvalidStartsAt       = "invalid_starts_at"
	codeInvalidSince          = "invalid_since"
	codeInvalidLimit          = "invalid_limit"
	codeInvalidID             = "invalid_id"
	codeInvalidChannel        = "invalid_channel"
	codeEventNameRequired     = "event_name_required"
	codeTicketTypeNameReq     = "ticket_type_name_required"
	codeInvalidQuantity       = "invalid_quantity"
	codeIdempotencyConflict   = "idempotency_conflict"
	codeInsufficientInventory = "insufficient_inventory"
	codeInventoryNotFound     = "inventory_not_found"
	codeInventoryExists       = "inventory_already_exists"
	codeEventNotFound         = "event_not_found"
	codeTicketTypeExists      = "ticket_type_exists"
	codeHoldNotFound          = "hold_not_found"
	codeHoldExpired           = "hold_expired"
	codeWouldViolate          = "would_violate_invariant"
	codeAuditMismatch         = "audit_mismatch"
	codeStoreUnavailable      = "store_unavailable"
	codeForbidden             = "forbidden"
	codeInternalError         = "internal_error"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorResponse(w, status, errorResponse{Error: msg, Code: code})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(resp)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

var serviceErrors = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidQuantity, http.StatusBadRequest, codeInvalidQuantity},
	{domain.ErrInvalidChannel, http.StatusBadRequest, codeInvalidChannel},
	{domain.ErrInvalidID, http.StatusBadRequest, codeInvalidID},
	{domain.ErrEventNameRequired, http.StatusBadRequest, codeEventNameRequired},
	{domain.ErrTicketTypeNameRequired, http.StatusBadRequest, codeTicketTypeNameReq},
	{domain.ErrHoldNotFound, http.StatusNotFound, codeHoldNotFound},
	{domain.ErrInventoryNotFound, http.StatusNotFound, codeInventoryNotFound},
	{domain.ErrEventNotFound, http.StatusNotFound, codeEventNotFound},
	{domain.ErrInsufficientInventory, http.StatusConflict, codeInsufficientInventory},
	{domain.ErrHoldExpired, http.StatusConflict, codeHoldExpired},
	{domain.ErrIdempotencyConflict, http.StatusConflict, codeIdempotencyConflict},
	{domain.ErrWouldViolateInvariant, http.StatusConflict, codeWouldViolate},
	{domain.ErrTicketTypeExists, http.StatusConflict, codeTicketTypeExists},
	{domain.ErrInventoryAlreadyExists, http.StatusConflict, codeInventoryExists},
	{domain.ErrAuditMismatch, http.StatusInternalServerError, codeAuditMismatch},
}

// writeServiceError maps a service error onto a status and stable code.
// Unknown errors become a bare 500 so driver details never reach the client.
func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		w.Header().Set("Retry-After", "1")
		writeErrorResponse(w, http.StatusServiceUnavailable, errorResponse{
			Error:     domain.ErrStoreUnavailable.Error(),
			Code:      codeStoreUnavailable,
			Retryable: true,
		})
		return
	}
	for _, se := range serviceErrors {
		if errors.Is(err, se.err) {
			writeError(w, se.status, se.code, se.err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

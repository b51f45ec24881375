package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

// InventoryReader is the minimal interface needed for inventory reads.
type InventoryReader interface {
	GetInventory(ctx context.Context, eventID, ticketTypeID string) (domain.InventoryRecord, error)
	ListInventory(ctx context.Context, eventID string) ([]domain.InventoryRecord, error)
}

// InventoryAdjuster applies manual corrections.
type InventoryAdjuster interface {
	AdjustInventory(ctx context.Context, in app.AdjustInventoryInput) (domain.InventoryRecord, error)
}

// AuditReader serves the audit trail of a record.
type AuditReader interface {
	ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
	Reconstruct(ctx context.Context, eventID, ticketTypeID string) (domain.InventoryRecord, error)
}

// HandleInventory serves:
//
//	GET /inventory/{eventID}
//	GET /inventory/{eventID}/{ticketTypeID}
//	GET /inventory/{eventID}/{ticketTypeID}/audit
//	GET /inventory/{eventID}/{ticketTypeID}/replay
func HandleInventory(inv InventoryReader, audit AuditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		for _, p := range parts {
			if p == "" {
				writeError(w, http.StatusNotFound, codeNotFound, "not found")
				return
			}
		}
		if parts[0] != "inventory" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch {
		case len(parts) == 2:
			records, err := inv.ListInventory(r.Context(), parts[1])
			if err != nil {
				writeServiceError(w, err)
				return
			}
			resp := make([]inventoryResponse, 0, len(records))
			for _, rec := range records {
				resp = append(resp, newInventoryResponse(rec))
			}
			writeJSON(w, http.StatusOK, resp)
		case len(parts) == 3:
			rec, err := inv.GetInventory(r.Context(), parts[1], parts[2])
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, newInventoryResponse(rec))
		case len(parts) == 4 && parts[3] == "audit":
			handleAudit(w, r, audit, parts[1], parts[2])
		case len(parts) == 4 && parts[3] == "replay":
			rec, err := audit.Reconstruct(r.Context(), parts[1], parts[2])
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, newInventoryResponse(rec))
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func handleAudit(w http.ResponseWriter, r *http.Request, svc AuditReader, eventID, ticketTypeID string) {
	filter := domain.AuditFilter{EventID: eventID, TicketTypeID: ticketTypeID}
	q := r.URL.Query()
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidSince, "invalid since format")
			return
		}
		filter.Since = since
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, codeInvalidLimit, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, domain.AuditAction(a))
	}

	entries, err := svc.ListAudit(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, auditEntryResponse{
			ID:        e.ID,
			HoldID:    e.HoldID,
			Action:    string(e.Action),
			Quantity:  e.Quantity,
			Reason:    e.Reason,
			Version:   e.Version,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleAdjustInventory returns an HTTP handler for POST /admin/inventory/adjust.
func HandleAdjustInventory(svc InventoryAdjuster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req adjustInventoryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.EventID == "" || req.TicketTypeID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "event_id and ticket_type_id are required")
			return
		}
		if req.Delta == 0 {
			writeError(w, http.StatusBadRequest, codeInvalidQuantity, domain.ErrInvalidQuantity.Error())
			return
		}

		rec, err := svc.AdjustInventory(r.Context(), app.AdjustInventoryInput{
			EventID:      req.EventID,
			TicketTypeID: req.TicketTypeID,
			Delta:        req.Delta,
			Reason:       req.Reason,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newInventoryResponse(rec))
	}
}

type adjustInventoryRequest struct {
	EventID      string `json:"event_id"`
	TicketTypeID string `json:"ticket_type_id"`
	Delta        int    `json:"delta"`
	Reason       string `json:"reason,omitempty"`
}

type inventoryResponse struct {
	EventID           string    `json:"event_id"`
	TicketTypeID      string    `json:"ticket_type_id"`
	TotalQuantity     int       `json:"total_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	HeldQuantity      int       `json:"held_quantity"`
	SoldQuantity      int       `json:"sold_quantity"`
	Version           int64     `json:"version"`
	LowStock          bool      `json:"low_stock"`
	SoldOut           bool      `json:"sold_out"`
	LastUpdated       time.Time `json:"last_updated"`
}

func newInventoryResponse(rec domain.InventoryRecord) inventoryResponse {
	return inventoryResponse{
		EventID:           rec.EventID,
		TicketTypeID:      rec.TicketTypeID,
		TotalQuantity:     rec.TotalQuantity,
		AvailableQuantity: rec.AvailableQuantity,
		HeldQuantity:      rec.HeldQuantity,
		SoldQuantity:      rec.SoldQuantity,
		Version:           rec.Version,
		LowStock:          rec.LowStock(),
		SoldOut:           rec.SoldOut(),
		LastUpdated:       rec.LastUpdated,
	}
}

type auditEntryResponse struct {
	ID        string    `json:"id"`
	HoldID    string    `json:"hold_id,omitempty"`
	Action    string    `json:"action"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

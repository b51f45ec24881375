package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

// HoldCreator is the minimal interface needed to create a hold.
type HoldCreator interface {
	CreateHold(ctx context.Context, in app.CreateHoldInput) (app.CreateHoldResult, error)
}

// HoldReleaser is the minimal interface needed to release a hold.
type HoldReleaser interface {
	ReleaseHold(ctx context.Context, holdID string) (domain.Hold, error)
}

// HandleCreateHold returns an HTTP handler for POST /holds. A new hold gets
// 201; an idempotent replay gets 200 with the original hold as it is now.
func HandleCreateHold(svc HoldCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createHoldRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.EventID == "" || req.TicketTypeID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "event_id and ticket_type_id are required")
			return
		}
		if req.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, codeInvalidQuantity, domain.ErrInvalidQuantity.Error())
			return
		}
		if key := r.Header.Get(idempotencyHeader); req.IdempotencyKey == "" && key != "" {
			req.IdempotencyKey = key
		}

		res, err := svc.CreateHold(r.Context(), app.CreateHoldInput{
			EventID:        req.EventID,
			TicketTypeID:   req.TicketTypeID,
			Quantity:       req.Quantity,
			Channel:        domain.Channel(req.Channel),
			SessionID:      req.SessionID,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, newHoldResponse(res.Hold))
	}
}

// HandleHoldByID serves DELETE /holds/{id} and POST /holds/{id}/confirm.
func HandleHoldByID(holds HoldReleaser, sales HoldConverter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holdID, action, ok := parseHoldPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch action {
		case "":
			if r.Method != http.MethodDelete {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			hold, err := holds.ReleaseHold(r.Context(), holdID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, newHoldResponse(hold))
		case "confirm":
			handleConvertHold(w, r, sales, holdID)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

// parseHoldPath splits /holds/{id}[/{action}].
func parseHoldPath(path string) (holdID, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "holds" || parts[1] == "" {
		return "", "", false
	}
	if len(parts) == 3 {
		if parts[2] == "" {
			return "", "", false
		}
		action = parts[2]
	}
	return parts[1], action, true
}

type createHoldRequest struct {
	EventID        string `json:"event_id"`
	TicketTypeID   string `json:"ticket_type_id"`
	Quantity       int    `json:"quantity"`
	Channel        string `json:"channel,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type holdResponse struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	Channel      string    `json:"channel"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func newHoldResponse(h domain.Hold) holdResponse {
	return holdResponse{
		ID:           h.ID,
		EventID:      h.EventID,
		TicketTypeID: h.TicketTypeID,
		Quantity:     h.Quantity,
		Channel:      string(h.Channel),
		Status:       string(h.Status),
		CreatedAt:    h.CreatedAt,
		ExpiresAt:    h.ExpiresAt,
	}
}

package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

// AdminEventService is the minimal interface needed for admin event endpoints.
type AdminEventService interface {
	CreateEvent(ctx context.Context, in app.CreateEventInput) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
}

// AdminTicketTypeService is the minimal interface needed for ticket type endpoints.
type AdminTicketTypeService interface {
	CreateTicketType(ctx context.Context, in app.CreateTicketTypeInput) (domain.TicketType, error)
	ListTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error)
}

// EventHoldReleaser releases every active hold of an event.
type EventHoldReleaser interface {
	ReleaseEventHolds(ctx context.Context, eventID string) (app.SweepResult, error)
}

// SweepTrigger runs one expiry pass on demand.
type SweepTrigger interface {
	SweepOnce(ctx context.Context) (app.SweepResult, error)
}

// HandleAdminEvents returns an HTTP handler for admin event creation/listing.
func HandleAdminEvents(svc AdminEventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			events, err := svc.ListEvents(r.Context())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			resp := make([]eventResponse, 0, len(events))
			for _, event := range events {
				resp = append(resp, eventResponse{
					ID:       event.ID,
					Name:     event.Name,
					StartsAt: event.StartsAt,
				})
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodPost:
			var req createEventRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			if strings.TrimSpace(req.Name) == "" {
				writeError(w, http.StatusBadRequest, codeEventNameRequired, domain.ErrEventNameRequired.Error())
				return
			}

			var startsAt *time.Time
			if req.StartsAt != "" {
				parsed, err := time.Parse(time.RFC3339, req.StartsAt)
				if err != nil {
					writeError(w, http.StatusBadRequest, codeInvalidStartsAt, "invalid starts_at format")
					return
				}
				startsAt = &parsed
			}

			event, err := svc.CreateEvent(r.Context(), app.CreateEventInput{
				Name:     req.Name,
				StartsAt: startsAt,
			})
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, eventResponse{
				ID:       event.ID,
				Name:     event.Name,
				StartsAt: event.StartsAt,
			})
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleAdminEventByID serves /admin/events/{id}/ticket-types and
// /admin/events/{id}/release-holds.
func HandleAdminEventByID(types AdminTicketTypeService, holds EventHoldReleaser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, action, ok := parseAdminEventPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch action {
		case "ticket-types":
			handleTicketTypes(w, r, types, eventID)
		case "release-holds":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			res, err := holds.ReleaseEventHolds(r.Context(), eventID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, newSweepResponse(res))
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func handleTicketTypes(w http.ResponseWriter, r *http.Request, svc AdminTicketTypeService, eventID string) {
	switch r.Method {
	case http.MethodGet:
		types, err := svc.ListTicketTypes(r.Context(), eventID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := make([]ticketTypeResponse, 0, len(types))
		for _, tt := range types {
			resp = append(resp, newTicketTypeResponse(tt))
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req createTicketTypeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, codeTicketTypeNameReq, domain.ErrTicketTypeNameRequired.Error())
			return
		}
		if req.TotalQuantity < 0 {
			writeError(w, http.StatusBadRequest, codeInvalidQuantity, domain.ErrInvalidQuantity.Error())
			return
		}

		tt, err := svc.CreateTicketType(r.Context(), app.CreateTicketTypeInput{
			EventID:       eventID,
			Name:          req.Name,
			TotalQuantity: req.TotalQuantity,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newTicketTypeResponse(tt))
	default:
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	}
}

// HandleAdminSweep returns an HTTP handler for POST /admin/sweep.
func HandleAdminSweep(svc SweepTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}
		res, err := svc.SweepOnce(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSweepResponse(res))
	}
}

type createEventRequest struct {
	Name     string `json:"name"`
	StartsAt string `json:"starts_at,omitempty"`
}

type eventResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
}

type createTicketTypeRequest struct {
	Name          string `json:"name"`
	TotalQuantity int    `json:"total_quantity"`
}

type ticketTypeResponse struct {
	ID            string `json:"id"`
	EventID       string `json:"event_id"`
	Name          string `json:"name"`
	TotalQuantity int    `json:"total_quantity"`
}

func newTicketTypeResponse(tt domain.TicketType) ticketTypeResponse {
	return ticketTypeResponse{
		ID:            tt.ID,
		EventID:       tt.EventID,
		Name:          tt.Name,
		TotalQuantity: tt.TotalQuantity,
	}
}

type sweepResponse struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

func newSweepResponse(res app.SweepResult) sweepResponse {
	return sweepResponse{
		Scanned:  res.Scanned,
		Released: res.Released,
		Skipped:  res.Skipped,
		Failed:   res.Failed,
	}
}

func parseAdminEventPath(path string) (eventID, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 {
		return "", "", false
	}
	if parts[0] != "admin" || parts[1] != "events" || parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

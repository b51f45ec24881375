package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cimillas/ticket-ledger/internal/app"
)

const idempotencyHeader = "Idempotency-Key"

// HoldConverter is the minimal interface needed to convert a hold into a sale.
type HoldConverter interface {
	ConvertHoldToSale(ctx context.Context, in app.ConvertHoldInput) (app.ConvertHoldResult, error)
}

func handleConvertHold(w http.ResponseWriter, r *http.Request, svc HoldConverter, holdID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}

	res, err := svc.ConvertHoldToSale(r.Context(), app.ConvertHoldInput{
		HoldID:         holdID,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, saleResponse{
		ID:           res.Sale.ID,
		HoldID:       res.Sale.HoldID,
		EventID:      res.Sale.EventID,
		TicketTypeID: res.Sale.TicketTypeID,
		Quantity:     res.Sale.Quantity,
		Status:       "sold",
		CreatedAt:    res.Sale.CreatedAt,
	})
}

type saleResponse struct {
	ID           string    `json:"id"`
	HoldID       string    `json:"hold_id"`
	EventID      string    `json:"event_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

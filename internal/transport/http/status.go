package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// StatusReader produces the dashboard summary.
type StatusReader interface {
	Summary(ctx context.Context) (domain.StatusSummary, error)
}

// HandleStatus returns an HTTP handler for GET /status.
func HandleStatus(svc StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}
		s, err := svc.Summary(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{
			TotalEvents:    s.TotalEvents,
			TotalRecords:   s.TotalRecords,
			ActiveHolds:    s.ActiveHolds,
			HeldQuantity:   s.HeldQuantity,
			LowStockEvents: s.LowStockEvents,
			SoldOutEvents:  s.SoldOutEvents,
			GeneratedAt:    s.GeneratedAt,
		})
	}
}

type statusResponse struct {
	TotalEvents    int       `json:"total_events"`
	TotalRecords   int       `json:"total_records"`
	ActiveHolds    int       `json:"active_holds"`
	HeldQuantity   int       `json:"held_quantity"`
	LowStockEvents int       `json:"low_stock_events"`
	SoldOutEvents  int       `json:"sold_out_events"`
	GeneratedAt    time.Time `json:"generated_at"`
}

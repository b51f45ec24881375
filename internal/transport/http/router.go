package http

import (
	"log/slog"
	"net/http"
)

// HoldLedger covers the hold endpoints.
type HoldLedger interface {
	HoldCreator
	HoldReleaser
	EventHoldReleaser
}

// InventoryService covers inventory reads and manual adjustments.
type InventoryService interface {
	InventoryReader
	InventoryAdjuster
}

// AdminService covers event and ticket type setup.
type AdminService interface {
	AdminEventService
	AdminTicketTypeService
}

// Services bundles what the router dispatches to.
type Services struct {
	Holds     HoldLedger
	Sales     HoldConverter
	Inventory InventoryService
	Audit     AuditReader
	Admin     AdminService
	Status    StatusReader
	Sweeper   SweepTrigger
	Store     Pinger
}

// NewRouter wires every route and wraps them in CORS and request logging.
func NewRouter(svc Services, corsOrigins []string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", HandleHealth(svc.Store))
	mux.Handle("/holds", HandleCreateHold(svc.Holds))
	mux.Handle("/holds/", HandleHoldByID(svc.Holds, svc.Sales))
	mux.Handle("/inventory/", HandleInventory(svc.Inventory, svc.Audit))
	mux.Handle("/status", HandleStatus(svc.Status))
	mux.Handle("/admin/events", HandleAdminEvents(svc.Admin))
	mux.Handle("/admin/events/", HandleAdminEventByID(svc.Admin, svc.Holds))
	mux.Handle("/admin/inventory/adjust", HandleAdjustInventory(svc.Inventory))
	mux.Handle("/admin/sweep", HandleAdminSweep(svc.Sweeper))
	mux.Handle("/", NotFoundHandler())

	return RequestLogger(CORS(corsOrigins, mux), logger)
}

package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/storage/memory"
)

type ledgerStore interface {
	app.HoldRepository
	app.SaleRepository
	app.InventoryRepository
	app.AdminRepository
	app.AuditRepository
	app.StatusRepository
	Pinger
}

func newLedgerRouter(store ledgerStore, clk clock.Clock) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := app.NewNotifier(logger)
	holds := app.NewHoldService(store, clk, app.WithHoldNotifier(notifier), app.WithHoldLogger(logger))

	return NewRouter(Services{
		Holds:     holds,
		Sales:     app.NewSaleService(store, clk, notifier, logger),
		Inventory: app.NewInventoryService(store, clk, notifier, logger),
		Audit:     app.NewAuditService(store),
		Admin:     app.NewAdminService(store, clk),
		Status:    app.NewStatusService(store, clk),
		Sweeper:   app.NewSweeper(holds, time.Minute, logger),
		Store:     store,
	}, []string{"*"}, logger)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	if out != nil {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out), "decode %s %s", method, path)
	}
	return rec.Code
}

func TestRouter_HoldReplayAfterRelease(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC))
	h := newLedgerRouter(memory.New(), clk)

	var event eventResponse
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost, "/admin/events", `{"name":"Concert"}`, &event))
	var tt ticketTypeResponse
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost,
		"/admin/events/"+event.ID+"/ticket-types", `{"name":"General","total_quantity":10}`, &tt))

	body := `{"event_id":"` + event.ID + `","ticket_type_id":"` + tt.ID + `","quantity":2,"idempotency_key":"k1"}`
	var hold holdResponse
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost, "/holds", body, &hold))
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodDelete, "/holds/"+hold.ID, "", &holdResponse{}))

	var replay holdResponse
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodPost, "/holds", body, &replay))
	assert.Equal(t, hold.ID, replay.ID)
	assert.Equal(t, "released", replay.Status)

	var inv inventoryResponse
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/inventory/"+event.ID+"/"+tt.ID, "", &inv))
	assert.Equal(t, 10, inv.AvailableQuantity)
}

func TestRouter_HoldLifecycle(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC))
	store := memory.New()
	h := newLedgerRouter(store, clk)

	var event eventResponse
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost, "/admin/events", `{"name":"Concert"}`, &event))

	var tt ticketTypeResponse
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost,
		"/admin/events/"+event.ID+"/ticket-types", `{"name":"General","total_quantity":10}`, &tt))

	holdBody := `{"event_id":"` + event.ID + `","ticket_type_id":"` + tt.ID + `","quantity":6}`
	var hold holdResponse
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost, "/holds", holdBody, &hold))
	assert.Equal(t, "active", hold.Status)
	assert.True(t, clk.Now().Add(15*time.Minute).Equal(hold.ExpiresAt))

	var errResp errorResponse
	require.Equal(t, http.StatusConflict, doJSON(t, h, http.MethodPost, "/holds", holdBody, &errResp))
	assert.Equal(t, codeInsufficientInventory, errResp.Code)
	assert.Equal(t, "not enough tickets available", errResp.Error)

	clk.Advance(16 * time.Minute)

	errResp = errorResponse{}
	require.Equal(t, http.StatusConflict, doJSON(t, h, http.MethodPost, "/holds/"+hold.ID+"/confirm", "", &errResp))
	assert.Equal(t, codeHoldExpired, errResp.Code)

	var sweep sweepResponse
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodPost, "/admin/sweep", "", &sweep))
	assert.Equal(t, 1, sweep.Released)

	var inv inventoryResponse
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/inventory/"+event.ID+"/"+tt.ID, "", &inv))
	assert.Equal(t, 10, inv.AvailableQuantity)
	assert.Equal(t, 0, inv.HeldQuantity)

	var audit []auditEntryResponse
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/inventory/"+event.ID+"/"+tt.ID+"/audit", "", &audit))
	require.Len(t, audit, 2)
	assert.Equal(t, "hold_created", audit[0].Action)
	assert.Equal(t, "hold_expired", audit[1].Action)

	var replayed inventoryResponse
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/inventory/"+event.ID+"/"+tt.ID+"/replay", "", &replayed))
	assert.Equal(t, inv.Version, replayed.Version)

	var second holdResponse
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost, "/holds", holdBody, &second))

	var sale saleResponse
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost, "/holds/"+second.ID+"/confirm", "", &sale))
	assert.Equal(t, 6, sale.Quantity)

	errResp = errorResponse{}
	require.Equal(t, http.StatusNotFound, doJSON(t, h, http.MethodDelete, "/holds/"+second.ID, "", &errResp))
	assert.Equal(t, codeHoldNotFound, errResp.Code)

	var status statusResponse
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/status", "", &status))
	assert.Equal(t, 1, status.TotalEvents)
	assert.Equal(t, 0, status.ActiveHolds)
	assert.Equal(t, 0, status.LowStockEvents)
}

func TestRouter_StoreOutage(t *testing.T) {
	store := memory.New()
	h := newLedgerRouter(store, clock.NewSystem())

	var health healthResponse
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/health", "", &health))

	store.SimulateOutage(true)

	require.Equal(t, http.StatusServiceUnavailable, doJSON(t, h, http.MethodGet, "/health", "", &health))
	assert.Equal(t, "degraded", health.Status)

	var errResp errorResponse
	require.Equal(t, http.StatusServiceUnavailable, doJSON(t, h, http.MethodGet, "/status", "", &errResp))
	assert.Equal(t, codeStoreUnavailable, errResp.Code)
	assert.True(t, errResp.Retryable)
}

func TestRouter_UnknownRoute(t *testing.T) {
	h := newLedgerRouter(memory.New(), clock.NewSystem())

	var errResp errorResponse
	require.Equal(t, http.StatusNotFound, doJSON(t, h, http.MethodGet, "/orders", "", &errResp))
	assert.Equal(t, codeNotFound, errResp.Code)
}

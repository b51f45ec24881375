package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/storage/memory"
)

var testNow = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

type ledger struct {
	store     *memory.Store
	clock     *clock.Manual
	notifier  *Notifier
	holds     *HoldService
	sales     *SaleService
	inventory *InventoryService
	audit     *AuditService
	status    *StatusService
	admin     *AdminService
}

func newLedger(t *testing.T, opts ...HoldServiceOption) *ledger {
	t.Helper()

	store := memory.New()
	clk := clock.NewManual(testNow)
	notifier := NewNotifier(nil)
	opts = append([]HoldServiceOption{WithHoldNotifier(notifier)}, opts...)

	return &ledger{
		store:     store,
		clock:     clk,
		notifier:  notifier,
		holds:     NewHoldService(store, clk, opts...),
		sales:     NewSaleService(store, clk, notifier, nil),
		inventory: NewInventoryService(store, clk, notifier, nil),
		audit:     NewAuditService(store),
		status:    NewStatusService(store, clk),
		admin:     NewAdminService(store, clk),
	}
}

// seed creates an event with one ticket type of the given size.
func (l *ledger) seed(t *testing.T, total int) domain.TicketType {
	t.Helper()

	event, err := l.admin.CreateEvent(context.Background(), CreateEventInput{Name: "Concert"})
	require.NoError(t, err)
	return l.addTicketType(t, event.ID, "General", total)
}

func (l *ledger) addTicketType(t *testing.T, eventID, name string, total int) domain.TicketType {
	t.Helper()

	tt, err := l.admin.CreateTicketType(context.Background(), CreateTicketTypeInput{
		EventID:       eventID,
		Name:          name,
		TotalQuantity: total,
	})
	require.NoError(t, err)
	return tt
}

func (l *ledger) hold(t *testing.T, tt domain.TicketType, qty int) domain.Hold {
	t.Helper()

	res, err := l.holds.CreateHold(context.Background(), CreateHoldInput{
		EventID:      tt.EventID,
		TicketTypeID: tt.ID,
		Quantity:     qty,
	})
	require.NoError(t, err)
	require.True(t, res.Created)
	return res.Hold
}

func (l *ledger) record(t *testing.T, tt domain.TicketType) domain.InventoryRecord {
	t.Helper()

	rec, err := l.inventory.GetInventory(context.Background(), tt.EventID, tt.ID)
	require.NoError(t, err)
	require.NoError(t, rec.CheckInvariant())
	return rec
}

func requireCounts(t *testing.T, rec domain.InventoryRecord, available, held, sold int) {
	t.Helper()
	require.Equal(t, available, rec.AvailableQuantity, "available")
	require.Equal(t, held, rec.HeldQuantity, "held")
	require.Equal(t, sold, rec.SoldQuantity, "sold")
}

func (l *ledger) actions(t *testing.T, tt domain.TicketType) []domain.AuditAction {
	t.Helper()

	entries, err := l.audit.ListAudit(context.Background(), domain.AuditFilter{EventID: tt.EventID, TicketTypeID: tt.ID})
	require.NoError(t, err)
	out := make([]domain.AuditAction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

package domain

import (
	"fmt"
	"time"
)

type AuditAction string

const (
	AuditHoldCreated      AuditAction = "hold_created"
	AuditHoldReleased     AuditAction = "hold_released"
	AuditHoldExpired      AuditAction = "hold_expired"
	AuditSaleCompleted    AuditAction = "sale_completed"
	AuditManualAdjustment AuditAction = "manual_adjustment"
)

// AuditEntry is an immutable record of one inventory-affecting action.
// Quantity is signed relative to availability: negative when tickets leave
// the sellable pool (hold created, sale completed), positive when they return.
type AuditEntry struct {
	ID           string
	EventID      string
	TicketTypeID string
	HoldID       string
	Action       AuditAction
	Quantity     int
	Reason       string
	Version      int64
	CreatedAt    time.Time
}

// Apply returns rec with the entry's effect applied.
func (e AuditEntry) Apply(rec InventoryRecord) (InventoryRecord, error) {
	q := e.Quantity
	if q < 0 {
		q = -q
	}
	switch e.Action {
	case AuditHoldCreated:
		rec.AvailableQuantity -= q
		rec.HeldQuantity += q
	case AuditHoldReleased, AuditHoldExpired:
		rec.AvailableQuantity += q
		rec.HeldQuantity -= q
	case AuditSaleCompleted:
		rec.HeldQuantity -= q
		rec.SoldQuantity += q
	case AuditManualAdjustment:
		rec.TotalQuantity += e.Quantity
		rec.AvailableQuantity += e.Quantity
	default:
		return rec, fmt.Errorf("%w: unknown action %q", ErrAuditMismatch, e.Action)
	}
	rec.Version = e.Version
	rec.LastUpdated = e.CreatedAt
	return rec, rec.CheckInvariant()
}

// Replay applies entries in order on top of base. Entries must belong to
// base's record and carry consecutive versions starting at base.Version+1.
func Replay(base InventoryRecord, entries []AuditEntry) (InventoryRecord, error) {
	rec := base
	for _, e := range entries {
		if e.EventID != rec.EventID || e.TicketTypeID != rec.TicketTypeID {
			return rec, fmt.Errorf("%w: entry %s belongs to %s/%s", ErrAuditMismatch, e.ID, e.EventID, e.TicketTypeID)
		}
		if e.Version != rec.Version+1 {
			return rec, fmt.Errorf("%w: version gap %d -> %d", ErrAuditMismatch, rec.Version, e.Version)
		}
		next, err := e.Apply(rec)
		if err != nil {
			return rec, err
		}
		rec = next
	}
	return rec, nil
}

// AuditFilter narrows an audit query. Zero fields are not filtered on.
type AuditFilter struct {
	EventID      string
	TicketTypeID string
	Actions      []AuditAction
	Since        time.Time
	Limit        int
}

package domain

import (
	"fmt"
	"time"
)

// InventoryRecord tracks availability for one (event, ticket type).
// Total == Available + Held + Sold must hold after every mutation.
type InventoryRecord struct {
	EventID           string
	TicketTypeID      string
	TotalQuantity     int
	AvailableQuantity int
	HeldQuantity      int
	SoldQuantity      int
	// Version is incremented on every mutation and orders the record's audit entries.
	Version     int64
	LastUpdated time.Time
}

// NewInventoryRecord returns a record with all of total available.
func NewInventoryRecord(eventID, ticketTypeID string, total int, now time.Time) InventoryRecord {
	return InventoryRecord{
		EventID:           eventID,
		TicketTypeID:      ticketTypeID,
		TotalQuantity:     total,
		AvailableQuantity: total,
		LastUpdated:       now,
	}
}

// CheckInvariant returns ErrWouldViolateInvariant if the counts are inconsistent.
func (r InventoryRecord) CheckInvariant() error {
	switch {
	case r.TotalQuantity < 0, r.HeldQuantity < 0, r.SoldQuantity < 0:
		return fmt.Errorf("%w: negative count in %s/%s", ErrWouldViolateInvariant, r.EventID, r.TicketTypeID)
	case r.AvailableQuantity < 0 || r.AvailableQuantity > r.TotalQuantity:
		return fmt.Errorf("%w: available %d outside [0,%d]", ErrWouldViolateInvariant, r.AvailableQuantity, r.TotalQuantity)
	case r.TotalQuantity != r.AvailableQuantity+r.HeldQuantity+r.SoldQuantity:
		return fmt.Errorf("%w: total %d != %d+%d+%d", ErrWouldViolateInvariant,
			r.TotalQuantity, r.AvailableQuantity, r.HeldQuantity, r.SoldQuantity)
	}
	return nil
}

// LowStock reports 0 < available < 25% of total.
func (r InventoryRecord) LowStock() bool {
	return r.AvailableQuantity > 0 && r.AvailableQuantity*4 < r.TotalQuantity
}

// SoldOut reports whether nothing is left to hold.
func (r InventoryRecord) SoldOut() bool {
	return r.AvailableQuantity == 0
}

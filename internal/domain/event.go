package domain

import "time"

// Event represents a ticketed event.
type Event struct {
	ID       string
	Name     string
	StartsAt time.Time
}

// TicketType is a sellable category of an event. Creating one creates its
// InventoryRecord.
type TicketType struct {
	ID            string
	EventID       string
	Name          string
	TotalQuantity int
}

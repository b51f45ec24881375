package domain

import "time"

// StatusSummary is derived on request from current records and active holds.
type StatusSummary struct {
	TotalEvents    int
	TotalRecords   int
	ActiveHolds    int
	HeldQuantity   int
	LowStockEvents int
	SoldOutEvents  int
	GeneratedAt    time.Time
}

// Summarize aggregates records per event. Every configured event counts
// toward TotalEvents, including events with no ticket types yet. Ticket types
// with a total of zero are not on sale and are ignored when classifying. An
// event is sold out when every on-sale ticket type is sold out, and low on
// stock when it is not sold out and any on-sale ticket type is low on stock.
// Events with nothing on sale are neither.
func Summarize(events []Event, records []InventoryRecord, activeHolds, heldQuantity int, now time.Time) StatusSummary {
	type eventState struct {
		onSale     int
		allSoldOut bool
		anyLow     bool
	}
	states := make(map[string]*eventState, len(events))
	stateFor := func(eventID string) *eventState {
		st, ok := states[eventID]
		if !ok {
			st = &eventState{allSoldOut: true}
			states[eventID] = st
		}
		return st
	}
	for _, e := range events {
		stateFor(e.ID)
	}
	for _, r := range records {
		st := stateFor(r.EventID)
		if r.TotalQuantity == 0 {
			continue
		}
		st.onSale++
		if !r.SoldOut() {
			st.allSoldOut = false
		}
		if r.LowStock() {
			st.anyLow = true
		}
	}

	summary := StatusSummary{
		TotalEvents:  len(states),
		TotalRecords: len(records),
		ActiveHolds:  activeHolds,
		HeldQuantity: heldQuantity,
		GeneratedAt:  now,
	}
	for _, st := range states {
		switch {
		case st.onSale == 0:
		case st.allSoldOut:
			summary.SoldOutEvents++
		case st.anyLow:
			summary.LowStockEvents++
		}
	}
	return summary
}

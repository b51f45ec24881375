package domain

import "time"

type HoldStatus string

const (
	HoldStatusActive   HoldStatus = "active"
	HoldStatusReleased HoldStatus = "released"
	HoldStatusExpired  HoldStatus = "expired"
	HoldStatusSold     HoldStatus = "sold"
)

// Channel is the purchase path a hold originates from.
type Channel string

const (
	ChannelOnline Channel = "online"
	ChannelCash   Channel = "cash"
	ChannelAdmin  Channel = "admin"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelOnline, ChannelCash, ChannelAdmin:
		return true
	}
	return false
}

// Hold represents reserved inventory for a limited time. While Status is
// active its Quantity is counted in the record's HeldQuantity.
type Hold struct {
	ID             string
	EventID        string
	TicketTypeID   string
	Quantity       int
	Channel        Channel
	SessionID      string
	Status         HoldStatus
	IdempotencyKey string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Active reports whether the hold is still in the active set.
func (h Hold) Active() bool {
	return h.Status == HoldStatusActive
}

// ExpiredAt reports whether the hold's TTL has elapsed at now.
func (h Hold) ExpiredAt(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

package domain

import "time"

// Sale is the result of converting a hold after successful payment.
type Sale struct {
	ID             string
	HoldID         string
	EventID        string
	TicketTypeID   string
	Quantity       int
	IdempotencyKey string
	CreatedAt      time.Time
}

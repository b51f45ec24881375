package domain

import "errors"

var (
	ErrInsufficientInventory  = errors.New("not enough tickets available")
	ErrHoldNotFound           = errors.New("hold not found")
	ErrHoldExpired            = errors.New("your reservation expired, please try again")
	ErrWouldViolateInvariant  = errors.New("adjustment would violate inventory invariant")
	ErrStoreUnavailable       = errors.New("inventory store unavailable")
	ErrInventoryNotFound      = errors.New("inventory record not found")
	ErrInventoryAlreadyExists = errors.New("inventory record already exists")
	ErrEventNotFound          = errors.New("event not found")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidChannel         = errors.New("invalid channel")
	ErrInvalidID              = errors.New("invalid id")
	ErrIdempotencyConflict    = errors.New("idempotency conflict")
	ErrEventNameRequired      = errors.New("event name required")
	ErrTicketTypeNameRequired = errors.New("ticket type name required")
	ErrTicketTypeExists       = errors.New("ticket type already exists")
	ErrAuditMismatch          = errors.New("audit log does not reproduce inventory state")
)

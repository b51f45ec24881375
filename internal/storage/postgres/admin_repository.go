package postgres

import (
	"context"
	"fmt"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

func (r *Repository) CreateEvent(ctx context.Context, event domain.Event) error {
	const stmt = `
INSERT INTO events (id, name, starts_at)
VALUES ($1, $2, $3)`
	_, err := r.q(ctx).Exec(ctx, stmt, event.ID, event.Name, event.StartsAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrapErr("create event", err)
	}
	return nil
}

func (r *Repository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const query = `
SELECT id, name, starts_at
FROM events
ORDER BY created_at ASC, id ASC`
	rows, err := r.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, wrapErr("list events", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(&event.ID, &event.Name, &event.StartsAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, wrapErr("iterate events", rows.Err())
	}
	return events, nil
}

func (r *Repository) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	const stmt = `
INSERT INTO ticket_types (id, event_id, name, total_quantity)
VALUES ($1, $2, $3, $4)`
	_, err := r.q(ctx).Exec(ctx, stmt, tt.ID, tt.EventID, tt.Name, tt.TotalQuantity)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolation(err) {
			return domain.ErrTicketTypeExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return wrapErr("create ticket type", err)
	}
	return nil
}

func (r *Repository) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	const existsQuery = `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`
	var exists bool
	if err := r.q(ctx).QueryRow(ctx, existsQuery, eventID).Scan(&exists); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrapErr("check event", err)
	}
	if !exists {
		return nil, domain.ErrEventNotFound
	}

	const query = `
SELECT id, event_id, name, total_quantity
FROM ticket_types
WHERE event_id = $1
ORDER BY created_at ASC, id ASC`
	rows, err := r.q(ctx).Query(ctx, query, eventID)
	if err != nil {
		return nil, wrapErr("list ticket types", err)
	}
	defer rows.Close()

	var types []domain.TicketType
	for rows.Next() {
		var tt domain.TicketType
		if err := rows.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.TotalQuantity); err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		types = append(types, tt)
	}
	if rows.Err() != nil {
		return nil, wrapErr("iterate ticket types", rows.Err())
	}
	return types, nil
}

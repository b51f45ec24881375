package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

const holdColumns = `id, event_id, ticket_type_id, quantity, channel, session_id, status, COALESCE(idempotency_key, ''), created_at, expires_at`

func scanHold(row pgx.Row) (domain.Hold, error) {
	var (
		h       domain.Hold
		channel string
		status  string
	)
	err := row.Scan(
		&h.ID,
		&h.EventID,
		&h.TicketTypeID,
		&h.Quantity,
		&channel,
		&h.SessionID,
		&status,
		&h.IdempotencyKey,
		&h.CreatedAt,
		&h.ExpiresAt,
	)
	h.Channel = domain.Channel(channel)
	h.Status = domain.HoldStatus(status)
	return h, err
}

func (r *Repository) CreateHold(ctx context.Context, hold domain.Hold) error {
	const stmt = `
INSERT INTO holds (id, event_id, ticket_type_id, quantity, channel, session_id, status, idempotency_key, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.q(ctx).Exec(ctx, stmt,
		hold.ID,
		hold.EventID,
		hold.TicketTypeID,
		hold.Quantity,
		string(hold.Channel),
		hold.SessionID,
		string(hold.Status),
		nullable(hold.IdempotencyKey),
		hold.CreatedAt,
		hold.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrapErr("create hold", err)
	}
	return nil
}

func (r *Repository) GetHold(ctx context.Context, holdID string) (domain.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE id = $1`

	h, err := scanHold(r.q(ctx).QueryRow(ctx, query, holdID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return domain.Hold{}, domain.ErrHoldNotFound
		}
		return domain.Hold{}, wrapErr("get hold", err)
	}
	return h, nil
}

func (r *Repository) FindHoldByIdempotencyKey(ctx context.Context, eventID, ticketTypeID, key string) (*domain.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE event_id = $1 AND ticket_type_id = $2 AND idempotency_key = $3`

	h, err := scanHold(r.q(ctx).QueryRow(ctx, query, eventID, ticketTypeID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrapErr("find hold by idempotency key", err)
	}
	return &h, nil
}

func (r *Repository) UpdateHoldStatus(ctx context.Context, holdID string, status domain.HoldStatus) error {
	const stmt = `UPDATE holds SET status = $2 WHERE id = $1`

	tag, err := r.q(ctx).Exec(ctx, stmt, holdID, string(status))
	if err != nil {
		return wrapErr("update hold status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

// ListExpiredHolds returns up to limit active holds with expires_at <= now, oldest first.
func (r *Repository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	builder := psql.Select(holdColumns).
		From("holds").
		Where(squirrel.Eq{"status": string(domain.HoldStatusActive)}).
		Where(squirrel.LtOrEq{"expires_at": now}).
		OrderBy("expires_at", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return r.listHolds(ctx, builder, "list expired holds")
}

func (r *Repository) ListActiveHoldsByEvent(ctx context.Context, eventID string) ([]domain.Hold, error) {
	builder := psql.Select(holdColumns).
		From("holds").
		Where(squirrel.Eq{"status": string(domain.HoldStatusActive), "event_id": eventID}).
		OrderBy("expires_at", "id")
	return r.listHolds(ctx, builder, "list event holds")
}

func (r *Repository) listHolds(ctx context.Context, builder squirrel.SelectBuilder, op string) ([]domain.Hold, error) {
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}
	rows, err := r.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return holds, nil
}

func (r *Repository) SumActiveHolds(ctx context.Context) (count, quantity int, err error) {
	const query = `SELECT COUNT(*), COALESCE(SUM(quantity), 0) FROM holds WHERE status = 'active'`

	if err := r.q(ctx).QueryRow(ctx, query).Scan(&count, &quantity); err != nil {
		return 0, 0, wrapErr("sum active holds", err)
	}
	return count, quantity, nil
}

func (r *Repository) GetSaleByHoldID(ctx context.Context, holdID string) (*domain.Sale, error) {
	const query = `
SELECT id, hold_id, event_id, ticket_type_id, quantity, COALESCE(idempotency_key, ''), created_at
FROM sales
WHERE hold_id = $1`

	var s domain.Sale
	err := r.q(ctx).QueryRow(ctx, query, holdID).
		Scan(&s.ID, &s.HoldID, &s.EventID, &s.TicketTypeID, &s.Quantity, &s.IdempotencyKey, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, nil
		}
		return nil, wrapErr("get sale", err)
	}
	return &s, nil
}

func (r *Repository) CreateSale(ctx context.Context, sale domain.Sale) error {
	const stmt = `
INSERT INTO sales (id, hold_id, event_id, ticket_type_id, quantity, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.q(ctx).Exec(ctx, stmt,
		sale.ID,
		sale.HoldID,
		sale.EventID,
		sale.TicketTypeID,
		sale.Quantity,
		nullable(sale.IdempotencyKey),
		sale.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrHoldNotFound
		}
		return wrapErr("create sale", err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

func (r *Repository) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	const stmt = `
INSERT INTO inventory_audit (id, event_id, ticket_type_id, hold_id, action, quantity, reason, version, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.q(ctx).Exec(ctx, stmt,
		entry.ID,
		entry.EventID,
		entry.TicketTypeID,
		nullable(entry.HoldID),
		string(entry.Action),
		entry.Quantity,
		entry.Reason,
		entry.Version,
		entry.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate version %d", domain.ErrAuditMismatch, entry.Version)
		}
		return wrapErr("append audit", err)
	}
	return nil
}

// ListAudit returns entries ordered by record and version.
func (r *Repository) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	builder := psql.Select(
		"id", "event_id", "ticket_type_id", "COALESCE(hold_id::text, '')",
		"action", "quantity", "reason", "version", "created_at",
	).
		From("inventory_audit").
		OrderBy("event_id", "ticket_type_id", "version")

	if filter.EventID != "" {
		builder = builder.Where(squirrel.Eq{"event_id": filter.EventID})
	}
	if filter.TicketTypeID != "" {
		builder = builder.Where(squirrel.Eq{"ticket_type_id": filter.TicketTypeID})
	}
	if len(filter.Actions) > 0 {
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		builder = builder.Where(squirrel.Eq{"action": actions})
	}
	if !filter.Since.IsZero() {
		builder = builder.Where(squirrel.GtOrEq{"created_at": filter.Since})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit: %w", err)
	}
	rows, err := r.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrapErr("list audit", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e      domain.AuditEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.TicketTypeID, &e.HoldID, &action, &e.Quantity, &e.Reason, &e.Version, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = domain.AuditAction(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate audit", err)
	}
	return entries, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// Repository implements the ledger's storage contract on PostgreSQL.
// Inventory rows are locked with SELECT ... FOR UPDATE for the duration of
// the surrounding WithTx, which serializes every mutation of one record.
type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return wrapErr("ping", err)
	}
	return nil
}

func (r *Repository) q(ctx context.Context) querier {
	return querierFromContext(ctx, r.db)
}

const recordColumns = `event_id, ticket_type_id, total_quantity, available_quantity, held_quantity, sold_quantity, version, last_updated`

func scanRecord(row pgx.Row) (domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := row.Scan(
		&rec.EventID,
		&rec.TicketTypeID,
		&rec.TotalQuantity,
		&rec.AvailableQuantity,
		&rec.HeldQuantity,
		&rec.SoldQuantity,
		&rec.Version,
		&rec.LastUpdated,
	)
	return rec, err
}

func (r *Repository) GetRecordForUpdate(ctx context.Context, eventID, ticketTypeID string) (domain.InventoryRecord, error) {
	return r.getRecord(ctx, eventID, ticketTypeID, true)
}

func (r *Repository) GetRecord(ctx context.Context, eventID, ticketTypeID string) (domain.InventoryRecord, error) {
	return r.getRecord(ctx, eventID, ticketTypeID, false)
}

func (r *Repository) getRecord(ctx context.Context, eventID, ticketTypeID string, forUpdate bool) (domain.InventoryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM inventory_records WHERE event_id = $1 AND ticket_type_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rec, err := scanRecord(r.q(ctx).QueryRow(ctx, query, eventID, ticketTypeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return domain.InventoryRecord{}, domain.ErrInventoryNotFound
		}
		return domain.InventoryRecord{}, wrapErr("get inventory record", err)
	}
	return rec, nil
}

func (r *Repository) CreateRecord(ctx context.Context, rec domain.InventoryRecord) error {
	const stmt = `
INSERT INTO inventory_records (event_id, ticket_type_id, total_quantity, available_quantity, held_quantity, sold_quantity, version, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.q(ctx).Exec(ctx, stmt,
		rec.EventID,
		rec.TicketTypeID,
		rec.TotalQuantity,
		rec.AvailableQuantity,
		rec.HeldQuantity,
		rec.SoldQuantity,
		rec.Version,
		rec.LastUpdated,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrInventoryAlreadyExists
		case isForeignKeyViolation(err):
			return domain.ErrEventNotFound
		case isCheckViolation(err):
			return domain.ErrWouldViolateInvariant
		case isInvalidUUID(err):
			return domain.ErrInvalidID
		}
		return wrapErr("create inventory record", err)
	}
	return nil
}

// UpdateRecord writes rec only if the stored version is rec.Version-1.
func (r *Repository) UpdateRecord(ctx context.Context, rec domain.InventoryRecord) error {
	const stmt = `
UPDATE inventory_records
SET total_quantity = $3, available_quantity = $4, held_quantity = $5, sold_quantity = $6, version = $7, last_updated = $8
WHERE event_id = $1 AND ticket_type_id = $2 AND version = $9`

	tag, err := r.q(ctx).Exec(ctx, stmt,
		rec.EventID,
		rec.TicketTypeID,
		rec.TotalQuantity,
		rec.AvailableQuantity,
		rec.HeldQuantity,
		rec.SoldQuantity,
		rec.Version,
		rec.LastUpdated,
		rec.Version-1,
	)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrWouldViolateInvariant
		}
		return wrapErr("update inventory record", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update inventory record %s/%s: stale version %d", rec.EventID, rec.TicketTypeID, rec.Version)
	}
	return nil
}

// ListRecords returns every record, or those of one event when eventID is set.
func (r *Repository) ListRecords(ctx context.Context, eventID string) ([]domain.InventoryRecord, error) {
	builder := psql.Select(recordColumns).
		From("inventory_records").
		OrderBy("event_id", "ticket_type_id")
	if eventID != "" {
		builder = builder.Where("event_id = ?", eventID)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list records: %w", err)
	}
	rows, err := r.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrapErr("list inventory records", err)
	}
	defer rows.Close()

	var records []domain.InventoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate inventory records", err)
	}
	return records, nil
}

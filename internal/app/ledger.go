package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// RecordStore is the part of the persistence contract every inventory
// mutation needs. GetRecordForUpdate must lock the record until the
// surrounding WithTx returns.
type RecordStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetRecordForUpdate(ctx context.Context, eventID, ticketTypeID string) (domain.InventoryRecord, error)
	UpdateRecord(ctx context.Context, rec domain.InventoryRecord) error
	AppendAudit(ctx context.Context, entry domain.AuditEntry) error
}

// commitRecord persists a mutated record and its audit entry. It must run
// inside the transaction that locked rec.
func commitRecord(ctx context.Context, repo RecordStore, rec domain.InventoryRecord, entry domain.AuditEntry, now time.Time) (domain.InventoryRecord, domain.AuditEntry, error) {
	if err := rec.CheckInvariant(); err != nil {
		return domain.InventoryRecord{}, domain.AuditEntry{}, err
	}
	rec.Version++
	rec.LastUpdated = now

	entry.ID = newID()
	entry.EventID = rec.EventID
	entry.TicketTypeID = rec.TicketTypeID
	entry.Version = rec.Version
	entry.CreatedAt = now

	if err := repo.UpdateRecord(ctx, rec); err != nil {
		return domain.InventoryRecord{}, domain.AuditEntry{}, err
	}
	if err := repo.AppendAudit(ctx, entry); err != nil {
		return domain.InventoryRecord{}, domain.AuditEntry{}, err
	}
	return rec, entry, nil
}

func newID() string {
	return uuid.NewString()
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

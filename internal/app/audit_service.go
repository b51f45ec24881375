package app

import (
	"context"
	"fmt"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

type AuditRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetRecordForUpdate(ctx context.Context, eventID, ticketTypeID string) (domain.InventoryRecord, error)
	ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

type AuditService struct {
	repo AuditRepository
}

func NewAuditService(repo AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

const maxAuditPage = 1000

// ListAudit returns entries ordered by record version, oldest first.
func (s *AuditService) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if filter.Limit <= 0 || filter.Limit > maxAuditPage {
		filter.Limit = maxAuditPage
	}
	return s.repo.ListAudit(ctx, filter)
}

// Reconstruct replays a record's full audit log from its creation snapshot and
// checks that the result matches the stored record.
func (s *AuditService) Reconstruct(ctx context.Context, eventID, ticketTypeID string) (domain.InventoryRecord, error) {
	if eventID == "" || ticketTypeID == "" {
		return domain.InventoryRecord{}, domain.ErrInvalidID
	}

	var (
		stored  domain.InventoryRecord
		entries []domain.AuditEntry
	)
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		stored, err = s.repo.GetRecordForUpdate(txCtx, eventID, ticketTypeID)
		if err != nil {
			return err
		}
		entries, err = s.repo.ListAudit(txCtx, domain.AuditFilter{EventID: eventID, TicketTypeID: ticketTypeID})
		return err
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	initialTotal := stored.TotalQuantity
	for _, e := range entries {
		if e.Action == domain.AuditManualAdjustment {
			initialTotal -= e.Quantity
		}
	}
	base := domain.NewInventoryRecord(eventID, ticketTypeID, initialTotal, stored.LastUpdated)

	replayed, err := domain.Replay(base, entries)
	if err != nil {
		return replayed, err
	}
	if replayed.Version != stored.Version ||
		replayed.AvailableQuantity != stored.AvailableQuantity ||
		replayed.HeldQuantity != stored.HeldQuantity ||
		replayed.SoldQuantity != stored.SoldQuantity {
		return replayed, fmt.Errorf("%w: replayed %d/%d/%d v%d, stored %d/%d/%d v%d", domain.ErrAuditMismatch,
			replayed.AvailableQuantity, replayed.HeldQuantity, replayed.SoldQuantity, replayed.Version,
			stored.AvailableQuantity, stored.HeldQuantity, stored.SoldQuantity, stored.Version)
	}
	return replayed, nil
}

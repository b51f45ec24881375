package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

type InventoryRepository interface {
	RecordStore
	GetRecord(ctx context.Context, eventID, ticketTypeID string) (domain.InventoryRecord, error)
	ListRecords(ctx context.Context, eventID string) ([]domain.InventoryRecord, error)
}

type InventoryService struct {
	repo     InventoryRepository
	clock    clock.Clock
	notifier *Notifier
	logger   *slog.Logger
}

func NewInventoryService(repo InventoryRepository, clk clock.Clock, notifier *Notifier, logger *slog.Logger) *InventoryService {
	return &InventoryService{
		repo:     repo,
		clock:    clk,
		notifier: notifier,
		logger:   loggerOrDefault(logger),
	}
}

type AdjustInventoryInput struct {
	EventID      string
	TicketTypeID string
	// Delta is applied to both total and available quantity.
	Delta  int
	Reason string
}

const defaultAdjustReason = "manual"

// AdjustInventory applies a manual correction, e.g. the venue releasing more seats.
func (s *InventoryService) AdjustInventory(ctx context.Context, in AdjustInventoryInput) (domain.InventoryRecord, error) {
	if in.EventID == "" || in.TicketTypeID == "" {
		return domain.InventoryRecord{}, domain.ErrInvalidID
	}
	if in.Delta == 0 {
		return domain.InventoryRecord{}, domain.ErrInvalidQuantity
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = defaultAdjustReason
	}

	now := s.clock.Now()
	var (
		result    domain.InventoryRecord
		entry     domain.AuditEntry
		slot      *updateSlot
		committed bool
	)
	defer func() { s.notifier.settle(slot, entry, committed) }()

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		rec, err := s.repo.GetRecordForUpdate(txCtx, in.EventID, in.TicketTypeID)
		if err != nil {
			return err
		}
		if rec.AvailableQuantity+in.Delta < 0 {
			return domain.ErrWouldViolateInvariant
		}
		rec.TotalQuantity += in.Delta
		rec.AvailableQuantity += in.Delta

		slot = s.notifier.reserve(rec.EventID, rec.TicketTypeID)
		result, entry, err = commitRecord(txCtx, s.repo, rec, domain.AuditEntry{
			Action:   domain.AuditManualAdjustment,
			Quantity: in.Delta,
			Reason:   reason,
		}, now)
		return err
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	committed = true
	s.logger.Info("inventory adjusted",
		slog.String("event_id", in.EventID),
		slog.String("ticket_type_id", in.TicketTypeID),
		slog.Int("delta", in.Delta),
		slog.String("reason", reason),
	)
	return result, nil
}

func (s *InventoryService) GetInventory(ctx context.Context, eventID, ticketTypeID string) (domain.InventoryRecord, error) {
	if eventID == "" || ticketTypeID == "" {
		return domain.InventoryRecord{}, domain.ErrInvalidID
	}
	return s.repo.GetRecord(ctx, eventID, ticketTypeID)
}

// ListInventory returns the records of one event, or of all events when eventID is empty.
func (s *InventoryService) ListInventory(ctx context.Context, eventID string) ([]domain.InventoryRecord, error) {
	return s.repo.ListRecords(ctx, eventID)
}

package app

import (
	"context"
	"log/slog"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

type SaleRepository interface {
	RecordStore
	GetHold(ctx context.Context, holdID string) (domain.Hold, error)
	UpdateHoldStatus(ctx context.Context, holdID string, status domain.HoldStatus) error
	GetSaleByHoldID(ctx context.Context, holdID string) (*domain.Sale, error)
	CreateSale(ctx context.Context, sale domain.Sale) error
}

type SaleService struct {
	repo     SaleRepository
	clock    clock.Clock
	notifier *Notifier
	logger   *slog.Logger
}

func NewSaleService(repo SaleRepository, clk clock.Clock, notifier *Notifier, logger *slog.Logger) *SaleService {
	return &SaleService{
		repo:     repo,
		clock:    clk,
		notifier: notifier,
		logger:   loggerOrDefault(logger),
	}
}

type ConvertHoldInput struct {
	HoldID string
	// IdempotencyKey lets a payment callback retry the conversion safely.
	IdempotencyKey string
}

type ConvertHoldResult struct {
	Sale    domain.Sale
	Created bool
}

// ConvertHoldToSale moves a hold's quantity from held to sold. It fails with
// ErrHoldExpired once the hold's TTL has elapsed, even if the sweeper has not
// reached it yet.
func (s *SaleService) ConvertHoldToSale(ctx context.Context, in ConvertHoldInput) (ConvertHoldResult, error) {
	if in.HoldID == "" {
		return ConvertHoldResult{}, domain.ErrHoldNotFound
	}

	now := s.clock.Now()
	var (
		result    ConvertHoldResult
		entry     domain.AuditEntry
		slot      *updateSlot
		committed bool
	)
	defer func() { s.notifier.settle(slot, entry, committed) }()

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		result = ConvertHoldResult{}
		hold, err := s.repo.GetHold(txCtx, in.HoldID)
		if err != nil {
			return err
		}
		rec, err := s.repo.GetRecordForUpdate(txCtx, hold.EventID, hold.TicketTypeID)
		if err != nil {
			return err
		}
		hold, err = s.repo.GetHold(txCtx, in.HoldID)
		if err != nil {
			return err
		}

		switch hold.Status {
		case domain.HoldStatusSold:
			existing, err := s.repo.GetSaleByHoldID(txCtx, in.HoldID)
			if err != nil {
				return err
			}
			if existing != nil && in.IdempotencyKey != "" && existing.IdempotencyKey == in.IdempotencyKey {
				result = ConvertHoldResult{Sale: *existing}
				return nil
			}
			return domain.ErrHoldNotFound
		case domain.HoldStatusExpired:
			return domain.ErrHoldExpired
		case domain.HoldStatusReleased:
			return domain.ErrHoldNotFound
		}
		if hold.ExpiredAt(now) {
			return domain.ErrHoldExpired
		}

		sale := domain.Sale{
			ID:             newID(),
			HoldID:         hold.ID,
			EventID:        hold.EventID,
			TicketTypeID:   hold.TicketTypeID,
			Quantity:       hold.Quantity,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
		}
		if err := s.repo.UpdateHoldStatus(txCtx, hold.ID, domain.HoldStatusSold); err != nil {
			return err
		}
		if err := s.repo.CreateSale(txCtx, sale); err != nil {
			return err
		}

		rec.HeldQuantity -= hold.Quantity
		rec.SoldQuantity += hold.Quantity
		slot = s.notifier.reserve(rec.EventID, rec.TicketTypeID)
		_, entry, err = commitRecord(txCtx, s.repo, rec, domain.AuditEntry{
			HoldID:   hold.ID,
			Action:   domain.AuditSaleCompleted,
			Quantity: -hold.Quantity,
		}, now)
		if err != nil {
			return err
		}

		result = ConvertHoldResult{Sale: sale, Created: true}
		return nil
	})
	if err != nil {
		return ConvertHoldResult{}, err
	}

	committed = result.Created

	if result.Created {
		s.logger.Info("sale completed",
			slog.String("sale_id", result.Sale.ID),
			slog.String("hold_id", result.Sale.HoldID),
			slog.Int("quantity", result.Sale.Quantity),
		)
	}
	return result, nil
}

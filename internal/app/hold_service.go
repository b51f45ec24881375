package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

type HoldRepository interface {
	RecordStore
	FindHoldByIdempotencyKey(ctx context.Context, eventID, ticketTypeID, key string) (*domain.Hold, error)
	CreateHold(ctx context.Context, hold domain.Hold) error
	GetHold(ctx context.Context, holdID string) (domain.Hold, error)
	UpdateHoldStatus(ctx context.Context, holdID string, status domain.HoldStatus) error
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
	ListActiveHoldsByEvent(ctx context.Context, eventID string) ([]domain.Hold, error)
}

type HoldService struct {
	repo       HoldRepository
	clock      clock.Clock
	ttls       map[domain.Channel]time.Duration
	sweepBatch int
	notifier   *Notifier
	logger     *slog.Logger
}

const (
	defaultOnlineTTL  = 15 * time.Minute
	defaultCashTTL    = 30 * time.Minute
	defaultAdminTTL   = 60 * time.Minute
	defaultSweepBatch = 500
)

// errHoldNotDue is returned when the sweeper reaches a hold whose TTL has not elapsed.
var errHoldNotDue = errors.New("hold not yet expired")

func NewHoldService(repo HoldRepository, clk clock.Clock, opts ...HoldServiceOption) *HoldService {
	svc := &HoldService{
		repo:  repo,
		clock: clk,
		ttls: map[domain.Channel]time.Duration{
			domain.ChannelOnline: defaultOnlineTTL,
			domain.ChannelCash:   defaultCashTTL,
			domain.ChannelAdmin:  defaultAdminTTL,
		},
		sweepBatch: defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.logger = loggerOrDefault(svc.logger)
	return svc
}

type HoldServiceOption func(*HoldService)

// WithHoldTTL overrides the TTL for new holds on one channel.
func WithHoldTTL(channel domain.Channel, d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 && channel.Valid() {
			s.ttls[channel] = d
		}
	}
}

// WithSweepBatch limits how many expired holds one sweep pass handles.
func WithSweepBatch(n int) HoldServiceOption {
	return func(s *HoldService) {
		if n > 0 {
			s.sweepBatch = n
		}
	}
}

func WithHoldNotifier(n *Notifier) HoldServiceOption {
	return func(s *HoldService) { s.notifier = n }
}

func WithHoldLogger(l *slog.Logger) HoldServiceOption {
	return func(s *HoldService) { s.logger = l }
}

// TTL returns the hold lifetime for channel.
func (s *HoldService) TTL(channel domain.Channel) time.Duration {
	return s.ttls[channel]
}

type CreateHoldInput struct {
	EventID      string
	TicketTypeID string
	Quantity     int
	Channel      domain.Channel
	SessionID    string
	// IdempotencyKey is optional; a repeated key returns the original hold.
	IdempotencyKey string
}

// CreateHoldResult reports the hold and whether this call created it. A
// repeated idempotency key returns the original hold with Created false.
type CreateHoldResult struct {
	Hold    domain.Hold
	Created bool
}

func (s *HoldService) CreateHold(ctx context.Context, in CreateHoldInput) (CreateHoldResult, error) {
	if in.Quantity <= 0 {
		return CreateHoldResult{}, domain.ErrInvalidQuantity
	}
	if in.EventID == "" || in.TicketTypeID == "" {
		return CreateHoldResult{}, domain.ErrInvalidID
	}
	if in.Channel == "" {
		in.Channel = domain.ChannelOnline
	}
	if !in.Channel.Valid() {
		return CreateHoldResult{}, domain.ErrInvalidChannel
	}

	now := s.clock.Now()
	var (
		result    CreateHoldResult
		entry     domain.AuditEntry
		slot      *updateSlot
		committed bool
	)
	defer func() { s.notifier.settle(slot, entry, committed) }()

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		result = CreateHoldResult{}
		rec, err := s.repo.GetRecordForUpdate(txCtx, in.EventID, in.TicketTypeID)
		if err != nil {
			return err
		}

		if in.IdempotencyKey != "" {
			existing, err := s.repo.FindHoldByIdempotencyKey(txCtx, in.EventID, in.TicketTypeID, in.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.Quantity != in.Quantity {
					return domain.ErrIdempotencyConflict
				}
				result = CreateHoldResult{Hold: *existing}
				return nil
			}
		}

		if in.Quantity > rec.AvailableQuantity {
			return domain.ErrInsufficientInventory
		}

		hold := domain.Hold{
			ID:             newID(),
			EventID:        in.EventID,
			TicketTypeID:   in.TicketTypeID,
			Quantity:       in.Quantity,
			Channel:        in.Channel,
			SessionID:      in.SessionID,
			Status:         domain.HoldStatusActive,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
			ExpiresAt:      now.Add(s.ttls[in.Channel]),
		}
		if err := s.repo.CreateHold(txCtx, hold); err != nil {
			return err
		}

		rec.AvailableQuantity -= hold.Quantity
		rec.HeldQuantity += hold.Quantity
		slot = s.notifier.reserve(rec.EventID, rec.TicketTypeID)
		_, entry, err = commitRecord(txCtx, s.repo, rec, domain.AuditEntry{
			HoldID:   hold.ID,
			Action:   domain.AuditHoldCreated,
			Quantity: -hold.Quantity,
		}, now)
		if err != nil {
			return err
		}

		result = CreateHoldResult{Hold: hold, Created: true}
		return nil
	})
	if err != nil {
		return CreateHoldResult{}, err
	}
	committed = result.Created

	if result.Created {
		s.logger.Debug("hold created",
			slog.String("hold_id", result.Hold.ID),
			slog.String("ticket_type_id", result.Hold.TicketTypeID),
			slog.Int("quantity", result.Hold.Quantity),
			slog.String("channel", string(result.Hold.Channel)),
		)
	}
	return result, nil
}

// ReleaseHold returns an active hold's quantity to availability. Releasing a
// hold that is no longer active fails with ErrHoldNotFound.
func (s *HoldService) ReleaseHold(ctx context.Context, holdID string) (domain.Hold, error) {
	if holdID == "" {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	return s.finishHold(ctx, holdID, domain.AuditHoldReleased, "")
}

// SweepResult counts what a bulk release pass did.
type SweepResult struct {
	Scanned  int
	Released int
	Skipped  int
	Failed   int
}

// ReleaseExpiredHolds expires every active hold whose TTL has elapsed.
// A hold that fails to release is logged and counted and the pass continues,
// except when the store is unavailable: the pass then stops and returns
// ErrStoreUnavailable with what it had done so far.
func (s *HoldService) ReleaseExpiredHolds(ctx context.Context) (SweepResult, error) {
	holds, err := s.repo.ListExpiredHolds(ctx, s.clock.Now(), s.sweepBatch)
	if err != nil {
		return SweepResult{}, err
	}
	return s.releaseAll(ctx, holds, domain.AuditHoldExpired, "ttl_elapsed")
}

// ReleaseEventHolds releases every active hold of an event, e.g. when the event is cancelled.
func (s *HoldService) ReleaseEventHolds(ctx context.Context, eventID string) (SweepResult, error) {
	if eventID == "" {
		return SweepResult{}, domain.ErrInvalidID
	}
	holds, err := s.repo.ListActiveHoldsByEvent(ctx, eventID)
	if err != nil {
		return SweepResult{}, err
	}
	return s.releaseAll(ctx, holds, domain.AuditHoldReleased, "event_cancelled")
}

func (s *HoldService) releaseAll(ctx context.Context, holds []domain.Hold, action domain.AuditAction, reason string) (SweepResult, error) {
	res := SweepResult{Scanned: len(holds)}
	for _, h := range holds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, err := s.finishHold(ctx, h.ID, action, reason)
		switch {
		case err == nil:
			res.Released++
		case errors.Is(err, domain.ErrHoldNotFound), errors.Is(err, errHoldNotDue):
			// Converted, released or already swept since it was listed.
			res.Skipped++
		case errors.Is(err, domain.ErrStoreUnavailable):
			// The rest of the pass would fail the same way.
			return res, err
		default:
			res.Failed++
			s.logger.Warn("release hold failed",
				slog.String("hold_id", h.ID),
				slog.String("action", string(action)),
				slog.Any("error", err),
			)
		}
	}
	return res, nil
}

// finishHold is the single release path shared by explicit release, expiry
// and event cancellation.
func (s *HoldService) finishHold(ctx context.Context, holdID string, action domain.AuditAction, reason string) (domain.Hold, error) {
	now := s.clock.Now()
	status := domain.HoldStatusReleased
	if action == domain.AuditHoldExpired {
		status = domain.HoldStatusExpired
	}

	var (
		result    domain.Hold
		entry     domain.AuditEntry
		slot      *updateSlot
		committed bool
	)
	defer func() { s.notifier.settle(slot, entry, committed) }()

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		hold, err := s.repo.GetHold(txCtx, holdID)
		if err != nil {
			return err
		}
		rec, err := s.repo.GetRecordForUpdate(txCtx, hold.EventID, hold.TicketTypeID)
		if err != nil {
			return err
		}
		// Re-read under the record lock: a concurrent sale, release or sweep may have won.
		hold, err = s.repo.GetHold(txCtx, holdID)
		if err != nil {
			return err
		}
		if !hold.Active() {
			return domain.ErrHoldNotFound
		}
		if action == domain.AuditHoldExpired && !hold.ExpiredAt(now) {
			return errHoldNotDue
		}

		if err := s.repo.UpdateHoldStatus(txCtx, holdID, status); err != nil {
			return err
		}
		rec.AvailableQuantity += hold.Quantity
		rec.HeldQuantity -= hold.Quantity
		slot = s.notifier.reserve(rec.EventID, rec.TicketTypeID)
		_, entry, err = commitRecord(txCtx, s.repo, rec, domain.AuditEntry{
			HoldID:   hold.ID,
			Action:   action,
			Quantity: hold.Quantity,
			Reason:   reason,
		}, now)
		if err != nil {
			return err
		}

		hold.Status = status
		result = hold
		return nil
	})
	if err != nil {
		return domain.Hold{}, err
	}
	committed = true
	return result, nil
}

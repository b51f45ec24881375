package app

import (
	"context"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

type StatusRepository interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
	ListRecords(ctx context.Context, eventID string) ([]domain.InventoryRecord, error)
	SumActiveHolds(ctx context.Context) (count, quantity int, err error)
}

// StatusService recomputes the dashboard summary on every call.
type StatusService struct {
	repo  StatusRepository
	clock clock.Clock
}

func NewStatusService(repo StatusRepository, clk clock.Clock) *StatusService {
	return &StatusService{repo: repo, clock: clk}
}

func (s *StatusService) Summary(ctx context.Context) (domain.StatusSummary, error) {
	events, err := s.repo.ListEvents(ctx)
	if err != nil {
		return domain.StatusSummary{}, err
	}
	records, err := s.repo.ListRecords(ctx, "")
	if err != nil {
		return domain.StatusSummary{}, err
	}
	count, qty, err := s.repo.SumActiveHolds(ctx)
	if err != nil {
		return domain.StatusSummary{}, err
	}
	return domain.Summarize(events, records, count, qty, s.clock.Now()), nil
}

package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// HoldExpirer releases holds whose TTL has elapsed.
type HoldExpirer interface {
	ReleaseExpiredHolds(ctx context.Context) (SweepResult, error)
}

// Sweeper periodically expires holds. Its cadence is independent of how
// often dashboards refresh; they learn about expiries through the Notifier.
type Sweeper struct {
	holds    HoldExpirer
	interval time.Duration
	logger   *slog.Logger
}

const defaultSweepInterval = 30 * time.Second

func NewSweeper(holds HoldExpirer, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		holds:    holds,
		interval: interval,
		logger:   loggerOrDefault(logger),
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
// A failed pass is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("expiry sweeper started", slog.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		_, _ = s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single pass and logs its outcome.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	res, err := s.holds.ReleaseExpiredHolds(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return res, err
		}
		if errors.Is(err, domain.ErrStoreUnavailable) {
			s.logger.Warn("sweep skipped, store unavailable; retrying next tick", slog.Any("error", err))
		} else {
			s.logger.Error("sweep failed", slog.Any("error", err))
		}
		return res, err
	}
	if res.Scanned > 0 {
		s.logger.Info("sweep finished",
			slog.Int("scanned", res.Scanned),
			slog.Int("expired", res.Released),
			slog.Int("skipped", res.Skipped),
			slog.Int("failed", res.Failed),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return res, nil
}

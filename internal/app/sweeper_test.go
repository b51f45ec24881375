package app

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

type countingExpirer struct {
	calls atomic.Int32
}

func (c *countingExpirer) ReleaseExpiredHolds(ctx context.Context) (SweepResult, error) {
	c.calls.Add(1)
	return SweepResult{}, nil
}

func TestSweeper_SweepOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := newLedger(t)
	tt := l.seed(t, 10)
	l.hold(t, tt, 3)
	l.hold(t, tt, 2)

	var buf bytes.Buffer
	sweeper := NewSweeper(l.holds, time.Minute, slog.New(slog.NewTextHandler(&buf, nil)))

	res, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)

	l.clock.Advance(15 * time.Minute)
	res, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 2, Released: 2}, res)
	requireCounts(t, l.record(t, tt), 10, 0, 0)
	assert.Contains(t, buf.String(), "sweep finished")
}

func TestSweeper_StoreUnavailable(t *testing.T) {
	t.Parallel()

	l := newLedger(t)
	tt := l.seed(t, 10)
	l.hold(t, tt, 3)
	l.clock.Advance(time.Hour)

	var buf bytes.Buffer
	sweeper := NewSweeper(l.holds, time.Minute, slog.New(slog.NewTextHandler(&buf, nil)))

	l.store.SimulateOutage(true)
	_, err := sweeper.SweepOnce(context.Background())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "store unavailable")

	// The next pass picks the hold up once the store is back.
	l.store.SimulateOutage(false)
	res, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Released)
	requireCounts(t, l.record(t, tt), 10, 0, 0)
}

func TestSweeper_Run(t *testing.T) {
	t.Parallel()

	expirer := &countingExpirer{}
	sweeper := NewSweeper(expirer, 5*time.Millisecond, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	require.Eventually(t, func() bool { return expirer.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	t.Parallel()

	sweeper := NewSweeper(&countingExpirer{}, 0, nil)
	assert.Equal(t, defaultSweepInterval, sweeper.interval)
}

package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

func TestHoldService_CreateHold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("moves quantity from available to held", func(t *testing.T) {
		l := newLedger(t)
		tt := l.seed(t, 10)

		res, err := l.holds.CreateHold(ctx, CreateHoldInput{
			EventID:      tt.EventID,
			TicketTypeID: tt.ID,
			Quantity:     4,
			SessionID:    "sess-1",
		})
		require.NoError(t, err)
		assert.True(t, res.Created)
		hold := res.Hold

		assert.NotEmpty(t, hold.ID)
		assert.Equal(t, domain.HoldStatusActive, hold.Status)
		assert.Equal(t, domain.ChannelOnline, hold.Channel)
		assert.Equal(t, "sess-1", hold.SessionID)
		assert.True(t, hold.ExpiresAt.Equal(testNow.Add(15*time.Minute)))

		rec := l.record(t, tt)
		requireCounts(t, rec, 6, 4, 0)
		assert.Equal(t, int64(1), rec.Version)

		entries, err := l.audit.ListAudit(ctx, domain.AuditFilter{EventID: tt.EventID, TicketTypeID: tt.ID})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.AuditHoldCreated, entries[0].Action)
		assert.Equal(t, -4, entries[0].Quantity)
		assert.Equal(t, hold.ID, entries[0].HoldID)
		assert.Equal(t, int64(1), entries[0].Version)
	})

	t.Run("ttl depends on channel", func(t *testing.T) {
		l := newLedger(t, WithHoldTTL(domain.ChannelCash, 45*time.Minute))
		tt := l.seed(t, 10)

		cases := map[domain.Channel]time.Duration{
			domain.ChannelOnline: 15 * time.Minute,
			domain.ChannelCash:   45 * time.Minute,
			domain.ChannelAdmin:  60 * time.Minute,
		}
		for channel, ttl := range cases {
			res, err := l.holds.CreateHold(ctx, CreateHoldInput{
				EventID:      tt.EventID,
				TicketTypeID: tt.ID,
				Quantity:     1,
				Channel:      channel,
			})
			require.NoError(t, err)
			assert.True(t, res.Hold.ExpiresAt.Equal(testNow.Add(ttl)), "channel %s", channel)
			assert.Equal(t, ttl, l.holds.TTL(channel))
		}
	})

	t.Run("whole availability can be held", func(t *testing.T) {
		l := newLedger(t)
		tt := l.seed(t, 5)

		l.hold(t, tt, 5)
		requireCounts(t, l.record(t, tt), 0, 5, 0)
	})

	t.Run("validation", func(t *testing.T) {
		l := newLedger(t)
		tt := l.seed(t, 10)

		tests := []struct {
			name string
			in   CreateHoldInput
			want error
		}{
			{"zero quantity", CreateHoldInput{EventID: tt.EventID, TicketTypeID: tt.ID, Quantity: 0}, domain.ErrInvalidQuantity},
			{"negative quantity", CreateHoldInput{EventID: tt.EventID, TicketTypeID: tt.ID, Quantity: -2}, domain.ErrInvalidQuantity},
			{"missing ids", CreateHoldInput{Quantity: 1}, domain.ErrInvalidID},
			{"unknown channel", CreateHoldInput{EventID: tt.EventID, TicketTypeID: tt.ID, Quantity: 1, Channel: "phone"}, domain.ErrInvalidChannel},
			{"unknown record", CreateHoldInput{EventID: tt.EventID, TicketTypeID: "missing", Quantity: 1}, domain.ErrInventoryNotFound},
			{"more than available", CreateHoldInput{EventID: tt.EventID, TicketTypeID: tt.ID, Quantity: 11}, domain.ErrInsufficientInventory},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := l.holds.CreateHold(ctx, tc.in)
				require.ErrorIs(t, err, tc.want)
			})
		}

		rec := l.record(t, tt)
		requireCounts(t, rec, 10, 0, 0)
		assert.Equal(t, int64(0), rec.Version)
		assert.Empty(t, l.actions(t, tt))
	})

	t.Run("idempotency key returns the original hold", func(t *testing.T) {
		l := newLedger(t)
		tt := l.seed(t, 10)
		in := CreateHoldInput{EventID: tt.EventID, TicketTypeID: tt.ID, Quantity: 3, IdempotencyKey: "idem-1"}

		first, err := l.holds.CreateHold(ctx, in)
		require.NoError(t, err)
		second, err := l.holds.CreateHold(ctx, in)
		require.NoError(t, err)

		assert.True(t, first.Created)
		assert.False(t, second.Created)
		assert.Equal(t, first.Hold.ID, second.Hold.ID)
		requireCounts(t, l.record(t, tt), 7, 3, 0)
		assert.Len(t, l.actions(t, tt), 1)

		// A replay after release still returns the original hold without re-holding.
		_, err = l.holds.ReleaseHold(ctx, first.Hold.ID)
		require.NoError(t, err)
		third, err := l.holds.CreateHold(ctx, in)
		require.NoError(t, err)
		assert.False(t, third.Created)
		assert.Equal(t, first.Hold.ID, third.Hold.ID)
		requireCounts(t, l.record(t, tt), 10, 0, 0)

		in.Quantity = 4
		_, err = l.holds.CreateHold(ctx, in)
		require.ErrorIs(t, err, domain.ErrIdempotencyConflict)
	})
}

func TestHoldService_ReleaseHold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := newLedger(t)
	tt := l.seed(t, 10)
	hold := l.hold(t, tt, 4)

	released, err := l.holds.ReleaseHold(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusReleased, released.Status)
	requireCounts(t, l.record(t, tt), 10, 0, 0)

	_, err = l.holds.ReleaseHold(ctx, hold.ID)
	require.ErrorIs(t, err, domain.ErrHoldNotFound)
	requireCounts(t, l.record(t, tt), 10, 0, 0)

	_, err = l.holds.ReleaseHold(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrHoldNotFound)
	_, err = l.holds.ReleaseHold(ctx, "")
	require.ErrorIs(t, err, domain.ErrHoldNotFound)

	assert.Equal(t, []domain.AuditAction{domain.AuditHoldCreated, domain.AuditHoldReleased}, l.actions(t, tt))
}

func TestHoldService_Scenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := newLedger(t)
	tt := l.seed(t, 10)

	first := l.hold(t, tt, 4)
	requireCounts(t, l.record(t, tt), 6, 4, 0)

	_, err := l.holds.CreateHold(ctx, CreateHoldInput{EventID: tt.EventID, TicketTypeID: tt.ID, Quantity: 8})
	require.ErrorIs(t, err, domain.ErrInsufficientInventory)
	requireCounts(t, l.record(t, tt), 6, 4, 0)

	_, err = l.holds.ReleaseHold(ctx, first.ID)
	require.NoError(t, err)
	requireCounts(t, l.record(t, tt), 10, 0, 0)

	l.hold(t, tt, 10)
	requireCounts(t, l.record(t, tt), 0, 10, 0)

	l.clock.Advance(15 * time.Minute)
	res, err := l.holds.ReleaseExpiredHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Released: 1}, res)
	requireCounts(t, l.record(t, tt), 10, 0, 0)

	assert.Equal(t, []domain.AuditAction{
		domain.AuditHoldCreated,
		domain.AuditHoldReleased,
		domain.AuditHoldCreated,
		domain.AuditHoldExpired,
	}, l.actions(t, tt))
}

func TestHoldService_ConcurrentCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := newLedger(t)
	tt := l.seed(t, 10)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = l.holds.CreateHold(ctx, CreateHoldInput{EventID: tt.EventID, TicketTypeID: tt.ID, Quantity: 6})
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientInventory):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	requireCounts(t, l.record(t, tt), 4, 6, 0)
}

func TestHoldService_ReleaseExpiredHolds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("only due holds expire", func(t *testing.T) {
		l := newLedger(t)
		tt := l.seed(t, 20)

		online := l.hold(t, tt, 2)
		cash, err := l.holds.CreateHold(ctx, CreateHoldInput{
			EventID:      tt.EventID,
			TicketTypeID: tt.ID,
			Quantity:     3,
			Channel:      domain.ChannelCash,
		})
		require.NoError(t, err)

		l.clock.Advance(20 * time.Minute)
		res, err := l.holds.ReleaseExpiredHolds(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Released)
		requireCounts(t, l.record(t, tt), 17, 3, 0)

		got, err := l.store.GetHold(ctx, online.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.HoldStatusExpired, got.Status)
		got, err = l.store.GetHold(ctx, cash.Hold.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.HoldStatusActive, got.Status)

		l.clock.Advance(10 * time.Minute)
		res, err = l.holds.ReleaseExpiredHolds(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Released)
		requireCounts(t, l.record(t, tt), 20, 0, 0)
	})

	t.Run("sold and released holds are left alone", func(t *testing.T) {
		l := newLedger(t)
		tt := l.seed(t, 10)

		sold := l.hold(t, tt, 2)
		released := l.hold(t, tt, 3)
		_, err := l.sales.ConvertHoldToSale(ctx, ConvertHoldInput{HoldID: sold.ID})
		require.NoError(t, err)
		_, err = l.holds.ReleaseHold(ctx, released.ID)
		require.NoError(t, err)

		l.clock.Advance(time.Hour)
		res, err := l.holds.ReleaseExpiredHolds(ctx)
		require.NoError(t, err)
		assert.Equal(t, SweepResult{}, res)
		requireCounts(t, l.record(t, tt), 8, 0, 2)
	})

	t.Run("batch size caps a pass", func(t *testing.T) {
		l := newLedger(t, WithSweepBatch(2))
		tt := l.seed(t, 10)
		for i := 0; i < 5; i++ {
			l.hold(t, tt, 1)
		}

		l.clock.Advance(time.Hour)
		res, err := l.holds.ReleaseExpiredHolds(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Released)
		requireCounts(t, l.record(t, tt), 7, 3, 0)
	})

	t.Run("store outage surfaces", func(t *testing.T) {
		l := newLedger(t)
		l.store.SimulateOutage(true)

		_, err := l.holds.ReleaseExpiredHolds(ctx)
		require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestHoldService_ReleaseEventHolds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := newLedger(t)
	general := l.seed(t, 10)
	vip := l.addTicketType(t, general.EventID, "VIP", 4)
	other := l.seed(t, 10)

	l.hold(t, general, 3)
	l.hold(t, general, 2)
	l.hold(t, vip, 4)
	l.hold(t, other, 5)

	res, err := l.holds.ReleaseEventHolds(ctx, general.EventID)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 3, Released: 3}, res)

	requireCounts(t, l.record(t, general), 10, 0, 0)
	requireCounts(t, l.record(t, vip), 4, 0, 0)
	requireCounts(t, l.record(t, other), 5, 5, 0)

	entries, err := l.audit.ListAudit(ctx, domain.AuditFilter{
		EventID: general.EventID,
		Actions: []domain.AuditAction{domain.AuditHoldReleased},
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "event_cancelled", e.Reason)
	}

	_, err = l.holds.ReleaseEventHolds(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidID)
}

// Random create/release/convert/expire/adjust sequences never break the
// record invariant, and the audit log always replays to the stored state.
func TestLedger_RandomOperationsKeepInvariant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := newLedger(t)
	tt := l.seed(t, 25)
	rng := rand.New(rand.NewSource(42))
	var holds []string

	for i := 0; i < 400; i++ {
		switch rng.Intn(5) {
		case 0, 1:
			h, err := l.holds.CreateHold(ctx, CreateHoldInput{
				EventID:      tt.EventID,
				TicketTypeID: tt.ID,
				Quantity:     1 + rng.Intn(6),
			})
			if err == nil {
				holds = append(holds, h.Hold.ID)
			} else {
				require.ErrorIs(t, err, domain.ErrInsufficientInventory)
			}
		case 2:
			if len(holds) > 0 {
				_, err := l.holds.ReleaseHold(ctx, holds[rng.Intn(len(holds))])
				if err != nil {
					require.ErrorIs(t, err, domain.ErrHoldNotFound)
				}
			}
		case 3:
			if len(holds) > 0 {
				_, err := l.sales.ConvertHoldToSale(ctx, ConvertHoldInput{HoldID: holds[rng.Intn(len(holds))]})
				if err != nil && !errors.Is(err, domain.ErrHoldNotFound) {
					require.ErrorIs(t, err, domain.ErrHoldExpired)
				}
			}
		case 4:
			if rng.Intn(2) == 0 {
				l.clock.Advance(time.Duration(rng.Intn(10)) * time.Minute)
				_, err := l.holds.ReleaseExpiredHolds(ctx)
				require.NoError(t, err)
			} else {
				_, err := l.inventory.AdjustInventory(ctx, AdjustInventoryInput{
					EventID:      tt.EventID,
					TicketTypeID: tt.ID,
					Delta:        rng.Intn(5) - 2,
				})
				if err != nil && !errors.Is(err, domain.ErrInvalidQuantity) {
					require.ErrorIs(t, err, domain.ErrWouldViolateInvariant)
				}
			}
		}

		rec := l.record(t, tt)
		require.GreaterOrEqual(t, rec.AvailableQuantity, 0)
		require.LessOrEqual(t, rec.AvailableQuantity, rec.TotalQuantity)
	}

	replayed, err := l.audit.Reconstruct(ctx, tt.EventID, tt.ID)
	require.NoError(t, err)
	rec := l.record(t, tt)
	requireCounts(t, replayed, rec.AvailableQuantity, rec.HeldQuantity, rec.SoldQuantity)
	assert.Equal(t, rec.Version, replayed.Version)
}

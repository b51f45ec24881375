// Package memory is an in-process implementation of the ledger's storage
// contract. Transactions hold a store-wide writer lock for their whole
// duration and undo their writes on error, which gives the same
// serialization per inventory record that row locks give in Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

type recordKey struct {
	eventID      string
	ticketTypeID string
}

type idempotencyKey struct {
	recordKey
	key string
}

type Store struct {
	mu sync.Mutex

	events      map[string]domain.Event
	eventOrder  []string
	ticketTypes map[string]domain.TicketType
	typeOrder   []string
	records     map[recordKey]domain.InventoryRecord
	recordOrder []recordKey
	holds       map[string]domain.Hold
	holdKeys    map[idempotencyKey]string
	sales       map[string]domain.Sale
	audit       []domain.AuditEntry

	outage atomic.Bool
}

func New() *Store {
	return &Store{
		events:      make(map[string]domain.Event),
		ticketTypes: make(map[string]domain.TicketType),
		records:     make(map[recordKey]domain.InventoryRecord),
		holds:       make(map[string]domain.Hold),
		holdKeys:    make(map[idempotencyKey]string),
		sales:       make(map[string]domain.Sale),
	}
}

// SimulateOutage makes every new operation fail with ErrStoreUnavailable
// until it is called again with false.
func (s *Store) SimulateOutage(on bool) {
	s.outage.Store(on)
}

// Ping fails while an outage is simulated.
func (s *Store) Ping(ctx context.Context) error {
	if s.outage.Load() {
		return domain.ErrStoreUnavailable
	}
	return ctx.Err()
}

type txKey struct{}

type tx struct {
	undo []func()
}

func (t *tx) onRollback(fn func()) {
	if t != nil {
		t.undo = append(t.undo, fn)
	}
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func txFromContext(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	if s.outage.Load() {
		return domain.ErrStoreUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{}
	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// acquire returns the caller's transaction, or locks the store for a single
// operation when called outside one.
func (s *Store) acquire(ctx context.Context) (*tx, func(), error) {
	if t := txFromContext(ctx); t != nil {
		return t, func() {}, nil
	}
	if s.outage.Load() {
		return nil, nil, domain.ErrStoreUnavailable
	}
	s.mu.Lock()
	return nil, s.mu.Unlock, nil
}

func (s *Store) CreateEvent(ctx context.Context, event domain.Event) error {
	t, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := s.events[event.ID]; ok {
		return fmt.Errorf("create event: duplicate id %s", event.ID)
	}
	s.events[event.ID] = event
	s.eventOrder = append(s.eventOrder, event.ID)
	t.onRollback(func() {
		delete(s.events, event.ID)
		s.eventOrder = s.eventOrder[:len(s.eventOrder)-1]
	})
	return nil
}

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]domain.Event, 0, len(s.eventOrder))
	for _, id := range s.eventOrder {
		out = append(out, s.events[id])
	}
	return out, nil
}

func (s *Store) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	t, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := s.events[tt.EventID]; !ok {
		return domain.ErrEventNotFound
	}
	for _, id := range s.typeOrder {
		existing := s.ticketTypes[id]
		if existing.EventID == tt.EventID && existing.Name == tt.Name {
			return domain.ErrTicketTypeExists
		}
	}
	s.ticketTypes[tt.ID] = tt
	s.typeOrder = append(s.typeOrder, tt.ID)
	t.onRollback(func() {
		delete(s.ticketTypes, tt.ID)
		s.typeOrder = s.typeOrder[:len(s.typeOrder)-1]
	})
	return nil
}

func (s *Store) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, ok := s.events[eventID]; !ok {
		return nil, domain.ErrEventNotFound
	}
	var out []domain.TicketType
	for _, id := range s.typeOrder {
		if tt := s.ticketTypes[id]; tt.EventID == eventID {
			out = append(out, tt)
		}
	}
	return out, nil
}

func (s *Store) CreateRecord(ctx context.Context, rec domain.InventoryRecord) error {
	t, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := rec.CheckInvariant(); err != nil {
		return err
	}
	key := recordKey{rec.EventID, rec.TicketTypeID}
	if _, ok := s.records[key]; ok {
		return domain.ErrInventoryAlreadyExists
	}
	s.records[key] = rec
	s.recordOrder = append(s.recordOrder, key)
	t.onRollback(func() {
		delete(s.records, key)
		s.recordOrder = s.recordOrder[:len(s.recordOrder)-1]
	})
	return nil
}

// GetRecordForUpdate reads a record. Inside WithTx the store lock already
// serializes every writer, so no per-row lock is taken.
func (s *Store) GetRecordForUpdate(ctx context.Context, eventID, ticketTypeID string) (domain.InventoryRecord, error) {
	return s.GetRecord(ctx, eventID, ticketTypeID)
}

func (s *Store) GetRecord(ctx context.Context, eventID, ticketTypeID string) (domain.InventoryRecord, error) {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	defer release()

	rec, ok := s.records[recordKey{eventID, ticketTypeID}]
	if !ok {
		return domain.InventoryRecord{}, domain.ErrInventoryNotFound
	}
	return rec, nil
}

// UpdateRecord stores rec, which must carry the version following the stored one.
func (s *Store) UpdateRecord(ctx context.Context, rec domain.InventoryRecord) error {
	t, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	key := recordKey{rec.EventID, rec.TicketTypeID}
	prev, ok := s.records[key]
	if !ok {
		return domain.ErrInventoryNotFound
	}
	if prev.Version != rec.Version-1 {
		return fmt.Errorf("update record: stale version %d (stored %d)", rec.Version, prev.Version)
	}
	s.records[key] = rec
	t.onRollback(func() { s.records[key] = prev })
	return nil
}

func (s *Store) ListRecords(ctx context.Context, eventID string) ([]domain.InventoryRecord, error) {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var out []domain.InventoryRecord
	for _, key := range s.recordOrder {
		if eventID != "" && key.eventID != eventID {
			continue
		}
		out = append(out, s.records[key])
	}
	return out, nil
}

func (s *Store) CreateHold(ctx context.Context, hold domain.Hold) error {
	t, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := s.holds[hold.ID]; ok {
		return fmt.Errorf("create hold: duplicate id %s", hold.ID)
	}
	var ik idempotencyKey
	if hold.IdempotencyKey != "" {
		ik = idempotencyKey{recordKey{hold.EventID, hold.TicketTypeID}, hold.IdempotencyKey}
		if _, ok := s.holdKeys[ik]; ok {
			return domain.ErrIdempotencyConflict
		}
		s.holdKeys[ik] = hold.ID
	}
	s.holds[hold.ID] = hold
	t.onRollback(func() {
		delete(s.holds, hold.ID)
		if hold.IdempotencyKey != "" {
			delete(s.holdKeys, ik)
		}
	})
	return nil
}

func (s *Store) GetHold(ctx context.Context, holdID string) (domain.Hold, error) {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return domain.Hold{}, err
	}
	defer release()

	hold, ok := s.holds[holdID]
	if !ok {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	return hold, nil
}

func (s *Store) FindHoldByIdempotencyKey(ctx context.Context, eventID, ticketTypeID, key string) (*domain.Hold, error) {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	id, ok := s.holdKeys[idempotencyKey{recordKey{eventID, ticketTypeID}, key}]
	if !ok {
		return nil, nil
	}
	hold := s.holds[id]
	return &hold, nil
}

func (s *Store) UpdateHoldStatus(ctx context.Context, holdID string, status domain.HoldStatus) error {
	t, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	prev, ok := s.holds[holdID]
	if !ok {
		return domain.ErrHoldNotFound
	}
	next := prev
	next.Status = status
	s.holds[holdID] = next
	t.onRollback(func() { s.holds[holdID] = prev })
	return nil
}

// ListExpiredHolds returns up to limit active holds with ExpiresAt <= now, oldest first.
func (s *Store) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	return s.listActive(ctx, limit, func(h domain.Hold) bool { return h.ExpiredAt(now) })
}

func (s *Store) ListActiveHoldsByEvent(ctx context.Context, eventID string) ([]domain.Hold, error) {
	return s.listActive(ctx, 0, func(h domain.Hold) bool { return h.EventID == eventID })
}

func (s *Store) listActive(ctx context.Context, limit int, match func(domain.Hold) bool) ([]domain.Hold, error) {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var out []domain.Hold
	for _, h := range s.holds {
		if h.Active() && match(h) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SumActiveHolds(ctx context.Context) (count, quantity int, err error) {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer release()

	for _, h := range s.holds {
		if h.Active() {
			count++
			quantity += h.Quantity
		}
	}
	return count, quantity, nil
}

func (s *Store) GetSaleByHoldID(ctx context.Context, holdID string) (*domain.Sale, error) {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	sale, ok := s.sales[holdID]
	if !ok {
		return nil, nil
	}
	return &sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) error {
	t, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := s.sales[sale.HoldID]; ok {
		return domain.ErrHoldNotFound
	}
	s.sales[sale.HoldID] = sale
	t.onRollback(func() { delete(s.sales, sale.HoldID) })
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	t, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	n := len(s.audit)
	s.audit = append(s.audit, entry)
	t.onRollback(func() { s.audit = s.audit[:n] })
	return nil
}

// ListAudit returns matching entries in commit order. A zero Limit means no limit.
func (s *Store) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	actions := make(map[domain.AuditAction]bool, len(filter.Actions))
	for _, a := range filter.Actions {
		actions[a] = true
	}

	var out []domain.AuditEntry
	for _, e := range s.audit {
		if filter.EventID != "" && e.EventID != filter.EventID {
			continue
		}
		if filter.TicketTypeID != "" && e.TicketTypeID != filter.TicketTypeID {
			continue
		}
		if len(actions) > 0 && !actions[e.Action] {
			continue
		}
		if !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

package app

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// UpdateEvent is emitted to listeners after an inventory mutation commits.
// Events of one record are delivered in commit order, so Version increases
// by one from each event to the next.
type UpdateEvent struct {
	Type         domain.AuditAction
	EventID      string
	TicketTypeID string
	HoldID       string
	Quantity     int
	Version      int64
	OccurredAt   time.Time
}

// Notifier fans committed mutations out to registered listeners.
// A nil *Notifier is valid and drops every event.
type Notifier struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]func(UpdateEvent)
	logger    *slog.Logger

	qmu    sync.Mutex
	queues map[updateKey]*updateQueue
}

func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		listeners: make(map[uint64]func(UpdateEvent)),
		logger:    loggerOrDefault(logger),
		queues:    make(map[updateKey]*updateQueue),
	}
}

type updateKey struct {
	eventID      string
	ticketTypeID string
}

type slotState int

const (
	slotPending slotState = iota
	slotReady
	slotDropped
)

// updateSlot is one mutation's place in its record's delivery order.
type updateSlot struct {
	key   updateKey
	entry domain.AuditEntry
	state slotState
}

type updateQueue struct {
	slots    []*updateSlot
	draining bool
}

// AddUpdateListener registers fn and returns a function that removes it.
// Listeners are called synchronously on a goroutine that committed a
// mutation of the record, usually the mutation's own, so they should
// return quickly.
func (n *Notifier) AddUpdateListener(fn func(UpdateEvent)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// ListenerCount reports how many listeners are registered.
func (n *Notifier) ListenerCount() int {
	if n == nil {
		return 0
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// reserve takes the next delivery slot for a record. Callers must hold the
// record's lock, which makes slot order equal to commit order.
func (n *Notifier) reserve(eventID, ticketTypeID string) *updateSlot {
	if n == nil {
		return nil
	}
	slot := &updateSlot{key: updateKey{eventID, ticketTypeID}}

	n.qmu.Lock()
	q, ok := n.queues[slot.key]
	if !ok {
		q = &updateQueue{}
		n.queues[slot.key] = q
	}
	q.slots = append(q.slots, slot)
	n.qmu.Unlock()
	return slot
}

// settle resolves a reserved slot once its transaction has finished. A
// committed entry is delivered after every earlier slot of the record has
// settled; a rolled-back one is dropped. Whichever goroutine finds the head
// of the queue settled delivers the run, so listeners never see a record's
// events concurrently or out of order.
func (n *Notifier) settle(slot *updateSlot, entry domain.AuditEntry, committed bool) {
	if n == nil || slot == nil {
		return
	}

	n.qmu.Lock()
	if committed {
		slot.entry = entry
		slot.state = slotReady
	} else {
		slot.state = slotDropped
	}
	q := n.queues[slot.key]
	if q.draining {
		n.qmu.Unlock()
		return
	}
	q.draining = true

	for {
		var ready []domain.AuditEntry
		for len(q.slots) > 0 && q.slots[0].state != slotPending {
			if q.slots[0].state == slotReady {
				ready = append(ready, q.slots[0].entry)
			}
			q.slots[0] = nil
			q.slots = q.slots[1:]
		}
		if len(ready) == 0 {
			q.draining = false
			if len(q.slots) == 0 {
				delete(n.queues, slot.key)
			}
			n.qmu.Unlock()
			return
		}
		n.qmu.Unlock()
		for _, e := range ready {
			n.publish(e)
		}
		n.qmu.Lock()
	}
}

func (n *Notifier) publish(entry domain.AuditEntry) {
	if n == nil {
		return
	}
	n.mu.RLock()
	fns := make([]func(UpdateEvent), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	ev := UpdateEvent{
		Type:         entry.Action,
		EventID:      entry.EventID,
		TicketTypeID: entry.TicketTypeID,
		HoldID:       entry.HoldID,
		Quantity:     entry.Quantity,
		Version:      entry.Version,
		OccurredAt:   entry.CreatedAt,
	}
	for _, fn := range fns {
		n.deliver(fn, ev)
	}
}

func (n *Notifier) deliver(fn func(UpdateEvent), ev UpdateEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("update listener panicked",
				slog.Any("panic", r),
				slog.String("type", string(ev.Type)),
				slog.String("ticket_type_id", ev.TicketTypeID),
			)
		}
	}()
	fn(ev)
}

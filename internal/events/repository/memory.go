package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	eventserrors "slotbook/internal/events/errors"
	"slotbook/pkg/model"
)

// memoryEventRepository keeps events in process memory. The atomicity unit
// mirrors the Mongo implementation: one slot's booking list, guarded by a
// per-slot mutex so bookings against different slots never contend.
type memoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]*eventRecord
	order  []string
}

type eventRecord struct {
	mu        sync.RWMutex
	event     model.Event
	slotLocks map[string]*sync.Mutex
}

func NewMemoryEventRepository() EventRepository {
	return &memoryEventRepository{
		events: make(map[string]*eventRecord),
	}
}

func (r *memoryEventRepository) Create(_ context.Context, event *model.Event) error {
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	rec := &eventRecord{
		event:     *cloneEvent(event),
		slotLocks: make(map[string]*sync.Mutex, len(event.TimeSlots)),
	}
	for _, slot := range event.TimeSlots {
		rec.slotLocks[slot.ID] = &sync.Mutex{}
	}

	r.mu.Lock()
	r.events[event.ID] = rec
	r.order = append(r.order, event.ID)
	r.mu.Unlock()

	return nil
}

func (r *memoryEventRepository) FindByID(_ context.Context, id string) (*model.Event, error) {
	r.mu.RLock()
	rec, ok := r.events[id]
	r.mu.RUnlock()
	if !ok {
		return nil, eventserrors.ErrNotFound
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return cloneEvent(&rec.event), nil
}

func (r *memoryEventRepository) FindAll(_ context.Context, limit int, offset int64) ([]*model.Event, error) {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	if offset >= int64(len(ids)) {
		return []*model.Event{}, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	events := make([]*model.Event, 0, len(ids))
	for _, id := range ids {
		r.mu.RLock()
		rec := r.events[id]
		r.mu.RUnlock()

		rec.mu.RLock()
		events = append(events, cloneEvent(&rec.event))
		rec.mu.RUnlock()
	}

	return events, nil
}

func (r *memoryEventRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.events)), nil
}

func (r *memoryEventRepository) AppendBookingIfAllowed(_ context.Context, eventID, slotID string, booking model.Booking) (*model.Event, Rejection, error) {
	r.mu.RLock()
	rec, ok := r.events[eventID]
	r.mu.RUnlock()
	if !ok {
		return nil, RejectionNone, eventserrors.ErrNotFound
	}

	slotLock, ok := rec.slotLocks[slotID]
	if !ok {
		return nil, RejectionNone, eventserrors.ErrSlotNotFound
	}

	// The slot lock serializes the read-check-append for this slot, so the
	// predicate cannot go stale between the check and the append. rec.mu only
	// guards the shared event data against concurrent readers and appends to
	// sibling slots, which keeps those appends off each other's critical path.
	slotLock.Lock()
	defer slotLock.Unlock()

	rec.mu.RLock()
	var slot *model.TimeSlot
	for i := range rec.event.TimeSlots {
		if rec.event.TimeSlots[i].ID == slotID {
			slot = &rec.event.TimeSlots[i]
			break
		}
	}
	if slot == nil {
		rec.mu.RUnlock()
		return nil, RejectionNone, eventserrors.ErrSlotNotFound
	}
	// Capacity before duplicate: a returning attendee on a now-full slot is
	// told the slot is full.
	full := len(slot.Bookings) >= slot.MaxBookings
	duplicate := slot.HasBookingFor(booking.Email)
	rec.mu.RUnlock()

	if full {
		return nil, RejectionSlotFull, nil
	}
	if duplicate {
		return nil, RejectionDuplicateBooking, nil
	}

	// slot stays valid across the lock upgrade: TimeSlots is fixed at Create,
	// so the backing array never moves.
	rec.mu.Lock()
	slot.Bookings = append(slot.Bookings, booking)
	snapshot := cloneEvent(&rec.event)
	rec.mu.Unlock()

	return snapshot, RejectionNone, nil
}

func cloneEvent(e *model.Event) *model.Event {
	cloned := *e
	cloned.TimeSlots = make([]model.TimeSlot, len(e.TimeSlots))
	for i, slot := range e.TimeSlots {
		clonedSlot := slot
		clonedSlot.Bookings = make([]model.Booking, len(slot.Bookings))
		copy(clonedSlot.Bookings, slot.Bookings)
		cloned.TimeSlots[i] = clonedSlot
	}
	return &cloned
}

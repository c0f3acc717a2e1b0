package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Old6Man6/Qtime/internal/model"
)

// ErrSlotExists means a slot already occupies the (provider, start_time) pair.
var ErrSlotExists = errors.New("slot already exists for provider at start time")

// MemoryStore is an in-process SlotStore. A single mutex serializes
// reservation attempts, which is the locking protocol the Postgres store
// achieves with FOR UPDATE. Useful for tests and single-node deployments.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[string]*model.TimeSlot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]*model.TimeSlot)}
}

func (m *MemoryStore) Create(ctx context.Context, slot *model.TimeSlot) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.slots {
		if s.ProviderID == slot.ProviderID && s.StartTime.Equal(slot.StartTime) {
			return "", ErrSlotExists
		}
	}

	stored := *slot
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	m.slots[stored.ID] = &stored
	return stored.ID, nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return model.TimeSlot{}, errors.New("slot not found")
	}
	return *s, nil
}

func (m *MemoryStore) ListAvailable(ctx context.Context, f ListFilter) ([]model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.TimeSlot
	for _, s := range m.slots {
		if s.Booked {
			continue
		}
		if f.ProviderID != "" && s.ProviderID != f.ProviderID {
			continue
		}
		if f.BranchID != "" && s.BranchID != f.BranchID {
			continue
		}
		if f.ServiceID != "" && s.ServiceID != f.ServiceID {
			continue
		}
		if !f.Start.IsZero() && s.StartTime.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && !s.StartTime.Before(f.End) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *MemoryStore) ReserveTx(ctx context.Context, providerID, branchID, serviceID string, fn func(ReserveTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var window []model.TimeSlot
	for _, s := range m.slots {
		if s.ProviderID == providerID && s.BranchID == branchID && s.ServiceID == serviceID {
			window = append(window, *s)
		}
	}
	sort.Slice(window, func(i, j int) bool { return window[i].StartTime.Before(window[j].StartTime) })

	return fn(&memoryReserveTx{store: m, window: window})
}

// SetBooked flips a single slot outside a reservation, e.g. when a
// cancellation frees the slot.
func (m *MemoryStore) SetBooked(ctx context.Context, id string, booked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return errors.New("slot not found")
	}
	s.Booked = booked
	s.UpdatedAt = time.Now().UTC()
	return nil
}

type memoryReserveTx struct {
	store  *MemoryStore
	window []model.TimeSlot
}

func (t *memoryReserveTx) Slots() []model.TimeSlot { return t.window }

func (t *memoryReserveTx) SetBooked(ids []string, booked bool) error {
	for _, id := range ids {
		s, ok := t.store.slots[id]
		if !ok {
			return errors.New("slot not found")
		}
		s.Booked = booked
		s.UpdatedAt = time.Now().UTC()
	}
	return nil
}

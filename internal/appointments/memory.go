package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/internal/schedule"
)

// MemoryLedger is an in-process Ledger over a schedule.MemoryStore. It
// enforces the same rules the Postgres schema carries as constraints:
// (user, slot) uniqueness and the booked-slot precondition on create.
type MemoryLedger struct {
	mu    sync.Mutex
	slots *schedule.MemoryStore
	byID  map[string]*model.Appointment
}

func NewMemoryLedger(slots *schedule.MemoryStore) *MemoryLedger {
	return &MemoryLedger{slots: slots, byID: make(map[string]*model.Appointment)}
}

func (l *MemoryLedger) Create(ctx context.Context, userID, slotID string) (model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, err := l.slots.GetByID(ctx, slotID)
	if err != nil || !slot.Booked {
		return model.Appointment{}, ErrSlotNotBooked
	}
	for _, a := range l.byID {
		if a.UserID == userID && a.SlotID == slotID {
			return model.Appointment{}, ErrDuplicate
		}
	}

	now := time.Now().UTC()
	appt := model.Appointment{
		ID:        uuid.NewString(),
		UserID:    userID,
		SlotID:    slotID,
		Status:    model.AppointmentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.byID[appt.ID] = &appt
	return appt, nil
}

func (l *MemoryLedger) GetWithSlot(ctx context.Context, id string) (model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.byID[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return l.withSlot(ctx, *a), nil
}

// Cancel removes the appointment and frees its slot. The slot release is
// idempotent; a second cancel fails on the missing appointment.
func (l *MemoryLedger) Cancel(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(l.byID, id)
	return l.slots.SetBooked(ctx, a.SlotID, false)
}

func (l *MemoryLedger) SetConfirmed(ctx context.Context, id string, confirmed bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = model.AppointmentPending
	if confirmed {
		a.Status = model.AppointmentConfirmed
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (l *MemoryLedger) ListByUser(ctx context.Context, userID string) ([]model.Appointment, error) {
	return l.listWhere(ctx, func(a model.Appointment) bool { return a.UserID == userID })
}

func (l *MemoryLedger) ListByProvider(ctx context.Context, providerID string) ([]model.Appointment, error) {
	return l.listWhere(ctx, func(a model.Appointment) bool {
		return a.Slot != nil && a.Slot.ProviderID == providerID
	})
}

func (l *MemoryLedger) ListAll(ctx context.Context) ([]model.Appointment, error) {
	return l.listWhere(ctx, func(model.Appointment) bool { return true })
}

func (l *MemoryLedger) listWhere(ctx context.Context, keep func(model.Appointment) bool) ([]model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.Appointment
	for _, a := range l.byID {
		appt := l.withSlot(ctx, *a)
		if keep(appt) {
			out = append(out, appt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot == nil || out[j].Slot == nil {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Slot.StartTime.Before(out[j].Slot.StartTime)
	})
	return out, nil
}

func (l *MemoryLedger) withSlot(ctx context.Context, a model.Appointment) model.Appointment {
	if slot, err := l.slots.GetByID(ctx, a.SlotID); err == nil {
		a.Slot = &slot
	}
	return a
}

package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/internal/schedule"
)

func newTestLedger() (*MemoryLedger, *schedule.MemoryStore) {
	store := schedule.NewMemoryStore()
	return NewMemoryLedger(store), store
}

func addSlot(t *testing.T, store *schedule.MemoryStore, start time.Time, booked bool) string {
	t.Helper()
	id, err := store.Create(context.Background(), &model.TimeSlot{
		ProviderID:      "prov-1",
		BranchID:        "branch-1",
		ServiceID:       "svc-1",
		StartTime:       start,
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	if booked {
		if err := store.SetBooked(context.Background(), id, true); err != nil {
			t.Fatalf("book slot: %v", err)
		}
	}
	return id
}

func TestCreate_RequiresBookedSlot(t *testing.T) {
	ledger, store := newTestLedger()
	slotID := addSlot(t, store, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), false)

	_, err := ledger.Create(context.Background(), "user-1", slotID)
	if !errors.Is(err, ErrSlotNotBooked) {
		t.Fatalf("expected ErrSlotNotBooked for unbooked slot, got %v", err)
	}

	_, err = ledger.Create(context.Background(), "user-1", "no-such-slot")
	if !errors.Is(err, ErrSlotNotBooked) {
		t.Fatalf("expected ErrSlotNotBooked for missing slot, got %v", err)
	}

	appts, err := ledger.ListAll(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 0 {
		t.Fatalf("expected no appointments, got %d", len(appts))
	}
}

func TestCreate_DuplicateUserSlotRejected(t *testing.T) {
	ledger, store := newTestLedger()
	slotID := addSlot(t, store, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), true)

	if _, err := ledger.Create(context.Background(), "user-1", slotID); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := ledger.Create(context.Background(), "user-1", slotID)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Uniqueness is per (user, slot); another user may still hold the slot.
	if _, err := ledger.Create(context.Background(), "user-2", slotID); err != nil {
		t.Fatalf("create for second user: %v", err)
	}
}

func TestCancel_ReleasesSlot(t *testing.T) {
	ledger, store := newTestLedger()
	slotID := addSlot(t, store, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), true)

	appt, err := ledger.Create(context.Background(), "user-1", slotID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ledger.Cancel(context.Background(), appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	slot, err := store.GetByID(context.Background(), slotID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if slot.Booked {
		t.Fatal("cancel must free the slot")
	}

	err = ledger.Cancel(context.Background(), appt.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second cancel, got %v", err)
	}
}

func TestCancel_FreedSlotIsNotAnError(t *testing.T) {
	ledger, store := newTestLedger()
	slotID := addSlot(t, store, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), true)

	appt, err := ledger.Create(context.Background(), "user-1", slotID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The slot was already freed elsewhere; releasing again is idempotent.
	if err := store.SetBooked(context.Background(), slotID, false); err != nil {
		t.Fatalf("free slot: %v", err)
	}
	if err := ledger.Cancel(context.Background(), appt.ID); err != nil {
		t.Fatalf("cancel after external release: %v", err)
	}
}

func TestSetConfirmed_TogglesStatus(t *testing.T) {
	ledger, store := newTestLedger()
	slotID := addSlot(t, store, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), true)

	appt, err := ledger.Create(context.Background(), "user-1", slotID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if appt.Status != model.AppointmentPending {
		t.Fatalf("new appointment status %q, want pending", appt.Status)
	}

	if err := ledger.SetConfirmed(context.Background(), appt.ID, true); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	got, err := ledger.GetWithSlot(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.AppointmentConfirmed {
		t.Fatalf("status %q, want confirmed", got.Status)
	}

	if err := ledger.SetConfirmed(context.Background(), appt.ID, false); err != nil {
		t.Fatalf("unconfirm: %v", err)
	}
	got, _ = ledger.GetWithSlot(context.Background(), appt.ID)
	if got.Status != model.AppointmentPending {
		t.Fatalf("status %q, want pending", got.Status)
	}

	err = ledger.SetConfirmed(context.Background(), "missing", true)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Old6Man6/Qtime/internal/model"
)

func seedSlot(t *testing.T, store *MemoryStore, start time.Time, durationMinutes int, booked bool) string {
	t.Helper()
	id, err := store.Create(context.Background(), &model.TimeSlot{
		ProviderID:      "prov-1",
		BranchID:        "branch-1",
		ServiceID:       "svc-1",
		StartTime:       start,
		DurationMinutes: durationMinutes,
	})
	if err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	if booked {
		if err := store.SetBooked(context.Background(), id, true); err != nil {
			t.Fatalf("seed booked flag: %v", err)
		}
	}
	return id
}

func reserveAt(start time.Time, durationMinutes int) Request {
	return Request{
		ProviderID:      "prov-1",
		BranchID:        "branch-1",
		ServiceID:       "svc-1",
		StartTime:       start,
		DurationMinutes: durationMinutes,
	}
}

func TestReserve_BooksExactSlot(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	id := seedSlot(t, store, base, 30, false)

	out, err := NewReserver(store).Reserve(context.Background(), reserveAt(base, 30))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if out.Booked == nil {
		t.Fatalf("expected Booked outcome, got alternatives %v", out.Alternatives)
	}
	if out.Booked.ID != id || !out.Booked.Booked {
		t.Fatalf("expected slot %s booked, got %+v", id, out.Booked)
	}

	stored, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if !stored.Booked {
		t.Fatal("slot not persisted as booked")
	}
}

func TestReserve_SameWindowTwiceOverlaps(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	seedSlot(t, store, base, 30, true)

	_, err := NewReserver(store).Reserve(context.Background(), reserveAt(base, 30))
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
}

func TestReserve_LongerEarlierBookingBlocksWindow(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	seedSlot(t, store, base, 60, true)
	seedSlot(t, store, base.Add(30*time.Minute), 30, false)

	// The 09:00 booking runs until 10:00, so 09:30 is consumed even though
	// the 09:30 row itself is still unbooked.
	_, err := NewReserver(store).Reserve(context.Background(), reserveAt(base.Add(30*time.Minute), 30))
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
}

func TestReserve_OverlapWinsOverExactMatch(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	exactID := seedSlot(t, store, base.Add(15*time.Minute), 30, false)
	seedSlot(t, store, base, 30, true)

	// An exact free row exists at 09:15, but the 09:00 booking overlaps
	// [09:15, 09:45). The overlap check runs first and must reject without
	// touching the free row.
	_, err := NewReserver(store).Reserve(context.Background(), reserveAt(base.Add(15*time.Minute), 30))
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}

	stored, err := store.GetByID(context.Background(), exactID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if stored.Booked {
		t.Fatal("rejected reservation must not mutate slot state")
	}
}

func TestReserve_MarksWholeWindow(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	longID := seedSlot(t, store, base, 60, false)
	atomicID := seedSlot(t, store, base.Add(30*time.Minute), 30, false)
	afterID := seedSlot(t, store, base.Add(60*time.Minute), 30, false)

	out, err := NewReserver(store).Reserve(context.Background(), reserveAt(base, 60))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if out.Booked == nil || out.Booked.ID != longID {
		t.Fatalf("expected slot %s booked, got %+v", longID, out.Booked)
	}

	for _, id := range []string{longID, atomicID} {
		s, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get slot: %v", err)
		}
		if !s.Booked {
			t.Fatalf("slot %s inside the window must be booked", id)
		}
	}
	after, err := store.GetByID(context.Background(), afterID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if after.Booked {
		t.Fatal("slot outside the window must stay free")
	}
}

func TestReserve_AlternativesWhenNoExactMatch(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	seedSlot(t, store, base.Add(30*time.Minute), 30, false)
	seedSlot(t, store, base.Add(60*time.Minute), 30, false)

	out, err := NewReserver(store).Reserve(context.Background(), reserveAt(base, 30))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if out.Booked != nil {
		t.Fatalf("expected alternatives, got booking %+v", out.Booked)
	}
	if len(out.Alternatives) != 2 {
		t.Fatalf("expected 2 alternatives, got %d", len(out.Alternatives))
	}
	if !out.Alternatives[0].StartTime.Equal(base.Add(30 * time.Minute)) ||
		!out.Alternatives[1].StartTime.Equal(base.Add(60 * time.Minute)) {
		t.Fatalf("alternatives out of order: %v", out.Alternatives)
	}
}

func TestReserve_ConcurrentSameWindow(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	seedSlot(t, store, base, 30, false)

	reserver := NewReserver(store)
	const attempts = 8

	var wg sync.WaitGroup
	var mu sync.Mutex
	var bookedCount, overlapCount int

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := reserver.Reserve(context.Background(), reserveAt(base, 30))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && out.Booked != nil:
				bookedCount++
			case errors.Is(err, ErrOverlap):
				overlapCount++
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if bookedCount != 1 {
		t.Fatalf("expected exactly one successful booking, got %d", bookedCount)
	}
	if overlapCount != attempts-1 {
		t.Fatalf("expected %d overlap rejections, got %d", attempts-1, overlapCount)
	}
}

func TestMemoryStore_DuplicateProviderStartRejected(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	seedSlot(t, store, base, 30, false)

	_, err := store.Create(context.Background(), &model.TimeSlot{
		ProviderID:      "prov-1",
		BranchID:        "branch-2",
		ServiceID:       "svc-2",
		StartTime:       base,
		DurationMinutes: 45,
	})
	if !errors.Is(err, ErrSlotExists) {
		t.Fatalf("expected ErrSlotExists, got %v", err)
	}
}

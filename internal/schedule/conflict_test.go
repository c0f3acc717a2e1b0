package schedule

import (
	"testing"
	"time"

	"github.com/Old6Man6/Qtime/internal/model"
)

func slotAt(id string, start time.Time, durationMinutes int, booked bool) model.TimeSlot {
	return model.TimeSlot{
		ID:              id,
		ProviderID:      "prov-1",
		BranchID:        "branch-1",
		ServiceID:       "svc-1",
		StartTime:       start,
		DurationMinutes: durationMinutes,
		Booked:          booked,
	}
}

func TestHasBookedOverlap_AdjacentDoesNotOverlap(t *testing.T) {
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	slots := []model.TimeSlot{slotAt("a", base, 30, true)}

	// [09:30, 10:00) touches [09:00, 09:30) only at the boundary.
	if hasBookedOverlap(slots, base.Add(30*time.Minute), base.Add(60*time.Minute)) {
		t.Fatal("adjacent intervals must not count as overlapping")
	}
	if !hasBookedOverlap(slots, base.Add(15*time.Minute), base.Add(45*time.Minute)) {
		t.Fatal("expected overlap for [09:15, 09:45)")
	}
}

func TestHasBookedOverlap_IgnoresUnbooked(t *testing.T) {
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	slots := []model.TimeSlot{slotAt("a", base, 30, false)}

	if hasBookedOverlap(slots, base, base.Add(30*time.Minute)) {
		t.Fatal("unbooked slots must not trigger overlap")
	}
}

func TestFindExact_RequiresStartAndDuration(t *testing.T) {
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	slots := []model.TimeSlot{
		slotAt("a", base, 30, false),
		slotAt("b", base.Add(30*time.Minute), 45, false),
		slotAt("c", base.Add(60*time.Minute), 30, true),
	}

	if got := findExact(slots, base, 30); got == nil || got.ID != "a" {
		t.Fatalf("expected slot a, got %+v", got)
	}
	if got := findExact(slots, base.Add(30*time.Minute), 30); got != nil {
		t.Fatalf("duration mismatch must not match, got %+v", got)
	}
	if got := findExact(slots, base.Add(60*time.Minute), 30); got != nil {
		t.Fatalf("booked slot must not match, got %+v", got)
	}
}

func TestSpanSlotIDs_HalfOpen(t *testing.T) {
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	slots := []model.TimeSlot{
		slotAt("a", base, 30, false),
		slotAt("b", base.Add(30*time.Minute), 30, false),
		slotAt("c", base.Add(60*time.Minute), 30, false),
	}

	ids := spanSlotIDs(slots, base, base.Add(60*time.Minute))
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("expected [a b], got %v", ids)
	}
}

func TestAlternativesAfter_OrderedStrictlyAfter(t *testing.T) {
	base := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	slots := []model.TimeSlot{
		slotAt("c", base.Add(60*time.Minute), 30, false),
		slotAt("b", base.Add(30*time.Minute), 30, false),
		slotAt("a", base, 30, false),
		slotAt("d", base.Add(90*time.Minute), 30, true),
	}

	alts := alternativesAfter(slots, base)
	if len(alts) != 2 {
		t.Fatalf("expected 2 alternatives, got %d", len(alts))
	}
	if alts[0].ID != "b" || alts[1].ID != "c" {
		t.Fatalf("expected ascending [b c], got [%s %s]", alts[0].ID, alts[1].ID)
	}
	for _, a := range alts {
		if !a.StartTime.After(base) {
			t.Fatalf("alternative %s does not start strictly after the request", a.ID)
		}
	}
}

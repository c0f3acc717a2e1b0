package schedule

import (
	"sort"
	"time"

	"github.com/Old6Man6/Qtime/internal/model"
)

// hasBookedOverlap reports whether any booked slot overlaps [start, end).
//
// Half-open intervals: [start,end) overlaps [s.Start,s.End) iff start < s.End && s.Start < end.
func hasBookedOverlap(slots []model.TimeSlot, start, end time.Time) bool {
	for _, s := range slots {
		if !s.Booked {
			continue
		}
		if start.Before(s.EndTime()) && s.StartTime.Before(end) {
			return true
		}
	}
	return false
}

// findExact returns the unbooked slot whose start and duration match exactly, or nil.
func findExact(slots []model.TimeSlot, start time.Time, durationMinutes int) *model.TimeSlot {
	for i := range slots {
		s := &slots[i]
		if s.Booked {
			continue
		}
		if s.StartTime.Equal(start) && s.DurationMinutes == durationMinutes {
			return s
		}
	}
	return nil
}

// spanSlotIDs returns the IDs of every slot starting within [start, end).
// A booking consumes all atomic slots its window covers, not just the exact row.
func spanSlotIDs(slots []model.TimeSlot, start, end time.Time) []string {
	var ids []string
	for _, s := range slots {
		if s.StartTime.Before(start) || !s.StartTime.Before(end) {
			continue
		}
		ids = append(ids, s.ID)
	}
	return ids
}

// alternativesAfter returns unbooked slots starting strictly after the given
// instant, ordered ascending by start time.
func alternativesAfter(slots []model.TimeSlot, after time.Time) []model.TimeSlot {
	var alts []model.TimeSlot
	for _, s := range slots {
		if s.Booked || !s.StartTime.After(after) {
			continue
		}
		alts = append(alts, s)
	}
	sort.Slice(alts, func(i, j int) bool { return alts[i].StartTime.Before(alts[j].StartTime) })
	return alts
}

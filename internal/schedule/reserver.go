// Package schedule implements slot reservation with overlap detection.
//
// A reservation runs in three steps inside one isolation scope: reject if any
// booked slot for the same (provider, branch, service) overlaps the requested
// window, then book the exactly matching free slot plus every atomic slot the
// window covers, else propose later free slots. Overlap detection runs first
// because atomic slot granularity can be finer than a service's duration: a
// longer earlier booking may have consumed part of the window even though the
// exact start-time row still looks free.
package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/Old6Man6/Qtime/internal/model"
)

// ErrOverlap means the requested window conflicts with an existing booking.
// The request is terminal; callers must pick a different window.
var ErrOverlap = errors.New("time overlaps with an already-booked slot")

// ReserveTx is the slot window for one (provider, branch, service) triple,
// locked for the duration of a reservation attempt.
type ReserveTx interface {
	// Slots returns every slot for the locked triple, booked or not.
	Slots() []model.TimeSlot
	// SetBooked flips the booked flag on the given slots.
	SetBooked(ids []string, booked bool) error
}

// SlotStore serializes reservation attempts per (provider, branch, service).
type SlotStore interface {
	ReserveTx(ctx context.Context, providerID, branchID, serviceID string, fn func(ReserveTx) error) error
}

// Request is a reservation attempt. DurationMinutes must come from the
// service record, never from the end user.
type Request struct {
	ProviderID      string
	BranchID        string
	ServiceID       string
	StartTime       time.Time
	DurationMinutes int
}

// Outcome is the result of a successful Reserve call: either Booked is set,
// or Alternatives lists later free slots (possibly empty).
type Outcome struct {
	Booked       *model.TimeSlot
	Alternatives []model.TimeSlot
}

type Reserver struct {
	store SlotStore
}

func NewReserver(store SlotStore) *Reserver {
	return &Reserver{store: store}
}

// Reserve attempts to book the requested window. It returns ErrOverlap when a
// booked slot overlaps the window; in that case no state is mutated, even if
// an exactly matching free slot exists.
func (r *Reserver) Reserve(ctx context.Context, req Request) (Outcome, error) {
	if req.DurationMinutes <= 0 {
		return Outcome{}, errors.New("duration must be positive")
	}
	end := req.StartTime.Add(time.Duration(req.DurationMinutes) * time.Minute)

	var out Outcome
	err := r.store.ReserveTx(ctx, req.ProviderID, req.BranchID, req.ServiceID, func(tx ReserveTx) error {
		slots := tx.Slots()

		if hasBookedOverlap(slots, req.StartTime, end) {
			return ErrOverlap
		}

		exact := findExact(slots, req.StartTime, req.DurationMinutes)
		if exact == nil {
			out.Alternatives = alternativesAfter(slots, req.StartTime)
			return nil
		}

		if err := tx.SetBooked(spanSlotIDs(slots, req.StartTime, end), true); err != nil {
			return err
		}
		booked := *exact
		booked.Booked = true
		out.Booked = &booked
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

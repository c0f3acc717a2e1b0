package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Old6Man6/Qtime/internal/appointments"
	"github.com/Old6Man6/Qtime/internal/authz"
	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/internal/outbox"
	"github.com/Old6Man6/Qtime/internal/schedule"
)

type AppointmentsHandler struct {
	repo     appointments.Ledger
	slots    *schedule.SlotRepository
	reserver *schedule.Reserver
	outbox   *outbox.Repository
	logger   *slog.Logger
}

func NewAppointmentsHandler(
	repo appointments.Ledger,
	slots *schedule.SlotRepository,
	reserver *schedule.Reserver,
	outboxRepo *outbox.Repository,
	logger *slog.Logger,
) *AppointmentsHandler {
	return &AppointmentsHandler{
		repo:     repo,
		slots:    slots,
		reserver: reserver,
		outbox:   outboxRepo,
		logger:   logger,
	}
}

type createAppointmentRequest struct {
	AvailableTime string `json:"available_time"`
}

type appointmentResponse struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Status    string        `json:"status"`
	Slot      *slotResponse `json:"slot,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type conflictResponse struct {
	Detail       string         `json:"detail"`
	Alternatives []slotResponse `json:"alternatives,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		Status:    a.Status,
		CreatedAt: a.CreatedAt,
	}
	if a.Slot != nil {
		s := toSlotResponse(*a.Slot)
		resp.Slot = &s
	}
	return resp
}

// Collection handles GET (own appointments) and POST (book) on /appointments.
func (h *AppointmentsHandler) Collection(w http.ResponseWriter, r *http.Request) {
	claims, ok := authz.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		appts, err := h.repo.ListByUser(r.Context(), claims.Sub)
		if err != nil {
			h.logger.Error("failed to list appointments", "err", err)
			http.Error(w, "failed to list appointments", http.StatusInternalServerError)
			return
		}
		writeAppointments(w, appts)

	case http.MethodPost:
		h.create(w, r, claims.Sub)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AppointmentsHandler) create(w http.ResponseWriter, r *http.Request, userID string) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AvailableTime = strings.TrimSpace(req.AvailableTime)
	if req.AvailableTime == "" {
		http.Error(w, "available_time required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	slot, err := h.slots.GetByID(ctx, req.AvailableTime)
	if err != nil {
		if schedule.IsNotFound(err) {
			http.Error(w, "slot not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load slot", http.StatusInternalServerError)
		return
	}
	if slot.Booked {
		http.Error(w, "slot already booked", http.StatusBadRequest)
		return
	}

	outcome, err := h.reserver.Reserve(ctx, schedule.Request{
		ProviderID:      slot.ProviderID,
		BranchID:        slot.BranchID,
		ServiceID:       slot.ServiceID,
		StartTime:       slot.StartTime,
		DurationMinutes: slot.DurationMinutes,
	})
	if err != nil {
		if errors.Is(err, schedule.ErrOverlap) {
			writeJSON(w, http.StatusConflict, conflictResponse{Detail: err.Error()})
			return
		}
		h.logger.Error("reservation failed", "err", err)
		http.Error(w, "reservation failed", http.StatusInternalServerError)
		return
	}
	if outcome.Booked == nil {
		alts := make([]slotResponse, 0, len(outcome.Alternatives))
		for _, s := range outcome.Alternatives {
			alts = append(alts, toSlotResponse(s))
		}
		writeJSON(w, http.StatusConflict, conflictResponse{
			Detail:       "requested time is unavailable",
			Alternatives: alts,
		})
		return
	}

	appt, err := h.repo.Create(ctx, userID, outcome.Booked.ID)
	if err != nil {
		if errors.Is(err, appointments.ErrDuplicate) {
			http.Error(w, "appointment already exists for this slot", http.StatusConflict)
			return
		}
		if errors.Is(err, appointments.ErrSlotNotBooked) {
			http.Error(w, "slot is not booked", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to create appointment", "err", err)
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}
	appt.Slot = outcome.Booked

	h.enqueueEvent(ctx, outbox.EventAppointmentBooked, appt)

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// Provider lists appointments on the caller's own slots.
func (h *AppointmentsHandler) Provider(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := authz.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	appts, err := h.repo.ListByProvider(r.Context(), claims.Sub)
	if err != nil {
		h.logger.Error("failed to list appointments", "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeAppointments(w, appts)
}

func (h *AppointmentsHandler) Admin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	appts, err := h.repo.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list appointments", "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeAppointments(w, appts)
}

// Item routes /appointments/{id} and /appointments/{id}/confirm.
func (h *AppointmentsHandler) Item(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/appointments/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.cancel(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "confirm":
		h.confirm(w, r, parts[0])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *AppointmentsHandler) cancel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := authz.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	appt, err := h.repo.GetWithSlot(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	// Only the slot's provider (or an admin) may cancel.
	if claims.Role != model.RoleAdmin && appt.Slot.ProviderID != claims.Sub {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := h.repo.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to cancel appointment", "err", err)
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	h.enqueueEvent(r.Context(), outbox.EventAppointmentCancelled, appt)

	w.WriteHeader(http.StatusNoContent)
}

func (h *AppointmentsHandler) confirm(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := authz.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	appt, err := h.repo.GetWithSlot(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	if claims.Role != model.RoleAdmin && appt.Slot.ProviderID != claims.Sub {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Empty body confirms; {"confirmed": false} reverts to pending.
	confirmed := true
	var req struct {
		Confirmed *bool `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Confirmed != nil {
		confirmed = *req.Confirmed
	}

	if err := h.repo.SetConfirmed(r.Context(), id, confirmed); err != nil {
		http.Error(w, "failed to confirm appointment", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AppointmentsHandler) enqueueEvent(ctx context.Context, eventType string, appt model.Appointment) {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"user_id":        appt.UserID,
		"provider_id":    appt.Slot.ProviderID,
		"start_time":     appt.Slot.StartTime,
	})
	if err != nil {
		h.logger.Error("failed to marshal appointment event", "err", err)
		return
	}
	if err := h.outbox.Insert(ctx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		h.logger.Error("failed to enqueue appointment event", "err", err)
	}
}

func writeAppointments(w http.ResponseWriter, appts []model.Appointment) {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

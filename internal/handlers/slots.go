package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Old6Man6/Qtime/internal/authz"
	"github.com/Old6Man6/Qtime/internal/directory"
	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/internal/schedule"
)

type SlotsHandler struct {
	slots    *schedule.SlotRepository
	services *directory.Repository
	logger   *slog.Logger
}

func NewSlotsHandler(slots *schedule.SlotRepository, services *directory.Repository, logger *slog.Logger) *SlotsHandler {
	return &SlotsHandler{slots: slots, services: services, logger: logger}
}

type slotResponse struct {
	ID              string    `json:"id"`
	ProviderID      string    `json:"provider_id"`
	BranchID        string    `json:"branch_id"`
	ServiceID       string    `json:"service_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Booked          bool      `json:"booked"`
}

func toSlotResponse(s model.TimeSlot) slotResponse {
	return slotResponse{
		ID:              s.ID,
		ProviderID:      s.ProviderID,
		BranchID:        s.BranchID,
		ServiceID:       s.ServiceID,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime(),
		DurationMinutes: s.DurationMinutes,
		Booked:          s.Booked,
	}
}

type createSlotRequest struct {
	ProviderID string    `json:"provider_id"`
	BranchID   string    `json:"branch_id"`
	ServiceID  string    `json:"service_id"`
	StartTime  time.Time `json:"start_time"`
}

func (h *SlotsHandler) AvailableTimes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SlotsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := schedule.ListFilter{
		ProviderID: strings.TrimSpace(q.Get("provider")),
		BranchID:   strings.TrimSpace(q.Get("branch")),
		ServiceID:  strings.TrimSpace(q.Get("service")),
	}
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "start must be RFC3339", http.StatusBadRequest)
			return
		}
		filter.Start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "end must be RFC3339", http.StatusBadRequest)
			return
		}
		filter.End = t
	}

	slots, err := h.slots.ListAvailable(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list slots", "err", err)
		http.Error(w, "failed to list slots", http.StatusInternalServerError)
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 0 && len(slots) > limit {
		slots = slots[:limit]
	}

	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SlotsHandler) create(w http.ResponseWriter, r *http.Request) {
	claims, ok := authz.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if claims.Role != model.RoleProvider && claims.Role != model.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req createSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.BranchID == "" || req.ServiceID == "" || req.StartTime.IsZero() {
		http.Error(w, "branch_id, service_id and start_time required", http.StatusBadRequest)
		return
	}

	// Providers may only publish their own slots; admins can set any provider.
	providerID := claims.Sub
	if claims.Role == model.RoleAdmin && strings.TrimSpace(req.ProviderID) != "" {
		providerID = strings.TrimSpace(req.ProviderID)
	}

	// Duration always comes from the service record, never from the request.
	svc, err := h.services.GetService(r.Context(), req.ServiceID)
	if err != nil {
		if directory.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to load service", http.StatusInternalServerError)
		return
	}

	slot := model.TimeSlot{
		ProviderID:      providerID,
		BranchID:        req.BranchID,
		ServiceID:       req.ServiceID,
		StartTime:       req.StartTime,
		DurationMinutes: svc.DurationMinutes,
	}
	id, err := h.slots.Create(r.Context(), &slot)
	if err != nil {
		if schedule.IsDuplicate(err) {
			http.Error(w, "slot already exists for this provider at this time", http.StatusConflict)
			return
		}
		h.logger.Error("failed to create slot", "err", err)
		http.Error(w, "failed to create slot", http.StatusInternalServerError)
		return
	}
	slot.ID = id

	writeJSON(w, http.StatusCreated, toSlotResponse(slot))
}

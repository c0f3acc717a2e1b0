package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Old6Man6/Qtime/internal/authz"
	"github.com/Old6Man6/Qtime/internal/directory"
	"github.com/Old6Man6/Qtime/internal/model"
)

// DirectoryHandler serves branches and services: public reads, admin writes.
type DirectoryHandler struct {
	repo   *directory.Repository
	logger *slog.Logger
}

func NewDirectoryHandler(repo *directory.Repository, logger *slog.Logger) *DirectoryHandler {
	return &DirectoryHandler{repo: repo, logger: logger}
}

type branchRequest struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	PhoneNumber string `json:"phone_number"`
}

type serviceRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := authz.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if claims.Role != model.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (h *DirectoryHandler) Branches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		branches, err := h.repo.ListBranches(r.Context())
		if err != nil {
			h.logger.Error("failed to list branches", "err", err)
			http.Error(w, "failed to list branches", http.StatusInternalServerError)
			return
		}
		if branches == nil {
			branches = []model.Branch{}
		}
		writeJSON(w, http.StatusOK, branches)

	case http.MethodPost:
		if !requireAdmin(w, r) {
			return
		}
		var req branchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		b := model.Branch{
			Name:        req.Name,
			Location:    strings.TrimSpace(req.Location),
			PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		}
		id, err := h.repo.CreateBranch(r.Context(), b)
		if err != nil {
			h.logger.Error("failed to create branch", "err", err)
			http.Error(w, "failed to create branch", http.StatusInternalServerError)
			return
		}
		b.ID = id
		writeJSON(w, http.StatusCreated, b)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *DirectoryHandler) BranchItem(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/branches/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		b, err := h.repo.GetBranch(r.Context(), id)
		if err != nil {
			if directory.IsNotFound(err) {
				http.Error(w, "branch not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load branch", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, b)

	case http.MethodPut:
		if !requireAdmin(w, r) {
			return
		}
		var req branchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		b := model.Branch{
			ID:          id,
			Name:        req.Name,
			Location:    strings.TrimSpace(req.Location),
			PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		}
		if err := h.repo.UpdateBranch(r.Context(), b); err != nil {
			if directory.IsNotFound(err) {
				http.Error(w, "branch not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to update branch", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, b)

	case http.MethodDelete:
		if !requireAdmin(w, r) {
			return
		}
		if err := h.repo.DeleteBranch(r.Context(), id); err != nil {
			if directory.IsNotFound(err) {
				http.Error(w, "branch not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to delete branch", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *DirectoryHandler) Services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		services, err := h.repo.ListServices(r.Context())
		if err != nil {
			h.logger.Error("failed to list services", "err", err)
			http.Error(w, "failed to list services", http.StatusInternalServerError)
			return
		}
		if services == nil {
			services = []model.Service{}
		}
		writeJSON(w, http.StatusOK, services)

	case http.MethodPost:
		if !requireAdmin(w, r) {
			return
		}
		var req serviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || req.DurationMinutes <= 0 {
			http.Error(w, "name and positive duration_minutes required", http.StatusBadRequest)
			return
		}
		s := model.Service{
			Name:            req.Name,
			Description:     strings.TrimSpace(req.Description),
			DurationMinutes: req.DurationMinutes,
			PriceCents:      req.PriceCents,
		}
		id, err := h.repo.CreateService(r.Context(), s)
		if err != nil {
			h.logger.Error("failed to create service", "err", err)
			http.Error(w, "failed to create service", http.StatusInternalServerError)
			return
		}
		s.ID = id
		writeJSON(w, http.StatusCreated, s)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *DirectoryHandler) ServiceItem(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/services/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s, err := h.repo.GetService(r.Context(), id)
		if err != nil {
			if directory.IsNotFound(err) {
				http.Error(w, "service not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load service", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, s)

	case http.MethodPut:
		if !requireAdmin(w, r) {
			return
		}
		var req serviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || req.DurationMinutes <= 0 {
			http.Error(w, "name and positive duration_minutes required", http.StatusBadRequest)
			return
		}
		s := model.Service{
			ID:              id,
			Name:            req.Name,
			Description:     strings.TrimSpace(req.Description),
			DurationMinutes: req.DurationMinutes,
			PriceCents:      req.PriceCents,
		}
		if err := h.repo.UpdateService(r.Context(), s); err != nil {
			if directory.IsNotFound(err) {
				http.Error(w, "service not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to update service", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, s)

	case http.MethodDelete:
		if !requireAdmin(w, r) {
			return
		}
		if err := h.repo.DeleteService(r.Context(), id); err != nil {
			if directory.IsNotFound(err) {
				http.Error(w, "service not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to delete service", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

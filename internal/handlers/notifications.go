package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Old6Man6/Qtime/internal/authz"
	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/internal/notifications"
)

type NotificationsHandler struct {
	repo   *notifications.Repository
	logger *slog.Logger
}

func NewNotificationsHandler(repo *notifications.Repository, logger *slog.Logger) *NotificationsHandler {
	return &NotificationsHandler{repo: repo, logger: logger}
}

func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := authz.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	items, err := h.repo.ListByUser(r.Context(), claims.Sub)
	if err != nil {
		h.logger.Error("failed to list notifications", "err", err)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}

// MarkRead routes POST /notifications/{id}/read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := authz.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/notifications/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "read" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if err := h.repo.MarkRead(r.Context(), parts[0], claims.Sub); err != nil {
		if notifications.IsNotFound(err) {
			http.Error(w, "notification not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to mark notification read", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

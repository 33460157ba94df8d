package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

// GET /api/v1/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Monitor.Notices().List())
}

// DELETE /api/v1/notifications[?level=]
func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	level := data.NoticeLevel(r.URL.Query().Get("level"))
	switch {
	case level == "":
		h.Monitor.Notices().Clear()
	case level.Valid():
		h.Monitor.Notices().ClearByLevel(level)
	default:
		respondError(w, http.StatusBadRequest, "invalid level")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/notifications/{id}
func (h *Handler) RemoveNotification(w http.ResponseWriter, r *http.Request) {
	if !h.Monitor.Notices().Remove(chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

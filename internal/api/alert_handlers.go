package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

// GET /api/v1/alerts/current
func (h *Handler) CurrentAlert(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Monitor.Alerts().Snapshot())
}

// POST /api/v1/alerts/close dismisses the current alert; the next one follows after the promotion delay.
func (h *Handler) CloseAlert(w http.ResponseWriter, r *http.Request) {
	h.Monitor.Alerts().Close()
	respondJSON(w, http.StatusOK, h.Monitor.Alerts().Snapshot())
}

// POST /api/v1/alerts/view closes the current alert and returns the camera to navigate to.
func (h *Handler) ViewAlertCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := h.Monitor.Alerts().ViewCamera()
	if !ok {
		respondError(w, http.StatusNotFound, "no alert with a camera")
		return
	}
	cam, found := h.Monitor.Store().GetByID(id)
	resp := map[string]any{"cameraId": id}
	if found {
		resp["camera"] = data.NewCameraView(cam)
		resp["streamUrl"] = h.Monitor.StreamURL(id)
	}
	respondJSON(w, http.StatusOK, resp)
}

// DELETE /api/v1/alerts
func (h *Handler) ClearAlerts(w http.ResponseWriter, r *http.Request) {
	h.Monitor.Alerts().ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/alerts/{id}
func (h *Handler) RemoveAlert(w http.ResponseWriter, r *http.Request) {
	h.Monitor.Alerts().Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

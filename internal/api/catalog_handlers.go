package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

func decodeCameraInput(w http.ResponseWriter, r *http.Request) (data.CameraInput, bool) {
	var in data.CameraInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return in, false
	}
	return in, true
}

// POST /api/v1/cameras
func (h *Handler) CreateCamera(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeCameraInput(w, r)
	if !ok {
		return
	}
	cam, err := h.Monitor.CreateCamera(r.Context(), in)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, data.NewCameraView(cam))
}

// PUT /api/v1/cameras/{id}
func (h *Handler) EditCamera(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeCameraInput(w, r)
	if !ok {
		return
	}
	cam, err := h.Monitor.EditCamera(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, data.NewCameraView(cam))
}

// DELETE /api/v1/cameras/{id}
func (h *Handler) DeleteCamera(w http.ResponseWriter, r *http.Request) {
	if err := h.Monitor.DeleteCamera(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondBackendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Monitor.ListEvents(r.Context())
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, eventViews(events))
}

// GET /api/v1/videos
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.Monitor.ListVideos(r.Context())
	if err != nil {
		respondBackendError(w, err)
		return
	}
	if videos == nil {
		videos = []data.Video{}
	}
	respondJSON(w, http.StatusOK, videos)
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-vms-monitor/internal/backend"
	"github.com/technosupport/ts-vms-monitor/internal/cameras"
	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/monitor"
)

// Helpers
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondBackendError maps backend and store errors onto status codes.
func respondBackendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cameras.ErrInvalidStatus), errors.Is(err, monitor.ErrInvalidCamera):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, monitor.ErrNoCatalog):
		respondError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, cameras.ErrNotFound), errors.Is(err, backend.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, backend.ErrBadResponse):
		respondError(w, http.StatusBadGateway, "bad backend response")
	default:
		if code := backend.StatusCode(err); code >= 400 && code < 500 {
			respondError(w, code, err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

type cameraList struct {
	Cameras     []data.CameraView `json:"cameras"`
	Total       int               `json:"total"`
	Loading     bool              `json:"loading"`
	LastUpdated *data.Timestamp   `json:"lastUpdated,omitempty"`
	LastError   string            `json:"lastError,omitempty"`
}

// GET /api/v1/cameras[?status=]
func (h *Handler) ListCameras(w http.ResponseWriter, r *http.Request) {
	store := h.Monitor.Store()
	filter := data.CameraStatus(strings.ToUpper(r.URL.Query().Get("status")))

	resp := cameraList{Cameras: []data.CameraView{}, Loading: store.Loading()}
	for _, c := range store.Snapshot() {
		if filter != "" && c.Status != filter {
			continue
		}
		resp.Cameras = append(resp.Cameras, data.NewCameraView(c))
	}
	resp.Total = len(resp.Cameras)
	if ts := store.LastUpdated(); !ts.IsZero() {
		resp.LastUpdated = &data.Timestamp{Time: ts}
	}
	if err := store.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

type statusCount struct {
	Status data.CameraStatus `json:"status"`
	Label  string            `json:"label"`
	Icon   string            `json:"icon"`
	Color  string            `json:"color"`
	Count  int               `json:"count"`
}

// GET /api/v1/cameras/counts
func (h *Handler) CameraCounts(w http.ResponseWriter, r *http.Request) {
	counts := h.Monitor.Store().CountsByStatus()
	out := make([]statusCount, 0, len(counts))
	total := 0
	for st, n := range counts {
		out = append(out, statusCount{
			Status: st,
			Label:  data.StatusLabel(st),
			Icon:   data.StatusIcon(st),
			Color:  data.StatusColor(st),
			Count:  n,
		})
		total += n
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	respondJSON(w, http.StatusOK, map[string]any{"total": total, "byStatus": out})
}

// GET /api/v1/cameras/{id}
func (h *Handler) GetCamera(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.Monitor.Store().GetByID(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "camera not found")
		return
	}
	respondJSON(w, http.StatusOK, data.NewCameraView(cam))
}

// PUT /api/v1/cameras/{id}/status?status=X
func (h *Handler) UpdateCameraStatus(w http.ResponseWriter, r *http.Request) {
	status := data.CameraStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status == "" {
		respondError(w, http.StatusBadRequest, "status is required")
		return
	}
	cam, err := h.Monitor.UpdateCameraStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, data.NewCameraView(cam))
}

// POST /api/v1/cameras/refresh
func (h *Handler) RefreshCameras(w http.ResponseWriter, r *http.Request) {
	if err := h.Monitor.RefreshCameras(r.Context()); err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"total": h.Monitor.Store().Len()})
}

// GET /api/v1/cameras/{id}/stream-url
func (h *Handler) StreamURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.Monitor.Store().GetByID(id); !ok {
		respondError(w, http.StatusNotFound, "camera not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"cameraId": id, "url": h.Monitor.StreamURL(id)})
}

// GET /api/v1/cameras/{id}/events
func (h *Handler) CameraEvents(w http.ResponseWriter, r *http.Request) {
	v, err := h.Monitor.CameraDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondBackendError(w, err)
		return
	}
	events, err := v.Events(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	respondJSON(w, http.StatusOK, eventViews(events))
}

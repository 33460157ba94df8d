package api

import (
	"errors"
	"net/http"

	"github.com/technosupport/ts-vms-monitor/internal/monitor"
)

// GET /api/v1/channel
func (h *Handler) ChannelStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Monitor.ChannelStatus())
}

// POST /api/v1/channel/reconnect
func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.Monitor.Reconnect(); err != nil {
		if errors.Is(err, monitor.ErrNotStarted) {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, h.Monitor.ChannelStatus())
}

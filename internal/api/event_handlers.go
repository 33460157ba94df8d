package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

func eventViews(events []data.DomainEvent) []data.EventView {
	out := make([]data.EventView, len(events))
	for i, e := range events {
		out[i] = data.NewEventView(e)
	}
	return out
}

type pageView struct {
	Content       []data.EventView `json:"content"`
	TotalElements int64            `json:"totalElements"`
	TotalPages    int              `json:"totalPages"`
	Size          int              `json:"size"`
	Number        int              `json:"number"`
}

func newPageView(p data.EventPage) pageView {
	return pageView{
		Content:       eventViews(p.Content),
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
		Size:          p.Size,
		Number:        p.Number,
	}
}

// parseFilter reads camera_id, type, start_date, end_date, severity, page and size.
func parseFilter(q url.Values, defaultSize int) (data.EventFilter, error) {
	f := data.EventFilter{
		CameraID:  q.Get("camera_id"),
		EventType: q.Get("type"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Size:      defaultSize,
	}
	for _, p := range []struct {
		key string
		dst *int
	}{{"severity", &f.Severity}, {"page", &f.Page}, {"size", &f.Size}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return data.EventFilter{}, &filterError{param: p.key}
		}
		*p.dst = n
	}
	return f, nil
}

type filterError struct{ param string }

func (e *filterError) Error() string { return "invalid " + e.param }

// GET /api/v1/events/recent
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Monitor.Dashboard().Recent(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read recent events")
		return
	}
	respondJSON(w, http.StatusOK, eventViews(events))
}

// GET /api/v1/events/search
func (h *Handler) SearchEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query(), h.SearchPageSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.Monitor.SearchEvents(r.Context(), f)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newPageView(page))
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/middleware"
	"github.com/technosupport/ts-vms-monitor/internal/monitor"
)

type Handler struct {
	Monitor        *monitor.Monitor
	Log            *zap.Logger
	SearchPageSize int
}

func NewHandler(m *monitor.Monitor, searchPageSize int, log *zap.Logger) *Handler {
	if searchPageSize <= 0 {
		searchPageSize = 20
	}
	return &Handler{Monitor: m, Log: log.With(zap.String("component", "api")), SearchPageSize: searchPageSize}
}

// Router builds the HTTP surface. requestTimeout does not apply to the WebSocket route.
func (h *Handler) Router(requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(h.Log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/events/ws", h.ServeEventsWS)

		r.Group(func(r chi.Router) {
			if requestTimeout > 0 {
				r.Use(chimiddleware.Timeout(requestTimeout))
			}

			r.Get("/cameras", h.ListCameras)
			r.Post("/cameras", h.CreateCamera)
			r.Get("/cameras/counts", h.CameraCounts)
			r.Post("/cameras/refresh", h.RefreshCameras)
			r.Get("/cameras/{id}", h.GetCamera)
			r.Put("/cameras/{id}", h.EditCamera)
			r.Delete("/cameras/{id}", h.DeleteCamera)
			r.Put("/cameras/{id}/status", h.UpdateCameraStatus)
			r.Get("/cameras/{id}/stream-url", h.StreamURL)
			r.Get("/cameras/{id}/events", h.CameraEvents)

			r.Get("/channel", h.ChannelStatus)
			r.Post("/channel/reconnect", h.Reconnect)

			r.Get("/notifications", h.ListNotifications)
			r.Delete("/notifications", h.ClearNotifications)
			r.Delete("/notifications/{id}", h.RemoveNotification)

			r.Get("/alerts/current", h.CurrentAlert)
			r.Post("/alerts/close", h.CloseAlert)
			r.Post("/alerts/view", h.ViewAlertCamera)
			r.Delete("/alerts", h.ClearAlerts)
			r.Delete("/alerts/{id}", h.RemoveAlert)

			r.Get("/events", h.ListEvents)
			r.Get("/events/recent", h.RecentEvents)
			r.Get("/events/search", h.SearchEvents)

			r.Get("/videos", h.ListVideos)
		})
	})
	return r
}

// GET /healthz reports 200 while the push channel is connected, 503 otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.Monitor.ChannelStatus()
	code := http.StatusOK
	if !h.Monitor.IsConnected() {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"channel": st.State,
		"cameras": h.Monitor.Store().Len(),
	})
}

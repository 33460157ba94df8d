package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All metrics are low-cardinality (no camera_id/event_id labels)

var (
	// ChannelState is the push channel state machine position (0=disconnected 1=connecting 2=connected 3=backoff)
	ChannelState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_channel_state",
		Help: "Current push channel state",
	})

	ChannelConnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_channel_connects_total",
		Help: "Push channel connection attempts by result",
	}, []string{"result"})

	ChannelFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_channel_frames_total",
		Help: "Frames received on the push channel by kind",
	}, []string{"kind"})

	ChannelDecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_channel_decode_errors_total",
		Help: "Push frames dropped because the payload was not a valid event",
	})

	ChannelGiveUpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_channel_give_ups_total",
		Help: "Times the reconnect ceiling was reached",
	})

	HubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_hub_subscribers",
		Help: "Active event subscribers",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_notifications_total",
		Help: "Notifications by outcome",
	}, []string{"level", "outcome"})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_alerts_total",
		Help: "Alerts by outcome (shown, queued, dropped, expired)",
	}, []string{"outcome"})

	CameraRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_camera_refresh_total",
		Help: "Camera snapshot refreshes by result",
	}, []string{"result"})

	CameraRefreshLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "monitor_camera_refresh_latency_ms",
		Help:    "Camera snapshot fetch latency in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	CamerasByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "monitor_cameras",
		Help: "Cameras in the store by status",
	}, []string{"status"})

	RelayPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_relay_publish_total",
		Help: "Event relay publishes by sink and result",
	}, []string{"sink", "result"})

	WSClientsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_ws_clients_active",
		Help: "Connected event stream WebSocket clients",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_http_requests_total",
		Help: "API requests by method and status class",
	}, []string{"method", "code"})
)

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/alerts"
	"github.com/technosupport/ts-vms-monitor/internal/cameras"
	"github.com/technosupport/ts-vms-monitor/internal/config"
	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/metrics"
	"github.com/technosupport/ts-vms-monitor/internal/notify"
	"github.com/technosupport/ts-vms-monitor/internal/relay"
	"github.com/technosupport/ts-vms-monitor/internal/stream"
	"github.com/technosupport/ts-vms-monitor/internal/views"
)

const (
	MsgConnectionLost     = "Realtime connection lost. Reconnecting..."
	MsgConnectionRestored = "Realtime connection restored."
	MsgLoadFailed         = "Failed to load the camera list."
	MsgUpdateFailed       = "Failed to change the camera status."

	maxDetailViews = 16
	relayBuffer    = 256
)

var ErrNotStarted = errors.New("monitor not started")

// Backend is everything the monitor asks of the REST side.
type Backend interface {
	cameras.Backend
	views.EventSource
	StreamURL(cameraID string) string
}

type Deps struct {
	Backend   Backend
	Transport stream.Transport
	// Redis, when set, backs the recent-event rings.
	Redis  *redis.Client
	Relays []relay.Publisher
	// Catalog, when set, enables camera create/edit/delete and the raw listings.
	Catalog Catalog
}

// Monitor owns one push channel and everything fed by it.
type Monitor struct {
	cfg     *config.Config
	backend Backend
	catalog Catalog
	log     *zap.Logger

	transport stream.Transport
	hub       *stream.Hub
	store     *cameras.Store
	notices   *notify.Queue
	alerts    *alerts.Queue
	dashboard *views.Dashboard
	redis     *redis.Client

	detailMu sync.Mutex
	details  *lru.Cache[string, *views.CameraDetail]

	fanout  *relay.Fanout
	relayCh chan data.DomainEvent
	relayWg sync.WaitGroup
	bg      sync.WaitGroup

	mu      sync.Mutex
	channel *stream.Channel
	down    bool
	started bool
	stopped bool
}

func New(cfg *config.Config, deps Deps, log *zap.Logger) (*Monitor, error) {
	if deps.Backend == nil || deps.Transport == nil {
		return nil, errors.New("monitor: backend and transport are required")
	}
	log = log.With(zap.String("component", "monitor"))

	m := &Monitor{
		cfg:       cfg,
		backend:   deps.Backend,
		catalog:   deps.Catalog,
		log:       log,
		transport: deps.Transport,
		hub:       stream.NewHub(log),
		store:     cameras.NewStore(deps.Backend, log),
		redis:     deps.Redis,
		notices: notify.NewQueue(notify.Config{
			Max:             cfg.Notifications.Max,
			DefaultDuration: cfg.Notifications.DefaultDuration,
		}, log),
		alerts: alerts.NewQueue(alerts.Config{
			Max:                  cfg.Alerts.Max,
			DefaultAutoClose:     cfg.Alerts.DefaultAutoClose,
			TrafficAutoClose:     cfg.Alerts.TrafficAutoClose,
			EventAutoClose:       cfg.Alerts.EventAutoClose,
			StatusErrorAutoClose: cfg.Alerts.StatusErrorAutoClose,
			StatusAutoClose:      cfg.Alerts.StatusAutoClose,
		}, log),
	}

	ring, err := m.newRing("dashboard", cfg.Views.DashboardRingSize)
	if err != nil {
		return nil, err
	}
	m.dashboard = views.NewDashboard(ring, log)

	m.details, err = lru.NewWithEvict[string, *views.CameraDetail](maxDetailViews,
		func(_ string, v *views.CameraDetail) { v.Close() })
	if err != nil {
		return nil, fmt.Errorf("detail registry: %w", err)
	}

	if len(deps.Relays) > 0 {
		m.fanout = relay.NewFanout(log, deps.Relays...)
		m.relayCh = make(chan data.DomainEvent, relayBuffer)
	}

	m.store.OnStatusChange(m.onStatusChange)

	// Subscription order is delivery order: state first, then notices, then views.
	m.hub.Subscribe(nil, stream.Subscriber{
		OnEvent: m.onEvent,
		OnOpen:  m.onOpen,
		OnError: m.onError,
	})
	m.dashboard.Bind(m.hub)
	if m.fanout != nil {
		m.hub.Subscribe(nil, stream.Subscriber{OnEvent: m.enqueueRelay})
	}
	return m, nil
}

// Start loads the cameras, opens the push channel and starts the refresh loop.
// A failed initial load is reported as a notification, not an error.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if err := m.store.Refresh(ctx, false); err != nil {
		m.log.Error("initial camera load failed", zap.Error(err))
		m.notices.ShowError(MsgLoadFailed)
	}

	if m.fanout != nil {
		m.relayWg.Add(1)
		go m.relayLoop()
	}

	handlers := m.hub.Handlers()
	if m.cfg.Channel.DedupWindow > 0 {
		size := m.cfg.Channel.DedupSize
		if size <= 0 {
			size = 1024
		}
		d, err := stream.NewDedup(size, m.cfg.Channel.DedupWindow)
		if err != nil {
			return err
		}
		handlers = d.Filter(handlers)
	}

	ch := stream.Open(m.transport, handlers, stream.Config{
		ReconnectDelay:       m.cfg.Channel.ReconnectDelay,
		MaxReconnectAttempts: m.cfg.Channel.MaxReconnectAttempts,
		HealthCheckInterval:  m.cfg.Channel.HealthCheckInterval,
	}, m.log)

	m.mu.Lock()
	m.channel = ch
	m.mu.Unlock()

	m.store.StartAutoRefresh(m.cfg.Cameras.RefreshInterval)
	m.log.Info("monitor started",
		zap.Int("cameras", m.store.Len()),
		zap.Duration("refresh_interval", m.cfg.Cameras.RefreshInterval))
	return nil
}

// Stop releases the channel, timers, views and relays. It is safe to call twice.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	ch := m.channel
	m.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	m.store.Stop()
	m.bg.Wait()
	m.dashboard.Close()

	m.detailMu.Lock()
	m.details.Purge()
	m.detailMu.Unlock()

	m.alerts.Shutdown()
	m.notices.Close()

	if m.fanout != nil {
		close(m.relayCh)
		m.relayWg.Wait()
		if err := m.fanout.Close(); err != nil {
			m.log.Warn("relay close failed", zap.Error(err))
		}
	}
	m.log.Info("monitor stopped")
}

func (m *Monitor) Hub() *stream.Hub            { return m.hub }
func (m *Monitor) Store() *cameras.Store       { return m.store }
func (m *Monitor) Notices() *notify.Queue      { return m.notices }
func (m *Monitor) Alerts() *alerts.Queue       { return m.alerts }
func (m *Monitor) Dashboard() *views.Dashboard { return m.dashboard }

func (m *Monitor) StreamURL(cameraID string) string {
	return m.backend.StreamURL(cameraID)
}

// ChannelStatus reports Disconnected until Start.
func (m *Monitor) ChannelStatus() stream.Status {
	m.mu.Lock()
	ch := m.channel
	m.mu.Unlock()
	if ch == nil {
		return stream.Status{State: stream.StateDisconnected, MaxAttempts: m.cfg.Channel.MaxReconnectAttempts}
	}
	return ch.Status()
}

func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	ch := m.channel
	m.mu.Unlock()
	return ch != nil && ch.IsConnected()
}

// Reconnect is the manual reconnect action. It works after the retry ceiling.
func (m *Monitor) Reconnect() error {
	m.mu.Lock()
	ch := m.channel
	m.mu.Unlock()
	if ch == nil {
		return ErrNotStarted
	}
	ch.ForceReconnect()
	return nil
}

// RefreshCameras is a user-initiated full reload.
func (m *Monitor) RefreshCameras(ctx context.Context) error {
	if err := m.store.Refresh(ctx, false); err != nil {
		m.notices.ShowError(MsgLoadFailed)
		return err
	}
	return nil
}

// UpdateCameraStatus mutates one camera through the backend.
func (m *Monitor) UpdateCameraStatus(ctx context.Context, id string, status data.CameraStatus) (data.Camera, error) {
	cam, err := m.store.UpdateStatus(ctx, id, status)
	if err != nil {
		if !errors.Is(err, cameras.ErrInvalidStatus) {
			m.notices.ShowError(MsgUpdateFailed)
		}
		return data.Camera{}, err
	}
	return cam, nil
}

// CameraDetail returns the live detail view for a camera, loading its history on first use.
// Views beyond the registry size are closed least recently used first.
func (m *Monitor) CameraDetail(ctx context.Context, cameraID string) (*views.CameraDetail, error) {
	m.detailMu.Lock()
	defer m.detailMu.Unlock()

	if v, ok := m.details.Get(cameraID); ok {
		return v, nil
	}

	ring, err := m.newRing("camera:"+cameraID, m.cfg.Views.DetailRingSize)
	if err != nil {
		return nil, err
	}
	v := views.NewCameraDetail(cameraID, m.backend, ring, m.log)
	if err := v.Load(ctx); err != nil {
		return nil, err
	}
	v.Bind(m.hub)
	m.details.Add(cameraID, v)
	return v, nil
}

// SearchEvents runs a one-shot query. Live re-querying goes through NewSearch.
func (m *Monitor) SearchEvents(ctx context.Context, f data.EventFilter) (data.EventPage, error) {
	return m.backend.SearchEvents(ctx, f)
}

// NewSearch returns a bound event search. The caller closes it.
func (m *Monitor) NewSearch() *views.EventSearch {
	s := views.NewEventSearch(m.backend, m.log)
	s.Bind(m.hub)
	return s
}

func (m *Monitor) newRing(name string, size int) (views.Ring, error) {
	if m.redis != nil {
		key := m.cfg.Views.Redis.KeyPrefix + ":" + name
		return views.NewRedisRing(m.redis, key, size, m.cfg.Views.Redis.TTL), nil
	}
	return views.NewMemoryRing(size)
}

func (m *Monitor) onEvent(evt data.DomainEvent) {
	if evt.Type == data.EventTypeCameraStatus && evt.Meta().Status != "" {
		m.onCameraStatusEvent(evt)
		return
	}
	m.store.ApplyEvent(evt)
	m.notices.ShowEvent(evt)
	m.alerts.ShowForEvent(evt)
}

// onCameraStatusEvent derives notices from the transition itself, so a status
// event for a known camera yields one notice and one alert for the change.
func (m *Monitor) onCameraStatusEvent(evt data.DomainEvent) {
	before, known := m.store.GetByID(evt.CameraID)
	if !known || !m.store.ApplyEvent(evt) {
		m.notices.ShowEvent(evt)
		m.alerts.ShowForEvent(evt)
		return
	}
	after, _ := m.store.GetByID(evt.CameraID)
	if after.Status == before.Status {
		return
	}
	m.notices.ShowStatusChange(after.Name, before.Status, after.Status)
	m.alerts.Show(m.alerts.StatusAlert(after.ID, after.Name, before.Status, after.Status))
}

// onStatusChange handles transitions found by refresh or made by the user.
// Push transitions are covered by onEvent.
func (m *Monitor) onStatusChange(c cameras.StatusChange) {
	switch c.Source {
	case cameras.SourceRefresh:
		m.notices.ShowStatusChange(c.Camera.Name, c.Old, c.New)
		m.alerts.Show(m.alerts.StatusAlert(c.Camera.ID, c.Camera.Name, c.Old, c.New))
	case cameras.SourceUpdate:
		m.notices.ShowStatusChange(c.Camera.Name, c.Old, c.New)
	}
}

func (m *Monitor) onError(err error) {
	m.mu.Lock()
	first := !m.down
	m.down = true
	m.mu.Unlock()

	if first {
		m.log.Warn("realtime connection lost", zap.Error(err))
		m.notices.Add(MsgConnectionLost, data.LevelWarning, 0)
	}
}

// onOpen clears the outage notice and reconciles camera state missed while down.
func (m *Monitor) onOpen() {
	m.mu.Lock()
	wasDown := m.down
	m.down = false
	m.mu.Unlock()

	if !wasDown {
		return
	}
	m.notices.Remove(m.findNotice(MsgConnectionLost))
	m.notices.Show(MsgConnectionRestored, data.LevelSuccess)

	timeout := m.cfg.Backend.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := m.store.Refresh(ctx, true); err != nil {
			m.log.Warn("gap-fill refresh failed", zap.Error(err))
		}
	}()
}

func (m *Monitor) findNotice(message string) string {
	for _, it := range m.notices.List() {
		if it.Message == message {
			return it.ID
		}
	}
	return ""
}

func (m *Monitor) enqueueRelay(evt data.DomainEvent) {
	select {
	case m.relayCh <- evt:
	default:
		metrics.RelayPublishTotal.WithLabelValues("queue", "dropped").Inc()
		m.log.Warn("relay queue full, event dropped", zap.String("event_id", evt.ID))
	}
}

func (m *Monitor) relayLoop() {
	defer m.relayWg.Done()
	for evt := range m.relayCh {
		m.fanout.OnEvent(evt)
	}
}

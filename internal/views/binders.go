package views

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/stream"
)

const pushTimeout = 2 * time.Second

// EventSource is the backend query surface used by the views.
type EventSource interface {
	EventsByCamera(ctx context.Context, cameraID string) ([]data.DomainEvent, error)
	SearchEvents(ctx context.Context, f data.EventFilter) (data.EventPage, error)
}

// binding tracks one hub subscription. unbind is idempotent.
type binding struct {
	subMu sync.Mutex
	hub   *stream.Hub
	token stream.Token
}

func (b *binding) bind(hub *stream.Hub, filter stream.Predicate, sub stream.Subscriber) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.hub != nil {
		b.hub.Unsubscribe(b.token)
	}
	b.hub = hub
	b.token = hub.Subscribe(filter, sub)
}

func (b *binding) unbind() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.hub != nil {
		b.hub.Unsubscribe(b.token)
		b.hub = nil
	}
}

// Dashboard keeps every pushed event in a bounded ring.
type Dashboard struct {
	binding
	ring Ring
	log  *zap.Logger
}

func NewDashboard(ring Ring, log *zap.Logger) *Dashboard {
	return &Dashboard{ring: ring, log: log.With(zap.String("view", "dashboard"))}
}

func (d *Dashboard) Bind(hub *stream.Hub) {
	d.bind(hub, nil, stream.Subscriber{OnEvent: d.onEvent})
}

func (d *Dashboard) Close() {
	d.unbind()
}

func (d *Dashboard) Recent(ctx context.Context) ([]data.DomainEvent, error) {
	return d.ring.List(ctx)
}

func (d *Dashboard) onEvent(evt data.DomainEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := d.ring.Push(ctx, evt); err != nil {
		d.log.Warn("recent events push failed", zap.String("event_id", evt.ID), zap.Error(err))
	}
}

// CameraDetail shows one camera's history followed by its live events.
type CameraDetail struct {
	binding
	cameraID string
	src      EventSource
	ring     Ring
	log      *zap.Logger
}

func NewCameraDetail(cameraID string, src EventSource, ring Ring, log *zap.Logger) *CameraDetail {
	return &CameraDetail{
		cameraID: cameraID,
		src:      src,
		ring:     ring,
		log:      log.With(zap.String("view", "camera_detail"), zap.String("camera_id", cameraID)),
	}
}

func (v *CameraDetail) CameraID() string { return v.cameraID }

// Load replaces the ring with the backend history for the camera.
func (v *CameraDetail) Load(ctx context.Context) error {
	events, err := v.src.EventsByCamera(ctx, v.cameraID)
	if err != nil {
		return fmt.Errorf("load camera %s events: %w", v.cameraID, err)
	}
	sortNewestFirst(events)
	return v.ring.Reset(ctx, events)
}

// Bind prepends live events for this camera.
func (v *CameraDetail) Bind(hub *stream.Hub) {
	v.bind(hub, stream.ByCamera(v.cameraID), stream.Subscriber{OnEvent: v.onEvent})
}

func (v *CameraDetail) Close() {
	v.unbind()
}

func (v *CameraDetail) Events(ctx context.Context) ([]data.DomainEvent, error) {
	return v.ring.List(ctx)
}

func (v *CameraDetail) onEvent(evt data.DomainEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := v.ring.Push(ctx, evt); err != nil {
		v.log.Warn("camera event push failed", zap.String("event_id", evt.ID), zap.Error(err))
	}
}

// EventSearch holds one filtered, paginated query and re-runs it when a pushed
// event falls inside the filter. Re-queries are coalesced: at most one runs at a
// time and events arriving meanwhile trigger a single follow-up.
//
// Pushes are ignored until the first Search sets a filter. Every Search starts a
// new generation; results from older generations are discarded.
type EventSearch struct {
	binding
	src EventSource
	log *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	filter    data.EventFilter
	hasFilter bool
	gen       uint64
	page      data.EventPage
	lastErr   error
	running   bool
	dirty     bool
	onUpdate  func(data.EventPage)
	requeries int
}

func NewEventSearch(src EventSource, log *zap.Logger) *EventSearch {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventSearch{
		src:    src,
		log:    log.With(zap.String("view", "event_search")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnUpdate is called with each page produced by a push-triggered re-query.
func (v *EventSearch) OnUpdate(fn func(data.EventPage)) {
	v.mu.Lock()
	v.onUpdate = fn
	v.mu.Unlock()
}

// Search makes f the active filter and runs it.
func (v *EventSearch) Search(ctx context.Context, f data.EventFilter) (data.EventPage, error) {
	v.mu.Lock()
	v.filter = f
	v.hasFilter = true
	v.gen++
	gen := v.gen
	v.mu.Unlock()

	page, err := v.src.SearchEvents(ctx, f)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		if gen == v.gen {
			v.lastErr = err
		}
		return data.EventPage{}, fmt.Errorf("search events: %w", err)
	}
	if gen == v.gen {
		v.page = page
		v.lastErr = nil
	}
	return page, nil
}

func (v *EventSearch) Bind(hub *stream.Hub) {
	v.bind(hub, v.matches, stream.Subscriber{OnEvent: func(data.DomainEvent) { v.requery() }})
}

// Close unsubscribes and waits for an in-flight re-query.
func (v *EventSearch) Close() {
	v.unbind()
	v.cancel()
	v.wg.Wait()
}

func (v *EventSearch) Page() data.EventPage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
}

func (v *EventSearch) Filter() data.EventFilter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter
}

func (v *EventSearch) LastError() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

// Requeries counts push-triggered searches issued to the backend.
func (v *EventSearch) Requeries() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.requeries
}

func (v *EventSearch) matches(evt data.DomainEvent) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasFilter && v.filter.Matches(evt)
}

func (v *EventSearch) requery() {
	v.mu.Lock()
	if v.ctx.Err() != nil {
		v.mu.Unlock()
		return
	}
	if v.running {
		v.dirty = true
		v.mu.Unlock()
		return
	}
	v.running = true
	v.wg.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.wg.Done()
		for {
			v.mu.Lock()
			f, gen := v.filter, v.gen
			v.dirty = false
			v.requeries++
			v.mu.Unlock()

			page, err := v.src.SearchEvents(v.ctx, f)

			v.mu.Lock()
			current := gen == v.gen
			if current && err == nil {
				v.page = page
				v.lastErr = nil
			} else if current && v.ctx.Err() == nil {
				v.lastErr = err
			}
			again := v.dirty && v.ctx.Err() == nil
			if !again {
				v.running = false
			}
			fn := v.onUpdate
			v.mu.Unlock()

			switch {
			case err != nil:
				v.log.Warn("event search re-query failed", zap.Error(err))
			case !current:
				v.log.Debug("event search result superseded", zap.Uint64("generation", gen))
			case fn != nil:
				fn(page)
			}
			if !again {
				return
			}
		}
	}()
}

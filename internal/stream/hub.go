package stream

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/metrics"
)

// Predicate selects the events a subscriber wants. Nil means all.
type Predicate func(data.DomainEvent) bool

func ByCamera(cameraID string) Predicate {
	return func(e data.DomainEvent) bool { return e.CameraID == cameraID }
}

func ByType(eventType string) Predicate {
	return func(e data.DomainEvent) bool { return e.Type == eventType }
}

func ByFilter(f data.EventFilter) Predicate {
	return f.Matches
}

// Subscriber receives fan-out callbacks. Nil entries are skipped.
type Subscriber struct {
	OnEvent func(data.DomainEvent)
	OnOpen  func()
	OnError func(error)
}

type Token uint64

type subscription struct {
	token  Token
	filter Predicate
	sub    Subscriber
}

// Hub fans the channel's single stream out to independent consumers.
// Subscribers are called in subscription order, outside the hub lock,
// and a panicking subscriber does not stop delivery to the rest.
type Hub struct {
	mu   sync.RWMutex
	next Token
	subs map[Token]*subscription
	log  *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		subs: make(map[Token]*subscription),
		log:  log.With(zap.String("component", "event_hub")),
	}
}

func (h *Hub) Subscribe(filter Predicate, sub Subscriber) Token {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.subs[h.next] = &subscription{token: h.next, filter: filter, sub: sub}
	metrics.HubSubscribers.Set(float64(len(h.subs)))
	return h.next
}

// Unsubscribe is idempotent.
func (h *Hub) Unsubscribe(t Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, t)
	metrics.HubSubscribers.Set(float64(len(h.subs)))
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Handlers wires the hub as the channel's only consumer.
func (h *Hub) Handlers() Handlers {
	return Handlers{
		OnMessage: h.Publish,
		OnError:   h.publishError,
		OnOpen:    h.publishOpen,
	}
}

func (h *Hub) Publish(evt data.DomainEvent) {
	for _, s := range h.snapshot() {
		if s.sub.OnEvent == nil || (s.filter != nil && !s.filter(evt)) {
			continue
		}
		h.safeCall(s.token, func() { s.sub.OnEvent(evt) })
	}
}

func (h *Hub) publishOpen() {
	for _, s := range h.snapshot() {
		if s.sub.OnOpen != nil {
			h.safeCall(s.token, s.sub.OnOpen)
		}
	}
}

func (h *Hub) publishError(err error) {
	for _, s := range h.snapshot() {
		if s.sub.OnError != nil {
			h.safeCall(s.token, func() { s.sub.OnError(err) })
		}
	}
}

func (h *Hub) snapshot() []*subscription {
	h.mu.RLock()
	out := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].token < out[j].token })
	return out
}

func (h *Hub) safeCall(t Token, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("subscriber panicked",
				zap.Uint64("token", uint64(t)),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn()
}

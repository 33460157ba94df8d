package stream

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/metrics"
)

// Dedup drops events already delivered within the window. A reconnecting
// server may replay its last frames; those must not reach consumers twice.
type Dedup struct {
	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
	now   func() time.Time
}

func NewDedup(maxKeys int, ttl time.Duration) (*Dedup, error) {
	c, err := lru.New[string, time.Time](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("event dedup: %w", err)
	}
	return &Dedup{cache: c, ttl: ttl, now: time.Now}, nil
}

// IsDuplicate reports whether evt was already seen within the window.
// Events without an id are never duplicates: nothing identifies an occurrence.
func (d *Dedup) IsDuplicate(evt data.DomainEvent) bool {
	if evt.ID == "" {
		return false
	}
	key := evt.ID
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if seenAt, ok := d.cache.Get(key); ok && now.Sub(seenAt) < d.ttl {
		return true
	}
	d.cache.Add(key, now)
	return false
}

// Filter wraps h so duplicate events are counted and skipped.
func (d *Dedup) Filter(h Handlers) Handlers {
	next := h.OnMessage
	if next == nil {
		return h
	}
	h.OnMessage = func(evt data.DomainEvent) {
		if d.IsDuplicate(evt) {
			metrics.ChannelFramesTotal.WithLabelValues("duplicate").Inc()
			return
		}
		next(evt)
	}
	return h
}

package views

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

// Ring is a bounded recent-events buffer. List returns newest first.
type Ring interface {
	Push(ctx context.Context, evt data.DomainEvent) error
	Reset(ctx context.Context, events []data.DomainEvent) error
	List(ctx context.Context) ([]data.DomainEvent, error)
	Len(ctx context.Context) (int, error)
}

// MemoryRing keeps the newest events in process. Re-pushing an id moves it to the front.
type MemoryRing struct {
	cache *lru.Cache[string, data.DomainEvent]
	size  int
	seq   atomic.Uint64
}

func NewMemoryRing(size int) (*MemoryRing, error) {
	c, err := lru.New[string, data.DomainEvent](size)
	if err != nil {
		return nil, fmt.Errorf("memory ring: %w", err)
	}
	return &MemoryRing{cache: c, size: size}, nil
}

func (r *MemoryRing) Push(_ context.Context, evt data.DomainEvent) error {
	r.cache.Add(r.key(evt), evt)
	return nil
}

// Reset replaces the contents. events are expected newest first.
func (r *MemoryRing) Reset(_ context.Context, events []data.DomainEvent) error {
	r.cache.Purge()
	for i := len(events) - 1; i >= 0; i-- {
		r.cache.Add(r.key(events[i]), events[i])
	}
	return nil
}

func (r *MemoryRing) List(_ context.Context) ([]data.DomainEvent, error) {
	vals := r.cache.Values() // oldest to newest
	out := make([]data.DomainEvent, len(vals))
	for i, v := range vals {
		out[len(vals)-1-i] = v
	}
	return out, nil
}

func (r *MemoryRing) Len(_ context.Context) (int, error) {
	return r.cache.Len(), nil
}

// key is the event id. Id-less events each get their own slot.
func (r *MemoryRing) key(evt data.DomainEvent) string {
	if evt.ID != "" {
		return evt.ID
	}
	return "anon:" + strconv.FormatUint(r.seq.Add(1), 10)
}

// sortNewestFirst orders backend history by event time, newest first.
func sortNewestFirst(events []data.DomainEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Ts.After(events[j].Ts.Time)
	})
}

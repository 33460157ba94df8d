package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/metrics"
)

// DedupWindow is how long an identical message is suppressed.
const DedupWindow = 3 * time.Second

// Item is one transient notice.
type Item struct {
	ID         string           `json:"id"`
	Message    string           `json:"message"`
	Level      data.NoticeLevel `json:"severity"`
	DurationMs int64            `json:"duration_ms"`
	CreatedAt  time.Time        `json:"created_at"`
}

type Config struct {
	Max             int
	DefaultDuration time.Duration
	EventDuration   time.Duration
	StatusDuration  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Max <= 0 {
		c.Max = 5
	}
	if c.DefaultDuration == 0 {
		c.DefaultDuration = 3 * time.Second
	}
	if c.EventDuration == 0 {
		c.EventDuration = 4 * time.Second
	}
	if c.StatusDuration == 0 {
		c.StatusDuration = 3 * time.Second
	}
}

type entry struct {
	item  Item
	timer *time.Timer
}

// Queue holds the live notices, oldest first.
type Queue struct {
	cfg Config
	log *zap.Logger
	now func() time.Time

	mu       sync.Mutex
	entries  []*entry
	onChange func([]Item)
	closed   bool
}

func NewQueue(cfg Config, log *zap.Logger) *Queue {
	cfg.applyDefaults()
	return &Queue{
		cfg: cfg,
		log: log.With(zap.String("component", "notifications")),
		now: time.Now,
	}
}

// OnChange registers a callback invoked with the live list after every mutation.
func (q *Queue) OnChange(fn func([]Item)) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

// Add inserts a notice and returns its id. An identical message added less than
// DedupWindow ago is not duplicated; the existing id is returned instead.
// duration <= 0 keeps the notice until Remove.
func (q *Queue) Add(message string, level data.NoticeLevel, duration time.Duration) string {
	q.mu.Lock()
	now := q.now()
	if q.closed {
		q.mu.Unlock()
		return ""
	}
	for _, e := range q.entries {
		if e.item.Message == message && now.Sub(e.item.CreatedAt) < DedupWindow {
			q.mu.Unlock()
			metrics.NotificationsTotal.WithLabelValues(string(level), "deduped").Inc()
			return e.item.ID
		}
	}

	id := uuid.New().String()
	e := &entry{item: Item{
		ID:         id,
		Message:    message,
		Level:      level,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  now,
	}}
	if duration > 0 {
		e.timer = time.AfterFunc(duration, func() { q.expire(id, level) })
	}
	q.entries = append(q.entries, e)

	for len(q.entries) > q.cfg.Max {
		oldest := q.entries[0]
		if oldest.timer != nil {
			oldest.timer.Stop()
		}
		q.entries = q.entries[1:]
		metrics.NotificationsTotal.WithLabelValues(string(oldest.item.Level), "dropped").Inc()
	}
	fn, items := q.changedLocked()
	q.mu.Unlock()

	metrics.NotificationsTotal.WithLabelValues(string(level), "added").Inc()
	q.log.Debug("notification added", zap.String("id", id), zap.String("severity", string(level)), zap.String("message", message))
	notify(fn, items)
	return id
}

// Remove dismisses a notice. Unknown ids are ignored.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	removed := q.removeLocked(func(e *entry) bool { return e.item.ID == id })
	fn, items := q.changedLocked()
	q.mu.Unlock()

	if removed > 0 {
		notify(fn, items)
	}
	return removed > 0
}

func (q *Queue) Clear() {
	q.mu.Lock()
	q.removeLocked(func(*entry) bool { return true })
	fn, items := q.changedLocked()
	q.mu.Unlock()
	notify(fn, items)
}

func (q *Queue) ClearByLevel(level data.NoticeLevel) {
	q.mu.Lock()
	q.removeLocked(func(e *entry) bool { return e.item.Level == level })
	fn, items := q.changedLocked()
	q.mu.Unlock()
	notify(fn, items)
}

// List returns the live notices, oldest first.
func (q *Queue) List() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.itemsLocked()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close stops every pending expiry. Further adds are ignored.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.removeLocked(func(*entry) bool { return true })
}

func (q *Queue) expire(id string, level data.NoticeLevel) {
	if q.Remove(id) {
		metrics.NotificationsTotal.WithLabelValues(string(level), "expired").Inc()
	}
}

func (q *Queue) removeLocked(match func(*entry) bool) int {
	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if match(e) {
			if e.timer != nil {
				e.timer.Stop()
			}
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// drop references held past the new length
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
	return removed
}

func (q *Queue) itemsLocked() []Item {
	out := make([]Item, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.item
	}
	return out
}

func (q *Queue) changedLocked() (func([]Item), []Item) {
	if q.onChange == nil {
		return nil, nil
	}
	return q.onChange, q.itemsLocked()
}

func notify(fn func([]Item), items []Item) {
	if fn != nil {
		fn(items)
	}
}

package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/metrics"
)

// PromotionDelay separates one alert closing from the next backlog alert showing.
const PromotionDelay = 500 * time.Millisecond

type State int

const (
	StateIdle State = iota
	StateShowing
)

func (s State) String() string {
	if s == StateShowing {
		return "showing"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Alert is a modal notice. AutoClose 0 means the queue default; negative disables auto-close.
type Alert struct {
	ID          string           `json:"id"`
	Type        string           `json:"type,omitempty"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Level       data.NoticeLevel `json:"severity"`
	CameraID    string           `json:"camera_id,omitempty"`
	CameraName  string           `json:"camera_name,omitempty"`
	AutoClose   time.Duration    `json:"-"`
	AutoCloseMs int64            `json:"auto_close_ms"`
	CreatedAt   time.Time        `json:"created_at"`
}

type Config struct {
	Max                  int
	DefaultAutoClose     time.Duration
	TrafficAutoClose     time.Duration
	EventAutoClose       time.Duration
	StatusErrorAutoClose time.Duration
	StatusAutoClose      time.Duration
}

func (c *Config) applyDefaults() {
	if c.Max <= 0 {
		c.Max = 3
	}
	if c.DefaultAutoClose == 0 {
		c.DefaultAutoClose = 8 * time.Second
	}
	if c.TrafficAutoClose == 0 {
		c.TrafficAutoClose = 12 * time.Second
	}
	if c.EventAutoClose == 0 {
		c.EventAutoClose = 8 * time.Second
	}
	if c.StatusErrorAutoClose == 0 {
		c.StatusErrorAutoClose = 15 * time.Second
	}
	if c.StatusAutoClose == 0 {
		c.StatusAutoClose = 6 * time.Second
	}
}

// Snapshot is the externally visible queue state.
type Snapshot struct {
	State       State  `json:"state"`
	Current     *Alert `json:"current,omitempty"`
	RemainingMs int64  `json:"remaining_ms"`
	Backlog     int    `json:"backlog"`
}

// Queue shows at most one alert at a time and keeps a bounded FIFO backlog.
//
// The expiry timer is the authority for auto-close. The per-second tick only
// feeds display countdowns.
type Queue struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	current  *Alert
	shownAt  time.Time
	backlog  []Alert
	pending  *Alert
	expiry   *time.Timer
	promote  *time.Timer
	tickStop chan struct{}
	gen      uint64
	closed   bool

	onChange func(Snapshot)
	onTick   func(id string, remaining time.Duration)
}

func NewQueue(cfg Config, log *zap.Logger) *Queue {
	cfg.applyDefaults()
	return &Queue{
		cfg: cfg,
		log: log.With(zap.String("component", "alerts")),
	}
}

// OnChange is called after every state change.
func (q *Queue) OnChange(fn func(Snapshot)) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

// OnTick is called once per second while an auto-closing alert is shown.
func (q *Queue) OnTick(fn func(id string, remaining time.Duration)) {
	q.mu.Lock()
	q.onTick = fn
	q.mu.Unlock()
}

// Show displays the alert at once when idle, otherwise appends it to the backlog,
// keeping only the newest Max entries.
func (q *Queue) Show(a Alert) string {
	if a.ID == "" {
		a.ID = "alert-" + uuid.New().String()
	}
	if a.Level == "" {
		a.Level = data.LevelInfo
	}
	if a.Title == "" {
		a.Title = "Event"
	}
	if a.AutoClose == 0 {
		a.AutoClose = q.cfg.DefaultAutoClose
	}
	if a.AutoClose > 0 {
		a.AutoCloseMs = a.AutoClose.Milliseconds()
	} else {
		a.AutoCloseMs = 0
	}
	a.CreatedAt = time.Now()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ""
	}
	if q.current == nil && q.pending == nil {
		q.showLocked(a)
		metrics.AlertsTotal.WithLabelValues("shown").Inc()
	} else {
		q.backlog = append(q.backlog, a)
		// a pending promotion occupies one backlog slot
		limit := q.cfg.Max
		if q.pending != nil {
			limit--
		}
		if over := len(q.backlog) - limit; over > 0 {
			q.backlog = q.backlog[over:]
			metrics.AlertsTotal.WithLabelValues("dropped").Add(float64(over))
		}
		metrics.AlertsTotal.WithLabelValues("queued").Inc()
	}
	fn, snap := q.changedLocked()
	q.mu.Unlock()

	q.log.Debug("alert shown", zap.String("id", a.ID), zap.String("title", a.Title))
	notify(fn, snap)
	return a.ID
}

// Close dismisses the current alert. The backlog head follows after PromotionDelay.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.current == nil {
		q.mu.Unlock()
		return
	}
	q.closeLocked()
	fn, snap := q.changedLocked()
	q.mu.Unlock()
	notify(fn, snap)
}

// ClearAll drops the current alert, the backlog and any pending promotion.
func (q *Queue) ClearAll() {
	q.mu.Lock()
	q.resetLocked()
	fn, snap := q.changedLocked()
	q.mu.Unlock()
	notify(fn, snap)
}

// Remove drops one alert wherever it is.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	for i, a := range q.backlog {
		if a.ID == id {
			q.backlog = append(q.backlog[:i], q.backlog[i+1:]...)
			break
		}
	}
	switch {
	case q.current != nil && q.current.ID == id:
		q.closeLocked()
	case q.pending != nil && q.pending.ID == id:
		q.promote.Stop()
		q.pending = nil
		q.schedulePromotionLocked()
	}
	fn, snap := q.changedLocked()
	q.mu.Unlock()
	notify(fn, snap)
}

// ViewCamera is the navigation action: it returns the current alert's camera and closes it.
func (q *Queue) ViewCamera() (string, bool) {
	q.mu.Lock()
	if q.current == nil || q.current.CameraID == "" {
		q.mu.Unlock()
		return "", false
	}
	cameraID := q.current.CameraID
	q.closeLocked()
	fn, snap := q.changedLocked()
	q.mu.Unlock()
	notify(fn, snap)
	return cameraID, true
}

func (q *Queue) Current() *Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return nil
	}
	a := *q.current
	return &a
}

func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stateLocked()
}

func (q *Queue) Backlog() []Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Alert, 0, len(q.backlog)+1)
	if q.pending != nil {
		out = append(out, *q.pending)
	}
	return append(out, q.backlog...)
}

// Countdown is the display-only remaining time of the current alert.
func (q *Queue) Countdown() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remainingLocked()
}

func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Shutdown stops every timer. The queue ignores shows afterwards.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.resetLocked()
}

func (q *Queue) showLocked(a Alert) {
	q.current = &a
	q.shownAt = time.Now()
	if a.AutoClose <= 0 {
		return
	}
	id := a.ID
	q.expiry = time.AfterFunc(a.AutoClose, func() { q.expire(id) })

	stop := make(chan struct{})
	q.tickStop = stop
	go q.tick(id, stop)
}

func (q *Queue) expire(id string) {
	q.mu.Lock()
	if q.current == nil || q.current.ID != id {
		q.mu.Unlock()
		return
	}
	q.closeLocked()
	fn, snap := q.changedLocked()
	q.mu.Unlock()

	metrics.AlertsTotal.WithLabelValues("expired").Inc()
	notify(fn, snap)
}

func (q *Queue) tick(id string, stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			q.mu.Lock()
			if q.current == nil || q.current.ID != id {
				q.mu.Unlock()
				return
			}
			fn := q.onTick
			remaining := q.remainingLocked()
			q.mu.Unlock()
			if fn != nil {
				fn(id, remaining)
			}
		}
	}
}

func (q *Queue) closeLocked() {
	q.stopCurrentLocked()
	q.current = nil
	q.schedulePromotionLocked()
}

func (q *Queue) schedulePromotionLocked() {
	if q.pending != nil || len(q.backlog) == 0 || q.closed {
		return
	}
	next := q.backlog[0]
	q.backlog = q.backlog[1:]
	q.pending = &next
	q.gen++
	gen := q.gen
	q.promote = time.AfterFunc(PromotionDelay, func() { q.promoteNext(gen) })
}

func (q *Queue) promoteNext(gen uint64) {
	q.mu.Lock()
	if q.closed || gen != q.gen || q.pending == nil {
		q.mu.Unlock()
		return
	}
	next := *q.pending
	q.pending = nil
	q.showLocked(next)
	fn, snap := q.changedLocked()
	q.mu.Unlock()

	metrics.AlertsTotal.WithLabelValues("shown").Inc()
	notify(fn, snap)
}

func (q *Queue) resetLocked() {
	q.stopCurrentLocked()
	q.current = nil
	q.backlog = nil
	q.pending = nil
	q.gen++
	if q.promote != nil {
		q.promote.Stop()
		q.promote = nil
	}
}

func (q *Queue) stopCurrentLocked() {
	if q.expiry != nil {
		q.expiry.Stop()
		q.expiry = nil
	}
	if q.tickStop != nil {
		close(q.tickStop)
		q.tickStop = nil
	}
}

func (q *Queue) stateLocked() State {
	if q.current != nil {
		return StateShowing
	}
	return StateIdle
}

func (q *Queue) remainingLocked() time.Duration {
	if q.current == nil || q.current.AutoClose <= 0 {
		return 0
	}
	left := q.current.AutoClose - time.Since(q.shownAt)
	if left < 0 {
		return 0
	}
	return left
}

func (q *Queue) snapshotLocked() Snapshot {
	s := Snapshot{
		State:       q.stateLocked(),
		RemainingMs: q.remainingLocked().Milliseconds(),
		Backlog:     len(q.backlog),
	}
	if q.pending != nil {
		s.Backlog++
	}
	if q.current != nil {
		a := *q.current
		s.Current = &a
	}
	return s
}

func (q *Queue) changedLocked() (func(Snapshot), Snapshot) {
	if q.onChange == nil {
		return nil, Snapshot{}
	}
	return q.onChange, q.snapshotLocked()
}

func notify(fn func(Snapshot), s Snapshot) {
	if fn != nil {
		fn(s)
	}
}

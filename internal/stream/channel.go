package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/metrics"
)

// Control frames carry no event payload and are never forwarded.
const (
	FrameHeartbeat = "heartbeat"
	FrameConnected = "connected"
)

// Stream is one open push connection.
type Stream interface {
	// Next blocks for the next frame. Any error ends the connection.
	Next() (Frame, error)
	IsOpen() bool
	Close() error
}

// Transport dials the push endpoint.
type Transport interface {
	Open(ctx context.Context) (Stream, error)
}

// Handlers are the channel callbacks. Nil entries are skipped.
type Handlers struct {
	OnMessage func(data.DomainEvent)
	OnError   func(error)
	OnOpen    func()
}

type Config struct {
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	HealthCheckInterval  time.Duration
}

// Status is a point-in-time view of the channel for diagnostics.
type Status struct {
	State          State     `json:"state"`
	Attempts       int       `json:"attempts"`
	MaxAttempts    int       `json:"max_attempts"`
	ConnectedSince time.Time `json:"connected_since,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

// Channel keeps one long-lived push connection alive.
//
// Errors schedule a reconnect after a constant delay until MaxReconnectAttempts
// consecutive failures, after which the channel stays Disconnected until
// ForceReconnect. A successful open resets the counter. A health check
// re-dials when the channel believes it is connected but the stream is not open.
type Channel struct {
	transport Transport
	handlers  Handlers
	cfg       Config
	log       *zap.Logger

	mu          sync.Mutex
	state       State
	attempts    int
	gen         uint64
	stream      Stream
	cancel      context.CancelFunc
	retryTimer  *time.Timer
	connectedAt time.Time
	lastErr     error
	closed      bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// Open starts the channel and dials immediately.
func Open(t Transport, h Handlers, cfg Config, log *zap.Logger) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 500 * time.Millisecond
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 10 * time.Second
	}
	c := &Channel{
		transport: t,
		handlers:  h,
		cfg:       cfg,
		log:       log.With(zap.String("component", "event_channel")),
		state:     StateDisconnected,
		quit:      make(chan struct{}),
	}
	metrics.ChannelState.Set(float64(StateDisconnected))

	c.wg.Add(1)
	go c.healthLoop()

	c.connect(0)
	return c
}

// Close tears down the connection and every timer. The channel cannot be reopened.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.teardownLocked()
	c.gen++
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	close(c.quit)
	c.wg.Wait()
	c.log.Info("event channel closed")
}

func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:       c.state,
		Attempts:    c.attempts,
		MaxAttempts: c.cfg.MaxReconnectAttempts,
	}
	if c.state == StateConnected {
		st.ConnectedSince = c.connectedAt
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// ForceReconnect resets the retry counter and dials now, cancelling any pending backoff.
// Works from the terminal Disconnected state as well.
func (c *Channel) ForceReconnect() {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
	c.log.Info("manual reconnect requested")
	c.connect(0)
}

// connect drops the current connection and dials again. A non-zero onlyGen makes
// the call conditional on that connection generation still being current, so
// stale timers cannot reconnect over a newer connection.
func (c *Channel) connect(onlyGen uint64) {
	c.mu.Lock()
	if c.closed || (onlyGen != 0 && onlyGen != c.gen) {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setStateLocked(StateConnecting)
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(ctx, gen)
}

func (c *Channel) run(ctx context.Context, gen uint64) {
	defer c.wg.Done()

	s, err := c.transport.Open(ctx)
	if err != nil {
		metrics.ChannelConnectsTotal.WithLabelValues("error").Inc()
		c.fail(gen, err)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		s.Close()
		return
	}
	c.stream = s
	c.attempts = 0
	c.lastErr = nil
	c.connectedAt = time.Now()
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	metrics.ChannelConnectsTotal.WithLabelValues("ok").Inc()
	c.log.Info("event channel connected")
	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}

	for {
		f, err := s.Next()
		if err != nil {
			c.fail(gen, err)
			return
		}
		if !c.isCurrent(gen) {
			return
		}
		c.dispatch(f)
	}
}

func (c *Channel) dispatch(f Frame) {
	if f.Event == FrameHeartbeat || f.Event == FrameConnected {
		metrics.ChannelFramesTotal.WithLabelValues("control").Inc()
		return
	}

	var evt data.DomainEvent
	if err := json.Unmarshal([]byte(f.Data), &evt); err != nil {
		metrics.ChannelDecodeErrorsTotal.Inc()
		c.log.Warn("dropping undecodable frame",
			zap.String("event", f.Event),
			zap.String("id", f.ID),
			zap.Error(err),
		)
		return
	}

	metrics.ChannelFramesTotal.WithLabelValues("event").Inc()
	if c.handlers.OnMessage != nil {
		c.handlers.OnMessage(evt)
	}
}

// fail handles a transport error on connection gen.
func (c *Channel) fail(gen uint64, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.lastErr = err

	retry := c.attempts < c.cfg.MaxReconnectAttempts
	if retry {
		c.attempts++
		c.setStateLocked(StateBackoff)
		c.retryTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() { c.connect(gen) })
	} else {
		c.setStateLocked(StateDisconnected)
	}
	attempts := c.attempts
	c.mu.Unlock()

	if retry {
		c.log.Warn("event channel error, reconnecting",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", c.cfg.MaxReconnectAttempts),
			zap.Duration("delay", c.cfg.ReconnectDelay),
		)
	} else {
		metrics.ChannelGiveUpsTotal.Inc()
		c.log.Error("event channel giving up after max reconnect attempts",
			zap.Error(err),
			zap.Int("max_attempts", c.cfg.MaxReconnectAttempts),
		)
	}

	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}

func (c *Channel) healthLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			c.checkHealth()
		}
	}
}

func (c *Channel) checkHealth() {
	c.mu.Lock()
	stale := c.state == StateConnected && c.stream != nil && !c.stream.IsOpen()
	gen := c.gen
	c.mu.Unlock()

	if stale {
		c.log.Warn("health check found closed stream while connected, reconnecting")
		c.connect(gen)
	}
}

func (c *Channel) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && gen == c.gen
}

// teardownLocked stops the pending retry and closes the live stream.
func (c *Channel) teardownLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
}

func (c *Channel) setStateLocked(to State) {
	if !canTransition(c.state, to) {
		c.log.Warn("ignoring illegal state transition",
			zap.Stringer("from", c.state),
			zap.Stringer("to", to),
		)
		return
	}
	c.state = to
	metrics.ChannelState.Set(float64(to))
}

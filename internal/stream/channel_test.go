package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

type fakeStream struct {
	frames    chan Frame
	errs      chan error
	closed    chan struct{}
	open      atomic.Bool
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	s := &fakeStream{
		frames: make(chan Frame, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	s.open.Store(true)
	return s
}

func (s *fakeStream) Next() (Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case err := <-s.errs:
		s.open.Store(false)
		return Frame{}, err
	case <-s.closed:
		return Frame{}, errors.New("stream closed")
	}
}

func (s *fakeStream) IsOpen() bool { return s.open.Load() }

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() {
		s.open.Store(false)
		close(s.closed)
	})
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeTransport struct {
	mu      sync.Mutex
	opens   int
	failErr error
	streams []*fakeStream
}

func (t *fakeTransport) Open(ctx context.Context) (Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens++
	if t.failErr != nil {
		return nil, t.failErr
	}
	s := newFakeStream()
	t.streams = append(t.streams, s)
	return s, nil
}

func (t *fakeTransport) setFail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failErr = err
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *fakeTransport) last() *fakeStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.streams) == 0 {
		return nil
	}
	return t.streams[len(t.streams)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []data.DomainEvent
	errs   int
	opens  int
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnMessage: func(e data.DomainEvent) { r.mu.Lock(); r.events = append(r.events, e); r.mu.Unlock() },
		OnError:   func(error) { r.mu.Lock(); r.errs++; r.mu.Unlock() },
		OnOpen:    func() { r.mu.Lock(); r.opens++; r.mu.Unlock() },
	}
}

func (r *recorder) counts() (events, errs, opens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events), r.errs, r.opens
}

func testConfig() Config {
	return Config{
		ReconnectDelay:       5 * time.Millisecond,
		MaxReconnectAttempts: 15,
		HealthCheckInterval:  time.Hour,
	}
}

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func TestChannel_DeliversEventsAndSkipsControlFrames(t *testing.T) {
	tr := &fakeTransport{}
	rec := &recorder{}
	ch := Open(tr, rec.handlers(), testConfig(), zap.NewNop())
	defer ch.Close()

	require.Eventually(t, ch.IsConnected, waitFor, tick)
	s := tr.last()

	s.frames <- Frame{Event: FrameConnected}
	s.frames <- Frame{Event: FrameHeartbeat, Data: `{"id":"hb"}`}
	s.frames <- Frame{Data: "{not json"}
	s.frames <- Frame{Event: "event", Data: `{"id":"e1","cameraId":"cam-1","type":"person","severity":2,"score":0.8}`}

	require.Eventually(t, func() bool { n, _, _ := rec.counts(); return n == 1 }, waitFor, tick)

	rec.mu.Lock()
	assert.Equal(t, "e1", rec.events[0].ID)
	assert.Equal(t, "cam-1", rec.events[0].CameraID)
	rec.mu.Unlock()

	_, errs, opens := rec.counts()
	assert.Equal(t, 0, errs, "decode failure must not surface as a channel error")
	assert.Equal(t, 1, opens)
	assert.True(t, s.IsOpen())
	assert.Equal(t, 1, tr.openCount())
}

func TestChannel_StopsAfterCeiling(t *testing.T) {
	tr := &fakeTransport{failErr: errors.New("connection refused")}
	rec := &recorder{}
	ch := Open(tr, rec.handlers(), testConfig(), zap.NewNop())
	defer ch.Close()

	// initial dial plus 15 retries
	require.Eventually(t, func() bool { return ch.State() == StateDisconnected && tr.openCount() == 16 }, waitFor, tick)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 16, tr.openCount(), "no reconnect may be scheduled past the ceiling")
	_, errs, _ := rec.counts()
	assert.Equal(t, 16, errs)
	assert.Equal(t, "connection refused", ch.Status().LastError)
}

func TestChannel_OpenResetsAttempts(t *testing.T) {
	tr := &fakeTransport{}
	rec := &recorder{}
	ch := Open(tr, rec.handlers(), testConfig(), zap.NewNop())
	defer ch.Close()

	require.Eventually(t, ch.IsConnected, waitFor, tick)
	first := tr.last()
	first.errs <- errors.New("reset by peer")

	require.Eventually(t, func() bool { return tr.openCount() == 2 && ch.IsConnected() }, waitFor, tick)
	assert.Equal(t, 0, ch.Status().Attempts)
	_, errs, opens := rec.counts()
	assert.Equal(t, 1, errs)
	assert.Equal(t, 2, opens)
}

func TestChannel_ForceReconnectAfterGiveUp(t *testing.T) {
	tr := &fakeTransport{failErr: errors.New("down")}
	cfg := testConfig()
	cfg.MaxReconnectAttempts = 2
	ch := Open(tr, Handlers{}, cfg, zap.NewNop())
	defer ch.Close()

	require.Eventually(t, func() bool { return ch.State() == StateDisconnected && tr.openCount() == 3 }, waitFor, tick)

	tr.setFail(nil)
	ch.ForceReconnect()

	require.Eventually(t, ch.IsConnected, waitFor, tick)
	assert.Equal(t, 4, tr.openCount())
	assert.Equal(t, 0, ch.Status().Attempts)
}

func TestChannel_ForceReconnectTearsDownPrevious(t *testing.T) {
	tr := &fakeTransport{}
	ch := Open(tr, Handlers{}, testConfig(), zap.NewNop())
	defer ch.Close()

	require.Eventually(t, ch.IsConnected, waitFor, tick)
	first := tr.last()

	ch.ForceReconnect()
	require.Eventually(t, func() bool { return tr.openCount() == 2 && ch.IsConnected() }, waitFor, tick)
	assert.True(t, first.isClosed())
	assert.False(t, tr.last().isClosed())
}

func TestChannel_HealthCheckRedialsSilentFailure(t *testing.T) {
	tr := &fakeTransport{}
	cfg := testConfig()
	cfg.HealthCheckInterval = 20 * time.Millisecond
	ch := Open(tr, Handlers{}, cfg, zap.NewNop())
	defer ch.Close()

	require.Eventually(t, ch.IsConnected, waitFor, tick)
	silent := tr.last()
	// transport dies without reporting an error
	silent.open.Store(false)

	require.Eventually(t, func() bool { return tr.openCount() == 2 && ch.IsConnected() }, waitFor, tick)
	assert.True(t, silent.isClosed())
}

func TestChannel_CloseCancelsPendingRetry(t *testing.T) {
	tr := &fakeTransport{failErr: errors.New("down")}
	cfg := testConfig()
	cfg.ReconnectDelay = 30 * time.Millisecond
	ch := Open(tr, Handlers{}, cfg, zap.NewNop())

	require.Eventually(t, func() bool { return ch.State() == StateBackoff }, waitFor, tick)
	ch.Close()
	opens := tr.openCount()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, opens, tr.openCount())
	assert.Equal(t, StateDisconnected, ch.State())

	// idempotent
	ch.Close()
}

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(StateDisconnected, StateConnecting))
	assert.True(t, canTransition(StateConnecting, StateConnected))
	assert.True(t, canTransition(StateConnected, StateBackoff))
	assert.True(t, canTransition(StateBackoff, StateConnecting))
	assert.True(t, canTransition(StateBackoff, StateBackoff))
	assert.False(t, canTransition(StateDisconnected, StateConnected))
	assert.False(t, canTransition(StateBackoff, StateConnected))
	assert.False(t, canTransition(StateDisconnected, StateBackoff))
}

package alerts

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

func newTestQueue() *Queue {
	return NewQueue(Config{}, zap.NewNop())
}

func TestQueue_SingleCurrentAndBoundedBacklog(t *testing.T) {
	q := newTestQueue()
	defer q.Shutdown()

	first := q.Show(Alert{Title: "a0"})
	assert.Equal(t, StateShowing, q.State())
	assert.Equal(t, first, q.Current().ID)

	var ids []string
	for i := 1; i <= 5; i++ {
		ids = append(ids, q.Show(Alert{Title: "queued"}))
	}

	// current untouched, only the newest three survive
	assert.Equal(t, first, q.Current().ID)
	backlog := q.Backlog()
	require.Len(t, backlog, 3)
	assert.Equal(t, ids[2], backlog[0].ID)
	assert.Equal(t, ids[4], backlog[2].ID)
}

func TestQueue_PromotionDelay(t *testing.T) {
	q := newTestQueue()
	defer q.Shutdown()

	q.Show(Alert{Title: "first"})
	next := q.Show(Alert{Title: "second"})

	closedAt := time.Now()
	q.Close()
	assert.Equal(t, StateIdle, q.State())
	assert.Nil(t, q.Current())

	time.Sleep(PromotionDelay / 2)
	assert.Equal(t, StateIdle, q.State(), "next alert must not show before the promotion delay")

	require.Eventually(t, func() bool { return q.State() == StateShowing }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(closedAt), PromotionDelay)
	assert.Equal(t, next, q.Current().ID)
	assert.Empty(t, q.Backlog())
}

func TestQueue_ShowDuringPromotionQueues(t *testing.T) {
	q := newTestQueue()
	defer q.Shutdown()

	q.Show(Alert{Title: "first"})
	second := q.Show(Alert{Title: "second"})
	q.Close()

	third := q.Show(Alert{Title: "third"})
	assert.Equal(t, StateIdle, q.State())
	require.Len(t, q.Backlog(), 2)

	require.Eventually(t, func() bool { return q.State() == StateShowing }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, second, q.Current().ID)
	assert.Equal(t, third, q.Backlog()[0].ID)
}

func TestQueue_BacklogBoundIncludesPendingPromotion(t *testing.T) {
	q := newTestQueue()
	defer q.Shutdown()

	q.Show(Alert{Title: "current"})
	for i := 0; i < 3; i++ {
		q.Show(Alert{Title: "queued"})
	}
	q.Close()

	var burst []string
	for i := 0; i < 3; i++ {
		burst = append(burst, q.Show(Alert{Title: "burst"}))
	}

	backlog := q.Backlog()
	require.Len(t, backlog, 3)
	assert.Equal(t, 3, q.Snapshot().Backlog)
	assert.Equal(t, "queued", backlog[0].Title, "pending head is kept")
	assert.Equal(t, burst[1:], []string{backlog[1].ID, backlog[2].ID})
}

func TestQueue_AutoCloseIsAuthoritative(t *testing.T) {
	q := newTestQueue()
	defer q.Shutdown()

	q.Show(Alert{Title: "short", AutoClose: 30 * time.Millisecond})
	assert.Greater(t, q.Countdown(), time.Duration(0))
	require.Eventually(t, func() bool { return q.State() == StateIdle }, time.Second, 5*time.Millisecond)

	sticky := q.Show(Alert{Title: "sticky", AutoClose: -1})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, sticky, q.Current().ID)
	assert.Equal(t, time.Duration(0), q.Countdown())
	assert.Equal(t, int64(0), q.Current().AutoCloseMs)
}

func TestQueue_DefaultAutoClose(t *testing.T) {
	q := newTestQueue()
	defer q.Shutdown()

	q.Show(Alert{Title: "x"})
	assert.Equal(t, int64(8000), q.Current().AutoCloseMs)
}

func TestQueue_CountdownTicks(t *testing.T) {
	q := newTestQueue()
	defer q.Shutdown()

	var mu sync.Mutex
	var ticks []time.Duration
	q.OnTick(func(id string, remaining time.Duration) {
		mu.Lock()
		ticks = append(ticks, remaining)
		mu.Unlock()
	})

	q.Show(Alert{Title: "countdown", AutoClose: 1500 * time.Millisecond})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ticks) == 1
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Less(t, ticks[0], 1500*time.Millisecond)
	mu.Unlock()
}

func TestQueue_RemoveAndClearAll(t *testing.T) {
	q := newTestQueue()
	defer q.Shutdown()

	cur := q.Show(Alert{Title: "current"})
	b1 := q.Show(Alert{Title: "b1"})
	b2 := q.Show(Alert{Title: "b2"})

	q.Remove(b2)
	require.Len(t, q.Backlog(), 1)

	q.Remove(cur)
	assert.Equal(t, StateIdle, q.State())

	// b1 is pending promotion; removing it cancels the promotion
	q.Remove(b1)
	time.Sleep(PromotionDelay + 100*time.Millisecond)
	assert.Equal(t, StateIdle, q.State())

	q.Show(Alert{Title: "c"})
	q.Show(Alert{Title: "d"})
	q.Close()
	q.ClearAll()
	time.Sleep(PromotionDelay + 100*time.Millisecond)
	assert.Equal(t, StateIdle, q.State())
	assert.Empty(t, q.Backlog())
}

func TestQueue_ViewCamera(t *testing.T) {
	q := newTestQueue()
	defer q.Shutdown()

	_, ok := q.ViewCamera()
	assert.False(t, ok)

	q.ShowForEvent(data.DomainEvent{Type: data.EventTypeTrafficHeavy, CameraID: "cam-3", CameraName: "Bridge"})
	id, ok := q.ViewCamera()
	assert.True(t, ok)
	assert.Equal(t, "cam-3", id)
	assert.Equal(t, StateIdle, q.State())
}

func TestQueue_OnChange(t *testing.T) {
	q := newTestQueue()
	defer q.Shutdown()

	var snaps []Snapshot
	q.OnChange(func(s Snapshot) { snaps = append(snaps, s) })

	q.Show(Alert{Title: "a"})
	q.Show(Alert{Title: "b"})
	q.Close()

	require.Len(t, snaps, 3)
	assert.Equal(t, StateShowing, snaps[0].State)
	assert.Equal(t, 1, snaps[1].Backlog)
	assert.Equal(t, StateIdle, snaps[2].State)
	assert.Equal(t, 1, snaps[2].Backlog, "pending promotion still counts as waiting")
}

func TestDerivation(t *testing.T) {
	q := newTestQueue()

	traffic := q.EventAlert(data.DomainEvent{Type: data.EventTypeTrafficHeavy, CameraName: "Gate"})
	assert.Equal(t, data.LevelWarning, traffic.Level)
	assert.Equal(t, 12*time.Second, traffic.AutoClose)

	generic := q.EventAlert(data.DomainEvent{Type: data.EventTypePerson, CameraName: "Gate"})
	assert.Equal(t, data.LevelInfo, generic.Level)
	assert.Equal(t, 8*time.Second, generic.AutoClose)

	fault := q.StatusAlert("cam-1", "Gate", data.CameraStatusOnline, data.CameraStatusError)
	assert.Equal(t, TitleConnectionError, fault.Title)
	assert.Contains(t, fault.Title, "connection error")
	assert.Equal(t, data.LevelError, fault.Level)
	assert.Equal(t, 15*time.Second, fault.AutoClose)

	offline := q.StatusAlert("cam-1", "Gate", data.CameraStatusOnline, data.CameraStatusOffline)
	assert.Equal(t, TitleConnectionError, offline.Title)

	restored := q.StatusAlert("cam-1", "Gate", data.CameraStatusError, data.CameraStatusOnline)
	assert.Equal(t, data.LevelSuccess, restored.Level)
	assert.Equal(t, 6*time.Second, restored.AutoClose)

	maint := q.StatusAlert("cam-1", "Gate", data.CameraStatusOnline, data.CameraStatusMaintenance)
	assert.Equal(t, "📹 Camera status change", maint.Title)
	assert.Equal(t, data.LevelInfo, maint.Level)

	custom := q.Show(Alert{Title: "override", AutoClose: 2 * time.Second})
	assert.Equal(t, custom, q.Current().ID)
	assert.Equal(t, int64(2000), q.Current().AutoCloseMs)
	q.Shutdown()
}

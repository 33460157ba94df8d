package cameras

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/metrics"
)

var (
	ErrInvalidStatus = errors.New("invalid camera status")
	ErrNotFound      = errors.New("camera not found")
)

// Backend is the subset of the REST client the store needs.
type Backend interface {
	ListCameras(ctx context.Context) ([]data.Camera, error)
	UpdateCameraStatus(ctx context.Context, id string, status data.CameraStatus) (data.Camera, error)
}

// Change sources
const (
	SourceRefresh = "refresh"
	SourceUpdate  = "update"
	SourcePush    = "push"
)

// StatusChange is emitted whenever a camera's status differs from what the store held.
type StatusChange struct {
	Camera data.Camera
	Old    data.CameraStatus
	New    data.CameraStatus
	Source string
}

type StatusObserver func(StatusChange)

// Store is the client-side view of every camera.
//
// Refresh replaces the list wholesale; push events and status updates patch a
// single camera. Writes are last-write-wins with no merging.
type Store struct {
	backend Backend
	log     *zap.Logger

	mu          sync.RWMutex
	cameras     []data.Camera
	index       map[string]int
	loading     bool
	lastErr     error
	lastUpdated time.Time
	observers   []StatusObserver

	refreshing atomic.Bool
	fetches    atomic.Int64

	quit   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStore(backend Backend, log *zap.Logger) *Store {
	return &Store{
		backend: backend,
		log:     log.With(zap.String("component", "camera_store")),
		index:   make(map[string]int),
	}
}

// OnStatusChange registers an observer. Observers run outside the store lock.
func (s *Store) OnStatusChange(fn StatusObserver) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Refresh fetches the full camera list. A call made while another refresh is in
// flight is skipped and returns nil. silent only suppresses the loading flag.
func (s *Store) Refresh(ctx context.Context, silent bool) error {
	if !s.refreshing.CompareAndSwap(false, true) {
		metrics.CameraRefreshTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	defer s.refreshing.Store(false)

	if !silent {
		s.mu.Lock()
		s.loading = true
		s.mu.Unlock()
	}

	start := time.Now()
	s.fetches.Add(1)
	cams, err := s.backend.ListCameras(ctx)
	metrics.CameraRefreshLatency.Observe(float64(time.Since(start).Milliseconds()))

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		metrics.CameraRefreshTotal.WithLabelValues("error").Inc()
		s.log.Warn("camera refresh failed", zap.Error(err), zap.Bool("silent", silent))
		return fmt.Errorf("refresh cameras: %w", err)
	}

	prev := make(map[string]data.CameraStatus, len(s.cameras))
	for _, c := range s.cameras {
		prev[c.ID] = c.Status
	}

	var changes []StatusChange
	for _, c := range cams {
		if old, ok := prev[c.ID]; ok && old != c.Status {
			changes = append(changes, StatusChange{Camera: c, Old: old, New: c.Status, Source: SourceRefresh})
		}
	}

	s.cameras = cams
	s.reindexLocked()
	s.lastErr = nil
	s.lastUpdated = time.Now()
	observers := s.observersLocked()
	s.mu.Unlock()

	metrics.CameraRefreshTotal.WithLabelValues("ok").Inc()
	s.log.Debug("cameras refreshed", zap.Int("count", len(cams)), zap.Int("status_changes", len(changes)))
	s.emit(observers, changes)
	return nil
}

// UpdateStatus applies a status mutation through the backend. On failure the
// store is left exactly as it was.
func (s *Store) UpdateStatus(ctx context.Context, id string, status data.CameraStatus) (data.Camera, error) {
	if !status.Valid() {
		return data.Camera{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	cam, err := s.backend.UpdateCameraStatus(ctx, id, status)
	if err != nil {
		s.log.Warn("camera status update failed", zap.String("camera_id", id), zap.String("status", string(status)), zap.Error(err))
		return data.Camera{}, fmt.Errorf("update camera %s status: %w", id, err)
	}
	if cam.ID == "" {
		cam.ID = id
	}

	s.mu.Lock()
	var changes []StatusChange
	if i, ok := s.index[cam.ID]; ok {
		old := s.cameras[i].Status
		s.cameras[i] = cam
		if old != cam.Status {
			changes = append(changes, StatusChange{Camera: cam, Old: old, New: cam.Status, Source: SourceUpdate})
		}
	} else {
		s.cameras = append(s.cameras, cam)
		s.index[cam.ID] = len(s.cameras) - 1
	}
	s.updateGaugesLocked()
	observers := s.observersLocked()
	s.mu.Unlock()

	s.emit(observers, changes)
	return cam, nil
}

// ApplyEvent patches the store from a pushed event. traffic_heavy forces the
// camera to WARNING; camera_status carries the new status in metaJson.
// Returns whether the store was touched.
func (s *Store) ApplyEvent(evt data.DomainEvent) bool {
	var status data.CameraStatus
	switch evt.Type {
	case data.EventTypeTrafficHeavy:
		status = data.CameraStatusWarning
	case data.EventTypeCameraStatus:
		status = evt.Meta().Status
		if !status.Valid() {
			return false
		}
	default:
		return false
	}
	return s.setStatus(evt.CameraID, status, SourcePush)
}

func (s *Store) setStatus(id string, status data.CameraStatus, source string) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		s.log.Debug("status for unknown camera ignored", zap.String("camera_id", id), zap.String("status", string(status)))
		return false
	}
	old := s.cameras[i].Status
	s.cameras[i].Status = status
	var changes []StatusChange
	if old != status {
		changes = append(changes, StatusChange{Camera: s.cameras[i], Old: old, New: status, Source: source})
	}
	s.updateGaugesLocked()
	observers := s.observersLocked()
	s.mu.Unlock()

	s.emit(observers, changes)
	return true
}

// Snapshot returns a copy of the camera list in backend order.
func (s *Store) Snapshot() []data.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]data.Camera, len(s.cameras))
	copy(out, s.cameras)
	return out
}

func (s *Store) GetByID(id string) (data.Camera, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.index[id]; ok {
		return s.cameras[i], true
	}
	return data.Camera{}, false
}

// CountsByStatus always lists the five known statuses. Unknown values get their
// own key so the total matches the camera count.
func (s *Store) CountsByStatus() map[data.CameraStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countsLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cameras)
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Store) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Fetches is the number of snapshot requests issued to the backend.
func (s *Store) Fetches() int64 {
	return s.fetches.Load()
}

func (s *Store) reindexLocked() {
	s.index = make(map[string]int, len(s.cameras))
	for i, c := range s.cameras {
		s.index[c.ID] = i
	}
	s.updateGaugesLocked()
}

func (s *Store) countsLocked() map[data.CameraStatus]int {
	counts := make(map[data.CameraStatus]int, len(data.AllCameraStatuses))
	for _, st := range data.AllCameraStatuses {
		counts[st] = 0
	}
	for _, c := range s.cameras {
		counts[c.Status]++
	}
	return counts
}

func (s *Store) updateGaugesLocked() {
	for st, n := range s.countsLocked() {
		if st.Valid() {
			metrics.CamerasByStatus.WithLabelValues(string(st)).Set(float64(n))
		}
	}
}

func (s *Store) observersLocked() []StatusObserver {
	out := make([]StatusObserver, len(s.observers))
	copy(out, s.observers)
	return out
}

func (s *Store) emit(observers []StatusObserver, changes []StatusChange) {
	for _, ch := range changes {
		s.log.Info("camera status changed",
			zap.String("camera_id", ch.Camera.ID),
			zap.String("from", string(ch.Old)),
			zap.String("to", string(ch.New)),
			zap.String("source", ch.Source),
		)
		for _, fn := range observers {
			fn(ch)
		}
	}
}

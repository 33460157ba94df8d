package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

const MsgSaveFailed = "Failed to save the camera."

var (
	ErrNoCatalog     = errors.New("camera catalog not configured")
	ErrInvalidCamera = errors.New("invalid camera")
)

// Catalog is the administrative side of the backend.
type Catalog interface {
	CreateCamera(ctx context.Context, in data.CameraInput) (data.Camera, error)
	UpdateCamera(ctx context.Context, id string, in data.CameraInput) (data.Camera, error)
	DeleteCamera(ctx context.Context, id string) error
	ListEvents(ctx context.Context) ([]data.DomainEvent, error)
	ListVideos(ctx context.Context) ([]data.Video, error)
}

func validateCamera(in data.CameraInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCamera)
	}
	if in.Lat < -90 || in.Lat > 90 || in.Lng < -180 || in.Lng > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidCamera)
	}
	return nil
}

// CreateCamera adds a camera and reconciles the store.
func (m *Monitor) CreateCamera(ctx context.Context, in data.CameraInput) (data.Camera, error) {
	if m.catalog == nil {
		return data.Camera{}, ErrNoCatalog
	}
	if err := validateCamera(in); err != nil {
		return data.Camera{}, err
	}
	cam, err := m.catalog.CreateCamera(ctx, in)
	if err != nil {
		m.notices.ShowError(MsgSaveFailed)
		return data.Camera{}, err
	}
	m.reconcile(ctx)
	m.notices.Show(fmt.Sprintf("Camera %s added.", cam.Name), data.LevelSuccess)
	return cam, nil
}

// EditCamera replaces a camera's settings. Status is not part of the input.
func (m *Monitor) EditCamera(ctx context.Context, id string, in data.CameraInput) (data.Camera, error) {
	if m.catalog == nil {
		return data.Camera{}, ErrNoCatalog
	}
	if err := validateCamera(in); err != nil {
		return data.Camera{}, err
	}
	cam, err := m.catalog.UpdateCamera(ctx, id, in)
	if err != nil {
		m.notices.ShowError(MsgSaveFailed)
		return data.Camera{}, err
	}
	m.reconcile(ctx)
	return cam, nil
}

func (m *Monitor) DeleteCamera(ctx context.Context, id string) error {
	if m.catalog == nil {
		return ErrNoCatalog
	}
	if err := m.catalog.DeleteCamera(ctx, id); err != nil {
		m.notices.ShowError(MsgSaveFailed)
		return err
	}
	m.detailMu.Lock()
	m.details.Remove(id)
	m.detailMu.Unlock()
	m.reconcile(ctx)
	return nil
}

func (m *Monitor) ListEvents(ctx context.Context) ([]data.DomainEvent, error) {
	if m.catalog == nil {
		return nil, ErrNoCatalog
	}
	return m.catalog.ListEvents(ctx)
}

func (m *Monitor) ListVideos(ctx context.Context) ([]data.Video, error) {
	if m.catalog == nil {
		return nil, ErrNoCatalog
	}
	return m.catalog.ListVideos(ctx)
}

// reconcile pulls the camera list after a catalog change. A failure only
// leaves the store stale until the next refresh.
func (m *Monitor) reconcile(ctx context.Context) {
	if err := m.store.Refresh(ctx, true); err != nil {
		m.log.Warn("camera reconcile failed", zap.Error(err))
	}
}

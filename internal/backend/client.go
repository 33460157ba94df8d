package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/config"
	"github.com/technosupport/ts-vms-monitor/internal/data"
)

const bodySampleLimit = 512

// Client talks to the camera platform REST API.
type Client struct {
	http          *resty.Client
	baseURL       string
	streamBaseURL string
	streamPath    string
	log           *zap.Logger
}

func NewClient(cfg config.BackendConfig, log *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.StreamPath == "" {
		cfg.StreamPath = "/events/stream"
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:          httpClient,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		streamBaseURL: strings.TrimRight(cfg.StreamBaseURL, "/"),
		streamPath:    cfg.StreamPath,
		log:           log.With(zap.String("component", "backend_client")),
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, query map[string]string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out).ForceContentType("application/json")
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.log.Warn("backend request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &RequestError{Op: op, Method: method, Path: path, Err: err}
	}

	c.log.Debug("backend request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("took", time.Since(start)),
	)

	if resp.IsError() {
		sample := resp.String()
		if len(sample) > bodySampleLimit {
			sample = sample[:bodySampleLimit]
		}
		re := &RequestError{Op: op, Method: method, Path: path, StatusCode: resp.StatusCode(), Body: sample, Err: ErrBadResponse}
		if resp.StatusCode() == http.StatusNotFound {
			re.Err = ErrNotFound
		}
		c.log.Warn("backend returned error",
			zap.String("op", op),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", sample),
		)
		return re
	}
	return nil
}

// Cameras

func (c *Client) ListCameras(ctx context.Context) ([]data.Camera, error) {
	var out []data.Camera
	err := c.do(ctx, "list_cameras", http.MethodGet, "/cameras", nil, nil, &out)
	return out, err
}

func (c *Client) GetCamera(ctx context.Context, id string) (data.Camera, error) {
	var out data.Camera
	err := c.do(ctx, "get_camera", http.MethodGet, "/cameras/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (c *Client) UpdateCameraStatus(ctx context.Context, id string, status data.CameraStatus) (data.Camera, error) {
	var out data.Camera
	err := c.do(ctx, "update_camera_status", http.MethodPut, "/cameras/"+url.PathEscape(id)+"/status",
		map[string]string{"status": string(status)}, nil, &out)
	return out, err
}

func (c *Client) CreateCamera(ctx context.Context, in data.CameraInput) (data.Camera, error) {
	var out data.Camera
	err := c.do(ctx, "create_camera", http.MethodPost, "/cameras", nil, in, &out)
	return out, err
}

func (c *Client) UpdateCamera(ctx context.Context, id string, in data.CameraInput) (data.Camera, error) {
	var out data.Camera
	err := c.do(ctx, "update_camera", http.MethodPut, "/cameras/"+url.PathEscape(id), nil, in, &out)
	return out, err
}

func (c *Client) DeleteCamera(ctx context.Context, id string) error {
	return c.do(ctx, "delete_camera", http.MethodDelete, "/cameras/"+url.PathEscape(id), nil, nil, nil)
}

// Events

func (c *Client) ListEvents(ctx context.Context) ([]data.DomainEvent, error) {
	var out []data.DomainEvent
	err := c.do(ctx, "list_events", http.MethodGet, "/events", nil, nil, &out)
	return out, err
}

func (c *Client) EventsByCamera(ctx context.Context, cameraID string) ([]data.DomainEvent, error) {
	var out []data.DomainEvent
	err := c.do(ctx, "events_by_camera", http.MethodGet, "/events/camera/"+url.PathEscape(cameraID), nil, nil, &out)
	return out, err
}

// SearchEvents runs the paginated, filtered event query.
func (c *Client) SearchEvents(ctx context.Context, f data.EventFilter) (data.EventPage, error) {
	var out data.EventPage
	err := c.do(ctx, "search_events", http.MethodGet, "/events", filterParams(f), nil, &out)
	return out, err
}

func filterParams(f data.EventFilter) map[string]string {
	q := map[string]string{"page": strconv.Itoa(f.Page)}
	if f.CameraID != "" {
		q["cameraId"] = f.CameraID
	}
	if f.EventType != "" {
		q["eventType"] = f.EventType
	}
	if f.StartDate != "" {
		q["startDate"] = f.StartDate
	}
	if f.EndDate != "" {
		q["endDate"] = f.EndDate
	}
	if f.Severity > 0 {
		q["severity"] = strconv.Itoa(f.Severity)
	}
	if f.Size > 0 {
		q["size"] = strconv.Itoa(f.Size)
	}
	return q
}

// Videos

func (c *Client) ListVideos(ctx context.Context) ([]data.Video, error) {
	var out []data.Video
	err := c.do(ctx, "list_videos", http.MethodGet, "/videos", nil, nil, &out)
	return out, err
}

// StreamURL is the live video resource for a camera. The monitor never fetches it.
func (c *Client) StreamURL(cameraID string) string {
	return c.streamBaseURL + "/stream/" + url.PathEscape(cameraID)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

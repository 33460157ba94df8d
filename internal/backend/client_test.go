package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/config"
	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/stream"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.BackendConfig{
		BaseURL:       srv.URL + "/api/",
		StreamBaseURL: "http://media:5001/",
		Timeout:       2 * time.Second,
	}, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func TestClient_Cameras(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cameras", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[{"id":"cam-1","name":"Gate","status":"ONLINE","lat":37.5,"lng":127.0,"createdAt":"2026-01-01T00:00:00","updatedAt":"2026-01-01T00:00:00"}]`)
	})
	mux.HandleFunc("PUT /api/cameras/cam-1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"cam-1","name":"Gate","status":"`+r.URL.Query().Get("status")+`"}`)
	})
	mux.HandleFunc("GET /api/cameras/missing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":"no such camera"}`)
	})
	mux.HandleFunc("DELETE /api/cameras/cam-9", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	cams, err := c.ListCameras(ctx)
	require.NoError(t, err)
	require.Len(t, cams, 1)
	assert.Equal(t, data.CameraStatusOnline, cams[0].Status)
	assert.Equal(t, data.Location{Lat: 37.5, Lng: 127.0}, cams[0].Location())

	updated, err := c.UpdateCameraStatus(ctx, "cam-1", data.CameraStatusMaintenance)
	require.NoError(t, err)
	assert.Equal(t, data.CameraStatusMaintenance, updated.Status)

	_, err = c.GetCamera(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	err = c.DeleteCamera(ctx, "cam-9")
	require.Error(t, err)
	var re *RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "delete_camera", re.Op)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestClient_SearchEvents(t *testing.T) {
	var got map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, r *http.Request) {
		got = map[string]string{}
		for k := range r.URL.Query() {
			got[k] = r.URL.Query().Get(k)
		}
		writeJSON(w, http.StatusOK, `{"content":[{"id":"e1","cameraId":"cam-1","type":"car"}],"totalElements":41,"totalPages":3,"size":20,"number":1}`)
	})
	c := newTestClient(t, mux)

	page, err := c.SearchEvents(context.Background(), data.EventFilter{CameraID: "cam-1", EventType: "car", Severity: 3, Page: 1, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(41), page.TotalElements)
	require.Len(t, page.Content, 1)
	assert.Equal(t, map[string]string{"cameraId": "cam-1", "eventType": "car", "severity": "3", "page": "1", "size": "20"}, got)
}

func TestClient_StreamURL(t *testing.T) {
	c := NewClient(config.BackendConfig{BaseURL: "http://backend/api", StreamBaseURL: "http://media:5001/"}, zap.NewNop())
	assert.Equal(t, "http://media:5001/stream/cam%201", c.StreamURL("cam 1"))
}

func TestEventStreamTransport(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events/stream", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\n\n")
		fmt.Fprint(w, "data: {\"id\":\"e1\",\"type\":\"person\"}\n\n")
		w.(http.Flusher).Flush()
	})
	c := newTestClient(t, mux)

	s, err := c.EventStream().Open(context.Background())
	require.NoError(t, err)
	defer s.Close()

	f, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, stream.FrameConnected, f.Event)

	f, err = s.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"e1","type":"person"}`, f.Data)

	_, err = s.Next()
	assert.ErrorIs(t, err, stream.ErrStreamEnded)
}

func TestEventStreamTransport_RejectedOpen(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events/stream", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	c := newTestClient(t, mux)

	_, err := c.EventStream().Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
}

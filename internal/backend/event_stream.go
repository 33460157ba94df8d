package backend

import (
	"context"
	"io"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/stream"
)

// EventStreamTransport dials the server-sent event endpoint.
// It implements stream.Transport.
type EventStreamTransport struct {
	http *resty.Client
	path string
	log  *zap.Logger
}

// EventStream returns a transport for the push channel. The underlying HTTP
// client has no overall timeout since the response body stays open indefinitely.
func (c *Client) EventStream() *EventStreamTransport {
	return &EventStreamTransport{
		http: resty.New().
			SetBaseURL(c.baseURL).
			SetHeader("Accept", "text/event-stream").
			SetHeader("Cache-Control", "no-cache"),
		path: c.streamPath,
		log:  c.log.With(zap.String("path", c.streamPath)),
	}
}

func (t *EventStreamTransport) Open(ctx context.Context) (stream.Stream, error) {
	resp, err := t.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(t.path)
	if err != nil {
		return nil, &RequestError{Op: "event_stream", Method: http.MethodGet, Path: t.path, Err: err}
	}

	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		sample := make([]byte, bodySampleLimit)
		n, _ := io.ReadFull(body, sample)
		body.Close()
		re := &RequestError{
			Op:         "event_stream",
			Method:     http.MethodGet,
			Path:       t.path,
			StatusCode: resp.StatusCode(),
			Body:       string(sample[:n]),
			Err:        ErrBadResponse,
		}
		if resp.StatusCode() == http.StatusNotFound {
			re.Err = ErrNotFound
		}
		return nil, re
	}

	t.log.Debug("event stream opened")
	return stream.NewSSEStream(body), nil
}

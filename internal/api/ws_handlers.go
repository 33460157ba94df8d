package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/metrics"
	"github.com/technosupport/ts-vms-monitor/internal/stream"
)

const (
	wsSendBuffer = 64
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsMessage is one frame sent to a WebSocket client.
type wsMessage struct {
	Type  string          `json:"type"` // event | page | channel
	Event *data.EventView `json:"event,omitempty"`
	Page  *pageView       `json:"page,omitempty"`
	State string          `json:"state,omitempty"`
}

// GET /api/v1/events/ws?mode=events|search&camera_id=&type=...
//
// events mode streams matching push events. search mode sends the first
// result page and a fresh page whenever a matching event re-runs the query.
// Slow clients lose frames rather than stall the hub.
func (h *Handler) ServeEventsWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilter(q, h.SearchPageSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode := q.Get("mode")
	if mode == "" {
		mode = "events"
	}
	if mode != "events" && mode != "search" {
		respondError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.WSClientsActive.Inc()
	defer metrics.WSClientsActive.Dec()

	log := h.Log.With(zap.String("remote", r.RemoteAddr), zap.String("mode", mode))
	log.Info("ws client connected")

	send := make(chan wsMessage, wsSendBuffer)
	offer := func(m wsMessage) {
		select {
		case send <- m:
		default:
			log.Debug("ws client slow, frame dropped", zap.String("type", m.Type))
		}
	}

	hub := h.Monitor.Hub()
	switch mode {
	case "events":
		token := hub.Subscribe(stream.ByFilter(f), stream.Subscriber{
			OnEvent: func(evt data.DomainEvent) {
				v := data.NewEventView(evt)
				offer(wsMessage{Type: "event", Event: &v})
			},
			OnOpen:  func() { offer(wsMessage{Type: "channel", State: stream.StateConnected.String()}) },
			OnError: func(error) { offer(wsMessage{Type: "channel", State: h.Monitor.ChannelStatus().State.String()}) },
		})
		defer hub.Unsubscribe(token)
	case "search":
		s := h.Monitor.NewSearch()
		defer s.Close()
		s.OnUpdate(func(p data.EventPage) {
			pv := newPageView(p)
			offer(wsMessage{Type: "page", Page: &pv})
		})
		page, err := s.Search(r.Context(), f)
		if err != nil {
			log.Warn("ws initial search failed", zap.Error(err))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "search failed"),
				time.Now().Add(wsWriteWait))
			return
		}
		pv := newPageView(page)
		offer(wsMessage{Type: "page", Page: &pv})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case m := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(m); err != nil {
				log.Debug("ws write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			log.Info("ws client disconnected")
			return
		}
	}
}

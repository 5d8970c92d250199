package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/camvision/internal/domain/vision"
	"github.com/matiasleandrokruk/camvision/internal/infra/eventbus"
)

const (
	wsWriteTimeout    = 5 * time.Second
	sseKeepAliveEvery = 15 * time.Second
)

// FeedHandler streams published replies and errors to HTTP clients.
type FeedHandler struct {
	bus      eventbus.EventBus
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewFeedHandler creates a FeedHandler over bus.
func NewFeedHandler(bus eventbus.EventBus, logger *zap.Logger) *FeedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the API binds to loopback by default; browsers on any local origin may connect
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

type feed struct {
	bus     eventbus.EventBus
	replies <-chan eventbus.Event
	errs    <-chan eventbus.Event
}

func (h *FeedHandler) subscribe() *feed {
	return &feed{
		bus:     h.bus,
		replies: h.bus.Subscribe(vision.TopicReply),
		errs:    h.bus.Subscribe(vision.TopicError),
	}
}

func (f *feed) close() {
	f.bus.Unsubscribe(vision.TopicReply, f.replies)
	f.bus.Unsubscribe(vision.TopicError, f.errs)
}

// Replies handles GET /api/v1/stream/replies as server-sent events.
func (h *FeedHandler) Replies(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(headerContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	f := h.subscribe()
	defer f.close()

	bw := bufio.NewWriter(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAliveEvery)
	defer keepAlive.Stop()

	for {
		var (
			evt  eventbus.Event
			open bool
		)
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(bw, ": keep-alive\n\n"); err != nil {
				return
			}
			_ = bw.Flush()
			flusher.Flush()
			continue
		case evt, open = <-f.replies:
		case evt, open = <-f.errs:
		}
		if !open {
			return
		}
		if err := writeSSE(bw, evt); err != nil {
			return
		}
		_ = bw.Flush()
		flusher.Flush()
	}
}

func writeSSE(bw *bufio.Writer, evt eventbus.Event) error {
	b, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(bw, "event: %s\ndata: %s\n\n", eventName(evt.Topic), b)
	return err
}

func eventName(topic string) string {
	if topic == vision.TopicError {
		return "error"
	}
	return "reply"
}

// RepliesWS handles GET /api/v1/stream/replies/ws, writing one JSON message per event.
func (h *FeedHandler) RepliesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close() //nolint:errcheck

	f := h.subscribe()
	defer f.close()

	// reads only detect the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		var (
			evt  eventbus.Event
			open bool
		)
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case evt, open = <-f.replies:
		case evt, open = <-f.errs:
		}
		if !open {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(evt.Payload); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

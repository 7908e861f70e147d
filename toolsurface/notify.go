package toolsurface

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// Hub fans tool-call lifecycle notifications out to subscribed
// WebSocket connections: a server-side broadcaster that heartbeats
// subscribers and drops notifications for slow readers instead of
// blocking on them.
type Hub struct {
	mu            sync.Mutex
	subscribers   map[chan notification]struct{}
	subscriberCap int
	logger        *zap.Logger
}

// HubConfig configures the notification hub.
type HubConfig struct {
	// SubscriberBufferSize bounds the per-connection outbound queue; a
	// notification that finds the queue full is dropped for that
	// subscriber rather than blocking publishers. Default 32.
	SubscriberBufferSize int
}

// NewHub builds a notification Hub.
func NewHub(cfg HubConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	cap := cfg.SubscriberBufferSize
	if cap <= 0 {
		cap = 32
	}
	return &Hub{
		subscribers:   make(map[chan notification]struct{}),
		subscriberCap: cap,
		logger:        logger.With(zap.String("component", "toolsurface.hub")),
	}
}

// publish fans a notification out to every current subscriber,
// dropping it for any subscriber whose channel is full rather than
// blocking the tool call that produced it. A nil Hub is a valid no-op,
// so CallTool can publish unconditionally when no hub is wired.
func (h *Hub) publish(n notification) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- n:
		default:
			h.logger.Warn("dropping notification for slow subscriber", zap.String("event", n.Event))
		}
	}
}

func (h *Hub) subscribe() chan notification {
	ch := make(chan notification, h.subscriberCap)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan notification) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
	close(ch)
}

// ServeWS upgrades the connection and streams tool-call notifications
// to it until the client disconnects or the request context is
// cancelled. It sends a heartbeat ping on an interval so a dead peer is
// detected instead of leaking the subscription forever.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return conn.Close(websocket.StatusNormalClosure, "context cancelled")
		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.logger.Debug("websocket heartbeat failed, closing subscriber", zap.Error(err))
				return nil
			}
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, n)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

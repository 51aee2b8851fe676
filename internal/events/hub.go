package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hr-voice-lab/internal/logging"
)

const (
	subscriberBuffer = 32
	writeWait        = 5 * time.Second
)

// Hub relays events to websocket monitors subscribed to a call. Slow
// subscribers lose events rather than blocking the call.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]map[chan Event]struct{}
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan Event]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe registers interest in callSID. The returned cancel func must be
// called to release the subscription.
func (h *Hub) Subscribe(callSID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs[callSID] == nil {
		h.subs[callSID] = make(map[chan Event]struct{})
	}
	h.subs[callSID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[callSID], ch)
			if len(h.subs[callSID]) == 0 {
				delete(h.subs, callSID)
			}
			h.mu.Unlock()
		})
	}
}

// Emit implements Sink. It never blocks and never fails.
func (h *Hub) Emit(ctx context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.CallSID] {
		select {
		case ch <- ev:
		default:
			logging.Debugw("events: monitor buffer full, dropping event", "call.sid", ev.CallSID, "kind", ev.Kind)
		}
	}
	return nil
}

func (h *Hub) Subscribers(callSID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[callSID])
}

// ServeWS upgrades the request and streams events for callSID as JSON text
// frames until the client goes away or the call ends.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, callSID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("events: websocket upgrade failed", "call.sid", callSID, "err", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.Subscribe(callSID)
	defer cancel()

	// The read loop only exists to notice the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logging.Debugw("events: monitor attached", "call.sid", callSID)
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logging.Debugw("events: monitor write failed", "call.sid", callSID, "err", err)
				return
			}
			if ev.Kind == KindEnded {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"),
					time.Now().Add(writeWait))
				return
			}
		}
	}
}

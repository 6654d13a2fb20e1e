package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/websocket"

	"dinedesk/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

type topic struct {
	restaurantID string
	channel      Channel
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub fans change envelopes out to websocket subscribers of one restaurant and channel.
type Hub struct {
	mu       sync.RWMutex
	topics   map[topic]map[*subscriber]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		topics: make(map[topic]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Publish marshals record and delivers it to every subscriber of the topic.
// Subscribers whose buffer is full are disconnected; they resync on reconnect.
func (h *Hub) Publish(restaurantID string, channel Channel, action Action, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}

	msg := Envelope{
		Channel:      channel,
		Action:       action,
		RestaurantID: restaurantID,
		Record:       raw,
		At:           h.now(),
	}.Encode()

	t := topic{restaurantID: restaurantID, channel: channel}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.topics[t] {
		select {
		case sub.send <- msg:
		default:
			h.logger.Warn("Dropping slow realtime subscriber", "restaurant_id", restaurantID, "channel", channel)
			h.removeLocked(t, sub)
		}
	}
	return nil
}

// Subscribers returns the number of live subscribers of a topic.
func (h *Hub) Subscribers(restaurantID string, channel Channel) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic{restaurantID: restaurantID, channel: channel}])
}

// ServeWS upgrades the request and streams the topic until the peer goes away.
// Authorization is the caller's job.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, restaurantID string, channel Channel) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	t := topic{restaurantID: restaurantID, channel: channel}
	sub := &subscriber{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	if h.topics[t] == nil {
		h.topics[t] = make(map[*subscriber]struct{})
	}
	h.topics[t][sub] = struct{}{}
	h.mu.Unlock()

	metrics.RealtimeSubscribers.WithLabelValues(string(channel)).Inc()
	h.logger.Info("Realtime subscriber connected", "restaurant_id", restaurantID, "channel", channel)

	go h.writePump(sub)
	h.readPump(t, sub)
}

func (h *Hub) remove(t topic, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(t, sub)
}

func (h *Hub) removeLocked(t topic, sub *subscriber) {
	subs, ok := h.topics[t]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.topics, t)
	}
	sub.close()
	metrics.RealtimeSubscribers.WithLabelValues(string(t.channel)).Dec()
}

// readPump only serves control frames; the feed is one-directional.
func (h *Hub) readPump(t topic, sub *subscriber) {
	defer func() {
		h.remove(t, sub)
		_ = sub.conn.Close()
		h.logger.Info("Realtime subscriber disconnected", "restaurant_id", t.restaurantID, "channel", t.channel)
	}()

	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

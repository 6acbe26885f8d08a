package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/additionsec/as-gateway/collector/internal/api"
	"github.com/additionsec/as-gateway/collector/internal/store"
)

const (
	writeTimeout = 10 * time.Second

	// pongWait is how long a client may stay silent before it is dropped.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	sendBufSize = 16

	// FeedSize caps the summaries carried by one "reports" event.
	FeedSize = 50
)

// Event names.
const (
	EventReports = "reports"
	EventReport  = "report"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Feed is the payload of a "reports" event.
type Feed struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Count       int                 `json:"count"`
	Reports     []api.ReportSummary `json:"reports"`
}

// Hub fans report summaries out to WebSocket clients.
type Hub struct {
	store    store.Store
	interval time.Duration
	gauge    prometheus.Gauge

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Option configures a Hub.
type Option func(*Hub)

// WithClientGauge tracks the connected client count in g.
func WithClientGauge(g prometheus.Gauge) Option {
	return func(h *Hub) { h.gauge = g }
}

// New creates a Hub that reads from st and broadcasts every interval.
func New(st store.Store, interval time.Duration, opts ...Option) *Hub {
	h := &Hub{
		store:    st,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run broadcasts the feed every interval until ctx is cancelled, then closes
// all connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			data, err := h.feedMessage()
			if err != nil {
				slog.Warn("ws: build feed failed", "err", err)
				continue
			}
			h.broadcast(data)
		}
	}
}

// Publish sends a "report" event for e to every client.
func (h *Hub) Publish(e *store.Entry) {
	data, err := json.Marshal(Message{Event: EventReport, Data: api.Summarize(e)})
	if err != nil {
		return
	}
	h.broadcast(data)
}

// ServeHTTP upgrades the connection, sends the current feed, then streams
// events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	if data, err := h.feedMessage(); err == nil {
		c.send <- data
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.setGauge()
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.setGauge()
	}
	h.mu.Unlock()
}

// setGauge must be called with mu held.
func (h *Hub) setGauge() {
	if h.gauge != nil {
		h.gauge.Set(float64(len(h.clients)))
	}
}

func (h *Hub) broadcast(data []byte) {
	var slow []*client

	// Sends happen under the read lock so unregister cannot close a channel
	// mid-send.
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Debug("ws: dropping slow client", "remote", c.conn.RemoteAddr().String())
		h.unregister(c)
	}
}

func (h *Hub) feedMessage() ([]byte, error) {
	entries, err := h.store.List()
	if err != nil {
		return nil, err
	}
	feed := Feed{
		GeneratedAt: time.Now().UTC(),
		Count:       len(entries),
		Reports:     make([]api.ReportSummary, 0, min(len(entries), FeedSize)),
	}
	for i, e := range entries {
		if i == FeedSize {
			break
		}
		feed.Reports = append(feed.Reports, api.Summarize(e))
	}
	return json.Marshal(Message{Event: EventReports, Data: feed})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.setGauge()
}

// writePump forwards queued messages and pings. One goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles control frames and returns when the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

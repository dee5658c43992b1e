package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/speechstudio/internal/observe"
	"github.com/MrWong99/speechstudio/pkg/visual"
)

// writeTimeout bounds a single WebSocket write to a slow client.
const writeTimeout = 2 * time.Second

// defaultClientBuffer is the number of messages queued per client before
// frames are dropped for that client.
const defaultClientBuffer = 8

// frameMessage is the wire form of a [visual.Frame]. Bins are sent as
// numbers rather than base64 so browsers can use them directly.
type frameMessage struct {
	Seq    uint64       `json:"seq"`
	Bins   []int        `json:"bins"`
	Bars   []visual.Bar `json:"bars"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
}

// clearMessage tells clients to blank their canvas.
type clearMessage struct {
	Clear bool `json:"clear"`
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithOriginPatterns allows cross-origin WebSocket clients matching patterns,
// e.g. "localhost:*".
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = patterns }
}

// WithClientBuffer sets the per-client queue length.
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubLogger sets the hub's logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.log = l }
}

// WithHubMetrics sets the metrics used to track connected clients.
func WithHubMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// Hub is a [visual.Sink] that broadcasts frames to WebSocket clients. A
// client that cannot keep up loses frames rather than slowing the feed.
type Hub struct {
	origins []string
	buffer  int
	log     *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	send chan []byte
	done chan struct{}
}

var _ visual.Sink = (*Hub)(nil)

// NewHub returns a hub with no clients.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		buffer:  defaultClientBuffer,
		log:     slog.Default(),
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		// A no-op provider never fails to create instruments.
		h.metrics, _ = observe.NewMetrics(noop.NewMeterProvider())
	}
	return h
}

// Frame broadcasts f to every client.
func (h *Hub) Frame(f visual.Frame) {
	bins := make([]int, len(f.Bins))
	for i, b := range f.Bins {
		bins[i] = int(b)
	}
	h.broadcast(frameMessage{Seq: f.Seq, Bins: bins, Bars: f.Bars, Width: f.Width, Height: f.Height}, false)
}

// Clear tells every client to blank its canvas.
func (h *Hub) Clear() {
	h.broadcast(clearMessage{Clear: true}, true)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.done)
		delete(h.clients, c)
	}
}

// ServeHTTP upgrades the request and streams messages until the client goes
// away. Messages sent by the client are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Debug("web: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	c := &client{send: make(chan []byte, h.buffer), done: make(chan struct{})}
	if !h.add(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.remove(c)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case msg := <-c.send:
			if err := write(ctx, conn, msg); err != nil {
				h.log.Debug("web: websocket write failed", "err", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.VisualizerClients.Add(context.Background(), 1)
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
	}
	h.metrics.VisualizerClients.Add(context.Background(), -1)
}

// broadcast queues v for every client. When evict is set and a queue is
// full, the oldest queued message makes room so v is never lost.
func (h *Hub) broadcast(v any, evict bool) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Error("web: encode visualizer message", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
			continue
		default:
		}
		if !evict {
			continue
		}
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

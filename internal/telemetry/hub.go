package telemetry

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/logging"
)

const (
	// Message types published on the feed.
	TypeHello    = "hello"
	TypeDelivery = "delivery"
	TypeLanding  = "landing"
	TypeRetired  = "retired"
	TypeFrame    = "frame"

	sendBuffer   = 256
	writeTimeout = 5 * time.Second
)

// DefaultPingInterval keeps idle viewers from timing out behind proxies.
const DefaultPingInterval = 30 * time.Second

// Envelope is the JSON shape of every message sent to viewers.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Hub fans delivery events out to websocket viewers. Viewers are read-only:
// anything they send is discarded. Slow viewers are dropped.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	log          *logging.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	closed  bool
}

// Option customises a Hub.
type Option func(*Hub)

// WithPingInterval overrides DefaultPingInterval.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *logging.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

// NewHub constructs an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: DefaultPingInterval,
		log:          logging.L(),
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Clients reports the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast encodes payload under kind and queues it for every viewer.
func (h *Hub) Broadcast(kind string, payload any) error {
	msg, err := encode(kind, payload)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	if kind == TypeDelivery {
		h.last = msg
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("dropping slow telemetry viewer", logging.String("client", c.id))
			h.removeLocked(c)
		}
	}
	return nil
}

func encode(kind string, payload any) ([]byte, error) {
	env := Envelope{Type: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// removeLocked closes the client's queue once. Callers hold h.mu.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// ServeHTTP upgrades the request and registers the viewer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("telemetry upgrade failed", logging.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), id: r.RemoteAddr}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	hello, _ := encode(TypeHello, map[string]any{"client": c.id})
	c.send <- hello
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()
	h.log.Debug("telemetry viewer connected", logging.String("client", c.id))

	go h.readLoop(c)
	go h.writeLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
		_ = c.conn.Close()
	}()
	for {
		//1.- Drain control frames; viewer payloads carry no commands.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.log.Debug("telemetry viewer disconnected", logging.String("client", c.id), logging.Error(err))
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every viewer and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// DeliveryStarted implements bowling.Observer.
func (h *Hub) DeliveryStarted(d bowling.Delivery) { h.publish(TypeDelivery, d) }

// BallLanded implements bowling.Observer.
func (h *Hub) BallLanded(l bowling.Landing) { h.publish(TypeLanding, l) }

// BallRetired implements bowling.Observer.
func (h *Hub) BallRetired(r bowling.Retirement) { h.publish(TypeRetired, r) }

func (h *Hub) publish(kind string, payload any) {
	if err := h.Broadcast(kind, payload); err != nil {
		h.log.Warn("telemetry encode failed", logging.String("type", kind), logging.Error(err))
	}
}

var _ bowling.Observer = (*Hub)(nil)

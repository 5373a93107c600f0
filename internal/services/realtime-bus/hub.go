package bus

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
)

var (
	mConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bus_connections",
		Help: "Live websocket connections on this instance.",
	})
	mDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_deliveries_total",
		Help: "Events queued to a connection, by event.",
	}, []string{"event"})
	mDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_slow_consumers_dropped_total",
		Help: "Connections dropped because their outbound buffer was full.",
	})
)

// Message is the frame written to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client is one live connection and the rooms it joined at handshake.
type Client struct {
	ID     string
	UserID int64
	Rooms  []string

	send      chan []byte
	closed    bool
	closeCode int
}

func NewClient(userID int64, rooms []string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Rooms:  rooms,
		send:   make(chan []byte, buffer),
	}
}

// Send is closed when the hub lets go of the client.
func (c *Client) Send() <-chan []byte { return c.send }

// CloseCode is the websocket close code to send once Send is closed.
func (c *Client) CloseCode() int { return c.closeCode }

// Hub tracks room memberships of the connections on this instance.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	conns map[*Client]struct{}
	log   *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		conns: make(map[*Client]struct{}),
		log:   obs.Component(log, "bus.hub"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
	for _, room := range c.Rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
	mConnections.Inc()
	h.log.Debug("client registered", zap.String("conn_id", c.ID), zap.Int64("user_id", c.UserID), zap.Strings("rooms", c.Rooms))
}

// Unregister removes every membership of c and closes its send channel. It is
// safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, websocket.CloseNormalClosure)
}

func (h *Hub) removeLocked(c *Client, code int) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	delete(h.conns, c)
	for _, room := range c.Rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.send)
	mConnections.Dec()
}

// Broadcast queues the event once to every client that joined any of rooms
// and returns how many clients got it. Clients with a full buffer are dropped.
func (h *Hub) Broadcast(event string, data any, rooms []string) (int, error) {
	frame, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", event, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make(map[*Client]struct{})
	for _, room := range rooms {
		for c := range h.rooms[room] {
			targets[c] = struct{}{}
		}
	}

	delivered := 0
	for c := range targets {
		select {
		case c.send <- frame:
			delivered++
		default:
			mDropped.Inc()
			h.log.Warn("slow consumer dropped", zap.String("conn_id", c.ID), zap.Int64("user_id", c.UserID))
			h.removeLocked(c, websocket.ClosePolicyViolation)
		}
	}
	mDelivered.WithLabelValues(event).Add(float64(delivered))
	return delivered, nil
}

func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close drops every client with a going-away close code.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		h.removeLocked(c, websocket.CloseGoingAway)
	}
}

package quotes

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MiaoJiyu/mini-biz-sim/internal/services"
)

const queueSize = 256

type outbound struct {
	topic   Topic
	userID  string
	payload []byte
}

// Hub fans messages out to connected clients. All client bookkeeping happens
// on the Run goroutine; publishers only enqueue and never block.
type Hub struct {
	log *zap.SugaredLogger

	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	direct     chan outbound
	done       chan struct{}

	clients map[*Client]struct{}
	byUser  map[string]map[*Client]struct{}

	mu     sync.RWMutex
	latest map[Topic][]byte

	connected atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a Hub. Call Run before serving clients.
func NewHub(log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, queueSize),
		direct:     make(chan outbound, queueSize),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		byUser:     make(map[string]map[*Client]struct{}),
		latest:     make(map[Topic][]byte),
	}
}

// Run is the hub loop. It returns when ctx is cancelled, closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return

		case c := <-h.register:
			h.add(c)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.wants(msg.topic) {
					h.deliver(c, msg.payload)
				}
			}

		case msg := <-h.direct:
			for c := range h.byUser[msg.userID] {
				if c.wants(msg.topic) {
					h.deliver(c, msg.payload)
				}
			}
		}
	}
}

func (h *Hub) add(c *Client) {
	h.clients[c] = struct{}{}
	if c.userID != "" {
		if h.byUser[c.userID] == nil {
			h.byUser[c.userID] = make(map[*Client]struct{})
		}
		h.byUser[c.userID][c] = struct{}{}
	}
	h.connected.Add(1)

	// replay the latest market state so new clients do not wait a cycle
	h.mu.RLock()
	for _, topic := range []Topic{TopicSnapshot, TopicMovers} {
		if payload, ok := h.latest[topic]; ok && c.wants(topic) {
			h.deliver(c, payload)
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if set := h.byUser[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	close(c.send)
	h.connected.Add(-1)
}

// deliver never blocks the hub: a client whose buffer is full is dropped.
func (h *Hub) deliver(c *Client, payload []byte) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
		h.log.Warnw("dropping slow websocket client", "user_id", c.userID)
		h.remove(c)
	}
}

// Broadcast sends data on topic to every subscribed client. The latest
// message per topic is kept for clients that connect later.
func (h *Hub) Broadcast(topic Topic, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Errorw("failed to encode broadcast", "topic", topic, "error", err)
		return
	}
	now := time.Now()

	payload, err := encode(TypeUpdate, topic, json.RawMessage(raw), now)
	if err != nil {
		h.log.Errorw("failed to encode broadcast", "topic", topic, "error", err)
		return
	}
	if initial, err := encode(TypeInitial, topic, json.RawMessage(raw), now); err == nil {
		h.mu.Lock()
		h.latest[topic] = initial
		h.mu.Unlock()
	}

	h.enqueue(h.broadcast, outbound{topic: topic, payload: payload})
}

// SendToUser sends data on topic to the clients of one user only.
func (h *Hub) SendToUser(userID string, topic Topic, data any) {
	if userID == "" {
		return
	}
	payload, err := encode(TypeUpdate, topic, data, time.Now())
	if err != nil {
		h.log.Errorw("failed to encode direct message", "topic", topic, "error", err)
		return
	}
	h.enqueue(h.direct, outbound{topic: topic, userID: userID, payload: payload})
}

// PublishTradeConfirmation delivers an execution result to its user.
func (h *Hub) PublishTradeConfirmation(userID string, result *services.TradeResult) {
	h.SendToUser(userID, TopicTrades, result)
}

func (h *Hub) enqueue(ch chan outbound, msg outbound) {
	select {
	case ch <- msg:
	default:
		h.dropped.Add(1)
		h.log.Warnw("hub queue full, message dropped", "topic", msg.topic)
	}
}

// Serve registers a connection for userID and starts its pumps. It returns
// immediately; the pumps own the connection from here on.
func (h *Hub) Serve(conn *websocket.Conn, userID string) {
	c := newClient(h, conn, userID)
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int64 {
	return h.connected.Load()
}

// Dropped returns how many messages were discarded because the hub queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

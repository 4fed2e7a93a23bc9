package quotes

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one WebSocket connection. A client starts subscribed to every
// topic and narrows the set with a subscribe command.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string

	mu     sync.RWMutex
	topics map[Topic]bool
}

func newClient(h *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, queueSize),
		userID: userID,
		topics: map[Topic]bool{
			TopicSnapshot: true,
			TopicMovers:   true,
			TopicTrades:   true,
		},
	}
}

func (c *Client) wants(t Topic) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[t]
}

// subscribe replaces the topic set. Unknown topics are ignored.
func (c *Client) subscribe(topics []Topic) {
	next := make(map[Topic]bool, len(topics))
	for _, t := range topics {
		if validTopic(t) {
			next[t] = true
		}
	}
	c.mu.Lock()
	c.topics = next
	c.mu.Unlock()
}

// readPump watches the connection and applies subscribe commands.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Infow("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.log.Infow("invalid client command, disconnecting", "user_id", c.userID, "error", err)
			return
		}
		if cmd.Command == "subscribe" {
			c.subscribe(cmd.Topics)
		}
	}
}

// writePump drains the send buffer and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Infow("websocket write error", "user_id", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

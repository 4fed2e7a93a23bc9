// Package quotes pushes market data and trade confirmations to WebSocket
// clients.
package quotes

import (
	"encoding/json"
	"time"
)

// Topic names a stream a client can subscribe to.
type Topic string

const (
	TopicSnapshot Topic = "quotes.snapshot"
	TopicMovers   Topic = "quotes.movers"
	TopicTrades   Topic = "trades.confirmations"
)

// Message types.
const (
	TypeInitial = "INITIAL"
	TypeUpdate  = "UPDATE"
	TypeError   = "ERROR"
)

// Envelope is the frame written to clients.
type Envelope struct {
	Type      string    `json:"type"`
	Topic     Topic     `json:"topic"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// command is what clients send to change their subscriptions.
type command struct {
	Command string  `json:"command"`
	Topics  []Topic `json:"topics"`
}

func validTopic(t Topic) bool {
	switch t {
	case TopicSnapshot, TopicMovers, TopicTrades:
		return true
	}
	return false
}

func encode(typ string, topic Topic, data any, at time.Time) ([]byte, error) {
	return json.Marshal(Envelope{Type: typ, Topic: topic, Data: data, Timestamp: at.UTC()})
}

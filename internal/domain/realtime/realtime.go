// Package realtime defines the pub/sub transport used to push events and
// transient typing/turn signals to connected clients. Delivery is
// at-least-once, best effort; the event log stays the source of truth.
package realtime

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_broadcaster.go -package=mocks . Broadcaster

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClientNotFound = errors.New("realtime client not found")
	ErrChannelFull    = errors.New("realtime client channel full")
)

// Well-known event names published on conversation channels.
const (
	EventMessage = "message"
	EventTyping  = "typing"
	EventTurn    = "turn"
	EventRefresh = "refresh"
)

// ConversationChannel names the per-conversation channel.
func ConversationChannel(conversationID uuid.UUID) string {
	return "conversation-" + conversationID.String()
}

// Broadcaster publishes a named event to every subscriber of a channel.
type Broadcaster interface {
	Publish(channel, event string, payload json.RawMessage) error
}

// Message is one frame pushed to a subscriber.
type Message struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a broadcast frame.
func NewMessage(channel, event string, data json.RawMessage) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Channel:   channel,
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Client is one active subscriber connection.
type Client struct {
	ClientID    string
	Channels    []string
	ConnectedAt time.Time
	MessageChan chan *Message
}

// NewClient creates a subscriber for the given channels.
func NewClient(clientID string, channels []string) *Client {
	return &Client{
		ClientID:    clientID,
		Channels:    channels,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *Message, 100),
	}
}

// Subscribed reports whether the client listens on channel.
func (c *Client) Subscribed(channel string) bool {
	for _, ch := range c.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}

// Close shuts the client's message stream.
func (c *Client) Close() {
	close(c.MessageChan)
}

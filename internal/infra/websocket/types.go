// Package websocket pushes scan status changes to connected browsers. Every
// connection is bound to one organization and only sees that organization's
// events.
package websocket

import (
	"encoding/json"
	"strings"
	"time"
)

// MessageType defines the type of WebSocket message.
type MessageType string

const (
	// Client -> Server messages
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"

	// Server -> Client messages
	MessageTypePong         MessageType = "pong"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribed MessageType = "unsubscribed"
	MessageTypeEvent        MessageType = "event"
	MessageTypeError        MessageType = "error"
)

// Message is the envelope for every frame in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Event     string          `json:"event,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage creates a new message with current timestamp.
func NewMessage(msgType MessageType) *Message {
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithChannel sets the channel for the message.
func (m *Message) WithChannel(channel string) *Message {
	m.Channel = channel
	return m
}

// WithData sets the data for the message.
func (m *Message) WithData(data any) *Message {
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			m.Data = b
		}
	}
	return m
}

// WithRequestID sets the request ID for the message.
func (m *Message) WithRequestID(id string) *Message {
	m.RequestID = id
	return m
}

// SubscribeRequest is the payload of subscribe and unsubscribe messages.
type SubscribeRequest struct {
	Channel   string `json:"channel"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorData represents error information sent to client.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is something that happened inside an organization.
type Event struct {
	// Name is the event name, e.g. "scan.completed".
	Name string
	// Channels the event belongs to, e.g. "scan:<id>" and "workspace:<id>".
	Channels []string
	Data     any
}

// ChannelType represents the type of channel.
type ChannelType string

const (
	ChannelTypeScan       ChannelType = "scan"       // scan:{id}
	ChannelTypeWorkspace  ChannelType = "workspace"  // workspace:{id}
	ChannelTypeRepository ChannelType = "repository" // repository:{id}
)

// ParseChannel extracts the channel type and ID from a channel string.
func ParseChannel(channel string) (ChannelType, string) {
	typ, id, ok := strings.Cut(channel, ":")
	if !ok {
		return "", channel
	}
	return ChannelType(typ), id
}

// MakeChannel creates a channel string from type and ID.
func MakeChannel(channelType ChannelType, id string) string {
	return string(channelType) + ":" + id
}

func validChannel(channel string) bool {
	typ, id := ParseChannel(channel)
	if id == "" {
		return false
	}
	switch typ {
	case ChannelTypeScan, ChannelTypeWorkspace, ChannelTypeRepository:
		return true
	}
	return false
}

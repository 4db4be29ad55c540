package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openctemio/reposcan/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	maxSubscriptionsPerClient = 50
	sendBufferSize            = 64
)

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *logger.Logger

	ID     string
	UserID string
	OrgID  string

	// An empty set means every event of the organization.
	subscriptions map[string]struct{}
	subMu         sync.RWMutex

	closed bool
	mu     sync.Mutex
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, conn *websocket.Conn, userID, orgID string, log *logger.Logger) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		logger:        log,
		ID:            uuid.NewString(),
		UserID:        userID,
		OrgID:         orgID,
		subscriptions: make(map[string]struct{}),
	}
}

// Subscribe adds a channel subscription. It returns false when the limit is
// reached.
func (c *Client) Subscribe(channel string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if _, ok := c.subscriptions[channel]; ok {
		return true
	}
	if len(c.subscriptions) >= maxSubscriptionsPerClient {
		c.logger.Warn("subscription limit exceeded", "client_id", c.ID, "max", maxSubscriptionsPerClient)
		return false
	}
	c.subscriptions[channel] = struct{}{}
	return true
}

// Unsubscribe removes a channel subscription.
func (c *Client) Unsubscribe(channel string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subscriptions, channel)
}

// wants reports whether the client should receive an event on channels and
// which channel to label it with.
func (c *Client) wants(channels []string) (string, bool) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subscriptions) == 0 {
		if len(channels) > 0 {
			return channels[0], true
		}
		return "", true
	}
	for _, ch := range channels {
		if _, ok := c.subscriptions[ch]; ok {
			return ch, true
		}
	}
	return "", false
}

// SendMessage queues a message. Slow clients lose messages rather than stall
// the hub; the return value reports whether it was queued.
func (c *Client) SendMessage(msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("client send buffer full, dropping message", "client_id", c.ID, "user_id", c.UserID)
		return false
	}
}

// Close closes the client connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// ReadPump reads client messages until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "client_id", c.ID, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("INVALID_MESSAGE", "Invalid message format", "")
			continue
		}
		c.handleMessage(&msg)
	}
}

// WritePump writes queued messages and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		c.handleSubscription(msg)
	case MessageTypePing:
		c.SendMessage(NewMessage(MessageTypePong).WithRequestID(msg.RequestID))
	default:
		c.sendError("UNKNOWN_MESSAGE_TYPE", "Unknown message type: "+string(msg.Type), msg.RequestID)
	}
}

func (c *Client) handleSubscription(msg *Message) {
	req := SubscribeRequest{Channel: msg.Channel, RequestID: msg.RequestID}
	if len(msg.Data) > 0 {
		_ = json.Unmarshal(msg.Data, &req)
	}
	if !validChannel(req.Channel) {
		c.sendError("INVALID_CHANNEL", "Unknown or malformed channel", req.RequestID)
		return
	}

	reply := MessageTypeSubscribed
	if msg.Type == MessageTypeUnsubscribe {
		c.Unsubscribe(req.Channel)
		reply = MessageTypeUnsubscribed
	} else if !c.Subscribe(req.Channel) {
		c.sendError("TOO_MANY_SUBSCRIPTIONS", "Subscription limit reached", req.RequestID)
		return
	}

	c.SendMessage(NewMessage(reply).WithChannel(req.Channel).WithRequestID(req.RequestID))
}

func (c *Client) sendError(code, message, requestID string) {
	c.SendMessage(NewMessage(MessageTypeError).
		WithData(ErrorData{Code: code, Message: message}).
		WithRequestID(requestID))
}

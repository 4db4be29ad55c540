package websocket

import (
	"context"
	"sync"

	"github.com/openctemio/reposcan/pkg/logger"
)

const (
	maxConnectionsPerUser = 10
	publishBufferSize     = 256
)

// Hub maintains the set of active clients and fans events out to them.
type Hub struct {
	// orgID -> clients
	orgs           map[string]map[*Client]struct{}
	userConnCounts map[string]int

	publish    chan published
	register   chan *Client
	unregister chan *Client

	logger *logger.Logger
	mu     sync.RWMutex
}

type published struct {
	orgID string
	event Event
}

// NewHub creates a new Hub. Call Run to start it.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		orgs:           make(map[string]map[*Client]struct{}),
		userConnCounts: make(map[string]int),
		publish:        make(chan published, publishBufferSize),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		logger:         log.With("component", "ws_hub"),
	}
}

// Run starts the hub's main loop and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopping")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case p := <-h.publish:
			h.deliver(p)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	count := h.userConnCounts[client.UserID]
	if count >= maxConnectionsPerUser {
		h.mu.Unlock()
		h.logger.Warn("connection limit exceeded", "user_id", client.UserID, "max", maxConnectionsPerUser)
		client.Close()
		return
	}
	h.userConnCounts[client.UserID] = count + 1
	if h.orgs[client.OrgID] == nil {
		h.orgs[client.OrgID] = make(map[*Client]struct{})
	}
	h.orgs[client.OrgID][client] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("client registered", "client_id", client.ID, "user_id", client.UserID, "org_id", client.OrgID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if clients, ok := h.orgs[client.OrgID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.orgs, client.OrgID)
			}
			if n := h.userConnCounts[client.UserID] - 1; n > 0 {
				h.userConnCounts[client.UserID] = n
			} else {
				delete(h.userConnCounts, client.UserID)
			}
		}
	}
	h.mu.Unlock()

	h.logger.Debug("client unregistered", "client_id", client.ID, "user_id", client.UserID)
}

// RegisterClient registers a new client.
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient unregisters a client.
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// Publish queues an event for every client of orgID. It never blocks; when
// the queue is full the event is dropped and logged.
func (h *Hub) Publish(orgID string, event Event) {
	select {
	case h.publish <- published{orgID: orgID, event: event}:
	default:
		h.logger.Warn("publish queue full, dropping event", "org_id", orgID, "event", event.Name)
	}
}

func (h *Hub) deliver(p published) {
	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.orgs[p.orgID]))
	for client := range h.orgs[p.orgID] {
		recipients = append(recipients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range recipients {
		channel, ok := client.wants(p.event.Channels)
		if !ok {
			continue
		}
		msg := NewMessage(MessageTypeEvent).WithChannel(channel).WithData(p.event.Data)
		msg.Event = p.event.Name
		if client.SendMessage(msg) {
			sent++
		}
	}

	h.logger.Debug("event delivered", "org_id", p.orgID, "event", p.event.Name, "recipients", sent)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.orgs {
		for client := range clients {
			client.Close()
		}
	}
	h.orgs = make(map[string]map[*Client]struct{})
	h.userConnCounts = make(map[string]int)
}

// Stats contains hub statistics.
type Stats struct {
	Organizations int `json:"organizations"`
	Clients       int `json:"clients"`
}

// Stats returns hub statistics.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{Organizations: len(h.orgs)}
	for _, clients := range h.orgs {
		s.Clients += len(clients)
	}
	return s
}

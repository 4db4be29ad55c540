package websocket

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/openctemio/reposcan/pkg/apierror"
	"github.com/openctemio/reposcan/pkg/logger"
)

// IdentityFunc extracts the authenticated user and organization from a
// request. It is supplied by the HTTP layer.
type IdentityFunc func(r *http.Request) (userID, orgID string)

// Handler upgrades authenticated requests to WebSocket connections.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	identity IdentityFunc
	logger   *logger.Logger
}

// NewHandler creates a new WebSocket handler. allowedOrigins may contain "*".
func NewHandler(hub *Hub, identity IdentityFunc, allowedOrigins []string, log *logger.Logger) *Handler {
	return &Handler{
		hub:      hub,
		identity: identity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: log.With("handler", "websocket"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// ServeWS handles WebSocket upgrade requests.
// GET /api/v1/ws
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, orgID := h.identity(r)
	if userID == "" || orgID == "" {
		apierror.Unauthorized("authentication required").WriteJSON(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := NewClient(h.hub, conn, userID, orgID, h.logger)
	h.hub.RegisterClient(client)

	h.logger.Info("websocket client connected", "client_id", client.ID, "user_id", userID, "org_id", orgID)

	go client.WritePump()
	go client.ReadPump()
}

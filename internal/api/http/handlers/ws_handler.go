package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/exchange-chat-service/internal/auth"
	"github.com/spec-kit/exchange-chat-service/internal/domain"
	"github.com/spec-kit/exchange-chat-service/internal/hub"
)

const wsUserKey = "ws_user"

// WSHandler upgrades authenticated requests into live chat sessions.
type WSHandler struct {
	gateway        *hub.Gateway
	authMiddleware *auth.AuthMiddleware
}

// NewWSHandler constructs handler.
func NewWSHandler(gateway *hub.Gateway, authMiddleware *auth.AuthMiddleware) *WSHandler {
	return &WSHandler{gateway: gateway, authMiddleware: authMiddleware}
}

// Upgrade authenticates before the protocol switch. The user is resolved here
// because fiber locals are the only state that survives into the websocket
// handler.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	user, err := h.authMiddleware.Authenticate(c)
	if err != nil {
		return err
	}
	c.Locals(wsUserKey, user)
	return c.Next()
}

// Serve returns the websocket handler that runs the session.
func (h *WSHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		user, ok := conn.Locals(wsUserKey).(*domain.User)
		if !ok {
			_ = conn.Close()
			return
		}
		h.gateway.HandleConnection(conn, user)
	})
}

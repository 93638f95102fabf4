package hub

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/exchange-chat-service/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one live connection bound to an authenticated user. Push is
// non-blocking; a client that cannot keep up loses frames rather than
// stalling the sender.
type Client interface {
	ConnID() string
	User() *domain.User
	Push(frame Frame)
	Close()
}

type wsClient struct {
	id      string
	user    *domain.User
	conn    *websocket.Conn
	send    chan Frame
	gateway *Gateway
	logger  *zap.Logger
}

func (c *wsClient) ConnID() string     { return c.id }
func (c *wsClient) User() *domain.User { return c.user }

// Push queues a frame for the write pump, dropping it when the buffer is
// full. Best-effort delivery is the contract for every outbound event.
func (c *wsClient) Push(frame Frame) {
	select {
	case c.send <- frame:
	default:
		c.logger.Debug("send buffer full, frame dropped",
			zap.String("conn_id", c.id),
			zap.String("event", frame.Event))
	}
}

// Close stops the write pump; the read pump ends when the connection closes.
func (c *wsClient) Close() {
	close(c.send)
}

// readPump consumes inbound frames until the connection dies, handing each to
// the gateway. It blocks the caller; the write pump runs alongside.
func (c *wsClient) readPump() {
	defer func() {
		c.gateway.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.gateway.cfg.Chat.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("connection read error",
					zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		c.gateway.dispatch(c, raw)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeFrame(frame) {
				return
			}
			// Drain whatever queued up behind this frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if !c.writeFrame(<-c.send) {
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) writeFrame(frame Frame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Warn("encode frame failed",
			zap.String("event", frame.Event), zap.Error(err))
		return true
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	return true
}

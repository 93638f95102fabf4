package hub

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/exchange-chat-service/internal/config"
	"github.com/spec-kit/exchange-chat-service/internal/domain"
	"github.com/spec-kit/exchange-chat-service/internal/observability"
	"github.com/spec-kit/exchange-chat-service/internal/service"
	apperrors "github.com/spec-kit/exchange-chat-service/pkg/util/errorutil"
)

// Gateway binds authenticated connections to users, dispatches inbound events
// to the services and converts their errors into a single `error` frame sent
// back to the originating connection only. Each inbound event runs in its own
// goroutine so slow storage never stalls other sessions.
type Gateway struct {
	registry *Registry
	typing   *TypingTracker
	rooms    *service.RoomService
	messages *service.MessageService
	validate *validator.Validate
	metrics  *observability.Metrics
	logger   *zap.Logger
	cfg      config.Config
}

// GatewayDependencies bundles collaborators for the gateway.
type GatewayDependencies struct {
	Registry *Registry
	Rooms    *service.RoomService
	Messages *service.MessageService
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// NewGateway constructs the gateway and its typing tracker.
func NewGateway(cfg config.Config, deps GatewayDependencies) *Gateway {
	return &Gateway{
		registry: deps.Registry,
		typing:   NewTypingTracker(cfg.Chat.TypingQuiet(), deps.Registry),
		rooms:    deps.Rooms,
		messages: deps.Messages,
		validate: validator.New(),
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		cfg:      cfg,
	}
}

// Registry exposes the connection registry for late service wiring.
func (g *Gateway) Registry() *Registry { return g.registry }

// HandleConnection serves one authenticated connection until it closes. Runs
// on the upgrade handler's goroutine and blocks for the connection lifetime.
func (g *Gateway) HandleConnection(conn *websocket.Conn, user *domain.User) {
	client := &wsClient{
		id:      uuid.NewString(),
		user:    user,
		conn:    conn,
		send:    make(chan Frame, g.cfg.Chat.SendBufferSize),
		gateway: g,
		logger:  g.logger,
	}

	first := g.registry.Register(client)
	g.logger.Info("session connected",
		zap.String("conn_id", client.id),
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)))
	if first {
		g.registry.Broadcast(service.EventUserOnline, map[string]any{
			"userId": user.ID, "name": user.Name,
		})
	}

	go client.writePump()
	client.readPump()
}

// disconnect tears down registry and typing state for a closed connection.
func (g *Gateway) disconnect(c *wsClient) {
	last := g.registry.Unregister(c)
	g.logger.Info("session disconnected",
		zap.String("conn_id", c.id),
		zap.String("user_id", c.user.ID))
	if last {
		g.typing.ClearUser(c.user.ID)
		g.registry.Broadcast(service.EventUserOffline, map[string]any{
			"userId": c.user.ID, "name": c.user.Name,
		})
	}
}

// dispatch routes one inbound frame. The handler runs on its own goroutine;
// failures surface as an `error` frame to the origin and never touch other
// sessions.
func (g *Gateway) dispatch(c *wsClient, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.pushError(c, apperrors.NewValidationError("malformed frame", nil))
		return
	}
	g.metrics.RecordSessionEvent(env.Event)

	go func() {
		ctx := context.Background()
		if timeout := g.cfg.App.RequestTimeout(); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if err := g.handle(ctx, c, env); err != nil {
			g.pushError(c, err)
		}
	}()
}

func (g *Gateway) handle(ctx context.Context, c *wsClient, env Envelope) error {
	switch env.Event {
	case EventChatJoin:
		return g.onJoin(ctx, c, env.Data)
	case EventChatTyping:
		return g.onTyping(ctx, c, env.Data)
	case EventChatMessage:
		return g.onMessage(ctx, c, env.Data)
	case EventChatImage:
		return g.onImage(ctx, c, env.Data)
	case EventChatGetMessages:
		return g.onGetMessages(ctx, c, env.Data)
	case EventChatClean:
		return g.onClean(ctx, c, env.Data)
	case EventChatRoomCreate:
		return g.onRoomCreate(ctx, c, env.Data)
	case EventModeratorAccept, EventModeratorJoinRoom:
		return g.onClaim(ctx, c, env.Data)
	case EventModeratorInitiateTransfer:
		return g.onInitiateTransfer(ctx, c, env.Data)
	case EventModeratorAcceptTransfer:
		return g.onAcceptTransfer(ctx, c, env.Data)
	case EventModeratorRejectTransfer:
		return g.onRejectTransfer(ctx, c, env.Data)
	case EventOrderUpdateStatus:
		return g.onOrderStatus(ctx, c, env.Data)
	default:
		return apperrors.NewValidationError("unknown event", map[string]any{"event": env.Event})
	}
}

func (g *Gateway) onJoin(ctx context.Context, c *wsClient, data json.RawMessage) error {
	var p joinPayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	room, err := g.rooms.AuthorizeJoin(ctx, p.RoomID, c.user)
	if err != nil {
		return err
	}
	g.registry.JoinClient(c, room.ID)
	g.registry.BroadcastToRoom(room.ID, service.EventChatUserJoined, map[string]any{
		"roomId": room.ID,
		"user":   map[string]string{"id": c.user.ID, "name": c.user.Name},
	})
	return nil
}

func (g *Gateway) onTyping(_ context.Context, c *wsClient, data json.RawMessage) error {
	var p typingPayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	g.typing.Set(p.RoomID, c.user.ID, c.user.Name, p.IsTyping)
	return nil
}

func (g *Gateway) onMessage(ctx context.Context, c *wsClient, data json.RawMessage) error {
	var p messagePayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	if _, err := g.rooms.AuthorizeJoin(ctx, p.RoomID, c.user); err != nil {
		return err
	}
	_, err := g.messages.AppendText(ctx, p.RoomID, c.user.ID, p.Message)
	return err
}

func (g *Gateway) onImage(ctx context.Context, c *wsClient, data json.RawMessage) error {
	var p imagePayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	if _, err := g.rooms.AuthorizeJoin(ctx, p.RoomID, c.user); err != nil {
		return err
	}
	_, err := g.messages.AppendImage(ctx, p.RoomID, c.user.ID, p.File, p.MimeType)
	return err
}

func (g *Gateway) onGetMessages(ctx context.Context, c *wsClient, data json.RawMessage) error {
	var p getMessagesPayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	if _, err := g.rooms.AuthorizeJoin(ctx, p.RoomID, c.user); err != nil {
		return err
	}
	page, err := g.messages.Page(ctx, p.RoomID, p.Page, p.Limit)
	if err != nil {
		return err
	}
	c.Push(Frame{Event: service.EventChatMessages, Data: page})
	return nil
}

func (g *Gateway) onClean(ctx context.Context, c *wsClient, data json.RawMessage) error {
	var p roomPayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	result, err := g.rooms.CleanHistory(ctx, p.RoomID, c.user)
	if err != nil {
		return err
	}
	c.Push(Frame{Event: service.EventChatCleanConfirmed, Data: map[string]any{
		"roomId":          p.RoomID,
		"messagesDeleted": result.MessagesDeleted,
		"imagesDeleted":   result.AssetsDeleted,
	}})
	return nil
}

func (g *Gateway) onRoomCreate(ctx context.Context, c *wsClient, data json.RawMessage) error {
	var p roomCreatePayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	room, err := g.rooms.CreateRoom(ctx, p.Name, c.user)
	if err != nil {
		return err
	}
	g.registry.JoinClient(c, room.ID)
	c.Push(Frame{Event: service.EventChatRoomCreated, Data: room})
	return nil
}

func (g *Gateway) onClaim(ctx context.Context, c *wsClient, data json.RawMessage) error {
	var p roomPayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	_, err := g.rooms.ClaimRoom(ctx, p.RoomID, c.user)
	return err
}

func (g *Gateway) onInitiateTransfer(ctx context.Context, c *wsClient, data json.RawMessage) error {
	var p transferPayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	_, err := g.rooms.InitiateTransfer(ctx, p.RoomID, c.user, p.ToModeratorID)
	return err
}

func (g *Gateway) onAcceptTransfer(ctx context.Context, c *wsClient, data json.RawMessage) error {
	var p roomPayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	_, err := g.rooms.AcceptTransfer(ctx, p.RoomID, c.user)
	return err
}

func (g *Gateway) onRejectTransfer(ctx context.Context, c *wsClient, data json.RawMessage) error {
	var p roomPayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	_, err := g.rooms.RejectTransfer(ctx, p.RoomID, c.user)
	return err
}

func (g *Gateway) onOrderStatus(ctx context.Context, c *wsClient, data json.RawMessage) error {
	var p orderStatusPayload
	if err := g.decode(data, &p); err != nil {
		return err
	}
	_, err := g.rooms.UpdateOrderStatus(ctx, p.RoomID, domain.OrderStatus(p.Status), c.user, p.Notes)
	return err
}

func (g *Gateway) decode(data json.RawMessage, dest any) error {
	if len(data) == 0 {
		return apperrors.NewValidationError("missing payload", nil)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return apperrors.NewValidationError("malformed payload", nil)
	}
	if err := g.validate.Struct(dest); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}
	return nil
}

// pushError reports a failure to the originating connection as a short,
// human-readable message. No codes, no internals.
func (g *Gateway) pushError(c *wsClient, err error) {
	message := "internal error"
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
		g.metrics.RecordError("session", domainErr.Code)
	} else {
		g.metrics.RecordError("session", "INTERNAL")
		g.logger.Error("session handler failed",
			zap.String("conn_id", c.id), zap.Error(err))
	}
	c.Push(Frame{Event: service.EventError, Data: map[string]string{"message": message}})
}

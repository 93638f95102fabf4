package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/spec-kit/exchange-chat-service/internal/cache"
	"github.com/spec-kit/exchange-chat-service/internal/config"
	"github.com/spec-kit/exchange-chat-service/internal/domain"
	"github.com/spec-kit/exchange-chat-service/internal/events"
	"github.com/spec-kit/exchange-chat-service/internal/repository"
	apperrors "github.com/spec-kit/exchange-chat-service/pkg/util/errorutil"
)

// SystemMessenger records automated notices in a room. Implemented by the
// message service.
type SystemMessenger interface {
	AppendSystem(ctx context.Context, roomID string, status domain.OrderStatus, note string) (*domain.Message, error)
}

// HistoryCleaner wipes a room's message log. Implemented by the message
// service.
type HistoryCleaner interface {
	CleanHistory(ctx context.Context, roomID string) (*CleanResult, error)
}

// ModeratorSummary is the cached availability entry.
type ModeratorSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RoomService owns the room state machine: claiming, transfers, order status
// transitions and history cleaning. Every mutation invalidates the affected
// cache keys before it is acknowledged to the caller.
type RoomService struct {
	rooms      repository.RoomRepository
	orders     repository.OrderRepository
	users      repository.UserRepository
	cache      cache.Store
	notifier   Notifier
	messenger  SystemMessenger
	cleaner    HistoryCleaner
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.Config
}

// RoomDependencies bundles collaborators for the room service.
type RoomDependencies struct {
	RoomRepo   repository.RoomRepository
	OrderRepo  repository.OrderRepository
	UserRepo   repository.UserRepository
	Cache      cache.Store
	Notifier   Notifier
	Messenger  SystemMessenger
	Cleaner    HistoryCleaner
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewRoomService constructs the service.
func NewRoomService(cfg config.Config, deps RoomDependencies) *RoomService {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &RoomService{
		rooms:      deps.RoomRepo,
		orders:     deps.OrderRepo,
		users:      deps.UserRepo,
		cache:      deps.Cache,
		notifier:   notifier,
		messenger:  deps.Messenger,
		cleaner:    deps.Cleaner,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// SetNotifier attaches the live session layer after construction.
func (s *RoomService) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// CreateRoomForOrder opens the waiting room for a freshly placed order and
// offers it to every connected moderator. The order-management workflow calls
// this without knowing room internals.
func (s *RoomService) CreateRoomForOrder(ctx context.Context, order *domain.Order, creator *domain.User) (*domain.ChatRoom, error) {
	if order == nil || creator == nil {
		return nil, apperrors.NewValidationError("order and creator required", nil)
	}
	if existing, err := s.rooms.GetOpenByOrder(ctx, order.ID); err == nil && existing != nil {
		return nil, apperrors.NewConflict("", "order already has an open room",
			map[string]any{"room_id": existing.ID})
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewDependencyFailure("room store", err)
	}

	room := &domain.ChatRoom{
		Name:      fmt.Sprintf("Order #%s", order.ID),
		OrderID:   order.ID,
		CreatorID: creator.ID,
		Status:    domain.RoomStatusWaiting,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, apperrors.NewDependencyFailure("room store", err)
	}

	s.notifier.NotifyModerators(EventModeratorRequest, map[string]any{
		"roomId":   room.ID,
		"orderId":  order.ID,
		"roomName": room.Name,
		"creator":  map[string]string{"id": creator.ID, "name": creator.Name},
		"orderDetails": map[string]any{
			"method": order.ExchangeMethod,
			"amount": order.Amount,
			"rate":   order.ExchangeRate,
		},
	})
	s.publish(ctx, events.Event{
		Type:    events.EventRoomCreated,
		RoomID:  room.ID,
		ActorID: creator.ID,
		Payload: events.RoomCreatedPayload{
			OrderID:   order.ID,
			CreatorID: creator.ID,
			RoomName:  room.Name,
		},
	})
	return room, nil
}

// CreateRoom opens an ad-hoc named room without an order reference.
func (s *RoomService) CreateRoom(ctx context.Context, name string, creator *domain.User) (*domain.ChatRoom, error) {
	if name == "" {
		return nil, apperrors.NewValidationError("room name required", nil)
	}
	room := &domain.ChatRoom{
		Name:      name,
		CreatorID: creator.ID,
		Status:    domain.RoomStatusWaiting,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, apperrors.NewDependencyFailure("room store", err)
	}

	s.notifier.NotifyModerators(EventModeratorRequest, map[string]any{
		"roomId":   room.ID,
		"roomName": room.Name,
		"creator":  map[string]string{"id": creator.ID, "name": creator.Name},
	})
	s.publish(ctx, events.Event{
		Type:    events.EventRoomCreated,
		RoomID:  room.ID,
		ActorID: creator.ID,
		Payload: events.RoomCreatedPayload{CreatorID: creator.ID, RoomName: room.Name},
	})
	return room, nil
}

// ClaimRoom gives the calling moderator ownership of an unassigned room.
// Exactly one of any number of concurrent claimants succeeds; the rest fail
// with the same conflict regardless of how long ago the winner won.
func (s *RoomService) ClaimRoom(ctx context.Context, roomID string, moderator *domain.User) (*domain.ChatRoom, error) {
	if moderator == nil || !moderator.Role.CanModerate() {
		return nil, apperrors.NewForbidden("moderator role required")
	}

	room, err := s.rooms.Claim(ctx, roomID, moderator.ID)
	if err != nil {
		return nil, mapRoomError(err, roomID)
	}

	s.invalidateRoom(ctx, roomID)
	s.invalidateModerators(ctx)

	if room.OrderID != "" {
		if _, err := s.orders.SetStatus(ctx, room.OrderID, domain.OrderStatusProcessing, "", &moderator.ID); err != nil {
			s.logger.Warn("mark order processing failed",
				zap.String("order_id", room.OrderID), zap.Error(err))
		}
	}

	s.notifier.JoinRoom(moderator.ID, roomID)
	s.notifier.BroadcastToRoom(roomID, EventModeratorJoined, map[string]any{
		"moderator": map[string]string{"id": moderator.ID, "name": moderator.Name},
	})
	s.notifier.NotifyModerators(EventModeratorRoomTaken, map[string]any{
		"roomId":    roomID,
		"moderator": map[string]string{"id": moderator.ID, "name": moderator.Name},
	}, moderator.ID)

	s.publish(ctx, events.Event{
		Type:    events.EventRoomClaimed,
		RoomID:  roomID,
		ActorID: moderator.ID,
		Payload: events.RoomClaimedPayload{ModeratorID: moderator.ID},
	})
	return room, nil
}

// InitiateTransfer moves an active room owned by the caller into the
// transferring state, pending acceptance by the target moderator.
func (s *RoomService) InitiateTransfer(ctx context.Context, roomID string, from *domain.User, toModeratorID string) (*domain.ChatRoom, error) {
	if from == nil || !from.Role.CanModerate() {
		return nil, apperrors.NewForbidden("moderator role required")
	}
	target, err := s.users.GetByID(ctx, toModeratorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("moderator", map[string]any{"moderator_id": toModeratorID})
		}
		return nil, apperrors.NewDependencyFailure("user directory", err)
	}
	if !target.Role.CanModerate() {
		return nil, apperrors.NewValidationError("transfer target is not a moderator", nil)
	}

	room, err := s.rooms.InitiateTransfer(ctx, roomID, from.ID, toModeratorID)
	if err != nil {
		return nil, mapRoomError(err, roomID)
	}

	s.invalidateRoom(ctx, roomID)

	s.notifier.SendToUser(toModeratorID, EventTransferRequest, map[string]any{
		"roomId":   roomID,
		"roomName": room.Name,
		"from":     map[string]string{"id": from.ID, "name": from.Name},
	})
	s.notifier.BroadcastToRoom(roomID, EventChatTransferring, map[string]any{
		"status":    "initiated",
		"from":      from.Name,
		"timestamp": time.Now(),
	})

	s.publish(ctx, events.Event{
		Type:    events.EventTransferInitiated,
		RoomID:  roomID,
		ActorID: from.ID,
		Payload: events.TransferPayload{FromModeratorID: from.ID, ToModeratorID: toModeratorID},
	})
	return room, nil
}

// AcceptTransfer completes a pending hand-off: the caller becomes the room's
// moderator, the request is cleared, and the room returns to active.
func (s *RoomService) AcceptTransfer(ctx context.Context, roomID string, to *domain.User) (*domain.ChatRoom, error) {
	if to == nil || !to.Role.CanModerate() {
		return nil, apperrors.NewForbidden("moderator role required")
	}

	// Pre-read the outgoing moderator so we can tear down their session
	// group. If the read races another accept, the CAS below fails anyway.
	prior, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, mapRoomError(err, roomID)
	}
	var oldModerator string
	if prior.Moderator != nil {
		oldModerator = *prior.Moderator
	}

	room, err := s.rooms.CompleteTransfer(ctx, roomID, to.ID)
	if err != nil {
		return nil, mapRoomError(err, roomID)
	}

	s.invalidateRoom(ctx, roomID)
	s.invalidateModerators(ctx)

	if oldModerator != "" && oldModerator != to.ID {
		s.notifier.LeaveRoom(oldModerator, roomID)
	}
	s.notifier.JoinRoom(to.ID, roomID)
	s.notifier.BroadcastToRoom(roomID, EventModeratorChanged, map[string]any{
		"newModerator": map[string]string{"id": to.ID, "name": to.Name},
	})

	s.publish(ctx, events.Event{
		Type:    events.EventTransferCompleted,
		RoomID:  roomID,
		ActorID: to.ID,
		Payload: events.TransferPayload{FromModeratorID: oldModerator, ToModeratorID: to.ID},
	})
	return room, nil
}

// RejectTransfer declines a pending hand-off; the room returns to active
// under its original moderator with the refusal on the audit trail.
func (s *RoomService) RejectTransfer(ctx context.Context, roomID string, to *domain.User) (*domain.ChatRoom, error) {
	if to == nil || !to.Role.CanModerate() {
		return nil, apperrors.NewForbidden("moderator role required")
	}

	room, err := s.rooms.RejectTransfer(ctx, roomID, to.ID)
	if err != nil {
		return nil, mapRoomError(err, roomID)
	}

	s.invalidateRoom(ctx, roomID)

	if room.Moderator != nil {
		s.notifier.SendToUser(*room.Moderator, EventChatTransferring, map[string]any{
			"status": "rejected",
			"roomId": roomID,
			"by":     map[string]string{"id": to.ID, "name": to.Name},
		})
	}
	s.notifier.BroadcastToRoom(roomID, EventChatTransferring, map[string]any{
		"status":    "rejected",
		"timestamp": time.Now(),
	})

	s.publish(ctx, events.Event{
		Type:    events.EventTransferRejected,
		RoomID:  roomID,
		ActorID: to.ID,
		Payload: events.TransferPayload{ToModeratorID: to.ID},
	})
	return room, nil
}

// UpdateOrderStatus applies an order-status change through the room. A
// regular user may only cancel their own order; a moderator may only move it
// to processing or completed.
func (s *RoomService) UpdateOrderStatus(ctx context.Context, roomID string, status domain.OrderStatus, actor *domain.User, notes string) (*domain.Order, error) {
	if !domain.ValidOrderStatus(status) || status == domain.OrderStatusPending {
		return nil, apperrors.NewValidationError("invalid order status", map[string]any{"status": status})
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, mapRoomError(err, roomID)
	}
	if room.OrderID == "" {
		return nil, apperrors.NewValidationError("room has no order", nil)
	}

	switch {
	case actor.Role.CanModerate():
		if status != domain.OrderStatusProcessing && status != domain.OrderStatusCompleted {
			return nil, apperrors.NewForbidden("moderators may only mark orders processing or completed")
		}
	default:
		if status != domain.OrderStatusCancelled || room.CreatorID != actor.ID {
			return nil, apperrors.NewForbidden("users may only cancel their own order")
		}
	}

	order, err := s.orders.GetByID(ctx, room.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("order", map[string]any{"order_id": room.OrderID})
		}
		return nil, apperrors.NewDependencyFailure("order provider", err)
	}
	oldStatus := order.Status

	order, err = s.orders.SetStatus(ctx, room.OrderID, status, notes, nil)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("order provider", err)
	}

	if err := s.rooms.AppendAction(ctx, &domain.ModeratorAction{
		RoomID:      roomID,
		Type:        domain.OrderActionType(status),
		ModeratorID: actor.ID,
		Notes:       notes,
	}); err != nil {
		return nil, apperrors.NewDependencyFailure("room store", err)
	}

	s.invalidateRoom(ctx, roomID)

	if s.messenger != nil {
		if _, err := s.messenger.AppendSystem(ctx, roomID, status, notes); err != nil {
			s.logger.Warn("system notice failed", zap.String("room_id", roomID), zap.Error(err))
		}
	}

	s.publish(ctx, events.Event{
		Type:    events.EventOrderStatusChanged,
		RoomID:  roomID,
		ActorID: actor.ID,
		Payload: events.OrderStatusChangedPayload{
			OrderID:   order.ID,
			OldStatus: oldStatus,
			NewStatus: order.Status,
			Notes:     notes,
		},
	})
	return order, nil
}

// CleanHistory wipes the room's messages. Only the current moderator may do
// this; the room record itself survives with the wipe on its audit trail.
func (s *RoomService) CleanHistory(ctx context.Context, roomID string, actor *domain.User) (*CleanResult, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, mapRoomError(err, roomID)
	}
	if room.Moderator == nil || *room.Moderator != actor.ID {
		return nil, apperrors.NewForbidden("only the room moderator may clean history")
	}

	result, err := s.cleaner.CleanHistory(ctx, roomID)
	if err != nil {
		return result, err
	}

	if err := s.rooms.AppendAction(ctx, &domain.ModeratorAction{
		RoomID:      roomID,
		Type:        domain.ActionCleanHistory,
		ModeratorID: actor.ID,
	}); err != nil {
		return result, apperrors.NewDependencyFailure("room store", err)
	}

	s.invalidateRoom(ctx, roomID)

	s.notifier.BroadcastToRoom(roomID, EventChatCleaned, map[string]any{
		"moderator":     map[string]string{"id": actor.ID, "name": actor.Name},
		"imagesDeleted": result.AssetsDeleted,
		"timestamp":     time.Now(),
	})
	return result, nil
}

// AuthorizeJoin checks that the caller belongs in the room: its creator or
// its current moderator.
func (s *RoomService) AuthorizeJoin(ctx context.Context, roomID string, user *domain.User) (*domain.ChatRoom, error) {
	room, err := s.GetRoomDetails(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.CreatorID == user.ID {
		return room, nil
	}
	if room.Moderator != nil && *room.Moderator == user.ID {
		return room, nil
	}
	return nil, apperrors.NewForbidden("access denied")
}

// GetRoomDetails returns the room snapshot, read through the cache.
func (s *RoomService) GetRoomDetails(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	key := cache.RoomKey(roomID)
	var cached domain.ChatRoom
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, mapRoomError(err, roomID)
	}
	s.cache.Set(ctx, key, room, time.Duration(s.cfg.Cache.RoomTTLSeconds)*time.Second)
	return room, nil
}

// GetRoomHistory returns the room's moderator action log, read through the
// cache.
func (s *RoomService) GetRoomHistory(ctx context.Context, roomID string) ([]domain.ModeratorAction, error) {
	key := cache.RoomHistoryKey(roomID)
	var cached []domain.ModeratorAction
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	actions, err := s.rooms.ListActions(ctx, roomID)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("room store", err)
	}
	s.cache.Set(ctx, key, actions, time.Duration(s.cfg.Cache.HistoryTTLSeconds)*time.Second)
	return actions, nil
}

// AvailableModerators lists moderators for transfer targets and room offers,
// read through the cache.
func (s *RoomService) AvailableModerators(ctx context.Context, exclude string) ([]ModeratorSummary, error) {
	key := cache.ModeratorListKey()
	var cached []ModeratorSummary
	if exclude == "" && s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	moderators, err := s.users.ListModerators(ctx, exclude)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("user directory", err)
	}
	summaries := lo.Map(moderators, func(m domain.User, _ int) ModeratorSummary {
		return ModeratorSummary{ID: m.ID, Name: m.Name, Email: m.Email}
	})
	if exclude == "" {
		s.cache.Set(ctx, key, summaries, time.Duration(s.cfg.Cache.ModeratorsTTLSeconds)*time.Second)
	}
	return summaries, nil
}

func (s *RoomService) invalidateRoom(ctx context.Context, roomID string) {
	s.cache.DelPattern(ctx, cache.RoomPattern(roomID))
}

func (s *RoomService) invalidateModerators(ctx context.Context) {
	s.cache.Del(ctx, cache.ModeratorListKey())
}

func (s *RoomService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func mapRoomError(err error, roomID string) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("room", map[string]any{"room_id": roomID})
	case errors.Is(err, repository.ErrRoomAssigned):
		return apperrors.NewConflict(apperrors.CodeRoomAlreadyAssigned,
			"room already has a moderator", map[string]any{"room_id": roomID})
	case errors.Is(err, repository.ErrNoPendingTransfer):
		return apperrors.NewConflict(apperrors.CodeNoPendingTransfer,
			"no pending transfer for this room", map[string]any{"room_id": roomID})
	case errors.Is(err, repository.ErrNotRoomModerator):
		return apperrors.NewForbidden("caller is not the room moderator")
	case errors.Is(err, repository.ErrInvalidRoomState):
		return apperrors.NewConflict("", "room state does not allow this operation",
			map[string]any{"room_id": roomID})
	default:
		return apperrors.NewDependencyFailure("room store", err)
	}
}

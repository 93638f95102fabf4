package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/exchange-chat-service/internal/api/dto"
	"github.com/spec-kit/exchange-chat-service/internal/auth"
	"github.com/spec-kit/exchange-chat-service/internal/domain"
	"github.com/spec-kit/exchange-chat-service/internal/service"
	apperrors "github.com/spec-kit/exchange-chat-service/pkg/util/errorutil"
)

// RoomsHandler exposes room snapshots and the moderator directory.
type RoomsHandler struct {
	rooms *service.RoomService
}

// NewRoomsHandler constructs handler.
func NewRoomsHandler(rooms *service.RoomService) *RoomsHandler {
	return &RoomsHandler{rooms: rooms}
}

// GetRoom GET /rooms/:id.
func (h *RoomsHandler) GetRoom(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication error")
	}
	room, err := h.rooms.AuthorizeJoin(c.Context(), c.Params("id"), user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": roomResponse(room)})
}

// GetRoomHistory GET /rooms/:id/history.
func (h *RoomsHandler) GetRoomHistory(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication error")
	}
	if _, err := h.rooms.AuthorizeJoin(c.Context(), c.Params("id"), user); err != nil {
		return err
	}
	actions, err := h.rooms.GetRoomHistory(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ActionResponse, 0, len(actions))
	for _, action := range actions {
		items = append(items, dto.ActionResponse{
			ID:          action.ID,
			Type:        action.Type,
			ModeratorID: action.ModeratorID,
			Notes:       action.Notes,
			CreatedAt:   action.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListModerators GET /moderators/available.
func (h *RoomsHandler) ListModerators(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication error")
	}
	exclude := ""
	if user.Role.CanModerate() {
		exclude = user.ID
	}
	moderators, err := h.rooms.AvailableModerators(c.Context(), exclude)
	if err != nil {
		return err
	}
	items := make([]dto.ModeratorResponse, 0, len(moderators))
	for _, m := range moderators {
		items = append(items, dto.ModeratorResponse{ID: m.ID, Name: m.Name, Email: m.Email})
	}
	return c.JSON(fiber.Map{"data": items})
}

func roomResponse(room *domain.ChatRoom) dto.RoomResponse {
	return dto.RoomResponse{
		ID:        room.ID,
		Name:      room.Name,
		OrderID:   room.OrderID,
		CreatorID: room.CreatorID,
		Moderator: room.Moderator,
		Status:    room.Status,
		Transfer:  room.Transfer,
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	}
}

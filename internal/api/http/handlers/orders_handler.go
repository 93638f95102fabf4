package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/exchange-chat-service/internal/api/dto"
	"github.com/spec-kit/exchange-chat-service/internal/auth"
	"github.com/spec-kit/exchange-chat-service/internal/domain"
	"github.com/spec-kit/exchange-chat-service/internal/repository"
	"github.com/spec-kit/exchange-chat-service/internal/service"
	apperrors "github.com/spec-kit/exchange-chat-service/pkg/util/errorutil"
)

// OrdersHandler drives the order-management entry point into room lifecycle.
type OrdersHandler struct {
	orders repository.OrderRepository
	rooms  *service.RoomService
}

// NewOrdersHandler constructs handler.
func NewOrdersHandler(orders repository.OrderRepository, rooms *service.RoomService) *OrdersHandler {
	return &OrdersHandler{orders: orders, rooms: rooms}
}

// CreateOrder POST /orders. Places the order and opens its waiting room in
// one call.
func (h *OrdersHandler) CreateOrder(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication error")
	}
	var req dto.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ExchangeMethod == "" || req.Amount <= 0 || req.ExchangeRate <= 0 {
		return apperrors.NewValidationError("exchange_method, amount, exchange_rate required", nil)
	}

	order := &domain.Order{
		UserID:         user.ID,
		ExchangeMethod: req.ExchangeMethod,
		Amount:         req.Amount,
		ExchangeRate:   req.ExchangeRate,
		Status:         domain.OrderStatusPending,
	}
	if err := h.orders.Create(c.Context(), order); err != nil {
		return apperrors.NewDependencyFailure("order provider", err)
	}

	room, err := h.rooms.CreateRoomForOrder(c.Context(), order, user)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.CreateOrderResponse{
		Order: orderResponse(order),
		Room:  roomResponse(room),
	}})
}

func orderResponse(order *domain.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:             order.ID,
		UserID:         order.UserID,
		ExchangeMethod: order.ExchangeMethod,
		Amount:         order.Amount,
		ExchangeRate:   order.ExchangeRate,
		Status:         order.Status,
		ModeratorNotes: order.ModeratorNotes,
		HandledBy:      order.HandledBy,
		CompletedAt:    order.CompletedAt,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
}

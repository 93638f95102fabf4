package dto

import (
	"time"

	"github.com/spec-kit/exchange-chat-service/internal/domain"
)

// CreateOrderRequest payload.
type CreateOrderRequest struct {
	ExchangeMethod string  `json:"exchange_method"`
	Amount         float64 `json:"amount"`
	ExchangeRate   float64 `json:"exchange_rate"`
}

// OrderResponse mirrors an order record.
type OrderResponse struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	ExchangeMethod string             `json:"exchange_method"`
	Amount         float64            `json:"amount"`
	ExchangeRate   float64            `json:"exchange_rate"`
	Status         domain.OrderStatus `json:"status"`
	ModeratorNotes string             `json:"moderator_notes,omitempty"`
	HandledBy      *string            `json:"handled_by,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// CreateOrderResponse couples the new order with its waiting room.
type CreateOrderResponse struct {
	Order OrderResponse `json:"order"`
	Room  RoomResponse  `json:"room"`
}

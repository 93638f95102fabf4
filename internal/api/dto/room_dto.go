package dto

import (
	"time"

	"github.com/spec-kit/exchange-chat-service/internal/domain"
)

// RoomResponse mirrors a chat room snapshot.
type RoomResponse struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	OrderID   string                  `json:"order_id,omitempty"`
	CreatorID string                  `json:"creator_id"`
	Moderator *string                 `json:"moderator_id,omitempty"`
	Status    domain.RoomStatus       `json:"status"`
	Transfer  *domain.TransferRequest `json:"transfer,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// ActionResponse is one audit trail entry.
type ActionResponse struct {
	ID          string            `json:"id"`
	Type        domain.ActionType `json:"action_type"`
	ModeratorID string            `json:"moderator_id"`
	Notes       string            `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ModeratorResponse is one available-moderator entry.
type ModeratorResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

package events

import (
	"time"

	"github.com/spec-kit/exchange-chat-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRoomCreated        EventType = "room_created"
	EventRoomClaimed        EventType = "room_claimed"
	EventTransferInitiated  EventType = "transfer_initiated"
	EventTransferCompleted  EventType = "transfer_completed"
	EventTransferRejected   EventType = "transfer_rejected"
	EventOrderStatusChanged EventType = "order_status_changed"
	EventMessageAdded       EventType = "message_added"
	EventHistoryCleaned     EventType = "history_cleaned"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	RoomID    string      `json:"room_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RoomCreatedPayload payload.
type RoomCreatedPayload struct {
	OrderID   string `json:"order_id"`
	CreatorID string `json:"creator_id"`
	RoomName  string `json:"room_name"`
}

// RoomClaimedPayload payload.
type RoomClaimedPayload struct {
	ModeratorID string `json:"moderator_id"`
}

// TransferPayload payload for transfer lifecycle events.
type TransferPayload struct {
	FromModeratorID string `json:"from_moderator_id"`
	ToModeratorID   string `json:"to_moderator_id"`
}

// OrderStatusChangedPayload payload.
type OrderStatusChangedPayload struct {
	OrderID   string             `json:"order_id"`
	OldStatus domain.OrderStatus `json:"old_status"`
	NewStatus domain.OrderStatus `json:"new_status"`
	Notes     string             `json:"notes,omitempty"`
}

// MessageAddedPayload payload.
type MessageAddedPayload struct {
	MessageID string             `json:"message_id"`
	Type      domain.MessageType `json:"message_type"`
	SenderID  string             `json:"sender_id"`
}

// HistoryCleanedPayload payload.
type HistoryCleanedPayload struct {
	MessagesDeleted int64 `json:"messages_deleted"`
	AssetsDeleted   int   `json:"assets_deleted"`
}

package domain

import "time"

// RoomStatus enumerates lifecycle states for chat rooms.
type RoomStatus string

const (
	RoomStatusWaiting      RoomStatus = "waiting"
	RoomStatusActive       RoomStatus = "active"
	RoomStatusTransferring RoomStatus = "transferring"
	RoomStatusClosed       RoomStatus = "closed"
)

// TransferState enumerates states of a pending moderator hand-off.
type TransferState string

const (
	TransferPending  TransferState = "pending"
	TransferAccepted TransferState = "accepted"
	TransferRejected TransferState = "rejected"
)

// TransferRequest tracks an in-flight moderator hand-off. It exists only
// while the room status is transferring.
type TransferRequest struct {
	From      string        `json:"from"`
	To        string        `json:"to"`
	Status    TransferState `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// ChatRoom is the aggregate for a support conversation bound 1:1 to an order.
// The moderator field is the single contended resource: it is only ever set
// through conditional writes at the store.
type ChatRoom struct {
	ID        string
	Name      string
	OrderID   string
	CreatorID string
	Moderator *string
	Status    RoomStatus
	Transfer  *TransferRequest
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasModerator reports whether the room is currently owned.
func (r *ChatRoom) HasModerator() bool {
	return r.Moderator != nil && *r.Moderator != ""
}

// Claimable reports whether a moderator may still take ownership.
func (r *ChatRoom) Claimable() bool {
	if r.HasModerator() {
		return false
	}
	return r.Status == RoomStatusWaiting || r.Status == RoomStatusActive
}

// ActionType captures what happened in a moderator action entry.
type ActionType string

const (
	ActionJoin              ActionType = "join"
	ActionLeave             ActionType = "leave"
	ActionTransferInitiated ActionType = "transfer_initiated"
	ActionTransferCompleted ActionType = "transfer_completed"
	ActionTransferRejected  ActionType = "transfer_rejected"
	ActionCleanHistory      ActionType = "clean_history"
	ActionOrderProcessing   ActionType = "order_processing"
	ActionOrderCompleted    ActionType = "order_completed"
	ActionOrderCancelled    ActionType = "order_cancelled"
	ActionOrderRejected     ActionType = "order_rejected"
)

// OrderActionType maps an order status onto its audit action type.
func OrderActionType(status OrderStatus) ActionType {
	return ActionType("order_" + string(status))
}

// ModeratorAction is an immutable audit trail entry on a room. Entries are
// append-only and never mutated or deleted.
type ModeratorAction struct {
	ID          string
	RoomID      string
	Type        ActionType
	ModeratorID string
	Notes       string
	CreatedAt   time.Time
}

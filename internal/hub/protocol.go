package hub

import "encoding/json"

// Inbound session event names. Outbound names live in the service package so
// services can push without importing the hub.
const (
	EventChatJoin                  = "chat:join"
	EventChatTyping                = "chat:typing"
	EventChatMessage               = "chat:message"
	EventChatImage                 = "chat:image"
	EventChatGetMessages           = "chat:getMessages"
	EventChatClean                 = "chat:clean"
	EventChatRoomCreate            = "chatRoom:create"
	EventModeratorAccept           = "moderator:accept"
	EventModeratorJoinRoom         = "moderator:joinRoom"
	EventModeratorInitiateTransfer = "moderator:initiateTransfer"
	EventModeratorAcceptTransfer   = "moderator:acceptTransfer"
	EventModeratorRejectTransfer   = "moderator:rejectTransfer"
	EventOrderUpdateStatus         = "order:updateStatus"
)

// Envelope is the inbound wire frame: an event name plus its raw payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame is an outbound push ready for JSON encoding.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type joinPayload struct {
	RoomID  string `json:"roomId" validate:"required"`
	OrderID string `json:"orderId"`
}

type typingPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

type roomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type transferPayload struct {
	RoomID        string `json:"roomId" validate:"required"`
	ToModeratorID string `json:"toModeratorId" validate:"required"`
}

type orderStatusPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes"`
}

type messagePayload struct {
	RoomID  string `json:"roomId" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type imagePayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	File     []byte `json:"file" validate:"required"`
	MimeType string `json:"mimeType"`
}

type getMessagesPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	Page   int    `json:"page" validate:"gte=0"`
	Limit  int    `json:"limit" validate:"gte=0"`
}

type roomCreatePayload struct {
	Name string `json:"name" validate:"required,max=120"`
}

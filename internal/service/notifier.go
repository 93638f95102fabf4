package service

// Outbound session event names. The gateway and services share this catalog;
// inbound names live with the gateway protocol.
const (
	EventUserOnline         = "user:online"
	EventUserOffline        = "user:offline"
	EventUserTyping         = "user:typing"
	EventChatUserJoined     = "chat:userJoined"
	EventChatMessage        = "chat:message"
	EventChatMessages       = "chat:messages"
	EventChatRoomCreated    = "chatRoom:created"
	EventModeratorRequest   = "moderator:roomRequest"
	EventModeratorJoined    = "moderator:joined"
	EventModeratorRoomTaken = "moderator:roomTaken"
	EventTransferRequest    = "moderator:transferRequest"
	EventChatTransferring   = "chat:transferring"
	EventModeratorChanged   = "moderator:changed"
	EventChatCleaned        = "chat:cleaned"
	EventChatCleanConfirmed = "chat:cleanConfirmed"
	EventError              = "error"
)

// Notifier pushes events to live sessions. Delivery is best-effort: every
// method may silently drop when the target has no connection or its buffer is
// full, and none of them block on storage.
type Notifier interface {
	// SendToUser delivers to every live connection of one user.
	SendToUser(userID, event string, payload any)
	// BroadcastToRoom delivers to every connection joined to the room.
	BroadcastToRoom(roomID, event string, payload any)
	// NotifyModerators delivers to every connected moderator except the
	// excluded ids.
	NotifyModerators(event string, payload any, exclude ...string)
	// JoinRoom adds all of a user's connections to a room group.
	JoinRoom(userID, roomID string)
	// LeaveRoom removes all of a user's connections from a room group.
	LeaveRoom(userID, roomID string)
}

// NopNotifier discards every notification. Used where the live session layer
// is absent (CLI tooling, tests).
type NopNotifier struct{}

func (NopNotifier) SendToUser(string, string, any)          {}
func (NopNotifier) BroadcastToRoom(string, string, any)     {}
func (NopNotifier) NotifyModerators(string, any, ...string) {}
func (NopNotifier) JoinRoom(string, string)                 {}
func (NopNotifier) LeaveRoom(string, string)                {}

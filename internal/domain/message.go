package domain

import "time"

// SystemSender is the sender id recorded on automated notices.
const SystemSender = "system"

// MessageType differentiates message payload variants.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeSystem MessageType = "system"
)

// ValidMessageType reports whether t is a known variant.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeSystem:
		return true
	}
	return false
}

// ImageMetadata describes the externally stored asset behind an image message.
type ImageMetadata struct {
	AssetID  string `json:"asset_id"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// SystemMetadata annotates automated notices with order context.
type SystemMetadata struct {
	OrderStatus OrderStatus `json:"order_status"`
}

// Message is an immutable entry in a room's append-only log. The envelope
// (room, sender, created_at) is shared across variants; Content holds the
// text body for text messages and the asset URL for images. Exactly one of
// Image/System is set depending on Type.
type Message struct {
	ID        string
	RoomID    string
	SenderID  string
	Type      MessageType
	Content   string
	Image     *ImageMetadata
	System    *SystemMetadata
	CreatedAt time.Time

	// Sender display data resolved from the user directory; not persisted
	// with the message row.
	SenderName   string
	SenderAvatar string
}
